package server

import (
	"github.com/trondhumbor/ChitChat/pkg/model"
)

// Registry maps usernames to authenticated sessions, in login order.
// It is not safe for concurrent use; Hub serializes access.
type Registry struct {
	byName map[string]*Session
	order  []string
}

func newRegistry() *Registry {
	return &Registry{byName: make(map[string]*Session)}
}

// add inserts s under name, failing if the name is held by anyone.
func (r *Registry) add(name string, s *Session) error {
	if _, taken := r.byName[name]; taken {
		return model.ErrUsernameTaken
	}
	r.byName[name] = s
	r.order = append(r.order, name)
	return nil
}

// remove deletes name if it is currently held by s. A stale session can
// therefore never evict a newer holder of the same name.
func (r *Registry) remove(name string, s *Session) bool {
	if cur, ok := r.byName[name]; !ok || cur != s {
		return false
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) len() int { return len(r.order) }

func (r *Registry) names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) sessions() []*Session {
	out := make([]*Session, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

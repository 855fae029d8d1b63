package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/trondhumbor/ChitChat/pkg/model"
	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

// Hub owns the Registry and the ChatLog. Every method is atomic with
// respect to every other; the lock is never held across network I/O,
// only across non-blocking outbox enqueues.
type Hub struct {
	mu       sync.Mutex
	registry *Registry
	log      ChatLog

	broadcaster *Broadcaster
	now         func() time.Time
	onPost      func(model.Message) // called under the lock after delivery; must not block
}

// NewHub creates an empty hub.
func NewHub(metrics *Metrics) *Hub {
	return &Hub{
		registry:    newRegistry(),
		broadcaster: &Broadcaster{metrics: metrics},
		now:         time.Now,
	}
}

// Add registers s under name. It fails with model.ErrUsernameTaken if the
// name is already present.
func (h *Hub) Add(name string, s *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.add(name, s)
}

// Remove unregisters name if it is held by s.
func (h *Hub) Remove(name string, s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.remove(name, s)
}

// Names returns registered usernames in login order.
func (h *Hub) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.names()
}

// Sessions returns registered sessions in login order.
func (h *Hub) Sessions() []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.sessions()
}

// Online returns the number of registered sessions.
func (h *Hub) Online() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.len()
}

// Append adds m to the chat log without delivering it.
func (h *Hub) Append(m model.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.append(m)
}

// History returns a copy of the chat log.
func (h *Hub) History() []model.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.snapshot()
}

// LogLen returns the number of messages in the chat log.
func (h *Hub) LogLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.log.len()
}

// login registers s under name and queues the history snapshot on s in one
// step, so s sees every message exactly once: in its history or live.
func (h *Hub) login(s *Session, name string) error {
	h.mu.Lock()
	if err := h.registry.add(name, s); err != nil {
		h.mu.Unlock()
		return err
	}
	s.setIdentity(name, StateAuthenticated)
	payload, err := protocol.EncodeResponse(protocol.NewHistory(name, h.log.snapshot(), h.now()))
	ok := err == nil && s.enqueue(payload)
	h.mu.Unlock()

	if err != nil {
		slog.Error("encode history", "user", name, "err", err)
	}
	if !ok {
		h.broadcaster.drop([]*Session{s})
	}
	return nil
}

// logout unregisters s and returns it to the unauthenticated state.
func (h *Hub) logout(s *Session, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registry.remove(name, s)
	s.setIdentity("", StateUnauthenticated)
}

// post appends a message from sender and queues it on every registered
// session before releasing the lock, so all recipients see log order.
func (h *Hub) post(sender, content string) (model.Message, error) {
	h.mu.Lock()
	m := model.NewMessage(sender, content, h.now())
	payload, err := protocol.EncodeResponse(protocol.MessageResponse(m))
	if err != nil {
		h.mu.Unlock()
		return model.Message{}, err
	}
	h.log.append(m)
	failed := h.broadcaster.deliver(h.registry.sessions(), payload)
	if h.onPost != nil {
		// Must not block: it runs in log order under the hub lock.
		h.onPost(m)
	}
	h.mu.Unlock()

	h.broadcaster.drop(failed)
	return m, nil
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trondhumbor/ChitChat/pkg/model"
	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

// State is a session's authentication state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	logoutText = "You've been logged out"
	namesTitle = "Names: "
)

// HelpText is the reply to a help request.
var HelpText = strings.Join([]string{
	"Available requests:",
	"login <username> - log in with an alphanumeric username",
	"logout - log out",
	"msg <message> - send a message to everyone logged in",
	"names - list users who are logged in",
	"help - show this text",
}, "\r\n")

// sessionOptions carries the per-session knobs from Config.
type sessionOptions struct {
	sendTimeout time.Duration
	outboxSize  int
}

// Session is the server side of one client connection. Its state is driven
// only by its own reader goroutine; a dedicated writer drains the outbox.
type Session struct {
	id      string
	conn    Conn
	hub     *Hub
	metrics *Metrics
	opts    sessionOptions
	log     *slog.Logger

	mu       sync.Mutex
	state    State
	username string

	outbox     chan []byte
	done       chan struct{} // closed by Close: stop now
	drain      chan struct{} // closed on clean exit: flush the outbox, then stop
	writerDone chan struct{}
	closeOnce  sync.Once
	drainOnce  sync.Once
}

func newSession(conn Conn, hub *Hub, metrics *Metrics, opts sessionOptions) *Session {
	id := uuid.NewString()
	return &Session{
		id:         id,
		conn:       conn,
		hub:        hub,
		metrics:    metrics,
		opts:       opts,
		log:        slog.With("session", id, "remote", conn.RemoteAddr(), "transport", conn.Transport()),
		state:      StateUnauthenticated,
		outbox:     make(chan []byte, opts.outboxSize),
		done:       make(chan struct{}),
		drain:      make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Username returns the logged-in name, or "" before login.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// State returns the current authentication state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) setIdentity(name string, st State) {
	s.mu.Lock()
	s.username = name
	s.state = st
	s.mu.Unlock()
}

// identity returns username and state in one read.
func (s *Session) identity() (string, State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username, s.state
}

// ---- Operations ----

// Login authenticates the session as name and queues the chat history.
func (s *Session) Login(name string) error {
	if _, st := s.identity(); st == StateAuthenticated {
		return model.ErrAlreadyLoggedIn
	}
	if err := model.ValidateUsername(name); err != nil {
		s.metrics.FailedLogins.Add(1)
		return err
	}
	if err := s.hub.login(s, name); err != nil {
		s.metrics.FailedLogins.Add(1)
		return err
	}
	s.metrics.SuccessfulLogins.Add(1)
	s.log.Info("client logged in", "user", name)
	return nil
}

// Logout unregisters the session and confirms to the client.
func (s *Session) Logout() error {
	name, st := s.identity()
	if st != StateAuthenticated {
		return model.ErrNotLoggedIn
	}
	s.hub.logout(s, name)
	s.metrics.Logouts.Add(1)
	s.reply(protocol.NewResponse(protocol.ResponseLogout, name, logoutText, s.hub.now()))
	s.log.Info("client logged out", "user", name)
	return nil
}

// SendMessage appends content to the chat log and broadcasts it to every
// logged-in session, the sender included.
func (s *Session) SendMessage(content string) error {
	name, st := s.identity()
	if st != StateAuthenticated {
		return model.ErrNotLoggedIn
	}
	if _, err := s.hub.post(name, content); err != nil {
		s.log.Error("post message", "user", name, "err", err)
		return err
	}
	s.metrics.MessagesPosted.Add(1)
	return nil
}

// ListNames replies with the logged-in usernames.
func (s *Session) ListNames() error {
	name, st := s.identity()
	if st != StateAuthenticated {
		return model.ErrNotLoggedIn
	}
	names := s.hub.Names()
	s.reply(protocol.NewResponse(protocol.ResponseNames, name, formatNames(names), s.hub.now()))
	return nil
}

// Help replies with the static capability text. It works before login.
func (s *Session) Help() error {
	s.reply(protocol.NewResponse(protocol.ResponseInfo, s.Username(), HelpText, s.hub.now()))
	return nil
}

func formatNames(names []string) string {
	return namesTitle + "\r\n" + strings.Join(names, "\r\n")
}

// ---- Outbound ----

// enqueue queues payload without blocking. It reports false if the outbox
// is full or the session is closed.
func (s *Session) enqueue(payload []byte) bool {
	if s.closed() {
		return false
	}
	select {
	case s.outbox <- payload:
		return true
	default:
		return false
	}
}

// reply encodes and queues a response for this session only.
func (s *Session) reply(resp protocol.Response) {
	payload, err := protocol.EncodeResponse(resp)
	if err != nil {
		s.log.Error("encode response", "kind", resp.Kind, "err", err)
		return
	}
	if !s.enqueue(payload) {
		s.metrics.DeliveryFailures.Add(1)
		s.log.Warn("reply dropped, disconnecting", "kind", resp.Kind)
		s.Close()
	}
}

func (s *Session) replyError(err error) {
	s.reply(protocol.NewErrorResponse(s.Username(), err, s.hub.now()))
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.outbox:
			if !s.write(payload) {
				return
			}
		case <-s.drain:
			for {
				select {
				case payload := <-s.outbox:
					if !s.write(payload) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(payload []byte) bool {
	if err := s.conn.WriteFrame(payload, time.Now().Add(s.opts.sendTimeout)); err != nil {
		if !isClosedErr(err) {
			s.metrics.DeliveryFailures.Add(1)
			s.log.Warn("write failed", "user", s.Username(), "err", err)
		}
		s.Close()
		return false
	}
	return true
}

// ---- Lifecycle ----

// Close terminates the connection. It is safe to call more than once and
// from any goroutine; the reader notices and runs the disconnect path.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// serve runs the session until the connection ends or ctx is cancelled.
func (s *Session) serve(ctx context.Context, d Dispatcher) {
	go s.writeLoop()
	defer s.disconnect()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := s.conn.ReadFrame()
		if err != nil {
			switch {
			case isClosedErr(err):
			case errors.Is(err, protocol.ErrFrameTooLarge):
				s.log.Warn("oversized frame, disconnecting", "err", err)
			default:
				s.log.Debug("read error", "err", err)
			}
			return
		}
		d.HandleFrame(s, frame)
	}
}

// disconnect removes the session from the registry, flushes what is still
// queued within the send timeout, and closes the connection.
func (s *Session) disconnect() {
	name, st := s.identity()
	if st == StateAuthenticated {
		s.hub.Remove(name, s)
	}
	s.setIdentity(name, StateTerminated)

	s.drainOnce.Do(func() { close(s.drain) })
	select {
	case <-s.writerDone:
	case <-s.done:
	}
	s.Close()
	<-s.writerDone

	s.metrics.TotalDisconnects.Add(1)
	s.log.Info("client disconnected", "user", name)
}

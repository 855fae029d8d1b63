package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// StartControl starts the TCP chat listener.
func (s *Server) StartControl() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen control: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	slog.Info("chat listening", "addr", ln.Addr().String(), "framing", s.cfg.Framing)

	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound chat listener address, or nil before StartControl.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Temporary failures such as EMFILE: back off instead of spinning.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, time.Second)
			}
			slog.Error("accept error", "err", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		go s.serveConn(newStreamConn(conn, s.cfg.Framing, s.cfg.MaxFrameSize))
	}
}

// serveConn runs one session to completion on the calling goroutine.
func (s *Server) serveConn(conn Conn) {
	sess := newSession(conn, s.hub, s.metrics, sessionOptions{
		sendTimeout: s.cfg.SendTimeout,
		outboxSize:  s.cfg.OutboxSize,
	})
	if !s.track(sess) {
		_ = conn.Close()
		return
	}
	defer s.untrack(sess)

	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	defer s.metrics.ActiveConnections.Add(-1)
	sess.log.Debug("new connection")

	sess.serve(s.ctx, s.dispatcher)
}

// track records a live session. It refuses once shutdown has begun so the
// WaitGroup is never added to while Shutdown waits on it.
func (s *Server) track(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.live[sess] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.live, sess)
	s.mu.Unlock()
	s.wg.Done()
}

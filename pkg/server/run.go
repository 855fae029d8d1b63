package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start binds the listeners and starts background workers. It returns once
// the server is accepting connections.
func (s *Server) Start() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if s.archiver != nil {
		s.archiver.Start(s.ctx)
	}
	if err := s.StartControl(); err != nil {
		s.Shutdown()
		return err
	}
	if err := s.StartHTTP(); err != nil {
		s.Shutdown()
		return err
	}
	s.metrics.StartPeriodicLog(s.cfg.MetricsLogInterval, s.ctx.Done())
	return nil
}

// Run starts the server and blocks until a shutdown signal or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	slog.Info("ChitChat server running",
		"chat", s.Addr().String(),
		"http", s.cfg.HTTPAddr,
		"archive", s.cfg.ArchivePath,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down...", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("shutting down...", "reason", ctx.Err())
	}
	if !s.Shutdown() {
		return fmt.Errorf("server: sessions still running after %s", s.cfg.ShutdownTimeout)
	}
	return nil
}

// Shutdown gracefully stops the server: it stops accepting, closes every
// session, waits up to ShutdownTimeout for them to exit, then flushes and
// closes the archive. It reports whether all sessions exited in time.
func (s *Server) Shutdown() bool {
	clean := true
	s.shutdownOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		ln, httpSrv := s.listener, s.httpSrv
		s.mu.Unlock()
		if ln != nil {
			_ = ln.Close()
		}
		if httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
			if err := httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("HTTP shutdown", "err", err)
			}
			cancel()
		}

		s.mu.Lock()
		s.stopping = true
		live := make([]*Session, 0, len(s.live))
		for sess := range s.live {
			live = append(live, sess)
		}
		s.mu.Unlock()

		for _, sess := range live {
			sess.Close()
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(s.cfg.ShutdownTimeout):
			clean = false
			slog.Warn("shutdown timed out waiting for sessions", "timeout", s.cfg.ShutdownTimeout)
		}

		if s.archiver != nil {
			s.archiver.Close()
			written, dropped := s.archiver.Stats()
			slog.Info("archive closed", "written", written, "dropped", dropped)
		}
		if s.archive != nil {
			if err := s.archive.Close(); err != nil {
				slog.Error("close archive", "err", err)
			}
		}
		s.metrics.LogSummary()
	})
	return clean
}

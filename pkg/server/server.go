// Package server implements the ChitChat relay server.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/trondhumbor/ChitChat/pkg/datastore"
	"github.com/trondhumbor/ChitChat/pkg/model"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Archive and will Close() it on shutdown.
// A nil Archive disables archiving.
type Dependencies struct {
	Archive datastore.DataProviderFactory
	Now     func() time.Time
}

// Server is the main ChitChat server.
type Server struct {
	cfg        Config
	hub        *Hub
	dispatcher Dispatcher
	metrics    *Metrics
	promReg    *prometheus.Registry
	archive    datastore.DataProviderFactory
	archiver   *datastore.Archiver
	upgrader   websocket.Upgrader

	listener net.Listener
	httpLn   net.Listener
	httpSrv  *http.Server

	mu       sync.Mutex
	live     map[*Session]struct{}
	stopping bool
	wg       sync.WaitGroup

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	metrics := NewMetrics()
	hub := NewHub(metrics)
	if deps.Now != nil {
		hub.now = deps.Now
	}

	s := &Server{
		cfg:      cfg,
		hub:      hub,
		metrics:  metrics,
		promReg:  prometheus.NewRegistry(),
		archive:  deps.Archive,
		upgrader: newUpgrader(),
		live:     make(map[*Session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	if s.archive != nil {
		s.archiver = datastore.NewArchiver(s.archive, 0)
		hub.onPost = s.archiveMessage
	}

	metrics.Register(s.promReg)
	s.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "users_online",
			Help:      "Sessions currently logged in.",
		}, func() float64 { return float64(hub.Online()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "chatlog_messages",
			Help:      "Messages in the in-memory chat log.",
		}, func() float64 { return float64(hub.LogLen()) }),
	)
	return s
}

// Hub returns the shared registry and chat log.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Registry returns the Prometheus registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.promReg
}

func (s *Server) archiveMessage(m model.Message) {
	if err := s.archiver.Record(m); err != nil {
		s.metrics.ArchiveDropped.Add(1)
		slog.Warn("archive message", "user", m.Sender, "err", err)
	}
}

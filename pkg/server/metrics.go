package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "chitchat"

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime connections accepted (TCP and WebSocket)
	ActiveConnections atomic.Int64 // current open connections
	TotalDisconnects  atomic.Int64 // sessions terminated for any reason

	// Session counters
	SuccessfulLogins atomic.Int64
	FailedLogins     atomic.Int64 // invalid or taken usernames
	Logouts          atomic.Int64

	// Chat counters
	MessagesPosted    atomic.Int64 // messages appended to the chat log
	Deliveries        atomic.Int64 // broadcast payloads queued on a recipient
	DeliveryFailures  atomic.Int64 // full outboxes and failed writes
	MalformedRequests atomic.Int64
	ArchiveDropped    atomic.Int64 // messages the archive queue refused
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	SuccessfulLogins int64 `json:"successful_logins"`
	FailedLogins     int64 `json:"failed_logins"`
	Logouts          int64 `json:"logouts"`

	MessagesPosted    int64 `json:"messages_posted"`
	Deliveries        int64 `json:"deliveries"`
	DeliveryFailures  int64 `json:"delivery_failures"`
	MalformedRequests int64 `json:"malformed_requests"`
	ArchiveDropped    int64 `json:"archive_dropped"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		SuccessfulLogins:  m.SuccessfulLogins.Load(),
		FailedLogins:      m.FailedLogins.Load(),
		Logouts:           m.Logouts.Load(),
		MessagesPosted:    m.MessagesPosted.Load(),
		Deliveries:        m.Deliveries.Load(),
		DeliveryFailures:  m.DeliveryFailures.Load(),
		MalformedRequests: m.MalformedRequests.Load(),
		ArchiveDropped:    m.ArchiveDropped.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Register exposes every counter on reg. The atomics stay the source of
// truth; Prometheus reads them at scrape time.
func (m *Metrics) Register(reg prometheus.Registerer) {
	factory := promauto.With(reg)

	counter := func(name, help string, v *atomic.Int64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v.Load()) })
	}
	gauge := func(name, help string, fn func() float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		}, fn)
	}

	gauge("uptime_seconds", "Server uptime in seconds.", func() float64 {
		return time.Since(m.startTime).Seconds()
	})
	gauge("connections_active", "Current open client connections.", func() float64 {
		return float64(m.ActiveConnections.Load())
	})
	counter("connections_total", "Lifetime client connections accepted.", &m.TotalConnections)
	counter("disconnects_total", "Sessions terminated.", &m.TotalDisconnects)
	counter("logins_total", "Successful logins.", &m.SuccessfulLogins)
	counter("logins_failed_total", "Rejected logins.", &m.FailedLogins)
	counter("logouts_total", "Explicit logouts.", &m.Logouts)
	counter("messages_total", "Messages appended to the chat log.", &m.MessagesPosted)
	counter("deliveries_total", "Broadcast payloads queued on a recipient.", &m.Deliveries)
	counter("delivery_failures_total", "Deliveries that disconnected their recipient.", &m.DeliveryFailures)
	counter("malformed_requests_total", "Requests that were not valid envelopes.", &m.MalformedRequests)
	counter("archive_dropped_total", "Messages the archive queue refused.", &m.ArchiveDropped)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"logins", s.SuccessfulLogins,
		"msgs", s.MessagesPosted,
		"deliveries", s.Deliveries,
		"delivery_failures", s.DeliveryFailures,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}

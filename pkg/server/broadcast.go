package server

import (
	"log/slog"
)

// Broadcaster fans a payload out to a set of sessions. A recipient that
// cannot take the payload is reported back and never affects the others.
type Broadcaster struct {
	metrics *Metrics
}

// deliver enqueues payload on every target and returns those whose outbox
// refused it. It never blocks, so it may run under the Hub lock.
func (b *Broadcaster) deliver(targets []*Session, payload []byte) []*Session {
	var failed []*Session
	for _, s := range targets {
		if s.closed() {
			// Already on its way out; its disconnect path will unregister it.
			continue
		}
		if s.enqueue(payload) {
			b.metrics.Deliveries.Add(1)
			continue
		}
		failed = append(failed, s)
	}
	return failed
}

// drop disconnects sessions that failed delivery. Their own disconnect
// path removes them from the registry.
func (b *Broadcaster) drop(failed []*Session) {
	for _, s := range failed {
		b.metrics.DeliveryFailures.Add(1)
		s.log.Warn("delivery failed, disconnecting", "user", s.Username(), "queued", len(s.outbox))
		s.Close()
	}
	if len(failed) > 0 {
		slog.Debug("broadcast isolated failed recipients", "count", len(failed))
	}
}

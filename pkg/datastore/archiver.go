package datastore

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/trondhumbor/ChitChat/pkg/model"
)

const (
	defaultArchiveQueue = 1024
	maxArchiveBatch     = 128
)

// ErrArchiveFull is returned by Record when the queue has no room.
var ErrArchiveFull = errors.New("datastore: archive queue full")

// Archiver writes messages to a DataProviderFactory in the background.
// Record never blocks; batches are committed in a single transaction.
type Archiver struct {
	factory DataProviderFactory
	queue   chan model.Message

	mu     sync.Mutex
	closed bool

	dropped int64
	written int64

	wg sync.WaitGroup
}

// NewArchiver creates an archiver. queueSize <= 0 selects a default.
func NewArchiver(factory DataProviderFactory, queueSize int) *Archiver {
	if queueSize <= 0 {
		queueSize = defaultArchiveQueue
	}
	return &Archiver{
		factory: factory,
		queue:   make(chan model.Message, queueSize),
	}
}

// Start launches the writer goroutine. It runs until Close is called;
// ctx only bounds individual database calls.
func (a *Archiver) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(ctx)
	}()
}

// Record queues m for archiving.
func (a *Archiver) Record(m model.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("datastore: archiver closed")
	}
	select {
	case a.queue <- m:
		return nil
	default:
		a.dropped++
		return ErrArchiveFull
	}
}

// Stats reports how many messages were written and dropped so far.
func (a *Archiver) Stats() (written, dropped int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written, a.dropped
}

// Close stops accepting messages, flushes the queue and waits for the writer.
func (a *Archiver) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Archiver) run(ctx context.Context) {
	batch := make([]model.Message, 0, maxArchiveBatch)
	for m := range a.queue {
		batch = append(batch[:0], m)
	drain:
		for len(batch) < maxArchiveBatch {
			select {
			case next, ok := <-a.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		a.writeBatch(context.WithoutCancel(ctx), batch)
	}
}

func (a *Archiver) writeBatch(ctx context.Context, batch []model.Message) {
	tx, err := a.factory.Tx(ctx)
	if err != nil {
		slog.Error("archive: begin batch", "err", err, "messages", len(batch))
		a.addDropped(len(batch))
		return
	}
	for _, m := range batch {
		if _, err := tx.CreateMessage(ctx, m); err != nil {
			slog.Error("archive: write message", "err", err, "sender", m.Sender)
			_ = tx.Rollback()
			a.addDropped(len(batch))
			return
		}
	}
	if err := tx.Commit(); err != nil {
		slog.Error("archive: commit batch", "err", err, "messages", len(batch))
		a.addDropped(len(batch))
		return
	}
	a.mu.Lock()
	a.written += int64(len(batch))
	a.mu.Unlock()
	slog.Debug("archive: batch committed", "messages", len(batch))
}

func (a *Archiver) addDropped(n int) {
	a.mu.Lock()
	a.dropped += int64(n)
	a.mu.Unlock()
}

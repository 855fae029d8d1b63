package datastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trondhumbor/ChitChat/pkg/model"
)

// MemoryStore provides an in-memory archive for tests and for running
// without a database file. It mirrors SQLite behavior for validation.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextID  int64
	records []Record
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{now: now, nextID: 1}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// NonTx returns the store itself.
func (s *MemoryStore) NonTx() DataStore {
	return s
}

// Tx returns a buffered transaction that applies on Commit.
func (s *MemoryStore) Tx(context.Context) (DataStoreTx, error) {
	return &memoryTx{store: s}, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, m model.Message) (int64, error) {
	if err := model.ValidateUsername(m.Sender); err != nil {
		return 0, fmt.Errorf("datastore: create message: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(m), nil
}

func (s *MemoryStore) insertLocked(m model.Message) int64 {
	id := s.nextID
	s.nextID++
	s.records = append(s.records, Record{
		ID:         id,
		Message:    m,
		ArchivedAt: s.now().Truncate(time.Second),
	})
	return id
}

func (s *MemoryStore) ListMessages(_ context.Context, filters MessageFilters) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := int64(defaultPageSize)
	if filters.PageSize != nil {
		limit = *filters.PageSize
	}
	var offset int64
	if filters.Offset != nil {
		offset = *filters.Offset
	}

	var out []Record
	var skipped int64
	for _, r := range s.records {
		if filters.Sender != nil && r.Sender != *filters.Sender {
			continue
		}
		if filters.Since != nil && r.Timestamp < *filters.Since {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if limit >= 0 && int64(len(out)) >= limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MemoryStore) CountMessages(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

type memoryTx struct {
	store   *MemoryStore
	pending []model.Message
	done    bool
}

func (t *memoryTx) CreateMessage(_ context.Context, m model.Message) (int64, error) {
	if t.done {
		return 0, fmt.Errorf("datastore: create message: transaction finished")
	}
	if err := model.ValidateUsername(m.Sender); err != nil {
		return 0, fmt.Errorf("datastore: create message: %w", err)
	}
	t.pending = append(t.pending, m)
	// IDs are assigned on commit; report the provisional position.
	return int64(len(t.pending)), nil
}

func (t *memoryTx) ListMessages(ctx context.Context, filters MessageFilters) ([]Record, error) {
	return t.store.ListMessages(ctx, filters)
}

func (t *memoryTx) CountMessages(ctx context.Context) (int64, error) {
	return t.store.CountMessages(ctx)
}

func (t *memoryTx) Commit() error {
	if t.done {
		return fmt.Errorf("datastore: commit: transaction finished")
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, m := range t.pending {
		t.store.insertLocked(m)
	}
	t.pending = nil
	return nil
}

func (t *memoryTx) Rollback() error {
	t.done = true
	t.pending = nil
	return nil
}

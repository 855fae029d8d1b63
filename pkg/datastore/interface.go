// Package datastore archives delivered chat messages.
//
// The archive is write-only from the server's point of view: the in-memory
// chat log is never rebuilt from it. It exists for audit and export.
package datastore

import (
	"context"
	"time"

	"github.com/trondhumbor/ChitChat/pkg/model"
)

// DataProviderFactory hands out transactional and non-transactional stores.
type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
	Close() error
}

// DataStoreTx is a DataStore bound to one transaction.
type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore defines the persistence interface for archived messages.
type DataStore interface {
	MessageReadProvider
	MessageWriteProvider
}

// Compile-time checks.
var (
	_ DataProviderFactory = (*ProviderFactory)(nil)
	_ DataProviderFactory = (*MemoryStore)(nil)
)

// Record is an archived message with its archive metadata.
type Record struct {
	ID int64
	model.Message
	ArchivedAt time.Time
}

// MessageFilters narrows ListMessages. Nil fields are ignored.
type MessageFilters struct {
	Sender   *string
	Since    *int64 // epoch seconds, inclusive
	PageSize *int64 // default 100
	Offset   *int64
}

type MessageReadProvider interface {
	// ListMessages returns records in archive order (oldest first).
	ListMessages(ctx context.Context, filters MessageFilters) ([]Record, error)
	CountMessages(ctx context.Context) (int64, error)
}

type MessageWriteProvider interface {
	// CreateMessage archives m and returns its record ID.
	CreateMessage(ctx context.Context, m model.Message) (int64, error)
}

const defaultPageSize = 100

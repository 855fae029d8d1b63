package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/trondhumbor/ChitChat/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type baseProvider struct {
	DB
}

type nonTxProvider struct {
	baseProvider
}

type txProvider struct {
	baseProvider
	tx *sql.Tx
}

func (c *txProvider) Rollback() error {
	return c.tx.Rollback()
}

func (c *txProvider) Commit() error {
	return c.tx.Commit()
}

// ProviderFactory provides SQLite-backed archive access.
type ProviderFactory struct {
	DB *sql.DB
}

func (sf *ProviderFactory) NonTx() DataStore {
	return &nonTxProvider{
		baseProvider: baseProvider{DB: sf.DB},
	}
}

func (sf *ProviderFactory) Tx(ctx context.Context) (DataStoreTx, error) {
	tx, err := sf.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("datastore: begin tx: %w", err)
	}
	return &txProvider{
		baseProvider: baseProvider{DB: tx},
		tx:           tx,
	}, nil
}

// NewProviderFactory opens (or creates) a SQLite archive and runs migrations.
func NewProviderFactory(dbPath string) (*ProviderFactory, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open DB: %w", err)
	}

	ctx := context.Background()

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "set WAL"},
		{"PRAGMA busy_timeout=5000", "set busy_timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("datastore: %s: %w", p.what, err)
		}
	}

	s := &ProviderFactory{DB: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("datastore: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (sf *ProviderFactory) Close() error {
	return sf.DB.Close()
}

func (sf *ProviderFactory) migrate(ctx context.Context) error {
	if err := sf.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := sf.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version: 1,
			statements: []string{`
			CREATE TABLE IF NOT EXISTS messages (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp   INTEGER NOT NULL,
				sender      TEXT    NOT NULL CHECK(length(sender) > 0),
				content     TEXT    NOT NULL DEFAULT '',
				archived_at TEXT    NOT NULL DEFAULT (datetime('now'))
			)`},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender)",
				"CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := sf.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("datastore: migrate v%d: %w", m.version, err)
			}
		}
		if err := sf.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (sf *ProviderFactory) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := sf.DB.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("datastore: create schema_migrations: %w", err)
	}
	var count int
	if err := sf.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("datastore: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := sf.DB.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("datastore: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (sf *ProviderFactory) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := sf.DB.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("datastore: read schema version: %w", err)
	}
	return version, nil
}

func (sf *ProviderFactory) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := sf.DB.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("datastore: update schema version: %w", err)
	}
	return nil
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// ---- Messages ----

// CreateMessage archives a delivered message.
func (s *baseProvider) CreateMessage(ctx context.Context, m model.Message) (int64, error) {
	if err := model.ValidateUsername(m.Sender); err != nil {
		return 0, fmt.Errorf("datastore: create message: %w", err)
	}
	res, err := s.ExecContext(ctx,
		"INSERT INTO messages (timestamp, sender, content) VALUES (?, ?, ?)",
		m.Timestamp, m.Sender, m.Content)
	if err != nil {
		return 0, fmt.Errorf("datastore: create message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("datastore: create message: %w", err)
	}
	return id, nil
}

// ListMessages returns archived messages oldest first.
func (s *baseProvider) ListMessages(ctx context.Context, filters MessageFilters) ([]Record, error) {
	query := `
		SELECT id, timestamp, sender, content, archived_at
		FROM messages
		WHERE (? IS NULL OR sender = ?)
		AND (? IS NULL OR timestamp >= ?)
		ORDER BY id ASC
		LIMIT COALESCE(?, ?)
		OFFSET COALESCE(?, 0)
	`
	rows, err := s.QueryContext(ctx, query,
		filters.Sender, filters.Sender,
		filters.Since, filters.Since,
		filters.PageSize, defaultPageSize,
		filters.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("datastore: list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		var archivedAt string
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Sender, &r.Content, &archivedAt); err != nil {
			return nil, fmt.Errorf("datastore: scan message: %w", err)
		}
		parsed, err := parseDBTime(archivedAt)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan message: %w", err)
		}
		r.ArchivedAt = parsed
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountMessages returns the number of archived messages.
func (s *baseProvider) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	if err := s.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("datastore: count messages: %w", err)
	}
	return n, nil
}

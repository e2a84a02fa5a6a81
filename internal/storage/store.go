// Package storage persists users, sessions, decks, cards, progress and
// ratings in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// queries holds every statement the repositories run. It executes against
// either the pool or an open transaction.
type queries struct {
	q   sqlx.ExtContext
	now func() time.Time
}

// Store is the database handle used by the services.
type Store struct {
	queries
	db *sqlx.DB
}

// Tx exposes the same operations as Store inside one transaction.
type Tx struct {
	queries
	tx *sqlx.Tx
}

// Open creates a new database connection. The schema is not touched;
// call Migrate before serving.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer. One connection also keeps an
	// in-memory database alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newStore(db), nil
}

func newStore(db *sqlx.DB) *Store {
	return &Store{
		queries: queries{q: db, now: time.Now},
		db:      db,
	}
}

func dsn(path string) string {
	if path == MemoryPath {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// SetClock replaces the time source used for stored timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunInTx runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back; otherwise, it is committed.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	return s.RunInTxWithCommitHook(ctx, fn, nil)
}

// RunInTxWithCommitHook behaves like RunInTx. When fn succeeds, beforeCommit
// runs right before the commit; if the commit then fails, onCommitFailure
// is given the chance to undo side effects made outside the database.
func (s *Store) RunInTxWithCommitHook(ctx context.Context, fn func(ctx context.Context, tx *Tx) error, hook *CommitHook) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := &Tx{queries: queries{q: sqlTx, now: s.now}, tx: sqlTx}

	rollback := func(cause error) error {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("failed to roll back transaction: %w (original error: %v)", rbErr, cause)
		}
		return cause
	}

	if err := fn(ctx, tx); err != nil {
		return rollback(err)
	}
	if hook != nil && hook.BeforeCommit != nil {
		if err := hook.BeforeCommit(); err != nil {
			return rollback(err)
		}
	}
	if err := sqlTx.Commit(); err != nil {
		if hook != nil && hook.OnCommitFailure != nil {
			hook.OnCommitFailure()
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CommitHook couples a transaction with a side effect outside the database.
type CommitHook struct {
	BeforeCommit    func() error
	OnCommitFailure func()
}

func (q *queries) millis() int64 {
	return q.now().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func getContext(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

func selectContext(ctx context.Context, q sqlx.QueryerContext, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// execOne runs a statement that must affect a row; ErrNotFound otherwise.
func (q *queries) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}

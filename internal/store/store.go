// Package store abstracts the relational target of an import run behind a
// small connection-pool interface. Two providers exist: a networked
// PostgreSQL store backed by pgxpool, and a local file-based SQLite store
// backed by database/sql.
//
// The pool is the single shared mutable resource of a run; its size bounds
// concurrent database load, and acquisition blocks up to a configured
// timeout before failing with ErrPoolTimeout.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mkrogh/sheetpipe/internal/schema"
)

// ErrPoolTimeout is returned when no pooled connection frees up within the
// configured acquire timeout.
var ErrPoolTimeout = errors.New("connection pool acquire timed out")

// DefaultAcquireTimeout bounds how long Acquire blocks when the pool is
// exhausted.
const DefaultAcquireTimeout = 30 * time.Second

// Store is a bounded pool of reusable connections to one target database.
type Store interface {
	Dialect() schema.Dialect

	// Acquire blocks until a pooled connection is free, the context is
	// cancelled, or the acquire timeout elapses (ErrPoolTimeout).
	Acquire(ctx context.Context) (Conn, error)

	Close()
}

// Conn is one pooled connection. Callers must Release on every exit path.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) error
	TableColumns(ctx context.Context, table string) ([]schema.Column, error)
	Begin(ctx context.Context) (Tx, error)
	Release()
}

// Tx is a database transaction. Rollback after Commit is a no-op, so
// "defer tx.Rollback" is safe on every path.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BulkCopier is an optional fast path for stores with a native bulk-load
// protocol. The batch writer uses it for fail-fast runs where per-row
// recovery is not needed.
type BulkCopier interface {
	CopyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// acquireErr maps a pool acquisition failure to ErrPoolTimeout when the
// deadline came from our own acquire timeout rather than the caller.
func acquireErr(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrPoolTimeout
	}
	return err
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mkrogh/sheetpipe/internal/schema"
)

// SQLite is a local file-based target backed by database/sql and the
// modernc.org/sqlite driver. The stdlib pool provides connection reuse;
// MaxOpenConns is the pool bound.
type SQLite struct {
	db             *sql.DB
	acquireTimeout time.Duration
}

// OpenSQLite opens (or creates) a database file with a pool of maxConns
// connections.
func OpenSQLite(path string, maxConns int, acquireTimeout time.Duration) (*SQLite, error) {
	if maxConns <= 0 {
		maxConns = 1
	}
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	return &SQLite{db: db, acquireTimeout: acquireTimeout}, nil
}

func (s *SQLite) Dialect() schema.Dialect { return schema.SQLite{} }

func (s *SQLite) Acquire(ctx context.Context) (Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()

	c, err := s.db.Conn(acquireCtx)
	if err != nil {
		return nil, acquireErr(ctx, err)
	}
	return &sqliteConn{conn: c}, nil
}

func (s *SQLite) Close() { s.db.Close() }

type sqliteConn struct {
	conn *sql.Conn
}

func (c *sqliteConn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.conn.ExecContext(ctx, query, args...)
	return err
}

func (c *sqliteConn) TableColumns(ctx context.Context, table string) ([]schema.Column, error) {
	rows, err := c.conn.QueryContext(ctx,
		`SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []schema.Column
	for rows.Next() {
		var col schema.Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (c *sqliteConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

func (c *sqliteConn) Release() { c.conn.Close() }

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t *sqliteTx) Commit(context.Context) error { return t.tx.Commit() }

func (t *sqliteTx) Rollback(context.Context) error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T, maxConns int, acquireTimeout time.Duration) *SQLite {
	t.Helper()
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"), maxConns, acquireTimeout)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func TestSQLiteRoundTrip(t *testing.T) {
	st := openTestSQLite(t, 2, time.Second)
	ctx := context.Background()

	conn, err := st.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer conn.Release()

	if err := conn.Exec(ctx, `CREATE TABLE "items" ("id" integer, "name" text)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	cols, err := conn.TableColumns(ctx, "items")
	if err != nil {
		t.Fatalf("TableColumns: %v", err)
	}
	if len(cols) != 2 || cols[0].Name != "id" || cols[1].Name != "name" {
		t.Fatalf("columns = %v", cols)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Exec(ctx, `INSERT INTO "items" ("id", "name") VALUES (?, ?)`, int64(1), "widget"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var count int
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM "items"`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestSQLiteRollbackDiscards(t *testing.T) {
	st := openTestSQLite(t, 2, time.Second)
	ctx := context.Background()

	conn, err := st.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer conn.Release()

	if err := conn.Exec(ctx, `CREATE TABLE "items" ("id" integer)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Exec(ctx, `INSERT INTO "items" ("id") VALUES (?)`, int64(1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	var count int
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM "items"`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestSQLiteRollbackAfterCommit(t *testing.T) {
	st := openTestSQLite(t, 2, time.Second)
	ctx := context.Background()

	conn, err := st.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	// "defer tx.Rollback" on the happy path must stay silent.
	if err := tx.Rollback(ctx); err != nil {
		t.Errorf("Rollback after Commit = %v, want nil", err)
	}
}

func TestSQLitePoolTimeout(t *testing.T) {
	st := openTestSQLite(t, 1, 100*time.Millisecond)
	ctx := context.Background()

	conn, err := st.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer conn.Release()

	if _, err := st.Acquire(ctx); !errors.Is(err, ErrPoolTimeout) {
		t.Errorf("second Acquire = %v, want ErrPoolTimeout", err)
	}
}

func TestSQLiteAcquireCancelled(t *testing.T) {
	st := openTestSQLite(t, 1, time.Minute)

	conn, err := st.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer conn.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := st.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire = %v, want context.Canceled", err)
	}
}

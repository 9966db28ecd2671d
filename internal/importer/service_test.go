package importer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mkrogh/sheetpipe/internal/source"
)

// blockingReader parks in Next until released, holding its run slot open.
type blockingReader struct {
	release chan struct{}
}

func (b *blockingReader) Columns() []string { return []string{"id"} }
func (b *blockingReader) TotalRows() int    { return -1 }
func (b *blockingReader) Close() error      { return nil }

func (b *blockingReader) Next(ctx context.Context) (*source.RowChunk, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.release:
		return nil, io.EOF
	}
}

func testOptions(table string) Options {
	return Options{Table: table, ChunkSize: 10, BatchSize: 10, Workers: 1, SampleSize: 10}
}

func TestServiceRunToCompletion(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, 2, time.Second, time.Minute)

	src := &memReader{columns: []string{"id", "name"}, rows: sequenceRows(30), chunkSize: 10}
	runID, err := svc.Start(context.Background(), src, testOptions("items"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run ID")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := svc.Result(ctx, runID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.State != StateCompleted {
		t.Errorf("state = %v, want %v", res.State, StateCompleted)
	}
	if res.Metrics.RowsInserted != 30 {
		t.Errorf("inserted %d, want 30", res.Metrics.RowsInserted)
	}
	if got := st.inserted("items"); got != 30 {
		t.Errorf("store has %d rows, want 30", got)
	}

	if err := svc.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestServiceSubscribe(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, 2, time.Second, time.Minute)

	src := &memReader{columns: []string{"id", "name"}, rows: sequenceRows(30), chunkSize: 10}
	runID, err := svc.Start(context.Background(), src, testOptions("items"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	ch, err := svc.Subscribe(runID)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var last Progress
	timeout := time.After(5 * time.Second)
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				if last.State != StateCompleted {
					t.Errorf("last state = %v, want %v", last.State, StateCompleted)
				}
				if last.RowsInserted != 30 {
					t.Errorf("last snapshot inserted %d, want 30", last.RowsInserted)
				}
				return
			}
			last = p
		case <-timeout:
			t.Fatal("progress channel never closed")
		}
	}
}

func TestServiceCancel(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, 2, time.Second, time.Minute)

	src := &blockingReader{release: make(chan struct{})}
	runID, err := svc.Start(context.Background(), src, testOptions("items"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := svc.Cancel(runID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := svc.Result(ctx, runID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.State != StateAborted {
		t.Errorf("state = %v, want %v", res.State, StateAborted)
	}
}

func TestServiceUnknownRun(t *testing.T) {
	svc := NewService(newFakeStore(), 2, time.Second, time.Minute)

	if _, err := svc.Progress("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Progress = %v, want ErrRunNotFound", err)
	}
	if err := svc.Cancel("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Cancel = %v, want ErrRunNotFound", err)
	}
	if _, err := svc.Result(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Result = %v, want ErrRunNotFound", err)
	}
	if _, err := svc.Subscribe("nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Subscribe = %v, want ErrRunNotFound", err)
	}
}

func TestServiceConcurrencyLimit(t *testing.T) {
	st := newFakeStore()
	svc := NewService(st, 1, 50*time.Millisecond, time.Minute)

	release := make(chan struct{})
	runID, err := svc.Start(context.Background(), &blockingReader{release: release}, testOptions("a"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	src := &memReader{columns: []string{"id", "name"}, rows: sequenceRows(10), chunkSize: 10}
	if _, err := svc.Start(context.Background(), src, testOptions("b")); !errors.Is(err, ErrTooManyImports) {
		t.Errorf("second Start = %v, want ErrTooManyImports", err)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := svc.Result(ctx, runID); err != nil {
		t.Fatalf("Result: %v", err)
	}
	if err := svc.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

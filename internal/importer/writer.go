package importer

// writer.go is the batch writer: it coerces rows to the inferred column
// types, groups them into bounded batches, and inserts each batch in a
// single transaction. Workers pull batches from a channel; each worker
// holds one pooled connection for the duration of the run.
//
// Failure handling depends on the policy. Fail-fast cancels the run on the
// first error. Best-effort retries a failed batch row by row inside
// savepoints, so one bad row costs one savepoint rollback instead of the
// whole batch.

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mkrogh/sheetpipe/internal/infer"
	"github.com/mkrogh/sheetpipe/internal/schema"
	"github.com/mkrogh/sheetpipe/internal/source"
	"github.com/mkrogh/sheetpipe/internal/store"
)

type batch struct {
	rows    [][]any
	rowNums []int
}

type batchWriter struct {
	st      store.Store
	dialect schema.Dialect
	table   string
	sc      infer.Schema

	batchSize int
	policy    Policy

	fullSQL string // cached INSERT for a full batch
	rowSQL  string // single-row INSERT for savepoint replay

	batches chan batch
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	inserted atomic.Int64
	rejected atomic.Int64

	mu      sync.Mutex
	rejects []RejectedRow
	err     error

	pending batch
}

// newBatchWriter starts opts.Workers workers reading from the batch
// channel. The returned writer is fed from a single goroutine via AddRow
// and drained with Close.
func newBatchWriter(ctx context.Context, st store.Store, sc infer.Schema, opts Options) *batchWriter {
	ctx, cancel := context.WithCancel(ctx)

	w := &batchWriter{
		st:        st,
		dialect:   st.Dialect(),
		table:     opts.Table,
		sc:        sc,
		batchSize: opts.BatchSize,
		policy:    opts.Policy,
		batches:   make(chan batch, opts.Workers),
		cancel:    cancel,
	}
	w.fullSQL = insertSQL(w.dialect, w.table, sc, opts.BatchSize)
	w.rowSQL = insertSQL(w.dialect, w.table, sc, 1)

	w.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go w.worker(ctx)
	}
	return w
}

// AddRow coerces one source row and queues it. Under best-effort a
// coercion failure rejects the row and returns nil; under fail-fast it
// returns an ErrWriteFailed-wrapped error. AddRow also surfaces the first
// worker failure so the feeder stops early.
func (w *batchWriter) AddRow(row source.Row) error {
	vals := make([]any, len(w.sc))
	for i, col := range w.sc {
		v, err := Coerce(row.Cells[i], col.Type)
		if err != nil {
			if w.policy == PolicyBestEffort {
				w.reject(RejectedRow{
					RowNum: row.Num,
					Column: col.Name,
					Value:  row.Cells[i].Text(),
					Reason: ReasonCoercionFailed,
					Detail: err.Error(),
				})
				return nil
			}
			return fmt.Errorf("%w: row %d column %s: %v", ErrWriteFailed, row.Num, col.Name, err)
		}
		vals[i] = v
	}

	w.pending.rows = append(w.pending.rows, vals)
	w.pending.rowNums = append(w.pending.rowNums, row.Num)
	if len(w.pending.rows) >= w.batchSize {
		w.flush()
	}
	return w.firstErr()
}

// Close flushes the partial batch, waits for all workers, and returns the
// first error any of them hit.
func (w *batchWriter) Close() error {
	w.flush()
	close(w.batches)
	w.wg.Wait()
	return w.firstErr()
}

func (w *batchWriter) Inserted() int64 { return w.inserted.Load() }
func (w *batchWriter) Rejected() int64 { return w.rejected.Load() }

func (w *batchWriter) RejectedRows() []RejectedRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rejects
}

func (w *batchWriter) flush() {
	if len(w.pending.rows) == 0 {
		return
	}
	b := w.pending
	w.pending = batch{}
	w.batches <- b
}

func (w *batchWriter) worker(ctx context.Context) {
	defer w.wg.Done()

	conn, err := w.st.Acquire(ctx)
	if err != nil {
		w.fail(err)
		w.drain()
		return
	}
	defer conn.Release()

	for b := range w.batches {
		if ctx.Err() != nil {
			continue
		}
		if err := w.writeBatch(ctx, conn, b); err != nil {
			w.fail(err)
		}
	}
}

// drain keeps the channel moving after a worker bailed out, so the feeder
// never blocks on a dead pipeline.
func (w *batchWriter) drain() {
	for range w.batches {
	}
}

func (w *batchWriter) writeBatch(ctx context.Context, conn store.Conn, b batch) error {
	// Clean fail-fast runs can use the store's native bulk protocol.
	if w.policy == PolicyFailFast {
		if bc, ok := conn.(store.BulkCopier); ok {
			n, err := bc.CopyRows(ctx, w.table, w.columnNames(), b.rows)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrWriteFailed, err)
			}
			w.inserted.Add(n)
			return nil
		}
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrWriteFailed, err)
	}
	defer tx.Rollback(ctx)

	sql := w.fullSQL
	if len(b.rows) != w.batchSize {
		sql = insertSQL(w.dialect, w.table, w.sc, len(b.rows))
	}

	if err := tx.Exec(ctx, sql, flatten(b.rows)...); err != nil {
		if w.policy == PolicyFailFast {
			return fmt.Errorf("%w: batch at row %d: %v", ErrWriteFailed, b.rowNums[0], err)
		}
		if err := tx.Rollback(ctx); err != nil {
			return fmt.Errorf("%w: rollback: %v", ErrWriteFailed, err)
		}
		return w.replayRows(ctx, conn, b)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrWriteFailed, err)
	}
	w.inserted.Add(int64(len(b.rows)))
	return nil
}

// replayRows retries a failed batch one row at a time inside savepoints,
// so only the rows the database actually refuses are rejected.
func (w *batchWriter) replayRows(ctx context.Context, conn store.Conn, b batch) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin replay: %v", ErrWriteFailed, err)
	}
	defer tx.Rollback(ctx)

	var inserted int64
	for i, row := range b.rows {
		sp := fmt.Sprintf("sp_%d", i)
		if err := tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
			return fmt.Errorf("%w: savepoint: %v", ErrWriteFailed, err)
		}
		if err := tx.Exec(ctx, w.rowSQL, row...); err != nil {
			if err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
				return fmt.Errorf("%w: rollback to savepoint: %v", ErrWriteFailed, err)
			}
			w.reject(RejectedRow{
				RowNum: b.rowNums[i],
				Reason: ReasonConstraintViolation,
				Detail: err.Error(),
				Values: renderRow(row),
			})
			continue
		}
		if err := tx.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return fmt.Errorf("%w: release savepoint: %v", ErrWriteFailed, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit replay: %v", ErrWriteFailed, err)
	}
	w.inserted.Add(inserted)
	return nil
}

func (w *batchWriter) reject(r RejectedRow) {
	w.rejected.Add(1)
	w.mu.Lock()
	w.rejects = append(w.rejects, r)
	w.mu.Unlock()
}

// fail records the first error and cancels the run so the other workers
// and the feeder stop.
func (w *batchWriter) fail(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
	w.cancel()
}

func (w *batchWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *batchWriter) columnNames() []string {
	names := make([]string, len(w.sc))
	for i, c := range w.sc {
		names[i] = c.Name
	}
	return names
}

// insertSQL renders a multi-row INSERT for the given number of rows in the
// target dialect.
func insertSQL(d schema.Dialect, table string, sc infer.Schema, rows int) string {
	cols := make([]string, len(sc))
	for i, c := range sc {
		cols[i] = d.Quote(c.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", d.Quote(table), strings.Join(cols, ", "))

	arg := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range sc {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(arg))
			arg++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// renderRow formats a coerced row's values for a rejection record. NULLs
// render as empty strings.
func renderRow(vals []any) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

func flatten(rows [][]any) []any {
	if len(rows) == 0 {
		return nil
	}
	args := make([]any, 0, len(rows)*len(rows[0]))
	for _, r := range rows {
		args = append(args, r...)
	}
	return args
}

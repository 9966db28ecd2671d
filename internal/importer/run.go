// Package importer drives one file-to-table import end to end: buffer a
// sample, infer column types, ensure the target table, then stream the
// remaining chunks through the batch writer.
//
// A run moves strictly forward through its states. Cancellation is
// cooperative: the context is checked between chunks and between batches,
// never mid-statement, so an aborted run leaves whole committed batches
// behind rather than torn rows.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mkrogh/sheetpipe/internal/infer"
	"github.com/mkrogh/sheetpipe/internal/schema"
	"github.com/mkrogh/sheetpipe/internal/source"
	"github.com/mkrogh/sheetpipe/internal/store"
)

// Result is the final accounting of a run, available once the run reaches
// Completed or Aborted.
type Result struct {
	RunID    string        `json:"run_id"`
	Table    string        `json:"table"`
	State    State         `json:"state"`
	Schema   infer.Schema  `json:"schema"`
	Metrics  Metrics       `json:"metrics"`
	Rejected []RejectedRow `json:"rejected,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type run struct {
	st    store.Store
	src   source.Reader
	opts  Options
	state State

	metrics Metrics
	writer  *batchWriter
	started time.Time
}

// Run executes one import to completion. It returns the Result in every
// case; on failure the error is also folded into Result.Error. Rows
// committed before a failure stay committed, and reruns append rather
// than replace.
func Run(ctx context.Context, st store.Store, src source.Reader, opts Options) (*Result, error) {
	if err := opts.normalize(); err != nil {
		return &Result{RunID: opts.RunID, Table: opts.Table, State: StateAborted, Error: err.Error()}, err
	}

	r := &run{st: st, src: src, opts: opts, state: StateIdle, started: time.Now()}

	res, err := r.execute(ctx)
	if err != nil {
		slog.Error("import failed",
			"run_id", opts.RunID,
			"table", opts.Table,
			"state", res.State,
			"rows_read", res.Metrics.RowsRead,
			"error", err,
		)
		return res, err
	}

	slog.Info("import completed",
		"run_id", opts.RunID,
		"table", opts.Table,
		"rows_inserted", res.Metrics.RowsInserted,
		"rows_rejected", res.Metrics.RowsRejected,
		"duration", res.Metrics.TotalDuration,
	)
	return res, nil
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	// Opening: buffer enough rows for type inference.
	r.setState(StateOpening)
	openStart := time.Now()
	sample, sampleRows, err := r.readSample(ctx)
	r.metrics.OpenDuration = time.Since(openStart)
	if err != nil {
		return r.abort(err)
	}

	// Inferring: one pass over the sample, no database work.
	r.setState(StateInferring)
	inferStart := time.Now()
	sc := infer.Infer(r.src.Columns(), sampleRows, r.opts.SampleSize)
	r.metrics.InferDuration = time.Since(inferStart)
	if len(sc) == 0 {
		return r.abort(errors.New("source has no columns"))
	}

	// PreparingSchema: create or verify the target table, exactly once.
	r.setState(StatePreparingSchema)
	schemaStart := time.Now()
	err = r.ensureSchema(ctx, sc)
	r.metrics.SchemaDuration = time.Since(schemaStart)
	if err != nil {
		return r.abort(err)
	}

	// Writing: replay the buffered sample, then stream the rest.
	r.setState(StateWriting)
	writeStart := time.Now()
	err = r.writeAll(ctx, sc, sample)
	r.metrics.WriteDuration = time.Since(writeStart)
	if err != nil {
		res, runErr := r.abort(err)
		res.Schema = sc
		return res, runErr
	}

	r.setState(StateCompleted)
	return r.finish(sc, nil), nil
}

// readSample reads chunks until SampleSize rows are buffered or the source
// is exhausted. The buffered chunks are replayed to the writer later so no
// row is read twice.
func (r *run) readSample(ctx context.Context) ([]*source.RowChunk, []source.Row, error) {
	var (
		chunks []*source.RowChunk
		rows   []source.Row
	)
	for len(rows) < r.opts.SampleSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		chunk, err := r.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, chunk)
		rows = append(rows, chunk.Rows...)
		r.metrics.Chunks++
		r.metrics.RowsRead += int64(len(chunk.Rows))
	}
	return chunks, rows, nil
}

func (r *run) ensureSchema(ctx context.Context, sc infer.Schema) error {
	conn, err := r.st.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return schema.Ensure(ctx, conn, r.st.Dialect(), r.opts.Table, sc)
}

func (r *run) writeAll(ctx context.Context, sc infer.Schema, sample []*source.RowChunk) error {
	r.writer = newBatchWriter(ctx, r.st, sc, r.opts)

	feed := func(chunk *source.RowChunk) error {
		for _, row := range chunk.Rows {
			if err := r.writer.AddRow(row); err != nil {
				return err
			}
		}
		r.emitProgress()
		return nil
	}

	for _, chunk := range sample {
		if err := ctx.Err(); err != nil {
			r.writer.Close()
			return err
		}
		if err := feed(chunk); err != nil {
			r.writer.Close()
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			r.writer.Close()
			return err
		}
		chunk, err := r.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.writer.Close()
			return err
		}
		r.metrics.Chunks++
		r.metrics.RowsRead += int64(len(chunk.Rows))
		if err := feed(chunk); err != nil {
			r.writer.Close()
			return err
		}
	}

	return r.writer.Close()
}

func (r *run) setState(s State) {
	r.state = s
	r.emitProgress()
}

func (r *run) emitProgress() {
	if r.opts.Progress == nil {
		return
	}
	p := Progress{
		RunID:     r.opts.RunID,
		Table:     r.opts.Table,
		State:     r.state,
		Chunk:     r.metrics.Chunks,
		RowsRead:  r.metrics.RowsRead,
		TotalRows: r.src.TotalRows(),
	}
	if r.writer != nil {
		p.RowsInserted = r.writer.Inserted()
		p.RowsRejected = r.writer.Rejected()
	}
	r.opts.Progress(p)
}

func (r *run) abort(err error) (*Result, error) {
	r.setState(StateAborted)
	res := r.finish(nil, err)
	return res, fmt.Errorf("import %s: %w", r.opts.Table, err)
}

func (r *run) finish(sc infer.Schema, err error) *Result {
	if r.writer != nil {
		r.metrics.RowsInserted = r.writer.Inserted()
		r.metrics.RowsRejected = r.writer.Rejected()
	}
	r.metrics.TotalDuration = time.Since(r.started)
	if secs := r.metrics.TotalDuration.Seconds(); secs > 0 {
		r.metrics.RowsPerSecond = float64(r.metrics.RowsInserted) / secs
	}

	res := &Result{
		RunID:   r.opts.RunID,
		Table:   r.opts.Table,
		State:   r.state,
		Schema:  sc,
		Metrics: r.metrics,
	}
	if r.writer != nil {
		res.Rejected = r.writer.RejectedRows()
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

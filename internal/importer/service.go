package importer

// service.go tracks asynchronous import runs. Start returns a run ID
// immediately; progress streams to subscribers over buffered channels, and
// the final Result blocks on the run's Done channel. Finished runs linger
// for a grace period so late result fetches still succeed.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkrogh/sheetpipe/internal/source"
	"github.com/mkrogh/sheetpipe/internal/store"
)

// resultTTL is how long a finished run stays queryable.
const resultTTL = 5 * time.Minute

// Service owns the target store and the set of in-flight runs.
type Service struct {
	store   store.Store
	limiter *Limiter
	timeout time.Duration

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	ID     string
	Table  string
	Cancel context.CancelFunc
	Done   chan struct{}
	Result *Result

	listenerMu sync.Mutex
	progress   Progress
	listeners  []chan Progress
}

// NewService creates a Service writing to st, with at most maxConcurrent
// parallel runs and a per-run timeout.
func NewService(st store.Store, maxConcurrent int, maxWait, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	return &Service{
		store:   st,
		limiter: NewLimiter(maxConcurrent, maxWait),
		timeout: timeout,
		runs:    make(map[string]*activeRun),
	}
}

// Store exposes the underlying target store.
func (s *Service) Store() store.Store { return s.store }

// Start launches an import run in the background and returns its ID. The
// service takes ownership of src and closes it when the run finishes.
//
// Returns ErrTooManyImports when the concurrent run limit is reached and
// no slot frees up within the wait timeout.
func (s *Service) Start(ctx context.Context, src source.Reader, opts Options) (string, error) {
	if err := opts.normalize(); err != nil {
		return "", err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.New().String()
	opts.RunID = runID

	// The run outlives the request; it is bounded by the service timeout,
	// not by the caller's context.
	runCtx, cancel := context.WithTimeout(context.Background(), s.timeout)

	run := &activeRun{
		ID:     runID,
		Table:  opts.Table,
		Cancel: cancel,
		Done:   make(chan struct{}),
		progress: Progress{
			RunID:     runID,
			Table:     opts.Table,
			State:     StateIdle,
			TotalRows: src.TotalRows(),
		},
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	userProgress := opts.Progress
	opts.Progress = func(p Progress) {
		run.publish(p)
		if userProgress != nil {
			userProgress(p)
		}
	}

	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import run",
					"run_id", runID,
					"table", opts.Table,
					"panic", r,
				)
				run.finish(&Result{
					RunID: runID,
					Table: opts.Table,
					State: StateAborted,
					Error: fmt.Sprintf("internal error: %v", r),
				})
				s.cleanup(runID, resultTTL)
			}
		}()

		res, _ := Run(runCtx, s.store, src, opts)
		src.Close()
		run.finish(res)
		s.cleanup(runID, resultTTL)
	}()

	return runID, nil
}

// Subscribe returns a channel receiving progress snapshots for a run. The
// current snapshot is delivered immediately and the channel is closed when
// the run finishes.
func (s *Service) Subscribe(runID string) (<-chan Progress, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 10)

	run.listenerMu.Lock()
	run.listeners = append(run.listeners, ch)
	select {
	case ch <- run.progress:
	default:
	}
	run.listenerMu.Unlock()

	return ch, nil
}

// Cancel requests cooperative cancellation of a run. The run stops at the
// next chunk boundary; already committed batches stay committed.
func (s *Service) Cancel(runID string) error {
	run, err := s.lookup(runID)
	if err != nil {
		return err
	}
	run.Cancel()
	return nil
}

// Progress returns the latest snapshot without blocking.
func (s *Service) Progress(runID string) (Progress, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return Progress{}, err
	}
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()
	return run.progress, nil
}

// Result blocks until the run finishes, then returns its Result.
func (s *Service) Result(ctx context.Context, runID string) (*Result, error) {
	run, err := s.lookup(runID)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.Done:
		return run.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActiveCount returns the number of runs currently executing.
func (s *Service) ActiveCount() int { return s.limiter.ActiveCount() }

// Shutdown waits for in-flight runs to finish, up to the context deadline.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) lookup(runID string) (*activeRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

// cleanup removes a finished run from tracking after a delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}

// publish fans the snapshot out to listeners. Slow listeners miss updates
// rather than stall the run.
func (run *activeRun) publish(p Progress) {
	run.listenerMu.Lock()
	defer run.listenerMu.Unlock()

	run.progress = p
	for _, ch := range run.listeners {
		select {
		case ch <- p:
		default:
		}
	}
}

// finish stores the result, pushes a terminal snapshot, and closes all
// listener channels.
func (run *activeRun) finish(res *Result) {
	run.Result = res

	run.listenerMu.Lock()
	run.progress = Progress{
		RunID:        res.RunID,
		Table:        res.Table,
		State:        res.State,
		Chunk:        res.Metrics.Chunks,
		RowsRead:     res.Metrics.RowsRead,
		RowsInserted: res.Metrics.RowsInserted,
		RowsRejected: res.Metrics.RowsRejected,
		TotalRows:    run.progress.TotalRows,
		Error:        res.Error,
	}
	for _, ch := range run.listeners {
		select {
		case ch <- run.progress:
		default:
		}
	}
	for _, ch := range run.listeners {
		close(ch)
	}
	run.listeners = nil
	run.listenerMu.Unlock()

	close(run.Done)
}

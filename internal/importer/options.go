package importer

import (
	"errors"
	"time"
)

// Policy selects how the writer reacts to bad rows.
type Policy string

const (
	// PolicyFailFast aborts the whole run on the first write or coercion
	// failure. Rows written before the failure stay committed.
	PolicyFailFast Policy = "fail_fast"

	// PolicyBestEffort skips failing rows, records them as rejected, and
	// keeps going.
	PolicyBestEffort Policy = "best_effort"
)

// ParsePolicy maps a user-supplied string to a Policy, defaulting to
// fail-fast for the empty string.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", string(PolicyFailFast):
		return PolicyFailFast, nil
	case string(PolicyBestEffort):
		return PolicyBestEffort, nil
	}
	return "", errors.New("unknown policy: " + s)
}

// Defaults for Options fields left at their zero value.
const (
	DefaultChunkSize  = 10000
	DefaultBatchSize  = 1000
	DefaultSampleSize = 1000
)

// Options configures a single import run.
type Options struct {
	// Table is the target table name. Required.
	Table string

	// RunID identifies the run in progress events and logs. The service
	// fills this in; direct callers may leave it empty.
	RunID string

	// ChunkSize caps rows per chunk read from the source.
	ChunkSize int

	// BatchSize caps rows per INSERT statement.
	BatchSize int

	// Workers is the number of concurrent batch writers. Each worker holds
	// one pooled connection for the duration of the run.
	Workers int

	// Policy selects fail-fast or best-effort handling of bad rows.
	Policy Policy

	// SampleSize caps the rows buffered for type inference.
	SampleSize int

	// Progress, when non-nil, receives a snapshot after every state change
	// and every chunk. It must not block.
	Progress func(Progress)
}

func (o *Options) normalize() error {
	if o.Table == "" {
		return errors.New("target table name is required")
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.Policy == "" {
		o.Policy = PolicyFailFast
	}
	return nil
}

// DefaultRunTimeout bounds a whole import run when started through the
// Service.
var DefaultRunTimeout = 30 * time.Minute

package importer

import "time"

// State is the lifecycle phase of an import run. Transitions are strictly
// forward; Aborted is terminal and absorbing.
type State string

const (
	StateIdle            State = "idle"
	StateOpening         State = "opening"
	StateInferring       State = "inferring"
	StatePreparingSchema State = "preparing_schema"
	StateWriting         State = "writing"
	StateCompleted       State = "completed"
	StateAborted         State = "aborted"
)

// Metrics is the accounting for one run. Counters are exact; durations are
// wall-clock per stage.
type Metrics struct {
	RowsRead     int64 `json:"rows_read"`
	RowsInserted int64 `json:"rows_inserted"`
	RowsRejected int64 `json:"rows_rejected"`
	Chunks       int   `json:"chunks"`

	OpenDuration   time.Duration `json:"open_duration"`
	InferDuration  time.Duration `json:"infer_duration"`
	SchemaDuration time.Duration `json:"schema_duration"`
	WriteDuration  time.Duration `json:"write_duration"`
	TotalDuration  time.Duration `json:"total_duration"`

	RowsPerSecond float64 `json:"rows_per_second"`
}

// Progress is a point-in-time snapshot of a running import, published to
// listeners after each state change and each chunk.
type Progress struct {
	RunID        string `json:"run_id"`
	Table        string `json:"table"`
	State        State  `json:"state"`
	Chunk        int    `json:"chunk"`
	RowsRead     int64  `json:"rows_read"`
	RowsInserted int64  `json:"rows_inserted"`
	RowsRejected int64  `json:"rows_rejected"`

	// TotalRows is -1 when the source cannot report its size up front.
	TotalRows int `json:"total_rows"`

	Error string `json:"error,omitempty"`
}

package importer

import "errors"

// ErrWriteFailed wraps any unrecoverable failure while writing rows to the
// target table. Under the fail-fast policy every write error becomes one.
var ErrWriteFailed = errors.New("write to target table failed")

// ErrRunNotFound is returned for operations on an unknown or expired run ID.
var ErrRunNotFound = errors.New("import run not found")

// Rejection reasons recorded on RejectedRow.
const (
	ReasonCoercionFailed      = "coercion_failed"
	ReasonConstraintViolation = "constraint_violation"
)

// RejectedRow records one source row that was skipped under the best-effort
// policy, with enough context to trace it back to the sheet.
type RejectedRow struct {
	RowNum int    `json:"row_num"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`

	// Values holds the row's rendered cell values, in column order, when
	// the rejection is not attributable to a single column.
	Values []string `json:"values,omitempty"`
}

package source

import (
	"context"
	"errors"
)

// ErrSourceUnreadable indicates the source document could not be opened or
// parsed (missing file, corrupt archive, unsupported format).
var ErrSourceUnreadable = errors.New("source unreadable")

// ErrSheetNotFound indicates the requested sheet does not exist in the
// workbook.
var ErrSheetNotFound = errors.New("sheet not found")

// Reader yields the rows of one sheet as a lazy, finite, forward-only
// sequence of chunks. A Reader is single-use: two independent passes over
// the same source must open it twice.
//
// Next returns io.EOF after the final chunk. Rows that are entirely empty
// are dropped before chunking.
type Reader interface {
	// Columns returns the normalized, deduplicated column names.
	Columns() []string

	// Next returns the next chunk, or io.EOF when the source is exhausted.
	Next(ctx context.Context) (*RowChunk, error)

	// TotalRows returns the number of data rows if known up front, or -1.
	TotalRows() int

	Close() error
}

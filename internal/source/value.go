// Package source provides read access to spreadsheet sources (XLSX and CSV).
// It exposes a chunked, forward-only reader so that memory use stays bounded
// regardless of file size, and normalizes cell values into a small tagged
// variant type consumed by the rest of the pipeline.
package source

import (
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the variants of a cell Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindString
	KindNumber
	KindBool
	KindTime
)

// Value is a single cell as it came off the source: a string for parsed
// text formats, or a native number/bool/time for generated data. Exactly
// one variant field is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
}

// String wraps a raw cell string. Whitespace-only cells become empty values.
func String(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Value{Kind: KindEmpty}
	}
	return Value{Kind: KindString, Str: s}
}

// Number wraps a native numeric value.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// Bool wraps a native boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Time wraps a native time value.
func Time(t time.Time) Value { return Value{Kind: KindTime, Time: t} }

// IsEmpty reports whether the cell holds no value.
func (v Value) IsEmpty() bool { return v.Kind == KindEmpty }

// Text returns the textual form of the value, used for reject reporting
// and for text-typed target columns.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return strings.TrimSpace(v.Str)
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTime:
		return v.Time.Format(time.RFC3339)
	default:
		return ""
	}
}

// Row is one source row with its original 1-based position, kept so that
// rejected rows can be traced back to the sheet.
type Row struct {
	Num   int
	Cells []Value
}

// IsEmpty reports whether every cell in the row is empty.
func (r Row) IsEmpty() bool {
	for _, c := range r.Cells {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// RowChunk is a bounded window of source rows, produced by a Reader and
// consumed exactly once. Columns is shared with the Reader and must not be
// mutated.
type RowChunk struct {
	Index   int
	Columns []string
	Rows    []Row
}

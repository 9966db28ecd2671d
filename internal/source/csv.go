package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// NewCSVReader opens a chunked reader over a CSV stream. The stream is
// wrapped for BOM removal and UTF-8 sanitization; size (0 if unknown) feeds
// byte-based progress. The header is taken from the first non-empty record.
func NewCSVReader(r io.Reader, name string, size int64, chunkSize int) (Reader, error) {
	counting := wrapStream(r, size)

	cr := csv.NewReader(counting)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	cs := &csvReader{
		name:      name,
		counting:  counting,
		csv:       cr,
		chunkSize: chunkSize,
	}
	if err := cs.readHeader(); err != nil {
		return nil, err
	}
	return cs, nil
}

// OpenCSV opens a CSV file from disk as a chunked reader. The returned
// reader owns the file handle.
func OpenCSV(path string, chunkSize int) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSourceUnreadable, path, err)
	}

	info, _ := f.Stat()
	var size int64
	if info != nil {
		size = info.Size()
	}

	r, err := NewCSVReader(f, filepath.Base(path), size, chunkSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &closerReader{Reader: r, c: f}, nil
}

type csvReader struct {
	name      string
	counting  *countingReader
	csv       *csv.Reader
	columns   []string
	chunkSize int

	rowNum int
	chunks int
	done   bool
}

func (r *csvReader) readHeader() error {
	for {
		rec, err := r.csv.Read()
		if err == io.EOF {
			return fmt.Errorf("%w: %s has no header row", ErrSourceUnreadable, r.name)
		}
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", ErrSourceUnreadable, r.name, err)
		}
		r.rowNum++
		if emptyStrings(rec) {
			continue
		}
		r.columns = NormalizeHeader(rec)
		return nil
	}
}

func (r *csvReader) Columns() []string { return r.columns }

func (r *csvReader) TotalRows() int { return -1 }

func (r *csvReader) Next(ctx context.Context) (*RowChunk, error) {
	if r.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunk := &RowChunk{
		Index:   r.chunks,
		Columns: r.columns,
		Rows:    make([]Row, 0, r.chunkSize),
	}

	for len(chunk.Rows) < r.chunkSize {
		rec, err := r.csv.Read()
		if err == io.EOF {
			r.done = true
			break
		}
		if err != nil {
			// Malformed records are a row-level problem, not a fatal one;
			// csv.ParseError still lets the reader continue.
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				r.rowNum++
				continue
			}
			return nil, fmt.Errorf("%w: parse %s: %v", ErrSourceUnreadable, r.name, err)
		}
		r.rowNum++

		cells := make([]string, len(rec))
		for i, c := range rec {
			cells[i] = CleanCell(c)
		}
		row := makeRow(r.rowNum, cells, len(r.columns))
		if row.IsEmpty() {
			continue
		}
		chunk.Rows = append(chunk.Rows, row)
	}

	if len(chunk.Rows) == 0 {
		return nil, io.EOF
	}
	r.chunks++
	return chunk, nil
}

func (r *csvReader) Close() error { return nil }

// closerReader couples a Reader with the file handle backing it.
type closerReader struct {
	Reader
	c io.Closer
}

func (cr *closerReader) Close() error {
	err := cr.Reader.Close()
	if cerr := cr.c.Close(); err == nil {
		err = cerr
	}
	return err
}

// IsCSV reports whether a file name looks like a CSV source rather than a
// workbook.
func IsCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

package source

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Document is an opened XLSX workbook. It owns the underlying file handle;
// Close releases it along with any readers derived from it.
type Document struct {
	name string
	file *excelize.File
}

// OpenDocument opens a workbook from disk.
func OpenDocument(path string) (*Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSourceUnreadable, path, err)
	}
	return &Document{name: path, file: f}, nil
}

// OpenDocumentReader opens a workbook from an in-memory stream, typically
// an uploaded file. The name is used for reporting only.
func OpenDocumentReader(r io.Reader, name string) (*Document, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSourceUnreadable, name, err)
	}
	return &Document{name: name, file: f}, nil
}

// Name returns the document's path or upload name.
func (d *Document) Name() string { return d.name }

// Sheets returns the workbook's sheet names in workbook order.
func (d *Document) Sheets() []string { return d.file.GetSheetList() }

// Close releases the workbook.
func (d *Document) Close() error { return d.file.Close() }

// Analysis summarizes a sheet before import: its normalized columns, total
// data row count, and a bounded sample of leading rows.
type Analysis struct {
	Sheet     string
	Columns   []string
	TotalRows int
	Sample    []Row
}

// Analyze scans a sheet once, counting data rows and retaining the first
// sampleRows non-empty rows. The scan shares no cursor with ChunkReader.
func (d *Document) Analyze(sheet string, sampleRows int) (*Analysis, error) {
	iter, err := d.file.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	defer iter.Close()

	a := &Analysis{Sheet: sheet}
	rowNum := 0
	for iter.Next() {
		cells, err := iter.Columns()
		if err != nil {
			return nil, fmt.Errorf("%w: read row in sheet %s: %v", ErrSourceUnreadable, sheet, err)
		}
		rowNum++

		if a.Columns == nil {
			if emptyStrings(cells) {
				continue
			}
			a.Columns = NormalizeHeader(cells)
			continue
		}

		row := makeRow(rowNum, cells, len(a.Columns))
		if row.IsEmpty() {
			continue
		}
		a.TotalRows++
		if len(a.Sample) < sampleRows {
			a.Sample = append(a.Sample, row)
		}
	}

	if a.Columns == nil {
		return nil, fmt.Errorf("%w: sheet %s has no header row", ErrSourceUnreadable, sheet)
	}
	return a, nil
}

// ChunkReader opens a forward-only chunked reader over one sheet. The
// header is consumed immediately; Next yields only data rows.
func (d *Document) ChunkReader(sheet string, chunkSize int) (Reader, error) {
	found := false
	for _, name := range d.file.GetSheetList() {
		if name == sheet {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}

	iter, err := d.file.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}

	r := &sheetReader{
		sheet:     sheet,
		iter:      iter,
		chunkSize: chunkSize,
	}
	if err := r.readHeader(); err != nil {
		iter.Close()
		return nil, err
	}
	return r, nil
}

// sheetReader streams one sheet through the excelize row iterator so only
// the current chunk is resident in memory.
type sheetReader struct {
	sheet     string
	iter      *excelize.Rows
	columns   []string
	chunkSize int

	rowNum int // 1-based position of the last row pulled from the iterator
	chunks int
	done   bool
}

func (r *sheetReader) readHeader() error {
	for r.iter.Next() {
		cells, err := r.iter.Columns()
		if err != nil {
			return fmt.Errorf("%w: read header in sheet %s: %v", ErrSourceUnreadable, r.sheet, err)
		}
		r.rowNum++
		if emptyStrings(cells) {
			continue
		}
		r.columns = NormalizeHeader(cells)
		return nil
	}
	return fmt.Errorf("%w: sheet %s has no header row", ErrSourceUnreadable, r.sheet)
}

func (r *sheetReader) Columns() []string { return r.columns }

func (r *sheetReader) TotalRows() int { return -1 }

func (r *sheetReader) Next(ctx context.Context) (*RowChunk, error) {
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
		if !r.iter.Next() {
			r.done = true
			break
		}
		cells, err := r.iter.Columns()
		if err != nil {
			return nil, fmt.Errorf("%w: read row in sheet %s: %v", ErrSourceUnreadable, r.sheet, err)
		}
		r.rowNum++

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

func (r *sheetReader) Close() error { return r.iter.Close() }

// makeRow converts raw cells to a Row padded or truncated to width cells,
// so every row lines up with the header.
func makeRow(num int, cells []string, width int) Row {
	row := Row{Num: num, Cells: make([]Value, width)}
	for i := 0; i < width; i++ {
		if i < len(cells) {
			row.Cells[i] = String(cells[i])
		} else {
			row.Cells[i] = Value{Kind: KindEmpty}
		}
	}
	return row
}

func emptyStrings(cells []string) bool {
	for _, c := range cells {
		if CleanCell(c) != "" {
			return false
		}
	}
	return true
}

package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func csvReaderOf(t *testing.T, data string, chunkSize int) Reader {
	t.Helper()
	rd, err := NewCSVReader(strings.NewReader(data), "test.csv", int64(len(data)), chunkSize)
	if err != nil {
		t.Fatalf("NewCSVReader: %v", err)
	}
	return rd
}

func drain(t *testing.T, rd Reader) []*RowChunk {
	t.Helper()
	var chunks []*RowChunk
	for {
		chunk, err := rd.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, chunk)
	}
}

func TestCSVChunking(t *testing.T) {
	data := "id,name\n1,a\n2,b\n3,c\n4,d\n5,e\n"
	rd := csvReaderOf(t, data, 2)

	if got := rd.Columns(); !reflect.DeepEqual(got, []string{"id", "name"}) {
		t.Fatalf("Columns() = %v", got)
	}

	chunks := drain(t, rd)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, want := range []int{2, 2, 1} {
		if len(chunks[i].Rows) != want {
			t.Errorf("chunk %d has %d rows, want %d", i, len(chunks[i].Rows), want)
		}
		if chunks[i].Index != i {
			t.Errorf("chunk %d has index %d", i, chunks[i].Index)
		}
	}

	// Row numbers are file positions; the header is row 1.
	if got := chunks[0].Rows[0].Num; got != 2 {
		t.Errorf("first data row num = %d, want 2", got)
	}
	if got := chunks[2].Rows[0].Num; got != 6 {
		t.Errorf("last data row num = %d, want 6", got)
	}
}

func TestCSVSkipsEmptyRows(t *testing.T) {
	data := "id,name\n1,a\n,\n\n2,b\n"
	rd := csvReaderOf(t, data, 10)

	chunks := drain(t, rd)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	rows := chunks[0].Rows
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	// The skipped rows still advance the row counter.
	if rows[1].Num != 4 {
		t.Errorf("second row num = %d, want 4", rows[1].Num)
	}
}

func TestCSVHeaderAfterBlankLines(t *testing.T) {
	data := ",\nid,name\n1,a\n"
	rd := csvReaderOf(t, data, 10)

	if got := rd.Columns(); !reflect.DeepEqual(got, []string{"id", "name"}) {
		t.Errorf("Columns() = %v", got)
	}
	chunks := drain(t, rd)
	if len(chunks) != 1 || len(chunks[0].Rows) != 1 {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
	if chunks[0].Rows[0].Num != 3 {
		t.Errorf("data row num = %d, want 3", chunks[0].Rows[0].Num)
	}
}

func TestCSVBOM(t *testing.T) {
	data := "\xEF\xBB\xBFname,qty\nwidget,5\n"
	rd := csvReaderOf(t, data, 10)

	if got := rd.Columns(); !reflect.DeepEqual(got, []string{"name", "qty"}) {
		t.Errorf("Columns() = %v", got)
	}
}

func TestCSVNoHeader(t *testing.T) {
	_, err := NewCSVReader(strings.NewReader(""), "empty.csv", 0, 10)
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Errorf("err = %v, want ErrSourceUnreadable", err)
	}
}

func TestCSVCellCleaning(t *testing.T) {
	data := "code,qty\n=\"0012\",  5  \n"
	rd := csvReaderOf(t, data, 10)

	chunks := drain(t, rd)
	row := chunks[0].Rows[0]
	if got := row.Cells[0].Text(); got != "0012" {
		t.Errorf("cell 0 = %q, want %q", got, "0012")
	}
	if got := row.Cells[1].Text(); got != "5" {
		t.Errorf("cell 1 = %q, want %q", got, "5")
	}
}

func TestCSVRaggedRowsPadded(t *testing.T) {
	data := "a,b,c\n1,2\n1,2,3,4\n"
	rd := csvReaderOf(t, data, 10)

	chunks := drain(t, rd)
	rows := chunks[0].Rows
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for i, row := range rows {
		if len(row.Cells) != 3 {
			t.Errorf("row %d has %d cells, want 3", i, len(row.Cells))
		}
	}
	if !rows[0].Cells[2].IsEmpty() {
		t.Error("short row's missing cell should be empty")
	}
}

func TestOpenCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte("id,name\n1,a\n2,b\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	rd, err := OpenCSV(path, 10)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	chunks := drain(t, rd)
	if len(chunks) != 1 || len(chunks[0].Rows) != 2 {
		t.Errorf("unexpected chunks: %v", chunks)
	}
	if err := rd.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestOpenCSVMissingFile(t *testing.T) {
	_, err := OpenCSV(filepath.Join(t.TempDir(), "missing.csv"), 10)
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Errorf("err = %v, want ErrSourceUnreadable", err)
	}
}

func TestIsCSV(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"data.csv", true},
		{"DATA.CSV", true},
		{"data.xlsx", false},
		{"data.csv.xlsx", false},
		{"data", false},
	}
	for _, tt := range tests {
		if got := IsCSV(tt.name); got != tt.want {
			t.Errorf("IsCSV(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

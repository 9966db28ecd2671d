package source

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			t.Fatal(err)
		}
	}
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "test.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenDocumentMissingFile(t *testing.T) {
	_, err := OpenDocument(filepath.Join(t.TempDir(), "missing.xlsx"))
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Errorf("err = %v, want ErrSourceUnreadable", err)
	}
}

func TestDocumentSheets(t *testing.T) {
	path := writeWorkbook(t, "Orders", [][]any{{"id"}, {1}})

	doc, err := OpenDocument(path)
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	defer doc.Close()

	if got := doc.Sheets(); !reflect.DeepEqual(got, []string{"Orders"}) {
		t.Errorf("Sheets() = %v", got)
	}
}

func TestAnalyze(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]any{
		{"ID", "First Name", "Amount"},
		{1, "alice", "10.50"},
		{2, "bob", "20"},
		{}, // empty row, not counted
		{3, "carol", "30"},
	})

	doc, err := OpenDocument(path)
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	defer doc.Close()

	a, err := doc.Analyze("Sheet1", 2)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !reflect.DeepEqual(a.Columns, []string{"id", "first_name", "amount"}) {
		t.Errorf("Columns = %v", a.Columns)
	}
	if a.TotalRows != 3 {
		t.Errorf("TotalRows = %d, want 3", a.TotalRows)
	}
	if len(a.Sample) != 2 {
		t.Errorf("sample has %d rows, want 2", len(a.Sample))
	}
}

func TestAnalyzeUnknownSheet(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]any{{"id"}, {1}})

	doc, err := OpenDocument(path)
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	defer doc.Close()

	if _, err := doc.Analyze("nope", 10); !errors.Is(err, ErrSheetNotFound) {
		t.Errorf("err = %v, want ErrSheetNotFound", err)
	}
}

func TestChunkReader(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]any{
		{"id", "name"},
		{1, "a"},
		{2, "b"},
		{3, "c"},
	})

	doc, err := OpenDocument(path)
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	defer doc.Close()

	rd, err := doc.ChunkReader("Sheet1", 2)
	if err != nil {
		t.Fatalf("ChunkReader: %v", err)
	}
	defer rd.Close()

	if got := rd.Columns(); !reflect.DeepEqual(got, []string{"id", "name"}) {
		t.Fatalf("Columns() = %v", got)
	}

	chunks := drain(t, rd)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0].Rows) != 2 || len(chunks[1].Rows) != 1 {
		t.Errorf("chunk sizes %d, %d", len(chunks[0].Rows), len(chunks[1].Rows))
	}
	if got := chunks[0].Rows[0].Num; got != 2 {
		t.Errorf("first data row num = %d, want 2", got)
	}
	if got := chunks[0].Rows[0].Cells[1].Text(); got != "a" {
		t.Errorf("cell = %q, want %q", got, "a")
	}
}

func TestChunkReaderUnknownSheet(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]any{{"id"}, {1}})

	doc, err := OpenDocument(path)
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	defer doc.Close()

	if _, err := doc.ChunkReader("nope", 10); !errors.Is(err, ErrSheetNotFound) {
		t.Errorf("err = %v, want ErrSheetNotFound", err)
	}
}

func TestOpenDispatch(t *testing.T) {
	t.Run("workbook defaults to first sheet", func(t *testing.T) {
		path := writeWorkbook(t, "Data", [][]any{{"id"}, {1}, {2}})

		rd, err := Open(path, "", 10)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer rd.Close()

		chunks := drain(t, rd)
		if len(chunks) != 1 || len(chunks[0].Rows) != 2 {
			t.Errorf("unexpected chunks: %v", chunks)
		}
	})

	t.Run("unknown sheet", func(t *testing.T) {
		path := writeWorkbook(t, "Data", [][]any{{"id"}, {1}})

		if _, err := Open(path, "nope", 10); !errors.Is(err, ErrSheetNotFound) {
			t.Errorf("err = %v, want ErrSheetNotFound", err)
		}
	})
}

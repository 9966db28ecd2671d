package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkrogh/sheetpipe/internal/importer"
	"github.com/mkrogh/sheetpipe/internal/infer"
	"github.com/mkrogh/sheetpipe/internal/logging"
	"github.com/mkrogh/sheetpipe/internal/mockdata"
	"github.com/mkrogh/sheetpipe/internal/source"
)

// analyzeResponse describes a file before import: available sheets, the
// analyzed sheet's columns with inferred types, and a sample of rows.
type analyzeResponse struct {
	FileName  string           `json:"file_name"`
	Sheets    []string         `json:"sheets,omitempty"`
	Sheet     string           `json:"sheet,omitempty"`
	Columns   []analyzedColumn `json:"columns"`
	TotalRows int              `json:"total_rows"`
	Sample    [][]string       `json:"sample"`
}

type analyzedColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// handleAnalyze inspects an uploaded file without writing anything: it
// reports sheets, normalized column names, inferred types, and sample rows.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	upload, err := s.spoolUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer upload.remove()

	sampleRows := parseIntForm(r, "sample_rows", 20)
	sheet := r.FormValue("sheet")

	resp, err := s.analyze(upload, sheet, sampleRows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, resp)
}

func (s *Server) analyze(upload *spooledUpload, sheet string, sampleRows int) (*analyzeResponse, error) {
	resp := &analyzeResponse{FileName: upload.name}

	var (
		columns []string
		rows    []source.Row
	)

	if source.IsCSV(upload.name) {
		rd, err := source.OpenCSV(upload.path, s.cfg.Import.ChunkSize)
		if err != nil {
			return nil, err
		}
		defer rd.Close()

		columns = rd.Columns()
		rows, err = readSampleRows(rd, sampleRows)
		if err != nil {
			return nil, err
		}
		resp.TotalRows = -1
	} else {
		doc, err := source.OpenDocument(upload.path)
		if err != nil {
			return nil, err
		}
		defer doc.Close()

		resp.Sheets = doc.Sheets()
		if sheet == "" && len(resp.Sheets) > 0 {
			sheet = resp.Sheets[0]
		}
		resp.Sheet = sheet

		a, err := doc.Analyze(sheet, sampleRows)
		if err != nil {
			return nil, err
		}
		columns = a.Columns
		rows = a.Sample
		resp.TotalRows = a.TotalRows
	}

	sc := infer.Infer(columns, rows, s.cfg.Import.SampleSize)
	resp.Columns = make([]analyzedColumn, len(sc))
	for i, c := range sc {
		resp.Columns[i] = analyzedColumn{Name: c.Name, Type: c.Type.String()}
	}

	resp.Sample = make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.Text()
		}
		resp.Sample[i] = cells
	}
	return resp, nil
}

// readSampleRows pulls chunks until max rows are collected or the source
// ends.
func readSampleRows(rd source.Reader, max int) ([]source.Row, error) {
	var rows []source.Row
	for len(rows) < max {
		chunk, err := rd.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, row := range chunk.Rows {
			if len(rows) >= max {
				break
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// handleStartImport accepts a multipart upload and launches an import run.
// Responds immediately with the run ID.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	upload, err := s.spoolUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	table := r.FormValue("table")
	if table == "" {
		upload.remove()
		writeError(w, http.StatusBadRequest, "missing table name")
		return
	}

	policy, err := importer.ParsePolicy(r.FormValue("policy"))
	if err != nil {
		upload.remove()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rd, err := source.Open(upload.path, r.FormValue("sheet"), s.cfg.Import.ChunkSize)
	if err != nil {
		upload.remove()
		s.respondError(w, r, err)
		return
	}

	opts := importer.Options{
		Table:      table,
		ChunkSize:  s.cfg.Import.ChunkSize,
		BatchSize:  s.cfg.Import.BatchSize,
		Workers:    parseIntForm(r, "workers", s.cfg.Import.Workers),
		Policy:     policy,
		SampleSize: s.cfg.Import.SampleSize,
	}

	// The run owns the spooled file from here; removal happens when the
	// service closes the reader.
	runID, err := s.service.Start(r.Context(), &ownedReader{Reader: rd, upload: upload}, opts)
	if err != nil {
		rd.Close()
		upload.remove()
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import started",
		"run_id", runID,
		"table", table,
		"file", upload.name,
	)

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"run_id": runID})
}

// handleImportStatus returns the latest progress snapshot without blocking.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progress, err := s.service.Progress(runID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, progress)
}

// handleImportProgress streams progress snapshots via Server-Sent Events.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progressCh, err := s.service.Subscribe(runID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	eventID := 0
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			eventID++
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", eventID, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult blocks until the run finishes and returns its Result.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	result, err := s.service.Result(r.Context(), runID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, result)
}

// handleCancelImport requests cooperative cancellation of a run.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	if err := s.service.Cancel(runID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelling"})
}

// handleMockTemplates lists the generatable sample datasets.
func (s *Server) handleMockTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, mockdata.Templates())
}

type mockRequest struct {
	Template string `json:"template"`
	Table    string `json:"table"`
	Rows     int    `json:"rows"`
	Policy   string `json:"policy,omitempty"`
	Seed     uint64 `json:"seed,omitempty"`
}

// handleGenerateMock generates a sample dataset and imports it through the
// regular pipeline.
func (s *Server) handleGenerateMock(w http.ResponseWriter, r *http.Request) {
	var req mockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Table == "" {
		writeError(w, http.StatusBadRequest, "missing table name")
		return
	}

	policy, err := importer.ParsePolicy(req.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rd, err := mockdata.Generate(req.Template, req.Rows, s.cfg.Import.ChunkSize, req.Seed)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := importer.Options{
		Table:      req.Table,
		ChunkSize:  s.cfg.Import.ChunkSize,
		BatchSize:  s.cfg.Import.BatchSize,
		Workers:    s.cfg.Import.Workers,
		Policy:     policy,
		SampleSize: s.cfg.Import.SampleSize,
	}

	runID, err := s.service.Start(r.Context(), rd, opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"run_id": runID})
}

// spooledUpload is an uploaded file copied to a private temp file, so the
// import can keep reading after the request body is gone.
type spooledUpload struct {
	name string
	path string
	size int64
}

func (u *spooledUpload) remove() {
	if u.path != "" {
		os.Remove(u.path)
	}
}

// spoolUpload parses the multipart form and copies the "file" part to a
// temp file.
func (s *Server) spoolUpload(w http.ResponseWriter, r *http.Request) (*spooledUpload, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, errors.New("file too large or invalid form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("no file provided")
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "sheetpipe-*"+suffix(header.Filename))
	if err != nil {
		return nil, fmt.Errorf("spool upload: %w", err)
	}

	size, err := io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("spool upload: %w", err)
	}

	return &spooledUpload{name: header.Filename, path: tmp.Name(), size: size}, nil
}

// suffix keeps the original extension on the temp file so Open can
// dispatch on it.
func suffix(name string) string {
	if source.IsCSV(name) {
		return ".csv"
	}
	return ".xlsx"
}

// ownedReader couples a reader with its spooled temp file; Close removes
// the file.
type ownedReader struct {
	source.Reader
	upload *spooledUpload
}

func (o *ownedReader) Close() error {
	err := o.Reader.Close()
	o.upload.remove()
	return err
}

func parseIntForm(r *http.Request, key string, fallback int) int {
	v := r.FormValue(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

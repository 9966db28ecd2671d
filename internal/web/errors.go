package web

// errors.go maps domain errors to HTTP status codes so clients can tell a
// bad upload (4xx) from an overloaded or broken server (5xx).

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mkrogh/sheetpipe/internal/importer"
	"github.com/mkrogh/sheetpipe/internal/schema"
	"github.com/mkrogh/sheetpipe/internal/source"
	"github.com/mkrogh/sheetpipe/internal/store"
)

// respondError logs the technical error with the request ID and returns a
// JSON body with the mapped status code.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var conflict *schema.ConflictError

	switch {
	case errors.Is(err, source.ErrSourceUnreadable):
		return http.StatusBadRequest
	case errors.Is(err, source.ErrSheetNotFound):
		return http.StatusNotFound
	case errors.Is(err, importer.ErrRunNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.Is(err, importer.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.Is(err, store.ErrPoolTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

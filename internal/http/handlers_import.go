package http

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"optreturns/internal/core"
	"optreturns/internal/log"
	"optreturns/internal/services"
	"optreturns/internal/tradebook"
)

// maxUploadSize caps tradebook uploads.
const maxUploadSize = 10 << 20

// uploadSource labels raw-body imports.
const uploadSource = "upload"

// importer is implemented by writers that record where a batch came from.
type importer interface {
	ImportTradeRecords(ctx context.Context, source string, records []core.TradeRecord) (string, error)
}

type importResponse struct {
	ImportID string `json:"import_id"`
	Rows     int    `json:"rows"`
	Source   string `json:"source"`
}

// handleImport accepts a tradebook CSV as a multipart "file" field or as
// the raw request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if s.writer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "imports are not supported by this backend"})
		return
	}

	logger := log.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	body, source, err := uploadedCSV(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload too large"})
			return
		}
		logger.WarnContext(r.Context(), "Invalid import request", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	defer body.Close()

	records, err := tradebook.Decode(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload too large"})
			return
		}
		logger.WarnContext(r.Context(), "Tradebook decode failed", "error", err, log.FieldSource, source)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	if len(records) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": services.ErrEmptyImport.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
	defer cancel()

	var ref string
	if imp, ok := s.writer.(importer); ok {
		ref, err = imp.ImportTradeRecords(ctx, source, records)
	} else {
		ref, err = s.writer.AppendTradeRecords(ctx, records)
	}
	switch {
	case errors.Is(err, services.ErrEmptyImport), errors.Is(err, core.ErrEmptySymbol):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	case err != nil:
		fields := log.NewFields().WithOperation(log.OpImport).WithError(err)
		fields[log.FieldSource], fields[log.FieldRows] = source, len(records)
		logger.ErrorContext(r.Context(), "Trade record import failed", fields.ToSlice()...)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store trade records"})
		return
	}

	s.invalidate()
	logger.InfoContext(r.Context(), "Trade records imported",
		log.NewFields().WithOperation(log.OpImport).WithImport(ref, source, len(records)).ToSlice()...)

	// Browser form posts go back to the dashboard.
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, RouteIndex, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusCreated, importResponse{ImportID: ref, Rows: len(records), Source: source})
}

// uploadedCSV returns the CSV stream and its source label.
func uploadedCSV(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, uploadSource + "-" + time.Now().UTC().Format("20060102T150405Z"), nil
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", errors.New(`missing "file" form field`)
	}
	source := sanitizeSource(header.Filename)
	if source == "" {
		source = uploadSource
	}
	return file, source, nil
}

package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/logging"
)

var errNoFile = errors.New("no file provided")

// multipartOverhead is allowed on top of the file limit for form fields
// and part headers.
const multipartOverhead = 1 << 20

// StartImportResponse is returned by POST /api/imports.
type StartImportResponse struct {
	ImportID    string             `json:"import_id"`
	ProgressURL string             `json:"progress_url"`
	Result      *ImportStateResult `json:"result,omitempty"`
}

// ImportState is returned by GET /api/imports/{importID}.
type ImportState struct {
	Progress core.ImportProgress `json:"progress"`
	Result   *ImportStateResult  `json:"result,omitempty"`
}

// ImportStateResult is a finished import with the errors a UI displays.
type ImportStateResult struct {
	*core.ImportResult
	ErrorPreview []core.ImportError `json:"error_preview"`
}

func stateResult(r *core.ImportResult) *ImportStateResult {
	return &ImportStateResult{ImportResult: r, ErrorPreview: r.ErrorPreview()}
}

// handleStartImport accepts a multipart upload with a "file" part and an
// optional "parent_sku" field, and starts the import in the background.
// With ?wait=true the response carries the final result.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, core.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	text, err := core.ReadImportFile(file, maxSize)
	if err != nil {
		respondError(w, r, err, errorStatus(err))
		return
	}

	req := core.ImportRequest{
		FileName:  header.Filename,
		Data:      []byte(text),
		ParentSKU: strings.TrimSpace(r.FormValue("parent_sku")),
	}

	importID, err := s.service.StartImport(r.Context(), req)
	if err != nil {
		respondError(w, r, err, errorStatus(err))
		return
	}

	logging.WithFields(r.Context(), "import_id", importID).Info("import accepted",
		"file", header.Filename,
		"bytes", len(text),
		"parent_sku", req.ParentSKU,
	)

	resp := StartImportResponse{
		ImportID:    importID,
		ProgressURL: "/api/imports/" + importID + "/progress",
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		result, err := s.service.WaitResult(r.Context(), importID)
		if err != nil {
			respondError(w, r, err, errorStatus(err))
			return
		}
		resp.Result = stateResult(result)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// handleGetImport returns the live progress of a running import, or the
// final result once it is done.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	result, err := s.service.GetResult(r.Context(), importID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ImportState{Progress: result.Progress(), Result: stateResult(result)})
	case errors.Is(err, core.ErrImportRunning):
		progress, err := s.service.GetProgress(importID)
		if err != nil {
			respondError(w, r, err, errorStatus(err))
			return
		}
		writeJSON(w, http.StatusOK, ImportState{Progress: progress})
	default:
		respondError(w, r, err, errorStatus(err))
	}
}

// handleImportProgress streams progress via Server-Sent Events.
//
// Every snapshot is a "progress" event whose id is the percentage, so a
// reconnecting client can pass lastEventId (or the Last-Event-ID header)
// to skip what it already has. The stream ends with a "complete" event
// carrying the final result.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil && !errors.Is(err, core.ErrImportNotFound) {
		respondError(w, r, err, errorStatus(err))
		return
	}

	// Evicted sessions are replayed from the archive as a finished stream.
	var archived *core.ImportResult
	if err != nil {
		archived, err = s.service.GetResult(r.Context(), importID)
		if err != nil {
			respondError(w, r, err, errorStatus(err))
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if archived != nil {
		writeEvent(w, "progress", archived.Progress().Percent(), archived.Progress())
		writeEvent(w, "complete", -1, stateResult(archived))
		flusher.Flush()
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				result, err := s.service.GetResult(r.Context(), importID)
				if err != nil {
					writeEvent(w, "complete", -1, map[string]string{"error": core.MapError(err).Message})
				} else {
					writeEvent(w, "complete", -1, stateResult(result))
				}
				flusher.Flush()
				return
			}

			percent := progress.Percent()
			if percent <= lastEventID && !progress.Done {
				continue
			}
			writeEvent(w, "progress", percent, progress)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// writeEvent writes one SSE frame. A negative id omits the id line.
func writeEvent(w http.ResponseWriter, event string, id int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte("{}")
	}
	if id >= 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// handleExportErrors downloads every row error of a finished import as CSV.
// A structural failure is exported as a single line 0 entry.
func (s *Server) handleExportErrors(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	result, err := s.service.GetResult(r.Context(), importID)
	if err != nil {
		respondError(w, r, err, errorStatus(err))
		return
	}

	filename := fmt.Sprintf("import_%s_erreurs.csv", importID)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	cw := csv.NewWriter(w)
	cw.Write([]string{"ligne", "erreur"})
	if result.StructuralError != "" {
		cw.Write([]string{"0", result.StructuralError})
	}
	for _, e := range result.Errors {
		cw.Write([]string{strconv.Itoa(e.Line), e.Message})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logging.FromContext(r.Context()).Error("write error export", "import_id", importID, "error", err)
	}
}

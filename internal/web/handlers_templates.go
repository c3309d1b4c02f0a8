package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/inventory/internal/core"
)

var errUnsupportedFormat = errors.New("unsupported template format")

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleDownloadTemplate serves the import template of a mode, as CSV by
// default or as a workbook with ?format=xlsx.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	mode := core.ImportMode(chi.URLParam(r, "mode"))
	format := strings.ToLower(r.URL.Query().Get("format"))

	switch format {
	case "", "csv":
		content, err := s.service.Template(r.Context(), mode)
		if err != nil {
			respondError(w, r, err, errorStatus(err))
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="modele_%s.csv"`, mode))
		w.Write([]byte(content))

	case "xlsx":
		content, err := s.service.TemplateXLSX(r.Context(), mode)
		if err != nil {
			respondError(w, r, err, errorStatus(err))
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="modele_%s.xlsx"`, mode))
		w.Write(content)

	default:
		respondError(w, r, fmt.Errorf("%w: %s", errUnsupportedFormat, format), http.StatusBadRequest)
	}
}

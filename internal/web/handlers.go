package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/inventory/internal/core"
)

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Database string                   `json:"database,omitempty"`
	Imports  core.ImportLimiterStatus `json:"imports"`
}

// handleHealth reports liveness, database reachability and import slots.
// An unreachable database turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Imports: s.service.LimiterStatus()}
	status := http.StatusOK

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Database = "ok"
		if err := s.db.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = core.MapError(err).Message
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

// handleListModes lists the import modes and their columns.
func (s *Server) handleListModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Modes())
}

// handleListStocks lists stock locations. Their names are the valid
// stock_<name> headers.
func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.service.ListStocks(r.Context())
	if err != nil {
		respondError(w, r, err, errorStatus(err))
		return
	}
	if stocks == nil {
		stocks = []core.StockLocation{}
	}
	writeJSON(w, http.StatusOK, stocks)
}

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/inventory/internal/config"
	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/store/memory"
)

// =============================================================================
// Helpers
// =============================================================================

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Import: config.ImportConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 1,
			MaxWaitTime:   time.Second,
			ResultTTL:     time.Minute,
		},
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error {
	return errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func newTestServer(t *testing.T, mutate func(*config.Config), db Pinger) *Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	store := memory.New()
	store.AddStock("Boutique")
	store.AddStock("Réserve")
	store.AddSupplier("Fournisseur A")

	svc := core.NewService(store, core.Options{
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWaitTime,
		ResultTTL:     cfg.Import.ResultTTL,
	})
	srv := NewServer(svc, cfg, db)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func (s *Server) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func (s *Server) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func uploadRequest(t *testing.T, path, fileName string, data []byte, parentSKU string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	if parentSKU != "" {
		require.NoError(t, mw.WriteField("parent_sku", parentSKU))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func productTemplate(t *testing.T, s *Server) []byte {
	t.Helper()
	content, err := s.service.Template(context.Background(), core.ModeProduct)
	require.NoError(t, err)
	return []byte(content)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

// =============================================================================
// Health, modes, stocks
// =============================================================================

func TestHealth(t *testing.T) {
	t.Run("no database attached", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)
		rec := srv.get("/healthz")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, 1, resp.Imports.MaxConcurrent)
	})

	t.Run("database down", func(t *testing.T) {
		srv := newTestServer(t, nil, failingPinger{})
		rec := srv.get("/healthz")

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "degraded")
		assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	})
}

func TestListStocks(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.get("/api/stocks")

	require.Equal(t, http.StatusOK, rec.Code)
	var stocks []core.StockLocation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stocks))

	var names []string
	for _, s := range stocks {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"Boutique", "Réserve"}, names)
}

func TestListModes(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.get("/api/modes")

	require.Equal(t, http.StatusOK, rec.Code)
	var modes []core.ModeInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &modes))
	require.Len(t, modes, 2)
}

// =============================================================================
// Templates
// =============================================================================

func TestDownloadTemplate(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	tests := []struct {
		name        string
		path        string
		wantStatus  int
		wantType    string
		wantCode    string
		wantContent string
	}{
		{"product csv", "/api/templates/product", http.StatusOK, "text/csv", "", "stock_boutique"},
		{"serial csv", "/api/templates/serial?format=csv", http.StatusOK, "text/csv", "", "serial_number"},
		{"product xlsx", "/api/templates/product?format=xlsx", http.StatusOK, xlsxContentType, "", "PK"},
		{"unknown mode", "/api/templates/bundle", http.StatusNotFound, "application/json", "IMP005", ""},
		{"unknown format", "/api/templates/product?format=pdf", http.StatusBadRequest, "application/json", "FILE004", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.get(tt.path)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), tt.wantType)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
			}
			if tt.wantContent != "" {
				assert.Contains(t, rec.Body.String(), tt.wantContent)
			}
		})
	}
}

// =============================================================================
// Imports
// =============================================================================

func TestStartImport_Wait(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := srv.do(uploadRequest(t, "/api/imports?wait=true", "produits.csv", productTemplate(t, srv), ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp StartImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.NotEmpty(t, resp.ImportID)
	assert.Equal(t, core.StatusSuccess, resp.Result.Status)
	assert.Equal(t, core.ModeProduct, resp.Result.Mode)
	assert.Equal(t, 2, resp.Result.Processed)
	assert.Empty(t, resp.Result.ErrorPreview)
}

func TestStartImport_Async(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := srv.do(uploadRequest(t, "/api/imports", "produits.csv", productTemplate(t, srv), ""))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp StartImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/api/imports/"+resp.ImportID+"/progress", resp.ProgressURL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := srv.service.WaitResult(ctx, resp.ImportID)
	require.NoError(t, err)

	rec = srv.get("/api/imports/" + resp.ImportID)
	require.Equal(t, http.StatusOK, rec.Code)

	var state ImportState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.Progress.Done)
	assert.Equal(t, 100, state.Progress.Percent())
	require.NotNil(t, state.Result)
	assert.Equal(t, core.StatusSuccess, state.Result.Status)
}

func TestStartImport_StructuralErrorExport(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	data := []byte("sku,stock_Grenier\nABC,1\n")

	rec := srv.do(uploadRequest(t, "/api/imports?wait=true", "bad.csv", data, ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp StartImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.Equal(t, core.StatusError, resp.Result.Status)
	assert.NotEmpty(t, resp.Result.StructuralError)

	rec = srv.get("/api/imports/" + resp.ImportID + "/errors.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "erreurs.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ligne,erreur", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "0,"), lines[1])
}

func TestStartImport_RowErrorsExport(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	data := productTemplate(t, srv)
	// New products without EAN fail row by row.
	data = bytes.ReplaceAll(data, []byte("3760000000017"), nil)
	data = bytes.ReplaceAll(data, []byte("3760000000024"), nil)

	rec := srv.do(uploadRequest(t, "/api/imports?wait=true", "sans_ean.csv", data, ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp StartImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Result)
	assert.Equal(t, core.StatusError, resp.Result.Status)
	assert.Len(t, resp.Result.Errors, 2)
	assert.Len(t, resp.Result.ErrorPreview, 2)

	rec = srv.get("/api/imports/" + resp.ImportID + "/errors.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Ligne 2")
}

func TestStartImport_RequestErrors(t *testing.T) {
	tests := []struct {
		name       string
		maxSize    int64
		fileName   string
		data       []byte
		wantStatus int
		wantCode   string
	}{
		{"no file part", 1 << 20, "", nil, http.StatusBadRequest, "FILE003"},
		{"file too large", 16, "big.csv", bytes.Repeat([]byte("a"), 64), http.StatusRequestEntityTooLarge, "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(c *config.Config) { c.Import.MaxFileSize = tt.maxSize }, nil)

			rec := srv.do(uploadRequest(t, "/api/imports", tt.fileName, tt.data, ""))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestGetImport_Unknown(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	for _, path := range []string{
		"/api/imports/nope",
		"/api/imports/nope/errors.csv",
		"/api/imports/nope/progress",
	} {
		rec := srv.get(path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "UPL002", decodeError(t, rec).Code, path)
	}
}

func TestImportProgress_Stream(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := srv.do(uploadRequest(t, "/api/imports", "produits.csv", productTemplate(t, srv), ""))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp StartImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, resp.ProgressURL, nil).WithContext(ctx)
	rec = srv.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, "event: complete")
	assert.Contains(t, body, `"status":"success"`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

// =============================================================================
// Access control
// =============================================================================

func TestRateLimit_Imports(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, ImportsPerMinute: 1}
	}, nil)

	first := srv.do(uploadRequest(t, "/api/imports?wait=true", "a.csv", productTemplate(t, srv), ""))
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := srv.do(uploadRequest(t, "/api/imports", "b.csv", productTemplate(t, srv), ""))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "UPL006", decodeError(t, second).Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	// Read endpoints keep their own quota.
	assert.Equal(t, http.StatusOK, srv.get("/api/stocks").Code)
}

func TestAPIKeyRequired(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.Security = config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1"}}
	}, nil)

	assert.Equal(t, http.StatusOK, srv.get("/healthz").Code)
	assert.Equal(t, http.StatusUnauthorized, srv.get("/api/stocks").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stocks", nil)
	req.Header.Set("X-API-Key", "k1")
	assert.Equal(t, http.StatusOK, srv.do(req).Code)
}

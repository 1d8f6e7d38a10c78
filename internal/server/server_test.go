package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/di"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		DataDir:             t.TempDir(),
		Port:                8001,
		DevMode:             true,
		TradingDaysPerYear:  252,
		Solver:              config.SolverConfig{MaxIterations: 1000, GradientThreshold: 1e-9, FunctionTolerance: 1e-12},
		PriceHistoryStart:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		BenchmarkTicker:     "^GSPC",
		SnapshotSchedule:    "0 30 22 * * MON-FRI",
		SnapshotKeep:        5,
		BackupSchedule:      "0 0 3 * * *",
		BackupRetentionDays: 30,
	}
	container, jobs, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	return New(Config{Log: zerolog.Nop(), Config: cfg, Container: container, Jobs: jobs})
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, map[string]interface{}{"history": "ok", "snapshots": "ok"}, response["databases"])
	assert.Equal(t, []interface{}{"sharpe", "min_vol"}, response["objectives"])
}

func TestServer_RoutesMounted(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/prices", http.StatusOK},
		{http.MethodGet, "/api/portfolios", http.StatusOK},
		{http.MethodGet, "/api/portfolios/Tech%20Core/snapshot", http.StatusNotFound},
		{http.MethodGet, "/api/snapshots", http.StatusOK},
		{http.MethodGet, "/api/system/jobs", http.StatusOK},
		{http.MethodPost, "/api/system/backup", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/optimizer/run", http.StatusBadRequest},
		{http.MethodPost, "/api/analysis/evaluate", http.StatusBadRequest},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, strings.NewReader("")))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestServer_PricesThenOptimize(t *testing.T) {
	s := newTestServer(t)

	upload := func(ticker string, closes []float64) {
		points := make([]map[string]interface{}, len(closes))
		for i, c := range closes {
			points[i] = map[string]interface{}{
				"date":  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02"),
				"close": c,
			}
		}
		body, err := json.Marshal(map[string]interface{}{"prices": points})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/api/prices/"+ticker, strings.NewReader(string(body))))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	upload("AAA", []float64{100, 101, 99, 102, 104, 103, 105})
	upload("BBB", []float64{50, 50.5, 50.2, 50.1, 50.9, 51.3, 51})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/optimizer/run",
		strings.NewReader(`{"tickers":["AAA","BBB"],"objective":"min_vol"}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"objective":"min_vol"`)
}

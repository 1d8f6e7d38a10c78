package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/returns"
	testingpkg "github.com/aristath/allocator/internal/testing"
)

func setupRouter(t *testing.T) chi.Router {
	t.Helper()
	db := testingpkg.NewTestDB(t, "history")
	repo := historical.NewPriceRepository(db.Conn(), zerolog.Nop())

	seed := map[string][]float64{
		"AAPL": {100, 101, 99.99, 101.9898, 103},
		"MSFT": {100, 100, 101, 102.01, 101},
	}
	for ticker, closes := range seed {
		s := returns.PriceSeries{Ticker: ticker}
		for i, c := range closes {
			s.Points = append(s.Points, returns.PricePoint{Date: time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC), Close: c})
		}
		_, err := repo.Upsert(context.Background(), s)
		require.NoError(t, err)
	}

	svc := analysis.NewService(
		repo,
		optimization.NewOptimizer(optimization.DefaultSettings(), zerolog.Nop()),
		analysis.Config{Benchmark: "^GSPC", DefaultSince: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)},
		zerolog.Nop(),
	)

	router := chi.NewRouter()
	NewHandler(svc, zerolog.Nop()).RegisterRoutes(router)
	return router
}

func post(router chi.Router, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleEvaluate(t *testing.T) {
	router := setupRouter(t)

	w := post(router, "/analysis/evaluate", `{"tickers":["aapl","msft"],"weights":[0.5,0.5]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response struct {
		Data analysis.Evaluation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 4, response.Data.Days)
	assert.Equal(t, []string{"AAPL", "MSFT"}, response.Data.Portfolio.Tickers())
	assert.True(t, response.Data.Metrics.Sharpe.Valid)
}

func TestHandleCompare(t *testing.T) {
	router := setupRouter(t)

	w := post(router, "/analysis/compare", `{"tickers":["AAPL","MSFT"],"weights":[0.3,0.7],"since":"2024-01-01"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response struct {
		Data analysis.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	report := response.Data
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "2024-01-01", report.Since)
	// No benchmark prices are stored.
	assert.Nil(t, report.Benchmark)
	assert.Len(t, report.Performance, 3)
	assert.Len(t, report.Allocations.MinVolatility.Weights, 2)
}

func TestHandleCompare_Errors(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"unknown preloaded", `{"preloaded":"Moonshots"}`, http.StatusNotFound},
		{"weights do not sum to one", `{"tickers":["AAPL","MSFT"],"weights":[0.5,0.4]}`, http.StatusBadRequest},
		{"count mismatch", `{"tickers":["AAPL"],"weights":[0.5,0.5]}`, http.StatusBadRequest},
		{"bad since", `{"tickers":["AAPL"],"weights":[1],"since":"last year"}`, http.StatusBadRequest},
		{"no price history", `{"preloaded":"Tech Core"}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(router, "/analysis/compare", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

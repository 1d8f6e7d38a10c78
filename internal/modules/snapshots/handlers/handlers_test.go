package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/portfolios"
	"github.com/aristath/allocator/internal/modules/snapshots"
	testingpkg "github.com/aristath/allocator/internal/testing"
)

type stubComparer struct {
	err error
}

func (s stubComparer) Compare(_ context.Context, p portfolios.Portfolio, _ time.Time) (*analysis.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &analysis.Report{ID: "r-" + p.Name, Portfolio: p, Since: "2019-01-01", GeneratedAt: time.Now().UTC()}, nil
}

func setupRouter(t *testing.T, comparer snapshots.Comparer) (chi.Router, *snapshots.Repository) {
	t.Helper()
	db := testingpkg.NewTestDB(t, "snapshots")
	repo := snapshots.NewRepository(db.Conn(), zerolog.Nop())
	job := snapshots.NewRefreshJob(comparer, repo, 0, 0, zerolog.Nop())

	router := chi.NewRouter()
	NewHandler(repo, job, zerolog.Nop()).RegisterRoutes(router)
	return router, repo
}

func TestHandleList_Empty(t *testing.T) {
	router, _ := setupRouter(t, stubComparer{})

	req := httptest.NewRequest(http.MethodGet, "/snapshots/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data []snapshots.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.NotNil(t, response.Data)
	assert.Empty(t, response.Data)
}

func TestHandleRefreshThenGet(t *testing.T) {
	router, _ := setupRouter(t, stubComparer{})

	req := httptest.NewRequest(http.MethodPost, "/snapshots/refresh", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var refreshed struct {
		Data     []snapshots.Summary    `json:"data"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))
	require.Len(t, refreshed.Data, len(portfolios.Catalogue()))
	assert.Nil(t, refreshed.Metadata["errors"])

	req = httptest.NewRequest(http.MethodGet, "/snapshots/"+refreshed.Data[0].ID, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Data snapshots.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, refreshed.Data[0].Portfolio, got.Data.Portfolio)
	assert.Equal(t, "r-"+got.Data.Portfolio, got.Data.Report.ID)

	req = httptest.NewRequest(http.MethodGet, "/snapshots/", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var listed struct {
		Data []snapshots.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed.Data, len(portfolios.Catalogue()))
}

func TestHandleRefresh_AllFail(t *testing.T) {
	router, _ := setupRouter(t, stubComparer{err: errors.New("offline")})

	req := httptest.NewRequest(http.MethodPost, "/snapshots/refresh", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "offline")
}

func TestHandleGet_NotFound(t *testing.T) {
	router, _ := setupRouter(t, stubComparer{})

	req := httptest.NewRequest(http.MethodGet, "/snapshots/does-not-exist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

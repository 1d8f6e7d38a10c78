// Package handlers provides HTTP handlers for stored comparison snapshots.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/modules/snapshots"
)

// Handler handles snapshot HTTP requests
type Handler struct {
	repo *snapshots.Repository
	job  *snapshots.RefreshJob
	log  zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(repo *snapshots.Repository, job *snapshots.RefreshJob, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		job:  job,
		log:  log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleList handles GET /api/snapshots
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list snapshots")
		http.Error(w, "Failed to list snapshots", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []snapshots.Summary{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": list,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(list),
		},
	})
}

// HandleGet handles GET /api/snapshots/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, snapshots.ErrSnapshotNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load snapshot")
		http.Error(w, "Failed to load snapshot", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": snap,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRefresh handles POST /api/snapshots/refresh
//
// Partial failures still return the snapshots that were written, with the
// failure text under metadata.errors.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	written, err := h.job.RunContext(r.Context())

	summaries := make([]snapshots.Summary, 0, len(written))
	for _, s := range written {
		summaries = append(summaries, snapshots.Summary{ID: s.ID, Portfolio: s.Portfolio, CreatedAt: s.CreatedAt})
	}

	metadata := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"written":   len(written),
	}
	status := http.StatusOK
	if err != nil {
		metadata["errors"] = err.Error()
		if len(written) == 0 {
			status = http.StatusInternalServerError
		}
	}

	h.writeJSON(w, status, map[string]interface{}{
		"data":     summaries,
		"metadata": metadata,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

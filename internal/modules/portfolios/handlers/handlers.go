// Package handlers provides HTTP handlers for the preloaded portfolio catalogue.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/modules/portfolios"
	"github.com/aristath/allocator/internal/modules/snapshots"
)

// SnapshotReader returns the newest stored report of a portfolio.
type SnapshotReader interface {
	Latest(ctx context.Context, portfolio string) (*snapshots.Snapshot, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	snapshots SnapshotReader
	log       zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(snapshots SnapshotReader, log zerolog.Logger) *Handler {
	return &Handler{
		snapshots: snapshots,
		log:       log.With().Str("handler", "portfolios").Logger(),
	}
}

// HandleList handles GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	catalogue := portfolios.Catalogue()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": catalogue,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"count":     len(catalogue),
		},
	})
}

// HandleGet handles GET /api/portfolios/{name}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": p,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSnapshot handles GET /api/portfolios/{name}/snapshot
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookup(w, r)
	if !ok {
		return
	}

	snap, err := h.snapshots.Latest(r.Context(), p.Name)
	if errors.Is(err, snapshots.ErrSnapshotNotFound) {
		http.Error(w, "No snapshot yet for "+p.Name, http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("portfolio", p.Name).Msg("Failed to load snapshot")
		http.Error(w, "Failed to load snapshot", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": snap.Report,
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"snapshot_id": snap.ID,
			"created_at":  snap.CreatedAt.Format(time.RFC3339),
		},
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (portfolios.Portfolio, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		http.Error(w, "Invalid portfolio name", http.StatusBadRequest)
		return portfolios.Portfolio{}, false
	}

	p, err := portfolios.Preloaded(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return portfolios.Portfolio{}, false
	}
	return p, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

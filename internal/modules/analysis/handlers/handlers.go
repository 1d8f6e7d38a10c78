// Package handlers provides HTTP handlers for portfolio analysis.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/portfolios"
	"github.com/aristath/allocator/internal/modules/returns"
	"github.com/aristath/allocator/internal/utils"
)

// Handler handles analysis HTTP requests
type Handler struct {
	service *analysis.Service
	log     zerolog.Logger
}

// NewHandler creates a new analysis handler
func NewHandler(service *analysis.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "analysis").Logger(),
	}
}

// PortfolioRequest selects a portfolio either from the catalogue or by
// listing tickers and weights.
type PortfolioRequest struct {
	Preloaded string    `json:"preloaded,omitempty"`
	Tickers   []string  `json:"tickers,omitempty"`
	Weights   []float64 `json:"weights,omitempty"`
	Since     string    `json:"since,omitempty"`
}

func (req PortfolioRequest) resolve() (portfolios.Portfolio, time.Time, error) {
	var since time.Time
	if req.Since != "" {
		parsed, err := utils.ParseDate(req.Since)
		if err != nil {
			return portfolios.Portfolio{}, time.Time{}, err
		}
		since = parsed
	}

	if req.Preloaded != "" {
		p, err := portfolios.Preloaded(req.Preloaded)
		return p, since, err
	}
	p, err := portfolios.New("Manual", req.Tickers, req.Weights)
	return p, since, err
}

// HandleEvaluate handles POST /api/analysis/evaluate
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	portfolio, since, ok := h.decode(w, r)
	if !ok {
		return
	}

	eval, err := h.service.Evaluate(r.Context(), portfolio, since)
	if err != nil {
		h.writeError(w, err, portfolio.Name)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     eval,
		"metadata": map[string]interface{}{"timestamp": time.Now().Format(time.RFC3339)},
	})
}

// HandleCompare handles POST /api/analysis/compare
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	portfolio, since, ok := h.decode(w, r)
	if !ok {
		return
	}

	report, err := h.service.Compare(r.Context(), portfolio, since)
	if err != nil {
		h.writeError(w, err, portfolio.Name)
		return
	}

	h.log.Info().
		Str("portfolio", portfolio.Name).
		Str("report_id", report.ID).
		Msg("Comparison complete")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     report,
		"metadata": map[string]interface{}{"timestamp": time.Now().Format(time.RFC3339)},
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (portfolios.Portfolio, time.Time, bool) {
	var req PortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return portfolios.Portfolio{}, time.Time{}, false
	}

	portfolio, since, err := req.resolve()
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, portfolios.ErrUnknownPortfolio) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return portfolios.Portfolio{}, time.Time{}, false
	}
	return portfolio, since, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, portfolio string) {
	switch {
	case errors.Is(err, returns.ErrMissingPriceHistory), errors.Is(err, returns.ErrInsufficientData):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.log.Error().Err(err).Str("portfolio", portfolio).Msg("Analysis failed")
		http.Error(w, "Analysis failed", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Package handlers provides HTTP handlers for stored price history.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/returns"
	"github.com/aristath/allocator/internal/utils"
)

// Handler handles price history HTTP requests
type Handler struct {
	repo *historical.PriceRepository
	calc returns.Calculator
	log  zerolog.Logger
}

// NewHandler creates a new price history handler
func NewHandler(repo *historical.PriceRepository, calc returns.Calculator, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		calc: calc,
		log:  log.With().Str("handler", "historical").Logger(),
	}
}

// PriceDTO is a dated close on the wire.
type PriceDTO struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// UpsertPricesRequest is the body of PUT /api/prices/{ticker}
type UpsertPricesRequest struct {
	Prices []PriceDTO `json:"prices"`
}

// HandleListTickers handles GET /api/prices
func (h *Handler) HandleListTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.repo.Tickers(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list tickers")
		http.Error(w, "Failed to list tickers", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"tickers": tickers,
			"count":   len(tickers),
		},
		"metadata": metadata(),
	})
}

// HandleGetPrices handles GET /api/prices/{ticker}?since=YYYY-MM-DD
func (h *Handler) HandleGetPrices(w http.ResponseWriter, r *http.Request, ticker string) {
	since, ok := h.parseSince(w, r)
	if !ok {
		return
	}

	series, err := h.repo.Series(r.Context(), ticker, since)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to get prices")
		http.Error(w, "Failed to get prices", http.StatusInternalServerError)
		return
	}

	prices := make([]PriceDTO, len(series.Points))
	for i, p := range series.Points {
		prices[i] = PriceDTO{Date: utils.FormatDate(p.Date), Close: p.Close}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"ticker": ticker,
			"prices": prices,
			"count":  len(prices),
		},
		"metadata": metadata(),
	})
}

// HandleUpsertPrices handles PUT /api/prices/{ticker}
func (h *Handler) HandleUpsertPrices(w http.ResponseWriter, r *http.Request, ticker string) {
	var req UpsertPricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Prices) == 0 {
		http.Error(w, "prices must not be empty", http.StatusBadRequest)
		return
	}

	series := returns.PriceSeries{Ticker: ticker, Points: make([]returns.PricePoint, len(req.Prices))}
	for i, p := range req.Prices {
		date, err := utils.ParseDate(p.Date)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if p.Close <= 0 {
			http.Error(w, "close must be positive", http.StatusBadRequest)
			return
		}
		series.Points[i] = returns.PricePoint{Date: date, Close: p.Close}
	}

	written, err := h.repo.Upsert(r.Context(), series)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to store prices")
		http.Error(w, "Failed to store prices", http.StatusInternalServerError)
		return
	}

	h.log.Info().Str("ticker", ticker).Int("written", written).Msg("Stored prices")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"ticker":  ticker,
			"written": written,
		},
		"metadata": metadata(),
	})
}

// HandleDeletePrices handles DELETE /api/prices/{ticker}
func (h *Handler) HandleDeletePrices(w http.ResponseWriter, r *http.Request, ticker string) {
	deleted, err := h.repo.Delete(r.Context(), ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to delete prices")
		http.Error(w, "Failed to delete prices", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"ticker":  ticker,
			"deleted": deleted,
		},
		"metadata": metadata(),
	})
}

// ReturnPoint is one day of a single ticker's return history.
type ReturnPoint struct {
	Date       string  `json:"date"`
	Daily      float64 `json:"daily"`
	Cumulative float64 `json:"cumulative"`
}

// HandleGetReturns handles GET /api/prices/{ticker}/returns?since=YYYY-MM-DD
func (h *Handler) HandleGetReturns(w http.ResponseWriter, r *http.Request, ticker string) {
	since, ok := h.parseSince(w, r)
	if !ok {
		return
	}

	table, err := h.repo.Load(r.Context(), []string{ticker}, since)
	if err != nil {
		h.writeDomainError(w, err, ticker)
		return
	}
	m, err := returns.DailyReturns(table)
	if err != nil {
		h.writeDomainError(w, err, ticker)
		return
	}

	daily := m.Column(0)
	dates := m.Dates()
	points := make([]ReturnPoint, 0, len(daily))
	for t, cumulative := range returns.CumulativeSeries(daily) {
		points = append(points, ReturnPoint{
			Date:       utils.FormatDate(dates[t]),
			Daily:      daily[t],
			Cumulative: cumulative,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"ticker":  ticker,
			"returns": points,
			"metrics": h.calc.SeriesMetrics(daily).Round(4),
		},
		"metadata": metadata(),
	})
}

func (h *Handler) parseSince(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}, true
	}
	since, err := utils.ParseDate(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return time.Time{}, false
	}
	return since, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error, ticker string) {
	switch {
	case errors.Is(err, returns.ErrMissingPriceHistory), errors.Is(err, returns.ErrInsufficientData):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to compute returns")
		http.Error(w, "Failed to compute returns", http.StatusInternalServerError)
	}
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Package handlers provides HTTP handlers for allocation optimization.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/returns"
	"github.com/aristath/allocator/internal/utils"
)

const streamWriteTimeout = 5 * time.Second

// PriceLoader supplies aligned price tables.
type PriceLoader interface {
	Load(ctx context.Context, tickers []string, since time.Time) (*returns.PriceTable, error)
}

// Handler handles optimizer HTTP requests
type Handler struct {
	prices       PriceLoader
	optimizer    *optimization.Optimizer
	defaultSince time.Time
	log          zerolog.Logger
}

// NewHandler creates a new optimizer handler
func NewHandler(prices PriceLoader, optimizer *optimization.Optimizer, defaultSince time.Time, log zerolog.Logger) *Handler {
	return &Handler{
		prices:       prices,
		optimizer:    optimizer,
		defaultSince: defaultSince,
		log:          log.With().Str("handler", "optimizer").Logger(),
	}
}

// RunRequest is the body of POST /api/optimizer/run
type RunRequest struct {
	Tickers   []string `json:"tickers"`
	Objective string   `json:"objective"`
	Since     string   `json:"since,omitempty"`
}

// StreamMessage is one frame of the optimizer stream.
type StreamMessage struct {
	Type     string                 `json:"type"` // "progress", "result" or "error"
	Progress *optimization.Progress `json:"progress,omitempty"`
	Result   *optimization.Result   `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

type job struct {
	tickers   []string
	objective optimization.Objective
	since     time.Time
}

func (h *Handler) parseJob(tickers []string, objective, since string) (job, error) {
	j := job{since: h.defaultSince}
	for _, t := range tickers {
		j.tickers = append(j.tickers, utils.ParseTickers(t)...)
	}
	if len(j.tickers) == 0 {
		return job{}, errors.New("at least one ticker is required")
	}

	obj, err := optimization.ParseObjective(normalizeObjective(objective))
	if err != nil {
		return job{}, err
	}
	j.objective = obj

	if since != "" {
		if j.since, err = utils.ParseDate(since); err != nil {
			return job{}, err
		}
	}
	return j, nil
}

func (h *Handler) run(ctx context.Context, optimizer *optimization.Optimizer, j job) (*optimization.Result, error) {
	table, err := h.prices.Load(ctx, j.tickers, j.since)
	if err != nil {
		return nil, err
	}
	m, err := returns.DailyReturns(table)
	if err != nil {
		return nil, err
	}
	return optimizer.Optimize(ctx, m, j.objective)
}

// HandleRun handles POST /api/optimizer/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	j, err := h.parseJob(req.Tickers, req.Objective, req.Since)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.run(r.Context(), h.optimizer, j)
	if err != nil {
		h.writeError(w, err, j)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"since":     utils.FormatDate(j.since),
		},
	})
}

// HandleStream handles GET /api/optimizer/stream?tickers=A,B&objective=sharpe
//
// The connection receives one progress frame per solver iteration and then
// a result or error frame before it is closed.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	j, err := h.parseJob([]string{q.Get("tickers")}, q.Get("objective"), q.Get("since"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to accept WebSocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected exit")

	// The client only listens; CloseRead cancels ctx once it goes away.
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	send := func(msg StreamMessage) error {
		writeCtx, writeCancel := context.WithTimeout(ctx, streamWriteTimeout)
		defer writeCancel()
		return wsjson.Write(writeCtx, conn, msg)
	}

	optimizer := h.optimizer.WithObserver(func(p optimization.Progress) {
		if err := send(StreamMessage{Type: "progress", Progress: &p}); err != nil {
			h.log.Debug().Err(err).Msg("Stream client gone, stopping optimization")
			cancel()
		}
	})

	result, err := h.run(ctx, optimizer, j)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		_ = send(StreamMessage{Type: "error", Error: err.Error()})
		conn.Close(websocket.StatusNormalClosure, "optimization failed")
		return
	}

	if err := send(StreamMessage{Type: "result", Result: result}); err != nil {
		h.log.Debug().Err(err).Msg("Failed to send result")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) writeError(w http.ResponseWriter, err error, j job) {
	switch {
	case errors.Is(err, returns.ErrMissingPriceHistory), errors.Is(err, returns.ErrInsufficientData):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, optimization.ErrSolverDiverged):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.log.Error().Err(err).Strs("tickers", j.tickers).Msg("Optimization failed")
		http.Error(w, "Optimization failed", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// normalizeObjective accepts selectors typed with stray case or whitespace.
func normalizeObjective(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

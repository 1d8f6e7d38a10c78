package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all price history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/prices", func(r chi.Router) {
		r.Get("/", h.HandleListTickers)
		r.Route("/{ticker}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetPrices(w, r, tickerParam(r))
			})
			r.Put("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleUpsertPrices(w, r, tickerParam(r))
			})
			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				h.HandleDeletePrices(w, r, tickerParam(r))
			})
			r.Get("/returns", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetReturns(w, r, tickerParam(r))
			})
		})
	})
}

// tickerParam reads the {ticker} segment. Index tickers such as ^GSPC arrive
// percent-encoded.
func tickerParam(r *http.Request) string {
	raw := chi.URLParam(r, "ticker")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	return strings.ToUpper(raw)
}

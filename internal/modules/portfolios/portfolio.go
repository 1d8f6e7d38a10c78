// Package portfolios defines the allocations a user can analyse: the
// preloaded catalogue and manually entered portfolios.
package portfolios

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aristath/allocator/internal/utils"
)

// WeightSumTolerance is how far the weights of a manual entry may stray from 1.
const WeightSumTolerance = 1e-6

var (
	ErrUnknownPortfolio  = errors.New("unknown portfolio")
	ErrWeightSum         = errors.New("weights must sum to 1")
	ErrTickerWeightCount = errors.New("number of tickers and weights must match")
	ErrInvalidWeight     = errors.New("weights must lie in [0, 1]")
	ErrEmptyPortfolio    = errors.New("portfolio has no holdings")
	ErrDuplicateTicker   = errors.New("ticker listed more than once")
)

// Holding is one asset and its weight.
type Holding struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
}

// Portfolio is a named, ordered allocation.
type Portfolio struct {
	Name     string    `json:"name"`
	Holdings []Holding `json:"holdings"`
}

// Tickers returns the tickers in holding order.
func (p Portfolio) Tickers() []string {
	out := make([]string, len(p.Holdings))
	for i, h := range p.Holdings {
		out[i] = h.Ticker
	}
	return out
}

// Weights returns the weights in holding order.
func (p Portfolio) Weights() []float64 {
	out := make([]float64, len(p.Holdings))
	for i, h := range p.Holdings {
		out[i] = h.Weight
	}
	return out
}

// Validate checks that p is a long-only, fully invested allocation.
func (p Portfolio) Validate() error {
	if len(p.Holdings) == 0 {
		return ErrEmptyPortfolio
	}

	seen := make(map[string]struct{}, len(p.Holdings))
	sum := 0.0
	for _, h := range p.Holdings {
		if _, dup := seen[h.Ticker]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateTicker, h.Ticker)
		}
		seen[h.Ticker] = struct{}{}

		if math.IsNaN(h.Weight) || h.Weight < 0 || h.Weight > 1 {
			return fmt.Errorf("%w: %s has %g", ErrInvalidWeight, h.Ticker, h.Weight)
		}
		sum += h.Weight
	}

	if math.Abs(sum-1) > WeightSumTolerance {
		return fmt.Errorf("%w: got %g", ErrWeightSum, sum)
	}
	return nil
}

// New builds and validates a portfolio from parallel ticker and weight lists.
// Tickers are trimmed and upper-cased.
func New(name string, tickers []string, weights []float64) (Portfolio, error) {
	if len(tickers) != len(weights) {
		return Portfolio{}, fmt.Errorf("%w: %d tickers, %d weights", ErrTickerWeightCount, len(tickers), len(weights))
	}

	p := Portfolio{Name: name, Holdings: make([]Holding, len(tickers))}
	for i, t := range tickers {
		p.Holdings[i] = Holding{Ticker: strings.ToUpper(strings.TrimSpace(t)), Weight: weights[i]}
	}
	if err := p.Validate(); err != nil {
		return Portfolio{}, err
	}
	return p, nil
}

// ParseManual parses comma-separated tickers and weights as typed by a user,
// e.g. "AAPL, MSFT, GOOGL" and "0.3,0.4,0.3".
func ParseManual(tickers, weights string) (Portfolio, error) {
	w, err := utils.ParseFloatCSV(weights)
	if err != nil {
		return Portfolio{}, err
	}
	return New("Manual", utils.ParseTickers(tickers), w)
}

var catalogue = map[string]Portfolio{
	"Tech Core": {Name: "Tech Core", Holdings: []Holding{
		{"AAPL", 0.25}, {"MSFT", 0.25}, {"GOOGL", 0.25}, {"AMZN", 0.25},
	}},
	"Dividend Mix": {Name: "Dividend Mix", Holdings: []Holding{
		{"JNJ", 0.2}, {"PG", 0.2}, {"KO", 0.2}, {"PEP", 0.2}, {"MCD", 0.2},
	}},
	"Global ETF Blend": {Name: "Global ETF Blend", Holdings: []Holding{
		{"SPY", 0.4}, {"EFA", 0.3}, {"EEM", 0.2}, {"AGG", 0.1},
	}},
}

// Preloaded returns the catalogue portfolio with the given name.
func Preloaded(name string) (Portfolio, error) {
	p, ok := catalogue[name]
	if !ok {
		return Portfolio{}, fmt.Errorf("%w: %q", ErrUnknownPortfolio, name)
	}
	return clone(p), nil
}

// Catalogue returns every preloaded portfolio sorted by name.
func Catalogue() []Portfolio {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Portfolio, len(names))
	for i, name := range names {
		out[i] = clone(catalogue[name])
	}
	return out
}

func clone(p Portfolio) Portfolio {
	p.Holdings = append([]Holding(nil), p.Holdings...)
	return p
}

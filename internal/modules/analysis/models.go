package analysis

import (
	"time"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/portfolios"
	"github.com/aristath/allocator/internal/modules/returns"
)

// Allocation labels used in reports and performance series.
const (
	LabelOriginal      = "Original"
	LabelMaxSharpe     = "Max Sharpe"
	LabelMinVolatility = "Min Volatility"
)

// Evaluation is the risk/return summary of an allocation as supplied.
type Evaluation struct {
	Portfolio portfolios.Portfolio `json:"portfolio"`
	Since     string               `json:"since"`
	Start     string               `json:"start"`
	End       string               `json:"end"`
	Days      int                  `json:"days"`
	Metrics   returns.Metrics      `json:"metrics"`
}

// Allocation is one weighting of the portfolio's assets and its metrics.
type Allocation struct {
	Label      string                     `json:"label"`
	Weights    []optimization.AssetWeight `json:"weights"`
	Metrics    returns.Metrics            `json:"metrics"`
	Converged  bool                       `json:"converged"`
	Status     string                     `json:"status,omitempty"`
	Iterations int                        `json:"iterations,omitempty"`
	// Fallback is set when optimisation failed and Weights are the
	// supplied allocation instead. Error says why.
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Allocations groups the supplied allocation with the two optimised ones.
type Allocations struct {
	Original      Allocation `json:"original"`
	MaxSharpe     Allocation `json:"max_sharpe"`
	MinVolatility Allocation `json:"min_volatility"`
}

// All returns the allocations in display order.
func (a Allocations) All() []Allocation {
	return []Allocation{a.Original, a.MaxSharpe, a.MinVolatility}
}

// Benchmark summarises the reference index over the same window.
type Benchmark struct {
	Ticker  string          `json:"ticker"`
	Metrics returns.Metrics `json:"metrics"`
}

// Point is one dated value of a performance series.
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Series is the cumulative return of one allocation or of the benchmark.
type Series struct {
	Label  string  `json:"label"`
	Points []Point `json:"points"`
}

// Report is the full comparison of a portfolio against its optimised
// variants and the benchmark.
type Report struct {
	ID          string               `json:"id"`
	Portfolio   portfolios.Portfolio `json:"portfolio"`
	Since       string               `json:"since"`
	GeneratedAt time.Time            `json:"generated_at"`
	Allocations Allocations          `json:"allocations"`
	Benchmark   *Benchmark           `json:"benchmark,omitempty"`
	Performance []Series             `json:"performance"`
}

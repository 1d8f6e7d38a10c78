package optimization

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/allocator/internal/modules/returns"
)

// ReportPrecision is the number of decimal places reported for weights and metrics.
const ReportPrecision = 4

// Settings tunes the solver.
type Settings struct {
	MaxIterations      int
	GradientThreshold  float64
	FunctionTolerance  float64
	Runtime            time.Duration // zero means unbounded
	TradingDaysPerYear int
	// Observer, when set, receives every accepted iterate.
	Observer func(Progress)
}

// DefaultSettings returns the tolerances used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:      1000,
		GradientThreshold:  1e-9,
		FunctionTolerance:  1e-12,
		TradingDaysPerYear: returns.DefaultTradingDaysPerYear,
	}
}

// AssetWeight is the weight of one asset in an allocation.
type AssetWeight struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
}

// Progress reports one accepted iterate of a running optimisation.
type Progress struct {
	Objective Objective     `json:"objective"`
	Iteration int           `json:"iteration"`
	Loss      float64       `json:"loss"`
	Weights   []AssetWeight `json:"weights"`
}

// Result is the outcome of one optimisation. Weights follow the column order
// of the returns matrix and, like Metrics, are rounded to ReportPrecision.
type Result struct {
	Objective  Objective       `json:"objective"`
	Weights    []AssetWeight   `json:"weights"`
	Metrics    returns.Metrics `json:"metrics"`
	Converged  bool            `json:"converged"`
	Status     string          `json:"status"`
	Iterations int             `json:"iterations"`
}

// WeightMap returns the weights keyed by ticker.
func (r *Result) WeightMap() map[string]float64 {
	out := make(map[string]float64, len(r.Weights))
	for _, w := range r.Weights {
		out[w.Ticker] = w.Weight
	}
	return out
}

// Optimizer finds long-only, fully invested allocations.
type Optimizer struct {
	settings Settings
	calc     returns.Calculator
	log      zerolog.Logger
}

// NewOptimizer creates an optimizer. Zero-valued settings take their defaults.
func NewOptimizer(settings Settings, log zerolog.Logger) *Optimizer {
	defaults := DefaultSettings()
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = defaults.MaxIterations
	}
	if settings.GradientThreshold <= 0 {
		settings.GradientThreshold = defaults.GradientThreshold
	}
	if settings.FunctionTolerance <= 0 {
		settings.FunctionTolerance = defaults.FunctionTolerance
	}
	return &Optimizer{
		settings: settings,
		calc:     returns.NewCalculator(settings.TradingDaysPerYear),
		log:      log.With().Str("component", "optimizer").Logger(),
	}
}

// WithObserver returns a copy of o that reports progress to fn.
func (o *Optimizer) WithObserver(fn func(Progress)) *Optimizer {
	cp := *o
	cp.settings.Observer = fn
	return &cp
}

// Calculator returns the metric calculator the optimizer reports with.
func (o *Optimizer) Calculator() returns.Calculator {
	return o.calc
}

// Optimize searches the weight simplex for the allocation minimising the loss
// of objective over m, starting from equal weights.
//
// The search is deterministic. When it stops before converging the best
// iterate is still returned with Converged set to false.
func (o *Optimizer) Optimize(ctx context.Context, m *returns.ReturnsMatrix, objective Objective) (*Result, error) {
	objective, err := ParseObjective(string(objective))
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &returns.InsufficientDataError{Observations: 0, Required: 1}
	}

	loss, err := NewLoss(objective, m, o.calc)
	if err != nil {
		return nil, err
	}

	tickers := m.Tickers()
	n := len(tickers)
	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	solver := SimplexSolver{
		MaxIterations:     o.settings.MaxIterations,
		GradientThreshold: o.settings.GradientThreshold,
		FunctionTolerance: o.settings.FunctionTolerance,
		Runtime:           o.settings.Runtime,
	}
	if observe := o.settings.Observer; observe != nil {
		solver.Recorder = func(it Iterate) {
			observe(Progress{
				Objective: objective,
				Iteration: it.Iteration,
				Loss:      it.F,
				Weights:   labelWeights(tickers, it.X),
			})
		}
	}

	result, err := solver.Minimize(ctx, optimize.Problem{
		Func: loss.Evaluate,
		Grad: loss.Gradient,
	}, initial)
	if err != nil {
		o.log.Error().Err(err).Str("objective", string(objective)).Msg("Optimization aborted")
		return nil, fmt.Errorf("%s optimization failed: %w", objective, err)
	}

	metrics, err := o.calc.RiskMetrics(m, result.X)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate optimal weights: %w", err)
	}

	converged := isConverged(result.Status)
	event := o.log.Debug()
	if !converged {
		event = o.log.Warn()
	}
	event.
		Str("objective", string(objective)).
		Int("assets", n).
		Int("iterations", result.MajorIterations).
		Int("evaluations", result.FuncEvaluations).
		Str("status", result.Status.String()).
		Dur("runtime", result.Runtime).
		Msg("Optimization finished")

	return &Result{
		Objective:  objective,
		Weights:    labelWeights(tickers, RoundWeights(result.X, ReportPrecision)),
		Metrics:    metrics.Round(ReportPrecision),
		Converged:  converged,
		Status:     result.Status.String(),
		Iterations: result.MajorIterations,
	}, nil
}

func isConverged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.StepConvergence:
		return true
	default:
		return false
	}
}

func labelWeights(tickers []string, weights []float64) []AssetWeight {
	out := make([]AssetWeight, len(tickers))
	for i, t := range tickers {
		out[i] = AssetWeight{Ticker: t, Weight: weights[i]}
	}
	return out
}

// RoundWeights rounds non-negative weights to the given decimal places while
// preserving their total: units lost to truncation go to the weights with the
// largest remainders, ties to the earlier asset.
func RoundWeights(weights []float64, places int) []float64 {
	scale := math.Pow10(places)
	total := int64(math.Round(floats.Sum(weights) * scale))

	units := make([]int64, len(weights))
	remainders := make([]float64, len(weights))
	order := make([]int, len(weights))
	var assigned int64
	for i, w := range weights {
		scaled := math.Max(w, 0) * scale
		units[i] = int64(math.Floor(scaled))
		remainders[i] = scaled - float64(units[i])
		order[i] = i
		assigned += units[i]
	}

	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(remainders[b], remainders[a])
	})
	for k := 0; assigned < total && k < len(order); k++ {
		units[order[k]]++
		assigned++
	}

	out := make([]float64, len(weights))
	for i, u := range units {
		out[i] = float64(u) / scale
	}
	return out
}

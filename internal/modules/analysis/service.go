// Package analysis evaluates portfolios and compares them with their
// maximum-Sharpe and minimum-volatility reallocations.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/portfolios"
	"github.com/aristath/allocator/internal/modules/returns"
	"github.com/aristath/allocator/internal/utils"
)

// PriceSource supplies aligned price tables.
type PriceSource interface {
	Load(ctx context.Context, tickers []string, since time.Time) (*returns.PriceTable, error)
}

// Config holds the analysis defaults.
type Config struct {
	// Benchmark is the index ticker compared against; empty disables it.
	Benchmark string
	// DefaultSince is used when a request gives no start date.
	DefaultSince time.Time
}

// Service runs evaluations and comparisons.
type Service struct {
	prices    PriceSource
	optimizer *optimization.Optimizer
	cfg       Config
	log       zerolog.Logger
}

// NewService creates an analysis service.
func NewService(prices PriceSource, optimizer *optimization.Optimizer, cfg Config, log zerolog.Logger) *Service {
	return &Service{
		prices:    prices,
		optimizer: optimizer,
		cfg:       cfg,
		log:       log.With().Str("service", "analysis").Logger(),
	}
}

// Evaluate computes the metrics of portfolio as supplied.
func (s *Service) Evaluate(ctx context.Context, portfolio portfolios.Portfolio, since time.Time) (*Evaluation, error) {
	since = s.since(since)
	_, m, err := s.returnsFor(ctx, portfolio, since)
	if err != nil {
		return nil, err
	}

	metrics, err := s.optimizer.Calculator().RiskMetrics(m, weightsFor(portfolio, m.Tickers()))
	if err != nil {
		return nil, err
	}

	dates := m.Dates()
	return &Evaluation{
		Portfolio: portfolio,
		Since:     utils.FormatDate(since),
		Start:     utils.FormatDate(dates[0]),
		End:       utils.FormatDate(dates[len(dates)-1]),
		Days:      m.Rows(),
		Metrics:   metrics.Round(optimization.ReportPrecision),
	}, nil
}

// Compare evaluates portfolio, optimises it for both objectives and
// measures the benchmark over the same window.
//
// An optimisation that fails falls back to the supplied weights and is
// flagged on its allocation; only data problems fail the comparison.
func (s *Service) Compare(ctx context.Context, portfolio portfolios.Portfolio, since time.Time) (*Report, error) {
	timer := utils.NewTimer("compare_portfolio", s.log)
	since = s.since(since)

	table, m, err := s.returnsFor(ctx, portfolio, since)
	if err != nil {
		return nil, err
	}
	tickers := m.Tickers()
	calc := s.optimizer.Calculator()

	originalWeights := weightsFor(portfolio, tickers)
	originalMetrics, err := calc.RiskMetrics(m, originalWeights)
	if err != nil {
		return nil, err
	}
	original := Allocation{
		Label:     LabelOriginal,
		Weights:   labelled(tickers, originalWeights),
		Metrics:   originalMetrics.Round(optimization.ReportPrecision),
		Converged: true,
	}

	report := &Report{
		ID:          uuid.NewString(),
		Portfolio:   portfolio,
		Since:       utils.FormatDate(since),
		GeneratedAt: time.Now().UTC(),
	}
	report.Allocations.Original = original

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.Allocations.MaxSharpe = s.optimise(gctx, m, optimization.MaxSharpe, LabelMaxSharpe, original)
		return nil
	})
	g.Go(func() error {
		report.Allocations.MinVolatility = s.optimise(gctx, m, optimization.MinVolatility, LabelMinVolatility, original)
		return nil
	})

	var benchmarkSeries *Series
	if s.cfg.Benchmark != "" {
		g.Go(func() error {
			report.Benchmark, benchmarkSeries = s.benchmark(gctx, since)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, a := range report.Allocations.All() {
		series, err := performance(m, table.Dates()[0], a)
		if err != nil {
			return nil, err
		}
		report.Performance = append(report.Performance, series)
	}
	if benchmarkSeries != nil {
		report.Performance = append(report.Performance, *benchmarkSeries)
	}

	timer.StopWithFields(map[string]interface{}{
		"portfolio": portfolio.Name,
		"assets":    len(tickers),
		"days":      m.Rows(),
	})

	return report, nil
}

func (s *Service) optimise(ctx context.Context, m *returns.ReturnsMatrix, objective optimization.Objective, label string, original Allocation) Allocation {
	result, err := s.optimizer.Optimize(ctx, m, objective)
	if err != nil {
		s.log.Warn().Err(err).Str("objective", string(objective)).Msg("Optimization failed, falling back to supplied weights")
		fallback := original
		fallback.Label = label
		fallback.Converged = false
		fallback.Fallback = true
		fallback.Error = err.Error()
		return fallback
	}

	return Allocation{
		Label:      label,
		Weights:    result.Weights,
		Metrics:    result.Metrics,
		Converged:  result.Converged,
		Status:     result.Status,
		Iterations: result.Iterations,
	}
}

// benchmark returns nil values when the benchmark cannot be measured; a
// missing index never fails the comparison.
func (s *Service) benchmark(ctx context.Context, since time.Time) (*Benchmark, *Series) {
	table, err := s.prices.Load(ctx, []string{s.cfg.Benchmark}, since)
	if err != nil {
		s.log.Warn().Err(err).Str("benchmark", s.cfg.Benchmark).Msg("Benchmark unavailable")
		return nil, nil
	}
	m, err := returns.DailyReturns(table)
	if err != nil {
		s.log.Warn().Err(err).Str("benchmark", s.cfg.Benchmark).Msg("Benchmark unavailable")
		return nil, nil
	}

	daily := m.Column(0)
	metrics := s.optimizer.Calculator().SeriesMetrics(daily).Round(optimization.ReportPrecision)
	series := Series{Label: s.cfg.Benchmark, Points: cumulativePoints(table.Dates()[0], m.Dates(), daily)}

	return &Benchmark{Ticker: s.cfg.Benchmark, Metrics: metrics}, &series
}

func (s *Service) returnsFor(ctx context.Context, portfolio portfolios.Portfolio, since time.Time) (*returns.PriceTable, *returns.ReturnsMatrix, error) {
	if err := portfolio.Validate(); err != nil {
		return nil, nil, err
	}

	table, err := s.prices.Load(ctx, portfolio.Tickers(), since)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load prices for %s: %w", portfolio.Name, err)
	}
	m, err := returns.DailyReturns(table)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute returns for %s: %w", portfolio.Name, err)
	}
	return table, m, nil
}

func (s *Service) since(since time.Time) time.Time {
	if since.IsZero() {
		return s.cfg.DefaultSince
	}
	return since
}

// performance is the cumulative return of an allocation, starting at 0 on
// base, the price date preceding the first return.
func performance(m *returns.ReturnsMatrix, base time.Time, a Allocation) (Series, error) {
	weights := make([]float64, len(a.Weights))
	for i, w := range a.Weights {
		weights[i] = w.Weight
	}
	p, err := returns.PortfolioReturn(m, weights)
	if err != nil {
		return Series{}, err
	}
	return Series{Label: a.Label, Points: cumulativePoints(base, m.Dates(), p)}, nil
}

func cumulativePoints(base time.Time, dates []time.Time, daily []float64) []Point {
	points := make([]Point, 0, len(daily)+1)
	points = append(points, Point{Date: utils.FormatDate(base), Value: 0})
	for t, v := range returns.CumulativeSeries(daily) {
		points = append(points, Point{Date: utils.FormatDate(dates[t]), Value: v})
	}
	return points
}

func weightsFor(p portfolios.Portfolio, tickers []string) []float64 {
	byTicker := make(map[string]float64, len(p.Holdings))
	for _, h := range p.Holdings {
		byTicker[h.Ticker] = h.Weight
	}
	out := make([]float64, len(tickers))
	for i, t := range tickers {
		out[i] = byTicker[t]
	}
	return out
}

func labelled(tickers []string, weights []float64) []optimization.AssetWeight {
	out := make([]optimization.AssetWeight, len(tickers))
	for i, t := range tickers {
		out[i] = optimization.AssetWeight{Ticker: t, Weight: weights[i]}
	}
	return out
}

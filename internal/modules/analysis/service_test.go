package analysis

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/portfolios"
	"github.com/aristath/allocator/internal/modules/returns"
)

var epoch = time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

// fakePrices serves in-memory series through returns.Align.
type fakePrices struct {
	mu     sync.Mutex
	series map[string][]float64
	sinces []time.Time
}

func (f *fakePrices) Load(_ context.Context, tickers []string, since time.Time) (*returns.PriceTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinces = append(f.sinces, since)

	all := make([]returns.PriceSeries, 0, len(tickers))
	for _, ticker := range tickers {
		s := returns.PriceSeries{Ticker: ticker}
		for i, c := range f.series[ticker] {
			d := epoch.AddDate(0, 0, i)
			if !d.Before(since) {
				s.Points = append(s.Points, returns.PricePoint{Date: d, Close: c})
			}
		}
		all = append(all, s)
	}
	return returns.Align(all...)
}

// walk turns daily returns into a price path starting at 100.
func walk(n int, r func(float64) float64) []float64 {
	prices := []float64{100}
	for i := 0; i < n; i++ {
		prices = append(prices, prices[i]*(1+r(float64(i))))
	}
	return prices
}

func syntheticPrices() *fakePrices {
	return &fakePrices{series: map[string][]float64{
		"AAA":   walk(120, func(x float64) float64 { return 0.0010 + 0.020*math.Sin(0.7*x) }),
		"BBB":   walk(120, func(x float64) float64 { return 0.0005 + 0.010*math.Sin(1.3*x+1) }),
		"CCC":   walk(120, func(x float64) float64 { return 0.0008 + 0.015*math.Cos(0.4*x) }),
		"DDD":   walk(120, func(x float64) float64 { return 0.0002 + 0.005*math.Sin(2.1*x+0.5) }),
		"^GSPC": walk(120, func(x float64) float64 { return 0.0004 + 0.008*math.Sin(0.9*x+2) }),
	}}
}

func newService(prices PriceSource, benchmark string) *Service {
	return NewService(
		prices,
		optimization.NewOptimizer(optimization.DefaultSettings(), zerolog.Nop()),
		Config{Benchmark: benchmark, DefaultSince: epoch},
		zerolog.Nop(),
	)
}

func mustPortfolio(t *testing.T, tickers []string, weights []float64) portfolios.Portfolio {
	t.Helper()
	p, err := portfolios.New("Test", tickers, weights)
	require.NoError(t, err)
	return p
}

func TestEvaluate_EqualWeightExample(t *testing.T) {
	prices := &fakePrices{series: map[string][]float64{
		"A": {100, 101, 99.99, 101.9898},
		"B": {100, 100, 101, 102.01},
	}}
	svc := newService(prices, "")

	eval, err := svc.Evaluate(context.Background(), mustPortfolio(t, []string{"A", "B"}, []float64{0.5, 0.5}), time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 3, eval.Days)
	assert.Equal(t, "2019-01-02", eval.Start)
	assert.Equal(t, "2019-01-04", eval.End)
	assert.Equal(t, "2019-01-01", eval.Since)
	assert.InDelta(t, 1.68, eval.Metrics.AnnualReturn, 1e-9)
	assert.InDelta(t, 0.099, eval.Metrics.Volatility, 1e-9)
	assert.InDelta(t, 16.9706, eval.Metrics.Sharpe.Float64(), 1e-9)

	require.Len(t, prices.sinces, 1)
	assert.Equal(t, epoch, prices.sinces[0])
}

func TestCompare(t *testing.T) {
	prices := syntheticPrices()
	svc := newService(prices, "^GSPC")
	portfolio := mustPortfolio(t, []string{"AAA", "BBB", "CCC", "DDD"}, []float64{0.4, 0.3, 0.2, 0.1})

	report, err := svc.Compare(context.Background(), portfolio, time.Time{})
	require.NoError(t, err)

	_, err = uuid.Parse(report.ID)
	assert.NoError(t, err)
	assert.Equal(t, portfolio, report.Portfolio)

	original := report.Allocations.Original
	assert.Equal(t, LabelOriginal, original.Label)
	assert.False(t, original.Fallback)
	assert.Equal(t, 0.4, original.Weights[0].Weight)

	for _, a := range []Allocation{report.Allocations.MaxSharpe, report.Allocations.MinVolatility} {
		assert.False(t, a.Fallback, a.Label)
		sum := 0.0
		for _, w := range a.Weights {
			sum += w.Weight
		}
		assert.InDelta(t, 1.0, sum, 1e-4, a.Label)
	}
	assert.LessOrEqual(t, report.Allocations.MinVolatility.Metrics.Volatility, original.Metrics.Volatility+1e-4)
	assert.GreaterOrEqual(t, report.Allocations.MaxSharpe.Metrics.Sharpe.Float64(), original.Metrics.Sharpe.Float64()-1e-4)

	require.NotNil(t, report.Benchmark)
	assert.Equal(t, "^GSPC", report.Benchmark.Ticker)

	require.Len(t, report.Performance, 4)
	labels := []string{LabelOriginal, LabelMaxSharpe, LabelMinVolatility, "^GSPC"}
	for i, series := range report.Performance {
		assert.Equal(t, labels[i], series.Label)
		require.Len(t, series.Points, 121)
		assert.Equal(t, Point{Date: "2019-01-01", Value: 0}, series.Points[0])
	}
}

func TestCompare_WithoutBenchmarkData(t *testing.T) {
	prices := syntheticPrices()
	delete(prices.series, "^GSPC")
	svc := newService(prices, "^GSPC")

	report, err := svc.Compare(context.Background(), mustPortfolio(t, []string{"AAA", "DDD"}, []float64{0.5, 0.5}), time.Time{})
	require.NoError(t, err)

	assert.Nil(t, report.Benchmark)
	assert.Len(t, report.Performance, 3)
}

func TestCompare_FallsBackWhenOptimizationFails(t *testing.T) {
	// Returns of order 1e200 overflow the variance.
	prices := &fakePrices{series: map[string][]float64{
		"WILD": {1, 1e200, 1, 1e200},
		"CALM": {10, 11, 12, 13},
	}}
	svc := newService(prices, "")
	portfolio := mustPortfolio(t, []string{"WILD", "CALM"}, []float64{0.5, 0.5})

	report, err := svc.Compare(context.Background(), portfolio, time.Time{})
	require.NoError(t, err)

	for _, a := range []Allocation{report.Allocations.MaxSharpe, report.Allocations.MinVolatility} {
		assert.True(t, a.Fallback, a.Label)
		assert.False(t, a.Converged, a.Label)
		assert.Contains(t, a.Error, "diverged", a.Label)
		assert.Equal(t, report.Allocations.Original.Weights, a.Weights, a.Label)
	}
}

func TestCompare_DataErrors(t *testing.T) {
	prices := syntheticPrices()
	prices.series["FLAT"] = []float64{5, 5, 5, 5}
	svc := newService(prices, "")

	_, err := svc.Compare(context.Background(), mustPortfolio(t, []string{"AAA", "FLAT", "NONE"}, []float64{0.4, 0.3, 0.3}), time.Time{})
	require.Error(t, err)
	var missing *returns.MissingPriceHistoryError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"FLAT", "NONE"}, missing.Tickers)

	_, err = svc.Evaluate(context.Background(), portfolios.Portfolio{Name: "bad", Holdings: []portfolios.Holding{{Ticker: "AAA", Weight: 0.5}}}, time.Time{})
	assert.ErrorIs(t, err, portfolios.ErrWeightSum)
}

func TestCompare_UsesRequestedWindow(t *testing.T) {
	prices := syntheticPrices()
	svc := newService(prices, "^GSPC")
	since := epoch.AddDate(0, 0, 100)

	report, err := svc.Compare(context.Background(), mustPortfolio(t, []string{"AAA", "BBB"}, []float64{0.5, 0.5}), since)
	require.NoError(t, err)

	assert.Equal(t, "2019-04-11", report.Since)
	assert.Len(t, report.Performance[0].Points, 21)
	for _, s := range prices.sinces {
		assert.Equal(t, since, s)
	}
}

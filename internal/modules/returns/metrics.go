package returns

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/pkg/formulas"
)

// DefaultTradingDaysPerYear annualises daily figures for equity markets.
const DefaultTradingDaysPerYear = formulas.DefaultPeriodsPerYear

// SharpeRatio is annual return over volatility. Valid is false when the
// volatility is exactly zero and the ratio is undefined.
type SharpeRatio struct {
	Ratio float64
	Valid bool
}

// NewSharpeRatio divides annualReturn by volatility, or returns an undefined
// ratio when volatility is exactly zero.
func NewSharpeRatio(annualReturn, volatility float64) SharpeRatio {
	if volatility == 0 {
		return SharpeRatio{}
	}
	return SharpeRatio{Ratio: annualReturn / volatility, Valid: true}
}

// Value returns the ratio and whether it is defined.
func (s SharpeRatio) Value() (float64, bool) {
	return s.Ratio, s.Valid
}

// Float64 returns the ratio, or 0 when it is undefined.
func (s SharpeRatio) Float64() float64 {
	if !s.Valid {
		return 0
	}
	return s.Ratio
}

// MarshalJSON encodes an undefined ratio as null.
func (s SharpeRatio) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Ratio)
}

// UnmarshalJSON accepts a number or null.
func (s *SharpeRatio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = SharpeRatio{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = SharpeRatio{Ratio: v, Valid: true}
	return nil
}

// Metrics is the risk/return summary of a daily return series.
type Metrics struct {
	AnnualReturn float64     `json:"annual_return"`
	Volatility   float64     `json:"volatility"`
	Sharpe       SharpeRatio `json:"sharpe_ratio"`
}

// Round rounds every figure to the given number of decimal places.
func (m Metrics) Round(places int) Metrics {
	out := Metrics{
		AnnualReturn: scalar.Round(m.AnnualReturn, places),
		Volatility:   scalar.Round(m.Volatility, places),
		Sharpe:       m.Sharpe,
	}
	if out.Sharpe.Valid {
		out.Sharpe.Ratio = scalar.Round(out.Sharpe.Ratio, places)
	}
	return out
}

// PortfolioReturn returns the weighted sum of each row of m.
func PortfolioReturn(m *ReturnsMatrix, weights []float64) ([]float64, error) {
	if len(weights) != m.Cols() {
		return nil, &DimensionMismatchError{Weights: len(weights), Assets: m.Cols()}
	}

	w := mat.NewVecDense(len(weights), append([]float64(nil), weights...))
	var p mat.VecDense
	p.MulVec(m.data, w)

	out := make([]float64, m.Rows())
	for t := range out {
		out[t] = p.AtVec(t)
	}
	return out, nil
}

// Calculator turns daily returns into annualised metrics.
type Calculator struct {
	TradingDaysPerYear float64
}

// NewCalculator creates a calculator for a market calendar. Non-positive
// values fall back to DefaultTradingDaysPerYear.
func NewCalculator(tradingDaysPerYear int) Calculator {
	if tradingDaysPerYear <= 0 {
		tradingDaysPerYear = DefaultTradingDaysPerYear
	}
	return Calculator{TradingDaysPerYear: float64(tradingDaysPerYear)}
}

// RiskMetrics evaluates the portfolio defined by weights over m.
//
// Annual return is mean(portfolio return) × days; volatility is the
// population standard deviation × sqrt(days).
func (c Calculator) RiskMetrics(m *ReturnsMatrix, weights []float64) (Metrics, error) {
	p, err := PortfolioReturn(m, weights)
	if err != nil {
		return Metrics{}, err
	}
	return c.SeriesMetrics(p), nil
}

// SeriesMetrics evaluates a single daily return series.
func (c Calculator) SeriesMetrics(daily []float64) Metrics {
	days := c.days()
	annual := formulas.AnnualizedMean(daily, days)
	vol := formulas.AnnualizedVolatility(daily, days)
	return Metrics{
		AnnualReturn: annual,
		Volatility:   vol,
		Sharpe:       NewSharpeRatio(annual, vol),
	}
}

// SqrtDays returns sqrt(TradingDaysPerYear).
func (c Calculator) SqrtDays() float64 {
	return math.Sqrt(c.days())
}

// Days returns the annualisation factor in use.
func (c Calculator) Days() float64 {
	return c.days()
}

func (c Calculator) days() float64 {
	if c.TradingDaysPerYear <= 0 {
		return DefaultTradingDaysPerYear
	}
	return c.TradingDaysPerYear
}

// RiskMetrics evaluates weights over m with DefaultTradingDaysPerYear.
func RiskMetrics(m *ReturnsMatrix, weights []float64) (Metrics, error) {
	return NewCalculator(DefaultTradingDaysPerYear).RiskMetrics(m, weights)
}

// Package formulas holds the small statistical building blocks shared by the
// returns engine and the command line tools.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultPeriodsPerYear is the number of trading days used to annualise daily figures.
const DefaultPeriodsPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// PopStdDev calculates the population standard deviation (divisor N, not N-1).
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(data, nil)
	return std
}

// AnnualizedMean scales the mean of periodic returns to a yearly figure.
// Formula: mean(returns) × periodsPerYear
func AnnualizedMean(returns []float64, periodsPerYear float64) float64 {
	return Mean(returns) * periodsPerYear
}

// AnnualizedVolatility scales the population standard deviation of periodic
// returns to a yearly figure.
// Formula: popstd(returns) × sqrt(periodsPerYear)
func AnnualizedVolatility(returns []float64, periodsPerYear float64) float64 {
	return PopStdDev(returns) * math.Sqrt(periodsPerYear)
}

// PercentChange converts a price pair into a simple return.
// The result is NaN or ±Inf when previous is zero; callers drop those rows.
func PercentChange(previous, current float64) float64 {
	return current/previous - 1
}

// CalculateReturns converts prices to simple returns.
// Returns[i] = Price[i+1]/Price[i] - 1
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = PercentChange(prices[i-1], prices[i])
	}
	return returns
}

// CompoundStep advances a cumulative return by one periodic return.
// Formula: (1 + cumulative) × (1 + r) - 1
func CompoundStep(cumulative, r float64) float64 {
	return (1+cumulative)*(1+r) - 1
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPopStdDev(t *testing.T) {
	tests := []struct {
		name     string
		data     []float64
		expected float64
	}{
		{"empty", []float64{}, 0},
		{"single value", []float64{0.01}, 0},
		{"constant", []float64{0.02, 0.02, 0.02}, 0},
		{"population divisor", []float64{0.005, 0.0, 0.015}, math.Sqrt(1050.0/27.0) / 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, PopStdDev(tt.data), 1e-15)
		})
	}
}

func TestAnnualizedMeanAndVolatility(t *testing.T) {
	returns := []float64{0.005, 0.0, 0.015}

	assert.InDelta(t, 1.68, AnnualizedMean(returns, DefaultPeriodsPerYear), 1e-12)
	assert.InDelta(t, math.Sqrt(9800)/1000, AnnualizedVolatility(returns, DefaultPeriodsPerYear), 1e-12)
}

func TestCalculateReturns(t *testing.T) {
	assert.Empty(t, CalculateReturns([]float64{100}))

	returns := CalculateReturns([]float64{100, 110, 99})
	assert.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)

	zeroBase := CalculateReturns([]float64{0, 10})
	assert.False(t, IsFinite(zeroBase[0]))
}

func TestCompoundStep(t *testing.T) {
	cumulative := 0.0
	for _, r := range []float64{0.10, -0.10} {
		cumulative = CompoundStep(cumulative, r)
	}
	assert.InDelta(t, -0.01, cumulative, 1e-12)
}

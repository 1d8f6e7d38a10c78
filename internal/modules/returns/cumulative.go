package returns

import (
	"iter"

	"github.com/aristath/allocator/pkg/formulas"
)

// CumulativeReturn yields, for every row of m, the running product of
// (1 + daily return) minus 1 for each asset. The recurrence is seeded with 0
// at the base day that DailyReturns dropped, so row 0 equals the first daily
// return. The 0 at the base day itself is not yielded; callers that chart
// from the base date prepend it. The sequence is recomputed on every range,
// so it can be restarted.
func CumulativeReturn(m *ReturnsMatrix) iter.Seq2[int, []float64] {
	return func(yield func(int, []float64) bool) {
		cols := m.Cols()
		running := make([]float64, cols)
		for t := 0; t < m.Rows(); t++ {
			row := make([]float64, cols)
			for i := 0; i < cols; i++ {
				running[i] = formulas.CompoundStep(running[i], m.At(t, i))
				row[i] = running[i]
			}
			if !yield(t, row) {
				return
			}
		}
	}
}

// CumulativeSeries is CumulativeReturn for a single return series, such as a
// portfolio's daily returns.
func CumulativeSeries(daily []float64) iter.Seq2[int, float64] {
	return func(yield func(int, float64) bool) {
		running := 0.0
		for t, r := range daily {
			running = formulas.CompoundStep(running, r)
			if !yield(t, running) {
				return
			}
		}
	}
}

// Cumulative collects CumulativeSeries into a slice.
func Cumulative(daily []float64) []float64 {
	out := make([]float64, 0, len(daily))
	for _, v := range CumulativeSeries(daily) {
		out = append(out, v)
	}
	return out
}

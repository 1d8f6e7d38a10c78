package returns

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/pkg/formulas"
)

// ReturnsMatrix holds daily simple returns, one row per trading day and one
// column per asset. It is read-only once built.
type ReturnsMatrix struct {
	tickers []string
	dates   []time.Time
	data    *mat.Dense
}

// NewReturnsMatrix builds a matrix from rows of daily returns.
// Every row must have one entry per ticker and every entry must be finite.
func NewReturnsMatrix(tickers []string, rows [][]float64) (*ReturnsMatrix, error) {
	return newReturnsMatrix(tickers, nil, rows)
}

func newReturnsMatrix(tickers []string, dates []time.Time, rows [][]float64) (*ReturnsMatrix, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("returns matrix needs at least one ticker")
	}
	if len(rows) == 0 {
		return nil, &InsufficientDataError{Observations: 0, Required: 1}
	}
	if dates != nil && len(dates) != len(rows) {
		return nil, fmt.Errorf("returns matrix has %d dates for %d rows", len(dates), len(rows))
	}

	data := mat.NewDense(len(rows), len(tickers), nil)
	for t, row := range rows {
		if len(row) != len(tickers) {
			return nil, &DimensionMismatchError{Weights: len(row), Assets: len(tickers)}
		}
		for i, v := range row {
			if !formulas.IsFinite(v) {
				return nil, fmt.Errorf("non-finite return for %s on row %d", tickers[i], t)
			}
		}
		data.SetRow(t, row)
	}

	m := &ReturnsMatrix{
		tickers: append([]string(nil), tickers...),
		data:    data,
	}
	if dates != nil {
		m.dates = append([]time.Time(nil), dates...)
	}
	return m, nil
}

// DailyReturns converts a price table into daily simple returns:
// r(t, i) = price(t, i) / price(t-1, i) - 1.
//
// The leading row has no prior day and is dropped, as is any row holding an
// unresolved value. Every asset needs at least two usable prices.
func DailyReturns(prices *PriceTable) (*ReturnsMatrix, error) {
	rows, cols := prices.Rows(), prices.Cols()

	for j := 0; j < cols; j++ {
		usable := 0
		for t := 0; t < rows; t++ {
			if v := prices.At(t, j); formulas.IsFinite(v) && v > 0 {
				usable++
			}
		}
		if usable < minPriceObservations {
			return nil, &InsufficientDataError{
				Ticker:       prices.tickers[j],
				Observations: usable,
				Required:     minPriceObservations,
			}
		}
	}

	columns := make([][]float64, cols)
	for j := range columns {
		columns[j] = formulas.CalculateReturns(prices.Column(j))
	}

	var (
		out   [][]float64
		dates []time.Time
	)
	for t := 1; t < rows; t++ {
		row := make([]float64, cols)
		resolved := true
		for j := 0; j < cols; j++ {
			row[j] = columns[j][t-1]
			if !formulas.IsFinite(row[j]) {
				resolved = false
				break
			}
		}
		if !resolved {
			continue
		}
		out = append(out, row)
		dates = append(dates, prices.dates[t])
	}

	if len(out) == 0 {
		return nil, &InsufficientDataError{Observations: 0, Required: 1}
	}

	return newReturnsMatrix(prices.tickers, dates, out)
}

// Rows returns the number of trading days.
func (m *ReturnsMatrix) Rows() int {
	r, _ := m.data.Dims()
	return r
}

// Cols returns the number of assets.
func (m *ReturnsMatrix) Cols() int {
	_, c := m.data.Dims()
	return c
}

// Tickers returns the asset identifiers in column order.
func (m *ReturnsMatrix) Tickers() []string {
	return append([]string(nil), m.tickers...)
}

// Dates returns the row dates, or nil when the matrix was built without them.
func (m *ReturnsMatrix) Dates() []time.Time {
	if m.dates == nil {
		return nil
	}
	return append([]time.Time(nil), m.dates...)
}

// At returns the return of asset i on day t.
func (m *ReturnsMatrix) At(t, i int) float64 {
	return m.data.At(t, i)
}

// Row returns a copy of day t.
func (m *ReturnsMatrix) Row(t int) []float64 {
	return mat.Row(nil, t, m.data)
}

// Column returns a copy of the returns of asset i.
func (m *ReturnsMatrix) Column(i int) []float64 {
	return mat.Col(nil, i, m.data)
}

// ColumnMeans returns the mean daily return of every asset.
func (m *ReturnsMatrix) ColumnMeans() []float64 {
	means := make([]float64, m.Cols())
	for i := range means {
		means[i] = formulas.Mean(m.Column(i))
	}
	return means
}

// Matrix exposes the underlying data for read-only linear algebra.
// Callers must not modify it.
func (m *ReturnsMatrix) Matrix() mat.Matrix {
	return m.data
}

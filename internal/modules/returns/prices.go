package returns

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/allocator/pkg/formulas"
)

// minPriceObservations is the smallest number of prices that yields one return.
const minPriceObservations = 2

// PricePoint is a single closing price.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// PriceSeries is the price history of one ticker.
type PriceSeries struct {
	Ticker string       `json:"ticker"`
	Points []PricePoint `json:"points"`
}

// PriceTable holds date-aligned closing prices, one column per ticker.
// It is read-only once built.
type PriceTable struct {
	dates   []time.Time
	tickers []string
	prices  *mat.Dense
}

// NewPriceTable builds a table from already aligned columns.
// columns[i] holds the prices of tickers[i], one entry per date.
func NewPriceTable(dates []time.Time, tickers []string, columns [][]float64) (*PriceTable, error) {
	if len(tickers) == 0 {
		return nil, fmt.Errorf("price table needs at least one ticker")
	}
	if len(columns) != len(tickers) {
		return nil, fmt.Errorf("price table has %d columns for %d tickers", len(columns), len(tickers))
	}
	if len(dates) < minPriceObservations {
		return nil, &InsufficientDataError{Observations: len(dates), Required: minPriceObservations}
	}

	data := mat.NewDense(len(dates), len(tickers), nil)
	for j, column := range columns {
		if len(column) != len(dates) {
			return nil, fmt.Errorf("column %s has %d prices for %d dates", tickers[j], len(column), len(dates))
		}
		data.SetCol(j, column)
	}

	return &PriceTable{
		dates:   append([]time.Time(nil), dates...),
		tickers: append([]string(nil), tickers...),
		prices:  data,
	}, nil
}

// Align inner-joins several price series on their dates.
//
// Points are normalised to calendar days; when a day appears twice the later
// point wins. Non-finite and non-positive prices are dropped. A series whose
// distinct prices number one or fewer carries no real history and is rejected
// with a MissingPriceHistoryError naming every such ticker.
func Align(series ...PriceSeries) (*PriceTable, error) {
	if len(series) == 0 {
		return nil, &InsufficientDataError{Observations: 0, Required: minPriceObservations}
	}

	seen := make(map[string]bool, len(series))
	byTicker := make([]map[time.Time]float64, len(series))
	var missing []string

	for i, s := range series {
		if seen[s.Ticker] {
			return nil, fmt.Errorf("duplicate ticker %q", s.Ticker)
		}
		seen[s.Ticker] = true

		points := make(map[time.Time]float64, len(s.Points))
		distinct := make(map[float64]struct{})
		for _, p := range s.Points {
			if !formulas.IsFinite(p.Close) || p.Close <= 0 {
				continue
			}
			points[truncateToDay(p.Date)] = p.Close
		}
		for _, v := range points {
			distinct[v] = struct{}{}
		}
		if len(distinct) <= 1 {
			missing = append(missing, s.Ticker)
		}
		byTicker[i] = points
	}

	if len(missing) > 0 {
		return nil, &MissingPriceHistoryError{Tickers: missing}
	}

	var dates []time.Time
	for d := range byTicker[0] {
		shared := true
		for _, points := range byTicker[1:] {
			if _, ok := points[d]; !ok {
				shared = false
				break
			}
		}
		if shared {
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })

	if len(dates) < minPriceObservations {
		return nil, &InsufficientDataError{Observations: len(dates), Required: minPriceObservations}
	}

	tickers := make([]string, len(series))
	columns := make([][]float64, len(series))
	for i, s := range series {
		tickers[i] = s.Ticker
		column := make([]float64, len(dates))
		for t, d := range dates {
			column[t] = byTicker[i][d]
		}
		columns[i] = column
	}

	return NewPriceTable(dates, tickers, columns)
}

// Rows returns the number of dates.
func (p *PriceTable) Rows() int {
	r, _ := p.prices.Dims()
	return r
}

// Cols returns the number of tickers.
func (p *PriceTable) Cols() int {
	_, c := p.prices.Dims()
	return c
}

// Tickers returns the column identifiers in order.
func (p *PriceTable) Tickers() []string {
	return append([]string(nil), p.tickers...)
}

// Dates returns the row dates in ascending order.
func (p *PriceTable) Dates() []time.Time {
	return append([]time.Time(nil), p.dates...)
}

// At returns the price of column j on row t.
func (p *PriceTable) At(t, j int) float64 {
	return p.prices.At(t, j)
}

// Column returns a copy of the prices for column j.
func (p *PriceTable) Column(j int) []float64 {
	return mat.Col(nil, j, p.prices)
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

package returns

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func series(ticker string, closes ...float64) PriceSeries {
	points := make([]PricePoint, len(closes))
	for i, c := range closes {
		points[i] = PricePoint{Date: day(i), Close: c}
	}
	return PriceSeries{Ticker: ticker, Points: points}
}

func TestAlign_InnerJoinsOnDates(t *testing.T) {
	a := series("AAA", 100, 101, 102, 103)
	b := PriceSeries{Ticker: "BBB", Points: []PricePoint{
		{Date: day(3), Close: 53},
		{Date: day(1), Close: 51},
		{Date: day(2), Close: 52},
	}}

	table, err := Align(a, b)
	require.NoError(t, err)

	assert.Equal(t, 3, table.Rows())
	assert.Equal(t, []string{"AAA", "BBB"}, table.Tickers())
	assert.Equal(t, []time.Time{day(1), day(2), day(3)}, table.Dates())
	assert.Equal(t, []float64{101, 102, 103}, table.Column(0))
	assert.Equal(t, []float64{51, 52, 53}, table.Column(1))
}

func TestAlign_LaterDuplicateWins(t *testing.T) {
	a := PriceSeries{Ticker: "AAA", Points: []PricePoint{
		{Date: day(0), Close: 10},
		{Date: day(1), Close: 11},
		{Date: day(1).Add(15 * time.Hour), Close: 12},
	}}

	table, err := Align(a)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 12}, table.Column(0))
}

func TestAlign_DropsUnresolvedPrices(t *testing.T) {
	a := series("AAA", 100, math.NaN(), 102, -1, 104)

	table, err := Align(a)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 102, 104}, table.Column(0))
}

func TestAlign_RejectsFlatColumns(t *testing.T) {
	flat := series("FLAT", 10, 10, 10)
	empty := PriceSeries{Ticker: "NONE"}
	good := series("GOOD", 1, 2, 3)

	_, err := Align(good, flat, empty)
	require.Error(t, err)

	var missing *MissingPriceHistoryError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"FLAT", "NONE"}, missing.Tickers)
	assert.ErrorIs(t, err, ErrMissingPriceHistory)
	assert.Contains(t, err.Error(), "FLAT, NONE")
}

func TestAlign_TooFewSharedDates(t *testing.T) {
	a := PriceSeries{Ticker: "AAA", Points: []PricePoint{{Date: day(0), Close: 1}, {Date: day(1), Close: 2}}}
	b := PriceSeries{Ticker: "BBB", Points: []PricePoint{{Date: day(1), Close: 1}, {Date: day(2), Close: 2}}}

	_, err := Align(a, b)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestAlign_DuplicateTicker(t *testing.T) {
	_, err := Align(series("AAA", 1, 2), series("AAA", 3, 4))
	assert.Error(t, err)
}

func TestNewPriceTable_Validation(t *testing.T) {
	_, err := NewPriceTable([]time.Time{day(0)}, []string{"A"}, [][]float64{{1}})
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = NewPriceTable([]time.Time{day(0), day(1)}, []string{"A", "B"}, [][]float64{{1, 2}})
	assert.Error(t, err)

	_, err = NewPriceTable([]time.Time{day(0), day(1)}, []string{"A"}, [][]float64{{1, 2, 3}})
	assert.Error(t, err)
}

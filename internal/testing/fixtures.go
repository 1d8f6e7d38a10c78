package testing

import (
	"math"
	"time"

	"github.com/aristath/allocator/internal/modules/returns"
)

// WalkSeries builds a daily close series starting at 100 on start, where the
// return on day i is given by step(i).
func WalkSeries(ticker string, start time.Time, days int, step func(i int) float64) returns.PriceSeries {
	s := returns.PriceSeries{Ticker: ticker, Points: make([]returns.PricePoint, 0, days)}
	price := 100.0
	for i := 0; i < days; i++ {
		s.Points = append(s.Points, returns.PricePoint{Date: start.AddDate(0, 0, i), Close: price})
		price *= 1 + step(i)
	}
	return s
}

// SineSeries is a WalkSeries whose returns oscillate around drift.
// Distinct freq values give series that are not perfectly correlated.
func SineSeries(ticker string, start time.Time, days int, drift, amplitude, freq float64) returns.PriceSeries {
	return WalkSeries(ticker, start, days, func(i int) float64 {
		return drift + amplitude*math.Sin(float64(i)*freq)
	})
}

package returns

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInsufficientData is matched by every InsufficientDataError.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDimensionMismatch is matched by every DimensionMismatchError.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrMissingPriceHistory is matched by every MissingPriceHistoryError.
	ErrMissingPriceHistory = errors.New("missing price history")
)

// InsufficientDataError reports that too few observations are available to
// compute a return. Ticker is empty when the shortfall applies to the whole table.
type InsufficientDataError struct {
	Ticker       string
	Observations int
	Required     int
}

func (e *InsufficientDataError) Error() string {
	if e.Ticker == "" {
		return fmt.Sprintf("insufficient data: %d observations, need at least %d", e.Observations, e.Required)
	}
	return fmt.Sprintf("insufficient data for %s: %d observations, need at least %d", e.Ticker, e.Observations, e.Required)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// DimensionMismatchError reports a weight vector whose length differs from the
// number of asset columns.
type DimensionMismatchError struct {
	Weights int
	Assets  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %d weights for %d assets", e.Weights, e.Assets)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// MissingPriceHistoryError lists tickers whose series carry no real price
// history (every observation has the same value, or there are none).
type MissingPriceHistoryError struct {
	Tickers []string
}

func (e *MissingPriceHistoryError) Error() string {
	return "no prices found for these tickers: " + strings.Join(e.Tickers, ", ")
}

func (e *MissingPriceHistoryError) Unwrap() error { return ErrMissingPriceHistory }

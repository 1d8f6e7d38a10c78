package historical

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aristath/allocator/internal/modules/returns"
	"github.com/aristath/allocator/internal/utils"
)

// ReadWideCSV parses closing prices laid out one row per day:
//
//	date,AAPL,MSFT
//	2024-01-02,185.64,370.87
//
// Empty and NaN cells are missing observations and are skipped; the
// returns engine drops the day when aligning.
func ReadWideCSV(r io.Reader) ([]returns.PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty price file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("header needs a date column and at least one ticker")
	}

	series := make([]returns.PriceSeries, len(header)-1)
	for i, name := range header[1:] {
		ticker := strings.ToUpper(strings.TrimSpace(name))
		if ticker == "" {
			return nil, fmt.Errorf("column %d has no ticker", i+2)
		}
		series[i].Ticker = ticker
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read prices: %w", err)
		}
		line, _ := reader.FieldPos(0)

		date, err := utils.ParseDate(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		for i, cell := range record[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" || strings.EqualFold(cell, "nan") {
				continue
			}
			closePrice, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, %s: invalid price %q", line, series[i].Ticker, cell)
			}
			series[i].Points = append(series[i].Points, returns.PricePoint{Date: date, Close: closePrice})
		}
	}

	return series, nil
}

package historical

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/returns"
	testingpkg "github.com/aristath/allocator/internal/testing"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func priceSeries(ticker string, start int, closes ...float64) returns.PriceSeries {
	s := returns.PriceSeries{Ticker: ticker}
	for i, c := range closes {
		s.Points = append(s.Points, returns.PricePoint{Date: day(start + i), Close: c})
	}
	return s
}

func newRepository(t *testing.T) *PriceRepository {
	t.Helper()
	db := testingpkg.NewTestDB(t, "history")
	return NewPriceRepository(db.Conn(), zerolog.Nop())
}

func TestPriceRepository_UpsertAndSeries(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	n, err := repo.Upsert(ctx, priceSeries("AAPL", 0, 100, 101, 102))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Overwrite one day and append another.
	_, err = repo.Upsert(ctx, priceSeries("AAPL", 2, 105, 106))
	require.NoError(t, err)

	s, err := repo.Series(ctx, "AAPL", time.Time{})
	require.NoError(t, err)
	require.Len(t, s.Points, 4)
	assert.Equal(t, "AAPL", s.Ticker)
	assert.Equal(t, day(0), s.Points[0].Date)
	assert.Equal(t, 105.0, s.Points[2].Close)
	assert.Equal(t, 106.0, s.Points[3].Close)

	since, err := repo.Series(ctx, "AAPL", day(2).Add(15*time.Hour))
	require.NoError(t, err)
	assert.Len(t, since.Points, 2)
}

func TestPriceRepository_UpsertRejectsBadInput(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, priceSeries("", 0, 1))
	assert.Error(t, err)

	_, err = repo.Upsert(ctx, priceSeries("BAD", 0, 10, -1))
	assert.Error(t, err)

	// The failed batch is rolled back as a whole.
	s, err := repo.Series(ctx, "BAD", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, s.Points)
}

func TestPriceRepository_Load(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, priceSeries("AAA", 0, 10, 11, 12, 13))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, priceSeries("BBB", 1, 20, 21, 22, 23))
	require.NoError(t, err)

	table, err := repo.Load(ctx, []string{"AAA", "BBB"}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, table.Rows())
	assert.Equal(t, []string{"AAA", "BBB"}, table.Tickers())
	assert.Equal(t, day(1), table.Dates()[0])

	_, err = repo.Load(ctx, []string{"AAA", "NONE"}, time.Time{})
	require.Error(t, err)
	var missing *returns.MissingPriceHistoryError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"NONE"}, missing.Tickers)
}

func TestPriceRepository_TickersAndDelete(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, priceSeries("MSFT", 0, 1, 2, 3))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, priceSeries("AAPL", 5, 4, 5))
	require.NoError(t, err)

	summaries, err := repo.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TickerSummary{
		{Ticker: "AAPL", First: "2024-01-06", Last: "2024-01-07", Count: 2},
		{Ticker: "MSFT", First: "2024-01-01", Last: "2024-01-03", Count: 3},
	}, summaries)

	deleted, err := repo.Delete(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	summaries, err = repo.Tickers(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

// Package historical stores daily closing prices and assembles them into
// aligned price tables for the returns engine.
package historical

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/returns"
	"github.com/aristath/allocator/internal/utils"
)

// PriceRepository reads and writes the daily_prices table.
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a repository on the history database.
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// Upsert writes every point of series, replacing existing closes for the
// same day. Points are stored at midnight UTC.
func (r *PriceRepository) Upsert(ctx context.Context, series returns.PriceSeries) (int, error) {
	if series.Ticker == "" {
		return 0, fmt.Errorf("ticker is required")
	}

	done := utils.MeasureDBQuery("upsert_prices", r.log)
	written := 0
	now := time.Now().Unix()

	err := database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_prices (ticker, date, close, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (ticker, date) DO UPDATE SET
				close = excluded.close,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range series.Points {
			if p.Close <= 0 {
				return fmt.Errorf("close for %s on %s must be positive, got %g", series.Ticker, utils.FormatDate(p.Date), p.Close)
			}
			day := dayStart(p.Date)
			if _, err := stmt.ExecContext(ctx, series.Ticker, day.Unix(), p.Close, now); err != nil {
				return fmt.Errorf("failed to insert price for %s on %s: %w", series.Ticker, utils.FormatDate(day), err)
			}
			written++
		}
		return nil
	})
	done(int64(written))
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Series returns the prices of ticker on or after since, oldest first.
// A zero since returns the full history.
func (r *PriceRepository) Series(ctx context.Context, ticker string, since time.Time) (returns.PriceSeries, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, close
		FROM daily_prices
		WHERE ticker = ? AND date >= ?
		ORDER BY date ASC
	`, ticker, lowerBound(since))
	if err != nil {
		return returns.PriceSeries{}, fmt.Errorf("failed to query prices for %s: %w", ticker, err)
	}
	defer rows.Close()

	series := returns.PriceSeries{Ticker: ticker}
	for rows.Next() {
		var (
			dateUnix   int64
			closePrice float64
		)
		if err := rows.Scan(&dateUnix, &closePrice); err != nil {
			return returns.PriceSeries{}, fmt.Errorf("failed to scan price: %w", err)
		}
		series.Points = append(series.Points, returns.PricePoint{
			Date:  time.Unix(dateUnix, 0).UTC(),
			Close: closePrice,
		})
	}
	if err := rows.Err(); err != nil {
		return returns.PriceSeries{}, fmt.Errorf("error iterating prices: %w", err)
	}

	return series, nil
}

// Load reads the history of every ticker since the given day and aligns them
// into one table. Tickers without usable history are reported together in a
// returns.MissingPriceHistoryError.
func (r *PriceRepository) Load(ctx context.Context, tickers []string, since time.Time) (*returns.PriceTable, error) {
	all := make([]returns.PriceSeries, 0, len(tickers))
	for _, ticker := range tickers {
		s, err := r.Series(ctx, ticker, since)
		if err != nil {
			return nil, err
		}
		all = append(all, s)
	}

	table, err := returns.Align(all...)
	if err != nil {
		return nil, fmt.Errorf("failed to align price history: %w", err)
	}

	r.log.Debug().
		Strs("tickers", tickers).
		Int("rows", table.Rows()).
		Msg("Loaded price table")

	return table, nil
}

// TickerSummary describes the stored history of one ticker.
type TickerSummary struct {
	Ticker string `json:"ticker"`
	First  string `json:"first"`
	Last   string `json:"last"`
	Count  int    `json:"count"`
}

// Tickers lists every ticker with stored prices.
func (r *PriceRepository) Tickers(ctx context.Context) ([]TickerSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ticker, MIN(date), MAX(date), COUNT(*)
		FROM daily_prices
		GROUP BY ticker
		ORDER BY ticker
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var out []TickerSummary
	for rows.Next() {
		var (
			s           TickerSummary
			first, last int64
		)
		if err := rows.Scan(&s.Ticker, &first, &last, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan ticker summary: %w", err)
		}
		s.First = utils.FormatDate(time.Unix(first, 0))
		s.Last = utils.FormatDate(time.Unix(last, 0))
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickers: %w", err)
	}
	return out, nil
}

// Delete removes every stored price of ticker.
func (r *PriceRepository) Delete(ctx context.Context, ticker string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM daily_prices WHERE ticker = ?", ticker)
	if err != nil {
		return 0, fmt.Errorf("failed to delete prices for %s: %w", ticker, err)
	}
	return res.RowsAffected()
}

// lowerBound is the first stored date to include; zero means no bound.
func lowerBound(since time.Time) int64 {
	if since.IsZero() {
		return math.MinInt64
	}
	return dayStart(since).Unix()
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

package snapshots

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/portfolios"
	"github.com/aristath/allocator/internal/modules/returns"
	testingpkg "github.com/aristath/allocator/internal/testing"
)

func newRepository(t *testing.T) *Repository {
	t.Helper()
	db := testingpkg.NewTestDB(t, "snapshots")
	return NewRepository(db.Conn(), zerolog.Nop())
}

func sampleReport(name string) *analysis.Report {
	weights := []optimization.AssetWeight{{Ticker: "AAA", Weight: 0.6}, {Ticker: "BBB", Weight: 0.4}}
	alloc := func(label string) analysis.Allocation {
		return analysis.Allocation{
			Label:   label,
			Weights: weights,
			Metrics: returns.Metrics{
				AnnualReturn: 1.68,
				Volatility:   0.099,
				Sharpe:       returns.NewSharpeRatio(1.68, 0.099),
			},
			Converged:  true,
			Status:     "GradientThreshold",
			Iterations: 12,
		}
	}

	return &analysis.Report{
		ID:          "report-" + name,
		Portfolio:   portfolios.Portfolio{Name: name, Holdings: []portfolios.Holding{{Ticker: "AAA", Weight: 0.6}, {Ticker: "BBB", Weight: 0.4}}},
		Since:       "2019-01-01",
		GeneratedAt: time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC),
		Allocations: analysis.Allocations{
			Original:      alloc(analysis.LabelOriginal),
			MaxSharpe:     alloc(analysis.LabelMaxSharpe),
			MinVolatility: alloc(analysis.LabelMinVolatility),
		},
		Benchmark: &analysis.Benchmark{
			Ticker:  "^GSPC",
			Metrics: returns.Metrics{AnnualReturn: 0.1, Volatility: 0, Sharpe: returns.NewSharpeRatio(0.1, 0)},
		},
		Performance: []analysis.Series{
			{Label: analysis.LabelOriginal, Points: []analysis.Point{{Date: "2019-01-01", Value: 0}, {Date: "2019-01-02", Value: 0.01}}},
		},
	}
}

func TestRepository_SaveAndLatest(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	report := sampleReport("Tech Core")
	saved, err := repo.Save(ctx, report)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Tech Core", saved.Portfolio)

	latest, err := repo.Latest(ctx, "Tech Core")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, latest.ID)
	assert.True(t, saved.CreatedAt.Equal(latest.CreatedAt))
	assert.Equal(t, report, latest.Report)

	sharpe, ok := latest.Report.Benchmark.Metrics.Sharpe.Value()
	assert.False(t, ok, "undefined ratio survives the round trip")
	assert.Zero(t, sharpe)
}

func TestRepository_LatestPicksNewest(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, sampleReport("Tech Core"))
	require.NoError(t, err)
	second := sampleReport("Tech Core")
	second.ID = "second"
	newest, err := repo.Save(ctx, second)
	require.NoError(t, err)

	latest, err := repo.Latest(ctx, "Tech Core")
	require.NoError(t, err)
	assert.Equal(t, newest.ID, latest.ID)
	assert.Equal(t, "second", latest.Report.ID)
}

func TestRepository_NotFound(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	_, err := repo.Latest(ctx, "Nope")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	_, err = repo.Get(ctx, "missing-id")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestRepository_SaveRejectsUnnamedReport(t *testing.T) {
	repo := newRepository(t)

	_, err := repo.Save(context.Background(), &analysis.Report{})
	assert.Error(t, err)

	_, err = repo.Save(context.Background(), nil)
	assert.Error(t, err)
}

func TestRepository_ListAndPrune(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Save(ctx, sampleReport("Tech Core"))
		require.NoError(t, err)
	}
	dividend, err := repo.Save(ctx, sampleReport("Dividend Mix"))
	require.NoError(t, err)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Dividend Mix", list[0].Portfolio)
	assert.Equal(t, dividend.ID, list[0].ID)
	assert.Equal(t, "Tech Core", list[1].Portfolio)
	assert.Positive(t, list[1].SizeBytes)

	latest, err := repo.Latest(ctx, "Tech Core")
	require.NoError(t, err)

	pruned, err := repo.Prune(ctx, "Tech Core", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pruned)

	stillLatest, err := repo.Latest(ctx, "Tech Core")
	require.NoError(t, err)
	assert.Equal(t, latest.ID, stillLatest.ID)

	got, err := repo.Get(ctx, dividend.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dividend Mix", got.Portfolio)
}

package snapshots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/portfolios"
)

// DefaultKeep is how many snapshots per portfolio survive a refresh.
const DefaultKeep = 5

// Comparer produces comparison reports.
type Comparer interface {
	Compare(ctx context.Context, portfolio portfolios.Portfolio, since time.Time) (*analysis.Report, error)
}

// RefreshJob recomputes the report of every preloaded portfolio.
type RefreshJob struct {
	comparer Comparer
	repo     *Repository
	keep     int
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRefreshJob creates a refresh job. keep below one uses DefaultKeep.
func NewRefreshJob(comparer Comparer, repo *Repository, keep int, timeout time.Duration, log zerolog.Logger) *RefreshJob {
	if keep < 1 {
		keep = DefaultKeep
	}
	return &RefreshJob{
		comparer: comparer,
		repo:     repo,
		keep:     keep,
		timeout:  timeout,
		log:      log.With().Str("job", "refresh_snapshots").Logger(),
	}
}

// Name returns the job name for the scheduler
func (j *RefreshJob) Name() string {
	return "refresh_snapshots"
}

// Run refreshes all portfolios. A failing portfolio does not stop the
// others; every failure is returned joined.
func (j *RefreshJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}
	_, err := j.RunContext(ctx)
	return err
}

// RunContext refreshes all portfolios and returns the snapshots written.
func (j *RefreshJob) RunContext(ctx context.Context) ([]*Snapshot, error) {
	start := time.Now()
	var (
		written []*Snapshot
		errs    []error
	)

	for _, p := range portfolios.Catalogue() {
		snap, err := j.refresh(ctx, p)
		if err != nil {
			j.log.Error().Err(err).Str("portfolio", p.Name).Msg("Snapshot refresh failed")
			errs = append(errs, err)
			continue
		}
		written = append(written, snap)
	}

	j.log.Info().
		Int("written", len(written)).
		Int("failed", len(errs)).
		Dur("duration", time.Since(start)).
		Msg("Snapshot refresh finished")

	return written, errors.Join(errs...)
}

func (j *RefreshJob) refresh(ctx context.Context, p portfolios.Portfolio) (*Snapshot, error) {
	report, err := j.comparer.Compare(ctx, p, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}

	snap, err := j.repo.Save(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}

	if pruned, err := j.repo.Prune(ctx, p.Name, j.keep); err != nil {
		j.log.Warn().Err(err).Str("portfolio", p.Name).Msg("Failed to prune snapshots")
	} else if pruned > 0 {
		j.log.Debug().Int64("pruned", pruned).Str("portfolio", p.Name).Msg("Old snapshots pruned")
	}
	return snap, nil
}

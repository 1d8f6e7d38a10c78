package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/snapshots"
	"github.com/aristath/allocator/internal/reliability"
	"github.com/aristath/allocator/internal/scheduler"
)

// InitializeRepositories creates the repositories on the open databases.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.HistoryDB == nil || container.SnapshotsDB == nil {
		return fmt.Errorf("databases must be initialized first")
	}
	container.PriceRepo = historical.NewPriceRepository(container.HistoryDB.Conn(), log)
	container.SnapshotRepo = snapshots.NewRepository(container.SnapshotsDB.Conn(), log)
	return nil
}

// InitializeServices creates the optimizer, the analysis and backup
// services and the scheduler.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.PriceRepo == nil {
		return fmt.Errorf("repositories must be initialized first")
	}

	container.Optimizer = optimization.NewOptimizer(cfg.OptimizerSettings(), log)
	container.AnalysisService = analysis.NewService(container.PriceRepo, container.Optimizer, analysis.Config{
		Benchmark:    cfg.BenchmarkTicker,
		DefaultSince: cfg.PriceHistoryStart,
	}, log)

	var store reliability.ObjectStore
	if cfg.Backup.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		client, err := reliability.NewS3Client(ctx, cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup client: %w", err)
		}
		store = client
	} else {
		log.Info().Msg("BACKUP_S3_BUCKET not set, off-host backups disabled")
	}
	container.BackupService = reliability.NewBackupService(container.Databases(), store, cfg.DataDir, log)

	container.Scheduler = scheduler.New(log)
	return nil
}

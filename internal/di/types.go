// Package di wires the databases, repositories, services and jobs.
package di

import (
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/analysis"
	"github.com/aristath/allocator/internal/modules/historical"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/snapshots"
	"github.com/aristath/allocator/internal/reliability"
	"github.com/aristath/allocator/internal/scheduler"
)

// Container holds every long-lived dependency. It is the single source of
// truth passed to the server and to cmd.
type Container struct {
	// Databases
	HistoryDB   *database.DB // daily prices
	SnapshotsDB *database.DB // precomputed reports, recomputable

	// Repositories
	PriceRepo    *historical.PriceRepository
	SnapshotRepo *snapshots.Repository

	// Services
	Optimizer       *optimization.Optimizer
	AnalysisService *analysis.Service
	BackupService   *reliability.BackupService
	Scheduler       *scheduler.Scheduler
}

// Databases returns the open databases in backup order.
func (c *Container) Databases() []*database.DB {
	var out []*database.DB
	for _, db := range []*database.DB{c.HistoryDB, c.SnapshotsDB} {
		if db != nil {
			out = append(out, db)
		}
	}
	return out
}

// Close closes every database. It is safe on a partially built container.
func (c *Container) Close() error {
	var firstErr error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// JobInstances holds job references for manual triggering via the API.
type JobInstances struct {
	RefreshSnapshots *snapshots.RefreshJob
	Backup           *reliability.BackupJob
	Maintenance      *reliability.MaintenanceJob
	CheckDatabases   *scheduler.CheckDatabasesJob
}

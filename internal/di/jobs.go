package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/snapshots"
	"github.com/aristath/allocator/internal/reliability"
	"github.com/aristath/allocator/internal/scheduler"
)

// Fixed schedules for housekeeping; the data jobs are configurable.
const (
	maintenanceSchedule    = "0 15 2 * * *"
	checkDatabasesSchedule = "0 45 2 * * SUN"
	snapshotRefreshTimeout = 30 * time.Minute
)

// RegisterJobs creates the jobs and registers them with the scheduler.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Scheduler == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{
		RefreshSnapshots: snapshots.NewRefreshJob(container.AnalysisService, container.SnapshotRepo, cfg.SnapshotKeep, snapshotRefreshTimeout, log),
		Backup:           reliability.NewBackupJob(container.BackupService, cfg.BackupRetentionDays, log),
		Maintenance:      reliability.NewMaintenanceJob(container.Databases(), cfg.DataDir, log),
		CheckDatabases: scheduler.NewCheckDatabasesJob(map[string]*database.DB{
			"history":   container.HistoryDB,
			"snapshots": container.SnapshotsDB,
		}, log),
	}

	registrations := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.SnapshotSchedule, instances.RefreshSnapshots},
		{cfg.BackupSchedule, instances.Backup},
		{maintenanceSchedule, instances.Maintenance},
		{checkDatabasesSchedule, instances.CheckDatabases},
	}
	for _, r := range registrations {
		if err := container.Scheduler.AddJob(r.schedule, r.job); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", r.job.Name(), err)
		}
	}

	return instances, nil
}

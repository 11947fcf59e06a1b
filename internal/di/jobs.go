package di

import (
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/config"
	"github.com/stavrou/budgetd/internal/reliability"
	"github.com/stavrou/budgetd/internal/scheduler"
)

// Jobs holds the recurring job instances built over the container. Backup
// is nil when no backup service is configured.
type Jobs struct {
	Nightly     *scheduler.NightlyForecastJob
	Backup      *scheduler.DatabaseBackupJob
	Maintenance *reliability.StoreMaintenanceJob
}

// BuildJobs creates the scheduled jobs. The nightly pipeline only gets a
// delta-ingest leg when the upstream client is configured; otherwise it
// snapshots whatever the store already holds.
func BuildJobs(c *Container, cfg *config.Config, log zerolog.Logger) *Jobs {
	var deltaRunner scheduler.DeltaRunner
	source := ""
	if c.UpstreamClient != nil {
		deltaRunner = c.IngestService
		source = cfg.IngestSource
	}

	jobs := &Jobs{
		Nightly:     scheduler.NewNightlyForecastJob(deltaRunner, c.SnapshotService, c.AlertEngine, source, log),
		Maintenance: reliability.NewStoreMaintenanceJob(c.DB, log),
	}

	if c.BackupService != nil {
		jobs.Backup = scheduler.NewDatabaseBackupJob(c.BackupService, cfg.BackupRetentionDays, log)
	}

	return jobs
}

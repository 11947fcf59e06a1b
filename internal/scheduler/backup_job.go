package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// backupTimeout bounds one backup run including the upload.
const backupTimeout = 30 * time.Minute

// BackupRunner creates and rotates offsite backups.
type BackupRunner interface {
	CreateAndUploadBackup(ctx context.Context) error
	RotateOldBackups(ctx context.Context, retentionDays int) error
}

// DatabaseBackupJob ships the nightly store backup and applies retention.
type DatabaseBackupJob struct {
	backups       BackupRunner
	retentionDays int
	log           zerolog.Logger
}

// NewDatabaseBackupJob creates the nightly backup job.
func NewDatabaseBackupJob(backups BackupRunner, retentionDays int, log zerolog.Logger) *DatabaseBackupJob {
	return &DatabaseBackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "database_backup").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *DatabaseBackupJob) Name() string {
	return "database_backup"
}

// Run creates a backup and rotates old archives.
func (j *DatabaseBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if err := j.backups.CreateAndUploadBackup(ctx); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	// A rotation failure must not mask the successful backup.
	if err := j.backups.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}

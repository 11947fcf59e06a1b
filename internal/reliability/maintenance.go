package reliability

import (
	"context"
	"fmt"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/database"
)

// integrityTimeout bounds the PRAGMA integrity_check run. The check walks
// every page, so a corrupt or huge store must not wedge the scheduler.
const integrityTimeout = 2 * time.Minute

// StoreMaintenanceJob performs daily upkeep of the budget store: integrity
// check, WAL checkpoint, disk space check, and size reporting.
type StoreMaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStoreMaintenanceJob creates the daily maintenance job.
func NewStoreMaintenanceJob(db *database.DB, log zerolog.Logger) *StoreMaintenanceJob {
	return &StoreMaintenanceJob{
		db:  db,
		log: log.With().Str("job", "store_maintenance").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *StoreMaintenanceJob) Name() string {
	return "store_maintenance"
}

// Run executes the daily maintenance pass.
func (j *StoreMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting store maintenance")
	startTime := time.Now()

	// Step 1: integrity check. Corruption is unrecoverable without a
	// backup, so this is the one failure that halts the job.
	ctx, cancel := context.WithTimeout(context.Background(), integrityTimeout)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: Store integrity check failed")
		return fmt.Errorf("CRITICAL: store integrity check failed: %w", err)
	}

	// Step 2: WAL checkpoint to prevent bloat. Not critical on failure.
	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	// Step 3: disk space on the volume holding the store.
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	// Step 4: size report for operators.
	j.reportStoreSize()

	duration := time.Since(startTime)
	j.log.Info().
		Dur("duration_ms", duration).
		Msg("Store maintenance completed successfully")

	return nil
}

// checkDiskSpace verifies sufficient disk space on the store's volume.
func (j *StoreMaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	storeDir := filepath.Dir(j.db.Path())
	if err := syscall.Statfs(storeDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)
	availableGB := float64(availableBytes) / 1e9

	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	// CRITICAL: less than 500MB. Refuse to keep writing snapshots and
	// exports into a full disk.
	if availableGB < 0.5 {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("CRITICAL: only %.2f GB free on store volume", availableGB)
	}

	if availableGB < 5.0 {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("Low disk space - consider cleanup")
	} else if availableGB < 10.0 {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space getting low")
	}

	return nil
}

// reportStoreSize logs store and WAL sizes plus fragmentation figures.
func (j *StoreMaintenanceJob) reportStoreSize() {
	stats, err := j.db.GetStats()
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to collect store stats")
		return
	}

	j.log.Info().
		Int64("size_bytes", stats.SizeBytes).
		Int64("wal_size_bytes", stats.WALSizeBytes).
		Int64("page_count", stats.PageCount).
		Int64("freelist_count", stats.FreelistCount).
		Msg("Store size report")

	// A large freelist means lots of reclaimable space. VACUUM is left to
	// the operator since it rewrites the whole file.
	if stats.PageCount > 0 && stats.FreelistCount*4 > stats.PageCount {
		j.log.Warn().
			Int64("freelist_count", stats.FreelistCount).
			Int64("page_count", stats.PageCount).
			Msg("Store is heavily fragmented; consider a manual VACUUM")
	}
}

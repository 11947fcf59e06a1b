package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/modules/alerts"
	"github.com/stavrou/budgetd/internal/modules/ingest"
	"github.com/stavrou/budgetd/internal/modules/snapshots"
)

// DeltaRunner pulls new upstream rows before the nightly snapshot.
type DeltaRunner interface {
	RunDelta(ctx context.Context, source string) (*ingest.RunResult, error)
}

// SnapshotCapturer persists a forecast snapshot and its digest inputs.
type SnapshotCapturer interface {
	Capture(asOf time.Time) (*snapshots.Snapshot, error)
}

// AlertEvaluator raises alerts from the freshly captured snapshot.
type AlertEvaluator interface {
	Evaluate(asOf time.Time) (alerts.EvaluationResult, error)
}

// NightlyForecastJob runs the nightly pipeline: delta ingest, forecast
// snapshot, alert evaluation. The ingest leg is best-effort; the snapshot
// is still captured from stored data when the upstream is unreachable.
type NightlyForecastJob struct {
	ingest    DeltaRunner
	snapshots SnapshotCapturer
	alerts    AlertEvaluator
	source    string
	log       zerolog.Logger
}

// NewNightlyForecastJob creates the nightly pipeline job. A nil runner or
// empty source skips the ingest leg (snapshot-only deployments).
func NewNightlyForecastJob(
	deltaRunner DeltaRunner,
	capturer SnapshotCapturer,
	evaluator AlertEvaluator,
	source string,
	log zerolog.Logger,
) *NightlyForecastJob {
	return &NightlyForecastJob{
		ingest:    deltaRunner,
		snapshots: capturer,
		alerts:    evaluator,
		source:    source,
		log:       log.With().Str("job", "nightly_forecast").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *NightlyForecastJob) Name() string {
	return "nightly_forecast"
}

// Run executes the nightly pipeline.
func (j *NightlyForecastJob) Run() error {
	startTime := time.Now()
	asOf := time.Now().UTC()

	j.log.Info().Msg("Starting nightly forecast pipeline")

	if j.ingest != nil && j.source != "" {
		result, err := j.ingest.RunDelta(context.Background(), j.source)
		if err != nil {
			j.log.Warn().
				Err(err).
				Str("source", j.source).
				Msg("Nightly delta ingest failed; snapshot continues on stored data")
		} else {
			j.log.Info().
				Str("run_id", result.RunID).
				Int64("rows_upserted", result.RowsUpserted).
				Msg("Nightly delta ingest completed")
		}
	}

	snapshot, err := j.snapshots.Capture(asOf)
	if err != nil {
		return fmt.Errorf("failed to capture forecast snapshot: %w", err)
	}

	j.log.Info().
		Str("horizon_start", snapshot.HorizonStart).
		Str("horizon_end", snapshot.HorizonEnd).
		Int64("min_balance_cents", snapshot.MinBalanceCents).
		Msg("Forecast snapshot captured")

	result, err := j.alerts.Evaluate(asOf)
	if err != nil {
		return fmt.Errorf("failed to evaluate alerts: %w", err)
	}

	j.log.Info().
		Int("alerts_raised", result.Raised()).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Nightly forecast pipeline completed")

	return nil
}

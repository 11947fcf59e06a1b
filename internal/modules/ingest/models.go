// Package ingest pulls bank records into the local store. Three modes share
// one pipeline: delta (since the per-source cursor), backfill (last N months)
// and CSV import. Every run writes exactly one audit row, and re-running any
// mode is safe because rows are keyed by their idempotency hash.
package ingest

// Run modes, recorded on each audit row.
const (
	ModeDelta    = "delta"
	ModeBackfill = "backfill"
	ModeCSV      = "csv"
)

// Audit statuses. A run starts as running and is finalized in place.
// Partial means some CSV rows were skipped while the rest landed.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailure = "failure"
)

// RunResult summarizes one ingest run for API and CLI callers. Notes carries
// the same JSON object that lands on the audit row.
type RunResult struct {
	RunID        string                 `json:"run_id"`
	Source       string                 `json:"source"`
	Mode         string                 `json:"mode"`
	StartedAt    string                 `json:"started_at"`
	FinishedAt   string                 `json:"finished_at"`
	RowsUpserted int64                  `json:"rows_upserted"`
	Status       string                 `json:"status"`
	Notes        map[string]interface{} `json:"notes"`
}

// AuditRecord is one ingest run's ledger entry as stored.
type AuditRecord struct {
	ID            int64  `json:"id"`
	RunID         string `json:"run_id"`
	Source        string `json:"source"`
	Mode          string `json:"mode"`
	RunStartedAt  string `json:"run_started_at"`
	RunFinishedAt string `json:"run_finished_at,omitempty"`
	RowsUpserted  int64  `json:"rows_upserted"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
}

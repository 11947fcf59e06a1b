// Package alerts raises dedup-keyed alerts after snapshot runs and fresh
// ingests: projected floor breaches, unexplained large debits, and
// commitments whose observed payments drifted from plan. Raising the same
// condition twice is a no-op thanks to the unique (type, dedupe_key) index.
package alerts

// Alert types.
const (
	TypeThresholdBreach = "threshold_breach"
	TypeLargeDebit      = "large_debit"
	TypeCommitmentDrift = "commitment_drift"
)

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one raised condition. Details carries detector-specific context;
// ResolvedAt is nil while the alert is active.
type Alert struct {
	ID         int64                  `json:"id"`
	CreatedAt  string                 `json:"created_at"`
	Type       string                 `json:"type"`
	DedupeKey  string                 `json:"dedupe_key"`
	Severity   string                 `json:"severity"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	ResolvedAt *string                `json:"resolved_at"`
}

// Config carries the detector thresholds from the environment.
type Config struct {
	// BufferFloorCents is the global floor the horizon minimum is held
	// against.
	BufferFloorCents int64
	// AccountFloors maps account names to configured overdraft thresholds.
	// A stored anchor floor overrides the configured one per account.
	AccountFloors map[string]int64
	// LargeDebitCents is the magnitude at which a fresh unplanned debit
	// becomes an alert.
	LargeDebitCents int64
	// DriftCycles is how many consecutive monthly cycles must disagree with
	// the configured commitment amount before flagging drift.
	DriftCycles int
	// DriftTolerance is the relative deviation allowed per cycle.
	DriftTolerance float64
}

// EvaluationResult counts what one engine pass raised.
type EvaluationResult struct {
	ThresholdBreaches int `json:"threshold_breaches"`
	LargeDebits       int `json:"large_debits"`
	DriftAlerts       int `json:"drift_alerts"`
}

// Raised is the total number of alerts created by the pass.
func (r EvaluationResult) Raised() int {
	return r.ThresholdBreaches + r.LargeDebits + r.DriftAlerts
}

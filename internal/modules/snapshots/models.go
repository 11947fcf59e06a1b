// Package snapshots persists forecast runs as append-only rows and derives
// the daily digest from the latest one. A snapshot is the forecast the
// nightly job saw: the expanded entries, the sparse balance series, and the
// parameters that produced them, packed into a msgpack blob.
package snapshots

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/stavrou/budgetd/internal/modules/forecast"
)

// Snapshot is one persisted forecast run. Payload holds the encoded blob;
// DecodePayload unpacks it on demand.
type Snapshot struct {
	ID              int64  `json:"id"`
	CreatedAt       string `json:"created_at"`
	HorizonStart    string `json:"horizon_start"`
	HorizonEnd      string `json:"horizon_end"`
	MinBalanceCents int64  `json:"min_balance_cents"`
	MinBalanceDate  string `json:"min_balance_date"`
	Payload         []byte `json:"-"`
}

// Parameters records the inputs of a forecast run so a decoded snapshot can
// be interpreted without the live store.
type Parameters struct {
	OpeningCents     int64   `msgpack:"opening_cents" json:"opening_cents"`
	BufferFloorCents int64   `msgpack:"buffer_floor_cents" json:"buffer_floor_cents"`
	HorizonDays      int     `msgpack:"horizon_days" json:"horizon_days"`
	AccountIDs       []int64 `msgpack:"account_ids" json:"account_ids,omitempty"`
}

// Payload is the snapshot body: entries, balances and parameters.
type Payload struct {
	Entries    []forecast.Entry `msgpack:"entries" json:"entries"`
	Balances   map[string]int64 `msgpack:"balances" json:"balances"`
	Parameters Parameters       `msgpack:"parameters" json:"parameters"`
}

// EncodePayload packs a payload into the stored blob form.
func EncodePayload(p *Payload) ([]byte, error) {
	raw, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot payload: %w", err)
	}
	return raw, nil
}

// DecodePayload unpacks a stored snapshot blob.
func DecodePayload(raw []byte) (*Payload, error) {
	var p Payload
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot payload: %w", err)
	}
	return &p, nil
}

// DigestCommitment is one upcoming commitment line in the digest.
type DigestCommitment struct {
	Date        string `json:"date"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
}

// DigestKeyEvent is one key spend event inside its lead window.
type DigestKeyEvent struct {
	Date        string `json:"date"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	UIMarker    string `json:"ui_marker,omitempty"`
}

// SnapshotInfo tells digest consumers which forecast run they are looking
// at. IsStale is true when the snapshot was not captured today.
type SnapshotInfo struct {
	CreatedAt string `json:"created_at"`
	IsStale   bool   `json:"is_stale"`
}

// Digest is the daily overview: where the balance stands, how much is safe
// to spend, and what lands next.
type Digest struct {
	Date                  string             `json:"date"`
	CurrentBalanceCents   int64              `json:"current_balance_cents"`
	SafeToSpendCents      int64              `json:"safe_to_spend_cents"`
	BufferFloorCents      int64              `json:"buffer_floor_cents"`
	NextCliffDate         *string            `json:"next_cliff_date"`
	MinBalanceCents       int64              `json:"min_balance_cents"`
	MinBalanceDate        string             `json:"min_balance_date"`
	TopCommitments        []DigestCommitment `json:"top_commitments"`
	KeyEventsInLeadWindow []DigestKeyEvent   `json:"key_events_in_lead_window"`
	HealthScore           int                `json:"health_score"`
	Snapshot              *SnapshotInfo      `json:"snapshot"`
}

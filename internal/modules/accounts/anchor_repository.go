package accounts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AnchorRepository handles account anchor persistence. Each account has at
// most one anchor row; upserts replace the previous declaration.
type AnchorRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAnchorRepository creates a new anchor repository.
func NewAnchorRepository(db *sql.DB, log zerolog.Logger) *AnchorRepository {
	return &AnchorRepository{
		db:  db,
		log: log.With().Str("repo", "account_anchors").Logger(),
	}
}

// Upsert inserts or replaces the anchor for an account.
func (r *AnchorRepository) Upsert(anchor Anchor) error {
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
        INSERT INTO account_anchors (account_id, anchor_date, anchor_balance_cents, min_floor_cents, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(account_id) DO UPDATE SET
            anchor_date = excluded.anchor_date,
            anchor_balance_cents = excluded.anchor_balance_cents,
            min_floor_cents = excluded.min_floor_cents,
            updated_at = excluded.updated_at
    `

	var floor interface{}
	if anchor.MinFloorCents != nil {
		floor = *anchor.MinFloorCents
	}

	_, err := r.db.Exec(query, anchor.AccountID, anchor.AnchorDate, anchor.AnchorBalanceCents, floor, now)
	if err != nil {
		return fmt.Errorf("failed to upsert anchor for account %d: %w", anchor.AccountID, err)
	}

	r.log.Info().
		Int64("account_id", anchor.AccountID).
		Str("anchor_date", anchor.AnchorDate).
		Int64("balance_cents", anchor.AnchorBalanceCents).
		Msg("Upserted account anchor")

	return nil
}

// Get returns the anchor for an account, or nil if none is declared.
func (r *AnchorRepository) Get(accountID int64) (*Anchor, error) {
	var a Anchor
	var floor sql.NullInt64
	err := r.db.QueryRow(
		"SELECT account_id, anchor_date, anchor_balance_cents, min_floor_cents, updated_at FROM account_anchors WHERE account_id = ?",
		accountID,
	).Scan(&a.AccountID, &a.AnchorDate, &a.AnchorBalanceCents, &floor, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anchor for account %d: %w", accountID, err)
	}

	if floor.Valid {
		v := floor.Int64
		a.MinFloorCents = &v
	}
	return &a, nil
}

// List returns all anchors ordered by account ID.
func (r *AnchorRepository) List() ([]Anchor, error) {
	rows, err := r.db.Query(
		"SELECT account_id, anchor_date, anchor_balance_cents, min_floor_cents, updated_at FROM account_anchors ORDER BY account_id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchors: %w", err)
	}
	defer rows.Close()

	anchors := make([]Anchor, 0)
	for rows.Next() {
		var a Anchor
		var floor sql.NullInt64
		if err := rows.Scan(&a.AccountID, &a.AnchorDate, &a.AnchorBalanceCents, &floor, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan anchor: %w", err)
		}
		if floor.Valid {
			v := floor.Int64
			a.MinFloorCents = &v
		}
		anchors = append(anchors, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anchors: %w", err)
	}

	return anchors, nil
}

// Floors returns the declared minimum floor per account, for accounts that
// have one. The alerts engine compares projected balances against these.
func (r *AnchorRepository) Floors() (map[int64]int64, error) {
	rows, err := r.db.Query(
		"SELECT account_id, min_floor_cents FROM account_anchors WHERE min_floor_cents IS NOT NULL",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchor floors: %w", err)
	}
	defer rows.Close()

	floors := make(map[int64]int64)
	for rows.Next() {
		var accountID, floor int64
		if err := rows.Scan(&accountID, &floor); err != nil {
			return nil, fmt.Errorf("failed to scan anchor floor: %w", err)
		}
		floors[accountID] = floor
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating anchor floors: %w", err)
	}

	return floors, nil
}

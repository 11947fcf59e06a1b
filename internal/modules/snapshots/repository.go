package snapshots

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Repository handles forecast snapshot persistence. Rows are append-only;
// the digest always reads the newest one.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Insert stores a snapshot and returns its id.
func (r *Repository) Insert(s Snapshot) (int64, error) {
	res, err := r.db.Exec(`
        INSERT INTO forecast_snapshot (
            created_at, horizon_start, horizon_end, payload,
            min_balance_cents, min_balance_date
        ) VALUES (?, ?, ?, ?, ?, ?)`,
		s.CreatedAt, s.HorizonStart, s.HorizonEnd, s.Payload,
		s.MinBalanceCents, s.MinBalanceDate,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert forecast snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot id: %w", err)
	}
	return id, nil
}

// Latest returns the most recent snapshot, or nil when none exists yet.
func (r *Repository) Latest() (*Snapshot, error) {
	row := r.db.QueryRow(`
        SELECT id, created_at, horizon_start, horizon_end, payload,
               COALESCE(min_balance_cents, 0), COALESCE(min_balance_date, '')
        FROM forecast_snapshot
        ORDER BY datetime(created_at) DESC, id DESC
        LIMIT 1`)

	var s Snapshot
	err := row.Scan(
		&s.ID, &s.CreatedAt, &s.HorizonStart, &s.HorizonEnd, &s.Payload,
		&s.MinBalanceCents, &s.MinBalanceDate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	return &s, nil
}

// LatestTwo returns the newest snapshot and the one before it, payloads
// omitted. Either pointer is nil when the history is that short. The alerts
// engine compares the pair to detect a threshold crossing.
func (r *Repository) LatestTwo() (*Snapshot, *Snapshot, error) {
	rows, err := r.db.Query(`
        SELECT id, created_at, horizon_start, horizon_end,
               COALESCE(min_balance_cents, 0), COALESCE(min_balance_date, '')
        FROM forecast_snapshot
        ORDER BY datetime(created_at) DESC, id DESC
        LIMIT 2`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load recent snapshots: %w", err)
	}
	defer rows.Close()

	var pair []*Snapshot
	for rows.Next() {
		var s Snapshot
		err := rows.Scan(
			&s.ID, &s.CreatedAt, &s.HorizonStart, &s.HorizonEnd,
			&s.MinBalanceCents, &s.MinBalanceDate,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		pair = append(pair, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var current, previous *Snapshot
	if len(pair) >= 1 {
		current = pair[0]
	}
	if len(pair) >= 2 {
		previous = pair[1]
	}
	return current, previous, nil
}

// Count returns the number of stored snapshots.
func (r *Repository) Count() (int64, error) {
	var n int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM forecast_snapshot").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

package schedule

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// InflowRepository handles scheduled inflow persistence.
type InflowRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewInflowRepository creates a new scheduled inflow repository.
func NewInflowRepository(db *sql.DB, log zerolog.Logger) *InflowRepository {
	return &InflowRepository{
		db:  db,
		log: log.With().Str("repo", "scheduled_inflows").Logger(),
	}
}

const inflowColumns = `id, name, amount_cents, due_rule, next_due_date, account_id, type, shift_policy`

// List returns all scheduled inflows ordered by ID.
func (r *InflowRepository) List() ([]ScheduledInflow, error) {
	rows, err := r.db.Query("SELECT " + inflowColumns + " FROM scheduled_inflows ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query scheduled inflows: %w", err)
	}
	defer rows.Close()

	out := make([]ScheduledInflow, 0)
	for rows.Next() {
		in, err := scanInflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled inflow: %w", err)
		}
		out = append(out, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled inflows: %w", err)
	}
	return out, nil
}

// GetByID returns a single scheduled inflow, or nil when absent.
func (r *InflowRepository) GetByID(id int64) (*ScheduledInflow, error) {
	row := r.db.QueryRow("SELECT "+inflowColumns+" FROM scheduled_inflows WHERE id = ?", id)
	in, err := scanInflow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled inflow %d: %w", id, err)
	}
	return in, nil
}

// Create inserts a scheduled inflow and returns its ID.
func (r *InflowRepository) Create(in ScheduledInflow) (int64, error) {
	res, err := r.db.Exec(`
        INSERT INTO scheduled_inflows (name, amount_cents, due_rule, next_due_date, account_id, type, shift_policy)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.AmountCents, in.DueRule, nullableStr(in.NextDueDate), in.AccountID, in.Type, nullableStr(in.ShiftPolicy),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create scheduled inflow %q: %w", in.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get scheduled inflow id: %w", err)
	}

	r.log.Info().Int64("inflow_id", id).Str("name", in.Name).Msg("Created scheduled inflow")
	return id, nil
}

// Update rewrites a scheduled inflow in place. Returns false when the row
// does not exist.
func (r *InflowRepository) Update(in ScheduledInflow) (bool, error) {
	res, err := r.db.Exec(`
        UPDATE scheduled_inflows
        SET name = ?, amount_cents = ?, due_rule = ?, next_due_date = ?, account_id = ?, type = ?, shift_policy = ?
        WHERE id = ?`,
		in.Name, in.AmountCents, in.DueRule, nullableStr(in.NextDueDate), in.AccountID, in.Type, nullableStr(in.ShiftPolicy),
		in.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update scheduled inflow %d: %w", in.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return n > 0, nil
}

// Delete removes a scheduled inflow. Returns false when the row does not
// exist.
func (r *InflowRepository) Delete(id int64) (bool, error) {
	res, err := r.db.Exec("DELETE FROM scheduled_inflows WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete scheduled inflow %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n > 0, nil
}

func scanInflow(row rowScanner) (*ScheduledInflow, error) {
	var in ScheduledInflow
	var nextDue, shiftPolicy sql.NullString
	err := row.Scan(&in.ID, &in.Name, &in.AmountCents, &in.DueRule, &nextDue, &in.AccountID, &in.Type, &shiftPolicy)
	if err != nil {
		return nil, err
	}
	in.NextDueDate = nextDue.String
	in.ShiftPolicy = shiftPolicy.String
	return &in, nil
}

package schedule

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// CommitmentRepository handles commitment persistence.
type CommitmentRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCommitmentRepository creates a new commitment repository.
func NewCommitmentRepository(db *sql.DB, log zerolog.Logger) *CommitmentRepository {
	return &CommitmentRepository{
		db:  db,
		log: log.With().Str("repo", "commitments").Logger(),
	}
}

const commitmentColumns = `id, name, amount_cents, due_rule, next_due_date, priority,
    account_id, flexible_window_days, category_id, type, shift_policy`

// List returns all commitments ordered by ID.
func (r *CommitmentRepository) List() ([]Commitment, error) {
	rows, err := r.db.Query("SELECT " + commitmentColumns + " FROM commitments ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query commitments: %w", err)
	}
	defer rows.Close()
	return collectCommitments(rows)
}

// ListByTypes returns commitments whose type matches one of the given
// values, case-insensitively, ordered by ID. The questionnaire layer uses
// this for loans, subscriptions and fixed costs.
func (r *CommitmentRepository) ListByTypes(types []string) ([]Commitment, error) {
	if len(types) == 0 {
		return []Commitment{}, nil
	}
	query := "SELECT " + commitmentColumns + " FROM commitments WHERE LOWER(type) IN (" + placeholders(len(types)) + ") ORDER BY id ASC"
	args := make([]interface{}, len(types))
	for i, t := range types {
		args[i] = strings.ToLower(t)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query commitments by type: %w", err)
	}
	defer rows.Close()
	return collectCommitments(rows)
}

// ListWithCategory returns commitments that carry a category, for the drift
// detector.
func (r *CommitmentRepository) ListWithCategory() ([]Commitment, error) {
	rows, err := r.db.Query("SELECT " + commitmentColumns + " FROM commitments WHERE category_id IS NOT NULL ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query categorized commitments: %w", err)
	}
	defer rows.Close()
	return collectCommitments(rows)
}

// GetByID returns a single commitment, or nil when absent.
func (r *CommitmentRepository) GetByID(id int64) (*Commitment, error) {
	row := r.db.QueryRow("SELECT "+commitmentColumns+" FROM commitments WHERE id = ?", id)
	c, err := scanCommitment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get commitment %d: %w", id, err)
	}
	return c, nil
}

// Create inserts a commitment and returns its ID.
func (r *CommitmentRepository) Create(c Commitment) (int64, error) {
	res, err := r.db.Exec(`
        INSERT INTO commitments (name, amount_cents, due_rule, next_due_date, priority,
            account_id, flexible_window_days, category_id, type, shift_policy)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.AmountCents, c.DueRule, nullableStr(c.NextDueDate), nullableInt(c.Priority),
		c.AccountID, nullableInt(c.FlexibleWindowDays), nullableInt(c.CategoryID), c.Type, nullableStr(c.ShiftPolicy),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create commitment %q: %w", c.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get commitment id: %w", err)
	}

	r.log.Info().Int64("commitment_id", id).Str("name", c.Name).Msg("Created commitment")
	return id, nil
}

// Update rewrites a commitment in place. Returns false when the row does
// not exist.
func (r *CommitmentRepository) Update(c Commitment) (bool, error) {
	res, err := r.db.Exec(`
        UPDATE commitments
        SET name = ?, amount_cents = ?, due_rule = ?, next_due_date = ?, priority = ?,
            account_id = ?, flexible_window_days = ?, category_id = ?, type = ?, shift_policy = ?
        WHERE id = ?`,
		c.Name, c.AmountCents, c.DueRule, nullableStr(c.NextDueDate), nullableInt(c.Priority),
		c.AccountID, nullableInt(c.FlexibleWindowDays), nullableInt(c.CategoryID), c.Type, nullableStr(c.ShiftPolicy),
		c.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update commitment %d: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return n > 0, nil
}

// Delete removes a commitment. Returns false when the row does not exist.
func (r *CommitmentRepository) Delete(id int64) (bool, error) {
	res, err := r.db.Exec("DELETE FROM commitments WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete commitment %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n > 0, nil
}

func collectCommitments(rows *sql.Rows) ([]Commitment, error) {
	out := make([]Commitment, 0)
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan commitment: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commitments: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCommitment(row rowScanner) (*Commitment, error) {
	var c Commitment
	var nextDue, shiftPolicy sql.NullString
	var priority, window, category sql.NullInt64
	err := row.Scan(
		&c.ID, &c.Name, &c.AmountCents, &c.DueRule, &nextDue, &priority,
		&c.AccountID, &window, &category, &c.Type, &shiftPolicy,
	)
	if err != nil {
		return nil, err
	}
	c.NextDueDate = nextDue.String
	c.ShiftPolicy = shiftPolicy.String
	if priority.Valid {
		v := priority.Int64
		c.Priority = &v
	}
	if window.Valid {
		v := window.Int64
		c.FlexibleWindowDays = &v
	}
	if category.Valid {
		v := category.Int64
		c.CategoryID = &v
	}
	return &c, nil
}

func nullableStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}

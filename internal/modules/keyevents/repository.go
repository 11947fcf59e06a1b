package keyevents

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Repository handles key spend event persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new key event repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "key_events").Logger(),
	}
}

const eventColumns = `id, name, event_date, repeat_rule, planned_amount_cents,
    category_id, lead_time_days, shift_policy, account_id`

// List returns all key spend events ordered by date. The calendar expander
// walks the full set because repeat rules can step an old event into any
// window.
func (r *Repository) List() ([]KeySpendEvent, error) {
	rows, err := r.db.Query("SELECT " + eventColumns + " FROM key_spend_events ORDER BY event_date ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query key events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListWindow returns events with event_date inside [from, to]. Empty bounds
// leave that side open.
func (r *Repository) ListWindow(from, to string) ([]KeySpendEvent, error) {
	query := "SELECT " + eventColumns + " FROM key_spend_events WHERE 1=1"
	args := []interface{}{}
	if from != "" {
		query += " AND event_date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND event_date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY event_date ASC, id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query key events window: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// GetByID returns a single key event, or nil when absent.
func (r *Repository) GetByID(id int64) (*KeySpendEvent, error) {
	row := r.db.QueryRow("SELECT "+eventColumns+" FROM key_spend_events WHERE id = ?", id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key event %d: %w", id, err)
	}
	return ev, nil
}

// Create inserts a key event and returns its ID.
func (r *Repository) Create(ev KeySpendEvent) (int64, error) {
	res, err := r.db.Exec(`
        INSERT INTO key_spend_events (name, event_date, repeat_rule, planned_amount_cents,
            category_id, lead_time_days, shift_policy, account_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Name, ev.EventDate, nullStr(ev.RepeatRule), ev.PlannedAmountCents,
		nullInt(ev.CategoryID), nullInt(ev.LeadTimeDays), nullStr(ev.ShiftPolicy), nullInt(ev.AccountID),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create key event %q: %w", ev.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get key event id: %w", err)
	}

	r.log.Info().Int64("event_id", id).Str("name", ev.Name).Str("date", ev.EventDate).Msg("Created key event")
	return id, nil
}

// Update rewrites a key event in place. Returns false when the row does not
// exist.
func (r *Repository) Update(ev KeySpendEvent) (bool, error) {
	res, err := r.db.Exec(`
        UPDATE key_spend_events
        SET name = ?, event_date = ?, repeat_rule = ?, planned_amount_cents = ?,
            category_id = ?, lead_time_days = ?, shift_policy = ?, account_id = ?
        WHERE id = ?`,
		ev.Name, ev.EventDate, nullStr(ev.RepeatRule), ev.PlannedAmountCents,
		nullInt(ev.CategoryID), nullInt(ev.LeadTimeDays), nullStr(ev.ShiftPolicy), nullInt(ev.AccountID),
		ev.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update key event %d: %w", ev.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return n > 0, nil
}

// Delete removes a key event. Returns false when the row does not exist.
func (r *Repository) Delete(id int64) (bool, error) {
	res, err := r.db.Exec("DELETE FROM key_spend_events WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete key event %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return n > 0, nil
}

func collectEvents(rows *sql.Rows) ([]KeySpendEvent, error) {
	out := make([]KeySpendEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key event: %w", err)
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating key events: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*KeySpendEvent, error) {
	var ev KeySpendEvent
	var repeat, shift sql.NullString
	var planned, category, lead, account sql.NullInt64
	err := row.Scan(&ev.ID, &ev.Name, &ev.EventDate, &repeat, &planned, &category, &lead, &shift, &account)
	if err != nil {
		return nil, err
	}
	ev.RepeatRule = repeat.String
	ev.ShiftPolicy = shift.String
	ev.PlannedAmountCents = planned.Int64
	if category.Valid {
		v := category.Int64
		ev.CategoryID = &v
	}
	if lead.Valid {
		v := lead.Int64
		ev.LeadTimeDays = &v
	}
	if account.Valid {
		v := account.Int64
		ev.AccountID = &v
	}
	return &ev, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

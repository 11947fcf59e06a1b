package alerts

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository persists alerts. The unique (type, dedupe_key) index makes
// Raise idempotent: re-raising a known condition changes nothing.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("repo", "alerts").Logger()}
}

// Raise inserts the alert unless one with the same type and dedupe key
// already exists. Returns true when a new row was created.
func (r *Repository) Raise(a Alert) (bool, error) {
	createdAt := a.CreatedAt
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}

	var detailsJSON interface{}
	if a.Details != nil {
		encoded, err := json.Marshal(a.Details)
		if err != nil {
			return false, fmt.Errorf("failed to encode alert details: %w", err)
		}
		detailsJSON = string(encoded)
	}

	result, err := r.db.Exec(`
		INSERT OR IGNORE INTO alerts
			(created_at, type, dedupe_key, severity, title, message, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		createdAt, a.Type, a.DedupeKey, a.Severity, a.Title, a.Message, detailsJSON)
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return rows > 0, nil
}

// List returns alerts newest first. With activeOnly set, resolved alerts
// are filtered out.
func (r *Repository) List(activeOnly bool) ([]Alert, error) {
	query := `
		SELECT id, created_at, type, dedupe_key, severity, title, message,
			details_json, resolved_at
		FROM alerts`
	if activeOnly {
		query += ` WHERE resolved_at IS NULL`
	}
	query += ` ORDER BY datetime(created_at) DESC, id DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// GetByID returns the alert or nil when it does not exist.
func (r *Repository) GetByID(id int64) (*Alert, error) {
	row := r.db.QueryRow(`
		SELECT id, created_at, type, dedupe_key, severity, title, message,
			details_json, resolved_at
		FROM alerts
		WHERE id = ?`, id)

	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// Resolve stamps resolved_at on an active alert and returns the updated
// row. Returns nil when the alert does not exist; resolving an already
// resolved alert is a no-op and returns the row as is.
func (r *Repository) Resolve(id int64) (*Alert, error) {
	resolvedAt := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Exec(`
		UPDATE alerts SET resolved_at = ?
		WHERE id = ? AND resolved_at IS NULL`, resolvedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}
	return r.GetByID(id)
}

// CountActive returns how many alerts are unresolved.
func (r *Repository) CountActive() (int64, error) {
	var count int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM alerts WHERE resolved_at IS NULL`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active alerts: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var a Alert
	var detailsJSON, resolvedAt sql.NullString
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Type, &a.DedupeKey, &a.Severity,
		&a.Title, &a.Message, &detailsJSON, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	if detailsJSON.Valid && detailsJSON.String != "" {
		if err := json.Unmarshal([]byte(detailsJSON.String), &a.Details); err != nil {
			return nil, fmt.Errorf("failed to decode alert details: %w", err)
		}
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.String
	}
	return &a, nil
}

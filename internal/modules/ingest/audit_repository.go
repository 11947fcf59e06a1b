package ingest

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// AuditRepository persists the one-row-per-run ingest ledger.
type AuditRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAuditRepository creates a new ingest audit repository.
func NewAuditRepository(db *sql.DB, log zerolog.Logger) *AuditRepository {
	return &AuditRepository{
		db:  db,
		log: log.With().Str("repo", "ingest_audit").Logger(),
	}
}

// Start inserts a running audit row and returns its ID. The row is
// finalized in place by Finish once the run settles.
func (r *AuditRepository) Start(runID, source, mode, startedAt, notes string) (int64, error) {
	res, err := r.db.Exec(`
        INSERT INTO ingest_audit (run_id, source, mode, run_started_at, status, notes)
        VALUES (?, ?, ?, ?, ?, ?)`,
		runID, source, mode, startedAt, StatusRunning, notes,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to start audit row for %s: %w", source, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get audit row id: %w", err)
	}
	return id, nil
}

// Finish finalizes an audit row with the run's outcome.
func (r *AuditRepository) Finish(id int64, finishedAt string, rowsUpserted int64, status, notes string) error {
	_, err := r.db.Exec(`
        UPDATE ingest_audit
        SET run_finished_at = ?, rows_upserted = ?, status = ?, notes = ?
        WHERE id = ?`,
		finishedAt, rowsUpserted, status, notes, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish audit row %d: %w", id, err)
	}
	return nil
}

// Recent returns the newest runs, most recent start first.
func (r *AuditRepository) Recent(limit int) ([]AuditRecord, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := r.db.Query(`
        SELECT id, run_id, source, mode, run_started_at, run_finished_at,
               rows_upserted, status, notes
        FROM ingest_audit
        ORDER BY id DESC
        LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit rows: %w", err)
	}
	defer rows.Close()

	records := make([]AuditRecord, 0)
	for rows.Next() {
		var rec AuditRecord
		var runID, finished, notes sql.NullString
		err := rows.Scan(
			&rec.ID, &runID, &rec.Source, &rec.Mode, &rec.RunStartedAt,
			&finished, &rec.RowsUpserted, &rec.Status, &notes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		rec.RunID = runID.String
		rec.RunFinishedAt = finished.String
		rec.Notes = notes.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return records, nil
}

// LastRun returns the most recent run for a source, or nil when the source
// has never been ingested. An empty source matches any.
func (r *AuditRepository) LastRun(source string) (*AuditRecord, error) {
	query := `
        SELECT id, run_id, source, mode, run_started_at, run_finished_at,
               rows_upserted, status, notes
        FROM ingest_audit`
	args := []interface{}{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY id DESC LIMIT 1"

	var rec AuditRecord
	var runID, finished, notes sql.NullString
	err := r.db.QueryRow(query, args...).Scan(
		&rec.ID, &runID, &rec.Source, &rec.Mode, &rec.RunStartedAt,
		&finished, &rec.RowsUpserted, &rec.Status, &notes,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	rec.RunID = runID.String
	rec.RunFinishedAt = finished.String
	rec.Notes = notes.String
	return &rec, nil
}

package ingest

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CursorRepository persists the per-source delta cursor: the newest posted
// day seen by the last successful delta run.
type CursorRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCursorRepository creates a new source cursor repository.
func NewCursorRepository(db *sql.DB, log zerolog.Logger) *CursorRepository {
	return &CursorRepository{
		db:  db,
		log: log.With().Str("repo", "source_cursor").Logger(),
	}
}

// Get returns the stored cursor for a source, or "" when none exists.
func (r *CursorRepository) Get(source string) (string, error) {
	var cursor sql.NullString
	err := r.db.QueryRow(
		"SELECT last_cursor FROM source_cursor WHERE source = ?", source,
	).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cursor for %s: %w", source, err)
	}
	return cursor.String, nil
}

// SetTx upserts the cursor inside a caller-owned transaction. Delta runs
// advance the cursor atomically with their final upsert batch, so a failed
// run leaves it untouched.
func (r *CursorRepository) SetTx(tx *sql.Tx, source, cursor string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.Exec(`
        INSERT INTO source_cursor (source, last_cursor, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(source) DO UPDATE SET
            last_cursor = excluded.last_cursor,
            updated_at = excluded.updated_at`,
		source, cursor, now,
	)
	if err != nil {
		return fmt.Errorf("failed to set cursor for %s: %w", source, err)
	}
	return nil
}

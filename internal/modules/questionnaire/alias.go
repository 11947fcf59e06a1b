package questionnaire

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// AliasRepository maps questionnaire vocabulary ("housing", "childcare") to
// category IDs. Lookups check the alias table first, then fall back to a
// case-insensitive category name match.
type AliasRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewAliasRepository(db *sql.DB, log zerolog.Logger) *AliasRepository {
	return &AliasRepository{db: db, log: log.With().Str("repo", "question_aliases").Logger()}
}

// Resolve returns the category id for an alias or category name, or nil when
// neither matches.
func (r *AliasRepository) Resolve(nameOrAlias string) (*int64, error) {
	if nameOrAlias == "" {
		return nil, nil
	}

	var id int64
	err := r.db.QueryRow(
		"SELECT category_id FROM question_category_alias WHERE LOWER(alias) = LOWER(?) LIMIT 1",
		nameOrAlias,
	).Scan(&id)
	if err == nil {
		return &id, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to resolve category alias: %w", err)
	}

	err = r.db.QueryRow(
		"SELECT id FROM categories WHERE LOWER(name) = LOWER(?) LIMIT 1",
		nameOrAlias,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve category by name: %w", err)
	}
	return &id, nil
}

// Upsert stores an alias, replacing an existing mapping for the same alias.
func (r *AliasRepository) Upsert(alias string, categoryID int64) error {
	_, err := r.db.Exec(`
		INSERT INTO question_category_alias (alias, category_id)
		VALUES (?, ?)
		ON CONFLICT(alias) DO UPDATE SET category_id = excluded.category_id`,
		alias, categoryID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert category alias: %w", err)
	}
	return nil
}

// List returns all aliases, alphabetically.
func (r *AliasRepository) List() (map[string]int64, error) {
	rows, err := r.db.Query("SELECT alias, category_id FROM question_category_alias ORDER BY alias ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list category aliases: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var alias string
		var id int64
		if err := rows.Scan(&alias, &id); err != nil {
			return nil, fmt.Errorf("failed to scan category alias: %w", err)
		}
		out[alias] = id
	}
	return out, rows.Err()
}

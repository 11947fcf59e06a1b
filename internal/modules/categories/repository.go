package categories

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Repository handles category and category-map persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new category repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "categories").Logger(),
	}
}

// List returns all categories ordered by source then name.
func (r *Repository) List() ([]Category, error) {
	rows, err := r.db.Query(`
        SELECT id, name, parent_id, is_archived, COALESCE(source, 'internal'), external_id
        FROM categories ORDER BY source, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	out := make([]Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}
	return out, nil
}

// GetByID returns one category, or nil when absent.
func (r *Repository) GetByID(id int64) (*Category, error) {
	row := r.db.QueryRow(`
        SELECT id, name, parent_id, is_archived, COALESCE(source, 'internal'), external_id
        FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category %d: %w", id, err)
	}
	return c, nil
}

// FindInternalByName returns the ID of an internal category matched
// case-insensitively by name, or nil.
func (r *Repository) FindInternalByName(name string) (*int64, error) {
	var id int64
	err := r.db.QueryRow(`
        SELECT id FROM categories
        WHERE (source IS NULL OR source = 'internal') AND LOWER(name) = LOWER(?)
        ORDER BY id ASC LIMIT 1`, name,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find internal category %q: %w", name, err)
	}
	return &id, nil
}

// EnsureHolding returns the singleton Holding category, creating it on
// first need.
func (r *Repository) EnsureHolding() (int64, error) {
	if id, err := r.FindInternalByName(HoldingName); err != nil {
		return 0, err
	} else if id != nil {
		return *id, nil
	}

	res, err := r.db.Exec(
		"INSERT INTO categories (name, parent_id, is_archived, source, external_id) VALUES (?, NULL, 0, 'internal', NULL)",
		HoldingName,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create holding category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get holding category id: %w", err)
	}

	r.log.Info().Int64("category_id", id).Msg("Created holding category")
	return id, nil
}

// CreateInternal inserts an internal category row and returns its ID.
// Used by store seeding.
func (r *Repository) CreateInternal(name string, parentID *int64) (int64, error) {
	var parent interface{}
	if parentID != nil {
		parent = *parentID
	}
	res, err := r.db.Exec(
		"INSERT INTO categories (name, parent_id, is_archived, source, external_id) VALUES (?, ?, 0, 'internal', NULL)",
		name, parent,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create internal category %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get category id: %w", err)
	}
	return id, nil
}

// UpsertExternal inserts or refreshes a snapshot row for an upstream
// category, keyed by (source, external_id). Name, parent and archive flag
// track the upstream; the local ID is stable.
func (r *Repository) UpsertExternal(source, externalID, name string, parentID *int64, archived bool) (int64, error) {
	var id int64
	err := r.db.QueryRow(
		"SELECT id FROM categories WHERE source = ? AND external_id = ?",
		source, externalID,
	).Scan(&id)

	archivedInt := 0
	if archived {
		archivedInt = 1
	}
	var parent interface{}
	if parentID != nil {
		parent = *parentID
	}

	if err == nil {
		_, err = r.db.Exec(
			"UPDATE categories SET name = ?, parent_id = ?, is_archived = ? WHERE id = ?",
			name, parent, archivedInt, id,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to refresh external category %s/%s: %w", source, externalID, err)
		}
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up external category %s/%s: %w", source, externalID, err)
	}

	res, err := r.db.Exec(
		"INSERT INTO categories (name, parent_id, is_archived, source, external_id) VALUES (?, ?, ?, ?, ?)",
		name, parent, archivedInt, source, externalID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert external category %s/%s: %w", source, externalID, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get external category id: %w", err)
	}
	return id, nil
}

// MapLookup returns the internal category an external ID maps to, or nil.
func (r *Repository) MapLookup(source, externalID string) (*int64, error) {
	var id int64
	err := r.db.QueryRow(
		"SELECT internal_category_id FROM category_map WHERE source = ? AND external_id = ?",
		source, externalID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up category map %s/%s: %w", source, externalID, err)
	}
	return &id, nil
}

// EnsureMap records a mapping for (source, external_id) when none exists.
// An existing mapping is never rewritten; returns true when a row was
// created.
func (r *Repository) EnsureMap(source, externalID string, internalCategoryID int64) (bool, error) {
	existing, err := r.MapLookup(source, externalID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	_, err = r.db.Exec(
		"INSERT INTO category_map (source, external_id, internal_category_id) VALUES (?, ?, ?)",
		source, externalID, internalCategoryID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert category map %s/%s: %w", source, externalID, err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCategory(row rowScanner) (*Category, error) {
	var c Category
	var parent sql.NullInt64
	var external sql.NullString
	var archived int
	if err := row.Scan(&c.ID, &c.Name, &parent, &archived, &c.Source, &external); err != nil {
		return nil, err
	}
	if parent.Valid {
		v := parent.Int64
		c.ParentID = &v
	}
	c.ExternalID = external.String
	c.IsArchived = archived == 1
	return &c, nil
}

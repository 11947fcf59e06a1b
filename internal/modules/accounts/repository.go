package accounts

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Repository handles account persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new account repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounts").Logger(),
	}
}

// List returns all accounts, active first, then by name.
func (r *Repository) List() ([]Account, error) {
	rows, err := r.db.Query(
		"SELECT id, name, type, currency, is_active FROM accounts ORDER BY is_active DESC, name ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		var a Account
		var accType, currency sql.NullString
		var isActive int
		if err := rows.Scan(&a.ID, &a.Name, &accType, &currency, &isActive); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Type = accType.String
		a.Currency = currency.String
		a.IsActive = isActive == 1
		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// GetByID returns a single account, or nil if it does not exist.
func (r *Repository) GetByID(id int64) (*Account, error) {
	var a Account
	var accType, currency sql.NullString
	var isActive int
	err := r.db.QueryRow(
		"SELECT id, name, type, currency, is_active FROM accounts WHERE id = ?", id,
	).Scan(&a.ID, &a.Name, &accType, &currency, &isActive)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}

	a.Type = accType.String
	a.Currency = currency.String
	a.IsActive = isActive == 1
	return &a, nil
}

// GetByName returns the first account with the given name, or nil.
func (r *Repository) GetByName(name string) (*Account, error) {
	var id int64
	err := r.db.QueryRow(
		"SELECT id FROM accounts WHERE name = ? ORDER BY id ASC LIMIT 1", name,
	).Scan(&id)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by name %q: %w", name, err)
	}

	return r.GetByID(id)
}

// UpsertByName returns the ID of the account with the given name, creating
// it as an active account when missing. Ingest uses this so records naming
// an account the store has never seen still land somewhere queryable.
func (r *Repository) UpsertByName(name, accType, currency string) (int64, error) {
	if currency == "" {
		currency = "EUR"
	}

	var id int64
	err := r.db.QueryRow(
		"SELECT id FROM accounts WHERE name = ? ORDER BY id ASC LIMIT 1", name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up account %q: %w", name, err)
	}

	res, err := r.db.Exec(
		"INSERT INTO accounts (name, type, currency, is_active) VALUES (?, ?, ?, 1)",
		name, accType, currency,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create account %q: %w", name, err)
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get new account id: %w", err)
	}

	r.log.Info().Str("name", name).Int64("account_id", id).Msg("Created account")
	return id, nil
}

// ActiveIDs returns the IDs of all active accounts, optionally restricted
// to the given set. Order is ascending by ID.
func (r *Repository) ActiveIDs(filter []int64) ([]int64, error) {
	query := "SELECT id FROM accounts WHERE is_active = 1"
	args := []interface{}{}

	if len(filter) > 0 {
		query += " AND id IN (" + placeholders(len(filter)) + ")"
		for _, id := range filter {
			args = append(args, id)
		}
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active accounts: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan account id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account ids: %w", err)
	}

	return ids, nil
}

// placeholders returns "?, ?, ..." with n markers for IN clauses.
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

package testing

import (
	"database/sql"
	"testing"
)

// SeedAccount inserts an account row and returns its id.
func SeedAccount(t *testing.T, db *sql.DB, id int64, name, accountType string) int64 {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO accounts(id, name, type, currency, is_active) VALUES (?, ?, ?, 'EUR', 1)",
		id, name, accountType,
	)
	if err != nil {
		t.Fatalf("Failed to seed account %s: %v", name, err)
	}
	return id
}

// SeedCategory inserts an internal category row and returns its id.
func SeedCategory(t *testing.T, db *sql.DB, id int64, name string, parentID *int64) int64 {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO categories(id, name, parent_id, is_archived, source) VALUES (?, ?, ?, 0, 'internal')",
		id, name, parentID,
	)
	if err != nil {
		t.Fatalf("Failed to seed category %s: %v", name, err)
	}
	return id
}

// SeedTransaction inserts a cleared transaction row keyed by idempotency key.
// postedAt is an ISO timestamp or calendar day.
func SeedTransaction(t *testing.T, db *sql.DB, idemKey string, accountID int64, postedAt string, amountCents int64, payee string, categoryID *int64) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO transactions(idempotency_key, account_id, posted_at, amount_cents, payee, source, category_id, is_cleared)
		 VALUES (?, ?, ?, ?, ?, 'seed', ?, 1)`,
		idemKey, accountID, postedAt, amountCents, payee, categoryID,
	)
	if err != nil {
		t.Fatalf("Failed to seed transaction %s: %v", idemKey, err)
	}
}

// SeedCommitment inserts a commitment row and returns its id.
// amountCents is the positive magnitude of the outflow.
func SeedCommitment(t *testing.T, db *sql.DB, id int64, name string, amountCents int64, dueRule, nextDueDate, commitmentType string) int64 {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO commitments(id, name, amount_cents, due_rule, next_due_date, account_id, type)
		 VALUES (?, ?, ?, ?, ?, 1, ?)`,
		id, name, amountCents, dueRule, nextDueDate, commitmentType,
	)
	if err != nil {
		t.Fatalf("Failed to seed commitment %s: %v", name, err)
	}
	return id
}

// SeedInflow inserts a scheduled inflow row and returns its id.
func SeedInflow(t *testing.T, db *sql.DB, id int64, name string, amountCents int64, dueRule, nextDueDate string) int64 {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO scheduled_inflows(id, name, amount_cents, due_rule, next_due_date, account_id, type)
		 VALUES (?, ?, ?, ?, ?, 1, 'income')`,
		id, name, amountCents, dueRule, nextDueDate,
	)
	if err != nil {
		t.Fatalf("Failed to seed scheduled inflow %s: %v", name, err)
	}
	return id
}

// SeedKeyEvent inserts a key spend event row and returns its id.
// Positive plannedCents is an expense, negative an expected inflow.
func SeedKeyEvent(t *testing.T, db *sql.DB, id int64, name, eventDate string, plannedCents int64, leadTimeDays int) int64 {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO key_spend_events(id, name, event_date, planned_amount_cents, lead_time_days)
		 VALUES (?, ?, ?, ?, ?)`,
		id, name, eventDate, plannedCents, leadTimeDays,
	)
	if err != nil {
		t.Fatalf("Failed to seed key spend event %s: %v", name, err)
	}
	return id
}

// SeedAnchor upserts an account anchor row.
func SeedAnchor(t *testing.T, db *sql.DB, accountID int64, anchorDate string, balanceCents int64, minFloorCents *int64) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO account_anchors(account_id, anchor_date, anchor_balance_cents, min_floor_cents, updated_at)
		 VALUES (?, ?, ?, ?, '2026-01-01T00:00:00Z')
		 ON CONFLICT(account_id) DO UPDATE SET
		   anchor_date = excluded.anchor_date,
		   anchor_balance_cents = excluded.anchor_balance_cents,
		   min_floor_cents = excluded.min_floor_cents`,
		accountID, anchorDate, balanceCents, minFloorCents,
	)
	if err != nil {
		t.Fatalf("Failed to seed account anchor for account %d: %v", accountID, err)
	}
}

// SeedAlias inserts a questionnaire category alias.
func SeedAlias(t *testing.T, db *sql.DB, alias string, categoryID int64) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO question_category_alias(alias, category_id) VALUES (?, ?)",
		alias, categoryID,
	)
	if err != nil {
		t.Fatalf("Failed to seed alias %s: %v", alias, err)
	}
}

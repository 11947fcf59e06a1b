package accounts

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestResolver(t *testing.T) (*Resolver, *Repository, *AnchorRepository, *sql.DB) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'EUR',
			is_active INTEGER NOT NULL DEFAULT 1
		);
		CREATE TABLE account_anchors (
			account_id INTEGER PRIMARY KEY,
			anchor_date TEXT NOT NULL,
			anchor_balance_cents INTEGER NOT NULL,
			min_floor_cents INTEGER,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE transactions (
			idempotency_key TEXT,
			account_id INTEGER NOT NULL,
			posted_at TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			is_cleared INTEGER NOT NULL DEFAULT 0,
			source TEXT
		);
	`)
	require.NoError(t, err)

	accounts := NewRepository(db, log)
	anchors := NewAnchorRepository(db, log)
	return NewResolver(db, accounts, anchors, log), accounts, anchors, db
}

func seedTxn(t *testing.T, db *sql.DB, accountID int64, date string, cents int64, cleared bool) {
	t.Helper()
	flag := 0
	if cleared {
		flag = 1
	}
	_, err := db.Exec(
		"INSERT INTO transactions (account_id, posted_at, amount_cents, is_cleared, source) VALUES (?, ?, ?, ?, 'test')",
		accountID, date+"T00:00:00Z", cents, flag,
	)
	require.NoError(t, err)
}

func day(t *testing.T, iso string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", iso)
	require.NoError(t, err)
	return parsed
}

func TestUpsertByNameIsIdempotent(t *testing.T) {
	_, repo, _, _ := newTestResolver(t)

	id1, err := repo.UpsertByName("Checking", "checking", "EUR")
	require.NoError(t, err)
	id2, err := repo.UpsertByName("Checking", "checking", "EUR")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	acct, err := repo.GetByName("Checking")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, id1, acct.ID)
	assert.True(t, acct.IsActive)
}

func TestAnchorFloors(t *testing.T) {
	_, repo, anchors, _ := newTestResolver(t)

	id, err := repo.UpsertByName("Checking", "checking", "EUR")
	require.NoError(t, err)

	floor := int64(10000)
	require.NoError(t, anchors.Upsert(Anchor{
		AccountID:          id,
		AnchorDate:         "2026-03-01",
		AnchorBalanceCents: 100000,
		MinFloorCents:      &floor,
	}))

	floors, err := anchors.Floors()
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{id: 10000}, floors)
}

func TestOpeningBalanceAnchoredForward(t *testing.T) {
	resolver, repo, anchors, db := newTestResolver(t)

	id, err := repo.UpsertByName("Checking", "checking", "EUR")
	require.NoError(t, err)
	require.NoError(t, anchors.Upsert(Anchor{
		AccountID:          id,
		AnchorDate:         "2026-03-01",
		AnchorBalanceCents: 100000,
	}))

	// Pre-anchor history must not move the forward balance; the anchor
	// already accounts for it.
	seedTxn(t, db, id, "2026-02-15", 40000, true)
	seedTxn(t, db, id, "2026-03-05", -5000, true)
	seedTxn(t, db, id, "2026-03-07", -99999, false) // uncleared, ignored

	got, err := resolver.OpeningBalanceCents(day(t, "2026-03-10"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(95000), got)
}

func TestOpeningBalanceBehindAnchor(t *testing.T) {
	resolver, repo, anchors, db := newTestResolver(t)

	id, err := repo.UpsertByName("Checking", "checking", "EUR")
	require.NoError(t, err)
	require.NoError(t, anchors.Upsert(Anchor{
		AccountID:          id,
		AnchorDate:         "2026-03-01",
		AnchorBalanceCents: 100000,
	}))

	// Walking backward from the anchor backs the delta out: the balance on
	// 2026-02-20 is the anchor minus everything cleared after that day.
	seedTxn(t, db, id, "2026-02-25", -20000, true)

	got, err := resolver.OpeningBalanceCents(day(t, "2026-02-20"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(120000), got)

	// On the anchor date itself the declared balance holds exactly.
	got, err = resolver.OpeningBalanceCents(day(t, "2026-03-01"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), got)
}

func TestOpeningBalanceWithoutAnchor(t *testing.T) {
	resolver, repo, _, db := newTestResolver(t)

	id, err := repo.UpsertByName("Savings", "savings", "EUR")
	require.NoError(t, err)

	seedTxn(t, db, id, "2026-01-05", 20000, true)
	seedTxn(t, db, id, "2026-02-05", 5000, true)
	seedTxn(t, db, id, "2026-05-01", 7000, true) // after asOf, excluded

	got, err := resolver.OpeningBalanceCents(day(t, "2026-03-01"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), got)
}

func TestOpeningBalanceAccountFilter(t *testing.T) {
	resolver, repo, _, db := newTestResolver(t)

	checking, err := repo.UpsertByName("Checking", "checking", "EUR")
	require.NoError(t, err)
	savings, err := repo.UpsertByName("Savings", "savings", "EUR")
	require.NoError(t, err)

	seedTxn(t, db, checking, "2026-01-05", 10000, true)
	seedTxn(t, db, savings, "2026-01-05", 50000, true)

	got, err := resolver.OpeningBalanceCents(day(t, "2026-02-01"), []int64{savings})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), got)

	got, err = resolver.OpeningBalanceCents(day(t, "2026-02-01"), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), got)
}

func TestReconcileReportsDrift(t *testing.T) {
	resolver, repo, anchors, db := newTestResolver(t)

	checking, err := repo.UpsertByName("Checking", "checking", "EUR")
	require.NoError(t, err)
	savings, err := repo.UpsertByName("Savings", "savings", "EUR")
	require.NoError(t, err)

	// Inactive accounts stay out of the report.
	old, err := repo.UpsertByName("Old", "checking", "EUR")
	require.NoError(t, err)
	_, err = db.Exec("UPDATE accounts SET is_active = 0 WHERE id = ?", old)
	require.NoError(t, err)

	require.NoError(t, anchors.Upsert(Anchor{
		AccountID:          checking,
		AnchorDate:         "2026-03-01",
		AnchorBalanceCents: 100000,
	}))

	// Cleared history only explains 35000 of the anchored balance, so the
	// resolver and the plain sum disagree by 60000.
	seedTxn(t, db, checking, "2026-02-15", 40000, true)
	seedTxn(t, db, checking, "2026-03-10", -5000, true)
	seedTxn(t, db, savings, "2026-01-05", 20000, true)

	rows, err := resolver.Reconcile(day(t, "2026-04-01"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byName := make(map[string]Reconciliation, len(rows))
	for _, row := range rows {
		byName[row.AccountName] = row
	}

	drifted := byName["Checking"]
	assert.True(t, drifted.HasAnchor)
	assert.Equal(t, "2026-03-01", drifted.AnchorDate)
	assert.Equal(t, int64(95000), drifted.ResolvedCents)
	assert.Equal(t, int64(35000), drifted.ClearedCents)
	assert.Equal(t, int64(60000), drifted.DriftCents)

	clean := byName["Savings"]
	assert.False(t, clean.HasAnchor)
	assert.Equal(t, int64(20000), clean.ResolvedCents)
	assert.Equal(t, int64(20000), clean.ClearedCents)
	assert.Equal(t, int64(0), clean.DriftCents)
}

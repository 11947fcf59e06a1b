package questionnaire

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/stavrou/budgetd/internal/modules/accounts"
	"github.com/stavrou/budgetd/internal/modules/schedule"
	"github.com/stavrou/budgetd/internal/modules/transactions"
	budgettest "github.com/stavrou/budgetd/internal/testing"
)

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT,
			currency TEXT,
			is_active INTEGER NOT NULL DEFAULT 1
		);
		CREATE TABLE account_anchors (
			account_id INTEGER PRIMARY KEY,
			anchor_date TEXT NOT NULL,
			anchor_balance_cents INTEGER NOT NULL,
			min_floor_cents INTEGER,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE categories (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			parent_id INTEGER,
			is_archived INTEGER NOT NULL DEFAULT 0,
			source TEXT,
			external_id TEXT
		);
		CREATE TABLE transactions (
			idempotency_key TEXT NOT NULL,
			account_id INTEGER NOT NULL,
			posted_at TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			payee TEXT,
			memo TEXT,
			external_id TEXT,
			source TEXT NOT NULL,
			category_id INTEGER,
			is_cleared INTEGER NOT NULL DEFAULT 0,
			import_meta_json TEXT
		);
		CREATE UNIQUE INDEX uq_transactions_idem_key ON transactions(idempotency_key);
		CREATE TABLE commitments (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			due_rule TEXT NOT NULL,
			next_due_date TEXT,
			priority INTEGER,
			account_id INTEGER NOT NULL,
			flexible_window_days INTEGER,
			category_id INTEGER,
			type TEXT NOT NULL,
			shift_policy TEXT
		);
		CREATE TABLE question_category_alias (
			id INTEGER PRIMARY KEY,
			alias TEXT NOT NULL,
			category_id INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX uq_question_category_alias_alias ON question_category_alias(alias);
	`)
	require.NoError(t, err)

	accountRepo := accounts.NewRepository(db, log)
	anchorRepo := accounts.NewAnchorRepository(db, log)
	resolver := accounts.NewResolver(db, accountRepo, anchorRepo, log)
	transactionRepo := transactions.NewRepository(db, log)
	commitmentRepo := schedule.NewCommitmentRepository(db, log)
	aliases := NewAliasRepository(db, log)

	return NewService(transactionRepo, commitmentRepo, aliases, resolver, log), db
}

func quarterWindow() Window {
	return Window{Start: day(2026, time.January, 1), End: day(2026, time.March, 31), Token: "3m_full"}
}

func TestService_MonthlyTotalByCategory(t *testing.T) {
	svc, db := newTestService(t)

	groceries := budgettest.SeedCategory(t, db, 10, "Groceries", nil)
	budgettest.SeedAlias(t, db, "food", groceries)
	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	budgettest.SeedTransaction(t, db, "g1", 1, "2026-01-10", -5000, "Supermart", &groceries)
	budgettest.SeedTransaction(t, db, "g2", 1, "2026-02-10", -7000, "Supermart", &groceries)
	budgettest.SeedTransaction(t, db, "other", 1, "2026-01-15", -9999, "Hardware", nil)
	budgettest.SeedTransaction(t, db, "pay", 1, "2026-01-25", 300000, "Employer", nil)

	w := quarterWindow()

	t.Run("by explicit category id", func(t *testing.T) {
		result, err := svc.MonthlyTotalByCategory(w, &groceries, "")
		require.NoError(t, err)
		require.NotNil(t, result.ValueCents)
		assert.Equal(t, int64(-12000), *result.ValueCents)
		assert.Equal(t, "sum_expense_transactions_in_window", result.Method)
		assert.Equal(t, "2026-01-01", result.WindowStart)
		assert.Equal(t, "2026-03-31", result.WindowEnd)
		assert.ElementsMatch(t, []string{"g1", "g2"}, result.EvidenceIDs)
	})

	t.Run("by alias", func(t *testing.T) {
		result, err := svc.MonthlyTotalByCategory(w, nil, "food")
		require.NoError(t, err)
		assert.Equal(t, int64(-12000), *result.ValueCents)
	})

	t.Run("by category name", func(t *testing.T) {
		result, err := svc.MonthlyTotalByCategory(w, nil, "groceries")
		require.NoError(t, err)
		assert.Equal(t, int64(-12000), *result.ValueCents)
	})

	t.Run("no filter sums all expenses", func(t *testing.T) {
		result, err := svc.MonthlyTotalByCategory(w, nil, "")
		require.NoError(t, err)
		assert.Equal(t, int64(-21999), *result.ValueCents)
	})

	t.Run("unresolvable name sums all expenses", func(t *testing.T) {
		result, err := svc.MonthlyTotalByCategory(w, nil, "no-such-thing")
		require.NoError(t, err)
		assert.Equal(t, int64(-21999), *result.ValueCents)
	})
}

func TestService_MonthlyAverageByCategory(t *testing.T) {
	svc, db := newTestService(t)

	groceries := budgettest.SeedCategory(t, db, 10, "Groceries", nil)
	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	budgettest.SeedTransaction(t, db, "g1", 1, "2026-01-10", -5000, "Supermart", &groceries)
	budgettest.SeedTransaction(t, db, "g2", 1, "2026-02-10", -7000, "Supermart", &groceries)

	result, err := svc.MonthlyAverageByCategory(quarterWindow(), &groceries, "")
	require.NoError(t, err)
	assert.Equal(t, int64(-4000), *result.ValueCents)
	assert.Equal(t, "monthly_average_over_3_months", result.Method)

	// A window touching four calendar months divides by four.
	wide := Window{Start: day(2026, time.January, 1), End: day(2026, time.April, 15)}
	result, err = svc.MonthlyAverageByCategory(wide, &groceries, "")
	require.NoError(t, err)
	assert.Equal(t, int64(-3000), *result.ValueCents)
	assert.Equal(t, "monthly_average_over_4_months", result.Method)
}

func TestService_ActiveLoans(t *testing.T) {
	svc, db := newTestService(t)

	budgettest.SeedCommitment(t, db, 1, "Car Loan", 20000, "MONTHLY", "2026-05-01", "loan")
	budgettest.SeedCommitment(t, db, 2, "Rent", 80000, "MONTHLY", "2026-05-01", "rent")
	budgettest.SeedCommitment(t, db, 3, "Visa", 15000, "MONTHLY", "2026-05-15", "credit")
	budgettest.SeedCommitment(t, db, 4, "Netflix", 1599, "MONTHLY", "2026-05-03", "subscription")

	result, err := svc.ActiveLoans()
	require.NoError(t, err)
	assert.Nil(t, result.ValueCents)
	assert.Empty(t, result.WindowStart)
	assert.Equal(t, "commitments_type_filter", result.Method)
	assert.Equal(t, []string{"commitment:1", "commitment:3"}, result.EvidenceIDs)

	rows, ok := result.Rows.([]LoanRow)
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "Car Loan", rows[0].Name)
	assert.Equal(t, int64(20000), rows[0].AmountCents)
	assert.Equal(t, "loan", rows[0].Type)
	assert.Equal(t, "Visa", rows[1].Name)
}

func TestService_IncomeSummary(t *testing.T) {
	svc, db := newTestService(t)

	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	budgettest.SeedTransaction(t, db, "pay-jan", 1, "2026-01-25", 300000, "Employer", nil)
	budgettest.SeedTransaction(t, db, "pay-feb", 1, "2026-02-25", 300000, "Employer", nil)
	budgettest.SeedTransaction(t, db, "rent-jan", 1, "2026-01-01", -80000, "Landlord", nil)

	result, err := svc.IncomeSummary(quarterWindow())
	require.NoError(t, err)
	assert.Equal(t, int64(600000), *result.ValueCents)
	assert.Equal(t, "sum_income_transactions_in_window", result.Method)
	assert.ElementsMatch(t, []string{"pay-jan", "pay-feb"}, result.EvidenceIDs)
}

func TestService_MonthlyCommitmentTotal(t *testing.T) {
	svc, db := newTestService(t)

	budgettest.SeedCommitment(t, db, 1, "Netflix", 1599, "MONTHLY", "2026-05-03", "subscription")
	budgettest.SeedCommitment(t, db, 2, "Spotify", 999, "MONTHLY", "2026-05-07", "subscription")
	budgettest.SeedCommitment(t, db, 3, "Domain", 12000, "ANNUAL", "2026-09-01", "subscription")
	budgettest.SeedCommitment(t, db, 4, "Rent", 80000, "MONTHLY", "2026-05-01", "rent")

	result, err := svc.MonthlyCommitmentTotal("subscription", quarterWindow())
	require.NoError(t, err)
	// 1599 + 999 + 12000/12, negated.
	assert.Equal(t, int64(-3598), *result.ValueCents)
	assert.Equal(t, "sum_commitments_monthly_equivalent", result.Method)
	assert.Equal(t, []string{"commitment:1", "commitment:2", "commitment:3"}, result.EvidenceIDs)
	assert.Equal(t, "2026-01-01", result.WindowStart)
}

func TestService_CategoryBreakdown(t *testing.T) {
	svc, db := newTestService(t)

	groceries := budgettest.SeedCategory(t, db, 10, "Groceries", nil)
	fun := budgettest.SeedCategory(t, db, 11, "Fun", nil)
	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	budgettest.SeedTransaction(t, db, "g1", 1, "2026-01-10", -12000, "Supermart", &groceries)
	budgettest.SeedTransaction(t, db, "f1", 1, "2026-01-12", -500, "Cinema", &fun)
	budgettest.SeedTransaction(t, db, "u1", 1, "2026-01-13", -100, "Kiosk", nil)

	result, err := svc.CategoryBreakdown(quarterWindow(), 0)
	require.NoError(t, err)
	assert.Equal(t, "sum_by_category_expenses", result.Method)
	assert.Equal(t, []string{}, result.EvidenceIDs)

	rows, ok := result.Rows.([]transactions.CategoryTotal)
	require.True(t, ok)
	require.Len(t, rows, 3)
	assert.Equal(t, "Groceries", rows[0].CategoryName)
	assert.Equal(t, int64(-12000), rows[0].TotalCents)
	assert.Nil(t, rows[2].CategoryID)

	limited, err := svc.CategoryBreakdown(quarterWindow(), 1)
	require.NoError(t, err)
	assert.Len(t, limited.Rows.([]transactions.CategoryTotal), 1)
}

func TestService_SupportingTransactions(t *testing.T) {
	svc, db := newTestService(t)

	groceries := budgettest.SeedCategory(t, db, 10, "Groceries", nil)
	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	budgettest.SeedTransaction(t, db, "t1", 1, "2026-01-05", -1000, "Supermart", &groceries)
	budgettest.SeedTransaction(t, db, "t2", 1, "2026-01-12", -2000, "Supermart", &groceries)
	budgettest.SeedTransaction(t, db, "t3", 1, "2026-02-03", -3000, "Supermart", &groceries)

	first, err := svc.SupportingTransactions(quarterWindow(), &groceries, "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "list_transactions_window_filtered", first.Method)
	require.NotNil(t, first.Pagination)
	assert.Equal(t, 1, first.Pagination.Page)
	assert.Equal(t, 2, first.Pagination.PageSize)
	assert.Equal(t, 3, first.Pagination.Total)

	rows, ok := first.Rows.([]EvidenceRow)
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, "t1", rows[0].IdempotencyKey)
	assert.Equal(t, "t2", rows[1].IdempotencyKey)
	assert.Equal(t, []string{"t1", "t2"}, first.EvidenceIDs)

	second, err := svc.SupportingTransactions(quarterWindow(), &groceries, "", 2, 2)
	require.NoError(t, err)
	assert.Len(t, second.Rows.([]EvidenceRow), 1)

	// Out-of-range paging inputs are clamped rather than rejected.
	clamped, err := svc.SupportingTransactions(quarterWindow(), &groceries, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, clamped.Pagination.Page)
	assert.Equal(t, 50, clamped.Pagination.PageSize)
}

func TestService_Subscriptions(t *testing.T) {
	svc, db := newTestService(t)

	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	budgettest.SeedCommitment(t, db, 1, "Netflix", 1599, "MONTHLY", "2026-05-03", "subscription")
	budgettest.SeedCommitment(t, db, 2, "Internet", 4500, "MONTHLY", "2026-05-10", "bill")
	budgettest.SeedCommitment(t, db, 3, "Car Loan", 20000, "MONTHLY", "2026-05-01", "loan")

	// Spotify recurs three months at a steady amount: detected.
	budgettest.SeedTransaction(t, db, "sp-1", 1, "2026-01-07", -999, "Spotify", nil)
	budgettest.SeedTransaction(t, db, "sp-2", 1, "2026-02-07", -999, "Spotify", nil)
	budgettest.SeedTransaction(t, db, "sp-3", 1, "2026-03-07", -999, "Spotify", nil)
	// One-off: too few months.
	budgettest.SeedTransaction(t, db, "cafe", 1, "2026-01-20", -450, "Cafe", nil)
	// Gym varies too much month to month.
	budgettest.SeedTransaction(t, db, "gym-1", 1, "2026-01-04", -2000, "Gym", nil)
	budgettest.SeedTransaction(t, db, "gym-2", 1, "2026-02-04", -3000, "Gym", nil)
	budgettest.SeedTransaction(t, db, "gym-3", 1, "2026-03-04", -2000, "Gym", nil)
	// Already covered by the Netflix commitment, so not re-reported.
	budgettest.SeedTransaction(t, db, "nf-1", 1, "2026-01-03", -1599, "netflix", nil)
	budgettest.SeedTransaction(t, db, "nf-2", 1, "2026-02-03", -1599, "netflix", nil)
	budgettest.SeedTransaction(t, db, "nf-3", 1, "2026-03-03", -1599, "netflix", nil)

	result, err := svc.Subscriptions(quarterWindow())
	require.NoError(t, err)
	assert.Equal(t, "commitments_type_bill_or_subscription", result.Method)

	rows, ok := result.Rows.([]SubscriptionRow)
	require.True(t, ok)
	require.Len(t, rows, 3)
	assert.Equal(t, "Netflix", rows[0].Name)
	assert.Equal(t, "commitment", rows[0].Source)
	assert.Equal(t, "Internet", rows[1].Name)
	assert.Equal(t, "Spotify", rows[2].Name)
	assert.Equal(t, "observed", rows[2].Source)
	assert.Equal(t, int64(999), rows[2].AmountCents)
	assert.Equal(t, 3, rows[2].Months)

	assert.Contains(t, result.EvidenceIDs, "commitment:1")
	assert.Contains(t, result.EvidenceIDs, "commitment:2")
	assert.Contains(t, result.EvidenceIDs, "sp-1")
	assert.NotContains(t, result.EvidenceIDs, "gym-1")
	assert.NotContains(t, result.EvidenceIDs, "nf-1")
}

func TestService_HouseholdFixedCosts(t *testing.T) {
	svc, db := newTestService(t)

	budgettest.SeedCommitment(t, db, 1, "Rent", 80000, "MONTHLY", "2026-05-01", "rent")
	budgettest.SeedCommitment(t, db, 2, "Internet", 4500, "MONTHLY", "2026-05-10", "bill")
	budgettest.SeedCommitment(t, db, 3, "Netflix", 1599, "MONTHLY", "2026-05-03", "subscription")
	budgettest.SeedCommitment(t, db, 4, "Car Loan", 20000, "MONTHLY", "2026-05-01", "loan")

	result, err := svc.HouseholdFixedCosts()
	require.NoError(t, err)
	assert.Equal(t, int64(-84500), *result.ValueCents)
	assert.Equal(t, "sum_commitments_fixed_types", result.Method)
	assert.Empty(t, result.WindowStart)
	assert.Equal(t, []string{"commitment:1", "commitment:2"}, result.EvidenceIDs)
}

func TestService_MinClearedBalance(t *testing.T) {
	svc, db := newTestService(t)

	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	budgettest.SeedAnchor(t, db, 1, "2026-01-01", 100000, nil)
	budgettest.SeedTransaction(t, db, "d1", 1, "2026-03-01", -30000, "Shop", nil)
	budgettest.SeedTransaction(t, db, "d2", 1, "2026-03-10", -80000, "Garage", nil)
	budgettest.SeedTransaction(t, db, "c1", 1, "2026-03-20", 90000, "Employer", nil)

	// Uncleared rows never move the cleared balance.
	_, err := db.Exec(`
		INSERT INTO transactions(idempotency_key, account_id, posted_at, amount_cents, payee, source, is_cleared)
		VALUES ('pending', 1, '2026-03-15', -500000, 'Pending', 'seed', 0)`)
	require.NoError(t, err)

	result, err := svc.MinClearedBalance(60, day(2026, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, int64(-10000), *result.ValueCents)
	assert.Equal(t, "min_cleared_balance_from_transactions_last_60_days", result.Method)
	assert.Equal(t, "2026-01-31", result.WindowStart)
	assert.Equal(t, "2026-03-31", result.WindowEnd)
}

func TestAliasRepository(t *testing.T) {
	svc, db := newTestService(t)

	groceries := budgettest.SeedCategory(t, db, 10, "Groceries", nil)
	transport := budgettest.SeedCategory(t, db, 11, "Transport", nil)

	require.NoError(t, svc.aliases.Upsert("food", groceries))

	id, err := svc.aliases.Resolve("FOOD")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, groceries, *id)

	// Re-pointing an alias replaces the mapping.
	require.NoError(t, svc.aliases.Upsert("food", transport))
	id, err = svc.aliases.Resolve("food")
	require.NoError(t, err)
	assert.Equal(t, transport, *id)

	// Category names resolve when no alias matches.
	id, err = svc.aliases.Resolve("groceries")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, groceries, *id)

	id, err = svc.aliases.Resolve("unknown")
	require.NoError(t, err)
	assert.Nil(t, id)

	all, err := svc.aliases.List()
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"food": transport}, all)
}

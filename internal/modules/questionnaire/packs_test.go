package questionnaire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	budgettest "github.com/stavrou/budgetd/internal/testing"
)

func TestAssemblePack_UnknownPack(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AssemblePack("pension-review", "", day(2026, time.April, 15))
	assert.ErrorIs(t, err, ErrUnknownPack)
}

func TestAssemblePack_NameAliases(t *testing.T) {
	svc, db := newTestService(t)
	budgettest.SeedAccount(t, db, 1, "Checking", "checking")

	for _, name := range []string{"loan", "LOAN", "loan-basics", "Loan Basics", "loan_application_basics"} {
		pack, err := svc.AssemblePack(name, "", day(2026, time.April, 15))
		require.NoError(t, err, name)
		assert.Equal(t, "loan_application_basics", pack.Pack, name)
	}
	for _, name := range []string{"affordability", "affordability-snapshot", "Affordability Snapshot"} {
		pack, err := svc.AssemblePack(name, "", day(2026, time.April, 15))
		require.NoError(t, err, name)
		assert.Equal(t, "affordability_snapshot", pack.Pack, name)
	}
}

func TestAssemblePack_LoanApplicationBasics(t *testing.T) {
	svc, db := newTestService(t)
	asOf := day(2026, time.April, 15)

	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	housing := budgettest.SeedCategory(t, db, 20, "Housing", nil)
	utilities := budgettest.SeedCategory(t, db, 21, "Utilities", nil)
	childcare := budgettest.SeedCategory(t, db, 22, "Childcare", nil)
	transport := budgettest.SeedCategory(t, db, 23, "Transport", nil)
	discretionary := budgettest.SeedCategory(t, db, 24, "Discretionary", nil)
	budgettest.SeedAlias(t, db, "housing", housing)
	budgettest.SeedAlias(t, db, "utilities", utilities)
	budgettest.SeedAlias(t, db, "childcare", childcare)
	budgettest.SeedAlias(t, db, "transport", transport)
	budgettest.SeedAlias(t, db, "discretionary", discretionary)

	budgettest.SeedTransaction(t, db, "pay-jan", 1, "2026-01-25", 300000, "Employer", nil)
	budgettest.SeedTransaction(t, db, "pay-feb", 1, "2026-02-25", 300000, "Employer", nil)
	budgettest.SeedTransaction(t, db, "pay-mar", 1, "2026-03-25", 300000, "Employer", nil)
	budgettest.SeedTransaction(t, db, "rent-jan", 1, "2026-01-01", -80000, "Landlord", &housing)
	budgettest.SeedTransaction(t, db, "rent-feb", 1, "2026-02-01", -80000, "Landlord", &housing)
	budgettest.SeedTransaction(t, db, "rent-mar", 1, "2026-03-01", -80000, "Landlord", &housing)
	budgettest.SeedTransaction(t, db, "pow-jan", 1, "2026-01-15", -4000, "Power Co", &utilities)
	budgettest.SeedTransaction(t, db, "pow-feb", 1, "2026-02-15", -4000, "Power Co", &utilities)
	budgettest.SeedTransaction(t, db, "pow-mar", 1, "2026-03-15", -4000, "Power Co", &utilities)

	budgettest.SeedCommitment(t, db, 1, "Netflix", 1599, "MONTHLY", "2026-05-03", "subscription")
	budgettest.SeedCommitment(t, db, 2, "Car Loan", 20000, "MONTHLY", "2026-05-01", "loan")

	pack, err := svc.AssemblePack("loan", "", asOf)
	require.NoError(t, err)

	assert.Equal(t, "loan_application_basics", pack.Pack)
	assert.Equal(t, "3m_full", pack.Period)
	require.Len(t, pack.Sections, 8)

	wantSections := []struct{ id, title string }{
		{"income", "Income (last 3 full months)"},
		{"active_loans", "Active Loans"},
		{"housing_cost", "Housing Cost (avg 3m)"},
		{"utilities", "Utilities (avg 3m)"},
		{"childcare", "Childcare (avg 3m)"},
		{"transport", "Transport (avg 3m)"},
		{"subscriptions", "Subscriptions (monthly total)"},
		{"discretionary", "Discretionary (avg 3m)"},
	}
	for i, want := range wantSections {
		assert.Equal(t, want.id, pack.Sections[i].ID)
		assert.Equal(t, want.title, pack.Sections[i].Title)
		require.Len(t, pack.Sections[i].Items, 1, want.id)
	}

	income := pack.Sections[0].Items[0]
	assert.Equal(t, int64(900000), *income.ValueCents)
	assert.Equal(t, "sum_income_transactions_in_window", income.Method)
	assert.Equal(t, "2026-01-01", income.WindowStart)
	assert.Equal(t, "2026-03-31", income.WindowEnd)

	loans := pack.Sections[1].Items[0]
	loanRows := loans.Rows.([]LoanRow)
	require.Len(t, loanRows, 1)
	assert.Equal(t, "Car Loan", loanRows[0].Name)

	housingItem := pack.Sections[2].Items[0]
	assert.Equal(t, int64(-80000), *housingItem.ValueCents)
	assert.Equal(t, "monthly_average_over_3_months", housingItem.Method)

	utilitiesItem := pack.Sections[3].Items[0]
	assert.Equal(t, int64(-4000), *utilitiesItem.ValueCents)

	// No childcare spend: a zero answer, not a missing item.
	childcareItem := pack.Sections[4].Items[0]
	assert.Equal(t, int64(0), *childcareItem.ValueCents)
	assert.Empty(t, childcareItem.EvidenceIDs)

	subs := pack.Sections[6].Items[0]
	assert.Equal(t, int64(-1599), *subs.ValueCents)
	assert.Equal(t, "sum_commitments_subscriptions", subs.Method)
	assert.Equal(t, []string{"commitment:1"}, subs.EvidenceIDs)
	require.Len(t, subs.Rows.([]SubscriptionRow), 1)
}

func TestAssemblePack_LoanPackIgnoresPeriod(t *testing.T) {
	svc, db := newTestService(t)
	budgettest.SeedAccount(t, db, 1, "Checking", "checking")

	pack, err := svc.AssemblePack("loan", "12m", day(2026, time.April, 15))
	require.NoError(t, err)
	assert.Equal(t, "3m_full", pack.Period)
	assert.Equal(t, "2026-01-01", pack.Sections[0].Items[0].WindowStart)
	assert.Equal(t, "2026-03-31", pack.Sections[0].Items[0].WindowEnd)
}

func TestAssemblePack_AffordabilitySnapshot(t *testing.T) {
	svc, db := newTestService(t)
	asOf := day(2026, time.April, 15)

	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	budgettest.SeedAnchor(t, db, 1, "2026-01-01", 50000, nil)
	budgettest.SeedTransaction(t, db, "pay-jan", 1, "2026-01-25", 300000, "Employer", nil)
	budgettest.SeedTransaction(t, db, "pay-feb", 1, "2026-02-25", 300000, "Employer", nil)
	budgettest.SeedTransaction(t, db, "pay-mar", 1, "2026-03-25", 300000, "Employer", nil)
	budgettest.SeedTransaction(t, db, "e-jan", 1, "2026-01-10", -10000, "Shop", nil)
	budgettest.SeedTransaction(t, db, "e-feb", 1, "2026-02-10", -20000, "Shop", nil)
	budgettest.SeedTransaction(t, db, "e-mar", 1, "2026-03-10", -30000, "Shop", nil)
	budgettest.SeedCommitment(t, db, 1, "Rent", 80000, "MONTHLY", "2026-05-01", "rent")
	budgettest.SeedCommitment(t, db, 2, "Internet", 4500, "MONTHLY", "2026-05-10", "bill")

	pack, err := svc.AssemblePack("affordability", "", asOf)
	require.NoError(t, err)

	assert.Equal(t, "affordability_snapshot", pack.Pack)
	assert.Equal(t, "3m_full", pack.Period)
	require.Len(t, pack.Sections, 3)

	netVsFixed := pack.Sections[0]
	assert.Equal(t, "net_vs_fixed", netVsFixed.ID)
	assert.Equal(t, "Net Income vs Fixed Costs", netVsFixed.Title)
	require.Len(t, netVsFixed.Items, 3)

	income, fixed, net := netVsFixed.Items[0], netVsFixed.Items[1], netVsFixed.Items[2]
	assert.Equal(t, int64(900000), *income.ValueCents)
	assert.Equal(t, int64(-84500), *fixed.ValueCents)
	assert.Equal(t, int64(815500), *net.ValueCents)
	assert.Equal(t, "net_after_fixed_cents", net.Label)
	assert.Equal(t, "sum(income, fixed_costs)", net.Method)
	assert.Len(t, net.EvidenceIDs, 5)

	volatility := pack.Sections[1]
	assert.Equal(t, "volatility", volatility.ID)
	assert.Equal(t, "Monthly Volatility (std dev)", volatility.Title)
	require.Len(t, volatility.Items, 1)
	// Sample std dev of 10000, 20000, 30000.
	assert.Equal(t, int64(10000), *volatility.Items[0].ValueCents)
	assert.Equal(t, "stddev_monthly_expense_totals", volatility.Items[0].Method)

	minBuffer := pack.Sections[2]
	assert.Equal(t, "min_buffer", minBuffer.ID)
	assert.Equal(t, "Min Cleared Balance (last 60 days)", minBuffer.Title)
	require.Len(t, minBuffer.Items, 1)
	// Opening at 2026-02-14 is 50000 - 10000 + 300000 - 20000; nothing in the
	// trailing window ever dips below it.
	assert.Equal(t, int64(320000), *minBuffer.Items[0].ValueCents)
	assert.Equal(t, "min_cleared_balance_from_transactions_last_60_days", minBuffer.Items[0].Method)
	assert.Equal(t, "2026-02-15", minBuffer.Items[0].WindowStart)
	assert.Equal(t, "2026-04-15", minBuffer.Items[0].WindowEnd)
}

func TestAssemblePack_AffordabilityHonorsPeriod(t *testing.T) {
	svc, db := newTestService(t)
	asOf := day(2026, time.April, 15)

	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	budgettest.SeedTransaction(t, db, "e-jan", 1, "2026-01-10", -10000, "Shop", nil)
	budgettest.SeedTransaction(t, db, "e-feb", 1, "2026-02-10", -20000, "Shop", nil)
	budgettest.SeedTransaction(t, db, "e-mar", 1, "2026-03-10", -30000, "Shop", nil)

	pack, err := svc.AssemblePack("affordability", "6m", asOf)
	require.NoError(t, err)
	assert.Equal(t, "6m", pack.Period)

	// Six calendar months, three of them empty: std dev over
	// 0, 0, 10000, 20000, 30000, 0.
	volatility := pack.Sections[1].Items[0]
	assert.Equal(t, int64(12649), *volatility.ValueCents)
	assert.Equal(t, "2025-11-01", volatility.WindowStart)
	assert.Equal(t, "2026-04-15", volatility.WindowEnd)
}

func TestMonthWindows(t *testing.T) {
	full := monthWindows(Window{Start: day(2026, time.January, 1), End: day(2026, time.March, 31)})
	require.Len(t, full, 3)
	assert.Equal(t, "2026-01-01", full[0].StartISO())
	assert.Equal(t, "2026-01-31", full[0].EndISO())
	assert.Equal(t, "2026-02-01", full[1].StartISO())
	assert.Equal(t, "2026-02-28", full[1].EndISO())
	assert.Equal(t, "2026-03-31", full[2].EndISO())

	partial := monthWindows(Window{Start: day(2026, time.February, 15), End: day(2026, time.April, 10)})
	require.Len(t, partial, 3)
	assert.Equal(t, "2026-02-15", partial[0].StartISO())
	assert.Equal(t, "2026-02-28", partial[0].EndISO())
	assert.Equal(t, "2026-04-01", partial[2].StartISO())
	assert.Equal(t, "2026-04-10", partial[2].EndISO())
}

func TestSumSubscriptionAmounts(t *testing.T) {
	assert.Equal(t, int64(0), sumSubscriptionAmounts(nil))
	assert.Equal(t, int64(-2598), sumSubscriptionAmounts([]SubscriptionRow{
		{Name: "Netflix", AmountCents: 1599},
		{Name: "Spotify", AmountCents: 999},
	}))
}

package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func isoDays(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, isoDay(d))
	}
	return out
}

func TestParseDueRule_Spellings(t *testing.T) {
	tests := []struct {
		raw  string
		kind ruleKind
	}{
		{"ONE_OFF", ruleOneOff},
		{"none", ruleOneOff},
		{"", ruleOneOff},
		{"WEEKLY", ruleEveryNDays},
		{"biweekly", ruleEveryNDays},
		{"MONTHLY", ruleMonthly},
		{"MONTHLY_BY_DATE", ruleMonthly},
		{"ANNUAL", ruleAnnual},
		{"yearly", ruleAnnual},
		{"quarterly", ruleOneOff}, // unknown collapses to one-off
		{"fixed_date(2025-03-15)", ruleFixedDate},
		{"monthly_on(31)", ruleMonthlyOn},
		{"weekly_on(FRI)", ruleWeeklyOn},
		{"weekly_on(4)", ruleWeeklyOn},
		{"every_n_days(10, 2025-01-04)", ruleEveryNDays},
		{"every_n_days(10)", ruleEveryNDays},
		{"monthly_on(32)", ruleOneOff},
		{"fixed_date(bogus)", ruleOneOff},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.kind, parseDueRule(tt.raw).kind)
		})
	}
}

func TestOccurrences_WeeklyStepsFromSeed(t *testing.T) {
	rule := parseDueRule("WEEKLY")
	got := rule.occurrences(day("2025-01-04"), day("2025-01-01"), day("2025-01-31"))
	assert.Equal(t, []string{"2025-01-04", "2025-01-11", "2025-01-18", "2025-01-25"}, isoDays(got))
}

func TestOccurrences_SkipBeforeStartKeepsAnchor(t *testing.T) {
	// A monthly rule seeded on the 15th must keep firing on the 15th even
	// when the window opens mid-cycle; the first of the window is not a
	// re-anchor point.
	rule := parseDueRule("MONTHLY")
	got := rule.occurrences(day("2025-01-15"), day("2025-02-01"), day("2025-04-30"))
	assert.Equal(t, []string{"2025-02-15", "2025-03-15", "2025-04-15"}, isoDays(got))
}

func TestOccurrences_MonthlyClampRecovers(t *testing.T) {
	// Seeded on the 31st: short months clamp, long months recover.
	rule := parseDueRule("MONTHLY")
	got := rule.occurrences(day("2025-01-31"), day("2025-01-01"), day("2025-04-30"))
	assert.Equal(t, []string{"2025-01-31", "2025-02-28", "2025-03-31", "2025-04-30"}, isoDays(got))
}

func TestOccurrences_AnnualClampsLeapDay(t *testing.T) {
	rule := parseDueRule("ANNUAL")
	got := rule.occurrences(day("2024-02-29"), day("2024-01-01"), day("2026-12-31"))
	assert.Equal(t, []string{"2024-02-29", "2025-02-28", "2026-02-28"}, isoDays(got))
}

func TestOccurrences_OneOffOnlyInsideWindow(t *testing.T) {
	rule := parseDueRule("ONE_OFF")
	assert.Empty(t, rule.occurrences(day("2025-05-01"), day("2025-01-01"), day("2025-01-31")))
	got := rule.occurrences(day("2025-01-10"), day("2025-01-01"), day("2025-01-31"))
	assert.Equal(t, []string{"2025-01-10"}, isoDays(got))
}

func TestOccurrences_FixedDateIgnoresSeed(t *testing.T) {
	rule := parseDueRule("fixed_date(2025-06-01)")
	got := rule.occurrences(day("2025-01-01"), day("2025-05-01"), day("2025-06-30"))
	assert.Equal(t, []string{"2025-06-01"}, isoDays(got))
}

func TestOccurrences_MonthlyOnClamps(t *testing.T) {
	rule := parseDueRule("monthly_on(31)")
	got := rule.occurrences(time.Time{}, day("2025-01-01"), day("2025-03-31"))
	assert.Equal(t, []string{"2025-01-31", "2025-02-28", "2025-03-31"}, isoDays(got))
}

func TestOccurrences_WeeklyOnGrid(t *testing.T) {
	// 2025-01-01 is a Wednesday; Fridays in January are 3, 10, 17, 24, 31.
	rule := parseDueRule("weekly_on(FRI)")
	got := rule.occurrences(time.Time{}, day("2025-01-01"), day("2025-01-31"))
	assert.Equal(t, []string{"2025-01-03", "2025-01-10", "2025-01-17", "2025-01-24", "2025-01-31"}, isoDays(got))
}

func TestOccurrences_EveryNDaysWithAnchor(t *testing.T) {
	rule := parseDueRule("every_n_days(10, 2025-01-04)")
	require.Equal(t, ruleEveryNDays, rule.kind)

	// Window far from the anchor: occurrences stay on the anchor grid.
	got := rule.occurrences(day("2025-01-04"), day("2025-02-01"), day("2025-02-28"))
	assert.Equal(t, []string{"2025-02-03", "2025-02-13", "2025-02-23"}, isoDays(got))
}

func TestOccurrences_EmptyWindow(t *testing.T) {
	rule := parseDueRule("WEEKLY")
	assert.Empty(t, rule.occurrences(day("2025-01-04"), day("2025-02-01"), day("2025-01-01")))
}

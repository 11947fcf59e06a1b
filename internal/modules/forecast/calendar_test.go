package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stavrou/budgetd/internal/modules/keyevents"
	"github.com/stavrou/budgetd/internal/modules/schedule"
)

func int64p(v int64) *int64 { return &v }

// The canonical fixture: a weekly payday landing on a Saturday, rent due on
// a Sunday with a two-day flexible window, and a one-off birthday.
func fixtureRows() ([]schedule.ScheduledInflow, []schedule.Commitment, []keyevents.KeySpendEvent) {
	inflows := []schedule.ScheduledInflow{
		{ID: 1, Name: "Payday", AmountCents: 10000, DueRule: "WEEKLY", NextDueDate: "2025-01-04", AccountID: 1, Type: "payroll"},
	}
	commitments := []schedule.Commitment{
		{ID: 1, Name: "Rent", AmountCents: 5000, DueRule: "MONTHLY", NextDueDate: "2025-01-05", AccountID: 1, FlexibleWindowDays: int64p(2), Type: "bill"},
	}
	events := []keyevents.KeySpendEvent{
		{ID: 1, Name: "Birthday", EventDate: "2025-01-05", RepeatRule: "ONE_OFF", PlannedAmountCents: 2000, ShiftPolicy: "AS_SCHEDULED"},
	}
	return inflows, commitments, events
}

func TestExpandEntries_ShiftsAndSigns(t *testing.T) {
	inflows, commitments, events := fixtureRows()
	entries := ExpandEntries(day("2025-01-01"), day("2025-01-10"), inflows, commitments, events)
	require.Len(t, entries, 3)

	// Rent: Sunday the 5th shifted back to Friday the 3rd (window 2 allows it).
	rent := entries[0]
	assert.Equal(t, "2025-01-03", rent.Date)
	assert.Equal(t, EntryCommitment, rent.Type)
	assert.Equal(t, int64(-5000), rent.AmountCents)
	assert.True(t, rent.ShiftApplied)
	assert.Equal(t, ShiftPrev, rent.Policy)
	assert.Equal(t, "📄", rent.UIMarker)

	// Birthday: planned positive, entry subtracts, no shift.
	birthday := entries[1]
	assert.Equal(t, "2025-01-05", birthday.Date)
	assert.Equal(t, EntryKeyEvent, birthday.Type)
	assert.Equal(t, int64(-2000), birthday.AmountCents)
	assert.False(t, birthday.ShiftApplied)
	assert.Equal(t, "🎂", birthday.UIMarker)

	// Payday: Saturday the 4th shifted forward to Monday the 6th.
	payday := entries[2]
	assert.Equal(t, "2025-01-06", payday.Date)
	assert.Equal(t, EntryInflow, payday.Type)
	assert.Equal(t, int64(10000), payday.AmountCents)
	assert.True(t, payday.ShiftApplied)
	assert.Equal(t, ShiftNext, payday.Policy)
}

func TestExpandEntries_FlexibleWindowBlocksLongShift(t *testing.T) {
	commitments := []schedule.Commitment{
		{ID: 1, Name: "Rent", AmountCents: 5000, DueRule: "ONE_OFF", NextDueDate: "2025-01-05", AccountID: 1, FlexibleWindowDays: int64p(1), Type: "bill"},
	}
	entries := ExpandEntries(day("2025-01-01"), day("2025-01-10"), nil, commitments, nil)
	require.Len(t, entries, 1)

	// Sunday needs a two-day move to reach Friday; window of one blocks it.
	assert.Equal(t, "2025-01-05", entries[0].Date)
	assert.False(t, entries[0].ShiftApplied)
}

func TestExpandEntries_NegativePlannedEventAdds(t *testing.T) {
	events := []keyevents.KeySpendEvent{
		{ID: 1, Name: "Tax refund", EventDate: "2025-01-08", RepeatRule: "ONE_OFF", PlannedAmountCents: -30000},
	}
	entries := ExpandEntries(day("2025-01-01"), day("2025-01-10"), nil, nil, events)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(30000), entries[0].AmountCents)
}

func TestExpandEntries_SameDayOrdering(t *testing.T) {
	inflows := []schedule.ScheduledInflow{
		{ID: 9, Name: "Salary", AmountCents: 100, DueRule: "ONE_OFF", NextDueDate: "2025-01-08", AccountID: 1, Type: "payroll"},
	}
	commitments := []schedule.Commitment{
		{ID: 3, Name: "B", AmountCents: 100, DueRule: "ONE_OFF", NextDueDate: "2025-01-08", AccountID: 1, Type: "bill"},
		{ID: 1, Name: "A", AmountCents: 100, DueRule: "ONE_OFF", NextDueDate: "2025-01-08", AccountID: 1, Type: "bill"},
	}
	events := []keyevents.KeySpendEvent{
		{ID: 2, Name: "Gift", EventDate: "2025-01-08", PlannedAmountCents: 100},
	}

	entries := ExpandEntries(day("2025-01-01"), day("2025-01-10"), inflows, commitments, events)
	require.Len(t, entries, 4)

	// Same day: inflow first, then commitments by source id, key event last.
	assert.Equal(t, EntryInflow, entries[0].Type)
	assert.Equal(t, int64(1), entries[1].SourceID)
	assert.Equal(t, int64(3), entries[2].SourceID)
	assert.Equal(t, EntryKeyEvent, entries[3].Type)
}

func TestExpandEntries_LeadWindowFlag(t *testing.T) {
	lead := int64(14)
	events := []keyevents.KeySpendEvent{
		{ID: 1, Name: "Trip", EventDate: "2025-01-10", PlannedAmountCents: 1000, LeadTimeDays: &lead},
		{ID: 2, Name: "Far trip", EventDate: "2025-02-20", PlannedAmountCents: 1000, LeadTimeDays: &lead},
		{ID: 3, Name: "No lead", EventDate: "2025-01-10", PlannedAmountCents: 1000},
	}
	entries := ExpandEntries(day("2025-01-01"), day("2025-03-01"), nil, nil, events)
	require.Len(t, entries, 3)

	byID := map[int64]Entry{}
	for _, e := range entries {
		byID[e.SourceID] = e
	}

	require.NotNil(t, byID[1].IsWithinLeadWindow)
	assert.True(t, *byID[1].IsWithinLeadWindow)
	require.NotNil(t, byID[2].IsWithinLeadWindow)
	assert.False(t, *byID[2].IsWithinLeadWindow)
	assert.Nil(t, byID[3].IsWithinLeadWindow)
}

func TestExpandEntries_AccountFilterViaExpander(t *testing.T) {
	// Pure filter helpers: commitments on other accounts drop, global key
	// events stay.
	commitments := []schedule.Commitment{
		{ID: 1, Name: "Keep", AmountCents: 100, DueRule: "ONE_OFF", NextDueDate: "2025-01-08", AccountID: 1, Type: "bill"},
		{ID: 2, Name: "Drop", AmountCents: 100, DueRule: "ONE_OFF", NextDueDate: "2025-01-08", AccountID: 2, Type: "bill"},
	}
	acct := int64(2)
	events := []keyevents.KeySpendEvent{
		{ID: 1, Name: "Global", EventDate: "2025-01-08", PlannedAmountCents: 100},
		{ID: 2, Name: "Scoped", EventDate: "2025-01-08", PlannedAmountCents: 100, AccountID: &acct},
	}

	allowed := map[int64]bool{1: true}
	kept := filterCommitments(commitments, allowed)
	require.Len(t, kept, 1)
	assert.Equal(t, "Keep", kept[0].Name)

	keptEvents := filterEvents(events, allowed)
	require.Len(t, keptEvents, 1)
	assert.Equal(t, "Global", keptEvents[0].Name)
}

func TestExpandEntries_EmptyAndInverted(t *testing.T) {
	inflows, commitments, events := fixtureRows()
	assert.Empty(t, ExpandEntries(day("2025-01-10"), day("2025-01-01"), inflows, commitments, events))
	assert.Empty(t, ExpandEntries(day("2025-01-01"), day("2025-01-10"), nil, nil, nil))
}

func TestKeyEventMarkers(t *testing.T) {
	assert.Equal(t, "🎂", keyEventMarker("Maria's Birthday"))
	assert.Equal(t, "🎂", keyEventMarker("bday dinner"))
	assert.Equal(t, "🎄", keyEventMarker("Christmas presents"))
	assert.Equal(t, "🎄", keyEventMarker("Xmas market"))
	assert.Equal(t, "🎄", keyEventMarker("Summer holiday"))
	assert.Equal(t, "🎯", keyEventMarker("New laptop"))
}

// Package forecast builds the deterministic cash-flow calendar, the balance
// series derived from it, the what-if simulator, and the blended statistical
// overlay.
package forecast

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/modules/keyevents"
	"github.com/stavrou/budgetd/internal/modules/schedule"
)

// Entry types in balance-application order: same-day inflows land before
// commitments, commitments before key events.
const (
	EntryInflow     = "inflow"
	EntryCommitment = "commitment"
	EntryKeyEvent   = "key_event"
)

var typeRank = map[string]int{
	EntryInflow:     0,
	EntryCommitment: 1,
	EntryKeyEvent:   2,
}

// Shift policies for nominal dates that land on a weekend.
const (
	ShiftAsScheduled = "AS_SCHEDULED"
	ShiftPrev        = "PREV_BUSINESS_DAY"
	ShiftNext        = "NEXT_BUSINESS_DAY"
)

// Entry is one dated line of the expanded calendar. Date carries the
// post-shift day, where ordering and balance application happen; window
// membership and lead windows follow the nominal day.
type Entry struct {
	Date               string `json:"date"`
	Type               string `json:"type"`
	Name               string `json:"name"`
	AmountCents        int64  `json:"amount_cents"`
	SourceID           int64  `json:"source_id"`
	ShiftApplied       bool   `json:"shift_applied"`
	Policy             string `json:"policy"`
	UIMarker           string `json:"ui_marker,omitempty"`
	IsWithinLeadWindow *bool  `json:"is_within_lead_window"`
}

// Expander turns scheduled rows into dated calendar entries.
type Expander struct {
	commitments *schedule.CommitmentRepository
	inflows     *schedule.InflowRepository
	keyEvents   *keyevents.Repository
	log         zerolog.Logger
}

// NewExpander creates a calendar expander over the scheduled-row repositories.
func NewExpander(
	commitments *schedule.CommitmentRepository,
	inflows *schedule.InflowRepository,
	keyEvents *keyevents.Repository,
	log zerolog.Logger,
) *Expander {
	return &Expander{
		commitments: commitments,
		inflows:     inflows,
		keyEvents:   keyEvents,
		log:         log.With().Str("component", "calendar_expander").Logger(),
	}
}

// Expand loads all scheduled rows and produces the ordered entry list for
// [start, end]. accountIDs, when non-empty, keeps only commitments and
// inflows on those accounts; key events without an account are global and
// always included.
func (x *Expander) Expand(start, end time.Time, accountIDs []int64) ([]Entry, error) {
	commitments, err := x.commitments.List()
	if err != nil {
		return nil, err
	}
	inflows, err := x.inflows.List()
	if err != nil {
		return nil, err
	}
	events, err := x.keyEvents.List()
	if err != nil {
		return nil, err
	}

	if len(accountIDs) > 0 {
		allowed := make(map[int64]bool, len(accountIDs))
		for _, id := range accountIDs {
			allowed[id] = true
		}
		commitments = filterCommitments(commitments, allowed)
		inflows = filterInflows(inflows, allowed)
		events = filterEvents(events, allowed)
	}

	return ExpandEntries(start, end, inflows, commitments, events), nil
}

// ExpandEntries is the pure expansion over in-memory rows. Deterministic:
// identical rows and window produce an identical slice.
func ExpandEntries(
	start, end time.Time,
	inflows []schedule.ScheduledInflow,
	commitments []schedule.Commitment,
	events []keyevents.KeySpendEvent,
) []Entry {
	if end.Before(start) {
		return []Entry{}
	}

	entries := make([]Entry, 0, 64)

	for _, in := range inflows {
		seed := parseDay(in.NextDueDate)
		if seed.IsZero() {
			continue
		}
		rule := parseDueRule(in.DueRule)
		policy := normalizePolicy(in.ShiftPolicy, ShiftNext)
		for _, nominal := range rule.occurrences(seed, start, end) {
			shifted, applied := applyShift(nominal, policy, nil)
			entries = append(entries, Entry{
				Date:         isoDay(shifted),
				Type:         EntryInflow,
				Name:         in.Name,
				AmountCents:  in.AmountCents,
				SourceID:     in.ID,
				ShiftApplied: applied,
				Policy:       policy,
			})
		}
	}

	for _, c := range commitments {
		seed := parseDay(c.NextDueDate)
		if seed.IsZero() {
			continue
		}
		rule := parseDueRule(c.DueRule)
		policy := normalizePolicy(c.ShiftPolicy, ShiftPrev)
		for _, nominal := range rule.occurrences(seed, start, end) {
			shifted, applied := applyShift(nominal, policy, c.FlexibleWindowDays)
			entries = append(entries, Entry{
				Date:         isoDay(shifted),
				Type:         EntryCommitment,
				Name:         c.Name,
				AmountCents:  -abs64(c.AmountCents),
				SourceID:     c.ID,
				ShiftApplied: applied,
				Policy:       policy,
				UIMarker:     "📄",
			})
		}
	}

	for _, ev := range events {
		seed := parseDay(ev.EventDate)
		if seed.IsZero() {
			continue
		}
		rule := parseDueRule(ev.RepeatRule)
		policy := normalizePolicy(ev.ShiftPolicy, ShiftAsScheduled)
		for _, nominal := range rule.occurrences(seed, start, end) {
			shifted, applied := applyShift(nominal, policy, nil)
			within := withinLeadWindow(nominal, start, ev.LeadTimeDays)
			entries = append(entries, Entry{
				Date:               isoDay(shifted),
				Type:               EntryKeyEvent,
				Name:               ev.Name,
				AmountCents:        -ev.PlannedAmountCents,
				SourceID:           ev.ID,
				ShiftApplied:       applied,
				Policy:             policy,
				UIMarker:           keyEventMarker(ev.Name),
				IsWithinLeadWindow: within,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entryLess(entries[i], entries[j]) })

	return entries
}

// applyShift moves a weekend date per policy. A PREV shift constrained by a
// flexible window stays on the nominal date when the move would exceed the
// window.
func applyShift(d time.Time, policy string, windowDays *int64) (time.Time, bool) {
	if policy == ShiftAsScheduled || !isWeekend(d) {
		return d, false
	}

	switch policy {
	case ShiftPrev:
		shifted := d
		for isWeekend(shifted) {
			shifted = shifted.AddDate(0, 0, -1)
		}
		if windowDays != nil {
			gap := int64(d.Sub(shifted).Hours() / 24)
			if gap > *windowDays {
				return d, false
			}
		}
		return shifted, true
	case ShiftNext:
		shifted := d
		for isWeekend(shifted) {
			shifted = shifted.AddDate(0, 0, 1)
		}
		return shifted, true
	}
	return d, false
}

func normalizePolicy(raw, fallback string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case ShiftAsScheduled:
		return ShiftAsScheduled
	case ShiftPrev:
		return ShiftPrev
	case ShiftNext:
		return ShiftNext
	}
	return fallback
}

func withinLeadWindow(nominal, horizonStart time.Time, leadDays *int64) *bool {
	if leadDays == nil {
		return nil
	}
	daysUntil := int64(nominal.Sub(horizonStart).Hours() / 24)
	v := daysUntil >= 0 && daysUntil <= *leadDays
	return &v
}

func keyEventMarker(name string) string {
	n := strings.ToLower(name)
	if strings.Contains(n, "birthday") || strings.Contains(n, "bday") {
		return "🎂"
	}
	if strings.Contains(n, "christmas") || strings.Contains(n, "xmas") || strings.Contains(n, "holiday") {
		return "🎄"
	}
	return "🎯"
}

func filterCommitments(rows []schedule.Commitment, allowed map[int64]bool) []schedule.Commitment {
	out := rows[:0]
	for _, r := range rows {
		if allowed[r.AccountID] {
			out = append(out, r)
		}
	}
	return out
}

func filterInflows(rows []schedule.ScheduledInflow, allowed map[int64]bool) []schedule.ScheduledInflow {
	out := rows[:0]
	for _, r := range rows {
		if allowed[r.AccountID] {
			out = append(out, r)
		}
	}
	return out
}

func filterEvents(rows []keyevents.KeySpendEvent, allowed map[int64]bool) []keyevents.KeySpendEvent {
	out := rows[:0]
	for _, r := range rows {
		if r.AccountID == nil || allowed[*r.AccountID] {
			out = append(out, r)
		}
	}
	return out
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func isoDay(d time.Time) string {
	return d.Format("2006-01-02")
}

func parseDay(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return d
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

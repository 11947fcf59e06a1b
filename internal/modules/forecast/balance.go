package forecast

import "sort"

// ComputeBalances folds entries into a sparse map of ISO day → end-of-day
// balance. Only days that carry at least one entry are keyed; consumers
// carry the last value forward across gaps.
func ComputeBalances(openingCents int64, entries []Entry) map[string]int64 {
	balances := make(map[string]int64)
	running := openingCents
	currentDay := ""
	var delta int64

	for _, e := range entries {
		if currentDay == "" {
			currentDay = e.Date
		}
		if e.Date != currentDay {
			running += delta
			balances[currentDay] = running
			currentDay = e.Date
			delta = 0
		}
		delta += e.AmountCents
	}
	if currentDay != "" {
		running += delta
		balances[currentDay] = running
	}

	return balances
}

// MinBalance returns the lowest balance in the series and its date, taking
// the earliest date on ties. ok is false for an empty series.
func MinBalance(balances map[string]int64) (cents int64, date string, ok bool) {
	days := sortedDays(balances)
	if len(days) == 0 {
		return 0, "", false
	}
	cents = balances[days[0]]
	date = days[0]
	for _, d := range days[1:] {
		if balances[d] < cents {
			cents = balances[d]
			date = d
		}
	}
	return cents, date, true
}

// NextCliff returns the first keyed date on or after fromDay whose balance
// touches or breaches the floor, with that balance. ok is false when the
// series never dips.
func NextCliff(balances map[string]int64, fromDay string, floorCents int64) (date string, cents int64, ok bool) {
	for _, d := range sortedDays(balances) {
		if d >= fromDay && balances[d] <= floorCents {
			return d, balances[d], true
		}
	}
	return "", 0, false
}

// BalanceOn returns the carry-forward balance on day: the value keyed at the
// latest keyed date ≤ day, or the opening balance when no entry has landed
// yet.
func BalanceOn(balances map[string]int64, openingCents int64, day string) int64 {
	bal := openingCents
	for _, d := range sortedDays(balances) {
		if d > day {
			break
		}
		bal = balances[d]
	}
	return bal
}

// MinBalanceFrom returns the minimum carry-forward balance over keyed dates
// ≥ fromDay. When no keyed date is ≥ fromDay the balance as of fromDay
// holds for the rest of the horizon.
func MinBalanceFrom(balances map[string]int64, openingCents int64, fromDay string) int64 {
	min := BalanceOn(balances, openingCents, fromDay)
	for _, d := range sortedDays(balances) {
		if d < fromDay {
			continue
		}
		if balances[d] < min {
			min = balances[d]
		}
	}
	return min
}

func sortedDays(balances map[string]int64) []string {
	days := make([]string, 0, len(balances))
	for d := range balances {
		days = append(days, d)
	}
	sort.Strings(days)
	return days
}

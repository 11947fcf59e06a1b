package forecast

import "sort"

// TightEpsilonCents bounds how close to the buffer floor a day may land
// before it counts as tight.
const TightEpsilonCents = 2000

// SimulationResult is the safety decision for a hypothetical spend.
type SimulationResult struct {
	Safe               bool     `json:"safe"`
	NewMinBalanceCents int64    `json:"new_min_balance_cents"`
	NewMinBalanceDate  string   `json:"new_min_balance_date"`
	TightDays          []string `json:"tight_days"`
	MaxSafeTodayCents  int64    `json:"max_safe_today_cents"`
}

// SimulateSpend recomputes the balance series with a synthetic outflow of
// amountCents on spendDay and reports whether the horizon minimum stays at
// or above the buffer floor. The decision always uses the deterministic
// series; blended mode only changes what callers display alongside it.
func SimulateSpend(openingCents int64, entries []Entry, spendDay string, amountCents, bufferFloorCents int64) SimulationResult {
	balances := ComputeBalances(openingCents, withSyntheticSpend(entries, spendDay, amountCents))

	minCents, minDate, ok := MinBalance(balances)
	if !ok {
		minCents = openingCents
		minDate = spendDay
	}

	tight := make([]string, 0)
	for _, d := range sortedDays(balances) {
		diff := balances[d] - bufferFloorCents
		if diff < 0 {
			diff = -diff
		}
		if diff <= TightEpsilonCents {
			tight = append(tight, d)
		}
	}

	return SimulationResult{
		Safe:               minCents >= bufferFloorCents,
		NewMinBalanceCents: minCents,
		NewMinBalanceDate:  minDate,
		TightDays:          tight,
		MaxSafeTodayCents:  MaxSafeSpend(openingCents, entries, spendDay, bufferFloorCents),
	}
}

// MaxSafeSpend is the largest x such that spending x on spendDay keeps the
// horizon minimum at or above the floor, found by integer binary search over
// [0, opening + max(0, Σ inflows)].
func MaxSafeSpend(openingCents int64, entries []Entry, spendDay string, bufferFloorCents int64) int64 {
	var inflows int64
	for _, e := range entries {
		if e.AmountCents > 0 {
			inflows += e.AmountCents
		}
	}
	if inflows < 0 {
		inflows = 0
	}
	hi := openingCents + inflows
	if hi < 0 {
		hi = 0
	}

	isSafe := func(x int64) bool {
		balances := ComputeBalances(openingCents, withSyntheticSpend(entries, spendDay, x))
		minCents, _, ok := MinBalance(balances)
		if !ok {
			minCents = openingCents
		}
		return minCents >= bufferFloorCents
	}
	return binarySearchMaxSpend(isSafe, 0, hi)
}

// binarySearchMaxSpend finds the largest x in [lo, hi] with isSafe(x),
// assuming safety is monotone: once unsafe, always unsafe for larger x.
// Returns lo when even lo is unsafe.
func binarySearchMaxSpend(isSafe func(int64) bool, lo, hi int64) int64 {
	if !isSafe(lo) {
		return lo
	}
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if isSafe(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// withSyntheticSpend copies entries and folds in the hypothetical outflow.
// The copy is re-sorted so downstream invariants hold.
func withSyntheticSpend(entries []Entry, spendDay string, amountCents int64) []Entry {
	if amountCents == 0 {
		return entries
	}
	sim := make([]Entry, len(entries), len(entries)+1)
	copy(sim, entries)
	sim = append(sim, Entry{
		Date:        spendDay,
		Type:        EntryKeyEvent,
		Name:        "simulated_spend",
		AmountCents: -amountCents,
		Policy:      ShiftAsScheduled,
	})
	sort.SliceStable(sim, func(i, j int) bool { return entryLess(sim[i], sim[j]) })
	return sim
}

func entryLess(a, b Entry) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if typeRank[a.Type] != typeRank[b.Type] {
		return typeRank[a.Type] < typeRank[b.Type]
	}
	return a.SourceID < b.SourceID
}

package questionnaire

import (
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// minBufferDays is the trailing window for the affordability pack's minimum
// cleared balance.
const minBufferDays = 60

// AssemblePack builds a named pack of answers. The loan pack always uses the
// last three full months; the affordability pack honors the period token.
func (s *Service) AssemblePack(name, period string, asOf time.Time) (*Pack, error) {
	switch normalizePackName(name) {
	case "loan", "loan-basics", "loan-application-basics", "loan_application_basics":
		return s.loanApplicationBasics(asOf)
	case "affordability", "affordability-snapshot", "affordability_snapshot":
		return s.affordabilitySnapshot(period, asOf)
	default:
		return nil, ErrUnknownPack
	}
}

func normalizePackName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

func (s *Service) loanApplicationBasics(asOf time.Time) (*Pack, error) {
	// Lenders ask about complete months, so the window is pinned to 3m_full
	// regardless of any requested period.
	w := ParsePeriod("3m_full", asOf)

	income, err := s.IncomeSummary(w)
	if err != nil {
		return nil, err
	}
	loans, err := s.ActiveLoans()
	if err != nil {
		return nil, err
	}

	averages := make(map[string]*Result, 5)
	for _, alias := range []string{"housing", "utilities", "childcare", "transport", "discretionary"} {
		avg, err := s.MonthlyAverageByCategory(w, nil, alias)
		if err != nil {
			return nil, err
		}
		averages[alias] = avg
	}

	subs, err := s.Subscriptions(w)
	if err != nil {
		return nil, err
	}
	subsTotal := sumSubscriptionAmounts(subs.Rows.([]SubscriptionRow))
	subscriptions := &Result{
		ValueCents:  &subsTotal,
		Rows:        subs.Rows,
		WindowStart: w.StartISO(),
		WindowEnd:   w.EndISO(),
		Method:      "sum_commitments_subscriptions",
		EvidenceIDs: subs.EvidenceIDs,
	}

	return &Pack{
		Pack:   "loan_application_basics",
		Period: w.Token,
		Sections: []Section{
			{ID: "income", Title: "Income (last 3 full months)", Items: []*Result{income}},
			{ID: "active_loans", Title: "Active Loans", Items: []*Result{loans}},
			{ID: "housing_cost", Title: "Housing Cost (avg 3m)", Items: []*Result{averages["housing"]}},
			{ID: "utilities", Title: "Utilities (avg 3m)", Items: []*Result{averages["utilities"]}},
			{ID: "childcare", Title: "Childcare (avg 3m)", Items: []*Result{averages["childcare"]}},
			{ID: "transport", Title: "Transport (avg 3m)", Items: []*Result{averages["transport"]}},
			{ID: "subscriptions", Title: "Subscriptions (monthly total)", Items: []*Result{subscriptions}},
			{ID: "discretionary", Title: "Discretionary (avg 3m)", Items: []*Result{averages["discretionary"]}},
		},
	}, nil
}

func (s *Service) affordabilitySnapshot(period string, asOf time.Time) (*Pack, error) {
	w := ParsePeriod(period, asOf)

	income, err := s.IncomeSummary(w)
	if err != nil {
		return nil, err
	}
	fixed, err := s.HouseholdFixedCosts()
	if err != nil {
		return nil, err
	}

	netValue := *income.ValueCents + *fixed.ValueCents
	netEvidence := make([]string, 0, len(income.EvidenceIDs)+len(fixed.EvidenceIDs))
	netEvidence = append(netEvidence, income.EvidenceIDs...)
	netEvidence = append(netEvidence, fixed.EvidenceIDs...)
	net := &Result{
		Label:       "net_after_fixed_cents",
		ValueCents:  &netValue,
		WindowStart: w.StartISO(),
		WindowEnd:   w.EndISO(),
		Method:      "sum(income, fixed_costs)",
		EvidenceIDs: netEvidence,
	}

	volatility, err := s.expenseVolatility(w)
	if err != nil {
		return nil, err
	}
	minBuffer, err := s.MinClearedBalance(minBufferDays, asOf)
	if err != nil {
		return nil, err
	}

	return &Pack{
		Pack:   "affordability_snapshot",
		Period: w.Token,
		Sections: []Section{
			{ID: "net_vs_fixed", Title: "Net Income vs Fixed Costs", Items: []*Result{income, fixed, net}},
			{ID: "volatility", Title: "Monthly Volatility (std dev)", Items: []*Result{volatility}},
			{ID: "min_buffer", Title: "Min Cleared Balance (last 60 days)", Items: []*Result{minBuffer}},
		},
	}, nil
}

// expenseVolatility is the sample standard deviation of absolute expense
// totals per calendar month across the window.
func (s *Service) expenseVolatility(w Window) (*Result, error) {
	totals := make([]float64, 0, w.Months())
	evidence := make([]string, 0)
	for _, mw := range monthWindows(w) {
		total, evid, err := s.transactions.SumExpenses(mw.StartISO(), mw.EndISO(), nil)
		if err != nil {
			return nil, err
		}
		totals = append(totals, float64(abs64(total)))
		evidence = append(evidence, evid...)
	}

	var deviation float64
	if len(totals) > 1 {
		deviation = stat.StdDev(totals, nil)
	}
	value := int64(math.Round(deviation))

	return &Result{
		ValueCents:  &value,
		WindowStart: w.StartISO(),
		WindowEnd:   w.EndISO(),
		Method:      "stddev_monthly_expense_totals",
		EvidenceIDs: evidence,
	}, nil
}

// monthWindows splits a window into per-calendar-month sub-windows, the last
// one clipped to the window end.
func monthWindows(w Window) []Window {
	out := make([]Window, 0, w.Months())
	cur := time.Date(w.Start.Year(), w.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !cur.After(w.End) {
		nextMonth := cur.AddDate(0, 1, 0)
		end := nextMonth.AddDate(0, 0, -1)
		if end.After(w.End) {
			end = w.End
		}
		start := cur
		if start.Before(w.Start) {
			start = w.Start
		}
		out = append(out, Window{Start: start, End: end})
		cur = nextMonth
	}
	return out
}

func sumSubscriptionAmounts(rows []SubscriptionRow) int64 {
	var total int64
	for _, r := range rows {
		total += r.AmountCents
	}
	return -abs64(total)
}

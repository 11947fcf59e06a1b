// Package schedule stores the recurring rows the calendar expander walks:
// commitments (planned outflows) and scheduled inflows. Amounts are positive
// magnitudes; the expander applies the sign.
package schedule

import "strings"

// Commitment is a recurring planned outflow: rent, a loan payment, a
// subscription. AmountCents is the positive magnitude of each occurrence.
type Commitment struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	AmountCents        int64  `json:"amount_cents"`
	DueRule            string `json:"due_rule"`
	NextDueDate        string `json:"next_due_date"`
	Priority           *int64 `json:"priority"`
	AccountID          int64  `json:"account_id"`
	FlexibleWindowDays *int64 `json:"flexible_window_days"`
	CategoryID         *int64 `json:"category_id"`
	Type               string `json:"type"`
	ShiftPolicy        string `json:"shift_policy,omitempty"`
}

// ScheduledInflow is a recurring expected credit: salary, benefits, a
// standing transfer in.
type ScheduledInflow struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	DueRule     string `json:"due_rule"`
	NextDueDate string `json:"next_due_date"`
	AccountID   int64  `json:"account_id"`
	Type        string `json:"type"`
	ShiftPolicy string `json:"shift_policy,omitempty"`
}

// MonthlyEquivalentCents normalizes an amount to a per-month figure for
// display: weekly ×52/12, biweekly ×26/12, annual ÷12, else unchanged.
func MonthlyEquivalentCents(amountCents int64, dueRule string) int64 {
	switch strings.ToUpper(strings.TrimSpace(dueRule)) {
	case "WEEKLY":
		return int64(float64(amountCents)*52.0/12.0 + 0.5)
	case "BIWEEKLY":
		return int64(float64(amountCents)*26.0/12.0 + 0.5)
	case "ANNUAL":
		return int64(float64(amountCents)/12.0 + 0.5)
	default:
		return amountCents
	}
}

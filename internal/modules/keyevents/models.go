// Package keyevents stores key spend events: dated, named spending moments
// (birthdays, holidays, planned purchases) that the calendar expander folds
// into the forecast and flags inside their lead window.
package keyevents

// KeySpendEvent is a planned spending moment. PlannedAmountCents is positive
// for an outflow; a negative value models an expected windfall.
type KeySpendEvent struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	EventDate          string `json:"event_date"`
	RepeatRule         string `json:"repeat_rule,omitempty"`
	PlannedAmountCents int64  `json:"planned_amount_cents"`
	CategoryID         *int64 `json:"category_id"`
	LeadTimeDays       *int64 `json:"lead_time_days"`
	ShiftPolicy        string `json:"shift_policy,omitempty"`
	AccountID          *int64 `json:"account_id"`
}

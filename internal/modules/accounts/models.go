// Package accounts manages bank account records, operator-declared balance
// anchors, and the opening-balance resolver that forecast and questionnaire
// code build on. An anchor is a known-true balance for one account at one
// date; the resolver walks cleared transactions forward or backward from it.
package accounts

// Account is a single bank or wallet account. Amounts elsewhere reference
// accounts by ID; only active accounts participate in balance math.
type Account struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Currency string `json:"currency"`
	IsActive bool   `json:"is_active"`
}

// Anchor is an operator-declared ground-truth balance for an account at a
// specific date. MinFloorCents, when set, is the overdraft threshold used
// by the alerts engine for that account.
type Anchor struct {
	AccountID          int64  `json:"account_id"`
	AnchorDate         string `json:"anchor_date"`
	AnchorBalanceCents int64  `json:"anchor_balance_cents"`
	MinFloorCents      *int64 `json:"min_floor_cents"`
	UpdatedAt          string `json:"updated_at"`
}

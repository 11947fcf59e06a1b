// Package questionnaire answers the standard money questions banks and
// benefit forms ask: income over a window, fixed costs, active loans,
// per-category averages. Every answer carries its method name and the
// idempotency keys of the transactions behind it, so a number on a form can
// be traced back to rows in the ledger. Answers group into packs, and packs
// export to hashed CSV/PDF files.
package questionnaire

import "errors"

// ErrUnknownPack is returned when a pack name matches nothing.
var ErrUnknownPack = errors.New("unknown pack")

// ErrUnknownQuery is returned when a query name matches no primitive.
var ErrUnknownQuery = errors.New("unknown query")

// Result is one answered question. ValueCents is present for scalar answers,
// Rows for list answers; EvidenceIDs holds transaction idempotency keys or
// commitment:{id} references.
type Result struct {
	Label       string      `json:"label,omitempty"`
	ValueCents  *int64      `json:"value_cents,omitempty"`
	Rows        interface{} `json:"rows,omitempty"`
	Pagination  *Pagination `json:"pagination,omitempty"`
	WindowStart string      `json:"window_start,omitempty"`
	WindowEnd   string      `json:"window_end,omitempty"`
	Method      string      `json:"method"`
	EvidenceIDs []string    `json:"evidence_ids"`
}

// Pagination describes a page of supporting transactions.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// LoanRow is one active loan commitment.
type LoanRow struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	DueRule     string `json:"due_rule"`
	NextDueDate string `json:"next_due_date"`
	AccountID   int64  `json:"account_id"`
	Type        string `json:"type"`
}

// SubscriptionRow is one recurring charge: either a commitment typed
// bill/subscription, or a payee observed recurring in the ledger.
type SubscriptionRow struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	DueRule     string `json:"due_rule,omitempty"`
	NextDueDate string `json:"next_due_date,omitempty"`
	Source      string `json:"source"`
	Months      int    `json:"months,omitempty"`
}

// EvidenceRow is one supporting transaction.
type EvidenceRow struct {
	IdempotencyKey string `json:"idempotency_key"`
	PostedAt       string `json:"posted_at"`
	AmountCents    int64  `json:"amount_cents"`
	Payee          string `json:"payee"`
	Memo           string `json:"memo"`
	CategoryID     *int64 `json:"category_id"`
}

// Pack is an assembled bundle of answers.
type Pack struct {
	Pack     string    `json:"pack"`
	Period   string    `json:"period"`
	Sections []Section `json:"sections"`
}

// Section groups related answers under a heading.
type Section struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Items []*Result `json:"items"`
}

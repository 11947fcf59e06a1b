// Package transactions stores the ledger of ingested bank records. Every
// downstream consumer (the forecast overlay, the questionnaire layer, the
// alerts engine) reads history through the window queries here rather than
// issuing its own SQL against the transactions table.
package transactions

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Transaction is one ingested bank record. AmountCents is signed: debits
// negative, credits positive. The idempotency key makes re-ingestion an
// upsert instead of a duplicate row.
type Transaction struct {
	IdempotencyKey string `json:"idempotency_key"`
	AccountID      int64  `json:"account_id"`
	PostedAt       string `json:"posted_at"`
	AmountCents    int64  `json:"amount_cents"`
	Payee          string `json:"payee"`
	Memo           string `json:"memo"`
	ExternalID     string `json:"external_id,omitempty"`
	Source         string `json:"source"`
	CategoryID     *int64 `json:"category_id"`
	IsCleared      bool   `json:"is_cleared"`
	ImportMeta     string `json:"import_meta,omitempty"`
}

// CategoryTotal is one row of a per-category expense breakdown.
type CategoryTotal struct {
	CategoryID   *int64 `json:"category_id"`
	CategoryName string `json:"category_name"`
	TotalCents   int64  `json:"total_cents"`
}

// SpendRow is the slim projection the blended overlay statistics consume:
// the posted day, the signed amount, and enough context to decide whether
// the row counts as variable spend.
type SpendRow struct {
	PostedDay    string
	AmountCents  int64
	CategoryName string
	Payee        string
	ImportMeta   string
}

// PayeeMonthlyDebit is one payee's debit total for one calendar month,
// with the contributing idempotency keys.
type PayeeMonthlyDebit struct {
	Payee       string
	Month       string
	TotalCents  int64
	EvidenceIDs []string
}

// IdempotencyKey derives the canonical dedupe key for an upstream record:
// hex(sha256(source|external_id|posted_at|amount_cents)). Records without a
// stable external ID (CSV rows) hash their canonical fields into externalID
// before calling this.
func IdempotencyKey(source, externalID, postedAt string, amountCents int64) string {
	payload := fmt.Sprintf("%s|%s|%s|%d", source, externalID, postedAt, amountCents)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

package accounts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Resolver computes opening balances for arbitrary dates. Accounts with an
// anchor start from the declared balance and apply cleared-transaction
// deltas between the anchor date and the requested date; accounts without
// one sum all cleared transactions up to it. Only active accounts count.
//
// The result is a pure function of stored transactions and anchors, so the
// same store state always yields the same opening balance.
type Resolver struct {
	db       *sql.DB
	accounts *Repository
	anchors  *AnchorRepository
	log      zerolog.Logger
}

// NewResolver creates a new opening-balance resolver.
func NewResolver(db *sql.DB, accounts *Repository, anchors *AnchorRepository, log zerolog.Logger) *Resolver {
	return &Resolver{
		db:       db,
		accounts: accounts,
		anchors:  anchors,
		log:      log.With().Str("service", "anchor_resolver").Logger(),
	}
}

// OpeningBalanceCents returns the combined balance of the given accounts at
// end of day asOf. A nil or empty filter means all active accounts.
func (r *Resolver) OpeningBalanceCents(asOf time.Time, accountIDs []int64) (int64, error) {
	ids, err := r.accounts.ActiveIDs(accountIDs)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	all, err := r.anchors.List()
	if err != nil {
		return 0, err
	}
	anchored := make(map[int64]Anchor, len(all))
	for _, a := range all {
		anchored[a.AccountID] = a
	}

	asOfISO := asOf.Format("2006-01-02")

	var total int64
	plain := make([]int64, 0, len(ids))
	for _, id := range ids {
		anchor, ok := anchored[id]
		if !ok {
			plain = append(plain, id)
			continue
		}
		part, err := r.anchoredBalance(id, anchor, asOfISO)
		if err != nil {
			return 0, err
		}
		total += part
	}

	if len(plain) > 0 {
		part, err := r.clearedSumThrough(plain, asOfISO)
		if err != nil {
			return 0, err
		}
		total += part
	}

	return total, nil
}

// anchoredBalance walks cleared transactions from the anchor date to asOf.
// Forward of the anchor the deltas add; behind it they are backed out, so
// the balance at the anchor date itself is exactly the declared balance.
func (r *Resolver) anchoredBalance(accountID int64, anchor Anchor, asOfISO string) (int64, error) {
	if asOfISO >= anchor.AnchorDate {
		var delta int64
		err := r.db.QueryRow(`
            SELECT COALESCE(SUM(amount_cents), 0)
            FROM transactions
            WHERE account_id = ? AND is_cleared = 1
              AND DATE(posted_at) > ? AND DATE(posted_at) <= ?`,
			accountID, anchor.AnchorDate, asOfISO,
		).Scan(&delta)
		if err != nil {
			return 0, fmt.Errorf("failed to sum cleared after anchor for account %d: %w", accountID, err)
		}
		return anchor.AnchorBalanceCents + delta, nil
	}

	var delta int64
	err := r.db.QueryRow(`
        SELECT COALESCE(SUM(amount_cents), 0)
        FROM transactions
        WHERE account_id = ? AND is_cleared = 1
          AND DATE(posted_at) > ? AND DATE(posted_at) <= ?`,
		accountID, asOfISO, anchor.AnchorDate,
	).Scan(&delta)
	if err != nil {
		return 0, fmt.Errorf("failed to sum cleared before anchor for account %d: %w", accountID, err)
	}
	return anchor.AnchorBalanceCents - delta, nil
}

// clearedSumThrough sums cleared transactions up to and including asOf for
// accounts without an anchor.
func (r *Resolver) clearedSumThrough(accountIDs []int64, asOfISO string) (int64, error) {
	query := `
        SELECT COALESCE(SUM(t.amount_cents), 0)
        FROM transactions t
        JOIN accounts a ON a.id = t.account_id
        WHERE a.is_active = 1
          AND t.is_cleared = 1
          AND DATE(t.posted_at) <= ?
          AND t.account_id IN (` + placeholders(len(accountIDs)) + `)`

	args := make([]interface{}, 0, len(accountIDs)+1)
	args = append(args, asOfISO)
	for _, id := range accountIDs {
		args = append(args, id)
	}

	var total int64
	if err := r.db.QueryRow(query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum cleared transactions: %w", err)
	}
	return total, nil
}

// Reconciliation compares the two balance readings for one account: the
// anchor-resolved figure and the plain sum of all cleared transactions.
// For accounts without an anchor the two agree by construction.
type Reconciliation struct {
	AccountID     int64  `json:"account_id"`
	AccountName   string `json:"account_name"`
	HasAnchor     bool   `json:"has_anchor"`
	AnchorDate    string `json:"anchor_date,omitempty"`
	ResolvedCents int64  `json:"resolved_cents"`
	ClearedCents  int64  `json:"cleared_cents"`
	DriftCents    int64  `json:"drift_cents"`
}

// Reconcile reads both figures for every active account at end of day asOf.
// Nonzero drift means the cleared history does not add up to the declared
// anchor balance, usually because rows predating the anchor were never
// ingested.
func (r *Resolver) Reconcile(asOf time.Time) ([]Reconciliation, error) {
	accts, err := r.accounts.List()
	if err != nil {
		return nil, err
	}
	all, err := r.anchors.List()
	if err != nil {
		return nil, err
	}
	anchored := make(map[int64]Anchor, len(all))
	for _, a := range all {
		anchored[a.AccountID] = a
	}

	asOfISO := asOf.Format("2006-01-02")

	out := make([]Reconciliation, 0, len(accts))
	for _, acct := range accts {
		if !acct.IsActive {
			continue
		}

		cleared, err := r.clearedSumThrough([]int64{acct.ID}, asOfISO)
		if err != nil {
			return nil, err
		}

		rec := Reconciliation{
			AccountID:     acct.ID,
			AccountName:   acct.Name,
			ResolvedCents: cleared,
			ClearedCents:  cleared,
		}
		if anchor, ok := anchored[acct.ID]; ok {
			resolved, err := r.anchoredBalance(acct.ID, anchor, asOfISO)
			if err != nil {
				return nil, err
			}
			rec.HasAnchor = true
			rec.AnchorDate = anchor.AnchorDate
			rec.ResolvedCents = resolved
			rec.DriftCents = resolved - cleared
		}
		out = append(out, rec)
	}

	return out, nil
}

package transactions

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Repository handles transaction persistence and window queries.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new transaction repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "transactions").Logger(),
	}
}

const upsertSQL = `
    INSERT INTO transactions (
        idempotency_key, account_id, posted_at, amount_cents,
        payee, memo, external_id, source, category_id, is_cleared, import_meta_json
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT(idempotency_key) DO UPDATE SET
        account_id = excluded.account_id,
        posted_at = excluded.posted_at,
        amount_cents = excluded.amount_cents,
        payee = excluded.payee,
        memo = excluded.memo,
        external_id = excluded.external_id,
        source = excluded.source,
        category_id = COALESCE(excluded.category_id, transactions.category_id),
        is_cleared = excluded.is_cleared,
        import_meta_json = excluded.import_meta_json`

// Upsert inserts or refreshes a transaction keyed by its idempotency key.
// An incoming NULL category never clears a previously assigned one.
func (r *Repository) Upsert(t Transaction) error {
	_, err := r.db.Exec(upsertSQL, upsertArgs(t)...)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", t.IdempotencyKey, err)
	}
	return nil
}

// UpsertTx is Upsert inside a caller-owned transaction. Ingest batches use
// this so the cursor advance commits atomically with the final upsert.
func (r *Repository) UpsertTx(tx *sql.Tx, t Transaction) error {
	_, err := tx.Exec(upsertSQL, upsertArgs(t)...)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", t.IdempotencyKey, err)
	}
	return nil
}

func upsertArgs(t Transaction) []interface{} {
	var category interface{}
	if t.CategoryID != nil {
		category = *t.CategoryID
	}
	var meta interface{}
	if t.ImportMeta != "" {
		meta = t.ImportMeta
	}
	cleared := 0
	if t.IsCleared {
		cleared = 1
	}
	return []interface{}{
		t.IdempotencyKey, t.AccountID, t.PostedAt, t.AmountCents,
		t.Payee, t.Memo, nullable(t.ExternalID), t.Source, category, cleared, meta,
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// GetByKey returns the transaction with the given idempotency key, or nil.
func (r *Repository) GetByKey(key string) (*Transaction, error) {
	row := r.db.QueryRow(`
        SELECT idempotency_key, account_id, posted_at, amount_cents,
               payee, memo, external_id, source, category_id, is_cleared, import_meta_json
        FROM transactions WHERE idempotency_key = ?`, key)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", key, err)
	}
	return t, nil
}

// Count returns the total number of stored transactions.
func (r *Repository) Count() (int64, error) {
	var n int64
	if err := r.db.QueryRow("SELECT COUNT(*) FROM transactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// SumExpenses returns the signed total of outflows posted in [start, end],
// optionally restricted to one category, plus the idempotency keys of the
// rows that contributed. Totals are negative or zero.
func (r *Repository) SumExpenses(startISO, endISO string, categoryID *int64) (int64, []string, error) {
	query := `
        SELECT COALESCE(SUM(amount_cents), 0), GROUP_CONCAT(idempotency_key)
        FROM transactions
        WHERE DATE(posted_at) BETWEEN ? AND ? AND amount_cents < 0`
	args := []interface{}{startISO, endISO}
	if categoryID != nil {
		query += " AND category_id = ?"
		args = append(args, *categoryID)
	}

	var total int64
	var concat sql.NullString
	if err := r.db.QueryRow(query, args...).Scan(&total, &concat); err != nil {
		return 0, nil, fmt.Errorf("failed to sum expenses: %w", err)
	}
	return total, splitEvidence(concat), nil
}

// SumIncome returns the total of inflows posted in [start, end] plus
// contributing idempotency keys.
func (r *Repository) SumIncome(startISO, endISO string) (int64, []string, error) {
	var total int64
	var concat sql.NullString
	err := r.db.QueryRow(`
        SELECT COALESCE(SUM(amount_cents), 0), GROUP_CONCAT(idempotency_key)
        FROM transactions
        WHERE DATE(posted_at) BETWEEN ? AND ? AND amount_cents > 0`,
		startISO, endISO,
	).Scan(&total, &concat)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to sum income: %w", err)
	}
	return total, splitEvidence(concat), nil
}

// ListWindow returns one page of transactions posted in [start, end],
// optionally filtered by category, plus the unfiltered window total for
// pagination. Ordering is by posted day then idempotency key so pages are
// stable across identical store states.
func (r *Repository) ListWindow(startISO, endISO string, categoryID *int64, page, pageSize int) ([]Transaction, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	where := "DATE(posted_at) BETWEEN ? AND ?"
	args := []interface{}{startISO, endISO}
	if categoryID != nil {
		where += " AND category_id = ?"
		args = append(args, *categoryID)
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM transactions WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count window transactions: %w", err)
	}

	query := `
        SELECT idempotency_key, account_id, posted_at, amount_cents,
               payee, memo, external_id, source, category_id, is_cleared, import_meta_json
        FROM transactions
        WHERE ` + where + `
        ORDER BY DATE(posted_at) ASC, idempotency_key ASC
        LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list window transactions: %w", err)
	}
	defer rows.Close()

	list := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		list = append(list, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating transactions: %w", err)
	}
	return list, total, nil
}

// CategoryBreakdown sums outflows per category over [start, end], largest
// spend first (most negative total leads).
func (r *Repository) CategoryBreakdown(startISO, endISO string) ([]CategoryTotal, error) {
	rows, err := r.db.Query(`
        SELECT c.id, c.name, COALESCE(SUM(t.amount_cents), 0) AS total_cents
        FROM transactions t
        LEFT JOIN categories c ON c.id = t.category_id
        WHERE DATE(t.posted_at) BETWEEN ? AND ? AND t.amount_cents < 0
        GROUP BY c.id, c.name
        ORDER BY total_cents ASC`,
		startISO, endISO,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query category breakdown: %w", err)
	}
	defer rows.Close()

	out := make([]CategoryTotal, 0)
	for rows.Next() {
		var ct CategoryTotal
		var id sql.NullInt64
		var name sql.NullString
		if err := rows.Scan(&id, &name, &ct.TotalCents); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown row: %w", err)
		}
		if id.Valid {
			v := id.Int64
			ct.CategoryID = &v
		}
		ct.CategoryName = name.String
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating breakdown rows: %w", err)
	}
	return out, nil
}

// DailyClearedSums returns per-day signed totals of cleared transactions in
// [start, end], keyed by ISO day, plus contributing idempotency keys.
func (r *Repository) DailyClearedSums(startISO, endISO string) (map[string]int64, []string, error) {
	rows, err := r.db.Query(`
        SELECT DATE(posted_at), COALESCE(SUM(amount_cents), 0), GROUP_CONCAT(idempotency_key)
        FROM transactions
        WHERE DATE(posted_at) BETWEEN ? AND ? AND is_cleared = 1
        GROUP BY DATE(posted_at)
        ORDER BY DATE(posted_at) ASC`,
		startISO, endISO,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query daily cleared sums: %w", err)
	}
	defer rows.Close()

	daily := make(map[string]int64)
	evidence := make([]string, 0)
	for rows.Next() {
		var day string
		var sum int64
		var concat sql.NullString
		if err := rows.Scan(&day, &sum, &concat); err != nil {
			return nil, nil, fmt.Errorf("failed to scan daily sum: %w", err)
		}
		daily[day] = sum
		evidence = append(evidence, splitEvidence(concat)...)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating daily sums: %w", err)
	}
	return daily, evidence, nil
}

// RecentLargeDebits returns cleared debits at or above the threshold
// magnitude posted since the given instant, newest first. The alerts engine
// dedupes these by idempotency key.
func (r *Repository) RecentLargeDebits(sinceISO string, thresholdCents int64) ([]Transaction, error) {
	rows, err := r.db.Query(`
        SELECT idempotency_key, account_id, posted_at, amount_cents,
               payee, memo, external_id, source, category_id, is_cleared, import_meta_json
        FROM transactions
        WHERE datetime(posted_at) >= datetime(?)
          AND is_cleared = 1
          AND amount_cents < 0
          AND ABS(amount_cents) >= ?
        ORDER BY datetime(posted_at) DESC`,
		sinceISO, thresholdCents,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query large debits: %w", err)
	}
	defer rows.Close()

	list := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan large debit: %w", err)
		}
		list = append(list, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating large debits: %w", err)
	}
	return list, nil
}

// NewestOutflowDay returns the ISO day of the most recent outflow, or ""
// when no outflows exist. The overlay anchors its statistics window here so
// results depend only on stored data, never on the wall clock.
func (r *Repository) NewestOutflowDay() (string, error) {
	var day sql.NullString
	err := r.db.QueryRow(
		"SELECT MAX(DATE(posted_at)) FROM transactions WHERE amount_cents < 0",
	).Scan(&day)
	if err != nil {
		return "", fmt.Errorf("failed to find newest outflow day: %w", err)
	}
	return day.String, nil
}

// OutflowsBetween returns outflow rows posted in [start, end] with their
// category names joined in, oldest first.
func (r *Repository) OutflowsBetween(startISO, endISO string) ([]SpendRow, error) {
	rows, err := r.db.Query(`
        SELECT DATE(t.posted_at), t.amount_cents, COALESCE(c.name, ''), COALESCE(t.payee, ''), COALESCE(t.import_meta_json, '')
        FROM transactions t
        LEFT JOIN categories c ON c.id = t.category_id
        WHERE DATE(t.posted_at) BETWEEN ? AND ? AND t.amount_cents < 0
        ORDER BY DATE(t.posted_at) ASC`,
		startISO, endISO,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outflows: %w", err)
	}
	defer rows.Close()

	out := make([]SpendRow, 0)
	for rows.Next() {
		var s SpendRow
		if err := rows.Scan(&s.PostedDay, &s.AmountCents, &s.CategoryName, &s.Payee, &s.ImportMeta); err != nil {
			return nil, fmt.Errorf("failed to scan spend row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating spend rows: %w", err)
	}
	return out, nil
}

// PayeeMonthlyDebits groups debit totals by payee and calendar month in
// [start, end]. The questionnaire's subscription heuristic scans these for
// payees that recur with steady amounts.
func (r *Repository) PayeeMonthlyDebits(startISO, endISO string) ([]PayeeMonthlyDebit, error) {
	rows, err := r.db.Query(`
        SELECT payee,
               strftime('%Y-%m', posted_at) AS month,
               COALESCE(SUM(amount_cents), 0) AS total,
               GROUP_CONCAT(idempotency_key) AS keys
        FROM transactions
        WHERE DATE(posted_at) BETWEEN ? AND ?
          AND amount_cents < 0
          AND payee IS NOT NULL AND payee != ''
        GROUP BY payee, month
        ORDER BY payee ASC, month ASC`,
		startISO, endISO,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query payee monthly debits: %w", err)
	}
	defer rows.Close()

	out := make([]PayeeMonthlyDebit, 0)
	for rows.Next() {
		var d PayeeMonthlyDebit
		var keys sql.NullString
		if err := rows.Scan(&d.Payee, &d.Month, &d.TotalCents, &keys); err != nil {
			return nil, fmt.Errorf("failed to scan payee monthly debit: %w", err)
		}
		d.EvidenceIDs = splitEvidence(keys)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payee monthly debits: %w", err)
	}
	return out, nil
}

// MonthlyExpenseTotal returns the absolute expense total for one category in
// [start, end]. The drift detector compares this against planned amounts.
func (r *Repository) MonthlyExpenseTotal(categoryID int64, startISO, endISO string) (int64, error) {
	var total int64
	err := r.db.QueryRow(`
        SELECT COALESCE(SUM(amount_cents), 0)
        FROM transactions
        WHERE category_id = ? AND amount_cents < 0 AND DATE(posted_at) BETWEEN ? AND ?`,
		categoryID, startISO, endISO,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum category %d expenses: %w", categoryID, err)
	}
	if total < 0 {
		total = -total
	}
	return total, nil
}

// ClearedSumsByAccount returns Σ cleared amount per account through asOf.
// The reconcile command compares these against anchor-resolved balances.
func (r *Repository) ClearedSumsByAccount(asOfISO string) (map[int64]int64, error) {
	rows, err := r.db.Query(`
        SELECT account_id, COALESCE(SUM(amount_cents), 0)
        FROM transactions
        WHERE is_cleared = 1 AND DATE(posted_at) <= ?
        GROUP BY account_id`,
		asOfISO,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cleared sums: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var accountID, sum int64
		if err := rows.Scan(&accountID, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan cleared sum: %w", err)
		}
		out[accountID] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cleared sums: %w", err)
	}
	return out, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTransaction.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var t Transaction
	var payee, memo, externalID, meta sql.NullString
	var category sql.NullInt64
	var cleared int
	err := row.Scan(
		&t.IdempotencyKey, &t.AccountID, &t.PostedAt, &t.AmountCents,
		&payee, &memo, &externalID, &t.Source, &category, &cleared, &meta,
	)
	if err != nil {
		return nil, err
	}
	t.Payee = payee.String
	t.Memo = memo.String
	t.ExternalID = externalID.String
	t.ImportMeta = meta.String
	t.IsCleared = cleared == 1
	if category.Valid {
		v := category.Int64
		t.CategoryID = &v
	}
	return &t, nil
}

func splitEvidence(concat sql.NullString) []string {
	if !concat.Valid || concat.String == "" {
		return []string{}
	}
	parts := strings.Split(concat.String, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

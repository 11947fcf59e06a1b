package ingest

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stavrou/budgetd/internal/database"
	"github.com/stavrou/budgetd/internal/modules/transactions"
)

// ImportCSV ingests a bank-export CSV file. Headers are matched loosely:
// date|posted|transaction date, payee|description, memo|notes,
// category|master category, account|account name, cleared|status, and
// either a unified amount|total|value column or inflow/outflow pairs.
// accountOverride, when set, wins over the file's account column.
func (s *Service) ImportCSV(ctx context.Context, source, path, accountOverride string) (*RunResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	return s.importCSV(ctx, source, f, path, accountOverride)
}

func (s *Service) importCSV(ctx context.Context, source string, r io.Reader, path, accountOverride string) (*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	run, auditID, err := s.startRun(source, ModeCSV, map[string]interface{}{
		"mode": ModeCSV,
		"path": path,
	})
	if err != nil {
		return nil, err
	}

	records, skipped, err := s.parseCSV(source, r, accountOverride)
	if err != nil {
		return nil, s.fail(run, auditID, err)
	}

	err = database.WithTransaction(s.db, func(tx *sql.Tx) error {
		for i := range records {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("ingest run aborted: %w", err)
			}
			if err := s.transactions.UpsertTx(tx, records[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(run, auditID, err)
	}

	run.Notes["rows_skipped"] = skipped
	status := StatusSuccess
	if skipped > 0 {
		status = StatusPartial
	}
	return s.finish(run, auditID, int64(len(records)), status)
}

// parseCSV reads every data row, resolving accounts and categories as it
// goes. Rows without a parseable date or amount are skipped and counted
// instead of failing the whole file.
func (s *Service) parseCSV(source string, r io.Reader, accountOverride string) ([]transactions.Transaction, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\uFEFF")
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	records := make([]transactions.Transaction, 0)
	skipped := 0
	accountIDs := make(map[string]int64)

	for {
		values, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read CSV row: %w", err)
		}
		row := csvRow{columns: columns, values: values}

		dateISO, ok := parseCSVDay(row.get("date", "posted", "transaction date"))
		if !ok {
			skipped++
			continue
		}
		amountCents, ok := row.amountCents()
		if !ok {
			skipped++
			continue
		}

		payee := row.get("payee", "description")
		memo := row.get("memo", "notes")
		categoryName := row.get("category", "master category")

		accountName := accountOverride
		if accountName == "" {
			accountName = row.get("account", "account name")
		}
		if accountName == "" {
			accountName = "CSV Imports"
		}

		accountID, ok := accountIDs[accountName]
		if !ok {
			accountID, err = s.accounts.UpsertByName(accountName, "unknown", "")
			if err != nil {
				return nil, 0, err
			}
			accountIDs[accountName] = accountID
		}

		var categoryID *int64
		if categoryName != "" {
			categoryID, err = s.categories.MapLookup(source, categoryName)
			if err != nil {
				return nil, 0, err
			}
		}

		postedAt := dateISO + "T00:00:00Z"
		externalID := csvExternalID(dateISO, accountName, amountCents, payee, memo, categoryName)

		meta, _ := json.Marshal(map[string]interface{}{
			"csv_category": categoryName,
			"csv_account":  accountName,
		})

		records = append(records, transactions.Transaction{
			IdempotencyKey: transactions.IdempotencyKey(source, externalID, postedAt, amountCents),
			AccountID:      accountID,
			PostedAt:       postedAt,
			AmountCents:    amountCents,
			Payee:          payee,
			Memo:           memo,
			ExternalID:     externalID,
			Source:         source,
			CategoryID:     categoryID,
			IsCleared:      clearedFlag(row.get("cleared", "status")),
			ImportMeta:     string(meta),
		})
	}

	return records, skipped, nil
}

// csvRow gives loose, case-folded access to one parsed line.
type csvRow struct {
	columns map[string]int
	values  []string
}

// get returns the first non-empty value among the named columns.
func (r csvRow) get(names ...string) string {
	for _, n := range names {
		idx, ok := r.columns[n]
		if !ok || idx >= len(r.values) {
			continue
		}
		if v := strings.TrimSpace(r.values[idx]); v != "" {
			return v
		}
	}
	return ""
}

// amountCents resolves the row's signed amount: a unified column when the
// export has one, otherwise inflow minus outflow.
func (r csvRow) amountCents() (int64, bool) {
	if raw := r.get("amount", "total", "value"); raw != "" {
		return parseAmountCents(raw)
	}

	var total int64
	seen := false
	if raw := r.get("inflow"); raw != "" {
		v, ok := parseAmountCents(raw)
		if !ok {
			return 0, false
		}
		total += v
		seen = true
	}
	if raw := r.get("outflow"); raw != "" {
		v, ok := parseAmountCents(raw)
		if !ok {
			return 0, false
		}
		total -= v
		seen = true
	}
	return total, seen
}

// parseAmountCents converts a money string into exact cents. Thousands
// separators and currency symbols are stripped; parentheses mean negative.
func parseAmountCents(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	neg := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", "(", "", ")", "").Replace(s)
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	if neg {
		d = d.Neg()
	}
	return d.Shift(2).Round(0).IntPart(), true
}

// parseCSVDay normalizes the export's date column to an ISO day. Common
// bank formats are tried in order; ambiguous day/month values resolve
// month-first.
func parseCSVDay(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	layouts := []string{
		"2006-01-02",
		"01/02/2006",
		"02/01/2006",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// csvExternalID derives a stable external ID for a row that has none: the
// canonical fields are normalized and hashed so re-imports of the same file
// dedupe even after cosmetic edits.
func csvExternalID(dateISO, account string, amountCents int64, payee, memo, category string) string {
	canon := strings.Join([]string{
		dateISO,
		normField(account),
		strconv.FormatInt(amountCents, 10),
		normField(payee),
		normField(memo),
		normField(category),
	}, "|")
	sum := sha256.Sum256([]byte(canon))
	return hex.EncodeToString(sum[:])
}

// normField collapses whitespace and lowercases.
func normField(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

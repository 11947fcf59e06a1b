package questionnaire

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	budgettest "github.com/stavrou/budgetd/internal/testing"
)

func newTestExporter(t *testing.T) (*Exporter, *sql.DB, string) {
	t.Helper()
	svc, db := newTestService(t)
	dir := t.TempDir()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	return NewExporter(svc, dir, nil, log), db, dir
}

func seedExportData(t *testing.T, db *sql.DB) {
	t.Helper()
	budgettest.SeedAccount(t, db, 1, "Checking", "checking")
	budgettest.SeedTransaction(t, db, "pay-jan", 1, "2026-01-25", 300000, "Employer", nil)
	budgettest.SeedCommitment(t, db, 1, "Netflix", 1599, "MONTHLY", "2026-05-03", "subscription")
	budgettest.SeedCommitment(t, db, 2, "Car Loan", 20000, "MONTHLY", "2026-05-01", "loan")
}

func TestExporter_HashDeterminism(t *testing.T) {
	exporter, db, dir := newTestExporter(t)
	seedExportData(t, db)
	asOf := time.Date(2026, time.April, 15, 10, 30, 0, 0, time.UTC)

	first, err := exporter.Export(ExportRequest{Pack: "loan", Format: "both"}, asOf)
	require.NoError(t, err)
	assert.Equal(t, "loan_application_basics", first.Pack)
	assert.Equal(t, "3m_full", first.Period)
	assert.Equal(t, "2026-04-15T10:30:00Z", first.GeneratedAt)
	require.Len(t, first.Hash, 64)

	// Same store state and timestamp always hash identically.
	second, err := exporter.Export(ExportRequest{Pack: "loan", Format: "both"}, asOf)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)

	wantCSV := fmt.Sprintf("loan_application_basics_20260415T103000Z_%s.csv", first.Hash[:8])
	wantPDF := fmt.Sprintf("loan_application_basics_20260415T103000Z_%s.pdf", first.Hash[:8])
	assert.Equal(t, "/exports/"+wantCSV, first.CSVURL)
	assert.Equal(t, "/exports/"+wantPDF, first.PDFURL)

	csvBytes, err := os.ReadFile(filepath.Join(dir, wantCSV))
	require.NoError(t, err)
	csvText := string(csvBytes)
	assert.True(t, strings.HasPrefix(csvText, "Pack,loan_application_basics,Period,3m_full\n"))
	assert.Contains(t, csvText, "Section,income,Income (last 3 full months)")
	assert.Contains(t, csvText, "Item,sum_income_transactions_in_window,value_cents,300000")
	assert.Contains(t, csvText, "Hash,"+first.Hash)
	assert.Contains(t, csvText, "Generated At,2026-04-15T10:30:00Z")

	pdfBytes, err := os.ReadFile(filepath.Join(dir, wantPDF))
	require.NoError(t, err)
	pdfText := string(pdfBytes)
	assert.Contains(t, pdfText, "<h1>Pack: loan_application_basics</h1>")
	assert.Contains(t, pdfText, "<h2>Active Loans</h2>")
	assert.Contains(t, pdfText, "Hash: "+first.Hash)
}

func TestExporter_TimestampChangesHash(t *testing.T) {
	exporter, db, _ := newTestExporter(t)
	seedExportData(t, db)

	first, err := exporter.Export(ExportRequest{Pack: "loan"}, time.Date(2026, time.April, 15, 10, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	second, err := exporter.Export(ExportRequest{Pack: "loan"}, time.Date(2026, time.April, 15, 10, 31, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestExporter_DefaultFormatIsCSV(t *testing.T) {
	exporter, db, dir := newTestExporter(t)
	seedExportData(t, db)

	result, err := exporter.Export(ExportRequest{Pack: "affordability"}, time.Date(2026, time.April, 15, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotEmpty(t, result.CSVURL)
	assert.Empty(t, result.PDFURL)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".csv"))
}

func TestExporter_RejectsBadInput(t *testing.T) {
	exporter, db, _ := newTestExporter(t)
	seedExportData(t, db)
	asOf := time.Date(2026, time.April, 15, 8, 0, 0, 0, time.UTC)

	_, err := exporter.Export(ExportRequest{Pack: "loan", Format: "docx"}, asOf)
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = exporter.Export(ExportRequest{Pack: "pension-review"}, asOf)
	assert.ErrorIs(t, err, ErrUnknownPack)
}

func TestRedactValue(t *testing.T) {
	input := map[string]interface{}{
		"pack": "loan_application_basics",
		"rows": []interface{}{
			map[string]interface{}{"payee": "Corner Cafe", "memo": "flat white", "amount_cents": -450.0},
			map[string]interface{}{"payee_name": "Gym", "memo": nil},
		},
	}

	out := redactValue(input).(map[string]interface{})
	assert.Equal(t, "loan_application_basics", out["pack"])

	rows := out["rows"].([]interface{})
	first := rows[0].(map[string]interface{})
	assert.Equal(t, "REDACTED", first["payee"])
	assert.Nil(t, first["memo"])
	assert.Equal(t, -450.0, first["amount_cents"])
	second := rows[1].(map[string]interface{})
	assert.Equal(t, "REDACTED", second["payee_name"])

	// The input map is left untouched.
	original := input["rows"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Corner Cafe", original["payee"])
}

func TestRedactionChangesHash(t *testing.T) {
	raw := map[string]interface{}{
		"sections": []interface{}{
			map[string]interface{}{"items": []interface{}{
				map[string]interface{}{"rows": []interface{}{
					map[string]interface{}{"payee": "Corner Cafe", "memo": "flat white"},
				}},
			}},
		},
	}

	plain, err := json.Marshal(raw)
	require.NoError(t, err)
	masked, err := json.Marshal(redactValue(raw))
	require.NoError(t, err)

	ts := "2026-04-15T10:30:00Z"
	assert.NotEqual(t, computeExportHash(plain, ts), computeExportHash(masked, ts))
	assert.Equal(t, computeExportHash(plain, ts), computeExportHash(plain, ts))
}

func TestRenderCSV_RowTables(t *testing.T) {
	pack := map[string]interface{}{
		"pack":   "loan_application_basics",
		"period": "3m_full",
		"sections": []interface{}{
			map[string]interface{}{
				"id":    "active_loans",
				"title": "Active Loans",
				"items": []interface{}{
					map[string]interface{}{
						"method": "commitments_type_filter",
						"rows": []interface{}{
							map[string]interface{}{"name": "Car Loan", "amount_cents": 20000.0},
							map[string]interface{}{"name": "Visa", "type": "credit"},
						},
					},
				},
			},
		},
	}

	data, err := renderCSV(pack, "deadbeef", "2026-04-15T10:30:00Z")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	assert.Equal(t, "Pack,loan_application_basics,Period,3m_full", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "Section,active_loans,Active Loans", lines[2])
	assert.Equal(t, "Item,commitments_type_filter,method,commitments_type_filter", lines[3])
	// Header is the sorted union of row keys; missing cells stay empty.
	assert.Equal(t, "Rows,amount_cents,name,type", lines[4])
	assert.Equal(t, ",20000,Car Loan,", lines[5])
	assert.Equal(t, ",,Visa,credit", lines[6])
	assert.Equal(t, "", lines[7])
	assert.Equal(t, "Hash,deadbeef", lines[8])
	assert.Equal(t, "Generated At,2026-04-15T10:30:00Z", lines[9])
}

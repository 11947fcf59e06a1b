package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/stavrou/budgetd/internal/modules/accounts"
	"github.com/stavrou/budgetd/internal/modules/categories"
	"github.com/stavrou/budgetd/internal/modules/ingest"
	"github.com/stavrou/budgetd/internal/modules/transactions"
)

type stubUpstream struct {
	accounts []ingest.UpstreamAccount
	txns     []ingest.UpstreamTransaction
	err      error
}

func (s *stubUpstream) FetchAccounts(ctx context.Context) ([]ingest.UpstreamAccount, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.accounts, nil
}

func (s *stubUpstream) FetchTransactions(ctx context.Context, sinceISO string) ([]ingest.UpstreamTransaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.txns, nil
}

func workingUpstream() *stubUpstream {
	return &stubUpstream{
		accounts: []ingest.UpstreamAccount{
			{ID: "acct-1", Name: "Checking", Type: "checking", Currency: "EUR"},
		},
		txns: []ingest.UpstreamTransaction{
			{ID: "txn-1", AccountID: "acct-1", Date: "2026-03-12", Amount: -12.50, PayeeName: "Grocer", Cleared: "cleared"},
		},
	}
}

func newTestRouter(t *testing.T, client ingest.UpstreamClient) *chi.Mux {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT,
			currency TEXT,
			is_active INTEGER NOT NULL DEFAULT 1
		);
		CREATE TABLE categories (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			parent_id INTEGER,
			is_archived INTEGER NOT NULL DEFAULT 0,
			source TEXT,
			external_id TEXT
		);
		CREATE TABLE category_map (
			id INTEGER PRIMARY KEY,
			source TEXT NOT NULL,
			external_id TEXT NOT NULL,
			internal_category_id INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX uq_category_map_source_external ON category_map(source, external_id);
		CREATE TABLE transactions (
			idempotency_key TEXT NOT NULL,
			account_id INTEGER NOT NULL,
			posted_at TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			payee TEXT,
			memo TEXT,
			external_id TEXT,
			source TEXT NOT NULL,
			category_id INTEGER,
			is_cleared INTEGER NOT NULL DEFAULT 0,
			import_meta_json TEXT
		);
		CREATE UNIQUE INDEX uq_transactions_idem_key ON transactions(idempotency_key);
		CREATE TABLE source_cursor (
			source TEXT PRIMARY KEY,
			last_cursor TEXT,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE ingest_audit (
			id INTEGER PRIMARY KEY,
			run_id TEXT,
			source TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'delta',
			run_started_at TEXT NOT NULL,
			run_finished_at TEXT,
			rows_upserted INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			notes TEXT
		);
	`)
	require.NoError(t, err)

	audits := ingest.NewAuditRepository(db, log)
	svc := ingest.NewService(
		db,
		client,
		accounts.NewRepository(db, log),
		categories.NewRepository(db, log),
		transactions.NewRepository(db, log),
		ingest.NewCursorRepository(db, log),
		audits,
		nil,
		log,
	)
	handler := NewHandler(svc, audits, log)

	router := chi.NewRouter()
	router.Post("/ingest/{source}/delta", handler.HandleDelta)
	router.Post("/ingest/{source}/backfill", handler.HandleBackfill)
	router.Post("/ingest/{source}/from-csv", handler.HandleImportCSV)
	router.Get("/ingest/audit", handler.HandleAudit)
	return router
}

func postJSON(t *testing.T, router *chi.Mux, url string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest("POST", url, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	return w.Code, decoded
}

func TestHandleDelta(t *testing.T) {
	router := newTestRouter(t, workingUpstream())

	code, body := postJSON(t, router, "/ingest/upstream/delta", nil)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, ingest.ModeDelta, body["mode"])
	assert.Equal(t, ingest.StatusSuccess, body["status"])
	assert.Equal(t, float64(1), body["rows_upserted"])
	assert.NotEmpty(t, body["run_id"])
}

func TestHandleDelta_UpstreamTroubleIsBadGateway(t *testing.T) {
	client := &stubUpstream{err: fmt.Errorf("%w: API returned status 503", ingest.ErrUpstream)}
	router := newTestRouter(t, client)

	code, body := postJSON(t, router, "/ingest/upstream/delta", nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Contains(t, body["error"], "API returned status 503")
}

func TestHandleBackfill(t *testing.T) {
	t.Run("months from body", func(t *testing.T) {
		router := newTestRouter(t, workingUpstream())
		code, body := postJSON(t, router, "/ingest/upstream/backfill", map[string]int{"months": 2})
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, ingest.ModeBackfill, body["mode"])
		assert.Equal(t, float64(2), body["notes"].(map[string]interface{})["months"])
	})

	t.Run("defaults without months", func(t *testing.T) {
		router := newTestRouter(t, workingUpstream())
		code, body := postJSON(t, router, "/ingest/upstream/backfill", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, float64(6), body["notes"].(map[string]interface{})["months"])
	})

	t.Run("rejects non-positive months", func(t *testing.T) {
		router := newTestRouter(t, workingUpstream())
		code, body := postJSON(t, router, "/ingest/upstream/backfill?months=0", nil)
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body["error"], "months")
	})
}

func TestHandleImportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	csv := "date,payee,amount,account\n2026-02-03,Grocer,-12.34,Checking\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	t.Run("imports a server-local file", func(t *testing.T) {
		router := newTestRouter(t, nil)
		code, body := postJSON(t, router, "/ingest/csv/from-csv", map[string]string{"path": path})
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, ingest.StatusSuccess, body["status"])
		assert.Equal(t, float64(1), body["rows_upserted"])
	})

	t.Run("missing path is the caller's fault", func(t *testing.T) {
		router := newTestRouter(t, nil)
		code, body := postJSON(t, router, "/ingest/csv/from-csv", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body["error"], "path")
	})

	t.Run("missing file is the caller's fault", func(t *testing.T) {
		router := newTestRouter(t, nil)
		code, _ := postJSON(t, router, "/ingest/csv/from-csv",
			map[string]string{"path": filepath.Join(t.TempDir(), "nope.csv")})
		assert.Equal(t, http.StatusBadRequest, code)
	})
}

func TestHandleAudit(t *testing.T) {
	router := newTestRouter(t, workingUpstream())

	code, _ := postJSON(t, router, "/ingest/upstream/delta", nil)
	require.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest("GET", "/ingest/audit", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	runs := body["runs"].([]interface{})
	require.Len(t, runs, 1)
	run := runs[0].(map[string]interface{})
	assert.Equal(t, ingest.StatusSuccess, run["status"])
	assert.Equal(t, ingest.ModeDelta, run["mode"])

	req = httptest.NewRequest("GET", "/ingest/audit?limit=banana", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

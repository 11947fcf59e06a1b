package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchTransactions(t *testing.T) {
	var gotAuth, gotSince, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotSince = r.URL.Query().Get("since_date")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"transactions":[
			{"id":"t1","account_id":"a1","date":"2026-03-01","amount":-12.5,"payee_name":"Grocer","cleared":"cleared"}
		]}`)
	}))
	defer srv.Close()

	log := zerolog.New(nil).Level(zerolog.Disabled)
	client := NewClient(srv.URL, "secret-token", log)

	txns, err := client.FetchTransactions(context.Background(), "2026-02-28")
	require.NoError(t, err)
	require.Len(t, txns, 1)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "2026-02-28", gotSince)
	assert.Equal(t, "/transactions", gotPath)
	assert.Equal(t, "t1", txns[0].ID)
	assert.Equal(t, -12.5, txns[0].Amount)
}

func TestClient_FetchCategoriesGroups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"categories":[
			{"id":"g1","name":"Everyday","categories":[
				{"id":"c1","name":"Groceries"},
				{"id":"c2","name":"Transport","archived":true}
			]}
		]}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", zerolog.New(nil).Level(zerolog.Disabled))

	groups, err := client.FetchCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Everyday", groups[0].Name)
	require.Len(t, groups[0].Categories, 2)
	assert.Equal(t, "Groceries", groups[0].Categories[0].Name)
	assert.True(t, groups[0].Categories[1].Archived)
}

func TestClient_TerminalStatusIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", zerolog.New(nil).Level(zerolog.Disabled))

	_, err := client.FetchAccounts(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClient_CanceledContextStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", zerolog.New(nil).Level(zerolog.Disabled))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := client.FetchAccounts(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// No retry waits once the context is gone.
	assert.Less(t, time.Since(start), retryBase)
}

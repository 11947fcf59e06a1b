package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stavrou/budgetd/internal/config"
	"github.com/stavrou/budgetd/internal/di"
	"github.com/stavrou/budgetd/internal/scheduler"
)

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func testServerConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DBPath:              filepath.Join(dir, "budget.db"),
		ExportDir:           filepath.Join(dir, "exports"),
		BackupDir:           filepath.Join(dir, "backups"),
		Port:                8080,
		IngestSource:        "upstream",
		BufferFloorCents:    20000,
		LargeDebitCents:     50000,
		DriftCycles:         3,
		DriftTolerance:      0.10,
		BackupRetentionDays: 30,
		RateLimitPerMin:     30,
	}
}

// newTestServer wires a real container over a temp store and builds the
// server on top of it.
func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := testServerConfig(t)
	if mutate != nil {
		mutate(cfg)
	}

	container, err := di.Wire(cfg, testLog())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	return New(Config{Log: testLog(), Cfg: cfg, Container: container})
}

func doRequest(srv *Server, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestBasePathMountsSurface(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.BasePath = "/budget"
	})

	assert.Equal(t, http.StatusOK, doRequest(srv, http.MethodGet, "/budget/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(srv, http.MethodGet, "/budget/api/accounts", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(srv, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(srv, http.MethodGet, "/api/accounts", "", nil).Code)
}

func TestReadSurfaceRespondsOnFreshStore(t *testing.T) {
	srv := newTestServer(t, nil)

	routes := []string{
		"/api/accounts",
		"/api/accounts/anchors",
		"/api/accounts/floors",
		"/api/alerts",
		"/api/key-events",
		"/api/commitments",
		"/api/scheduled-inflows",
		"/api/ingest/audit",
		"/api/overview",
		"/api/forecast/calendar?start=2026-04-01&end=2026-05-01",
		"/api/forecast/blended?start=2026-04-01&end=2026-05-01",
		"/api/calendar?from=2026-04-01&to=2026-05-01",
		"/api/q/active-loans",
		"/api/q/packs/loan-application-basics",
	}

	for _, route := range routes {
		t.Run(route, func(t *testing.T) {
			rec := doRequest(srv, http.MethodGet, route, "", nil)
			assert.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
		})
	}
}

func TestLatestSnapshotNotFoundOnFreshStore(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/api/forecast/snapshots/latest", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteSurfaceRoundTrip(t *testing.T) {
	srv := newTestServer(t, nil)

	body := `{"name":"Car insurance","event_date":"2026-09-15","planned_amount_cents":42000}`
	rec := doRequest(srv, http.MethodPost, "/api/key-events", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())

	rec = doRequest(srv, http.MethodGet, "/api/key-events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Car insurance")
}

func TestSystemStatus(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/api/system/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Status        string `json:"status"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		Store         *struct {
			SizeBytes int64 `json:"size_bytes"`
			PageSize  int64 `json:"page_size"`
		} `json:"store"`
		Scheduler struct {
			Enabled bool          `json:"enabled"`
			Running bool          `json:"running"`
			Jobs    []interface{} `json:"jobs"`
		} `json:"scheduler"`
		SnapshotCount int64 `json:"snapshot_count"`
		ActiveAlerts  int64 `json:"active_alerts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))

	assert.Equal(t, "ok", status.Status)
	require.NotNil(t, status.Store)
	assert.Greater(t, status.Store.SizeBytes, int64(0))
	assert.Greater(t, status.Store.PageSize, int64(0))
	assert.False(t, status.Scheduler.Enabled, "no scheduler attached in tests")
	assert.NotNil(t, status.Scheduler.Jobs)
	assert.Equal(t, int64(0), status.SnapshotCount)
	assert.Equal(t, int64(0), status.ActiveAlerts)
}

func TestSystemStatusReportsScheduledJobs(t *testing.T) {
	cfg := testServerConfig(t)
	container, err := di.Wire(cfg, testLog())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close() })

	sched := scheduler.New(nil, testLog())
	jobs := di.BuildJobs(container, cfg, testLog())
	require.NoError(t, sched.AddJob(scheduler.DailySpec(2, 15), jobs.Nightly))

	srv := New(Config{Log: testLog(), Cfg: cfg, Container: container, Scheduler: sched})

	rec := doRequest(srv, http.MethodGet, "/api/system/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"enabled":true`)
	assert.Contains(t, body, "nightly_forecast")
}

func TestExportsServedAsStaticFiles(t *testing.T) {
	var cfgRef *config.Config
	srv := newTestServer(t, func(cfg *config.Config) {
		cfgRef = cfg
	})

	require.NoError(t, os.MkdirAll(cfgRef.ExportDir, 0755))
	path := filepath.Join(cfgRef.ExportDir, "export-test.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,value\nrent,120000\n"), 0644))

	rec := doRequest(srv, http.MethodGet, "/exports/export-test.csv", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rent,120000")

	// No directory listings.
	rec = doRequest(srv, http.MethodGet, "/exports/", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownQueryReturns404(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doRequest(srv, http.MethodGet, "/api/q/no-such-query", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stavrou/budgetd/internal/config"
	"github.com/stavrou/budgetd/internal/di"
)

// pointEnvAtTempStore isolates a test from ambient configuration and points
// DB_PATH at a fresh temp store.
func pointEnvAtTempStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "budget.db")
	t.Setenv("DB_PATH", dbPath)
	t.Setenv("EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("BACKUP_DIR", filepath.Join(dir, "backups"))
	t.Setenv("UPSTREAM_API_URL", "")
	t.Setenv("UPSTREAM_API_TOKEN", "")
	t.Setenv("BACKUP_S3_ENDPOINT", "")
	t.Setenv("BACKUP_S3_BUCKET", "")
	t.Setenv("BACKUP_S3_ACCESS_KEY_ID", "")
	t.Setenv("BACKUP_S3_SECRET_ACCESS_KEY", "")
	return dbPath
}

func TestRunUsageErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"unknown command", []string{"frobnicate"}},
		{"ingest without source", []string{"ingest", "--delta"}},
		{"ingest with two modes", []string{"ingest", "upstream", "--delta", "--backfill", "--months", "2"}},
		{"backfill without months", []string{"ingest", "upstream", "--backfill"}},
		{"categories without sync prefix", []string{"categories", "upstream"}},
		{"db without subcommand", []string{"db"}},
		{"reconcile with arguments", []string{"reconcile", "extra"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, exitUsage, run(tc.args, strings.NewReader("")))
		})
	}
}

func TestHelpExitsZero(t *testing.T) {
	assert.Equal(t, exitOK, run([]string{"help"}, strings.NewReader("")))
}

func TestDBMigrateOnFreshStore(t *testing.T) {
	dbPath := pointEnvAtTempStore(t)

	code := run([]string{"db", "migrate"}, strings.NewReader(""))
	assert.Equal(t, exitOK, code)

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "migrate should create the store file")
}

func TestDBResetSeedsVocabulary(t *testing.T) {
	pointEnvAtTempStore(t)

	code := run([]string{"db", "reset", "--force"}, strings.NewReader(""))
	require.Equal(t, exitOK, code)

	cfg, err := config.Load()
	require.NoError(t, err)
	container, err := di.Wire(cfg, cliLogger())
	require.NoError(t, err)
	defer container.Close()

	rentID, err := container.AliasRepo.Resolve("rent")
	require.NoError(t, err)
	require.NotNil(t, rentID, "seeded synonym should resolve")

	housingID, err := container.AliasRepo.Resolve("housing")
	require.NoError(t, err)
	require.NotNil(t, housingID, "seeded category name should resolve")
	assert.Equal(t, *housingID, *rentID)
}

func TestDBResetSchemaOnly(t *testing.T) {
	pointEnvAtTempStore(t)

	code := run([]string{"db", "reset", "--force", "--no-populate"}, strings.NewReader(""))
	require.Equal(t, exitOK, code)

	cfg, err := config.Load()
	require.NoError(t, err)
	container, err := di.Wire(cfg, cliLogger())
	require.NoError(t, err)
	defer container.Close()

	id, err := container.AliasRepo.Resolve("rent")
	require.NoError(t, err)
	assert.Nil(t, id, "--no-populate should skip seeding")
}

func TestDBResetPromptAborts(t *testing.T) {
	pointEnvAtTempStore(t)

	code := run([]string{"db", "reset"}, strings.NewReader("no\n"))
	assert.Equal(t, exitUsage, code)
}

func TestIngestDeltaWithoutUpstreamFails(t *testing.T) {
	pointEnvAtTempStore(t)

	code := run([]string{"ingest", "upstream", "--delta"}, strings.NewReader(""))
	assert.Equal(t, exitOp, code)
}

func TestCategoriesSyncWithoutUpstreamFails(t *testing.T) {
	pointEnvAtTempStore(t)

	code := run([]string{"categories", "sync-upstream"}, strings.NewReader(""))
	assert.Equal(t, exitOp, code)
}

func TestIngestFromCSV(t *testing.T) {
	pointEnvAtTempStore(t)

	csvPath := filepath.Join(t.TempDir(), "export.csv")
	body := "date,payee,amount,account\n" +
		"2026-03-01,Grocer,-42.00,Checking\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(body), 0644))

	code := run([]string{"ingest", "csvbank", "--from-csv", csvPath}, strings.NewReader(""))
	assert.Equal(t, exitOK, code)

	code = run([]string{"ingest", "csvbank", "--from-csv", filepath.Join(t.TempDir(), "missing.csv")}, strings.NewReader(""))
	assert.Equal(t, exitOp, code, "missing file is an operational failure")
}

func TestReconcileOnFreshStore(t *testing.T) {
	pointEnvAtTempStore(t)

	code := run([]string{"reconcile"}, strings.NewReader(""))
	assert.Equal(t, exitOK, code)
}

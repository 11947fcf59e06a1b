// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/utils"
)

// Config holds application configuration
type Config struct {
	// Store and filesystem layout
	DBPath    string // sqlite store file
	ExportDir string // questionnaire exports
	BackupDir string // local backup staging

	// HTTP surface
	Port     int
	BasePath string // URL prefix, e.g. "/budget"

	// Auth (both optional; when unset the corresponding check is skipped)
	AdminToken string
	CSRFToken  string

	// Upstream bookkeeping service (delta/backfill ingest)
	UpstreamAPIURL   string
	UpstreamAPIToken string
	// IngestSource names the source the nightly delta pulls under. It must
	// match the name used for manual ingest runs, because the idempotency
	// key includes it.
	IngestSource string

	// Forecast and alert thresholds
	BufferFloorCents         int64
	LargeDebitCents          int64
	OverdraftAlertThresholds map[string]int64 // account name -> floor cents
	DriftCycles              int
	DriftTolerance           float64

	// Nightly scheduler
	SchedulerEnabled bool
	SchedulerHour    int
	SchedulerMinute  int
	SchedulerTZ      string

	// S3-compatible backup target (all four required to enable)
	BackupS3Endpoint    string
	BackupS3Bucket      string
	BackupS3AccessKeyID string
	BackupS3SecretKey   string
	BackupRetentionDays int

	// Logging and middleware
	LogLevel        string
	LogPretty       bool
	RateLimitPerMin int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dbPath := getEnv("DB_PATH", "data/budget.db")
	absDBPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absDBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	exportDir := getEnv("EXPORT_DIR", filepath.Join(filepath.Dir(absDBPath), "exports"))
	backupDir := getEnv("BACKUP_DIR", filepath.Join(filepath.Dir(absDBPath), "backups"))

	cfg := &Config{
		DBPath:    absDBPath,
		ExportDir: exportDir,
		BackupDir: backupDir,

		Port:     getEnvAsInt("PORT", 8080),
		BasePath: strings.TrimSuffix(getEnv("BASE_PATH", ""), "/"),

		AdminToken: getEnv("ADMIN_TOKEN", ""),
		CSRFToken:  getEnv("CSRF_TOKEN", ""),

		UpstreamAPIURL:   strings.TrimSuffix(getEnv("UPSTREAM_API_URL", ""), "/"),
		UpstreamAPIToken: getEnv("UPSTREAM_API_TOKEN", ""),
		IngestSource:     getEnv("INGEST_SOURCE", "upstream"),

		BufferFloorCents:         getEnvAsInt64("BUFFER_FLOOR_CENTS", 0),
		LargeDebitCents:          abs64(getEnvAsInt64("LARGE_DEBIT_CENTS", 50000)),
		OverdraftAlertThresholds: parseThresholds(getEnv("OVERDRAFT_ALERT_THRESHOLDS", "")),
		DriftCycles:              getEnvAsInt("DRIFT_CYCLES", 3),
		DriftTolerance:           getEnvAsFloat("DRIFT_TOLERANCE", 0.10),

		SchedulerEnabled: getEnvAsBool("SCHEDULER_ENABLED", true),
		SchedulerHour:    getEnvAsInt("SCHEDULER_HOUR", 2),
		SchedulerMinute:  getEnvAsInt("SCHEDULER_MINUTE", 15),
		SchedulerTZ:      getEnv("SCHEDULER_TZ", "UTC"),

		BackupS3Endpoint:    getEnv("BACKUP_S3_ENDPOINT", ""),
		BackupS3Bucket:      getEnv("BACKUP_S3_BUCKET", ""),
		BackupS3AccessKeyID: getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		BackupS3SecretKey:   getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),

		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("LOG_PRETTY", false),
		RateLimitPerMin: getEnvAsInt("RATE_LIMIT_PER_MIN", 30),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.SchedulerHour < 0 || c.SchedulerHour > 23 {
		return fmt.Errorf("invalid SCHEDULER_HOUR %d", c.SchedulerHour)
	}
	if c.SchedulerMinute < 0 || c.SchedulerMinute > 59 {
		return fmt.Errorf("invalid SCHEDULER_MINUTE %d", c.SchedulerMinute)
	}
	if c.DriftCycles < 1 {
		return fmt.Errorf("invalid DRIFT_CYCLES %d", c.DriftCycles)
	}
	if c.DriftTolerance < 0 {
		return fmt.Errorf("invalid DRIFT_TOLERANCE %f", c.DriftTolerance)
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("BASE_PATH must start with '/', got %q", c.BasePath)
	}
	return nil
}

// BackupEnabled reports whether all S3 backup settings are present.
func (c *Config) BackupEnabled() bool {
	return c.BackupS3Endpoint != "" && c.BackupS3Bucket != "" &&
		c.BackupS3AccessKeyID != "" && c.BackupS3SecretKey != ""
}

// LogSummary logs the effective configuration. Token values are redacted;
// they must never reach the log output.
func (c *Config) LogSummary(log zerolog.Logger) {
	log.Info().
		Str("db_path", c.DBPath).
		Str("export_dir", c.ExportDir).
		Int("port", c.Port).
		Str("base_path", c.BasePath).
		Str("admin_token", redact(c.AdminToken)).
		Str("csrf_token", redact(c.CSRFToken)).
		Str("upstream_url", c.UpstreamAPIURL).
		Str("upstream_token", redact(c.UpstreamAPIToken)).
		Str("ingest_source", c.IngestSource).
		Int64("buffer_floor_cents", c.BufferFloorCents).
		Bool("scheduler_enabled", c.SchedulerEnabled).
		Int("scheduler_hour", c.SchedulerHour).
		Int("scheduler_minute", c.SchedulerMinute).
		Str("scheduler_tz", c.SchedulerTZ).
		Bool("backup_enabled", c.BackupEnabled()).
		Msg("Configuration loaded")
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// parseThresholds parses "account:cents,account:cents" into a map.
// Malformed segments are skipped.
func parseThresholds(s string) map[string]int64 {
	out := make(map[string]int64)
	for _, part := range utils.ParseCSV(s) {
		idx := strings.LastIndex(part, ":")
		if idx <= 0 {
			continue
		}
		name := strings.TrimSpace(part[:idx])
		cents, err := strconv.ParseInt(strings.TrimSpace(part[idx+1:]), 10, 64)
		if err != nil {
			continue
		}
		out[name] = cents
	}
	return out
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

package di

import (
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/config"
	"github.com/stavrou/budgetd/internal/modules/accounts"
	"github.com/stavrou/budgetd/internal/modules/alerts"
	"github.com/stavrou/budgetd/internal/modules/categories"
	"github.com/stavrou/budgetd/internal/modules/forecast"
	"github.com/stavrou/budgetd/internal/modules/ingest"
	"github.com/stavrou/budgetd/internal/modules/questionnaire"
	"github.com/stavrou/budgetd/internal/modules/snapshots"
	"github.com/stavrou/budgetd/internal/reliability"
)

// InitializeServices wires the domain services over the repositories.
func InitializeServices(c *Container, cfg *config.Config, log zerolog.Logger) {
	c.Resolver = accounts.NewResolver(c.DB.Conn(), c.AccountRepo, c.AnchorRepo, log)
	c.Expander = forecast.NewExpander(c.CommitmentRepo, c.InflowRepo, c.KeyEventRepo, log)
	c.Overlay = forecast.NewOverlay(c.TransactionRepo, log)
	c.CategoryMapper = categories.NewMapper(c.CategoryRepo, c.EventManager, log)

	// The upstream client only exists with a configured URL; CSV import
	// works without it.
	var upstream ingest.UpstreamClient
	if cfg.UpstreamAPIURL != "" {
		c.UpstreamClient = ingest.NewClient(cfg.UpstreamAPIURL, cfg.UpstreamAPIToken, log)
		upstream = c.UpstreamClient
	} else {
		log.Debug().Msg("Upstream API not configured - delta and backfill ingest disabled")
	}

	c.IngestService = ingest.NewService(
		c.DB.Conn(),
		upstream,
		c.AccountRepo,
		c.CategoryRepo,
		c.TransactionRepo,
		c.CursorRepo,
		c.AuditRepo,
		c.EventManager,
		log,
	)

	c.SnapshotService = snapshots.NewService(
		c.Resolver,
		c.Expander,
		c.SnapshotRepo,
		c.EventManager,
		cfg.BufferFloorCents,
		log,
	)

	c.AlertEngine = alerts.NewEngine(
		c.AlertRepo,
		c.SnapshotRepo,
		c.AccountRepo,
		c.AnchorRepo,
		c.Resolver,
		c.Expander,
		c.TransactionRepo,
		c.CommitmentRepo,
		c.KeyEventRepo,
		c.EventManager,
		alerts.Config{
			BufferFloorCents: cfg.BufferFloorCents,
			AccountFloors:    cfg.OverdraftAlertThresholds,
			LargeDebitCents:  cfg.LargeDebitCents,
			DriftCycles:      cfg.DriftCycles,
			DriftTolerance:   cfg.DriftTolerance,
		},
		log,
	)

	c.QuestionnaireService = questionnaire.NewService(
		c.TransactionRepo,
		c.CommitmentRepo,
		c.AliasRepo,
		c.Resolver,
		log,
	)
	c.Exporter = questionnaire.NewExporter(c.QuestionnaireService, cfg.ExportDir, c.EventManager, log)

	// Only initialize offsite backups if all credentials are provided
	if cfg.BackupEnabled() {
		s3Client, err := reliability.NewS3Client(
			cfg.BackupS3Endpoint,
			cfg.BackupS3AccessKeyID,
			cfg.BackupS3SecretKey,
			cfg.BackupS3Bucket,
			log,
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize S3 client - offsite backup disabled")
		} else {
			c.S3Client = s3Client
			c.BackupService = reliability.NewBackupService(c.DB, s3Client, cfg.BackupDir, c.EventManager, log)
			log.Info().Msg("Offsite backup service initialized")
		}
	} else {
		log.Debug().Msg("Backup credentials not configured - offsite backup disabled")
	}
}

// Package di provides dependency injection wiring and initialization.
//
// The Container is the single source of truth for all service instances.
// It is created by Wire() and handed to the HTTP server and the CLI, which
// read the pieces they need from it.
package di

import (
	"github.com/stavrou/budgetd/internal/database"
	"github.com/stavrou/budgetd/internal/events"
	"github.com/stavrou/budgetd/internal/modules/accounts"
	"github.com/stavrou/budgetd/internal/modules/alerts"
	"github.com/stavrou/budgetd/internal/modules/categories"
	"github.com/stavrou/budgetd/internal/modules/forecast"
	"github.com/stavrou/budgetd/internal/modules/ingest"
	"github.com/stavrou/budgetd/internal/modules/keyevents"
	"github.com/stavrou/budgetd/internal/modules/questionnaire"
	"github.com/stavrou/budgetd/internal/modules/schedule"
	"github.com/stavrou/budgetd/internal/modules/snapshots"
	"github.com/stavrou/budgetd/internal/modules/transactions"
	"github.com/stavrou/budgetd/internal/reliability"
)

// Container holds all dependencies for the application.
type Container struct {
	// Store
	DB *database.DB

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Repositories
	AccountRepo     *accounts.Repository
	AnchorRepo      *accounts.AnchorRepository
	TransactionRepo *transactions.Repository
	CategoryRepo    *categories.Repository
	CommitmentRepo  *schedule.CommitmentRepository
	InflowRepo      *schedule.InflowRepository
	KeyEventRepo    *keyevents.Repository
	SnapshotRepo    *snapshots.Repository
	AlertRepo       *alerts.Repository
	AliasRepo       *questionnaire.AliasRepository
	CursorRepo      *ingest.CursorRepository
	AuditRepo       *ingest.AuditRepository

	// Domain services
	Resolver             *accounts.Resolver
	Expander             *forecast.Expander
	Overlay              *forecast.Overlay
	CategoryMapper       *categories.Mapper
	UpstreamClient       *ingest.Client // nil when UPSTREAM_API_URL is unset
	IngestService        *ingest.Service
	SnapshotService      *snapshots.Service
	AlertEngine          *alerts.Engine
	QuestionnaireService *questionnaire.Service
	Exporter             *questionnaire.Exporter

	// Reliability (nil unless all BACKUP_S3_* settings are present)
	S3Client      *reliability.S3Client
	BackupService *reliability.BackupService
}

// Close releases everything the container owns. Safe to call on a
// partially wired container.
func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

package di

import (
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/modules/accounts"
	"github.com/stavrou/budgetd/internal/modules/alerts"
	"github.com/stavrou/budgetd/internal/modules/categories"
	"github.com/stavrou/budgetd/internal/modules/ingest"
	"github.com/stavrou/budgetd/internal/modules/keyevents"
	"github.com/stavrou/budgetd/internal/modules/questionnaire"
	"github.com/stavrou/budgetd/internal/modules/schedule"
	"github.com/stavrou/budgetd/internal/modules/snapshots"
	"github.com/stavrou/budgetd/internal/modules/transactions"
)

// InitializeRepositories wires the data access layer over the open store.
func InitializeRepositories(c *Container, log zerolog.Logger) {
	conn := c.DB.Conn()

	c.AccountRepo = accounts.NewRepository(conn, log)
	c.AnchorRepo = accounts.NewAnchorRepository(conn, log)
	c.TransactionRepo = transactions.NewRepository(conn, log)
	c.CategoryRepo = categories.NewRepository(conn, log)
	c.CommitmentRepo = schedule.NewCommitmentRepository(conn, log)
	c.InflowRepo = schedule.NewInflowRepository(conn, log)
	c.KeyEventRepo = keyevents.NewRepository(conn, log)
	c.SnapshotRepo = snapshots.NewRepository(conn, log)
	c.AlertRepo = alerts.NewRepository(conn, log)
	c.AliasRepo = questionnaire.NewAliasRepository(conn, log)
	c.CursorRepo = ingest.NewCursorRepository(conn, log)
	c.AuditRepo = ingest.NewAuditRepository(conn, log)
}

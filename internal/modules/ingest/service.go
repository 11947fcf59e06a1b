package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/database"
	"github.com/stavrou/budgetd/internal/events"
	"github.com/stavrou/budgetd/internal/modules/accounts"
	"github.com/stavrou/budgetd/internal/modules/categories"
	"github.com/stavrou/budgetd/internal/modules/transactions"
)

// defaultRunTimeout bounds one ingest run end to end, fetch and upsert
// batch included. A run that blows past it rolls back and its audit row
// records the failure.
const defaultRunTimeout = 2 * time.Minute

// UpstreamClient is the slice of the upstream API the ingest flows need.
type UpstreamClient interface {
	FetchAccounts(ctx context.Context) ([]UpstreamAccount, error)
	FetchTransactions(ctx context.Context, sinceISO string) ([]UpstreamTransaction, error)
}

// Service runs the three ingest modes against the local store.
type Service struct {
	db           *sql.DB
	client       UpstreamClient
	accounts     *accounts.Repository
	categories   *categories.Repository
	transactions *transactions.Repository
	cursors      *CursorRepository
	audits       *AuditRepository
	events       *events.Manager
	log          zerolog.Logger
}

// NewService creates a new ingest service. The client may be nil when only
// CSV import is wired (no upstream credentials configured).
func NewService(
	db *sql.DB,
	client UpstreamClient,
	accountRepo *accounts.Repository,
	categoryRepo *categories.Repository,
	transactionRepo *transactions.Repository,
	cursors *CursorRepository,
	audits *AuditRepository,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Service {
	return &Service{
		db:           db,
		client:       client,
		accounts:     accountRepo,
		categories:   categoryRepo,
		transactions: transactionRepo,
		cursors:      cursors,
		audits:       audits,
		events:       eventManager,
		log:          log.With().Str("service", "ingest").Logger(),
	}
}

// RunDelta ingests upstream records newer than the stored cursor. The fetch
// reaches back one extra day so records that landed around the cursor date
// are not missed; the idempotency key absorbs the overlap. The cursor only
// advances inside the same transaction as the upsert batch, so a failed or
// timed-out run leaves it where it was.
func (s *Service) RunDelta(ctx context.Context, source string) (*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	run, auditID, err := s.startRun(source, ModeDelta, map[string]interface{}{"mode": ModeDelta})
	if err != nil {
		return nil, err
	}

	lastCursor, err := s.cursors.Get(source)
	if err != nil {
		return nil, s.fail(run, auditID, err)
	}

	base := time.Now().UTC()
	if lastCursor != "" {
		if parsed, perr := time.Parse("2006-01-02", lastCursor); perr == nil {
			base = parsed
		}
	}
	since := base.AddDate(0, 0, -1).Format("2006-01-02")
	if lastCursor != "" {
		run.Notes["last_cursor"] = lastCursor
	} else {
		run.Notes["last_cursor"] = nil
	}
	run.Notes["since_date"] = since

	records, maxSeen, err := s.fetchUpstream(ctx, source, since, run)
	if err != nil {
		return nil, s.fail(run, auditID, err)
	}

	newCursor := maxSeen
	if newCursor == "" {
		newCursor = time.Now().UTC().Format("2006-01-02")
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
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingest run aborted: %w", err)
		}
		return s.cursors.SetTx(tx, source, newCursor)
	})
	if err != nil {
		return nil, s.fail(run, auditID, err)
	}

	run.Notes["new_cursor"] = newCursor
	return s.finish(run, auditID, int64(len(records)), StatusSuccess)
}

// RunBackfill re-ingests the last N months of upstream history. Rows land
// under the same idempotency keys delta runs would use, so any overlap is
// harmless. The delta cursor is left alone.
func (s *Service) RunBackfill(ctx context.Context, source string, months int) (*RunResult, error) {
	if months < 1 {
		months = 1
	}
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	run, auditID, err := s.startRun(source, ModeBackfill, map[string]interface{}{
		"mode":   ModeBackfill,
		"months": months,
	})
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().AddDate(0, 0, -30*months).Format("2006-01-02")
	run.Notes["since_date"] = since

	records, _, err := s.fetchUpstream(ctx, source, since, run)
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

	return s.finish(run, auditID, int64(len(records)), StatusSuccess)
}

// fetchUpstream pulls accounts and records since the given day and resolves
// them into ledger rows. Accounts are created on first sight; category IDs
// resolve through the frozen map and stay NULL when unmapped so a later
// mapper run can claim them.
func (s *Service) fetchUpstream(ctx context.Context, source, sinceISO string, run *RunResult) ([]transactions.Transaction, string, error) {
	if s.client == nil {
		return nil, "", fmt.Errorf("%w: no upstream client configured", ErrUpstream)
	}

	upstreamAccounts, err := s.client.FetchAccounts(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch accounts: %w", err)
	}
	accountsByID := make(map[string]UpstreamAccount, len(upstreamAccounts))
	for _, a := range upstreamAccounts {
		accountsByID[a.ID] = a
	}

	txns, err := s.client.FetchTransactions(ctx, sinceISO)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch transactions: %w", err)
	}
	run.Notes["transactions_seen"] = len(txns)

	localAccountIDs := make(map[string]int64, len(upstreamAccounts))
	records := make([]transactions.Transaction, 0, len(txns))
	maxSeen := ""

	for _, t := range txns {
		localID, ok := localAccountIDs[t.AccountID]
		if !ok {
			info := accountsByID[t.AccountID]
			name := info.Name
			if name == "" {
				name = fmt.Sprintf("%s %s", source, shortID(t.AccountID))
			}
			accType := info.Type
			if accType == "" {
				accType = "unknown"
			}
			localID, err = s.accounts.UpsertByName(name, accType, info.Currency)
			if err != nil {
				return nil, "", err
			}
			localAccountIDs[t.AccountID] = localID
		}

		postedDay := t.Date
		if _, perr := time.Parse("2006-01-02", postedDay); perr != nil {
			postedDay = time.Now().UTC().Format("2006-01-02")
		}
		postedAt := postedDay + "T00:00:00Z"
		amountCents := int64(math.Round(t.Amount * 100))

		var categoryID *int64
		if t.CategoryID != "" {
			categoryID, err = s.categories.MapLookup(source, t.CategoryID)
			if err != nil {
				return nil, "", err
			}
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"upstream_id": t.ID,
			"account_id":  t.AccountID,
			"import_id":   t.ImportID,
		})

		records = append(records, transactions.Transaction{
			IdempotencyKey: transactions.IdempotencyKey(source, t.ID, postedAt, amountCents),
			AccountID:      localID,
			PostedAt:       postedAt,
			AmountCents:    amountCents,
			Payee:          t.PayeeName,
			Memo:           t.Memo,
			ExternalID:     t.ID,
			Source:         source,
			CategoryID:     categoryID,
			IsCleared:      clearedFlag(t.Cleared),
			ImportMeta:     string(meta),
		})

		if postedDay > maxSeen {
			maxSeen = postedDay
		}
	}

	return records, maxSeen, nil
}

// startRun stamps a running audit row, announces the run and hands back the
// result shell the caller fills in.
func (s *Service) startRun(source, mode string, notes map[string]interface{}) (*RunResult, int64, error) {
	run := &RunResult{
		RunID:     uuid.New().String(),
		Source:    source,
		Mode:      mode,
		StartedAt: nowISO(),
		Status:    StatusRunning,
		Notes:     notes,
	}

	auditID, err := s.audits.Start(run.RunID, source, mode, run.StartedAt, encodeNotes(notes))
	if err != nil {
		return nil, 0, err
	}

	if s.events != nil {
		s.events.Emit(events.IngestStarted, "ingest", map[string]interface{}{
			"run_id": run.RunID,
			"source": source,
			"mode":   mode,
		})
	}

	s.log.Info().
		Str("run_id", run.RunID).
		Str("source", source).
		Str("mode", mode).
		Msg("Ingest run started")

	return run, auditID, nil
}

// finish finalizes a settled run's audit row and emits the completion event.
func (s *Service) finish(run *RunResult, auditID int64, rowsUpserted int64, status string) (*RunResult, error) {
	run.FinishedAt = nowISO()
	run.RowsUpserted = rowsUpserted
	run.Status = status

	if err := s.audits.Finish(auditID, run.FinishedAt, rowsUpserted, status, encodeNotes(run.Notes)); err != nil {
		return nil, err
	}

	s.emitCompleted(run)
	s.log.Info().
		Str("run_id", run.RunID).
		Str("source", run.Source).
		Str("mode", run.Mode).
		Int64("rows_upserted", rowsUpserted).
		Str("status", status).
		Msg("Ingest run complete")

	return run, nil
}

// fail finalizes the audit row for a run that stopped early and returns the
// causing error with its chain intact, so callers can still match the
// upstream error with errors.Is.
func (s *Service) fail(run *RunResult, auditID int64, err error) error {
	run.FinishedAt = nowISO()
	run.Status = StatusFailure
	run.Notes["error"] = err.Error()

	if ferr := s.audits.Finish(auditID, run.FinishedAt, run.RowsUpserted, StatusFailure, encodeNotes(run.Notes)); ferr != nil {
		s.log.Error().Err(ferr).Int64("audit_id", auditID).Msg("Failed to finalize audit row")
	}

	s.emitCompleted(run)
	s.log.Error().
		Err(err).
		Str("run_id", run.RunID).
		Str("source", run.Source).
		Str("mode", run.Mode).
		Msg("Ingest run failed")

	return err
}

func (s *Service) emitCompleted(run *RunResult) {
	if s.events == nil {
		return
	}
	s.events.Emit(events.IngestCompleted, "ingest", map[string]interface{}{
		"run_id":        run.RunID,
		"source":        run.Source,
		"mode":          run.Mode,
		"status":        run.Status,
		"rows_upserted": run.RowsUpserted,
	})
}

// clearedFlag interprets the spellings exports and APIs use for a settled
// record.
func clearedFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "cleared", "reconciled", "true", "1", "yes", "y":
		return true
	}
	return false
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func encodeNotes(notes map[string]interface{}) string {
	data, err := json.Marshal(notes)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

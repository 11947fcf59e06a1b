package alerts

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/events"
	"github.com/stavrou/budgetd/internal/modules/accounts"
	"github.com/stavrou/budgetd/internal/modules/forecast"
	"github.com/stavrou/budgetd/internal/modules/keyevents"
	"github.com/stavrou/budgetd/internal/modules/schedule"
	"github.com/stavrou/budgetd/internal/modules/snapshots"
	"github.com/stavrou/budgetd/internal/modules/transactions"
)

const (
	// largeDebitWindowHours is how far back the large-debit detector looks.
	largeDebitWindowHours = 36
	// plannedMatchWindowDays is how close a key spend event must sit to a
	// debit's posted day to explain it.
	plannedMatchWindowDays = 7
)

// Engine runs the alert detectors. It is invoked after each snapshot capture
// and after manual ingests; every detector is idempotent because raised
// alerts dedupe on (type, dedupe_key).
type Engine struct {
	repo         *Repository
	snapshots    *snapshots.Repository
	accounts     *accounts.Repository
	anchors      *accounts.AnchorRepository
	resolver     *accounts.Resolver
	expander     *forecast.Expander
	transactions *transactions.Repository
	commitments  *schedule.CommitmentRepository
	keyEvents    *keyevents.Repository
	events       *events.Manager
	cfg          Config
	log          zerolog.Logger
}

func NewEngine(
	repo *Repository,
	snapshotRepo *snapshots.Repository,
	accountRepo *accounts.Repository,
	anchorRepo *accounts.AnchorRepository,
	resolver *accounts.Resolver,
	expander *forecast.Expander,
	transactionRepo *transactions.Repository,
	commitmentRepo *schedule.CommitmentRepository,
	keyEventRepo *keyevents.Repository,
	eventManager *events.Manager,
	cfg Config,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		repo:         repo,
		snapshots:    snapshotRepo,
		accounts:     accountRepo,
		anchors:      anchorRepo,
		resolver:     resolver,
		expander:     expander,
		transactions: transactionRepo,
		commitments:  commitmentRepo,
		keyEvents:    keyEventRepo,
		events:       eventManager,
		cfg:          cfg,
		log:          log.With().Str("service", "alerts").Logger(),
	}
}

// Evaluate runs all detectors as of the given instant and returns how many
// alerts each one raised. Re-running over unchanged data raises nothing.
func (e *Engine) Evaluate(asOf time.Time) (EvaluationResult, error) {
	var result EvaluationResult

	breaches, err := e.checkThresholdBreach(asOf)
	if err != nil {
		return result, fmt.Errorf("failed to check threshold breach: %w", err)
	}
	result.ThresholdBreaches = breaches

	debits, err := e.checkLargeDebits(asOf)
	if err != nil {
		return result, fmt.Errorf("failed to check large debits: %w", err)
	}
	result.LargeDebits = debits

	drift, err := e.checkCommitmentDrift(asOf)
	if err != nil {
		return result, fmt.Errorf("failed to check commitment drift: %w", err)
	}
	result.DriftAlerts = drift

	e.log.Info().
		Int("threshold_breaches", result.ThresholdBreaches).
		Int("large_debits", result.LargeDebits).
		Int("drift_alerts", result.DriftAlerts).
		Msg("Alert evaluation completed")
	return result, nil
}

// checkThresholdBreach compares the two newest snapshots against the global
// buffer floor and raises on a crossing: the minimum was at or above the
// floor before and fell below it now. The first snapshot counts as a
// crossing when it is already below. Per-account floors are then checked
// against a live per-account expansion over the same horizon.
func (e *Engine) checkThresholdBreach(asOf time.Time) (int, error) {
	current, previous, err := e.snapshots.LatestTwo()
	if err != nil {
		return 0, err
	}
	if current == nil {
		return 0, nil
	}

	created := 0

	if e.cfg.BufferFloorCents > 0 {
		crossed := current.MinBalanceCents < e.cfg.BufferFloorCents &&
			(previous == nil || previous.MinBalanceCents >= e.cfg.BufferFloorCents)
		if crossed {
			alert := Alert{
				CreatedAt: isoStamp(asOf),
				Type:      TypeThresholdBreach,
				DedupeKey: fmt.Sprintf("%d:%s:%d",
					e.cfg.BufferFloorCents, current.MinBalanceDate, current.MinBalanceCents),
				Severity: breachSeverity(current.MinBalanceCents),
				Title:    "Projected balance below buffer",
				Message:  "Min projected balance fell below the configured buffer since the last snapshot.",
				Details: map[string]interface{}{
					"buffer_floor_cents":        e.cfg.BufferFloorCents,
					"current_min_balance_cents": current.MinBalanceCents,
					"current_min_balance_date":  current.MinBalanceDate,
				},
			}
			if previous != nil {
				alert.Details["previous_min_balance_cents"] = previous.MinBalanceCents
			}
			ok, err := e.raise(alert)
			if err != nil {
				return created, err
			}
			if ok {
				created++
			}
		}
	}

	accountCreated, err := e.checkAccountFloors(asOf, current)
	if err != nil {
		return created, err
	}
	return created + accountCreated, nil
}

// checkAccountFloors expands each floored account alone over the snapshot
// horizon and raises when its projected minimum sits below the floor.
// Configured thresholds seed the floor set; stored anchor floors replace
// them account by account.
func (e *Engine) checkAccountFloors(asOf time.Time, current *snapshots.Snapshot) (int, error) {
	floors := make(map[int64]int64)
	for name, cents := range e.cfg.AccountFloors {
		account, err := e.accounts.GetByName(name)
		if err != nil {
			return 0, err
		}
		if account == nil {
			e.log.Warn().Str("account", name).Msg("Configured overdraft threshold for unknown account")
			continue
		}
		floors[account.ID] = cents
	}
	anchorFloors, err := e.anchors.Floors()
	if err != nil {
		return 0, err
	}
	for id, cents := range anchorFloors {
		floors[id] = cents
	}
	if len(floors) == 0 {
		return 0, nil
	}

	start, err := time.Parse("2006-01-02", current.HorizonStart)
	if err != nil {
		return 0, fmt.Errorf("failed to parse snapshot horizon start: %w", err)
	}
	end, err := time.Parse("2006-01-02", current.HorizonEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to parse snapshot horizon end: %w", err)
	}

	created := 0
	for accountID, floor := range floors {
		ids := []int64{accountID}
		opening, err := e.resolver.OpeningBalanceCents(start.AddDate(0, 0, -1), ids)
		if err != nil {
			return created, err
		}
		entries, err := e.expander.Expand(start, end, ids)
		if err != nil {
			return created, err
		}
		balances := forecast.ComputeBalances(opening, entries)
		minCents, minDate, ok := forecast.MinBalance(balances)
		if !ok {
			minCents, minDate = opening, current.HorizonStart
		}
		if minCents >= floor {
			continue
		}

		alert := Alert{
			CreatedAt: isoStamp(asOf),
			Type:      TypeThresholdBreach,
			DedupeKey: fmt.Sprintf("acct:%d:%d:%s:%d", accountID, floor, minDate, minCents),
			Severity:  breachSeverity(minCents),
			Title:     "Account projected below floor",
			Message:   fmt.Sprintf("Projected balance for account %d falls below its floor on %s.", accountID, minDate),
			Details: map[string]interface{}{
				"account_id":        accountID,
				"floor_cents":       floor,
				"min_balance_cents": minCents,
				"min_balance_date":  minDate,
			},
		}
		ok2, err := e.raise(alert)
		if err != nil {
			return created, err
		}
		if ok2 {
			created++
		}
	}
	return created, nil
}

// checkLargeDebits raises a warning for each cleared debit in the recent
// window at or above the configured magnitude, unless a commitment or a
// nearby key spend event accounts for it. The transaction idempotency key
// is the dedupe key, so a debit alerts at most once ever.
func (e *Engine) checkLargeDebits(asOf time.Time) (int, error) {
	threshold := e.cfg.LargeDebitCents
	if threshold <= 0 {
		return 0, nil
	}
	since := asOf.Add(-largeDebitWindowHours * time.Hour).UTC().Format(time.RFC3339)

	debits, err := e.transactions.RecentLargeDebits(since, threshold)
	if err != nil {
		return 0, err
	}
	if len(debits) == 0 {
		return 0, nil
	}

	commitments, err := e.commitments.List()
	if err != nil {
		return 0, err
	}

	created := 0
	for _, txn := range debits {
		planned, err := e.matchesPlanned(txn, commitments)
		if err != nil {
			return created, err
		}
		if planned {
			continue
		}

		magnitude := -txn.AmountCents
		message := fmt.Sprintf("A large debit of %d.%02d occurred", magnitude/100, magnitude%100)
		if txn.Payee != "" {
			message += fmt.Sprintf(" at %s.", txn.Payee)
		} else {
			message += "."
		}
		alert := Alert{
			CreatedAt: isoStamp(asOf),
			Type:      TypeLargeDebit,
			DedupeKey: txn.IdempotencyKey,
			Severity:  SeverityWarning,
			Title:     "Large debit detected",
			Message:   message,
			Details: map[string]interface{}{
				"amount_cents":    txn.AmountCents,
				"posted_at":       txn.PostedAt,
				"payee":           txn.Payee,
				"memo":            txn.Memo,
				"account_id":      txn.AccountID,
				"threshold_cents": threshold,
			},
		}
		ok, err := e.raise(alert)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// matchesPlanned reports whether a commitment or a key spend event near the
// posted day explains the debit. Amounts match within 1% or 100 cents,
// whichever is looser.
func (e *Engine) matchesPlanned(txn transactions.Transaction, commitments []schedule.Commitment) (bool, error) {
	magnitude := -txn.AmountCents
	for _, c := range commitments {
		if amountsMatch(magnitude, c.AmountCents) {
			return true, nil
		}
	}

	if len(txn.PostedAt) < 10 {
		return false, nil
	}
	postedDay, err := time.Parse("2006-01-02", txn.PostedAt[:10])
	if err != nil {
		return false, nil
	}
	from := postedDay.AddDate(0, 0, -plannedMatchWindowDays).Format("2006-01-02")
	to := postedDay.AddDate(0, 0, plannedMatchWindowDays).Format("2006-01-02")
	nearby, err := e.keyEvents.ListWindow(from, to)
	if err != nil {
		return false, err
	}
	for _, ev := range nearby {
		if amountsMatch(magnitude, ev.PlannedAmountCents) {
			return true, nil
		}
	}
	return false, nil
}

func amountsMatch(observed, planned int64) bool {
	if planned <= 0 {
		return false
	}
	tolerance := planned / 100
	if tolerance < 100 {
		tolerance = 100
	}
	diff := observed - planned
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

// checkCommitmentDrift flags commitments whose observed category spend
// deviated from the planned amount in every one of the last N full calendar
// months. A month with no spend at all counts as deviating. The alert
// carries a suggest_update with the mean observed amount.
func (e *Engine) checkCommitmentDrift(asOf time.Time) (int, error) {
	if e.cfg.DriftCycles <= 0 || e.cfg.DriftTolerance <= 0 {
		return 0, nil
	}
	periods := monthPeriods(asOf, e.cfg.DriftCycles)

	commitments, err := e.commitments.ListWithCategory()
	if err != nil {
		return 0, err
	}

	created := 0
	for _, c := range commitments {
		if c.CategoryID == nil || c.AmountCents <= 0 {
			continue
		}
		planned := c.AmountCents

		observed := make([]int64, 0, len(periods))
		allDeviate := true
		var sum int64
		for _, p := range periods {
			actual, err := e.transactions.MonthlyExpenseTotal(*c.CategoryID, p[0], p[1])
			if err != nil {
				return created, err
			}
			observed = append(observed, actual)
			sum += actual

			deviation := float64(actual-planned) / float64(planned)
			if deviation < 0 {
				deviation = -deviation
			}
			if deviation <= e.cfg.DriftTolerance {
				allDeviate = false
			}
		}
		if !allDeviate {
			continue
		}

		proposed := (sum + int64(len(periods))/2) / int64(len(periods))
		alert := Alert{
			CreatedAt: isoStamp(asOf),
			Type:      TypeCommitmentDrift,
			DedupeKey: fmt.Sprintf("commitment:%d:m%d:tol%s",
				c.ID, e.cfg.DriftCycles, strconv.FormatFloat(e.cfg.DriftTolerance, 'g', -1, 64)),
			Severity: SeverityInfo,
			Title:    "Commitment amount drift detected",
			Message: fmt.Sprintf("Observed monthly spend for '%s' deviates > %d%% from planned amount for %d months.",
				c.Name, int(e.cfg.DriftTolerance*100), e.cfg.DriftCycles),
			Details: map[string]interface{}{
				"commitment_id":          c.ID,
				"planned_amount_cents":   planned,
				"observed_monthly_cents": observed,
				"months":                 e.cfg.DriftCycles,
				"tolerance":              e.cfg.DriftTolerance,
				"suggest_update":         proposed,
			},
		}
		ok, err := e.raise(alert)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// raise persists the alert and emits an event only when the row is new.
func (e *Engine) raise(alert Alert) (bool, error) {
	ok, err := e.repo.Raise(alert)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	e.log.Info().
		Str("type", alert.Type).
		Str("severity", alert.Severity).
		Str("dedupe_key", alert.DedupeKey).
		Msg("Alert raised")
	if e.events != nil {
		e.events.EmitTyped("alerts", &events.AlertRaisedData{
			AlertType: alert.Type,
			Severity:  alert.Severity,
			Title:     alert.Title,
			DedupeKey: alert.DedupeKey,
		})
	}
	return true, nil
}

func breachSeverity(minCents int64) string {
	if minCents < 0 {
		return SeverityCritical
	}
	return SeverityWarning
}

// monthPeriods returns [start, end] day pairs for the last n full calendar
// months before asOf, newest first.
func monthPeriods(asOf time.Time, n int) [][2]string {
	first := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, time.UTC)
	periods := make([][2]string, 0, n)
	for i := 0; i < n; i++ {
		end := first.AddDate(0, 0, -1)
		start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
		periods = append(periods, [2]string{
			start.Format("2006-01-02"),
			end.Format("2006-01-02"),
		})
		first = start
	}
	return periods
}

func isoStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

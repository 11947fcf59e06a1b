package questionnaire

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/modules/accounts"
	"github.com/stavrou/budgetd/internal/modules/schedule"
	"github.com/stavrou/budgetd/internal/modules/transactions"
)

// Subscription detection thresholds: a payee must recur in at least
// minRecurringMonths distinct months with monthly totals spread no wider
// than maxAmountSpread of the largest.
const (
	minRecurringMonths = 3
	maxAmountSpread    = 0.20
)

var (
	loanTypes         = []string{"loan", "debt", "credit"}
	subscriptionTypes = []string{"bill", "subscription"}
	fixedCostTypes    = []string{"bill", "rent", "mortgage", "utility"}
)

// Service answers the questionnaire primitives against the ledger and the
// commitment schedule.
type Service struct {
	transactions *transactions.Repository
	commitments  *schedule.CommitmentRepository
	aliases      *AliasRepository
	resolver     *accounts.Resolver
	log          zerolog.Logger
}

func NewService(
	transactionRepo *transactions.Repository,
	commitmentRepo *schedule.CommitmentRepository,
	aliases *AliasRepository,
	resolver *accounts.Resolver,
	log zerolog.Logger,
) *Service {
	return &Service{
		transactions: transactionRepo,
		commitments:  commitmentRepo,
		aliases:      aliases,
		resolver:     resolver,
		log:          log.With().Str("service", "questionnaire").Logger(),
	}
}

// resolveCategory prefers an explicit id; otherwise the alias table, then a
// case-insensitive category name. nil means "all categories".
func (s *Service) resolveCategory(categoryID *int64, category string) (*int64, error) {
	if categoryID != nil {
		return categoryID, nil
	}
	return s.aliases.Resolve(category)
}

// MonthlyTotalByCategory sums expense transactions (negative cents) in the
// window, optionally narrowed to one category.
func (s *Service) MonthlyTotalByCategory(w Window, categoryID *int64, category string) (*Result, error) {
	catID, err := s.resolveCategory(categoryID, category)
	if err != nil {
		return nil, err
	}
	total, evidence, err := s.transactions.SumExpenses(w.StartISO(), w.EndISO(), catID)
	if err != nil {
		return nil, err
	}
	return &Result{
		ValueCents:  &total,
		WindowStart: w.StartISO(),
		WindowEnd:   w.EndISO(),
		Method:      "sum_expense_transactions_in_window",
		EvidenceIDs: evidence,
	}, nil
}

// MonthlyAverageByCategory divides the window total by the number of
// calendar months it touches.
func (s *Service) MonthlyAverageByCategory(w Window, categoryID *int64, category string) (*Result, error) {
	total, err := s.MonthlyTotalByCategory(w, categoryID, category)
	if err != nil {
		return nil, err
	}
	months := w.Months()
	if months < 1 {
		months = 1
	}
	avg := int64(math.Round(float64(*total.ValueCents) / float64(months)))
	return &Result{
		ValueCents:  &avg,
		WindowStart: total.WindowStart,
		WindowEnd:   total.WindowEnd,
		Method:      fmt.Sprintf("monthly_average_over_%d_months", months),
		EvidenceIDs: total.EvidenceIDs,
	}, nil
}

// ActiveLoans lists commitments typed loan, debt or credit.
func (s *Service) ActiveLoans() (*Result, error) {
	list, err := s.commitments.ListByTypes(loanTypes)
	if err != nil {
		return nil, err
	}
	rows := make([]LoanRow, 0, len(list))
	evidence := make([]string, 0, len(list))
	for _, c := range list {
		rows = append(rows, LoanRow{
			ID:          c.ID,
			Name:        c.Name,
			AmountCents: c.AmountCents,
			DueRule:     c.DueRule,
			NextDueDate: c.NextDueDate,
			AccountID:   c.AccountID,
			Type:        c.Type,
		})
		evidence = append(evidence, commitmentEvidence(c.ID))
	}
	return &Result{
		Rows:        rows,
		Method:      "commitments_type_filter",
		EvidenceIDs: evidence,
	}, nil
}

// IncomeSummary sums credit transactions in the window.
func (s *Service) IncomeSummary(w Window) (*Result, error) {
	total, evidence, err := s.transactions.SumIncome(w.StartISO(), w.EndISO())
	if err != nil {
		return nil, err
	}
	return &Result{
		ValueCents:  &total,
		WindowStart: w.StartISO(),
		WindowEnd:   w.EndISO(),
		Method:      "sum_income_transactions_in_window",
		EvidenceIDs: evidence,
	}, nil
}

// MonthlyCommitmentTotal sums the monthly-equivalent amounts of commitments
// of one type, as a negative figure.
func (s *Service) MonthlyCommitmentTotal(kind string, w Window) (*Result, error) {
	list, err := s.commitments.ListByTypes([]string{kind})
	if err != nil {
		return nil, err
	}
	var total int64
	evidence := make([]string, 0, len(list))
	for _, c := range list {
		total += schedule.MonthlyEquivalentCents(c.AmountCents, c.DueRule)
		evidence = append(evidence, commitmentEvidence(c.ID))
	}
	value := -abs64(total)
	return &Result{
		ValueCents:  &value,
		WindowStart: w.StartISO(),
		WindowEnd:   w.EndISO(),
		Method:      "sum_commitments_monthly_equivalent",
		EvidenceIDs: evidence,
	}, nil
}

// CategoryBreakdown totals expenses per category, most expensive first.
// topN > 0 limits the rows.
func (s *Service) CategoryBreakdown(w Window, topN int) (*Result, error) {
	rows, err := s.transactions.CategoryBreakdown(w.StartISO(), w.EndISO())
	if err != nil {
		return nil, err
	}
	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	return &Result{
		Rows:        rows,
		WindowStart: w.StartISO(),
		WindowEnd:   w.EndISO(),
		Method:      "sum_by_category_expenses",
		EvidenceIDs: []string{},
	}, nil
}

// SupportingTransactions pages through the raw rows behind an answer.
func (s *Service) SupportingTransactions(w Window, categoryID *int64, category string, page, pageSize int) (*Result, error) {
	catID, err := s.resolveCategory(categoryID, category)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	txns, total, err := s.transactions.ListWindow(w.StartISO(), w.EndISO(), catID, page, pageSize)
	if err != nil {
		return nil, err
	}
	rows := make([]EvidenceRow, 0, len(txns))
	evidence := make([]string, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, EvidenceRow{
			IdempotencyKey: t.IdempotencyKey,
			PostedAt:       t.PostedAt,
			AmountCents:    t.AmountCents,
			Payee:          t.Payee,
			Memo:           t.Memo,
			CategoryID:     t.CategoryID,
		})
		evidence = append(evidence, t.IdempotencyKey)
	}
	return &Result{
		Rows:        rows,
		Pagination:  &Pagination{Page: page, PageSize: pageSize, Total: total},
		WindowStart: w.StartISO(),
		WindowEnd:   w.EndISO(),
		Method:      "list_transactions_window_filtered",
		EvidenceIDs: evidence,
	}, nil
}

// Subscriptions merges commitments typed bill/subscription with payees
// observed recurring in the ledger window.
func (s *Service) Subscriptions(w Window) (*Result, error) {
	list, err := s.commitments.ListByTypes(subscriptionTypes)
	if err != nil {
		return nil, err
	}
	rows := make([]SubscriptionRow, 0, len(list))
	evidence := make([]string, 0, len(list))
	known := make(map[string]bool, len(list))
	for _, c := range list {
		rows = append(rows, SubscriptionRow{
			ID:          c.ID,
			Name:        c.Name,
			AmountCents: c.AmountCents,
			DueRule:     c.DueRule,
			NextDueDate: c.NextDueDate,
			Source:      "commitment",
		})
		evidence = append(evidence, commitmentEvidence(c.ID))
		known[strings.ToLower(c.Name)] = true
	}

	observed, observedEvidence, err := s.recurringPayees(w, known)
	if err != nil {
		return nil, err
	}
	rows = append(rows, observed...)
	evidence = append(evidence, observedEvidence...)

	return &Result{
		Rows:        rows,
		WindowStart: w.StartISO(),
		WindowEnd:   w.EndISO(),
		Method:      "commitments_type_bill_or_subscription",
		EvidenceIDs: evidence,
	}, nil
}

// recurringPayees scans debit totals by payee and month for charges that
// look like subscriptions: present in at least three distinct months with
// monthly totals within 20% of each other.
func (s *Service) recurringPayees(w Window, known map[string]bool) ([]SubscriptionRow, []string, error) {
	groups, err := s.transactions.PayeeMonthlyDebits(w.StartISO(), w.EndISO())
	if err != nil {
		return nil, nil, err
	}

	type payeeStats struct {
		magnitudes []int64
		evidence   []string
	}
	byPayee := make(map[string]*payeeStats)
	order := make([]string, 0)
	for _, g := range groups {
		if known[strings.ToLower(g.Payee)] {
			continue
		}
		ps, ok := byPayee[g.Payee]
		if !ok {
			ps = &payeeStats{}
			byPayee[g.Payee] = ps
			order = append(order, g.Payee)
		}
		ps.magnitudes = append(ps.magnitudes, abs64(g.TotalCents))
		ps.evidence = append(ps.evidence, g.EvidenceIDs...)
	}
	sort.Strings(order)

	rows := make([]SubscriptionRow, 0)
	evidence := make([]string, 0)
	for _, payee := range order {
		ps := byPayee[payee]
		if len(ps.magnitudes) < minRecurringMonths {
			continue
		}
		min, max, sum := ps.magnitudes[0], ps.magnitudes[0], int64(0)
		for _, m := range ps.magnitudes {
			if m < min {
				min = m
			}
			if m > max {
				max = m
			}
			sum += m
		}
		if max == 0 || float64(max-min) > maxAmountSpread*float64(max) {
			continue
		}
		mean := int64(math.Round(float64(sum) / float64(len(ps.magnitudes))))
		rows = append(rows, SubscriptionRow{
			Name:        payee,
			AmountCents: mean,
			Source:      "observed",
			Months:      len(ps.magnitudes),
		})
		evidence = append(evidence, ps.evidence...)
	}
	return rows, evidence, nil
}

// HouseholdFixedCosts sums commitments typed bill/rent/mortgage/utility as
// a negative figure.
func (s *Service) HouseholdFixedCosts() (*Result, error) {
	list, err := s.commitments.ListByTypes(fixedCostTypes)
	if err != nil {
		return nil, err
	}
	var total int64
	evidence := make([]string, 0, len(list))
	for _, c := range list {
		total += c.AmountCents
		evidence = append(evidence, commitmentEvidence(c.ID))
	}
	value := -abs64(total)
	return &Result{
		ValueCents:  &value,
		Method:      "sum_commitments_fixed_types",
		EvidenceIDs: evidence,
	}, nil
}

// MinClearedBalance walks Σ cleared day by day over the trailing window and
// reports the lowest balance seen.
func (s *Service) MinClearedBalance(days int, asOf time.Time) (*Result, error) {
	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	start := today.AddDate(0, 0, -(days - 1))

	opening, err := s.resolver.OpeningBalanceCents(start.AddDate(0, 0, -1), nil)
	if err != nil {
		return nil, err
	}
	daily, evidence, err := s.transactions.DailyClearedSums(
		start.Format("2006-01-02"), today.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	minBalance := opening
	balance := opening
	first := true
	for day := start; !day.After(today); day = day.AddDate(0, 0, 1) {
		balance += daily[day.Format("2006-01-02")]
		if first || balance < minBalance {
			minBalance = balance
			first = false
		}
	}

	return &Result{
		ValueCents:  &minBalance,
		WindowStart: start.Format("2006-01-02"),
		WindowEnd:   today.Format("2006-01-02"),
		Method:      fmt.Sprintf("min_cleared_balance_from_transactions_last_%d_days", days),
		EvidenceIDs: evidence,
	}, nil
}

func commitmentEvidence(id int64) string {
	return fmt.Sprintf("commitment:%d", id)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

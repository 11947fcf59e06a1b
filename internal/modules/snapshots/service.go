package snapshots

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/events"
	"github.com/stavrou/budgetd/internal/modules/accounts"
	"github.com/stavrou/budgetd/internal/modules/forecast"
)

// HorizonDays is the forecast window a snapshot covers.
const HorizonDays = 120

// Digest shaping knobs.
const (
	topCommitmentDays  = 14
	topCommitmentCount = 5
)

// Service captures forecast snapshots and derives the daily digest. The
// digest reads the latest persisted snapshot so a failed nightly run leaves
// yesterday's forecast serving, flagged stale.
type Service struct {
	resolver    *accounts.Resolver
	expander    *forecast.Expander
	repo        *Repository
	events      *events.Manager
	bufferFloor int64
	log         zerolog.Logger
}

// NewService creates a snapshot service. bufferFloorCents is the configured
// global floor recorded into each capture.
func NewService(
	resolver *accounts.Resolver,
	expander *forecast.Expander,
	repo *Repository,
	eventManager *events.Manager,
	bufferFloorCents int64,
	log zerolog.Logger,
) *Service {
	return &Service{
		resolver:    resolver,
		expander:    expander,
		repo:        repo,
		events:      eventManager,
		bufferFloor: bufferFloorCents,
		log:         log.With().Str("service", "snapshots").Logger(),
	}
}

// Capture expands the forecast over [asOf, asOf+HorizonDays] across all
// active accounts and persists it. Nothing is written when any step fails,
// so the previous snapshot keeps serving.
func (s *Service) Capture(asOf time.Time) (*Snapshot, error) {
	today := dayOf(asOf)
	end := today.AddDate(0, 0, HorizonDays)

	opening, entries, balances, err := s.expand(today, end)
	if err != nil {
		return nil, err
	}

	minCents, minDate, ok := forecast.MinBalance(balances)
	if !ok {
		minCents = opening
		minDate = isoDay(today)
	}

	payload, err := EncodePayload(&Payload{
		Entries:  entries,
		Balances: balances,
		Parameters: Parameters{
			OpeningCents:     opening,
			BufferFloorCents: s.bufferFloor,
			HorizonDays:      HorizonDays,
		},
	})
	if err != nil {
		return nil, err
	}

	snapshot := Snapshot{
		CreatedAt:       asOf.UTC().Format(time.RFC3339),
		HorizonStart:    isoDay(today),
		HorizonEnd:      isoDay(end),
		MinBalanceCents: minCents,
		MinBalanceDate:  minDate,
		Payload:         payload,
	}

	id, err := s.repo.Insert(snapshot)
	if err != nil {
		return nil, err
	}
	snapshot.ID = id

	s.log.Info().
		Int64("snapshot_id", id).
		Str("horizon_start", snapshot.HorizonStart).
		Str("horizon_end", snapshot.HorizonEnd).
		Int64("min_balance_cents", minCents).
		Str("min_balance_date", minDate).
		Int("entries", len(entries)).
		Msg("Forecast snapshot captured")

	if s.events != nil {
		s.events.EmitTyped("snapshots", &events.SnapshotCreatedData{
			SnapshotID:      id,
			HorizonStart:    snapshot.HorizonStart,
			HorizonEnd:      snapshot.HorizonEnd,
			MinBalanceCents: minCents,
			MinBalanceDate:  minDate,
		})
	}

	return &snapshot, nil
}

// Digest derives the daily overview from the latest snapshot. When no
// snapshot exists yet the forecast is computed live and the snapshot block
// is null.
func (s *Service) Digest(asOf time.Time) (*Digest, error) {
	today := dayOf(asOf)
	todayISO := isoDay(today)

	latest, err := s.repo.Latest()
	if err != nil {
		return nil, err
	}

	if latest == nil {
		opening, entries, balances, err := s.expand(today, today.AddDate(0, 0, HorizonDays))
		if err != nil {
			return nil, err
		}
		return s.buildDigest(todayISO, opening, s.bufferFloor, entries, balances, nil), nil
	}

	payload, err := DecodePayload(latest.Payload)
	if err != nil {
		return nil, err
	}

	info := &SnapshotInfo{
		CreatedAt: latest.CreatedAt,
		IsStale:   dayOfStamp(latest.CreatedAt) != todayISO,
	}
	return s.buildDigest(
		todayISO,
		payload.Parameters.OpeningCents,
		payload.Parameters.BufferFloorCents,
		payload.Entries,
		payload.Balances,
		info,
	), nil
}

// expand resolves the opening balance as of the day before the horizon and
// expands the calendar across it, for all active accounts.
func (s *Service) expand(start, end time.Time) (int64, []forecast.Entry, map[string]int64, error) {
	opening, err := s.resolver.OpeningBalanceCents(start.AddDate(0, 0, -1), nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to resolve opening balance: %w", err)
	}
	entries, err := s.expander.Expand(start, end, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to expand calendar: %w", err)
	}
	return opening, entries, forecast.ComputeBalances(opening, entries), nil
}

func (s *Service) buildDigest(
	todayISO string,
	opening, floor int64,
	entries []forecast.Entry,
	balances map[string]int64,
	info *SnapshotInfo,
) *Digest {
	todayEOD := forecast.BalanceOn(balances, opening, todayISO)

	safeToSpend := todayEOD - floor
	if safeToSpend < 0 {
		safeToSpend = 0
	}

	minCents, minDate, ok := forecast.MinBalance(balances)
	if !ok {
		minCents = opening
		minDate = todayISO
	}

	var cliff *string
	if d, _, found := forecast.NextCliff(balances, todayISO, floor); found {
		cliff = &d
	}

	stale := info != nil && info.IsStale
	return &Digest{
		Date:                  todayISO,
		CurrentBalanceCents:   todayEOD,
		SafeToSpendCents:      safeToSpend,
		BufferFloorCents:      floor,
		NextCliffDate:         cliff,
		MinBalanceCents:       minCents,
		MinBalanceDate:        minDate,
		TopCommitments:        topCommitments(entries, todayISO),
		KeyEventsInLeadWindow: leadWindowEvents(entries),
		HealthScore:           healthScore(minCents, floor, todayISO, cliff, stale),
		Snapshot:              info,
	}
}

// topCommitments picks the largest commitments landing within the next
// topCommitmentDays: biggest magnitude first, earlier date and then name
// breaking ties, capped at topCommitmentCount.
func topCommitments(entries []forecast.Entry, todayISO string) []DigestCommitment {
	cutoff := isoDay(parseDay(todayISO).AddDate(0, 0, topCommitmentDays))

	picked := make([]DigestCommitment, 0, topCommitmentCount)
	for _, e := range entries {
		if e.Type != forecast.EntryCommitment || e.Date < todayISO || e.Date > cutoff {
			continue
		}
		picked = append(picked, DigestCommitment{
			Date:        e.Date,
			Name:        e.Name,
			AmountCents: e.AmountCents,
		})
	}

	sort.SliceStable(picked, func(i, j int) bool {
		ai, aj := abs64(picked[i].AmountCents), abs64(picked[j].AmountCents)
		if ai != aj {
			return ai > aj
		}
		if picked[i].Date != picked[j].Date {
			return picked[i].Date < picked[j].Date
		}
		return picked[i].Name < picked[j].Name
	})

	if len(picked) > topCommitmentCount {
		picked = picked[:topCommitmentCount]
	}
	return picked
}

// leadWindowEvents lists key events currently inside their lead window,
// ordered by date, then magnitude (largest first), then name.
func leadWindowEvents(entries []forecast.Entry) []DigestKeyEvent {
	out := make([]DigestKeyEvent, 0)
	for _, e := range entries {
		if e.Type != forecast.EntryKeyEvent {
			continue
		}
		if e.IsWithinLeadWindow == nil || !*e.IsWithinLeadWindow {
			continue
		}
		out = append(out, DigestKeyEvent{
			Date:        e.Date,
			Name:        e.Name,
			AmountCents: e.AmountCents,
			UIMarker:    e.UIMarker,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		ai, aj := abs64(out[i].AmountCents), abs64(out[j].AmountCents)
		if ai != aj {
			return ai > aj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// healthScore grades the horizon from 0 to 100. Points come off for thin
// headroom above the floor, for a near cliff, and for serving a stale
// snapshot.
func healthScore(minCents, floorCents int64, todayISO string, cliff *string, stale bool) int {
	score := 100

	headroom := minCents - floorCents
	switch {
	case headroom < 0:
		score -= 60
	case headroom < 10000:
		score -= int((10000 - headroom) * 30 / 10000)
	}

	if cliff != nil {
		days := daysBetween(todayISO, *cliff)
		switch {
		case days <= 7:
			score -= 30
		case days <= 14:
			score -= 20
		case days <= 30:
			score -= 10
		}
	}

	if stale {
		score -= 10
	}

	if score < 0 {
		score = 0
	}
	return score
}

func daysBetween(fromISO, toISO string) int {
	from := parseDay(fromISO)
	to := parseDay(toISO)
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// dayOfStamp extracts the ISO day from an RFC3339 timestamp.
func dayOfStamp(stamp string) string {
	if len(stamp) >= 10 {
		return stamp[:10]
	}
	return stamp
}

func isoDay(t time.Time) string {
	return t.Format("2006-01-02")
}

func parseDay(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return d
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

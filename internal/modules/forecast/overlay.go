package forecast

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/stavrou/budgetd/internal/modules/transactions"
)

// Overlay parameters. The window anchors at the newest variable-spend day,
// not the wall clock, so identical stores always yield identical stats.
const (
	StatsWindowDays = 180
	// Fewer spend days than this and the sample is too thin to trust;
	// everything collapses to the neutral overlay.
	minSpendDays = 14
)

// SpendStats summarizes recent variable spend: mean and population stddev of
// the daily outflow magnitude, plus per-weekday multipliers (Monday first)
// normalized to average 1.0.
type SpendStats struct {
	MuDaily     int64     `json:"mu_daily"`
	SigmaDaily  int64     `json:"sigma_daily"`
	WeekdayMult []float64 `json:"weekday_mult"`
	WindowDays  int       `json:"window_days"`
	SpendDays   int       `json:"spend_days"`
	WindowStart string    `json:"window_start,omitempty"`
	WindowEnd   string    `json:"window_end,omitempty"`
}

// NeutralStats is the overlay used when history is empty or sparse: nothing
// subtracted, no bands.
func NeutralStats(windowDays int) SpendStats {
	return SpendStats{
		WeekdayMult: []float64{1, 1, 1, 1, 1, 1, 1},
		WindowDays:  windowDays,
	}
}

// Overlay derives spend statistics from the transaction store.
type Overlay struct {
	transactions *transactions.Repository
	log          zerolog.Logger
}

// NewOverlay creates a blended overlay calculator.
func NewOverlay(txRepo *transactions.Repository, log zerolog.Logger) *Overlay {
	return &Overlay{
		transactions: txRepo,
		log:          log.With().Str("component", "blended_overlay").Logger(),
	}
}

// Stats loads outflow history and computes the spend statistics over the
// trailing window.
func (o *Overlay) Stats(windowDays int) (SpendStats, error) {
	newest, err := o.transactions.NewestOutflowDay()
	if err != nil {
		return SpendStats{}, err
	}
	if newest == "" {
		return NeutralStats(windowDays), nil
	}

	rows, err := o.transactions.OutflowsBetween("0001-01-01", newest)
	if err != nil {
		return SpendStats{}, err
	}
	return ComputeSpendStats(rows, windowDays), nil
}

// ComputeSpendStats aggregates outflow rows into a contiguous daily series
// ending at the newest eligible spend day, zero-filled across gaps, and
// derives μ, σ and weekday multipliers from it.
func ComputeSpendStats(rows []transactions.SpendRow, windowDays int) SpendStats {
	if windowDays <= 0 {
		windowDays = StatsWindowDays
	}

	daily := make(map[string]int64)
	maxDay := ""
	for _, row := range rows {
		if excludeFromOverlay(row) {
			continue
		}
		daily[row.PostedDay] += -row.AmountCents
		if row.PostedDay > maxDay {
			maxDay = row.PostedDay
		}
	}
	if maxDay == "" {
		return NeutralStats(windowDays)
	}

	end := parseDay(maxDay)
	start := end.AddDate(0, 0, -(windowDays - 1))

	vals := make([]float64, 0, windowDays)
	weekdays := make([]int, 0, windowDays)
	spendDays := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		v := daily[isoDay(d)]
		if v > 0 {
			spendDays++
		}
		vals = append(vals, float64(v))
		weekdays = append(weekdays, mondayIndex(d.Weekday()))
	}

	if spendDays < minSpendDays {
		s := NeutralStats(windowDays)
		s.SpendDays = spendDays
		s.WindowStart = isoDay(start)
		s.WindowEnd = isoDay(end)
		return s
	}

	mu := stat.Mean(vals, nil)
	sigma := stat.PopStdDev(vals, nil)

	stats := SpendStats{
		MuDaily:     int64(math.Round(mu)),
		SigmaDaily:  int64(math.Round(sigma)),
		WeekdayMult: weekdayMultipliers(vals, weekdays, mu),
		WindowDays:  windowDays,
		SpendDays:   spendDays,
		WindowStart: isoDay(start),
		WindowEnd:   isoDay(end),
	}
	return stats
}

// weekdayMultipliers is per-weekday mean ÷ overall mean, renormalized so the
// simple average of the seven multipliers is exactly 1.0.
func weekdayMultipliers(vals []float64, weekdays []int, overallMean float64) []float64 {
	if overallMean <= 0 {
		return []float64{1, 1, 1, 1, 1, 1, 1}
	}

	sums := make([]float64, 7)
	counts := make([]int, 7)
	for i, v := range vals {
		sums[weekdays[i]] += v
		counts[weekdays[i]]++
	}

	mults := make([]float64, 7)
	for w := 0; w < 7; w++ {
		if counts[w] == 0 {
			mults[w] = 1.0
			continue
		}
		mults[w] = (sums[w] / float64(counts[w])) / overallMean
	}

	avg := stat.Mean(mults, nil)
	if avg <= 0 {
		return []float64{1, 1, 1, 1, 1, 1, 1}
	}
	for w := range mults {
		mults[w] /= avg
	}
	return mults
}

// excludeFromOverlay drops rows that are not variable spend: credits, rows
// flagged as commitments/key events/excluded in their import metadata, and
// transfer/income/savings categories.
func excludeFromOverlay(row transactions.SpendRow) bool {
	if row.AmountCents >= 0 {
		return true
	}

	hints := strings.ToLower(row.CategoryName + " " + row.Payee)
	if row.ImportMeta != "" {
		var meta map[string]interface{}
		if err := json.Unmarshal([]byte(row.ImportMeta), &meta); err == nil {
			for _, k := range []string{"is_commitment", "is_key_event", "exclude"} {
				if truthy(meta[k]) {
					return true
				}
			}
			for _, k := range []string{"category", "category_name", "category_group", "group", "type"} {
				if s, ok := meta[k].(string); ok {
					hints += " " + strings.ToLower(s)
				}
			}
		}
	}

	return strings.Contains(hints, "transfer") ||
		strings.Contains(hints, "income") ||
		strings.Contains(hints, "savings")
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(t)
		return s != "" && s != "0" && s != "false" && s != "no" && s != "none"
	}
	return false
}

// BlendedSeries subtracts the expected variable spend from each keyed day of
// the deterministic series. Per-date subtraction, never cumulative.
func BlendedSeries(balances map[string]int64, stats SpendStats) map[string]int64 {
	out := make(map[string]int64, len(balances))
	for day, bal := range balances {
		w := 1.0
		if d := parseDay(day); !d.IsZero() && len(stats.WeekdayMult) == 7 {
			w = stats.WeekdayMult[mondayIndex(d.Weekday())]
		}
		out[day] = bal - int64(math.Round(float64(stats.MuDaily)*w))
	}
	return out
}

// BlendedBands puts ±k·σ around a blended series.
func BlendedBands(blended map[string]int64, stats SpendStats, bandK float64) (lower, upper map[string]int64) {
	spread := int64(math.Round(bandK * float64(stats.SigmaDaily)))
	lower = make(map[string]int64, len(blended))
	upper = make(map[string]int64, len(blended))
	for day, bal := range blended {
		lower[day] = bal - spread
		upper[day] = bal + spread
	}
	return lower, upper
}

// Package handlers provides HTTP handlers for the forecast calendar, the
// blended overlay, the what-if simulator, and the iCal export.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/modules/accounts"
	"github.com/stavrou/budgetd/internal/modules/forecast"
)

const defaultHorizonDays = 120

// Handler handles forecast HTTP requests
type Handler struct {
	expander *forecast.Expander
	resolver *accounts.Resolver
	overlay  *forecast.Overlay
	log      zerolog.Logger
}

// NewHandler creates a new forecast handler.
func NewHandler(
	expander *forecast.Expander,
	resolver *accounts.Resolver,
	overlay *forecast.Overlay,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		expander: expander,
		resolver: resolver,
		overlay:  overlay,
		log:      log.With().Str("handler", "forecast").Logger(),
	}
}

// horizonRequest carries the window every forecast read shares.
type horizonRequest struct {
	start       time.Time
	end         time.Time
	bufferFloor int64
	accountIDs  []int64
}

func parseHorizon(r *http.Request) (*horizonRequest, string) {
	q := r.URL.Query()

	start, err := time.Parse("2006-01-02", q.Get("start"))
	if err != nil {
		return nil, "start must be YYYY-MM-DD"
	}
	end, err := time.Parse("2006-01-02", q.Get("end"))
	if err != nil {
		return nil, "end must be YYYY-MM-DD"
	}
	if end.Before(start) {
		return nil, "end must be on or after start"
	}

	var floor int64
	if raw := q.Get("buffer_floor"); raw != "" {
		floor, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, "buffer_floor must be an integer cent amount"
		}
	}

	var ids []int64
	if raw := q.Get("accounts"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, "accounts must be a comma-separated list of ids"
			}
			ids = append(ids, id)
		}
	}

	return &horizonRequest{start: start, end: end, bufferFloor: floor, accountIDs: ids}, ""
}

// expandWithOpening resolves the opening balance as of the day before the
// horizon and expands the calendar across it.
func (h *Handler) expandWithOpening(req *horizonRequest) (int64, []forecast.Entry, map[string]int64, error) {
	opening, err := h.resolver.OpeningBalanceCents(req.start.AddDate(0, 0, -1), req.accountIDs)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to resolve opening balance: %w", err)
	}
	entries, err := h.expander.Expand(req.start, req.end, req.accountIDs)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to expand calendar: %w", err)
	}
	return opening, entries, forecast.ComputeBalances(opening, entries), nil
}

// HandleCalendar handles GET /api/forecast/calendar
func (h *Handler) HandleCalendar(w http.ResponseWriter, r *http.Request) {
	req, msg := parseHorizon(r)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	opening, entries, balances, err := h.expandWithOpening(req)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build forecast calendar")
		http.Error(w, "Failed to build forecast calendar", http.StatusInternalServerError)
		return
	}

	minCents, minDate, ok := forecast.MinBalance(balances)
	var minCentsOut interface{}
	var minDateOut interface{}
	if ok {
		minCentsOut = minCents
		minDateOut = minDate
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"opening_balance_cents": opening,
		"entries":               entries,
		"balances":              balances,
		"min_balance_cents":     minCentsOut,
		"min_balance_date":      minDateOut,
		"meta": map[string]interface{}{
			"opening_balance_strategy": "anchor_resolved_active_accounts_as_of(start_minus_one)",
			"buffer_floor":             req.bufferFloor,
			"below_buffer":             ok && minCents < req.bufferFloor,
			"today":                    req.start.Format("2006-01-02"),
		},
	})
}

// HandleBlended handles GET /api/forecast/blended. The statistical
// parameters can be pinned via query for reproducible output; anything not
// pinned is computed from transaction history.
func (h *Handler) HandleBlended(w http.ResponseWriter, r *http.Request) {
	req, msg := parseHorizon(r)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	bandK := 1.0
	if raw := q.Get("band_k"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			http.Error(w, "band_k must be a non-negative number", http.StatusBadRequest)
			return
		}
		bandK = v
	}

	stats, err := h.overlay.Stats(forecast.StatsWindowDays)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute spend statistics")
		http.Error(w, "Failed to compute spend statistics", http.StatusInternalServerError)
		return
	}

	if raw := q.Get("mu_daily"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "mu_daily must be an integer cent amount", http.StatusBadRequest)
			return
		}
		stats.MuDaily = v
	}
	if raw := q.Get("sigma_daily"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "sigma_daily must be an integer cent amount", http.StatusBadRequest)
			return
		}
		stats.SigmaDaily = v
	}
	if raw := q.Get("weekday_mult"); raw != "" {
		var mult []float64
		if err := json.Unmarshal([]byte(raw), &mult); err != nil || len(mult) != 7 {
			http.Error(w, "weekday_mult must be a JSON array of 7 numbers", http.StatusBadRequest)
			return
		}
		stats.WeekdayMult = mult
	}

	opening, entries, balances, err := h.expandWithOpening(req)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build blended forecast")
		http.Error(w, "Failed to build blended forecast", http.StatusInternalServerError)
		return
	}

	blended := forecast.BlendedSeries(balances, stats)
	lower, upper := forecast.BlendedBands(blended, stats, bandK)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"opening_balance_cents":  opening,
		"entries":                entries,
		"baseline_deterministic": balances,
		"baseline_blended":       blended,
		"bands": map[string]interface{}{
			"lower": lower,
			"upper": upper,
		},
		"stats": stats,
		"meta": map[string]interface{}{
			"band_k":       bandK,
			"buffer_floor": req.bufferFloor,
		},
	})
}

type simulateRequest struct {
	Date        string  `json:"date"`
	AmountCents int64   `json:"amount_cents"`
	BufferFloor int64   `json:"buffer_floor"`
	Mode        string  `json:"mode"`
	HorizonDays int     `json:"horizon_days"`
	Accounts    []int64 `json:"accounts"`
}

// HandleSimulateSpend handles POST /api/forecast/simulate-spend
func (h *Handler) HandleSimulateSpend(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	day, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if req.AmountCents < 0 {
		http.Error(w, "amount_cents must be non-negative", http.StatusBadRequest)
		return
	}
	mode := req.Mode
	if mode == "" {
		mode = "deterministic"
	}
	if mode != "deterministic" && mode != "blended" {
		http.Error(w, "mode must be deterministic or blended", http.StatusBadRequest)
		return
	}
	horizonDays := req.HorizonDays
	if horizonDays <= 0 {
		horizonDays = defaultHorizonDays
	}

	horizon := &horizonRequest{
		start:       day,
		end:         day.AddDate(0, 0, horizonDays),
		bufferFloor: req.BufferFloor,
		accountIDs:  req.Accounts,
	}
	opening, entries, balances, err := h.expandWithOpening(horizon)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build simulation horizon")
		http.Error(w, "Failed to simulate spend", http.StatusInternalServerError)
		return
	}

	decision := forecast.SimulateSpend(opening, entries, req.Date, req.AmountCents, req.BufferFloor)

	// Blended mode swaps the displayed baseline; the decision above never
	// changes with mode.
	baseline := balances
	if mode == "blended" {
		stats, err := h.overlay.Stats(forecast.StatsWindowDays)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to compute spend statistics")
			http.Error(w, "Failed to simulate spend", http.StatusInternalServerError)
			return
		}
		baseline = forecast.BlendedSeries(balances, stats)
	}

	h.log.Info().
		Str("date", req.Date).
		Int64("amount_cents", req.AmountCents).
		Bool("safe", decision.Safe).
		Msg("Simulated spend")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"decision": decision,
		"mode":     mode,
		"baseline": baseline,
		"meta": map[string]interface{}{
			"opening_balance_cents": opening,
			"buffer_floor":          req.BufferFloor,
			"horizon": map[string]string{
				"start": horizon.start.Format("2006-01-02"),
				"end":   horizon.end.Format("2006-01-02"),
			},
		},
	})
}

// HandleICalExport handles GET /api/calendar?from&to, streaming commitments
// and key events as all-day iCal events.
func (h *Handler) HandleICalExport(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if to.Before(from) {
		http.Error(w, "to must be on or after from", http.StatusBadRequest)
		return
	}

	entries, err := h.expander.Expand(from, to, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to expand calendar for export")
		http.Error(w, "Failed to export calendar", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("budget_calendar_%s_%s.ics", from.Format("2006-01-02"), to.Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte(forecast.RenderICal(entries, time.Now().UTC()))); err != nil {
		h.log.Error().Err(err).Msg("Failed to stream iCal export")
	}
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

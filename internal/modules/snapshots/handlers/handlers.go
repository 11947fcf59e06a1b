// Package handlers provides HTTP handlers for the daily digest and the
// persisted forecast snapshots.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/modules/forecast"
	"github.com/stavrou/budgetd/internal/modules/snapshots"
)

// maxDashboardEntries caps the entry list served to dashboards. Horizons
// dense enough to exceed it are stride-sampled; the balance series is always
// served complete.
const maxDashboardEntries = 2000

// Handler handles digest and snapshot HTTP requests.
type Handler struct {
	service *snapshots.Service
	repo    *snapshots.Repository
	log     zerolog.Logger
}

// NewHandler creates a new snapshots handler.
func NewHandler(service *snapshots.Service, repo *snapshots.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		repo:    repo,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleOverview handles GET /overview.
func (h *Handler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	digest, err := h.service.Digest(time.Now().UTC())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to build digest")
		http.Error(w, "Failed to build digest", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, digest)
}

// HandleLatest handles GET /forecast/snapshots/latest. The stored payload is
// decoded so dashboards get entries, balances and parameters without knowing
// the blob format.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := h.repo.Latest()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load latest snapshot")
		http.Error(w, "Failed to load latest snapshot", http.StatusInternalServerError)
		return
	}
	if latest == nil {
		http.Error(w, "No snapshot captured yet", http.StatusNotFound)
		return
	}

	payload, err := snapshots.DecodePayload(latest.Payload)
	if err != nil {
		h.log.Error().Err(err).Int64("snapshot_id", latest.ID).Msg("Failed to decode snapshot payload")
		http.Error(w, "Failed to decode snapshot payload", http.StatusInternalServerError)
		return
	}

	entries, downsampled := downsampleEntries(payload.Entries)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":                  latest.ID,
		"created_at":          latest.CreatedAt,
		"horizon_start":       latest.HorizonStart,
		"horizon_end":         latest.HorizonEnd,
		"min_balance_cents":   latest.MinBalanceCents,
		"min_balance_date":    latest.MinBalanceDate,
		"entries":             entries,
		"entries_downsampled": downsampled,
		"balances":            payload.Balances,
		"parameters":          payload.Parameters,
	})
}

// downsampleEntries stride-samples an oversized entry list down to the
// dashboard cap.
func downsampleEntries(entries []forecast.Entry) ([]forecast.Entry, bool) {
	if len(entries) <= maxDashboardEntries {
		return entries, false
	}
	stride := (len(entries) + maxDashboardEntries - 1) / maxDashboardEntries
	out := make([]forecast.Entry, 0, maxDashboardEntries)
	for i := 0; i < len(entries); i += stride {
		out = append(out, entries[i])
	}
	return out, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

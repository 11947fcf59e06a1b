// Package handlers provides HTTP handlers for alerts.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/events"
	"github.com/stavrou/budgetd/internal/modules/alerts"
)

// Handler handles alert HTTP requests
type Handler struct {
	repo   *alerts.Repository
	events *events.Manager
	log    zerolog.Logger
}

// NewHandler creates a new alerts handler.
func NewHandler(repo *alerts.Repository, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		events: eventManager,
		log:    log.With().Str("handler", "alerts").Logger(),
	}
}

// HandleList handles GET /api/alerts?active=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "active must be a boolean", http.StatusBadRequest)
			return
		}
		activeOnly = parsed
	}

	list, err := h.repo.List(activeOnly)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list alerts")
		http.Error(w, "Failed to list alerts", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alerts.Alert{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": list,
		"count":  len(list),
	})
}

// HandleResolve handles POST /api/alerts/{id}/resolve
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid alert id", http.StatusBadRequest)
		return
	}

	existing, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Int64("alert_id", id).Msg("Failed to load alert")
		http.Error(w, "Failed to resolve alert", http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, "Alert not found", http.StatusNotFound)
		return
	}

	resolved, err := h.repo.Resolve(id)
	if err != nil || resolved == nil {
		h.log.Error().Err(err).Int64("alert_id", id).Msg("Failed to resolve alert")
		http.Error(w, "Failed to resolve alert", http.StatusInternalServerError)
		return
	}

	if h.events != nil && existing.ResolvedAt == nil {
		h.events.Emit(events.AlertResolved, "alerts", map[string]interface{}{
			"alert_id":   id,
			"alert_type": resolved.Type,
			"dedupe_key": resolved.DedupeKey,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"alert":  resolved,
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Package handlers provides HTTP handlers for key spend events.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/events"
	"github.com/stavrou/budgetd/internal/modules/keyevents"
)

// Handler handles key event HTTP requests
type Handler struct {
	repo   *keyevents.Repository
	events *events.Manager
	log    zerolog.Logger
}

// NewHandler creates a new key events handler.
func NewHandler(repo *keyevents.Repository, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		events: eventManager,
		log:    log.With().Str("handler", "key_events").Logger(),
	}
}

// HandleList handles GET /api/key-events?from&to
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			http.Error(w, "from/to must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	list, err := h.repo.ListWindow(from, to)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list key events")
		http.Error(w, "Failed to list key events", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"key_events": list})
}

type upsertRequest struct {
	ID                 *int64 `json:"id"`
	Name               string `json:"name"`
	EventDate          string `json:"event_date"`
	RepeatRule         string `json:"repeat_rule"`
	PlannedAmountCents int64  `json:"planned_amount_cents"`
	CategoryID         *int64 `json:"category_id"`
	LeadTimeDays       *int64 `json:"lead_time_days"`
	ShiftPolicy        string `json:"shift_policy"`
	AccountID          *int64 `json:"account_id"`
}

// HandleUpsert handles POST /api/key-events. A body with an id updates that
// row (404 when absent); without one it inserts.
func (h *Handler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", req.EventDate); err != nil {
		http.Error(w, "event_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if req.LeadTimeDays != nil && *req.LeadTimeDays < 0 {
		http.Error(w, "lead_time_days must be non-negative", http.StatusBadRequest)
		return
	}

	ev := keyevents.KeySpendEvent{
		Name:               req.Name,
		EventDate:          req.EventDate,
		RepeatRule:         req.RepeatRule,
		PlannedAmountCents: req.PlannedAmountCents,
		CategoryID:         req.CategoryID,
		LeadTimeDays:       req.LeadTimeDays,
		ShiftPolicy:        req.ShiftPolicy,
		AccountID:          req.AccountID,
	}

	var id int64
	if req.ID != nil {
		ev.ID = *req.ID
		found, err := h.repo.Update(ev)
		if err != nil {
			h.log.Error().Err(err).Int64("event_id", ev.ID).Msg("Failed to update key event")
			http.Error(w, "Failed to save key event", http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, "Key event not found", http.StatusNotFound)
			return
		}
		id = ev.ID
	} else {
		created, err := h.repo.Create(ev)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to create key event")
			http.Error(w, "Failed to save key event", http.StatusInternalServerError)
			return
		}
		id = created
	}

	saved, err := h.repo.GetByID(id)
	if err != nil || saved == nil {
		h.log.Error().Err(err).Int64("event_id", id).Msg("Failed to reload key event")
		http.Error(w, "Failed to save key event", http.StatusInternalServerError)
		return
	}

	if h.events != nil {
		h.events.Emit(events.KeyEventChanged, "keyevents", map[string]interface{}{
			"event_id":   id,
			"name":       saved.Name,
			"event_date": saved.EventDate,
		})
	}

	status := http.StatusOK
	if req.ID == nil {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, map[string]interface{}{
		"status":    "ok",
		"key_event": saved,
	})
}

// HandleDelete handles DELETE /api/key-events/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid event id", http.StatusBadRequest)
		return
	}

	found, err := h.repo.Delete(id)
	if err != nil {
		h.log.Error().Err(err).Int64("event_id", id).Msg("Failed to delete key event")
		http.Error(w, "Failed to delete key event", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Key event not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// Package handlers provides HTTP handlers for account and anchor operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/events"
	"github.com/stavrou/budgetd/internal/modules/accounts"
)

// Handler handles account HTTP requests
type Handler struct {
	accounts     *accounts.Repository
	anchors      *accounts.AnchorRepository
	configFloors map[string]int64
	events       *events.Manager
	log          zerolog.Logger
}

// NewHandler creates a new accounts handler. configFloors carries the
// per-account overdraft thresholds from the environment, keyed by account
// name; a stored anchor floor overrides the configured one for the same
// account. Names resolve at request time so accounts created by a later
// ingest still pick up their configured floor.
func NewHandler(
	accountRepo *accounts.Repository,
	anchorRepo *accounts.AnchorRepository,
	configFloors map[string]int64,
	eventManager *events.Manager,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		accounts:     accountRepo,
		anchors:      anchorRepo,
		configFloors: configFloors,
		events:       eventManager,
		log:          log.With().Str("handler", "accounts").Logger(),
	}
}

// HandleListAccounts handles GET /api/accounts
func (h *Handler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.accounts.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": list})
}

// HandleListAnchors handles GET /api/accounts/anchors
func (h *Handler) HandleListAnchors(w http.ResponseWriter, r *http.Request) {
	list, err := h.anchors.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list anchors")
		http.Error(w, "Failed to list anchors", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"anchors": list})
}

// HandleListFloors handles GET /api/accounts/floors. Configured thresholds
// seed the result; anchor floors replace them account by account.
func (h *Handler) HandleListFloors(w http.ResponseWriter, r *http.Request) {
	effective := make(map[int64]int64, len(h.configFloors))
	source := make(map[int64]string, len(h.configFloors))
	for name, cents := range h.configFloors {
		account, err := h.accounts.GetByName(name)
		if err != nil {
			h.log.Error().Err(err).Str("account", name).Msg("Failed to resolve floor account")
			http.Error(w, "Failed to list floors", http.StatusInternalServerError)
			return
		}
		if account == nil {
			h.log.Debug().Str("account", name).Msg("Configured floor references unknown account")
			continue
		}
		effective[account.ID] = cents
		source[account.ID] = "config"
	}

	stored, err := h.anchors.Floors()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list anchor floors")
		http.Error(w, "Failed to list floors", http.StatusInternalServerError)
		return
	}
	for id, cents := range stored {
		effective[id] = cents
		source[id] = "anchor"
	}

	ids := make([]int64, 0, len(effective))
	for id := range effective {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	floors := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		floors = append(floors, map[string]interface{}{
			"account_id":      id,
			"min_floor_cents": effective[id],
			"source":          source[id],
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"floors": floors})
}

type putAnchorRequest struct {
	AnchorDate         string `json:"anchor_date"`
	AnchorBalanceCents int64  `json:"anchor_balance_cents"`
	MinFloorCents      *int64 `json:"min_floor_cents"`
}

// HandlePutAnchor handles PUT /api/accounts/{id}/anchor
func (h *Handler) HandlePutAnchor(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}

	var req putAnchorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if _, err := time.Parse("2006-01-02", req.AnchorDate); err != nil {
		http.Error(w, "anchor_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	account, err := h.accounts.GetByID(accountID)
	if err != nil {
		h.log.Error().Err(err).Int64("account_id", accountID).Msg("Failed to load account")
		http.Error(w, "Failed to load account", http.StatusInternalServerError)
		return
	}
	if account == nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	anchor := accounts.Anchor{
		AccountID:          accountID,
		AnchorDate:         req.AnchorDate,
		AnchorBalanceCents: req.AnchorBalanceCents,
		MinFloorCents:      req.MinFloorCents,
	}
	if err := h.anchors.Upsert(anchor); err != nil {
		h.log.Error().Err(err).Int64("account_id", accountID).Msg("Failed to upsert anchor")
		http.Error(w, "Failed to save anchor", http.StatusInternalServerError)
		return
	}

	saved, err := h.anchors.Get(accountID)
	if err != nil || saved == nil {
		h.log.Error().Err(err).Int64("account_id", accountID).Msg("Failed to reload anchor")
		http.Error(w, "Failed to save anchor", http.StatusInternalServerError)
		return
	}

	if h.events != nil {
		h.events.Emit(events.AnchorUpdated, "accounts", map[string]interface{}{
			"account_id":           accountID,
			"anchor_date":          saved.AnchorDate,
			"anchor_balance_cents": saved.AnchorBalanceCents,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"anchor": saved,
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

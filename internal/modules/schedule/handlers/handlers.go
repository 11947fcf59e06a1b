// Package handlers provides HTTP handlers for commitments and scheduled
// inflows.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/modules/schedule"
)

// Handler handles commitment and scheduled inflow HTTP requests
type Handler struct {
	commitments *schedule.CommitmentRepository
	inflows     *schedule.InflowRepository
	log         zerolog.Logger
}

// NewHandler creates a new schedule handler.
func NewHandler(
	commitmentRepo *schedule.CommitmentRepository,
	inflowRepo *schedule.InflowRepository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		commitments: commitmentRepo,
		inflows:     inflowRepo,
		log:         log.With().Str("handler", "schedule").Logger(),
	}
}

type commitmentView struct {
	schedule.Commitment
	MonthlyEquivalentCents int64 `json:"monthly_equivalent_cents"`
}

// HandleListCommitments handles GET /api/commitments. Each row carries its
// per-month equivalent so the dashboard can show a comparable total.
func (h *Handler) HandleListCommitments(w http.ResponseWriter, r *http.Request) {
	list, err := h.commitments.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list commitments")
		http.Error(w, "Failed to list commitments", http.StatusInternalServerError)
		return
	}

	views := make([]commitmentView, 0, len(list))
	var monthlyTotal int64
	for _, c := range list {
		eq := schedule.MonthlyEquivalentCents(c.AmountCents, c.DueRule)
		monthlyTotal += eq
		views = append(views, commitmentView{Commitment: c, MonthlyEquivalentCents: eq})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"commitments":         views,
		"monthly_total_cents": monthlyTotal,
	})
}

type commitmentRequest struct {
	Name               string `json:"name"`
	AmountCents        int64  `json:"amount_cents"`
	DueRule            string `json:"due_rule"`
	NextDueDate        string `json:"next_due_date"`
	Priority           *int64 `json:"priority"`
	AccountID          int64  `json:"account_id"`
	FlexibleWindowDays *int64 `json:"flexible_window_days"`
	CategoryID         *int64 `json:"category_id"`
	Type               string `json:"type"`
	ShiftPolicy        string `json:"shift_policy"`
}

func (req *commitmentRequest) validate() string {
	if req.Name == "" {
		return "name is required"
	}
	if req.AmountCents <= 0 {
		return "amount_cents must be a positive magnitude"
	}
	if req.DueRule == "" {
		return "due_rule is required"
	}
	if req.NextDueDate != "" {
		if _, err := time.Parse("2006-01-02", req.NextDueDate); err != nil {
			return "next_due_date must be YYYY-MM-DD"
		}
	}
	return ""
}

func (req *commitmentRequest) toModel() schedule.Commitment {
	typ := req.Type
	if typ == "" {
		typ = "bill"
	}
	return schedule.Commitment{
		Name:               req.Name,
		AmountCents:        req.AmountCents,
		DueRule:            req.DueRule,
		NextDueDate:        req.NextDueDate,
		Priority:           req.Priority,
		AccountID:          req.AccountID,
		FlexibleWindowDays: req.FlexibleWindowDays,
		CategoryID:         req.CategoryID,
		Type:               typ,
		ShiftPolicy:        req.ShiftPolicy,
	}
}

// HandleCreateCommitment handles POST /api/commitments
func (h *Handler) HandleCreateCommitment(w http.ResponseWriter, r *http.Request) {
	var req commitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	id, err := h.commitments.Create(req.toModel())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create commitment")
		http.Error(w, "Failed to create commitment", http.StatusInternalServerError)
		return
	}

	saved, err := h.commitments.GetByID(id)
	if err != nil || saved == nil {
		h.log.Error().Err(err).Int64("commitment_id", id).Msg("Failed to reload commitment")
		http.Error(w, "Failed to create commitment", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":     "ok",
		"commitment": saved,
	})
}

// HandleUpdateCommitment handles PUT /api/commitments/{id}
func (h *Handler) HandleUpdateCommitment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid commitment id", http.StatusBadRequest)
		return
	}

	var req commitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	c := req.toModel()
	c.ID = id
	found, err := h.commitments.Update(c)
	if err != nil {
		h.log.Error().Err(err).Int64("commitment_id", id).Msg("Failed to update commitment")
		http.Error(w, "Failed to update commitment", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Commitment not found", http.StatusNotFound)
		return
	}

	saved, err := h.commitments.GetByID(id)
	if err != nil || saved == nil {
		h.log.Error().Err(err).Int64("commitment_id", id).Msg("Failed to reload commitment")
		http.Error(w, "Failed to update commitment", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"commitment": saved,
	})
}

// HandleDeleteCommitment handles DELETE /api/commitments/{id}
func (h *Handler) HandleDeleteCommitment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid commitment id", http.StatusBadRequest)
		return
	}

	found, err := h.commitments.Delete(id)
	if err != nil {
		h.log.Error().Err(err).Int64("commitment_id", id).Msg("Failed to delete commitment")
		http.Error(w, "Failed to delete commitment", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Commitment not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

type inflowView struct {
	schedule.ScheduledInflow
	MonthlyEquivalentCents int64 `json:"monthly_equivalent_cents"`
}

// HandleListInflows handles GET /api/scheduled-inflows
func (h *Handler) HandleListInflows(w http.ResponseWriter, r *http.Request) {
	list, err := h.inflows.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list scheduled inflows")
		http.Error(w, "Failed to list scheduled inflows", http.StatusInternalServerError)
		return
	}

	views := make([]inflowView, 0, len(list))
	var monthlyTotal int64
	for _, in := range list {
		eq := schedule.MonthlyEquivalentCents(in.AmountCents, in.DueRule)
		monthlyTotal += eq
		views = append(views, inflowView{ScheduledInflow: in, MonthlyEquivalentCents: eq})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduled_inflows":   views,
		"monthly_total_cents": monthlyTotal,
	})
}

type inflowRequest struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	DueRule     string `json:"due_rule"`
	NextDueDate string `json:"next_due_date"`
	AccountID   int64  `json:"account_id"`
	Type        string `json:"type"`
	ShiftPolicy string `json:"shift_policy"`
}

func (req *inflowRequest) validate() string {
	if req.Name == "" {
		return "name is required"
	}
	if req.AmountCents <= 0 {
		return "amount_cents must be a positive magnitude"
	}
	if req.DueRule == "" {
		return "due_rule is required"
	}
	if req.NextDueDate != "" {
		if _, err := time.Parse("2006-01-02", req.NextDueDate); err != nil {
			return "next_due_date must be YYYY-MM-DD"
		}
	}
	return ""
}

func (req *inflowRequest) toModel() schedule.ScheduledInflow {
	typ := req.Type
	if typ == "" {
		typ = "income"
	}
	return schedule.ScheduledInflow{
		Name:        req.Name,
		AmountCents: req.AmountCents,
		DueRule:     req.DueRule,
		NextDueDate: req.NextDueDate,
		AccountID:   req.AccountID,
		Type:        typ,
		ShiftPolicy: req.ShiftPolicy,
	}
}

// HandleCreateInflow handles POST /api/scheduled-inflows
func (h *Handler) HandleCreateInflow(w http.ResponseWriter, r *http.Request) {
	var req inflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	id, err := h.inflows.Create(req.toModel())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create scheduled inflow")
		http.Error(w, "Failed to create scheduled inflow", http.StatusInternalServerError)
		return
	}

	saved, err := h.inflows.GetByID(id)
	if err != nil || saved == nil {
		h.log.Error().Err(err).Int64("inflow_id", id).Msg("Failed to reload scheduled inflow")
		http.Error(w, "Failed to create scheduled inflow", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":           "ok",
		"scheduled_inflow": saved,
	})
}

// HandleUpdateInflow handles PUT /api/scheduled-inflows/{id}
func (h *Handler) HandleUpdateInflow(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid inflow id", http.StatusBadRequest)
		return
	}

	var req inflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	in := req.toModel()
	in.ID = id
	found, err := h.inflows.Update(in)
	if err != nil {
		h.log.Error().Err(err).Int64("inflow_id", id).Msg("Failed to update scheduled inflow")
		http.Error(w, "Failed to update scheduled inflow", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Scheduled inflow not found", http.StatusNotFound)
		return
	}

	saved, err := h.inflows.GetByID(id)
	if err != nil || saved == nil {
		h.log.Error().Err(err).Int64("inflow_id", id).Msg("Failed to reload scheduled inflow")
		http.Error(w, "Failed to update scheduled inflow", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"scheduled_inflow": saved,
	})
}

// HandleDeleteInflow handles DELETE /api/scheduled-inflows/{id}
func (h *Handler) HandleDeleteInflow(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid inflow id", http.StatusBadRequest)
		return
	}

	found, err := h.inflows.Delete(id)
	if err != nil {
		h.log.Error().Err(err).Int64("inflow_id", id).Msg("Failed to delete scheduled inflow")
		http.Error(w, "Failed to delete scheduled inflow", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "Scheduled inflow not found", http.StatusNotFound)
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

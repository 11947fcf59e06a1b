// Package handlers exposes the ingest HTTP surface: one endpoint per run
// mode plus the audit trail.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/modules/ingest"
)

const defaultBackfillMonths = 6

// Handler handles ingest HTTP requests.
type Handler struct {
	service *ingest.Service
	audits  *ingest.AuditRepository
	log     zerolog.Logger
}

// NewHandler creates a new ingest handler.
func NewHandler(service *ingest.Service, audits *ingest.AuditRepository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		audits:  audits,
		log:     log.With().Str("handler", "ingest").Logger(),
	}
}

// HandleDelta handles POST /ingest/{source}/delta
func (h *Handler) HandleDelta(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	result, err := h.service.RunDelta(r.Context(), source)
	if err != nil {
		h.writeRunError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleBackfill handles POST /ingest/{source}/backfill. Months come from
// the JSON body or the "months" query parameter.
func (h *Handler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	months := defaultBackfillMonths
	var body struct {
		Months int `json:"months"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Months > 0 {
		months = body.Months
	} else if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "months must be a positive integer"})
			return
		}
		months = n
	}

	result, err := h.service.RunBackfill(r.Context(), source, months)
	if err != nil {
		h.writeRunError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleImportCSV handles POST /ingest/{source}/from-csv. The body names a
// server-local file; "account" optionally overrides the file's account
// column.
func (h *Handler) HandleImportCSV(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	var body struct {
		Path    string `json:"path"`
		Account string `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}

	result, err := h.service.ImportCSV(r.Context(), source, body.Path, body.Account)
	if err != nil {
		h.writeRunError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleAudit handles GET /ingest/audit
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		if n > 200 {
			n = 200
		}
		limit = n
	}

	records, err := h.audits.Recent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list audit rows")
		http.Error(w, "Failed to list audit rows", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": records})
}

// writeRunError maps run failures onto status codes: upstream trouble is a
// bad gateway, a missing CSV file is the caller's mistake, everything else
// is ours.
func (h *Handler) writeRunError(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("Ingest run failed")

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ingest.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, os.ErrNotExist):
		status = http.StatusBadRequest
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

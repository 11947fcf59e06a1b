// Package handlers exposes the questionnaire queries, packs and exports over
// HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/modules/questionnaire"
)

// Handler serves the read-only question endpoints and the export endpoint.
type Handler struct {
	service  *questionnaire.Service
	exporter *questionnaire.Exporter
	log      zerolog.Logger
}

// NewHandler creates a questionnaire handler.
func NewHandler(service *questionnaire.Service, exporter *questionnaire.Exporter, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		exporter: exporter,
		log:      log.With().Str("handler", "questionnaire").Logger(),
	}
}

// HandleQuery handles GET /api/q/{query}. Queries accept either an explicit
// start/end date pair or a period token such as "3m_full", "6m" or "90d".
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "query")
	q := r.URL.Query()

	window, err := windowFromRequest(r, time.Now().UTC())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var categoryID *int64
	if raw := strings.TrimSpace(q.Get("category_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "category_id must be an integer", http.StatusBadRequest)
			return
		}
		categoryID = &id
	}
	category := strings.TrimSpace(q.Get("category"))

	var result *questionnaire.Result
	switch normalizeQueryName(name) {
	case "monthly-total-by-category":
		result, err = h.service.MonthlyTotalByCategory(window, categoryID, category)
	case "monthly-average-by-category":
		result, err = h.service.MonthlyAverageByCategory(window, categoryID, category)
	case "active-loans":
		result, err = h.service.ActiveLoans()
	case "income-summary":
		result, err = h.service.IncomeSummary(window)
	case "subscriptions":
		result, err = h.service.Subscriptions(window)
	case "category-breakdown":
		topN, perr := parseOptionalInt(q.Get("top_n"))
		if perr != nil {
			http.Error(w, "top_n must be an integer", http.StatusBadRequest)
			return
		}
		result, err = h.service.CategoryBreakdown(window, topN)
	case "supporting-transactions":
		page, perr := parseOptionalInt(q.Get("page"))
		if perr != nil {
			http.Error(w, "page must be an integer", http.StatusBadRequest)
			return
		}
		pageSize, perr := parseOptionalInt(q.Get("page_size"))
		if perr != nil {
			http.Error(w, "page_size must be an integer", http.StatusBadRequest)
			return
		}
		result, err = h.service.SupportingTransactions(window, categoryID, category, page, pageSize)
	case "household-fixed-costs":
		result, err = h.service.HouseholdFixedCosts()
	case "monthly-commitment-total":
		kind := strings.TrimSpace(q.Get("kind"))
		if kind == "" {
			http.Error(w, "kind is required", http.StatusBadRequest)
			return
		}
		result, err = h.service.MonthlyCommitmentTotal(kind, window)
	default:
		http.Error(w, fmt.Sprintf("Unknown query: %s", name), http.StatusNotFound)
		return
	}

	if err != nil {
		h.log.Error().Err(err).Str("query", name).Msg("Failed to run question query")
		http.Error(w, "Failed to run query", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandlePack handles GET /api/q/packs/{pack}.
func (h *Handler) HandlePack(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "pack")
	period := r.URL.Query().Get("period")

	pack, err := h.service.AssemblePack(name, period, time.Now().UTC())
	if errors.Is(err, questionnaire.ErrUnknownPack) {
		http.Error(w, fmt.Sprintf("Unknown pack: %s", name), http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("pack", name).Msg("Failed to assemble pack")
		http.Error(w, "Failed to assemble pack", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, pack)
}

// HandleExport handles POST /api/q/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	var req questionnaire.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Pack) == "" {
		http.Error(w, "pack is required", http.StatusBadRequest)
		return
	}

	result, err := h.exporter.Export(req, time.Now().UTC())
	switch {
	case errors.Is(err, questionnaire.ErrInvalidFormat):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, questionnaire.ErrUnknownPack):
		http.Error(w, fmt.Sprintf("Unknown pack: %s", req.Pack), http.StatusNotFound)
	case err != nil:
		h.log.Error().Err(err).Str("pack", req.Pack).Msg("Failed to export pack")
		http.Error(w, "Failed to export pack", http.StatusInternalServerError)
	default:
		h.writeJSON(w, http.StatusOK, result)
	}
}

// windowFromRequest builds the query window from either a start/end pair or a
// period token. An explicit pair takes precedence.
func windowFromRequest(r *http.Request, asOf time.Time) (questionnaire.Window, error) {
	q := r.URL.Query()
	start := strings.TrimSpace(q.Get("start"))
	end := strings.TrimSpace(q.Get("end"))

	if start == "" && end == "" {
		return questionnaire.ParsePeriod(q.Get("period"), asOf), nil
	}
	if start == "" || end == "" {
		return questionnaire.Window{}, errors.New("start and end must be provided together")
	}

	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return questionnaire.Window{}, errors.New("Invalid date format; use YYYY-MM-DD")
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return questionnaire.Window{}, errors.New("Invalid date format; use YYYY-MM-DD")
	}
	if e.Before(s) {
		return questionnaire.Window{}, errors.New("end must be on or after start")
	}
	return questionnaire.Window{Start: s, End: e, Token: start + ".." + end}, nil
}

func normalizeQueryName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

func parseOptionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

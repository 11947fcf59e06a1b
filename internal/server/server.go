// Package server provides the HTTP server and routing for budgetd.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/stavrou/budgetd/internal/config"
	"github.com/stavrou/budgetd/internal/di"
	accounthandlers "github.com/stavrou/budgetd/internal/modules/accounts/handlers"
	alerthandlers "github.com/stavrou/budgetd/internal/modules/alerts/handlers"
	forecasthandlers "github.com/stavrou/budgetd/internal/modules/forecast/handlers"
	ingesthandlers "github.com/stavrou/budgetd/internal/modules/ingest/handlers"
	keyeventhandlers "github.com/stavrou/budgetd/internal/modules/keyevents/handlers"
	questionnairehandlers "github.com/stavrou/budgetd/internal/modules/questionnaire/handlers"
	schedulehandlers "github.com/stavrou/budgetd/internal/modules/schedule/handlers"
	snapshothandlers "github.com/stavrou/budgetd/internal/modules/snapshots/handlers"
	"github.com/stavrou/budgetd/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Cfg       *config.Config
	Container *di.Container
	Scheduler *scheduler.Scheduler // nil when SCHEDULER_ENABLED=false
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	limiter        *rateLimiter
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	systemHandlers := NewSystemHandlers(
		cfg.Log,
		cfg.Container.DB,
		cfg.Scheduler,
		cfg.Container.SnapshotRepo,
		cfg.Container.AlertRepo,
		time.Now(),
	)

	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Cfg,
		container:      cfg.Container,
		systemHandlers: systemHandlers,
		limiter:        newRateLimiter(cfg.Cfg.RateLimitPerMin, time.Now),
	}

	s.setupMiddleware()

	// Everything, health check included, lives under BASE_PATH so the
	// service can sit behind a shared reverse proxy.
	if base := s.cfg.BasePath; base == "" {
		s.setupRoutes(s.router)
	} else {
		s.router.Route(base, func(r chi.Router) {
			s.setupRoutes(r)
		})
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures all routes relative to the base path.
func (s *Server) setupRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)

	// Questionnaire exports are written to disk and linked from the export
	// response as /exports/{filename}.
	r.Handle("/exports/*", s.exportsHandler())

	c := s.container

	accountHandler := accounthandlers.NewHandler(
		c.AccountRepo, c.AnchorRepo, s.cfg.OverdraftAlertThresholds, c.EventManager, s.log)
	alertHandler := alerthandlers.NewHandler(c.AlertRepo, c.EventManager, s.log)
	forecastHandler := forecasthandlers.NewHandler(c.Expander, c.Resolver, c.Overlay, s.log)
	ingestHandler := ingesthandlers.NewHandler(c.IngestService, c.AuditRepo, s.log)
	keyEventHandler := keyeventhandlers.NewHandler(c.KeyEventRepo, c.EventManager, s.log)
	questionnaireHandler := questionnairehandlers.NewHandler(c.QuestionnaireService, c.Exporter, s.log)
	scheduleHandler := schedulehandlers.NewHandler(c.CommitmentRepo, c.InflowRepo, s.log)
	snapshotHandler := snapshothandlers.NewHandler(c.SnapshotService, c.SnapshotRepo, s.log)
	eventsWS := NewEventsWSHandler(c.EventBus, s.log)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Event stream. Mounted like any other read but the connection is
		// hijacked, so the router's per-request deadline does not bound it.
		r.Get("/events/ws", eventsWS.ServeHTTP)

		// Read surface
		r.Get("/forecast/calendar", forecastHandler.HandleCalendar)
		r.Get("/forecast/blended", forecastHandler.HandleBlended)
		r.Get("/forecast/snapshots/latest", snapshotHandler.HandleLatest)
		r.Get("/calendar", forecastHandler.HandleICalExport)
		r.Get("/overview", snapshotHandler.HandleOverview)
		r.Get("/accounts", accountHandler.HandleListAccounts)
		r.Get("/accounts/anchors", accountHandler.HandleListAnchors)
		r.Get("/accounts/floors", accountHandler.HandleListFloors)
		r.Get("/alerts", alertHandler.HandleList)
		r.Get("/key-events", keyEventHandler.HandleList)
		r.Get("/commitments", scheduleHandler.HandleListCommitments)
		r.Get("/scheduled-inflows", scheduleHandler.HandleListInflows)
		r.Get("/ingest/audit", ingestHandler.HandleAudit)
		r.Get("/q/packs/{pack}", questionnaireHandler.HandlePack)
		r.Get("/q/{query}", questionnaireHandler.HandleQuery)
		r.Get("/system/status", s.systemHandlers.HandleSystemStatus)

		// Write surface
		r.Group(func(r chi.Router) {
			r.Use(s.csrfMiddleware)
			r.Use(s.rateLimitMiddleware)

			r.Post("/forecast/simulate-spend", forecastHandler.HandleSimulateSpend)
			r.Post("/key-events", keyEventHandler.HandleUpsert)
			r.Delete("/key-events/{id}", keyEventHandler.HandleDelete)
			r.Put("/accounts/{id}/anchor", accountHandler.HandlePutAnchor)
			r.Post("/alerts/{id}/resolve", alertHandler.HandleResolve)
			r.Post("/ingest/{source}/delta", ingestHandler.HandleDelta)
			r.Post("/ingest/{source}/backfill", ingestHandler.HandleBackfill)
			r.Post("/ingest/{source}/from-csv", ingestHandler.HandleImportCSV)
			r.Post("/q/export", questionnaireHandler.HandleExport)
			r.Post("/commitments", scheduleHandler.HandleCreateCommitment)
			r.Put("/commitments/{id}", scheduleHandler.HandleUpdateCommitment)
			r.Delete("/commitments/{id}", scheduleHandler.HandleDeleteCommitment)
			r.Post("/scheduled-inflows", scheduleHandler.HandleCreateInflow)
			r.Put("/scheduled-inflows/{id}", scheduleHandler.HandleUpdateInflow)
			r.Delete("/scheduled-inflows/{id}", scheduleHandler.HandleDeleteInflow)
		})
	})
}

// exportsHandler serves questionnaire export files from the export
// directory. Directory listings are refused; only direct file fetches work.
func (s *Server) exportsHandler() http.Handler {
	fileServer := http.StripPrefix(
		s.cfg.BasePath+"/exports/",
		http.FileServer(http.Dir(s.cfg.ExportDir)),
	)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// handleHealth reports liveness. The store check is a ping plus an
// integrity probe; a failing store turns the instance unhealthy so the
// supervisor restarts it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.container.DB.HealthCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"status":"unhealthy"}`)
		return
	}

	fmt.Fprint(w, `{"status":"ok"}`)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Str("base_path", s.cfg.BasePath).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the assembled handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

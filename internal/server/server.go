// Package server implements the engine's HTTP IPC host (§6): the
// headless process a desktop shell drives with {id, command, payload}
// requests over a local loopback port, plus a Server-Sent Events
// progress stream. The shell itself, broker auth, and auto-update are
// external collaborators (§1 Out of scope) — this package only speaks
// the wire contract.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/exposure-engine/internal/adapters"
	"github.com/aristath/exposure-engine/internal/cache"
	"github.com/aristath/exposure-engine/internal/domain"
	"github.com/aristath/exposure-engine/internal/events"
	"github.com/aristath/exposure-engine/internal/hive"
	"github.com/aristath/exposure-engine/internal/ingestion"
	"github.com/aristath/exposure-engine/internal/pipeline"
)

// Config configures the IPC host.
type Config struct {
	Port             int
	DevMode          bool
	Version          string
	HealthReportPath string
}

// Deps are the components the dispatcher wires into handlers. Broker
// is nil-able: its absence only disables the fallback branch of
// sync_portfolio, never startup (§1 Out of scope).
type Deps struct {
	Store        *cache.Store
	Bus          *events.Bus
	Orchestrator *pipeline.Orchestrator
	Ingestor     *ingestion.Ingestor
	Broker       ingestion.BrokerClient
	Hive         *hive.Client
	ManualStore  *adapters.FileManualStore
}

// Server hosts the IPC router over HTTP.
type Server struct {
	cfg    Config
	log    zerolog.Logger
	router *chi.Mux
	http   *http.Server

	store        *cache.Store
	bus          *events.Bus
	orchestrator *pipeline.Orchestrator
	ingestor     *ingestion.Ingestor
	broker       ingestion.BrokerClient
	hive         *hive.Client
	manualStore  *adapters.FileManualStore

	mu         sync.RWMutex
	positions  []domain.HoldingRow // last set accepted by sync_portfolio
	lastResult *pipeline.Result
}

// New builds a Server and wires its routes; it does not start
// listening until Start is called.
func New(cfg Config, deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		cfg: cfg, log: log.With().Str("component", "server").Logger(),
		store: deps.Store, bus: deps.Bus, orchestrator: deps.Orchestrator,
		ingestor: deps.Ingestor, broker: deps.Broker, hive: deps.Hive, manualStore: deps.ManualStore,
	}
	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // run_pipeline and the SSE stream both hold the connection open
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlePlainHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleVersion)

		stream := NewEventsStreamHandler(s.bus, s.log)
		r.Get("/events/stream", stream.ServeHTTP)

		r.Post("/command/{command}", s.handleCommand)
	})
}

// loggingMiddleware logs one structured line per request, mirroring the
// teacher's wrap-response-writer shape.
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
			Msg("http request")
	})
}

// handlePlainHealth is the bare liveness probe at /health, separate
// from the health_check IPC command which returns the richer payload.
func (s *Server) handlePlainHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.cfg.Version})
}

// Start begins serving; it blocks until the listener stops.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("engine IPC host listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

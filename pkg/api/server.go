package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/aqakit/brain/pkg/adapter"
	"github.com/aqakit/brain/pkg/config"
	"github.com/aqakit/brain/pkg/generator"
	"github.com/aqakit/brain/pkg/llm"
	"github.com/aqakit/brain/pkg/plans"
	"github.com/aqakit/brain/pkg/runner"
	"github.com/aqakit/brain/pkg/storage"
	"github.com/aqakit/brain/pkg/telemetry"
	"github.com/aqakit/brain/pkg/validator"
)

// DefaultListenAddress is used when the server config carries none.
const DefaultListenAddress = ":8080"

// Deps are the wired components the server exposes. Runner may be nil when
// the executor binary was not found; RunnerErr then carries the discovery
// error so /health can report it.
type Deps struct {
	Config    config.ServerConfig
	Telemetry *telemetry.Telemetry

	Generator *generator.Generator
	Validator *validator.Validator
	Adapter   *adapter.Adapter
	Runner    *runner.Runner
	RunnerErr error
	History   storage.Backend
	Plans     *plans.Store
	Workspace *config.Workspace
	Provider  llm.Provider

	Version string
}

// Server is the control API.
type Server struct {
	deps   Deps
	router chi.Router
	log    *telemetry.Logger
	http   *http.Server
}

// New builds the server and its route table.
func New(deps Deps) *Server {
	s := &Server{deps: deps}
	if deps.Telemetry != nil && deps.Telemetry.Logger != nil {
		s.log = deps.Telemetry.Logger.NewComponentLogger("api")
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.accessLogMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/generate", s.handleGenerate)
	r.Post("/validate", s.handleValidate)
	r.Post("/execute", s.handleExecute)

	r.Route("/history", func(r chi.Router) {
		r.Get("/", s.handleHistoryList)
		r.Get("/stats", s.handleHistoryStats)
		r.Get("/search", s.handleHistorySearch)
		r.Get("/{id}", s.handleHistoryGet)
		r.Delete("/{id}", s.handleHistoryDelete)
	})

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", s.handlePlansList)
		r.Get("/{name}", s.handlePlanGet)
		r.Get("/{name}/versions", s.handlePlanVersions)
		r.Get("/{name}/diff", s.handlePlanDiff)
		r.Post("/{name}/versions/{version}/restore", s.handlePlanRestore)
		r.Delete("/{name}", s.handlePlanDelete)
	})

	r.Post("/workspace/init", s.handleWorkspaceInit)
	r.Get("/workspace/status", s.handleWorkspaceStatus)

	r.Get("/ws/execute", s.handleWSExecute)

	if s.deps.Telemetry != nil && s.deps.Telemetry.Metrics != nil {
		r.Method("GET", "/metrics", s.deps.Telemetry.Metrics.Handler())
	}

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.deps.Config.CORSOrigins) > 0 {
		return s.deps.Config.CORSOrigins
	}
	return []string{"*"}
}

// ListenAndServe runs until ctx is cancelled, then drains connections.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.deps.Config.ListenAddress
	if addr == "" {
		addr = DefaultListenAddress
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.log != nil {
			s.log.WithField("addr", addr).Info("control API listening")
		}
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

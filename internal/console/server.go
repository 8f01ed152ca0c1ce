// Package console exposes the operator HTTP console: the browser surface of
// the job controller as a small JSON API.
package console

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/artifact"
	"github.com/JakeFAU/scrapectl/internal/controller"
	"github.com/JakeFAU/scrapectl/internal/metrics"
	"github.com/JakeFAU/scrapectl/internal/store"
)

// DefaultRequestTimeout bounds every console request.
const DefaultRequestTimeout = 60 * time.Second

// Params bundles the console's collaborators. Runs, Metrics and Gatherer
// are optional.
type Params struct {
	Controller     *controller.Controller
	Retriever      *artifact.Retriever
	Runs           store.RunRepository
	Metrics        *metrics.HTTP
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the controller and retriever.
type Server struct {
	router    chi.Router
	ctrl      *controller.Controller
	retriever *artifact.Retriever
	runs      store.RunRepository
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(p Params) (*Server, error) {
	if p.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if p.Retriever == nil {
		return nil, errors.New("artifact retriever is required")
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := p.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	s := &Server{
		ctrl:      p.Controller,
		retriever: p.Retriever,
		runs:      p.Runs,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if p.Metrics != nil {
		r.Use(p.Metrics.Middleware)
	}
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(p.Gatherer))

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Put("/filters", s.putFilters)
		r.Post("/start", s.start)
		r.Post("/run", s.run)
		r.Post("/stop", s.stop)
		r.Get("/limits", s.getLimits)
		r.Post("/limits/refresh", s.refreshLimits)
		r.Get("/download/{kind}", s.download)
		r.Get("/artifacts", s.listArtifacts)
		r.Post("/artifacts/{kind}", s.retrieveArtifact)
		if s.runs != nil {
			r.Get("/runs", s.listRuns)
			r.Get("/runs/{run_id}", s.getRun)
		}
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

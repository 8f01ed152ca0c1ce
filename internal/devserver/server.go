// Package devserver simulates the remote scrape job API for local
// development and end-to-end tests. It mirrors the responses of the real
// backend: 204 on filters, 202 on start, 409 when a job is already running,
// 422 for filters outside the catalog and 404 for missing artifacts.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/metrics"
)

// Defaults for the simulated workload.
const (
	DefaultStepInterval    = 500 * time.Millisecond
	DefaultPages           = 3
	DefaultChannelsPerPage = 4
)

// TickerFunc starts a ticker with period d and returns its channel and a
// stop func.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// Config tunes the simulation.
type Config struct {
	// StepInterval is the time spent per simulated channel.
	StepInterval time.Duration
	// Pages is the page count when the filters carry no end_page.
	Pages           int
	ChannelsPerPage int
	// FailOnPage ends the run with an error on reaching that page; 0 never fails.
	FailOnPage int
	Ticker     TickerFunc
	Metrics    *metrics.HTTP
	Logger     *zap.Logger
}

type artifactFile struct {
	data        []byte
	contentType string
	filename    string
}

// Server is the simulated remote job.
type Server struct {
	router chi.Router
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu        sync.Mutex
	filters   map[string]any
	running   bool
	lastErr   *string
	current   *run
	quotas    []*quota
	artifacts map[string]artifactFile
	runs      int
}

// New builds a Server with defaults applied.
func New(cfg Config) *Server {
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = DefaultStepInterval
	}
	if cfg.Pages <= 0 {
		cfg.Pages = DefaultPages
	}
	if cfg.ChannelsPerPage <= 0 {
		cfg.ChannelsPerPage = DefaultChannelsPerPage
	}
	if cfg.Ticker == nil {
		cfg.Ticker = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		filters:   map[string]any{},
		quotas:    defaultQuotas(),
		artifacts: map[string]artifactFile{},
	}

	r := chi.NewRouter()
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Route("/api", func(r chi.Router) {
		r.Put("/filters", s.putFilters)
		r.Post("/start", s.start)
		r.Post("/stop", s.stop)
		r.Get("/status", s.status)
		r.Get("/limits", s.limits)
		r.Get("/files-info", s.filesInfo)
		r.Get("/download/{kind}", s.download)
		r.Head("/download/{kind}", s.download)
	})
	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops any simulated run and waits for its goroutine.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Step advances the current run by one channel. It reports whether the run
// is still going.
func (s *Server) Step() bool {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return false
	}
	return s.stepRun(r)
}

// Status returns the simulated job status.
func (s *Server) Status() job.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Server) statusLocked() job.Status {
	st := job.Status{Running: s.running, Error: s.lastErr}
	if s.current != nil {
		st.Progress = s.current.progress()
	}
	return st
}

func (s *Server) stepRun(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != r || !s.running {
		return false
	}
	if r.stopRequested {
		s.finishLocked(nil)
		return false
	}
	if s.cfg.FailOnPage > 0 && r.page == s.cfg.FailOnPage {
		msg := fmt.Sprintf("simulated failure on page %d", r.page)
		s.finishLocked(&msg)
		return false
	}
	if r.index == 0 {
		consume(s.quotas[0], 1)
	}
	consume(s.quotas[1], 1)
	_, done := r.scrape()
	if done {
		s.finishLocked(nil)
		return false
	}
	return true
}

func (s *Server) finishLocked(errMsg *string) {
	s.running = false
	s.lastErr = errMsg
	if errMsg != nil {
		s.logger.Warn("simulated run failed", zap.String("error", *errMsg))
		return
	}
	results := s.current.results
	csvData, err := renderCSV(results)
	if err == nil {
		s.artifacts["excel"] = artifactFile{data: csvData, contentType: "text/csv", filename: "results.csv"}
	}
	jsonData, jerr := renderJSON(results)
	if jerr == nil {
		s.artifacts["json"] = artifactFile{data: jsonData, contentType: "application/json", filename: "results.json"}
	}
	if err := errors.Join(err, jerr); err != nil {
		s.logger.Error("render artifacts", zap.Error(err))
	}
	consume(s.quotas[2], 1)
	s.logger.Info("simulated run finished", zap.Int("channels", len(results)))
}

func (s *Server) loop(r *run) {
	ticks, stop := s.cfg.Ticker(s.cfg.StepInterval)
	defer stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticks:
			if !s.stepRun(r) {
				return
			}
		}
	}
}

func (s *Server) putFilters(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "body must be a JSON object")
		return
	}
	parsed, err := validateFilters(raw)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": verr.Problems})
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.mu.Lock()
	s.filters = parsed
	s.mu.Unlock()
	s.logger.Info("filters stored", zap.Int("keys", len(parsed)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) start(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		writeDetail(w, http.StatusConflict, "Parser already running")
		return
	}
	r := newRun(s.filters, s.cfg.Pages, s.cfg.ChannelsPerPage)
	s.current = r
	s.running = true
	s.lastErr = nil
	s.runs++
	s.mu.Unlock()

	s.wg.Go(func() { s.loop(r) })
	s.logger.Info("simulated run started",
		zap.Int("start_page", r.startPage),
		zap.Int("end_page", r.endPage),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"msg": "started"})
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		writeJSON(w, http.StatusOK, map[string]string{"msg": "not running"})
		return
	}
	s.current.stopRequested = true
	writeJSON(w, http.StatusAccepted, map[string]string{"msg": "stopping"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) limits(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make(job.Limits, 0, len(s.quotas))
	for _, q := range s.quotas {
		out = append(out, q.item)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) filesInfo(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := job.FilesInfo{}
	for _, kind := range []string{"excel", "json"} {
		f, ok := s.artifacts[kind]
		info[kind] = job.FileInfo{Exists: ok, Size: int64(len(f.data))}
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if kind != "excel" && kind != "json" {
		writeDetail(w, http.StatusUnprocessableEntity, "kind must be excel or json")
		return
	}
	s.mu.Lock()
	f, ok := s.artifacts[kind]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "file "+kind+" not found")
		return
	}
	if len(f.data) == 0 {
		writeDetail(w, http.StatusNotFound, "file "+kind+" is empty")
		return
	}
	w.Header().Set("Content-Type", f.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.filename+`"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(f.data); err != nil {
		s.logger.Debug("write artifact", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

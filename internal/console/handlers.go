package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/artifact"
	"github.com/JakeFAU/scrapectl/internal/controller"
	"github.com/JakeFAU/scrapectl/internal/filters"
	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/limits"
	"github.com/JakeFAU/scrapectl/internal/store"
)

const defaultRunsLimit = 20

type stateResponse struct {
	job.State
	ArtifactsReady bool `json:"artifacts_ready"`
	Polling        bool `json:"polling"`
}

type filtersResponse struct {
	Payload    filters.Payload `json:"payload"`
	Unparsable []string        `json:"unparsable,omitempty"`
}

type runResponse struct {
	RunID   string          `json:"run_id"`
	Phase   job.Phase       `json:"phase"`
	Payload filters.Payload `json:"payload,omitempty"`
}

type limitsResponse struct {
	Limits    []limits.Assessment `json:"limits"`
	FetchedAt *time.Time          `json:"fetched_at,omitempty"`
}

type upstreamError struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamBody   string `json:"upstream_body,omitempty"`
}

func (s *Server) getState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stateView())
}

func (s *Server) putFilters(w http.ResponseWriter, r *http.Request) {
	form, ok := decodeForm(w, r)
	if !ok {
		return
	}
	payload := filters.Assemble(form)
	if err := s.ctrl.SubmitFilters(r.Context(), payload); err != nil {
		s.writeCommandError(w, "submit filters", err)
		return
	}
	writeJSON(w, http.StatusOK, filtersResponse{Payload: payload, Unparsable: filters.Unparsable(form)})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(r.Context()); err != nil {
		s.writeCommandError(w, "start job", err)
		return
	}
	state := s.ctrl.State()
	writeJSON(w, http.StatusAccepted, runResponse{RunID: state.RunID, Phase: state.Phase})
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	form, ok := decodeForm(w, r)
	if !ok {
		return
	}
	payload, err := s.ctrl.Launch(r.Context(), form)
	if err != nil {
		s.writeCommandError(w, "launch job", err)
		return
	}
	state := s.ctrl.State()
	writeJSON(w, http.StatusAccepted, runResponse{RunID: state.RunID, Phase: state.Phase, Payload: payload})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	requested := s.ctrl.State().Phase == job.PhaseRunning
	if err := s.ctrl.Stop(r.Context()); err != nil {
		s.writeCommandError(w, "stop job", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"stop_requested": requested})
}

func (s *Server) getLimits(w http.ResponseWriter, _ *http.Request) {
	monitor := s.ctrl.Limits()
	if monitor == nil {
		writeError(w, http.StatusNotFound, "limits monitor not configured")
		return
	}
	writeJSON(w, http.StatusOK, limitsView(monitor))
}

func (s *Server) refreshLimits(w http.ResponseWriter, r *http.Request) {
	monitor := s.ctrl.Limits()
	if monitor == nil {
		writeError(w, http.StatusNotFound, "limits monitor not configured")
		return
	}
	if err := monitor.Refresh(r.Context()); err != nil {
		s.logger.Warn("limits refresh failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, limitsView(monitor))
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	kind, err := artifact.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	http.Redirect(w, r, s.retriever.URL(kind), http.StatusTemporaryRedirect)
}

func (s *Server) listArtifacts(w http.ResponseWriter, r *http.Request) {
	available, err := s.retriever.Available(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": available,
		"ready":     s.ctrl.ArtifactsReady(),
	})
}

func (s *Server) retrieveArtifact(w http.ResponseWriter, r *http.Request) {
	kind, err := artifact.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.retriever.Retrieve(r.Context(), kind, s.ctrl.State().RunID)
	if err != nil {
		s.logger.Warn("artifact retrieval failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) stateView() stateResponse {
	return stateResponse{
		State:          s.ctrl.State(),
		ArtifactsReady: s.ctrl.ArtifactsReady(),
		Polling:        s.ctrl.Polling(),
	}
}

// writeCommandError maps controller errors onto console status codes: 409
// for a busy job, 502 when the remote refused or could not be reached.
func (s *Server) writeCommandError(w http.ResponseWriter, op string, err error) {
	s.logger.Warn(op+" failed", zap.Error(err))
	if errors.Is(err, controller.ErrJobActive) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	resp := upstreamError{Error: err.Error()}
	var (
		filterErr *controller.FilterRejectedError
		startErr  *controller.JobStartError
		stopErr   *controller.StopRequestError
	)
	switch {
	case errors.As(err, &filterErr):
		resp.UpstreamStatus, resp.UpstreamBody = filterErr.Status, filterErr.Body
	case errors.As(err, &startErr):
		resp.UpstreamStatus, resp.UpstreamBody = startErr.Status, startErr.Body
	case errors.As(err, &stopErr):
		resp.UpstreamStatus, resp.UpstreamBody = stopErr.Status, stopErr.Body
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, resp)
		return
	}
	writeJSON(w, http.StatusBadGateway, resp)
}

func decodeForm(w http.ResponseWriter, r *http.Request) (filters.Form, bool) {
	var form filters.Form
	if r.Body == nil || r.ContentLength == 0 {
		return form, true
	}
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return filters.Form{}, false
	}
	return form, true
}

func limitsView(m *limits.Monitor) limitsResponse {
	resp := limitsResponse{Limits: m.Assessments()}
	if resp.Limits == nil {
		resp.Limits = []limits.Assessment{}
	}
	if at := m.FetchedAt(); !at.IsZero() {
		resp.FetchedAt = &at
	}
	return resp
}

package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/scrapectl/internal/limits"
	"github.com/JakeFAU/scrapectl/internal/progress"
)

// PrometheusSink exports run lifecycle and quota metrics.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	polls         prometheus.Counter
	stopRequests  prometheus.Counter
	currentPage   prometheus.Gauge
	limitRemain   *prometheus.GaugeVec
	limitRatio    *prometheus.GaugeVec

	mu     sync.Mutex
	active map[string]struct{}
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrapectl_runs_started_total",
			Help: "Runs started or attached by this controller.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrapectl_runs_completed_total",
			Help: "Runs that reached a terminal state, by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scrapectl_runs_active",
			Help: "Runs currently being polled.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scrapectl_run_duration_seconds",
			Help:    "Wall time from start to terminal status.",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrapectl_status_polls_total",
			Help: "Status polls applied while a run was active.",
		}),
		stopRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrapectl_stop_requests_total",
			Help: "Stop requests accepted by the remote job.",
		}),
		currentPage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scrapectl_current_page",
			Help: "Last reported result page of the active run.",
		}),
		limitRemain: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scrapectl_limit_remaining",
			Help: "Remaining quota per limit.",
		}, []string{"name", "severity"}),
		limitRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scrapectl_limit_ratio",
			Help: "Remaining over maximum per limit; 0 when maximum is 0.",
		}, []string{"name", "severity"}),
		active: make(map[string]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.polls,
		s.stopRequests,
		s.currentPage,
		s.limitRemain,
		s.limitRatio,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart:
		s.runsStarted.Inc()
		if s.track(evt.RunID, true) {
			s.runsActive.Inc()
		}
	case progress.StagePoll:
		s.polls.Inc()
		if evt.Progress.CurrentPage != nil {
			s.currentPage.Set(float64(*evt.Progress.CurrentPage))
		}
	case progress.StageStopRequested:
		s.stopRequests.Inc()
	case progress.StageJobDone:
		s.finish(evt, "success")
	case progress.StageJobError:
		s.finish(evt, "error")
	case progress.StageLimits:
		s.limitRemain.Reset()
		s.limitRatio.Reset()
		for _, a := range limits.AssessAll(evt.Limits) {
			labels := []string{a.Item.Name, string(a.Item.Severity)}
			s.limitRemain.WithLabelValues(labels...).Set(float64(a.Item.Current))
			s.limitRatio.WithLabelValues(labels...).Set(a.Ratio)
		}
	}
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.track(evt.RunID, false) {
		s.runsActive.Dec()
	}
}

// track records a run as active (start) or inactive and reports whether
// anything changed.
func (s *PrometheusSink) track(runID string, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[runID]
	if start {
		if ok {
			return false
		}
		s.active[runID] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.active, runID)
	return true
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

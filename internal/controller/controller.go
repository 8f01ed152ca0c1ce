// Package controller owns the lifecycle of the single remote scrape job:
// commands, the poll-driven state machine and the follow-ups of terminal
// transitions.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/filters"
	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/limits"
	"github.com/JakeFAU/scrapectl/internal/poller"
	"github.com/JakeFAU/scrapectl/internal/progress"
)

// Remote is the part of the job API the controller drives.
type Remote interface {
	job.Commander
	job.StatusFetcher
}

// Config tunes polling.
type Config struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	Ticker         poller.TickerFunc
}

// Params bundles the controller's collaborators. Limits and Events are
// optional.
type Params struct {
	Remote Remote
	Limits *limits.Monitor
	Events progress.Emitter
	Clock  job.Clock
	IDs    job.IDGenerator
	Logger *zap.Logger
	Config Config
}

// Controller tracks the current run. It is safe for concurrent use.
//
// Lock order is poller then controller: tick handlers run under the poller
// lock and take c.mu, so c.mu is never held while calling the poller.
type Controller struct {
	remote  Remote
	monitor *limits.Monitor
	events  progress.Emitter
	clock   job.Clock
	ids     job.IDGenerator
	logger  *zap.Logger
	poller  *poller.Poller

	baseCtx    context.Context
	cancelBase context.CancelFunc
	bg         conc.WaitGroup

	mu       sync.Mutex
	state    job.State
	starting bool
	terminal chan struct{}
}

// New builds an idle Controller.
func New(p Params) (*Controller, error) {
	if p.Remote == nil {
		return nil, errors.New("remote job api is required")
	}
	if p.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if p.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := p.Events
	if events == nil {
		events = noopEmitter{}
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		remote:     p.Remote,
		monitor:    p.Limits,
		events:     events,
		clock:      p.Clock,
		ids:        p.IDs,
		logger:     logger,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		state:      job.State{Phase: job.PhaseIdle},
	}
	c.poller = poller.New(p.Remote.Status, c.handleTick, poller.Config{
		Interval: p.Config.PollInterval,
		Timeout:  p.Config.RequestTimeout,
		Ticker:   p.Config.Ticker,
		Logger:   logger.Named("poller"),
	})
	return c, nil
}

// Mount performs the initial limits refresh. Failures are logged only.
func (c *Controller) Mount(ctx context.Context) {
	c.refreshLimits(ctx)
}

// SubmitFilters sends payload to the remote configuration endpoint.
func (c *Controller) SubmitFilters(ctx context.Context, payload filters.Payload) error {
	if c.busy() {
		return ErrJobActive
	}
	if err := c.remote.PutFilters(ctx, payload); err != nil {
		return classify("submit filters", err, func(status int, body string, err error) error {
			return &FilterRejectedError{Status: status, Body: body, Err: err}
		})
	}
	c.logger.Info("filters submitted", zap.Strings("keys", payload.Keys()))
	return nil
}

// Start requests a job start. On success the run is Running with empty
// progress, limits are refreshed once and polling begins.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Phase == job.PhaseRunning || c.starting {
		c.mu.Unlock()
		return ErrJobActive
	}
	c.starting = true
	c.mu.Unlock()

	if err := c.remote.Start(ctx); err != nil {
		c.clearStarting()
		return classify("start job", err, func(status int, body string, err error) error {
			return &JobStartError{Status: status, Body: body, Err: err}
		})
	}
	runID, err := c.ids.NewID()
	if err != nil {
		c.clearStarting()
		return fmt.Errorf("allocate run id: %w", err)
	}
	c.begin(runID, job.Status{Running: true})
	c.refreshLimits(ctx)
	return c.activate(runID)
}

// Launch assembles form, submits it and starts the job. The payload sent is
// returned even on failure.
func (c *Controller) Launch(ctx context.Context, form filters.Form) (filters.Payload, error) {
	payload := filters.Assemble(form)
	if dropped := filters.Unparsable(form); len(dropped) > 0 {
		c.logger.Warn("ignoring filters that failed to parse", zap.Strings("keys", dropped))
	}
	if err := c.SubmitFilters(ctx, payload); err != nil {
		return payload, err
	}
	return payload, c.Start(ctx)
}

// Attach adopts a job that is already running remotely, for example after
// the CLI was restarted. It reports whether a run was adopted.
func (c *Controller) Attach(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.state.Phase == job.PhaseRunning || c.starting {
		c.mu.Unlock()
		return false, ErrJobActive
	}
	c.starting = true
	c.mu.Unlock()

	status, err := c.remote.Status(ctx)
	if err != nil {
		c.clearStarting()
		return false, fmt.Errorf("attach: %w", err)
	}
	if !status.Running || status.Error != nil {
		c.clearStarting()
		return false, nil
	}
	runID, err := c.ids.NewID()
	if err != nil {
		c.clearStarting()
		return false, fmt.Errorf("allocate run id: %w", err)
	}
	c.begin(runID, status)
	c.logger.Info("attached to running job", zap.String("run_id", runID))
	return true, c.activate(runID)
}

// Stop asks the remote job to stop. It never changes the local phase; the
// halt is observed through polling. Without an active run it does nothing.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	running := c.state.Phase == job.PhaseRunning
	runID := c.state.RunID
	c.mu.Unlock()
	if !running {
		c.logger.Info("stop ignored, no active job")
		return nil
	}
	if err := c.remote.Stop(ctx); err != nil {
		return classify("stop job", err, func(status int, body string, err error) error {
			return &StopRequestError{Status: status, Body: body, Err: err}
		})
	}
	c.events.Emit(progress.Event{RunID: runID, TS: c.clock.Now(), Stage: progress.StageStopRequested})
	return nil
}

// State returns a copy of the current state.
func (c *Controller) State() job.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ArtifactsReady reports whether the last run completed successfully.
func (c *Controller) ArtifactsReady() bool {
	return c.State().Phase == job.PhaseCompleted
}

// Polling reports whether the status poller is active.
func (c *Controller) Polling() bool {
	return c.poller.Active()
}

// Limits returns the limits monitor, which may be nil.
func (c *Controller) Limits() *limits.Monitor {
	return c.monitor
}

// WaitTerminal blocks until the current run is terminal and its follow-ups
// (limits refresh, terminal event) are done.
func (c *Controller) WaitTerminal(ctx context.Context) (job.State, error) {
	c.mu.Lock()
	ch := c.terminal
	c.mu.Unlock()
	if ch == nil {
		return c.State(), ErrNoRun
	}
	select {
	case <-ch:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), fmt.Errorf("wait for job: %w", ctx.Err())
	}
}

// Close stops polling and waits for background work.
func (c *Controller) Close() {
	c.poller.Deactivate()
	c.cancelBase()
	c.poller.Wait()
	c.bg.Wait()
}

func (c *Controller) busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Phase == job.PhaseRunning || c.starting
}

func (c *Controller) clearStarting() {
	c.mu.Lock()
	c.starting = false
	c.mu.Unlock()
}

func (c *Controller) begin(runID string, status job.Status) {
	now := c.clock.Now()
	c.mu.Lock()
	c.state = job.State{
		Phase:     job.PhaseRunning,
		RunID:     runID,
		Status:    status,
		StartedAt: &now,
	}
	c.starting = false
	c.terminal = make(chan struct{})
	c.mu.Unlock()
	c.events.Emit(progress.Event{RunID: runID, TS: now, Stage: progress.StageJobStart, Progress: status.Progress})
}

func (c *Controller) activate(runID string) error {
	// A poller left over from a run that ended without a terminal tick.
	c.poller.Deactivate()
	if err := c.poller.Activate(c.baseCtx, runID); err != nil {
		return fmt.Errorf("activate poller: %w", err)
	}
	return nil
}

// handleTick applies one poll result. It runs under the poller lock and
// returns true when polling should stop.
func (c *Controller) handleTick(tick poller.Tick) bool {
	c.mu.Lock()
	if tick.Run != c.state.RunID || c.state.Phase != job.PhaseRunning {
		c.mu.Unlock()
		c.logger.Debug("poll result for inactive run discarded", zap.String("run_id", tick.Run))
		return true
	}

	if tick.Err != nil {
		perr := &PollTransportError{Err: tick.Err}
		msg := perr.Error()
		c.state.Status = job.Status{Running: false, Error: &msg, Progress: c.state.Status.Progress}
		c.state.Phase = job.PhaseFailed
		c.state.LastError = msg
		c.logger.Warn("status poll failed", zap.String("run_id", tick.Run), zap.Error(tick.Err))
		c.finishLocked()
		return true
	}

	status := tick.Status
	if status.Running && status.Error != nil {
		c.logger.Warn("remote reported running with an error, treating as failed",
			zap.String("run_id", tick.Run), zap.String("error", *status.Error))
		status.Running = false
	}
	c.state.Status = status
	c.state.Polls++

	if status.Running {
		evt := progress.Event{
			RunID:    tick.Run,
			TS:       c.clock.Now(),
			Stage:    progress.StagePoll,
			Progress: status.Progress,
			Polls:    c.state.Polls,
		}
		c.mu.Unlock()
		c.events.Emit(evt)
		return false
	}

	if status.Error == nil {
		c.state.Phase = job.PhaseCompleted
	} else {
		c.state.Phase = job.PhaseFailed
		c.state.LastError = *status.Error
	}
	c.finishLocked()
	return true
}

// finishLocked records the terminal transition, releases c.mu and schedules
// the follow-ups.
func (c *Controller) finishLocked() {
	now := c.clock.Now()
	c.state.FinishedAt = &now
	evt := progress.Event{
		RunID:    c.state.RunID,
		TS:       now,
		Stage:    progress.StageJobDone,
		Progress: c.state.Status.Progress,
		Polls:    c.state.Polls,
	}
	if c.state.StartedAt != nil {
		evt.Dur = now.Sub(*c.state.StartedAt)
	}
	if c.state.Phase == job.PhaseFailed {
		evt.Stage = progress.StageJobError
		evt.Note = c.state.Status.ErrorText()
	}
	done := c.terminal
	c.mu.Unlock()

	c.logger.Info("job reached terminal state",
		zap.String("run_id", evt.RunID),
		zap.String("stage", string(evt.Stage)),
		zap.Int("polls", evt.Polls),
	)
	c.bg.Go(func() {
		c.refreshLimits(c.baseCtx)
		c.events.Emit(evt)
		if done != nil {
			close(done)
		}
	})
}

func (c *Controller) refreshLimits(ctx context.Context) {
	if c.monitor == nil {
		return
	}
	if err := c.monitor.Refresh(ctx); err != nil {
		c.logger.Warn("limits refresh failed", zap.Error(err))
		return
	}
	c.events.Emit(progress.Event{TS: c.clock.Now(), Stage: progress.StageLimits, Limits: c.monitor.Snapshot()})
}

type noopEmitter struct{}

func (noopEmitter) Emit(progress.Event) {}

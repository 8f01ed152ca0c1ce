// Package poller runs the single-flight status fetch loop for an active job.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/job"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultInterval = 3 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// ErrActive is returned by Activate while a run is already being polled.
var ErrActive = errors.New("poller already active")

// TickerFunc starts a ticker with period d and returns its channel and a
// stop func.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// FetchFunc fetches the remote status once.
type FetchFunc func(ctx context.Context) (job.Status, error)

// Tick is the outcome of one fetch.
type Tick struct {
	Run    string
	Seq    uint64
	Status job.Status
	Err    error
}

// HandleFunc applies a tick. Returning true deactivates the poller. It runs
// under the poller's lock and must not call back into the Poller.
type HandleFunc func(Tick) (stop bool)

// Config controls the Poller.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	Ticker   TickerFunc
	Logger   *zap.Logger
}

// Poller fetches status every Interval while active. At most one fetch is
// outstanding; ticks that arrive meanwhile are skipped.
type Poller struct {
	fetch    FetchFunc
	handle   HandleFunc
	interval time.Duration
	timeout  time.Duration
	ticker   TickerFunc
	logger   *zap.Logger
	wg       conc.WaitGroup

	mu       sync.Mutex
	active   bool
	run      string
	gen      uint64
	seq      uint64
	inFlight bool
	cancel   context.CancelFunc
	skipped  uint64
	stops    uint64
}

// New builds an inactive Poller.
func New(fetch FetchFunc, handle HandleFunc, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Ticker == nil {
		cfg.Ticker = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Poller{
		fetch:    fetch,
		handle:   handle,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		ticker:   cfg.Ticker,
		logger:   cfg.Logger,
	}
}

// Activate starts polling on behalf of run. The first fetch happens after
// one interval. Cancelling ctx deactivates the poller as well.
func (p *Poller) Activate(ctx context.Context, run string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return ErrActive
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.active = true
	p.run = run
	p.gen++
	p.inFlight = false
	p.cancel = cancel
	gen := p.gen
	ticks, stopTicker := p.ticker(p.interval)
	p.wg.Go(func() {
		p.loop(loopCtx, gen, ticks, stopTicker)
	})
	p.logger.Debug("poller activated", zap.String("run", run), zap.Duration("interval", p.interval))
	return nil
}

// Deactivate stops polling and cancels any in-flight fetch. It is safe to
// call repeatedly and never blocks on the fetch.
func (p *Poller) Deactivate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deactivateLocked("deactivated")
}

// Wait blocks until the ticker loop and any fetch goroutines have exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Active reports whether a run is being polled.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Run returns the run being polled, or the last one polled.
func (p *Poller) Run() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run
}

// Skipped counts ticks dropped because a fetch was outstanding.
func (p *Poller) Skipped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipped
}

// Issued returns the sequence number of the latest fetch.
func (p *Poller) Issued() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// Stops counts Active to Inactive transitions.
func (p *Poller) Stops() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func (p *Poller) loop(ctx context.Context, gen uint64, ticks <-chan time.Time, stopTicker func()) {
	defer stopTicker()
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.gen == gen {
				p.deactivateLocked("context done")
			}
			p.mu.Unlock()
			return
		case <-ticks:
			p.onTick(ctx, gen)
		}
	}
}

func (p *Poller) onTick(ctx context.Context, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active || p.gen != gen {
		return
	}
	if p.inFlight {
		p.skipped++
		p.logger.Debug("tick skipped, fetch outstanding", zap.String("run", p.run))
		return
	}
	p.seq++
	p.inFlight = true
	seq, run := p.seq, p.run
	p.wg.Go(func() {
		p.poll(ctx, gen, seq, run)
	})
}

func (p *Poller) poll(ctx context.Context, gen, seq uint64, run string) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	status, err := p.fetch(fetchCtx)
	timedOut := errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()
	if err != nil && timedOut {
		err = fmt.Errorf("status fetch timed out after %s: %w", p.timeout, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil && p.active && p.gen == gen {
		p.deactivateLocked("context done")
	}
	if !p.active || p.gen != gen || p.seq != seq {
		p.logger.Debug("stale poll result discarded",
			zap.String("run", run),
			zap.Uint64("seq", seq),
		)
		return
	}
	stop := p.handle(Tick{Run: run, Seq: seq, Status: status, Err: err})
	p.inFlight = false
	if err != nil {
		p.deactivateLocked("fetch failed")
		return
	}
	if stop {
		p.deactivateLocked("terminal status")
	}
}

func (p *Poller) deactivateLocked(reason string) {
	if !p.active {
		return
	}
	p.active = false
	p.inFlight = false
	p.gen++
	p.stops++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.logger.Debug("poller deactivated", zap.String("run", p.run), zap.String("reason", reason))
}

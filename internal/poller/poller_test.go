package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JakeFAU/scrapectl/internal/job"
)

// manualTicker hands out a channel the test drives by hand.
type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) start(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() { m.stopped.Store(true) }
}

func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("ticker not consumed")
	}
}

// scriptedFetch returns queued results, blocking each call until released.
type scriptedFetch struct {
	mu      sync.Mutex
	results []fetchResult
	calls   atomic.Int32
	gate    chan struct{}
}

type fetchResult struct {
	status job.Status
	err    error
}

func (s *scriptedFetch) fetch(ctx context.Context) (job.Status, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return job.Status{}, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return job.Status{Running: true}, nil
	}
	r := s.results[0]
	s.results = s.results[1:]
	return r.status, r.err
}

type recorder struct {
	mu    sync.Mutex
	ticks []Tick
}

func (r *recorder) handle(tick Tick) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, tick)
	return tick.Status.Terminal()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func (r *recorder) last() Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks[len(r.ticks)-1]
}

func TestPoller_StopsOnTerminalStatus(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ticker := newManualTicker()
	fetch := &scriptedFetch{results: []fetchResult{
		{status: job.Status{Running: true}},
		{status: job.Status{Running: false}},
	}}
	rec := &recorder{}
	p := New(fetch.fetch, rec.handle, Config{Ticker: ticker.start})

	require.NoError(t, p.Activate(context.Background(), "run-1"))
	require.True(t, p.Active())

	ticker.tick(t)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, p.Active())

	ticker.tick(t)
	require.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
	require.Equal(t, 2, rec.count())
	require.Equal(t, "run-1", rec.last().Run)
	require.Equal(t, uint64(2), rec.last().Seq)
	require.Equal(t, uint64(1), p.Stops())

	p.Wait()
	require.True(t, ticker.stopped.Load())
}

func TestPoller_SkipsTicksWhileFetchOutstanding(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ticker := newManualTicker()
	fetch := &scriptedFetch{gate: make(chan struct{})}
	rec := &recorder{}
	p := New(fetch.fetch, rec.handle, Config{Ticker: ticker.start})
	require.NoError(t, p.Activate(context.Background(), "run-1"))

	ticker.tick(t)
	require.Eventually(t, func() bool { return fetch.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ticker.tick(t)
	ticker.tick(t)
	require.Eventually(t, func() bool { return p.Skipped() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, uint64(1), p.Issued())
	require.Equal(t, int32(1), fetch.calls.Load())

	fetch.gate <- struct{}{}
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)

	// A new tick is issued once the previous one has been handled.
	ticker.tick(t)
	require.Eventually(t, func() bool { return fetch.calls.Load() == 2 }, time.Second, 5*time.Millisecond)

	p.Deactivate()
	p.Wait()
	require.Equal(t, 1, rec.count())
}

func TestPoller_FetchErrorStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("connection refused")
	ticker := newManualTicker()
	fetch := &scriptedFetch{results: []fetchResult{{err: boom}}}
	var handled []Tick
	var mu sync.Mutex
	p := New(fetch.fetch, func(tick Tick) bool {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, tick)
		return false
	}, Config{Ticker: ticker.start})
	require.NoError(t, p.Activate(context.Background(), "run-1"))

	ticker.tick(t)
	require.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, handled, 1)
	require.ErrorIs(t, handled[0].Err, boom)
}

func TestPoller_TimeoutReportedAsError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ticker := newManualTicker()
	fetch := &scriptedFetch{gate: make(chan struct{})}
	rec := &recorder{}
	p := New(fetch.fetch, rec.handle, Config{Ticker: ticker.start, Timeout: 20 * time.Millisecond})
	require.NoError(t, p.Activate(context.Background(), "run-1"))

	ticker.tick(t)
	require.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
	p.Wait()

	tick := rec.last()
	require.Error(t, tick.Err)
	require.ErrorIs(t, tick.Err, context.DeadlineExceeded)
	require.Contains(t, tick.Err.Error(), "timed out")
}

func TestPoller_DeactivateDiscardsInFlightResult(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ticker := newManualTicker()
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (job.Status, error) {
		calls.Add(1)
		<-release
		return job.Status{Running: false}, nil
	}
	rec := &recorder{}
	p := New(fetch, rec.handle, Config{Ticker: ticker.start})
	require.NoError(t, p.Activate(context.Background(), "run-1"))

	ticker.tick(t)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	p.Deactivate()
	p.Deactivate()
	require.False(t, p.Active())
	require.Equal(t, uint64(1), p.Stops())

	close(release)
	p.Wait()
	require.Equal(t, 0, rec.count())
}

func TestPoller_ActivateTwiceFails(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ticker := newManualTicker()
	p := New((&scriptedFetch{}).fetch, (&recorder{}).handle, Config{Ticker: ticker.start})
	require.NoError(t, p.Activate(context.Background(), "run-1"))
	require.ErrorIs(t, p.Activate(context.Background(), "run-2"), ErrActive)

	p.Deactivate()
	p.Wait()

	// Reactivation after deactivation starts a fresh run.
	require.NoError(t, p.Activate(context.Background(), "run-2"))
	require.Equal(t, "run-2", p.Run())
	p.Deactivate()
	p.Wait()
}

func TestPoller_ContextCancelDeactivates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ticker := newManualTicker()
	p := New((&scriptedFetch{}).fetch, (&recorder{}).handle, Config{Ticker: ticker.start})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Activate(ctx, "run-1"))

	cancel()
	require.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
	p.Wait()
	require.True(t, ticker.stopped.Load())
}

func TestPoller_ContextCancelDiscardsInFlightResult(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ticker := newManualTicker()
	fetch := &scriptedFetch{gate: make(chan struct{})}
	rec := &recorder{}
	p := New(fetch.fetch, rec.handle, Config{Ticker: ticker.start, Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Activate(ctx, "run-1"))

	ticker.tick(t)
	require.Eventually(t, func() bool { return fetch.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
	p.Wait()
	require.Equal(t, 0, rec.count())
	require.Equal(t, uint64(1), p.Stops())
}

func TestPoller_DefaultTickerPolls(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := &recorder{}
	fetch := &scriptedFetch{results: []fetchResult{{status: job.Status{Running: false}}}}
	p := New(fetch.fetch, rec.handle, Config{Interval: 5 * time.Millisecond})
	require.NoError(t, p.Activate(context.Background(), "run-1"))

	require.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
	p.Wait()
	require.Equal(t, 1, rec.count())
}

// Package limits tracks the remote quota snapshot and derives its display
// tiers.
package limits

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/job"
)

// LimitsFetchError reports a failed refresh. The previous snapshot is kept.
type LimitsFetchError struct {
	Err error
}

func (e *LimitsFetchError) Error() string {
	return fmt.Sprintf("fetch limits: %v", e.Err)
}

func (e *LimitsFetchError) Unwrap() error {
	return e.Err
}

// Monitor holds the latest quota snapshot. It is purely observational.
type Monitor struct {
	fetcher job.LimitsFetcher
	clock   job.Clock
	logger  *zap.Logger

	mu        sync.RWMutex
	snapshot  job.Limits
	fetchedAt time.Time
	refreshes int
}

// NewMonitor builds a Monitor.
func NewMonitor(fetcher job.LimitsFetcher, clock job.Clock, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{fetcher: fetcher, clock: clock, logger: logger}
}

// Refresh fetches and replaces the snapshot wholesale. On failure the
// snapshot is left untouched and a *LimitsFetchError is returned.
func (m *Monitor) Refresh(ctx context.Context) error {
	limits, err := m.fetcher.Limits(ctx)
	if err != nil {
		m.logger.Warn("limits refresh failed", zap.Error(err))
		return &LimitsFetchError{Err: err}
	}
	for _, a := range AssessAll(limits) {
		if a.Anomaly {
			m.logger.Warn("limit out of range",
				zap.String("name", a.Item.Name),
				zap.Int("current", a.Item.Current),
				zap.Int("maximum", a.Item.Maximum),
			)
		}
		if a.UnknownSeverity {
			m.logger.Warn("limit severity unknown",
				zap.String("name", a.Item.Name),
				zap.String("severity", string(a.Item.Severity)),
			)
		}
	}
	now := m.now()
	m.mu.Lock()
	m.snapshot = limits.Clone()
	m.fetchedAt = now
	m.refreshes++
	m.mu.Unlock()
	m.logger.Debug("limits refreshed", zap.Int("items", len(limits)))
	return nil
}

// Snapshot returns a copy of the latest snapshot, nil before the first
// successful refresh.
func (m *Monitor) Snapshot() job.Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.Clone()
}

// Assessments returns the assessed snapshot in display order.
func (m *Monitor) Assessments() []Assessment {
	return AssessAll(m.Snapshot())
}

// FetchedAt returns when the snapshot was last replaced.
func (m *Monitor) FetchedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetchedAt
}

// Refreshes counts successful refreshes.
func (m *Monitor) Refreshes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshes
}

func (m *Monitor) now() time.Time {
	if m.clock == nil {
		return time.Now().UTC()
	}
	return m.clock.Now()
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/store"
)

// RunStore keeps run history in process memory. History does not survive a
// restart.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]store.RunRecord
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]store.RunRecord)}
}

// UpsertRunStart creates the run in running state.
func (s *RunStore) UpsertRunStart(_ context.Context, runID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return nil
	}
	s.runs[runID] = store.RunRecord{RunID: runID, StartedAt: startedAt, Result: store.RunRunning}
	return nil
}

// RecordPoll updates the poll count and last progress.
func (s *RunStore) RecordPoll(_ context.Context, runID string, polls int, progress job.Progress) error {
	return s.update(runID, func(r *store.RunRecord) {
		if polls > r.Polls {
			r.Polls = polls
		}
		r.LastProgress = progress
	})
}

// RecordStopRequest increments the stop counter.
func (s *RunStore) RecordStopRequest(_ context.Context, runID string) error {
	return s.update(runID, func(r *store.RunRecord) {
		r.StopRequests++
	})
}

// CompleteRun sets the terminal result.
func (s *RunStore) CompleteRun(
	_ context.Context,
	runID string,
	finishedAt time.Time,
	result store.RunResult,
	errMsg *string,
) error {
	return s.update(runID, func(r *store.RunRecord) {
		ts := finishedAt
		r.FinishedAt = &ts
		r.Result = result
		if errMsg != nil {
			msg := *errMsg
			r.ErrorMessage = &msg
		}
	})
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (store.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return store.RunRecord{}, store.ErrNotFound
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
func (s *RunStore) ListRuns(_ context.Context, limit int) ([]store.RunRecord, error) {
	s.mu.RLock()
	out := make([]store.RunRecord, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID > out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RunStore) update(runID string, fn func(*store.RunRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	fn(&r)
	s.runs[runID] = r
	return nil
}

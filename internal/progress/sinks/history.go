package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/progress"
	"github.com/JakeFAU/scrapectl/internal/store"
)

// HistorySink records run milestones in a store.RunRepository. Poll events
// within one batch are collapsed to the latest per run.
type HistorySink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewHistorySink constructs a HistorySink for repo.
func NewHistorySink(repo store.RunRepository, logger *zap.Logger) *HistorySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistorySink{repo: repo, logger: logger}
}

// Consume applies the batch in order. Repository errors are returned.
func (s *HistorySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	latestPoll := make(map[string]progress.Event)
	var order []string
	flushPolls := func() error {
		for _, runID := range order {
			evt := latestPoll[runID]
			if err := s.repo.RecordPoll(ctx, runID, evt.Polls, evt.Progress); err != nil {
				return fmt.Errorf("record poll: %w", err)
			}
		}
		clear(latestPoll)
		order = order[:0]
		return nil
	}

	for _, evt := range batch {
		if evt.Stage == progress.StagePoll {
			if _, seen := latestPoll[evt.RunID]; !seen {
				order = append(order, evt.RunID)
			}
			latestPoll[evt.RunID] = evt
			continue
		}
		if err := flushPolls(); err != nil {
			return err
		}
		if err := s.apply(ctx, evt); err != nil {
			return err
		}
	}
	return flushPolls()
}

func (s *HistorySink) apply(ctx context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageJobStart:
		if err := s.repo.UpsertRunStart(ctx, evt.RunID, evt.TS); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
	case progress.StageStopRequested:
		if err := s.repo.RecordStopRequest(ctx, evt.RunID); err != nil {
			return fmt.Errorf("record stop request: %w", err)
		}
	case progress.StageJobDone:
		if err := s.complete(ctx, evt, store.RunSuccess, nil); err != nil {
			return err
		}
	case progress.StageJobError:
		note := evt.Note
		if err := s.complete(ctx, evt, store.RunError, &note); err != nil {
			return err
		}
	}
	return nil
}

func (s *HistorySink) complete(ctx context.Context, evt progress.Event, result store.RunResult, note *string) error {
	if evt.Polls > 0 {
		if err := s.repo.RecordPoll(ctx, evt.RunID, evt.Polls, evt.Progress); err != nil {
			return fmt.Errorf("record poll: %w", err)
		}
	}
	if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, result, note); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *HistorySink) Close(context.Context) error {
	return nil
}

package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/progress"
	"github.com/JakeFAU/scrapectl/internal/storage/memory"
	"github.com/JakeFAU/scrapectl/internal/store"
)

func TestHistorySinkRecordsRun(t *testing.T) {
	t.Parallel()

	repo := memory.NewRunStore()
	sink := NewHistorySink(repo, nil)
	start := time.Unix(1000, 0).UTC()

	batch := []progress.Event{
		{RunID: "run-1", Stage: progress.StageJobStart, TS: start},
		{RunID: "run-1", Stage: progress.StagePoll, TS: start.Add(3 * time.Second), Polls: 1,
			Progress: job.Progress{CurrentPage: job.IntPtr(1)}},
		{RunID: "run-1", Stage: progress.StagePoll, TS: start.Add(6 * time.Second), Polls: 2,
			Progress: job.Progress{CurrentPage: job.IntPtr(2)}},
		{RunID: "run-1", Stage: progress.StageStopRequested, TS: start.Add(7 * time.Second)},
		{RunID: "run-1", Stage: progress.StageJobError, TS: start.Add(9 * time.Second), Polls: 3,
			Note: "stopped by operator", Progress: job.Progress{CurrentPage: job.IntPtr(2)}},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	run, err := repo.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, store.RunError, run.Result)
	require.Equal(t, "stopped by operator", *run.ErrorMessage)
	require.Equal(t, 3, run.Polls)
	require.Equal(t, 1, run.StopRequests)
	require.Equal(t, start.Add(9*time.Second), *run.FinishedAt)
	require.Equal(t, 2, *run.LastProgress.CurrentPage)
}

func TestHistorySinkSuccess(t *testing.T) {
	t.Parallel()

	repo := memory.NewRunStore()
	sink := NewHistorySink(repo, nil)
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", Stage: progress.StageJobStart, TS: now},
	}))
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", Stage: progress.StageJobDone, TS: now.Add(time.Minute)},
	}))

	run, err := repo.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, run.Result)
	require.Nil(t, run.ErrorMessage)
}

func TestHistorySinkSurfacesRepositoryErrors(t *testing.T) {
	t.Parallel()

	sink := NewHistorySink(memory.NewRunStore(), nil)
	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: "unknown", Stage: progress.StageJobDone, TS: time.Now()},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrNotFound))
}

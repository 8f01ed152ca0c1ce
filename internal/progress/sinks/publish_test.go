package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrapectl/internal/progress"
	"github.com/JakeFAU/scrapectl/internal/publisher/memory"
)

func TestPublishSinkPublishesTerminalEvents(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	sink := NewPublishSink(pub, "runs", nil)
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", Stage: progress.StageJobStart, TS: now},
		{RunID: "run-1", Stage: progress.StagePoll, TS: now},
		{RunID: "run-1", Stage: progress.StageJobDone, TS: now, Dur: 2 * time.Second, Polls: 4},
		{RunID: "run-2", Stage: progress.StageJobError, TS: now, Note: "quota exhausted"},
	}))

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "runs", msgs[0].Topic)

	first := msgs[0].Payload.(RunNotification)
	require.Equal(t, "success", first.Result)
	require.Equal(t, 4, first.Polls)
	require.InDelta(t, 2.0, first.DurationSeconds, 1e-9)

	second := msgs[1].Payload.(RunNotification)
	require.Equal(t, "error", second.Result)
	require.Equal(t, "quota exhausted", second.Error)
	require.Equal(t, map[string]string{"run_id": "run-2", "result": "error"}, second.Attributes())
}

func TestPublishSinkReturnsPublisherError(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("unavailable"))
	sink := NewPublishSink(pub, "runs", nil)

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-1", Stage: progress.StageJobDone, TS: time.Now()},
	})
	require.Error(t, err)
}

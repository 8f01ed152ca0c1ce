package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/progress"
)

// RunNotification is the message published when a run ends.
type RunNotification struct {
	RunID           string       `json:"run_id"`
	Result          string       `json:"result"`
	Error           string       `json:"error,omitempty"`
	FinishedAt      time.Time    `json:"finished_at"`
	DurationSeconds float64      `json:"duration_seconds"`
	Polls           int          `json:"polls"`
	Progress        job.Progress `json:"progress"`
}

// Attributes exposes routing attributes for Pub/Sub subscribers.
func (n RunNotification) Attributes() map[string]string {
	return map[string]string{"run_id": n.RunID, "result": n.Result}
}

// PublishSink publishes a RunNotification for every terminal event.
type PublishSink struct {
	publisher job.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink builds a PublishSink. An empty topic lets the publisher
// pick its default.
func NewPublishSink(publisher job.Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes terminal events and ignores the rest.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		n := RunNotification{
			RunID:           evt.RunID,
			Result:          "success",
			FinishedAt:      evt.TS,
			DurationSeconds: evt.Dur.Seconds(),
			Polls:           evt.Polls,
			Progress:        evt.Progress,
		}
		if evt.Stage == progress.StageJobError {
			n.Result = "error"
			n.Error = evt.Note
		}
		id, err := s.publisher.Publish(ctx, s.topic, n)
		if err != nil {
			return fmt.Errorf("publish run notification: %w", err)
		}
		s.logger.Debug("run notification published", zap.String("run_id", evt.RunID), zap.String("message_id", id))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}

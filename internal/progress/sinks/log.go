package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapectl/internal/job"
	"github.com/JakeFAU/scrapectl/internal/progress"
)

// LogSink writes one structured log line per event. Poll events log at
// debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		fields = append(fields, progressFields(evt.Progress)...)
		if evt.Polls > 0 {
			fields = append(fields, zap.Int("polls", evt.Polls))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StagePoll:
			s.logger.Debug("job progress", fields...)
		case progress.StageLimits:
			s.logger.Debug("limits snapshot", append(fields, zap.Int("items", len(evt.Limits)))...)
		case progress.StageJobError:
			s.logger.Warn("job failed", fields...)
		case progress.StageJobDone:
			s.logger.Info("job completed", fields...)
		case progress.StageJobStart:
			s.logger.Info("job started", fields...)
		default:
			s.logger.Info("job event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func progressFields(p job.Progress) []zap.Field {
	var fields []zap.Field
	add := func(key string, v *int) {
		if v != nil {
			fields = append(fields, zap.Int(key, *v))
		}
	}
	add("current_page", p.CurrentPage)
	add("start_page", p.StartPage)
	add("end_page", p.EndPage)
	add("channel_index", p.ChannelIndex)
	add("channels_on_page", p.ChannelsOnPage)
	return fields
}

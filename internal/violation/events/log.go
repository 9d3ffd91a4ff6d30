package events

import (
	"context"
	"log/slog"
)

// LogSink writes events to a logger. It stands in for a broker when none is
// configured so lifecycle events stay visible in the process log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, batch []Event) error {
	for _, ev := range batch {
		s.logger.InfoContext(ctx, "violation event",
			"event_id", ev.ID,
			"event_type", ev.Type,
			"violation_id", ev.Violation.ID,
			"status", ev.Violation.Status,
			"previous_status", ev.PreviousStatus,
			"request_id", ev.RequestID,
		)
	}
	return nil
}

func (s *LogSink) Close() error {
	return nil
}

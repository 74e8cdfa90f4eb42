package audit

import (
	"context"
	"log/slog"

	"github.com/Rick1330/cybersage/internal/types"
)

// SlogSink writes audit events to a structured logger. It never fails:
// the logger is the terminal destination.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a SlogSink backed by the given logger.
// A nil logger falls back to slog.Default().
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// LogEvent implements Sink by emitting a single structured log record.
func (s *SlogSink) LogEvent(ctx context.Context, workflowID types.ID, event EventType, details map[string]any) (types.ID, error) {
	eventID := types.NewID()

	attrs := make([]any, 0, 3+len(details))
	attrs = append(attrs,
		"event_id", eventID.String(),
		"workflow_id", workflowID.String(),
		"event", event.String(),
	)
	for k, v := range details {
		attrs = append(attrs, k, v)
	}

	s.logger.InfoContext(ctx, "audit event", attrs...)
	return eventID, nil
}

// Ensure SlogSink implements Sink at compile time.
var _ Sink = (*SlogSink)(nil)

package audit

import (
	"context"
	"errors"

	"github.com/Rick1330/cybersage/internal/types"
)

// MultiSink fans an event out to several sinks. Every sink receives the
// event even if earlier sinks fail; the errors are joined. The returned
// event id is the first sink's id so all sinks share one logical event.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a MultiSink over the given sinks. Nil sinks are
// dropped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept}
}

// LogEvent implements Sink.
func (m *MultiSink) LogEvent(ctx context.Context, workflowID types.ID, event EventType, details map[string]any) (types.ID, error) {
	var (
		eventID types.ID
		errs    []error
	)

	for i, sink := range m.sinks {
		id, err := sink.LogEvent(ctx, workflowID, event, details)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if i == 0 || eventID.IsZero() {
			eventID = id
		}
	}

	if eventID.IsZero() {
		eventID = types.NewID()
	}

	return eventID, errors.Join(errs...)
}

// Ensure MultiSink implements Sink at compile time.
var _ Sink = (*MultiSink)(nil)

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Rick1330/cybersage/internal/audit"
	"github.com/Rick1330/cybersage/internal/types"
)

// outcomeKind tags the result of one execution attempt. Retryable and
// timeout outcomes stay inside the executor's loop; only success and
// exhaustion cross into the workflow.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetryable
	outcomeTimeout
	outcomeCancelled
)

type attemptOutcome struct {
	kind   outcomeKind
	result map[string]any
	err    error
}

// defaultBackoff returns the delay before the attempt+1'th try:
// 2^attempt seconds, attempt counted from 1.
func defaultBackoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// stepExecutor runs a single step's tool call under the step's retry and
// timeout policy, emitting step-level audit events. One executor is owned
// by one workflow and reused across its steps.
type stepExecutor struct {
	workflowID types.ID
	sink       audit.Sink
	logger     *slog.Logger
	tracer     trace.Tracer
	backoff    func(attempt int) time.Duration
	cancelCh   <-chan struct{}
}

// runStep drives the step from Pending to Completed or Failed. On success
// it returns the tool result; on exhaustion it returns a *StepFailureError
// after marking the step Failed. A cancel observed mid-step returns
// errCancelled and leaves the step's terminal bookkeeping to Cancel.
func (e *stepExecutor) runStep(ctx context.Context, step *Step) (result map[string]any, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("step.name", step.Name),
		attribute.String("step.tool", step.Tool.Name()),
		attribute.Int("step.retry_count", step.RetryCount),
	))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	e.logAudit(ctx, audit.EventStepStarted, map[string]any{
		"step":   step.Name,
		"params": step.Params,
	})

	if !step.markRunning() {
		return nil, errCancelled
	}

	retries := step.RetryCount
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		outcome := e.attempt(ctx, step)

		switch outcome.kind {
		case outcomeSuccess:
			if !step.markCompleted(outcome.result) {
				return nil, errCancelled
			}
			e.logAudit(ctx, audit.EventStepCompleted, map[string]any{
				"step":             step.Name,
				"duration_seconds": step.Duration().Seconds(),
			})
			return outcome.result, nil

		case outcomeTimeout:
			lastErr = fmt.Errorf("timed out after %ds", int(step.Timeout.Seconds()))
			e.logger.WarnContext(ctx, "step attempt timed out",
				"workflow_id", e.workflowID,
				"step", step.Name,
				"attempt", attempt,
				"timeout", step.Timeout,
			)

		case outcomeRetryable:
			lastErr = outcome.err
			e.logger.WarnContext(ctx, "step attempt failed",
				"workflow_id", e.workflowID,
				"step", step.Name,
				"attempt", attempt,
				"error", outcome.err,
			)

		case outcomeCancelled:
			// Caller context expiry carries its error; a Cancel does not,
			// since Cancel does the step bookkeeping itself.
			if outcome.err != nil {
				step.markFailed(outcome.err.Error())
				return nil, outcome.err
			}
			return nil, errCancelled
		}

		if attempt < retries {
			if err := e.sleep(ctx, e.backoff(attempt)); err != nil {
				if !errors.Is(err, errCancelled) {
					step.markFailed(err.Error())
				}
				return nil, err
			}
		}
	}

	if !step.markFailed(lastErr.Error()) {
		return nil, errCancelled
	}
	e.logAudit(ctx, audit.EventStepFailed, map[string]any{
		"step":    step.Name,
		"error":   lastErr.Error(),
		"retries": retries,
	})

	return nil, &StepFailureError{
		Step:     step.Name,
		Attempts: retries,
		Err:      lastErr,
	}
}

// attempt runs one bounded tool invocation. The tool call runs in its own
// goroutine so a timeout or cancel abandons it at this boundary even when
// the tool ignores its context.
func (e *stepExecutor) attempt(ctx context.Context, step *Step) attemptOutcome {
	attemptCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	type toolReturn struct {
		result map[string]any
		err    error
	}
	done := make(chan toolReturn, 1)
	go func() {
		result, err := step.Tool.Execute(attemptCtx, step.Params)
		done <- toolReturn{result: result, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return attemptOutcome{kind: outcomeRetryable, err: r.err}
		}
		return attemptOutcome{kind: outcomeSuccess, result: r.result}
	case <-e.cancelCh:
		return attemptOutcome{kind: outcomeCancelled}
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return attemptOutcome{kind: outcomeCancelled, err: err}
		}
		return attemptOutcome{kind: outcomeTimeout}
	}
}

// sleep waits out the backoff delay, aborting early on cancel.
func (e *stepExecutor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-e.cancelCh:
		return errCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// logAudit records a step-level event; sink failures are logged locally
// and never change execution outcome.
func (e *stepExecutor) logAudit(ctx context.Context, event audit.EventType, details map[string]any) {
	if _, err := e.sink.LogEvent(ctx, e.workflowID, event, details); err != nil {
		e.logger.WarnContext(ctx, "audit event failed",
			"workflow_id", e.workflowID,
			"event", event.String(),
			"error", err,
		)
	}
}

package workflow

import (
	"errors"
	"fmt"

	"github.com/Rick1330/cybersage/internal/types"
)

// errCancelled is the internal signal that Cancel won the race against
// the execution loop. The loop translates it into the caller-facing
// WORKFLOW_CANCELLED error after Cancel has done the step bookkeeping.
var errCancelled = errors.New("workflow cancelled")

// StepFailureError reports that a step exhausted its attempt budget. It
// carries the step name, the number of attempts made, and the last error
// observed, and is the only step-level error that crosses into the
// workflow's control flow.
type StepFailureError struct {
	Step     string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *StepFailureError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *StepFailureError) Unwrap() error {
	return e.Err
}

// Is classifies exhaustion under the STEP_EXHAUSTED code, so callers can
// match with errors.Is without losing the structured fields.
func (e *StepFailureError) Is(target error) bool {
	t, ok := target.(*types.CyberSageError)
	return ok && t.Code == types.STEP_EXHAUSTED
}

package workflow

import (
	"time"

	"github.com/Rick1330/cybersage/internal/types"
)

// StepSnapshot is the read-only view of one step's run state.
type StepSnapshot struct {
	Name            string         `json:"name"`
	Status          StepStatus     `json:"status"`
	StartTime       *time.Time     `json:"startTime,omitempty"`
	EndTime         *time.Time     `json:"endTime,omitempty"`
	DurationSeconds float64        `json:"durationSeconds"`
	Result          map[string]any `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// Snapshot is the read-only view of a workflow's state at one instant.
// All nested maps are deep copies, so a snapshot never changes after it
// is taken and snapshots taken back to back with no intervening
// execution serialize identically.
type Snapshot struct {
	WorkflowID       types.ID                  `json:"workflowId"`
	Name             string                    `json:"name"`
	Status           Status                    `json:"status"`
	CurrentStepIndex int                       `json:"currentStepIndex"`
	TotalSteps       int                       `json:"totalSteps"`
	StartTime        *time.Time                `json:"startTime,omitempty"`
	EndTime          *time.Time                `json:"endTime,omitempty"`
	Steps            []StepSnapshot            `json:"steps"`
	Results          map[string]map[string]any `json:"results"`
}

// Snapshot returns an immutable view of the workflow and all its steps.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	snap := Snapshot{
		WorkflowID:       w.ID,
		Name:             w.Name,
		Status:           w.status,
		CurrentStepIndex: w.currentStep,
		TotalSteps:       len(w.steps),
		StartTime:        timePtr(w.startTime),
		EndTime:          timePtr(w.endTime),
		Steps:            make([]StepSnapshot, 0, len(w.steps)),
	}
	w.mu.Unlock()

	snap.Results = w.Results()
	for _, step := range w.steps {
		snap.Steps = append(snap.Steps, snapshotStep(step))
	}
	return snap
}

func snapshotStep(s *Step) StepSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StepSnapshot{
		Name:      s.Name,
		Status:    s.status,
		StartTime: timePtr(s.startTime),
		EndTime:   timePtr(s.endTime),
		Error:     s.errMsg,
	}
	if !s.startTime.IsZero() && !s.endTime.IsZero() {
		snap.DurationSeconds = s.endTime.Sub(s.startTime).Seconds()
	}
	if s.result != nil {
		snap.Result = make(map[string]any, len(s.result))
		for k, v := range s.result {
			snap.Result[k] = v
		}
	}
	return snap
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	cp := t
	return &cp
}

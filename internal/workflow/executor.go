package workflow

import "context"

// ExecutionContext carries what an executor needs to perform one phase.
type ExecutionContext struct {
	Description string          `json:"description"`
	Level       ComplexityLevel `json:"level"`
	Mode        ExecutionMode   `json:"mode"`
	Dimension   FocusDimension  `json:"dimension,omitempty"`

	// Attempt is 1 for the first execution of the phase, incremented on
	// each automatic retry.
	Attempt int `json:"attempt"`

	// PriorResults are the task's completed phase results, oldest first.
	PriorResults []PhaseResult `json:"prior_results,omitempty"`
}

// Executor performs the actual work of one phase. Execution may be
// long-running; the orchestrator suspends between phases and resumes when a
// result is reported back. Every result must be tagged with the phase it was
// invoked for; the orchestrator rejects mismatches as fatal.
type Executor interface {
	Execute(ctx context.Context, taskID string, phase Phase, execCtx ExecutionContext) (PhaseResult, error)
}

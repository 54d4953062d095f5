package workflow

import "errors"

// Sentinel errors for the workflow domain. Callers match with errors.Is.
var (
	// ErrInvalidLevel indicates an unknown complexity level.
	ErrInvalidLevel = errors.New("invalid complexity level")

	// ErrInvalidMode indicates an execution mode and focus dimension that do
	// not agree: a dimension given without single-focus mode, or single-focus
	// mode without a dimension.
	ErrInvalidMode = errors.New("invalid execution mode")

	// ErrInvalidDefinition indicates a workflow definition that violates the
	// sequence invariants.
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrPhaseMismatch indicates a phase result tagged with a phase other
	// than the one the orchestrator is waiting on. Fatal for the task.
	ErrPhaseMismatch = errors.New("phase result does not match current phase")

	// ErrConcurrentTransition indicates a transition attempted on a task
	// that already has one in flight. The task's state is unchanged.
	ErrConcurrentTransition = errors.New("concurrent transition rejected")

	// ErrAlreadyStarted indicates an operation that is only valid before the
	// task's workflow has started, such as forcing a mode.
	ErrAlreadyStarted = errors.New("task already started")

	// ErrNotStarted indicates an advance on a task whose workflow has not
	// been started.
	ErrNotStarted = errors.New("task not started")

	// ErrTerminal indicates a transition on a completed or failed task.
	ErrTerminal = errors.New("task is in a terminal state")

	// ErrClassification indicates the classifier could not produce a level.
	// Task creation fails outright; the caller must resubmit.
	ErrClassification = errors.New("classification failed")
)

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowd/internal/events"
	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

// maxRetries is the number of automatic re-executions of a failed phase
// before the task blocks awaiting external intervention.
const maxRetries = 2

// Orchestrator applies workflow transitions to tasks. It owns no task state
// of its own; every call mutates the task passed in and reports transition
// events. Persistence is the caller's concern.
type Orchestrator struct {
	planner   *workflow.Planner
	evaluator *workflow.Evaluator
	publisher events.Publisher
	logger    *zap.Logger
}

// New creates an orchestrator. A nil publisher discards events.
func New(planner *workflow.Planner, evaluator *workflow.Evaluator, publisher events.Publisher, logger *zap.Logger) *Orchestrator {
	if planner == nil {
		planner = workflow.NewPlanner()
	}
	if evaluator == nil {
		evaluator = workflow.NewEvaluator(nil)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		planner:   planner,
		evaluator: evaluator,
		publisher: publisher,
		logger:    logger,
	}
}

// Start obtains a workflow definition for the task's level and mode and
// positions the task at its first phase. Requires a running task whose
// workflow has not started.
func (o *Orchestrator) Start(ctx context.Context, task *workflow.Task) error {
	if task.Status.Terminal() {
		return fmt.Errorf("start %s: %w", task.ID, workflow.ErrTerminal)
	}
	if task.Started {
		return fmt.Errorf("start %s: %w", task.ID, workflow.ErrAlreadyStarted)
	}
	if task.Status != workflow.StatusRunning {
		return fmt.Errorf("start %s: status %s is not running", task.ID, task.Status)
	}

	def, err := o.planner.Plan(workflow.PlanRequest{
		Level:       task.Level,
		Mode:        task.Mode,
		Dimension:   task.Dimension,
		NeedsDesign: task.NeedsDesign,
	})
	if err != nil {
		return fmt.Errorf("start %s: %w", task.ID, err)
	}

	task.Plan = def.Phases
	task.PhaseIndex = 0
	task.Started = true
	task.Attempts = 1
	task.UpdatedAt = time.Now()

	o.logger.Info("workflow started",
		zap.String("task_id", task.ID),
		zap.Stringer("level", task.Level),
		zap.String("mode", string(task.Mode)),
		zap.Int("phases", len(task.Plan)),
	)
	o.publish(ctx, task, events.TypePhaseStarted, "")
	return nil
}

// Advance consumes the phase result handed back by the executor and moves
// the state machine: retry on execution failure, gate check on success,
// escalation or blocking on gate failure, completion when the plan is
// exhausted. A blocked task resumes when a corrected result for the same
// phase is reported.
func (o *Orchestrator) Advance(ctx context.Context, task *workflow.Task, result workflow.PhaseResult) error {
	if task.Status.Terminal() {
		return fmt.Errorf("advance %s: %w", task.ID, workflow.ErrTerminal)
	}
	if !task.Started {
		return fmt.Errorf("advance %s: %w", task.ID, workflow.ErrNotStarted)
	}

	current, ok := task.CurrentPhase()
	if !ok {
		return fmt.Errorf("advance %s: no phase awaiting a result", task.ID)
	}
	if result.Phase != current {
		return fmt.Errorf("advance %s: got result for %s while awaiting %s: %w",
			task.ID, result.Phase, current, workflow.ErrPhaseMismatch)
	}

	// A blocked task accepts a corrected result for its current phase as
	// the external intervention that resumes it. The retry budget starts
	// over; blocking never auto-recovers on its own.
	if task.Status == workflow.StatusBlocked {
		task.Status = workflow.StatusRunning
		task.StatusReason = ""
		task.Unmet = nil
		task.Attempts = 1
	}

	task.History = append(task.History, result)
	task.UpdatedAt = time.Now()

	if !result.Succeeded {
		return o.handlePhaseFailure(ctx, task, current, result.FailureReason)
	}

	var gate workflow.GateResult
	if task.Mode == workflow.ModeSingleFocus {
		gate = o.evaluator.EvaluateFocused(task.Level, current, task.Dimension, result.Metrics, result.Checks)
	} else {
		gate = o.evaluator.Evaluate(task.Level, current, result.Metrics, result.Checks)
	}

	// De-escalation is legal only at analyze/plan boundaries, before any
	// gate-bearing work has run at the estimated level.
	if gate.Passed && o.shouldDeEscalate(task, current, result) {
		return o.deEscalate(ctx, task, result.SuggestedLevel)
	}

	// Escalation triggers: checks the executor reported false that only a
	// higher level's gates mandate. The current level cannot remediate
	// those, so escalation takes precedence over blocking.
	if triggers := o.escalationTriggers(task, result); len(triggers) > 0 {
		return o.escalate(ctx, task, current, triggers, gate.Passed)
	}

	if !gate.Passed {
		task.Unmet = gate.Unmet
		return o.handlePhaseFailure(ctx, task, current,
			fmt.Sprintf("quality gate failed at %s: unmet %s", current, strings.Join(gate.Unmet, ", ")))
	}

	return o.advancePhase(ctx, task)
}

// Abort forcibly fails the task from any non-terminal state. Aborting an
// already-terminal task is a no-op.
func (o *Orchestrator) Abort(ctx context.Context, task *workflow.Task, reason string) error {
	if task.Status.Terminal() {
		return nil
	}
	task.Status = workflow.StatusFailed
	task.StatusReason = reason
	task.UpdatedAt = time.Now()

	o.logger.Warn("task aborted",
		zap.String("task_id", task.ID),
		zap.String("reason", reason),
	)
	o.publish(ctx, task, events.TypeFailed, reason)
	return nil
}

// handlePhaseFailure applies the retry policy: re-execute the same phase
// with unchanged scope up to maxRetries times, then block.
func (o *Orchestrator) handlePhaseFailure(ctx context.Context, task *workflow.Task, phase workflow.Phase, reason string) error {
	if task.Attempts <= maxRetries {
		task.Attempts++
		o.logger.Info("phase retry",
			zap.String("task_id", task.ID),
			zap.String("phase", string(phase)),
			zap.Int("attempt", task.Attempts),
			zap.String("reason", reason),
		)
		o.publish(ctx, task, events.TypeRetried, reason)
		return nil
	}

	task.Status = workflow.StatusBlocked
	task.StatusReason = reason
	task.UpdatedAt = time.Now()

	o.logger.Warn("task blocked",
		zap.String("task_id", task.ID),
		zap.String("phase", string(phase)),
		zap.Strings("unmet", task.Unmet),
		zap.String("reason", reason),
	)
	o.publish(ctx, task, events.TypeBlocked, reason)
	return nil
}

// escalationTriggers returns checks reported false that a higher level
// mandates and the current level does not. Single-focus runs never
// escalate; their plan is level-independent.
func (o *Orchestrator) escalationTriggers(task *workflow.Task, result workflow.PhaseResult) []string {
	if task.Mode == workflow.ModeSingleFocus || task.Level >= workflow.Level4 {
		return nil
	}
	var triggers []string
	for name, value := range result.Checks {
		if value {
			continue
		}
		if o.evaluator.RequiredAt(task.Level, name) {
			continue
		}
		if o.evaluator.RequiredAbove(task.Level, name) {
			triggers = append(triggers, name)
		}
	}
	return triggers
}

// escalate raises the task one level and re-plans the remaining phases.
// Completed phases are not re-run; if the current phase's own gate passed,
// it counts as completed and the plan resumes at the next required phase.
func (o *Orchestrator) escalate(ctx context.Context, task *workflow.Task, atPhase workflow.Phase, triggers []string, currentPassed bool) error {
	from := task.Level
	to := from + 1
	reason := fmt.Sprintf("requirements %s mandatory above %s", strings.Join(triggers, ", "), from)

	if currentPassed {
		task.PhaseIndex++
	}

	plan, err := o.planner.Replan(task, to)
	if err != nil {
		return fmt.Errorf("escalate %s: %w", task.ID, err)
	}

	task.Level = to
	task.Plan = plan
	task.Attempts = 1
	task.Unmet = nil
	task.StatusReason = ""
	task.EscalationLog = append(task.EscalationLog, workflow.EscalationEvent{
		FromLevel: from,
		ToLevel:   to,
		Reason:    reason,
		AtPhase:   atPhase,
		At:        time.Now(),
	})
	task.UpdatedAt = time.Now()

	o.logger.Info("task escalated",
		zap.String("task_id", task.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.String("at_phase", string(atPhase)),
		zap.Strings("triggers", triggers),
	)
	o.publish(ctx, task, events.TypeEscalated, reason)

	if task.PhaseIndex >= len(task.Plan) {
		return o.complete(ctx, task)
	}
	o.publish(ctx, task, events.TypePhaseStarted, "")
	return nil
}

// shouldDeEscalate reports whether the result's suggested level may lower
// the task's estimate: only downward, only at analyze/plan boundaries, and
// never once implementation has started.
func (o *Orchestrator) shouldDeEscalate(task *workflow.Task, current workflow.Phase, result workflow.PhaseResult) bool {
	if task.Mode == workflow.ModeSingleFocus {
		return false
	}
	if result.SuggestedLevel == 0 || !result.SuggestedLevel.Valid() {
		return false
	}
	if result.SuggestedLevel >= task.Level {
		return false
	}
	if current != workflow.PhaseAnalyze && current != workflow.PhasePlan {
		return false
	}
	return !task.ImplementStarted()
}

// deEscalate lowers the level and shrinks the remaining plan. The level
// drop is not an escalation event; the escalation log stays monotonic.
func (o *Orchestrator) deEscalate(ctx context.Context, task *workflow.Task, to workflow.ComplexityLevel) error {
	from := task.Level
	task.PhaseIndex++

	plan, err := o.planner.Replan(task, to)
	if err != nil {
		return fmt.Errorf("de-escalate %s: %w", task.ID, err)
	}

	task.Level = to
	task.Plan = plan
	task.Attempts = 1
	task.UpdatedAt = time.Now()

	o.logger.Info("task de-escalated",
		zap.String("task_id", task.ID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	o.publish(ctx, task, events.TypeDeEscalated, fmt.Sprintf("analysis revised %s to %s", from, to))

	if task.PhaseIndex >= len(task.Plan) {
		return o.complete(ctx, task)
	}
	o.publish(ctx, task, events.TypePhaseStarted, "")
	return nil
}

// advancePhase moves past a gate-passed phase, completing the task when the
// plan is exhausted.
func (o *Orchestrator) advancePhase(ctx context.Context, task *workflow.Task) error {
	current, _ := task.CurrentPhase()
	o.publish(ctx, task, events.TypeGatePassed, "")

	task.PhaseIndex++
	task.Attempts = 1
	task.Unmet = nil
	task.StatusReason = ""
	task.UpdatedAt = time.Now()

	o.logger.Debug("phase passed",
		zap.String("task_id", task.ID),
		zap.String("phase", string(current)),
	)

	if task.PhaseIndex >= len(task.Plan) {
		return o.complete(ctx, task)
	}
	o.publish(ctx, task, events.TypePhaseStarted, "")
	return nil
}

// complete finishes the task, appending an implicit archive phase first when
// the level requires archival and the plan did not end with one.
func (o *Orchestrator) complete(ctx context.Context, task *workflow.Task) error {
	last := task.Plan[len(task.Plan)-1]
	if last != workflow.PhaseArchive && task.Level.RequiresArchive() && task.Mode != workflow.ModeSingleFocus {
		task.Plan = append(task.Plan, workflow.PhaseArchive)
		task.Attempts = 1
		o.logger.Debug("implicit archive phase appended", zap.String("task_id", task.ID))
		o.publish(ctx, task, events.TypePhaseStarted, "")
		return nil
	}

	task.Status = workflow.StatusCompleted
	task.UpdatedAt = time.Now()

	o.logger.Info("task completed",
		zap.String("task_id", task.ID),
		zap.Stringer("level", task.Level),
		zap.Int("history", len(task.History)),
		zap.Int("escalations", len(task.EscalationLog)),
	)
	o.publish(ctx, task, events.TypeCompleted, "")
	return nil
}

// publish emits a lifecycle event; publish failures are logged, never
// propagated into the transition.
func (o *Orchestrator) publish(ctx context.Context, task *workflow.Task, typ events.Type, reason string) {
	phase, _ := task.CurrentPhase()
	err := o.publisher.Publish(ctx, events.Event{
		TaskID: task.ID,
		Type:   typ,
		Phase:  phase,
		Level:  task.Level,
		Status: task.Status,
		Reason: reason,
		At:     time.Now(),
	})
	if err != nil {
		o.logger.Warn("event publish failed",
			zap.String("task_id", task.ID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
	}
}

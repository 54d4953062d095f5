package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowd/internal/events"
	"github.com/fyrsmithlabs/workflowd/internal/store"
	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

const instrumentationName = "github.com/fyrsmithlabs/workflowd/internal/orchestrator"

// Config configures the engine.
type Config struct {
	// AutoStart starts a task's workflow immediately on submission. Disable
	// to leave a window for ForceMode before the first phase runs.
	AutoStart bool

	// GateTable overrides the built-in quality gate tables.
	GateTable workflow.GateTable
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{AutoStart: true}
}

// Engine is the exposed control surface of the orchestration engine. It
// owns task records for their entire lifetime: classification at submit,
// transition serialization, persistence after every transition, archival at
// terminal status.
type Engine struct {
	config     *Config
	orch       *Orchestrator
	classifier workflow.Classifier
	executor   workflow.Executor
	store      store.Store
	logger     *zap.Logger

	// Telemetry
	tracer            trace.Tracer
	meter             metric.Meter
	submitCounter     metric.Int64Counter
	completedCounter  metric.Int64Counter
	escalationCounter metric.Int64Counter
	blockedCounter    metric.Int64Counter

	mu       sync.Mutex
	inflight map[string]bool
	closed   bool
}

// NewEngine creates the engine. The store is required; a nil classifier
// falls back to the built-in heuristic, a nil executor disables Run, and a
// nil publisher discards events.
func NewEngine(cfg *Config, classifier workflow.Classifier, executor workflow.Executor, st store.Store, publisher events.Publisher, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if classifier == nil {
		classifier = workflow.NewHeuristicClassifier()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		config:     cfg,
		orch:       New(workflow.NewPlanner(), workflow.NewEvaluator(cfg.GateTable), publisher, logger),
		classifier: classifier,
		executor:   executor,
		store:      st,
		logger:     logger,
		tracer:     otel.Tracer(instrumentationName),
		meter:      otel.Meter(instrumentationName),
		inflight:   make(map[string]bool),
	}
	e.initMetrics()
	return e, nil
}

// initMetrics initializes OpenTelemetry metrics.
func (e *Engine) initMetrics() {
	var err error

	e.submitCounter, err = e.meter.Int64Counter(
		"workflowd.tasks.submitted_total",
		metric.WithDescription("Total number of tasks submitted"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		e.logger.Warn("failed to create submit counter", zap.Error(err))
	}

	e.completedCounter, err = e.meter.Int64Counter(
		"workflowd.tasks.completed_total",
		metric.WithDescription("Total number of tasks reaching a terminal status"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		e.logger.Warn("failed to create completed counter", zap.Error(err))
	}

	e.escalationCounter, err = e.meter.Int64Counter(
		"workflowd.tasks.escalations_total",
		metric.WithDescription("Total number of level escalations"),
		metric.WithUnit("{escalation}"),
	)
	if err != nil {
		e.logger.Warn("failed to create escalation counter", zap.Error(err))
	}

	e.blockedCounter, err = e.meter.Int64Counter(
		"workflowd.tasks.blocked_total",
		metric.WithDescription("Total number of block transitions"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		e.logger.Warn("failed to create blocked counter", zap.Error(err))
	}
}

// SubmitRequest creates a new task.
type SubmitRequest struct {
	Description   string
	ScopeEstimate int

	// Mode defaults to standard. Dimension is required for single-focus.
	Mode      workflow.ExecutionMode
	Dimension workflow.FocusDimension

	// Hold skips the automatic workflow start so the caller can still
	// force a mode change. Ignored when the engine has AutoStart disabled.
	Hold bool
}

// SubmitTask classifies the description and creates the task record.
// Classification failures fail the submission outright; the caller must
// resubmit with more detail.
func (e *Engine) SubmitTask(ctx context.Context, req *SubmitRequest) (*workflow.Task, error) {
	ctx, span := e.tracer.Start(ctx, "engine.submit_task")
	defer span.End()

	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = workflow.ModeStandard
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown mode %q", workflow.ErrInvalidMode, mode)
	}
	if mode == workflow.ModeSingleFocus && !req.Dimension.Valid() {
		return nil, fmt.Errorf("%w: single-focus requires a dimension", workflow.ErrInvalidMode)
	}
	if mode != workflow.ModeSingleFocus && req.Dimension != "" {
		return nil, fmt.Errorf("%w: dimension %q given outside single-focus", workflow.ErrInvalidMode, req.Dimension)
	}

	cls, err := e.classifier.Classify(ctx, req.Description, req.ScopeEstimate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", workflow.ErrClassification, err)
	}

	now := time.Now()
	task := &workflow.Task{
		ID:            uuid.New().String(),
		Description:   req.Description,
		ScopeEstimate: req.ScopeEstimate,
		Level:         cls.Level,
		Mode:          mode,
		Dimension:     req.Dimension,
		NeedsDesign:   cls.NeedsDesign,
		Status:        workflow.StatusRunning,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.store.Save(ctx, task); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist task: %w", err)
	}

	if e.submitCounter != nil {
		e.submitCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("level", task.Level.String()),
			attribute.String("mode", string(task.Mode)),
		))
	}
	e.logger.Info("task submitted",
		zap.String("task_id", task.ID),
		zap.Stringer("level", task.Level),
		zap.String("mode", string(task.Mode)),
		zap.String("classifier_reason", cls.Reason),
	)
	span.SetAttributes(
		attribute.String("task_id", task.ID),
		attribute.String("level", task.Level.String()),
	)

	if e.config.AutoStart && !req.Hold {
		if err := e.StartTask(ctx, task.ID); err != nil {
			return nil, err
		}
		return e.GetStatus(ctx, task.ID)
	}
	return task.Clone(), nil
}

// StartTask begins the task's planned workflow.
func (e *Engine) StartTask(ctx context.Context, id string) error {
	ctx, span := e.tracer.Start(ctx, "engine.start_task")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", id))

	return e.withTask(ctx, id, func(task *workflow.Task) error {
		return e.orch.Start(ctx, task)
	})
}

// GetStatus returns a read-only snapshot of the task, including the most
// precise known reason for a blocked or failed status.
func (e *Engine) GetStatus(ctx context.Context, id string) (*workflow.Task, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.Load(ctx, id)
}

// ListTasks returns snapshots of all known tasks.
func (e *Engine) ListTasks(ctx context.Context) ([]*workflow.Task, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.store.List(ctx)
}

// ForceMode overrides the task's execution mode. Only valid before the
// workflow has started.
func (e *Engine) ForceMode(ctx context.Context, id string, mode workflow.ExecutionMode, dim workflow.FocusDimension) error {
	ctx, span := e.tracer.Start(ctx, "engine.force_mode")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", id), attribute.String("mode", string(mode)))

	if !mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", workflow.ErrInvalidMode, mode)
	}
	if mode == workflow.ModeSingleFocus && !dim.Valid() {
		return fmt.Errorf("%w: single-focus requires a dimension", workflow.ErrInvalidMode)
	}
	if mode != workflow.ModeSingleFocus && dim != "" {
		return fmt.Errorf("%w: dimension %q given outside single-focus", workflow.ErrInvalidMode, dim)
	}

	return e.withTask(ctx, id, func(task *workflow.Task) error {
		if task.Started {
			return fmt.Errorf("force mode %s: %w", id, workflow.ErrAlreadyStarted)
		}
		if task.Status.Terminal() {
			return fmt.Errorf("force mode %s: %w", id, workflow.ErrTerminal)
		}
		task.Mode = mode
		task.Dimension = dim
		task.UpdatedAt = time.Now()
		return nil
	})
}

// ReportPhase is the resumption point: the executor (or an external caller
// correcting a blocked phase) hands back the result for the current phase.
// A mismatched phase tag is an executor fault and fails the task.
func (e *Engine) ReportPhase(ctx context.Context, id string, result workflow.PhaseResult) (*workflow.Task, error) {
	ctx, span := e.tracer.Start(ctx, "engine.report_phase")
	defer span.End()
	span.SetAttributes(
		attribute.String("task_id", id),
		attribute.String("phase", string(result.Phase)),
	)

	var advanceErr error
	err := e.withTask(ctx, id, func(task *workflow.Task) error {
		before := struct {
			escalations int
			status      workflow.TaskStatus
		}{len(task.EscalationLog), task.Status}

		advanceErr = e.orch.Advance(ctx, task, result)
		if errors.Is(advanceErr, workflow.ErrPhaseMismatch) {
			// Mismatched tags are infrastructure faults; the reason is
			// preserved verbatim on the task record.
			return e.orch.Abort(ctx, task, advanceErr.Error())
		}
		if advanceErr != nil {
			return advanceErr
		}

		if len(task.EscalationLog) > before.escalations && e.escalationCounter != nil {
			e.escalationCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("to_level", task.Level.String()),
			))
		}
		if task.Status == workflow.StatusBlocked && before.status != workflow.StatusBlocked && e.blockedCounter != nil {
			e.blockedCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("phase", string(result.Phase)),
			))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if advanceErr != nil {
		// The task was aborted for a phase mismatch; surface the fault.
		return nil, advanceErr
	}
	return e.GetStatus(ctx, id)
}

// AbortTask forcibly fails the task. Idempotent: aborting an already
// terminal task is a no-op.
func (e *Engine) AbortTask(ctx context.Context, id string, reason string) error {
	ctx, span := e.tracer.Start(ctx, "engine.abort_task")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", id))

	return e.withTask(ctx, id, func(task *workflow.Task) error {
		return e.orch.Abort(ctx, task, reason)
	})
}

// Run drives the configured executor through the task's phases until the
// task blocks, fails, or completes. It is the synchronous convenience over
// the ReportPhase resumption loop.
func (e *Engine) Run(ctx context.Context, id string) (*workflow.Task, error) {
	if e.executor == nil {
		return nil, errors.New("no executor configured")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task, err := e.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Status != workflow.StatusRunning {
			return task, nil
		}
		phase, ok := task.CurrentPhase()
		if !ok {
			return task, nil
		}

		result, err := e.executor.Execute(ctx, task.ID, phase, workflow.ExecutionContext{
			Description:  task.Description,
			Level:        task.Level,
			Mode:         task.Mode,
			Dimension:    task.Dimension,
			Attempt:      task.Attempts,
			PriorResults: task.History,
		})
		if err != nil {
			// Executor faults are unrecoverable for the task.
			abortErr := e.AbortTask(ctx, id, fmt.Sprintf("executor fault at %s: %v", phase, err))
			if abortErr != nil {
				return nil, abortErr
			}
			return e.GetStatus(ctx, id)
		}

		if _, err := e.ReportPhase(ctx, id, result); err != nil {
			return nil, err
		}
	}
}

// Close closes the engine. In-flight transitions complete; new calls fail.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return nil
}

func (e *Engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("engine is closed")
	}
	return nil
}

// acquire marks the task as having a transition in flight. Calls on a busy
// task are rejected synchronously rather than interleaved.
func (e *Engine) acquire(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("engine is closed")
	}
	if e.inflight[id] {
		return fmt.Errorf("task %s: %w", id, workflow.ErrConcurrentTransition)
	}
	e.inflight[id] = true
	return nil
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}

// withTask serializes one transition on the task: load, mutate, persist,
// archive at terminal status. When fn fails the task is not persisted and
// its stored state is unchanged.
func (e *Engine) withTask(ctx context.Context, id string, fn func(task *workflow.Task) error) error {
	if err := e.acquire(id); err != nil {
		return err
	}
	defer e.release(id)

	task, err := e.store.Load(ctx, id)
	if err != nil {
		return err
	}
	wasArchived := task.Archived
	priorEscalations := len(task.EscalationLog)

	if err := fn(task); err != nil {
		return err
	}

	if wasArchived {
		// Terminal no-ops (repeat aborts) must not touch the archive.
		return nil
	}
	// Escalation events are journaled individually before the snapshot so a
	// crash mid-transition never loses a recorded level change.
	for _, ev := range task.EscalationLog[priorEscalations:] {
		if err := e.store.AppendEscalation(ctx, id, ev); err != nil {
			return fmt.Errorf("append escalation %s: %w", id, err)
		}
	}
	if err := e.store.Save(ctx, task); err != nil {
		return err
	}
	if task.Status.Terminal() {
		if err := e.store.Archive(ctx, task); err != nil {
			return fmt.Errorf("archive task %s: %w", id, err)
		}
		if e.completedCounter != nil {
			e.completedCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("status", string(task.Status)),
			))
		}
	}
	return nil
}

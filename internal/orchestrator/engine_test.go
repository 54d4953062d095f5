package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowd/internal/store"
	"github.com/fyrsmithlabs/workflowd/internal/workflow"
)

// fixedClassifier always returns the same classification.
type fixedClassifier struct {
	level       workflow.ComplexityLevel
	needsDesign bool
}

func (c fixedClassifier) Classify(context.Context, string, int) (workflow.Classification, error) {
	return workflow.Classification{Level: c.level, NeedsDesign: c.needsDesign, Score: int(c.level)}, nil
}

// failingClassifier always errors.
type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, string, int) (workflow.Classification, error) {
	return workflow.Classification{}, errors.New("model unavailable")
}

// scriptedExecutor returns canned results keyed by phase.
type scriptedExecutor struct {
	results map[workflow.Phase]workflow.PhaseResult
	err     error
}

func (e *scriptedExecutor) Execute(_ context.Context, _ string, phase workflow.Phase, _ workflow.ExecutionContext) (workflow.PhaseResult, error) {
	if e.err != nil {
		return workflow.PhaseResult{}, e.err
	}
	if r, ok := e.results[phase]; ok {
		r.Phase = phase
		return r, nil
	}
	return workflow.PhaseResult{Phase: phase, Succeeded: true}, nil
}

func newTestEngine(t *testing.T, cfg *Config, classifier workflow.Classifier, executor workflow.Executor) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, classifier, executor, store.NewMemoryStore(), nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine(nil, nil, nil, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestEngine_SubmitTask_AutoStarts(t *testing.T) {
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level2}, nil)

	task, err := e.SubmitTask(context.Background(), &SubmitRequest{Description: "add rate limiting"})
	require.NoError(t, err)

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, workflow.Level2, task.Level)
	assert.Equal(t, workflow.ModeStandard, task.Mode)
	assert.True(t, task.Started)
	assert.Equal(t, workflow.StatusRunning, task.Status)
	assert.Equal(t, []workflow.Phase{
		workflow.PhaseAnalyze, workflow.PhasePlan, workflow.PhaseImplement,
		workflow.PhaseReview, workflow.PhaseArchive,
	}, task.Plan)
}

func TestEngine_SubmitTask_ClassificationFailureFailsSubmission(t *testing.T) {
	e := newTestEngine(t, nil, failingClassifier{}, nil)

	_, err := e.SubmitTask(context.Background(), &SubmitRequest{Description: "anything"})
	assert.ErrorIs(t, err, workflow.ErrClassification)

	tasks, listErr := e.ListTasks(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, tasks, "no task record is created on classification failure")
}

func TestEngine_SubmitTask_ModeValidation(t *testing.T) {
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level1}, nil)

	_, err := e.SubmitTask(context.Background(), &SubmitRequest{
		Description: "x", Mode: workflow.ModeSingleFocus,
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidMode, "single-focus without dimension")

	_, err = e.SubmitTask(context.Background(), &SubmitRequest{
		Description: "x", Mode: workflow.ModeStandard, Dimension: workflow.FocusTesting,
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidMode, "dimension outside single-focus")
}

func TestEngine_ForceMode_BeforeStartOnly(t *testing.T) {
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level2}, nil)
	ctx := context.Background()

	held, err := e.SubmitTask(ctx, &SubmitRequest{Description: "tighten up tests", Hold: true})
	require.NoError(t, err)
	require.False(t, held.Started)

	require.NoError(t, e.ForceMode(ctx, held.ID, workflow.ModeSingleFocus, workflow.FocusTesting))
	require.NoError(t, e.StartTask(ctx, held.ID))

	task, err := e.GetStatus(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.ModeSingleFocus, task.Mode)
	assert.Equal(t, []workflow.Phase{workflow.PhaseAnalyze, workflow.PhaseImplement, workflow.PhaseReview}, task.Plan)

	// Once started, the mode is locked in.
	err = e.ForceMode(ctx, held.ID, workflow.ModeStandard, "")
	assert.ErrorIs(t, err, workflow.ErrAlreadyStarted)
}

func TestEngine_ReportPhase_DrivesTaskToCompletion(t *testing.T) {
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level1}, nil)
	ctx := context.Background()

	task, err := e.SubmitTask(ctx, &SubmitRequest{Description: "small fix"})
	require.NoError(t, err)

	results := []workflow.PhaseResult{
		{Phase: workflow.PhaseAnalyze, Succeeded: true},
		{Phase: workflow.PhaseImplement, Succeeded: true,
			Metrics: map[string]float64{workflow.MetricCoverage: 95, workflow.MetricComplexity: 2}},
		{Phase: workflow.PhaseReview, Succeeded: true,
			Metrics: map[string]float64{workflow.MetricCoverage: 95, workflow.MetricComplexity: 2}},
	}
	for _, r := range results {
		task, err = e.ReportPhase(ctx, task.ID, r)
		require.NoError(t, err)
	}

	assert.Equal(t, workflow.StatusCompleted, task.Status)
	assert.True(t, task.Archived, "terminal tasks are archived")
	assert.Len(t, task.History, 3)
}

// journalingStore records escalation appends made through the store API.
type journalingStore struct {
	store.Store
	appended []workflow.EscalationEvent
}

func (s *journalingStore) AppendEscalation(ctx context.Context, id string, ev workflow.EscalationEvent) error {
	s.appended = append(s.appended, ev)
	return s.Store.AppendEscalation(ctx, id, ev)
}

func TestEngine_ReportPhase_JournalsEscalationEvents(t *testing.T) {
	js := &journalingStore{Store: store.NewMemoryStore()}
	e, err := NewEngine(nil, fixedClassifier{level: workflow.Level2}, nil, js, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	ctx := context.Background()

	task, err := e.SubmitTask(ctx, &SubmitRequest{Description: "add rate limiting"})
	require.NoError(t, err)

	task, err = e.ReportPhase(ctx, task.ID, workflow.PhaseResult{
		Phase: workflow.PhaseAnalyze, Succeeded: true,
	})
	require.NoError(t, err)
	assert.Empty(t, js.appended, "no escalation yet")

	task, err = e.ReportPhase(ctx, task.ID, workflow.PhaseResult{
		Phase: workflow.PhasePlan, Succeeded: true,
		Checks: map[string]bool{workflow.CheckArchitectureReview: false},
	})
	require.NoError(t, err)

	require.Len(t, js.appended, 1)
	assert.Equal(t, workflow.Level2, js.appended[0].FromLevel)
	assert.Equal(t, workflow.Level3, js.appended[0].ToLevel)
	require.Len(t, task.EscalationLog, 1, "journal and snapshot agree")
}

func TestEngine_ReportPhase_MismatchAbortsTask(t *testing.T) {
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level1}, nil)
	ctx := context.Background()

	task, err := e.SubmitTask(ctx, &SubmitRequest{Description: "small fix"})
	require.NoError(t, err)

	_, err = e.ReportPhase(ctx, task.ID, workflow.PhaseResult{
		Phase: workflow.PhaseReview, Succeeded: true,
	})
	assert.ErrorIs(t, err, workflow.ErrPhaseMismatch)

	got, err := e.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, got.Status)
	assert.Contains(t, got.StatusReason, "review")
}

func TestEngine_ReportPhase_UnknownTask(t *testing.T) {
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level1}, nil)

	_, err := e.ReportPhase(context.Background(), "missing", workflow.PhaseResult{
		Phase: workflow.PhaseAnalyze, Succeeded: true,
	})
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestEngine_ConcurrentTransitionRejected(t *testing.T) {
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level1}, nil)
	ctx := context.Background()

	task, err := e.SubmitTask(ctx, &SubmitRequest{Description: "small fix"})
	require.NoError(t, err)

	// Simulate an in-flight transition on the task.
	require.NoError(t, e.acquire(task.ID))
	defer e.release(task.ID)

	_, err = e.ReportPhase(ctx, task.ID, workflow.PhaseResult{
		Phase: workflow.PhaseAnalyze, Succeeded: true,
	})
	assert.ErrorIs(t, err, workflow.ErrConcurrentTransition)

	// The stored record is untouched.
	got, statusErr := e.GetStatus(ctx, task.ID)
	require.NoError(t, statusErr)
	assert.Empty(t, got.History)
}

func TestEngine_AbortTask_Idempotent(t *testing.T) {
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level2}, nil)
	ctx := context.Background()

	task, err := e.SubmitTask(ctx, &SubmitRequest{Description: "abandon me"})
	require.NoError(t, err)

	require.NoError(t, e.AbortTask(ctx, task.ID, "operator cancelled"))
	require.NoError(t, e.AbortTask(ctx, task.ID, "again"))

	got, err := e.GetStatus(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, got.Status)
	assert.Equal(t, "operator cancelled", got.StatusReason)
	assert.True(t, got.Archived)
}

func TestEngine_Run_CompletesWithExecutor(t *testing.T) {
	good := map[string]float64{workflow.MetricCoverage: 95, workflow.MetricComplexity: 2}
	exec := &scriptedExecutor{results: map[workflow.Phase]workflow.PhaseResult{
		workflow.PhaseImplement: {Succeeded: true, Metrics: good},
		workflow.PhaseReview:    {Succeeded: true, Metrics: good},
	}}
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level1}, exec)
	ctx := context.Background()

	task, err := e.SubmitTask(ctx, &SubmitRequest{Description: "small fix"})
	require.NoError(t, err)

	final, err := e.Run(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, final.Status)
	assert.Len(t, final.History, 3)
}

func TestEngine_Run_ExecutorFaultAbortsTask(t *testing.T) {
	exec := &scriptedExecutor{err: errors.New("sandbox crashed")}
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level1}, exec)
	ctx := context.Background()

	task, err := e.SubmitTask(ctx, &SubmitRequest{Description: "small fix"})
	require.NoError(t, err)

	final, err := e.Run(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusFailed, final.Status)
	assert.Contains(t, final.StatusReason, "executor fault")
}

func TestEngine_Run_WithoutExecutor(t *testing.T) {
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level1}, nil)
	_, err := e.Run(context.Background(), "any")
	assert.Error(t, err)
}

func TestEngine_ClosedEngineRejectsCalls(t *testing.T) {
	e := newTestEngine(t, nil, fixedClassifier{level: workflow.Level1}, nil)
	require.NoError(t, e.Close())

	_, err := e.SubmitTask(context.Background(), &SubmitRequest{Description: "x"})
	assert.Error(t, err)
	_, err = e.GetStatus(context.Background(), "x")
	assert.Error(t, err)
}

// Package workflow defines the task workflow domain: complexity levels,
// phases, execution modes, workflow definitions, and quality gates.
// It ensures gated phase progression and level-appropriate quality thresholds.
package workflow

import (
	"fmt"
	"time"
)

// ComplexityLevel classifies a task's complexity. Levels are ordinal:
// L1 < L2 < L3 < L4. Higher levels run more phases and carry larger
// requirement sets.
type ComplexityLevel int

const (
	// Level1 covers trivial changes: no planning, no archival.
	Level1 ComplexityLevel = iota + 1
	// Level2 covers small features: planned and archived.
	Level2
	// Level3 covers features needing an explicit design phase.
	Level3
	// Level4 covers critical work: design plus mandatory audit requirements.
	Level4
)

// String implements fmt.Stringer.
func (l ComplexityLevel) String() string {
	switch l {
	case Level1:
		return "L1"
	case Level2:
		return "L2"
	case Level3:
		return "L3"
	case Level4:
		return "L4"
	default:
		return fmt.Sprintf("L?(%d)", int(l))
	}
}

// Valid reports whether the level is one of L1..L4.
func (l ComplexityLevel) Valid() bool {
	return l >= Level1 && l <= Level4
}

// ParseLevel parses "L1".."L4" into a ComplexityLevel.
func ParseLevel(s string) (ComplexityLevel, error) {
	switch s {
	case "L1":
		return Level1, nil
	case "L2":
		return Level2, nil
	case "L3":
		return Level3, nil
	case "L4":
		return Level4, nil
	default:
		return 0, fmt.Errorf("%w: unknown complexity level %q", ErrInvalidLevel, s)
	}
}

// RequiresArchive reports whether tasks at this level must end with an
// archive record. L1 is the only level without archival.
func (l ComplexityLevel) RequiresArchive() bool {
	return l > Level1
}

// RequiresDesign reports whether the standard plan for this level includes
// the design phase.
func (l ComplexityLevel) RequiresDesign() bool {
	return l >= Level3
}

// Phase is one named stage of work.
type Phase string

const (
	PhaseAnalyze   Phase = "analyze"
	PhasePlan      Phase = "plan"
	PhaseDesign    Phase = "design"
	PhaseImplement Phase = "implement"
	PhaseReview    Phase = "review"
	PhaseArchive   Phase = "archive"
)

// phaseOrder is the canonical ordering used to validate definitions and to
// splice newly required phases into an escalated plan.
var phaseOrder = map[Phase]int{
	PhaseAnalyze:   0,
	PhasePlan:      1,
	PhaseDesign:    2,
	PhaseImplement: 3,
	PhaseReview:    4,
	PhaseArchive:   5,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// Before reports whether p comes before other in canonical phase order.
func (p Phase) Before(other Phase) bool {
	return phaseOrder[p] < phaseOrder[other]
}

// ExecutionMode alters which phases a task is planned through.
type ExecutionMode string

const (
	// ModeStandard runs the fixed phase sequence for the task's level.
	ModeStandard ExecutionMode = "standard"
	// ModeFullAuto runs the standard sequence but decides design inclusion
	// once, at plan time, from the classifier's judgment.
	ModeFullAuto ExecutionMode = "full_auto"
	// ModeSingleFocus runs a short fixed sequence scoped to one quality
	// dimension, regardless of level.
	ModeSingleFocus ExecutionMode = "single_focus"
)

// Valid reports whether m is a known execution mode.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeStandard, ModeFullAuto, ModeSingleFocus:
		return true
	}
	return false
}

// FocusDimension selects the quality dimension for single-focus runs.
type FocusDimension string

const (
	FocusArchitecture  FocusDimension = "architecture"
	FocusTesting       FocusDimension = "testing"
	FocusRefactoring   FocusDimension = "refactoring"
	FocusDocumentation FocusDimension = "documentation"
	FocusSecurity      FocusDimension = "security"
	FocusPerformance   FocusDimension = "performance"
)

// Valid reports whether d is a known focus dimension.
func (d FocusDimension) Valid() bool {
	switch d {
	case FocusArchitecture, FocusTesting, FocusRefactoring,
		FocusDocumentation, FocusSecurity, FocusPerformance:
		return true
	}
	return false
}

// Definition is an ordered phase sequence planned for a level and mode.
type Definition struct {
	Level  ComplexityLevel `json:"level"`
	Mode   ExecutionMode   `json:"mode"`
	Phases []Phase         `json:"phases"`
}

// Validate checks the definition invariants: non-empty, starts with analyze,
// archive (if present) is last, phases are known and in canonical order.
func (d Definition) Validate() error {
	if len(d.Phases) == 0 {
		return fmt.Errorf("%w: empty phase sequence", ErrInvalidDefinition)
	}
	if d.Phases[0] != PhaseAnalyze {
		return fmt.Errorf("%w: sequence must start with %s, got %s",
			ErrInvalidDefinition, PhaseAnalyze, d.Phases[0])
	}
	for i, p := range d.Phases {
		if !p.Valid() {
			return fmt.Errorf("%w: unknown phase %q", ErrInvalidDefinition, p)
		}
		if p == PhaseArchive && i != len(d.Phases)-1 {
			return fmt.Errorf("%w: %s must be the final phase", ErrInvalidDefinition, PhaseArchive)
		}
		if i > 0 && !d.Phases[i-1].Before(p) {
			return fmt.Errorf("%w: %s cannot follow %s", ErrInvalidDefinition, p, d.Phases[i-1])
		}
	}
	return nil
}

// Artifact is an opaque reference to a work product from a phase.
type Artifact struct {
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
	Ref  string `json:"ref,omitempty"`
}

// PhaseResult captures the outcome of one phase execution. Metrics carry
// numeric measurements (coverage percent, cyclomatic complexity, duplication
// percent); Checks carry named boolean requirements (security_audit,
// architecture_review, ...).
type PhaseResult struct {
	Phase         Phase              `json:"phase"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	Checks        map[string]bool    `json:"checks,omitempty"`
	Artifacts     []Artifact         `json:"artifacts,omitempty"`
	Succeeded     bool               `json:"succeeded"`
	FailureReason string             `json:"failure_reason,omitempty"`

	// SuggestedLevel, when non-zero on an analyze or plan result, is the
	// executor's revised complexity estimate. The orchestrator only honors
	// downward revisions before implementation has started.
	SuggestedLevel ComplexityLevel `json:"suggested_level,omitempty"`

	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// TaskStatus is the externally visible lifecycle state of a task.
type TaskStatus string

const (
	StatusRunning   TaskStatus = "running"
	StatusBlocked   TaskStatus = "blocked"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EscalationEvent records one level change during a task's lifetime.
type EscalationEvent struct {
	FromLevel ComplexityLevel `json:"from_level"`
	ToLevel   ComplexityLevel `json:"to_level"`
	Reason    string          `json:"reason"`
	AtPhase   Phase           `json:"at_phase"`
	At        time.Time       `json:"at"`
}

// Task is the unit under orchestration. A task is created once, on
// classification, and mutated only through orchestrator transitions.
type Task struct {
	ID            string          `json:"id"`
	Description   string          `json:"description"`
	ScopeEstimate int             `json:"scope_estimate"`
	Level         ComplexityLevel `json:"level"`
	Mode          ExecutionMode   `json:"mode"`
	Dimension     FocusDimension  `json:"dimension,omitempty"`

	// NeedsDesign is the classifier's one-time judgment on whether
	// architectural decisions are necessary. Consulted by full-auto plans.
	NeedsDesign bool `json:"needs_design,omitempty"`

	Plan       []Phase `json:"plan,omitempty"`
	PhaseIndex int     `json:"phase_index"`
	Started    bool    `json:"started"`

	// Attempts counts executions of the current phase, including the
	// initial one. Reset on every phase advance.
	Attempts int `json:"attempts"`

	History       []PhaseResult     `json:"history,omitempty"`
	EscalationLog []EscalationEvent `json:"escalation_log,omitempty"`

	Status       TaskStatus `json:"status"`
	StatusReason string     `json:"status_reason,omitempty"`

	// Unmet is the full deficient-requirement set behind a blocked status.
	// Cleared when the task resumes.
	Unmet []string `json:"unmet,omitempty"`
	Archived     bool       `json:"archived,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CurrentPhase returns the phase the task is positioned at. ok is false when
// the task has not started or the plan is exhausted.
func (t *Task) CurrentPhase() (Phase, bool) {
	if !t.Started || t.PhaseIndex < 0 || t.PhaseIndex >= len(t.Plan) {
		return "", false
	}
	return t.Plan[t.PhaseIndex], true
}

// RemainingPhases returns the planned phases at and after the current one.
func (t *Task) RemainingPhases() []Phase {
	if t.PhaseIndex < 0 || t.PhaseIndex >= len(t.Plan) {
		return nil
	}
	out := make([]Phase, len(t.Plan)-t.PhaseIndex)
	copy(out, t.Plan[t.PhaseIndex:])
	return out
}

// ImplementStarted reports whether the implement phase has begun. Used to
// fence de-escalation, which is only legal at analyze/plan boundaries.
func (t *Task) ImplementStarted() bool {
	for _, r := range t.History {
		if r.Phase == PhaseImplement {
			return true
		}
	}
	if p, ok := t.CurrentPhase(); ok && !p.Before(PhaseImplement) && p != PhaseImplement {
		return true
	}
	if p, ok := t.CurrentPhase(); ok && p == PhaseImplement && t.Attempts > 0 {
		return true
	}
	return false
}

// Clone returns a deep copy of the task. Snapshots handed to callers must
// not alias orchestrator-owned state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Plan = append([]Phase(nil), t.Plan...)
	c.History = make([]PhaseResult, len(t.History))
	for i, r := range t.History {
		c.History[i] = clonePhaseResult(r)
	}
	c.EscalationLog = append([]EscalationEvent(nil), t.EscalationLog...)
	c.Unmet = append([]string(nil), t.Unmet...)
	return &c
}

func clonePhaseResult(r PhaseResult) PhaseResult {
	c := r
	if r.Metrics != nil {
		c.Metrics = make(map[string]float64, len(r.Metrics))
		for k, v := range r.Metrics {
			c.Metrics[k] = v
		}
	}
	if r.Checks != nil {
		c.Checks = make(map[string]bool, len(r.Checks))
		for k, v := range r.Checks {
			c.Checks[k] = v
		}
	}
	c.Artifacts = append([]Artifact(nil), r.Artifacts...)
	return c
}

package workflow

import "fmt"

// PlanRequest carries everything the planner needs to produce a definition.
type PlanRequest struct {
	Level ComplexityLevel
	Mode  ExecutionMode

	// Dimension is required for single-focus mode and must be empty
	// otherwise.
	Dimension FocusDimension

	// NeedsDesign is the classifier's judgment on whether architectural
	// decisions are necessary. Consulted only in full-auto mode, once, at
	// plan time.
	NeedsDesign bool
}

// Planner maps a complexity level and execution mode to an ordered phase
// sequence. The level/phase tables are static lookups; there is no per-level
// type hierarchy.
type Planner struct{}

// NewPlanner creates a planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// standardPlans is the fixed phase sequence per level in standard mode.
var standardPlans = map[ComplexityLevel][]Phase{
	Level1: {PhaseAnalyze, PhaseImplement, PhaseReview},
	Level2: {PhaseAnalyze, PhasePlan, PhaseImplement, PhaseReview, PhaseArchive},
	Level3: {PhaseAnalyze, PhasePlan, PhaseDesign, PhaseImplement, PhaseReview, PhaseArchive},
	Level4: {PhaseAnalyze, PhasePlan, PhaseDesign, PhaseImplement, PhaseReview, PhaseArchive},
}

// singleFocusPlan is the level-independent sequence for single-focus runs.
var singleFocusPlan = []Phase{PhaseAnalyze, PhaseImplement, PhaseReview}

// Plan returns the workflow definition for the request.
func (p *Planner) Plan(req PlanRequest) (Definition, error) {
	if !req.Level.Valid() {
		return Definition{}, fmt.Errorf("%w: %s", ErrInvalidLevel, req.Level)
	}
	if !req.Mode.Valid() {
		return Definition{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidMode, req.Mode)
	}
	if req.Mode == ModeSingleFocus && !req.Dimension.Valid() {
		return Definition{}, fmt.Errorf("%w: single-focus requires a dimension", ErrInvalidMode)
	}
	if req.Mode != ModeSingleFocus && req.Dimension != "" {
		return Definition{}, fmt.Errorf("%w: dimension %q given outside single-focus", ErrInvalidMode, req.Dimension)
	}

	var phases []Phase
	switch req.Mode {
	case ModeStandard:
		phases = standardPlans[req.Level]
	case ModeFullAuto:
		phases = standardPlans[req.Level]
		// Design inclusion is decided once, here. It is not revisited
		// mid-run except via escalation.
		if req.Level.RequiresDesign() && !req.NeedsDesign {
			phases = dropPhase(phases, PhaseDesign)
		}
	case ModeSingleFocus:
		phases = singleFocusPlan
	}

	def := Definition{
		Level:  req.Level,
		Mode:   req.Mode,
		Phases: append([]Phase(nil), phases...),
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Replan returns the phases a task should still run after a level change.
// Completed phases are never re-run; phases the new level requires that come
// after the task's position are spliced in canonical order.
func (p *Planner) Replan(task *Task, newLevel ComplexityLevel) ([]Phase, error) {
	req := PlanRequest{Level: newLevel, Mode: task.Mode, Dimension: task.Dimension, NeedsDesign: task.NeedsDesign}
	if task.Mode == ModeFullAuto {
		// An escalation overrides the plan-time design decision.
		req.NeedsDesign = true
	}
	def, err := p.Plan(req)
	if err != nil {
		return nil, err
	}

	if task.PhaseIndex <= 0 || task.PhaseIndex > len(task.Plan) {
		return def.Phases, nil
	}

	// Phases strictly before the task's position have passed their gates and
	// are never re-run. Everything the new level requires beyond the last
	// completed phase is spliced in canonical order.
	completed := task.Plan[:task.PhaseIndex]
	done := make(map[Phase]bool, len(completed))
	lastDone := completed[len(completed)-1]
	for _, ph := range completed {
		done[ph] = true
	}

	merged := append([]Phase(nil), completed...)
	for _, ph := range def.Phases {
		if done[ph] || !lastDone.Before(ph) {
			continue
		}
		merged = append(merged, ph)
	}
	return merged, nil
}

func dropPhase(phases []Phase, drop Phase) []Phase {
	out := make([]Phase, 0, len(phases))
	for _, p := range phases {
		if p != drop {
			out = append(out, p)
		}
	}
	return out
}

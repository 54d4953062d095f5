package workflow

import "sort"

// Metric names reported by phase executors.
const (
	MetricCoverage    = "coverage"
	MetricComplexity  = "complexity"
	MetricDuplication = "duplication"
)

// Requirement names surfaced in gate results. Numeric requirements map onto
// a metric; the rest are named boolean checks.
const (
	ReqCoverageMin    = "coverage_minimum"
	ReqComplexityMax  = "complexity_max"
	ReqDuplicationMax = "duplication_max"

	CheckArchitectureReview   = "architecture_review"
	CheckSecurityAudit        = "security_audit"
	CheckPerformanceBenchmark = "performance_benchmark"
	CheckTestIndependence     = "test_independence"
	CheckDocsComplete         = "docs_complete"
)

// Gate is the threshold set a phase's output must satisfy at a given level.
// A zero field means the requirement is not part of the gate.
type Gate struct {
	CoverageMin    float64  `json:"coverage_min,omitempty"`
	ComplexityMax  int      `json:"complexity_max,omitempty"`
	DuplicationMax float64  `json:"duplication_max,omitempty"`
	Extra          []string `json:"extra,omitempty"`
}

// GateTable maps (level, phase) to its gate. Phases without an entry have no
// gate at that level and pass trivially.
type GateTable map[ComplexityLevel]map[Phase]Gate

// DefaultGateTable returns the built-in threshold tables.
//
// Coverage minima are evaluated over the level's scope: L4's 90%, though
// numerically equal to L1's, covers a far larger change surface. Extra
// requirements grow strictly with level; design-produced checks
// (architecture_review) attach to the levels that run a design phase.
func DefaultGateTable() GateTable {
	return GateTable{
		Level1: {
			PhaseImplement: {CoverageMin: 90, ComplexityMax: 5, DuplicationMax: 5},
			PhaseReview:    {CoverageMin: 90, ComplexityMax: 5, DuplicationMax: 5},
		},
		Level2: {
			PhaseImplement: {CoverageMin: 75, ComplexityMax: 8, DuplicationMax: 5},
			PhaseReview:    {CoverageMin: 75, ComplexityMax: 8, DuplicationMax: 5},
		},
		Level3: {
			PhaseDesign:    {Extra: []string{CheckArchitectureReview}},
			PhaseImplement: {CoverageMin: 80, ComplexityMax: 10, DuplicationMax: 3},
			PhaseReview:    {CoverageMin: 80, ComplexityMax: 10, DuplicationMax: 3, Extra: []string{CheckArchitectureReview}},
		},
		Level4: {
			PhaseDesign:    {Extra: []string{CheckArchitectureReview}},
			PhaseImplement: {CoverageMin: 90, ComplexityMax: 10, DuplicationMax: 2, Extra: []string{CheckPerformanceBenchmark}},
			PhaseReview: {CoverageMin: 90, ComplexityMax: 10, DuplicationMax: 2,
				Extra: []string{CheckArchitectureReview, CheckPerformanceBenchmark, CheckSecurityAudit}},
		},
	}
}

// focusRequirements scopes single-focus evaluation to the requirement names
// relevant to each dimension.
var focusRequirements = map[FocusDimension][]string{
	FocusArchitecture:  {CheckArchitectureReview},
	FocusTesting:       {ReqCoverageMin, CheckTestIndependence},
	FocusRefactoring:   {ReqComplexityMax, ReqDuplicationMax},
	FocusDocumentation: {CheckDocsComplete},
	FocusSecurity:      {CheckSecurityAudit},
	FocusPerformance:   {CheckPerformanceBenchmark},
}

// GateResult is the outcome of one gate evaluation. Unmet lists every
// deficient requirement, never just the first.
type GateResult struct {
	Passed bool     `json:"passed"`
	Unmet  []string `json:"unmet,omitempty"`
}

// Evaluator decides pass/fail for phase results against the gate tables.
// Evaluation is a pure function of its inputs: no side effects, no hidden
// state, identical inputs always produce identical results.
type Evaluator struct {
	table GateTable
}

// NewEvaluator creates an evaluator. A nil table uses the defaults.
func NewEvaluator(table GateTable) *Evaluator {
	if table == nil {
		table = DefaultGateTable()
	}
	return &Evaluator{table: table}
}

// GateFor returns the gate for (level, phase), if one is defined.
func (e *Evaluator) GateFor(level ComplexityLevel, phase Phase) (Gate, bool) {
	phases, ok := e.table[level]
	if !ok {
		return Gate{}, false
	}
	g, ok := phases[phase]
	return g, ok
}

// Evaluate checks a phase result's metrics against the gate for
// (level, phase). Phases with no gate at the level pass trivially.
func (e *Evaluator) Evaluate(level ComplexityLevel, phase Phase, metrics map[string]float64, checks map[string]bool) GateResult {
	gate, ok := e.GateFor(level, phase)
	if !ok {
		return GateResult{Passed: true}
	}
	return evaluateGate(gate, metrics, checks)
}

// EvaluateFocused checks only the requirements belonging to the focus
// dimension. Numeric thresholds come from the level's gate for the phase;
// everything outside the dimension's scope is ignored, whatever the task's
// underlying level demands elsewhere. Phases with no gate at the level pass
// trivially, same as Evaluate.
func (e *Evaluator) EvaluateFocused(level ComplexityLevel, phase Phase, dim FocusDimension, metrics map[string]float64, checks map[string]bool) GateResult {
	levelGate, ok := e.GateFor(level, phase)
	if !ok {
		return GateResult{Passed: true}
	}
	scope, ok := focusRequirements[dim]
	if !ok {
		return GateResult{Passed: true}
	}

	gate := Gate{}
	for _, req := range scope {
		switch req {
		case ReqCoverageMin:
			gate.CoverageMin = levelGate.CoverageMin
		case ReqComplexityMax:
			gate.ComplexityMax = levelGate.ComplexityMax
		case ReqDuplicationMax:
			gate.DuplicationMax = levelGate.DuplicationMax
		default:
			gate.Extra = append(gate.Extra, req)
		}
	}
	return evaluateGate(gate, metrics, checks)
}

// RequiredAbove reports whether a boolean check becomes mandatory at a level
// above the given one. Such checks are escalation triggers: the current
// level has no phase or process that produces them, a higher level does.
func (e *Evaluator) RequiredAbove(level ComplexityLevel, check string) bool {
	for l := level + 1; l <= Level4; l++ {
		for _, gate := range e.table[l] {
			for _, name := range gate.Extra {
				if name == check {
					return true
				}
			}
		}
	}
	return false
}

// RequiredAt reports whether the check is already part of the level's own
// gates. Checks the current level owns are remediable in place and never
// escalate.
func (e *Evaluator) RequiredAt(level ComplexityLevel, check string) bool {
	for _, gate := range e.table[level] {
		for _, name := range gate.Extra {
			if name == check {
				return true
			}
		}
	}
	return false
}

func evaluateGate(gate Gate, metrics map[string]float64, checks map[string]bool) GateResult {
	var unmet []string

	if gate.CoverageMin > 0 {
		if v, ok := metrics[MetricCoverage]; !ok || v < gate.CoverageMin {
			unmet = append(unmet, ReqCoverageMin)
		}
	}
	if gate.ComplexityMax > 0 {
		if v, ok := metrics[MetricComplexity]; ok && v > float64(gate.ComplexityMax) {
			unmet = append(unmet, ReqComplexityMax)
		}
	}
	if gate.DuplicationMax > 0 {
		if v, ok := metrics[MetricDuplication]; ok && v > gate.DuplicationMax {
			unmet = append(unmet, ReqDuplicationMax)
		}
	}
	for _, name := range gate.Extra {
		if !checks[name] {
			unmet = append(unmet, name)
		}
	}

	sort.Strings(unmet)
	return GateResult{Passed: len(unmet) == 0, Unmet: unmet}
}

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_L1ImplementThresholds(t *testing.T) {
	e := NewEvaluator(nil)

	// Coverage 92 ≥ 90, complexity 3 ≤ 5: the gate passes.
	res := e.Evaluate(Level1, PhaseImplement, map[string]float64{
		MetricCoverage:   92,
		MetricComplexity: 3,
	}, nil)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Unmet)

	// Coverage 88 < 90 fails with the named requirement.
	res = e.Evaluate(Level1, PhaseImplement, map[string]float64{
		MetricCoverage:   88,
		MetricComplexity: 3,
	}, nil)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{ReqCoverageMin}, res.Unmet)
}

func TestEvaluator_CollectsAllUnmetRequirements(t *testing.T) {
	e := NewEvaluator(nil)

	res := e.Evaluate(Level4, PhaseReview, map[string]float64{
		MetricCoverage:    50,
		MetricComplexity:  20,
		MetricDuplication: 9,
	}, map[string]bool{
		CheckArchitectureReview:   true,
		CheckPerformanceBenchmark: false,
	})
	require.False(t, res.Passed)
	assert.Equal(t, []string{
		ReqComplexityMax,
		ReqCoverageMin,
		ReqDuplicationMax,
		CheckPerformanceBenchmark,
		CheckSecurityAudit,
	}, res.Unmet)
}

func TestEvaluator_MissingCoverageMetricIsUnmet(t *testing.T) {
	e := NewEvaluator(nil)

	res := e.Evaluate(Level2, PhaseImplement, map[string]float64{
		MetricComplexity: 2,
	}, nil)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Unmet, ReqCoverageMin)
}

func TestEvaluator_AbsentCeilingMetricsPass(t *testing.T) {
	e := NewEvaluator(nil)

	// Complexity and duplication are ceilings; a result that never measured
	// them is not penalized for the omission.
	res := e.Evaluate(Level2, PhaseImplement, map[string]float64{
		MetricCoverage: 80,
	}, nil)
	assert.True(t, res.Passed)
}

func TestEvaluator_UngatedPhasePassesTrivially(t *testing.T) {
	e := NewEvaluator(nil)

	res := e.Evaluate(Level1, PhaseAnalyze, nil, nil)
	assert.True(t, res.Passed)

	res = e.Evaluate(Level2, PhaseArchive, nil, nil)
	assert.True(t, res.Passed)
}

func TestEvaluator_IsPure(t *testing.T) {
	e := NewEvaluator(nil)
	metrics := map[string]float64{MetricCoverage: 70, MetricComplexity: 12}

	first := e.Evaluate(Level3, PhaseImplement, metrics, nil)
	for i := 0; i < 5; i++ {
		again := e.Evaluate(Level3, PhaseImplement, metrics, nil)
		assert.Equal(t, first, again)
	}
	// Inputs are never mutated.
	assert.Equal(t, float64(70), metrics[MetricCoverage])
}

func TestEvaluator_DesignGateRequiresArchitectureReview(t *testing.T) {
	e := NewEvaluator(nil)

	res := e.Evaluate(Level3, PhaseDesign, nil, map[string]bool{CheckArchitectureReview: false})
	assert.False(t, res.Passed)
	assert.Equal(t, []string{CheckArchitectureReview}, res.Unmet)

	res = e.Evaluate(Level3, PhaseDesign, nil, map[string]bool{CheckArchitectureReview: true})
	assert.True(t, res.Passed)
}

func TestEvaluator_EvaluateFocused_ScopesToDimension(t *testing.T) {
	e := NewEvaluator(nil)

	// Testing focus on an L3 task: coverage comes from the L3 gate, but the
	// architecture review the full L3 review gate demands is out of scope.
	res := e.EvaluateFocused(Level3, PhaseReview, FocusTesting, map[string]float64{
		MetricCoverage: 85,
	}, map[string]bool{
		CheckTestIndependence:   true,
		CheckArchitectureReview: false,
	})
	assert.True(t, res.Passed)

	res = e.EvaluateFocused(Level3, PhaseReview, FocusTesting, map[string]float64{
		MetricCoverage: 60,
	}, map[string]bool{
		CheckTestIndependence: true,
	})
	assert.False(t, res.Passed)
	assert.Equal(t, []string{ReqCoverageMin}, res.Unmet)
}

func TestEvaluator_EvaluateFocused_UngatedPhasePasses(t *testing.T) {
	e := NewEvaluator(nil)

	// Analyze and plan carry no gate at any level; a result with no metrics
	// or checks must pass under a focus dimension just as it does without one.
	for _, phase := range []Phase{PhaseAnalyze, PhasePlan} {
		res := e.EvaluateFocused(Level4, phase, FocusTesting, nil, nil)
		assert.True(t, res.Passed, "phase %s should have no gate", phase)
		assert.Empty(t, res.Unmet)
	}

	// The dimension's own checks still apply at gated phases.
	res := e.EvaluateFocused(Level4, PhaseReview, FocusTesting, map[string]float64{
		MetricCoverage: 95,
	}, nil)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{CheckTestIndependence}, res.Unmet)
}

func TestEvaluator_EvaluateFocused_RefactoringIgnoresCoverage(t *testing.T) {
	e := NewEvaluator(nil)

	res := e.EvaluateFocused(Level2, PhaseImplement, FocusRefactoring, map[string]float64{
		MetricComplexity:  4,
		MetricDuplication: 2,
	}, nil)
	assert.True(t, res.Passed, "coverage is out of scope for the refactoring dimension")
}

func TestEvaluator_RequiredAboveAndAt(t *testing.T) {
	e := NewEvaluator(nil)

	// architecture_review enters the tables at L3.
	assert.True(t, e.RequiredAbove(Level2, CheckArchitectureReview))
	assert.False(t, e.RequiredAt(Level2, CheckArchitectureReview))
	assert.True(t, e.RequiredAt(Level3, CheckArchitectureReview))

	// security_audit is L4-only.
	assert.True(t, e.RequiredAbove(Level3, CheckSecurityAudit))
	assert.False(t, e.RequiredAt(Level3, CheckSecurityAudit))
	assert.True(t, e.RequiredAt(Level4, CheckSecurityAudit))
	assert.False(t, e.RequiredAbove(Level4, CheckSecurityAudit))
}

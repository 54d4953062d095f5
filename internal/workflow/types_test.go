package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    ComplexityLevel
		wantErr bool
	}{
		{"L1", Level1, false},
		{"L2", Level2, false},
		{"L3", Level3, false},
		{"L4", Level4, false},
		{"l2", 0, true},
		{"L5", 0, true},
		{"", 0, true},
		{"quick", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidLevel, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestComplexityLevel_String(t *testing.T) {
	assert.Equal(t, "L1", Level1.String())
	assert.Equal(t, "L4", Level4.String())
}

func TestComplexityLevel_RequiresArchive(t *testing.T) {
	assert.False(t, Level1.RequiresArchive())
	assert.True(t, Level2.RequiresArchive())
	assert.True(t, Level3.RequiresArchive())
	assert.True(t, Level4.RequiresArchive())
}

func TestComplexityLevel_RequiresDesign(t *testing.T) {
	assert.False(t, Level1.RequiresDesign())
	assert.False(t, Level2.RequiresDesign())
	assert.True(t, Level3.RequiresDesign())
	assert.True(t, Level4.RequiresDesign())
}

func TestPhase_Before(t *testing.T) {
	assert.True(t, PhaseAnalyze.Before(PhasePlan))
	assert.True(t, PhaseDesign.Before(PhaseImplement))
	assert.True(t, PhaseReview.Before(PhaseArchive))
	assert.False(t, PhaseArchive.Before(PhaseReview))
	assert.False(t, PhasePlan.Before(PhasePlan))
}

func TestDefinition_Validate(t *testing.T) {
	valid := Definition{
		Level:  Level2,
		Mode:   ModeStandard,
		Phases: []Phase{PhaseAnalyze, PhasePlan, PhaseImplement, PhaseReview, PhaseArchive},
	}
	require.NoError(t, valid.Validate())
}

func TestDefinition_Validate_Invariants(t *testing.T) {
	tests := []struct {
		name   string
		phases []Phase
	}{
		{"empty", nil},
		{"does not start with analyze", []Phase{PhasePlan, PhaseImplement}},
		{"archive not last", []Phase{PhaseAnalyze, PhaseArchive, PhaseReview}},
		{"out of canonical order", []Phase{PhaseAnalyze, PhaseImplement, PhasePlan}},
		{"duplicate phase", []Phase{PhaseAnalyze, PhaseImplement, PhaseImplement}},
		{"unknown phase", []Phase{PhaseAnalyze, Phase("deploy")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Definition{Level: Level2, Mode: ModeStandard, Phases: tt.phases}
			assert.ErrorIs(t, d.Validate(), ErrInvalidDefinition)
		})
	}
}

func TestTask_CurrentPhase(t *testing.T) {
	task := &Task{
		Plan:       []Phase{PhaseAnalyze, PhaseImplement, PhaseReview},
		PhaseIndex: 1,
		Started:    true,
	}
	phase, ok := task.CurrentPhase()
	require.True(t, ok)
	assert.Equal(t, PhaseImplement, phase)

	task.PhaseIndex = 3
	_, ok = task.CurrentPhase()
	assert.False(t, ok)
}

func TestTask_ImplementStarted(t *testing.T) {
	task := &Task{
		Plan:       []Phase{PhaseAnalyze, PhasePlan, PhaseImplement, PhaseReview},
		PhaseIndex: 1,
		Started:    true,
		Attempts:   1,
	}
	assert.False(t, task.ImplementStarted())

	task.PhaseIndex = 2
	assert.True(t, task.ImplementStarted())

	task.PhaseIndex = 3
	assert.True(t, task.ImplementStarted())
}

func TestTask_Clone_Independence(t *testing.T) {
	now := time.Now()
	task := &Task{
		ID:    "t1",
		Level: Level2,
		Plan:  []Phase{PhaseAnalyze, PhaseImplement},
		History: []PhaseResult{
			{Phase: PhaseAnalyze, Succeeded: true, Metrics: map[string]float64{MetricCoverage: 80}},
		},
		EscalationLog: []EscalationEvent{{FromLevel: Level1, ToLevel: Level2, At: now}},
		Unmet:         []string{ReqCoverageMin},
	}

	clone := task.Clone()
	clone.Plan[0] = PhaseReview
	clone.History[0].Metrics[MetricCoverage] = 10
	clone.EscalationLog[0].ToLevel = Level4
	clone.Unmet[0] = "other"

	assert.Equal(t, PhaseAnalyze, task.Plan[0])
	assert.Equal(t, float64(80), task.History[0].Metrics[MetricCoverage])
	assert.Equal(t, Level2, task.EscalationLog[0].ToLevel)
	assert.Equal(t, ReqCoverageMin, task.Unmet[0])
}

func TestTaskStatus_Terminal(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusBlocked.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

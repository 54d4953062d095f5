package workflow

import (
	"context"
	"fmt"
	"strings"
)

// Classification is the classifier's initial judgment on a task.
type Classification struct {
	Level ComplexityLevel `json:"level"`

	// NeedsDesign reports whether the task involves architectural decisions.
	// Full-auto plans consult it once, at plan time.
	NeedsDesign bool `json:"needs_design"`

	// Score is the raw 1-10 complexity score behind the level, kept for
	// status reporting.
	Score int `json:"score"`

	Reason string `json:"reason,omitempty"`
}

// Classifier assigns an initial complexity level from a task description and
// a scope estimate. Implementations must be idempotent for identical inputs;
// the orchestrator invokes it only at task creation.
type Classifier interface {
	Classify(ctx context.Context, description string, scopeEstimate int) (Classification, error)
}

// HeuristicClassifier is the built-in classifier: a deterministic keyword
// and scope scoring on a 1-10 scale mapped onto L1-L4. It stands in when no
// external classifier is wired.
type HeuristicClassifier struct{}

// NewHeuristicClassifier creates the built-in classifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// signalWeights score complexity-bearing terms in the description.
var signalWeights = []struct {
	term   string
	weight int
}{
	{"refactor", 2},
	{"architecture", 3},
	{"migration", 3},
	{"migrate", 3},
	{"redesign", 3},
	{"protocol", 2},
	{"concurrency", 2},
	{"concurrent", 2},
	{"distributed", 3},
	{"security", 2},
	{"performance", 2},
	{"breaking", 2},
	{"schema", 2},
	{"api", 1},
	{"integration", 1},
	{"typo", -3},
	{"comment", -2},
	{"rename", -2},
	{"doc", -1},
}

// designSignals mark tasks that involve architectural decisions.
var designSignals = []string{
	"architecture", "redesign", "migration", "migrate", "distributed",
	"protocol", "schema", "breaking",
}

// Classify scores the description and scope estimate into a level.
func (c *HeuristicClassifier) Classify(_ context.Context, description string, scopeEstimate int) (Classification, error) {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return Classification{}, fmt.Errorf("%w: empty description", ErrClassification)
	}
	if scopeEstimate < 0 {
		return Classification{}, fmt.Errorf("%w: negative scope estimate %d", ErrClassification, scopeEstimate)
	}

	lower := strings.ToLower(desc)

	score := 1
	for _, s := range signalWeights {
		if strings.Contains(lower, s.term) {
			score += s.weight
		}
	}

	// Scope estimate is the caller's guess at the number of touched files.
	switch {
	case scopeEstimate > 20:
		score += 4
	case scopeEstimate > 10:
		score += 3
	case scopeEstimate > 5:
		score += 2
	case scopeEstimate > 1:
		score++
	}

	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}

	var level ComplexityLevel
	switch {
	case score <= 2:
		level = Level1
	case score <= 5:
		level = Level2
	case score <= 8:
		level = Level3
	default:
		level = Level4
	}

	needsDesign := level.RequiresDesign()
	if !needsDesign {
		for _, sig := range designSignals {
			if strings.Contains(lower, sig) {
				needsDesign = true
				break
			}
		}
	}

	return Classification{
		Level:       level,
		NeedsDesign: needsDesign,
		Score:       score,
		Reason:      fmt.Sprintf("heuristic score %d for scope %d", score, scopeEstimate),
	}, nil
}

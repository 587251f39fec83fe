package gateway

import (
	"context"
	"math"
	"strings"

	"github.com/aschepis/backscratcher/gateway/llm"
	"github.com/aschepis/backscratcher/gateway/llm/ollama"
	"github.com/rs/zerolog"
)

// Classifier implementation names accepted by NewClassifier and the
// router.impl setting.
const (
	ClassifierHeuristic = "heuristic"
	ClassifierOllama    = "ollama"
)

// NewClassifier constructs the classifier selected by name. Unknown names
// fall back to the heuristic scorer so a typo in configuration degrades
// rather than disables routing.
func NewClassifier(name, ollamaModel string, logger zerolog.Logger) (llm.Classifier, error) {
	switch name {
	case ClassifierOllama:
		return ollama.NewClassifier(ollamaModel, logger)
	case ClassifierHeuristic, "":
		return NewHeuristicClassifier(), nil
	default:
		logger.Warn().Str("impl", name).Msg("Unknown classifier implementation, using heuristic")
		return NewHeuristicClassifier(), nil
	}
}

// complexity markers weighted by how strongly they predict a request that
// needs a capable model. Plain lexical scoring; deliberately cheap since it
// runs inside the router's latency budget.
var complexityMarkers = map[string]float64{
	"```":          0.15,
	"stack trace":  0.15,
	"refactor":     0.12,
	"architecture": 0.12,
	"concurren":    0.12,
	"race conditi": 0.12,
	"algorithm":    0.10,
	"prove":        0.08,
	"debug":        0.08,
	"analyze":      0.08,
	"implement":    0.08,
	"schema":       0.06,
	"step by step": 0.06,
	"why":          0.03,
}

var simplicityMarkers = map[string]float64{
	"summarize": 0.12,
	"translate": 0.12,
	"rewrite":   0.10,
	"what is":   0.08,
	"what's":    0.08,
	"one line":  0.08,
	"one-line":  0.08,
	"shorter":   0.06,
	"list":      0.04,
}

// HeuristicClassifier scores prompts from lexical and structural signals
// alone. It needs no external model, is always Ready, and serves as the
// default when no trained backend is configured.
type HeuristicClassifier struct{}

// NewHeuristicClassifier creates a heuristic classifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// Load implements llm.Classifier.Load. Nothing to load.
func (c *HeuristicClassifier) Load(ctx context.Context) error {
	return nil
}

// Ready implements llm.Classifier.Ready.
func (c *HeuristicClassifier) Ready() bool {
	return true
}

// Score implements llm.Classifier.Score.
func (c *HeuristicClassifier) Score(ctx context.Context, text string) (float64, error) {
	lower := strings.ToLower(text)
	score := 0.5

	for marker, weight := range complexityMarkers {
		if strings.Contains(lower, marker) {
			score += weight
		}
	}
	for marker, weight := range simplicityMarkers {
		if strings.Contains(lower, marker) {
			score -= weight
		}
	}

	// Long prompts trend complex, very short ones trend simple.
	switch n := len(text); {
	case n > 2000:
		score += 0.10
	case n < 80:
		score -= 0.10
	}

	return math.Max(0, math.Min(1, score)), nil
}

var _ llm.Classifier = (*HeuristicClassifier)(nil)

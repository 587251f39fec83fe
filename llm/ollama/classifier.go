package ollama

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/aschepis/backscratcher/gateway/llm"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// DefaultEmbedModel is the embedding model used when none is configured.
const DefaultEmbedModel = "mxbai-embed-large"

// Probe prompts embedded at Load time. A request's score is how much closer
// its embedding sits to the complex centroid than to the simple one.
var (
	complexProbes = []string{
		"Refactor this concurrent data pipeline to remove the race condition and prove the fix is correct.",
		"Design a database schema and migration plan for a multi-tenant billing system with audit history.",
		"Analyze this stack trace and the attached heap profile, then explain the root cause of the memory leak.",
	}
	simpleProbes = []string{
		"What's the capital of France?",
		"Rewrite this sentence to be more polite.",
		"Give me a one-line summary of this paragraph.",
	}
)

// Classifier scores prompts using embeddings from a local Ollama model.
// It satisfies llm.Classifier; Load embeds the probe prompts once and the
// classifier reports Ready only after that succeeds.
type Classifier struct {
	client *api.Client
	model  string
	logger zerolog.Logger

	mu            sync.RWMutex
	complexCenter []float32
	simpleCenter  []float32
	loaded        bool
}

// NewClassifier creates an Ollama-backed classifier. The client is built
// from the environment (OLLAMA_HOST) the same way the embedder tooling does.
func NewClassifier(model string, logger zerolog.Logger) (*Classifier, error) {
	cli, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = DefaultEmbedModel
	}
	return &Classifier{
		client: cli,
		model:  model,
		logger: logger.With().Str("component", "ollamaClassifier").Logger(),
	}, nil
}

// Load implements llm.Classifier.Load.
func (c *Classifier) Load(ctx context.Context) error {
	complexCenter, err := c.centroid(ctx, complexProbes)
	if err != nil {
		return fmt.Errorf("failed to embed complex probes: %w", err)
	}
	simpleCenter, err := c.centroid(ctx, simpleProbes)
	if err != nil {
		return fmt.Errorf("failed to embed simple probes: %w", err)
	}

	c.mu.Lock()
	c.complexCenter = complexCenter
	c.simpleCenter = simpleCenter
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info().Str("model", c.model).Msg("Ollama classifier loaded")
	return nil
}

// Ready implements llm.Classifier.Ready.
func (c *Classifier) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Score implements llm.Classifier.Score.
func (c *Classifier) Score(ctx context.Context, text string) (float64, error) {
	c.mu.RLock()
	loaded := c.loaded
	complexCenter := c.complexCenter
	simpleCenter := c.simpleCenter
	c.mu.RUnlock()

	if !loaded {
		return 0, fmt.Errorf("classifier not loaded")
	}

	vec, err := c.embed(ctx, text)
	if err != nil {
		return 0, err
	}

	simComplex := cosineSimilarity(vec, complexCenter)
	simSimple := cosineSimilarity(vec, simpleCenter)

	// Fold the two similarities into a single [0,1] score. Equidistant
	// prompts land at 0.5, which the router treats as the uncertain middle.
	denom := math.Abs(simComplex) + math.Abs(simSimple)
	if denom == 0 {
		return 0.5, nil
	}
	score := 0.5 + (simComplex-simSimple)/(2*denom)
	return math.Max(0, math.Min(1, score)), nil
}

func (c *Classifier) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embed(ctx, &api.EmbedRequest{
		Model: c.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings in response")
	}
	return resp.Embeddings[0], nil
}

func (c *Classifier) centroid(ctx context.Context, probes []string) ([]float32, error) {
	var center []float32
	for _, probe := range probes {
		vec, err := c.embed(ctx, probe)
		if err != nil {
			return nil, err
		}
		if center == nil {
			center = make([]float32, len(vec))
		}
		for i := range vec {
			center[i] += vec[i]
		}
	}
	for i := range center {
		center[i] /= float32(len(probes))
	}
	return center, nil
}

// cosineSimilarity between two equal-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Ensure Classifier implements llm.Classifier
var _ llm.Classifier = (*Classifier)(nil)

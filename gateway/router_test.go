package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aschepis/backscratcher/gateway/llm"
	"github.com/aschepis/backscratcher/gateway/settings"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeClassifier returns a fixed score, optionally after a delay or error.
type fakeClassifier struct {
	score  float64
	err    error
	delay  time.Duration
	loaded bool
	calls  int
}

func (f *fakeClassifier) Load(ctx context.Context) error { f.loaded = true; return nil }
func (f *fakeClassifier) Ready() bool                    { return f.loaded }

func (f *fakeClassifier) Score(ctx context.Context, text string) (float64, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.score, f.err
}

func newTestRouter(t *testing.T, classifier llm.Classifier) (*ContentRouter, *LogMetrics) {
	t.Helper()
	metrics := NewLogMetrics(zerolog.Nop())
	router := NewContentRouter(
		map[string]llm.Classifier{ClassifierHeuristic: classifier},
		ClassifierHeuristic,
		NewBreakerRegistry(BreakerConfig{}, zerolog.Nop()),
		settings.NewMemoryStore(zerolog.Nop()),
		metrics,
		zerolog.Nop(),
	)
	return router, metrics
}

func userMessages(texts ...string) []llm.Message {
	msgs := make([]llm.Message, 0, len(texts))
	for _, text := range texts {
		msgs = append(msgs, llm.NewTextMessage(llm.RoleUser, text))
	}
	return msgs
}

func TestRouteNonBalancedPassesThrough(t *testing.T) {
	classifier := &fakeClassifier{score: 0.9, loaded: true}
	router, _ := newTestRouter(t, classifier)
	ctx := context.Background()

	for _, tier := range []Tier{TierFast, TierPowerful} {
		got := router.Route(ctx, userMessages("anything"), "system", tier)
		require.Equal(t, tier, got)
	}
	require.Zero(t, classifier.calls, "classifier must not be invoked for non-balanced tiers")
}

func TestRouteUpgradesOnHighScore(t *testing.T) {
	router, metrics := newTestRouter(t, &fakeClassifier{score: 0.9, loaded: true})

	got := router.Route(context.Background(), userMessages("design a database"), "sys", TierBalanced)
	require.Equal(t, TierPowerful, got)
	require.Equal(t, uint64(1), metrics.DecisionCount(TierBalanced, TierPowerful))
}

func TestRouteDowngradesOnLowScore(t *testing.T) {
	router, _ := newTestRouter(t, &fakeClassifier{score: 0.1, loaded: true})

	got := router.Route(context.Background(), userMessages("what's 2+2"), "sys", TierBalanced)
	require.Equal(t, TierFast, got)
}

func TestRouteUncertainMiddleStaysBalanced(t *testing.T) {
	router, _ := newTestRouter(t, &fakeClassifier{score: 0.5, loaded: true})

	got := router.Route(context.Background(), userMessages("hmm"), "sys", TierBalanced)
	require.Equal(t, TierBalanced, got)
}

func TestRouteThresholdBoundaries(t *testing.T) {
	// score == upThreshold upgrades; score == downThreshold downgrades.
	router, _ := newTestRouter(t, &fakeClassifier{score: DefaultUpThreshold, loaded: true})
	require.Equal(t, TierPowerful,
		router.Route(context.Background(), userMessages("a"), "s", TierBalanced))

	router, _ = newTestRouter(t, &fakeClassifier{score: DefaultDownThreshold, loaded: true})
	require.Equal(t, TierFast,
		router.Route(context.Background(), userMessages("b"), "s", TierBalanced))
}

func TestRouteCachesDecision(t *testing.T) {
	classifier := &fakeClassifier{score: 0.9, loaded: true}
	router, _ := newTestRouter(t, classifier)
	ctx := context.Background()
	msgs := userMessages("please refactor this pipeline")

	first := router.Route(ctx, msgs, "sys", TierBalanced)
	second := router.Route(ctx, msgs, "sys", TierBalanced)

	require.Equal(t, first, second)
	require.Equal(t, 1, classifier.calls, "second identical call must hit the cache")
}

func TestRouteDistinctPromptsScoreSeparately(t *testing.T) {
	classifier := &fakeClassifier{score: 0.9, loaded: true}
	router, _ := newTestRouter(t, classifier)
	ctx := context.Background()

	router.Route(ctx, userMessages("prompt one"), "sys", TierBalanced)
	router.Route(ctx, userMessages("prompt two"), "sys", TierBalanced)
	require.Equal(t, 2, classifier.calls)
}

func TestRouteClassifierErrorKeepsTier(t *testing.T) {
	router, _ := newTestRouter(t, &fakeClassifier{err: errors.New("model crashed"), loaded: true})

	got := router.Route(context.Background(), userMessages("x"), "sys", TierBalanced)
	require.Equal(t, TierBalanced, got)
}

func TestRouteTimeoutKeepsTier(t *testing.T) {
	// Classifier takes far longer than the budget; the router must give up
	// and keep the current tier.
	router, _ := newTestRouter(t, &fakeClassifier{score: 0.9, delay: 500 * time.Millisecond, loaded: true})
	store := router.settings
	require.NoError(t, store.Set(context.Background(), settings.KeyRouterLatencyBudget, "10"))

	start := time.Now()
	got := router.Route(context.Background(), userMessages("slow"), "sys", TierBalanced)
	require.Equal(t, TierBalanced, got)
	require.Less(t, time.Since(start), 300*time.Millisecond, "timeout must bound the wait")
}

func TestRouteDisabledViaSettings(t *testing.T) {
	classifier := &fakeClassifier{score: 0.9, loaded: true}
	router, _ := newTestRouter(t, classifier)
	ctx := context.Background()
	require.NoError(t, router.settings.Set(ctx, settings.KeyRouterEnabled, "false"))

	got := router.Route(ctx, userMessages("anything"), "sys", TierBalanced)
	require.Equal(t, TierBalanced, got)
	require.Zero(t, classifier.calls)
}

func TestRouteNotReadyClassifierKeepsTier(t *testing.T) {
	classifier := &fakeClassifier{score: 0.9} // never loaded
	router, _ := newTestRouter(t, classifier)

	got := router.Route(context.Background(), userMessages("x"), "sys", TierBalanced)
	require.Equal(t, TierBalanced, got)
	require.Zero(t, classifier.calls)
}

func TestRouteBreakerOpensAfterRepeatedFailures(t *testing.T) {
	classifier := &fakeClassifier{err: errors.New("down"), loaded: true}
	router, _ := newTestRouter(t, classifier)
	ctx := context.Background()

	// Distinct prompts so the cache never short-circuits. After the failure
	// threshold the breaker stops invoking the classifier entirely.
	prompts := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, p := range prompts {
		got := router.Route(ctx, userMessages(p), "sys", TierBalanced)
		require.Equal(t, TierBalanced, got)
	}
	require.Equal(t, DefaultFailureThreshold, classifier.calls,
		"breaker should cut off classifier calls at the failure threshold")
}

func TestHeuristicClassifierScores(t *testing.T) {
	c := NewHeuristicClassifier()
	ctx := context.Background()

	complexScore, err := c.Score(ctx, "Refactor this concurrent pipeline, analyze the race condition, and prove the fix:\n```go\nfunc main() {}\n```")
	require.NoError(t, err)

	simpleScore, err := c.Score(ctx, "Summarize in one line.")
	require.NoError(t, err)

	require.Greater(t, complexScore, simpleScore)
	require.GreaterOrEqual(t, complexScore, 0.0)
	require.LessOrEqual(t, complexScore, 1.0)
	require.True(t, c.Ready())
}

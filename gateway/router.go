package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/aschepis/backscratcher/gateway/llm"
	"github.com/aschepis/backscratcher/gateway/settings"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// Router defaults. Thresholds and the latency budget are runtime-mutable
// through the settings store; the cache shape is fixed at construction.
const (
	DefaultUpThreshold   = 0.75
	DefaultDownThreshold = 0.30
	DefaultLatencyBudget = 50 * time.Millisecond
	DefaultCacheTTL      = 300 * time.Second
	DefaultCacheSize     = 1000

	// Fingerprint truncation bounds: enough text to characterize the
	// request without hashing entire conversations.
	fingerprintSystemLen  = 500
	fingerprintMessageLen = 1000
	fingerprintUserMsgs   = 2

	routerBreakerName = "content-router"
)

// ContentRouter refines a Balanced tier decision using a scoring classifier:
// confidently complex prompts upgrade to Powerful, confidently simple ones
// downgrade to Fast, and the uncertain middle stays put. It is strictly an
// optional refinement: any failure (timeout, open breaker, classifier error)
// leaves the current tier unchanged and never surfaces to the caller.
type ContentRouter struct {
	classifiers map[string]llm.Classifier
	defaultImpl string
	breaker     *CircuitBreaker
	cache       *expirable.LRU[string, Tier]
	settings    *settings.Store
	metrics     Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

// NewContentRouter creates a router over the given classifier
// implementations. defaultImpl names the classifier used when the
// router.impl setting is absent or names an unknown implementation.
func NewContentRouter(
	classifiers map[string]llm.Classifier,
	defaultImpl string,
	breakers *BreakerRegistry,
	store *settings.Store,
	metrics Metrics,
	logger zerolog.Logger,
) *ContentRouter {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &ContentRouter{
		classifiers: classifiers,
		defaultImpl: defaultImpl,
		breaker:     breakers.Get(routerBreakerName),
		cache:       expirable.NewLRU[string, Tier](DefaultCacheSize, nil, DefaultCacheTTL),
		settings:    store,
		metrics:     metrics,
		logger:      logger.With().Str("component", "contentRouter").Logger(),
		now:         time.Now,
	}
}

// Route returns the refined tier for the request. Only Balanced decisions
// are ever refined; every other tier passes through untouched.
func (r *ContentRouter) Route(ctx context.Context, messages []llm.Message, system string, current Tier) Tier {
	if current != TierBalanced {
		return current
	}
	if !r.settings.GetBool(ctx, settings.KeyRouterEnabled, true) {
		return current
	}

	classifier := r.pickClassifier(ctx)
	if classifier == nil || !classifier.Ready() {
		return current
	}

	text := routingText(messages, system)
	fp := fingerprint(text)

	if tier, ok := r.cache.Get(fp); ok {
		r.metrics.RecordRoutingDecision(current, tier)
		return tier
	}

	score, err := r.score(ctx, classifier, text)
	if err != nil {
		r.logger.Debug().Err(err).Msg("Classifier unavailable, keeping current tier")
		return current
	}

	up := r.settings.GetFloat(ctx, settings.KeyRouterUpThreshold, DefaultUpThreshold)
	down := r.settings.GetFloat(ctx, settings.KeyRouterDownThreshold, DefaultDownThreshold)

	tier := current
	switch {
	case score >= up:
		tier = TierPowerful
	case score <= down:
		tier = TierFast
	}

	// The uncertain middle is a decision too; caching it avoids re-scoring
	// the same prompt within the TTL window.
	r.cache.Add(fp, tier)
	r.metrics.RecordRoutingDecision(current, tier)

	if tier != current {
		r.logger.Info().
			Float64("score", score).
			Str("from_tier", string(current)).
			Str("to_tier", string(tier)).
			Msg("Content router changed tier")
	}
	return tier
}

// pickClassifier reads the implementation selector from settings at call
// time. Unknown names fall back to the default implementation.
func (r *ContentRouter) pickClassifier(ctx context.Context) llm.Classifier {
	name := r.settings.GetString(ctx, settings.KeyRouterImpl, r.defaultImpl)
	if c, ok := r.classifiers[name]; ok {
		return c
	}
	return r.classifiers[r.defaultImpl]
}

// score invokes the classifier through the breaker under the latency
// budget. The classifier runs on its own goroutine so a budget overrun
// abandons the result rather than blocking the request path; a timeout is
// recorded as a breaker failure like any other classifier error.
func (r *ContentRouter) score(ctx context.Context, classifier llm.Classifier, text string) (float64, error) {
	budget := r.settings.GetDurationMS(ctx, settings.KeyRouterLatencyBudget, DefaultLatencyBudget)

	start := r.now()
	defer func() {
		r.metrics.ObserveRoutingLatency(r.now().Sub(start))
	}()

	var score float64
	err := r.breaker.Call(ctx, func(ctx context.Context) error {
		scoreCtx, cancel := context.WithTimeout(ctx, budget)
		defer cancel()

		type result struct {
			score float64
			err   error
		}
		done := make(chan result, 1)
		go func() {
			s, err := classifier.Score(scoreCtx, text)
			done <- result{score: s, err: err}
		}()

		select {
		case res := <-done:
			if res.err != nil {
				return res.err
			}
			score = res.score
			return nil
		case <-scoreCtx.Done():
			return scoreCtx.Err()
		}
	})
	if err != nil {
		return 0, err
	}
	return score, nil
}

// routingText assembles the routing-relevant slice of the request: the
// truncated system prompt plus the last two user messages.
func routingText(messages []llm.Message, system string) string {
	text := truncate(system, fingerprintSystemLen)

	var userTexts []string
	for i := len(messages) - 1; i >= 0 && len(userTexts) < fingerprintUserMsgs; i-- {
		if messages[i].Role != llm.RoleUser {
			continue
		}
		var msgText string
		for _, block := range messages[i].Content {
			if block.Type == llm.ContentBlockTypeText {
				msgText += block.Text
			}
		}
		userTexts = append(userTexts, truncate(msgText, fingerprintMessageLen))
	}

	// Reverse back into conversation order.
	for i := len(userTexts) - 1; i >= 0; i-- {
		text += "\n" + userTexts[i]
	}
	return text
}

func fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

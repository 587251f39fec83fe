package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/gateway/llm"
	"github.com/aschepis/backscratcher/gateway/settings"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FallbackReason records why the client switched to the secondary provider.
// The reason determines how recovery works: rate limiting heals on a timer,
// credit exhaustion waits for an operator.
type FallbackReason string

const (
	FallbackNone            FallbackReason = "none"
	FallbackCreditExhausted FallbackReason = "credit_exhausted"
	FallbackRateLimited     FallbackReason = "rate_limited"
)

// Client defaults.
const (
	DefaultMaxRetries       = 3
	DefaultRecoveryInterval = 300 * time.Second

	retryBaseInterval = 2 * time.Second
	maxRetryInterval  = 30 * time.Second
)

// ClientConfig controls retry and fallback-recovery behavior.
type ClientConfig struct {
	MaxRetries       int
	RecoveryInterval time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = DefaultRecoveryInterval
	}
	return c
}

// LLMClient dispatches requests to the primary provider with retries and
// circuit breaking, falling back to the secondary provider when the primary
// is out of credits or persistently rate limited. A nil secondary disables
// fallback entirely; errors then propagate to the caller.
//
// Recovery back to the primary is asymmetric. Rate-limit fallback heals
// automatically after RecoveryInterval. Credit fallback persists the
// gateway.fallback_disabled flag and stays on the secondary until an
// operator clears that flag, which is checked on every call so clearing it
// out of process takes effect immediately.
type LLMClient struct {
	primary   llm.Provider
	secondary llm.Provider
	router    *ContentRouter
	breakers  *BreakerRegistry
	settings  *settings.Store
	config    ClientConfig
	logger    zerolog.Logger

	mu             sync.Mutex
	usingFallback  bool
	fallbackSince  time.Time
	fallbackReason FallbackReason

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLLMClient creates a client over the given providers. secondary and
// router may be nil.
func NewLLMClient(
	primary, secondary llm.Provider,
	router *ContentRouter,
	breakers *BreakerRegistry,
	store *settings.Store,
	config ClientConfig,
	logger zerolog.Logger,
) *LLMClient {
	return &LLMClient{
		primary:        primary,
		secondary:      secondary,
		router:         router,
		breakers:       breakers,
		settings:       store,
		config:         config.withDefaults(),
		logger:         logger.With().Str("component", "llmClient").Logger(),
		fallbackReason: FallbackNone,
		now:            time.Now,
		sleep:          sleepContext,
	}
}

// CreateMessage sends the request to the active provider, retrying transient
// failures and switching to the secondary provider when the active one is
// exhausted. The request's Model field may be a literal provider model id, a
// tier name, or "auto"; tier shorthands are resolved against whichever
// provider actually serves the call.
func (c *LLMClient) CreateMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	logger := c.logger.With().Str("request_id", uuid.NewString()).Logger()

	c.maybeRecover(ctx, logger)
	provider := c.activeProvider()

	if len(req.Tools) > 0 {
		if err := provider.ConvertTools(req.Tools); err != nil {
			return nil, llm.NewInvalidRequestError("invalid tool specification", http.StatusBadRequest, err)
		}
	}

	resolved := c.resolveRequest(ctx, provider, req)
	logger.Debug().
		Str("provider", provider.Name()).
		Str("model", resolved.Model).
		Msg("Dispatching request")

	resp, err := c.attempt(ctx, provider, resolved, logger)
	if err == nil {
		return resp, nil
	}

	reason := fallbackReasonFor(err)
	if reason == FallbackNone || c.secondary == nil || provider.Name() == c.secondary.Name() {
		return nil, err
	}

	c.enterFallback(ctx, reason, err, logger)

	if len(req.Tools) > 0 {
		if convErr := c.secondary.ConvertTools(req.Tools); convErr != nil {
			return nil, llm.NewInvalidRequestError("invalid tool specification", http.StatusBadRequest, convErr)
		}
	}

	// Re-resolve so tier shorthands map to the secondary's model table.
	fallbackReq := c.resolveRequest(ctx, c.secondary, req)
	logger.Info().
		Str("provider", c.secondary.Name()).
		Str("model", fallbackReq.Model).
		Str("reason", string(reason)).
		Msg("Retrying request on fallback provider")
	return c.attempt(ctx, c.secondary, fallbackReq, logger)
}

// FallbackStatus describes the client's current provider selection, for
// health logging.
type FallbackStatus struct {
	UsingFallback bool
	Since         time.Time
	Reason        FallbackReason
}

// FallbackStatus returns the current fallback state.
func (c *LLMClient) FallbackStatus() FallbackStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FallbackStatus{
		UsingFallback: c.usingFallback,
		Since:         c.fallbackSince,
		Reason:        c.fallbackReason,
	}
}

// attempt runs the request against one provider through its breaker,
// retrying transient failures with exponential backoff. Credit errors,
// open-breaker refusals, and non-retryable errors return immediately.
func (c *LLMClient) attempt(ctx context.Context, provider llm.Provider, req *llm.Request, logger zerolog.Logger) (*llm.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBaseInterval
	bo.Multiplier = 2
	bo.MaxInterval = maxRetryInterval
	// No jitter: the schedule is short and bounded, and deterministic waits
	// keep the retry curve predictable.
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	breaker := c.breakers.Get(provider.Name())

	for attempt := 0; ; attempt++ {
		var resp *llm.Response
		err := breaker.Call(ctx, func(ctx context.Context) error {
			r, callErr := provider.CreateMessage(ctx, req)
			if callErr != nil {
				return callErr
			}
			resp = r
			return nil
		})
		if err == nil {
			return resp, nil
		}
		if llm.IsCreditError(err) || llm.IsCircuitOpen(err) || !llm.IsRetryableError(err) {
			return nil, err
		}
		if attempt >= c.config.MaxRetries {
			logger.Warn().
				Err(err).
				Str("provider", provider.Name()).
				Int("attempts", attempt+1).
				Msg("Retries exhausted")
			return nil, err
		}

		wait := bo.NextBackOff()
		if ra := llm.ExtractRetryAfter(err); ra != nil && *ra > wait {
			wait = *ra
		}
		logger.Warn().
			Err(err).
			Str("provider", provider.Name()).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msg("Transient provider error, retrying")
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// resolveRequest returns a copy of req with tier shorthands resolved to the
// provider's concrete model, content routing applied, and reasoning effort
// defaulted for powerful-tier models on providers that accept it.
func (c *LLMClient) resolveRequest(ctx context.Context, provider llm.Provider, req *llm.Request) *llm.Request {
	resolved := *req

	if tier, ok := ParseTier(req.Model); ok || req.Model == "" {
		if tier == TierAuto {
			tier = DetectTier(req.MaxTokens, len(req.Tools), len(req.System))
		}
		if c.router != nil {
			tier = c.router.Route(ctx, req.Messages, req.System, tier)
		}
		resolved.Model = ModelForTier(provider.Name(), tier)
	}

	if resolved.ReasoningEffort == "" &&
		provider.SupportsReasoningEffort() &&
		resolved.Model == ModelForTier(provider.Name(), TierPowerful) {
		resolved.ReasoningEffort = "high"
	}
	return &resolved
}

// activeProvider returns the provider currently serving requests.
func (c *LLMClient) activeProvider() llm.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usingFallback && c.secondary != nil {
		return c.secondary
	}
	return c.primary
}

// maybeRecover switches back to the primary provider when the fallback
// reason's recovery condition holds.
func (c *LLMClient) maybeRecover(ctx context.Context, logger zerolog.Logger) {
	c.mu.Lock()
	if !c.usingFallback {
		c.mu.Unlock()
		return
	}
	reason := c.fallbackReason
	since := c.fallbackSince
	c.mu.Unlock()

	switch reason {
	case FallbackCreditExhausted:
		// Operator-gated: the flag is read from the store on every call so
		// an out-of-process delete is observed without a restart.
		if c.settings.GetBool(ctx, settings.KeyFallbackDisabled, false) {
			return
		}
	case FallbackRateLimited:
		if c.now().Sub(since) < c.config.RecoveryInterval {
			return
		}
	default:
		return
	}

	c.mu.Lock()
	c.usingFallback = false
	c.fallbackSince = time.Time{}
	c.fallbackReason = FallbackNone
	c.mu.Unlock()

	logger.Info().
		Str("reason", string(reason)).
		Str("provider", c.primary.Name()).
		Msg("Recovered to primary provider")
}

// enterFallback flips the client to the secondary provider. Credit
// exhaustion additionally persists the disabled flag so the decision
// survives restarts and stays until an operator clears it.
func (c *LLMClient) enterFallback(ctx context.Context, reason FallbackReason, cause error, logger zerolog.Logger) {
	c.mu.Lock()
	c.usingFallback = true
	c.fallbackSince = c.now()
	c.fallbackReason = reason
	c.mu.Unlock()

	if reason == FallbackCreditExhausted {
		if err := c.settings.Set(ctx, settings.KeyFallbackDisabled, "true"); err != nil {
			logger.Error().Err(err).Msg("Failed to persist fallback flag")
		}
	}

	logger.Warn().
		Err(cause).
		Str("reason", string(reason)).
		Str("from", c.primary.Name()).
		Str("to", c.secondary.Name()).
		Msg("Switched to fallback provider")
}

// fallbackReasonFor classifies an error into the fallback reason it would
// justify. Open breakers count as rate limiting: the primary is unhealthy
// and the secondary should absorb traffic until the breaker heals.
func fallbackReasonFor(err error) FallbackReason {
	switch {
	case llm.IsCreditError(err):
		return FallbackCreditExhausted
	case llm.IsCircuitOpen(err) || llm.IsRetryableError(err):
		return FallbackRateLimited
	default:
		return FallbackNone
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

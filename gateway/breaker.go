package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/gateway/llm"
	"github.com/rs/zerolog"
)

// BreakerState represents the circuit breaker state.
type BreakerState string

const (
	// StateClosed indicates normal operation.
	StateClosed BreakerState = "closed"
	// StateOpen indicates the breaker is rejecting calls.
	StateOpen BreakerState = "open"
	// StateHalfOpen indicates a bounded number of trial calls are permitted.
	StateHalfOpen BreakerState = "half_open"
)

// Breaker defaults, overridable per registry.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultBreakerTimeout   = 30 * time.Second
	DefaultHalfOpenMaxCalls = 3
)

// BreakerConfig controls thresholds for state transitions. Immutable once
// a breaker is constructed.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	HalfOpenMaxCalls int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultBreakerTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	return c
}

// CircuitBreaker tracks failures of one named external dependency and stops
// calling it for a cooldown period once it looks unhealthy. Many concurrent
// callers can share one instance; all state transitions happen under the
// mutex so counters are never lost.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	logger zerolog.Logger

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	successCount    int
	halfOpenCalls   int
	lastFailureTime time.Time

	now func() time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(name string, config BreakerConfig, logger zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:   name,
		config: config.withDefaults(),
		logger: logger.With().Str("component", "circuitBreaker").Str("breaker", name).Logger(),
		state:  StateClosed,
		now:    time.Now,
	}
}

// Name returns the breaker's identity key.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Call runs fn if the breaker admits the call and records the outcome.
// When the breaker refuses, fn is never invoked and the returned error
// satisfies llm.IsCircuitOpen, so callers can distinguish "breaker open"
// from "call failed". fn's own error propagates after being recorded.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.shouldAllow() {
		return llm.NewCircuitOpenError(cb.name)
	}

	err := fn(ctx)
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

// shouldAllow decides whether a call may proceed, performing the
// Open -> HalfOpen transition when the cooldown has elapsed. Admitted
// half-open calls are counted before execution so the bound holds under
// concurrency.
func (cb *CircuitBreaker) shouldAllow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.config.Timeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.halfOpenCalls = 1
		cb.successCount = 0
		cb.logger.Info().Msg("Circuit breaker half-open, admitting trial call")
		return true

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.config.HalfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true

	default:
		return false
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.successCount = 0
			cb.halfOpenCalls = 0
			cb.logger.Info().Msg("Circuit breaker closed after successful trial calls")
		}
	case StateClosed:
		// Successes slowly heal prior failures without fully resetting.
		if cb.failureCount > 0 {
			cb.failureCount--
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateHalfOpen:
		// A single half-open failure reopens immediately, no averaging.
		cb.state = StateOpen
		cb.logger.Warn().Msg("Circuit breaker reopened after half-open failure")
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.logger.Warn().
				Int("failure_count", cb.failureCount).
				Int("threshold", cb.config.FailureThreshold).
				Msg("Circuit breaker opened")
		}
	}
}

// BreakerRegistry owns one long-lived breaker per named dependency, created
// lazily on first use. It is an explicit object passed to whatever needs it
// rather than package-global state, so tests get fresh registries.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	config   BreakerConfig
	logger   zerolog.Logger
}

// NewBreakerRegistry creates a registry; config applies to every breaker it
// constructs.
func NewBreakerRegistry(config BreakerConfig, logger zerolog.Logger) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logger,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *BreakerRegistry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cb := NewCircuitBreaker(name, r.config, r.logger)
	r.breakers[name] = cb
	return cb
}

// Snapshot returns the current state of every breaker, for health logging.
func (r *BreakerRegistry) Snapshot() map[string]BreakerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]BreakerState, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = cb.State()
	}
	return states
}

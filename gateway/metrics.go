package gateway

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Metrics is the contract for routing telemetry: a counter of routing
// decisions labeled by (from, to) tier and a latency distribution for the
// classifier path. Implementations decide where the numbers go.
type Metrics interface {
	RecordRoutingDecision(from, to Tier)
	ObserveRoutingLatency(d time.Duration)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) RecordRoutingDecision(from, to Tier)   {}
func (NopMetrics) ObserveRoutingLatency(d time.Duration) {}

// LogMetrics keeps in-memory counters and logs at debug level. It is the
// default sink; a Prometheus-backed implementation can replace it without
// touching the router.
type LogMetrics struct {
	logger zerolog.Logger

	mu        sync.Mutex
	decisions map[string]uint64
	latencies uint64
	totalWait time.Duration
}

// NewLogMetrics creates a metrics sink that logs observations.
func NewLogMetrics(logger zerolog.Logger) *LogMetrics {
	return &LogMetrics{
		logger:    logger.With().Str("component", "routingMetrics").Logger(),
		decisions: make(map[string]uint64),
	}
}

// RecordRoutingDecision implements Metrics.RecordRoutingDecision.
func (m *LogMetrics) RecordRoutingDecision(from, to Tier) {
	key := fmt.Sprintf("%s->%s", from, to)

	m.mu.Lock()
	m.decisions[key]++
	count := m.decisions[key]
	m.mu.Unlock()

	m.logger.Debug().
		Str("from_tier", string(from)).
		Str("to_tier", string(to)).
		Uint64("count", count).
		Msg("Routing decision")
}

// ObserveRoutingLatency implements Metrics.ObserveRoutingLatency.
func (m *LogMetrics) ObserveRoutingLatency(d time.Duration) {
	m.mu.Lock()
	m.latencies++
	m.totalWait += d
	m.mu.Unlock()

	m.logger.Debug().Dur("latency", d).Msg("Routing latency")
}

// DecisionCount returns the number of recorded (from, to) decisions.
func (m *LogMetrics) DecisionCount(from, to Tier) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decisions[fmt.Sprintf("%s->%s", from, to)]
}

var (
	_ Metrics = NopMetrics{}
	_ Metrics = (*LogMetrics)(nil)
)

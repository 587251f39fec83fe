package llm

import (
	"context"
)

// Provider is the capability contract a backend must satisfy to serve
// gateway traffic. Implementations normalize request/response shapes and
// must return *Error values carrying an HTTP-status-like code and message
// so the gateway's retry/fallback classification can operate.
type Provider interface {
	// Name returns the stable provider identity ("anthropic", "openai", ...).
	Name() string

	// CreateMessage sends a request and returns a complete normalized response.
	CreateMessage(ctx context.Context, req *Request) (*Response, error)

	// ConvertTools validates that the given tool specs can be expressed in
	// the provider's native tool format. Called once per request before any
	// network round trip so malformed tools fail fast.
	ConvertTools(tools []ToolSpec) error

	// BuildAssistantMessage converts a normalized response back into a
	// conversation message, preserving tool-call id/name/arguments so the
	// history round-trips losslessly.
	BuildAssistantMessage(resp *Response) Message

	// BuildToolResultMessage builds the follow-up message carrying tool
	// results in the provider's expected shape.
	BuildToolResultMessage(results []ToolResultBlock) Message

	// SupportsReasoningEffort reports whether the provider accepts a
	// reasoning-effort parameter on its powerful-tier models.
	SupportsReasoningEffort() bool
}

// Classifier scores prompt text for content-aware tier routing. Scores are
// in [0,1]; higher means the prompt likely needs a more capable model.
//
// Absence of a classifier backend is a construction-time decision: Load is
// called once during wiring and a classifier that cannot load is simply not
// installed, it never fails at request time.
type Classifier interface {
	// Load prepares the classifier (model weights, remote client, ...).
	Load(ctx context.Context) error

	// Ready reports whether Score can be called.
	Ready() bool

	// Score returns a routing score for the given prompt text. It may be
	// CPU-bound or call out to a local model; callers bound it with a
	// context deadline.
	Score(ctx context.Context, text string) (float64, error)
}

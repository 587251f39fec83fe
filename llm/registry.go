package llm

import (
	"fmt"
	"os"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// ProviderMode selects how the gateway picks providers.
type ProviderMode string

const (
	// ModeAnthropicOnly pins all traffic to Anthropic; no fallback.
	ModeAnthropicOnly ProviderMode = "anthropic-only"
	// ModeOpenAIOnly pins all traffic to OpenAI; no fallback.
	ModeOpenAIOnly ProviderMode = "openai-only"
	// ModeAuto uses the primary provider and falls back to the secondary
	// when the primary becomes unusable.
	ModeAuto ProviderMode = "auto"
)

// ClientKey uniquely identifies a provider client configuration.
// Client construction is handled by the caller to avoid import cycles
// between this package and the provider adapters.
type ClientKey struct {
	Provider     string
	APIKey       string
	BaseURL      string // For OpenAI-compatible endpoints
	Organization string // For OpenAI
}

// ProviderConfig holds the credentials needed for provider resolution.
type ProviderConfig struct {
	Mode            ProviderMode
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIOrg       string
}

// ProviderRegistry resolves the provider mode and credentials into the
// primary and (optional) secondary client keys. In auto mode the secondary
// exists only when its credentials do; its absence simply disables fallback.
type ProviderRegistry struct {
	mu     sync.RWMutex
	config *ProviderConfig
}

// NewProviderRegistry creates a new ProviderRegistry with the given config.
func NewProviderRegistry(providerConfig *ProviderConfig) *ProviderRegistry {
	return &ProviderRegistry{config: providerConfig}
}

// Mode returns the effective provider mode. An empty mode defaults to auto.
func (r *ProviderRegistry) Mode() ProviderMode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.config.Mode == "" {
		return ModeAuto
	}
	return r.config.Mode
}

// IsProviderConfigured checks if a provider has the required credentials.
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns the primary client key and, when fallback is possible,
// the secondary client key. The secondary is nil in single-provider modes
// and in auto mode when the secondary's credentials are missing.
func (r *ProviderRegistry) Resolve() (primary, secondary *ClientKey, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mode := r.config.Mode
	if mode == "" {
		mode = ModeAuto
	}

	switch mode {
	case ModeAnthropicOnly:
		primary, err = r.resolveProviderConfig(ProviderAnthropic)
		return primary, nil, err

	case ModeOpenAIOnly:
		primary, err = r.resolveProviderConfig(ProviderOpenAI)
		return primary, nil, err

	case ModeAuto:
		primary, err = r.resolveProviderConfig(ProviderAnthropic)
		if err != nil {
			return nil, nil, fmt.Errorf("auto mode requires a configured primary: %w", err)
		}
		if r.isProviderConfiguredUnlocked(ProviderOpenAI) {
			secondary, err = r.resolveProviderConfig(ProviderOpenAI)
			if err != nil {
				return nil, nil, err
			}
		}
		return primary, secondary, nil

	default:
		return nil, nil, fmt.Errorf("unknown provider mode: %s", mode)
	}
}

// isProviderConfiguredUnlocked is the unlocked version of IsProviderConfigured.
// Must be called with r.mu already locked.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return apiKey != ""
	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return apiKey != ""
	default:
		return false
	}
}

// resolveProviderConfig resolves provider-specific credentials into a ClientKey.
func (r *ProviderRegistry) resolveProviderConfig(provider string) (*ClientKey, error) {
	key := &ClientKey{Provider: provider}

	switch provider {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.APIKey = apiKey

	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.APIKey = apiKey

		baseURL := r.config.OpenAIBaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		key.BaseURL = baseURL

		org := r.config.OpenAIOrg
		if org == "" {
			org = os.Getenv("OPENAI_ORG_ID")
		}
		key.Organization = org

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}

package config

import (
	"os"
)

// LoadAnthropicConfig loads Anthropic configuration from the gateway config.
// It returns the API key to use for creating an Anthropic provider, with the
// ANTHROPIC_API_KEY environment variable taking precedence.
func LoadAnthropicConfig(cfg *GatewayConfig) (apiKey string) {
	if cfg != nil {
		apiKey = cfg.Anthropic.APIKey
	}
	if envAPIKey := os.Getenv("ANTHROPIC_API_KEY"); envAPIKey != "" {
		apiKey = envAPIKey
	}
	return apiKey
}

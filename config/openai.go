package config

import (
	"os"
)

// LoadOpenAIConfig loads OpenAI configuration from the gateway config.
// It returns the API key, base URL, and organization to use for creating an
// OpenAI provider, with environment variables taking precedence.
func LoadOpenAIConfig(cfg *GatewayConfig) (apiKey, baseURL, organization string) {
	if cfg != nil {
		apiKey = cfg.OpenAI.APIKey
		baseURL = cfg.OpenAI.BaseURL
		organization = cfg.OpenAI.Organization
	}

	if envAPIKey := os.Getenv("OPENAI_API_KEY"); envAPIKey != "" {
		apiKey = envAPIKey
	}
	if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
		baseURL = envBaseURL
	}
	if envOrg := os.Getenv("OPENAI_ORG_ID"); envOrg != "" {
		organization = envOrg
	}

	return apiKey, baseURL, organization
}

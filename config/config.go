package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// AnthropicConfig represents configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"` // Anthropic API key
}

// OpenAIConfig represents configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // OpenAI API key
	BaseURL      string `yaml:"base_url,omitempty"`     // Custom base URL (default: official API)
	Organization string `yaml:"organization,omitempty"` // Organization ID
}

// OllamaConfig represents configuration for the local Ollama instance used
// by the embedding classifier.
type OllamaConfig struct {
	Host       string `yaml:"host,omitempty"`        // Ollama host (default: "http://localhost:11434")
	EmbedModel string `yaml:"embed_model,omitempty"` // Embedding model name
}

// RouterConfig represents construction-time content-router configuration.
// Runtime knobs (thresholds, latency budget, on/off) live in the settings
// store instead, so they can change without a restart.
type RouterConfig struct {
	Impl string `yaml:"impl,omitempty"` // "heuristic" or "ollama"
}

// BreakerConfig represents circuit breaker tuning, all in whole units.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold,omitempty"`
	SuccessThreshold int `yaml:"success_threshold,omitempty"`
	TimeoutSeconds   int `yaml:"timeout_seconds,omitempty"`
	HalfOpenMaxCalls int `yaml:"half_open_max_calls,omitempty"`
}

// RetryConfig represents retry and fallback-recovery tuning.
type RetryConfig struct {
	MaxRetries              int `yaml:"max_retries,omitempty"`
	RecoveryIntervalSeconds int `yaml:"recovery_interval_seconds,omitempty"`
}

// GatewayConfig represents the daemon configuration loaded from the config
// file, with environment variables overriding credentials.
type GatewayConfig struct {
	// Provider selection: "auto", "anthropic-only", or "openai-only".
	Mode string `yaml:"mode,omitempty"`

	// Provider configurations
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`

	// Feature configurations
	Router  RouterConfig  `yaml:"router,omitempty"`
	Breaker BreakerConfig `yaml:"breaker,omitempty"`
	Retry   RetryConfig   `yaml:"retry,omitempty"`

	DBPath string `yaml:"db_path,omitempty"` // Path to SQLite database file
}

// GetConfigPath returns the default config file path.
// Can be overridden via GATEWAY_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("GATEWAY_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.gatewayd/config.yaml"
	}
	return filepath.Join(homeDir, ".gatewayd", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load loads the gateway configuration, merging the config file (if it
// exists) onto defaults. A missing file is not an error; credentials can
// come entirely from the environment.
func Load(path string) (*GatewayConfig, error) {
	defaults := GatewayConfig{
		Mode: "auto",
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Ollama: OllamaConfig{
			Host:       "http://localhost:11434",
			EmbedModel: "mxbai-embed-large",
		},
		Router: RouterConfig{
			Impl: "heuristic",
		},
		DBPath: "gateway.db",
	}

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		return &defaults, nil
	}

	configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}

	var fileConfig GatewayConfig
	if err := yaml.Unmarshal(configYAML, &fileConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := mergo.Merge(&defaults, fileConfig, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	return &defaults, nil
}

// Save saves the configuration to the specified path.
func Save(cfg *GatewayConfig, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

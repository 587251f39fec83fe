package config

import (
	"os"

	llmollama "github.com/aschepis/backscratcher/gateway/llm/ollama"
	"github.com/rs/zerolog"
)

// LoadOllamaConfig loads Ollama configuration from the gateway config.
// It returns the host and embedding model for the classifier, with
// environment variables taking precedence.
func LoadOllamaConfig(cfg *GatewayConfig) (host, embedModel string) {
	if cfg != nil {
		host = cfg.Ollama.Host
		embedModel = cfg.Ollama.EmbedModel
	}

	if envHost := os.Getenv("OLLAMA_HOST"); envHost != "" {
		host = envHost
	}
	if envModel := os.Getenv("OLLAMA_EMBED_MODEL"); envModel != "" {
		embedModel = envModel
	}

	if host == "" {
		host = "http://localhost:11434"
	}

	return host, embedModel
}

// NewOllamaClassifier creates an embedding classifier from the configuration.
// The underlying client reads OLLAMA_HOST, so a host from the config file is
// exported before construction when the variable is unset.
func NewOllamaClassifier(cfg *GatewayConfig, logger zerolog.Logger) (*llmollama.Classifier, error) {
	host, embedModel := LoadOllamaConfig(cfg)
	if os.Getenv("OLLAMA_HOST") == "" && host != "" {
		_ = os.Setenv("OLLAMA_HOST", host)
	}
	return llmollama.NewClassifier(embedModel, logger)
}

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aschepis/backscratcher/gateway/config"
	"github.com/aschepis/backscratcher/gateway/gateway"
	"github.com/aschepis/backscratcher/gateway/llm"
	llmanthropic "github.com/aschepis/backscratcher/gateway/llm/anthropic"
	llmopenai "github.com/aschepis/backscratcher/gateway/llm/openai"
	gatewaylogger "github.com/aschepis/backscratcher/gateway/logger"
	"github.com/aschepis/backscratcher/gateway/migrations"
	"github.com/aschepis/backscratcher/gateway/settings"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const classifierLoadTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", config.GetConfigPath(), "Path to config file")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		dbPath     = flag.String("db", "", "Path to SQLite database file (overrides config)")
		prompt     = flag.String("prompt", "", "Send a single prompt, print the response, and exit")
		model      = flag.String("model", "auto", "Model for -prompt: a model id, a tier (fast/balanced/powerful), or auto")
		maxTokens  = flag.Int64("max-tokens", 1024, "Max tokens for -prompt")
		saveConfig = flag.Bool("save-config", false, "Write the effective configuration to the config path and exit")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	// Credentials commonly live in a .env during development; a missing file
	// is fine.
	_ = godotenv.Load()

	logger, err := gatewaylogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	// Scaffold or refresh the config file with the effective values.
	if *saveConfig {
		if err := config.Save(cfg, *configPath); err != nil {
			return fmt.Errorf("failed to save configuration: %w", err)
		}
		logger.Info().Str("path", *configPath).Msg("Configuration saved")
		return nil
	}

	logger.Info().
		Str("config", *configPath).
		Str("mode", cfg.Mode).
		Str("db", cfg.DBPath).
		Msg("gatewayd starting")

	// ---------------------------
	// 1. Open SQLite + Settings Store
	// ---------------------------

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors

	if err := migrations.Run(db, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	store := settings.NewStore(db, logger)

	// ---------------------------
	// 2. Resolve Providers
	// ---------------------------

	providerConfig := llm.ProviderConfig{
		Mode:            llm.ProviderMode(cfg.Mode),
		AnthropicAPIKey: config.LoadAnthropicConfig(cfg),
	}
	openaiKey, openaiBaseURL, openaiOrg := config.LoadOpenAIConfig(cfg)
	providerConfig.OpenAIAPIKey = openaiKey
	providerConfig.OpenAIBaseURL = openaiBaseURL
	providerConfig.OpenAIOrg = openaiOrg

	registry := llm.NewProviderRegistry(&providerConfig)
	primaryKey, secondaryKey, err := registry.Resolve()
	if err != nil {
		return fmt.Errorf("failed to resolve providers: %w", err)
	}

	primary, err := buildProvider(primaryKey, logger)
	if err != nil {
		return fmt.Errorf("failed to create primary provider: %w", err)
	}
	secondary, err := buildProvider(secondaryKey, logger)
	if err != nil {
		return fmt.Errorf("failed to create fallback provider: %w", err)
	}

	if secondary != nil {
		logger.Info().
			Str("primary", primary.Name()).
			Str("fallback", secondary.Name()).
			Msg("Providers resolved")
	} else {
		logger.Info().Str("primary", primary.Name()).Msg("Provider resolved, fallback disabled")
	}

	// ---------------------------
	// 3. Content Router
	// ---------------------------

	breakers := gateway.NewBreakerRegistry(gateway.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          time.Duration(cfg.Breaker.TimeoutSeconds) * time.Second,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	}, logger)

	classifiers := map[string]llm.Classifier{
		gateway.ClassifierHeuristic: gateway.NewHeuristicClassifier(),
	}
	defaultImpl := gateway.ClassifierHeuristic

	if impl := cfg.Router.Impl; impl != "" && impl != gateway.ClassifierHeuristic {
		if classifier := loadClassifier(impl, cfg, logger); classifier != nil {
			classifiers[impl] = classifier
			defaultImpl = impl
		}
	}

	router := gateway.NewContentRouter(
		classifiers,
		defaultImpl,
		breakers,
		store,
		gateway.NewLogMetrics(logger),
		logger,
	)

	// ---------------------------
	// 4. LLM Client
	// ---------------------------

	client := gateway.NewLLMClient(primary, secondary, router, breakers, store, gateway.ClientConfig{
		MaxRetries:       cfg.Retry.MaxRetries,
		RecoveryInterval: time.Duration(cfg.Retry.RecoveryIntervalSeconds) * time.Second,
	}, logger)

	// ---------------------------
	// 5. One-shot or Daemon
	// ---------------------------

	if *prompt != "" {
		return runOnce(client, *prompt, *model, *maxTokens, logger)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 1m", func() { logHealth(client, breakers, logger) }); err != nil {
		return fmt.Errorf("failed to schedule health reporting: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	logger.Info().Msg("Health reporting scheduled")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	logger.Info().Msg("gatewayd shutdown complete")
	return nil
}

// buildProvider constructs the adapter for a resolved client key. A nil key
// (no fallback configured) yields a nil provider.
func buildProvider(key *llm.ClientKey, logger zerolog.Logger) (llm.Provider, error) {
	if key == nil {
		return nil, nil
	}
	switch key.Provider {
	case llm.ProviderAnthropic:
		return llmanthropic.NewAnthropicProvider(key.APIKey, logger)
	case llm.ProviderOpenAI:
		return llmopenai.NewOpenAIProvider(key.APIKey, key.BaseURL, key.Organization, logger)
	default:
		return nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}
}

// loadClassifier builds and loads the configured classifier backend. Load
// failures are logged and tolerated; routing degrades to the heuristic.
func loadClassifier(impl string, cfg *config.GatewayConfig, logger zerolog.Logger) llm.Classifier {
	var (
		classifier llm.Classifier
		err        error
	)
	if impl == gateway.ClassifierOllama {
		// The config constructor also exports a configured host for the
		// underlying client.
		classifier, err = config.NewOllamaClassifier(cfg, logger)
	} else {
		classifier, err = gateway.NewClassifier(impl, "", logger)
	}
	if err != nil {
		logger.Warn().Err(err).Str("impl", impl).Msg("Failed to create classifier, routing falls back to heuristic")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), classifierLoadTimeout)
	defer cancel()
	if err := classifier.Load(ctx); err != nil {
		logger.Warn().Err(err).Str("impl", impl).Msg("Failed to load classifier, routing falls back to heuristic")
		return nil
	}
	logger.Info().Str("impl", impl).Msg("Classifier loaded")
	return classifier
}

// runOnce sends a single prompt through the gateway and prints the response.
func runOnce(client *gateway.LLMClient, prompt, model string, maxTokens int64, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	resp, err := client.CreateMessage(ctx, &llm.Request{
		Model:     model,
		Messages:  []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	logger.Info().
		Str("provider", resp.Provider).
		Str("model", resp.Model).
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Msg("Request completed")

	fmt.Println(resp.TextContent())
	return nil
}

// logHealth emits a periodic snapshot of breaker states and fallback status.
func logHealth(client *gateway.LLMClient, breakers *gateway.BreakerRegistry, logger zerolog.Logger) {
	event := logger.Info()
	for name, state := range breakers.Snapshot() {
		event = event.Str("breaker_"+name, string(state))
	}

	status := client.FallbackStatus()
	event = event.Bool("using_fallback", status.UsingFallback)
	if status.UsingFallback {
		event = event.
			Str("fallback_reason", string(status.Reason)).
			Time("fallback_since", status.Since)
	}
	event.Msg("Gateway health")
}

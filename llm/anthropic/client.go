package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aschepis/backscratcher/gateway/llm"
	"github.com/rs/zerolog"
)

// Anthropic's "overloaded_error" surfaces as HTTP 529.
const statusOverloaded = 529

// AnthropicProvider implements the llm.Provider interface for Anthropic's API.
type AnthropicProvider struct {
	client *anthropic.Client
	logger zerolog.Logger
}

// NewAnthropicProvider creates a new AnthropicProvider with the given API key.
func NewAnthropicProvider(apiKey string, logger zerolog.Logger) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{
		client: &client,
		logger: logger.With().Str("component", "anthropicProvider").Logger(),
	}, nil
}

// Name implements llm.Provider.Name.
func (p *AnthropicProvider) Name() string {
	return llm.ProviderAnthropic
}

// SupportsReasoningEffort implements llm.Provider.SupportsReasoningEffort.
// Anthropic models take a thinking budget rather than a reasoning-effort
// knob, so the gateway's auto-set does not apply here.
func (p *AnthropicProvider) SupportsReasoningEffort() bool {
	return false
}

// ConvertTools implements llm.Provider.ConvertTools.
func (p *AnthropicProvider) ConvertTools(tools []llm.ToolSpec) error {
	for i := range tools {
		if err := validateToolSpec(&tools[i]); err != nil {
			return err
		}
	}
	return nil
}

// CreateMessage implements llm.Provider.CreateMessage.
func (p *AnthropicProvider) CreateMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	// Convert tools
	tools := ToToolUnionParams(req.Tools)

	// Convert messages
	anthropicMsgs, err := ToMessageParams(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	// Build system blocks with prompt caching
	systemBlocks := buildSystemBlocks(req.System)

	// Create API params
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  anthropicMsgs,
		System:    systemBlocks,
		Tools:     tools,
	}

	// Make API call
	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertAnthropicError(err)
	}

	// Convert response
	content := make([]llm.ContentBlock, 0, len(message.Content))
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeText,
				Text: block.Text,
			})
		case anthropic.ToolUseBlock:
			// Extract input as map[string]interface{}
			var input map[string]interface{}
			if block.Input != nil {
				if inputBytes, err := json.Marshal(block.Input); err == nil {
					if err := json.Unmarshal(inputBytes, &input); err != nil {
						input = make(map[string]interface{})
					}
				} else {
					input = make(map[string]interface{})
				}
			} else {
				input = make(map[string]interface{})
			}
			content = append(content, llm.ContentBlock{
				Type: llm.ContentBlockTypeToolUse,
				ToolUse: &llm.ToolUseBlock{
					ID:    block.ID,
					Name:  block.Name,
					Input: input,
				},
			})
		}
	}

	// Convert usage
	usage := &llm.Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	// Log prompt cache information for tracking efficacy
	if usage.CacheCreationInputTokens > 0 || usage.CacheReadInputTokens > 0 {
		cacheEfficiency := float64(0)
		if usage.InputTokens > 0 {
			cacheEfficiency = float64(usage.CacheReadInputTokens) / float64(usage.InputTokens) * 100
		}
		p.logger.Debug().
			Int64("input_tokens", usage.InputTokens).
			Int64("cache_creation_tokens", usage.CacheCreationInputTokens).
			Int64("cache_read_tokens", usage.CacheReadInputTokens).
			Float64("cache_efficiency", cacheEfficiency).
			Msg("Prompt cache stats")
	}

	// Normalize stop reason
	stopReason := llm.StopReasonEndTurn
	if message.StopReason == anthropic.StopReasonToolUse {
		stopReason = llm.StopReasonToolUse
	}

	return &llm.Response{
		Content:    content,
		Usage:      usage,
		StopReason: stopReason,
		Provider:   llm.ProviderAnthropic,
		Model:      req.Model,
	}, nil
}

// BuildAssistantMessage implements llm.Provider.BuildAssistantMessage.
func (p *AnthropicProvider) BuildAssistantMessage(resp *llm.Response) llm.Message {
	content := make([]llm.ContentBlock, 0, len(resp.Content))
	for _, block := range resp.Content {
		switch block.Type {
		case llm.ContentBlockTypeText, llm.ContentBlockTypeToolUse:
			content = append(content, block)
		}
	}
	return llm.Message{
		Role:    llm.RoleAssistant,
		Content: content,
	}
}

// BuildToolResultMessage implements llm.Provider.BuildToolResultMessage.
// Anthropic expects tool results as user-role content blocks.
func (p *AnthropicProvider) BuildToolResultMessage(results []llm.ToolResultBlock) llm.Message {
	return llm.NewToolResultMessage(results)
}

// buildSystemBlocks creates system text blocks with prompt caching enabled.
// Placing cache_control on the system block caches the full prefix: tools,
// system, and messages up to and including the designated block.
func buildSystemBlocks(systemPrompt string) []anthropic.TextBlockParam {
	blocks := []anthropic.TextBlockParam{
		{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
	}

	return blocks
}

// convertAnthropicError converts Anthropic API errors to llm.Error types.
func convertAnthropicError(err error) error {
	if err == nil {
		return nil
	}

	var apierr *anthropic.Error
	if !errors.As(err, &apierr) {
		// Not an API error (network, context cancellation, ...).
		return llm.NewProviderError("Anthropic API error", err)
	}

	switch apierr.StatusCode {
	case http.StatusPaymentRequired:
		return llm.NewCreditError(
			fmt.Sprintf("Anthropic credit exhausted: %s", apierr.Error()),
			err,
		)
	case http.StatusTooManyRequests:
		return llm.NewRateLimitError(
			fmt.Sprintf("Anthropic rate limit: %s", apierr.Error()),
			retryAfterFromHeader(apierr),
			err,
		)
	case statusOverloaded:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("Anthropic overloaded: %s", apierr.Error()),
			Retryable:   true,
			StatusCode:  apierr.StatusCode,
			ProviderErr: err,
		}
	case http.StatusBadRequest:
		return llm.NewInvalidRequestError(
			fmt.Sprintf("Anthropic invalid request: %s", apierr.Error()),
			apierr.StatusCode,
			err,
		)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		// Opaque upstream failures surface to the caller untouched: no
		// retry, no fallback.
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("Anthropic server error: %s", apierr.Error()),
			Retryable:   false,
			StatusCode:  apierr.StatusCode,
			ProviderErr: err,
		}
	default:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("Anthropic API error: %s", apierr.Error()),
			Retryable:   false,
			StatusCode:  apierr.StatusCode,
			ProviderErr: err,
		}
	}
}

// retryAfterFromHeader reads the Retry-After header from a rate limit
// response. Absent or unparseable headers yield nil so the caller's own
// backoff schedule applies.
func retryAfterFromHeader(apierr *anthropic.Error) *time.Duration {
	if apierr.Response == nil {
		return nil
	}
	secs, err := strconv.Atoi(apierr.Response.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}

// Ensure AnthropicProvider implements llm.Provider
var _ llm.Provider = (*AnthropicProvider)(nil)

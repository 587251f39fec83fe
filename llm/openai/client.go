package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aschepis/backscratcher/gateway/llm"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the llm.Provider interface for OpenAI's API.
type OpenAIProvider struct {
	client *openai.Client
	logger zerolog.Logger
}

// NewOpenAIProvider creates a new OpenAIProvider.
// If apiKey is empty, it will return an error.
// If baseURL is empty, it will use the default OpenAI API endpoint.
func NewOpenAIProvider(apiKey, baseURL, organization string, logger zerolog.Logger) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)

	// Set custom base URL if provided
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	// Set organization if provided
	if organization != "" {
		config.OrgID = organization
	}

	client := openai.NewClientWithConfig(config)

	return &OpenAIProvider{
		client: client,
		logger: logger.With().Str("component", "openaiProvider").Logger(),
	}, nil
}

// Name implements llm.Provider.Name.
func (p *OpenAIProvider) Name() string {
	return llm.ProviderOpenAI
}

// SupportsReasoningEffort implements llm.Provider.SupportsReasoningEffort.
// The o-series reasoning models accept a reasoning_effort parameter.
func (p *OpenAIProvider) SupportsReasoningEffort() bool {
	return true
}

// ConvertTools implements llm.Provider.ConvertTools.
func (p *OpenAIProvider) ConvertTools(tools []llm.ToolSpec) error {
	_, err := ToOpenAITools(tools)
	return err
}

// CreateMessage implements llm.Provider.CreateMessage.
func (p *OpenAIProvider) CreateMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	// Convert messages
	openaiMsgs, err := ToOpenAIMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	// Convert tools
	var openaiTools []openai.Tool
	if len(req.Tools) > 0 {
		openaiTools, err = ToOpenAITools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tools: %w", err)
		}
	}

	// Build chat completion request
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: openaiMsgs,
	}

	// Set system message if provided (OpenAI supports system role in messages)
	if req.System != "" {
		systemMsg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		}
		// Prepend system message to messages
		chatReq.Messages = append([]openai.ChatCompletionMessage{systemMsg}, openaiMsgs...)
	}

	// Set tools if provided
	if len(openaiTools) > 0 {
		chatReq.Tools = openaiTools
		// Set tool choice to auto (let model decide when to use tools)
		chatReq.ToolChoice = "auto"
	}

	// Set max tokens if provided
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}

	// Set temperature if provided
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}

	// Reasoning effort only applies to reasoning models; the gateway sets it
	// for powerful-tier models.
	if req.ReasoningEffort != "" {
		chatReq.ReasoningEffort = req.ReasoningEffort
	}

	// Make API call
	chatResp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertOpenAIError(err)
	}

	// Convert response
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := chatResp.Choices[0]
	content := make([]llm.ContentBlock, 0)

	// Handle message content
	if choice.Message.Content != "" {
		content = append(content, llm.ContentBlock{
			Type: llm.ContentBlockTypeText,
			Text: choice.Message.Content,
		})
	}

	// Handle tool calls
	for _, toolCall := range choice.Message.ToolCalls {
		toolUseBlock, err := FromOpenAIToolCall(toolCall)
		if err != nil {
			return nil, fmt.Errorf("failed to convert tool call: %w", err)
		}
		content = append(content, llm.ContentBlock{
			Type:    llm.ContentBlockTypeToolUse,
			ToolUse: toolUseBlock,
		})
	}

	// Convert usage
	usage := &llm.Usage{
		InputTokens:  int64(chatResp.Usage.PromptTokens),
		OutputTokens: int64(chatResp.Usage.CompletionTokens),
	}
	if chatResp.Usage.PromptTokensDetails != nil {
		usage.CacheReadInputTokens = int64(chatResp.Usage.PromptTokensDetails.CachedTokens)
	}

	// Normalize stop reason
	stopReason := llm.StopReasonEndTurn
	if choice.FinishReason == openai.FinishReasonToolCalls {
		stopReason = llm.StopReasonToolUse
	}

	return &llm.Response{
		Content:    content,
		Usage:      usage,
		StopReason: stopReason,
		Provider:   llm.ProviderOpenAI,
		Model:      req.Model,
	}, nil
}

// BuildAssistantMessage implements llm.Provider.BuildAssistantMessage.
func (p *OpenAIProvider) BuildAssistantMessage(resp *llm.Response) llm.Message {
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
// The conversion layer expands these into "tool" role messages on send.
func (p *OpenAIProvider) BuildToolResultMessage(results []llm.ToolResultBlock) llm.Message {
	return llm.NewToolResultMessage(results)
}

// convertOpenAIError converts OpenAI API errors to llm.Error types.
func convertOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	// Check if it's an OpenAI API error using errors.As
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		// Not an OpenAI API error, return as provider error
		return llm.NewProviderError("OpenAI API error", err)
	}

	// insufficient_quota arrives as a 429 but is a billing problem, not a
	// transient one; classify it as credit exhaustion.
	if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
		return llm.NewCreditError(
			fmt.Sprintf("OpenAI quota exhausted: %s", apiErr.Message),
			err,
		)
	}
	if strings.Contains(apiErr.Message, "insufficient_quota") {
		return llm.NewCreditError(
			fmt.Sprintf("OpenAI quota exhausted: %s", apiErr.Message),
			err,
		)
	}

	// Map status codes to error types
	switch apiErr.HTTPStatusCode {
	case http.StatusPaymentRequired:
		return llm.NewCreditError(
			fmt.Sprintf("OpenAI billing error: %s", apiErr.Message),
			err,
		)
	case http.StatusTooManyRequests:
		// go-openai's APIError carries no headers, so there is no
		// Retry-After to surface; the caller's backoff schedule applies.
		return llm.NewRateLimitError(
			fmt.Sprintf("OpenAI rate limit: %s", apiErr.Message),
			nil,
			err,
		)
	case http.StatusBadRequest:
		return llm.NewInvalidRequestError(
			fmt.Sprintf("OpenAI invalid request: %s", apiErr.Message),
			apiErr.HTTPStatusCode,
			err,
		)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		// Opaque upstream failures surface to the caller untouched: no
		// retry, no fallback.
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("OpenAI server error: %s", apiErr.Message),
			Retryable:   false,
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	default:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("OpenAI API error: %s", apiErr.Message),
			Retryable:   false,
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	}
}

// Ensure OpenAIProvider implements llm.Provider
var _ llm.Provider = (*OpenAIProvider)(nil)

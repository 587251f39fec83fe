// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines common types, interfaces, and utilities that allow the gateway
// to work with multiple LLM providers (Anthropic, OpenAI, Ollama) without being
// tightly coupled to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Messages: The Message type represents a conversation message with role (user, assistant, system)
//     and content blocks (text, tool use, tool results).
//
//  2. Tools: The ToolSpec type represents a tool definition that can be provided to an LLM,
//     and ToolUseBlock/ToolResultBlock represent tool invocations and their results.
//
//  3. Provider Interface: the Provider interface is the capability contract the gateway
//     depends on: CreateMessage for synchronous calls plus message/tool conversion helpers
//     for round-tripping conversation history in the provider's native shape.
//
//  4. Errors: the Error type provides provider-neutral error handling. The gateway's
//     retry and fallback policy is driven entirely by the IsCreditError, IsRetryableError
//     and IsCircuitOpen predicates, which prefer structured status codes and fall back
//     to keyword matching on provider error text.
//
//  5. Registry: ProviderRegistry resolves the configured provider mode (anthropic-only,
//     openai-only, auto) and credentials into client keys; adapter construction happens
//     at the wiring layer to avoid import cycles.
//
// Provider-specific payloads never leak past the adapter boundary: the only shape
// the gateway orchestrator depends on is Request/Response.
package llm

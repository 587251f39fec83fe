package llm

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeCredit         ErrorType = "credit"
	ErrorTypeCircuitOpen    ErrorType = "circuit_open"
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeProvider       ErrorType = "provider"
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// creditKeywords mark billing/quota exhaustion in provider error text.
// Matching is a fallback for providers that don't surface a structured
// status code; adapters that do should set StatusCode 402 or ErrorTypeCredit.
var creditKeywords = []string{
	"credit",
	"insufficient_quota",
	"billing",
	"payment",
	"balance",
}

// retryableKeywords mark transient overload conditions in provider error text.
var retryableKeywords = []string{
	"overloaded",
	"rate_limit",
	"too_many_requests",
	"capacity",
}

// statusOverloaded is Anthropic's non-standard "overloaded" status code.
const statusOverloaded = 529

// IsCreditError reports whether err indicates exhausted credits or a billing
// problem. Credit errors are permanent on a provider until an operator
// intervenes: they are never retried and trigger immediate fallback.
func IsCreditError(err error) bool {
	if err == nil {
		return false
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		if llmErr.Type == ErrorTypeCredit {
			return true
		}
		if llmErr.StatusCode == http.StatusPaymentRequired {
			return true
		}
	}
	return containsAny(err.Error(), creditKeywords)
}

// IsRetryableError reports whether err is a transient condition worth
// retrying on the same provider (429, 529, or overload-flavored text).
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if IsCreditError(err) {
		return false
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		if llmErr.Type == ErrorTypeCircuitOpen {
			return false
		}
		if llmErr.Retryable {
			return true
		}
		if llmErr.StatusCode == http.StatusTooManyRequests || llmErr.StatusCode == statusOverloaded {
			return true
		}
	}
	return containsAny(err.Error(), retryableKeywords)
}

// IsRateLimitError checks if an error is a rate limit error.
func IsRateLimitError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsCircuitOpen reports whether err means a circuit breaker refused the call
// before any downstream attempt was made.
func IsCircuitOpen(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeCircuitOpen
	}
	return false
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// NewRateLimitError creates a new rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		StatusCode:  http.StatusTooManyRequests,
		ProviderErr: providerErr,
	}
}

// NewCreditError creates a new credit/billing exhaustion error.
func NewCreditError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeCredit,
		Message:     message,
		Retryable:   false,
		StatusCode:  http.StatusPaymentRequired,
		ProviderErr: providerErr,
	}
}

// NewCircuitOpenError creates the error returned when a breaker blocks a call.
func NewCircuitOpenError(name string) *Error {
	return &Error{
		Type:      ErrorTypeCircuitOpen,
		Message:   "circuit breaker open: " + name,
		Retryable: false,
	}
}

// NewInvalidRequestError creates a new invalid request error.
func NewInvalidRequestError(message string, statusCode int, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeInvalidRequest,
		Message:     message,
		Retryable:   false,
		StatusCode:  statusCode,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a new provider error.
func NewProviderError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

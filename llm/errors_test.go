package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", nil, nil)
	if !IsRateLimitError(err) {
		t.Error("Expected IsRateLimitError to return true for rate limit error")
	}

	regularErr := NewProviderError("some error", nil)
	if IsRateLimitError(regularErr) {
		t.Error("Expected IsRateLimitError to return false for non-rate-limit error")
	}
}

func TestIsCreditError(t *testing.T) {
	if !IsCreditError(NewCreditError("out of credits", nil)) {
		t.Error("Expected IsCreditError to return true for credit error")
	}

	// Status code alone should classify, even without the credit type.
	statusErr := &Error{Type: ErrorTypeProvider, Message: "denied", StatusCode: 402}
	if !IsCreditError(statusErr) {
		t.Error("Expected IsCreditError to return true for HTTP 402")
	}

	// Keyword matching on plain errors.
	for _, msg := range []string{
		"insufficient_quota: add a payment method",
		"your credit balance is too low",
		"billing hard limit reached",
	} {
		if !IsCreditError(fmt.Errorf("api error: %s", msg)) {
			t.Errorf("Expected IsCreditError to match %q", msg)
		}
	}

	if IsCreditError(NewProviderError("boom", nil)) {
		t.Error("Expected IsCreditError to return false for generic provider error")
	}
	if IsCreditError(nil) {
		t.Error("Expected IsCreditError to return false for nil")
	}
}

func TestIsRetryableError(t *testing.T) {
	retryableErr := NewRateLimitError("rate limit", nil, nil)
	if !IsRetryableError(retryableErr) {
		t.Error("Expected IsRetryableError to return true for retryable error")
	}

	// 529 is Anthropic's overloaded status.
	overloaded := &Error{Type: ErrorTypeProvider, Message: "overloaded_error", StatusCode: 529}
	if !IsRetryableError(overloaded) {
		t.Error("Expected IsRetryableError to return true for HTTP 529")
	}

	for _, msg := range []string{
		"too_many_requests",
		"model capacity exceeded",
		"overloaded, try again later",
	} {
		if !IsRetryableError(errors.New(msg)) {
			t.Errorf("Expected IsRetryableError to match %q", msg)
		}
	}

	// Credit errors are never retryable, even when the text looks transient.
	if IsRetryableError(NewCreditError("rate_limit on billing balance", nil)) {
		t.Error("Expected credit errors to never be retryable")
	}

	nonRetryableErr := NewProviderError("some error", nil)
	if IsRetryableError(nonRetryableErr) {
		t.Error("Expected IsRetryableError to return false for non-retryable error")
	}
}

func TestIsCircuitOpen(t *testing.T) {
	if !IsCircuitOpen(NewCircuitOpenError("anthropic")) {
		t.Error("Expected IsCircuitOpen to return true for circuit open error")
	}
	if IsCircuitOpen(NewProviderError("some error", nil)) {
		t.Error("Expected IsCircuitOpen to return false for non-breaker error")
	}
	// Breaker refusals are not retryable on the same provider.
	if IsRetryableError(NewCircuitOpenError("anthropic")) {
		t.Error("Expected circuit open errors to be non-retryable")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	retryAfter := 5 * time.Minute
	err := NewRateLimitError("rate limit", &retryAfter, nil)
	extracted := ExtractRetryAfter(err)
	if extracted == nil {
		t.Fatal("Expected non-nil retry after")
	}
	if *extracted != retryAfter {
		t.Errorf("Expected retry after %v, got %v", retryAfter, *extracted)
	}

	regularErr := NewProviderError("some error", nil)
	if ExtractRetryAfter(regularErr) != nil {
		t.Error("Expected nil retry after for non-rate-limit error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := NewProviderError("wrapped", originalErr)
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected error to unwrap to original error")
	}
}

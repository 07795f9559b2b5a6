// Package llm provides the model clients used by the AI reviewer: Anthropic,
// OpenAI, Google Gemini and a deterministic mock for tests.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Completion is the text a model returned plus its token usage.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Client sends a single prompt to a model.
type Client interface {
	// Provider is "anthropic", "openai", "google" or "mock".
	Provider() string
	Model() string
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// ProviderError is a classified API failure.
type ProviderError struct {
	Provider  string
	Code      string
	Message   string
	Retryable bool
	Cause     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// classify maps an SDK error to a ProviderError by inspecting its message.
// The SDKs expose status codes in different ways, but all include the code
// and the provider's error text in Error().
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ProviderError{Provider: provider, Code: "timeout", Message: "request timed out", Retryable: true, Cause: err}
	}

	lower := strings.ToLower(err.Error())
	containsAny := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}

	pe := &ProviderError{Provider: provider, Message: err.Error(), Cause: err}
	switch {
	case containsAny("rate limit", "429", "too many requests", "resource_exhausted"):
		pe.Code, pe.Retryable = "rate_limited", true
	case containsAny("401", "403", "invalid api key", "incorrect api key", "unauthorized", "authentication", "permission_denied"):
		pe.Code = "invalid_api_key"
	case containsAny("insufficient_quota", "quota", "billing"):
		pe.Code = "quota_exceeded"
	case containsAny("500", "502", "503", "504", "529", "overloaded", "internal server error", "service unavailable", "bad gateway"):
		pe.Code, pe.Retryable = "server_error", true
	case containsAny("connection", "timeout", "network", "eof"):
		pe.Code, pe.Retryable = "network_error", true
	default:
		pe.Code = "api_error"
	}
	return pe
}

// New builds a client for provider. apiKey may be empty for "mock".
func New(ctx context.Context, provider, apiKey, model string) (Client, error) {
	switch strings.ToLower(provider) {
	case "anthropic", "claude":
		return NewAnthropic(apiKey, model)
	case "openai", "gpt":
		return NewOpenAI(apiKey, model)
	case "google", "gemini":
		return NewGoogle(ctx, apiKey, model)
	case "mock":
		return NewMock(model, nil), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider error codes.
const (
	CodeRateLimited   = "rate_limited"
	CodeTimeout       = "timeout"
	CodeInvalidAPIKey = "invalid_api_key"
	CodeQuotaExceeded = "quota_exceeded"
	CodeServerError   = "server_error"
	CodeNetworkError  = "network_error"
	CodeEmptyResponse = "empty_response"
	CodeAPIError      = "api_error"
)

// ErrMissingAPIKey is returned by adapters constructed without credentials.
var ErrMissingAPIKey = errors.New("API key is required")

// ProviderError is a failed call to a chat provider. It distinguishes
// transient failures (rate limits, timeouts, 5xx) from permanent ones.
type ProviderError struct {
	// Provider names the backend ("openai", "anthropic", "google", ...).
	Provider string

	// Code is one of the Code* constants.
	Code string

	// Message is the human-readable description.
	Message string

	// Retryable is true for transient failures.
	Retryable bool

	// Cause is the underlying SDK error.
	Cause error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return e.Code + ": " + e.Message
	}
	return e.Provider + " " + e.Code + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// ClassifyError maps an SDK error to a *ProviderError by inspecting its
// message. Context cancellation is returned unchanged so the engine can tell
// a cancelled run from a failed call.
func ClassifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	wrap := func(code string, retryable bool) error {
		return &ProviderError{
			Provider:  provider,
			Code:      code,
			Message:   err.Error(),
			Retryable: retryable,
			Cause:     err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(CodeTimeout, true)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "429", "rate limit", "rate_limit", "too many requests"):
		return wrap(CodeRateLimited, true)
	case containsAny(msg, "401", "403", "invalid api key", "incorrect api key", "unauthorized", "authentication"):
		return wrap(CodeInvalidAPIKey, false)
	case containsAny(msg, "insufficient_quota", "quota", "billing"):
		return wrap(CodeQuotaExceeded, false)
	case containsAny(msg, "500", "502", "503", "504", "529", "internal server error", "bad gateway",
		"service unavailable", "gateway timeout", "overloaded"):
		return wrap(CodeServerError, true)
	case containsAny(msg, "connection", "timeout", "network", "eof"):
		return wrap(CodeNetworkError, true)
	default:
		return wrap(CodeAPIError, false)
	}
}

// EmptyResponse returns the error adapters use when a provider answers with
// no candidates or choices.
func EmptyResponse(provider string) error {
	return &ProviderError{
		Provider: provider,
		Code:     CodeEmptyResponse,
		Message:  fmt.Sprintf("no response from %s", provider),
	}
}

func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

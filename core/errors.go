package core

import (
	"context"
	"errors"
	"fmt"
)

// ProviderErrorCode enumerates the fixed failure modes of the agent adapter
// boundary.
type ProviderErrorCode string

const (
	// ProviderRateLimit: the provider throttled the request; retryable with
	// backoff.
	ProviderRateLimit ProviderErrorCode = "rate_limit"
	// ProviderTimeout: the per-call timeout expired before a response.
	ProviderTimeout ProviderErrorCode = "timeout"
	// ProviderAuth: credentials were rejected; never retryable.
	ProviderAuth ProviderErrorCode = "auth_error"
	// ProviderAPI: any other provider-side failure.
	ProviderAPI ProviderErrorCode = "api_error"
)

// ProviderError is raised by agent adapters. The code determines retry
// behavior and the terminal end reason a conversation receives when retries
// are exhausted.
type ProviderError struct {
	Code     ProviderErrorCode
	Provider string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: [%s] %s: %v", e.Provider, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.Cause }

// Retryable reports whether the failure is worth retrying locally. Only rate
// limiting and transient timeouts qualify.
func (e *ProviderError) Retryable() bool {
	return e.Code == ProviderRateLimit || e.Code == ProviderTimeout
}

// EndReason maps the provider failure to the terminal end reason the owning
// conversation receives once retries are exhausted.
func (e *ProviderError) EndReason() EndReason {
	switch e.Code {
	case ProviderTimeout:
		return EndReasonTimeout
	case ProviderRateLimit:
		return EndReasonRateLimit
	case ProviderAuth, ProviderAPI:
		return EndReasonAPIError
	}
	return EndReasonException
}

// NewProviderError constructs a ProviderError for the named provider.
func NewProviderError(code ProviderErrorCode, provider, message string) *ProviderError {
	return &ProviderError{Code: code, Provider: provider, Message: message}
}

// WithCause attaches an underlying error and returns the receiver.
func (e *ProviderError) WithCause(cause error) *ProviderError {
	e.Cause = cause
	return e
}

// AsProviderError extracts a *ProviderError from err, classifying context
// deadline expiry as a timeout so callers see a uniform taxonomy.
func AsProviderError(err error, provider string) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(ProviderTimeout, provider, "call deadline exceeded").WithCause(err)
	}
	return NewProviderError(ProviderAPI, provider, "provider call failed").WithCause(err)
}

// ConfigError is raised during configuration validation, before any
// conversation starts. It is always fatal: no partial experiment may be
// created from an invalid configuration.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config: %s", e.Message)
}

// NewConfigError constructs a ConfigError for the named field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// PersistenceError is raised when a durable write cannot complete. It aborts
// the affected conversation's turn loop immediately.
type PersistenceError struct {
	Op    string
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Path, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PersistenceError) Unwrap() error { return e.Cause }

// NewPersistenceError constructs a PersistenceError for the given operation
// and path.
func NewPersistenceError(op, path string, cause error) *PersistenceError {
	return &PersistenceError{Op: op, Path: path, Cause: cause}
}

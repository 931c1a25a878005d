// Package lenserrors provides sentinel and custom error types for the application.
//
// Every user-visible failure carries a stable machine-readable kind; raw
// provider or store error text stays in the wrapped cause and is never
// surfaced verbatim.
package lenserrors

// Kind constants returned by Kind() and used by the HTTP layer.
const (
	KindValidation          = "validation_error"
	KindNotFound            = "not_found"
	KindProviderUnavailable = "provider_unavailable"
	KindProviderRateLimited = "provider_rate_limited"
	KindStoreUnavailable    = "store_unavailable"
)

// ErrValidation represents a validation error.
// Use when parameters are malformed or out of range, before any external call.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Kind returns the stable machine-readable kind.
func (e *ValidationError) Kind() string { return KindValidation }

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Kind returns the stable machine-readable kind.
func (e *NotFoundError) Kind() string { return KindNotFound }

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrProvider is the sentinel for embedding provider failures. The operation
// that hit it aborts fully; no partial label or embedding is persisted.
var ErrProvider = &ProviderError{}

// ProviderError is a sentinel error for embedding provider failures.
// RateLimited distinguishes 429-style throttling from outages.
type ProviderError struct {
	RateLimited bool
	Message     string
}

// NewProviderError creates a ProviderError for a provider outage or request failure.
func NewProviderError(message string) *ProviderError {
	return &ProviderError{Message: message}
}

// NewRateLimitedError creates a ProviderError marking provider throttling.
func NewRateLimitedError(message string) *ProviderError {
	return &ProviderError{RateLimited: true, Message: message}
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.RateLimited {
		return "embedding provider rate limited"
	}

	return "embedding provider unavailable"
}

// Kind returns the stable machine-readable kind.
func (e *ProviderError) Kind() string {
	if e.RateLimited {
		return KindProviderRateLimited
	}

	return KindProviderUnavailable
}

// Is implements the error interface for error comparison.
func (e *ProviderError) Is(target error) bool {
	_, ok := target.(*ProviderError)

	return ok
}

// ErrStore is the sentinel for store failures (unreachable or query error).
// Operations abort fully; no partial writes and no partial result sets.
var ErrStore = &StoreError{}

// StoreError is a sentinel error for vector store failures.
type StoreError struct {
	Message string
}

// NewStoreError creates a StoreError with a custom message.
func NewStoreError(message string) *StoreError {
	return &StoreError{Message: message}
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "store unavailable"
}

// Kind returns the stable machine-readable kind.
func (e *StoreError) Kind() string { return KindStoreUnavailable }

// Is implements the error interface for error comparison.
func (e *StoreError) Is(target error) bool {
	_, ok := target.(*StoreError)

	return ok
}

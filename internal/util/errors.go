// Package util provides utility functions and types for avaforum.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNotFound.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., ValidationError, StorageError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
//
// All custom error types must implement:
//
//	Error() string           – human-readable message
//	Unwrap() error           – if the type wraps another error
//	Is(target error) bool    – for errors.Is() compatibility
package util

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Common sentinel errors. Every taxonomy type below matches exactly one of them.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrCancelled     = errors.New("request cancelled")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrInternal      = errors.New("internal error")
	ErrStorage       = errors.New("storage failure")
	ErrConfigInvalid = errors.New("invalid configuration")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// FieldError is a single failed field check.
type FieldError struct {
	Field          string `json:"field"`
	Message        string `json:"message"`
	AttemptedValue any    `json:"attemptedValue,omitempty"`
}

// String renders the failure as "field: message".
func (f FieldError) String() string {
	return f.Field + ": " + f.Message
}

// ValidationError carries every field failure collected for one request.
type ValidationError struct {
	RequestType string
	Failures    []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Failures) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError.
func NewValidationError(requestType string, failures []FieldError) *ValidationError {
	return &ValidationError{RequestType: requestType, Failures: failures}
}

// BadRequestError is the client-facing form of a malformed or invalid request.
type BadRequestError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *BadRequestError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *BadRequestError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *BadRequestError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	_, ok := target.(*BadRequestError)
	return ok
}

// NewBadRequestError creates a new BadRequestError.
func NewBadRequestError(message string, cause error) *BadRequestError {
	return &BadRequestError{Message: message, Cause: cause}
}

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is checks if the error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	_, ok := target.(*NotFoundError)
	return ok
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// UnauthorizedError represents a missing or insufficient identity.
type UnauthorizedError struct {
	Message string
}

// Error implements the error interface.
func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "unauthorized"
	}
	return e.Message
}

// Is checks if the error matches the target.
func (e *UnauthorizedError) Is(target error) bool {
	if target == ErrUnauthorized {
		return true
	}
	_, ok := target.(*UnauthorizedError)
	return ok
}

// NewUnauthorizedError creates a new UnauthorizedError.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}

// CancelledError reports that the caller went away or the deadline passed.
// It is a terminal outcome of its own and never an internal error.
type CancelledError struct {
	Operation string
	TimedOut  bool
	Cause     error
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out", e.Operation)
	}
	return fmt.Sprintf("%s cancelled", e.Operation)
}

// Unwrap returns the underlying error.
func (e *CancelledError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *CancelledError) Is(target error) bool {
	if target == ErrCancelled {
		return true
	}
	_, ok := target.(*CancelledError)
	return ok
}

// NewCancelledError creates a new CancelledError.
func NewCancelledError(operation string, timedOut bool, cause error) *CancelledError {
	return &CancelledError{Operation: operation, TimedOut: timedOut, Cause: cause}
}

// RateLimitError represents a rate limit exceeded error.
type RateLimitError struct {
	Limit      int
	Window     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (limit: %d per %s, retry after: %v)", e.Limit, e.Window, e.RetryAfter)
}

// Is checks if the error matches the target.
func (e *RateLimitError) Is(target error) bool {
	if target == ErrRateLimited {
		return true
	}
	_, ok := target.(*RateLimitError)
	return ok
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(limit int, window string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Limit: limit, Window: window, RetryAfter: retryAfter}
}

// InternalError hides the cause behind a generic message. The cause stays
// reachable through Unwrap for logging but is never rendered by Error.
type InternalError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	if e.Message == "" {
		return "internal server error"
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *InternalError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *InternalError) Is(target error) bool {
	if target == ErrInternal {
		return true
	}
	_, ok := target.(*InternalError)
	return ok
}

// NewInternalError creates a new InternalError.
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

// StorageError reports a failure of a backing service (database, cache, queue).
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage %s %s failed: %v", e.Backend, e.Operation, e.Cause)
	}
	return fmt.Sprintf("storage %s %s failed", e.Backend, e.Operation)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *StorageError) Is(target error) bool {
	if target == ErrStorage {
		return true
	}
	_, ok := target.(*StorageError)
	return ok || errors.Is(e.Cause, target)
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// PanicError wraps a value recovered from a panic.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsRuntime reports whether the panic came from the Go runtime
// (nil dereference, out of range, allocation failure).
func (e *PanicError) IsRuntime() bool {
	_, ok := e.Value.(runtime.Error)
	return ok
}

// NewPanicError creates a new PanicError.
func NewPanicError(value any, stack []byte) *PanicError {
	return &PanicError{Value: value, Stack: stack}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsClientError returns true if the error is a client error (4xx).
func IsClientError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrCancelled)
}

// IsServerError returns true if the error is a server error (5xx).
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	return !IsClientError(err)
}

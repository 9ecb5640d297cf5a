package errors

import (
	"fmt"
)

// AcademeError is the structured error type for Academe.
// It provides rich context for error handling, logging, and user presentation.
type AcademeError struct {
	// Code is the unique error code (e.g., "ERR_301_DEPENDENCY_TIMEOUT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Dependency, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AcademeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AcademeError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with AcademeError.
func (e *AcademeError) Is(target error) bool {
	if t, ok := target.(*AcademeError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AcademeError) WithDetail(key, value string) *AcademeError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion overrides the default suggestion for the user.
// Returns the error for method chaining.
func (e *AcademeError) WithSuggestion(suggestion string) *AcademeError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AcademeError with the given code and message.
// Category, severity, retryable flag, and suggestion are derived from the code.
func New(code string, message string, cause error) *AcademeError {
	return &AcademeError{
		Code:       code,
		Message:    message,
		Category:   categoryFromCode(code),
		Severity:   severityFromCode(code),
		Cause:      cause,
		Retryable:  isRetryableCode(code),
		Suggestion: suggestionFromCode(code),
	}
}

// Wrap creates an AcademeError from an existing error.
// The error's message becomes the AcademeError message.
func Wrap(code string, err error) *AcademeError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AcademeError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InputError creates an input validation error.
func InputError(message string, cause error) *AcademeError {
	return New(ErrCodeInvalidInput, message, cause)
}

// NotFoundError creates a document-not-found error.
func NotFoundError(message string, cause error) *AcademeError {
	return New(ErrCodeDocumentNotFound, message, cause)
}

// TimeoutError creates a dependency timeout error.
// Timeout errors are retryable.
func TimeoutError(message string, cause error) *AcademeError {
	return New(ErrCodeDependencyTimeout, message, cause)
}

// UnavailableError creates a dependency unavailable error.
// Unavailable errors are retryable.
func UnavailableError(message string, cause error) *AcademeError {
	return New(ErrCodeDependencyUnavailable, message, cause)
}

// RetrievalUnavailableError indicates neither retrieval path produced results.
func RetrievalUnavailableError(message string, cause error) *AcademeError {
	return New(ErrCodeRetrievalUnavailable, message, cause)
}

// OverloadedError indicates the system is saturated and shedding load.
func OverloadedError(message string) *AcademeError {
	return New(ErrCodeOverloaded, message, nil)
}

// BusyError indicates the ingest queue is full.
func BusyError(message string) *AcademeError {
	return New(ErrCodeIngestBusy, message, nil)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AcademeError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an AcademeError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AcademeError); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AcademeError); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an AcademeError.
// Returns empty string if not an AcademeError.
func GetCode(err error) string {
	if ae, ok := err.(*AcademeError); ok {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an AcademeError.
// Returns empty string if not an AcademeError.
func GetCategory(err error) Category {
	if ae, ok := err.(*AcademeError); ok {
		return ae.Category
	}
	return ""
}

// GetSuggestion extracts the user suggestion from an AcademeError.
// Returns SuggestRetry for unknown errors.
func GetSuggestion(err error) string {
	if ae, ok := err.(*AcademeError); ok && ae.Suggestion != "" {
		return ae.Suggestion
	}
	return SuggestRetry
}

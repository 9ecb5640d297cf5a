// Package errors provides structured error handling for Academe.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Store errors (missing documents, corrupt data)
//   - 3XX: Dependency errors (LLM, embedder, reranker)
//   - 4XX: Input validation errors
//   - 5XX: Internal and capacity errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStore indicates chunk/document store errors.
	CategoryStore Category = "STORE"
	// CategoryDependency indicates external service errors (LLM, embedder, reranker).
	CategoryDependency Category = "DEPENDENCY"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Store errors (200-299)
	ErrCodeDocumentNotFound = "ERR_201_DOCUMENT_NOT_FOUND"
	ErrCodeChunkNotFound    = "ERR_202_CHUNK_NOT_FOUND"
	ErrCodeStoreCorrupt     = "ERR_203_STORE_CORRUPT"
	ErrCodeStoreLocked      = "ERR_204_STORE_LOCKED"

	// Dependency errors (300-399)
	ErrCodeDependencyTimeout     = "ERR_301_DEPENDENCY_TIMEOUT"
	ErrCodeDependencyUnavailable = "ERR_302_DEPENDENCY_UNAVAILABLE"
	ErrCodeRateLimited           = "ERR_303_RATE_LIMITED"
	ErrCodeInvalidResponse       = "ERR_304_INVALID_RESPONSE"
	ErrCodeEmbeddingFailed       = "ERR_305_EMBEDDING_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty        = "ERR_402_QUERY_EMPTY"
	ErrCodeDocumentTooLarge  = "ERR_403_DOCUMENT_TOO_LARGE"
	ErrCodeDimensionMismatch = "ERR_404_DIMENSION_MISMATCH"

	// Internal and capacity errors (500-599)
	ErrCodeInternal             = "ERR_501_INTERNAL"
	ErrCodeRetrievalUnavailable = "ERR_502_RETRIEVAL_UNAVAILABLE"
	ErrCodeOverloaded           = "ERR_503_OVERLOADED"
	ErrCodeIngestBusy           = "ERR_504_INGEST_BUSY"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "301" from "ERR_301_DEPENDENCY_TIMEOUT")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStore
	case '3':
		return CategoryDependency
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if code == ErrCodeStoreCorrupt {
		return SeverityFatal
	}

	// Retryable errors get warning severity: the caller degrades, not aborts.
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeDependencyTimeout,
		ErrCodeDependencyUnavailable,
		ErrCodeRateLimited,
		ErrCodeEmbeddingFailed,
		ErrCodeOverloaded,
		ErrCodeIngestBusy,
		ErrCodeRetrievalUnavailable:
		return true
	}
	return false
}

// User-facing suggestions attached to failed answers.
const (
	SuggestRetry    = "retry"
	SuggestUpload   = "upload more documents"
	SuggestRephrase = "rephrase"
)

// suggestionFromCode maps an error code to the default user suggestion.
func suggestionFromCode(code string) string {
	switch categoryFromCode(code) {
	case CategoryValidation:
		return SuggestRephrase
	case CategoryStore:
		if code == ErrCodeDocumentNotFound || code == ErrCodeChunkNotFound {
			return SuggestUpload
		}
	}
	return SuggestRetry
}

// Package mcp exposes Academe to AI clients over the Model Context
// Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	acerrors "github.com/academe-ai/academe/internal/errors"
)

// Custom MCP error codes for Academe.
const (
	// ErrCodeDocumentNotFound indicates an unknown document ID.
	ErrCodeDocumentNotFound = -32001

	// ErrCodeDependencyUnavailable indicates the LLM or embedder is down.
	ErrCodeDependencyUnavailable = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeBusy indicates the ingestion queue is full.
	ErrCodeBusy = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var ae *acerrors.AcademeError
	if errors.As(err, &ae) {
		return mapAcademeError(ae)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// mapAcademeError converts a structured error to its MCP counterpart.
func mapAcademeError(ae *acerrors.AcademeError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ae.Message, ae.Suggestion)
	}

	switch ae.Code {
	case acerrors.ErrCodeDocumentNotFound, acerrors.ErrCodeChunkNotFound:
		return &MCPError{Code: ErrCodeDocumentNotFound, Message: message}
	case acerrors.ErrCodeDependencyTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case acerrors.ErrCodeDependencyUnavailable, acerrors.ErrCodeRetrievalUnavailable:
		return &MCPError{Code: ErrCodeDependencyUnavailable, Message: message}
	case acerrors.ErrCodeIngestBusy, acerrors.ErrCodeOverloaded:
		return &MCPError{Code: ErrCodeBusy, Message: message}
	}

	switch ae.Category {
	case acerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case acerrors.CategoryDependency:
		return &MCPError{Code: ErrCodeDependencyUnavailable, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

// Package mcp exposes the retrieval engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	chaterrors "github.com/NguyenDuy1910/chatbot/internal/errors"
)

// MCP error codes. The -3200x range is application defined.
const (
	// ErrCodeDocumentNotFound indicates the requested document is not live.
	ErrCodeDocumentNotFound = -32001

	// ErrCodeUpstreamFailed indicates the embedding provider failed.
	ErrCodeUpstreamFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeConflict indicates a duplicate id or a stale version.
	ErrCodeConflict = -32004

	// ErrCodeInconsistency indicates a write could not be rolled back.
	ErrCodeInconsistency = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrToolNotFound indicates the requested tool does not exist.
var ErrToolNotFound = errors.New("tool not found")

// MCPError is an MCP protocol error. Data carries the details of the
// underlying engine error, such as the failing id or query.
type MCPError struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts an engine error to an MCP error.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	if ce, ok := chaterrors.As(err); ok {
		return mapChatbotError(ce)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for an unknown tool.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for an unknown resource.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeDocumentNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapChatbotError(ce *chaterrors.ChatbotError) *MCPError {
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ce.Message, ce.Suggestion)
	}
	out := &MCPError{Message: message}
	if len(ce.Details) > 0 {
		out.Data = make(map[string]string, len(ce.Details)+1)
		for k, v := range ce.Details {
			out.Data[k] = v
		}
	} else {
		out.Data = make(map[string]string, 1)
	}
	out.Data["error_code"] = ce.Code

	switch ce.Kind {
	case chaterrors.KindNotFound:
		out.Code = ErrCodeDocumentNotFound
	case chaterrors.KindUpstream:
		out.Code = ErrCodeUpstreamFailed
		if ce.Code == chaterrors.ErrCodeUpstreamTimeout {
			out.Code = ErrCodeTimeout
		}
	case chaterrors.KindValidation:
		out.Code = ErrCodeInvalidParams
	case chaterrors.KindConflict:
		out.Code = ErrCodeConflict
	case chaterrors.KindInconsistency:
		out.Code = ErrCodeInconsistency
	default:
		out.Code = ErrCodeInternalError
	}
	return out
}

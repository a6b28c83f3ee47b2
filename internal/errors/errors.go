package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ChatbotError is the structured error type of the retrieval engine.
// Every failure surfaced to a caller carries a distinguishable Kind plus
// the failing id or query in Details.
type ChatbotError struct {
	// Code is the unique error code (e.g., "ERR_201_DOCUMENT_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Kind is the taxonomy bucket (NotFound, Conflict, Validation, ...).
	Kind Kind

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
func (e *ChatbotError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Details[k])
	}
	return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, strings.Join(parts, " "))
}

// Unwrap returns the underlying cause for error chain support.
func (e *ChatbotError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ChatbotError.
func (e *ChatbotError) Is(target error) bool {
	if t, ok := target.(*ChatbotError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ChatbotError) WithDetail(key, value string) *ChatbotError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *ChatbotError) WithSuggestion(suggestion string) *ChatbotError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ChatbotError with the given code and message.
// Kind, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ChatbotError {
	return &ChatbotError{
		Code:      code,
		Message:   message,
		Kind:      kindFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ChatbotError from an existing error.
// The error's message becomes the ChatbotError message.
func Wrap(code string, err error) *ChatbotError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// NotFound reports an operation on an unknown or tombstoned document.
func NotFound(id string) *ChatbotError {
	return New(ErrCodeDocumentNotFound, "document not found", nil).WithDetail("id", id)
}

// DuplicateID reports an add on an id that is already live.
func DuplicateID(id string) *ChatbotError {
	return New(ErrCodeDuplicateID, "document already exists", nil).
		WithDetail("id", id).
		WithSuggestion("use update to change an existing document")
}

// StaleVersion reports an update that lost a race against a newer write.
func StaleVersion(id string, expected, current int64) *ChatbotError {
	return New(ErrCodeStaleVersion, "document was modified concurrently", nil).
		WithDetail("id", id).
		WithDetail("expected_version", fmt.Sprint(expected)).
		WithDetail("current_version", fmt.Sprint(current))
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ChatbotError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// UpstreamError creates a retryable upstream error.
func UpstreamError(message string, cause error) *ChatbotError {
	return New(ErrCodeUpstreamUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ChatbotError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ChatbotError {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first ChatbotError in err's chain.
func As(err error) (*ChatbotError, bool) {
	var ce *ChatbotError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
// A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable checks if an error is retryable.
// Returns true if the chain holds a ChatbotError with Retryable set.
func IsRetryable(err error) bool {
	if ce, ok := As(err); ok {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ce, ok := As(err); ok {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a ChatbotError.
// Returns empty string if not a ChatbotError.
func GetCode(err error) string {
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return ""
}

// Inconsistency reports a compensation that itself failed, leaving the stores
// divergent. It is fatal and is never retried automatically.
func Inconsistency(id string, succeeded, failed []string, cause error) *ChatbotError {
	return New(ErrCodeInternalInconsistency, "compensation failed, stores diverged", cause).
		WithDetail("id", id).
		WithDetail("succeeded", strings.Join(succeeded, ",")).
		WithDetail("failed", strings.Join(failed, ",")).
		WithSuggestion("run `chatbot check --repair` to reconcile the indexes")
}

// Package errors provides structured error handling for the retrieval engine.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Not found (unknown or tombstoned document)
//   - 3XX: Upstream unavailable (embedding provider, index engine), retryable
//   - 4XX: Validation errors
//   - 5XX: Internal errors, 502 marks divergent stores
//   - 6XX: Conflicts (duplicate add, stale update)
package errors

// Kind classifies an error for callers deciding whether to retry, resubmit or alert.
type Kind string

const (
	// KindConfig indicates configuration-related errors.
	KindConfig Kind = "CONFIG"
	// KindNotFound indicates an operation on an unknown or tombstoned id.
	KindNotFound Kind = "NOT_FOUND"
	// KindUpstream indicates the embedding provider or an index engine is unreachable.
	KindUpstream Kind = "UPSTREAM_UNAVAILABLE"
	// KindValidation indicates malformed input.
	KindValidation Kind = "VALIDATION"
	// KindInternal indicates unexpected internal errors.
	KindInternal Kind = "INTERNAL"
	// KindInconsistency indicates a failed compensation left stores divergent.
	KindInconsistency Kind = "INTERNAL_INCONSISTENCY"
	// KindConflict indicates a duplicate add or a stale write.
	KindConflict Kind = "CONFLICT"
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

// Error codes organized by kind.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeDataDirLocked  = "ERR_103_DATA_DIR_LOCKED"

	// Not found (200-299)
	ErrCodeDocumentNotFound = "ERR_201_DOCUMENT_NOT_FOUND"

	// Upstream errors (300-399)
	ErrCodeUpstreamTimeout     = "ERR_301_UPSTREAM_TIMEOUT"
	ErrCodeUpstreamUnavailable = "ERR_302_UPSTREAM_UNAVAILABLE"
	ErrCodeStorageUnavailable  = "ERR_303_STORAGE_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidFilter     = "ERR_403_INVALID_FILTER"
	ErrCodeEmptyText         = "ERR_404_EMPTY_TEXT"
	ErrCodeQueryEmpty        = "ERR_405_QUERY_EMPTY"
	ErrCodeInvalidID         = "ERR_406_INVALID_ID"

	// Internal errors (500-599)
	ErrCodeInternal              = "ERR_501_INTERNAL"
	ErrCodeInternalInconsistency = "ERR_502_INTERNAL_INCONSISTENCY"
	ErrCodeIndexFailed           = "ERR_503_INDEX_FAILED"
	ErrCodeSearchFailed          = "ERR_504_SEARCH_FAILED"

	// Conflict errors (600-699)
	ErrCodeDuplicateID  = "ERR_601_DUPLICATE_ID"
	ErrCodeStaleVersion = "ERR_602_STALE_VERSION"
)

// kindFromCode extracts the kind from an error code.
func kindFromCode(code string) Kind {
	if code == ErrCodeInternalInconsistency {
		return KindInconsistency
	}
	if len(code) < 7 {
		return KindInternal
	}

	// Numeric portion, e.g. "201" from "ERR_201_DOCUMENT_NOT_FOUND"
	switch code[4] {
	case '1':
		return KindConfig
	case '2':
		return KindNotFound
	case '3':
		return KindUpstream
	case '4':
		return KindValidation
	case '6':
		return KindConflict
	default:
		return KindInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeInternalInconsistency, ErrCodeDataDirLocked:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode reports whether an error code represents a retryable error.
// Only upstream failures qualify; an inconsistency is never retried automatically.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeUpstreamTimeout, ErrCodeUpstreamUnavailable, ErrCodeStorageUnavailable:
		return true
	default:
		return false
	}
}

package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chaterrors "github.com/NguyenDuy1910/chatbot/internal/errors"
)

func TestMapError_NilError(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_EngineErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", chaterrors.NotFound("1"), ErrCodeDocumentNotFound},
		{"duplicate", chaterrors.DuplicateID("1"), ErrCodeConflict},
		{"stale version", chaterrors.New(chaterrors.ErrCodeStaleVersion, "stale", nil), ErrCodeConflict},
		{"validation", chaterrors.New(chaterrors.ErrCodeInvalidFilter, "bad filter", nil), ErrCodeInvalidParams},
		{"upstream", chaterrors.New(chaterrors.ErrCodeUpstreamUnavailable, "down", nil), ErrCodeUpstreamFailed},
		{"upstream timeout", chaterrors.New(chaterrors.ErrCodeUpstreamTimeout, "slow", nil), ErrCodeTimeout},
		{"inconsistency", chaterrors.Inconsistency("1", []string{"store"}, []string{"vector", "undo_store"}, errors.New("x")), ErrCodeInconsistency},
		{"internal", chaterrors.New(chaterrors.ErrCodeInternal, "boom", nil), ErrCodeInternalError},
		{"wrapped", fmt.Errorf("ctx: %w", chaterrors.NotFound("2")), ErrCodeDocumentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)

			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
			assert.NotEmpty(t, got.Data["error_code"])
		})
	}
}

func TestMapError_KeepsDetailsAndSuggestion(t *testing.T) {
	// Given: a duplicate id error with a suggestion
	err := chaterrors.DuplicateID("101")

	// When: mapping the error
	got := MapError(err)

	// Then: the id and suggestion reach the client
	assert.Equal(t, "101", got.Data["id"])
	assert.Equal(t, chaterrors.ErrCodeDuplicateID, got.Data["error_code"])
	assert.Contains(t, got.Message, "use update")
}

func TestMapError_ContextErrors(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, MapError(context.DeadlineExceeded).Code)
	assert.Equal(t, ErrCodeTimeout, MapError(context.Canceled).Code)
	assert.Equal(t, ErrCodeMethodNotFound, MapError(ErrToolNotFound).Code)
	assert.Equal(t, ErrCodeInternalError, MapError(errors.New("unknown")).Code)
}

func TestMapError_PassesMCPErrorThrough(t *testing.T) {
	orig := NewInvalidParamsError("id is required")

	assert.Same(t, orig, MapError(orig))
	assert.Equal(t, "MCP error -32602: id is required", orig.Error())
}

package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ReadDocument(t *testing.T) {
	// Given: a stored document
	s, _ := newTestServer(t)
	call[DocumentOutput](t, s, ToolAddDocument, map[string]any{
		"id": "101", "text": "Quantum computing", "metadata": map[string]any{"topic": "physics"},
	})

	// When: I read its resource
	res, err := s.readDocument(context.Background(), DocumentURIPrefix+"101")

	// Then: the body is the document as JSON
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)

	var doc documentResource
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &doc))
	assert.Equal(t, "101", doc.ID)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, "physics", doc.Metadata["topic"])
}

func TestServer_ReadDocumentErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		uri  string
		code int
	}{
		{"absent id", DocumentURIPrefix + "nope", ErrCodeDocumentNotFound},
		{"empty id", DocumentURIPrefix, ErrCodeDocumentNotFound},
		{"other scheme", "file:///etc/passwd", ErrCodeDocumentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.readDocument(context.Background(), tt.uri)

			require.Error(t, err)
			mcpErr, ok := err.(*MCPError)
			require.True(t, ok)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}
}

func TestServer_ReadStats(t *testing.T) {
	s, _ := newTestServer(t)
	call[DocumentOutput](t, s, ToolAddDocument, map[string]any{"id": "1", "text": "first"})

	res, err := s.readStats(context.Background())

	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &stats))
	assert.Equal(t, float64(1), stats["documents"])
}

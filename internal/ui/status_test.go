package ui

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		Stats: retrieval.Stats{
			Documents:      3,
			Tombstoned:     1,
			LexicalEntries: 3,
			LexicalTerms:   42,
			VectorEntries:  3,
			PendingPurges:  1,
			Dimensions:     256,
			Model:          "static-hash-256",
			VectorBackend:  "hnsw",
			Generation:     2,
			DataDir:        "/tmp/.chatbot",
		},
		Provider:        "static",
		EmbedderStatus:  "ready",
		Inconsistencies: -1,
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.Render(sampleStatus()))

	out := buf.String()
	assert.Contains(t, out, "Index Status: /tmp/.chatbot")
	assert.Contains(t, out, "Documents:    3")
	assert.Contains(t, out, "Lexical:    3 entries, 42 terms")
	assert.Contains(t, out, "Vector:     3 entries (hnsw)")
	assert.Contains(t, out, "Model:      static-hash-256")
	assert.Contains(t, out, "Status:     ready")
	assert.NotContains(t, out, "Consistency")
}

func TestStatusRenderer_Consistency(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "Consistency:  ok"},
		{2, "Consistency:  2 inconsistencies"},
	}
	for _, tt := range tests {
		buf := &bytes.Buffer{}
		info := sampleStatus()
		info.Inconsistencies = tt.n

		require.NoError(t, NewStatusRenderer(buf, true).Render(info))

		assert.Contains(t, buf.String(), tt.want)
	}
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, NewStatusRenderer(buf, true).RenderJSON(sampleStatus()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, float64(3), got["documents"])
	assert.Equal(t, "static", got["provider"])
	assert.Equal(t, "ready", got["embedder_status"])
	assert.Equal(t, "hnsw", got["vector_backend"])
}

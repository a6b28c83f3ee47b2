package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(42).String())
}

func TestOptions_WithDefaults(t *testing.T) {
	opts := Options{DebounceWindow: 10 * time.Millisecond}.WithDefaults()

	assert.Equal(t, 10*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, 5*time.Second, opts.PollInterval)
	assert.Equal(t, 1000, opts.EventBufferSize)
	assert.Equal(t, []string{".txt", ".md"}, opts.Extensions)
}

func TestOptions_Ignored(t *testing.T) {
	opts := Options{IgnorePatterns: []string{"drafts/*", "*.tmp.md"}}.WithDefaults()

	tests := []struct {
		rel   string
		isDir bool
		want  bool
	}{
		{"laws/giao-thong.md", false, false},
		{"notes.TXT", false, false},
		{"laws", true, false},
		{"main.go", false, true},
		{"README", false, true},
		{".git", true, true},
		{".chatbot/documents.db", false, true},
		{"laws/.hidden.md", false, true},
		{"drafts/plan.md", false, true},
		{"laws/copy.tmp.md", false, true},
		{".", true, true},
		{"", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, opts.Ignored(tt.rel, tt.isDir))
		})
	}
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "laws/giao-thong.md", DocumentID("laws/./giao-thong.md"))
	assert.Equal(t, "a.txt", DocumentID("a.txt"))
}

package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestIngestModel_View(t *testing.T) {
	// Given: an indexing run half done
	tracker := NewProgressTracker()
	tracker.SetStage(StageIndexing, 10)
	tracker.Update(5, "laws/dat-dai.md")
	tracker.AddError(ErrorEvent{Item: "x", Err: assert.AnError})
	m := newIngestModel(tracker, "docs")
	m.styles = NoColorStyles()

	// When: rendering
	view := m.View()

	// Then: stages, counts and the current item are shown
	assert.Contains(t, view, "Ingest • docs")
	assert.Contains(t, view, "Scanning")
	assert.Contains(t, view, "Indexing")
	assert.Contains(t, view, "Purging")
	assert.Contains(t, view, "5 / 10 documents")
	assert.Contains(t, view, "laws/dat-dai.md")
	assert.Contains(t, view, "1 failed")
}

func TestIngestModel_Complete(t *testing.T) {
	m := newIngestModel(NewProgressTracker(), "")
	m.styles = NoColorStyles()

	_, cmd := m.Update(completeMsg(CompletionStats{Added: 4, Skipped: 2, Duration: 90 * time.Second}))

	require.NotNil(t, cmd)
	assert.True(t, m.complete)
	view := m.View()
	assert.Contains(t, view, "Ingest complete")
	assert.Contains(t, view, "4")
	assert.Contains(t, view, "1m 30s")
}

func TestIngestModel_Quit(t *testing.T) {
	m := newIngestModel(NewProgressTracker(), "")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	require.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", m.View())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{1400 * time.Millisecond, "1s"},
		{2 * time.Minute, "2m"},
		{125 * time.Second, "2m 5s"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "...đường", truncate("luật giao thông đường", 8))
	assert.Equal(t, "...", truncate("abcdef", 2))
}

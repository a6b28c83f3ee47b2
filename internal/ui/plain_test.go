package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress(t *testing.T) {
	tests := []struct {
		name  string
		event ProgressEvent
		want  string
	}{
		{
			name:  "counted item",
			event: ProgressEvent{Stage: StageIndexing, Current: 5, Total: 10, Item: "laws/giao-thong.md"},
			want:  "[INDEX] 5/10 - laws/giao-thong.md\n",
		},
		{
			name:  "message wins over item",
			event: ProgressEvent{Stage: StageScanning, Item: "x", Message: "walking docs"},
			want:  "[SCAN] walking docs\n",
		},
		{
			name:  "nothing to say",
			event: ProgressEvent{Stage: StagePurging},
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			r := NewPlainRenderer(NewConfig(buf))

			r.UpdateProgress(tt.event)

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_AddError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(ErrorEvent{Item: "doc-1", Err: errors.New("embedding failed")})
	r.AddError(ErrorEvent{Err: errors.New("slow provider"), IsWarn: true})

	assert.Equal(t, "ERROR: doc-1: embedding failed\nWARN: slow provider\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a finished run with a failure
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	// When: completing
	r.Complete(CompletionStats{
		Added: 3, Updated: 1, Skipped: 2, Deleted: 1, Failed: 1,
		Duration: 1234 * time.Millisecond,
		Embedder: EmbedderInfo{Provider: "static", Model: "static-hash-256", Dimensions: 256},
	})
	require.NoError(t, r.Stop())

	// Then: the summary lists every count
	assert.Equal(t,
		"Complete: 3 added, 1 updated, 2 unchanged, 1 deleted in 1.2s (1 failed, 0 warnings)\n"+
			"Embedder: static (static-hash-256, 256 dims)\n",
		buf.String())
}

package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

func TestIndexer_Sync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.add(t, "live", "Điều 1. Phạm vi điều chỉnh của luật này")
	f.add(t, "gone", "old text")
	_, err := f.ix.Delete(ctx, "gone")
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      string
		text    string
		want    SyncAction
		version int64
	}{
		{name: "absent id is added", id: "new", text: "brand new text", want: SyncAdded, version: 1},
		{name: "deleted id is resurrected", id: "gone", text: "back again", want: SyncAdded, version: 3},
		{name: "near-identical text is skipped", id: "live", text: "Điều 1. Phạm vi điều chỉnh của luật này!", want: SyncSkipped, version: 1},
		{name: "changed text is updated", id: "live", text: "Điều 2. Đối tượng áp dụng", want: SyncUpdated, version: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, res, err := f.ix.Sync(ctx, tt.id, tt.text, nil)

			require.NoError(t, err)
			assert.Equal(t, tt.want, action)
			assert.Equal(t, tt.version, res.Version)
		})
	}
}

func TestIndexer_SyncBatch(t *testing.T) {
	// Given: one live document
	f := newFixture(t)
	f.add(t, "1", "the quick brown fox")

	// When: I sync a mixed batch
	report, err := f.ix.SyncBatch(context.Background(), []SyncItem{
		{ID: "1", Text: "the quick brown fox"},
		{ID: "2", Text: "jumps over the lazy dog"},
		{ID: "3", Text: "a third document"},
		{ID: "4", Text: "   "},
	})

	// Then: the report counts every outcome and failures carry their error
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 1, report.Failed)
	require.Contains(t, report.Errors, "4")
	assert.Equal(t, errors.KindValidation, errors.KindOf(report.Errors["4"]))

	counts, err := f.docs.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Live)
}

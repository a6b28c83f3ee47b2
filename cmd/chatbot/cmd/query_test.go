package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/index"
	"github.com/NguyenDuy1910/chatbot/internal/search"
	"github.com/NguyenDuy1910/chatbot/internal/ui"
	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
)

func seedLaws(t *testing.T, dir string) {
	t.Helper()
	for _, d := range []struct{ id, year, text string }{
		{"1", "2008", "Luật giao thông đường bộ"},
		{"2", "2013", "Luật đất đai"},
		{"3", "2015", "Bộ luật dân sự"},
	} {
		mustRun(t, dir, "add", "--id", d.id, "--meta", "year="+d.year, d.text)
	}
}

func recordIDs(records []search.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestQueryCmd(t *testing.T) {
	dir := newProject(t)
	seedLaws(t, dir)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "filter and sort", args: []string{"WHERE year >= 2013 ORDER BY year DESC"}, want: []string{"3", "2"}},
		{name: "prefix is optional", args: []string{"/sql WHERE year < 2013"}, want: []string{"1"}},
		{name: "in list", args: []string{"WHERE", "year", "IN", "(2008,", "2015)"}, want: []string{"1", "3"}},
		{name: "limit flag overrides", args: []string{"ORDER BY year DESC LIMIT 3", "--limit", "1"}, want: []string{"3"}},
		{name: "no match", args: []string{"WHERE year > 2100"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"query", "--format", "json"}, tt.args...)

			records := decode[[]search.Record](t, mustRun(t, dir, args...))

			assert.Equal(t, tt.want, recordIDs(records))
		})
	}

	_, err := run(t, dir, "", "query", "WHERE year == 2013")
	assert.Equal(t, errors.ErrCodeInvalidFilter, errors.GetCode(err))
}

func TestSearchCmd_Structured(t *testing.T) {
	dir := newProject(t)
	seedLaws(t, dir)

	// When: search gets a /sql query
	resp := decode[retrieval.QueryResponse](t, mustRun(t, dir, "search", "--format", "json", "-n", "2", "/sql ORDER BY year"))

	// Then: it is answered by the structured path, capped by top-n
	assert.Equal(t, retrieval.ModeStructured, resp.Mode)
	assert.Equal(t, []string{"1", "2"}, recordIDs(resp.Records))
	assert.Empty(t, resp.Results)

	out := mustRun(t, dir, "search", "/sql WHERE year = 2013")
	assert.Contains(t, out, " 1. 2  version=1 year=2013")
}

func TestSearchCmd_Options(t *testing.T) {
	dir := newProject(t)
	seedLaws(t, dir)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "lexical weight alone", args: []string{"--lexical-weight", "1"}},
		{name: "both weights", args: []string{"--lexical-weight", "0.3", "--vector-weight", "0.7"}},
		{name: "weights must sum to one", args: []string{"--lexical-weight", "0.3", "--vector-weight", "0.3"}, wantErr: "sum"},
		{name: "certainty out of range", args: []string{"--certainty", "2"}, wantErr: "certainty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"search", "--format", "json"}, tt.args...)
			out, err := run(t, dir, "", append(args, "đất đai")...)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			resp := decode[retrieval.QueryResponse](t, out)
			require.NotEmpty(t, resp.Results)
			assert.Equal(t, "2", resp.Results[0].ID)
		})
	}

	// A certainty above every similarity leaves nothing.
	resp := decode[retrieval.QueryResponse](t, mustRun(t, dir, "search", "--format", "json", "--certainty", "1", "đất đai"))
	assert.Empty(t, resp.Results)

	_, err := run(t, dir, "", "search", "   ")
	assert.Equal(t, errors.ErrCodeQueryEmpty, errors.GetCode(err))
}

func TestSyncCmd(t *testing.T) {
	// Given: a project with three documents and a non-document
	dir := newProject(t)
	write := func(rel, text string) {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	}
	write("a.md", "Quantum computing uses qubits.")
	write("b.txt", "The history of the Roman empire.")
	write("laws/c.md", "Luật đất đai sửa đổi")
	write("image.png", "not a document")

	// When: the directory is synced
	out := mustRun(t, dir, "sync", "--plain")

	// Then: every text file became a document keyed by its path
	assert.Contains(t, out, "Complete: 3 added, 0 updated, 0 unchanged, 0 deleted")
	assert.Contains(t, out, "Embedder: static")
	records := decode[[]search.Record](t, mustRun(t, dir, "query", "--format", "json", "WHERE source = 'file' ORDER BY path"))
	assert.Equal(t, []string{"a.md", "b.txt", "laws/c.md"}, recordIDs(records))

	// When: a file is removed and another changed, then synced with --prune
	require.NoError(t, os.Remove(filepath.Join(dir, "a.md")))
	write("b.txt", "Completely different text about the Vietnamese land law.")
	out = mustRun(t, dir, "sync", "--plain", "--prune")

	// Then: the gone file is deleted and the changed one updated
	assert.Contains(t, out, "Complete: 0 added, 1 updated, 1 unchanged, 1 deleted")
	records = decode[[]search.Record](t, mustRun(t, dir, "query", "--format", "json", "WHERE source = 'file'"))
	assert.Equal(t, []string{"b.txt", "laws/c.md"}, recordIDs(records))
}

func TestCheckCmd(t *testing.T) {
	dir := newProject(t)
	seedLaws(t, dir)

	out := mustRun(t, dir, "check")
	assert.Contains(t, out, "3 documents checked, indexes consistent")

	report := decode[struct {
		Checked         int                   `json:"checked"`
		Inconsistencies []index.Inconsistency `json:"inconsistencies"`
	}](t, mustRun(t, dir, "check", "--json", "--repair"))
	assert.Equal(t, 3, report.Checked)
	assert.Empty(t, report.Inconsistencies)
}

func TestStatsCmd(t *testing.T) {
	dir := newProject(t)
	seedLaws(t, dir)

	info := decode[ui.StatusInfo](t, mustRun(t, dir, "stats", "--json"))
	assert.Equal(t, 3, info.Documents)
	assert.Equal(t, 3, info.LexicalEntries)
	assert.Equal(t, 3, info.VectorEntries)
	assert.Equal(t, 64, info.Dimensions)
	assert.Equal(t, "static", info.Provider)
	assert.Equal(t, "ready", info.EmbedderStatus)
	assert.Equal(t, -1, info.Inconsistencies)

	info = decode[ui.StatusInfo](t, mustRun(t, dir, "stats", "--json", "--check"))
	assert.Equal(t, 0, info.Inconsistencies)

	out := mustRun(t, dir, "stats", "--no-color")
	assert.Contains(t, out, "Documents:    3")
}

func TestResetCmd(t *testing.T) {
	// Given: a project with documents
	dir := newProject(t)
	seedLaws(t, dir)
	before := decode[ui.StatusInfo](t, mustRun(t, dir, "stats", "--json"))

	// When: the confirmation is refused
	_, err := run(t, dir, "no\n", "reset")

	// Then: nothing is deleted
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
	assert.Equal(t, 3, decode[ui.StatusInfo](t, mustRun(t, dir, "stats", "--json")).Documents)

	// When: it is confirmed
	out, err := run(t, dir, "yes\n", "reset")

	// Then: the index is empty and a new generation started
	require.NoError(t, err)
	assert.Contains(t, out, "Index reset")
	after := decode[ui.StatusInfo](t, mustRun(t, dir, "stats", "--json"))
	assert.Equal(t, 0, after.Documents)
	assert.Equal(t, 0, after.LexicalEntries)
	assert.Equal(t, 0, after.VectorEntries)
	assert.Equal(t, before.Generation+1, after.Generation)

	// And: ids can be reused
	mustRun(t, dir, "reset", "--yes")
	mustRun(t, dir, "add", "--id", "1", "Luật giao thông đường bộ")
}

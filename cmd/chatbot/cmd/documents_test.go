package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
	"github.com/NguyenDuy1910/chatbot/internal/index"
	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
)

func TestDocumentCommands_Lifecycle(t *testing.T) {
	// Given: an empty project
	dir := newProject(t)

	// When: I add two documents
	out := mustRun(t, dir, "add", "--id", "101", "--meta", "year=2020", "--meta", "topic=physics",
		"Quantum computing uses qubits.")
	assert.Equal(t, "✅ added 101 (version 1)\n", out)
	mustRun(t, dir, "add", "--id", "102", "The history of the Roman empire.")

	// Then: the document reads back with decoded metadata
	doc := decode[documentView](t, mustRun(t, dir, "get", "101", "--format", "json"))
	assert.Equal(t, "Quantum computing uses qubits.", doc.Text)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, map[string]any{"year": float64(2020), "topic": "physics"}, doc.Metadata)

	// When: I update it from stdin
	out, err := run(t, dir, "Quantum computers use qubits and gates.", "update", "101", "--file", "-")
	require.NoError(t, err)
	assert.Equal(t, "✅ updated 101 (version 2)\n", out)

	// Then: search finds the new text first
	resp := decode[retrieval.QueryResponse](t, mustRun(t, dir, "search", "quantum", "gates", "-n", "1", "--format", "json"))
	assert.Equal(t, retrieval.ModeHybrid, resp.Mode)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "101", resp.Results[0].ID)
	assert.Equal(t, int64(2), resp.Results[0].Version)

	text := mustRun(t, dir, "search", "quantum", "-n", "1")
	assert.True(t, strings.HasPrefix(text, " 1. 101  score="), text)

	// When: I delete it and an id that never existed
	out = mustRun(t, dir, "delete", "101", "404")
	assert.Equal(t, "✅ deleted 101 (version 3)\n• deleted 404 (no document)\n", out)

	// Then: it no longer reads or ranks
	_, err = run(t, dir, "", "get", "101")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	resp = decode[retrieval.QueryResponse](t, mustRun(t, dir, "search", "quantum", "--format", "json"))
	for _, r := range resp.Results {
		assert.NotEqual(t, "101", r.ID)
	}
}

func TestAddCmd_GeneratesID(t *testing.T) {
	dir := newProject(t)

	res := decode[index.Result](t, mustRun(t, dir, "add", "--format", "json", "a document without an id"))

	_, err := uuid.Parse(res.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), res.Version)
}

func TestAddCmd_ReadsFile(t *testing.T) {
	dir := newProject(t)
	path := filepath.Join(t.TempDir(), "luat.txt")
	require.NoError(t, os.WriteFile(path, []byte("Luật đất đai sửa đổi năm 2013"), 0o644))

	mustRun(t, dir, "add", "--id", "law", "--file", path)

	doc := decode[documentView](t, mustRun(t, dir, "get", "law", "--format", "json"))
	assert.Equal(t, "Luật đất đai sửa đổi năm 2013", doc.Text)
}

func TestDocumentCommands_Errors(t *testing.T) {
	dir := newProject(t)
	mustRun(t, dir, "add", "--id", "1", "first document")

	tests := []struct {
		name string
		args []string
		kind errors.Kind
		msg  string
	}{
		{name: "duplicate id", args: []string{"add", "--id", "1", "again"}, kind: errors.KindConflict},
		{name: "update of absent id", args: []string{"update", "404", "text"}, kind: errors.KindNotFound},
		{name: "blank text", args: []string{"add", "--id", "2", "   "}, kind: errors.KindValidation},
		{name: "text and file", args: []string{"add", "--id", "3", "--file", "x.txt", "text"}, msg: "not both"},
		{name: "metadata without value", args: []string{"add", "--id", "4", "--meta", "year", "text"}, msg: "expected key=value"},
		{name: "unknown format", args: []string{"add", "--id", "5", "--format", "xml", "text"}, msg: "unknown format"},
		{name: "update needs an id", args: []string{"update"}, msg: "requires at least 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, dir, "", tt.args...)

			require.Error(t, err)
			if tt.kind != "" {
				assert.Equal(t, tt.kind, errors.KindOf(err))
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "none", pairs: nil, want: nil},
		{name: "string", pairs: []string{"topic=land"}, want: map[string]any{"topic": "land"}},
		{name: "number", pairs: []string{"year=2013"}, want: map[string]any{"year": float64(2013)}},
		{name: "bool and list", pairs: []string{"draft=false", `tags=["a","b"]`}, want: map[string]any{"draft": false, "tags": []any{"a", "b"}}},
		{name: "quoted number stays a string", pairs: []string{`code="2013"`}, want: map[string]any{"code": "2013"}},
		{name: "value with equals sign", pairs: []string{"expr=a=b"}, want: map[string]any{"expr": "a=b"}},
		{name: "empty value", pairs: []string{"note="}, want: map[string]any{"note": ""}},
		{name: "missing key", pairs: []string{"=x"}, wantErr: true},
		{name: "missing separator", pairs: []string{"flag"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMetadata(tt.pairs)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

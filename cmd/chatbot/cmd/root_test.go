package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NguyenDuy1910/chatbot/internal/config"
	"github.com/NguyenDuy1910/chatbot/pkg/version"
)

// newProject creates a project directory whose config keeps tests fast:
// small static embeddings and the flat vector index.
func newProject(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	cfg := config.NewConfig()
	cfg.Embeddings.Dimensions = 64
	cfg.Index.VectorBackend = config.BackendFlat
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, config.ProjectConfigName)))
	return dir
}

// run executes the CLI against dir and returns stdout.
func run(t *testing.T, dir string, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"-C", dir}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, "", args...)
	require.NoError(t, err, "chatbot %s", strings.Join(args, " "))
	return out
}

func decode[T any](t *testing.T, data string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(data), &v), data)
	return v
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	// When: executing with --help
	err := cmd.Execute()

	// Then: it lists the document commands
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "chatbot")
	for _, sub := range []string{"add", "update", "delete", "search", "query", "reset", "sync", "serve"} {
		assert.Contains(t, output, sub)
	}
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.Subset(t, names, []string{
		"init", "add", "update", "delete", "get", "search", "query", "reset",
		"sync", "watch", "check", "stats", "config", "serve", "tui", "version",
	})
}

func TestServeCmd_HasTransportFlag(t *testing.T) {
	cmd := newServeCmd(&globalOptions{})

	flag := cmd.Flags().Lookup("transport")

	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}

func TestVersionCmd(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, out string)
	}{
		{
			name: "default",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "chatbot")
				assert.Contains(t, out, version.Version)
				assert.Contains(t, out, "commit")
			},
		},
		{
			name: "short",
			args: []string{"--short"},
			check: func(t *testing.T, out string) {
				assert.Equal(t, version.Version, strings.TrimSpace(out))
			},
		},
		{
			name: "json",
			args: []string{"--json"},
			check: func(t *testing.T, out string) {
				info := decode[version.BuildInfo](t, out)
				assert.Equal(t, version.Version, info.Version)
				assert.NotEmpty(t, info.GoVersion)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newVersionCmd()
			buf := &bytes.Buffer{}
			cmd.SetOut(buf)
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			tt.check(t, buf.String())
		})
	}
}

func TestInitCmd(t *testing.T) {
	// Given: an empty project directory
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, config.ProjectConfigName)

	// When: init runs
	out := mustRun(t, dir, "init")

	// Then: the template is written and loads
	assert.Contains(t, out, "Wrote "+path)
	_, err := config.Load(dir)
	require.NoError(t, err)

	// When: init runs again without --force
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))
	out = mustRun(t, dir, "init")

	// Then: the file is kept
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))

	// When: init runs with --force
	out = mustRun(t, dir, "init", "--force")

	// Then: the old file is backed up and replaced
	assert.Contains(t, out, "Backed up to")
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vector_backend: hnsw")
}

func TestConfigCmd(t *testing.T) {
	dir := newProject(t)

	out := mustRun(t, dir, "config")
	assert.Contains(t, out, "vector_backend: flat")
	assert.Contains(t, out, "dimensions: 64")

	cfg := decode[config.Config](t, mustRun(t, dir, "config", "--json"))
	assert.Equal(t, filepath.Join(dir, config.DefaultDataDir), cfg.DataDir)
}

func TestRootCmd_WritesProfiles(t *testing.T) {
	// Given: a project and profile paths
	dir := newProject(t)
	profDir := t.TempDir()
	cpu := filepath.Join(profDir, "cpu.prof")
	heap := filepath.Join(profDir, "heap.prof")

	// When: a command runs with profiling
	mustRun(t, dir, "--profile-cpu", cpu, "--profile-mem", heap, "add", "--id", "1", "profiled document")

	// Then: both profiles are written
	for _, path := range []string{cpu, heap} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	// When: executing with --help
	output, err := execRoot(t, "--help")

	// Then: usage information is shown
	require.NoError(t, err)
	assert.Contains(t, output, "docpull")
	assert.Contains(t, output, "Usage:")
}

func TestRootCmd_ShowsVersion(t *testing.T) {
	// When: executing with --version
	output, err := execRoot(t, "--version")

	// Then: the version template is rendered
	require.NoError(t, err)
	assert.Contains(t, output, "docpull version")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	for _, want := range []string{
		"init", "ingest", "search", "similar", "documents",
		"stats", "check", "compact", "watch", "config", "version",
	} {
		assert.Contains(t, names, want, "missing %q subcommand", want)
	}
}

func TestRootCmd_HasPersistentFlags(t *testing.T) {
	cmd := NewRootCmd()

	require.NotNil(t, cmd.PersistentFlags().Lookup("data-dir"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("json"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("verbose"))
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	// When: executing search with no arguments
	_, err := execRoot(t, "search")

	// Then: argument validation fails
	require.Error(t, err)
}

func TestIngestCmd_RejectsMalformedMeta(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv("HOME", tmpDir)

	// When: executing ingest with a --meta value that has no key
	_, err := execRoot(t, "ingest", "somefile.txt", "--meta", "=oops")

	// Then: the flag is rejected before any engine work
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")
}

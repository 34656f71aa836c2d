package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: text mode prints plain lines, JSON calls are silent
func TestTextMode(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, false)

	w.Print("hello")
	w.Successf("ingested %d files", 3)
	require.NoError(t, w.JSON(map[string]int{"files": 3}))

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "ingested 3 files")
	assert.NotContains(t, out, "{")
}

// TS02: JSON mode emits only the marshaled payload
func TestJSONMode(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, true)

	w.Print("should not appear")
	w.Warning("should not appear either")
	require.NoError(t, w.JSON(map[string]any{"chunks": 12}))

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, float64(12), parsed["chunks"])
	assert.NotContains(t, buf.String(), "should not appear")
}

// TS03: a non-terminal writer gets no icons
func TestNoIconsWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, false)

	w.Success("done")
	w.Error("broken")

	assert.Equal(t, "done\nerror: broken\n", buf.String())
}

// TS04: table columns align to the widest cell
func TestTable(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf, false)

	w.Table([]string{"ID", "NAME"}, [][]string{
		{"1", "short"},
		{"2", "a much longer name"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "--")
	assert.Contains(t, lines[3], "a much longer name")
}

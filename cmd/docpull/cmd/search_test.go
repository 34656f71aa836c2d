package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		input   string
		start   int
		end     int
		wantErr bool
	}{
		{input: "3", start: 3, end: 3},
		{input: "3-10", start: 3, end: 10},
		{input: "7-7", start: 7, end: 7},
		{input: "10-3", wantErr: true},
		{input: "0", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "3-", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			start, end, err := parsePageRange(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestParseMetaFlags(t *testing.T) {
	// Valid pairs parse into a map, values may contain '='.
	meta, err := parseMetaFlags([]string{"team=infra", "url=http://x?a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"team": "infra", "url": "http://x?a=b"}, meta)

	// Nil input stays nil so no empty filter is applied downstream.
	meta, err = parseMetaFlags(nil)
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, err = parseMetaFlags([]string{"noequals"})
	require.Error(t, err)

	_, err = parseMetaFlags([]string{"=value"})
	require.Error(t, err)
}

func TestBuildSearchOptions(t *testing.T) {
	opts, err := buildSearchOptions(searchFlags{
		topK:     5,
		kind:     "text",
		pages:    "2-4",
		meta:     []string{"team=infra"},
		noRerank: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, opts.TopK)
	assert.False(t, opts.Rerank)
	assert.Equal(t, "text", opts.Filters.ChunkKind)
	assert.Equal(t, 2, opts.Filters.StartPage)
	assert.Equal(t, 4, opts.Filters.EndPage)
	assert.Equal(t, "infra", opts.Filters.Metadata["team"])

	_, err = buildSearchOptions(searchFlags{pages: "bogus"})
	require.Error(t, err)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short text", snippet("short   text\n", 20))

	long := snippet("aaaa bbbb cccc dddd", 9)
	assert.Equal(t, "aaaa bbbb…", long)
}

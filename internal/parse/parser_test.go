package parse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/docpull/docpull/internal/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TS01: Plain text parses as a single page
func TestTextParserSinglePage(t *testing.T) {
	path := writeFile(t, "notes.txt", "hello world")

	doc, err := NewTextParser().Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "txt", doc.DocType)
	assert.Equal(t, 1, doc.NumPages)
	assert.Equal(t, "hello world", doc.Pages[1])
}

// TS02: Form feeds split pages, 1-based
func TestTextParserFormFeedPages(t *testing.T) {
	path := writeFile(t, "report.txt", "page one\fpage two\fpage three")

	doc, err := NewTextParser().Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.NumPages)
	assert.Equal(t, "page one", doc.Pages[1])
	assert.Equal(t, "page three", doc.Pages[3])
}

// TS03: Markdown doc type normalization
func TestTextParserMarkdown(t *testing.T) {
	for _, name := range []string{"readme.md", "guide.markdown"} {
		doc, err := NewTextParser().Parse(context.Background(), writeFile(t, name, "# Title"))
		require.NoError(t, err)
		assert.Equal(t, "md", doc.DocType)
	}
}

// TS04: Missing file surfaces a typed error
func TestTextParserMissingFile(t *testing.T) {
	_, err := NewTextParser().Parse(context.Background(),
		filepath.Join(t.TempDir(), "ghost.txt"))
	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeFileNotFound, docerrors.GetCode(err))
}

// TS05: Registry dispatches by extension and rejects strangers
func TestRegistryDispatch(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	assert.True(t, r.Supported("a.txt"))
	assert.True(t, r.Supported("b.MD"))
	assert.False(t, r.Supported("c.pdf"))

	doc, err := r.Parse(ctx, writeFile(t, "ok.txt", "content"))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.NumPages)

	_, err = r.Parse(ctx, "document.pdf")
	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeUnsupportedFormat, docerrors.GetCode(err))
}

// TS06: Empty file still parses to one empty page
func TestTextParserEmptyFile(t *testing.T) {
	doc, err := NewTextParser().Parse(context.Background(), writeFile(t, "empty.txt", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.NumPages)
	assert.Equal(t, "", doc.Pages[1])
}

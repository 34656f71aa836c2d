// Package parse turns source files into page-addressed text ready for
// chunking. The registry maps file extensions to parsers; formats that
// need heavier extraction (PDF, DOCX) plug in at the same seam.
package parse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	docerrors "github.com/docpull/docpull/internal/errors"
)

// ParsedDocument is the parser output: text keyed by 1-based page
// number.
type ParsedDocument struct {
	Pages    map[int]string
	DocType  string
	NumPages int
}

// Parser extracts text from one file format.
type Parser interface {
	// Parse reads the file at path and returns its pages.
	Parse(ctx context.Context, path string) (*ParsedDocument, error)

	// Extensions returns the lowercase file extensions this parser
	// handles, dot included.
	Extensions() []string
}

// Registry dispatches files to parsers by extension.
type Registry struct {
	byExt map[string]Parser
}

// NewRegistry creates a registry with the built-in text parser
// registered.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Parser)}
	r.Register(NewTextParser())
	return r
}

// Register adds a parser for all its extensions, replacing any previous
// registration.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// Supported reports whether a file's extension has a registered parser.
func (r *Registry) Supported(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions returns every registered extension.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}

// Parse dispatches to the parser registered for the file's extension.
func (r *Registry) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	ext := strings.ToLower(filepath.Ext(path))
	p, ok := r.byExt[ext]
	if !ok {
		return nil, docerrors.New(docerrors.ErrCodeUnsupportedFormat,
			fmt.Sprintf("no parser for %q files", ext), nil).
			WithDetail("path", path)
	}
	return p.Parse(ctx, path)
}

// TextParser reads plain text and markdown. Form feeds split plain text
// into pages, matching how print-oriented documents mark page breaks.
type TextParser struct{}

var _ Parser = (*TextParser)(nil)

// NewTextParser creates the plain text parser.
func NewTextParser() *TextParser { return &TextParser{} }

// Extensions returns the handled extensions.
func (p *TextParser) Extensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// Parse reads the whole file. Output pages are 1-based.
func (p *TextParser) Parse(ctx context.Context, path string) (*ParsedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, docerrors.New(docerrors.ErrCodeFileNotFound,
				fmt.Sprintf("file not found: %s", path), err)
		}
		if os.IsPermission(err) {
			return nil, docerrors.New(docerrors.ErrCodeFilePermission,
				fmt.Sprintf("cannot read %s", path), err)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	docType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if docType == "markdown" {
		docType = "md"
	}

	pages := make(map[int]string)
	for i, page := range strings.Split(string(raw), "\f") {
		pages[i+1] = page
	}
	return &ParsedDocument{
		Pages:    pages,
		DocType:  docType,
		NumPages: len(pages),
	}, nil
}

// Package parser turns source files into the plain text the rest of the
// pipeline works on. Markdown is the native format; PDF and spreadsheet
// files are flattened to text so notes exported from other tools can be
// ingested without conversion.
package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions no parser claims.
var ErrUnsupportedFormat = errors.New("parser: unsupported document format")

// Parser extracts text from a specific document format.
type Parser interface {
	Parse(ctx context.Context, path string) (string, error)
	SupportedFormats() []string
}

// Registry dispatches files to parsers by extension.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry creates a registry with the built-in parsers registered.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&MarkdownParser{}, &PDFParser{}, &XLSXParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Register adds or replaces the parser for a format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[strings.ToLower(format)] = p
}

// Supported reports whether the file's extension has a registered parser.
func (r *Registry) Supported(path string) bool {
	_, ok := r.parsers[formatOf(path)]
	return ok
}

// Parse extracts the text of the file at path using the parser registered
// for its extension.
func (r *Registry) Parse(ctx context.Context, path string) (string, error) {
	format := formatOf(path)
	p, ok := r.parsers[format]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return p.Parse(ctx, path)
}

func formatOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

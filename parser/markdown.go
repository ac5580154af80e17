package parser

import (
	"context"
	"fmt"
	"os"
)

// MarkdownParser handles markdown and plain text files, the formats the
// drafting templates produce. Content passes through untouched so
// frontmatter and @category:value tags survive for the later stages.
type MarkdownParser struct{}

func (p *MarkdownParser) SupportedFormats() []string { return []string{"md", "markdown", "txt"} }

func (p *MarkdownParser) Parse(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading markdown file: %w", err)
	}
	return string(data), nil
}

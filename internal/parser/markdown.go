package parser

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ragline/ragline/internal/errors"
)

// MarkdownParser handles Markdown, optionally stripping formatting so
// downstream chunkers see prose instead of markup.
type MarkdownParser struct {
	stripFormatting bool
}

var _ Parser = (*MarkdownParser)(nil)

var (
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdBold       = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	mdItalic     = regexp.MustCompile(`\*([^*]+)\*|_([^_]+)_`)
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
	mdLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdCodeFence  = regexp.MustCompile("(?s)```[^\n]*\n(.*?)```")
	mdListMarker = regexp.MustCompile(`(?m)^\s*[-*+]\s+|^\s*\d+\.\s+`)
)

// NewMarkdownParser creates a Markdown parser.
func NewMarkdownParser(stripFormatting bool) *MarkdownParser {
	return &MarkdownParser{stripFormatting: stripFormatting}
}

func (p *MarkdownParser) Parse(_ context.Context, data []byte, filename string) (*Document, error) {
	if !utf8.Valid(data) {
		return nil, errors.Backend(errors.ErrCodeParseFailed,
			"markdown parser: input is not valid UTF-8", nil).WithDetail("filename", filename)
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")

	headingCount := len(mdHeading.FindAllString(content, -1))

	if p.stripFormatting {
		content = stripMarkdown(content)
	}

	return &Document{
		Content: content,
		Metadata: map[string]any{
			"parser":        "markdown",
			"heading_count": headingCount,
			"stripped":      p.stripFormatting,
		},
	}, nil
}

// stripMarkdown removes markup while keeping the visible text intact.
func stripMarkdown(s string) string {
	s = mdCodeFence.ReplaceAllString(s, "$1")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdBold.ReplaceAllString(s, "$1$2")
	s = mdItalic.ReplaceAllString(s, "$1$2")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	s = mdListMarker.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

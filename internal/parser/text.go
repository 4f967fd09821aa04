package parser

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/ragline/ragline/internal/errors"
)

// TextParser handles plain UTF-8 text.
type TextParser struct{}

var _ Parser = (*TextParser)(nil)

// NewTextParser creates a plain-text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

func (p *TextParser) Parse(_ context.Context, data []byte, filename string) (*Document, error) {
	if !utf8.Valid(data) {
		return nil, errors.Backend(errors.ErrCodeParseFailed,
			"text parser: input is not valid UTF-8", nil).WithDetail("filename", filename)
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	return &Document{
		Content: content,
		Metadata: map[string]any{
			"parser":     "text",
			"char_count": len(content),
		},
	}, nil
}

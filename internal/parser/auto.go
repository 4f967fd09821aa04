package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"strings"
)

// AutoParser dispatches by filename extension first, then by content
// magic bytes, with plain text as the last-resort fallback.
type AutoParser struct {
	byExt    map[string]Parser
	fallback Parser
}

var _ Parser = (*AutoParser)(nil)

// NewAutoParser creates an auto-dispatching parser over the default set.
func NewAutoParser() *AutoParser {
	text := NewTextParser()
	markdown := NewMarkdownParser(false)
	html := NewHTMLParser(false)
	csv := NewCSVParser()
	pdf := NewPDFParser(false)
	docx := NewDOCXParser(true)

	return &AutoParser{
		byExt: map[string]Parser{
			".txt":  text,
			".log":  text,
			".md":   markdown,
			".mdx":  markdown,
			".html": html,
			".htm":  html,
			".csv":  csv,
			".tsv":  csv,
			".pdf":  pdf,
			".docx": docx,
		},
		fallback: text,
	}
}

func (p *AutoParser) Parse(ctx context.Context, data []byte, filename string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if parser, ok := p.byExt[ext]; ok {
		return parser.Parse(ctx, data, filename)
	}
	return p.sniff(data).Parse(ctx, data, filename)
}

// sniff picks a parser from content magic bytes. Unknown content falls
// back to plain text.
func (p *AutoParser) sniff(data []byte) Parser {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return p.byExt[".pdf"]
	case isDocxZip(data):
		return p.byExt[".docx"]
	case looksLikeHTML(data):
		return p.byExt[".html"]
	case bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("#")):
		return p.byExt[".md"]
	default:
		return p.fallback
	}
}

func isDocxZip(data []byte) bool {
	if !bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return false
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/") {
			return true
		}
	}
	return false
}

func looksLikeHTML(data []byte) bool {
	head := strings.ToLower(string(bytes.TrimLeft(data, " \t\r\n")))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

package parser

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/ragline/ragline/internal/errors"
)

// HTMLParser extracts visible text from HTML. Script and style elements
// are removed by default; block elements become paragraph breaks.
type HTMLParser struct {
	keepScripts bool
}

var _ Parser = (*HTMLParser)(nil)

// blockElements introduce paragraph breaks in the extracted text.
var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "tr": true, "br": true, "blockquote": true, "pre": true,
}

// NewHTMLParser creates an HTML parser.
func NewHTMLParser(keepScripts bool) *HTMLParser {
	return &HTMLParser{keepScripts: keepScripts}
}

func (p *HTMLParser) Parse(_ context.Context, data []byte, filename string) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeParseFailed,
			"html parser: malformed document", err).WithDetail("filename", filename)
	}

	var sb strings.Builder
	var title string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				if !p.keepScripts {
					return
				}
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			sb.WriteString("\n\n")
		}
	}
	walk(root)

	content := normalizeBlankLines(sb.String())
	meta := map[string]any{"parser": "html"}
	if title != "" {
		meta["title"] = title
	}
	return &Document{Content: content, Metadata: meta}, nil
}

// normalizeBlankLines collapses runs of blank lines into one separator
// and trims trailing space on each line.
func normalizeBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

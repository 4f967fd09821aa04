// Package parser converts raw document bytes into normalized text plus
// structured sidecars (pages, tables, image references).
package parser

import (
	"context"
)

// Document is the normalized output of a parser.
type Document struct {
	// Content is the full normalized text.
	Content string
	// Metadata carries parser-specific facts (page counts, titles, ...).
	Metadata map[string]any
	// Pages holds per-page text for paginated formats.
	Pages []Page
	// Tables holds extracted tables, when requested and available.
	Tables []Table
	// Images holds references to embedded images, when available.
	Images []ImageRef
}

// Page is the text of one page of a paginated document.
type Page struct {
	Number  int
	Content string
}

// Table is one extracted table.
type Table struct {
	Page int
	Rows [][]string
}

// ImageRef references an embedded image without its bytes.
type ImageRef struct {
	Page int
	Name string
}

// Parser converts bytes plus a filename hint into a Document.
// Parsers never fabricate content: unparseable input is an error.
type Parser interface {
	Parse(ctx context.Context, data []byte, filename string) (*Document, error)
}

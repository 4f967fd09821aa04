package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ragline/ragline/internal/errors"
)

// PDFParser extracts per-page text and, when enabled, image references
// from page XObject resources.
type PDFParser struct {
	extractImages bool
}

var _ Parser = (*PDFParser)(nil)

// NewPDFParser creates a PDF parser.
func NewPDFParser(extractImages bool) *PDFParser {
	return &PDFParser{extractImages: extractImages}
}

func (p *PDFParser) Parse(ctx context.Context, data []byte, filename string) (doc *Document, err error) {
	// The pdf library panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = errors.Backend(errors.ErrCodeParseFailed,
				fmt.Sprintf("pdf parser: %v", r), nil).WithDetail("filename", filename)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeParseFailed,
			"pdf parser: unreadable document", err).WithDetail("filename", filename)
	}

	doc = &Document{
		Metadata: map[string]any{
			"parser":     "pdf",
			"page_count": reader.NumPage(),
		},
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return nil, errors.Backend(errors.ErrCodeParseFailed,
				fmt.Sprintf("pdf parser: page %d", i), err).WithDetail("filename", filename)
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Content: content})
		sb.WriteString(content)
		sb.WriteString("\n\n")

		if p.extractImages {
			doc.Images = append(doc.Images, pageImages(page, i)...)
		}
	}

	doc.Content = strings.TrimSpace(sb.String())
	return doc, nil
}

// pageImages lists image XObjects referenced by a page's resources.
func pageImages(page pdf.Page, number int) []ImageRef {
	xobj := page.V.Key("Resources").Key("XObject")
	if xobj.IsNull() {
		return nil
	}
	var refs []ImageRef
	for _, name := range xobj.Keys() {
		if xobj.Key(name).Key("Subtype").Name() == "Image" {
			refs = append(refs, ImageRef{Page: number, Name: name})
		}
	}
	return refs
}

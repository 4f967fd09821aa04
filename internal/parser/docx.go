package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/ragline/ragline/internal/errors"
)

// DOCXParser extracts paragraphs from word/document.xml inside the
// DOCX zip container. Tables are flattened to pipe-joined lines when
// includeTables is set.
type DOCXParser struct {
	includeTables bool
}

var _ Parser = (*DOCXParser)(nil)

// NewDOCXParser creates a DOCX parser.
func NewDOCXParser(includeTables bool) *DOCXParser {
	return &DOCXParser{includeTables: includeTables}
}

// Minimal WordprocessingML subset. Body order of paragraphs and tables
// is preserved by decoding elements as they stream.
type docxText struct {
	Value string `xml:",chardata"`
}

func (p *DOCXParser) Parse(_ context.Context, data []byte, filename string) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeParseFailed,
			"docx parser: not a zip container", err).WithDetail("filename", filename)
	}

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, errors.Backend(errors.ErrCodeParseFailed,
					"docx parser: open word/document.xml", err).WithDetail("filename", filename)
			}
			break
		}
	}
	if docXML == nil {
		return nil, errors.Backend(errors.ErrCodeParseFailed,
			"docx parser: missing word/document.xml", nil).WithDetail("filename", filename)
	}
	defer docXML.Close()

	paragraphs, tables, err := p.decodeBody(docXML)
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeParseFailed,
			"docx parser: malformed document.xml", err).WithDetail("filename", filename)
	}

	var parts []string
	parts = append(parts, paragraphs...)
	doc := &Document{
		Metadata: map[string]any{
			"parser":          "docx",
			"paragraph_count": len(paragraphs),
		},
	}
	if p.includeTables && len(tables) > 0 {
		doc.Tables = tables
		doc.Metadata["table_count"] = len(tables)
		for _, table := range tables {
			for _, row := range table.Rows {
				parts = append(parts, strings.Join(row, " | "))
			}
		}
	}
	doc.Content = strings.Join(parts, "\n\n")
	return doc, nil
}

// decodeBody streams document.xml, collecting paragraph text and tables.
// Paragraphs inside table cells belong to the table, not the body.
func (p *DOCXParser) decodeBody(r io.Reader) ([]string, []Table, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var tables []Table

	var curParagraph strings.Builder
	var curRow []string
	var curTable *Table
	inParagraph := false
	tableDepth := 0

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					curTable = &Table{}
				}
			case "tr":
				if tableDepth == 1 {
					curRow = nil
				}
			case "p":
				inParagraph = true
				curParagraph.Reset()
			case "t":
				var text docxText
				if err := decoder.DecodeElement(&text, &t); err != nil {
					return nil, nil, err
				}
				if inParagraph {
					curParagraph.WriteString(text.Value)
				}
			case "tab":
				if inParagraph {
					curParagraph.WriteString("\t")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "tbl":
				if tableDepth == 1 && curTable != nil && len(curTable.Rows) > 0 {
					tables = append(tables, *curTable)
					curTable = nil
				}
				tableDepth--
			case "tr":
				if tableDepth == 1 && curTable != nil && len(curRow) > 0 {
					curTable.Rows = append(curTable.Rows, curRow)
				}
			case "p":
				inParagraph = false
				text := strings.TrimSpace(curParagraph.String())
				if text == "" {
					continue
				}
				if tableDepth > 0 {
					curRow = append(curRow, text)
				} else {
					paragraphs = append(paragraphs, text)
				}
			}
		}
	}
	return paragraphs, tables, nil
}

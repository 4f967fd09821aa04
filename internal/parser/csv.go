package parser

import (
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"

	"github.com/ragline/ragline/internal/errors"
)

// CSVParser handles CSV and TSV. The delimiter is picked by extension
// first, then by sniffing the first line.
type CSVParser struct{}

var _ Parser = (*CSVParser)(nil)

// NewCSVParser creates a CSV/TSV parser.
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Parse(_ context.Context, data []byte, filename string) (*Document, error) {
	delim := detectDelimiter(data, filename)

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.Comma = delim
	reader.FieldsPerRecord = -1 // ragged rows are common in the wild

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Backend(errors.ErrCodeParseFailed,
			"csv parser: malformed input", err).WithDetail("filename", filename)
	}

	var sb strings.Builder
	for _, row := range rows {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteString("\n")
	}

	doc := &Document{
		Content: strings.TrimRight(sb.String(), "\n"),
		Metadata: map[string]any{
			"parser":    "csv",
			"row_count": len(rows),
			"delimiter": string(delim),
		},
	}
	if len(rows) > 0 {
		doc.Metadata["column_count"] = len(rows[0])
		doc.Tables = []Table{{Rows: rows}}
	}
	return doc, nil
}

// detectDelimiter picks tab for .tsv, otherwise sniffs the first line
// and prefers whichever of tab/semicolon/comma appears most.
func detectDelimiter(data []byte, filename string) rune {
	if strings.EqualFold(filepath.Ext(filename), ".tsv") {
		return '\t'
	}
	firstLine := string(data)
	if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
		firstLine = firstLine[:i]
	}
	best, bestCount := ',', strings.Count(firstLine, ",")
	if n := strings.Count(firstLine, "\t"); n > bestCount {
		best, bestCount = '\t', n
	}
	if n := strings.Count(firstLine, ";"); n > bestCount {
		best = ';'
	}
	return best
}

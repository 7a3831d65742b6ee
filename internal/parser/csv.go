package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// CSVParser handles CSV files. Each data row is a paragraph; every block of
// rows gets a bookmark.
type CSVParser struct{}

const csvBatchSize = 20

func (p *CSVParser) Parse(r io.Reader, filename string) (*Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	f := newFlow(baseTitle(filename))
	if len(records) == 0 {
		return f.finish(), nil
	}

	// First row is headers.
	headers := records[0]
	dataRows := records[1:]
	f.paragraph(strings.Join(headers, ", "))

	for i := 0; i < len(dataRows); i += csvBatchSize {
		end := min(i+csvBatchSize, len(dataRows))
		f.heading(1, fmt.Sprintf("Rows %d-%d", i+2, end+1)) // 1-indexed, skip header
		for _, row := range dataRows[i:end] {
			var text strings.Builder
			for j, cell := range row {
				if j > 0 {
					text.WriteString(", ")
				}
				if j < len(headers) {
					text.WriteString(headers[j] + ": ")
				}
				text.WriteString(cell)
			}
			f.paragraph(text.String())
		}
	}
	return f.finish(), nil
}

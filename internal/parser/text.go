package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text files. Blank lines separate paragraphs.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	f := newFlow(baseTitle(filename))
	var current strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		// Form feeds start a new page.
		if strings.HasPrefix(line, "\f") {
			if current.Len() > 0 {
				f.paragraph(current.String())
				current.Reset()
			}
			f.newPage()
			line = strings.TrimLeft(line, "\f")
		}
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				f.paragraph(current.String())
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		f.paragraph(current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return f.finish(), nil
}

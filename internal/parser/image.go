package parser

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Recognizer finds words in a page image. Box coordinates have their origin
// at the top left, as in the image.
type Recognizer interface {
	Recognize(img []byte) ([]RecognizedWord, error)
}

// RecognizedWord is one OCR result.
type RecognizedWord struct {
	Box  image.Rectangle
	Text string
	// Line groups words; words of one line share it.
	Line int
	// Paragraph groups lines.
	Paragraph int
}

// defaultRecognizer is set by builds that include an OCR engine.
var defaultRecognizer Recognizer

// ImageParser turns a single page image into a one-page document. Without a
// Recognizer the page has no text.
type ImageParser struct {
	OCR Recognizer
}

func (p *ImageParser) Parse(r io.Reader, filename string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	page := &Page{Width: cfg.Width, Height: cfg.Height}
	doc := &Document{Title: baseTitle(filename), Pages: []*Page{page}}

	ocr := p.OCR
	if ocr == nil {
		ocr = defaultRecognizer
	}
	if ocr == nil {
		return doc, nil
	}
	words, err := ocr.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	page.Paragraphs = groupWords(words, cfg.Height)
	return doc, nil
}

// groupWords builds paragraphs and lines from OCR words, flipping boxes to a
// bottom-left origin.
func groupWords(words []RecognizedWord, height int) []*Paragraph {
	var (
		out            []*Paragraph
		para           *Paragraph
		line           *Line
		lastPar, lastL = -1, -1
	)
	for _, w := range words {
		if w.Text == "" {
			continue
		}
		if para == nil || w.Paragraph != lastPar {
			para = &Paragraph{}
			out = append(out, para)
			line = nil
		}
		if line == nil || w.Line != lastL {
			line = &Line{}
			para.Lines = append(para.Lines, line)
		}
		lastPar, lastL = w.Paragraph, w.Line
		line.Words = append(line.Words, Word{
			X:    w.Box.Min.X,
			Y:    height - w.Box.Max.Y,
			W:    w.Box.Dx(),
			H:    w.Box.Dy(),
			Text: w.Text,
		})
	}
	return out
}

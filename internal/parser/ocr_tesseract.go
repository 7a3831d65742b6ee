//go:build tesseract

package parser

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

func init() {
	defaultRecognizer = &Tesseract{}
}

// Tesseract recognizes words with the tesseract engine.
type Tesseract struct {
	Languages []string
}

func (t *Tesseract) Recognize(img []byte) ([]RecognizedWord, error) {
	c := gosseract.NewClient()
	defer c.Close()
	if err := c.SetImageFromBytes(img); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(t.Languages) > 0 {
		if err := c.SetLanguage(t.Languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("bounding boxes: %w", err)
	}
	words := make([]RecognizedWord, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, RecognizedWord{
			Box:       b.Box,
			Text:      b.Word,
			Line:      b.BlockNum*10000 + b.ParNum*100 + b.LineNum,
			Paragraph: b.BlockNum*100 + b.ParNum,
		})
	}
	return words, nil
}

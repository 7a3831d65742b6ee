package parser

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"
	"unicode"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser handles PDF files. Text rows come from ledongthuc/pdf with their
// positions; the document outline comes from pdfcpu. When the Go library
// fails it can fall back to pdftotext, which loses word geometry.
type PDFParser struct {
	FallbackPdftotext bool
}

const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
	defaultFontSize   = 10.0
)

func (p *PDFParser) Parse(r io.Reader, filename string) (*Document, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "docmeta-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	return p.ParseFile(tmpPath, baseTitle(filename))
}

// ParseFile parses the PDF at path.
func (p *PDFParser) ParseFile(path, title string) (*Document, error) {
	doc, err := extractPDFLayout(path)
	if err != nil && p.FallbackPdftotext {
		doc, err = extractPdftotext(path)
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	doc.Title = title
	doc.Bookmarks = readBookmarks(path)
	return doc, nil
}

func extractPDFLayout(path string) (*Document, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc := &Document{}
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		out := &Page{Width: defaultPageWidth, Height: defaultPageHeight}
		doc.Pages = append(doc.Pages, out)
		if page.V.IsNull() {
			continue
		}
		out.Width, out.Height = mediaBox(page)
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		out.Paragraphs = paragraphs(rows)
	}
	return doc, nil
}

// mediaBox returns the page size, following inherited attributes up the
// page tree.
func mediaBox(page pdflib.Page) (int, int) {
	v := page.V
	for v.Key("MediaBox").IsNull() && !v.Key("Parent").IsNull() {
		v = v.Key("Parent")
	}
	box := v.Key("MediaBox")
	if box.Len() != 4 {
		return defaultPageWidth, defaultPageHeight
	}
	w := box.Index(2).Float64() - box.Index(0).Float64()
	h := box.Index(3).Float64() - box.Index(1).Float64()
	if w <= 0 || h <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return int(math.Round(w)), int(math.Round(h))
}

// paragraphs groups rows (sorted top to bottom) into paragraphs, starting a
// new one at each vertical gap wider than two lines.
func paragraphs(rows pdflib.Rows) []*Paragraph {
	var out []*Paragraph
	var para *Paragraph
	var lastY int64
	for _, row := range rows {
		words := rowWords(row)
		if len(words) == 0 {
			continue
		}
		gap := lastY - row.Position
		if para == nil || float64(gap) > 2*float64(words[0].H) {
			para = &Paragraph{}
			out = append(out, para)
		}
		para.Lines = append(para.Lines, &Line{Words: words})
		lastY = row.Position
	}
	return out
}

// rowWords splits the text fragments of a row into words. Fragments carry a
// start position only, so glyph advances are estimated from the font size or
// the distance to the next fragment.
func rowWords(row *pdflib.Row) []Word {
	var (
		words      []Word
		cur        strings.Builder
		start, end float64
		size       = defaultFontSize
	)
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		words = append(words, Word{
			X:    int(math.Round(start)),
			Y:    int(row.Position),
			W:    max(1, int(math.Round(end-start))),
			H:    int(math.Ceil(size)),
			Text: cur.String(),
		})
		cur.Reset()
	}

	frags := row.Content
	for i, t := range frags {
		runes := []rune(t.S)
		if len(runes) == 0 {
			continue
		}
		if t.FontSize > 0 {
			size = t.FontSize
		}
		adv := size / 2
		switch {
		case t.W > 0:
			adv = t.W / float64(len(runes))
		case i+1 < len(frags) && frags[i+1].X > t.X:
			adv = math.Min(adv*2, (frags[i+1].X-t.X)/float64(len(runes)))
		}
		for k, r := range runes {
			x := t.X + float64(k)*adv
			if unicode.IsSpace(r) {
				flush()
				continue
			}
			if cur.Len() > 0 && x-end > adv {
				flush()
			}
			if cur.Len() == 0 {
				start = x
			}
			cur.WriteRune(r)
			end = x + adv
		}
	}
	flush()
	return words
}

// readBookmarks returns the PDF outline. A document without a readable
// outline has no bookmarks.
func readBookmarks(path string) []*Bookmark {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	bms, err := api.Bookmarks(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil
	}
	return fromPDFBookmarks(bms)
}

func fromPDFBookmarks(bms []pdfcpu.Bookmark) []*Bookmark {
	out := make([]*Bookmark, 0, len(bms))
	for _, bm := range bms {
		out = append(out, &Bookmark{
			Title:    bm.Title,
			Page:     bm.PageFrom - 1,
			Children: fromPDFBookmarks(bm.Kids),
		})
	}
	return out
}

func extractPdftotext(path string) (*Document, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	f := newFlow("")
	for _, page := range splitPages(string(out)) {
		f.newPage()
		for _, para := range strings.Split(page, "\n\n") {
			f.paragraph(para)
		}
	}
	return f.finish(), nil
}

func splitPages(text string) []string {
	pages := strings.Split(text, "\f")
	// pdftotext ends the last page with a form feed too.
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages
}

package parser

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// Document is the layout of a parsed file: positioned words grouped into
// paragraphs and lines on pages, plus the file's bookmarks.
type Document struct {
	Title     string
	Pages     []*Page
	Bookmarks []*Bookmark
}

// Page is one page. Coordinates have their origin at the bottom left.
type Page struct {
	Width, Height int
	Paragraphs    []*Paragraph
}

type Paragraph struct {
	Lines []*Line
}

type Line struct {
	Words []Word
}

// Word is a run of text with its bounding box.
type Word struct {
	X, Y, W, H int
	Text       string
}

// Bookmark is an outline entry. Page is 0-based; Page < 0 means URI holds an
// explicit link target.
type Bookmark struct {
	Title    string
	Page     int
	URI      string
	Children []*Bookmark
}

// Text returns the page's words, lines joined by newlines and paragraphs by
// blank lines.
func (p *Page) Text() string {
	var paras []string
	for _, para := range p.Paragraphs {
		var lines []string
		for _, l := range para.Lines {
			words := make([]string, len(l.Words))
			for i, w := range l.Words {
				words[i] = w.Text
			}
			lines = append(lines, strings.Join(words, " "))
		}
		paras = append(paras, strings.Join(lines, "\n"))
	}
	return strings.Join(paras, "\n\n")
}

// Letter-size pages in points, laid out with a fixed 7x13 face.
const (
	flowWidth   = 612
	flowHeight  = 792
	flowMargin  = 72
	flowLeading = 16
)

var flowFace = basicfont.Face7x13

// flow lays out text that carries no geometry of its own onto fixed-size
// pages, wrapping words at the right margin.
type flow struct {
	doc   *Document
	page  *Page
	y     int // baseline of the next line
	stack []heading
}

type heading struct {
	level int
	b     *Bookmark
}

func newFlow(title string) *flow {
	return &flow{doc: &Document{Title: title}}
}

func (f *flow) newPage() {
	f.page = &Page{Width: flowWidth, Height: flowHeight}
	f.doc.Pages = append(f.doc.Pages, f.page)
	f.y = flowHeight - flowMargin - flowLeading
}

// paragraph lays out text as one paragraph. Newlines in text force line
// breaks.
func (f *flow) paragraph(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if f.page == nil || f.y < flowMargin {
		f.newPage()
	}
	para := &Paragraph{}
	f.page.Paragraphs = append(f.page.Paragraphs, para)

	space := font.MeasureString(flowFace, " ").Ceil()
	for _, src := range strings.Split(text, "\n") {
		words := strings.Fields(src)
		if len(words) == 0 {
			continue
		}
		line := &Line{}
		x := flowMargin
		for _, w := range words {
			width := font.MeasureString(flowFace, w).Ceil()
			if len(line.Words) > 0 && x+width > flowWidth-flowMargin {
				para.Lines = append(para.Lines, line)
				line = &Line{}
				x = flowMargin
				para = f.advance(para)
			}
			line.Words = append(line.Words, Word{X: x, Y: f.y, W: width, H: flowFace.Height, Text: w})
			x += width + space
		}
		para.Lines = append(para.Lines, line)
		para = f.advance(para)
	}
	f.y -= flowLeading
}

// advance moves to the next baseline, continuing para on a new page when the
// current one is full.
func (f *flow) advance(para *Paragraph) *Paragraph {
	f.y -= flowLeading
	if f.y >= flowMargin {
		return para
	}
	f.newPage()
	next := &Paragraph{}
	f.page.Paragraphs = append(f.page.Paragraphs, next)
	return next
}

// heading records a bookmark at the given level pointing at the page the
// heading lands on, then lays the title out as a paragraph.
func (f *flow) heading(level int, title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	if f.page == nil || f.y < flowMargin {
		f.newPage()
	}
	b := &Bookmark{Title: title, Page: len(f.doc.Pages) - 1}
	for len(f.stack) > 0 && f.stack[len(f.stack)-1].level >= level {
		f.stack = f.stack[:len(f.stack)-1]
	}
	if len(f.stack) == 0 {
		f.doc.Bookmarks = append(f.doc.Bookmarks, b)
	} else {
		parent := f.stack[len(f.stack)-1].b
		parent.Children = append(parent.Children, b)
	}
	f.stack = append(f.stack, heading{level: level, b: b})
	f.paragraph(title)
}

// finish drops a trailing empty paragraph left by a page break and returns
// the document.
func (f *flow) finish() *Document {
	for _, p := range f.doc.Pages {
		kept := p.Paragraphs[:0]
		for _, para := range p.Paragraphs {
			if len(para.Lines) > 0 {
				kept = append(kept, para)
			}
		}
		p.Paragraphs = kept
	}
	return f.doc
}

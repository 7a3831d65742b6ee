package source

import (
	"math"

	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/parser"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

// OutlineValue converts bookmarks to an outline expression. Bookmarks with a
// page point at it; others keep their URI.
func OutlineValue(bms []*parser.Bookmark) sexpr.Value {
	out := sexpr.List{sexpr.Symbol("bookmarks")}
	for _, b := range bms {
		out = append(out, entryValue(b))
	}
	return out
}

func entryValue(b *parser.Bookmark) sexpr.Value {
	uri := b.URI
	if b.Page >= 0 {
		uri = model.PageURI(b.Page)
	}
	out := sexpr.List{sexpr.String(b.Title), sexpr.String(model.FixURI(uri))}
	for _, c := range b.Children {
		out = append(out, entryValue(c))
	}
	return out
}

// BookmarksFromOutline converts an outline expression back into bookmarks.
// Entries whose URI is not a page link get Page -1.
func BookmarksFromOutline(v sexpr.Value) []*parser.Bookmark {
	l, ok := v.(sexpr.List)
	if !ok || len(l) == 0 {
		return nil
	}
	return bookmarks(l[1:])
}

func bookmarks(items []sexpr.Value) []*parser.Bookmark {
	var out []*parser.Bookmark
	for _, v := range items {
		e, ok := v.(sexpr.List)
		if !ok || len(e) < 2 {
			continue
		}
		title, _ := e[0].(sexpr.String)
		uri, _ := e[1].(sexpr.String)
		b := &parser.Bookmark{Title: string(title), URI: string(uri), Page: -1}
		if n, ok := model.PageNumber(string(uri)); ok {
			b.Page = n
		}
		b.Children = bookmarks(e[2:])
		out = append(out, b)
	}
	return out
}

type box struct{ x0, y0, x1, y1 int }

func (b box) union(o box) box {
	return box{min(b.x0, o.x0), min(b.y0, o.y0), max(b.x1, o.x1), max(b.y1, o.y1)}
}

func empty() box { return box{math.MaxInt, math.MaxInt, math.MinInt, math.MinInt} }

// zone clamps the box to the page origin; text layers hold no negative
// coordinates.
func zone(typ string, b box, rest ...sexpr.Value) sexpr.List {
	b = box{max(b.x0, 0), max(b.y0, 0), max(b.x1, 0), max(b.y1, 0)}
	out := sexpr.List{sexpr.Symbol(typ), sexpr.Int(b.x0), sexpr.Int(b.y0), sexpr.Int(b.x1), sexpr.Int(b.y1)}
	return append(out, rest...)
}

// PageTextValue converts a page layout into a text layer expression. A page
// without words has no text layer.
func PageTextValue(p *parser.Page) sexpr.Value {
	var paras []sexpr.Value
	for _, para := range p.Paragraphs {
		pb := empty()
		var lines []sexpr.Value
		for _, l := range para.Lines {
			if len(l.Words) == 0 {
				continue
			}
			lb := empty()
			var words []sexpr.Value
			for _, w := range l.Words {
				wb := box{w.X, w.Y, w.X + w.W, w.Y + w.H}
				lb = lb.union(wb)
				words = append(words, zone("word", wb, sexpr.String(w.Text)))
			}
			pb = pb.union(lb)
			lines = append(lines, zone("line", lb, words...))
		}
		if len(lines) > 0 {
			paras = append(paras, zone("para", pb, lines...))
		}
	}
	if len(paras) == 0 {
		return sexpr.List{}
	}
	return zone("page", box{0, 0, p.Width, p.Height}, paras...)
}

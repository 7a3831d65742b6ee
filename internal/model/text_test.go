package model

import (
	"errors"
	"testing"

	"github.com/dgallion1/docmeta/internal/doctree"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

const samplePage = `(page 0 0 2550 3300 (line 10 20 50 70 (word 10 20 25 70 "Hello") (word 30 20 50 70 "world")) (line 10 100 90 140 "Second line") (line 10 200 90 240 (word 10 200 90 240 "third")))`

func newPage(t *testing.T, s string) *PageText {
	t.Helper()
	p, err := NewPageText(0, mustParse(t, s))
	if err != nil {
		t.Fatalf("NewPageText: %v", err)
	}
	return p
}

func TestPageText_RoundTrip(t *testing.T) {
	p := newPage(t, samplePage)
	if got := sexpr.Format(p.Raw()); got != samplePage {
		t.Errorf("expected %s, got %s", samplePage, got)
	}
	if !sexpr.Equal(p.Raw(), p.Original()) {
		t.Error("expected raw value to equal original for an unmodified model")
	}
}

func TestPageText_GeometryDerivation(t *testing.T) {
	p := newPage(t, `(line 10 20 50 70 "x")`)
	r, err := p.Rect(p.Root())
	if err != nil {
		t.Fatal(err)
	}
	if r != (doctree.Rect{X: 10, Y: 20, W: 40, H: 50}) {
		t.Errorf("expected {10 20 40 50}, got %+v", r)
	}
	if got := sexpr.Format(p.Raw()); got != `(line 10 20 50 70 "x")` {
		t.Errorf("expected corners reproduced, got %s", got)
	}
}

func TestPageText_LeafVersusInner(t *testing.T) {
	p := newPage(t, samplePage)
	leaves := p.Leaves()
	if len(leaves) != 4 {
		t.Fatalf("expected 4 leaves, got %d", len(leaves))
	}
	var texts []string
	for _, id := range leaves {
		s, err := p.Text(id)
		if err != nil {
			t.Fatal(err)
		}
		texts = append(texts, s)
	}
	want := []string{"Hello", "world", "Second line", "third"}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("leaf %d: expected %q, got %q", i, want[i], texts[i])
		}
	}

	if _, err := p.Text(p.Root()); !errors.Is(err, doctree.ErrNoText) {
		t.Errorf("expected ErrNoText on inner zone, got %v", err)
	}
	if _, err := p.Children(leaves[0]); !errors.Is(err, doctree.ErrNoChildren) {
		t.Errorf("expected ErrNoChildren on leaf, got %v", err)
	}
	if _, err := p.NumChildren(leaves[0]); !errors.Is(err, doctree.ErrNoChildren) {
		t.Errorf("expected ErrNoChildren for leaf length, got %v", err)
	}
	if n := len(p.Preorder()); n != 7 {
		t.Errorf("expected 7 nodes in preorder, got %d", n)
	}
}

func TestPageText_SingleNonStringRestIsInner(t *testing.T) {
	p := newPage(t, `(para 0 0 10 10 (line 0 0 10 10 "a"))`)
	if p.IsLeaf(p.Root()) {
		t.Error("expected a zone with one child zone to be inner")
	}
	p = newPage(t, `(para 0 0 10 10)`)
	if p.IsLeaf(p.Root()) {
		t.Error("expected a zone with no contents to be inner")
	}
}

func TestPageText_StructureErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"short", `(line 0 0 10)`},
		{"type not symbol", `("line" 0 0 10 10 "x")`},
		{"non-numeric geometry", `(line 0 zero 10 10 "x")`},
		{"inverted corners", `(line 10 0 5 10 "x")`},
		{"negative origin", `(line -1 0 5 10 "x")`},
		{"bad child", `(page 0 0 10 10 (line 0 0 10 10 "a") "stray" "text")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPageText(0, mustParse(t, tt.src))
			var se *StructureError
			if !errors.As(err, &se) {
				t.Fatalf("expected *StructureError, got %v", err)
			}
			if se.Fragment == "" {
				t.Error("expected the offending fragment to be named")
			}
		})
	}
}

func TestPageText_NoLayer(t *testing.T) {
	p, err := NewPageText(3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.HasLayer() {
		t.Error("expected no text layer")
	}
	if got := sexpr.Format(p.Raw()); got != "()" {
		t.Errorf("expected (), got %s", got)
	}
	if _, err := p.SetText(0, "x"); !errors.Is(err, ErrNoTextLayer) {
		t.Errorf("expected ErrNoTextLayer, got %v", err)
	}
	if _, err := p.Strip("line"); !errors.Is(err, ErrNoTextLayer) {
		t.Errorf("expected ErrNoTextLayer, got %v", err)
	}
}

func TestPageText_GeometrySetters(t *testing.T) {
	p := newPage(t, samplePage)
	rec := &recorder{}
	p.Subscribe(rec)
	id := p.Leaves()[0]

	if _, err := p.SetW(id, 20); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SetX(id, 5); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SetH(id, -1); !errors.Is(err, doctree.ErrBadGeometry) {
		t.Errorf("expected ErrBadGeometry, got %v", err)
	}
	if _, err := p.SetY(id, -3); !errors.Is(err, doctree.ErrBadGeometry) {
		t.Errorf("expected ErrBadGeometry for a negative y, got %v", err)
	}
	if _, _, err := p.AddLeaf(p.Root(), "word", doctree.Rect{X: -1, W: 2, H: 2}, "x"); !errors.Is(err, doctree.ErrBadGeometry) {
		t.Errorf("expected ErrBadGeometry for a negative x, got %v", err)
	}
	r, _ := p.Rect(id)
	if r != (doctree.Rect{X: 5, Y: 20, W: 20, H: 50}) {
		t.Errorf("unexpected rect %+v", r)
	}
	if rec.changes != 2 {
		t.Errorf("expected 2 node changes, got %d", rec.changes)
	}
	p.Revert()
	if p.Dirty() {
		t.Error("expected clean after revert")
	}
	if got := sexpr.Format(p.Raw()); got != samplePage {
		t.Errorf("expected original restored, got %s", got)
	}
}

func TestPageText_AddAndDelete(t *testing.T) {
	p := newPage(t, `(page 0 0 100 100)`)
	line, ev, err := p.AddZone(p.Root(), "line", doctree.RectFromCorners(0, 0, 100, 10))
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != doctree.ChildrenChanged || ev.Node != p.Root() {
		t.Errorf("unexpected event %+v", ev)
	}
	if _, _, err := p.AddLeaf(line, "word", doctree.RectFromCorners(0, 0, 40, 10), "new"); err != nil {
		t.Fatal(err)
	}
	want := `(page 0 0 100 100 (line 0 0 100 10 (word 0 0 40 10 "new")))`
	if got := sexpr.Format(p.Raw()); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if _, err := p.Delete(line); err != nil {
		t.Fatal(err)
	}
	if got := sexpr.Format(p.Raw()); got != `(page 0 0 100 100)` {
		t.Errorf("expected line removed, got %s", got)
	}
}

func TestPageText_Strip(t *testing.T) {
	p := newPage(t, samplePage)
	rec := &recorder{}
	p.Subscribe(rec)

	if _, err := p.Strip("line"); err != nil {
		t.Fatal(err)
	}
	want := `(page 0 0 2550 3300 (line 10 20 50 70 "Hello world") (line 10 100 90 140 "Second line") (line 10 200 90 240 "third"))`
	if got := sexpr.Format(p.Raw()); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
	if rec.trees != 1 {
		t.Errorf("expected 1 tree notification, got %d", rec.trees)
	}
	if _, err := p.Strip("sentence"); !errors.Is(err, ErrUnknownZone) {
		t.Errorf("expected ErrUnknownZone, got %v", err)
	}
}

func TestPageText_SetRawRejectsBadValue(t *testing.T) {
	p := newPage(t, samplePage)
	if _, err := p.SetRaw(sexpr.Symbol("junk")); err == nil {
		t.Fatal("expected error")
	}
	if p.Dirty() {
		t.Error("expected failed SetRaw to leave the model untouched")
	}
}

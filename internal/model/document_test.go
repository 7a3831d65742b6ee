package model

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dgallion1/docmeta/internal/sexpr"
)

func newFakeDocument(t *testing.T) (*Document, *fakeAccessor) {
	t.Helper()
	acc := &fakeAccessor{
		pages:   3,
		outline: mustParse(t, sampleOutline),
		text: map[int]sexpr.Value{
			0: mustParse(t, samplePage),
			1: mustParse(t, `(page 0 0 10 10 "p2")`),
		},
		annotations: map[int]sexpr.Value{
			Shared: mustParse(t, `((metadata (Title "Doc")))`),
		},
	}
	return NewDocument(acc, 1), acc
}

func TestMultiPage_Caching(t *testing.T) {
	d, acc := newFakeDocument(t)
	ctx := context.Background()

	a, err := d.PageText(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := d.PageText(ctx, 0)
	if a != b {
		t.Error("expected the same instance for repeated lookups")
	}
	c, _ := d.PageText(ctx, 1)
	if a == c {
		t.Error("expected distinct instances for distinct pages")
	}
	if n := acc.count("text"); n != 2 {
		t.Errorf("expected 2 acquisitions, got %d", n)
	}

	if _, err := d.PageText(ctx, 3); !errors.Is(err, ErrPageRange) {
		t.Errorf("expected ErrPageRange, got %v", err)
	}
	if _, err := d.PageText(ctx, Shared); !errors.Is(err, ErrPageRange) {
		t.Errorf("expected ErrPageRange for shared text, got %v", err)
	}
}

func TestMultiPage_ConcurrentFirstUse(t *testing.T) {
	d, acc := newFakeDocument(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*PageText, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = d.PageText(ctx, 0)
		}(i)
	}
	wg.Wait()
	for i := range got {
		if got[i] != got[0] {
			t.Fatal("expected every goroutine to see the same instance")
		}
	}
	if n := acc.count("text"); n != 1 {
		t.Errorf("expected a single acquisition, got %d", n)
	}
}

func TestMultiPage_FailureNotCached(t *testing.T) {
	boom := errors.New("decode failed")
	calls := 0
	m := NewMultiPage(func(ctx context.Context, n int) (*PageText, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return NewPageText(n, nil)
	})
	if _, err := m.Get(context.Background(), 0); !errors.Is(err, boom) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, ok := m.Cached(0); ok {
		t.Error("expected failed load not to be cached")
	}
	if _, err := m.Get(context.Background(), 0); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(m.Loaded()) != 1 {
		t.Errorf("expected 1 loaded page, got %v", m.Loaded())
	}
}

func TestDocument_ExportOnlyDirty(t *testing.T) {
	d, _ := newFakeDocument(t)
	ctx := context.Background()

	o, _ := d.Outline(ctx)
	p0, _ := d.PageText(ctx, 0)
	p1, _ := d.PageText(ctx, 1)
	shared, _ := d.PageAnnotations(ctx, Shared)

	if d.Dirty() {
		t.Fatal("expected clean document after loading")
	}
	p1.SetText(p1.Root(), "edited")
	shared.SetMetadata("Title", "New")

	var b batchWriter
	saved, err := d.Export(&b)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected 2 exported models, got %d", len(saved))
	}
	changes, _ := b.Changes()
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", changes)
	}
	if changes[0].Scope != 1 || changes[0].Kind != ChangeText {
		t.Errorf("unexpected first change %+v", changes[0])
	}
	if got := sexpr.Format(changes[0].Value); got != `(page 0 0 10 10 "edited")` {
		t.Errorf("unexpected text change %s", got)
	}

	// an edit between export and commit keeps that model dirty
	p1.SetText(p1.Root(), "again")
	if stale := MarkClean(saved); stale != 1 {
		t.Errorf("expected 1 stale model, got %d", stale)
	}
	if !p1.Dirty() || shared.Dirty() {
		t.Error("expected only the re-edited page to stay dirty")
	}
	if o.Dirty() || p0.Dirty() {
		t.Error("expected untouched models to stay clean")
	}

	d.Revert()
	if d.Dirty() {
		t.Error("expected revert to clean the document")
	}
}

func TestDocument_RevertAfterSave(t *testing.T) {
	d, _ := newFakeDocument(t)
	ctx := context.Background()

	o, _ := d.Outline(ctx)
	shared, _ := d.PageAnnotations(ctx, Shared)
	first := entry(t, o, "Chapter 1")
	o.SetText(first, "Saved")
	shared.SetMetadata("Title", "Saved")

	var b batchWriter
	saved, err := d.Export(&b)
	if err != nil {
		t.Fatal(err)
	}
	if stale := MarkClean(saved); stale != 0 {
		t.Fatalf("expected no stale models, got %d", stale)
	}

	// revert goes back to what was saved, not to what was loaded
	o.SetText(first, "Unsaved")
	shared.SetMetadata("Title", "Unsaved")
	d.Revert()
	if got, _ := o.Text(first); got != "Saved" {
		t.Errorf("expected title %q after revert, got %q", "Saved", got)
	}
	if md := shared.Metadata(); len(md) != 1 || md[0].Value != "Saved" {
		t.Errorf("expected saved metadata after revert, got %+v", md)
	}
	if d.Dirty() {
		t.Error("expected clean document after revert")
	}

	var again batchWriter
	saved, _ = d.Export(&again)
	if len(saved) != 0 {
		t.Errorf("expected nothing to export after revert, got %d", len(saved))
	}
}

func TestBatch_CursorRequired(t *testing.T) {
	var b Batch
	b.SetText(sexpr.List{})
	if _, err := b.Changes(); !errors.Is(err, ErrNoCursor) {
		t.Errorf("expected ErrNoCursor, got %v", err)
	}
}

func TestBatch_SnapshotsValues(t *testing.T) {
	var b Batch
	v := sexpr.List{sexpr.Symbol("page"), sexpr.Int(0)}
	b.SelectPage(0)
	b.SetText(v)
	v[1] = sexpr.Int(9)
	changes, _ := b.Changes()
	if got := sexpr.Format(changes[0].Value); got != "(page 0)" {
		t.Errorf("expected batch to hold a copy, got %s", got)
	}
}

func TestFixURI(t *testing.T) {
	tests := []struct{ in, want string }{
		{"12", "#12"},
		{"#12", "#12"},
		{"http://x.org/a b", "http://x.org/a%20b"},
		{"http://x.org/%20", "http://x.org/%20"},
		{"café", "caf%C3%A9"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FixURI(tt.in); got != tt.want {
			t.Errorf("FixURI(%q): expected %q, got %q", tt.in, tt.want, got)
		}
		if got := FixURI(FixURI(tt.in)); got != FixURI(tt.in) {
			t.Errorf("FixURI(%q) is not idempotent: %q", tt.in, got)
		}
	}
}

func TestPageNumber(t *testing.T) {
	if n, ok := PageNumber("#3"); !ok || n != 2 {
		t.Errorf("expected page 2, got %d %v", n, ok)
	}
	for _, uri := range []string{"#0", "#", "3", "#x", "http://x"} {
		if _, ok := PageNumber(uri); ok {
			t.Errorf("expected %q not to resolve", uri)
		}
	}
	if PageURI(0) != "#1" {
		t.Errorf("expected #1, got %s", PageURI(0))
	}
}

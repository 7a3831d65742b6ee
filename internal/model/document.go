package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/docmeta/internal/sexpr"
)

// DefaultPoll is how long Document waits between ErrNotAvailable retries.
const DefaultPoll = 100 * time.Millisecond

// Exportable is a model that can be written to a Writer and saved.
type Exportable interface {
	Dirty() bool
	Revision() uint64
	MarkClean(rev uint64) bool
	Export(w Writer) error
}

// Saved records the revision of a model at export time.
type Saved struct {
	Model    Exportable
	Revision uint64
}

// Document bundles the lazily loaded models of one document: its outline,
// one text layer per page and annotations per page plus Shared.
type Document struct {
	acc  Accessor
	poll time.Duration

	outlineMu sync.Mutex
	outline   *Outline

	Text        *MultiPage[*PageText]
	Annotations *MultiPage[*PageAnnotations]

	pagesMu sync.Mutex
	pages   int
}

// NewDocument wraps acc. A poll of zero uses DefaultPoll.
func NewDocument(acc Accessor, poll time.Duration) *Document {
	if poll <= 0 {
		poll = DefaultPoll
	}
	d := &Document{acc: acc, poll: poll}
	d.Text = NewMultiPage(d.loadText)
	d.Annotations = NewMultiPage(d.loadAnnotations)
	return d
}

// PageCount returns the number of pages.
func (d *Document) PageCount(ctx context.Context) (int, error) {
	d.pagesMu.Lock()
	defer d.pagesMu.Unlock()
	if d.pages > 0 {
		return d.pages, nil
	}
	n, err := d.acc.PageCount(ctx)
	if err != nil {
		return 0, err
	}
	d.pages = n
	return n, nil
}

func (d *Document) checkPage(ctx context.Context, n int, allowShared bool) error {
	if n == Shared && allowShared {
		return nil
	}
	count, err := d.PageCount(ctx)
	if err != nil {
		return err
	}
	if n < 0 || n >= count {
		return fmt.Errorf("page %d of %d: %w", n, count, ErrPageRange)
	}
	return nil
}

// Outline returns the outline, acquiring it on first use.
func (d *Document) Outline(ctx context.Context) (*Outline, error) {
	d.outlineMu.Lock()
	defer d.outlineMu.Unlock()
	if d.outline != nil {
		return d.outline, nil
	}
	raw, err := Acquire(ctx, d.poll, d.acc.AcquireOutline)
	if err != nil {
		return nil, fmt.Errorf("acquire outline: %w", err)
	}
	o, err := NewOutline(raw)
	if err != nil {
		return nil, err
	}
	d.outline = o
	return o, nil
}

// PageText returns the text layer of 0-based page n.
func (d *Document) PageText(ctx context.Context, n int) (*PageText, error) {
	if err := d.checkPage(ctx, n, false); err != nil {
		return nil, err
	}
	return d.Text.Get(ctx, n)
}

// PageAnnotations returns the annotations of page n, or of the document
// when n is Shared.
func (d *Document) PageAnnotations(ctx context.Context, n int) (*PageAnnotations, error) {
	if err := d.checkPage(ctx, n, true); err != nil {
		return nil, err
	}
	return d.Annotations.Get(ctx, n)
}

func (d *Document) loadText(ctx context.Context, n int) (*PageText, error) {
	raw, err := Acquire(ctx, d.poll, func(ctx context.Context) (sexpr.Value, error) {
		return d.acc.AcquirePageText(ctx, n)
	})
	if err != nil {
		return nil, fmt.Errorf("acquire text of page %d: %w", n, err)
	}
	return NewPageText(n, raw)
}

func (d *Document) loadAnnotations(ctx context.Context, n int) (*PageAnnotations, error) {
	fetch := d.acc.AcquireSharedAnnotations
	if n != Shared {
		fetch = func(ctx context.Context) (sexpr.Value, error) {
			return d.acc.AcquirePageAnnotations(ctx, n)
		}
	}
	raw, err := Acquire(ctx, d.poll, fetch)
	if err != nil {
		return nil, fmt.Errorf("acquire annotations of page %d: %w", n, err)
	}
	return NewPageAnnotations(n, raw)
}

// Models returns every loaded model: outline first, then text layers, then
// annotations, each in page order.
func (d *Document) Models() []Exportable {
	var out []Exportable
	d.outlineMu.Lock()
	if d.outline != nil {
		out = append(out, d.outline)
	}
	d.outlineMu.Unlock()
	for _, n := range d.Text.Loaded() {
		m, _ := d.Text.Cached(n)
		out = append(out, m)
	}
	for _, n := range d.Annotations.Loaded() {
		m, _ := d.Annotations.Cached(n)
		out = append(out, m)
	}
	return out
}

// Dirty reports whether any loaded model is dirty.
func (d *Document) Dirty() bool {
	for _, m := range d.Models() {
		if m.Dirty() {
			return true
		}
	}
	return false
}

// Export writes every dirty model to w and returns what it wrote, for
// MarkClean once the commit succeeds. It does not mutate any model.
func (d *Document) Export(w Writer) ([]Saved, error) {
	var saved []Saved
	for _, m := range d.Models() {
		if !m.Dirty() {
			continue
		}
		if err := m.Export(w); err != nil {
			return nil, err
		}
		saved = append(saved, Saved{Model: m, Revision: m.Revision()})
	}
	return saved, nil
}

// MarkClean clears the dirty flag of every saved model that did not change
// since it was exported. It returns how many stayed dirty.
func MarkClean(saved []Saved) int {
	stale := 0
	for _, s := range saved {
		if !s.Model.MarkClean(s.Revision) {
			stale++
		}
	}
	return stale
}

// Revert reverts every loaded dirty model.
func (d *Document) Revert() {
	for _, m := range d.Models() {
		if !m.Dirty() {
			continue
		}
		switch x := m.(type) {
		case *Outline:
			x.Revert()
		case *PageText:
			x.Revert()
		case *PageAnnotations:
			x.Revert()
		}
	}
}

package model

import (
	"context"
	"errors"
	"time"

	"github.com/dgallion1/docmeta/internal/sexpr"
)

// Shared is the page index of document-level data.
const Shared = -1

// EmptyOutline is the value an Accessor returns for a document without one.
var EmptyOutline = sexpr.List{sexpr.Symbol("bookmarks")}

// Accessor supplies parsed document data. Every method may block while the
// document decodes and may return ErrNotAvailable while it is still in
// progress. A page without a text layer yields an empty list; a page without
// annotations yields an empty list.
type Accessor interface {
	PageCount(ctx context.Context) (int, error)
	AcquireOutline(ctx context.Context) (sexpr.Value, error)
	AcquirePageText(ctx context.Context, n int) (sexpr.Value, error)
	AcquirePageAnnotations(ctx context.Context, n int) (sexpr.Value, error)
	AcquireSharedAnnotations(ctx context.Context) (sexpr.Value, error)
}

// Writer is a cursor-based accumulator. Only Commit persists anything.
type Writer interface {
	SelectPage(n int)
	SelectShared()
	SetText(v sexpr.Value)
	SetOutline(v sexpr.Value)
	ClearAnnotations()
	SetAnnotationsAppend(v sexpr.Value)
	Commit(ctx context.Context) (CommitResult, error)
}

// CommitResult describes one successful commit.
type CommitResult struct {
	Changes     int       `json:"changes"`
	CommittedAt time.Time `json:"committed_at"`
}

// ChangeKind names what a Change replaces.
type ChangeKind string

const (
	ChangeText        ChangeKind = "text"
	ChangeOutline     ChangeKind = "outline"
	ChangeAnnotations ChangeKind = "annotations"
)

// Change replaces one kind of data for one scope (a page index or Shared).
type Change struct {
	Scope int
	Kind  ChangeKind
	Value sexpr.Value
}

// Batch implements the cursor half of Writer. Writer backends embed it and
// supply Commit. Values are deep-copied on the way in, so a Batch can be
// handed to another goroutine once export returns. Cursor misuse is sticky:
// the first error is reported by Changes.
type Batch struct {
	cursor   int
	selected bool
	changes  []Change
	err      error
}

func (b *Batch) SelectPage(n int) {
	if n < 0 && b.err == nil {
		b.err = ErrPageRange
		return
	}
	b.cursor, b.selected = n, true
}

func (b *Batch) SelectShared() {
	b.cursor, b.selected = Shared, true
}

func (b *Batch) SetText(v sexpr.Value) {
	if !b.selected {
		b.fail(ErrNoCursor)
		return
	}
	b.put(b.cursor, ChangeText, sexpr.Clone(v))
}

// SetOutline records the document outline. It ignores the cursor.
func (b *Batch) SetOutline(v sexpr.Value) {
	b.put(Shared, ChangeOutline, sexpr.Clone(v))
}

// SetAnnotationsAppend appends v to the annotations written for the selected
// scope. On commit the accumulated list replaces what the scope stored.
func (b *Batch) SetAnnotationsAppend(v sexpr.Value) {
	if !b.selected {
		b.fail(ErrNoCursor)
		return
	}
	for i := range b.changes {
		c := &b.changes[i]
		if c.Scope == b.cursor && c.Kind == ChangeAnnotations {
			c.Value = append(c.Value.(sexpr.List), sexpr.Clone(v))
			return
		}
	}
	b.changes = append(b.changes, Change{Scope: b.cursor, Kind: ChangeAnnotations, Value: sexpr.List{sexpr.Clone(v)}})
}

// ClearAnnotations records an empty annotation list for the selected scope.
func (b *Batch) ClearAnnotations() {
	if !b.selected {
		b.fail(ErrNoCursor)
		return
	}
	b.put(b.cursor, ChangeAnnotations, sexpr.List{})
}

func (b *Batch) put(scope int, kind ChangeKind, v sexpr.Value) {
	for i := range b.changes {
		if b.changes[i].Scope == scope && b.changes[i].Kind == kind {
			b.changes[i].Value = v
			return
		}
	}
	b.changes = append(b.changes, Change{Scope: scope, Kind: kind, Value: v})
}

func (b *Batch) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Changes returns the accumulated changes in the order they were first made.
func (b *Batch) Changes() ([]Change, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.changes, nil
}

// Reset drops everything accumulated so far.
func (b *Batch) Reset() {
	*b = Batch{}
}

// Acquire calls fetch until it returns something other than ErrNotAvailable,
// sleeping poll between attempts. It gives up when ctx is done.
func Acquire(ctx context.Context, poll time.Duration, fetch func(context.Context) (sexpr.Value, error)) (sexpr.Value, error) {
	for {
		v, err := fetch(ctx)
		if !errors.Is(err, ErrNotAvailable) {
			return v, err
		}
		t := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Join(ErrNotAvailable, ctx.Err())
		case <-t.C:
		}
	}
}

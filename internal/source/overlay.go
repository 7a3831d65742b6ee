package source

import (
	"context"

	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

// Snapshots looks up the last committed value of one scope of a document.
// ok is false when nothing was committed for it.
type Snapshots interface {
	Load(ctx context.Context, doc string, scope int, kind model.ChangeKind) (v sexpr.Value, ok bool, err error)
}

// Overlay serves committed values from a store and falls back to the base
// accessor for everything else.
type Overlay struct {
	base  model.Accessor
	store Snapshots
	doc   string
}

func NewOverlay(base model.Accessor, store Snapshots, doc string) *Overlay {
	return &Overlay{base: base, store: store, doc: doc}
}

func (o *Overlay) PageCount(ctx context.Context) (int, error) {
	return o.base.PageCount(ctx)
}

func (o *Overlay) AcquireOutline(ctx context.Context) (sexpr.Value, error) {
	return o.load(ctx, model.Shared, model.ChangeOutline, o.base.AcquireOutline)
}

func (o *Overlay) AcquirePageText(ctx context.Context, n int) (sexpr.Value, error) {
	return o.load(ctx, n, model.ChangeText, func(ctx context.Context) (sexpr.Value, error) {
		return o.base.AcquirePageText(ctx, n)
	})
}

func (o *Overlay) AcquirePageAnnotations(ctx context.Context, n int) (sexpr.Value, error) {
	return o.load(ctx, n, model.ChangeAnnotations, func(ctx context.Context) (sexpr.Value, error) {
		return o.base.AcquirePageAnnotations(ctx, n)
	})
}

func (o *Overlay) AcquireSharedAnnotations(ctx context.Context) (sexpr.Value, error) {
	return o.load(ctx, model.Shared, model.ChangeAnnotations, o.base.AcquireSharedAnnotations)
}

func (o *Overlay) load(ctx context.Context, scope int, kind model.ChangeKind, fallback func(context.Context) (sexpr.Value, error)) (sexpr.Value, error) {
	v, ok, err := o.store.Load(ctx, o.doc, scope, kind)
	if err != nil {
		return nil, err
	}
	if ok {
		return v, nil
	}
	return fallback(ctx)
}

package model

import (
	"reflect"
	"slices"

	"github.com/dgallion1/docmeta/internal/doctree"
)

// TreeObserver receives change notifications from an Outline or PageText.
type TreeObserver interface {
	NotifyNodeChange(id doctree.NodeID)
	NotifyNodeChildrenChange(id doctree.NodeID)
	NotifyTreeChange(root doctree.NodeID)
}

// SelectionObserver is an optional extension of TreeObserver and
// AnnotationsObserver for UI-facing selection tracking.
type SelectionObserver interface {
	NotifyNodeSelect(id doctree.NodeID)
	NotifyNodeDeselect(id doctree.NodeID)
}

// Token identifies one subscription.
type Token uint64

// Registry holds subscribed observers in subscription order. It owns only
// the tokens; keeping an observer alive is the subscriber's business.
type Registry[O any] struct {
	next  Token
	order []Token
	subs  map[Token]O
}

// Subscribe adds o and returns its token. A nil observer is rejected.
func (r *Registry[O]) Subscribe(o O) (Token, error) {
	if isNil(o) {
		return 0, ErrInvalidObserver
	}
	if r.subs == nil {
		r.subs = make(map[Token]O)
	}
	r.next++
	r.subs[r.next] = o
	r.order = append(r.order, r.next)
	return r.next, nil
}

// Unsubscribe removes the observer for tok. It reports whether tok was live.
func (r *Registry[O]) Unsubscribe(tok Token) bool {
	if _, ok := r.subs[tok]; !ok {
		return false
	}
	delete(r.subs, tok)
	r.order = slices.DeleteFunc(r.order, func(t Token) bool { return t == tok })
	return true
}

// Len returns the number of live subscriptions.
func (r *Registry[O]) Len() int { return len(r.subs) }

// Each calls fn for every observer subscribed when the pass starts.
// Observers subscribed during the pass are not visited; observers
// unsubscribed during the pass are skipped.
func (r *Registry[O]) Each(fn func(O)) {
	snapshot := slices.Clone(r.order)
	for _, tok := range snapshot {
		if o, ok := r.subs[tok]; ok {
			fn(o)
		}
	}
}

func isNil(o any) bool {
	if o == nil {
		return true
	}
	v := reflect.ValueOf(o)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

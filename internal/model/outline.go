package model

import (
	"github.com/dgallion1/docmeta/internal/doctree"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

// NoTitle is the title given to bookmarks created from a page.
const NoTitle = "(no title)"

// Outline is the document bookmark tree. The root is a marker node carrying
// the outline type tag; every other node is an entry with a title, a link
// target and children.
type Outline struct {
	treeModel
}

// NewOutline builds an outline from its serialized form. A nil or empty
// value is read as EmptyOutline.
func NewOutline(raw sexpr.Value) (*Outline, error) {
	if isEmpty(raw) {
		raw = EmptyOutline
	}
	o := &Outline{treeModel{build: buildOutline, emit: emitOutline}}
	if err := o.init(raw); err != nil {
		return nil, err
	}
	return o, nil
}

// Clone returns an independent copy with no observers.
func (o *Outline) Clone() *Outline {
	return &Outline{o.clone()}
}

// URI returns the link target of an entry.
func (o *Outline) URI(id doctree.NodeID) (string, error) { return o.tree.URI(id) }

// SetURI changes the link target of an entry.
func (o *Outline) SetURI(id doctree.NodeID, uri string) (doctree.Event, error) {
	ev, err := o.tree.SetURI(id, uri)
	if err != nil {
		return ev, err
	}
	o.fire(ev)
	return ev, nil
}

// AddEntry appends a new entry under parent. The uri is normalized.
func (o *Outline) AddEntry(parent doctree.NodeID, title, uri string) (doctree.NodeID, doctree.Event, error) {
	id := o.tree.NewEntry(title, FixURI(uri))
	ev, err := o.tree.AddChild(parent, id)
	if err != nil {
		return doctree.None, ev, err
	}
	o.fire(ev)
	return id, ev, nil
}

// AddBookmark appends an untitled entry pointing at 0-based page n.
func (o *Outline) AddBookmark(n int) (doctree.NodeID, doctree.Event, error) {
	if n < 0 {
		return doctree.None, doctree.Event{}, ErrPageRange
	}
	return o.AddEntry(o.Root(), NoTitle, PageURI(n))
}

// Remove replaces the outline with EmptyOutline.
func (o *Outline) Remove() doctree.Event {
	ev, err := o.SetRaw(EmptyOutline)
	if err != nil {
		panic(err)
	}
	return ev
}

// Export writes the outline at document scope.
func (o *Outline) Export(w Writer) error {
	w.SelectShared()
	w.SetOutline(o.Raw())
	return nil
}

func buildOutline(raw sexpr.Value) (*doctree.Tree, error) {
	l, ok := raw.(sexpr.List)
	if !ok || len(l) == 0 {
		return nil, &StructureError{Path: []int{}, Fragment: sexpr.Describe(raw), Reason: "outline must be a non-empty list"}
	}
	typ, ok := l[0].(sexpr.Symbol)
	if !ok {
		return nil, &StructureError{Path: []int{0}, Fragment: sexpr.Describe(l[0]), Reason: "outline type must be a symbol"}
	}
	t := doctree.New()
	root := t.NewRoot(string(typ))
	for i, e := range l[1:] {
		if err := buildEntry(t, root, e, []int{i + 1}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func buildEntry(t *doctree.Tree, parent doctree.NodeID, v sexpr.Value, path []int) error {
	l, ok := v.(sexpr.List)
	if !ok || len(l) < 2 {
		return &StructureError{Path: path, Fragment: sexpr.Describe(v), Reason: "outline entry must be a list of title, uri and children"}
	}
	title, ok := l[0].(sexpr.String)
	if !ok {
		return &StructureError{Path: pathOf(path, 0), Fragment: sexpr.Describe(l[0]), Reason: "outline title must be a string"}
	}
	uri, ok := l[1].(sexpr.String)
	if !ok {
		return &StructureError{Path: pathOf(path, 1), Fragment: sexpr.Describe(l[1]), Reason: "outline uri must be a string"}
	}
	id := t.NewEntry(string(title), FixURI(string(uri)))
	if _, err := t.AddChild(parent, id); err != nil {
		return err
	}
	for i, c := range l[2:] {
		if err := buildEntry(t, id, c, pathOf(path, i+2)); err != nil {
			return err
		}
	}
	return nil
}

func emitOutline(t *doctree.Tree) sexpr.Value {
	root := t.Root()
	out := sexpr.List{sexpr.Symbol(t.Type(root))}
	kids, _ := t.Children(root)
	for _, c := range kids {
		out = append(out, emitEntry(t, c))
	}
	return out
}

func emitEntry(t *doctree.Tree, id doctree.NodeID) sexpr.Value {
	title, _ := t.Text(id)
	uri, _ := t.URI(id)
	out := sexpr.List{sexpr.String(title), sexpr.String(uri)}
	kids, _ := t.Children(id)
	for _, c := range kids {
		out = append(out, emitEntry(t, c))
	}
	return out
}

func isEmpty(v sexpr.Value) bool {
	if v == nil {
		return true
	}
	l, ok := v.(sexpr.List)
	return ok && len(l) == 0
}

package model

import (
	"github.com/dgallion1/docmeta/internal/sexpr"
)

// AnnotationID identifies one annotation within a PageAnnotations. IDs are
// not reused, even after SetRaw.
type AnnotationID int

// AnnotationKind is the variant of an annotation.
type AnnotationKind uint8

const (
	AnnotationOther AnnotationKind = iota
	AnnotationMetadata
	AnnotationMapArea
)

// MetadataEntry is one key/value pair of a metadata annotation.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MapArea is a hyperlink area. Shape is the area expression, e.g.
// (rect x y w h); Options holds the trailing display options as is.
// A non-empty Target selects the (url "href" "target") link form.
type MapArea struct {
	URI     string        `json:"uri"`
	Target  string        `json:"target,omitempty"`
	Comment string        `json:"comment"`
	Shape   sexpr.List    `json:"-"`
	Options []sexpr.Value `json:"-"`
}

// AnnotationsObserver receives change notifications from PageAnnotations.
type AnnotationsObserver interface {
	NotifyNodeChange(id AnnotationID)
	NotifyNodeAdd(id AnnotationID)
	NotifyNodeDelete(id AnnotationID)
	NotifyNodeReplace(old, replacement AnnotationID)
}

// AnnotationEventKind says what an annotation mutation did.
type AnnotationEventKind uint8

const (
	AnnotationChanged AnnotationEventKind = iota + 1
	AnnotationAdded
	AnnotationDeleted
	AnnotationReplaced
)

// AnnotationEvent is returned by every annotation mutation. Other is set
// for replacements only.
type AnnotationEvent struct {
	Kind  AnnotationEventKind
	Node  AnnotationID
	Other AnnotationID
}

type annotation struct {
	id   AnnotationID
	kind AnnotationKind
	raw  sexpr.List
	meta []MetadataEntry
	area MapArea
}

// PageAnnotations holds the annotations of one page, or of the document when
// the page is Shared. Unmodified annotations serialize exactly as loaded;
// kinds other than metadata and mapareas pass through untouched.
type PageAnnotations struct {
	page      int
	items     []*annotation
	nextID    AnnotationID
	original  sexpr.Value
	dirty     bool
	revision  uint64
	observers Registry[AnnotationsObserver]
}

// NewPageAnnotations parses the annotations of page n (or Shared).
func NewPageAnnotations(n int, raw sexpr.Value) (*PageAnnotations, error) {
	if raw == nil {
		raw = sexpr.List{}
	}
	a := &PageAnnotations{page: n}
	items, err := a.parse(raw)
	if err != nil {
		return nil, err
	}
	a.items = items
	a.original = sexpr.Clone(raw)
	return a, nil
}

// Clone returns an independent copy with no observers.
func (a *PageAnnotations) Clone() *PageAnnotations {
	out := &PageAnnotations{
		page:     a.page,
		nextID:   a.nextID,
		original: a.original,
		dirty:    a.dirty,
		revision: a.revision,
	}
	for _, it := range a.items {
		cp := *it
		cp.raw = sexpr.Clone(it.raw).(sexpr.List)
		cp.meta = append([]MetadataEntry(nil), it.meta...)
		cp.area = cloneArea(it.area)
		out.items = append(out.items, &cp)
	}
	return out
}

func (a *PageAnnotations) Page() int { return a.page }

func (a *PageAnnotations) Dirty() bool { return a.dirty }

func (a *PageAnnotations) Revision() uint64 { return a.revision }

// MarkClean clears the dirty flag if nothing changed since revision rev.
func (a *PageAnnotations) MarkClean(rev uint64) bool {
	if rev != a.revision {
		return false
	}
	a.original = a.Raw()
	a.dirty = false
	return true
}

func (a *PageAnnotations) Subscribe(o AnnotationsObserver) (Token, error) {
	return a.observers.Subscribe(o)
}

func (a *PageAnnotations) Unsubscribe(tok Token) bool {
	return a.observers.Unsubscribe(tok)
}

// Raw serializes every annotation in order.
func (a *PageAnnotations) Raw() sexpr.Value {
	out := sexpr.List{}
	for _, it := range a.items {
		out = append(out, sexpr.Clone(it.raw))
	}
	return out
}

// SetRaw replaces every annotation. Observers see the old annotations
// deleted and the new ones added.
func (a *PageAnnotations) SetRaw(v sexpr.Value) ([]AnnotationEvent, error) {
	items, err := a.parse(v)
	if err != nil {
		return nil, err
	}
	var events []AnnotationEvent
	for _, it := range a.items {
		events = append(events, AnnotationEvent{Kind: AnnotationDeleted, Node: it.id})
	}
	for _, it := range items {
		events = append(events, AnnotationEvent{Kind: AnnotationAdded, Node: it.id})
	}
	a.items = items
	for _, ev := range events {
		a.fire(ev)
	}
	return events, nil
}

// Revert restores the annotations as last loaded or saved and clears the
// dirty flag.
func (a *PageAnnotations) Revert() []AnnotationEvent {
	events, err := a.SetRaw(a.original)
	if err != nil {
		panic(err)
	}
	a.dirty = false
	return events
}

// Export writes every annotation for this scope, replacing what it held.
func (a *PageAnnotations) Export(w Writer) error {
	if a.page == Shared {
		w.SelectShared()
	} else {
		w.SelectPage(a.page)
	}
	w.ClearAnnotations()
	for _, it := range a.items {
		w.SetAnnotationsAppend(it.raw)
	}
	return nil
}

// IDs returns every annotation id in order.
func (a *PageAnnotations) IDs() []AnnotationID {
	out := make([]AnnotationID, len(a.items))
	for i, it := range a.items {
		out[i] = it.id
	}
	return out
}

// Kind returns the variant of an annotation.
func (a *PageAnnotations) Kind(id AnnotationID) (AnnotationKind, error) {
	it, _ := a.find(id)
	if it == nil {
		return 0, ErrNoAnnotation
	}
	return it.kind, nil
}

// Metadata returns the entries of every metadata annotation, in order.
func (a *PageAnnotations) Metadata() []MetadataEntry {
	var out []MetadataEntry
	for _, it := range a.items {
		if it.kind == AnnotationMetadata {
			out = append(out, it.meta...)
		}
	}
	return out
}

// SetMetadata sets key to value, adding a metadata annotation if there is
// none yet.
func (a *PageAnnotations) SetMetadata(key, value string) (AnnotationEvent, error) {
	var block *annotation
	for _, it := range a.items {
		if it.kind != AnnotationMetadata {
			continue
		}
		if block == nil {
			block = it
		}
		for i := range it.meta {
			if it.meta[i].Key == key {
				it.meta[i].Value = value
				it.raw = metadataValue(it.meta)
				return a.fire(AnnotationEvent{Kind: AnnotationChanged, Node: it.id}), nil
			}
		}
	}
	if block != nil {
		block.meta = append(block.meta, MetadataEntry{Key: key, Value: value})
		block.raw = metadataValue(block.meta)
		return a.fire(AnnotationEvent{Kind: AnnotationChanged, Node: block.id}), nil
	}
	it := &annotation{id: a.alloc(), kind: AnnotationMetadata, meta: []MetadataEntry{{Key: key, Value: value}}}
	it.raw = metadataValue(it.meta)
	a.items = append(a.items, it)
	return a.fire(AnnotationEvent{Kind: AnnotationAdded, Node: it.id}), nil
}

// DeleteMetadata removes key from whichever metadata annotation holds it.
func (a *PageAnnotations) DeleteMetadata(key string) (AnnotationEvent, error) {
	for _, it := range a.items {
		if it.kind != AnnotationMetadata {
			continue
		}
		for i := range it.meta {
			if it.meta[i].Key == key {
				it.meta = append(it.meta[:i], it.meta[i+1:]...)
				it.raw = metadataValue(it.meta)
				return a.fire(AnnotationEvent{Kind: AnnotationChanged, Node: it.id}), nil
			}
		}
	}
	return AnnotationEvent{}, ErrNoAnnotation
}

// MapAreas returns the ids of every maparea in order.
func (a *PageAnnotations) MapAreas() []AnnotationID {
	var out []AnnotationID
	for _, it := range a.items {
		if it.kind == AnnotationMapArea {
			out = append(out, it.id)
		}
	}
	return out
}

// MapArea returns a copy of a maparea.
func (a *PageAnnotations) MapArea(id AnnotationID) (MapArea, error) {
	it, _ := a.find(id)
	if it == nil || it.kind != AnnotationMapArea {
		return MapArea{}, ErrNoAnnotation
	}
	return cloneArea(it.area), nil
}

// SetMapAreaURI changes the link of a maparea.
func (a *PageAnnotations) SetMapAreaURI(id AnnotationID, uri string) (AnnotationEvent, error) {
	return a.updateArea(id, func(m *MapArea) { m.URI = uri })
}

// SetMapAreaComment changes the comment of a maparea.
func (a *PageAnnotations) SetMapAreaComment(id AnnotationID, comment string) (AnnotationEvent, error) {
	return a.updateArea(id, func(m *MapArea) { m.Comment = comment })
}

func (a *PageAnnotations) updateArea(id AnnotationID, fn func(*MapArea)) (AnnotationEvent, error) {
	it, _ := a.find(id)
	if it == nil || it.kind != AnnotationMapArea {
		return AnnotationEvent{}, ErrNoAnnotation
	}
	fn(&it.area)
	it.raw = mapAreaValue(it.area)
	return a.fire(AnnotationEvent{Kind: AnnotationChanged, Node: id}), nil
}

// AddMapArea appends a maparea.
func (a *PageAnnotations) AddMapArea(m MapArea) (AnnotationID, AnnotationEvent, error) {
	if err := checkShape(m.Shape, nil); err != nil {
		return 0, AnnotationEvent{}, err
	}
	it := &annotation{id: a.alloc(), kind: AnnotationMapArea, area: cloneArea(m)}
	it.raw = mapAreaValue(it.area)
	a.items = append(a.items, it)
	return it.id, a.fire(AnnotationEvent{Kind: AnnotationAdded, Node: it.id}), nil
}

// ReplaceMapArea swaps the maparea id for m at the same position.
func (a *PageAnnotations) ReplaceMapArea(id AnnotationID, m MapArea) (AnnotationID, AnnotationEvent, error) {
	it, i := a.find(id)
	if it == nil || it.kind != AnnotationMapArea {
		return 0, AnnotationEvent{}, ErrNoAnnotation
	}
	if err := checkShape(m.Shape, nil); err != nil {
		return 0, AnnotationEvent{}, err
	}
	repl := &annotation{id: a.alloc(), kind: AnnotationMapArea, area: cloneArea(m)}
	repl.raw = mapAreaValue(repl.area)
	a.items[i] = repl
	return repl.id, a.fire(AnnotationEvent{Kind: AnnotationReplaced, Node: id, Other: repl.id}), nil
}

// Delete removes any annotation.
func (a *PageAnnotations) Delete(id AnnotationID) (AnnotationEvent, error) {
	it, i := a.find(id)
	if it == nil {
		return AnnotationEvent{}, ErrNoAnnotation
	}
	a.items = append(a.items[:i], a.items[i+1:]...)
	return a.fire(AnnotationEvent{Kind: AnnotationDeleted, Node: id}), nil
}

func (a *PageAnnotations) find(id AnnotationID) (*annotation, int) {
	for i, it := range a.items {
		if it.id == id {
			return it, i
		}
	}
	return nil, -1
}

func (a *PageAnnotations) alloc() AnnotationID {
	a.nextID++
	return a.nextID
}

func (a *PageAnnotations) fire(ev AnnotationEvent) AnnotationEvent {
	a.dirty = true
	a.revision++
	a.observers.Each(func(o AnnotationsObserver) {
		switch ev.Kind {
		case AnnotationChanged:
			o.NotifyNodeChange(ev.Node)
		case AnnotationAdded:
			o.NotifyNodeAdd(ev.Node)
		case AnnotationDeleted:
			o.NotifyNodeDelete(ev.Node)
		case AnnotationReplaced:
			o.NotifyNodeReplace(ev.Node, ev.Other)
		}
	})
	return ev
}

func (a *PageAnnotations) parse(raw sexpr.Value) ([]*annotation, error) {
	l, ok := raw.(sexpr.List)
	if !ok {
		return nil, &StructureError{Path: []int{}, Fragment: sexpr.Describe(raw), Reason: "annotations must be a list"}
	}
	var items []*annotation
	for i, v := range l {
		path := []int{i}
		el, ok := v.(sexpr.List)
		if !ok || len(el) == 0 {
			return nil, &StructureError{Path: path, Fragment: sexpr.Describe(v), Reason: "annotation must be a non-empty list"}
		}
		head, ok := el[0].(sexpr.Symbol)
		if !ok {
			return nil, &StructureError{Path: pathOf(path, 0), Fragment: sexpr.Describe(el[0]), Reason: "annotation type must be a symbol"}
		}
		it := &annotation{id: a.alloc(), raw: sexpr.Clone(el).(sexpr.List)}
		switch head {
		case "metadata":
			meta, err := parseMetadata(el, path)
			if err != nil {
				return nil, err
			}
			it.kind, it.meta = AnnotationMetadata, meta
		case "maparea":
			area, err := parseMapArea(el, path)
			if err != nil {
				return nil, err
			}
			it.kind, it.area = AnnotationMapArea, area
		default:
			it.kind = AnnotationOther
		}
		items = append(items, it)
	}
	return items, nil
}

func parseMetadata(l sexpr.List, path []int) ([]MetadataEntry, error) {
	var out []MetadataEntry
	for i, v := range l[1:] {
		p := pathOf(path, i+1)
		pair, ok := v.(sexpr.List)
		if !ok || len(pair) != 2 {
			return nil, &StructureError{Path: p, Fragment: sexpr.Describe(v), Reason: "metadata entry must be (key \"value\")"}
		}
		key, ok := pair[0].(sexpr.Symbol)
		if !ok {
			return nil, &StructureError{Path: pathOf(p, 0), Fragment: sexpr.Describe(pair[0]), Reason: "metadata key must be a symbol"}
		}
		val, ok := pair[1].(sexpr.String)
		if !ok {
			return nil, &StructureError{Path: pathOf(p, 1), Fragment: sexpr.Describe(pair[1]), Reason: "metadata value must be a string"}
		}
		out = append(out, MetadataEntry{Key: string(key), Value: string(val)})
	}
	return out, nil
}

func parseMapArea(l sexpr.List, path []int) (MapArea, error) {
	var m MapArea
	if len(l) < 4 {
		return m, &StructureError{Path: path, Fragment: sexpr.Describe(l), Reason: "maparea must hold a uri, a comment and a shape"}
	}
	switch u := l[1].(type) {
	case sexpr.String:
		m.URI = string(u)
	case sexpr.List:
		href, ok1 := elem[sexpr.String](u, 1)
		target, ok2 := elem[sexpr.String](u, 2)
		if len(u) != 3 || u[0] != sexpr.Symbol("url") || !ok1 || !ok2 {
			return m, &StructureError{Path: pathOf(path, 1), Fragment: sexpr.Describe(u), Reason: "maparea link must be a string or (url \"href\" \"target\")"}
		}
		m.URI, m.Target = string(href), string(target)
	default:
		return m, &StructureError{Path: pathOf(path, 1), Fragment: sexpr.Describe(l[1]), Reason: "maparea link must be a string or (url \"href\" \"target\")"}
	}
	comment, ok := l[2].(sexpr.String)
	if !ok {
		return m, &StructureError{Path: pathOf(path, 2), Fragment: sexpr.Describe(l[2]), Reason: "maparea comment must be a string"}
	}
	m.Comment = string(comment)
	shape, _ := l[3].(sexpr.List)
	if err := checkShape(shape, pathOf(path, 3)); err != nil {
		return m, err
	}
	m.Shape = sexpr.Clone(shape).(sexpr.List)
	for _, o := range l[4:] {
		m.Options = append(m.Options, sexpr.Clone(o))
	}
	return m, nil
}

func checkShape(shape sexpr.List, path []int) error {
	if len(shape) == 0 {
		return &StructureError{Path: path, Fragment: sexpr.Describe(shape), Reason: "maparea shape must be a non-empty list"}
	}
	if _, ok := shape[0].(sexpr.Symbol); !ok {
		return &StructureError{Path: path, Fragment: sexpr.Describe(shape), Reason: "maparea shape must start with a symbol"}
	}
	return nil
}

func elem[T sexpr.Value](l sexpr.List, i int) (T, bool) {
	var zero T
	if i >= len(l) {
		return zero, false
	}
	v, ok := l[i].(T)
	return v, ok
}

func metadataValue(meta []MetadataEntry) sexpr.List {
	out := sexpr.List{sexpr.Symbol("metadata")}
	for _, e := range meta {
		out = append(out, sexpr.List{sexpr.Symbol(e.Key), sexpr.String(e.Value)})
	}
	return out
}

func mapAreaValue(m MapArea) sexpr.List {
	var link sexpr.Value = sexpr.String(m.URI)
	if m.Target != "" {
		link = sexpr.List{sexpr.Symbol("url"), sexpr.String(m.URI), sexpr.String(m.Target)}
	}
	out := sexpr.List{sexpr.Symbol("maparea"), link, sexpr.String(m.Comment), sexpr.Clone(m.Shape)}
	for _, o := range m.Options {
		out = append(out, sexpr.Clone(o))
	}
	return out
}

func cloneArea(m MapArea) MapArea {
	if m.Shape != nil {
		m.Shape = sexpr.Clone(m.Shape).(sexpr.List)
	}
	if m.Options != nil {
		opts := make([]sexpr.Value, len(m.Options))
		for i, o := range m.Options {
			opts[i] = sexpr.Clone(o)
		}
		m.Options = opts
	}
	return m
}

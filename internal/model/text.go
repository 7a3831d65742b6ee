package model

import (
	"strings"

	"github.com/dgallion1/docmeta/internal/doctree"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

// Zone types of the text layer, coarsest first.
var ZoneTypes = []string{"page", "column", "region", "para", "line", "word", "char"}

// ZoneRank returns the position of typ in ZoneTypes, or -1.
func ZoneRank(typ string) int {
	for i, z := range ZoneTypes {
		if z == typ {
			return i
		}
	}
	return -1
}

// PageText is the text layer of one page: a tree of zones with geometry,
// whose leaves carry literal text. A page without a text layer has no root.
type PageText struct {
	treeModel
	page int
}

// NewPageText builds the text layer of 0-based page n from its serialized
// form. A nil or empty value means the page has no text layer.
func NewPageText(n int, raw sexpr.Value) (*PageText, error) {
	if raw == nil {
		raw = sexpr.List{}
	}
	p := &PageText{treeModel: treeModel{build: buildText, emit: emitText}, page: n}
	if err := p.init(raw); err != nil {
		return nil, err
	}
	return p, nil
}

// Clone returns an independent copy with no observers.
func (p *PageText) Clone() *PageText {
	return &PageText{treeModel: p.clone(), page: p.page}
}

// Page returns the 0-based page index.
func (p *PageText) Page() int { return p.page }

// HasLayer reports whether the page has a text layer.
func (p *PageText) HasLayer() bool { return p.tree.Root() != doctree.None }

// IsLeaf reports whether id carries literal text.
func (p *PageText) IsLeaf(id doctree.NodeID) bool {
	k, err := p.tree.Kind(id)
	return err == nil && k == doctree.KindLeaf
}

// Rect returns zone geometry.
func (p *PageText) Rect(id doctree.NodeID) (doctree.Rect, error) { return p.tree.Rect(id) }

// SetRect changes zone geometry as a unit.
func (p *PageText) SetRect(id doctree.NodeID, r doctree.Rect) (doctree.Event, error) {
	if !p.HasLayer() {
		return doctree.Event{}, ErrNoTextLayer
	}
	ev, err := p.tree.SetRect(id, r)
	if err != nil {
		return ev, err
	}
	p.fire(ev)
	return ev, nil
}

func (p *PageText) setField(id doctree.NodeID, set func(*doctree.Rect)) (doctree.Event, error) {
	r, err := p.Rect(id)
	if err != nil {
		return doctree.Event{}, err
	}
	set(&r)
	return p.SetRect(id, r)
}

func (p *PageText) SetX(id doctree.NodeID, x int) (doctree.Event, error) {
	return p.setField(id, func(r *doctree.Rect) { r.X = x })
}

func (p *PageText) SetY(id doctree.NodeID, y int) (doctree.Event, error) {
	return p.setField(id, func(r *doctree.Rect) { r.Y = y })
}

func (p *PageText) SetW(id doctree.NodeID, w int) (doctree.Event, error) {
	return p.setField(id, func(r *doctree.Rect) { r.W = w })
}

func (p *PageText) SetH(id doctree.NodeID, h int) (doctree.Event, error) {
	return p.setField(id, func(r *doctree.Rect) { r.H = h })
}

// SetText changes the text of a leaf.
func (p *PageText) SetText(id doctree.NodeID, text string) (doctree.Event, error) {
	if !p.HasLayer() {
		return doctree.Event{}, ErrNoTextLayer
	}
	return p.treeModel.SetText(id, text)
}

// AddZone appends an empty zone under parent.
func (p *PageText) AddZone(parent doctree.NodeID, typ string, r doctree.Rect) (doctree.NodeID, doctree.Event, error) {
	return p.add(parent, func(t *doctree.Tree) doctree.NodeID { return t.NewZone(typ, r) }, r)
}

// AddLeaf appends a text leaf under parent.
func (p *PageText) AddLeaf(parent doctree.NodeID, typ string, r doctree.Rect, text string) (doctree.NodeID, doctree.Event, error) {
	return p.add(parent, func(t *doctree.Tree) doctree.NodeID { return t.NewLeaf(typ, r, text) }, r)
}

func (p *PageText) add(parent doctree.NodeID, alloc func(*doctree.Tree) doctree.NodeID, r doctree.Rect) (doctree.NodeID, doctree.Event, error) {
	if !p.HasLayer() {
		return doctree.None, doctree.Event{}, ErrNoTextLayer
	}
	if !r.Valid() {
		return doctree.None, doctree.Event{}, doctree.ErrBadGeometry
	}
	id := alloc(p.tree)
	ev, err := p.tree.AddChild(parent, id)
	if err != nil {
		return doctree.None, ev, err
	}
	p.fire(ev)
	return id, ev, nil
}

// Delete detaches id from its parent.
func (p *PageText) Delete(id doctree.NodeID) (doctree.Event, error) {
	if !p.HasLayer() {
		return doctree.Event{}, ErrNoTextLayer
	}
	return p.treeModel.Delete(id)
}

// Leaves returns every text leaf in document order.
func (p *PageText) Leaves() []doctree.NodeID {
	var out []doctree.NodeID
	p.Walk(func(id doctree.NodeID, _ int) bool {
		if p.IsLeaf(id) {
			out = append(out, id)
		}
		return true
	})
	return out
}

// Preorder returns every attached node in document order.
func (p *PageText) Preorder() []doctree.NodeID {
	var out []doctree.NodeID
	p.Walk(func(id doctree.NodeID, _ int) bool {
		out = append(out, id)
		return true
	})
	return out
}

// Strip flattens every zone of type zone into a leaf holding the text of
// its subtree, dropping the finer zones below it. Observers see a tree
// change.
func (p *PageText) Strip(zone string) (doctree.Event, error) {
	if ZoneRank(zone) < 0 {
		return doctree.Event{}, ErrUnknownZone
	}
	if !p.HasLayer() {
		return doctree.Event{}, ErrNoTextLayer
	}
	return p.SetRaw(strip(p.Raw(), zone))
}

func strip(v sexpr.Value, zone string) sexpr.Value {
	l := v.(sexpr.List)
	if isLeafValue(l) {
		return l
	}
	if string(l[0].(sexpr.Symbol)) == zone {
		out := append(sexpr.List{}, l[:5]...)
		return append(out, sexpr.String(flatText(l)))
	}
	out := append(sexpr.List{}, l[:5]...)
	for _, c := range l[5:] {
		out = append(out, strip(c, zone))
	}
	return out
}

func isLeafValue(l sexpr.List) bool {
	if len(l) != 6 {
		return false
	}
	_, ok := l[5].(sexpr.String)
	return ok
}

// flatText joins the text below a zone, separating children by the
// granularity of the child zones.
func flatText(l sexpr.List) string {
	if isLeafValue(l) {
		return string(l[5].(sexpr.String))
	}
	var parts []string
	sep := ""
	for _, c := range l[5:] {
		cl := c.(sexpr.List)
		parts = append(parts, flatText(cl))
		sep = separator(string(cl[0].(sexpr.Symbol)))
	}
	return strings.Join(parts, sep)
}

func separator(child string) string {
	switch child {
	case "char":
		return ""
	case "word":
		return " "
	case "line":
		return "\n"
	default:
		return "\n\n"
	}
}

// Export writes the text layer for this page.
func (p *PageText) Export(w Writer) error {
	w.SelectPage(p.page)
	w.SetText(p.Raw())
	return nil
}

func buildText(raw sexpr.Value) (*doctree.Tree, error) {
	t := doctree.New()
	if isEmpty(raw) {
		return t, nil
	}
	id, err := buildZone(t, raw, []int{})
	if err != nil {
		return nil, err
	}
	if err := t.SetRoot(id); err != nil {
		return nil, err
	}
	return t, nil
}

func buildZone(t *doctree.Tree, v sexpr.Value, path []int) (doctree.NodeID, error) {
	l, ok := v.(sexpr.List)
	if !ok || len(l) < 5 {
		return doctree.None, &StructureError{Path: path, Fragment: sexpr.Describe(v), Reason: "text zone must be a list of type, x0, y0, x1, y1 and contents"}
	}
	typ, ok := l[0].(sexpr.Symbol)
	if !ok {
		return doctree.None, &StructureError{Path: pathOf(path, 0), Fragment: sexpr.Describe(l[0]), Reason: "zone type must be a symbol"}
	}
	var c [4]int
	for i := range c {
		n, ok := l[i+1].(sexpr.Int)
		if !ok {
			return doctree.None, &StructureError{Path: pathOf(path, i+1), Fragment: sexpr.Describe(l[i+1]), Reason: "zone coordinate must be an integer"}
		}
		c[i] = int(n)
	}
	if c[0] < 0 || c[1] < 0 {
		return doctree.None, &StructureError{Path: path, Fragment: sexpr.Describe(l), Reason: "zone coordinates must be non-negative"}
	}
	if c[2] < c[0] || c[3] < c[1] {
		return doctree.None, &StructureError{Path: path, Fragment: sexpr.Describe(l), Reason: "zone corners are inverted"}
	}
	r := doctree.RectFromCorners(c[0], c[1], c[2], c[3])

	if isLeafValue(l) {
		return t.NewLeaf(string(typ), r, string(l[5].(sexpr.String))), nil
	}
	id := t.NewZone(string(typ), r)
	for i, child := range l[5:] {
		cid, err := buildZone(t, child, pathOf(path, i+5))
		if err != nil {
			return doctree.None, err
		}
		if _, err := t.AddChild(id, cid); err != nil {
			return doctree.None, err
		}
	}
	return id, nil
}

func emitText(t *doctree.Tree) sexpr.Value {
	if t.Root() == doctree.None {
		return sexpr.List{}
	}
	return emitZone(t, t.Root())
}

func emitZone(t *doctree.Tree, id doctree.NodeID) sexpr.Value {
	r, _ := t.Rect(id)
	x0, y0, x1, y1 := r.Corners()
	out := sexpr.List{sexpr.Symbol(t.Type(id)), sexpr.Int(x0), sexpr.Int(y0), sexpr.Int(x1), sexpr.Int(y1)}
	if text, err := t.Text(id); err == nil {
		return append(out, sexpr.String(text))
	}
	kids, _ := t.Children(id)
	for _, c := range kids {
		out = append(out, emitZone(t, c))
	}
	return out
}

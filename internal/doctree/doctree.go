// Package doctree stores a document metadata tree in a single arena. Nodes
// refer to each other by NodeID, never by pointer, so detaching and moving
// subtrees cannot leave dangling references.
package doctree

import "errors"

// NodeID indexes a node in its Tree's arena. IDs are never reused within a Tree.
type NodeID int

// None is the NodeID of "no node": the parent of a root or a detached node.
const None NodeID = -1

// Kind is the variant of a node, fixed at construction.
type Kind uint8

const (
	// KindRoot is the outline root marker. It has children but no fields.
	KindRoot Kind = iota
	// KindEntry is an outline entry: title text, link uri and children.
	KindEntry
	// KindZone is a text zone with geometry and ordered child zones.
	KindZone
	// KindLeaf is a text zone with geometry and literal text, no children.
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindEntry:
		return "entry"
	case KindZone:
		return "zone"
	case KindLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

var (
	// ErrNotFound indicates the NodeID does not belong to the tree.
	ErrNotFound = errors.New("node not found")

	// ErrNoChildren indicates a children operation on a leaf.
	ErrNoChildren = errors.New("node kind has no children")

	// ErrNoText indicates a text operation on a node without a text field.
	ErrNoText = errors.New("node kind has no text")

	// ErrNoURI indicates a uri operation on a node that is not an outline entry.
	ErrNoURI = errors.New("node kind has no uri")

	// ErrNoGeometry indicates a geometry operation on an outline node.
	ErrNoGeometry = errors.New("node kind has no geometry")

	// ErrBadGeometry indicates a negative width or height.
	ErrBadGeometry = errors.New("geometry must be non-negative")

	// ErrCycle indicates a move that would place a node under itself.
	ErrCycle = errors.New("cannot move a node into its own subtree")

	// ErrAttached indicates adding a node that already has a parent.
	ErrAttached = errors.New("node is already attached")

	// ErrDetached indicates deleting a node that has no parent.
	ErrDetached = errors.New("node is not attached")

	// ErrRoot indicates a structural operation on the root itself.
	ErrRoot = errors.New("operation not allowed on the root")

	// ErrKindMismatch indicates mixing outline and text nodes.
	ErrKindMismatch = errors.New("child kind does not fit parent")
)

// Rect is zone geometry: origin plus non-negative width and height.
type Rect struct {
	X, Y, W, H int
}

// RectFromCorners converts absolute corners to origin and size.
func RectFromCorners(x0, y0, x1, y1 int) Rect {
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Corners returns the absolute corners (x0, y0, x1, y1).
func (r Rect) Corners() (x0, y0, x1, y1 int) {
	return r.X, r.Y, r.X + r.W, r.Y + r.H
}

// Valid reports whether every field is non-negative.
func (r Rect) Valid() bool {
	return r.X >= 0 && r.Y >= 0 && r.W >= 0 && r.H >= 0
}

// EventKind says what a mutation touched.
type EventKind uint8

const (
	// NodeChanged reports a field change on Event.Node.
	NodeChanged EventKind = iota + 1
	// ChildrenChanged reports an add or delete under Event.Node.
	ChildrenChanged
	// TreeChanged reports a wholesale replacement; Event.Node is the new root.
	TreeChanged
)

func (k EventKind) String() string {
	switch k {
	case NodeChanged:
		return "node_change"
	case ChildrenChanged:
		return "node_children_change"
	case TreeChanged:
		return "tree_change"
	default:
		return "none"
	}
}

// Event is the value returned by every mutation, for the owning model to
// fan out to its observers.
type Event struct {
	Kind EventKind
	Node NodeID
}

type node struct {
	kind     Kind
	typ      string
	text     string
	uri      string
	rect     Rect
	parent   NodeID
	children []NodeID
}

// Tree is an arena of nodes with one designated root.
// It is not safe for concurrent use.
type Tree struct {
	nodes []node
	root  NodeID
}

// New returns an empty tree with no root.
func New() *Tree {
	return &Tree{root: None}
}

func (t *Tree) alloc(n node) NodeID {
	n.parent = None
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

func (t *Tree) get(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, ErrNotFound
	}
	return &t.nodes[id], nil
}

// NewRoot allocates an outline root marker and makes it the tree's root.
func (t *Tree) NewRoot(typ string) NodeID {
	t.root = t.alloc(node{kind: KindRoot, typ: typ})
	return t.root
}

// NewEntry allocates a detached outline entry.
func (t *Tree) NewEntry(text, uri string) NodeID {
	return t.alloc(node{kind: KindEntry, text: text, uri: uri})
}

// NewZone allocates a detached text zone with children.
func (t *Tree) NewZone(typ string, r Rect) NodeID {
	return t.alloc(node{kind: KindZone, typ: typ, rect: r})
}

// NewLeaf allocates a detached text leaf.
func (t *Tree) NewLeaf(typ string, r Rect, text string) NodeID {
	return t.alloc(node{kind: KindLeaf, typ: typ, rect: r, text: text})
}

// SetRoot designates an allocated, detached node as the root.
func (t *Tree) SetRoot(id NodeID) error {
	n, err := t.get(id)
	if err != nil {
		return err
	}
	if n.parent != None {
		return ErrAttached
	}
	t.root = id
	return nil
}

// Root returns the root NodeID, or None for an empty tree.
func (t *Tree) Root() NodeID { return t.root }

// Contains reports whether id belongs to the tree.
func (t *Tree) Contains(id NodeID) bool {
	_, err := t.get(id)
	return err == nil
}

// Kind returns the node variant.
func (t *Tree) Kind(id NodeID) (Kind, error) {
	n, err := t.get(id)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

// Type returns the symbolic tag of a root or zone, "" for outline entries.
func (t *Tree) Type(id NodeID) string {
	n, err := t.get(id)
	if err != nil {
		return ""
	}
	return n.typ
}

// Parent returns the parent, or None for the root and detached nodes.
func (t *Tree) Parent(id NodeID) NodeID {
	n, err := t.get(id)
	if err != nil {
		return None
	}
	return n.parent
}

// Text returns the title of an entry or the literal text of a leaf.
func (t *Tree) Text(id NodeID) (string, error) {
	n, err := t.get(id)
	if err != nil {
		return "", err
	}
	if n.kind != KindEntry && n.kind != KindLeaf {
		return "", ErrNoText
	}
	return n.text, nil
}

// URI returns the link target of an outline entry.
func (t *Tree) URI(id NodeID) (string, error) {
	n, err := t.get(id)
	if err != nil {
		return "", err
	}
	if n.kind != KindEntry {
		return "", ErrNoURI
	}
	return n.uri, nil
}

// Rect returns zone geometry.
func (t *Tree) Rect(id NodeID) (Rect, error) {
	n, err := t.get(id)
	if err != nil {
		return Rect{}, err
	}
	if n.kind != KindZone && n.kind != KindLeaf {
		return Rect{}, ErrNoGeometry
	}
	return n.rect, nil
}

// Children returns a copy of the ordered child list.
func (t *Tree) Children(id NodeID) ([]NodeID, error) {
	n, err := t.get(id)
	if err != nil {
		return nil, err
	}
	if n.kind == KindLeaf {
		return nil, ErrNoChildren
	}
	out := make([]NodeID, len(n.children))
	copy(out, n.children)
	return out, nil
}

// NumChildren returns the number of children.
func (t *Tree) NumChildren(id NodeID) (int, error) {
	n, err := t.get(id)
	if err != nil {
		return 0, err
	}
	if n.kind == KindLeaf {
		return 0, ErrNoChildren
	}
	return len(n.children), nil
}

// SetText changes an entry title or leaf text.
func (t *Tree) SetText(id NodeID, text string) (Event, error) {
	n, err := t.get(id)
	if err != nil {
		return Event{}, err
	}
	if n.kind != KindEntry && n.kind != KindLeaf {
		return Event{}, ErrNoText
	}
	n.text = text
	return Event{Kind: NodeChanged, Node: id}, nil
}

// SetURI changes an entry link target. The caller normalizes the value.
func (t *Tree) SetURI(id NodeID, uri string) (Event, error) {
	n, err := t.get(id)
	if err != nil {
		return Event{}, err
	}
	if n.kind != KindEntry {
		return Event{}, ErrNoURI
	}
	n.uri = uri
	return Event{Kind: NodeChanged, Node: id}, nil
}

// SetRect changes zone geometry as a unit.
func (t *Tree) SetRect(id NodeID, r Rect) (Event, error) {
	n, err := t.get(id)
	if err != nil {
		return Event{}, err
	}
	if n.kind != KindZone && n.kind != KindLeaf {
		return Event{}, ErrNoGeometry
	}
	if !r.Valid() {
		return Event{}, ErrBadGeometry
	}
	n.rect = r
	return Event{Kind: NodeChanged, Node: id}, nil
}

// IsAncestor reports whether a is b or one of b's ancestors.
func (t *Tree) IsAncestor(a, b NodeID) bool {
	for cur := b; cur != None; cur = t.Parent(cur) {
		if cur == a {
			return true
		}
	}
	return false
}

func fits(parent, child Kind) bool {
	switch parent {
	case KindRoot, KindEntry:
		return child == KindEntry
	case KindZone:
		return child == KindZone || child == KindLeaf
	}
	return false
}

// AddChild appends a detached node to parent's children.
func (t *Tree) AddChild(parent, child NodeID) (Event, error) {
	p, err := t.get(parent)
	if err != nil {
		return Event{}, err
	}
	c, err := t.get(child)
	if err != nil {
		return Event{}, err
	}
	if child == t.root {
		return Event{}, ErrRoot
	}
	if p.kind == KindLeaf {
		return Event{}, ErrNoChildren
	}
	if !fits(p.kind, c.kind) {
		return Event{}, ErrKindMismatch
	}
	if c.parent != None {
		return Event{}, ErrAttached
	}
	if t.IsAncestor(child, parent) {
		return Event{}, ErrCycle
	}
	c.parent = parent
	p.children = append(p.children, child)
	return Event{Kind: ChildrenChanged, Node: parent}, nil
}

// Delete detaches id from its parent. The detached subtree stays intact in
// the arena and may be added elsewhere.
func (t *Tree) Delete(id NodeID) (Event, error) {
	n, err := t.get(id)
	if err != nil {
		return Event{}, err
	}
	if id == t.root {
		return Event{}, ErrRoot
	}
	if n.parent == None {
		return Event{}, ErrDetached
	}
	parent := n.parent
	p := &t.nodes[parent]
	for i, c := range p.children {
		if c == id {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = None
	return Event{Kind: ChildrenChanged, Node: parent}, nil
}

// Move re-parents id under newParent, appending it last. Every check runs
// before anything is mutated.
func (t *Tree) Move(id, newParent NodeID) ([]Event, error) {
	n, err := t.get(id)
	if err != nil {
		return nil, err
	}
	p, err := t.get(newParent)
	if err != nil {
		return nil, err
	}
	if id == t.root {
		return nil, ErrRoot
	}
	if p.kind == KindLeaf {
		return nil, ErrNoChildren
	}
	if !fits(p.kind, n.kind) {
		return nil, ErrKindMismatch
	}
	if t.IsAncestor(id, newParent) {
		return nil, ErrCycle
	}
	var events []Event
	if n.parent != None {
		ev, err := t.Delete(id)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	ev, err := t.AddChild(newParent, id)
	if err != nil {
		return events, err
	}
	return append(events, ev), nil
}

// Walk visits id and its attached descendants in preorder. Returning false
// from fn skips the node's children.
func (t *Tree) Walk(id NodeID, fn func(id NodeID, depth int) bool) {
	t.walk(id, 0, fn)
}

func (t *Tree) walk(id NodeID, depth int, fn func(NodeID, int) bool) {
	n, err := t.get(id)
	if err != nil {
		return
	}
	if !fn(id, depth) {
		return
	}
	for _, c := range n.children {
		t.walk(c, depth+1, fn)
	}
}

// Clone returns an independent deep copy with identical NodeIDs.
func (t *Tree) Clone() *Tree {
	out := &Tree{root: t.root, nodes: make([]node, len(t.nodes))}
	for i, n := range t.nodes {
		n.children = append([]NodeID(nil), n.children...)
		out.nodes[i] = n
	}
	return out
}

package model

import (
	"github.com/dgallion1/docmeta/internal/doctree"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

// treeModel is the part shared by Outline and PageText: one arena tree,
// the pristine value it was built from, dirty tracking and observers.
type treeModel struct {
	tree      *doctree.Tree
	original  sexpr.Value
	dirty     bool
	revision  uint64
	observers Registry[TreeObserver]

	build func(sexpr.Value) (*doctree.Tree, error)
	emit  func(*doctree.Tree) sexpr.Value
}

func (m *treeModel) init(raw sexpr.Value) error {
	t, err := m.build(raw)
	if err != nil {
		return err
	}
	m.tree = t
	m.original = sexpr.Clone(raw)
	return nil
}

// Root returns the current root node.
func (m *treeModel) Root() doctree.NodeID { return m.tree.Root() }

// Dirty reports whether the model changed since it was loaded, reverted or
// saved.
func (m *treeModel) Dirty() bool { return m.dirty }

// Revision counts notifications. Save uses it to detect edits made while a
// commit was in flight.
func (m *treeModel) Revision() uint64 { return m.revision }

// MarkClean clears the dirty flag if nothing changed since revision rev.
// The saved tree becomes the value Revert goes back to.
func (m *treeModel) MarkClean(rev uint64) bool {
	if rev != m.revision {
		return false
	}
	m.original = m.emit(m.tree)
	m.dirty = false
	return true
}

// Subscribe registers o for change notifications.
func (m *treeModel) Subscribe(o TreeObserver) (Token, error) {
	return m.observers.Subscribe(o)
}

// Unsubscribe removes the observer registered under tok.
func (m *treeModel) Unsubscribe(tok Token) bool {
	return m.observers.Unsubscribe(tok)
}

// Raw serializes the current tree.
func (m *treeModel) Raw() sexpr.Value { return m.emit(m.tree) }

// Original returns a copy of the value the model was loaded from, or last
// saved as.
func (m *treeModel) Original() sexpr.Value { return sexpr.Clone(m.original) }

// SetRaw replaces the whole tree. On error the model is unchanged.
func (m *treeModel) SetRaw(v sexpr.Value) (doctree.Event, error) {
	t, err := m.build(v)
	if err != nil {
		return doctree.Event{}, err
	}
	m.tree = t
	ev := doctree.Event{Kind: doctree.TreeChanged, Node: t.Root()}
	m.fire(ev)
	return ev, nil
}

// Revert rebuilds the tree from the last loaded or saved value and clears
// the dirty flag. Observers see a tree change.
func (m *treeModel) Revert() doctree.Event {
	ev, err := m.SetRaw(m.original)
	if err != nil {
		// original was accepted by init, so build cannot fail on it
		panic(err)
	}
	m.dirty = false
	return ev
}

func (m *treeModel) fire(ev doctree.Event) {
	m.dirty = true
	m.revision++
	m.observers.Each(func(o TreeObserver) {
		switch ev.Kind {
		case doctree.NodeChanged:
			o.NotifyNodeChange(ev.Node)
		case doctree.ChildrenChanged:
			o.NotifyNodeChildrenChange(ev.Node)
		case doctree.TreeChanged:
			o.NotifyTreeChange(ev.Node)
		}
	})
}

func (m *treeModel) fireAll(events []doctree.Event) {
	for _, ev := range events {
		m.fire(ev)
	}
}

// Select tells selection-aware observers that id was selected. It does not
// mark the model dirty.
func (m *treeModel) Select(id doctree.NodeID) {
	m.observers.Each(func(o TreeObserver) {
		if s, ok := o.(SelectionObserver); ok {
			s.NotifyNodeSelect(id)
		}
	})
}

// Deselect is the counterpart of Select.
func (m *treeModel) Deselect(id doctree.NodeID) {
	m.observers.Each(func(o TreeObserver) {
		if s, ok := o.(SelectionObserver); ok {
			s.NotifyNodeDeselect(id)
		}
	})
}

func (m *treeModel) clone() treeModel {
	return treeModel{
		tree:     m.tree.Clone(),
		original: m.original,
		dirty:    m.dirty,
		revision: m.revision,
		build:    m.build,
		emit:     m.emit,
	}
}

// Read accessors delegate to the arena.

func (m *treeModel) Kind(id doctree.NodeID) (doctree.Kind, error) { return m.tree.Kind(id) }

func (m *treeModel) Type(id doctree.NodeID) string { return m.tree.Type(id) }

func (m *treeModel) Parent(id doctree.NodeID) doctree.NodeID { return m.tree.Parent(id) }

func (m *treeModel) Text(id doctree.NodeID) (string, error) { return m.tree.Text(id) }

func (m *treeModel) Children(id doctree.NodeID) ([]doctree.NodeID, error) {
	return m.tree.Children(id)
}

func (m *treeModel) NumChildren(id doctree.NodeID) (int, error) {
	return m.tree.NumChildren(id)
}

// Walk visits the attached tree in preorder, starting at the root.
func (m *treeModel) Walk(fn func(id doctree.NodeID, depth int) bool) {
	if m.tree.Root() == doctree.None {
		return
	}
	m.tree.Walk(m.tree.Root(), fn)
}

// SetText changes an outline title or a text leaf.
func (m *treeModel) SetText(id doctree.NodeID, text string) (doctree.Event, error) {
	ev, err := m.tree.SetText(id, text)
	if err != nil {
		return ev, err
	}
	m.fire(ev)
	return ev, nil
}

// Delete detaches id from its parent.
func (m *treeModel) Delete(id doctree.NodeID) (doctree.Event, error) {
	ev, err := m.tree.Delete(id)
	if err != nil {
		return ev, err
	}
	m.fire(ev)
	return ev, nil
}

// Move re-parents id under parent. A move into id's own subtree is rejected
// before anything changes.
func (m *treeModel) Move(id, parent doctree.NodeID) ([]doctree.Event, error) {
	events, err := m.tree.Move(id, parent)
	m.fireAll(events)
	return events, err
}

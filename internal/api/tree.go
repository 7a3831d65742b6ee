package api

import (
	"github.com/dgallion1/docmeta/internal/doctree"
	"github.com/dgallion1/docmeta/internal/model"
)

type rectJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// treeNode is the JSON view of an outline or text-layer node. IDs are the
// node ids accepted by the node routes.
type treeNode struct {
	ID       doctree.NodeID `json:"id"`
	Kind     string         `json:"kind"`
	Type     string         `json:"type,omitempty"`
	Text     *string        `json:"text,omitempty"`
	URI      *string        `json:"uri,omitempty"`
	Rect     *rectJSON      `json:"rect,omitempty"`
	Children []*treeNode    `json:"children,omitempty"`
}

type treeView interface {
	Kind(id doctree.NodeID) (doctree.Kind, error)
	Type(id doctree.NodeID) string
	Text(id doctree.NodeID) (string, error)
	Children(id doctree.NodeID) ([]doctree.NodeID, error)
}

func buildTree(m treeView, id doctree.NodeID, fill func(n *treeNode)) *treeNode {
	if id == doctree.None {
		return nil
	}
	kind, err := m.Kind(id)
	if err != nil {
		return nil
	}
	n := &treeNode{ID: id, Kind: kind.String(), Type: m.Type(id)}
	if text, err := m.Text(id); err == nil {
		n.Text = &text
	}
	if fill != nil {
		fill(n)
	}
	children, _ := m.Children(id)
	for _, c := range children {
		if child := buildTree(m, c, fill); child != nil {
			n.Children = append(n.Children, child)
		}
	}
	return n
}

func outlineTree(o *model.Outline) *treeNode {
	return buildTree(o, o.Root(), func(n *treeNode) {
		if uri, err := o.URI(n.ID); err == nil {
			n.URI = &uri
		}
	})
}

func textTree(p *model.PageText) *treeNode {
	return buildTree(p, p.Root(), func(n *treeNode) {
		if r, err := p.Rect(n.ID); err == nil {
			n.Rect = &rectJSON{X: r.X, Y: r.Y, W: r.W, H: r.H}
		}
	})
}

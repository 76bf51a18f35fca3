// Package scene holds the mutable scene graph that streamed and recorded
// updates are applied to.
//
// A Store is owned by a single view loop and is not safe for concurrent use.
package scene

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateNode is returned when a fragment reuses an id already in the scene.
var ErrDuplicateNode = errors.New("scene: duplicate node id")

// LockAttribute marks a node whose attributes must not be updated by poses.
const LockAttribute = "blockWebotsUpdate"

// backgroundURLFields are the six faces of an X3D Background node.
var backgroundURLFields = []string{"frontUrl", "backUrl", "leftUrl", "rightUrl", "topUrl", "bottomUrl"}

// RobotWindowSpec associates a robot with the window that displays its messages.
type RobotWindowSpec struct {
	Robot  string
	Window string
}

// Store is the scene graph plus an id index and the current selection.
type Store struct {
	root      *Node
	byID      map[string]*Node
	selection *Node
}

// NewStore returns an empty scene.
func NewStore() *Store {
	return &Store{
		root: &Node{Name: "Scene"},
		byID: make(map[string]*Node),
	}
}

// NodeID normalizes a wire id ("12") to the scene node id ("n12").
// Ids already in node form are returned unchanged.
func NodeID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 1 && id[0] == 'n' && isDigits(id[1:]) {
		return id
	}
	return "n" + id
}

// Root returns the scene root. Callers must not modify its children directly.
func (s *Store) Root() *Node { return s.root }

// Len returns the number of nodes carrying an id.
func (s *Store) Len() int { return len(s.byID) }

// Empty reports whether the scene root has no children.
func (s *Store) Empty() bool { return len(s.root.Children) == 0 }

// AddNode parses an XML fragment and appends its first element to the root.
func (s *Store) AddNode(fragment string) (*Node, error) {
	nodes, err := ParseFragment(fragment)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrEmptyFragment
	}
	node := nodes[0]
	if err := s.checkIDs([]*Node{node}); err != nil {
		return nil, err
	}
	s.root.appendChild(node)
	s.index(node)
	return node, nil
}

// DeleteNode removes the node with the given wire or node id and clears the
// selection when it pointed into the removed subtree.
func (s *Store) DeleteNode(id string) bool {
	node, ok := s.byID[NodeID(id)]
	if !ok {
		return false
	}
	if s.selection != nil && contains(node, s.selection) {
		s.selection = nil
	}
	if node.parent != nil {
		node.parent.removeChild(node)
	}
	s.unindex(node)
	return true
}

// ReplaceScene tears the scene down, then installs the given document or
// fragment. An empty or blank document leaves the scene empty.
func (s *Store) ReplaceScene(doc string) error {
	s.Teardown()
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return nil
	}
	nodes, err := ParseFragment(sceneContent(doc))
	if err != nil {
		return err
	}
	if err := s.checkIDs(nodes); err != nil {
		return err
	}
	for _, n := range nodes {
		s.root.appendChild(n)
		s.index(n)
	}
	return nil
}

// Teardown removes every node, last child first, and clears the selection.
// Removing in reverse keeps USE references from outliving their DEF node.
func (s *Store) Teardown() {
	s.selection = nil
	for len(s.root.Children) > 0 {
		last := s.root.Children[len(s.root.Children)-1]
		s.root.removeChild(last)
		s.unindex(last)
	}
}

// SwapTexture replaces the url of every ImageTexture and Background face that
// references textureURL. It returns the number of fields rewritten.
func (s *Store) SwapTexture(textureURL, newURL string) int {
	quoted := `"` + textureURL + `"`
	count := 0
	s.root.Walk(func(n *Node) bool {
		switch {
		case n.Is("ImageTexture"):
			if v, ok := n.Attr("url"); ok && v == quoted {
				n.SetAttr("url", newURL)
				count++
			}
		case n.Is("Background"):
			for _, field := range backgroundURLFields {
				if v, ok := n.Attr(field); ok && v == quoted {
					n.SetAttr(field, newURL)
					count++
				}
			}
		}
		return true
	})
	return count
}

// Lookup finds a node by wire or node id.
func (s *Store) Lookup(id string) (*Node, bool) {
	n, ok := s.byID[NodeID(id)]
	return n, ok
}

// FindDEF returns the first node in document order with the given DEF name.
func (s *Store) FindDEF(def string) (*Node, bool) {
	return s.find(func(n *Node) bool { return n.DEF() == def })
}

// FindFirst returns the first node in document order with the given element name.
func (s *Store) FindFirst(name string) (*Node, bool) {
	return s.find(func(n *Node) bool { return n.Is(name) })
}

// Viewpoint returns the first Viewpoint node.
func (s *Store) Viewpoint() (*Node, bool) { return s.FindFirst("Viewpoint") }

// Resolve maps a target given as wire id, node id or DEF name to the
// canonical node id. Nodes without an id cannot be resolved.
func (s *Store) Resolve(target string) (string, bool) {
	if target == "" {
		return "", false
	}
	if n, ok := s.Lookup(target); ok {
		return n.ID(), true
	}
	if n, ok := s.FindDEF(target); ok && n.ID() != "" {
		return n.ID(), true
	}
	return "", false
}

// ResolveNode maps a live node handle to its canonical node id.
func (s *Store) ResolveNode(n *Node) (string, bool) {
	if n == nil {
		return "", false
	}
	indexed, ok := s.byID[n.ID()]
	if !ok || indexed != n {
		return "", false
	}
	return n.ID(), true
}

// Select marks the node with the given id as selected.
func (s *Store) Select(id string) bool {
	n, ok := s.Lookup(id)
	if !ok {
		return false
	}
	s.selection = n
	return true
}

// Selection returns the selected node or nil.
func (s *Store) Selection() *Node { return s.selection }

// ClearSelection drops the selection.
func (s *Store) ClearSelection() { s.selection = nil }

// Locked reports whether the node refuses pose updates.
func Locked(n *Node) bool {
	v, ok := n.Attr(LockAttribute)
	return ok && v != ""
}

// RobotWindows lists top-level Transform nodes declaring both a robot name
// and a window.
func (s *Store) RobotWindows() []RobotWindowSpec {
	var specs []RobotWindowSpec
	for _, n := range s.root.Children {
		if !n.Is("Transform") {
			continue
		}
		window, hasWindow := n.Attr("window")
		name, hasName := n.Attr("name")
		if !hasWindow || !hasName {
			continue
		}
		specs = append(specs, RobotWindowSpec{Robot: name, Window: window})
	}
	return specs
}

func (s *Store) find(match func(*Node) bool) (*Node, bool) {
	var found *Node
	for _, c := range s.root.Children {
		c.Walk(func(n *Node) bool {
			if match(n) {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

func (s *Store) checkIDs(nodes []*Node) error {
	seen := make(map[string]bool)
	var err error
	for _, root := range nodes {
		root.Walk(func(n *Node) bool {
			id := n.ID()
			if id == "" {
				return true
			}
			if _, exists := s.byID[id]; exists || seen[id] {
				err = fmt.Errorf("%w: %s", ErrDuplicateNode, id)
				return false
			}
			seen[id] = true
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) index(root *Node) {
	root.Walk(func(n *Node) bool {
		if id := n.ID(); id != "" {
			s.byID[id] = n
		}
		return true
	})
}

func (s *Store) unindex(root *Node) {
	root.Walk(func(n *Node) bool {
		if id := n.ID(); id != "" && s.byID[id] == n {
			delete(s.byID, id)
		}
		return true
	})
}

func contains(root, target *Node) bool {
	for n := target; n != nil; n = n.parent {
		if n == root {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

package scene

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmptyFragment is returned when a fragment holds no element.
var ErrEmptyFragment = errors.New("scene: fragment contains no element")

// Attr is one XML attribute. Order of attributes is preserved.
type Attr struct {
	Name  string
	Value string
}

// Node is one element of the scene graph.
type Node struct {
	Name     string
	Attrs    []Attr
	Children []*Node
	parent   *Node
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr writes the named attribute, appending it when absent.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// ID returns the node id attribute, or "" when absent.
func (n *Node) ID() string {
	v, _ := n.Attr("id")
	return v
}

// DEF returns the X3D DEF name, or "" when absent.
func (n *Node) DEF() string {
	v, _ := n.Attr("DEF")
	return v
}

// Parent returns the parent node, nil for detached nodes and the scene root.
func (n *Node) Parent() *Node { return n.parent }

// Is reports whether the element name matches, ignoring case.
func (n *Node) Is(name string) bool { return strings.EqualFold(n.Name, name) }

// Walk visits n and its descendants in document order until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

func (n *Node) appendChild(c *Node) {
	c.parent = n
	n.Children = append(n.Children, c)
}

func (n *Node) removeChild(c *Node) bool {
	for i, child := range n.Children {
		if child == c {
			copy(n.Children[i:], n.Children[i+1:])
			n.Children[len(n.Children)-1] = nil
			n.Children = n.Children[:len(n.Children)-1]
			c.parent = nil
			return true
		}
	}
	return false
}

// ParseFragment parses zero or more sibling elements. Text content,
// comments, processing instructions and directives are skipped.
func ParseFragment(fragment string) ([]*Node, error) {
	dec := xml.NewDecoder(strings.NewReader(fragment))
	dec.Strict = false

	var (
		roots []*Node
		stack []*Node
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scene: invalid XML fragment: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: qualified(t.Name), Attrs: make([]Attr, 0, len(t.Attr))}
			for _, a := range t.Attr {
				node.Attrs = append(node.Attrs, Attr{Name: qualified(a.Name), Value: a.Value})
			}
			if len(stack) > 0 {
				stack[len(stack)-1].appendChild(node)
			} else {
				roots = append(roots, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("scene: unexpected closing tag </%s>", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("scene: unclosed element <%s>", stack[len(stack)-1].Name)
	}
	return roots, nil
}

// sceneContent returns what lies between <Scene> and the last </Scene>,
// or the document unchanged when it carries no Scene element.
func sceneContent(doc string) string {
	start := strings.Index(doc, "<Scene>")
	end := strings.LastIndex(doc, "</Scene>")
	if start < 0 || end < start {
		return doc
	}
	return doc[start+len("<Scene>") : end]
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

package viewpoint

import (
	"github.com/open-teleop/simview/pkg/scene"
	"github.com/open-teleop/simview/pkg/vecmath"
)

// DefaultPosition is the X3D default of Viewpoint.position.
var DefaultPosition = vecmath.Vec3{X: 0, Y: 0, Z: 10}

// NodeCamera adapts a scene Viewpoint node.
type NodeCamera struct {
	Node *scene.Node
}

// Position parses the node's position attribute.
func (c NodeCamera) Position() (vecmath.Vec3, error) {
	v, ok := c.Node.Attr("position")
	if !ok {
		return DefaultPosition, nil
	}
	return vecmath.ParseVec3(v)
}

// SetPosition writes the node's position attribute.
func (c NodeCamera) SetPosition(p vecmath.Vec3) {
	c.Node.SetAttr("position", p.String())
}

// SceneCamera returns the first Viewpoint of the store, or nil when the
// scene has none.
func SceneCamera(store *scene.Store) Camera {
	node, ok := store.Viewpoint()
	if !ok {
		return nil
	}
	return NodeCamera{Node: node}
}

// Package pose writes pose attribute updates into the scene and reports the
// displacement of the followed object to the viewpoint follower.
package pose

import (
	customlog "github.com/open-teleop/simview/pkg/log"
	"github.com/open-teleop/simview/pkg/protocol"
	"github.com/open-teleop/simview/pkg/scene"
	"github.com/open-teleop/simview/pkg/vecmath"
)

// TranslationField is the pose attribute tracked for the followed object.
const TranslationField = "translation"

// DeltaRecorder receives the displacement of the followed object.
type DeltaRecorder interface {
	Target() string
	RecordDelta(d vecmath.Vec3)
}

// Stats counts pose outcomes.
type Stats struct {
	Applied int64 `json:"applied"`
	Dropped int64 `json:"dropped"`
}

// Applier applies poses to one scene store.
type Applier struct {
	store    *scene.Store
	follower DeltaRecorder
	logger   customlog.Logger
	stats    Stats
}

// NewApplier creates an applier for the given store and follower.
func NewApplier(store *scene.Store, follower DeltaRecorder, logger customlog.Logger) *Applier {
	return &Applier{store: store, follower: follower, logger: logger}
}

// Apply writes every field of the pose into its node. Poses for missing or
// locked nodes are dropped. It reports whether the pose was applied.
func (a *Applier) Apply(p protocol.Pose) bool {
	node, ok := a.store.Lookup(p.ID)
	if !ok || scene.Locked(node) {
		a.stats.Dropped++
		return false
	}

	followed := a.follower != nil && a.follower.Target() != "" && node.ID() == a.follower.Target()
	for _, field := range p.Fields {
		if followed && field.Name == TranslationField {
			a.recordTranslation(node, field.Value)
		}
		node.SetAttr(field.Name, field.Value)
	}
	a.stats.Applied++
	return true
}

// ApplyAll applies every pose of a frame and returns the ids it touched.
func (a *Applier) ApplyAll(poses []protocol.Pose) []string {
	ids := make([]string, 0, len(poses))
	for _, p := range poses {
		a.Apply(p)
		ids = append(ids, p.ID)
	}
	return ids
}

// Stats returns the pose counters.
func (a *Applier) Stats() Stats { return a.stats }

func (a *Applier) recordTranslation(node *scene.Node, value string) {
	next, err := vecmath.ParseVec3(value)
	if err != nil {
		a.logger.Debugf("Ignoring unparsable translation of followed node %s: %v", node.ID(), err)
		return
	}
	previous := vecmath.Zero
	if old, ok := node.Attr(TranslationField); ok {
		if v, err := vecmath.ParseVec3(old); err == nil {
			previous = v
		}
	}
	a.follower.RecordDelta(next.Sub(previous))
}

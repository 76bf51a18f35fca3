package pose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customlog "github.com/open-teleop/simview/pkg/log"
	"github.com/open-teleop/simview/pkg/protocol"
	"github.com/open-teleop/simview/pkg/scene"
	"github.com/open-teleop/simview/pkg/vecmath"
)

type recorder struct {
	target string
	deltas []vecmath.Vec3
}

func (r *recorder) Target() string             { return r.target }
func (r *recorder) RecordDelta(d vecmath.Vec3) { r.deltas = append(r.deltas, d) }

func newScene(t *testing.T) *scene.Store {
	t.Helper()
	s := scene.NewStore()
	require.NoError(t, s.ReplaceScene(`
<Transform id="n1" DEF="ROBOT" translation="1 0 0"/>
<Transform id="n2" translation="0 0 0" blockWebotsUpdate="true"/>
<Transform id="n3"/>`))
	return s
}

func pose(id string, fields ...protocol.Field) protocol.Pose {
	return protocol.Pose{ID: id, Fields: fields}
}

func TestApplyWritesAttributes(t *testing.T) {
	s := newScene(t)
	a := NewApplier(s, &recorder{}, customlog.Discard())

	assert.True(t, a.Apply(pose("1",
		protocol.Field{Name: "translation", Value: "2 0 0"},
		protocol.Field{Name: "rotation", Value: "0 1 0 1"})))

	n, _ := s.Lookup("1")
	v, _ := n.Attr("translation")
	assert.Equal(t, "2 0 0", v)
	v, _ = n.Attr("rotation")
	assert.Equal(t, "0 1 0 1", v)
}

func TestApplyDropsMissingAndLockedNodes(t *testing.T) {
	s := newScene(t)
	a := NewApplier(s, &recorder{}, customlog.Discard())

	assert.False(t, a.Apply(pose("99", protocol.Field{Name: "translation", Value: "1 1 1"})))
	assert.False(t, a.Apply(pose("2", protocol.Field{Name: "translation", Value: "1 1 1"})))

	n, _ := s.Lookup("2")
	v, _ := n.Attr("translation")
	assert.Equal(t, "0 0 0", v)
	assert.Equal(t, Stats{Dropped: 2}, a.Stats())
}

func TestApplyRecordsFollowedDelta(t *testing.T) {
	s := newScene(t)
	r := &recorder{target: "n1"}
	a := NewApplier(s, r, customlog.Discard())

	a.Apply(pose("1", protocol.Field{Name: "translation", Value: "1.5 2 0"}))
	a.Apply(pose("3", protocol.Field{Name: "translation", Value: "5 5 5"}))
	a.Apply(pose("1", protocol.Field{Name: "rotation", Value: "0 0 1 0"}))

	require.Len(t, r.deltas, 1)
	assert.Equal(t, vecmath.Vec3{X: 0.5, Y: 2, Z: 0}, r.deltas[0])
}

func TestApplyFollowedWithoutPreviousTranslation(t *testing.T) {
	s := newScene(t)
	r := &recorder{target: "n3"}
	a := NewApplier(s, r, customlog.Discard())

	a.Apply(pose("3", protocol.Field{Name: "translation", Value: "1 2 3"}))
	require.Len(t, r.deltas, 1)
	assert.Equal(t, vecmath.Vec3{X: 1, Y: 2, Z: 3}, r.deltas[0])
}

func TestApplyAllReturnsTouchedIDs(t *testing.T) {
	s := newScene(t)
	a := NewApplier(s, &recorder{}, customlog.Discard())
	ids := a.ApplyAll([]protocol.Pose{pose("1"), pose("99")})
	assert.Equal(t, []string{"1", "99"}, ids)
	assert.Equal(t, Stats{Applied: 1, Dropped: 1}, a.Stats())
}

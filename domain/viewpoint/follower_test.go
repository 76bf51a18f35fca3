package viewpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-teleop/simview/pkg/scene"
	"github.com/open-teleop/simview/pkg/vecmath"
)

type memCamera struct{ pos vecmath.Vec3 }

func (c *memCamera) Position() (vecmath.Vec3, error) { return c.pos, nil }
func (c *memCamera) SetPosition(p vecmath.Vec3)      { c.pos = p }

func TestSetMass(t *testing.T) {
	f := NewFollower()
	assert.Equal(t, 1.0, f.Mass())
	assert.InDelta(t, 0.05, f.Friction(), 1e-12)

	f.SetMass(0.5)
	assert.Equal(t, 0.5, f.Mass())
	assert.InDelta(t, 0.1, f.Friction(), 1e-12)

	f.SetMass(3)
	assert.Equal(t, MaximumMass, f.Mass())
	assert.InDelta(t, 0.05, f.Friction(), 1e-12)

	f.SetMass(0.05)
	assert.Equal(t, 0.0, f.Mass())
	f.SetMass(-1)
	assert.Equal(t, 0.0, f.Mass())
}

func TestFirstUpdateOnlyRecordsTimestamp(t *testing.T) {
	f := NewFollower()
	cam := &memCamera{}
	f.Follow("n1")
	f.RecordDelta(vecmath.Vec3{X: 1})

	require.NoError(t, f.Update(100, cam, false, false))
	assert.Equal(t, vecmath.Zero, cam.pos)
	_, pending := f.PendingDelta()
	assert.True(t, pending)
}

func TestSnapWithZeroMass(t *testing.T) {
	f := NewFollower()
	f.SetMass(0)
	cam := &memCamera{pos: vecmath.Vec3{X: 1, Y: 1, Z: 1}}
	f.Follow("n1")
	require.NoError(t, f.Update(0, cam, false, false))

	f.RecordDelta(vecmath.Vec3{X: 2, Y: -1, Z: 0.5})
	require.NoError(t, f.Update(16, cam, false, false))

	assert.Equal(t, vecmath.Vec3{X: 3, Y: 0, Z: 1.5}, cam.pos)
	assert.Equal(t, vecmath.Zero, f.Velocity())
	assert.Equal(t, vecmath.Zero, f.Force())
}

func TestSnapOnLongGapUnlessAnimating(t *testing.T) {
	delta := vecmath.Vec3{X: 1}

	live := NewFollower()
	cam := &memCamera{}
	require.NoError(t, live.Update(0, cam, false, false))
	live.RecordDelta(delta)
	require.NoError(t, live.Update(500, cam, false, false))
	assert.Equal(t, delta, cam.pos)

	recorded := NewFollower()
	cam = &memCamera{}
	require.NoError(t, recorded.Update(0, cam, false, true))
	recorded.RecordDelta(delta)
	require.NoError(t, recorded.Update(500, cam, false, true))
	assert.NotEqual(t, delta, cam.pos)
	assert.False(t, recorded.Velocity().IsZero())
}

func TestForcePosition(t *testing.T) {
	f := NewFollower()
	cam := &memCamera{}
	require.NoError(t, f.Update(0, cam, false, false))
	f.RecordDelta(vecmath.Vec3{Y: 4})
	require.NoError(t, f.Update(16, cam, true, false))
	assert.Equal(t, vecmath.Vec3{Y: 4}, cam.pos)
}

func TestConvergence(t *testing.T) {
	delta := vecmath.Vec3{X: 1, Y: 2, Z: -1}
	for _, mass := range []float64{1, 0.5, 0.2, 0.1} {
		f := NewFollower()
		f.SetMass(mass)
		f.Follow("n1")
		cam := &memCamera{}

		now := 0.0
		require.NoError(t, f.Update(now, cam, false, false))
		f.RecordDelta(delta)
		for i := 0; i < 20000; i++ {
			now += 20
			require.NoError(t, f.Update(now, cam, false, false))
		}

		assert.InDelta(t, delta.X, cam.pos.X, 1e-6, "mass %v", mass)
		assert.InDelta(t, delta.Y, cam.pos.Y, 1e-6, "mass %v", mass)
		assert.InDelta(t, delta.Z, cam.pos.Z, 1e-6, "mass %v", mass)
		assert.InDelta(t, 0, f.Velocity().Length(), 1e-6, "mass %v", mass)
	}
}

func TestFollowResetsSpring(t *testing.T) {
	f := NewFollower()
	cam := &memCamera{}
	require.NoError(t, f.Update(0, cam, false, false))
	f.RecordDelta(vecmath.Vec3{X: 1})
	require.NoError(t, f.Update(20, cam, false, false))
	require.False(t, f.Force().IsZero())

	f.Follow("n2")
	assert.Equal(t, "n2", f.Target())
	assert.Equal(t, vecmath.Zero, f.Force())
	assert.Equal(t, vecmath.Zero, f.Velocity())

	f.Follow("")
	assert.False(t, f.Following())
}

func TestSceneCamera(t *testing.T) {
	store := scene.NewStore()
	assert.Nil(t, SceneCamera(store))

	require.NoError(t, store.ReplaceScene(`<Viewpoint id="n1" position="1 2 3"/>`))
	cam := SceneCamera(store)
	require.NotNil(t, cam)
	pos, err := cam.Position()
	require.NoError(t, err)
	assert.Equal(t, vecmath.Vec3{X: 1, Y: 2, Z: 3}, pos)

	cam.SetPosition(vecmath.Vec3{X: 0.5, Y: 0, Z: -2})
	node, _ := store.Viewpoint()
	v, _ := node.Attr("position")
	assert.Equal(t, "0.5 0 -2", v)
}

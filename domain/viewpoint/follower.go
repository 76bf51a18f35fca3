// Package viewpoint moves the camera toward a followed object with a damped
// spring: the object's displacement accumulates as a force that the camera
// works off over the following updates.
package viewpoint

import (
	"math"

	"github.com/open-teleop/simview/pkg/vecmath"
)

const (
	// SnapInterval is the update gap, in seconds, above which a live view
	// jumps straight to the equilibrium position.
	SnapInterval = 0.1
	// MinimumMass is the mass at or below which the camera snaps every update.
	MinimumMass = 0.05
	// MaximumMass is the largest accepted mass.
	MaximumMass = 1.0
	// FrictionCoefficient scales the friction derived from the mass.
	FrictionCoefficient = 0.05
	// DefaultMass is the mass of a new follower.
	DefaultMass = 1.0
)

// Camera is the viewpoint moved by the follower.
type Camera interface {
	Position() (vecmath.Vec3, error)
	SetPosition(vecmath.Vec3)
}

// Follower holds the spring state of one view.
type Follower struct {
	mass     float64
	friction float64
	velocity vecmath.Vec3
	force    vecmath.Vec3

	delta    vecmath.Vec3
	hasDelta bool

	lastUpdate    float64
	hasLastUpdate bool

	target string
}

// NewFollower returns a follower with the default mass and no target.
func NewFollower() *Follower {
	f := &Follower{}
	f.SetMass(DefaultMass)
	return f
}

// SetMass configures the spring. Masses at or below MinimumMass collapse to
// zero, which disables smoothing. Masses above MaximumMass are clamped.
func (f *Follower) SetMass(mass float64) {
	if math.IsNaN(mass) || mass <= MinimumMass {
		f.mass = 0
		return
	}
	if mass > MaximumMass {
		mass = MaximumMass
	}
	f.mass = mass
	f.friction = FrictionCoefficient / mass
}

// Mass returns the effective mass.
func (f *Follower) Mass() float64 { return f.mass }

// Friction returns the friction derived from the last non-zero mass.
func (f *Follower) Friction() float64 { return f.friction }

// Velocity returns the current camera velocity.
func (f *Follower) Velocity() vecmath.Vec3 { return f.velocity }

// Force returns the displacement the camera has yet to cover.
func (f *Follower) Force() vecmath.Vec3 { return f.force }

// Follow sets the canonical id of the followed node, "" for none, and
// resets the spring.
func (f *Follower) Follow(target string) {
	f.target = target
	f.force = vecmath.Zero
	f.velocity = vecmath.Zero
	f.hasDelta = false
}

// Target returns the followed node id, "" when nothing is followed.
func (f *Follower) Target() string { return f.target }

// Following reports whether a target is set.
func (f *Follower) Following() bool { return f.target != "" }

// RecordDelta stores the displacement of the followed object since the last update.
func (f *Follower) RecordDelta(d vecmath.Vec3) {
	f.delta = d
	f.hasDelta = true
}

// PendingDelta returns the displacement recorded since the last update.
func (f *Follower) PendingDelta() (vecmath.Vec3, bool) { return f.delta, f.hasDelta }

// ResetTimestamp makes the next Update only record its time.
func (f *Follower) ResetTimestamp() { f.hasLastUpdate = false }

// Update advances the spring to time now, in milliseconds. force moves the
// camera straight to the equilibrium position. animating disables the
// snap on long gaps, since recorded playback may legitimately jump.
// A nil camera leaves the state untouched apart from the timestamp.
func (f *Follower) Update(now float64, cam Camera, force, animating bool) error {
	if !f.hasLastUpdate {
		f.lastUpdate = now
		f.hasLastUpdate = true
	}
	interval := math.Abs(now-f.lastUpdate) / 1000
	if interval <= 0 || cam == nil {
		return nil
	}

	position, err := cam.Position()
	if err != nil {
		return err
	}
	f.lastUpdate = now
	if f.hasDelta {
		f.force = f.force.Add(f.delta)
	}

	var step vecmath.Vec3
	if force || f.mass == 0 || (interval > SnapInterval && !animating) {
		step = f.force
		f.velocity = vecmath.Zero
	} else {
		acceleration := f.force.Div(f.mass)
		f.velocity = f.velocity.Add(acceleration.Scale(interval))
		speed := f.velocity.Length()

		// object velocity projected on the camera velocity
		projection := 0.0
		if f.hasDelta && speed > 0 {
			projection = f.delta.Div(interval).Dot(f.velocity) / speed
		}
		if f.friction > 0 && speed > projection {
			factor := (speed - (speed-projection)*f.friction) / speed
			f.velocity = f.velocity.Scale(factor)
		}
		step = f.velocity.Scale(interval)
	}

	cam.SetPosition(position.Add(step))
	f.force = f.force.Sub(step)
	f.hasDelta = false
	return nil
}

// Package animation plays recorded simulations back by applying their frames
// to the scene at the pace of the wall clock.
package animation

import (
	"math"
	"time"

	"github.com/open-teleop/simview/pkg/protocol"
)

// GUI modes of a player.
const (
	GUIPlay  = "play"
	GUIPause = "pause"
)

// PoseApplier applies a recorded pose to the scene.
type PoseApplier interface {
	Apply(p protocol.Pose) bool
}

// FrameHook runs after a frame was applied with the frame time in
// milliseconds. snap asks the viewpoint to jump instead of easing.
type FrameHook func(time float64, snap bool)

// Option configures a Player.
type Option func(*Player)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Player) { p.now = now }
}

// Status is a snapshot of the playback state.
type Status struct {
	Step    int     `json:"step"`
	Frames  int     `json:"frames"`
	Playing bool    `json:"playing"`
	Loop    bool    `json:"loop"`
	Percent float64 `json:"percent"`
}

// Player computes the current frame from elapsed time and applies it.
type Player struct {
	data    *Data
	ids     []string
	applier PoseApplier
	onFrame FrameHook
	now     func() time.Time

	step         int
	previousStep int
	start        time.Time
	playing      bool
	loop         bool
}

// NewPlayer creates a player. gui is GUIPlay or GUIPause.
func NewPlayer(data *Data, applier PoseApplier, onFrame FrameHook, gui string, loop bool, opts ...Option) *Player {
	p := &Player{
		data:    data,
		ids:     data.IDList(),
		applier: applier,
		onFrame: onFrame,
		now:     time.Now,
		playing: gui != GUIPause,
		loop:    loop,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start rewinds to the first frame and, when playing, applies it.
func (p *Player) Start() {
	p.start = p.now()
	p.step = 0
	p.previousStep = 0
	p.Tick()
}

// Tick advances playback to the current wall-clock time.
func (p *Player) Tick() {
	if p.playing {
		p.update(true)
	}
}

// Playing reports whether playback is running.
func (p *Player) Playing() bool { return p.playing }

// SetLoop changes the loop flag.
func (p *Player) SetLoop(loop bool) { p.loop = loop }

// TogglePlay switches between play and pause.
func (p *Player) TogglePlay() {
	if p.playing {
		p.playing = false
		if p.outOfRange(p.step) {
			p.start = p.now()
			p.update(true)
		} else {
			p.start = p.now().Add(-p.stepDuration(p.step))
		}
		return
	}
	p.playing = true
	p.start = p.now().Add(-p.stepDuration(p.step))
}

// Seek jumps to a position given in percent of the recording. The scene is
// rebuilt from the first frame since a seek cannot assume continuity.
func (p *Player) Seek(percent float64) {
	n := len(p.data.Frames)
	step := int(math.Floor(float64(n) * percent / 100))
	if step < 0 {
		step = 0
	}
	if step >= n {
		step = n - 1
	}
	p.step = step
	p.start = p.now().Add(-time.Duration(math.Floor(p.data.BasicTimeStep*float64(step))) * time.Millisecond)
	p.apply(0, true, false)
}

// Status returns a snapshot of the playback state.
func (p *Player) Status() Status {
	n := len(p.data.Frames)
	return Status{
		Step:    p.step,
		Frames:  n,
		Playing: p.playing,
		Loop:    p.loop,
		Percent: 100 * float64(p.step) / float64(n),
	}
}

func (p *Player) update(moveSlider bool) {
	n := len(p.data.Frames)
	elapsed := p.elapsed()
	p.step = int(math.Floor(elapsed / p.data.BasicTimeStep))
	if p.outOfRange(p.step) {
		switch {
		case p.loop && p.step >= n:
			// wrap onto the equivalent time of the next lap
			elapsed = math.Mod(elapsed, p.data.BasicTimeStep*float64(n))
			p.start = p.now().Add(-time.Duration(elapsed * float64(time.Millisecond)))
			p.step = int(math.Floor(elapsed / p.data.BasicTimeStep))
			p.previousStep = 0
		case p.loop:
			return
		default:
			// stop on the boundary frame
			p.playing = false
			if p.step < 0 {
				p.step = 0
			} else {
				p.step = n - 1
			}
			p.start = p.now().Add(-p.stepDuration(p.step))
		}
	}

	lower := 0
	if p.step > p.previousStep {
		// forward playback only needs the changes since the last frame
		lower = p.previousStep
	}
	p.apply(lower, p.step != p.previousStep+1, moveSlider)
}

// apply applies the current frame, then replays the latest earlier pose of
// every object the frame omits, scanning back no further than lower.
func (p *Player) apply(lower int, lookback, moveSlider bool) {
	frame := p.data.Frames[p.step]
	applied := make(map[string]bool, len(frame.Poses))
	for _, pose := range frame.Poses {
		p.applier.Apply(pose)
		applied[pose.ID] = true
	}

	if lookback {
		for _, id := range p.ids {
			if applied[id] {
				continue
			}
			if pose, ok := p.lastPose(id, p.step-1, lower); ok {
				p.applier.Apply(pose)
			}
		}
	}

	p.previousStep = p.step
	if p.onFrame != nil {
		p.onFrame(frame.Time, !moveSlider || p.step == 0)
	}
}

func (p *Player) lastPose(id string, from, lower int) (protocol.Pose, bool) {
	for f := from; f >= lower && f >= 0; f-- {
		for _, pose := range p.data.Frames[f].Poses {
			if pose.ID == id {
				return pose, true
			}
		}
	}
	return protocol.Pose{}, false
}

func (p *Player) outOfRange(step int) bool {
	return step < 0 || step >= len(p.data.Frames)
}

func (p *Player) elapsed() float64 {
	return float64(p.now().Sub(p.start)) / float64(time.Millisecond)
}

func (p *Player) stepDuration(step int) time.Duration {
	return time.Duration(p.data.BasicTimeStep * float64(step) * float64(time.Millisecond))
}

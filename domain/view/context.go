// Package view holds the per-view simulation context shared by the streaming
// client and the animation player, and the collaborators they report to.
package view

import (
	"fmt"
	"math"
)

// DefaultTimeoutMs is the simulation timeout of a new context.
const DefaultTimeoutMs = 60 * 1000

// Context is the simulation clock and run state of one view. It is owned by
// the view's event loop.
type Context struct {
	clock        float64
	clockDefined bool

	timeout  float64
	deadline float64

	// Running mirrors the run/pause state reported by the server.
	Running bool
	// RunOnLoad resumes real-time once the next scene load completes.
	RunOnLoad bool
	// AutomaticallyPaused marks a pause requested by Hold rather than by the user.
	AutomaticallyPaused bool
	held                bool
	// Quitting is set once the user asked to leave, so that a going-away
	// close is not reported as an error.
	Quitting bool
}

// NewContext returns a context with an undefined clock and the default timeout.
func NewContext() *Context {
	return &Context{timeout: DefaultTimeoutMs, deadline: DefaultTimeoutMs}
}

// Clock returns the simulation time in milliseconds and whether it is defined.
func (c *Context) Clock() (float64, bool) { return c.clock, c.clockDefined }

// ClockDefined reports whether the scene finished loading.
func (c *Context) ClockDefined() bool { return c.clockDefined }

// SetClock defines the simulation time.
func (c *Context) SetClock(ms float64) {
	c.clock = ms
	c.clockDefined = true
}

// ResetClock makes the clock undefined until the next scene load completes.
func (c *Context) ResetClock() {
	c.clock = 0
	c.clockDefined = false
}

// Timeout returns the simulation timeout in milliseconds. Negative values
// mean no timeout.
func (c *Context) Timeout() float64 { return c.timeout }

// Deadline returns the simulation time at which the simulation stops.
func (c *Context) Deadline() float64 { return c.deadline }

// SetTimeout sets the timeout in seconds. A negative timeout disables it.
func (c *Context) SetTimeout(seconds float64) {
	if seconds < 0 {
		c.timeout = seconds
		c.deadline = 0
		return
	}
	c.timeout = seconds * 1000
	c.deadline = c.timeout
	if c.clockDefined {
		c.deadline += c.clock
	}
}

// ResetDeadline restarts the countdown from the full timeout.
func (c *Context) ResetDeadline() {
	if c.timeout >= 0 {
		c.deadline = c.timeout
	}
}

// Paused records a pause reported by the server. It reports whether the
// deadline was recomputed.
func (c *Context) Paused() bool {
	c.Running = false
	if c.timeout <= 0 || c.AutomaticallyPaused {
		return false
	}
	c.deadline = c.timeout
	if c.clockDefined {
		c.deadline += c.clock
	}
	return true
}

// Hold marks the view as waiting on the user. It reports whether a running
// simulation must be paused; that pause does not restart the countdown.
func (c *Context) Hold() bool {
	if c.held {
		return false
	}
	c.held = true
	c.AutomaticallyPaused = c.Running
	return c.AutomaticallyPaused
}

// Release ends a hold. It reports whether the simulation must resume.
func (c *Context) Release() bool {
	if !c.held {
		return false
	}
	c.held = false
	resume := c.AutomaticallyPaused
	c.AutomaticallyPaused = false
	return resume
}

// Held reports whether a hold is in progress.
func (c *Context) Held() bool { return c.held }

// ReadableTime renders milliseconds as hh:mm:ss:mmm.
func ReadableTime(ms float64) string {
	hours := (ms + 0.9) / (1000 * 60 * 60)
	h := math.Floor(hours)
	minutes := (hours - h) * 60
	m := math.Floor(minutes)
	seconds := (minutes - m) * 60
	s := math.Floor(seconds)
	millis := math.Floor((seconds - s) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d:%03d", int64(h), int64(m), int64(s), int64(millis))
}

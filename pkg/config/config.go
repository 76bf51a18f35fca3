package config

import (
	"fmt"
	"time"
)

// Streaming modes accepted by the simulation server.
const (
	ModeX3D   = "x3d"
	ModeVideo = "video"
)

// Animation GUI start states.
const (
	GUIPlay  = "play"
	GUIPause = "pause"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultLogLevel           = "info"
	DefaultVideoWidth         = 800
	DefaultVideoHeight        = 600
	DefaultTimeoutSeconds     = 60
	DefaultHandshakeTimeoutMs = 5000
	DefaultFrameIntervalMs    = 16
	DefaultViewpointMass      = 1.0
)

// DefaultConfig returns a configuration holding only defaults. Stream.URL is left empty.
func DefaultConfig() *BootstrapConfig {
	cfg := &BootstrapConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills omitted fields.
func (c *BootstrapConfig) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Stream.Mode == "" {
		c.Stream.Mode = ModeX3D
	}
	if c.Stream.VideoWidth == 0 {
		c.Stream.VideoWidth = DefaultVideoWidth
	}
	if c.Stream.VideoHeight == 0 {
		c.Stream.VideoHeight = DefaultVideoHeight
	}
	if c.Stream.TimeoutSeconds == 0 {
		c.Stream.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Stream.HandshakeTimeoutMs == 0 {
		c.Stream.HandshakeTimeoutMs = DefaultHandshakeTimeoutMs
	}
	if c.Viewpoint.Mass == nil {
		m := DefaultViewpointMass
		c.Viewpoint.Mass = &m
	}
	if c.Animation.GUI == "" {
		c.Animation.GUI = GUIPlay
	}
	if c.Animation.Loop == nil {
		loop := true
		c.Animation.Loop = &loop
	}
	if c.Animation.FrameIntervalMs == 0 {
		c.Animation.FrameIntervalMs = DefaultFrameIntervalMs
	}
}

// Validate checks required fields and enumerations.
func (c *BootstrapConfig) Validate() error {
	if c.Stream.URL == "" {
		return fmt.Errorf("missing required field in bootstrap config: stream.url")
	}
	if c.Stream.Mode != ModeX3D && c.Stream.Mode != ModeVideo {
		return fmt.Errorf("invalid stream.mode %q: must be %q or %q", c.Stream.Mode, ModeX3D, ModeVideo)
	}
	if c.Animation.GUI != GUIPlay && c.Animation.GUI != GUIPause {
		return fmt.Errorf("invalid animation.gui %q: must be %q or %q", c.Animation.GUI, GUIPlay, GUIPause)
	}
	if c.Stream.VideoWidth < 0 || c.Stream.VideoHeight < 0 {
		return fmt.Errorf("invalid video size %dx%d", c.Stream.VideoWidth, c.Stream.VideoHeight)
	}
	if c.Animation.FrameIntervalMs < 0 {
		return fmt.Errorf("invalid animation.frame_interval_ms %d", c.Animation.FrameIntervalMs)
	}
	return nil
}

// HandshakeTimeout returns the session handshake timeout.
func (c *BootstrapConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.Stream.HandshakeTimeoutMs) * time.Millisecond
}

// FrameInterval returns the animation tick period.
func (c *BootstrapConfig) FrameInterval() time.Duration {
	return time.Duration(c.Animation.FrameIntervalMs) * time.Millisecond
}

// ViewpointMass returns the configured follow mass.
func (c *BootstrapConfig) ViewpointMass() float64 {
	if c.Viewpoint.Mass == nil {
		return DefaultViewpointMass
	}
	return *c.Viewpoint.Mass
}

// AnimationLoop reports whether the animation loops.
func (c *BootstrapConfig) AnimationLoop() bool {
	return c.Animation.Loop == nil || *c.Animation.Loop
}

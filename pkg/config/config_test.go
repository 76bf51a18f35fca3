package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBootstrap(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, BootstrapFileName), []byte(content), 0644))
	return dir
}

func TestLoadBootstrapConfig(t *testing.T) {
	dir := writeBootstrap(t, `
logging:
  level: "debug"
  log_path: "/var/log/simview"
server:
  http_port: 9090
stream:
  url: "wss://sim.example.com:443/simple/worlds/simple.wbt"
  mode: "video"
  broadcast: true
  video_width: 1024
  video_height: 768
  timeout_seconds: -1
  owner: "alice"
  origin: "https://www.example.com"
credentials:
  email: "a@example.com"
  password: "secret"
viewpoint:
  mass: 0.4
animation:
  url: "anim.json"
  gui: "pause"
  loop: false
  frame_interval_ms: 20
zeromq:
  publish_bind_address: "tcp://*:7777"
`)

	cfg, err := LoadBootstrapConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/var/log/simview", cfg.Logging.LogPath)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, ModeVideo, cfg.Stream.Mode)
	assert.True(t, cfg.Stream.Broadcast)
	assert.Equal(t, 1024, cfg.Stream.VideoWidth)
	assert.Equal(t, 768, cfg.Stream.VideoHeight)
	assert.Equal(t, -1.0, cfg.Stream.TimeoutSeconds)
	assert.Equal(t, "alice", cfg.Stream.Owner)
	assert.Equal(t, "a@example.com", cfg.Credentials.Email)
	assert.InDelta(t, 0.4, cfg.ViewpointMass(), 1e-9)
	assert.Equal(t, GUIPause, cfg.Animation.GUI)
	assert.False(t, cfg.AnimationLoop())
	assert.Equal(t, 20, cfg.Animation.FrameIntervalMs)
	assert.Equal(t, "tcp://*:7777", cfg.ZeroMQ.PublishBindAddress)
	// omitted field keeps its default
	assert.Equal(t, DefaultHandshakeTimeoutMs, cfg.Stream.HandshakeTimeoutMs)
}

func TestLoadBootstrapConfigDefaults(t *testing.T) {
	dir := writeBootstrap(t, `
stream:
  url: "ws://localhost:1234"
`)

	cfg, err := LoadBootstrapConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, ModeX3D, cfg.Stream.Mode)
	assert.Equal(t, DefaultVideoWidth, cfg.Stream.VideoWidth)
	assert.Equal(t, float64(DefaultTimeoutSeconds), cfg.Stream.TimeoutSeconds)
	assert.Equal(t, DefaultViewpointMass, cfg.ViewpointMass())
	assert.Equal(t, GUIPlay, cfg.Animation.GUI)
	assert.True(t, cfg.AnimationLoop())
	assert.Equal(t, int64(16), cfg.FrameInterval().Milliseconds())
	assert.Equal(t, int64(5000), cfg.HandshakeTimeout().Milliseconds())
}

func TestLoadBootstrapConfigMissingRequired(t *testing.T) {
	dir := writeBootstrap(t, `
logging:
  level: "info"
stream:
  mode: "x3d"
`)

	_, err := LoadBootstrapConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field in bootstrap config: stream.url")
}

func TestLoadBootstrapConfigInvalidMode(t *testing.T) {
	dir := writeBootstrap(t, `
stream:
  url: "ws://localhost:1234"
  mode: "x3dom"
`)

	_, err := LoadBootstrapConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid stream.mode")
}

func TestLoadBootstrapConfigMissingFile(t *testing.T) {
	_, err := LoadBootstrapConfig(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading bootstrap config file")
}

func TestLoadBootstrapConfigUnvalidated(t *testing.T) {
	cfg, err := LoadBootstrapConfigUnvalidated(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Error(t, cfg.Validate())

	dir := writeBootstrap(t, "stream:\n  mode: video\n")
	cfg, err = LoadBootstrapConfigUnvalidated(dir)
	require.NoError(t, err)
	assert.Equal(t, ModeVideo, cfg.Stream.Mode)
	cfg.Stream.URL = "ws://localhost:80/p/worlds/w.wbt"
	assert.NoError(t, cfg.Validate())
}

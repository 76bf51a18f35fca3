package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BootstrapFileName is the configuration file looked up in the config directory.
const BootstrapFileName = "simview.yaml"

// BootstrapConfig holds the configuration loaded from simview.yaml
type BootstrapConfig struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Server      ServerConfig      `yaml:"server"`
	Stream      StreamConfig      `yaml:"stream"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Viewpoint   ViewpointConfig   `yaml:"viewpoint"`
	Animation   AnimationConfig   `yaml:"animation"`
	ZeroMQ      ZeroMQConfig      `yaml:"zeromq"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// ServerConfig holds the local control API settings. A zero port disables it.
type ServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// StreamConfig describes the simulation to connect to.
type StreamConfig struct {
	URL                string  `yaml:"url"`
	Mode               string  `yaml:"mode"`
	Broadcast          bool    `yaml:"broadcast"`
	VideoWidth         int     `yaml:"video_width"`
	VideoHeight        int     `yaml:"video_height"`
	TimeoutSeconds     float64 `yaml:"timeout_seconds"`
	Owner              string  `yaml:"owner,omitempty"`
	Origin             string  `yaml:"origin"`
	HandshakeTimeoutMs int     `yaml:"handshake_timeout_ms"`
}

// CredentialsConfig holds the opaque user credentials forwarded to the session broker.
type CredentialsConfig struct {
	Email    string `yaml:"email,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// ViewpointConfig holds the follow controller settings.
type ViewpointConfig struct {
	Mass *float64 `yaml:"mass,omitempty"`
}

// AnimationConfig describes an optional prerecorded animation.
type AnimationConfig struct {
	URL             string `yaml:"url,omitempty"`
	GUI             string `yaml:"gui"`
	Loop            *bool  `yaml:"loop,omitempty"`
	FrameIntervalMs int    `yaml:"frame_interval_ms"`
}

// ZeroMQConfig holds the optional event fan-out settings. An empty publish
// address disables it; an empty command address disables the request socket.
type ZeroMQConfig struct {
	PublishBindAddress string `yaml:"publish_bind_address,omitempty"`
	CommandBindAddress string `yaml:"command_bind_address,omitempty"`
}

// LoadBootstrapConfig loads dir/simview.yaml, applies defaults and validates it.
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	cfg, err := ParseBootstrapConfig(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}
	return cfg, nil
}

// ParseBootstrapConfig decodes YAML content, applies defaults and validates it.
func ParseBootstrapConfig(data []byte) (*BootstrapConfig, error) {
	var cfg BootstrapConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadBootstrapConfigUnvalidated loads dir/simview.yaml and applies defaults
// without validating, so that command line flags can complete it first. A
// missing file yields the defaults.
func LoadBootstrapConfigUnvalidated(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(bootstrapConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	var cfg BootstrapConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

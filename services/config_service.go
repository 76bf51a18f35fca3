package services

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/open-teleop/simview/pkg/config"
	customlog "github.com/open-teleop/simview/pkg/log"
)

// redacted replaces the password in served configurations.
const redacted = "********"

// SettingsApplier applies the settings that can change while streaming.
type SettingsApplier interface {
	SetViewpointMass(mass float64) error
	SetTimeout(seconds float64) error
}

// RuntimeSettings is the YAML document accepted by UpdateSettings.
type RuntimeSettings struct {
	Viewpoint struct {
		Mass *float64 `yaml:"mass,omitempty"`
	} `yaml:"viewpoint"`
	Stream struct {
		TimeoutSeconds *float64 `yaml:"timeout_seconds,omitempty"`
	} `yaml:"stream"`
}

// ValidationError reports a rejected settings document.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid settings: " + e.Reason }

// IsValidationError marks errors answered with 400.
func (e *ValidationError) IsValidationError() bool { return true }

// ViewerConfigService exposes the bootstrap configuration and applies
// runtime settings to the viewer.
type ViewerConfigService interface {
	GetCurrentConfig() config.BootstrapConfig
	GetCurrentConfigYAML() ([]byte, error)
	UpdateSettings(settingsYAML []byte) error
	PersistConfig(path string) error
}

type viewerConfigService struct {
	logger  customlog.Logger
	applier SettingsApplier
	current config.BootstrapConfig
	mu      sync.RWMutex
}

// NewViewerConfigService creates the service over a loaded configuration.
func NewViewerConfigService(cfg *config.BootstrapConfig, applier SettingsApplier, logger customlog.Logger) (ViewerConfigService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if applier == nil {
		return nil, fmt.Errorf("settings applier cannot be nil")
	}
	return &viewerConfigService{
		logger:  logger,
		applier: applier,
		current: *cfg,
	}, nil
}

// GetCurrentConfig returns a copy of the configuration.
func (s *viewerConfigService) GetCurrentConfig() config.BootstrapConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// GetCurrentConfigYAML renders the configuration with the password hidden.
func (s *viewerConfigService) GetCurrentConfigYAML() ([]byte, error) {
	cfg := s.GetCurrentConfig()
	if cfg.Credentials.Password != "" {
		cfg.Credentials.Password = redacted
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}
	return data, nil
}

// UpdateSettings applies viewpoint.mass and stream.timeout_seconds.
func (s *viewerConfigService) UpdateSettings(settingsYAML []byte) error {
	var settings RuntimeSettings
	if err := yaml.Unmarshal(settingsYAML, &settings); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("invalid YAML format: %v", err)}
	}
	if settings.Viewpoint.Mass == nil && settings.Stream.TimeoutSeconds == nil {
		return &ValidationError{Reason: "no runtime setting given"}
	}
	if m := settings.Viewpoint.Mass; m != nil && *m < 0 {
		return &ValidationError{Reason: fmt.Sprintf("viewpoint.mass must not be negative, got %v", *m)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m := settings.Viewpoint.Mass; m != nil {
		if err := s.applier.SetViewpointMass(*m); err != nil {
			return err
		}
		mass := *m
		s.current.Viewpoint.Mass = &mass
	}
	if t := settings.Stream.TimeoutSeconds; t != nil {
		if err := s.applier.SetTimeout(*t); err != nil {
			return err
		}
		s.current.Stream.TimeoutSeconds = *t
	}
	s.logger.Infof("Runtime settings updated")
	return nil
}

// PersistConfig writes the current configuration, password included, to path.
func (s *viewerConfigService) PersistConfig(path string) error {
	cfg := s.GetCurrentConfig()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file '%s': %w", path, err)
	}
	s.logger.Infof("Configuration persisted to %s", path)
	return nil
}

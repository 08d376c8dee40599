package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/fwgen/pkg/telemetry"
)

// DefaultDatabasePath is where build history is kept unless overridden.
const DefaultDatabasePath = ".fwgen/history.db"

// Settings is the tool configuration read from --config. It controls how
// fwgen itself runs, not what firmware it generates.
type Settings struct {
	// Profile selects the telemetry defaults: default, ci or development.
	Profile string `yaml:"profile" validate:"omitempty,oneof=default ci development"`

	Logging struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"`
		Format string `yaml:"format" validate:"omitempty,oneof=console json"`
		Output string `yaml:"output"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled  *bool  `yaml:"enabled"`
		Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
		Endpoint string `yaml:"endpoint" validate:"omitempty,hostname_port"`
	} `yaml:"tracing"`

	Metrics struct {
		Listen   string `yaml:"listen" validate:"omitempty,hostname_port"`
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`

	// Database is the build history database.
	Database string `yaml:"database"`

	// Policies are extra policy files, directories or globs.
	Policies []string `yaml:"policies" validate:"dive,required"`
}

// LoadSettings reads a settings file. An empty path yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse settings %s: %w", path, err)
		}
		if err := validator.New().Struct(s); err != nil {
			return nil, fmt.Errorf("invalid settings %s: %w", path, err)
		}
		// Relative paths in the file are relative to the file.
		base := filepath.Dir(path)
		s.Database = relativeTo(base, s.Database)
		s.Metrics.Textfile = relativeTo(base, s.Metrics.Textfile)
		for i, p := range s.Policies {
			s.Policies[i] = relativeTo(base, p)
		}
	}
	if s.Database == "" {
		s.Database = DefaultDatabasePath
	}
	return s, nil
}

func relativeTo(base, p string) string {
	if p == "" || filepath.IsAbs(p) || p == ":memory:" {
		return p
	}
	return filepath.Join(base, p)
}

// Telemetry converts the settings into a telemetry configuration.
func (s *Settings) Telemetry(version string) *telemetry.Config {
	var cfg *telemetry.Config
	switch s.Profile {
	case "ci":
		cfg = telemetry.CIConfig()
	case "development":
		cfg = telemetry.DevelopmentConfig()
	default:
		cfg = telemetry.DefaultConfig()
	}
	cfg.ServiceVersion = version

	if s.Logging.Level != "" {
		cfg.Logging.Level = s.Logging.Level
	}
	if s.Logging.Format != "" {
		cfg.Logging.Format = s.Logging.Format
	}
	if s.Logging.Output != "" {
		cfg.Logging.Output = s.Logging.Output
	}

	if s.Tracing.Enabled != nil {
		cfg.Tracing.Enabled = *s.Tracing.Enabled
	}
	if s.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = s.Tracing.Exporter
	}
	if s.Tracing.Endpoint != "" {
		cfg.Tracing.Endpoint = s.Tracing.Endpoint
	}

	cfg.Metrics.ListenAddress = s.Metrics.Listen
	cfg.Metrics.TextfilePath = s.Metrics.Textfile

	return cfg
}

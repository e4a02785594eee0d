// Package config loads the bridge's fixed settings from YAML. Values not
// present in the file keep their built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/w1xm/rotator_bridge/actuator"
	"github.com/w1xm/rotator_bridge/gimbal"
	"github.com/w1xm/rotator_bridge/telemetry"
)

type Config struct {
	Gimbal    gimbal.Config   `yaml:"gimbal"`
	Pins      actuator.Pins   `yaml:"pins"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type TelemetryConfig struct {
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
}

func Default() Config {
	return Config{
		Gimbal: gimbal.DefaultConfig(),
		Pins:   actuator.DefaultPins(),
		Telemetry: TelemetryConfig{
			Path:     telemetry.DefaultPath,
			Interval: telemetry.DefaultInterval,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes data over the defaults and validates the result. Unknown
// keys are an error.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if err := c.Gimbal.Validate(); err != nil {
		return fmt.Errorf("gimbal: %w", err)
	}
	if c.Telemetry.Interval <= 0 {
		return fmt.Errorf("telemetry interval must be positive, got %v", c.Telemetry.Interval)
	}
	return nil
}

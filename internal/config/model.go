package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// RunConfig holds experiment settings read from a YAML file. Zero values
// mean "use the default": the model's declaration or the CLI flag.
type RunConfig struct {
	Experiment      string           `yaml:"experiment"`
	Ticks           int              `yaml:"ticks"`
	Parallelism     int              `yaml:"parallelism"`
	Seed            *uint64          `yaml:"seed"`
	KeepSimulations *bool            `yaml:"keep_simulations"`
	Replications    int              `yaml:"replications"`
	Parameters      map[string]any   `yaml:"parameters"`
	ParameterSets   []map[string]any `yaml:"parameter_sets"`
	Outputs         []string         `yaml:"outputs"`
	StatusURL       string           `yaml:"status_url"`
	StatusRate      float64          `yaml:"status_rate"`
}

// LoadRunConfig reads and validates a run configuration file.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run config: %w", err)
	}
	cfg, err := DecodeRunConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("run config %s: %w", path, err)
	}
	return cfg, nil
}

// DecodeRunConfig decodes a run configuration, rejecting unknown keys.
// An empty document yields an empty configuration.
func DecodeRunConfig(r io.Reader) (*RunConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	cfg := &RunConfig{}
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the ranges of numeric settings.
func (c *RunConfig) Validate() error {
	var errs []error
	if c.Ticks < 0 {
		errs = append(errs, fmt.Errorf("ticks must not be negative, got %d", c.Ticks))
	}
	if c.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("parallelism must not be negative, got %d", c.Parallelism))
	}
	if c.Replications < 0 {
		errs = append(errs, fmt.Errorf("replications must not be negative, got %d", c.Replications))
	}
	if c.StatusRate < 0 {
		errs = append(errs, fmt.Errorf("status_rate must not be negative, got %g", c.StatusRate))
	}
	return errors.Join(errs...)
}

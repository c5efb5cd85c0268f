package app

import (
	"errors"
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ModelPaths []string // .hcl files or directories

	// Experiment names the experiment to run. Empty picks the first one
	// the model declares.
	Experiment      string
	Ticks           int
	Parallelism     int
	Seed            uint64
	KeepSimulations *bool
	Replications    int
	Params          map[string]cty.Value
	// ParameterSets drive batch runs; each set is layered over Params.
	ParameterSets []map[string]cty.Value
	Outputs       []string

	StatusURL  string
	StatusRate float64

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ModelPaths) == 0 {
		return nil, errors.New("at least one model path is required")
	}
	switch {
	case cfg.Ticks < 0:
		return nil, fmt.Errorf("ticks must not be negative, got %d", cfg.Ticks)
	case cfg.Parallelism < 0:
		return nil, fmt.Errorf("parallelism must not be negative, got %d", cfg.Parallelism)
	case cfg.Replications < 0:
		return nil, fmt.Errorf("replications must not be negative, got %d", cfg.Replications)
	case cfg.HealthcheckPort < 0:
		return nil, fmt.Errorf("healthcheck port must not be negative, got %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}

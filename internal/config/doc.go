// Package config defines the format-agnostic Loader interface through
// which models reach the compiler, and the YAML run configuration that
// selects and parameterises an experiment.
//
// Concrete loaders, such as the HCL one, live in separate packages.
package config

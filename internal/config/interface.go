package config

import (
	"context"

	"github.com/vk/agentgrid/internal/ast"
)

// Loader is the interface for a format-specific model loader.
type Loader interface {
	// Load reads the model found under paths and returns its root
	// description, ready for the compiler.
	Load(ctx context.Context, paths ...string) (*ast.Description, error)
}

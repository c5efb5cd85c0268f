// Package integration_tests runs whole models through the application, from
// HCL files on disk to the logged results. The scenario packages below it
// share this harness.
package integration_tests

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/app"
	"github.com/vk/agentgrid/internal/experiment"
	"github.com/vk/agentgrid/internal/hcl"
	"github.com/vk/agentgrid/internal/registry"
)

// Result holds the outcome of one application run.
type Result struct {
	Err       error
	LogOutput string
	Batch     []experiment.BatchResult
}

// writeFiles lays files out in a fresh directory and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func setup(t *testing.T, files map[string]string, cfg app.Config, modules []registry.Module) (*app.App, func() string) {
	t.Helper()
	cfg.ModelPaths = []string{writeFiles(t, files)}
	cfg.LogFormat = "text"
	c, err := app.NewConfig(cfg)
	require.NoError(t, err)
	a, logs := app.SetupAppTest(t, c, hcl.NewLoader(), modules...)
	return a, logs.String
}

// RunIntegrationTest runs the experiment of the model in files. Modules
// replace the core modules when given.
func RunIntegrationTest(t *testing.T, files map[string]string, cfg app.Config, modules ...registry.Module) *Result {
	t.Helper()
	a, logs := setup(t, files, cfg, modules)
	err := a.Run(context.Background())
	return &Result{Err: err, LogOutput: logs()}
}

// RunBatchTest runs every parameter set of the configuration.
func RunBatchTest(t *testing.T, files map[string]string, cfg app.Config, modules ...registry.Module) *Result {
	t.Helper()
	a, logs := setup(t, files, cfg, modules)
	results, err := a.RunBatch(context.Background())
	return &Result{Err: err, LogOutput: logs(), Batch: results}
}

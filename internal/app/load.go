package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/agentgrid/internal/compiler"
	"github.com/vk/agentgrid/internal/model"
)

// DiagnosticsError reports a model that failed to load or compile. Text
// holds the diagnostics rendered with source snippets when available.
type DiagnosticsError struct {
	Diags hcl.Diagnostics
	Text  string
}

func (e *DiagnosticsError) Error() string { return e.Text }

func (e *DiagnosticsError) Unwrap() error { return e.Diags }

// fileSource is implemented by loaders that keep the parsed files, so
// diagnostics can quote them.
type fileSource interface {
	Files() map[string]*hcl.File
}

// Load loads and compiles the model. Compiler warnings are logged.
func (a *App) Load(ctx context.Context) (*model.Model, error) {
	ctx = a.context(ctx)
	a.logger.Debug("Loading model...", "paths", a.config.ModelPaths)

	root, err := a.loader.Load(ctx, a.config.ModelPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", a.diagnostics(err))
	}

	m, diags, err := compiler.New(a.ensureRegistry()).Compile(ctx, root)
	for _, d := range diags {
		if d.Severity == hcl.DiagWarning {
			a.logger.Warn("Model warning.", "summary", d.Summary, "detail", d.Detail, "range", rangeOf(d))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compile model %s: %w", root.Name, a.diagnostics(err))
	}
	a.model = m
	return m, nil
}

// diagnostics renders diagnostics carried by err, quoting source files when
// the loader kept them. Other errors are returned unchanged.
func (a *App) diagnostics(err error) error {
	var diags hcl.Diagnostics
	var compileErr *compiler.Error
	switch {
	case errors.As(err, &compileErr):
		diags = compileErr.Diags
	case errors.As(err, &diags):
	default:
		return err
	}

	var files map[string]*hcl.File
	if src, ok := a.loader.(fileSource); ok {
		files = src.Files()
	}
	var buf bytes.Buffer
	w := hcl.NewDiagnosticTextWriter(&buf, files, 100, false)
	if werr := w.WriteDiagnostics(diags); werr != nil {
		return err
	}
	return &DiagnosticsError{Diags: diags, Text: buf.String()}
}

func rangeOf(d *hcl.Diagnostic) string {
	if d.Subject == nil {
		return ""
	}
	return d.Subject.String()
}

// experimentName resolves the configured experiment, defaulting to the
// first declared one.
func (a *App) experimentName(m *model.Model) (string, error) {
	if a.config.Experiment != "" {
		if _, ok := m.Experiment(a.config.Experiment); !ok {
			return "", fmt.Errorf("model %s has no experiment %q", m.Name, a.config.Experiment)
		}
		return a.config.Experiment, nil
	}
	if len(m.Experiments) == 0 {
		return "", fmt.Errorf("model %s declares no experiment", m.Name)
	}
	return m.Experiments[0].Name, nil
}

package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vk/agentgrid/internal/config"
	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/vk/agentgrid/internal/model"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/status"
	"github.com/vk/agentgrid/internal/telemetry"
	"github.com/zishang520/socket.io-client-go/socket"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	loader  config.Loader
	modules []registry.Module

	registry *registry.Registry
	model    *model.Model

	metricsRegistry *prometheus.Registry
	metrics         *telemetry.Metrics
	provider        *telemetry.Provider
	httpServer      *http.Server

	socket  *socket.Socket
	emitter status.Emitter
}

// NewApp is the constructor for the main application. It returns an App
// with its own isolated logger and metrics registry. Modules replace the
// core modules when given. Nothing is loaded until Load or Run.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &App{
		outW:            outW,
		logger:          logger,
		config:          appConfig,
		loader:          loader,
		modules:         modules,
		metricsRegistry: reg,
		metrics:         telemetry.NewMetrics(reg),
	}
}

// Registry returns the application's registry, or nil before Load. This is
// primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Metrics returns the prometheus registry served on /metrics.
func (a *App) Metrics() *prometheus.Registry {
	return a.metricsRegistry
}

func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// ensureRegistry builds the registry once, after the status connection is
// known so that emit can use it.
func (a *App) ensureRegistry() *registry.Registry {
	if a.registry != nil {
		return a.registry
	}
	modules := a.modules
	if len(modules) == 0 {
		modules = coreModules(a.outW, a.emitter)
	}
	a.registry = registry.Load(modules...)
	a.logger.Debug("All Go modules registered.", "count", len(modules), "operators", len(a.registry.OperatorNames()), "primitives", len(a.registry.PrimitiveNames()))
	return a.registry
}

// reporter builds the status reporter of a run.
func (a *App) reporter() status.Reporter {
	if a.emitter == nil {
		return status.Log{}
	}
	return status.Multi{status.Log{}, status.NewSocketIO(a.emitter, a.config.StatusRate)}
}

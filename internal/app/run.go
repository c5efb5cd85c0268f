package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vk/agentgrid/internal/experiment"
	"github.com/vk/agentgrid/internal/status"
	"github.com/vk/agentgrid/internal/telemetry"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// statusTimeout bounds the socket.io handshake.
const statusTimeout = 10 * time.Second

// start brings up the run's ambient services: the otel meter provider, the
// health check server and the status connection. A status server that
// cannot be reached is logged and skipped.
func (a *App) start(ctx context.Context) error {
	if a.provider == nil {
		p, err := telemetry.NewProvider(a.metricsRegistry)
		if err != nil {
			return err
		}
		p.Install()
		a.provider = p
	}
	if a.config.HealthcheckPort > 0 && a.httpServer == nil {
		if _, err := a.startHealthcheckServer(a.config.HealthcheckPort); err != nil {
			return err
		}
	}
	if a.config.StatusURL != "" && a.socket == nil {
		sock, err := status.Dial(ctx, a.config.StatusURL, "/", statusTimeout)
		if err != nil {
			a.logger.Warn("Status publishing disabled.", "status_url", a.config.StatusURL, "error", err)
		} else {
			a.socket = sock
			a.emitter = sock
		}
	}
	return nil
}

// Close releases everything start acquired.
func (a *App) Close(ctx context.Context) error {
	ctx = a.context(ctx)
	var errs []error
	if a.socket != nil {
		a.socket.Disconnect()
		a.socket, a.emitter = nil, nil
	}
	errs = append(errs, a.closeHealthCheckServer(ctx))
	if a.provider != nil {
		errs = append(errs, a.provider.Shutdown(ctx))
		a.provider = nil
	}
	return errors.Join(errs...)
}

// Run executes the configured experiment: it creates one simulation per
// replication and steps them until they end or the tick limit is reached.
func (a *App) Run(ctx context.Context) error {
	ctx = a.context(ctx)
	a.logger.Debug("App.Run method started.")
	if err := a.start(ctx); err != nil {
		return err
	}
	defer a.Close(ctx)

	m, err := a.Load(ctx)
	if err != nil {
		return err
	}
	name, err := a.experimentName(m)
	if err != nil {
		return err
	}

	exp, err := experiment.New(ctx, m, name, experiment.Options{
		Seed:            a.config.Seed,
		Parallelism:     a.config.Parallelism,
		Params:          a.config.Params,
		KeepSimulations: a.config.KeepSimulations,
		Reporter:        a.reporter(),
		Metrics:         a.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}
	defer exp.Close(ctx)

	for range max(1, a.config.Replications) {
		if _, err := exp.NewUnit(ctx, nil); err != nil {
			return fmt.Errorf("failed to create simulation: %w", err)
		}
	}

	runErr := exp.Run(ctx, a.config.Ticks)
	exp.Close(ctx)
	failed := a.summarize(ctx, exp)

	switch {
	case errors.Is(runErr, context.Canceled):
		a.logger.Warn("Run interrupted.")
	case runErr != nil:
		return fmt.Errorf("execution failed: %w", runErr)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d simulations failed", failed, len(exp.Store().IDs()))
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

// summarize logs the final state of every unit and returns how many failed.
func (a *App) summarize(ctx context.Context, exp *experiment.Experiment) int {
	store := exp.Store()
	failed := 0
	for _, id := range store.IDs() {
		st, _ := store.State(ctx, id)
		out, _ := store.Output(ctx, id)
		attrs := []any{"unit", id, "state", st.String()}
		if unitErr, _ := store.Error(ctx, id); unitErr != nil {
			failed++
			attrs = append(attrs, "error", unitErr)
		}
		attrs = append(attrs, slog.Group("globals", formatOutputs(out, a.config.Outputs)...))
		a.logger.Info("Simulation finished.", attrs...)
	}
	return failed
}

// formatOutputs renders the selected globals as slog attributes, sorted by
// name. No selection renders all of them.
func formatOutputs(out map[string]cty.Value, names []string) []any {
	if len(names) == 0 {
		for k := range out {
			names = append(names, k)
		}
		sort.Strings(names)
	}
	attrs := make([]any, 0, len(names))
	for _, n := range names {
		if v, ok := out[n]; ok {
			attrs = append(attrs, slog.String(n, types.Format(v)))
		}
	}
	return attrs
}

// RunBatch runs every parameter set of the configuration, replicated, and
// returns one result per simulation.
func (a *App) RunBatch(ctx context.Context) ([]experiment.BatchResult, error) {
	ctx = a.context(ctx)
	if err := a.start(ctx); err != nil {
		return nil, err
	}
	defer a.Close(ctx)

	m, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	name, err := a.experimentName(m)
	if err != nil {
		return nil, err
	}

	results, err := experiment.RunBatch(ctx, m, name, a.parameterSets(), experiment.BatchOptions{
		Replications: max(1, a.config.Replications),
		Seed:         a.config.Seed,
		Ticks:        a.config.Ticks,
		Parallelism:  a.config.Parallelism,
		Outputs:      a.config.Outputs,
		Reporter:     a.reporter(),
		Metrics:      a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("batch failed: %w", err)
	}
	return results, nil
}

// parameterSets layers every configured set over the base parameters.
func (a *App) parameterSets() []experiment.ParameterSet {
	if len(a.config.ParameterSets) == 0 {
		return []experiment.ParameterSet{experiment.ParameterSet(a.config.Params)}
	}
	sets := make([]experiment.ParameterSet, 0, len(a.config.ParameterSets))
	for _, s := range a.config.ParameterSets {
		merged := make(experiment.ParameterSet, len(a.config.Params)+len(s))
		for k, v := range a.config.Params {
			merged[k] = v
		}
		for k, v := range s {
			merged[k] = v
		}
		sets = append(sets, merged)
	}
	return sets
}

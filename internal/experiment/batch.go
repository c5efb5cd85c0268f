package experiment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/vk/agentgrid/internal/model"
	"github.com/vk/agentgrid/internal/status"
	"github.com/vk/agentgrid/internal/telemetry"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ParameterSet binds parameters or globals by name for one batch entry.
type ParameterSet map[string]cty.Value

// Key renders the set as name=value pairs in name order.
func (p ParameterSet) Key() string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=" + types.Format(p[n])
	}
	return strings.Join(parts, ",")
}

// BatchOptions configures RunBatch.
type BatchOptions struct {
	// Replications is the number of units per parameter set; at least one.
	Replications int
	Seed         uint64
	// Ticks bounds the run. Zero runs until every unit is dead, which
	// needs an until condition or models that end themselves.
	Ticks       int
	Parallelism int
	// Outputs names the globals to collect. Empty collects all of them.
	Outputs  []string
	Reporter status.Reporter
	Metrics  *telemetry.Metrics
}

// BatchResult is the outcome of one unit of a batch.
type BatchResult struct {
	Key         string
	Params      ParameterSet
	Replication int
	Seed        uint64
	Cycle       int64
	Outputs     map[string]cty.Value
	Err         error
}

var (
	batchOnce     sync.Once
	batchUnits    metric.Int64Counter
	batchDuration metric.Float64Histogram
)

func initBatchMetrics(ctx context.Context) {
	batchOnce.Do(func() {
		var err error
		if batchUnits, err = telemetry.Meter.Int64Counter("agentgrid_batch_units_total",
			metric.WithDescription("Units run by batch experiments, by outcome")); err != nil {
			ctxlog.FromContext(ctx).Warn("Batch metrics unavailable.", "error", err)
		}
		if batchDuration, err = telemetry.Meter.Float64Histogram("agentgrid_batch_duration_seconds",
			metric.WithDescription("Wall time of a batch experiment"), metric.WithUnit("s")); err != nil {
			ctxlog.FromContext(ctx).Warn("Batch metrics unavailable.", "error", err)
		}
	})
}

// RunBatch creates Replications units per parameter set inside one
// experiment, runs them to completion and collects their outputs. Results
// follow the order of sets, replications in order within a set.
func RunBatch(ctx context.Context, m *model.Model, name string, sets []ParameterSet, opts BatchOptions) ([]BatchResult, error) {
	initBatchMetrics(ctx)
	start := time.Now()
	if opts.Replications < 1 {
		opts.Replications = 1
	}
	if len(sets) == 0 {
		sets = []ParameterSet{{}}
	}
	ctx, span := telemetry.Tracer.Start(ctx, "experiment.RunBatch", trace.WithAttributes(
		attribute.String("experiment", name),
		attribute.Int("sets", len(sets)),
		attribute.Int("replications", opts.Replications),
	))
	defer span.End()

	e, err := New(ctx, m, name, Options{
		Seed:        opts.Seed,
		Parallelism: opts.Parallelism,
		Reporter:    opts.Reporter,
		Metrics:     opts.Metrics,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer e.Close(ctx)

	results := make([]BatchResult, 0, len(sets)*opts.Replications)
	ids := make([]int, 0, cap(results))
	for _, set := range sets {
		for rep := range opts.Replications {
			u, err := e.NewUnit(ctx, set)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("parameter set %s: %w", set.Key(), err)
			}
			ids = append(ids, u.ID())
			results = append(results, BatchResult{Key: set.Key(), Params: set, Replication: rep, Seed: u.Seed()})
		}
	}
	e.logger.Info("📦 Running batch.", "sets", len(sets), "replications", opts.Replications, "units", len(ids))

	if err := e.Run(ctx, opts.Ticks); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e.Close(ctx)

	failed := 0
	for i, id := range ids {
		out, _ := e.store.Output(ctx, id)
		results[i].Err, _ = e.store.Error(ctx, id)
		results[i].Outputs = pick(out, opts.Outputs)
		if c, ok := out["cycle"]; ok {
			results[i].Cycle, _ = c.AsBigFloat().Int64()
		}
		if results[i].Err != nil {
			failed++
		}
	}

	if batchUnits != nil {
		batchUnits.Add(ctx, int64(len(ids)-failed), metric.WithAttributes(attribute.String("outcome", "ok")))
		batchUnits.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", "failed")))
	}
	if batchDuration != nil {
		batchDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("experiment", name)))
	}
	span.SetAttributes(attribute.Int("failed", failed))
	e.logger.Info("✅ Batch completed.", "units", len(ids), "failed", failed, "duration", time.Since(start))
	return results, nil
}

// pick keeps the named globals of out, or all of them.
func pick(out map[string]cty.Value, names []string) map[string]cty.Value {
	if len(names) == 0 || out == nil {
		return out
	}
	kept := make(map[string]cty.Value, len(names))
	for _, n := range names {
		if v, ok := out[n]; ok {
			kept[n] = v
		}
	}
	return kept
}

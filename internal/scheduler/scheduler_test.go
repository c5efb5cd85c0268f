package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/ast"
	"github.com/vk/agentgrid/internal/inmemorystore"
	"github.com/vk/agentgrid/internal/model"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/simulation"
	"github.com/vk/agentgrid/internal/status"
	"github.com/vk/agentgrid/internal/testutil"
	"github.com/vk/agentgrid/internal/testutil/modeltest"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type facets = modeltest.Facets

var node = modeltest.Node

// hookModule registers a volatile nullary operator running fn.
type hookModule struct {
	name string
	fn   func(s *scope.Scope)
}

func (m hookModule) Register(r *registry.Registry) {
	r.RegisterOperator(&registry.OperatorProto{
		Name:       m.name,
		ReturnType: types.Bool,
		Volatile:   true,
		Fn: func(s *scope.Scope, _ []cty.Value) (cty.Value, error) {
			m.fn(s)
			return cty.True, nil
		},
	})
}

type recorder struct {
	mu     sync.Mutex
	ticks  []status.TickInfo
	failed []int
}

func (r *recorder) TickCompleted(_ context.Context, info status.TickInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, info)
}

func (r *recorder) LoopEntered(context.Context, string) {}

func (r *recorder) UnitFailed(_ context.Context, unit int, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, unit)
}

// callModel compiles a model whose world calls op once per step. The
// call is skipped while the global "skip" is true.
func callModel(t *testing.T, reg *registry.Registry, op string) *model.Model {
	t.Helper()
	return modeltest.Compile(t, reg,
		node("global", "", nil,
			modeltest.Var("skip", "bool", modeltest.Bool(false)),
			node("reflex", "call", facets{"when": ast.Op("not", ast.Var("skip"))},
				node("let", "x", facets{"value": ast.Op(op)}),
			),
		),
	)
}

func failingModel(t *testing.T) *model.Model {
	t.Helper()
	return modeltest.Compile(t, nil,
		node("global", "", nil,
			modeltest.Var("bad", "bool", modeltest.Bool(false)),
			node("reflex", "boom", facets{"when": ast.Var("bad")},
				node("let", "x", facets{"value": ast.Op("at", ast.Op("range", modeltest.Int(1), ast.Op("-", ast.Var("cycle"), modeltest.Int(1))), modeltest.Int(5))}),
			),
		),
	)
}

func newUnit(t *testing.T, ctx context.Context, m *model.Model, id int, params map[string]cty.Value) *simulation.Unit {
	t.Helper()
	u, err := simulation.New(ctx, simulation.Options{ID: id, Model: m, Seed: uint64(id), Params: params})
	require.NoError(t, err)
	return u
}

func addUnits(t *testing.T, ctx context.Context, r *Runner, m *model.Model, n int) []*simulation.Unit {
	t.Helper()
	units := make([]*simulation.Unit, n)
	for i := range units {
		units[i] = newUnit(t, ctx, m, i+1, nil)
		require.NoError(t, r.Add(units[i]))
	}
	return units
}

func TestRunner_SequentialStepsNeverOverlap(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sleeper := testutil.NewMockSleeperModule(nil, 10*time.Millisecond)
	m := callModel(t, testutil.Registry(nil, sleeper), "nap")
	r := New(Options{Parallelism: 1})
	addUnits(t, ctx, r, m, 4)

	for range 2 {
		info, err := r.Step(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, info.Stepped)
	}

	records := sleeper.Records()
	require.Len(t, records, 8)
	for i, a := range records {
		for _, b := range records[i+1:] {
			assert.False(t, a.Overlaps(b), "steps overlapped with parallelism 1")
		}
	}
}

func TestRunner_TicksAreBarriers(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sleeper := testutil.NewMockSleeperModule(nil, 30*time.Millisecond)
	m := callModel(t, testutil.Registry(nil, sleeper), "nap")
	r := New(Options{Parallelism: 8})
	units := addUnits(t, ctx, r, m, 4)

	for range 2 {
		_, err := r.Step(ctx)
		require.NoError(t, err)
	}

	var lastEnd, firstStart time.Time
	overlapped := false
	for _, u := range units {
		recs := sleeper.ExecutionTimes[u.Name()]
		require.Len(t, recs, 2, u.Name())
		if recs[0].End.After(lastEnd) {
			lastEnd = recs[0].End
		}
		if firstStart.IsZero() || recs[1].Start.Before(firstStart) {
			firstStart = recs[1].Start
		}
		for _, o := range units {
			if o != u && recs[0].Overlaps(sleeper.ExecutionTimes[o.Name()][0]) {
				overlapped = true
			}
		}
	}
	assert.False(t, firstStart.Before(lastEnd), "a unit began tick 2 before tick 1 finished")
	assert.True(t, overlapped, "units did not run in parallel")
}

func TestRunner_FailureIsIsolated(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := inmemorystore.New()
	rec := &recorder{}
	r := New(Options{Parallelism: 4, Store: store, Reporter: rec})
	m := failingModel(t)

	good := addUnits(t, ctx, r, m, 2)
	bad := newUnit(t, ctx, m, 99, map[string]cty.Value{"bad": cty.True})
	require.NoError(t, r.Add(bad))

	info, err := r.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Stepped)
	assert.Equal(t, 1, info.Failed)
	assert.Equal(t, 2, info.Units)
	assert.Equal(t, []int{99}, rec.failed)

	assert.True(t, bad.Dead())
	assert.Equal(t, simulation.Disposed, bad.State())
	unitErr, _ := store.Error(ctx, 99)
	require.Error(t, unitErr)
	assert.Contains(t, unitErr.Error(), "out of bounds")
	out, _ := store.Output(ctx, 99)
	assert.Contains(t, out, "bad")
	_, ok := r.Unit(99)
	assert.False(t, ok)

	info, err = r.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Stepped)
	for _, u := range good {
		assert.Equal(t, int64(2), u.Cycle())
		assert.False(t, u.Dead())
	}
	require.Len(t, rec.ticks, 2)
	assert.Equal(t, int64(2), r.Tick())
}

func TestRunner_PanicsAreRecovered(t *testing.T) {
	ctx, _ := testutil.Context(t)
	reg := testutil.Registry(nil, hookModule{name: "explode", fn: func(*scope.Scope) { panic("kaboom") }})
	rec := &recorder{}
	r := New(Options{Parallelism: 2, Reporter: rec})

	boom := newUnit(t, ctx, callModel(t, reg, "explode"), 1, nil)
	calm := newUnit(t, ctx, callModel(t, reg, "explode"), 2, map[string]cty.Value{"skip": cty.True})
	require.NoError(t, r.Add(boom))
	require.NoError(t, r.Add(calm))

	info, err := r.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Failed)
	require.Error(t, boom.Err())
	assert.Contains(t, boom.Err().Error(), "kaboom")
	rt := scope.AsRuntimeError(boom.Err())
	require.NotNil(t, rt)
	assert.True(t, rt.Fatal)
	assert.Equal(t, int64(1), calm.Cycle())
	assert.Equal(t, 1, r.Len())
}

func TestRunner_UnitsAddedDuringATickWaitForTheNext(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := New(Options{Parallelism: 2})
	var late *simulation.Unit
	var once sync.Once
	reg := testutil.Registry(nil, hookModule{name: "spawn", fn: func(*scope.Scope) {
		once.Do(func() { assert.NoError(t, r.Add(late)) })
	}})
	m := callModel(t, reg, "spawn")
	late = newUnit(t, ctx, m, 2, map[string]cty.Value{"skip": cty.True})
	first := newUnit(t, ctx, m, 1, nil)
	require.NoError(t, r.Add(first))

	info, err := r.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Stepped)
	assert.Equal(t, 2, info.Units)
	assert.Equal(t, int64(0), late.Cycle())

	info, err = r.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Stepped)
	assert.Equal(t, int64(1), late.Cycle())
	assert.Error(t, r.Add(late))
}

func TestRunner_HeldUnitsAreSkipped(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := New(Options{})
	units := addUnits(t, ctx, r, failingModel(t), 3)

	units[1].Hold()
	info, err := r.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Stepped)
	assert.Equal(t, 3, info.Units)
	assert.Equal(t, int64(0), units[1].Cycle())

	units[1].Release()
	_, err = r.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), units[1].Cycle())
	assert.Equal(t, int64(2), units[0].Cycle())
}

func TestRunner_PauseAndStop(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := New(Options{})
	addUnits(t, ctx, r, failingModel(t), 1)

	r.Pause()
	assert.True(t, r.Paused())
	_, err := r.Step(ctx)
	assert.ErrorIs(t, err, ErrPaused)

	gated := make(chan error, 1)
	go func() { gated <- r.Gate(ctx) }()
	select {
	case <-gated:
		t.Fatal("gate opened while paused")
	case <-time.After(20 * time.Millisecond):
	}
	r.Resume()
	require.NoError(t, <-gated)

	_, err = r.Step(ctx)
	require.NoError(t, err)

	r.Stop()
	_, err = r.Step(ctx)
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, r.Gate(ctx), ErrStopped)
	assert.ErrorIs(t, r.Add(newUnit(t, ctx, failingModel(t), 7, nil)), ErrStopped)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	paused := New(Options{})
	paused.Pause()
	assert.ErrorIs(t, paused.Gate(cctx), context.Canceled)
}

func TestRunner_RemoveAndClose(t *testing.T) {
	ctx, _ := testutil.Context(t)
	store := inmemorystore.New()
	r := New(Options{Store: store})
	units := addUnits(t, ctx, r, failingModel(t), 3)

	_, err := r.Step(ctx)
	require.NoError(t, err)
	assert.True(t, r.Remove(units[0].ID()))
	assert.False(t, r.Remove(42))

	info, err := r.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Stepped)
	assert.Equal(t, 2, info.Units)
	assert.Equal(t, simulation.Disposed, units[0].State())

	pending := newUnit(t, ctx, failingModel(t), 10, nil)
	require.NoError(t, r.Add(pending))
	r.Close(ctx)
	assert.Equal(t, 0, r.Len())
	for _, u := range append(units, pending) {
		assert.Equal(t, simulation.Disposed, u.State(), u.Name())
		st, _ := store.State(ctx, u.ID())
		assert.Equal(t, simulation.Disposed, st, u.Name())
	}
	out, _ := store.Output(ctx, units[1].ID())
	assert.True(t, out["cycle"].Equals(cty.NumberIntVal(2)).True())
	assert.Equal(t, []int{1, 2, 3, 10}, store.IDs())
}

func TestRunner_UnitStepsRunInsideTheirSpan(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, _ := testutil.Context(t)
	var mu sync.Mutex
	seen := make(map[trace.SpanID]bool)
	hook := hookModule{name: "trace_hook", fn: func(s *scope.Scope) {
		mu.Lock()
		defer mu.Unlock()
		seen[trace.SpanContextFromContext(s.Context()).SpanID()] = true
	}}
	m := callModel(t, testutil.Registry(nil, hook), "trace_hook")
	r := New(Options{Parallelism: 2})
	addUnits(t, ctx, r, m, 2)

	_, err := r.Step(ctx)
	require.NoError(t, err)

	var stepSpans int
	for _, span := range spans.Ended() {
		if span.Name() != "scheduler.StepUnit" {
			continue
		}
		stepSpans++
		assert.True(t, seen[span.SpanContext().SpanID()], "statements of a unit run under its step span")
	}
	assert.Equal(t, 2, stepSpans)
	assert.Len(t, seen, 2)
}

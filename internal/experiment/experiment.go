package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/google/uuid"
	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/vk/agentgrid/internal/inmemorystore"
	"github.com/vk/agentgrid/internal/model"
	"github.com/vk/agentgrid/internal/random"
	"github.com/vk/agentgrid/internal/scheduler"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/simulation"
	"github.com/vk/agentgrid/internal/status"
	"github.com/vk/agentgrid/internal/telemetry"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrSimulationsDiscarded is returned when a mutable global is read
	// while no unit is live and the experiment discards its simulations.
	ErrSimulationsDiscarded = errors.New("simulations are discarded")
	// ErrClosed is returned by a closed experiment.
	ErrClosed = errors.New("experiment is closed")
)

// Options configures an experiment.
type Options struct {
	Seed uint64
	// Parallelism overrides the experiment's declared parallelism when
	// positive.
	Parallelism int
	// Params sets parameters by parameter or global name. Names that are
	// neither become ad hoc parameters.
	Params map[string]cty.Value
	// KeepSimulations, when set, overrides the experiment's keep_simulations
	// facet.
	KeepSimulations *bool
	Reporter        status.Reporter
	Metrics         *telemetry.Metrics
	// OnError receives runtime errors of the experiment and its units.
	OnError scope.ErrorHandler
}

// Experiment is the orchestrating agent of a run.
type Experiment struct {
	id     uuid.UUID
	model  *model.Model
	plan   *model.ExperimentPlan
	seed   uint64
	keep   bool
	logger *slog.Logger

	agent  *model.Agent
	scope  *scope.Scope
	runner *scheduler.Runner
	store  *inmemorystore.Store

	reporter status.Reporter
	onError  scope.ErrorHandler

	mu      sync.RWMutex
	params  map[string]cty.Value // by global name
	extra   *linkedhashmap.Map
	nextID  int
	closed  bool
}

// New creates the named experiment of m and initializes its variables and
// parameters. No unit exists yet.
func New(ctx context.Context, m *model.Model, name string, opts Options) (*Experiment, error) {
	plan, ok := m.Experiment(name)
	if !ok {
		return nil, fmt.Errorf("model %s has no experiment %q", m.Name, name)
	}
	e := &Experiment{
		id:       uuid.New(),
		model:    m,
		plan:     plan,
		seed:     opts.Seed,
		keep:     plan.KeepSimulations,
		store:    inmemorystore.New(),
		reporter: opts.Reporter,
		onError:  opts.OnError,
		params:   make(map[string]cty.Value, len(plan.Parameters)),
		extra:    linkedhashmap.New(),
		nextID:   1,
	}
	if e.reporter == nil {
		e.reporter = status.Noop{}
	}
	if opts.KeepSimulations != nil {
		e.keep = *opts.KeepSimulations
	}
	ctx, e.logger = ctxlog.With(ctx, slog.String("experiment", plan.Name), slog.String("run", e.id.String()))

	parallelism := plan.Parallelism
	if opts.Parallelism > 0 {
		parallelism = opts.Parallelism
	}
	e.runner = scheduler.New(scheduler.Options{
		Parallelism: parallelism,
		Store:       e.store,
		Reporter:    e.reporter,
		Metrics:     opts.Metrics,
	})

	sp := model.NewSpecies(plan.Name, nil, types.Agent)
	for _, v := range plan.Vars {
		sp.AddVar(v)
	}
	for _, r := range plan.Reflexes {
		sp.AddReflex(r)
	}
	e.agent = model.NewAgent(sp, 0)
	e.scope = scope.New(ctx, scope.Options{
		Name:     "experiment " + plan.Name,
		Agent:    e.agent,
		Globals:  e,
		Random:   random.New(opts.Seed),
		Reporter: e.reporter,
		OnError:  opts.OnError,
	})

	e.logger.Info("🧪 Creating experiment.", "model", m.Name, "seed", opts.Seed, "parallelism", e.runner.Parallelism())
	if err := e.agent.Initialize(e.scope, nil); err != nil {
		return nil, fmt.Errorf("experiment %s: %w", plan.Name, err)
	}
	if err := e.bindParameters(ctx, opts.Params); err != nil {
		return nil, err
	}
	return e, nil
}

// bindParameters computes the value of every declared parameter: the
// supplied one, else its own init, else the global's initial value.
func (e *Experiment) bindParameters(ctx context.Context, supplied map[string]cty.Value) error {
	used := make(map[string]bool, len(supplied))
	for _, p := range e.plan.Parameters {
		v, name, ok := lookup(supplied, p.Name, p.Var)
		var err error
		switch {
		case ok:
			used[name] = true
		case p.Init != nil:
			v, err = p.Init.Value(e.scope)
		default:
			v, _, err = e.model.InitialValue(ctx, p.Var)
		}
		if err != nil {
			return fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		if err := e.setParam(p, v); err != nil {
			return err
		}
	}
	for name, v := range supplied {
		if used[name] {
			continue
		}
		if decl, ok := e.model.Global.Var(name); ok {
			cast, err := types.Cast(v, decl.Type)
			if err != nil {
				return fmt.Errorf("global %s: %w", name, err)
			}
			e.params[name] = cast
			continue
		}
		e.extra.Put(name, v)
	}
	return nil
}

func lookup(m map[string]cty.Value, names ...string) (cty.Value, string, bool) {
	for _, n := range names {
		if v, ok := m[n]; ok {
			return v, n, true
		}
	}
	return cty.NilVal, "", false
}

func (e *Experiment) setParam(p *model.Parameter, v cty.Value) error {
	cast, err := types.Cast(v, p.Type)
	if err != nil {
		return fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	if !p.Accepts(cast) {
		return fmt.Errorf("parameter %s: %s is not among the accepted values", p.Name, types.Format(cast))
	}
	e.params[p.Var] = cast
	return nil
}

func (e *Experiment) ID() uuid.UUID                { return e.id }
func (e *Experiment) Name() string                 { return e.plan.Name }
func (e *Experiment) Model() *model.Model          { return e.model }
func (e *Experiment) Plan() *model.ExperimentPlan  { return e.plan }
func (e *Experiment) Runner() *scheduler.Runner    { return e.runner }
func (e *Experiment) Store() *inmemorystore.Store  { return e.store }
func (e *Experiment) Scope() *scope.Scope          { return e.scope }
func (e *Experiment) Agent() *model.Agent          { return e.agent }
func (e *Experiment) Logger() *slog.Logger         { return e.logger }

// Params returns the parameter values units are created with, keyed by
// global name.
func (e *Experiment) Params() map[string]cty.Value {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]cty.Value, len(e.params))
	for k, v := range e.params {
		out[k] = v
	}
	return out
}

// Extra returns the names of the ad hoc parameters in insertion order.
func (e *Experiment) Extra() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, e.extra.Size())
	for _, k := range e.extra.Keys() {
		out = append(out, k.(string))
	}
	return out
}

// NewUnit creates a unit bound to the experiment's parameters, with
// overrides applied on top, and schedules it for the next tick.
func (e *Experiment) NewUnit(ctx context.Context, overrides map[string]cty.Value) (*simulation.Unit, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	id := e.nextID
	e.nextID++
	params := make(map[string]cty.Value, len(e.params)+len(overrides))
	for k, v := range e.params {
		params[k] = v
	}
	e.mu.Unlock()

	for name, v := range overrides {
		target := name
		if p, ok := e.plan.Parameter(name); ok {
			target = p.Var
			cast, err := types.Cast(v, p.Type)
			if err != nil || !p.Accepts(cast) {
				return nil, fmt.Errorf("parameter %s: %s is not an accepted value", p.Name, types.Format(v))
			}
			v = cast
		}
		params[target] = v
	}

	u, err := simulation.New(ctxlog.WithLogger(ctx, e.logger), simulation.Options{
		ID:       id,
		Model:    e.model,
		Seed:     random.Derive(e.seed, id),
		Params:   params,
		Until:    e.plan.Until,
		Reporter: e.reporter,
		OnError:  e.onError,
	})
	if err != nil {
		return nil, err
	}
	if err := e.runner.Add(u); err != nil {
		u.Dispose()
		return nil, err
	}
	return u, nil
}

// liveUnit returns the first scheduled unit that is not dead.
func (e *Experiment) liveUnit() *simulation.Unit {
	for _, u := range e.runner.Units() {
		if !u.Dead() {
			return u
		}
	}
	return nil
}

// Global implements scope.Globals with the experiment fallback chain.
func (e *Experiment) Global(name string) (cty.Value, error) {
	if _, own := e.plan.Var(name); own {
		if v, ok := e.agent.Attribute(name); ok {
			return v, nil
		}
	}
	decl, isGlobal := e.model.Global.Var(name)
	builtin := name == "cycle" || name == "seed"
	if isGlobal || builtin {
		if u := e.liveUnit(); u != nil {
			return u.Global(name)
		}
		return e.settled(name, decl)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.plan.Parameter(name); ok {
		if v, ok := e.params[p.Var]; ok {
			return v, nil
		}
	}
	if v, ok := e.extra.Get(name); ok {
		return v.(cty.Value), nil
	}
	return cty.NilVal, scope.Fatalf("experiment %s has no variable %q", e.plan.Name, name)
}

// settled resolves a global while no unit is live.
func (e *Experiment) settled(name string, decl *model.Variable) (cty.Value, error) {
	if !e.keep && decl != nil && !decl.Const {
		return cty.NilVal, scope.AsRuntimeError(fmt.Errorf("reading %q with no live simulation: %w", name, ErrSimulationsDiscarded))
	}
	switch name {
	case "cycle":
		return cty.NumberIntVal(e.runner.Tick()), nil
	case "seed":
		return cty.NumberUIntVal(e.seed), nil
	}
	e.mu.RLock()
	v, bound := e.params[name]
	e.mu.RUnlock()
	if bound {
		return v, nil
	}
	v, _, err := e.model.InitialValue(e.scope.Context(), name)
	if err != nil {
		return cty.NilVal, scope.AsRuntimeError(err)
	}
	return v, nil
}

// SetGlobal implements scope.Globals: an experiment variable, else the
// live unit's global, else a parameter for future units, else an ad hoc
// parameter.
func (e *Experiment) SetGlobal(name string, v cty.Value) error {
	if decl, own := e.plan.Var(name); own {
		cast, err := types.Cast(v, decl.Type)
		if err != nil {
			return scope.Fatalf("experiment variable %s: %v", name, err)
		}
		e.agent.SetAttribute(name, cast)
		return nil
	}
	if _, isGlobal := e.model.Global.Var(name); isGlobal {
		if u := e.liveUnit(); u != nil {
			return u.SetGlobal(name, v)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.plan.Parameter(name); ok {
		if err := e.setParam(p, v); err != nil {
			return scope.AsRuntimeError(err)
		}
		return nil
	}
	e.extra.Put(name, v)
	return nil
}

// Step runs the experiment's reflexes alone, then one scheduler tick.
func (e *Experiment) Step(ctx context.Context) (status.TickInfo, error) {
	if e.isClosed() {
		return status.TickInfo{}, ErrClosed
	}
	e.scope.SetContext(ctxlog.WithLogger(ctx, e.logger))
	if err := e.agent.Step(e.scope); err != nil {
		e.scope.Report(err)
		return status.TickInfo{}, fmt.Errorf("experiment %s: %w", e.plan.Name, err)
	}
	return e.runner.Step(ctx)
}

// Run steps the experiment until ticks ticks ran, every unit is gone or
// the runner is stopped. ticks <= 0 runs until the units are gone.
func (e *Experiment) Run(ctx context.Context, ticks int) error {
	e.logger.Info("🚀 Running experiment.", "units", e.runner.Len(), "ticks", ticks)
	for n := 0; ticks <= 0 || n < ticks; n++ {
		if err := e.runner.Gate(ctx); err != nil {
			if errors.Is(err, scheduler.ErrStopped) {
				break
			}
			return err
		}
		if e.runner.Len() == 0 {
			break
		}
		if _, err := e.Step(ctx); err != nil {
			return err
		}
	}
	e.logger.Info("🏁 Experiment finished.", "ticks", e.runner.Tick(), "units", e.runner.Len())
	return nil
}

// Close disposes every unit, then releases the experiment's own state.
func (e *Experiment) Close(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.runner.Close(ctx)
	e.agent.Die()
	e.logger.Debug("🧹 Experiment closed.", "ticks", e.runner.Tick())
}

func (e *Experiment) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

var _ scope.Globals = (*Experiment)(nil)

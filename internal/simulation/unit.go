package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/vk/agentgrid/internal/executor"
	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/model"
	"github.com/vk/agentgrid/internal/random"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/status"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

var (
	// ErrDisposed is returned when a disposed unit is used.
	ErrDisposed = errors.New("simulation unit is disposed")
	// ErrNotSchedulable is returned when a unit is stepped outside of the
	// scheduled states.
	ErrNotSchedulable = errors.New("simulation unit is not scheduled")
)

// State is the lifecycle state of a unit.
type State int32

const (
	Created State = iota
	Scheduled
	Stepping
	Stepped
	Unscheduled
	Disposed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Scheduled:
		return "scheduled"
	case Stepping:
		return "stepping"
	case Stepped:
		return "stepped"
	case Unscheduled:
		return "unscheduled"
	case Disposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options configures a new unit.
type Options struct {
	// ID identifies the unit within its experiment.
	ID    int
	Model *model.Model
	Seed  uint64
	// Params override the declared initial values of globals.
	Params map[string]cty.Value
	// Until, when set, ends the unit once it evaluates to true after a step.
	Until    expr.Expression
	Reporter status.Reporter
	OnError  scope.ErrorHandler
}

// Unit is one simulation instance.
type Unit struct {
	id     int
	name   string
	model  *model.Model
	until  expr.Expression
	world  *model.Agent
	rng    *random.Generator
	scope  *scope.Scope
	logger *slog.Logger

	populations map[*model.Species][]*model.Agent
	nextIndex   map[*model.Species]int

	cycle atomic.Int64
	state atomic.Int32
	dead  atomic.Bool
	held  atomic.Bool

	mu      sync.Mutex
	err     error
	waiting chan struct{}
}

// New creates a unit, initializes its globals and runs the global init
// block. The unit starts in the Created state.
func New(ctx context.Context, opts Options) (*Unit, error) {
	m := opts.Model
	u := &Unit{
		id:          opts.ID,
		name:        fmt.Sprintf("%s#%d", m.Name, opts.ID),
		model:       m,
		until:       opts.Until,
		rng:         random.New(opts.Seed),
		populations: make(map[*model.Species][]*model.Agent, len(m.Species)),
		nextIndex:   make(map[*model.Species]int, len(m.Species)),
	}
	var unitCtx context.Context
	unitCtx, u.logger = ctxlog.With(ctx, slog.Int("unit", opts.ID))
	u.world = model.NewAgent(m.Global, 0)
	u.scope = scope.New(unitCtx, scope.Options{
		Name:     u.name,
		Agent:    u.world,
		Globals:  u,
		Random:   u.rng,
		Reporter: opts.Reporter,
		Holder:   u,
		OnError:  opts.OnError,
	})

	u.logger.Debug("🌱 Initializing simulation.", "seed", opts.Seed)
	if err := u.world.Initialize(u.scope, opts.Params); err != nil {
		return nil, fmt.Errorf("initializing %s: %w", u.name, err)
	}
	if u.world.Dead() {
		u.dead.Store(true)
	}
	return u, nil
}

func (u *Unit) ID() int              { return u.id }
func (u *Unit) Name() string         { return u.name }
func (u *Unit) State() State         { return State(u.state.Load()) }
func (u *Unit) Cycle() int64         { return u.cycle.Load() }
func (u *Unit) Seed() uint64         { return u.rng.Seed() }
func (u *Unit) Draws() uint64        { return u.rng.Draws() }
func (u *Unit) World() *model.Agent  { return u.world }
func (u *Unit) Model() *model.Model  { return u.model }
func (u *Unit) Scope() *scope.Scope  { return u.scope }
func (u *Unit) Logger() *slog.Logger { return u.logger }

// Dead reports whether the unit finished, was killed or failed. Dead units
// are not stepped again.
func (u *Unit) Dead() bool { return u.dead.Load() }

// Err returns the error that ended the unit, if any.
func (u *Unit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Schedule moves a created unit into the scheduled state.
func (u *Unit) Schedule() error {
	if !u.state.CompareAndSwap(int32(Created), int32(Scheduled)) {
		return fmt.Errorf("%s: cannot schedule a %s unit", u.name, u.State())
	}
	return nil
}

// Unschedule takes the unit out of scheduling without disposing it.
func (u *Unit) Unschedule() {
	for {
		cur := u.state.Load()
		if State(cur) == Disposed || State(cur) == Unscheduled {
			return
		}
		if u.state.CompareAndSwap(cur, int32(Unscheduled)) {
			return
		}
	}
}

// Dispose releases the populations of the unit. A waiting unit is woken
// up first.
func (u *Unit) Dispose() {
	if State(u.state.Swap(int32(Disposed))) == Disposed {
		return
	}
	u.dead.Store(true)
	u.Resume()
	clear(u.populations)
	u.logger.Debug("🗑️ Simulation disposed.", "cycle", u.Cycle())
}

// Kill marks the unit dead without an error.
func (u *Unit) Kill() { u.dead.Store(true) }

// Fail marks the unit dead because of err.
func (u *Unit) Fail(err error) {
	u.mu.Lock()
	if u.err == nil {
		u.err = err
	}
	u.mu.Unlock()
	u.dead.Store(true)
}

// Hold stops the scheduler from stepping the unit until Release.
func (u *Unit) Hold() { u.held.Store(true) }

// Release lets a held unit be stepped again and resumes a waiting one.
func (u *Unit) Release() {
	u.held.Store(false)
	u.Resume()
}

// Held reports whether the unit is held.
func (u *Unit) Held() bool { return u.held.Load() }

// AwaitResume parks the calling worker until Resume is called or ctx ends.
// It implements scope.Holder for wait statements.
func (u *Unit) AwaitResume(ctx context.Context) error {
	u.mu.Lock()
	ch := make(chan struct{})
	u.waiting = ch
	u.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		u.mu.Lock()
		if u.waiting == ch {
			u.waiting = nil
		}
		u.mu.Unlock()
		return ctx.Err()
	}
}

// Resume wakes a unit parked in AwaitResume. It reports whether one was.
func (u *Unit) Resume() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.waiting == nil {
		return false
	}
	close(u.waiting)
	u.waiting = nil
	return true
}

// Waiting reports whether the unit is parked in a wait statement.
func (u *Unit) Waiting() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.waiting != nil
}

// Step runs one cycle: the world agent first, then every live agent of
// each species in declaration order. Agents created during the step are
// first stepped in the next cycle. Dead agents are removed at the end.
// A fatal runtime error ends the unit and is returned.
func (u *Unit) Step(ctx context.Context) error {
	prev := u.state.Load()
	if State(prev) != Scheduled && State(prev) != Stepped {
		if State(prev) == Disposed {
			return ErrDisposed
		}
		return ErrNotSchedulable
	}
	if !u.state.CompareAndSwap(prev, int32(Stepping)) {
		return ErrNotSchedulable
	}
	defer u.state.CompareAndSwap(int32(Stepping), int32(Stepped))

	u.scope.SetContext(ctxlog.WithLogger(ctx, u.logger))
	if err := u.step(); err != nil {
		u.Fail(err)
		return err
	}
	u.cycle.Add(1)

	if u.world.Dead() {
		u.logger.Debug("💀 World died.", "cycle", u.Cycle())
		u.Kill()
		return nil
	}
	if u.until != nil {
		v, err := u.until.Value(u.scope)
		if err != nil {
			err = fmt.Errorf("%s: stop condition: %w", u.name, err)
			u.Fail(err)
			return err
		}
		if !v.IsNull() && v.True() {
			u.logger.Debug("🏁 Stop condition reached.", "cycle", u.Cycle())
			u.Kill()
		}
	}
	return nil
}

func (u *Unit) step() error {
	snapshots := make([][]*model.Agent, len(u.model.Species))
	for i, sp := range u.model.Species {
		snapshots[i] = append([]*model.Agent(nil), u.populations[sp]...)
	}
	if err := u.world.Step(u.scope); err != nil {
		return err
	}
	for _, snapshot := range snapshots {
		for _, a := range snapshot {
			if a.Dead() {
				continue
			}
			if u.world.Dead() {
				return nil
			}
			s := u.scope.Copy(a.AgentName())
			s.SetAgent(a)
			if err := a.Step(s); err != nil {
				return err
			}
		}
	}
	u.sweep()
	return nil
}

// sweep drops dead agents from their populations.
func (u *Unit) sweep() {
	for sp, pop := range u.populations {
		live := pop[:0]
		for _, a := range pop {
			if !a.Dead() {
				live = append(live, a)
			}
		}
		clear(pop[len(live):])
		u.populations[sp] = live
	}
}

// Global implements scope.Globals.
func (u *Unit) Global(name string) (cty.Value, error) {
	switch name {
	case "cycle":
		return cty.NumberIntVal(u.Cycle()), nil
	case "seed":
		return cty.NumberUIntVal(u.Seed()), nil
	}
	if v, ok := u.world.Attribute(name); ok {
		return v, nil
	}
	return cty.NilVal, scope.Fatalf("no global named %q", name)
}

// SetGlobal implements scope.Globals.
func (u *Unit) SetGlobal(name string, v cty.Value) error {
	decl, ok := u.model.Global.Var(name)
	if !ok {
		return scope.Fatalf("no global named %q", name)
	}
	cast, err := types.Cast(v, decl.Type)
	if err != nil {
		return scope.Fatalf("global %s: %v", name, err)
	}
	u.world.SetAttribute(name, cast)
	return nil
}

// Globals returns the current value of every global, the clock included.
func (u *Unit) Globals() map[string]cty.Value {
	out := u.world.Attributes()
	out["cycle"] = cty.NumberIntVal(u.Cycle())
	return out
}

// Population implements executor.World. A species includes the agents of
// its subspecies; the world species holds the world agent only.
func (u *Unit) Population(species string) []scope.Agent {
	target, ok := u.model.SpeciesNamed(species)
	if !ok {
		return nil
	}
	if target == u.model.Global {
		return []scope.Agent{u.world}
	}
	var out []scope.Agent
	for _, sp := range u.model.Species {
		if !sp.IsKindOf(target) {
			continue
		}
		for _, a := range u.populations[sp] {
			if !a.Dead() {
				out = append(out, a)
			}
		}
	}
	return out
}

// Count returns the number of live agents per species, subspecies
// excluded, in name order.
func (u *Unit) Count() []SpeciesCount {
	out := make([]SpeciesCount, 0, len(u.populations))
	for sp, pop := range u.populations {
		n := 0
		for _, a := range pop {
			if !a.Dead() {
				n++
			}
		}
		out = append(out, SpeciesCount{Species: sp.Name, Live: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Species < out[j].Species })
	return out
}

// SpeciesCount is the size of one population.
type SpeciesCount struct {
	Species string
	Live    int
}

// CreateAgents implements executor.World. Each agent is initialized in its
// own scope and joins its population once initialized.
func (u *Unit) CreateAgents(s *scope.Scope, species string, n int, init map[string]cty.Value) ([]scope.Agent, error) {
	sp, ok := u.model.SpeciesNamed(species)
	if !ok || sp == u.model.Global {
		return nil, scope.Fatalf("cannot create agents of %q", species)
	}
	created := make([]scope.Agent, 0, n)
	for range n {
		a := model.NewAgent(sp, u.nextIndex[sp])
		u.nextIndex[sp]++
		as := s.Copy("init " + a.AgentName())
		as.SetAgent(a)
		if err := a.Initialize(as, init); err != nil {
			return nil, err
		}
		if a.Dead() {
			continue
		}
		u.populations[sp] = append(u.populations[sp], a)
		created = append(created, a)
	}
	return created, nil
}

var (
	_ scope.Globals  = (*Unit)(nil)
	_ scope.Holder   = (*Unit)(nil)
	_ executor.World = (*Unit)(nil)
)

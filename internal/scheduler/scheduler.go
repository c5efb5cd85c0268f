package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/simulation"
	"github.com/vk/agentgrid/internal/status"
	"github.com/vk/agentgrid/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrStopped is returned by Step and Gate once the runner was stopped.
	ErrStopped = errors.New("scheduler stopped")
	// ErrPaused is returned by Step while the runner is paused.
	ErrPaused = errors.New("scheduler paused")
)

// Options configures a Runner.
type Options struct {
	// Parallelism bounds the unit steps in flight. Zero or less means
	// GOMAXPROCS.
	Parallelism int
	Store       Store
	Reporter    status.Reporter
	Metrics     *telemetry.Metrics
}

// Runner owns the scheduled units of one experiment.
type Runner struct {
	parallelism int
	store       Store
	reporter    status.Reporter
	metrics     *telemetry.Metrics

	mu      sync.Mutex
	units   map[int]*simulation.Unit
	order   []int
	pending []*simulation.Unit
	resume  chan struct{}

	tick     atomic.Int64
	stopped  atomic.Bool
	stepping atomic.Bool
}

// New creates an empty runner.
func New(opts Options) *Runner {
	p := opts.Parallelism
	if p <= 0 {
		p = runtime.GOMAXPROCS(0)
	}
	r := &Runner{
		parallelism: max(p, 1),
		store:       opts.Store,
		reporter:    opts.Reporter,
		metrics:     opts.Metrics,
		units:       make(map[int]*simulation.Unit),
	}
	if r.reporter == nil {
		r.reporter = status.Noop{}
	}
	return r
}

// Parallelism returns the worker bound.
func (r *Runner) Parallelism() int { return r.parallelism }

// Tick returns the number of completed ticks.
func (r *Runner) Tick() int64 { return r.tick.Load() }

// Add schedules u. It joins the next tick that starts after the call.
func (r *Runner) Add(u *simulation.Unit) error {
	if r.stopped.Load() {
		return ErrStopped
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.units[u.ID()]; dup {
		return fmt.Errorf("unit %d is already scheduled", u.ID())
	}
	for _, p := range r.pending {
		if p.ID() == u.ID() {
			return fmt.Errorf("unit %d is already scheduled", u.ID())
		}
	}
	if err := u.Schedule(); err != nil {
		return err
	}
	r.pending = append(r.pending, u)
	return nil
}

// Unit looks up a scheduled or pending unit.
func (r *Runner) Unit(id int) (*simulation.Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.units[id]; ok {
		return u, true
	}
	for _, u := range r.pending {
		if u.ID() == id {
			return u, true
		}
	}
	return nil, false
}

// Units returns the scheduled units followed by the pending ones.
func (r *Runner) Units() []*simulation.Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*simulation.Unit, 0, len(r.order)+len(r.pending))
	for _, id := range r.order {
		out = append(out, r.units[id])
	}
	return append(out, r.pending...)
}

// Len counts scheduled and pending units.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order) + len(r.pending)
}

// Remove kills a unit. It is disposed after the barrier of the current
// tick, or of the next one when no tick is running.
func (r *Runner) Remove(id int) bool {
	u, ok := r.Unit(id)
	if ok {
		u.Kill()
	}
	return ok
}

// Pause makes the runner refuse new ticks until Resume. A running tick
// completes.
func (r *Runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resume == nil {
		r.resume = make(chan struct{})
	}
}

// Resume lifts a pause.
func (r *Runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resume != nil {
		close(r.resume)
		r.resume = nil
	}
}

// Paused reports whether the runner is paused.
func (r *Runner) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resume != nil
}

// Stop ends the run. Step returns ErrStopped from then on.
func (r *Runner) Stop() {
	r.stopped.Store(true)
	r.Resume()
}

// Stopped reports whether Stop was called.
func (r *Runner) Stopped() bool { return r.stopped.Load() }

// Gate blocks while the runner is paused. It returns ErrStopped once the
// runner is stopped and ctx.Err() when ctx ends first.
func (r *Runner) Gate(ctx context.Context) error {
	for {
		if r.stopped.Load() {
			return ErrStopped
		}
		r.mu.Lock()
		wait := r.resume
		r.mu.Unlock()
		if wait == nil {
			return nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Step runs one tick. It must not be called concurrently.
func (r *Runner) Step(ctx context.Context) (status.TickInfo, error) {
	if r.stopped.Load() {
		return status.TickInfo{}, ErrStopped
	}
	if r.Paused() {
		return status.TickInfo{}, ErrPaused
	}
	if !r.stepping.CompareAndSwap(false, true) {
		return status.TickInfo{}, errors.New("scheduler: concurrent Step")
	}
	defer r.stepping.Store(false)

	start := time.Now()
	tick := r.tick.Load() + 1
	snapshot, scheduled := r.snapshot()
	ctx, span := telemetry.Tracer.Start(ctx, "scheduler.Tick", trace.WithAttributes(
		attribute.Int64("tick", tick),
		attribute.Int("units", scheduled),
		attribute.Int("dispatched", len(snapshot)),
	))
	defer span.End()
	logger := ctxlog.FromContext(ctx)
	logger.Debug("▶️ Tick started.", "tick", tick, "units", scheduled, "dispatched", len(snapshot))

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(r.parallelism)
	for _, u := range snapshot {
		g.Go(func() error {
			if err := r.stepUnit(ctx, u); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	remaining := r.sweep(ctx, snapshot)
	r.tick.Store(tick)
	info := status.TickInfo{
		Tick:     tick,
		Units:    remaining,
		Stepped:  len(snapshot),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}
	if info.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d unit(s) failed", info.Failed))
	}
	r.metrics.ObserveTick(info.Duration, remaining)
	r.reporter.TickCompleted(ctx, info)
	logger.Debug("⏹️ Tick completed.", "tick", tick, "stepped", info.Stepped, "failed", info.Failed, "remaining", remaining)
	return info, nil
}

// snapshot promotes pending units and returns the ones to step this tick
// along with the number of scheduled units.
func (r *Runner) snapshot() ([]*simulation.Unit, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.pending {
		r.units[u.ID()] = u
		r.order = append(r.order, u.ID())
	}
	r.pending = nil

	out := make([]*simulation.Unit, 0, len(r.order))
	for _, id := range r.order {
		u := r.units[id]
		if u.Dead() || u.Held() {
			continue
		}
		out = append(out, u)
	}
	return out, len(r.order)
}

// stepUnit steps one unit on a worker. Errors and panics end that unit
// only.
func (r *Runner) stepUnit(ctx context.Context, u *simulation.Unit) (err error) {
	ctx, span := telemetry.Tracer.Start(ctx, "scheduler.StepUnit", trace.WithAttributes(attribute.Int("unit", u.ID())))
	defer span.End()

	outcome := "ok"
	defer func() {
		if p := recover(); p != nil {
			err = scope.Fatalf("panic in %s: %v", u.Name(), p)
			u.Fail(err)
			outcome = "panicked"
		}
		if err != nil {
			if outcome == "ok" {
				outcome = "failed"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			u.Scope().Report(err)
			r.reporter.UnitFailed(ctx, u.ID(), err)
		}
		r.metrics.ObserveStep(outcome)
	}()
	return u.Step(ctx)
}

// sweep runs after the barrier. It records the stepped units and removes
// and disposes the dead ones. It returns the number of units left.
func (r *Runner) sweep(ctx context.Context, stepped []*simulation.Unit) int {
	for _, u := range stepped {
		r.record(ctx, u)
	}

	r.mu.Lock()
	var dead []*simulation.Unit
	live := r.order[:0]
	for _, id := range r.order {
		u := r.units[id]
		if u.Dead() {
			dead = append(dead, u)
			delete(r.units, id)
			continue
		}
		live = append(live, id)
	}
	r.order = live
	remaining := len(r.order) + len(r.pending)
	r.mu.Unlock()

	for _, u := range dead {
		r.retire(ctx, u)
	}
	return remaining
}

func (r *Runner) record(ctx context.Context, u *simulation.Unit) {
	if r.store == nil {
		return
	}
	_ = r.store.SetState(ctx, u.ID(), u.State())
	if err := u.Err(); err != nil {
		_ = r.store.SetError(ctx, u.ID(), err)
	}
}

// retire stores the final globals of a unit and disposes it.
func (r *Runner) retire(ctx context.Context, u *simulation.Unit) {
	if r.store != nil {
		_ = r.store.SetOutput(ctx, u.ID(), u.Globals())
	}
	u.Dispose()
	r.record(ctx, u)
	ctxlog.FromContext(ctx).Debug("🪦 Unit retired.", "unit", u.ID(), "cycle", u.Cycle(), "error", u.Err())
}

// Close stops the runner and disposes every unit, pending ones included.
func (r *Runner) Close(ctx context.Context) {
	r.Stop()
	r.mu.Lock()
	all := make([]*simulation.Unit, 0, len(r.order)+len(r.pending))
	for _, id := range r.order {
		all = append(all, r.units[id])
	}
	all = append(all, r.pending...)
	r.units = make(map[int]*simulation.Unit)
	r.order = nil
	r.pending = nil
	r.mu.Unlock()

	for _, u := range all {
		r.retire(ctx, u)
	}
}

// Package scheduler advances the simulation units of one experiment tick
// by tick.
//
// # How It Works
//
// A Runner keeps its units in a table keyed by unit id. Each call to Step
// runs one tick:
//  1. Units added since the previous tick join the table; units added
//     while the tick runs wait for the next one.
//  2. The live, unheld units are snapshotted in insertion order.
//  3. Their steps are dispatched to at most Parallelism workers at a time.
//  4. The tick waits for every dispatched step. A step that fails or
//     panics marks only its own unit dead.
//  5. Dead units are recorded in the Store, removed and disposed. Nothing
//     is disposed before the barrier.
//
// Pause and Stop are observed between ticks only. An in-flight step is
// never interrupted; a unit parked in a wait statement keeps its worker
// until it is resumed.
package scheduler

import (
	"context"

	"github.com/vk/agentgrid/internal/simulation"
	"github.com/zclconf/go-cty/cty"
)

// Store records per-unit outcomes. inmemorystore.Store implements it.
type Store interface {
	SetState(ctx context.Context, id int, st simulation.State) error
	SetOutput(ctx context.Context, id int, globals map[string]cty.Value) error
	SetError(ctx context.Context, id int, err error) error
}

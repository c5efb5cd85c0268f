package inmemorystore

import (
	"context"
	"sort"
	"sync"

	"github.com/vk/agentgrid/internal/simulation"
	"github.com/zclconf/go-cty/cty"
)

// Store is an in-memory record of unit outcomes keyed by unit id.
type Store struct {
	states  sync.Map // int -> simulation.State
	outputs sync.Map // int -> map[string]cty.Value
	errors  sync.Map // int -> error
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// SetState records the lifecycle state of a unit.
func (s *Store) SetState(_ context.Context, id int, st simulation.State) error {
	s.states.Store(id, st)
	return nil
}

// State returns the recorded state of a unit, or Created if none was
// recorded.
func (s *Store) State(_ context.Context, id int) (simulation.State, error) {
	st, ok := s.states.Load(id)
	if !ok {
		return simulation.Created, nil
	}
	return st.(simulation.State), nil
}

// SetOutput records the globals of a unit.
func (s *Store) SetOutput(_ context.Context, id int, globals map[string]cty.Value) error {
	s.outputs.Store(id, globals)
	return nil
}

// Output returns the recorded globals of a unit, or nil.
func (s *Store) Output(_ context.Context, id int) (map[string]cty.Value, error) {
	out, ok := s.outputs.Load(id)
	if !ok {
		return nil, nil
	}
	return out.(map[string]cty.Value), nil
}

// SetError records the error that ended a unit.
func (s *Store) SetError(_ context.Context, id int, unitErr error) error {
	s.errors.Store(id, unitErr)
	return nil
}

// Error returns the recorded error of a unit, or nil.
func (s *Store) Error(_ context.Context, id int) (error, error) {
	err, ok := s.errors.Load(id)
	if !ok {
		return nil, nil
	}
	return err.(error), nil
}

// IDs lists every unit with a recorded state, in ascending order.
func (s *Store) IDs() []int {
	var ids []int
	s.states.Range(func(k, _ any) bool {
		ids = append(ids, k.(int))
		return true
	})
	sort.Ints(ids)
	return ids
}

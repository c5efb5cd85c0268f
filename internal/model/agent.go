// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file models agents and their per-step lifecycle.
package model

import (
	"fmt"

	"github.com/vk/agentgrid/internal/executor"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Agent is one instance of a species. It is owned by a single simulation
// unit and only touched by the worker stepping that unit.
type Agent struct {
	name    string
	index   int
	species *Species
	attrs   map[string]cty.Value
	dead    bool
}

// NewAgent creates an agent whose attributes hold their type defaults.
func NewAgent(sp *Species, index int) *Agent {
	a := &Agent{
		name:    fmt.Sprintf("%s%d", sp.Name, index),
		index:   index,
		species: sp,
		attrs:   make(map[string]cty.Value, len(sp.Vars)),
	}
	for _, v := range sp.Vars {
		a.attrs[v.Name] = v.Type.Default()
	}
	return a
}

func (a *Agent) AgentName() string   { return a.name }
func (a *Agent) SpeciesName() string { return a.species.Name }
func (a *Agent) Species() *Species   { return a.species }
func (a *Agent) Index() int          { return a.index }
func (a *Agent) Dead() bool          { return a.dead }

// Die marks the agent dead. It is removed from its population once the
// current step ends.
func (a *Agent) Die() { a.dead = true }

// Attribute reads a declared variable.
func (a *Agent) Attribute(name string) (cty.Value, bool) {
	v, ok := a.attrs[name]
	return v, ok
}

// SetAttribute writes a declared variable. It returns false for names the
// species does not declare.
func (a *Agent) SetAttribute(name string, v cty.Value) bool {
	if _, ok := a.attrs[name]; !ok {
		return false
	}
	a.attrs[name] = v
	return true
}

// ActionAt implements executor.Receiver.
func (a *Agent) ActionAt(slot int) *executor.Action { return a.species.ActionAt(slot) }

// Attributes returns a copy of the attribute table.
func (a *Agent) Attributes() map[string]cty.Value {
	out := make(map[string]cty.Value, len(a.attrs))
	for k, v := range a.attrs {
		out[k] = v
	}
	return out
}

func (a *Agent) String() string { return a.name }

// Initialize computes the initial attribute values and runs the species
// init block. Values in preset win over declared initializers. s must be
// bound to a.
func (a *Agent) Initialize(s *scope.Scope, preset map[string]cty.Value) error {
	for name := range preset {
		if _, declared := a.species.Var(name); !declared {
			return scope.Fatalf("species %s has no attribute %q", a.species.Name, name)
		}
	}
	for _, v := range a.species.Vars {
		val, ok := preset[v.Name]
		if !ok {
			if v.Init == nil {
				continue
			}
			var err error
			if val, err = v.Init.Value(s); err != nil {
				if scope.IsWarning(err) {
					s.Report(err)
					continue
				}
				return scope.AsRuntimeError(fmt.Errorf("init of %s.%s: %w", a.species.Name, v.Name, err))
			}
		}
		cast, err := types.Cast(val, v.Type)
		if err != nil {
			return scope.Fatalf("init of %s.%s: %v", a.species.Name, v.Name, err)
		}
		a.attrs[v.Name] = cast
	}

	body := a.species.InitBody()
	if len(body) == 0 {
		return nil
	}
	_, err := executor.RunAll(s, body)
	a.consumeLifecycle(s)
	return err
}

// Step updates the attributes carrying an update expression, then runs
// every reflex in order. A die statement skips the remaining reflexes.
// s must be bound to a.
func (a *Agent) Step(s *scope.Scope) error {
	for _, v := range a.species.Vars {
		if v.Update == nil {
			continue
		}
		val, err := v.Update.Value(s)
		if scope.IsWarning(err) {
			s.Report(err)
			continue
		}
		if err != nil {
			return scope.AsRuntimeError(fmt.Errorf("update of %s.%s: %w", a.species.Name, v.Name, err))
		}
		if val, err = types.Cast(val, v.Type); err != nil {
			return scope.Fatalf("update of %s.%s: %v", a.species.Name, v.Name, err)
		}
		a.attrs[v.Name] = val
	}
	for _, r := range a.species.Reflexes {
		if a.dead {
			break
		}
		if _, err := executor.Run(s, r); err != nil {
			return err
		}
		if a.consumeLifecycle(s) {
			break
		}
	}
	return nil
}

// consumeLifecycle clears whatever status the agent's behaviour left and
// reports whether it ended the agent's step.
func (a *Agent) consumeLifecycle(s *scope.Scope) bool {
	st := s.Status()
	s.ClearStatus()
	if st == scope.Die || st == scope.Dispose {
		a.dead = true
		return true
	}
	return false
}

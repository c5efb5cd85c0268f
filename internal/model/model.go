// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file models the root of a compiled model and its experiments.
package model

import (
	"context"
	"fmt"

	"github.com/vk/agentgrid/internal/executor"
	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Model is a compiled model.
type Model struct {
	Name     string
	Types    *types.Manager
	Registry *registry.Registry
	// Global is the species of the world agent; its variables are the
	// globals of the model.
	Global *Species
	// Species lists every other species, parents before children.
	Species     []*Species
	Experiments []*ExperimentPlan

	byName map[string]*Species
}

// New creates an empty model around a type manager and registry.
func New(name string, tm *types.Manager, reg *registry.Registry) *Model {
	return &Model{Name: name, Types: tm, Registry: reg, byName: make(map[string]*Species)}
}

// AddSpecies registers a species. The first species added with isGlobal
// set becomes the global species.
func (m *Model) AddSpecies(sp *Species, isGlobal bool) {
	m.byName[sp.Name] = sp
	if isGlobal {
		m.Global = sp
		return
	}
	m.Species = append(m.Species, sp)
}

// SpeciesNamed looks a species up by name, the global one included.
func (m *Model) SpeciesNamed(name string) (*Species, bool) {
	sp, ok := m.byName[name]
	return sp, ok
}

// Experiment looks an experiment up by name.
func (m *Model) Experiment(name string) (*ExperimentPlan, bool) {
	for _, e := range m.Experiments {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// InitialValue evaluates the declared initial value of a global variable
// outside of any simulation. Initializers that need a running simulation
// fail.
func (m *Model) InitialValue(ctx context.Context, name string) (cty.Value, *Variable, error) {
	v, ok := m.Global.Var(name)
	if !ok {
		return cty.NilVal, nil, fmt.Errorf("model %s has no global %q", m.Name, name)
	}
	if v.Init == nil {
		return v.Type.Default(), v, nil
	}
	s := scope.New(ctx, scope.Options{Name: m.Name + " initial values"})
	val, err := v.Init.Value(s)
	if err != nil {
		return cty.NilVal, v, fmt.Errorf("initial value of %q: %w", name, err)
	}
	val, err = types.Cast(val, v.Type)
	if err != nil {
		return cty.NilVal, v, fmt.Errorf("initial value of %q: %w", name, err)
	}
	return val, v, nil
}

// Parameter exposes a global variable to the experiment. Init, when set,
// overrides the variable's declared initial value.
type Parameter struct {
	Name string
	Var  string
	Type *types.Type
	Init expr.Expression
	// Among restricts the accepted values when not empty.
	Among []cty.Value
}

// Accepts reports whether v is an allowed value of the parameter.
func (p *Parameter) Accepts(v cty.Value) bool {
	if len(p.Among) == 0 {
		return true
	}
	for _, a := range p.Among {
		if !v.IsNull() && a.Type().Equals(v.Type()) && a.Equals(v).True() {
			return true
		}
	}
	return false
}

// ExperimentPlan is a compiled experiment.
type ExperimentPlan struct {
	Name       string
	Parameters []*Parameter
	// Vars are the experiment's own attributes.
	Vars     []*Variable
	Reflexes []*executor.Reflex
	// KeepSimulations defaults to true. When false, reading a mutable global
	// while no live unit exists is an error.
	KeepSimulations bool
	// Parallelism bounds the units stepped at once. Zero means the default.
	Parallelism int
	// Until stops a unit once it evaluates to true in the world scope.
	Until expr.Expression
}

// Parameter looks a parameter up by its name or by the global it sets.
func (e *ExperimentPlan) Parameter(name string) (*Parameter, bool) {
	for _, p := range e.Parameters {
		if p.Name == name || p.Var == name {
			return p, true
		}
	}
	return nil, false
}

// Var looks up one of the experiment's own variables.
func (e *ExperimentPlan) Var(name string) (*Variable, bool) {
	for _, v := range e.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

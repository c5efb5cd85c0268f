// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file models species: their variables, behaviours and action tables.
package model

import (
	"github.com/vk/agentgrid/internal/executor"
	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/types"
)

// Variable is a declared attribute of a species, a global of the model or
// a variable of an experiment.
type Variable struct {
	Name string
	Type *types.Type
	// Init computes the initial value in the scope of the new agent. Nil
	// means the type default.
	Init expr.Expression
	// Update, when set, is re-evaluated at the start of every step.
	Update expr.Expression
	Const  bool
}

// Species is a compiled species.
type Species struct {
	Name   string
	Parent *Species
	Type   *types.Type
	// Vars lists inherited variables first, then the species' own.
	Vars     []*Variable
	Reflexes []*executor.Reflex
	Init     []executor.Statement
	// Actions is the action table, indexed by executor.Action.Slot.
	Actions []*executor.Action

	varIndex    map[string]int
	actionIndex map[string]int
}

// NewSpecies starts a species extending parent, which may be nil. The new
// species inherits the variables, reflexes and action table of parent.
func NewSpecies(name string, parent *Species, t *types.Type) *Species {
	sp := &Species{
		Name:        name,
		Parent:      parent,
		Type:        t,
		varIndex:    make(map[string]int),
		actionIndex: make(map[string]int),
	}
	if parent != nil {
		sp.Vars = append(sp.Vars, parent.Vars...)
		sp.Reflexes = append(sp.Reflexes, parent.Reflexes...)
		sp.Actions = append(sp.Actions, parent.Actions...)
		for k, v := range parent.varIndex {
			sp.varIndex[k] = v
		}
		for k, v := range parent.actionIndex {
			sp.actionIndex[k] = v
		}
	}
	return sp
}

// AddVar declares a variable. A variable redeclared by a subspecies
// replaces the inherited one in place.
func (sp *Species) AddVar(v *Variable) {
	if i, ok := sp.varIndex[v.Name]; ok {
		sp.Vars[i] = v
		return
	}
	sp.varIndex[v.Name] = len(sp.Vars)
	sp.Vars = append(sp.Vars, v)
}

// Var returns the declared variable called name.
func (sp *Species) Var(name string) (*Variable, bool) {
	i, ok := sp.varIndex[name]
	if !ok {
		return nil, false
	}
	return sp.Vars[i], true
}

// AddReflex appends a reflex. A reflex named like an inherited one
// replaces it in place.
func (sp *Species) AddReflex(r *executor.Reflex) {
	for i, old := range sp.Reflexes {
		if r.Name != "" && old.Name == r.Name {
			sp.Reflexes[i] = r
			return
		}
	}
	sp.Reflexes = append(sp.Reflexes, r)
}

// DeclareAction reserves the slot of an action. An action already
// inherited keeps its slot and is overridden. The returned slot is stored
// in a.Slot.
func (sp *Species) DeclareAction(a *executor.Action) int {
	slot, ok := sp.actionIndex[a.Name]
	if !ok {
		slot = len(sp.Actions)
		sp.actionIndex[a.Name] = slot
		sp.Actions = append(sp.Actions, nil)
	}
	a.Slot = slot
	a.Species = sp.Name
	sp.Actions[slot] = a
	return slot
}

// Action returns the action bound to name, inherited or own.
func (sp *Species) Action(name string) (*executor.Action, bool) {
	slot, ok := sp.actionIndex[name]
	if !ok {
		return nil, false
	}
	return sp.Actions[slot], true
}

// ActionAt returns the action in slot, or nil.
func (sp *Species) ActionAt(slot int) *executor.Action {
	if slot < 0 || slot >= len(sp.Actions) {
		return nil
	}
	return sp.Actions[slot]
}

// InitBody returns the init block of the nearest species declaring one.
func (sp *Species) InitBody() []executor.Statement {
	for s := sp; s != nil; s = s.Parent {
		if s.Init != nil {
			return s.Init
		}
	}
	return nil
}

// IsKindOf reports whether sp is other or one of its descendants.
func (sp *Species) IsKindOf(other *Species) bool {
	for s := sp; s != nil; s = s.Parent {
		if s == other {
			return true
		}
	}
	return false
}

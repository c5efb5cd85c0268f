package compiler

import (
	"github.com/vk/agentgrid/internal/executor"
	"github.com/vk/agentgrid/internal/model"
	"github.com/vk/agentgrid/internal/types"
)

// builtinGlobals are read-only globals every simulation provides.
var builtinGlobals = map[string]*types.Type{
	"cycle": types.Int,
	"seed":  types.Int,
}

// env is the static context a description is compiled in.
type env struct {
	// species is the species of the acting agent; nil in experiment code
	// and when the agent's species cannot be known statically.
	species    *model.Species
	experiment *model.ExperimentPlan
	action     *executor.Action
	frames     []map[string]*types.Type
	loops      int
}

func newEnv(sp *model.Species, plan *model.ExperimentPlan) *env {
	return &env{species: sp, experiment: plan, frames: []map[string]*types.Type{{}}}
}

func (e *env) push() { e.frames = append(e.frames, map[string]*types.Type{}) }
func (e *env) pop()  { e.frames = e.frames[:len(e.frames)-1] }

func (e *env) declare(name string, t *types.Type) {
	e.frames[len(e.frames)-1][name] = t
}

func (e *env) temp(name string) (*types.Type, bool) {
	for i := len(e.frames) - 1; i >= 0; i-- {
		if t, ok := e.frames[i][name]; ok {
			return t, true
		}
	}
	return nil, false
}

// dynamic reports whether attributes cannot be checked statically.
func (e *env) dynamic() bool { return e.species == nil && e.experiment == nil }

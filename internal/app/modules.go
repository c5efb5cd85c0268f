package app

import (
	"io"

	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/status"
	"github.com/vk/agentgrid/modules/arith"
	"github.com/vk/agentgrid/modules/compare"
	"github.com/vk/agentgrid/modules/containers"
	"github.com/vk/agentgrid/modules/env_vars"
	"github.com/vk/agentgrid/modules/http_client"
	"github.com/vk/agentgrid/modules/logic"
	"github.com/vk/agentgrid/modules/print"
	"github.com/vk/agentgrid/modules/socketio"
	"github.com/vk/agentgrid/modules/stochastic"
	"github.com/vk/agentgrid/modules/stringops"
)

// coreModules is the definitive list of all modules that are compiled into
// the agentgrid binary. write prints to out; emit publishes through
// emitter, which may be nil.
func coreModules(out io.Writer, emitter status.Emitter) []registry.Module {
	return []registry.Module{
		&arith.Module{},
		&compare.Module{},
		&logic.Module{},
		&containers.Module{},
		&stringops.Module{},
		&stochastic.Module{},
		&env_vars.Module{},
		&print.Module{Out: out},
		&http_client.Module{},
		&socketio.Module{Emitter: emitter},
	}
}

// Operators loads the core modules into a registry, for listing.
func Operators() *registry.Registry {
	return registry.Load(coreModules(io.Discard, nil)...)
}

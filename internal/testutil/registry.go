package testutil

import (
	"io"

	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/modules/arith"
	"github.com/vk/agentgrid/modules/compare"
	"github.com/vk/agentgrid/modules/containers"
	"github.com/vk/agentgrid/modules/logic"
	"github.com/vk/agentgrid/modules/print"
	"github.com/vk/agentgrid/modules/stochastic"
	"github.com/vk/agentgrid/modules/stringops"
)

// Registry returns a frozen registry holding the core operator modules plus
// any extra ones. Output of the `write` primitive goes to out.
func Registry(out io.Writer, extra ...registry.Module) *registry.Registry {
	if out == nil {
		out = io.Discard
	}
	mods := []registry.Module{
		&arith.Module{},
		&compare.Module{},
		&logic.Module{},
		&containers.Module{},
		&stringops.Module{},
		&stochastic.Module{},
		&print.Module{Out: out},
	}
	return registry.Load(append(mods, extra...)...)
}

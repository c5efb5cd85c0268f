// Package print registers the write primitive.
package print

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package. Out
// defaults to standard output.
type Module struct {
	Out io.Writer

	mu sync.Mutex
}

// Write prints the message argument on its own line. Units write
// concurrently, so lines are serialized.
func (m *Module) Write(s *scope.Scope, args map[string]cty.Value) (cty.Value, error) {
	msg := types.Format(args["message"])
	s.Logger().Debug("Printing message.", "scope", s.Name())

	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	if _, err := fmt.Fprintln(out, msg); err != nil {
		return cty.NilVal, scope.Warningf("write: %v", err)
	}
	return cty.NullVal(cty.DynamicPseudoType), nil
}

// Register registers the primitive with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterPrimitive(&registry.Primitive{
		Name:       "write",
		Args:       []registry.PrimitiveArg{{Name: "message", Type: types.Unknown}},
		ReturnType: types.Unknown,
		Fn:         m.Write,
	})
}

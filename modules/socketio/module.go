// Package socketio registers the emit primitive, which publishes custom
// events from a model over the run's socket.io status connection.
package socketio

import (
	"encoding/json"

	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/status"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Emitter sends the events. Without one, emit only logs.
	Emitter status.Emitter
}

// Emit sends event with a payload naming the emitting scope, the current
// cycle and the optional data argument.
func (m *Module) Emit(s *scope.Scope, args map[string]cty.Value) (cty.Value, error) {
	event := args["event"].AsString()
	payload := map[string]any{"scope": s.Name()}
	if s.Globals() != nil {
		if cycle, err := s.Global("cycle"); err == nil && !cycle.IsNull() {
			n, _ := cycle.AsBigFloat().Int64()
			payload["cycle"] = n
		}
	}
	if data, ok := args["data"]; ok {
		payload["data"] = encode(data)
	}

	logger := s.Logger().With("event", event)
	if m.Emitter == nil {
		logger.Debug("No socket.io connection, event dropped.")
		return cty.False, nil
	}
	if err := m.Emitter.Emit(event, payload); err != nil {
		return cty.False, scope.Warningf("emit %s: %v", event, err)
	}
	logger.Debug("Event emitted.")
	return cty.True, nil
}

// encode renders a value as JSON. Values JSON cannot carry, such as agents,
// are sent in their printed form.
func encode(v cty.Value) any {
	if v.IsNull() {
		return nil
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return types.Format(v)
	}
	return json.RawMessage(raw)
}

// Register registers the primitive with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterPrimitive(&registry.Primitive{
		Name: "emit",
		Args: []registry.PrimitiveArg{
			{Name: "event", Type: types.String},
			{Name: "data", Type: types.Unknown, Optional: true},
		},
		ReturnType: types.Bool,
		Fn:         m.Emit,
	})
}

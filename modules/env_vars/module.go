// Package env_vars registers operators reading the process environment.
// The environment can change between runs, so they are never folded.
package env_vars

import (
	"os"
	"strings"

	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Env returns the value of one environment variable, or nil when unset.
func Env(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	v, ok := os.LookupEnv(args[0].AsString())
	if !ok {
		return cty.NullVal(cty.String), nil
	}
	return cty.StringVal(v), nil
}

// Environment returns every environment variable as a map.
func Environment(_ *scope.Scope, _ []cty.Value) (cty.Value, error) {
	envMap := make(map[string]cty.Value)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 {
			envMap[pair[0]] = cty.StringVal(pair[1])
		}
	}
	return cty.ObjectVal(envMap), nil
}

// Register registers the operators with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterOperator(&registry.OperatorProto{Name: "env", Signature: types.Signature{types.String}, ReturnType: types.String, Fn: Env, Volatile: true})
	r.RegisterOperator(&registry.OperatorProto{Name: "environment", Signature: types.Signature{}, ReturnType: types.Map, Fn: Environment, Volatile: true})
}

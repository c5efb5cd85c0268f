// Package compare registers the comparison operators.
package compare

import (
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

func ordered(f func(a, b cty.Value) (cty.Value, error)) func(*scope.Scope, []cty.Value) (cty.Value, error) {
	return func(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
		if args[0].IsNull() || args[1].IsNull() {
			return cty.False, nil
		}
		return f(args[0], args[1])
	}
}

func stringOrder(less bool, orEqual bool) func(*scope.Scope, []cty.Value) (cty.Value, error) {
	return func(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
		a, b := args[0].AsString(), args[1].AsString()
		if orEqual && a == b {
			return cty.True, nil
		}
		if less {
			return cty.BoolVal(a < b), nil
		}
		return cty.BoolVal(a > b), nil
	}
}

// Equal compares any two values. Numbers compare by value regardless of
// their static type.
func Equal(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	a, b := args[0], args[1]
	if a.IsNull() || b.IsNull() {
		return cty.BoolVal(a.IsNull() && b.IsNull()), nil
	}
	if !a.Type().Equals(b.Type()) {
		return cty.False, nil
	}
	return stdlib.Equal(a, b)
}

// NotEqual negates Equal.
func NotEqual(s *scope.Scope, args []cty.Value) (cty.Value, error) {
	eq, err := Equal(s, args)
	if err != nil {
		return cty.NilVal, err
	}
	return eq.Not(), nil
}

// Register registers the operators with the registry.
func (m *Module) Register(r *registry.Registry) {
	num := types.Signature{types.Float, types.Float}
	str := types.Signature{types.String, types.String}

	r.RegisterOperator(&registry.OperatorProto{Name: "<", Signature: num, ReturnType: types.Bool, Fn: ordered(stdlib.LessThan)})
	r.RegisterOperator(&registry.OperatorProto{Name: "<=", Signature: num, ReturnType: types.Bool, Fn: ordered(stdlib.LessThanOrEqualTo)})
	r.RegisterOperator(&registry.OperatorProto{Name: ">", Signature: num, ReturnType: types.Bool, Fn: ordered(stdlib.GreaterThan)})
	r.RegisterOperator(&registry.OperatorProto{Name: ">=", Signature: num, ReturnType: types.Bool, Fn: ordered(stdlib.GreaterThanOrEqualTo)})
	r.RegisterOperator(&registry.OperatorProto{Name: "<", Signature: str, ReturnType: types.Bool, Fn: stringOrder(true, false)})
	r.RegisterOperator(&registry.OperatorProto{Name: "<=", Signature: str, ReturnType: types.Bool, Fn: stringOrder(true, true)})
	r.RegisterOperator(&registry.OperatorProto{Name: ">", Signature: str, ReturnType: types.Bool, Fn: stringOrder(false, false)})
	r.RegisterOperator(&registry.OperatorProto{Name: ">=", Signature: str, ReturnType: types.Bool, Fn: stringOrder(false, true)})

	any2 := types.Signature{types.Unknown, types.Unknown}
	r.RegisterOperator(&registry.OperatorProto{Name: "=", Signature: any2, ReturnType: types.Bool, Fn: Equal})
	r.RegisterOperator(&registry.OperatorProto{Name: "!=", Signature: any2, ReturnType: types.Bool, Fn: NotEqual})
}

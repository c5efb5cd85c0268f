// Package logic registers the boolean operators. and/or evaluate their
// right operand only when the left one does not decide the result.
package logic

import (
	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

func truth(s *scope.Scope, e expr.Expression) (bool, error) {
	v, err := e.Value(s)
	if err != nil {
		return false, err
	}
	if v.IsNull() {
		return false, nil
	}
	b, err := types.Cast(v, types.Bool)
	if err != nil {
		return false, err
	}
	return b.True(), nil
}

// And short-circuits on a false left operand.
func And(s *scope.Scope, args []expr.Expression) (cty.Value, error) {
	left, err := truth(s, args[0])
	if err != nil || !left {
		return cty.False, err
	}
	right, err := truth(s, args[1])
	return cty.BoolVal(right), err
}

// Or short-circuits on a true left operand.
func Or(s *scope.Scope, args []expr.Expression) (cty.Value, error) {
	left, err := truth(s, args[0])
	if err != nil || left {
		return cty.BoolVal(left), err
	}
	right, err := truth(s, args[1])
	return cty.BoolVal(right), err
}

// Not negates a boolean.
func Not(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	if args[0].IsNull() {
		return cty.True, nil
	}
	return stdlib.Not(args[0])
}

// Register registers the operators with the registry.
func (m *Module) Register(r *registry.Registry) {
	pair := types.Signature{types.Bool, types.Bool}
	r.RegisterOperator(&registry.OperatorProto{Name: "and", Signature: pair, ReturnType: types.Bool, Lazy: And})
	r.RegisterOperator(&registry.OperatorProto{Name: "or", Signature: pair, ReturnType: types.Bool, Lazy: Or})
	r.RegisterOperator(&registry.OperatorProto{Name: "!", Signature: types.Signature{types.Bool}, ReturnType: types.Bool, Fn: Not})
	r.RegisterOperator(&registry.OperatorProto{Name: "not", Signature: types.Signature{types.Bool}, ReturnType: types.Bool, Fn: Not})
}

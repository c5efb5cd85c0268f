// Package stringops registers the string operators.
package stringops

import (
	"strings"

	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Concat joins the printed forms of both operands.
func Concat(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	return cty.StringVal(types.Format(args[0]) + types.Format(args[1])), nil
}

// Contains reports whether the first string contains the second.
func Contains(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	return cty.BoolVal(strings.Contains(args[0].AsString(), args[1].AsString())), nil
}

// In reports whether the first string occurs in the second.
func In(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	return cty.BoolVal(strings.Contains(args[1].AsString(), args[0].AsString())), nil
}

func unary(f func(cty.Value) (cty.Value, error)) func(*scope.Scope, []cty.Value) (cty.Value, error) {
	return func(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
		return f(args[0])
	}
}

// Register registers the operators with the registry.
func (m *Module) Register(r *registry.Registry) {
	str := types.Signature{types.String}
	r.RegisterOperator(&registry.OperatorProto{Name: "+", Signature: types.Signature{types.String, types.String}, ReturnType: types.String, Fn: Concat})
	r.RegisterOperator(&registry.OperatorProto{Name: "+", Signature: types.Signature{types.String, types.Unknown}, ReturnType: types.String, Fn: Concat})
	r.RegisterOperator(&registry.OperatorProto{Name: "upper_case", Signature: str, ReturnType: types.String, Fn: unary(stdlib.Upper)})
	r.RegisterOperator(&registry.OperatorProto{Name: "lower_case", Signature: str, ReturnType: types.String, Fn: unary(stdlib.Lower)})
	r.RegisterOperator(&registry.OperatorProto{Name: "length", Signature: str, ReturnType: types.Int, Fn: unary(stdlib.Strlen)})
	r.RegisterOperator(&registry.OperatorProto{Name: "reverse", Signature: str, ReturnType: types.String, Fn: unary(stdlib.Reverse)})
	r.RegisterOperator(&registry.OperatorProto{Name: "contains", Signature: types.Signature{types.String, types.String}, ReturnType: types.Bool, Fn: Contains})
	r.RegisterOperator(&registry.OperatorProto{Name: "in", Signature: types.Signature{types.String, types.String}, ReturnType: types.Bool, Fn: In})
	r.RegisterOperator(&registry.OperatorProto{Name: "string", Signature: types.Signature{types.Unknown}, ReturnType: types.String, Fn: func(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
		return types.Cast(args[0], types.String)
	}})
}

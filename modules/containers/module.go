// Package containers registers the list and map operators.
package containers

import (
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Length counts the elements of a container. nil has no elements.
func Length(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	if args[0].IsNull() {
		return cty.NumberIntVal(0), nil
	}
	return stdlib.Length(args[0])
}

// Empty reports whether a container has no elements.
func Empty(s *scope.Scope, args []cty.Value) (cty.Value, error) {
	n, err := Length(s, args)
	if err != nil {
		return cty.NilVal, err
	}
	return cty.BoolVal(n.AsBigFloat().Sign() == 0), nil
}

// Concat appends the elements of the second list to the first.
func Concat(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	out := append(types.Elements(args[0]), types.Elements(args[1])...)
	return types.ListVal(out), nil
}

// Contains reports whether a list holds a value equal to the second operand,
// or a map holds it as a value.
func Contains(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	return contains(args[0], args[1]), nil
}

// In is Contains with its operands swapped.
func In(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	return contains(args[1], args[0]), nil
}

func contains(container, v cty.Value) cty.Value {
	if container.IsNull() {
		return cty.False
	}
	var elems []cty.Value
	ty := container.Type()
	if ty.IsObjectType() || ty.IsMapType() {
		for _, e := range container.AsValueMap() {
			elems = append(elems, e)
		}
	} else {
		elems = types.Elements(container)
	}
	for _, e := range elems {
		if e.IsNull() || v.IsNull() {
			if e.IsNull() && v.IsNull() {
				return cty.True
			}
			continue
		}
		if e.Type().Equals(v.Type()) && e.Equals(v).True() {
			return cty.True
		}
	}
	return cty.False
}

// At returns the element at a zero-based index.
func At(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	elems := types.Elements(args[0])
	i, _ := args[1].AsBigFloat().Int64()
	if i < 0 || i >= int64(len(elems)) {
		return cty.NilVal, scope.Fatalf("index %d out of bounds for a list of %d elements", i, len(elems))
	}
	return elems[i], nil
}

// First returns the first element, or nil for an empty list.
func First(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	elems := types.Elements(args[0])
	if len(elems) == 0 {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	return elems[0], nil
}

// Last returns the last element, or nil for an empty list.
func Last(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	elems := types.Elements(args[0])
	if len(elems) == 0 {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	return elems[len(elems)-1], nil
}

// Sum adds the elements of a numeric list.
func Sum(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	total := cty.NumberIntVal(0)
	for _, e := range types.Elements(args[0]) {
		var err error
		if total, err = stdlib.Add(total, e); err != nil {
			return cty.NilVal, err
		}
	}
	return total, nil
}

// Reverse returns the list in reverse order.
func Reverse(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	elems := types.Elements(args[0])
	out := make([]cty.Value, len(elems))
	for i, e := range elems {
		out[len(elems)-1-i] = e
	}
	return types.ListVal(out), nil
}

// Range lists the integers from the first operand to the second, inclusive.
func Range(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	from, _ := args[0].AsBigFloat().Int64()
	to, _ := args[1].AsBigFloat().Int64()
	if to < from {
		return cty.EmptyTupleVal, nil
	}
	out := make([]cty.Value, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, cty.NumberIntVal(i))
	}
	return types.ListVal(out), nil
}

func content(args types.Signature) *types.Type {
	if len(args) > 0 && args[0].Content() != nil {
		return args[0].Content()
	}
	return types.Unknown
}

func sumType(args types.Signature) *types.Type {
	if c := content(args); c.IsNumeric() {
		return c
	}
	return types.Float
}

// Register registers the operators with the registry.
func (m *Module) Register(r *registry.Registry) {
	list := types.Signature{types.List}
	r.RegisterOperator(&registry.OperatorProto{Name: "length", Signature: types.Signature{types.Container}, ReturnType: types.Int, Fn: Length})
	r.RegisterOperator(&registry.OperatorProto{Name: "empty", Signature: types.Signature{types.Container}, ReturnType: types.Bool, Fn: Empty})
	r.RegisterOperator(&registry.OperatorProto{Name: "+", Signature: types.Signature{types.List, types.List}, ReturnType: types.List, Fn: Concat})
	r.RegisterOperator(&registry.OperatorProto{Name: "contains", Signature: types.Signature{types.Container, types.Unknown}, ReturnType: types.Bool, Fn: Contains})
	r.RegisterOperator(&registry.OperatorProto{Name: "in", Signature: types.Signature{types.Unknown, types.Container}, ReturnType: types.Bool, Fn: In})
	r.RegisterOperator(&registry.OperatorProto{Name: "at", Signature: types.Signature{types.List, types.Int}, ReturnFunc: content, Fn: At})
	r.RegisterOperator(&registry.OperatorProto{Name: "first", Signature: list, ReturnFunc: content, Fn: First})
	r.RegisterOperator(&registry.OperatorProto{Name: "last", Signature: list, ReturnFunc: content, Fn: Last})
	r.RegisterOperator(&registry.OperatorProto{Name: "sum", Signature: list, ReturnFunc: sumType, Fn: Sum})
	r.RegisterOperator(&registry.OperatorProto{Name: "reverse", Signature: list, ReturnType: types.List, Fn: Reverse})
	r.RegisterOperator(&registry.OperatorProto{Name: "range", Signature: types.Signature{types.Int, types.Int}, ReturnType: types.List, Fn: Range})
}

// Package arith registers the arithmetic operators.
package arith

import (
	"math"

	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

type binaryFn func(a, b cty.Value) (cty.Value, error)
type unaryFn func(a cty.Value) (cty.Value, error)

func binary(f binaryFn) expr.Evaluator {
	return func(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
		return f(args[0], args[1])
	}
}

func unary(f unaryFn) expr.Evaluator {
	return func(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
		return f(args[0])
	}
}

func isZero(v cty.Value) bool {
	return !v.IsNull() && v.AsBigFloat().Sign() == 0
}

// Divide always produces a float.
func Divide(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	if isZero(args[1]) {
		return cty.NilVal, scope.Fatalf("division by zero")
	}
	return stdlib.Divide(args[0], args[1])
}

// IntDivide truncates the quotient toward zero.
func IntDivide(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	if isZero(args[1]) {
		return cty.NilVal, scope.Fatalf("division by zero")
	}
	q, err := stdlib.Divide(args[0], args[1])
	if err != nil {
		return cty.NilVal, err
	}
	return stdlib.Int(q)
}

// Modulo is the remainder of the integer division.
func Modulo(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	if isZero(args[1]) {
		return cty.NilVal, scope.Fatalf("division by zero")
	}
	return stdlib.Modulo(args[0], args[1])
}

// Round rounds half away from zero into an int.
func Round(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	f, _ := args[0].AsBigFloat().Float64()
	return cty.NumberIntVal(int64(math.Round(f))), nil
}

// Sqrt is the square root of a non-negative number.
func Sqrt(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	f, _ := args[0].AsBigFloat().Float64()
	if f < 0 {
		return cty.NilVal, scope.Warningf("square root of negative number %g", f)
	}
	return cty.NumberFloatVal(math.Sqrt(f)), nil
}

// Extremum applies stdlib.Max or stdlib.Min to the elements of a list.
func Extremum(f func(...cty.Value) (cty.Value, error)) expr.Evaluator {
	return func(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
		elems := types.Elements(args[0])
		if len(elems) == 0 {
			return cty.NullVal(cty.Number), nil
		}
		return f(elems...)
	}
}

// contentOr returns the element type of a single list argument, or def.
func contentOr(def *types.Type) func(types.Signature) *types.Type {
	return func(args types.Signature) *types.Type {
		if len(args) == 1 && args[0].Content() != nil {
			return args[0].Content()
		}
		return def
	}
}

func cast(t *types.Type) expr.Evaluator {
	return func(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
		return types.Cast(args[0], t)
	}
}

// Register registers the operators with the registry.
func (m *Module) Register(r *registry.Registry) {
	numeric := []struct {
		name string
		fn   binaryFn
	}{
		{"+", stdlib.Add},
		{"-", stdlib.Subtract},
		{"*", stdlib.Multiply},
	}
	for _, op := range numeric {
		r.RegisterOperator(&registry.OperatorProto{Name: op.name, Signature: types.Signature{types.Int, types.Int}, ReturnType: types.Int, Fn: binary(op.fn)})
		r.RegisterOperator(&registry.OperatorProto{Name: op.name, Signature: types.Signature{types.Float, types.Float}, ReturnType: types.Float, Fn: binary(op.fn)})
		r.RegisterOperator(&registry.OperatorProto{Name: op.name, Signature: types.Signature{types.Int, types.Float}, ReturnType: types.Float, Fn: binary(op.fn)})
		r.RegisterOperator(&registry.OperatorProto{Name: op.name, Signature: types.Signature{types.Float, types.Int}, ReturnType: types.Float, Fn: binary(op.fn)})
	}

	r.RegisterOperator(&registry.OperatorProto{Name: "/", Signature: types.Signature{types.Float, types.Float}, ReturnType: types.Float, Fn: Divide})
	r.RegisterOperator(&registry.OperatorProto{Name: "div", Signature: types.Signature{types.Int, types.Int}, ReturnType: types.Int, Fn: IntDivide})
	r.RegisterOperator(&registry.OperatorProto{Name: "mod", Signature: types.Signature{types.Int, types.Int}, ReturnType: types.Int, Fn: Modulo})
	r.RegisterOperator(&registry.OperatorProto{Name: "^", Signature: types.Signature{types.Float, types.Float}, ReturnType: types.Float, Fn: binary(stdlib.Pow)})

	r.RegisterOperator(&registry.OperatorProto{Name: "-", Signature: types.Signature{types.Int}, ReturnType: types.Int, Fn: unary(stdlib.Negate)})
	r.RegisterOperator(&registry.OperatorProto{Name: "-", Signature: types.Signature{types.Float}, ReturnType: types.Float, Fn: unary(stdlib.Negate)})
	r.RegisterOperator(&registry.OperatorProto{Name: "abs", Signature: types.Signature{types.Int}, ReturnType: types.Int, Fn: unary(stdlib.Absolute)})
	r.RegisterOperator(&registry.OperatorProto{Name: "abs", Signature: types.Signature{types.Float}, ReturnType: types.Float, Fn: unary(stdlib.Absolute)})
	r.RegisterOperator(&registry.OperatorProto{Name: "floor", Signature: types.Signature{types.Float}, ReturnType: types.Float, Fn: unary(stdlib.Floor)})
	r.RegisterOperator(&registry.OperatorProto{Name: "ceil", Signature: types.Signature{types.Float}, ReturnType: types.Float, Fn: unary(stdlib.Ceil)})
	r.RegisterOperator(&registry.OperatorProto{Name: "round", Signature: types.Signature{types.Float}, ReturnType: types.Int, Fn: Round})
	r.RegisterOperator(&registry.OperatorProto{Name: "sqrt", Signature: types.Signature{types.Float}, ReturnType: types.Float, Fn: Sqrt})

	r.RegisterOperator(&registry.OperatorProto{Name: "max", Signature: types.Signature{types.Int, types.Int}, ReturnType: types.Int, Fn: binary(func(a, b cty.Value) (cty.Value, error) { return stdlib.Max(a, b) })})
	r.RegisterOperator(&registry.OperatorProto{Name: "max", Signature: types.Signature{types.Float, types.Float}, ReturnType: types.Float, Fn: binary(func(a, b cty.Value) (cty.Value, error) { return stdlib.Max(a, b) })})
	r.RegisterOperator(&registry.OperatorProto{Name: "max", Signature: types.Signature{types.List}, ReturnFunc: contentOr(types.Float), Fn: Extremum(stdlib.Max)})
	r.RegisterOperator(&registry.OperatorProto{Name: "min", Signature: types.Signature{types.Int, types.Int}, ReturnType: types.Int, Fn: binary(func(a, b cty.Value) (cty.Value, error) { return stdlib.Min(a, b) })})
	r.RegisterOperator(&registry.OperatorProto{Name: "min", Signature: types.Signature{types.Float, types.Float}, ReturnType: types.Float, Fn: binary(func(a, b cty.Value) (cty.Value, error) { return stdlib.Min(a, b) })})
	r.RegisterOperator(&registry.OperatorProto{Name: "min", Signature: types.Signature{types.List}, ReturnFunc: contentOr(types.Float), Fn: Extremum(stdlib.Min)})

	r.RegisterOperator(&registry.OperatorProto{Name: "int", Signature: types.Signature{types.Unknown}, ReturnType: types.Int, Fn: cast(types.Int)})
	r.RegisterOperator(&registry.OperatorProto{Name: "float", Signature: types.Signature{types.Unknown}, ReturnType: types.Float, Fn: cast(types.Float)})
}

// Package stochastic registers the operators drawing from the random
// generator of the unit they run in. None of them is ever folded.
package stochastic

import (
	"github.com/vk/agentgrid/internal/random"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

func generator(s *scope.Scope) (*random.Generator, error) {
	g := s.Random()
	if g == nil {
		return nil, scope.Fatalf("no random generator in scope %q", s.Name())
	}
	return g, nil
}

func asFloat(v cty.Value) float64 {
	f, _ := v.AsBigFloat().Float64()
	return f
}

func asInt(v cty.Value) int64 {
	i, _ := v.AsBigFloat().Int64()
	return i
}

// RndInt draws an int between 0 and max, both inclusive.
func RndInt(s *scope.Scope, args []cty.Value) (cty.Value, error) {
	return RndIntBetween(s, []cty.Value{cty.NumberIntVal(0), args[0]})
}

// RndIntBetween draws an int between min and max, both inclusive.
func RndIntBetween(s *scope.Scope, args []cty.Value) (cty.Value, error) {
	g, err := generator(s)
	if err != nil {
		return cty.NilVal, err
	}
	lo, hi := asInt(args[0]), asInt(args[1])
	if hi < lo {
		lo, hi = hi, lo
	}
	return cty.NumberIntVal(lo + g.IntN(hi-lo+1)), nil
}

// RndFloat draws a float between 0 and max.
func RndFloat(s *scope.Scope, args []cty.Value) (cty.Value, error) {
	return RndFloatBetween(s, []cty.Value{cty.NumberFloatVal(0), args[0]})
}

// RndFloatBetween draws a float between min and max.
func RndFloatBetween(s *scope.Scope, args []cty.Value) (cty.Value, error) {
	g, err := generator(s)
	if err != nil {
		return cty.NilVal, err
	}
	return cty.NumberFloatVal(g.Between(asFloat(args[0]), asFloat(args[1]))), nil
}

// Flip is true with the given probability.
func Flip(s *scope.Scope, args []cty.Value) (cty.Value, error) {
	g, err := generator(s)
	if err != nil {
		return cty.NilVal, err
	}
	return cty.BoolVal(g.Flip(asFloat(args[0]))), nil
}

// OneOf picks an element of a list uniformly. An empty list yields nil.
func OneOf(s *scope.Scope, args []cty.Value) (cty.Value, error) {
	g, err := generator(s)
	if err != nil {
		return cty.NilVal, err
	}
	elems := types.Elements(args[0])
	if len(elems) == 0 {
		return cty.NullVal(cty.DynamicPseudoType), nil
	}
	return elems[g.IntN(int64(len(elems)))], nil
}

// Shuffle returns the elements of a list in random order.
func Shuffle(s *scope.Scope, args []cty.Value) (cty.Value, error) {
	g, err := generator(s)
	if err != nil {
		return cty.NilVal, err
	}
	elems := append([]cty.Value(nil), types.Elements(args[0])...)
	for i := len(elems) - 1; i > 0; i-- {
		j := g.IntN(int64(i + 1))
		elems[i], elems[j] = elems[j], elems[i]
	}
	return types.ListVal(elems), nil
}

func content(args types.Signature) *types.Type {
	if len(args) == 1 && args[0].Content() != nil {
		return args[0].Content()
	}
	return types.Unknown
}

// Register registers the operators with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterOperator(&registry.OperatorProto{Name: "rnd", Signature: types.Signature{types.Int}, ReturnType: types.Int, Fn: RndInt, Volatile: true})
	r.RegisterOperator(&registry.OperatorProto{Name: "rnd", Signature: types.Signature{types.Float}, ReturnType: types.Float, Fn: RndFloat, Volatile: true})
	r.RegisterOperator(&registry.OperatorProto{Name: "rnd", Signature: types.Signature{types.Int, types.Int}, ReturnType: types.Int, Fn: RndIntBetween, Volatile: true})
	r.RegisterOperator(&registry.OperatorProto{Name: "rnd", Signature: types.Signature{types.Float, types.Float}, ReturnType: types.Float, Fn: RndFloatBetween, Volatile: true})
	r.RegisterOperator(&registry.OperatorProto{Name: "flip", Signature: types.Signature{types.Float}, ReturnType: types.Bool, Fn: Flip, Volatile: true})
	r.RegisterOperator(&registry.OperatorProto{Name: "one_of", Signature: types.Signature{types.List}, ReturnFunc: content, Fn: OneOf, Volatile: true})
	r.RegisterOperator(&registry.OperatorProto{Name: "shuffle", Signature: types.Signature{types.List}, ReturnType: types.List, Fn: Shuffle, Volatile: true})
}

package compiler

import (
	"fmt"
	"io"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/testutil"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

func newRegistry() *registry.Registry {
	return testutil.Registry(io.Discard)
}

func num(v int64) expr.Expression { return Constant(cty.NumberIntVal(v), fmt.Sprint(v)) }

func frac(v float64) expr.Expression { return Constant(cty.NumberFloatVal(v), fmt.Sprint(v)) }

func local(name string, t *types.Type) expr.Expression { return expr.NewVar(name, expr.Temp, t) }

func summaries(diags hcl.Diagnostics) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Summary)
	}
	return out
}

func TestResolver_ConstantArgumentsAreFolded(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := NewResolver(newRegistry(), types.NewManager(), true)

	node, diags := r.Resolve(ctx, "+", []expr.Expression{num(2), num(3)}, "(2 + 3)", hcl.Range{})
	require.Empty(t, diags)
	c, ok := node.(*expr.Const)
	require.True(t, ok, "expected a constant, got %T", node)
	assert.Equal(t, types.Int, c.Type())
	assert.Equal(t, "(2 + 3)", c.Text())
	v, err := c.Value(nil)
	require.NoError(t, err)
	assert.True(t, v.Equals(cty.NumberIntVal(5)).True())

	node, diags = r.Resolve(ctx, "+", []expr.Expression{local("x", types.Int), num(3)}, "(x + 3)", hcl.Range{})
	require.Empty(t, diags)
	call, ok := node.(*expr.Call)
	require.True(t, ok, "expected a call, got %T", node)
	assert.Equal(t, types.Int, call.Type())
}

func TestResolver_EveryOverloadResolvesToItself(t *testing.T) {
	ctx, _ := testutil.Context(t)
	reg := newRegistry()
	r := NewResolver(reg, types.NewManager(), false)

	for _, name := range reg.OperatorNames() {
		for _, proto := range reg.Operators(name) {
			args := make([]expr.Expression, len(proto.Signature))
			for i, p := range proto.Signature {
				args[i] = local("a", p)
			}
			node, diags := r.Resolve(ctx, name, args, proto.String(), hcl.Range{})
			require.Empty(t, diags, proto.String())
			call, ok := node.(*expr.Call)
			require.True(t, ok, proto.String())
			assert.Equal(t, proto.ResultType(proto.Signature), call.Type(), proto.String())
			for i, a := range call.Args() {
				assert.Same(t, args[i], a, "%s: argument %d was converted", proto, i)
			}
		}
	}
}

func TestResolver_WideningCastIsSilent(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := NewResolver(newRegistry(), types.NewManager(), true)

	node, diags := r.Resolve(ctx, "/", []expr.Expression{local("a", types.Int), local("b", types.Int)}, "(a / b)", hcl.Range{})
	require.Empty(t, diags)
	call := node.(*expr.Call)
	assert.Equal(t, types.Float, call.Type())
	for _, a := range call.Args() {
		cast, ok := a.(*expr.Cast)
		require.True(t, ok)
		assert.Equal(t, types.Float, cast.Type())
	}

	node, diags = r.Resolve(ctx, "/", []expr.Expression{num(7), num(2)}, "(7 / 2)", hcl.Range{})
	require.Empty(t, diags)
	v, err := node.Value(nil)
	require.NoError(t, err)
	assert.True(t, v.Equals(cty.NumberFloatVal(3.5)).True())
}

func TestResolver_NarrowingCastWarns(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := NewResolver(newRegistry(), types.NewManager(), true)

	node, diags := r.Resolve(ctx, "div", []expr.Expression{frac(7.5), frac(2.5)}, "(7.5 div 2.5)", hcl.Range{})
	require.False(t, diags.HasErrors())
	assert.Equal(t, []string{LossOfPrecision, LossOfPrecision}, summaries(diags))
	assert.Equal(t, types.Int, node.Type())
	v, err := node.Value(nil)
	require.NoError(t, err)
	assert.True(t, v.Equals(cty.NumberIntVal(3)).True(), "got %s", v.GoString())
}

func TestResolver_PacksArgumentsForListOverloads(t *testing.T) {
	ctx, _ := testutil.Context(t)
	reg := newRegistry()

	node, diags := NewResolver(reg, types.NewManager(), true).Resolve(ctx, "max", []expr.Expression{num(1), num(7), num(3)}, "max(1, 7, 3)", hcl.Range{})
	require.Empty(t, diags)
	assert.Equal(t, types.Int, node.Type())
	v, err := node.Value(nil)
	require.NoError(t, err)
	assert.True(t, v.Equals(cty.NumberIntVal(7)).True())

	node, diags = NewResolver(reg, types.NewManager(), false).Resolve(ctx, "max", []expr.Expression{num(1), num(7), num(3)}, "max(1, 7, 3)", hcl.Range{})
	require.Empty(t, diags)
	call := node.(*expr.Call)
	require.Len(t, call.Args(), 1)
	list, ok := call.Args()[0].(*expr.List)
	require.True(t, ok)
	assert.Len(t, list.Elements(), 3)
}

func TestResolver_TiesGoToFirstDeclared(t *testing.T) {
	ctx, _ := testutil.Context(t)
	reg := registry.New()
	reg.RegisterOperator(&registry.OperatorProto{Name: "f", Signature: types.Signature{types.Int, types.Float}, ReturnType: types.String})
	reg.RegisterOperator(&registry.OperatorProto{Name: "f", Signature: types.Signature{types.Float, types.Int}, ReturnType: types.Bool})
	reg.Freeze()

	node, diags := NewResolver(reg, types.NewManager(), false).Resolve(ctx, "f", []expr.Expression{local("a", types.Int), local("b", types.Int)}, "f(a, b)", hcl.Range{})
	require.Empty(t, diags)
	assert.Equal(t, types.String, node.Type())
}

func TestResolver_ElementTypesAreChecked(t *testing.T) {
	ctx, _ := testutil.Context(t)
	m := types.NewManager()
	reg := registry.New()
	reg.RegisterOperator(&registry.OperatorProto{Name: "f", Signature: types.Signature{m.ListOf(types.Int)}, ReturnType: types.Int})
	reg.Freeze()
	r := NewResolver(reg, m, false)

	_, diags := r.Resolve(ctx, "f", []expr.Expression{local("xs", m.ListOf(types.String))}, "f(xs)", hcl.Range{})
	assert.Equal(t, []string{"No matching operator"}, summaries(diags))

	node, diags := r.Resolve(ctx, "f", []expr.Expression{local("xs", m.ListOf(types.Int))}, "f(xs)", hcl.Range{})
	require.Empty(t, diags)
	assert.Equal(t, types.Int, node.Type())
}

func TestResolver_Errors(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := NewResolver(newRegistry(), types.NewManager(), true)

	_, diags := r.Resolve(ctx, "nope", nil, "nope()", hcl.Range{})
	assert.Equal(t, []string{"Unknown operator"}, summaries(diags))

	_, diags = r.Resolve(ctx, "length", []expr.Expression{local("b", types.Bool)}, "length(b)", hcl.Range{})
	require.Equal(t, []string{"No matching operator"}, summaries(diags))
	assert.Contains(t, diags[0].Detail, "length(container)")
	assert.Contains(t, diags[0].Detail, "length(string)")

	_, diags = r.Resolve(ctx, "/", []expr.Expression{num(1), num(0)}, "(1 / 0)", hcl.Range{})
	assert.Equal(t, []string{"Invalid constant expression"}, summaries(diags))
}

func TestResolver_VolatileOperatorsAreNotFolded(t *testing.T) {
	ctx, _ := testutil.Context(t)
	r := NewResolver(newRegistry(), types.NewManager(), true)

	node, diags := r.Resolve(ctx, "rnd", []expr.Expression{num(10)}, "rnd(10)", hcl.Range{})
	require.Empty(t, diags)
	_, isCall := node.(*expr.Call)
	assert.True(t, isCall)
}

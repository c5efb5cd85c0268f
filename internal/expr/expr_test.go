package expr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

type globals map[string]cty.Value

func (g globals) Global(name string) (cty.Value, error) {
	v, ok := g[name]
	if !ok {
		return cty.NilVal, scope.Fatalf("no global %q", name)
	}
	return v, nil
}

func (g globals) SetGlobal(name string, v cty.Value) error {
	g[name] = v
	return nil
}

func newScope(g globals) *scope.Scope {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return scope.New(ctxlog.WithLogger(context.Background(), logger), scope.Options{Name: "test", Globals: g})
}

func intConst(i int64) *Const {
	v := cty.NumberIntVal(i)
	return NewConst(v, types.Int, types.Format(v))
}

func add(_ *scope.Scope, args []cty.Value) (cty.Value, error) {
	return args[0].Add(args[1]), nil
}

func TestConst(t *testing.T) {
	c := intConst(4)
	v, err := c.Value(nil)
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(4)))
	assert.True(t, c.IsConst())
	assert.Equal(t, Constant, c.Kind())
	assert.Equal(t, "4", c.Text())
}

func TestVar_Places(t *testing.T) {
	g := globals{"cycle": cty.NumberIntVal(2)}
	s := newScope(g)
	s.DeclareVar("x", cty.NumberIntVal(1))

	v, err := NewVar("x", Temp, types.Int).Value(s)
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(1)))

	v, err = NewVar("cycle", Global, types.Int).Value(s)
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(2)))

	v, err = NewVar("unset", Temp, types.Float).Value(s)
	require.NoError(t, err)
	assert.True(t, v.RawEquals(types.Float.Default()), "unbound locals read as the type default")

	_, err = NewVar("energy", Attribute, types.Unknown).Value(s)
	require.Error(t, err)
	rt := scope.AsRuntimeError(err)
	require.NotNil(t, rt)
	assert.True(t, rt.Fatal)
	assert.Contains(t, err.Error(), "no agent to read attribute 'energy' from")

	v, err = NewVar("self", Self, types.Agent).Value(s)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestVar_Assign(t *testing.T) {
	g := globals{}
	s := newScope(g)
	s.DeclareVar("x", cty.NumberIntVal(1))

	require.NoError(t, NewVar("x", Temp, types.Int).Assign(s, cty.NumberIntVal(5)))
	got, _ := s.Temp("x")
	assert.True(t, got.RawEquals(cty.NumberIntVal(5)))

	require.NoError(t, NewVar("food", Global, types.Int).Assign(s, cty.NumberIntVal(3)))
	assert.True(t, g["food"].RawEquals(cty.NumberIntVal(3)))

	assert.Error(t, NewVar("self", Self, types.Agent).Assign(s, cty.True))
}

func TestCall(t *testing.T) {
	s := newScope(nil)
	call := NewCall(CallSpec{Name: "+", Type: types.Int, Fn: add, Foldable: true},
		[]Expression{intConst(1), intConst(2)}, "1 + 2")

	v, err := call.Value(s)
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(3)))
	assert.False(t, call.IsConst(), "folding is the compiler's decision")
	assert.True(t, call.Foldable())
	assert.Equal(t, "+", call.Name())
	assert.Len(t, call.Args(), 2)
}

func TestCall_WrapsErrorsWithTheSource(t *testing.T) {
	failing := func(*scope.Scope, []cty.Value) (cty.Value, error) {
		return cty.NilVal, scope.Warningf("division by zero")
	}
	call := NewCall(CallSpec{Name: "/", Type: types.Float, Fn: failing}, []Expression{intConst(1), intConst(0)}, "1 / 0")

	_, err := call.Value(newScope(nil))
	require.Error(t, err)
	assert.EqualError(t, err, "1 / 0: warning: division by zero")
	assert.True(t, scope.IsWarning(err))
}

func TestCall_LazyArguments(t *testing.T) {
	boom := NewCall(CallSpec{Name: "boom", Fn: func(*scope.Scope, []cty.Value) (cty.Value, error) {
		return cty.NilVal, errors.New("evaluated")
	}}, nil, "boom()")
	or := func(s *scope.Scope, args []Expression) (cty.Value, error) {
		left, err := args[0].Value(s)
		if err != nil || left.True() {
			return left, err
		}
		return args[1].Value(s)
	}
	call := NewCall(CallSpec{Name: "or", Type: types.Bool, Lazy: or},
		[]Expression{NewConst(cty.True, types.Bool, "true"), boom}, "true or boom()")

	v, err := call.Value(newScope(nil))
	require.NoError(t, err)
	assert.True(t, v.True())
}

func TestCast(t *testing.T) {
	c := NewCast(NewConst(cty.NumberFloatVal(2.7), types.Float, "2.7"), types.Int)
	v, err := c.Value(newScope(nil))
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(2)))
	assert.True(t, c.IsConst())
	assert.Equal(t, types.Int, c.Type())

	bad := NewCast(NewConst(cty.StringVal("abc"), types.String, `"abc"`), types.Int)
	_, err = bad.Value(newScope(nil))
	assert.ErrorContains(t, err, "cannot cast")
}

func TestList(t *testing.T) {
	s := newScope(globals{"n": cty.NumberIntVal(3)})
	l := NewList([]Expression{intConst(1), NewVar("n", Global, types.Int)}, types.List)

	assert.False(t, l.IsConst())
	assert.Equal(t, "[1, n]", l.Text())
	v, err := l.Value(s)
	require.NoError(t, err)
	assert.Equal(t, "[1,3]", types.Format(v))
}

type invoker struct{ got map[string]Expression }

func (i *invoker) Invoke(_ *scope.Scope, args map[string]Expression) (cty.Value, error) {
	i.got = args
	return cty.StringVal("done"), nil
}

func TestActionCall(t *testing.T) {
	inv := &invoker{}
	args := map[string]Expression{"amount": intConst(3)}
	call := NewActionCall("deposit", inv, args, types.String, "deposit(3)")

	v, err := call.Value(newScope(nil))
	require.NoError(t, err)
	assert.Equal(t, "done", v.AsString())
	assert.Equal(t, args, inv.got)
	assert.Equal(t, "deposit", call.Name())
	assert.Equal(t, "operator", call.Kind().String())
}

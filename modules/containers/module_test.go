package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

func ints(is ...int64) cty.Value {
	vals := make([]cty.Value, len(is))
	for i, n := range is {
		vals[i] = cty.NumberIntVal(n)
	}
	return types.ListVal(vals)
}

func TestRegister(t *testing.T) {
	r := registry.Load(&Module{})
	assert.Equal(t, []string{"+", "at", "contains", "empty", "first", "in", "last", "length", "range", "reverse", "sum"}, r.OperatorNames())
}

func TestOperators(t *testing.T) {
	null := cty.NullVal(cty.DynamicPseudoType)
	pets := cty.ObjectVal(map[string]cty.Value{"dog": cty.StringVal("rex")})
	testCases := []struct {
		name string
		fn   func(*scope.Scope, []cty.Value) (cty.Value, error)
		args []cty.Value
		want string
	}{
		{"length", Length, []cty.Value{ints(1, 2, 3)}, "3"},
		{"length of nil", Length, []cty.Value{null}, "0"},
		{"empty", Empty, []cty.Value{cty.EmptyTupleVal}, "true"},
		{"not empty", Empty, []cty.Value{ints(1)}, "false"},
		{"concat", Concat, []cty.Value{ints(1, 2), ints(3)}, "[1,2,3]"},
		{"contains", Contains, []cty.Value{ints(1, 2), cty.NumberIntVal(2)}, "true"},
		{"contains compares types", Contains, []cty.Value{ints(1, 2), cty.StringVal("2")}, "false"},
		{"contains a map value", Contains, []cty.Value{pets, cty.StringVal("rex")}, "true"},
		{"contains in nil", Contains, []cty.Value{null, cty.NumberIntVal(1)}, "false"},
		{"in", In, []cty.Value{cty.NumberIntVal(3), ints(1, 3)}, "true"},
		{"at", At, []cty.Value{ints(4, 5, 6), cty.NumberIntVal(1)}, "5"},
		{"first", First, []cty.Value{ints(4, 5, 6)}, "4"},
		{"last", Last, []cty.Value{ints(4, 5, 6)}, "6"},
		{"sum", Sum, []cty.Value{types.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberFloatVal(2.5)})}, "3.5"},
		{"sum of nothing", Sum, []cty.Value{cty.EmptyTupleVal}, "0"},
		{"reverse", Reverse, []cty.Value{ints(1, 2, 3)}, "[3,2,1]"},
		{"range is inclusive", Range, []cty.Value{cty.NumberIntVal(2), cty.NumberIntVal(4)}, "[2,3,4]"},
		{"empty range", Range, []cty.Value{cty.NumberIntVal(4), cty.NumberIntVal(2)}, "[]"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn(nil, tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.want, types.Format(got))
		})
	}
}

func TestFirstAndLastOfEmptyList(t *testing.T) {
	for _, fn := range []func(*scope.Scope, []cty.Value) (cty.Value, error){First, Last} {
		got, err := fn(nil, []cty.Value{cty.EmptyTupleVal})
		require.NoError(t, err)
		assert.True(t, got.IsNull())
	}
}

func TestAtOutOfBounds(t *testing.T) {
	for _, i := range []int64{-1, 3} {
		_, err := At(nil, []cty.Value{ints(1, 2, 3), cty.NumberIntVal(i)})
		require.Error(t, err)
		assert.False(t, scope.IsWarning(err))
		assert.ErrorContains(t, err, "out of bounds")
	}
}

func TestResultTypes(t *testing.T) {
	m := types.NewManager()
	assert.Equal(t, types.Int, content(types.Signature{m.ListOf(types.Int)}))
	assert.Equal(t, types.Unknown, content(types.Signature{types.List}))
	assert.Equal(t, types.Int, sumType(types.Signature{m.ListOf(types.Int)}))
	assert.Equal(t, types.Float, sumType(types.Signature{m.ListOf(types.String)}))
}

package types

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// AgentRef is the payload carried by agent values.
type AgentRef interface {
	AgentName() string
	SpeciesName() string
}

// AgentCapsule is the cty type of agent values.
var AgentCapsule = cty.CapsuleWithOps("agent", reflect.TypeOf((*AgentRef)(nil)).Elem(), &cty.CapsuleOps{
	GoString: func(v interface{}) string {
		return fmt.Sprintf("agent(%s)", (*v.(*AgentRef)).AgentName())
	},
	TypeGoString: func(reflect.Type) string { return "types.AgentCapsule" },
	Equals: func(a, b interface{}) cty.Value {
		return cty.BoolVal(*a.(*AgentRef) == *b.(*AgentRef))
	},
	RawEquals: func(a, b interface{}) bool {
		return *a.(*AgentRef) == *b.(*AgentRef)
	},
})

// AgentVal wraps an agent into a value.
func AgentVal(a AgentRef) cty.Value {
	if a == nil {
		return cty.NullVal(AgentCapsule)
	}
	return cty.CapsuleVal(AgentCapsule, &a)
}

// AgentOf unwraps an agent value.
func AgentOf(v cty.Value) (AgentRef, bool) {
	if v.IsNull() || !v.IsKnown() || !v.Type().Equals(AgentCapsule) {
		return nil, false
	}
	return *(v.EncapsulatedValue().(*AgentRef)), true
}

// ListVal builds a list value. Elements may have different types.
func ListVal(elems []cty.Value) cty.Value {
	if len(elems) == 0 {
		return cty.EmptyTupleVal
	}
	return cty.TupleVal(elems)
}

// Elements returns the elements of a list-like value, or nil.
func Elements(v cty.Value) []cty.Value {
	if v.IsNull() || !v.IsKnown() {
		return nil
	}
	ty := v.Type()
	if !(ty.IsTupleType() || ty.IsListType() || ty.IsSetType()) {
		return nil
	}
	return v.AsValueSlice()
}

// IntVal returns an integral number value.
func IntVal(i int64) cty.Value { return cty.NumberIntVal(i) }

// IsIntegral reports whether v is a whole number.
func IsIntegral(v cty.Value) bool {
	if v.IsNull() || !v.Type().Equals(cty.Number) {
		return false
	}
	return v.AsBigFloat().IsInt()
}

// TypeOf returns the runtime type of a value.
func TypeOf(v cty.Value) *Type {
	if v.IsNull() {
		return Unknown
	}
	ty := v.Type()
	switch {
	case ty.Equals(cty.Number):
		if IsIntegral(v) {
			return Int
		}
		return Float
	case ty.Equals(cty.String):
		return String
	case ty.Equals(cty.Bool):
		return Bool
	case ty.Equals(AgentCapsule):
		return Agent
	case ty.IsTupleType(), ty.IsListType(), ty.IsSetType():
		return List
	case ty.IsObjectType(), ty.IsMapType():
		return Map
	}
	return Unknown
}

// Format renders a value the way it is printed by write statements.
func Format(v cty.Value) string {
	if v.IsNull() {
		return "nil"
	}
	if !v.IsKnown() {
		return "?"
	}
	ty := v.Type()
	switch {
	case ty.Equals(cty.Number):
		return formatNumber(v.AsBigFloat())
	case ty.Equals(cty.String):
		return v.AsString()
	case ty.Equals(cty.Bool):
		if v.True() {
			return "true"
		}
		return "false"
	case ty.Equals(AgentCapsule):
		a, _ := AgentOf(v)
		return a.AgentName()
	case ty.IsTupleType(), ty.IsListType(), ty.IsSetType():
		parts := make([]string, 0, v.LengthInt())
		for _, e := range v.AsValueSlice() {
			parts = append(parts, Format(e))
		}
		return "[" + strings.Join(parts, ",") + "]"
	case ty.IsObjectType(), ty.IsMapType():
		m := v.AsValueMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"::"+Format(m[k]))
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return v.GoString()
}

func formatNumber(f *big.Float) string {
	if f.IsInt() {
		i, _ := f.Int(nil)
		return i.String()
	}
	return f.Text('g', -1)
}

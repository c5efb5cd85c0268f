package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Cast coerces v into a value of type t. A null value becomes the default
// of t. Fractional numbers cast to int are truncated toward zero.
func Cast(v cty.Value, t *Type) (cty.Value, error) {
	if v.IsNull() {
		return t.Default(), nil
	}
	if !v.IsKnown() {
		return v, nil
	}
	switch t.Family() {
	case Unknown:
		return v, nil
	case Int:
		return castInt(v)
	case Float:
		return castFloat(v)
	case Bool:
		return castBool(v)
	case String:
		if TypeOf(v) == String {
			return v, nil
		}
		return cty.StringVal(Format(v)), nil
	case List, Container:
		return castList(v, t.content)
	case Map:
		ty := v.Type()
		if ty.IsObjectType() || ty.IsMapType() {
			return v, nil
		}
		return cty.NilVal, fmt.Errorf("cannot cast %s to %s", TypeOf(v), t)
	case TypeType:
		return cty.StringVal(Format(v)), nil
	}
	if t.IsAgent() {
		a, ok := AgentOf(v)
		if !ok {
			return cty.NilVal, fmt.Errorf("cannot cast %s to %s", TypeOf(v), t)
		}
		if t != Agent && a.SpeciesName() != t.name {
			// a species cast of a foreign agent yields nil.
			return cty.NullVal(AgentCapsule), nil
		}
		return v, nil
	}
	return cty.NilVal, fmt.Errorf("no cast defined to %s", t)
}

func castInt(v cty.Value) (cty.Value, error) {
	ty := v.Type()
	switch {
	case ty.Equals(cty.Number):
		if IsIntegral(v) {
			return v, nil
		}
		return stdlib.Int(v)
	case ty.Equals(cty.Bool):
		if v.True() {
			return cty.NumberIntVal(1), nil
		}
		return cty.NumberIntVal(0), nil
	case ty.Equals(cty.String):
		s := strings.TrimSpace(v.AsString())
		if strings.HasPrefix(s, "#") {
			i, err := strconv.ParseInt(s[1:], 16, 64)
			if err != nil {
				return cty.NilVal, fmt.Errorf("cannot cast %q to int", s)
			}
			return cty.NumberIntVal(i), nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return cty.NumberIntVal(i), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return cty.NilVal, fmt.Errorf("cannot cast %q to int", s)
		}
		return stdlib.Int(cty.NumberFloatVal(f))
	}
	return cty.NilVal, fmt.Errorf("cannot cast %s to int", TypeOf(v))
}

func castFloat(v cty.Value) (cty.Value, error) {
	ty := v.Type()
	switch {
	case ty.Equals(cty.Number):
		return v, nil
	case ty.Equals(cty.Bool):
		if v.True() {
			return cty.NumberFloatVal(1), nil
		}
		return cty.NumberFloatVal(0), nil
	case ty.Equals(cty.String):
		f, err := strconv.ParseFloat(strings.TrimSpace(v.AsString()), 64)
		if err != nil {
			return cty.NilVal, fmt.Errorf("cannot cast %q to float", v.AsString())
		}
		return cty.NumberFloatVal(f), nil
	}
	return cty.NilVal, fmt.Errorf("cannot cast %s to float", TypeOf(v))
}

func castBool(v cty.Value) (cty.Value, error) {
	ty := v.Type()
	switch {
	case ty.Equals(cty.Bool):
		return v, nil
	case ty.Equals(cty.Number):
		return cty.BoolVal(v.AsBigFloat().Sign() != 0), nil
	case ty.Equals(cty.String):
		return convert.Convert(v, cty.Bool)
	}
	return cty.NilVal, fmt.Errorf("cannot cast %s to bool", TypeOf(v))
}

func castList(v cty.Value, content *Type) (cty.Value, error) {
	var elems []cty.Value
	ty := v.Type()
	switch {
	case ty.IsTupleType(), ty.IsListType(), ty.IsSetType():
		elems = v.AsValueSlice()
	case ty.IsObjectType(), ty.IsMapType():
		m := v.AsValueMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			elems = append(elems, m[k])
		}
	default:
		elems = []cty.Value{v}
	}
	if content == nil {
		return ListVal(elems), nil
	}
	out := make([]cty.Value, len(elems))
	for i, e := range elems {
		c, err := Cast(e, content)
		if err != nil {
			return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = c
	}
	return ListVal(out), nil
}

package config

import (
	"fmt"
	"math"
	"sort"

	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Values converts decoded YAML values into runtime values. Sequences become
// lists and mappings become maps.
func Values(in map[string]any) (map[string]cty.Value, error) {
	out := make(map[string]cty.Value, len(in))
	for _, k := range sortedKeys(in) {
		v, err := Value(in[k])
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// ParameterSetValues converts every parameter set, layered over Parameters.
// Without sets it returns Parameters alone.
func (c *RunConfig) ParameterSetValues() ([]map[string]cty.Value, error) {
	base, err := Values(c.Parameters)
	if err != nil {
		return nil, err
	}
	if len(c.ParameterSets) == 0 {
		return []map[string]cty.Value{base}, nil
	}
	out := make([]map[string]cty.Value, 0, len(c.ParameterSets))
	for i, set := range c.ParameterSets {
		vals, err := Values(set)
		if err != nil {
			return nil, fmt.Errorf("parameter set %d: %w", i, err)
		}
		merged := make(map[string]cty.Value, len(base)+len(vals))
		for k, v := range base {
			merged[k] = v
		}
		for k, v := range vals {
			merged[k] = v
		}
		out = append(out, merged)
	}
	return out, nil
}

// Value converts one decoded YAML value.
func Value(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case bool:
		return cty.BoolVal(x), nil
	case string:
		return cty.StringVal(x), nil
	case int:
		return cty.NumberIntVal(int64(x)), nil
	case uint64:
		return cty.NumberUIntVal(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return cty.NilVal, fmt.Errorf("%v is not a finite number", x)
		}
		return gocty.ToCtyValue(x, cty.Number)
	case []any:
		elems := make([]cty.Value, 0, len(x))
		for i, e := range x {
			ev, err := Value(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems = append(elems, ev)
		}
		return types.ListVal(elems), nil
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs, err := Values(x)
		if err != nil {
			return cty.NilVal, err
		}
		return cty.ObjectVal(attrs), nil
	}
	return cty.NilVal, fmt.Errorf("unsupported value %v of type %T", v, v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package executor

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Statement is a compiled statement.
type Statement interface {
	scope.Traceable
	Execute(s *scope.Scope) (cty.Value, error)
}

// Meta carries the keyword and source range every statement reports in
// diagnostics.
type Meta struct {
	Key   string
	Range hcl.Range
}

func (m Meta) Keyword() string        { return m.Key }
func (m Meta) SourceRange() hcl.Range { return m.Range }

func null() cty.Value { return cty.NullVal(cty.DynamicPseudoType) }

// Run executes one statement. Warnings are reported and swallowed; fatal
// errors are returned with the statement attached.
func Run(s *scope.Scope, stmt Statement) (cty.Value, error) {
	s.Enter(stmt)
	defer s.Leave()

	v, err := stmt.Execute(s)
	if err == nil {
		return v, nil
	}
	rt := scope.AsRuntimeError(err)
	if rt.Statement == "" {
		rt.Statement = stmt.Keyword()
		rt.Range = stmt.SourceRange()
	}
	if !rt.Fatal {
		s.Report(rt)
		return null(), nil
	}
	return cty.NilVal, rt
}

// RunAll executes body in order and stops at the first statement that
// interrupts the flow. It returns the value of the last statement run.
func RunAll(s *scope.Scope, body []Statement) (cty.Value, error) {
	last := null()
	for _, stmt := range body {
		v, err := Run(s, stmt)
		if err != nil {
			return cty.NilVal, err
		}
		last = v
		if s.Interrupted() {
			break
		}
	}
	return last, nil
}

// coerce casts v to t unless t is unknown.
func coerce(v cty.Value, t *types.Type) (cty.Value, error) {
	if t == nil || t == types.Unknown {
		return v, nil
	}
	out, err := types.Cast(v, t)
	if err != nil {
		return cty.NilVal, scope.Fatalf("%v", err)
	}
	return out, nil
}

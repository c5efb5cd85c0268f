// Package expr defines compiled expression nodes. Every node has a static
// type, knows whether it is a compile-time constant and evaluates to a
// cty.Value against a scope. Nodes are immutable once built, so a compiled
// model can be shared by every unit that runs it.
package expr

import (
	"fmt"
	"strings"

	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Kind tags the four node families.
type Kind int

const (
	Constant Kind = iota
	Variable
	Operator
	TypeRef
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "constant"
	case Variable:
		return "variable"
	case Operator:
		return "operator"
	case TypeRef:
		return "type"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Expression is a compiled expression.
type Expression interface {
	Kind() Kind
	Type() *types.Type
	IsConst() bool
	Value(s *scope.Scope) (cty.Value, error)
	// Text is the source form the expression was compiled from.
	Text() string
}

// Evaluator computes an operator result from evaluated arguments.
type Evaluator func(s *scope.Scope, args []cty.Value) (cty.Value, error)

// LazyEvaluator computes an operator result from unevaluated arguments,
// for operators that short-circuit.
type LazyEvaluator func(s *scope.Scope, args []Expression) (cty.Value, error)

// Const is a constant value.
type Const struct {
	val  cty.Value
	typ  *types.Type
	text string
}

// NewConst builds a constant. text is kept as the serialization.
func NewConst(v cty.Value, t *types.Type, text string) *Const {
	return &Const{val: v, typ: t, text: text}
}

func (c *Const) Kind() Kind                            { return Constant }
func (c *Const) Type() *types.Type                     { return c.typ }
func (c *Const) IsConst() bool                         { return true }
func (c *Const) Value(*scope.Scope) (cty.Value, error) { return c.val, nil }
func (c *Const) Text() string                          { return c.text }

// Place is where a variable reference resolves to.
type Place int

const (
	// Temp is a local of the enclosing statements, falling back to an
	// attribute of the acting agent.
	Temp Place = iota
	// Attribute is an attribute of the acting agent.
	Attribute
	// Global is a global variable of the unit, or of the experiment when
	// evaluated in its scope.
	Global
	// Self is the acting agent itself.
	Self
)

// Var is a variable reference.
type Var struct {
	name  string
	place Place
	typ   *types.Type
}

// NewVar builds a variable reference.
func NewVar(name string, place Place, t *types.Type) *Var {
	return &Var{name: name, place: place, typ: t}
}

func (v *Var) Kind() Kind        { return Variable }
func (v *Var) Type() *types.Type { return v.typ }
func (v *Var) IsConst() bool     { return false }
func (v *Var) Text() string      { return v.name }
func (v *Var) Name() string      { return v.name }
func (v *Var) Place() Place      { return v.place }

func (v *Var) Value(s *scope.Scope) (cty.Value, error) {
	switch v.place {
	case Self:
		a := s.Agent()
		if a == nil {
			return cty.NullVal(types.AgentCapsule), nil
		}
		return types.AgentVal(a), nil
	case Global:
		return s.Global(v.name)
	}
	val, ok := s.Var(v.name)
	switch {
	case ok:
		return val, nil
	case v.place == Attribute && s.Agent() == nil:
		return cty.NilVal, scope.Fatalf("no agent to read attribute '%s' from", v.name)
	case v.place == Attribute:
		return cty.NilVal, scope.Fatalf("%s has no attribute '%s'", s.Agent().AgentName(), v.name)
	}
	// a local that was declared but never bound.
	return v.typ.Default(), nil
}

// Assign writes val through the reference.
func (v *Var) Assign(s *scope.Scope, val cty.Value) error {
	switch v.place {
	case Self:
		return scope.Fatalf("cannot assign to self")
	case Global:
		return s.SetGlobal(v.name, val)
	}
	return s.SetVar(v.name, val)
}

// Call applies an operator to argument expressions.
type Call struct {
	name     string
	args     []Expression
	typ      *types.Type
	fn       Evaluator
	lazy     LazyEvaluator
	foldable bool
	text     string
}

// CallSpec describes the operator a Call node applies.
type CallSpec struct {
	Name     string
	Type     *types.Type
	Fn       Evaluator
	Lazy     LazyEvaluator
	Foldable bool
}

// NewCall builds an operator application.
func NewCall(spec CallSpec, args []Expression, text string) *Call {
	return &Call{
		name:     spec.Name,
		args:     args,
		typ:      spec.Type,
		fn:       spec.Fn,
		lazy:     spec.Lazy,
		foldable: spec.Foldable,
		text:     text,
	}
}

func (c *Call) Kind() Kind         { return Operator }
func (c *Call) Type() *types.Type  { return c.typ }
func (c *Call) IsConst() bool      { return false }
func (c *Call) Text() string       { return c.text }
func (c *Call) Name() string       { return c.name }
func (c *Call) Args() []Expression { return c.args }
func (c *Call) Foldable() bool     { return c.foldable }

func (c *Call) Value(s *scope.Scope) (cty.Value, error) {
	if c.lazy != nil {
		return c.lazy(s, c.args)
	}
	vals := make([]cty.Value, len(c.args))
	for i, a := range c.args {
		v, err := a.Value(s)
		if err != nil {
			return cty.NilVal, err
		}
		vals[i] = v
	}
	out, err := c.fn(s, vals)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%s: %w", c.text, err)
	}
	return out, nil
}

// Cast coerces the value of an argument to a declared parameter type.
type Cast struct {
	inner Expression
	to    *types.Type
}

// NewCast wraps inner in a coercion to t.
func NewCast(inner Expression, t *types.Type) *Cast {
	return &Cast{inner: inner, to: t}
}

func (c *Cast) Kind() Kind        { return Operator }
func (c *Cast) Type() *types.Type { return c.to }
func (c *Cast) IsConst() bool     { return c.inner.IsConst() }
func (c *Cast) Text() string      { return c.inner.Text() }
func (c *Cast) Inner() Expression { return c.inner }

func (c *Cast) Value(s *scope.Scope) (cty.Value, error) {
	v, err := c.inner.Value(s)
	if err != nil {
		return cty.NilVal, err
	}
	out, err := types.Cast(v, c.to)
	if err != nil {
		return cty.NilVal, fmt.Errorf("%s: %w", c.inner.Text(), err)
	}
	return out, nil
}

// List builds a list from its element expressions.
type List struct {
	elems []Expression
	typ   *types.Type
}

// NewList builds a list literal of type t.
func NewList(elems []Expression, t *types.Type) *List {
	return &List{elems: elems, typ: t}
}

func (l *List) Kind() Kind             { return Operator }
func (l *List) Type() *types.Type      { return l.typ }
func (l *List) Elements() []Expression { return l.elems }

// IsConst reports whether every element is constant.
func (l *List) IsConst() bool {
	for _, e := range l.elems {
		if !e.IsConst() {
			return false
		}
	}
	return true
}

func (l *List) Text() string {
	parts := make([]string, len(l.elems))
	for i, e := range l.elems {
		parts[i] = e.Text()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (l *List) Value(s *scope.Scope) (cty.Value, error) {
	vals := make([]cty.Value, len(l.elems))
	for i, e := range l.elems {
		v, err := e.Value(s)
		if err != nil {
			return cty.NilVal, err
		}
		vals[i] = v
	}
	return types.ListVal(vals), nil
}

// Type is a reference to a type, used by casts and species references.
type Type struct {
	t *types.Type
}

// NewType builds a type reference.
func NewType(t *types.Type) *Type { return &Type{t: t} }

func (t *Type) Kind() Kind                            { return TypeRef }
func (t *Type) Type() *types.Type                     { return types.TypeType }
func (t *Type) IsConst() bool                         { return true }
func (t *Type) Text() string                          { return t.t.String() }
func (t *Type) Referenced() *types.Type               { return t.t }
func (t *Type) Value(*scope.Scope) (cty.Value, error) { return cty.StringVal(t.t.String()), nil }

// Invoker runs a user-defined action on behalf of an expression.
type Invoker interface {
	Invoke(s *scope.Scope, args map[string]Expression) (cty.Value, error)
}

// ActionCall is a user action used as an expression.
type ActionCall struct {
	name    string
	invoker Invoker
	args    map[string]Expression
	typ     *types.Type
	text    string
}

// NewActionCall builds an action call expression.
func NewActionCall(name string, inv Invoker, args map[string]Expression, t *types.Type, text string) *ActionCall {
	return &ActionCall{name: name, invoker: inv, args: args, typ: t, text: text}
}

func (a *ActionCall) Kind() Kind        { return Operator }
func (a *ActionCall) Type() *types.Type { return a.typ }
func (a *ActionCall) IsConst() bool     { return false }
func (a *ActionCall) Text() string      { return a.text }
func (a *ActionCall) Name() string      { return a.name }

func (a *ActionCall) Value(s *scope.Scope) (cty.Value, error) {
	return a.invoker.Invoke(s, a.args)
}

package executor

import (
	"fmt"

	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Formal is a declared argument of an action.
type Formal struct {
	Name    string
	Type    *types.Type
	Default expr.Expression
}

// Action is a user-defined action of a species. Slot is its index in the
// species action table; overriding actions share the slot of the action
// they override.
type Action struct {
	Meta
	Name       string
	Species    string
	Slot       int
	Formals    []Formal
	Body       []Statement
	ReturnType *types.Type
}

// Receiver is an agent whose species carries an action table.
type Receiver interface {
	scope.Agent
	ActionAt(slot int) *Action
}

// Call runs the action for the agent bound to caller. Arguments are
// evaluated against the caller's scope on every call, then the body runs
// in a copy of it holding only the formals. Return is consumed here; Die
// and Dispose are handed back to the caller.
func (a *Action) Call(caller *scope.Scope, args map[string]expr.Expression) (cty.Value, error) {
	vals := make(map[string]cty.Value, len(a.Formals))
	for _, f := range a.Formals {
		e, ok := args[f.Name]
		if !ok {
			e = f.Default
		}
		if e == nil {
			vals[f.Name] = f.Type.Default()
			continue
		}
		v, err := e.Value(caller)
		if err != nil {
			return cty.NilVal, err
		}
		if vals[f.Name], err = coerce(v, f.Type); err != nil {
			return cty.NilVal, err
		}
	}

	s := caller.Copy(a.Name)
	s.Enter(a)
	defer s.Leave()
	for name, v := range vals {
		s.DeclareVar(name, v)
	}
	out, err := RunAll(s, a.Body)
	if err != nil {
		return cty.NilVal, err
	}

	rt := a.ReturnType
	if rt == nil {
		rt = types.Unknown
	}
	switch st := s.Status(); st {
	case scope.Return:
		return coerce(out, rt)
	case scope.Die, scope.Dispose:
		caller.SetStatus(st)
	}
	return rt.Default(), nil
}

// CallKind tags what a call site is bound to.
type CallKind int

const (
	// BuiltinCall is an operator of the registry, compiled as an
	// expression of its own.
	BuiltinCall CallKind = iota
	// ActionCall is a user action looked up by slot in the receiver's
	// action table, or bound statically for super calls.
	ActionCall
	// PrimitiveCall is a primitive action of the registry.
	PrimitiveCall
)

func (k CallKind) String() string {
	switch k {
	case BuiltinCall:
		return "builtin"
	case ActionCall:
		return "action"
	case PrimitiveCall:
		return "primitive"
	}
	return fmt.Sprintf("CallKind(%d)", int(k))
}

// Callable is a call site bound at compile time. It implements
// expr.Invoker.
type Callable struct {
	Name      string
	Kind      CallKind
	Slot      int
	Static    *Action
	Primitive *registry.Primitive
}

// NewActionCallable binds a call to the action in slot of whatever
// species the acting agent belongs to.
func NewActionCallable(name string, slot int) *Callable {
	return &Callable{Name: name, Kind: ActionCall, Slot: slot}
}

// NewStaticCallable binds a call to one action, ignoring overrides.
func NewStaticCallable(a *Action) *Callable {
	return &Callable{Name: a.Name, Kind: ActionCall, Slot: a.Slot, Static: a}
}

// NewPrimitiveCallable binds a call to a primitive.
func NewPrimitiveCallable(p *registry.Primitive) *Callable {
	return &Callable{Name: p.Name, Kind: PrimitiveCall, Primitive: p}
}

// Invoke runs the bound callee with args evaluated against s.
func (c *Callable) Invoke(s *scope.Scope, args map[string]expr.Expression) (cty.Value, error) {
	switch c.Kind {
	case PrimitiveCall:
		return c.invokePrimitive(s, args)
	case ActionCall:
		a := c.Static
		if a == nil {
			r, ok := s.Agent().(Receiver)
			if !ok {
				return cty.NilVal, scope.Fatalf("no agent to run action %q", c.Name)
			}
			if a = r.ActionAt(c.Slot); a == nil {
				return cty.NilVal, scope.Fatalf("action %q is not defined for species %s", c.Name, r.SpeciesName())
			}
		}
		return a.Call(s, args)
	}
	return cty.NilVal, scope.Fatalf("%s %q cannot be invoked as an action", c.Kind, c.Name)
}

func (c *Callable) invokePrimitive(s *scope.Scope, args map[string]expr.Expression) (cty.Value, error) {
	p := c.Primitive
	vals := make(map[string]cty.Value, len(p.Args))
	for _, formal := range p.Args {
		e, ok := args[formal.Name]
		if !ok {
			if !formal.Optional {
				return cty.NilVal, scope.Fatalf("missing argument %q of %s", formal.Name, p.Name)
			}
			continue
		}
		v, err := e.Value(s)
		if err != nil {
			return cty.NilVal, err
		}
		if vals[formal.Name], err = coerce(v, formal.Type); err != nil {
			return cty.NilVal, err
		}
	}
	return p.Fn(s, vals)
}

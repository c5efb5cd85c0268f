package compiler

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/agentgrid/internal/ast"
	"github.com/vk/agentgrid/internal/executor"
	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/types"
)

// SuperPrefix marks a call bound to the parent species' action.
const SuperPrefix = "super::"

// expression compiles one ast expression.
func (c *compilation) expression(e *env, x *ast.Expr) expr.Expression {
	switch x.Kind {
	case ast.Literal:
		return Constant(x.Value, x.Text())
	case ast.Ref:
		return c.reference(e, x)
	case ast.ListLit:
		elems := make([]expr.Expression, 0, len(x.Args))
		for _, a := range x.Args {
			el := c.expression(e, a)
			if el == nil {
				return nil
			}
			elems = append(elems, el)
		}
		return c.resolver.packed(elems)
	case ast.TypeLit:
		t := c.typeOf(x)
		if t == nil {
			return nil
		}
		return expr.NewType(t)
	case ast.Call:
		return c.call(e, x.Name, x.Args, x.Named, x.Text(), x.Range)
	}
	c.diags = c.diags.Append(errorf(x.Range, "Invalid expression", "unsupported expression %s", x.Text()))
	return nil
}

// reference resolves a name: self, a local, an attribute of the acting
// agent, a global, an experiment parameter, then species and type names.
func (c *compilation) reference(e *env, x *ast.Expr) expr.Expression {
	name := x.Name
	if name == "self" {
		t := types.Agent
		if e.species != nil {
			t = e.species.Type
		}
		return expr.NewVar(name, expr.Self, t)
	}
	if t, ok := e.temp(name); ok {
		return expr.NewVar(name, expr.Temp, t)
	}
	if e.species != nil {
		if v, ok := e.species.Var(name); ok {
			return expr.NewVar(name, expr.Attribute, v.Type)
		}
	}
	if e.experiment != nil {
		if v, ok := e.experiment.Var(name); ok {
			return expr.NewVar(name, expr.Attribute, v.Type)
		}
	}
	if v, ok := c.model.Global.Var(name); ok {
		return expr.NewVar(name, expr.Global, v.Type)
	}
	if t, ok := builtinGlobals[name]; ok {
		return expr.NewVar(name, expr.Global, t)
	}
	if e.experiment != nil {
		if p, ok := e.experiment.Parameter(name); ok {
			return expr.NewVar(p.Var, expr.Global, p.Type)
		}
	}
	if t, ok := c.model.Types.Lookup(name); ok {
		return expr.NewType(t)
	}
	if e.experiment != nil {
		// any other name may be an ad hoc parameter of the experiment.
		return expr.NewVar(name, expr.Global, types.Unknown)
	}
	if e.dynamic() && c.isAttribute(name) {
		return expr.NewVar(name, expr.Attribute, types.Unknown)
	}
	c.diags = c.diags.Append(errorf(x.Range, "Unknown variable", "'%s' is not declared in this context", name))
	return nil
}

// isAttribute reports whether any species declares name.
func (c *compilation) isAttribute(name string) bool {
	for _, sp := range c.model.Species {
		if _, ok := sp.Var(name); ok {
			return true
		}
	}
	return false
}

// typeOf resolves a type literal or a type name.
func (c *compilation) typeOf(x *ast.Expr) *types.Type {
	if x.Kind != ast.TypeLit && x.Kind != ast.Ref {
		c.diags = c.diags.Append(errorf(x.Range, "Invalid type", "%s does not name a type", x.Text()))
		return nil
	}
	t, ok := c.model.Types.Lookup(x.Name)
	if !ok {
		c.diags = c.diags.Append(errorf(x.Range, "Unknown type", "no type named '%s'", x.Name))
		return nil
	}
	if len(x.Args) == 1 && t == types.List {
		content := c.typeOf(x.Args[0])
		if content == nil {
			return nil
		}
		return c.model.Types.ListOf(content)
	}
	return t
}

// call compiles a call site. Actions of the acting species come first,
// then primitives, then operators.
func (c *compilation) call(e *env, name string, positional []*ast.Expr, named map[string]*ast.Expr, text string, rng hcl.Range) expr.Expression {
	if strings.HasPrefix(name, SuperPrefix) {
		base := strings.TrimPrefix(name, SuperPrefix)
		if e.species == nil || e.species.Parent == nil {
			c.diags = c.diags.Append(errorf(rng, "Invalid super call", "'%s' has no parent species", base))
			return nil
		}
		a, ok := e.species.Parent.Action(base)
		if !ok {
			c.diags = c.diags.Append(errorf(rng, "Unknown action", "parent species %s has no action '%s'", e.species.Parent.Name, base))
			return nil
		}
		args := c.actionArgs(e, a.Name, formalNames(a), positional, named, rng)
		if args == nil {
			return nil
		}
		return expr.NewActionCall(base, executor.NewStaticCallable(a), args, returnType(a), text)
	}

	if e.species != nil {
		if a, ok := e.species.Action(name); ok {
			args := c.actionArgs(e, name, formalNames(a), positional, named, rng)
			if args == nil {
				return nil
			}
			return expr.NewActionCall(name, executor.NewActionCallable(name, a.Slot), args, returnType(a), text)
		}
	}

	if p, ok := c.reg.Primitive(name); ok {
		names := make([]string, len(p.Args))
		for i, a := range p.Args {
			names[i] = a.Name
		}
		args := c.actionArgs(e, name, names, positional, named, rng)
		if args == nil {
			return nil
		}
		for _, a := range p.Args {
			if _, given := args[a.Name]; !given && !a.Optional {
				c.diags = c.diags.Append(errorf(rng, "Missing argument", "'%s' requires argument '%s'", name, a.Name))
				return nil
			}
		}
		rt := p.ReturnType
		if rt == nil {
			rt = types.Unknown
		}
		return expr.NewActionCall(name, executor.NewPrimitiveCallable(p), args, rt, text)
	}

	if len(named) > 0 {
		c.diags = c.diags.Append(errorf(rng, "Unknown action", "no action or primitive named '%s'", name))
		return nil
	}
	args := make([]expr.Expression, 0, len(positional))
	for _, a := range positional {
		arg := c.expression(e, a)
		if arg == nil {
			return nil
		}
		args = append(args, arg)
	}
	node, diags := c.resolver.Resolve(c.ctx, name, args, text, rng)
	c.diags = c.diags.Extend(diags)
	return node
}

func formalNames(a *executor.Action) []string {
	names := make([]string, len(a.Formals))
	for i, f := range a.Formals {
		names[i] = f.Name
	}
	return names
}

func returnType(a *executor.Action) *types.Type {
	if a.ReturnType == nil {
		return types.Unknown
	}
	return a.ReturnType
}

// actionArgs binds positional arguments to formals in order and named
// ones by name.
func (c *compilation) actionArgs(e *env, callee string, formals []string, positional []*ast.Expr, named map[string]*ast.Expr, rng hcl.Range) map[string]expr.Expression {
	if len(positional) > len(formals) {
		c.diags = c.diags.Append(errorf(rng, "Too many arguments", "'%s' takes %d arguments, got %d", callee, len(formals), len(positional)))
		return nil
	}
	known := make(map[string]bool, len(formals))
	for _, f := range formals {
		known[f] = true
	}
	args := make(map[string]expr.Expression, len(positional)+len(named))
	ok := true
	for i, a := range positional {
		if v := c.expression(e, a); v != nil {
			args[formals[i]] = v
		} else {
			ok = false
		}
	}
	for name, a := range named {
		if !known[name] {
			c.diags = c.diags.Append(errorf(a.Range, "Unknown argument", "'%s' has no argument '%s'", callee, name))
			ok = false
			continue
		}
		if _, dup := args[name]; dup {
			c.diags = c.diags.Append(errorf(a.Range, "Duplicate argument", "argument '%s' of '%s' is given twice", name, callee))
			ok = false
			continue
		}
		if v := c.expression(e, a); v != nil {
			args[name] = v
		} else {
			ok = false
		}
	}
	if !ok {
		return nil
	}
	return args
}

package compiler

import (
	"github.com/vk/agentgrid/internal/ast"
	"github.com/vk/agentgrid/internal/executor"
	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/model"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// body compiles a block of statements in a new lexical frame.
func (c *compilation) body(e *env, descs []*ast.Description) []executor.Statement {
	e.push()
	defer e.pop()
	out := make([]executor.Statement, 0, len(descs))
	for _, d := range descs {
		if st := c.statement(e, d); st != nil {
			out = append(out, st)
		}
	}
	return out
}

func meta(d *ast.Description) executor.Meta {
	return executor.Meta{Key: d.Keyword, Range: d.Range}
}

// facet compiles a facet, or returns nil when it is absent.
func (c *compilation) facet(e *env, d *ast.Description, name string) expr.Expression {
	x := d.Facet(name)
	if x == nil {
		return nil
	}
	return c.expression(e, x)
}

// required compiles a facet that must be present.
func (c *compilation) required(e *env, d *ast.Description, name string) (expr.Expression, bool) {
	if !d.HasFacet(name) {
		c.diags = c.diags.Append(errorf(d.Range, "Missing facet", "'%s' requires a '%s' facet", d.Keyword, name))
		return nil, false
	}
	x := c.facet(e, d, name)
	return x, x != nil
}

// declaredType reads the optional type facet of a declaration. Without
// one, the type of a literal initializer is used.
func (c *compilation) declaredType(d *ast.Description, init string) *types.Type {
	if x := d.Facet("type"); x != nil {
		if t := c.typeOf(x); t != nil {
			return t
		}
		return types.Unknown
	}
	if x := d.Facet(init); x != nil && x.Kind == ast.Literal {
		return types.TypeOf(x.Value)
	}
	return types.Unknown
}

func (c *compilation) statement(e *env, d *ast.Description) executor.Statement {
	switch d.Keyword {
	case "let":
		return c.let(e, d)
	case "set":
		return c.set(e, d)
	case "if":
		return c.ifStatement(e, d)
	case "loop":
		return c.loop(e, d)
	case "return":
		if e.action == nil {
			c.diags = c.diags.Append(errorf(d.Range, "Misplaced return", "return is only allowed inside an action"))
			return nil
		}
		return &executor.Return{Meta: meta(d), Value: c.facet(e, d, "value")}
	case "break", "continue":
		if e.loops == 0 {
			c.diags = c.diags.Append(errorf(d.Range, "Misplaced "+d.Keyword, "%s is only allowed inside a loop", d.Keyword))
			return nil
		}
		if d.Keyword == "break" {
			return &executor.Break{Meta: meta(d)}
		}
		return &executor.Continue{Meta: meta(d)}
	case "die":
		return &executor.Die{Meta: meta(d)}
	case "do":
		return c.do(e, d, d.Name)
	case "ask":
		return c.ask(e, d)
	case "create":
		return c.create(e, d)
	case "wait":
		return &executor.Wait{Meta: meta(d), Message: c.facet(e, d, "message")}
	case "sequence":
		return &executor.Sequence{Meta: meta(d), Body: c.body(e, d.Children)}
	case "try":
		return c.try(e, d)
	case "catch":
		c.diags = c.diags.Append(errorf(d.Range, "Misplaced catch", "catch is only allowed inside a try"))
		return nil
	case "warn", "error":
		msg, ok := c.required(e, d, "message")
		if !ok {
			return nil
		}
		return &executor.Warn{Meta: meta(d), Message: msg, Fatal: d.Keyword == "error"}
	}
	if _, ok := c.reg.Primitive(d.Keyword); ok {
		return c.do(e, d, d.Keyword)
	}
	c.diags = c.diags.Append(errorf(d.Range, "Unknown statement", "'%s' is not a statement", d.Keyword))
	return nil
}

func (c *compilation) let(e *env, d *ast.Description) executor.Statement {
	if d.Name == "" {
		c.diags = c.diags.Append(errorf(d.Range, "Missing name", "let requires the name of the variable"))
		return nil
	}
	value := c.facet(e, d, "value")
	t := c.declaredType(d, "value")
	if t == types.Unknown && value != nil {
		t = value.Type()
	}
	e.declare(d.Name, t)
	return &executor.Let{Meta: meta(d), Name: d.Name, Type: t, Value: value}
}

func (c *compilation) set(e *env, d *ast.Description) executor.Statement {
	target := c.reference(e, &ast.Expr{Kind: ast.Ref, Name: d.Name, Range: d.Range})
	v, ok := target.(*expr.Var)
	if target != nil && (!ok || v.Place() == expr.Self) {
		c.diags = c.diags.Append(errorf(d.Range, "Invalid assignment", "'%s' cannot be assigned", d.Name))
		return nil
	}
	if ok && c.isConst(e, v) {
		c.diags = c.diags.Append(errorf(d.Range, "Invalid assignment", "'%s' is constant", d.Name))
		return nil
	}
	if _, builtin := builtinGlobals[d.Name]; ok && builtin && v.Place() == expr.Global {
		c.diags = c.diags.Append(errorf(d.Range, "Invalid assignment", "'%s' is read-only", d.Name))
		return nil
	}
	value, valid := c.required(e, d, "value")
	if !ok || !valid {
		return nil
	}
	return &executor.Set{Meta: meta(d), Target: v, Value: value}
}

func (c *compilation) isConst(e *env, v *expr.Var) bool {
	var decl *model.Variable
	switch v.Place() {
	case expr.Attribute:
		if e.species != nil {
			decl, _ = e.species.Var(v.Name())
		} else if e.experiment != nil {
			decl, _ = e.experiment.Var(v.Name())
		}
	case expr.Global:
		decl, _ = c.model.Global.Var(v.Name())
	}
	return decl != nil && decl.Const
}

func (c *compilation) ifStatement(e *env, d *ast.Description) executor.Statement {
	cond, ok := c.required(e, d, "condition")
	var then, otherwise []*ast.Description
	elses := 0
	for _, child := range d.Children {
		if child.Keyword == "else" {
			elses++
			otherwise = child.Children
			continue
		}
		then = append(then, child)
	}
	if elses > 1 {
		c.diags = c.diags.Append(errorf(d.Range, "Invalid if", "an if has at most one else block"))
	}
	stmt := &executor.If{Meta: meta(d), Cond: cond, Then: c.body(e, then), Else: c.body(e, otherwise)}
	if !ok {
		return nil
	}
	return stmt
}

func (c *compilation) try(e *env, d *ast.Description) executor.Statement {
	var body, handler []*ast.Description
	catches := 0
	for _, child := range d.Children {
		if child.Keyword == "catch" {
			catches++
			handler = child.Children
			continue
		}
		body = append(body, child)
	}
	if catches > 1 {
		c.diags = c.diags.Append(errorf(d.Range, "Invalid try", "a try has at most one catch block"))
		return nil
	}
	return &executor.Try{Meta: meta(d), Body: c.body(e, body), Catch: c.body(e, handler)}
}

// loopForms lists the loop facets that exclude each other, in the order
// conflicts are reported.
var loopForms = []string{"times", "over", "while", "from"}

func (c *compilation) loop(e *env, d *ast.Description) executor.Statement {
	if !c.validLoop(d) {
		return nil
	}
	var (
		source  executor.Source
		varType = types.Unknown
		valid   = true
	)
	switch {
	case d.HasFacet("times"):
		count, ok := c.required(e, d, "times")
		source, valid = &executor.Times{Count: count}, ok
	case d.HasFacet("over"):
		over, ok := c.required(e, d, "over")
		if ok && over.Type().Content() != nil {
			varType = over.Type().Content()
		}
		source, valid = &executor.Over{Container: over}, ok
	case d.HasFacet("while"):
		cond, ok := c.required(e, d, "while")
		source, valid = &executor.While{Cond: cond}, ok
	default:
		from, okFrom := c.required(e, d, "from")
		to, okTo := c.required(e, d, "to")
		step := c.facet(e, d, "step")
		valid = okFrom && okTo && (step != nil || !d.HasFacet("step"))
		if valid {
			varType = types.Int
			for _, x := range []expr.Expression{from, to, step} {
				if x != nil && x.Type().IsFractional() {
					varType = types.Float
				}
			}
		}
		source = &executor.Range{From: from, To: to, Step: step}
	}

	e.loops++
	e.push()
	if d.Name != "" {
		e.declare(d.Name, varType)
	}
	body := c.body(e, d.Children)
	e.pop()
	e.loops--

	if !valid {
		return nil
	}
	return &executor.Loop{Meta: meta(d), Var: d.Name, Source: source, Body: body}
}

// validLoop checks that exactly one loop form is used and that the loop
// variable is named when the form provides values.
func (c *compilation) validLoop(d *ast.Description) bool {
	fail := func(format string, args ...any) bool {
		c.diags = c.diags.Append(errorf(d.Range, "Invalid loop", format, args...))
		return false
	}
	hasFrom, hasTo := d.HasFacet("from"), d.HasFacet("to")
	for i, form := range loopForms {
		if !d.HasFacet(form) && !(form == "from" && hasTo) {
			continue
		}
		for _, other := range loopForms[i+1:] {
			if d.HasFacet(other) || (other == "from" && hasTo) {
				if other == "from" {
					other = "from/to"
				}
				return fail("'%s' cannot be combined with '%s'", form, other)
			}
		}
	}
	switch {
	case hasFrom != hasTo:
		return fail("'from' and 'to' must be given together")
	case hasFrom && d.Name == "":
		return fail("a loop over a range needs a variable name")
	case d.HasFacet("over") && d.Name == "":
		return fail("a loop over a container needs a variable name")
	case (d.HasFacet("while") || d.HasFacet("times")) && d.Name != "":
		return fail("'%s' loops cannot declare a variable", map[bool]string{true: "while", false: "times"}[d.HasFacet("while")])
	case !hasFrom && !d.HasFacet("times") && !d.HasFacet("over") && !d.HasFacet("while"):
		return fail("a loop needs one of 'times', 'over', 'while' or 'from'/'to'")
	case d.HasFacet("step") && !hasFrom:
		return fail("'step' only applies to 'from'/'to' loops")
	}
	return true
}

func (c *compilation) do(e *env, d *ast.Description, callee string) executor.Statement {
	if callee == "" {
		c.diags = c.diags.Append(errorf(d.Range, "Missing name", "do requires the name of an action"))
		return nil
	}
	call := c.call(e, callee, nil, d.Facets, callee+"()", d.Range)
	if call == nil {
		return nil
	}
	return &executor.Do{Meta: meta(d), Call: call}
}

// agentEnv is the context of an ask or create body: the target agent is
// self, the asking agent is bound to myself and the locals of e stay
// visible.
func (c *compilation) agentEnv(e *env, target *model.Species) *env {
	sub := newEnv(target, nil)
	sub.frames = append(append(sub.frames[:0], e.frames...), map[string]*types.Type{})
	me := types.Agent
	if e.species != nil {
		me = e.species.Type
	}
	sub.declare(executor.Myself, me)
	return sub
}

func (c *compilation) ask(e *env, d *ast.Description) executor.Statement {
	target, ok := c.required(e, d, "target")
	if !ok {
		return nil
	}
	var sp *model.Species
	t := target.Type()
	if ref, isType := target.(*expr.Type); isType {
		t = ref.Referenced()
	} else if t.Content() != nil {
		t = t.Content()
	}
	if t.IsAgent() {
		sp, _ = c.model.SpeciesNamed(t.Name())
	}
	if ref, isType := target.(*expr.Type); isType && (sp == nil || sp == c.model.Global) {
		c.diags = c.diags.Append(errorf(d.Range, "Invalid ask", "'%s' is not a species", ref.Text()))
		return nil
	}
	return &executor.Ask{Meta: meta(d), Target: target, Body: c.body(c.agentEnv(e, sp), d.Children)}
}

func (c *compilation) create(e *env, d *ast.Description) executor.Statement {
	sp, ok := c.model.SpeciesNamed(d.Name)
	if !ok || sp == c.model.Global {
		c.diags = c.diags.Append(errorf(d.Range, "Invalid create", "'%s' is not a species", d.Name))
		return nil
	}
	stmt := &executor.Create{Meta: meta(d), Species: sp.Name, Number: c.facet(e, d, "number")}
	if x := d.Facet("returns"); x != nil {
		if x.Kind != ast.Ref && !(x.Kind == ast.Literal && x.Value.Type().Equals(cty.String)) {
			c.diags = c.diags.Append(errorf(x.Range, "Invalid create", "'returns' must name a variable"))
		} else if x.Kind == ast.Ref {
			stmt.Returns = x.Name
		} else {
			stmt.Returns = x.Value.AsString()
		}
	}

	var body []*ast.Description
	for _, child := range d.Children {
		if child.Keyword != "with" {
			body = append(body, child)
			continue
		}
		if stmt.With == nil {
			stmt.With = make(map[string]expr.Expression, len(child.Facets))
		}
		for name, x := range child.Facets {
			if _, declared := sp.Var(name); !declared {
				c.diags = c.diags.Append(errorf(x.Range, "Unknown attribute", "species %s has no attribute '%s'", sp.Name, name))
				continue
			}
			if v := c.expression(e, x); v != nil {
				stmt.With[name] = v
			}
		}
	}
	stmt.Body = c.body(c.agentEnv(e, sp), body)
	if stmt.Returns != "" {
		e.declare(stmt.Returns, c.model.Types.ListOf(sp.Type))
	}
	return stmt
}

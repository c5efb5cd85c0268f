package compiler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/agentgrid/internal/ast"
	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/vk/agentgrid/internal/dag"
	"github.com/vk/agentgrid/internal/executor"
	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/model"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// WorldSpecies is the name of the species of the world agent.
const WorldSpecies = "world"

// Compiler turns model descriptions into models. It is safe to share: all
// per-model state lives in a compilation.
type Compiler struct {
	reg *registry.Registry
	// Fold enables constant folding.
	Fold bool
}

// New creates a compiler over a frozen registry.
func New(reg *registry.Registry) *Compiler {
	return &Compiler{reg: reg, Fold: true}
}

type compilation struct {
	ctx      context.Context
	reg      *registry.Registry
	model    *model.Model
	resolver *Resolver
	diags    hcl.Diagnostics
	reflexes map[*ast.Description]*executor.Reflex
	// skipped holds declarations rejected while declaring shells.
	skipped map[*ast.Description]bool
}

// speciesDecl pairs a species with the description it is compiled from.
type speciesDecl struct {
	sp   *model.Species
	desc *ast.Description
}

// Compile compiles a `model` description. Warnings are returned with a
// usable model; any error diagnostic makes err an *Error.
func (c *Compiler) Compile(ctx context.Context, root *ast.Description) (*model.Model, hcl.Diagnostics, error) {
	logger := ctxlog.FromContext(ctx).With(slog.String("model", root.Name))
	logger.Debug("🛠️ Compiling model.")

	tm := types.NewManager()
	m := model.New(root.Name, tm, c.reg)
	comp := &compilation{
		ctx:      ctx,
		reg:      c.reg,
		model:    m,
		resolver: NewResolver(c.reg, tm, c.Fold),
		reflexes: make(map[*ast.Description]*executor.Reflex),
		skipped:  make(map[*ast.Description]bool),
	}

	decls := comp.declare(root)
	if decls == nil {
		return nil, comp.diags, &Error{Diags: comp.diags}
	}
	for _, d := range decls {
		comp.speciesBodies(d)
	}
	for _, d := range root.ChildrenOf("experiment") {
		if plan := comp.experiment(d); plan != nil {
			m.Experiments = append(m.Experiments, plan)
		}
	}

	if comp.diags.HasErrors() {
		logger.Debug("❌ Model has errors.", "count", len(comp.diags.Errs()))
		return nil, comp.diags, &Error{Diags: comp.diags}
	}
	logger.Info("✅ Model compiled.", "species", len(m.Species), "experiments", len(m.Experiments), "warnings", len(comp.diags))
	return m, comp.diags, nil
}

// declare creates every species with its variable, reflex and action
// shells, parents first. Bodies are compiled later so any declaration can
// be referenced from any body.
func (c *compilation) declare(root *ast.Description) []speciesDecl {
	globals := root.ChildrenOf("global")
	if len(globals) > 1 {
		c.diags = c.diags.Append(errorf(globals[1].Range, "Duplicate global", "a model has at most one global block"))
	}
	globalDesc := &ast.Description{Keyword: "global", Range: root.Range}
	if len(globals) > 0 {
		globalDesc = globals[0]
	}

	order := c.speciesOrder(root.ChildrenOf("species"))
	if order == nil && c.diags.HasErrors() {
		return nil
	}

	tm := c.model.Types
	worldType, err := tm.RegisterSpecies(WorldSpecies, nil)
	if err != nil {
		c.diags = c.diags.Append(errorf(root.Range, "Invalid model", "%s", err))
		return nil
	}
	speciesTypes := make(map[string]*types.Type, len(order))
	for _, d := range order {
		parent := speciesTypes[parentName(d)]
		t, err := tm.RegisterSpecies(d.Name, parent)
		if err != nil {
			c.diags = c.diags.Append(errorf(d.Range, "Invalid species", "%s", err))
			return nil
		}
		speciesTypes[d.Name] = t
	}
	tm.Freeze()

	world := model.NewSpecies(WorldSpecies, nil, worldType)
	c.model.AddSpecies(world, true)
	decls := []speciesDecl{{sp: world, desc: globalDesc}}
	c.shells(world, globalDesc)
	for _, d := range order {
		var parent *model.Species
		if name := parentName(d); name != "" {
			parent, _ = c.model.SpeciesNamed(name)
		}
		sp := model.NewSpecies(d.Name, parent, speciesTypes[d.Name])
		c.model.AddSpecies(sp, false)
		c.shells(sp, d)
		decls = append(decls, speciesDecl{sp: sp, desc: d})
	}
	return decls
}

// parentName reads the parent facet of a species.
func parentName(d *ast.Description) string {
	return nameFacet(d.Facet("parent"))
}

// nameFacet reads a facet holding a bare name or a string.
func nameFacet(x *ast.Expr) string {
	switch {
	case x == nil:
		return ""
	case x.Kind == ast.Ref:
		return x.Name
	case x.Kind == ast.Literal && !x.Value.IsNull() && x.Value.Type().Equals(cty.String):
		return x.Value.AsString()
	}
	return ""
}

// speciesOrder sorts species descriptions so that parents come before
// their children, rejecting unknown parents and inheritance cycles.
func (c *compilation) speciesOrder(descs []*ast.Description) []*ast.Description {
	byName := make(map[string]*ast.Description, len(descs))
	for _, d := range descs {
		if d.Name == "" || d.Name == WorldSpecies {
			c.diags = c.diags.Append(errorf(d.Range, "Invalid species", "a species needs a name other than '%s'", WorldSpecies))
			continue
		}
		if _, dup := byName[d.Name]; dup {
			c.diags = c.diags.Append(errorf(d.Range, "Duplicate species", "species %s is declared twice", d.Name))
			continue
		}
		byName[d.Name] = d
	}
	if c.diags.HasErrors() {
		return nil
	}

	g := dag.New()
	for _, d := range descs {
		g.AddNode(d.Name)
	}
	for _, d := range descs {
		name := parentName(d)
		if name == "" {
			continue
		}
		if !g.Has(name) {
			c.diags = c.diags.Append(errorf(d.Facet("parent").Range, "Unknown parent", "species %s extends unknown species '%s'", d.Name, name))
			continue
		}
		if err := g.AddEdge(name, d.Name); err != nil {
			c.diags = c.diags.Append(errorf(d.Range, "Inheritance cycle", "species %s inherits from itself", d.Name))
		}
	}
	if c.diags.HasErrors() {
		return nil
	}

	names, err := g.TopologicalOrder()
	if err != nil {
		var cycle *dag.CycleError
		errors.As(err, &cycle)
		c.diags = c.diags.Append(errorf(byName[cycle.Node].Range, "Inheritance cycle", "species %s inherits from itself", cycle.Node))
		return nil
	}
	order := make([]*ast.Description, len(names))
	for i, name := range names {
		order[i] = byName[name]
	}
	return order
}

// shells declares the variables, reflexes and actions of a species.
func (c *compilation) shells(sp *model.Species, d *ast.Description) {
	seen := make(map[string]bool)
	for _, child := range d.Children {
		switch child.Keyword {
		case "var", "const", "action":
			key := child.Keyword + " " + child.Name
			if child.Keyword == "const" {
				key = "var " + child.Name
			}
			if seen[key] {
				c.diags = c.diags.Append(errorf(child.Range, "Duplicate declaration", "%s %s is declared twice in %s", child.Keyword, child.Name, sp.Name))
				c.skipped[child] = true
				continue
			}
			seen[key] = true
		}
		switch child.Keyword {
		case "var", "const":
			sp.AddVar(&model.Variable{Name: child.Name, Type: c.declaredType(child, "init"), Const: child.Keyword == "const"})
		case "reflex":
			r := &executor.Reflex{Meta: meta(child), Name: child.Name}
			c.reflexes[child] = r
			sp.AddReflex(r)
		case "action":
			a := &executor.Action{Meta: meta(child), Name: child.Name, ReturnType: types.Unknown}
			if child.HasFacet("type") {
				a.ReturnType = c.declaredType(child, "")
			}
			for _, arg := range child.ChildrenOf("arg") {
				a.Formals = append(a.Formals, executor.Formal{Name: arg.Name, Type: c.declaredType(arg, "default")})
			}
			sp.DeclareAction(a)
		}
	}
}

// speciesBodies compiles initializers, reflexes, actions and the init
// block of a species into its shells.
func (c *compilation) speciesBodies(d speciesDecl) {
	sp := d.sp
	for _, child := range d.desc.Children {
		if c.skipped[child] {
			continue
		}
		e := newEnv(sp, nil)
		switch child.Keyword {
		case "var", "const":
			v, _ := sp.Var(child.Name)
			v.Init = c.facet(e, child, "init")
			v.Update = c.facet(e, child, "update")
			if v.Type == types.Unknown && v.Init != nil {
				v.Type = v.Init.Type()
			}
			if v.Const && v.Update != nil {
				c.diags = c.diags.Append(errorf(child.Range, "Invalid constant", "constant %s cannot have an update", v.Name))
			}
		case "reflex":
			r := c.reflexes[child]
			r.When = c.facet(e, child, "when")
			r.Body = c.body(e, child.Children)
		case "init":
			sp.Init = c.body(e, child.Children)
		case "action":
			a, _ := sp.Action(child.Name)
			c.actionBody(e, a, child)
		default:
			c.diags = c.diags.Append(errorf(child.Range, "Unknown declaration", "'%s' cannot be declared in species %s", child.Keyword, sp.Name))
		}
	}
}

func (c *compilation) actionBody(e *env, a *executor.Action, d *ast.Description) {
	e.action = a
	var stmts []*ast.Description
	i := 0
	for _, child := range d.Children {
		if child.Keyword != "arg" {
			stmts = append(stmts, child)
			continue
		}
		a.Formals[i].Default = c.facet(e, child, "default")
		e.declare(child.Name, a.Formals[i].Type)
		i++
	}
	a.Body = c.body(e, stmts)
}

// experiment compiles an experiment against the compiled global species.
func (c *compilation) experiment(d *ast.Description) *model.ExperimentPlan {
	plan := &model.ExperimentPlan{Name: d.Name, KeepSimulations: true}
	if d.Name == "" {
		c.diags = c.diags.Append(errorf(d.Range, "Invalid experiment", "an experiment needs a name"))
		return nil
	}
	if _, dup := c.model.Experiment(d.Name); dup {
		c.diags = c.diags.Append(errorf(d.Range, "Duplicate experiment", "experiment %s is declared twice", d.Name))
		return nil
	}

	for _, child := range d.ChildrenOf("parameter") {
		if p := c.parameter(plan, child); p != nil {
			plan.Parameters = append(plan.Parameters, p)
		}
	}
	for _, child := range d.Children {
		if child.Keyword == "var" {
			plan.Vars = append(plan.Vars, &model.Variable{Name: child.Name, Type: c.declaredType(child, "init")})
		}
	}

	e := newEnv(nil, plan)
	for _, child := range d.Children {
		switch child.Keyword {
		case "var":
			v, _ := plan.Var(child.Name)
			v.Init = c.facet(e, child, "init")
			if v.Type == types.Unknown && v.Init != nil {
				v.Type = v.Init.Type()
			}
		case "reflex":
			plan.Reflexes = append(plan.Reflexes, &executor.Reflex{
				Meta: meta(child),
				Name: child.Name,
				When: c.facet(e, child, "when"),
				Body: c.body(e, child.Children),
			})
		case "parameter":
		default:
			c.diags = c.diags.Append(errorf(child.Range, "Unknown declaration", "'%s' cannot be declared in experiment %s", child.Keyword, d.Name))
		}
	}

	if v, ok := c.literal(d, "keep_simulations", types.Bool); ok {
		plan.KeepSimulations = v.True()
	}
	if v, ok := c.literal(d, "parallelism", types.Int); ok {
		n, _ := v.AsBigFloat().Int64()
		if n < 0 {
			c.diags = c.diags.Append(errorf(d.Facet("parallelism").Range, "Invalid parallelism", "parallelism must not be negative"))
		}
		plan.Parallelism = int(n)
	}
	plan.Until = c.facet(newEnv(c.model.Global, nil), d, "until")
	return plan
}

func (c *compilation) parameter(plan *model.ExperimentPlan, d *ast.Description) *model.Parameter {
	p := &model.Parameter{Name: d.Name, Var: d.Name}
	if name := nameFacet(d.Facet("var")); name != "" {
		p.Var = name
	}
	v, ok := c.model.Global.Var(p.Var)
	if !ok {
		c.diags = c.diags.Append(errorf(d.Range, "Unknown parameter", "parameter %s refers to undeclared global '%s'", p.Name, p.Var))
		return nil
	}
	if v.Const {
		c.diags = c.diags.Append(errorf(d.Range, "Invalid parameter", "global '%s' is constant", p.Var))
		return nil
	}
	if _, dup := plan.Parameter(p.Name); dup {
		c.diags = c.diags.Append(errorf(d.Range, "Duplicate parameter", "parameter %s is declared twice", p.Name))
		return nil
	}
	p.Type = v.Type
	p.Init = c.facet(newEnv(nil, plan), d, "init")

	if among := d.Facet("among"); among != nil {
		x := c.expression(newEnv(c.model.Global, nil), among)
		if x == nil {
			return nil
		}
		val, err := c.constant(x)
		if err != nil {
			c.diags = c.diags.Append(errorf(among.Range, "Invalid parameter", "'among' of %s must be a constant list: %s", p.Name, err))
			return nil
		}
		for _, el := range types.Elements(val) {
			cast, err := types.Cast(el, p.Type)
			if err != nil {
				c.diags = c.diags.Append(errorf(among.Range, "Invalid parameter", "%s is not a valid %s", types.Format(el), p.Type))
				return nil
			}
			p.Among = append(p.Among, cast)
		}
	}
	return p
}

// constant evaluates an expression that does not depend on a simulation.
func (c *compilation) constant(x expr.Expression) (cty.Value, error) {
	if !x.IsConst() {
		return cty.NilVal, scope.Fatalf("%s is not constant", x.Text())
	}
	return x.Value(scope.New(c.ctx, scope.Options{Name: "constant folding"}))
}

// literal reads a constant facet of type t.
func (c *compilation) literal(d *ast.Description, name string, t *types.Type) (cty.Value, bool) {
	x := d.Facet(name)
	if x == nil {
		return cty.NilVal, false
	}
	compiled := c.expression(newEnv(c.model.Global, nil), x)
	if compiled == nil {
		return cty.NilVal, false
	}
	v, err := c.constant(compiled)
	if err == nil {
		v, err = types.Cast(v, t)
	}
	if err != nil || v.IsNull() {
		c.diags = c.diags.Append(errorf(x.Range, "Invalid facet", "'%s' must be a constant %s", name, t))
		return cty.NilVal, false
	}
	return v, true
}

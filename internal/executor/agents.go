package executor

import (
	"fmt"

	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// World gives statements access to the populations of the simulation they
// run in. The globals of a simulation scope implement it.
type World interface {
	// Population returns the live agents of a species and its subspecies.
	Population(species string) []scope.Agent
	// CreateAgents instantiates n agents of a species. init holds attribute
	// values applied before the species init block runs.
	CreateAgents(s *scope.Scope, species string, n int, init map[string]cty.Value) ([]scope.Agent, error)
}

func world(s *scope.Scope) (World, error) {
	w, ok := s.Globals().(World)
	if !ok {
		return nil, scope.Fatalf("no simulation to manage agents in scope %q", s.Name())
	}
	return w, nil
}

// Myself names the variable holding the asking agent inside ask and
// create bodies.
const Myself = "myself"

// runAs executes body for agent a in a scope nested in s, so the locals of
// s stay visible. Die and Dispose concern a and stop there; Return
// propagates to s.
func runAs(s *scope.Scope, owner Statement, a scope.Agent, body []Statement) (stop bool, err error) {
	sub := s.Nested(owner.Keyword())
	sub.SetAgent(a)
	sub.Enter(owner)
	defer sub.Leave()
	if me := s.Agent(); me != nil {
		sub.DeclareVar(Myself, types.AgentVal(me))
	} else {
		sub.DeclareVar(Myself, cty.NullVal(types.AgentCapsule))
	}
	if _, err := RunAll(sub, body); err != nil {
		return true, err
	}
	switch sub.Status() {
	case scope.Return:
		s.SetStatus(scope.Return)
		return true, nil
	case scope.Break:
		return true, nil
	}
	return false, nil
}

// Ask runs Body once for every target agent, with the agent bound as self.
// Target evaluates to an agent, a list of agents or a species reference.
type Ask struct {
	Meta
	Target expr.Expression
	Body   []Statement
}

func (a *Ask) Execute(s *scope.Scope) (cty.Value, error) {
	targets, err := a.targets(s)
	if err != nil {
		return cty.NilVal, err
	}
	for _, t := range targets {
		if t.Dead() {
			continue
		}
		stop, err := runAs(s, a, t, a.Body)
		if err != nil || stop {
			return null(), err
		}
	}
	return null(), nil
}

func (a *Ask) targets(s *scope.Scope) ([]scope.Agent, error) {
	if ref, ok := a.Target.(*expr.Type); ok {
		w, err := world(s)
		if err != nil {
			return nil, err
		}
		// snapshot: agents created by the body are not asked.
		return append([]scope.Agent(nil), w.Population(ref.Referenced().Name())...), nil
	}
	v, err := a.Target.Value(s)
	if err != nil {
		return nil, err
	}
	if v.IsNull() {
		return nil, nil
	}
	var vals []cty.Value
	if types.TypeOf(v) == types.List {
		vals = types.Elements(v)
	} else {
		vals = []cty.Value{v}
	}
	out := make([]scope.Agent, 0, len(vals))
	for _, e := range vals {
		if e.IsNull() {
			continue
		}
		ref, ok := types.AgentOf(e)
		if !ok {
			return nil, scope.Fatalf("cannot ask %s, a %s", types.Format(e), types.TypeOf(e))
		}
		ag, ok := ref.(scope.Agent)
		if !ok {
			return nil, scope.Fatalf("agent %s cannot be asked", ref.AgentName())
		}
		out = append(out, ag)
	}
	return out, nil
}

// Create instantiates agents of Species. With holds attribute values
// evaluated in the creating scope; Body then runs for each new agent like
// an ask. When Returns is set the list of new agents is bound to that
// local variable.
type Create struct {
	Meta
	Species string
	Number  expr.Expression
	With    map[string]expr.Expression
	Body    []Statement
	Returns string
}

func (c *Create) Execute(s *scope.Scope) (cty.Value, error) {
	w, err := world(s)
	if err != nil {
		return cty.NilVal, err
	}
	n := int64(1)
	if c.Number != nil {
		v, err := number(s, c.Number)
		if err != nil {
			return cty.NilVal, err
		}
		n, _ = v.AsBigFloat().Int64()
	}
	if n < 0 {
		return cty.NilVal, scope.Warningf("cannot create %d agents of %s", n, c.Species)
	}

	init := make(map[string]cty.Value, len(c.With))
	for name, e := range c.With {
		v, err := e.Value(s)
		if err != nil {
			return cty.NilVal, err
		}
		init[name] = v
	}

	created, err := w.CreateAgents(s, c.Species, int(n), init)
	if err != nil {
		return cty.NilVal, err
	}
	vals := make([]cty.Value, 0, len(created))
	for _, a := range created {
		vals = append(vals, types.AgentVal(a))
		if len(c.Body) == 0 || a.Dead() {
			continue
		}
		stop, err := runAs(s, c, a, c.Body)
		if err != nil {
			return cty.NilVal, err
		}
		if stop {
			break
		}
	}
	out := types.ListVal(vals)
	if c.Returns != "" {
		s.DeclareVar(c.Returns, out)
	}
	return out, nil
}

// Reflex is a behaviour run once per step by every agent of a species,
// when its When condition holds.
type Reflex struct {
	Meta
	Name string
	When expr.Expression
	Body []Statement
}

func (r *Reflex) String() string { return fmt.Sprintf("reflex %s", r.Name) }

// Execute runs the reflex body in its own frame.
func (r *Reflex) Execute(s *scope.Scope) (cty.Value, error) {
	if r.When != nil {
		ok, err := truth(s, r.When)
		if err != nil || !ok {
			return null(), err
		}
	}
	var out cty.Value
	err := s.Do(r, func() error {
		var err error
		out, err = RunAll(s, r.Body)
		return err
	})
	return out, err
}

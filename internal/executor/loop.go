package executor

import (
	"math"
	"sort"

	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Cursor produces the next value of a loop variable. ok is false once the
// loop is exhausted.
type Cursor func(s *scope.Scope) (v cty.Value, ok bool, err error)

// Source starts one run of a loop.
type Source interface {
	Open(s *scope.Scope) (Cursor, error)
}

// Loop is the driver shared by every loop form. Each iteration binds Var,
// when set, in a fresh frame and runs Body.
type Loop struct {
	Meta
	Var    string
	Source Source
	Body   []Statement
}

func (l *Loop) label() string {
	if l.Var != "" {
		return l.Var
	}
	return l.Key
}

func (l *Loop) Execute(s *scope.Scope) (cty.Value, error) {
	s.Reporter().LoopEntered(s.Context(), l.label())

	next, err := l.Source.Open(s)
	if err != nil {
		return cty.NilVal, err
	}
	for {
		v, ok, err := next(s)
		if err != nil {
			return cty.NilVal, err
		}
		if !ok {
			return null(), nil
		}

		var out cty.Value
		err = s.Do(l, func() error {
			if l.Var != "" {
				s.DeclareVar(l.Var, v)
			}
			var err error
			out, err = RunAll(s, l.Body)
			return err
		})
		if err != nil {
			return cty.NilVal, err
		}

		switch s.ConsumeContinue() {
		case scope.Normal, scope.Continue:
		case scope.Break:
			s.ClearBreak()
			return null(), nil
		default:
			return out, nil
		}
	}
}

func number(s *scope.Scope, e expr.Expression) (cty.Value, error) {
	v, err := e.Value(s)
	if err != nil {
		return cty.NilVal, err
	}
	if v.IsNull() || !v.Type().Equals(cty.Number) {
		return cty.NilVal, scope.Fatalf("%s is not a number", e.Text())
	}
	return v, nil
}

// Range iterates from From to To, both inclusive. Without Step the loop
// moves by one towards To. A positive Step on a descending range is
// applied downwards; a negative Step on an ascending range runs no
// iteration.
type Range struct {
	From, To expr.Expression
	Step     expr.Expression
}

func (r *Range) Open(s *scope.Scope) (Cursor, error) {
	from, err := number(s, r.From)
	if err != nil {
		return nil, err
	}
	to, err := number(s, r.To)
	if err != nil {
		return nil, err
	}
	integral := types.IsIntegral(from) && types.IsIntegral(to)

	f, _ := from.AsBigFloat().Float64()
	t, _ := to.AsBigFloat().Float64()
	step := 1.0
	if t < f {
		step = -1
	}
	if r.Step != nil {
		sv, err := number(s, r.Step)
		if err != nil {
			return nil, err
		}
		integral = integral && types.IsIntegral(sv)
		given, _ := sv.AsBigFloat().Float64()
		switch {
		case given == 0:
			return nil, scope.Fatalf("loop step cannot be zero")
		case t < f && given > 0:
			step = -given
		case t > f && given < 0:
			return func(*scope.Scope) (cty.Value, bool, error) { return cty.NilVal, false, nil }, nil
		default:
			step = given
		}
	}

	i := 0
	return func(*scope.Scope) (cty.Value, bool, error) {
		cur := f + float64(i)*step
		if (step > 0 && cur > t) || (step < 0 && cur < t) {
			return cty.NilVal, false, nil
		}
		i++
		if integral {
			return cty.NumberIntVal(int64(math.Round(cur))), true, nil
		}
		return cty.NumberFloatVal(cur), true, nil
	}, nil
}

// Over iterates the elements of a container. A map yields its values in
// key order. The container is read once when the loop starts.
type Over struct {
	Container expr.Expression
}

func (o *Over) Open(s *scope.Scope) (Cursor, error) {
	v, err := o.Container.Value(s)
	if err != nil {
		return nil, err
	}
	var elems []cty.Value
	switch {
	case v.IsNull():
	case v.Type().IsObjectType() || v.Type().IsMapType():
		m := v.AsValueMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			elems = append(elems, m[k])
		}
	case types.TypeOf(v) == types.List:
		elems = types.Elements(v)
	default:
		return nil, scope.Fatalf("cannot iterate over %s, a %s", o.Container.Text(), types.TypeOf(v))
	}

	i := 0
	return func(*scope.Scope) (cty.Value, bool, error) {
		if i >= len(elems) {
			return cty.NilVal, false, nil
		}
		i++
		return elems[i-1], true, nil
	}, nil
}

// Times repeats the body a fixed number of times.
type Times struct {
	Count expr.Expression
}

func (t *Times) Open(s *scope.Scope) (Cursor, error) {
	v, err := number(s, t.Count)
	if err != nil {
		return nil, err
	}
	n, _ := v.AsBigFloat().Int64()
	i := int64(0)
	return func(*scope.Scope) (cty.Value, bool, error) {
		if i >= n {
			return cty.NilVal, false, nil
		}
		i++
		return null(), true, nil
	}, nil
}

// While repeats the body as long as Cond holds. Cond is evaluated before
// every iteration.
type While struct {
	Cond expr.Expression
}

func (w *While) Open(*scope.Scope) (Cursor, error) {
	return func(s *scope.Scope) (cty.Value, bool, error) {
		ok, err := truth(s, w.Cond)
		return null(), ok, err
	}, nil
}

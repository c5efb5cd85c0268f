package executor

import (
	"github.com/vk/agentgrid/internal/expr"
	"github.com/vk/agentgrid/internal/scope"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// Sequence runs its children in order.
type Sequence struct {
	Meta
	Body []Statement
}

func (q *Sequence) Execute(s *scope.Scope) (cty.Value, error) {
	var out cty.Value
	err := s.Do(q, func() error {
		var err error
		out, err = RunAll(s, q.Body)
		return err
	})
	return out, err
}

// If runs Then when Cond holds and Else otherwise. A nil condition value
// is false.
type If struct {
	Meta
	Cond expr.Expression
	Then []Statement
	Else []Statement
}

func (i *If) Execute(s *scope.Scope) (cty.Value, error) {
	ok, err := truth(s, i.Cond)
	if err != nil {
		return cty.NilVal, err
	}
	body := i.Else
	if ok {
		body = i.Then
	}
	if len(body) == 0 {
		return null(), nil
	}
	var out cty.Value
	err = s.Do(i, func() error {
		var err error
		out, err = RunAll(s, body)
		return err
	})
	return out, err
}

func truth(s *scope.Scope, e expr.Expression) (bool, error) {
	v, err := e.Value(s)
	if err != nil {
		return false, err
	}
	if v.IsNull() {
		return false, nil
	}
	b, err := types.Cast(v, types.Bool)
	if err != nil {
		return false, scope.Fatalf("%s: %v", e.Text(), err)
	}
	return b.True(), nil
}

// Let declares a local variable in the innermost frame.
type Let struct {
	Meta
	Name  string
	Type  *types.Type
	Value expr.Expression
}

func (l *Let) Execute(s *scope.Scope) (cty.Value, error) {
	v := l.Type.Default()
	if l.Value != nil {
		var err error
		if v, err = l.Value.Value(s); err != nil {
			return cty.NilVal, err
		}
		if v, err = coerce(v, l.Type); err != nil {
			return cty.NilVal, err
		}
	}
	s.DeclareVar(l.Name, v)
	return v, nil
}

// Set assigns through a variable reference.
type Set struct {
	Meta
	Target *expr.Var
	Value  expr.Expression
}

func (a *Set) Execute(s *scope.Scope) (cty.Value, error) {
	v, err := a.Value.Value(s)
	if err != nil {
		return cty.NilVal, err
	}
	if v, err = coerce(v, a.Target.Type()); err != nil {
		return cty.NilVal, err
	}
	if err := a.Target.Assign(s, v); err != nil {
		return cty.NilVal, err
	}
	return v, nil
}

// Return ends the enclosing action and carries Value to its caller.
type Return struct {
	Meta
	Value expr.Expression
}

func (r *Return) Execute(s *scope.Scope) (cty.Value, error) {
	v := null()
	if r.Value != nil {
		var err error
		if v, err = r.Value.Value(s); err != nil {
			return cty.NilVal, err
		}
	}
	s.SetStatus(scope.Return)
	return v, nil
}

// Break ends the innermost loop.
type Break struct{ Meta }

func (b *Break) Execute(s *scope.Scope) (cty.Value, error) {
	s.SetStatus(scope.Break)
	return null(), nil
}

// Continue skips to the next iteration of the innermost loop.
type Continue struct{ Meta }

func (c *Continue) Execute(s *scope.Scope) (cty.Value, error) {
	s.SetStatus(scope.Continue)
	return null(), nil
}

// Mortal is implemented by agents that can be killed by a die statement.
type Mortal interface {
	Die()
}

// Die kills the acting agent. The rest of its behaviour for this step is
// skipped.
type Die struct{ Meta }

func (d *Die) Execute(s *scope.Scope) (cty.Value, error) {
	if m, ok := s.Agent().(Mortal); ok {
		m.Die()
	}
	s.SetStatus(scope.Die)
	return null(), nil
}

// Do evaluates a call for its effect.
type Do struct {
	Meta
	Call expr.Expression
}

func (d *Do) Execute(s *scope.Scope) (cty.Value, error) {
	return d.Call.Value(s)
}

// Wait parks the unit until it is resumed from outside.
type Wait struct {
	Meta
	Message expr.Expression
}

func (w *Wait) Execute(s *scope.Scope) (cty.Value, error) {
	msg := ""
	if w.Message != nil {
		v, err := w.Message.Value(s)
		if err != nil {
			return cty.NilVal, err
		}
		msg = types.Format(v)
	}
	s.Logger().Info("⏸️ Waiting for resume.", "scope", s.Name(), "message", msg)
	if err := s.AwaitResume(); err != nil {
		return cty.NilVal, scope.Fatalf("wait interrupted: %v", err)
	}
	return null(), nil
}

// Try runs Body and, when it fails with a fatal runtime error, logs the
// error and runs Catch instead of propagating it. Cancellation of the
// unit is never caught.
type Try struct {
	Meta
	Body  []Statement
	Catch []Statement
}

func (t *Try) Execute(s *scope.Scope) (cty.Value, error) {
	var out cty.Value
	err := s.Do(t, func() error {
		var err error
		out, err = RunAll(s, t.Body)
		return err
	})
	if err == nil {
		return out, nil
	}
	if s.Context().Err() != nil {
		return cty.NilVal, err
	}
	s.Logger().Debug("Runtime error caught.", "scope", s.Name(), "error", err)
	if len(t.Catch) == 0 {
		return null(), nil
	}
	err = s.Do(t, func() error {
		var err error
		out, err = RunAll(s, t.Catch)
		return err
	})
	return out, err
}

// Warn raises Message as a runtime warning, or as a fatal error when Fatal
// is set. Dead agents raise nothing.
type Warn struct {
	Meta
	Message expr.Expression
	Fatal   bool
}

func (w *Warn) Execute(s *scope.Scope) (cty.Value, error) {
	if a := s.Agent(); a != nil && a.Dead() {
		return null(), nil
	}
	v, err := w.Message.Value(s)
	if err != nil {
		return cty.NilVal, err
	}
	msg := types.Format(v)
	if w.Fatal {
		return cty.NilVal, scope.Fatalf("%s", msg)
	}
	return cty.NilVal, scope.Warningf("%s", msg)
}

// Package scope implements the execution context shared by expressions and
// statements: a stack of local variable frames, the agent currently acting,
// access to global variables, the flow status used to propagate break,
// continue, return and death, and the unit's random generator.
//
// A Scope is owned by one simulation unit and is never used by two
// goroutines at the same time.
package scope

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emirpasic/gods/stacks/arraystack"
	"github.com/hashicorp/hcl/v2"
	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/vk/agentgrid/internal/random"
	"github.com/vk/agentgrid/internal/status"
	"github.com/vk/agentgrid/internal/types"
	"github.com/zclconf/go-cty/cty"
)

// FlowStatus is the control-flow signal carried by a scope.
type FlowStatus int

const (
	Normal FlowStatus = iota
	Break
	Continue
	Return
	Die
	Dispose
)

func (f FlowStatus) String() string {
	switch f {
	case Normal:
		return "normal"
	case Break:
		return "break"
	case Continue:
		return "continue"
	case Return:
		return "return"
	case Die:
		return "die"
	case Dispose:
		return "dispose"
	}
	return fmt.Sprintf("FlowStatus(%d)", int(f))
}

// Agent is the receiver statements execute on.
type Agent interface {
	types.AgentRef
	Attribute(name string) (cty.Value, bool)
	SetAttribute(name string, v cty.Value) bool
	Dead() bool
}

// Globals resolves variables that are not local and not attributes of the
// acting agent.
type Globals interface {
	Global(name string) (cty.Value, error)
	SetGlobal(name string, v cty.Value) error
}

// Holder suspends the caller until the owning unit is resumed.
type Holder interface {
	AwaitResume(ctx context.Context) error
}

// Traceable is implemented by statements so that errors can name the
// statement that raised them.
type Traceable interface {
	Keyword() string
	SourceRange() hcl.Range
}

// ErrorHandler receives runtime errors reported through a scope.
type ErrorHandler func(ctx context.Context, err *RuntimeError)

type frame struct {
	owner any
	vars  map[string]cty.Value
}

// Options configures a new Scope.
type Options struct {
	Name     string
	Agent    Agent
	Globals  Globals
	Random   *random.Generator
	Reporter status.Reporter
	Holder   Holder
	OnError  ErrorHandler
}

// Scope is the execution context of one unit.
type Scope struct {
	ctx      context.Context
	name     string
	frames   []*frame
	agent    Agent
	globals  Globals
	flow     FlowStatus
	stack    *arraystack.Stack
	random   *random.Generator
	reporter status.Reporter
	holder   Holder
	onError  ErrorHandler
}

// New creates a scope with an empty root frame.
func New(ctx context.Context, opts Options) *Scope {
	reporter := opts.Reporter
	if reporter == nil {
		reporter = status.Noop{}
	}
	return &Scope{
		ctx:      ctx,
		name:     opts.Name,
		frames:   []*frame{{vars: make(map[string]cty.Value)}},
		agent:    opts.Agent,
		globals:  opts.Globals,
		stack:    arraystack.New(),
		random:   opts.Random,
		reporter: reporter,
		holder:   opts.Holder,
		onError:  opts.OnError,
	}
}

func (s *Scope) Name() string              { return s.name }
func (s *Scope) Context() context.Context  { return s.ctx }
func (s *Scope) Logger() *slog.Logger      { return ctxlog.FromContext(s.ctx) }
func (s *Scope) Agent() Agent              { return s.agent }
func (s *Scope) Globals() Globals          { return s.globals }
func (s *Scope) Random() *random.Generator { return s.random }
func (s *Scope) Reporter() status.Reporter { return s.reporter }

// SetAgent rebinds the acting agent.
func (s *Scope) SetAgent(a Agent) { s.agent = a }

// SetContext replaces the context carried by the scope, typically the
// per-tick context of the unit.
func (s *Scope) SetContext(ctx context.Context) { s.ctx = ctx }

// Copy derives a sibling scope sharing agent, globals, generator and
// callbacks but with its own locals and flow status.
func (s *Scope) Copy(name string) *Scope {
	return &Scope{
		ctx:      s.ctx,
		name:     name,
		frames:   []*frame{{vars: make(map[string]cty.Value)}},
		agent:    s.agent,
		globals:  s.globals,
		stack:    arraystack.New(),
		random:   s.random,
		reporter: s.reporter,
		holder:   s.holder,
		onError:  s.onError,
	}
}

// Nested derives a scope for a body run on behalf of s, such as the body
// of an ask. It shares the frames of s, so locals of s can be read and
// written, and opens a frame of its own for new declarations. Flow status
// and the statement stack are its own.
func (s *Scope) Nested(name string) *Scope {
	frames := make([]*frame, len(s.frames), len(s.frames)+1)
	copy(frames, s.frames)
	sub := s.Copy(name)
	sub.frames = append(frames, &frame{owner: sub, vars: make(map[string]cty.Value)})
	return sub
}

// Push opens a new local frame owned by owner.
func (s *Scope) Push(owner any) {
	s.frames = append(s.frames, &frame{owner: owner, vars: make(map[string]cty.Value)})
}

// Pop closes the innermost frame. It panics when the frame was not opened
// by owner, which means a push/pop pair was broken.
func (s *Scope) Pop(owner any) {
	n := len(s.frames)
	if n <= 1 {
		panic("scope: pop of root frame")
	}
	if s.frames[n-1].owner != owner {
		panic(fmt.Sprintf("scope: pop by %v of a frame pushed by %v", owner, s.frames[n-1].owner))
	}
	s.frames[n-1] = nil
	s.frames = s.frames[:n-1]
}

// Do runs fn inside a frame owned by owner. The frame is popped even when
// fn panics.
func (s *Scope) Do(owner any, fn func() error) error {
	s.Push(owner)
	defer s.Pop(owner)
	return fn()
}

// Depth is the number of open frames, root included.
func (s *Scope) Depth() int { return len(s.frames) }

// DeclareVar binds name in the innermost frame, shadowing outer bindings.
func (s *Scope) DeclareVar(name string, v cty.Value) {
	s.frames[len(s.frames)-1].vars[name] = v
}

// Temp looks name up in the local frames only.
func (s *Scope) Temp(name string) (cty.Value, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].vars[name]; ok {
			return v, true
		}
	}
	return cty.NilVal, false
}

// Var looks name up in the local frames, then in the acting agent.
func (s *Scope) Var(name string) (cty.Value, bool) {
	if v, ok := s.Temp(name); ok {
		return v, true
	}
	if s.agent != nil {
		return s.agent.Attribute(name)
	}
	return cty.NilVal, false
}

// SetVar updates the nearest local binding of name, or the agent attribute
// when no local exists.
func (s *Scope) SetVar(name string, v cty.Value) error {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if _, ok := s.frames[i].vars[name]; ok {
			s.frames[i].vars[name] = v
			return nil
		}
	}
	if s.agent != nil && s.agent.SetAttribute(name, v) {
		return nil
	}
	return Fatalf("no variable named %q", name)
}

// Global reads a global variable.
func (s *Scope) Global(name string) (cty.Value, error) {
	if s.globals == nil {
		return cty.NilVal, Fatalf("no global context to read %q from", name)
	}
	return s.globals.Global(name)
}

// SetGlobal writes a global variable.
func (s *Scope) SetGlobal(name string, v cty.Value) error {
	if s.globals == nil {
		return Fatalf("no global context to write %q to", name)
	}
	return s.globals.SetGlobal(name, v)
}

// Status returns the current flow status.
func (s *Scope) Status() FlowStatus { return s.flow }

// SetStatus replaces the flow status.
func (s *Scope) SetStatus(f FlowStatus) { s.flow = f }

// Interrupted reports whether a flow status other than Normal is set.
func (s *Scope) Interrupted() bool { return s.flow != Normal }

// ClearStatus resets the flow status to Normal.
func (s *Scope) ClearStatus() { s.flow = Normal }

// ConsumeContinue returns the current status and clears it when it is
// Continue, which only ever stops the current iteration.
func (s *Scope) ConsumeContinue() FlowStatus {
	f := s.flow
	if f == Continue {
		s.flow = Normal
	}
	return f
}

// ClearBreak clears a Break status once the loop it targeted has ended.
func (s *Scope) ClearBreak() {
	if s.flow == Break {
		s.flow = Normal
	}
}

// Enter records stmt as the innermost executing statement.
func (s *Scope) Enter(stmt Traceable) { s.stack.Push(stmt) }

// Leave pops the innermost executing statement.
func (s *Scope) Leave() { s.stack.Pop() }

// Current returns the innermost executing statement, or nil.
func (s *Scope) Current() Traceable {
	v, ok := s.stack.Peek()
	if !ok {
		return nil
	}
	return v.(Traceable)
}

// Report classifies err, attaches the executing statement and hands it to
// the error handler. It returns the classified error.
func (s *Scope) Report(err error) *RuntimeError {
	rt := AsRuntimeError(err)
	if rt == nil {
		return nil
	}
	if rt.Statement == "" {
		if cur := s.Current(); cur != nil {
			rt.Statement = cur.Keyword()
			rt.Range = cur.SourceRange()
		}
	}
	if s.onError != nil {
		s.onError(s.ctx, rt)
		return rt
	}
	logger := s.Logger()
	if rt.Fatal {
		logger.Error("Runtime error.", "scope", s.name, "error", rt)
	} else {
		logger.Warn("Runtime warning.", "scope", s.name, "error", rt)
	}
	return rt
}

// AwaitResume blocks until the owning unit is resumed. Without a holder it
// returns immediately.
func (s *Scope) AwaitResume() error {
	if s.holder == nil {
		return nil
	}
	return s.holder.AwaitResume(s.ctx)
}

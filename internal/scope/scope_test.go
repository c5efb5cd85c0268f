package scope

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

type testAgent struct {
	attrs map[string]cty.Value
}

func (a *testAgent) AgentName() string   { return "ant0" }
func (a *testAgent) SpeciesName() string { return "ant" }
func (a *testAgent) Dead() bool          { return false }

func (a *testAgent) Attribute(name string) (cty.Value, bool) {
	v, ok := a.attrs[name]
	return v, ok
}

func (a *testAgent) SetAttribute(name string, v cty.Value) bool {
	if _, ok := a.attrs[name]; !ok {
		return false
	}
	a.attrs[name] = v
	return true
}

type testGlobals map[string]cty.Value

func (g testGlobals) Global(name string) (cty.Value, error) {
	v, ok := g[name]
	if !ok {
		return cty.NilVal, Fatalf("no global %q", name)
	}
	return v, nil
}

func (g testGlobals) SetGlobal(name string, v cty.Value) error {
	g[name] = v
	return nil
}

type testStatement struct{}

func (testStatement) Keyword() string { return "set" }
func (testStatement) SourceRange() hcl.Range {
	return hcl.Range{Filename: "main.hcl", Start: hcl.Pos{Line: 3, Column: 1}}
}

func newTestScope(opts Options) (*Scope, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(ctxlog.WithLogger(context.Background(), logger), opts), &buf
}

func TestScope_FramesShadowAndUnwind(t *testing.T) {
	s, _ := newTestScope(Options{Name: "unit"})
	s.DeclareVar("x", cty.NumberIntVal(1))

	owner := "loop"
	err := s.Do(owner, func() error {
		s.DeclareVar("x", cty.NumberIntVal(2))
		v, ok := s.Temp("x")
		require.True(t, ok)
		assert.True(t, v.RawEquals(cty.NumberIntVal(2)))
		assert.Equal(t, 2, s.Depth())
		return nil
	})
	require.NoError(t, err)

	v, ok := s.Temp("x")
	require.True(t, ok)
	assert.True(t, v.RawEquals(cty.NumberIntVal(1)))
	assert.Equal(t, 1, s.Depth())
}

func TestScope_PopChecksOwnership(t *testing.T) {
	s, _ := newTestScope(Options{})
	assert.Panics(t, func() { s.Pop("nobody") })

	s.Push("a")
	assert.Panics(t, func() { s.Pop("b") })
	assert.NotPanics(t, func() { s.Pop("a") })
}

func TestScope_VarFallsBackToAgent(t *testing.T) {
	agent := &testAgent{attrs: map[string]cty.Value{"energy": cty.NumberIntVal(5)}}
	s, _ := newTestScope(Options{Agent: agent})

	v, ok := s.Var("energy")
	require.True(t, ok)
	assert.True(t, v.RawEquals(cty.NumberIntVal(5)))

	require.NoError(t, s.SetVar("energy", cty.NumberIntVal(7)))
	assert.True(t, agent.attrs["energy"].RawEquals(cty.NumberIntVal(7)))

	s.DeclareVar("energy", cty.NumberIntVal(0))
	require.NoError(t, s.SetVar("energy", cty.NumberIntVal(9)))
	assert.True(t, agent.attrs["energy"].RawEquals(cty.NumberIntVal(7)), "a local shadows the attribute")

	err := s.SetVar("missing", cty.True)
	require.Error(t, err)
	assert.False(t, IsWarning(err))
}

func TestScope_Globals(t *testing.T) {
	s, _ := newTestScope(Options{})
	_, err := s.Global("cycle")
	require.Error(t, err)
	require.Error(t, s.SetGlobal("cycle", cty.NumberIntVal(1)))

	g := testGlobals{"cycle": cty.NumberIntVal(3)}
	s, _ = newTestScope(Options{Globals: g})
	v, err := s.Global("cycle")
	require.NoError(t, err)
	assert.True(t, v.RawEquals(cty.NumberIntVal(3)))
	require.NoError(t, s.SetGlobal("food", cty.NumberIntVal(1)))
	assert.Contains(t, g, "food")
}

func TestScope_FlowStatus(t *testing.T) {
	s, _ := newTestScope(Options{})
	assert.False(t, s.Interrupted())

	s.SetStatus(Continue)
	assert.Equal(t, Continue, s.ConsumeContinue())
	assert.Equal(t, Normal, s.Status())

	s.SetStatus(Return)
	assert.Equal(t, Return, s.ConsumeContinue())
	s.ClearBreak()
	assert.Equal(t, Return, s.Status())

	s.SetStatus(Break)
	s.ClearBreak()
	assert.False(t, s.Interrupted())
	assert.Equal(t, "die", Die.String())
}

func TestScope_CopyKeepsSharedStateOnly(t *testing.T) {
	agent := &testAgent{attrs: map[string]cty.Value{}}
	s, _ := newTestScope(Options{Name: "unit", Agent: agent})
	s.DeclareVar("tmp", cty.True)
	s.SetStatus(Die)

	c := s.Copy("child")
	assert.Equal(t, "child", c.Name())
	assert.Same(t, agent, c.Agent().(*testAgent))
	_, ok := c.Temp("tmp")
	assert.False(t, ok)
	assert.Equal(t, Normal, c.Status())
}

func TestScope_NestedSharesLocals(t *testing.T) {
	s, _ := newTestScope(Options{Name: "unit", Agent: &testAgent{attrs: map[string]cty.Value{}}})
	s.DeclareVar("step", cty.NumberIntVal(2))
	s.SetStatus(Continue)

	target := &testAgent{attrs: map[string]cty.Value{"energy": cty.NumberIntVal(1)}}
	n := s.Nested("ask")
	n.SetAgent(target)
	assert.Equal(t, Normal, n.Status())

	v, ok := n.Var("step")
	require.True(t, ok, "locals of the caller are visible")
	assert.True(t, v.RawEquals(cty.NumberIntVal(2)))
	require.NoError(t, n.SetVar("step", cty.NumberIntVal(3)))
	n.DeclareVar("inner", cty.True)
	n.Push("loop")
	n.DeclareVar("deeper", cty.True)
	n.Pop("loop")

	v, _ = s.Temp("step")
	assert.True(t, v.RawEquals(cty.NumberIntVal(3)), "writes reach the caller's frame")
	_, ok = s.Temp("inner")
	assert.False(t, ok, "declarations stay in the nested scope")
	assert.Equal(t, 1, s.Depth())
	assert.Equal(t, Continue, s.Status())

	v, ok = n.Var("energy")
	require.True(t, ok)
	assert.True(t, v.RawEquals(cty.NumberIntVal(1)))
}

func TestScope_ReportAttachesTheStatement(t *testing.T) {
	s, logs := newTestScope(Options{Name: "unit"})
	s.Enter(testStatement{})
	rt := s.Report(Warningf("slow network"))
	s.Leave()

	require.NotNil(t, rt)
	assert.Equal(t, "set", rt.Statement)
	assert.Contains(t, rt.Error(), "warning in set at main.hcl:3,1")
	assert.Contains(t, logs.String(), "Runtime warning.")
	assert.Nil(t, s.Current())
	assert.Nil(t, s.Report(nil))
}

func TestScope_ReportUsesTheHandler(t *testing.T) {
	var got []*RuntimeError
	s, logs := newTestScope(Options{OnError: func(_ context.Context, err *RuntimeError) {
		got = append(got, err)
	}})

	rt := s.Report(errors.New("boom"))

	require.Len(t, got, 1)
	assert.Same(t, rt, got[0])
	assert.True(t, rt.Fatal)
	assert.Empty(t, logs.String())
}

func TestRuntimeError_Classification(t *testing.T) {
	warn := Warningf("w %d", 1)
	fatal := Fatalf("f")
	wrapped := errors.Join(errors.New("outer"), warn)

	assert.True(t, IsWarning(warn))
	assert.False(t, IsWarning(fatal))
	assert.True(t, IsWarning(wrapped))
	assert.Same(t, warn, AsRuntimeError(wrapped))
	assert.Equal(t, "error: f", fatal.Error())
	assert.Nil(t, AsRuntimeError(nil))
}

func TestScope_AwaitResumeWithoutHolder(t *testing.T) {
	s, _ := newTestScope(Options{})
	assert.NoError(t, s.AwaitResume())
}

package socketio

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/ast"
	"github.com/vk/agentgrid/internal/simulation"
	"github.com/vk/agentgrid/internal/testutil"
	"github.com/vk/agentgrid/internal/testutil/modeltest"
	"github.com/zclconf/go-cty/cty"
)

type event struct {
	name    string
	payload map[string]any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []event
	err    error
}

func (f *fakeEmitter) Emit(name string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event{name: name, payload: args[0].(map[string]any)})
	return nil
}

func TestEmit_FromAModel(t *testing.T) {
	ctx, _ := testutil.Context(t)
	em := &fakeEmitter{}
	reg := testutil.Registry(nil, &Module{Emitter: em})
	m := modeltest.Compile(t, reg,
		modeltest.Node("global", "", nil,
			modeltest.Node("reflex", "report", nil,
				modeltest.Node("emit", "", modeltest.Facets{
					"event": modeltest.Str("population"),
					"data":  ast.List(modeltest.Int(1), modeltest.Str("a")),
				}),
			),
		),
	)

	u, err := simulation.New(ctx, simulation.Options{ID: 1, Model: m, Seed: 1})
	require.NoError(t, err)
	require.NoError(t, u.Schedule())
	require.NoError(t, u.Step(ctx))
	require.NoError(t, u.Step(ctx))

	require.Len(t, em.events, 2)
	assert.Equal(t, "population", em.events[0].name)
	assert.Equal(t, int64(0), em.events[0].payload["cycle"])
	assert.Equal(t, int64(1), em.events[1].payload["cycle"])
	assert.Equal(t, "test#1", em.events[0].payload["scope"])
	assert.JSONEq(t, `[1,"a"]`, string(em.events[0].payload["data"].(json.RawMessage)))
}

func TestEmit_WithoutConnection(t *testing.T) {
	ctx, _ := testutil.Context(t)
	m := modeltest.Compile(t, testutil.Registry(nil, &Module{}))
	u, err := simulation.New(ctx, simulation.Options{ID: 1, Model: m, Seed: 1})
	require.NoError(t, err)

	v, err := (&Module{}).Emit(u.Scope(), map[string]cty.Value{"event": cty.StringVal("x")})
	require.NoError(t, err)
	assert.True(t, v.False())
}

func TestEmit_ErrorsAreWarnings(t *testing.T) {
	ctx, _ := testutil.Context(t)
	m := modeltest.Compile(t, nil)
	u, err := simulation.New(ctx, simulation.Options{ID: 1, Model: m, Seed: 1})
	require.NoError(t, err)

	mod := &Module{Emitter: &fakeEmitter{err: errors.New("closed")}}
	v, err := mod.Emit(u.Scope(), map[string]cty.Value{"event": cty.StringVal("x"), "data": cty.NullVal(cty.DynamicPseudoType)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emit x: closed")
	assert.True(t, v.False())
}

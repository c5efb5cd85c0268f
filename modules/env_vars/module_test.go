package env_vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

func TestRegister(t *testing.T) {
	r := registry.Load(&Module{})
	assert.Equal(t, []string{"env", "environment"}, r.OperatorNames())
	assert.True(t, r.Operators("env")[0].Volatile)
}

func TestEnv(t *testing.T) {
	t.Setenv("AGENTGRID_TEST_COLONY", "north")

	v, err := Env(nil, []cty.Value{cty.StringVal("AGENTGRID_TEST_COLONY")})
	require.NoError(t, err)
	assert.Equal(t, "north", v.AsString())

	v, err = Env(nil, []cty.Value{cty.StringVal("AGENTGRID_TEST_SURELY_UNSET")})
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	all, err := Environment(nil, nil)
	require.NoError(t, err)
	m := all.AsValueMap()
	require.Contains(t, m, "AGENTGRID_TEST_COLONY")
	assert.Equal(t, "north", m["AGENTGRID_TEST_COLONY"].AsString())
}

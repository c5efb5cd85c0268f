package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func TestParameterSet_Key(t *testing.T) {
	set := ParameterSet{"b": cty.NumberIntVal(2), "a": cty.StringVal("x")}
	assert.Equal(t, "a=x,b=2", set.Key())
	assert.Equal(t, "", ParameterSet{}.Key())
}

func TestRunBatch_CollectsOutputsPerSet(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sets := []ParameterSet{
		{"initial food": cty.NumberIntVal(1)},
		{"initial food": cty.NumberIntVal(5)},
	}

	results, err := RunBatch(ctx, farm(t), "main", sets, BatchOptions{Replications: 2, Seed: 3, Parallelism: 2, Outputs: []string{"food"}})
	require.NoError(t, err)
	require.Len(t, results, 4)

	want := []int64{4, 4, 8, 8}
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, i%2, r.Replication)
		assert.Equal(t, sets[i/2].Key(), r.Key)
		assert.Equal(t, int64(3), r.Cycle)
		require.Len(t, r.Outputs, 1)
		food, _ := r.Outputs["food"].AsBigFloat().Int64()
		assert.Equal(t, want[i], food)
	}
	assert.NotEqual(t, results[0].Seed, results[1].Seed)

	again, err := RunBatch(ctx, farm(t), "main", sets, BatchOptions{Replications: 2, Seed: 3})
	require.NoError(t, err)
	for i := range results {
		assert.Equal(t, results[i].Seed, again[i].Seed)
	}
}

func TestRunBatch_FailuresStayInTheirUnit(t *testing.T) {
	ctx, _ := testutil.Context(t)
	sets := []ParameterSet{{"bad": cty.True}, {"bad": cty.False}}

	results, err := RunBatch(ctx, farm(t), "main", sets, BatchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "out of bounds")
	assert.NoError(t, results[1].Err)
	assert.Equal(t, int64(3), results[1].Cycle)
	assert.Contains(t, results[1].Outputs, "bad")
}

func TestRunBatch_RejectsInvalidSets(t *testing.T) {
	ctx, _ := testutil.Context(t)
	_, err := RunBatch(ctx, farm(t), "main", []ParameterSet{{"nope": cty.True}}, BatchOptions{})
	assert.Error(t, err)

	_, err = RunBatch(ctx, farm(t), "missing", nil, BatchOptions{})
	assert.Error(t, err)
}

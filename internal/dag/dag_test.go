package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graph(t *testing.T, nodes []string, edges ...[2]string) *Graph {
	t.Helper()
	g := New()
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	return g
}

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.Zero(t, g.Len())
	assert.False(t, g.Has("a"))
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("a")
	assert.Equal(t, 1, g.Len())
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)
	assert.NotNil(t, nodeA.deps)
	assert.NotNil(t, nodeA.dependents)

	g.AddNode("a") // Test idempotency
	assert.Equal(t, 1, g.Len())

	g.AddNode("b")
	assert.Equal(t, 2, g.Len())
	assert.True(t, g.Has("b"))
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := graph(t, []string{"a", "b", "c"}, [2]string{"a", "c"}, [2]string{"b", "c"})

		deps, err := g.Dependencies("c")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, deps)

		dependents, err := g.Dependents("a")
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, dependents)
	})

	t.Run("error cases", func(t *testing.T) {
		g := graph(t, []string{"a", "b"})

		assert.ErrorContains(t, g.AddEdge("dne", "a"), "source node not found")
		assert.ErrorContains(t, g.AddEdge("a", "dne"), "destination node not found")

		var cycle *CycleError
		require.True(t, errors.As(g.AddEdge("a", "a"), &cycle))
		assert.Equal(t, "a", cycle.Node)

		_, err := g.Dependencies("dne")
		assert.ErrorContains(t, err, "node not found")
	})
}

func TestDetectCycles(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		edges [][2]string
		cycle string
	}{
		{name: "empty graph"},
		{name: "no edges", nodes: []string{"a", "b", "c"}},
		{name: "valid dag", nodes: []string{"a", "b", "c", "d"}, edges: [][2]string{{"a", "b"}, {"b", "c"}, {"a", "c"}, {"c", "d"}}},
		{name: "direct cycle", nodes: []string{"a", "b"}, edges: [][2]string{{"a", "b"}, {"b", "a"}}, cycle: "a"},
		{name: "longer cycle", nodes: []string{"a", "b", "c", "d"}, edges: [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"d", "a"}}, cycle: "a"},
		{
			name:  "cycle in a disjoint component",
			nodes: []string{"a", "b", "x", "y", "z"},
			edges: [][2]string{{"a", "b"}, {"x", "y"}, {"y", "z"}, {"z", "y"}},
			cycle: "y",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph(t, tt.nodes, tt.edges...)
			err := g.DetectCycles()
			if tt.cycle == "" {
				assert.NoError(t, err)
				return
			}
			var cycle *CycleError
			require.True(t, errors.As(err, &cycle))
			assert.Equal(t, tt.cycle, cycle.Node)
			assert.ErrorContains(t, err, "cycle detected")
		})
	}
}

func TestTopologicalOrder(t *testing.T) {
	// d depends on c, c on a; b is free.
	g := graph(t, []string{"d", "b", "c", "a"}, [2]string{"c", "d"}, [2]string{"a", "c"})

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "d"}, order)

	order, err = graph(t, []string{"z", "y", "x"}).TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "y", "x"}, order, "insertion order without edges")
}

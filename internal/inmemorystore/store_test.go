package inmemorystore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/agentgrid/internal/simulation"
	"github.com/zclconf/go-cty/cty"
)

func TestSetAndGetState(t *testing.T) {
	s := New()
	ctx := context.Background()

	st, err := s.State(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, simulation.Created, st)

	require.NoError(t, s.SetState(ctx, 3, simulation.Stepped))
	st, err = s.State(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, simulation.Stepped, st)
}

func TestSetAndGetOutput(t *testing.T) {
	s := New()
	ctx := context.Background()

	out, err := s.Output(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, out)

	globals := map[string]cty.Value{"cycle": cty.NumberIntVal(12)}
	require.NoError(t, s.SetOutput(ctx, 1, globals))
	out, err = s.Output(ctx, 1)
	require.NoError(t, err)
	assert.True(t, out["cycle"].Equals(cty.NumberIntVal(12)).True())
}

func TestSetAndGetError(t *testing.T) {
	s := New()
	ctx := context.Background()

	unitErr, err := s.Error(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, unitErr)

	expected := errors.New("index out of bounds")
	require.NoError(t, s.SetError(ctx, 1, expected))
	unitErr, err = s.Error(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, expected, unitErr)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	const units = 100
	var wg sync.WaitGroup

	wg.Add(units)
	for i := range units {
		go func() {
			defer wg.Done()
			s.SetState(ctx, i, simulation.Disposed)
			s.SetOutput(ctx, i, map[string]cty.Value{"id": cty.NumberIntVal(int64(i))})
			s.SetError(ctx, i, fmt.Errorf("unit %d failed", i))
		}()
	}
	wg.Wait()

	wg.Add(units)
	for i := range units {
		go func() {
			defer wg.Done()
			st, err := s.State(ctx, i)
			assert.NoError(t, err)
			assert.Equal(t, simulation.Disposed, st)

			out, err := s.Output(ctx, i)
			assert.NoError(t, err)
			assert.True(t, out["id"].Equals(cty.NumberIntVal(int64(i))).True(), "unit %d", i)

			unitErr, err := s.Error(ctx, i)
			assert.NoError(t, err)
			assert.EqualError(t, unitErr, fmt.Sprintf("unit %d failed", i))
		}()
	}
	wg.Wait()

	assert.Len(t, s.IDs(), units)
	assert.Equal(t, 0, s.IDs()[0])
}

package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveTick(3*time.Millisecond, 4)
	m.ObserveTick(time.Millisecond, 3)
	m.ObserveStep("ok")
	m.ObserveStep("ok")
	m.ObserveStep("failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.units))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.steps.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("failed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 4)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTick(time.Second, 1)
		m.ObserveStep("ok")
	})
}

func TestProvider_ExportsThroughPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewProvider(reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	counter, err := p.MeterProvider().Meter("agentgrid.test").Int64Counter("agentgrid_sample")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "agentgrid_sample") {
			found = true
			require.NotEmpty(t, f.GetMetric())
			assert.Equal(t, 3.0, f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found, "sample counter not exported")
}

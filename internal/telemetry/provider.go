package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Provider exports the otel instruments of a run, such as the batch
// counters, through a prometheus registry.
type Provider struct {
	meters *sdkmetric.MeterProvider
}

// NewProvider creates a meter provider whose reader registers with reg.
func NewProvider(reg prometheus.Registerer) (*Provider, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}
	return &Provider{meters: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))}, nil
}

// MeterProvider returns the underlying provider.
func (p *Provider) MeterProvider() metric.MeterProvider { return p.meters }

// Install makes the provider the global one, which Meter delegates to.
func (p *Provider) Install() {
	otel.SetMeterProvider(p.meters)
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meters.Shutdown(ctx)
}

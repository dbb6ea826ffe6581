package components

import (
	"context"

	"paperpost/internal/config"
	"paperpost/internal/metrics"
)

// MetricsComponent owns the run recorder and pushes it to the configured
// Pushgateway.
type MetricsComponent struct {
	config   config.MetricsConfig
	recorder *metrics.Recorder
}

func NewMetricsComponent(cfg config.MetricsConfig) *MetricsComponent {
	return &MetricsComponent{config: cfg}
}

func (c *MetricsComponent) Name() string {
	return MetricsComponentName
}

func (c *MetricsComponent) Dependencies() []string {
	return []string{}
}

func (c *MetricsComponent) Validate() error {
	return nil
}

func (c *MetricsComponent) Initialize(ctx context.Context) error {
	c.recorder = metrics.New()
	return nil
}

func (c *MetricsComponent) Close(ctx context.Context) error {
	return nil
}

func (c *MetricsComponent) Recorder() *metrics.Recorder {
	return c.recorder
}

// Push sends the current values. It is a no-op without a Pushgateway URL.
func (c *MetricsComponent) Push(ctx context.Context) error {
	return c.recorder.Push(ctx, c.config.PushgatewayURL, c.config.Job)
}

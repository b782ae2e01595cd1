package kafka

import (
	"context"
	"fmt"
	"sort"

	"github.com/jknl-dev/platform-kit/component"
	"github.com/jknl-dev/platform-kit/logger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Component wires the "kafka" configuration section into a Manager.
//
// Implements component.Component, component.HealthCheckProvider and
// component.MetricsProvider. Depends on config and logger.
type Component struct {
	options []Option
	manager *Manager
	metrics *Metrics
	logger  *logger.CtxZapLogger
}

// NewComponent creates the component; options are passed to the client
func NewComponent(options ...Option) *Component {
	return &Component{options: options}
}

func (c *Component) Name() string {
	return component.ComponentKafka
}

func (c *Component) DependsOn() []string {
	return []string{component.ComponentConfig, component.ComponentLogger}
}

// Init builds the manager and the configured producers and consumers.
// A missing "kafka" section leaves the component disabled.
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	c.logger = logger.GetLogger("kafka")
	RedirectSaramaLogs(c.logger)

	if !loader.IsSet("kafka") {
		c.logger.DebugCtx(ctx, "kafka not configured, skipping")
		return nil
	}

	var settings Settings
	if err := loader.Unmarshal("kafka", &settings); err != nil {
		return fmt.Errorf("read kafka config: %w", err)
	}

	opts, err := settings.ClientOptions()
	if err != nil {
		return err
	}

	c.metrics = NewMetrics(settings.Metrics)
	options := append([]Option{WithMetrics(c.metrics)}, c.options...)

	manager, err := NewManager(opts, c.logger, options...)
	if err != nil {
		return fmt.Errorf("create kafka manager: %w", err)
	}

	for _, name := range sortedKeys(settings.Producers) {
		if _, err := manager.CreateProducer(name, settings.Producers[name]); err != nil {
			return fmt.Errorf("producer %s: %w", name, err)
		}
	}
	for _, name := range sortedKeys(settings.Consumers) {
		if _, err := manager.CreateConsumer(name, settings.Consumers[name]); err != nil {
			return fmt.Errorf("consumer %s: %w", name, err)
		}
	}

	c.manager = manager
	c.logger.DebugCtx(ctx, "kafka manager created",
		zap.Strings("brokers", manager.Client().BrokerConfig().Brokers),
		zap.Int("producers", len(settings.Producers)),
		zap.Int("consumers", len(settings.Consumers)))
	return nil
}

// Start connects every configured producer and consumer
func (c *Component) Start(ctx context.Context) error {
	if c.manager == nil {
		return nil
	}

	if err := c.manager.ConnectAll(ctx); err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}

	c.logger.InfoCtx(ctx, "kafka component started")
	return nil
}

// Stop disconnects everything; safe to call repeatedly
func (c *Component) Stop(ctx context.Context) error {
	if c.manager == nil {
		return nil
	}

	if err := c.manager.DisconnectAll(ctx); err != nil {
		return err
	}

	c.logger.InfoCtx(ctx, "kafka component stopped")
	return nil
}

// GetManager returns the manager, nil when kafka is not configured
func (c *Component) GetManager() *Manager {
	return c.manager
}

// GetHealthChecker implements component.HealthCheckProvider
func (c *Component) GetHealthChecker() component.HealthChecker {
	if c.manager == nil {
		return nil
	}
	return NewHealthChecker(c.manager)
}

func (c *Component) MetricsName() string {
	return "kafka"
}

func (c *Component) IsMetricsEnabled() bool {
	return c.metrics != nil && c.metrics.IsMetricsEnabled()
}

// RegisterMetrics implements component.MetricsProvider
func (c *Component) RegisterMetrics(meter metric.Meter) error {
	if !c.IsMetricsEnabled() {
		return nil
	}
	return c.metrics.RegisterMetrics(meter)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package kafka

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records producer and consumer instruments.
// Implements component.MetricsProvider; a nil or unregistered Metrics records nothing.
type Metrics struct {
	config     MetricsConfig
	registered bool
	mu         sync.RWMutex

	messagesProduced metric.Int64Counter
	produceDuration  metric.Float64Histogram
	produceErrors    metric.Int64Counter

	messagesConsumed metric.Int64Counter
	consumeDuration  metric.Float64Histogram
	consumeErrors    metric.Int64Counter
	routeOutcomes    metric.Int64Counter
}

// NewMetrics creates an unregistered metrics provider
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{config: cfg}
}

// MetricsName metrics group name
func (m *Metrics) MetricsName() string {
	return "kafka"
}

// IsMetricsEnabled reports whether collection is enabled
func (m *Metrics) IsMetricsEnabled() bool {
	return m.config.Enabled
}

// RegisterMetrics creates the instruments on meter (idempotent)
func (m *Metrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error

	m.messagesProduced, err = meter.Int64Counter(
		"kafka_messages_produced_total",
		metric.WithDescription("Total number of records produced"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	m.produceDuration, err = meter.Float64Histogram(
		"kafka_produce_duration_seconds",
		metric.WithDescription("Kafka send duration distribution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.produceErrors, err = meter.Int64Counter(
		"kafka_produce_errors_total",
		metric.WithDescription("Total number of failed sends"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	m.messagesConsumed, err = meter.Int64Counter(
		"kafka_messages_consumed_total",
		metric.WithDescription("Total number of records consumed"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	m.consumeDuration, err = meter.Float64Histogram(
		"kafka_consume_duration_seconds",
		metric.WithDescription("Kafka handler duration distribution"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	m.consumeErrors, err = meter.Int64Counter(
		"kafka_consume_errors_total",
		metric.WithDescription("Total number of handler failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	m.routeOutcomes, err = meter.Int64Counter(
		"kafka_route_outcomes_total",
		metric.WithDescription("Router outcomes per topic"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

// IsRegistered reports whether RegisterMetrics succeeded
func (m *Metrics) IsRegistered() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}

// RecordProduce records one send call of count records
func (m *Metrics) RecordProduce(ctx context.Context, topic string, count int, duration time.Duration, err error) {
	if !m.IsRegistered() {
		return
	}

	attrs := metric.WithAttributes(attribute.String("topic", topic))
	if err != nil {
		m.produceErrors.Add(ctx, 1, attrs)
		return
	}
	m.messagesProduced.Add(ctx, int64(count), attrs)
	m.produceDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordConsume records one handler invocation
func (m *Metrics) RecordConsume(ctx context.Context, topic, group string, partition int32, duration time.Duration, err error) {
	if !m.IsRegistered() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("group", group),
		attribute.Int("partition", int(partition)),
	)

	m.messagesConsumed.Add(ctx, 1, attrs)
	m.consumeDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.consumeErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("group", group),
		))
	}
}

// RecordRoute records a router outcome
func (m *Metrics) RecordRoute(ctx context.Context, topic string, outcome RouteOutcome) {
	if !m.IsRegistered() {
		return
	}
	m.routeOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("outcome", outcome.String()),
	))
}

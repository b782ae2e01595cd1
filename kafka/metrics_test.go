package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupTestMeterProvider(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string][]metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string][]metricdata.DataPoint[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				sums[m.Name] = sum.DataPoints
			}
		}
	}
	return sums
}

func total(points []metricdata.DataPoint[int64]) int64 {
	var n int64
	for _, p := range points {
		n += p.Value
	}
	return n
}

func TestMetrics_Basics(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	assert.Equal(t, "kafka", m.MetricsName())
	assert.True(t, m.IsMetricsEnabled())
	assert.False(t, m.IsRegistered())

	require.NoError(t, m.RegisterMetrics(noop.NewMeterProvider().Meter("test")))
	require.NoError(t, m.RegisterMetrics(noop.NewMeterProvider().Meter("test")))
	assert.True(t, m.IsRegistered())
}

func TestMetrics_NilAndUnregisteredRecordNothing(t *testing.T) {
	var nilMetrics *Metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		nilMetrics.RecordProduce(ctx, "t", 1, time.Millisecond, nil)
		nilMetrics.RecordConsume(ctx, "t", "g", 0, time.Millisecond, nil)
		nilMetrics.RecordRoute(ctx, "t", Delivered)
	})

	unregistered := NewMetrics(MetricsConfig{})
	assert.NotPanics(t, func() {
		unregistered.RecordProduce(ctx, "t", 1, time.Millisecond, errBoom)
	})
}

func TestMetrics_ProducerRecordsSends(t *testing.T) {
	mp, reader := setupTestMeterProvider(t)
	m := NewMetrics(MetricsConfig{Enabled: true})
	require.NoError(t, m.RegisterMetrics(mp.Meter("kafka")))

	ft := newFakeTransport()
	client, _ := newTestClient(t, ft, WithMetrics(m))
	p, err := NewProducer("p", client, ProducerOptions{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))
	_, err = p.Send(ctx, "orders", []Record{{Value: []byte("1")}, {Value: []byte("2")}})
	require.NoError(t, err)

	ft.producers[0].sendErr = errBoom
	_, err = p.Send(ctx, "orders", []Record{{Value: []byte("3")}})
	require.Error(t, err)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), total(sums["kafka_messages_produced_total"]))
	assert.Equal(t, int64(1), total(sums["kafka_produce_errors_total"]))

	topic, ok := sums["kafka_messages_produced_total"][0].Attributes.Value(attribute.Key("topic"))
	require.True(t, ok)
	assert.Equal(t, "orders", topic.AsString())
}

func TestMetrics_RouterRecordsOutcomes(t *testing.T) {
	mp, reader := setupTestMeterProvider(t)
	m := NewMetrics(MetricsConfig{Enabled: true})
	require.NoError(t, m.RegisterMetrics(mp.Meter("kafka")))

	client, _ := newTestClient(t, newFakeTransport(), WithMetrics(m))
	c, err := NewConsumer("c", client, ConsumerOptions{GroupID: "g"})
	require.NoError(t, err)
	c.RegisterHandler("orders", func(context.Context, any) error { return nil })

	ctx := context.Background()
	for _, msg := range []*Message{
		{Topic: "orders", Value: []byte(`{}`)},
		{Topic: "orders", Value: []byte(`raw`)},
		{Topic: "orders"},
		{Topic: "unknown", Value: []byte(`{}`)},
	} {
		_, err := c.Dispatch(ctx, msg)
		require.NoError(t, err)
	}

	outcomes := map[string]int64{}
	for _, p := range collectSums(t, reader)["kafka_route_outcomes_total"] {
		v, _ := p.Attributes.Value(attribute.Key("outcome"))
		outcomes[v.AsString()] += p.Value
	}
	assert.Equal(t, map[string]int64{
		"delivered":               1,
		"decoded_as_raw":          1,
		"skipped_empty_value":     1,
		"skipped_missing_handler": 1,
	}, outcomes)
}

func TestMetrics_ConsumeRecordsHandlerRuns(t *testing.T) {
	mp, reader := setupTestMeterProvider(t)
	m := NewMetrics(MetricsConfig{Enabled: true})
	require.NoError(t, m.RegisterMetrics(mp.Meter("kafka")))

	ctx := context.Background()
	m.RecordConsume(ctx, "orders", "g", 1, time.Millisecond, nil)
	m.RecordConsume(ctx, "orders", "g", 1, time.Millisecond, errBoom)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), total(sums["kafka_messages_consumed_total"]))
	assert.Equal(t, int64(1), total(sums["kafka_consume_errors_total"]))
}

package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jknl-dev/platform-kit/kafka"

// messaging semantic convention keys
const (
	attrMessagingSystem      = "messaging.system"
	attrDestinationName      = "messaging.destination.name"
	attrDestinationPartition = "messaging.destination.partition.id"
	attrOperationName        = "messaging.operation.name"
	attrKafkaOffset          = "messaging.kafka.offset"
	attrKafkaConsumerGroup   = "messaging.kafka.consumer.group"
	attrKafkaMessageKey      = "messaging.kafka.message.key"
)

// tracing starts spans for sends and handled records and carries the trace
// context in record headers
type tracing struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func newTracing(tp trace.TracerProvider) tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tracing{
		tracer: tp.Tracer(tracerName),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	}
}

// WithTracerProvider traces sends and handled records with tp instead of
// the otel global provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracing = newTracing(tp)
	}
}

// startPublish opens a producer span for msg and injects it into msg's headers
func (t tracing) startPublish(ctx context.Context, msg *sarama.ProducerMessage) trace.Span {
	attrs := []attribute.KeyValue{
		attribute.String(attrMessagingSystem, "kafka"),
		attribute.String(attrDestinationName, msg.Topic),
		attribute.String(attrOperationName, "publish"),
	}
	if key, ok := msg.Key.(sarama.ByteEncoder); ok {
		attrs = append(attrs, attribute.String(attrKafkaMessageKey, string(key)))
	}

	spanCtx, span := t.tracer.Start(ctx, msg.Topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attrs...))
	t.propagator.Inject(spanCtx, producerHeaderCarrier{msg: msg})
	return span
}

// startProcess continues the trace found in m's headers with a consumer span
func (t tracing) startProcess(ctx context.Context, groupID string, m *Message) (context.Context, trace.Span) {
	ctx = t.propagator.Extract(ctx, messageHeaderCarrier{msg: m})

	attrs := []attribute.KeyValue{
		attribute.String(attrMessagingSystem, "kafka"),
		attribute.String(attrDestinationName, m.Topic),
		attribute.Int(attrDestinationPartition, int(m.Partition)),
		attribute.String(attrOperationName, "process"),
		attribute.Int64(attrKafkaOffset, m.Offset),
		attribute.String(attrKafkaConsumerGroup, groupID),
	}
	if len(m.Key) > 0 {
		attrs = append(attrs, attribute.String(attrKafkaMessageKey, string(m.Key)))
	}

	return t.tracer.Start(ctx, m.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// producerHeaderCarrier adapts outgoing record headers to the propagator
type producerHeaderCarrier struct {
	msg *sarama.ProducerMessage
}

func (c producerHeaderCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c producerHeaderCarrier) Set(key, value string) {
	for i := range c.msg.Headers {
		if string(c.msg.Headers[i].Key) == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c producerHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, string(h.Key))
	}
	return keys
}

// messageHeaderCarrier adapts consumed record headers to the propagator
type messageHeaderCarrier struct {
	msg *Message
}

func (c messageHeaderCarrier) Get(key string) string {
	return string(c.msg.Headers[key])
}

func (c messageHeaderCarrier) Set(key, value string) {
	if c.msg.Headers == nil {
		c.msg.Headers = make(map[string][]byte)
	}
	c.msg.Headers[key] = []byte(value)
}

func (c messageHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for k := range c.msg.Headers {
		keys = append(keys, k)
	}
	return keys
}

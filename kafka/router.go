package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Message one consumed record
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

func newMessage(msg *sarama.ConsumerMessage) *Message {
	m := &Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Timestamp,
	}
	if len(msg.Headers) > 0 {
		m.Headers = make(map[string][]byte, len(msg.Headers))
		for _, h := range msg.Headers {
			if h == nil {
				continue
			}
			m.Headers[string(h.Key)] = h.Value
		}
	}
	return m
}

type messageKey struct{}

func withMessage(ctx context.Context, msg *Message) context.Context {
	return context.WithValue(ctx, messageKey{}, msg)
}

// MessageFromContext returns the record being handled, if any
func MessageFromContext(ctx context.Context) (*Message, bool) {
	msg, ok := ctx.Value(messageKey{}).(*Message)
	return msg, ok
}

// RouteOutcome result of routing one record
type RouteOutcome int

const (
	// Delivered the handler received the JSON-decoded value
	Delivered RouteOutcome = iota
	// SkippedMissingHandler no handler is registered for the topic
	SkippedMissingHandler
	// SkippedEmptyValue the record has no value
	SkippedEmptyValue
	// DecodedAsRaw the handler received the raw string because the value is not JSON
	DecodedAsRaw
)

// String returns the outcome name
func (o RouteOutcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case SkippedMissingHandler:
		return "skipped_missing_handler"
	case SkippedEmptyValue:
		return "skipped_empty_value"
	case DecodedAsRaw:
		return "decoded_as_raw"
	default:
		return "unknown"
	}
}

// Dispatch routes one record to the handler registered for its topic.
// A missing handler or an empty value is logged and skipped with a nil error.
// Handler errors are returned unchanged so the run loop ends and the record is redelivered.
func (c *Consumer) Dispatch(ctx context.Context, msg *Message) (RouteOutcome, error) {
	handler, ok := c.handlers.get(msg.Topic)
	if !ok {
		c.logger.WarnCtx(ctx, "no handler registered for topic",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))
		c.client.metrics.RecordRoute(ctx, msg.Topic, SkippedMissingHandler)
		return SkippedMissingHandler, nil
	}

	if len(msg.Value) == 0 {
		c.logger.WarnCtx(ctx, "skipping record with empty value",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset))
		c.client.metrics.RecordRoute(ctx, msg.Topic, SkippedEmptyValue)
		return SkippedEmptyValue, nil
	}

	outcome := Delivered
	var value any
	if err := json.Unmarshal(msg.Value, &value); err != nil {
		value = string(msg.Value)
		outcome = DecodedAsRaw
	}
	c.client.metrics.RecordRoute(ctx, msg.Topic, outcome)

	if err := handler(withMessage(ctx, msg), value); err != nil {
		c.logger.ErrorCtx(ctx, "topic handler failed",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return outcome, err
	}
	return outcome, nil
}

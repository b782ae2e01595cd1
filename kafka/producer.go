package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/jknl-dev/platform-kit/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Record one outbound message
type Record struct {
	// Key optional; records with the same key land on the same partition
	Key []byte

	// Value payload
	Value []byte

	// Partition optional explicit target partition
	Partition *int32

	// Headers optional
	Headers map[string]string
}

// DeliveryReport broker acknowledgement of one record
type DeliveryReport struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Producer owns a single outbound channel.
// States: Disconnected → Connected.
type Producer struct {
	name   string
	client *Client
	opts   ProducerOptions
	cfg    *sarama.Config
	logger *logger.CtxZapLogger

	mu       sync.Mutex
	producer sarama.SyncProducer
}

// NewProducer creates a disconnected producer bound to client
func NewProducer(name string, client *Client, opts ProducerOptions) (*Producer, error) {
	opts.ApplyDefaults()
	if err := validate(opts); err != nil {
		return nil, err
	}

	cfg, err := client.producerConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Producer{
		name:   name,
		client: client,
		opts:   opts,
		cfg:    cfg,
		logger: client.logger.With(zap.String("producer", name)),
	}, nil
}

// Name returns the producer name
func (p *Producer) Name() string {
	return p.name
}

// Options returns the options fixed at creation
func (p *Producer) Options() ProducerOptions {
	return p.opts
}

// Connect opens the outbound channel; a no-op when already connected
func (p *Producer) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.producer != nil {
		return nil
	}

	producer, err := p.client.transport.NewSyncProducer(p.client.brokers.Brokers, p.cfg)
	if err != nil {
		p.logger.ErrorCtx(ctx, "producer connect failed", zap.Error(err))
		return fmt.Errorf("producer %s connect: %w", p.name, err)
	}
	p.producer = producer

	p.logger.InfoCtx(ctx, "producer connected",
		zap.Strings("brokers", p.client.brokers.Brokers),
		zap.Bool("idempotent", p.opts.idempotent()))
	return nil
}

// Disconnect closes the outbound channel; a no-op when already disconnected.
// The channel is released even when Close fails; the close error is returned.
func (p *Producer) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	producer := p.producer
	p.producer = nil
	p.mu.Unlock()

	if producer == nil {
		return nil
	}

	if err := producer.Close(); err != nil {
		p.logger.ErrorCtx(ctx, "producer close failed", zap.Error(err))
		return fmt.Errorf("producer %s disconnect: %w", p.name, err)
	}

	p.logger.InfoCtx(ctx, "producer disconnected")
	return nil
}

// IsConnected reports whether the channel is open
func (p *Producer) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.producer != nil
}

// Send delivers records to topic and returns one report per record, in order.
// Transport failures are returned as ErrSendFailed without local retry.
func (p *Producer) Send(ctx context.Context, topic string, records []Record) ([]DeliveryReport, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if len(records) == 0 {
		return nil, ErrEmptyRecords
	}

	p.mu.Lock()
	producer := p.producer
	p.mu.Unlock()

	if producer == nil {
		return nil, ErrNotConnected.WithMsgf("producer %s is not connected", p.name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs := make([]*sarama.ProducerMessage, len(records))
	spans := make([]trace.Span, len(records))
	for i, r := range records {
		msgs[i] = toProducerMessage(topic, r)
		spans[i] = p.client.tracing.startPublish(ctx, msgs[i])
	}

	start := time.Now()
	err := producer.SendMessages(msgs)
	duration := time.Since(start)
	p.client.metrics.RecordProduce(ctx, topic, len(records), duration, err)

	for i, span := range spans {
		if err == nil {
			span.SetAttributes(
				attribute.Int(attrDestinationPartition, int(msgs[i].Partition)),
				attribute.Int64(attrKafkaOffset, msgs[i].Offset))
		}
		endSpan(span, err)
	}

	if err != nil {
		p.logger.ErrorCtx(ctx, "send failed",
			zap.String("topic", topic),
			zap.Int("records", len(records)),
			zap.Error(err))
		return nil, ErrSendFailed.WithData("topic", topic).Wrap(err)
	}

	reports := make([]DeliveryReport, len(msgs))
	for i, msg := range msgs {
		reports[i] = DeliveryReport{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
		}
	}

	p.logger.DebugCtx(ctx, "records sent",
		zap.String("topic", topic),
		zap.Int("records", len(records)),
		zap.Duration("duration", duration))
	return reports, nil
}

// SendJSON marshals v and sends it as a single record
func (p *Producer) SendJSON(ctx context.Context, topic, key string, v any) (DeliveryReport, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return DeliveryReport{}, fmt.Errorf("marshal json failed: %w", err)
	}

	record := Record{
		Value:   data,
		Headers: map[string]string{"content-type": "application/json"},
	}
	if key != "" {
		record.Key = []byte(key)
	}

	reports, err := p.Send(ctx, topic, []Record{record})
	if err != nil {
		return DeliveryReport{}, err
	}
	return reports[0], nil
}

func toProducerMessage(topic string, r Record) *sarama.ProducerMessage {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(r.Value),
	}

	if len(r.Key) > 0 {
		msg.Key = sarama.ByteEncoder(r.Key)
	}

	if r.Partition != nil {
		msg.Partition = *r.Partition
		msg.Metadata = manualPartition{}
	}

	if len(r.Headers) > 0 {
		keys := make([]string, 0, len(r.Headers))
		for k := range r.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		msg.Headers = make([]sarama.RecordHeader, 0, len(keys))
		for _, k := range keys {
			msg.Headers = append(msg.Headers, sarama.RecordHeader{
				Key:   []byte(k),
				Value: []byte(r.Headers[k]),
			})
		}
	}

	return msg
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProducer(t *testing.T, ft *fakeTransport) *Producer {
	t.Helper()
	client, _ := newTestClient(t, ft)
	p, err := NewProducer("test", client, ProducerOptions{})
	require.NoError(t, err)
	return p
}

func TestNewProducer_Options(t *testing.T) {
	client, _ := newTestClient(t, newFakeTransport())

	t.Run("defaults", func(t *testing.T) {
		p, err := NewProducer("p", client, ProducerOptions{})
		require.NoError(t, err)

		opts := p.Options()
		assert.Equal(t, 1, opts.MaxInFlightRequests)
		assert.True(t, *opts.Idempotent)
		assert.Equal(t, "none", opts.Compression)
		assert.Equal(t, "p", p.Name())
		assert.False(t, p.IsConnected())
	})

	t.Run("idempotent requires a single in-flight request", func(t *testing.T) {
		_, err := NewProducer("p", client, ProducerOptions{MaxInFlightRequests: 5})
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("non idempotent allows pipelining", func(t *testing.T) {
		p, err := NewProducer("p", client, ProducerOptions{MaxInFlightRequests: 5, Idempotent: Bool(false)})
		require.NoError(t, err)
		assert.Equal(t, 5, p.cfg.Net.MaxOpenRequests)
		assert.False(t, p.cfg.Producer.Idempotent)
	})

	t.Run("unknown compression", func(t *testing.T) {
		_, err := NewProducer("p", client, ProducerOptions{Compression: "brotli"})
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})
}

func TestProducer_ConnectIsIdempotent(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProducer(t, ft)
	ctx := context.Background()

	require.NoError(t, p.Connect(ctx))
	require.NoError(t, p.Connect(ctx))

	assert.True(t, p.IsConnected())
	_, producers, _ := ft.counts()
	assert.Equal(t, 1, producers)
}

func TestProducer_ConnectFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.producerErr = sarama.ErrOutOfBrokers
	p := newTestProducer(t, ft)

	err := p.Connect(context.Background())
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.False(t, p.IsConnected())
}

func TestProducer_Disconnect(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProducer(t, ft)
	ctx := context.Background()

	assert.NoError(t, p.Disconnect(ctx))

	require.NoError(t, p.Connect(ctx))
	require.NoError(t, p.Disconnect(ctx))
	assert.False(t, p.IsConnected())
	assert.True(t, ft.producers[0].closed)

	assert.NoError(t, p.Disconnect(ctx))
}

func TestProducer_SendPreconditions(t *testing.T) {
	p := newTestProducer(t, newFakeTransport())
	ctx := context.Background()
	records := []Record{{Value: []byte("v")}}

	_, err := p.Send(ctx, "", records)
	assert.ErrorIs(t, err, ErrEmptyTopic)

	_, err = p.Send(ctx, "orders", nil)
	assert.ErrorIs(t, err, ErrEmptyRecords)

	_, err = p.Send(ctx, "orders", records)
	assert.True(t, errors.Is(err, ErrNotConnected))

	require.NoError(t, p.Connect(ctx))
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.Send(cancelled, "orders", records)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProducer_SendReportsInOrder(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProducer(t, ft)
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))

	partition := int32(3)
	reports, err := p.Send(ctx, "orders", []Record{
		{Key: []byte("a"), Value: []byte("1")},
		{Value: []byte("2"), Partition: &partition},
		{Value: []byte("3"), Headers: map[string]string{"z": "last", "a": "first"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []DeliveryReport{
		{Topic: "orders", Partition: 0, Offset: 0},
		{Topic: "orders", Partition: 3, Offset: 0},
		{Topic: "orders", Partition: 0, Offset: 1},
	}, reports)

	sent := ft.producers[0].sent
	require.Len(t, sent, 3)
	assert.Equal(t, sarama.ByteEncoder("a"), sent[0].Key)
	assert.Nil(t, sent[1].Key)
	assert.Equal(t, []sarama.RecordHeader{
		{Key: []byte("a"), Value: []byte("first")},
		{Key: []byte("z"), Value: []byte("last")},
	}, sent[2].Headers)
}

func TestProducer_SendFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.sendErr = sarama.ErrNotLeaderForPartition
	p := newTestProducer(t, ft)
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))

	reports, err := p.Send(ctx, "orders", []Record{{Value: []byte("v")}})
	assert.Nil(t, reports)
	assert.True(t, errors.Is(err, ErrSendFailed))
	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
}

func TestProducer_SendWithSaramaMock(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndSucceed()
	mock.ExpectSendMessageAndFail(sarama.ErrRequestTimedOut)

	ft := newFakeTransport()
	ft.syncProducer = mock
	p := newTestProducer(t, ft)
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))

	reports, err := p.Send(ctx, "orders", []Record{{Value: []byte("1")}, {Value: []byte("2")}})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Less(t, reports[0].Offset, reports[1].Offset)

	_, err = p.Send(ctx, "orders", []Record{{Value: []byte("3")}})
	assert.True(t, errors.Is(err, ErrSendFailed))

	require.NoError(t, p.Disconnect(ctx))
}

func TestProducer_SendJSON(t *testing.T) {
	ft := newFakeTransport()
	p := newTestProducer(t, ft)
	ctx := context.Background()
	require.NoError(t, p.Connect(ctx))

	report, err := p.SendJSON(ctx, "analytics", "user-1", map[string]any{"event": "login"})
	require.NoError(t, err)
	assert.Equal(t, "analytics", report.Topic)

	msg := ft.producers[0].sent[0]
	assert.Equal(t, sarama.ByteEncoder("user-1"), msg.Key)
	assert.Equal(t, []sarama.RecordHeader{{Key: []byte("content-type"), Value: []byte("application/json")}}, msg.Headers)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value.(sarama.ByteEncoder), &decoded))
	assert.Equal(t, "login", decoded["event"])

	_, err = p.SendJSON(ctx, "analytics", "", make(chan int))
	assert.Error(t, err)
}

func TestRecordPartitioner(t *testing.T) {
	p := newRecordPartitioner("orders")
	assert.True(t, p.RequiresConsistency())

	t.Run("explicit partition", func(t *testing.T) {
		msg := toProducerMessage("orders", Record{Value: []byte("v"), Partition: ptr(int32(2))})
		got, err := p.Partition(msg, 4)
		require.NoError(t, err)
		assert.Equal(t, int32(2), got)
	})

	t.Run("explicit partition out of range", func(t *testing.T) {
		msg := toProducerMessage("orders", Record{Value: []byte("v"), Partition: ptr(int32(9))})
		_, err := p.Partition(msg, 4)
		assert.ErrorIs(t, err, sarama.ErrInvalidPartition)
	})

	t.Run("same key same partition", func(t *testing.T) {
		a, err := p.Partition(toProducerMessage("orders", Record{Key: []byte("k"), Value: []byte("1")}), 8)
		require.NoError(t, err)
		b, err := p.Partition(toProducerMessage("orders", Record{Key: []byte("k"), Value: []byte("2")}), 8)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func ptr[T any](v T) *T {
	return &v
}

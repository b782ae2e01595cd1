package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jknl-dev/platform-kit/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func newTestManager(t *testing.T, ft *fakeTransport) *Manager {
	t.Helper()
	m, err := NewManager(testClientOptions(), logger.NewNop(), WithTransport(ft))
	require.NoError(t, err)
	return m
}

func TestNewManager_InvalidOptions(t *testing.T) {
	_, err := NewManager(ClientOptions{}, logger.NewNop())
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestNewManager_Independent(t *testing.T) {
	a := newTestManager(t, newFakeTransport())
	b := newTestManager(t, newFakeTransport())

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotSame(t, a.Client(), b.Client())

	pa, err := a.CreateProducer("x", ProducerOptions{})
	require.NoError(t, err)
	pb, err := b.CreateProducer("x", ProducerOptions{})
	require.NoError(t, err)
	assert.NotSame(t, pa, pb)
}

func TestManager_CreateProducerCaches(t *testing.T) {
	m := newTestManager(t, newFakeTransport())

	first, err := m.CreateProducer("x", ProducerOptions{})
	require.NoError(t, err)
	second, err := m.CreateProducer("x", ProducerOptions{Compression: "gzip"})
	require.NoError(t, err)
	other, err := m.CreateProducer("y", ProducerOptions{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
	assert.Equal(t, "none", second.Options().Compression)

	got, ok := m.GetProducer("x")
	assert.True(t, ok)
	assert.Same(t, first, got)

	_, ok = m.GetProducer("missing")
	assert.False(t, ok)
}

func TestManager_CreateProducerInvalid(t *testing.T) {
	m := newTestManager(t, newFakeTransport())

	_, err := m.CreateProducer("x", ProducerOptions{MaxInFlightRequests: 3})
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, ok := m.GetProducer("x")
	assert.False(t, ok)
}

func TestManager_CreateConsumerCaches(t *testing.T) {
	m := newTestManager(t, newFakeTransport())

	first, err := m.CreateConsumer("analytics", ConsumerOptions{GroupID: "g1"})
	require.NoError(t, err)
	second, err := m.CreateConsumer("analytics", ConsumerOptions{GroupID: "g2"})
	require.NoError(t, err)
	other, err := m.CreateConsumer("audit", ConsumerOptions{GroupID: "g1"})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "g1", second.GroupID())
	assert.NotSame(t, first, other)

	got, ok := m.GetConsumer("audit")
	assert.True(t, ok)
	assert.Same(t, other, got)

	_, err = m.CreateConsumer("bad", ConsumerOptions{})
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestManager_ConnectAll(t *testing.T) {
	ft := newFakeTransport()
	m := newTestManager(t, ft)

	p, err := m.CreateProducer("p", ProducerOptions{})
	require.NoError(t, err)
	c, err := m.CreateConsumer("c", ConsumerOptions{GroupID: "g"})
	require.NoError(t, err)

	require.NoError(t, m.ConnectAll(context.Background()))
	assert.True(t, p.IsConnected())
	assert.True(t, c.IsConnected())

	clients, producers, _ := ft.counts()
	assert.Equal(t, 1, clients)
	assert.Equal(t, 1, producers)
}

func TestManager_ConnectAllFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.producerErr = errBoom
	m := newTestManager(t, ft)

	_, err := m.CreateProducer("p", ProducerOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, m.ConnectAll(context.Background()), errBoom)
}

func TestManager_DisconnectAllCompleteness(t *testing.T) {
	ft := newFakeTransport()
	m := newTestManager(t, ft)
	ctx := context.Background()

	p1, err := m.CreateProducer("p1", ProducerOptions{})
	require.NoError(t, err)
	p2, err := m.CreateProducer("p2", ProducerOptions{})
	require.NoError(t, err)
	idle, err := m.CreateProducer("idle", ProducerOptions{})
	require.NoError(t, err)
	c1, err := m.CreateConsumer("c1", ConsumerOptions{GroupID: "g"})
	require.NoError(t, err)

	require.NoError(t, p1.Connect(ctx))
	require.NoError(t, p2.Connect(ctx))
	require.NoError(t, c1.Connect(ctx))

	c1.RegisterHandler("orders", func(context.Context, any) error { return nil })
	done := startAsync(func() error { return c1.StartWithHandlers(ctx) })
	require.Eventually(t, c1.IsRunningHandlers, time.Second, 10*time.Millisecond)

	require.NoError(t, m.DisconnectAll(ctx))
	assert.NoError(t, waitResult(t, done))

	for _, p := range []*Producer{p1, p2, idle} {
		assert.False(t, p.IsConnected())
	}
	assert.False(t, c1.IsConnected())
	assert.False(t, c1.IsRunning())

	for _, name := range []string{"p1", "p2", "idle"} {
		_, ok := m.GetProducer(name)
		assert.False(t, ok, name)
	}
	_, ok := m.GetConsumer("c1")
	assert.False(t, ok)

	assert.NoError(t, m.DisconnectAll(ctx))
}

func TestManager_DisconnectAllAggregatesFailures(t *testing.T) {
	ft := newFakeTransport()
	ft.clientCloseErr = errBoom
	m := newTestManager(t, ft)
	ctx := context.Background()

	p, err := m.CreateProducer("p", ProducerOptions{})
	require.NoError(t, err)
	require.NoError(t, p.Connect(ctx))

	for _, name := range []string{"a", "b"} {
		c, err := m.CreateConsumer(name, ConsumerOptions{GroupID: name})
		require.NoError(t, err)
		require.NoError(t, c.Connect(ctx))
	}

	err = m.DisconnectAll(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDisconnectAll))
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, multierr.Errors(errors.Unwrap(err)), 2)

	assert.False(t, p.IsConnected())
	_, ok := m.GetConsumer("a")
	assert.False(t, ok)
	_, ok = m.GetProducer("p")
	assert.False(t, ok)
}

func TestManager_Ping(t *testing.T) {
	ctx := context.Background()

	t.Run("reachable", func(t *testing.T) {
		ft := newFakeTransport()
		m := newTestManager(t, ft)
		require.NoError(t, m.Ping(ctx))
		require.Len(t, ft.clients, 1)
		assert.True(t, ft.clients[0].isClosed())
	})

	t.Run("unreachable", func(t *testing.T) {
		ft := newFakeTransport()
		ft.clientErr = errBoom
		m := newTestManager(t, ft)
		assert.ErrorIs(t, m.Ping(ctx), errBoom)
	})

	t.Run("cancelled", func(t *testing.T) {
		m := newTestManager(t, newFakeTransport())
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := m.Ping(cancelled)
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	})
}

func TestManager_Shutdown(t *testing.T) {
	m := newTestManager(t, newFakeTransport())
	p, err := m.CreateProducer("p", ProducerOptions{})
	require.NoError(t, err)
	require.NoError(t, p.Connect(context.Background()))

	require.NoError(t, m.Shutdown())
	assert.False(t, p.IsConnected())
}

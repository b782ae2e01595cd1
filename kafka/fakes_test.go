package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/jknl-dev/platform-kit/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeTransport records every channel it opens
type fakeTransport struct {
	mu sync.Mutex

	clientCalls   int
	producerCalls int
	groupCalls    int

	clientErr      error
	liveBrokers    []string // metadata broker list; defaults to the dialed addresses
	producerErr    error
	groupErr       error
	refreshErr     error
	clientCloseErr error
	sendErr        error

	// syncProducer replaces the default fakeSyncProducer when set
	syncProducer sarama.SyncProducer

	clients   []*fakeClient
	producers []*fakeSyncProducer
	groups    []*fakeGroup
	groupCfgs []*sarama.Config

	// messages feeds every consumer group claim
	messages chan *sarama.ConsumerMessage
	marked   []int64
	topics   [][]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{messages: make(chan *sarama.ConsumerMessage, 16)}
}

func (f *fakeTransport) NewClient(brokers []string, _ *sarama.Config) (sarama.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.clientCalls++
	if f.clientErr != nil {
		return nil, f.clientErr
	}
	addrs := brokers
	if f.liveBrokers != nil {
		addrs = f.liveBrokers
	}
	c := &fakeClient{
		addrs:      addrs,
		refreshErr: f.refreshErr,
		closeErr:   f.clientCloseErr,
	}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeTransport) NewSyncProducer(_ []string, _ *sarama.Config) (sarama.SyncProducer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.producerCalls++
	if f.producerErr != nil {
		return nil, f.producerErr
	}
	if f.syncProducer != nil {
		return f.syncProducer, nil
	}
	p := &fakeSyncProducer{sendErr: f.sendErr}
	f.producers = append(f.producers, p)
	return p, nil
}

func (f *fakeTransport) NewConsumerGroup(_ []string, _ string, cfg *sarama.Config) (sarama.ConsumerGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.groupCalls++
	f.groupCfgs = append(f.groupCfgs, cfg)
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	g := &fakeGroup{transport: f, errs: make(chan error)}
	f.groups = append(f.groups, g)
	return g, nil
}

func (f *fakeTransport) counts() (clients, producers, groups int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clientCalls, f.producerCalls, f.groupCalls
}

func (f *fakeTransport) markedOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.marked...)
}

func (f *fakeTransport) lastGroupConfig() *sarama.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.groupCfgs) == 0 {
		return nil
	}
	return f.groupCfgs[len(f.groupCfgs)-1]
}

func (f *fakeTransport) consumedTopics() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.topics...)
}

func (f *fakeTransport) push(topic string, partition int32, offset int64, value []byte) {
	f.messages <- &sarama.ConsumerMessage{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		Value:     value,
		Timestamp: time.Now(),
	}
}

// fakeClient metadata channel
type fakeClient struct {
	sarama.Client

	mu         sync.Mutex
	addrs      []string
	refreshed  []string
	refreshErr error
	closeErr   error
	closed     bool
}

func (c *fakeClient) RefreshMetadata(topics ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshErr != nil {
		return c.refreshErr
	}
	c.refreshed = append(c.refreshed, topics...)
	return nil
}

func (c *fakeClient) Brokers() []*sarama.Broker {
	brokers := make([]*sarama.Broker, 0, len(c.addrs))
	for _, addr := range c.addrs {
		brokers = append(brokers, sarama.NewBroker(addr))
	}
	return brokers
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.closeErr
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeSyncProducer assigns partitions and per-partition offsets starting at 0
type fakeSyncProducer struct {
	sarama.SyncProducer

	mu      sync.Mutex
	sent    []*sarama.ProducerMessage
	offsets map[int32]int64
	sendErr error
	closed  bool
}

func (p *fakeSyncProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sendErr != nil {
		return p.sendErr
	}
	if p.offsets == nil {
		p.offsets = make(map[int32]int64)
	}
	for _, msg := range msgs {
		if _, manual := msg.Metadata.(manualPartition); !manual {
			msg.Partition = 0
		}
		msg.Offset = p.offsets[msg.Partition]
		p.offsets[msg.Partition]++
		p.sent = append(p.sent, msg)
	}
	return nil
}

func (p *fakeSyncProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// fakeGroup runs one session per Consume over the transport's message channel
type fakeGroup struct {
	sarama.ConsumerGroup

	transport *fakeTransport
	errs      chan error
	closeOnce sync.Once
}

func (g *fakeGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.transport.mu.Lock()
	g.transport.topics = append(g.transport.topics, topics)
	g.transport.mu.Unlock()

	session := &fakeSession{ctx: ctx, transport: g.transport}
	if err := handler.Setup(session); err != nil {
		return err
	}
	_ = handler.ConsumeClaim(session, &fakeClaim{messages: g.transport.messages})
	return handler.Cleanup(session)
}

func (g *fakeGroup) Errors() <-chan error {
	return g.errs
}

func (g *fakeGroup) Close() error {
	g.closeOnce.Do(func() { close(g.errs) })
	return nil
}

type fakeSession struct {
	sarama.ConsumerGroupSession

	ctx       context.Context
	transport *fakeTransport
}

func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MemberID() string         { return "member-1" }
func (s *fakeSession) GenerationID() int32      { return 1 }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	s.transport.marked = append(s.transport.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim

	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }
func (c *fakeClaim) Topic() string                            { return "" }
func (c *fakeClaim) Partition() int32                         { return 0 }

var errBoom = errors.New("boom")

func testClientOptions() ClientOptions {
	return ClientOptions{
		ClientID: "test-client",
		Brokers:  []string{"localhost:9094"},
		TLS:      Bool(false),
	}
}

func newTestClient(t *testing.T, ft *fakeTransport, options ...Option) (*Client, *observer.ObservedLogs) {
	t.Helper()
	log, logs := logger.NewObserved(zapcore.DebugLevel)
	client, err := NewClient(testClientOptions(), log, append([]Option{WithTransport(ft)}, options...)...)
	require.NoError(t, err)
	return client, logs
}

func newTestConsumer(t *testing.T, ft *fakeTransport) (*Consumer, *observer.ObservedLogs) {
	t.Helper()
	client, logs := newTestClient(t, ft)
	c, err := NewConsumer("test", client, ConsumerOptions{GroupID: "test-group"})
	require.NoError(t, err)
	return c, logs
}

// startAsync runs fn in a goroutine and returns its result channel
func startAsync(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("run loop did not return")
		return nil
	}
}

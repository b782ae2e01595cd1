package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jknl-dev/platform-kit/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager owns one Client and the named producers and consumers derived from it
type Manager struct {
	id     string
	client *Client
	logger *logger.CtxZapLogger

	mu        sync.RWMutex
	producers map[string]*Producer
	consumers map[string]*Consumer
}

// NewManager creates the client and an empty manager
func NewManager(opts ClientOptions, log *logger.CtxZapLogger, options ...Option) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger("kafka")
	}

	client, err := NewClient(opts, log, options...)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	return &Manager{
		id:        id,
		client:    client,
		logger:    log.With(zap.String("manager_id", id)),
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}, nil
}

// ID returns the manager instance id
func (m *Manager) ID() string {
	return m.id
}

// Client returns the shared client
func (m *Manager) Client() *Client {
	return m.client
}

// CreateProducer returns the producer registered under name, creating it on first use.
// opts are ignored when the producer already exists.
func (m *Manager) CreateProducer(name string, opts ProducerOptions) (*Producer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.producers[name]; ok {
		return p, nil
	}

	p, err := NewProducer(name, m.client, opts)
	if err != nil {
		return nil, err
	}
	m.producers[name] = p

	m.logger.Debug("producer created", zap.String("producer", name))
	return p, nil
}

// CreateConsumer returns the consumer registered under name, creating it on first use.
// opts are ignored when the consumer already exists.
func (m *Manager) CreateConsumer(name string, opts ConsumerOptions) (*Consumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.consumers[name]; ok {
		return c, nil
	}

	c, err := NewConsumer(name, m.client, opts)
	if err != nil {
		return nil, err
	}
	m.consumers[name] = c

	m.logger.Debug("consumer created",
		zap.String("consumer", name),
		zap.String("group_id", c.GroupID()))
	return c, nil
}

// GetProducer looks up a producer by name
func (m *Manager) GetProducer(name string) (*Producer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.producers[name]
	return p, ok
}

// GetConsumer looks up a consumer by name
func (m *Manager) GetConsumer(name string) (*Consumer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.consumers[name]
	return c, ok
}

// ConnectAll connects every registered producer and consumer
func (m *Manager) ConnectAll(ctx context.Context) error {
	producers, consumers := m.snapshot()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range producers {
		g.Go(func() error { return p.Connect(gctx) })
	}
	for _, c := range consumers {
		g.Go(func() error { return c.Connect(gctx) })
	}
	return g.Wait()
}

// DisconnectAll disconnects every connected producer and consumer concurrently,
// waits for all of them and empties both registries.
// Every failure is reported; one failure never abandons the others.
func (m *Manager) DisconnectAll(ctx context.Context) error {
	producers, consumers := m.snapshot()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	collect := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
	}

	for _, p := range producers {
		if !p.IsConnected() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			collect(p.Disconnect(ctx))
		}()
	}
	for _, c := range consumers {
		if !c.IsConnected() {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			collect(c.Disconnect(ctx))
		}()
	}
	wg.Wait()

	m.mu.Lock()
	for name, p := range m.producers {
		if producers[name] == p {
			delete(m.producers, name)
		}
	}
	for name, c := range m.consumers {
		if consumers[name] == c {
			delete(m.consumers, name)
		}
	}
	m.mu.Unlock()

	if errs != nil {
		m.logger.ErrorCtx(ctx, "disconnect all finished with errors",
			zap.Int("failures", len(multierr.Errors(errs))),
			zap.Error(errs))
		return ErrDisconnectAll.Wrap(errs)
	}

	m.logger.InfoCtx(ctx, "all kafka components disconnected",
		zap.Int("producers", len(producers)),
		zap.Int("consumers", len(consumers)))
	return nil
}

func (m *Manager) snapshot() (map[string]*Producer, map[string]*Consumer) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	producers := make(map[string]*Producer, len(m.producers))
	for name, p := range m.producers {
		producers[name] = p
	}
	consumers := make(map[string]*Consumer, len(m.consumers))
	for name, c := range m.consumers {
		consumers[name] = c
	}
	return producers, consumers
}

const pingTimeout = 5 * time.Second

// Ping opens a short-lived metadata channel to check broker reachability
func (m *Manager) Ping(ctx context.Context) error {
	_, err := m.LiveBrokers(ctx)
	return err
}

// LiveBrokers returns the broker addresses listed by cluster metadata
func (m *Manager) LiveBrokers(ctx context.Context) ([]string, error) {
	type result struct {
		addrs []string
		err   error
	}

	done := make(chan result, 1)
	go func() {
		conn, err := m.client.transport.NewClient(m.client.brokers.Brokers, m.client.base)
		if err != nil {
			done <- result{err: fmt.Errorf("create client failed: %w", err)}
			return
		}
		brokers := conn.Brokers()
		_ = conn.Close()

		if len(brokers) == 0 {
			done <- result{err: errors.New("no brokers available")}
			return
		}
		addrs := make([]string, 0, len(brokers))
		for _, b := range brokers {
			addrs = append(addrs, b.Addr())
		}
		done <- result{addrs: addrs}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.addrs, r.err
	case <-time.After(pingTimeout):
		return nil, errors.New("ping timeout")
	}
}

// Shutdown disconnects everything; called by the dependency injector on shutdown
func (m *Manager) Shutdown() error {
	return m.DisconnectAll(context.Background())
}

package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/jknl-dev/platform-kit/logger"
	"go.uber.org/zap"
)

// RawHandler receives every record of the subscribed topics (raw mode)
type RawHandler func(ctx context.Context, msg *Message) error

type runMode int

const (
	modeIdle runMode = iota
	modeRaw
	modeHandlers
)

// Consumer owns a single inbound channel and a topic handler registry.
// States: Disconnected → Connected → Subscribed → Running (raw or handlers).
type Consumer struct {
	name     string
	client   *Client
	opts     ConsumerOptions
	logger   *logger.CtxZapLogger
	handlers *handlerRegistry

	mu            sync.Mutex
	conn          sarama.Client
	subscriptions map[string]bool // topic -> fromBeginning
	mode          runMode
	cancel        context.CancelFunc
	done          chan struct{}
}

// NewConsumer creates a disconnected consumer bound to client
func NewConsumer(name string, client *Client, opts ConsumerOptions) (*Consumer, error) {
	opts.ApplyDefaults()
	if err := validate(opts); err != nil {
		return nil, err
	}
	if _, err := client.consumerConfig(opts, false); err != nil {
		return nil, err
	}

	return &Consumer{
		name:   name,
		client: client,
		opts:   opts,
		logger: client.logger.With(
			zap.String("consumer", name),
			zap.String("group_id", opts.GroupID)),
		handlers:      newHandlerRegistry(),
		subscriptions: make(map[string]bool),
	}, nil
}

// Name returns the consumer name
func (c *Consumer) Name() string {
	return c.name
}

// GroupID returns the consumer group
func (c *Consumer) GroupID() string {
	return c.opts.GroupID
}

// Options returns the options fixed at creation
func (c *Consumer) Options() ConsumerOptions {
	return c.opts
}

// Connect opens the metadata channel to the brokers; a no-op when already connected
func (c *Consumer) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	cfg, err := c.client.consumerConfig(c.opts, false)
	if err != nil {
		return err
	}

	conn, err := c.client.transport.NewClient(c.client.brokers.Brokers, cfg)
	if err != nil {
		c.logger.ErrorCtx(ctx, "consumer connect failed", zap.Error(err))
		return fmt.Errorf("consumer %s connect: %w", c.name, err)
	}
	c.conn = conn

	c.logger.InfoCtx(ctx, "consumer connected", zap.Strings("brokers", c.client.brokers.Brokers))
	return nil
}

// Disconnect stops any running loop, then closes the channel.
// A no-op when already disconnected; subscriptions are dropped.
func (c *Consumer) Disconnect(ctx context.Context) error {
	c.stopAndWait(ctx)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.subscriptions = make(map[string]bool)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := conn.Close(); err != nil {
		c.logger.ErrorCtx(ctx, "consumer close failed", zap.Error(err))
		return fmt.Errorf("consumer %s disconnect: %w", c.name, err)
	}

	c.logger.InfoCtx(ctx, "consumer disconnected")
	return nil
}

// IsConnected reports whether the channel is open
func (c *Consumer) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// IsRunning reports whether a run loop is active in either mode
func (c *Consumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode != modeIdle
}

// IsRunningHandlers reports whether StartWithHandlers is active
func (c *Consumer) IsRunningHandlers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode == modeHandlers
}

// Subscribe adds topic to the next run; topic metadata is refreshed through the channel.
// fromBeginning makes a group without committed offsets start at the oldest record.
func (c *Consumer) Subscribe(ctx context.Context, topic string, fromBeginning bool) error {
	if topic == "" {
		return ErrEmptyTopic
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected.WithMsgf("consumer %s is not connected", c.name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := conn.RefreshMetadata(topic); err != nil {
		c.logger.ErrorCtx(ctx, "subscribe failed", zap.String("topic", topic), zap.Error(err))
		return fmt.Errorf("consumer %s subscribe %s: %w", c.name, topic, err)
	}

	c.mu.Lock()
	c.subscriptions[topic] = c.subscriptions[topic] || fromBeginning
	c.mu.Unlock()

	c.logger.InfoCtx(ctx, "subscribed",
		zap.String("topic", topic),
		zap.Bool("from_beginning", fromBeginning))
	return nil
}

// Subscriptions returns the subscribed topics, sorted
func (c *Consumer) Subscriptions() []string {
	topics, _ := c.subscriptionSnapshot()
	return topics
}

func (c *Consumer) subscriptionSnapshot() (topics []string, fromBeginning bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	topics = make([]string, 0, len(c.subscriptions))
	for t, fb := range c.subscriptions {
		topics = append(topics, t)
		fromBeginning = fromBeginning || fb
	}
	sort.Strings(topics)
	return topics, fromBeginning
}

// RegisterHandler sets the handler for topic; an existing handler is replaced
func (c *Consumer) RegisterHandler(topic string, handler TopicHandler) {
	if handler == nil {
		c.logger.Warn("ignoring nil handler", zap.String("topic", topic))
		return
	}
	if replaced := c.handlers.set(topic, handler); replaced {
		c.logger.Warn("handler replaced", zap.String("topic", topic))
		return
	}
	c.logger.Debug("handler registered", zap.String("topic", topic))
}

// UnregisterHandler removes the handler for topic and reports whether one existed
func (c *Consumer) UnregisterHandler(topic string) bool {
	return c.handlers.remove(topic)
}

// HasHandler reports whether topic has a handler
func (c *Consumer) HasHandler(topic string) bool {
	_, ok := c.handlers.get(topic)
	return ok
}

// RegisteredTopics returns topics with handlers, sorted
func (c *Consumer) RegisteredTopics() []string {
	return c.handlers.topics()
}

// ClearHandlers removes every handler
func (c *Consumer) ClearHandlers() {
	c.handlers.clear()
}

// run one active dispatch loop
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	topics []string // handler snapshot in handlers mode
}

func (c *Consumer) begin(ctx context.Context, mode runMode) (*run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != modeIdle {
		return nil, ErrAlreadyRunning
	}

	var topics []string
	switch mode {
	case modeHandlers:
		topics = c.handlers.topics()
		if len(topics) == 0 {
			return nil, ErrNoHandlersRegistered
		}
		if c.conn == nil {
			return nil, ErrNotConnected.WithMsgf("consumer %s is not connected", c.name)
		}
	default:
		if c.conn == nil {
			return nil, ErrNotConnected.WithMsgf("consumer %s is not connected", c.name)
		}
		if len(c.subscriptions) == 0 {
			return nil, ErrNoSubscriptions
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mode = mode
	c.cancel = cancel
	c.done = make(chan struct{})

	return &run{ctx: runCtx, cancel: cancel, topics: topics}, nil
}

func (c *Consumer) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.mode = modeIdle
}

// Run consumes every subscribed topic with one handler and blocks until
// Stop (nil), ctx cancellation (ctx.Err()) or a handler error (ErrHandlerFailed).
// Records of one partition are handled sequentially in offset order.
func (c *Consumer) Run(ctx context.Context, handler RawHandler) error {
	if handler == nil {
		return ErrInvalidConfig.WithMsgf("handler cannot be nil")
	}

	r, err := c.begin(ctx, modeRaw)
	if err != nil {
		return err
	}
	return c.consume(ctx, r, handler)
}

// StartWithHandlers subscribes every registered topic (snapshot at call time)
// and routes records by topic until Stop, ctx cancellation or a handler error.
func (c *Consumer) StartWithHandlers(ctx context.Context) error {
	r, err := c.begin(ctx, modeHandlers)
	if err != nil {
		return err
	}

	for _, topic := range r.topics {
		if err := c.Subscribe(r.ctx, topic, false); err != nil {
			c.finish()
			if r.ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}

	c.logger.InfoCtx(ctx, "starting consumer with handlers", zap.Strings("topics", r.topics))
	return c.consume(ctx, r, func(ctx context.Context, msg *Message) error {
		_, err := c.Dispatch(ctx, msg)
		return err
	})
}

// Stop ends the active run loop; Run and StartWithHandlers return nil
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		c.logger.Info("consumer stop requested")
	}
}

// stopAndWait stops the run loop and waits until it exits or ctx ends
func (c *Consumer) stopAndWait(ctx context.Context) {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (c *Consumer) consume(parent context.Context, r *run, handle RawHandler) error {
	defer c.finish()

	topics, fromBeginning := c.subscriptionSnapshot()
	if len(topics) == 0 {
		return ErrNoSubscriptions
	}

	cfg, err := c.client.consumerConfig(c.opts, fromBeginning)
	if err != nil {
		return err
	}

	group, err := c.client.transport.NewConsumerGroup(c.client.brokers.Brokers, c.opts.GroupID, cfg)
	if err != nil {
		c.logger.ErrorCtx(parent, "create consumer group failed", zap.Error(err))
		return fmt.Errorf("consumer %s: create group: %w", c.name, err)
	}
	defer func() {
		if err := group.Close(); err != nil {
			c.logger.WarnCtx(parent, "close consumer group failed", zap.Error(err))
		}
	}()

	go c.logGroupErrors(parent, group.Errors())

	gh := &groupHandler{consumer: c, handle: handle, cancel: r.cancel}
	c.logger.InfoCtx(parent, "consumer running",
		zap.Strings("topics", topics),
		zap.Bool("from_beginning", fromBeginning))

	for {
		err := group.Consume(r.ctx, topics, gh)
		if failure := gh.failure(); failure != nil {
			return ErrHandlerFailed.Wrap(failure)
		}
		if r.ctx.Err() != nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
			c.logger.InfoCtx(parent, "consumer loop stopped")
			return parent.Err()
		}
		if err != nil {
			c.logger.WarnCtx(parent, "consume session ended with error", zap.Error(err))
			select {
			case <-r.ctx.Done():
				return parent.Err()
			case <-time.After(c.client.brokers.Retry.InitialBackoff):
			}
		}
	}
}

func (c *Consumer) logGroupErrors(ctx context.Context, errs <-chan error) {
	if errs == nil {
		return
	}
	for err := range errs {
		c.logger.WarnCtx(ctx, "consumer group error", zap.Error(err))
	}
}

// groupHandler implements sarama.ConsumerGroupHandler.
// The first handler error cancels the run; the failing record is not marked.
type groupHandler struct {
	consumer *Consumer
	handle   RawHandler
	cancel   context.CancelFunc

	mu  sync.Mutex
	err error
}

func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.consumer.logger.DebugCtx(session.Context(), "consumer session setup",
		zap.Int32("generation_id", session.GenerationID()),
		zap.String("member_id", session.MemberID()))
	return nil
}

func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.consumer.logger.DebugCtx(session.Context(), "consumer session cleanup",
		zap.Int32("generation_id", session.GenerationID()))
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			m := newMessage(msg)
			spanCtx, span := h.consumer.client.tracing.startProcess(ctx, h.consumer.opts.GroupID, m)
			start := time.Now()
			err := h.handle(withMessage(spanCtx, m), m)
			h.consumer.client.metrics.RecordConsume(ctx, msg.Topic, h.consumer.opts.GroupID, msg.Partition, time.Since(start), err)
			endSpan(span, err)

			if err != nil {
				h.fail(err)
				return err
			}
			session.MarkMessage(msg, "")
		}
	}
}

func (h *groupHandler) fail(err error) {
	h.mu.Lock()
	if h.err == nil {
		h.err = err
	}
	h.mu.Unlock()
	h.cancel()
}

func (h *groupHandler) failure() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

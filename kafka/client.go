package kafka

import (
	"crypto/tls"
	"slices"
	"time"

	"github.com/IBM/sarama"
	"github.com/jknl-dev/platform-kit/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Transport opens the underlying sarama channels.
// The default implementation dials real brokers; tests substitute fakes.
type Transport interface {
	NewClient(brokers []string, cfg *sarama.Config) (sarama.Client, error)
	NewSyncProducer(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error)
	NewConsumerGroup(brokers []string, groupID string, cfg *sarama.Config) (sarama.ConsumerGroup, error)
}

type saramaTransport struct{}

func (saramaTransport) NewClient(brokers []string, cfg *sarama.Config) (sarama.Client, error) {
	return sarama.NewClient(brokers, cfg)
}

func (saramaTransport) NewSyncProducer(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error) {
	return sarama.NewSyncProducer(brokers, cfg)
}

func (saramaTransport) NewConsumerGroup(brokers []string, groupID string, cfg *sarama.Config) (sarama.ConsumerGroup, error) {
	return sarama.NewConsumerGroup(brokers, groupID, cfg)
}

// Client is the shared connection context from which producers and consumers are derived.
// It holds no connections itself.
type Client struct {
	clientID  string
	brokers   BrokerConfig
	base      *sarama.Config
	transport Transport
	logger    *logger.CtxZapLogger
	metrics   *Metrics
	tracing   tracing
}

// Option customizes a Client
type Option func(*Client)

// WithTransport replaces the sarama transport
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithMetrics records produce/consume metrics
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds a client from environment-derived broker addresses.
// Invalid options fail with ErrInvalidConfig; nothing is defaulted silently.
func NewClient(opts ClientOptions, log *logger.CtxZapLogger, options ...Option) (*Client, error) {
	if log == nil {
		log = logger.GetLogger("kafka")
	}

	opts.ApplyDefaults()
	if err := validate(opts); err != nil {
		return nil, err
	}

	brokers, err := resolveBrokerConfig(opts)
	if err != nil {
		return nil, err
	}

	base, err := newBaseConfig(opts, brokers)
	if err != nil {
		return nil, err
	}

	c := &Client{
		clientID:  opts.ClientID,
		brokers:   brokers,
		base:      base,
		transport: saramaTransport{},
		logger:    log,
		tracing:   newTracing(nil),
	}
	for _, o := range options {
		o(c)
	}

	log.Debug("kafka client created",
		zap.String("client_id", opts.ClientID),
		zap.String("env", opts.Env.String()),
		zap.Bool("in_cluster", opts.InCluster),
		zap.Strings("brokers", brokers.Brokers),
		zap.Bool("tls", brokers.TLS))

	return c, nil
}

// ClientID returns the client identity
func (c *Client) ClientID() string {
	return c.clientID
}

// BrokerConfig returns a copy of the resolved broker configuration
func (c *Client) BrokerConfig() BrokerConfig {
	bc := c.brokers
	bc.Brokers = slices.Clone(c.brokers.Brokers)
	return bc
}

// newBaseConfig translates client options into a sarama configuration
func newBaseConfig(opts ClientOptions, brokers BrokerConfig) (*sarama.Config, error) {
	cfg := sarama.NewConfig()

	version, err := sarama.ParseKafkaVersion(opts.Version)
	if err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	cfg.Version = version
	cfg.ClientID = opts.ClientID

	backoff := exponentialBackoff(brokers.Retry.InitialBackoff)
	cfg.Metadata.Retry.Max = brokers.Retry.MaxRetries
	cfg.Metadata.Retry.BackoffFunc = backoff
	cfg.Producer.Retry.Max = brokers.Retry.MaxRetries
	cfg.Producer.Retry.BackoffFunc = backoff
	cfg.Consumer.Retry.BackoffFunc = func(retries int) time.Duration {
		return backoff(retries, brokers.Retry.MaxRetries)
	}
	cfg.Admin.Retry.Max = brokers.Retry.MaxRetries
	cfg.Admin.Retry.Backoff = brokers.Retry.InitialBackoff

	if brokers.TLS {
		cfg.Net.TLS.Enable = true
		cfg.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	applySASL(cfg, opts.SASL)

	if err := cfg.Validate(); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	return cfg, nil
}

const maxBackoff = 30 * time.Second

// exponentialBackoff doubles initial per retry, capped at maxBackoff
func exponentialBackoff(initial time.Duration) func(retries, maxRetries int) time.Duration {
	return func(retries, _ int) time.Duration {
		if retries < 0 {
			retries = 0
		}
		if retries > 30 {
			return maxBackoff
		}
		d := initial << uint(retries)
		if d <= 0 || d > maxBackoff {
			return maxBackoff
		}
		return d
	}
}

// producerConfig derives a sarama configuration for one producer
func (c *Client) producerConfig(opts ProducerOptions) (*sarama.Config, error) {
	cfg := *c.base

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = opts.idempotent()
	cfg.Producer.Transaction.Timeout = opts.TransactionTimeout
	cfg.Producer.Partitioner = newRecordPartitioner
	cfg.Net.MaxOpenRequests = opts.MaxInFlightRequests

	switch opts.Compression {
	case "gzip":
		cfg.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	if err := cfg.Validate(); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	return &cfg, nil
}

// consumerConfig derives a sarama configuration for one consumer run
func (c *Client) consumerConfig(opts ConsumerOptions, fromBeginning bool) (*sarama.Config, error) {
	cfg := *c.base

	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Group.Session.Timeout = opts.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = opts.HeartbeatInterval
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	if fromBeginning {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	switch opts.RebalanceStrategy {
	case "roundrobin":
		cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	case "sticky":
		cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	default:
		cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	}

	if err := cfg.Validate(); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	return &cfg, nil
}

// manualPartition marks a ProducerMessage whose Partition was chosen by the caller
type manualPartition struct{}

// recordPartitioner honours explicit record partitions and hashes the key otherwise
type recordPartitioner struct {
	hash sarama.Partitioner
}

func newRecordPartitioner(topic string) sarama.Partitioner {
	return &recordPartitioner{hash: sarama.NewHashPartitioner(topic)}
}

func (p *recordPartitioner) Partition(msg *sarama.ProducerMessage, numPartitions int32) (int32, error) {
	if _, ok := msg.Metadata.(manualPartition); ok {
		if msg.Partition < 0 || msg.Partition >= numPartitions {
			return -1, sarama.ErrInvalidPartition
		}
		return msg.Partition, nil
	}
	return p.hash.Partition(msg, numPartitions)
}

func (p *recordPartitioner) RequiresConsistency() bool {
	return true
}

// RedirectSaramaLogs routes sarama's package-level logger into log at debug level
func RedirectSaramaLogs(log *logger.CtxZapLogger) {
	std, err := zap.NewStdLogAt(log.GetZapLogger().Named("sarama"), zapcore.DebugLevel)
	if err != nil {
		return
	}
	sarama.Logger = std
}

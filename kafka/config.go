package kafka

import (
	"errors"
	"slices"
	"time"

	"github.com/IBM/sarama"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/jknl-dev/platform-kit/discovery"
	"github.com/jknl-dev/platform-kit/validator"
)

// DefaultVersion Kafka protocol version spoken by default
const DefaultVersion = "3.8.0"

// RetryPolicy connection-level retry, fixed when the client is created
type RetryPolicy struct {
	// InitialBackoff first retry delay; later retries double it
	InitialBackoff time.Duration `mapstructure:"initial_backoff" json:"initial_backoff"`

	// MaxRetries retries before an operation fails
	MaxRetries int `mapstructure:"max_retries" json:"max_retries"`
}

// DefaultRetryPolicy 100ms initial backoff, 8 retries
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialBackoff: 100 * time.Millisecond,
		MaxRetries:     8,
	}
}

// Validate retry policy
func (r RetryPolicy) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.InitialBackoff, validation.Min(time.Millisecond)),
		validation.Field(&r.MaxRetries, validation.Min(0)),
	)
}

// SASL mechanisms
const (
	MechanismPlain       = "PLAIN"
	MechanismSCRAMSHA256 = "SCRAM-SHA-256"
	MechanismSCRAMSHA512 = "SCRAM-SHA-512"
)

// SASLConfig SASL authentication
type SASLConfig struct {
	Mechanism string `mapstructure:"mechanism" json:"mechanism"`
	Username  string `mapstructure:"username" json:"username"`
	Password  string `mapstructure:"password" json:"password"`
}

// Validate SASL configuration
func (c SASLConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mechanism, validation.Required,
			validation.In(MechanismPlain, MechanismSCRAMSHA256, MechanismSCRAMSHA512)),
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// ClientOptions input of the connection factory
type ClientOptions struct {
	// ClientID client identity reported to brokers
	ClientID string `json:"client_id"`

	// Env selects the broker set together with InCluster
	Env discovery.Environment `json:"env"`

	// InCluster the process runs inside the cluster network
	InCluster bool `json:"in_cluster"`

	// TLS override (default true)
	TLS *bool `json:"tls"`

	// Retry override (default DefaultRetryPolicy)
	Retry *RetryPolicy `json:"retry"`

	// SASL optional authentication
	SASL *SASLConfig `json:"sasl"`

	// Version Kafka protocol version (default DefaultVersion)
	Version string `json:"version"`

	// Brokers explicit addresses; when empty they come from discovery
	Brokers []string `json:"brokers"`
}

// ApplyDefaults fills unset options
func (o *ClientOptions) ApplyDefaults() {
	if o.Env == "" {
		o.Env = discovery.Development
	}
	if o.TLS == nil {
		o.TLS = Bool(true)
	}
	if o.Retry == nil {
		retry := DefaultRetryPolicy()
		o.Retry = &retry
	}
	if o.Version == "" {
		o.Version = DefaultVersion
	}
}

// Validate client options
func (o ClientOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.ClientID, validation.Required),
		validation.Field(&o.Env, validation.By(validEnvironment)),
		validation.Field(&o.Version, validation.By(validVersion)),
		validation.Field(&o.Brokers, validation.Each(validation.Required)),
		validation.Field(&o.Retry),
		validation.Field(&o.SASL),
	)
}

func validEnvironment(value any) error {
	env, _ := value.(discovery.Environment)
	if !env.IsValid() {
		return errors.New("unknown environment")
	}
	return nil
}

func validVersion(value any) error {
	version, _ := value.(string)
	if _, err := sarama.ParseKafkaVersion(version); err != nil {
		return errors.New("invalid kafka version")
	}
	return nil
}

// BrokerConfig resolved connection parameters, immutable once the client exists
type BrokerConfig struct {
	Brokers []string
	TLS     bool
	Retry   RetryPolicy
}

// resolveBrokerConfig applies the three-way broker rule unless brokers are explicit
func resolveBrokerConfig(o ClientOptions) (BrokerConfig, error) {
	brokers := o.Brokers
	if len(brokers) == 0 {
		brokers = discovery.KafkaBrokers(o.Env, o.InCluster)
	}
	if len(brokers) == 0 {
		return BrokerConfig{}, ErrInvalidConfig.WithMsgf("no brokers for environment %s", o.Env)
	}

	return BrokerConfig{
		Brokers: slices.Clone(brokers),
		TLS:     *o.TLS,
		Retry:   *o.Retry,
	}, nil
}

// ProducerOptions send options fixed at producer creation
type ProducerOptions struct {
	// MaxInFlightRequests unacknowledged requests per connection (default 1)
	MaxInFlightRequests int `mapstructure:"max_in_flight_requests" json:"max_in_flight_requests"`

	// Idempotent broker-side deduplication (default true); forces acks=all
	Idempotent *bool `mapstructure:"idempotent" json:"idempotent"`

	// TransactionTimeout (default 30s)
	TransactionTimeout time.Duration `mapstructure:"transaction_timeout" json:"transaction_timeout"`

	// Compression none, gzip, snappy, lz4, zstd (default none)
	Compression string `mapstructure:"compression" json:"compression"`
}

// DefaultProducerOptions one in-flight request, idempotent, 30s transaction timeout
func DefaultProducerOptions() ProducerOptions {
	return ProducerOptions{
		MaxInFlightRequests: 1,
		Idempotent:          Bool(true),
		TransactionTimeout:  30 * time.Second,
		Compression:         "none",
	}
}

// ApplyDefaults fills unset options
func (o *ProducerOptions) ApplyDefaults() {
	defaults := DefaultProducerOptions()
	if o.MaxInFlightRequests == 0 {
		o.MaxInFlightRequests = defaults.MaxInFlightRequests
	}
	if o.Idempotent == nil {
		o.Idempotent = defaults.Idempotent
	}
	if o.TransactionTimeout == 0 {
		o.TransactionTimeout = defaults.TransactionTimeout
	}
	if o.Compression == "" {
		o.Compression = defaults.Compression
	}
}

func (o ProducerOptions) idempotent() bool {
	return o.Idempotent != nil && *o.Idempotent
}

// Validate producer options
func (o ProducerOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.MaxInFlightRequests,
			validation.Min(1),
			validation.When(o.idempotent(), validation.Max(1).Error("must be 1 for an idempotent producer")),
		),
		validation.Field(&o.TransactionTimeout, validation.Min(time.Millisecond)),
		validation.Field(&o.Compression, validation.In("none", "gzip", "snappy", "lz4", "zstd")),
	)
}

// ConsumerOptions group membership options fixed at consumer creation
type ConsumerOptions struct {
	// GroupID consumer group (required)
	GroupID string `mapstructure:"group_id" json:"group_id"`

	// SessionTimeout (default 30s)
	SessionTimeout time.Duration `mapstructure:"session_timeout" json:"session_timeout"`

	// HeartbeatInterval (default 3s), must stay below SessionTimeout
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" json:"heartbeat_interval"`

	// RebalanceStrategy range, roundrobin, sticky (default range)
	RebalanceStrategy string `mapstructure:"rebalance_strategy" json:"rebalance_strategy"`
}

// ApplyDefaults fills unset options
func (o *ConsumerOptions) ApplyDefaults() {
	if o.SessionTimeout == 0 {
		o.SessionTimeout = 30 * time.Second
	}
	if o.HeartbeatInterval == 0 {
		o.HeartbeatInterval = 3 * time.Second
	}
	if o.RebalanceStrategy == "" {
		o.RebalanceStrategy = "range"
	}
}

// Validate consumer options
func (o ConsumerOptions) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.GroupID, validation.Required),
		validation.Field(&o.SessionTimeout, validation.Min(time.Millisecond)),
		validation.Field(&o.HeartbeatInterval,
			validation.Min(time.Millisecond),
			validation.Max(o.SessionTimeout).Exclusive().Error("must be less than session_timeout"),
		),
		validation.Field(&o.RebalanceStrategy, validation.In("range", "roundrobin", "sticky")),
	)
}

// MetricsConfig kafka metrics switch
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Settings the "kafka" configuration section:
//
//	kafka:
//	  client_id: analytics-service
//	  env: production
//	  in_cluster: true
//	  producers:
//	    events: {}
//	  consumers:
//	    analytics:
//	      group_id: analytics-consumer-group
type Settings struct {
	ClientID  string                     `mapstructure:"client_id"`
	Env       string                     `mapstructure:"env"`
	InCluster bool                       `mapstructure:"in_cluster"`
	TLS       *bool                      `mapstructure:"tls"`
	Retry     *RetryPolicy               `mapstructure:"retry"`
	SASL      *SASLConfig                `mapstructure:"sasl"`
	Version   string                     `mapstructure:"version"`
	Brokers   []string                   `mapstructure:"brokers"`
	Metrics   MetricsConfig              `mapstructure:"metrics"`
	Producers map[string]ProducerOptions `mapstructure:"producers"`
	Consumers map[string]ConsumerOptions `mapstructure:"consumers"`
}

// ClientOptions converts the section into factory input
func (s Settings) ClientOptions() (ClientOptions, error) {
	env, err := discovery.ParseEnvironment(s.Env)
	if err != nil {
		return ClientOptions{}, ErrInvalidConfig.Wrap(err)
	}

	return ClientOptions{
		ClientID:  s.ClientID,
		Env:       env,
		InCluster: s.InCluster,
		TLS:       s.TLS,
		Retry:     s.Retry,
		SASL:      s.SASL,
		Version:   s.Version,
		Brokers:   s.Brokers,
	}, nil
}

// validate runs ozzo validation and tags failures as ErrInvalidConfig
func validate(v validator.Validatable) error {
	if err := validator.ValidateRequest(v); err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	return nil
}

// Bool returns a pointer to v (for optional flags)
func Bool(v bool) *bool {
	return &v
}

package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/jknl-dev/platform-kit/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultRetryPolicy().Validate())
	assert.NoError(t, RetryPolicy{InitialBackoff: time.Millisecond}.Validate())
	assert.Error(t, RetryPolicy{InitialBackoff: 0}.Validate())
	assert.Error(t, RetryPolicy{InitialBackoff: time.Second, MaxRetries: -1}.Validate())
}

func TestClientOptions_ApplyDefaults(t *testing.T) {
	var opts ClientOptions
	opts.ApplyDefaults()

	assert.Equal(t, discovery.Development, opts.Env)
	require.NotNil(t, opts.TLS)
	assert.True(t, *opts.TLS)
	require.NotNil(t, opts.Retry)
	assert.Equal(t, 100*time.Millisecond, opts.Retry.InitialBackoff)
	assert.Equal(t, 8, opts.Retry.MaxRetries)
	assert.Equal(t, DefaultVersion, opts.Version)

	explicit := ClientOptions{TLS: Bool(false), Version: "2.8.0"}
	explicit.ApplyDefaults()
	assert.False(t, *explicit.TLS)
	assert.Equal(t, "2.8.0", explicit.Version)
}

func TestProducerOptions_Validate(t *testing.T) {
	opts := ProducerOptions{}
	opts.ApplyDefaults()
	assert.NoError(t, opts.Validate())
	assert.Equal(t, DefaultProducerOptions(), opts)

	opts.MaxInFlightRequests = 2
	assert.Error(t, opts.Validate())

	opts.Idempotent = Bool(false)
	assert.NoError(t, opts.Validate())

	opts.Compression = "brotli"
	assert.Error(t, opts.Validate())
}

func TestConsumerOptions_Validate(t *testing.T) {
	opts := ConsumerOptions{GroupID: "g"}
	opts.ApplyDefaults()
	assert.NoError(t, opts.Validate())

	opts.HeartbeatInterval = opts.SessionTimeout
	assert.Error(t, opts.Validate())

	opts.HeartbeatInterval = time.Second
	opts.RebalanceStrategy = "cooperative"
	assert.Error(t, opts.Validate())

	assert.Error(t, ConsumerOptions{}.Validate())
}

func TestSettings_ClientOptions(t *testing.T) {
	s := Settings{
		ClientID:  "svc",
		Env:       "Production",
		InCluster: true,
		Brokers:   []string{"b:9094"},
	}

	opts, err := s.ClientOptions()
	require.NoError(t, err)
	assert.Equal(t, discovery.Production, opts.Env)
	assert.True(t, opts.InCluster)
	assert.Equal(t, []string{"b:9094"}, opts.Brokers)

	s.Env = ""
	opts, err = s.ClientOptions()
	require.NoError(t, err)
	assert.Equal(t, discovery.Development, opts.Env)

	s.Env = "staging"
	_, err = s.ClientOptions()
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestErrors_DistinctCodes(t *testing.T) {
	all := []error{
		ErrInvalidConfig, ErrNotConnected, ErrNoHandlersRegistered, ErrAlreadyRunning,
		ErrNoSubscriptions, ErrEmptyRecords, ErrEmptyTopic, ErrSendFailed,
		ErrHandlerFailed, ErrDecode, ErrDisconnectAll,
	}
	for i, a := range all {
		for j, b := range all {
			assert.Equal(t, i == j, errors.Is(a, b), "%v vs %v", a, b)
		}
	}

	assert.True(t, errors.Is(ErrNotConnected.WithMsgf("producer %s is not connected", "x"), ErrNotConnected))
	assert.Equal(t, 600002, ErrNotConnected.Code())
}

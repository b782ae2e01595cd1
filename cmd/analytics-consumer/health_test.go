package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jknl-dev/platform-kit/health"
	"github.com/jknl-dev/platform-kit/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name string
	err  error
}

func (s *stubChecker) Name() string                { return s.name }
func (s *stubChecker) Check(context.Context) error { return s.err }

func newTestAggregator(checkers ...health.Checker) *health.Aggregator {
	agg := health.NewAggregator(health.Config{Timeout: time.Second}, logger.NewNop())
	for _, c := range checkers {
		agg.Register(c)
	}
	return agg
}

func TestRunHealth(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  health.Status
		wantErr bool
	}{
		{name: "healthy", status: health.StatusHealthy},
		{name: "degraded", err: fmt.Errorf("2 of 3 answering: %w", health.ErrDegraded), status: health.StatusDegraded},
		{name: "unhealthy", err: errors.New("kafka brokers [localhost:9092] unreachable"), status: health.StatusUnhealthy, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := runHealth(context.Background(), newTestAggregator(&stubChecker{name: "kafka", err: tt.err}), &out)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			var resp health.Response
			require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Contains(t, resp.Checks, "kafka")
		})
	}
}

func TestProvideAggregator_RegistersKafkaChecker(t *testing.T) {
	a, err := openTestApp(t, map[string]string{"config.yaml": baseConfig})
	require.NoError(t, err)

	agg, err := provideAggregator(a.injector)
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka"}, agg.Names())
}

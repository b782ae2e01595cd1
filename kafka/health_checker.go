package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jknl-dev/platform-kit/health"
)

const defaultHealthTimeout = 5 * time.Second

// HealthChecker reports whether the manager's brokers answer a metadata request.
// Implements component.HealthChecker.
type HealthChecker struct {
	manager *Manager
	timeout time.Duration
}

// NewHealthChecker creates a checker bound to manager
func NewHealthChecker(manager *Manager) *HealthChecker {
	return &HealthChecker{
		manager: manager,
		timeout: defaultHealthTimeout,
	}
}

func (h *HealthChecker) Name() string {
	return "kafka"
}

// Check fetches cluster metadata; the error names the broker set that failed.
// Fewer live brokers than configured addresses wraps health.ErrDegraded.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.manager == nil {
		return ErrNotConnected.WithMsgf("kafka manager not initialized")
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	configured := h.manager.Client().BrokerConfig().Brokers
	live, err := h.manager.LiveBrokers(checkCtx)
	if err != nil {
		return fmt.Errorf("kafka brokers [%s] unreachable: %w", strings.Join(configured, ","), err)
	}
	if len(live) < len(configured) {
		return fmt.Errorf("kafka brokers: %d of %d answering [%s]: %w",
			len(live), len(configured), strings.Join(live, ","), health.ErrDegraded)
	}
	return nil
}

// SetTimeout overrides the per-check timeout; non-positive values are ignored
func (h *HealthChecker) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		h.timeout = timeout
	}
}

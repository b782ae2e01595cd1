// Package health aggregates dependency checks into a single report.
package health

import (
	"errors"
	"time"

	"github.com/jknl-dev/platform-kit/component"
)

// Status of a single check or of the whole report
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Checker is the dependency check contract shared with components
type Checker = component.HealthChecker

// ErrDegraded marks a check failure that leaves the dependency usable.
// Checkers wrap it to report StatusDegraded instead of StatusUnhealthy.
var ErrDegraded = errors.New("degraded")

// CheckResult is the outcome of one checker
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Response is the aggregated report
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
}

func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

func (r *Response) IsDegraded() bool {
	return r.Status == StatusDegraded
}

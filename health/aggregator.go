package health

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jknl-dev/platform-kit/logger"
	"go.uber.org/zap"
)

// Aggregator runs registered checkers concurrently under one deadline
type Aggregator struct {
	timeout time.Duration
	logger  *logger.CtxZapLogger

	mu       sync.RWMutex
	checkers map[string]Checker
	metadata map[string]any
}

// NewAggregator creates an aggregator; a nil logger discards output
func NewAggregator(cfg Config, log *logger.CtxZapLogger) *Aggregator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Aggregator{
		timeout:  cfg.Timeout,
		logger:   log,
		checkers: make(map[string]Checker),
		metadata: make(map[string]any),
	}
}

// Register adds a checker; a checker with the same name replaces the old one
func (a *Aggregator) Register(c Checker) {
	if c == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers[c.Name()] = c
}

// Names returns the registered checker names, sorted
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.checkers))
	for name := range a.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (a *Aggregator) SetMetadata(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[key] = value
}

// Check runs every checker and folds the results into one status.
// No checkers means healthy.
func (a *Aggregator) Check(ctx context.Context) *Response {
	start := time.Now()

	a.mu.RLock()
	checkers := make([]Checker, 0, len(a.checkers))
	for _, c := range a.checkers {
		checkers = append(checkers, c)
	}
	metadata := make(map[string]any, len(a.metadata))
	for k, v := range a.metadata {
		metadata[k] = v
	}
	a.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	results := make(chan CheckResult, len(checkers))
	for _, c := range checkers {
		go func(c Checker) {
			results <- a.checkOne(checkCtx, c)
		}(c)
	}

	checks := make(map[string]CheckResult, len(checkers))
	for range checkers {
		r := <-results
		checks[r.Name] = r
	}

	return &Response{
		Status:    overallStatus(checks),
		Timestamp: start,
		Duration:  time.Since(start),
		Checks:    checks,
		Metadata:  metadata,
	}
}

func (a *Aggregator) checkOne(ctx context.Context, c Checker) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.Name(), Timestamp: start, Status: StatusHealthy}

	err := c.Check(ctx)
	result.Duration = time.Since(start)
	if err == nil {
		return result
	}

	result.Error = err.Error()
	if errors.Is(err, ErrDegraded) {
		result.Status = StatusDegraded
	} else {
		result.Status = StatusUnhealthy
	}
	a.logger.WarnCtx(ctx, "health check failed",
		zap.String("check", result.Name),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration),
		zap.Error(err))
	return result
}

// overallStatus is the worst status among checks
func overallStatus(checks map[string]CheckResult) Status {
	status := StatusHealthy
	for _, r := range checks {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Package component defines lifecycle interfaces shared by infrastructure packages.
// It imports no other package of this module.
package component

import "context"

// Component lifecycle: Init → Start → Stop
type Component interface {
	// Name unique component name
	Name() string

	// DependsOn names of components that must be initialized first.
	// An "optional:" prefix marks a dependency that may be absent.
	DependsOn() []string

	// Init reads configuration and creates resources without serving
	Init(ctx context.Context, loader ConfigLoader) error

	// Start begins serving (connect, listen, consume)
	Start(ctx context.Context) error

	// Stop releases resources; must be idempotent
	Stop(ctx context.Context) error
}

// HealthChecker reports the health of one dependency
type HealthChecker interface {
	// Check returns nil when healthy
	Check(ctx context.Context) error

	// Name check name, e.g. "kafka"
	Name() string
}

// HealthCheckProvider is implemented by components exposing a checker
type HealthCheckProvider interface {
	GetHealthChecker() HealthChecker
}

package component

import (
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider is implemented by components that record metrics.
//
//	if mp, ok := comp.(component.MetricsProvider); ok && mp.IsMetricsEnabled() {
//	    err = mp.RegisterMetrics(otel.Meter(mp.MetricsName()))
//	}
type MetricsProvider interface {
	// MetricsName short lowercase group name, e.g. "kafka"
	MetricsName() string

	// RegisterMetrics creates instruments on meter; called after Init
	RegisterMetrics(meter metric.Meter) error

	// IsMetricsEnabled reports whether collection is enabled
	IsMetricsEnabled() bool
}

// Package telemetry builds the OpenTelemetry meter and tracer providers used
// by the kafka instrumentation.
package telemetry

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

const (
	SamplerParentBased = "parent_based"
	SamplerAlwaysOn    = "always_on"
	SamplerAlwaysOff   = "always_off"
	SamplerRatio       = "trace_id_ratio"
)

// Config the "telemetry" configuration section
type Config struct {
	Enabled        bool           `mapstructure:"enabled"`
	ServiceName    string         `mapstructure:"service_name"`
	ServiceVersion string         `mapstructure:"service_version"`
	ResourceAttrs  map[string]any `mapstructure:"resource_attributes"` // nested maps become dotted keys
	Exporter       ExporterConfig `mapstructure:"exporter"`
	Sampler        SamplerConfig  `mapstructure:"sampler"`
	ExportInterval time.Duration  `mapstructure:"export_interval"`
	ExportTimeout  time.Duration  `mapstructure:"export_timeout"`
}

// ExporterConfig selects where metrics are pushed
type ExporterConfig struct {
	Type     string            `mapstructure:"type"` // stdout, otlp
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Headers  map[string]string `mapstructure:"headers"`
}

// SamplerConfig chooses which traces are recorded
type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Ratio float64 `mapstructure:"ratio"` // trace_id_ratio only
}

func DefaultConfig() Config {
	return Config{
		ServiceVersion: "dev",
		Exporter: ExporterConfig{
			Type:    ExporterStdout,
			Timeout: 10 * time.Second,
		},
		Sampler:        SamplerConfig{Type: SamplerParentBased},
		ExportInterval: 30 * time.Second,
		ExportTimeout:  10 * time.Second,
	}
}

// ApplyDefaults fills zero values from DefaultConfig
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.ServiceVersion == "" {
		c.ServiceVersion = d.ServiceVersion
	}
	if c.Exporter.Type == "" {
		c.Exporter.Type = d.Exporter.Type
	}
	if c.Exporter.Timeout <= 0 {
		c.Exporter.Timeout = d.Exporter.Timeout
	}
	if c.Sampler.Type == "" {
		c.Sampler.Type = d.Sampler.Type
	}
	if c.ExportInterval <= 0 {
		c.ExportInterval = d.ExportInterval
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = d.ExportTimeout
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.Exporter),
		validation.Field(&c.Sampler),
		validation.Field(&c.ExportInterval, validation.Min(time.Second)),
	)
}

func (e ExporterConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Type, validation.Required, validation.In(ExporterStdout, ExporterOTLP)),
		validation.Field(&e.Endpoint, validation.When(e.Type == ExporterOTLP, validation.Required)),
	)
}

func (s SamplerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required,
			validation.In(SamplerParentBased, SamplerAlwaysOn, SamplerAlwaysOff, SamplerRatio)),
		validation.Field(&s.Ratio, validation.Min(0.0), validation.Max(1.0)),
	)
}

package telemetry

import (
	"context"
	"fmt"
	"io"

	"github.com/jknl-dev/platform-kit/logger"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// MeterProvider owns the SDK provider and its exporter.
// When telemetry is disabled it hands out no-op meters.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	logger   *logger.CtxZapLogger
}

// Option customizes NewMeterProvider
type Option func(*providerOptions)

type providerOptions struct {
	reader    sdkmetric.Reader
	processor sdktrace.SpanProcessor
	stdout    io.Writer
}

// WithReader replaces the periodic exporting reader
func WithReader(r sdkmetric.Reader) Option {
	return func(o *providerOptions) { o.reader = r }
}

// WithSpanProcessor replaces the batching span exporter
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *providerOptions) { o.processor = sp }
}

// WithStdoutWriter redirects the stdout exporters
func WithStdoutWriter(w io.Writer) Option {
	return func(o *providerOptions) { o.stdout = w }
}

// NewMeterProvider builds a provider from cfg. It does not install itself
// as the otel global.
func NewMeterProvider(ctx context.Context, cfg Config, log *logger.CtxZapLogger, options ...Option) (*MeterProvider, error) {
	if log == nil {
		log = logger.GetLogger("telemetry")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if !cfg.Enabled {
		log.DebugCtx(ctx, "telemetry disabled, using no-op meters")
		return &MeterProvider{logger: log}, nil
	}

	var po providerOptions
	for _, opt := range options {
		opt(&po)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}

	reader := po.reader
	if reader == nil {
		exporter, err := newExporter(ctx, cfg.Exporter, po.stdout)
		if err != nil {
			return nil, err
		}
		reader = sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.ExportInterval),
			sdkmetric.WithTimeout(cfg.ExportTimeout),
		)
	}

	mp := &MeterProvider{
		provider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		),
		logger: log,
	}
	log.InfoCtx(ctx, "telemetry started",
		zap.String("service_name", cfg.ServiceName),
		zap.String("exporter", cfg.Exporter.Type),
		zap.Duration("export_interval", cfg.ExportInterval))
	return mp, nil
}

func newExporter(ctx context.Context, cfg ExporterConfig, stdout io.Writer) (sdkmetric.Exporter, error) {
	switch cfg.Type {
	case ExporterOTLP:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithTimeout(cfg.Timeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(cfg.Headers))
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp metrics exporter: %w", err)
		}
		return exp, nil

	case ExporterStdout:
		var opts []stdoutmetric.Option
		if stdout != nil {
			opts = append(opts, stdoutmetric.WithWriter(stdout))
		}
		exp, err := stdoutmetric.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout metrics exporter: %w", err)
		}
		return exp, nil

	default:
		return nil, fmt.Errorf("unsupported metrics exporter type: %s", cfg.Type)
	}
}

// Enabled reports whether meters record anything
func (p *MeterProvider) Enabled() bool {
	return p.provider != nil
}

func (p *MeterProvider) Meter(name string) metric.Meter {
	if p.provider == nil {
		return noop.NewMeterProvider().Meter(name)
	}
	return p.provider.Meter(name)
}

// Shutdown flushes pending exports; safe on a disabled provider
func (p *MeterProvider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	if err := p.provider.Shutdown(ctx); err != nil {
		p.logger.ErrorCtx(ctx, "telemetry shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

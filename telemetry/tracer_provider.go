package telemetry

import (
	"context"
	"fmt"
	"io"

	"github.com/jknl-dev/platform-kit/logger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// TracerProvider owns the SDK tracer provider and its span exporter.
// When telemetry is disabled it hands out no-op tracers.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	logger   *logger.CtxZapLogger
}

// NewTracerProvider builds a provider from cfg. It does not install itself
// as the otel global.
func NewTracerProvider(ctx context.Context, cfg Config, log *logger.CtxZapLogger, options ...Option) (*TracerProvider, error) {
	if log == nil {
		log = logger.GetLogger("telemetry")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	if !cfg.Enabled {
		log.DebugCtx(ctx, "telemetry disabled, using no-op tracers")
		return &TracerProvider{logger: log}, nil
	}

	var po providerOptions
	for _, opt := range options {
		opt(&po)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}

	processor := po.processor
	if processor == nil {
		exporter, err := newSpanExporter(ctx, cfg.Exporter, po.stdout)
		if err != nil {
			return nil, err
		}
		processor = sdktrace.NewBatchSpanProcessor(exporter,
			sdktrace.WithExportTimeout(cfg.ExportTimeout))
	}

	tp := &TracerProvider{
		provider: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(newSampler(cfg.Sampler)),
			sdktrace.WithSpanProcessor(processor),
		),
		logger: log,
	}
	log.InfoCtx(ctx, "tracing started",
		zap.String("service_name", cfg.ServiceName),
		zap.String("exporter", cfg.Exporter.Type),
		zap.String("sampler", cfg.Sampler.Type))
	return tp, nil
}

func newSpanExporter(ctx context.Context, cfg ExporterConfig, stdout io.Writer) (sdktrace.SpanExporter, error) {
	switch cfg.Type {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(cfg.Timeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
		if err != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", err)
		}
		return exp, nil

	case ExporterStdout:
		var opts []stdouttrace.Option
		if stdout != nil {
			opts = append(opts, stdouttrace.WithWriter(stdout))
		}
		exp, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		return exp, nil

	default:
		return nil, fmt.Errorf("unsupported trace exporter type: %s", cfg.Type)
	}
}

func newSampler(cfg SamplerConfig) sdktrace.Sampler {
	switch cfg.Type {
	case SamplerAlwaysOn:
		return sdktrace.AlwaysSample()
	case SamplerAlwaysOff:
		return sdktrace.NeverSample()
	case SamplerRatio:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Ratio))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// Enabled reports whether spans are recorded
func (p *TracerProvider) Enabled() bool {
	return p.provider != nil
}

// Provider returns the provider to hand to instrumented packages
func (p *TracerProvider) Provider() trace.TracerProvider {
	if p.provider == nil {
		return noop.NewTracerProvider()
	}
	return p.provider
}

func (p *TracerProvider) Tracer(name string) trace.Tracer {
	return p.Provider().Tracer(name)
}

// Shutdown flushes buffered spans; safe on a disabled provider
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	if err := p.provider.Shutdown(ctx); err != nil {
		p.logger.ErrorCtx(ctx, "tracing shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

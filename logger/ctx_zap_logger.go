package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CtxZapLogger is a context-aware zap logger bound to one module.
// Obtain it through GetLogger or Manager.GetLogger.
type CtxZapLogger struct {
	base   *zap.Logger
	module string
	config *ManagerConfig
}

type traceIDKey struct{}

// WithTraceID stores a trace id in ctx for loggers to pick up
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// FromZap wraps an existing zap logger (tests, third-party integration).
// Trace id enrichment uses the default configuration.
func FromZap(base *zap.Logger, module string) *CtxZapLogger {
	cfg := DefaultManagerConfig()
	return &CtxZapLogger{
		base:   base.With(zap.String("module", module)),
		module: module,
		config: &cfg,
	}
}

// NewNop returns a logger that discards everything
func NewNop() *CtxZapLogger {
	return &CtxZapLogger{base: zap.NewNop()}
}

// InfoCtx logs at info level with the trace id of ctx
func (l *CtxZapLogger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Info(msg, l.enrichFields(ctx, fields)...)
}

// Info logs at info level without a context
func (l *CtxZapLogger) Info(msg string, fields ...zap.Field) {
	l.InfoCtx(context.Background(), msg, fields...)
}

// ErrorCtx logs at error level with the trace id of ctx
func (l *CtxZapLogger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Error(msg, l.enrichFields(ctx, fields)...)
}

// Error logs at error level without a context
func (l *CtxZapLogger) Error(msg string, fields ...zap.Field) {
	l.ErrorCtx(context.Background(), msg, fields...)
}

// DebugCtx logs at debug level with the trace id of ctx
func (l *CtxZapLogger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Debug(msg, l.enrichFields(ctx, fields)...)
}

// Debug logs at debug level without a context
func (l *CtxZapLogger) Debug(msg string, fields ...zap.Field) {
	l.DebugCtx(context.Background(), msg, fields...)
}

// WarnCtx logs at warn level with the trace id of ctx
func (l *CtxZapLogger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Warn(msg, l.enrichFields(ctx, fields)...)
}

// Warn logs at warn level without a context
func (l *CtxZapLogger) Warn(msg string, fields ...zap.Field) {
	l.WarnCtx(context.Background(), msg, fields...)
}

// With returns a child logger carrying preset fields:
//
//	topicLogger := logger.With(zap.String("topic", "orders"))
//	topicLogger.InfoCtx(ctx, "handler registered")
func (l *CtxZapLogger) With(fields ...zap.Field) *CtxZapLogger {
	return &CtxZapLogger{
		base:   l.base.With(fields...),
		module: l.module,
		config: l.config,
	}
}

// Module returns the bound module name
func (l *CtxZapLogger) Module() string {
	return l.module
}

// GetZapLogger returns the underlying *zap.Logger for libraries that log on their own
func (l *CtxZapLogger) GetZapLogger() *zap.Logger {
	return l.base
}

// enrichFields prepends app_name and trace_id; module is already bound
func (l *CtxZapLogger) enrichFields(ctx context.Context, fields []zap.Field) []zap.Field {
	if l.config == nil {
		return fields
	}

	enriched := make([]zap.Field, 0, len(fields)+2)
	if l.config.AppName != "" {
		enriched = append(enriched, zap.String("app_name", l.config.AppName))
	}

	if l.config.EnableTraceID {
		if traceID := extractTraceID(ctx, l.config); traceID != "" {
			enriched = append(enriched, zap.String(l.config.TraceIDFieldName, traceID))
		}
	}

	return append(enriched, fields...)
}

// extractTraceID priority: otel span > WithTraceID > configured string key
func extractTraceID(ctx context.Context, cfg *ManagerConfig) string {
	if ctx == nil {
		return ""
	}
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok {
		return traceID
	}
	if cfg.TraceIDKey != "" {
		if traceID, ok := ctx.Value(cfg.TraceIDKey).(string); ok {
			return traceID
		}
	}
	return ""
}

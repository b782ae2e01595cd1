package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jknl-dev/platform-kit/config"
	"github.com/jknl-dev/platform-kit/kafka"
	"github.com/jknl-dev/platform-kit/logger"
	"github.com/jknl-dev/platform-kit/telemetry"
	"github.com/samber/do/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const appName = "analytics-consumer"

// flag name -> config key
var flagKeys = map[string]string{
	"env":        "kafka.env",
	"in-cluster": "kafka.in_cluster",
	"brokers":    "kafka.brokers",
	"client-id":  "kafka.client_id",
	"tls":        "kafka.tls",
	"log-level":  "logger.level",
}

// app holds the injector shared by every command
type app struct {
	injector *do.RootScope
	log      *logger.CtxZapLogger
	manager  *kafka.Manager
}

func newApp(configPath string, flags *pflag.FlagSet) (*app, error) {
	injector := do.New()

	do.Provide(injector, config.ProvideLoader(config.ProvideLoaderOptions{
		ConfigPath: configPath,
		EnvPrefix:  "APP",
		EnvBindings: map[string]string{
			"kafka.env": "NODE_ENV",
		},
		Flags:    flags,
		FlagKeys: flagKeys,
		EnvFlag:  "env",
	}))
	do.Provide(injector, provideLogger)
	do.Provide(injector, provideMeterProvider)
	do.Provide(injector, provideTracerProvider)
	do.Provide(injector, provideKafka)
	do.Provide(injector, provideManager)
	do.Provide(injector, provideAggregator)

	log, err := do.Invoke[*logger.CtxZapLogger](injector)
	if err != nil {
		return nil, err
	}
	manager, err := do.Invoke[*kafka.Manager](injector)
	if err != nil {
		return nil, err
	}

	return &app{injector: injector, log: log, manager: manager}, nil
}

func provideLogger(i do.Injector) (*logger.CtxZapLogger, error) {
	loader, err := do.Invoke[*config.Loader](i)
	if err != nil {
		return nil, err
	}

	cfg := logger.DefaultManagerConfig()
	if loader.IsSet("logger") {
		if err := loader.Unmarshal("logger", &cfg); err != nil {
			return nil, fmt.Errorf("read logger config: %w", err)
		}
	}
	cfg.ApplyDefaults()
	if cfg.AppName == "" {
		cfg.AppName = appName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.InitManager(cfg)
	return logger.GetLogger(appName), nil
}

// provideKafka initializes kafka.Component from the "kafka" section
func provideKafka(i do.Injector) (*kafka.Component, error) {
	loader, err := do.Invoke[*config.Loader](i)
	if err != nil {
		return nil, err
	}
	log, err := do.Invoke[*logger.CtxZapLogger](i)
	if err != nil {
		return nil, err
	}
	tp, err := do.Invoke[*telemetry.TracerProvider](i)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	comp := kafka.NewComponent(kafka.WithTracerProvider(tp.Provider()))
	if err := comp.Init(ctx, loader); err != nil {
		return nil, err
	}
	manager := comp.GetManager()
	if manager == nil {
		return nil, errors.New("kafka is not configured: add a kafka section or pass --brokers")
	}

	if comp.IsMetricsEnabled() {
		mp, err := do.Invoke[*telemetry.MeterProvider](i)
		if err != nil {
			return nil, err
		}
		if err := comp.RegisterMetrics(mp.Meter(comp.MetricsName())); err != nil {
			return nil, fmt.Errorf("register kafka metrics: %w", err)
		}
	}

	log.DebugCtx(ctx, "kafka manager ready",
		zap.String("client_id", manager.Client().ClientID()),
		zap.Strings("brokers", manager.Client().BrokerConfig().Brokers))
	return comp, nil
}

func provideManager(i do.Injector) (*kafka.Manager, error) {
	comp, err := do.Invoke[*kafka.Component](i)
	if err != nil {
		return nil, err
	}
	return comp.GetManager(), nil
}

func telemetryConfig(i do.Injector) (telemetry.Config, error) {
	loader, err := do.Invoke[*config.Loader](i)
	if err != nil {
		return telemetry.Config{}, err
	}

	cfg := telemetry.DefaultConfig()
	if loader.IsSet("telemetry") {
		if err := loader.Unmarshal("telemetry", &cfg); err != nil {
			return telemetry.Config{}, fmt.Errorf("read telemetry config: %w", err)
		}
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = appName
	}
	return cfg, nil
}

func provideMeterProvider(i do.Injector) (*telemetry.MeterProvider, error) {
	cfg, err := telemetryConfig(i)
	if err != nil {
		return nil, err
	}
	return telemetry.NewMeterProvider(context.Background(), cfg, logger.GetLogger("telemetry"))
}

func provideTracerProvider(i do.Injector) (*telemetry.TracerProvider, error) {
	cfg, err := telemetryConfig(i)
	if err != nil {
		return nil, err
	}
	return telemetry.NewTracerProvider(context.Background(), cfg, logger.GetLogger("telemetry"))
}

// close disconnects everything through the injector and flushes logs
func (a *app) close() {
	if err := a.injector.Shutdown(); err != nil {
		a.log.Error("shutdown failed", zap.Error(err))
	}
	logger.CloseAll()
}

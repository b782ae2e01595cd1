package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jknl-dev/platform-kit/config"
	"github.com/jknl-dev/platform-kit/health"
	"github.com/jknl-dev/platform-kit/kafka"
	"github.com/jknl-dev/platform-kit/logger"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
)

func newHealthCmd(open func(*cobra.Command) (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check broker reachability and print a JSON report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			agg, err := do.Invoke[*health.Aggregator](a.injector)
			if err != nil {
				return err
			}
			return runHealth(cmd.Context(), agg, cmd.OutOrStdout())
		},
	}
}

func provideAggregator(i do.Injector) (*health.Aggregator, error) {
	loader, err := do.Invoke[*config.Loader](i)
	if err != nil {
		return nil, err
	}
	comp, err := do.Invoke[*kafka.Component](i)
	if err != nil {
		return nil, err
	}
	manager := comp.GetManager()

	cfg := health.DefaultConfig()
	if loader.IsSet("health") {
		if err := loader.Unmarshal("health", &cfg); err != nil {
			return nil, fmt.Errorf("read health config: %w", err)
		}
	}
	if err := config.ValidateAll(cfg); err != nil {
		return nil, err
	}

	agg := health.NewAggregator(cfg, logger.GetLogger("health"))
	agg.SetMetadata("service", appName)
	agg.SetMetadata("client_id", manager.Client().ClientID())
	agg.SetMetadata("brokers", manager.Client().BrokerConfig().Brokers)

	if checker, ok := comp.GetHealthChecker().(*kafka.HealthChecker); ok {
		checker.SetTimeout(cfg.Timeout)
		agg.Register(checker)
	}
	return agg, nil
}

// runHealth writes the report and fails when any check is unhealthy
func runHealth(ctx context.Context, agg *health.Aggregator, out io.Writer) error {
	resp := agg.Check(ctx)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if resp.Status == health.StatusUnhealthy {
		return fmt.Errorf("status %s", resp.Status)
	}
	return nil
}

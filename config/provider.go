package config

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/pflag"
)

// ProvideLoaderOptions options for ProvideLoader
type ProvideLoaderOptions struct {
	ConfigPath  string
	EnvPrefix   string
	EnvBindings map[string]string
	Flags       *pflag.FlagSet
	FlagKeys    map[string]string
	EnvFlag     string // flag selecting the <env>.yaml overlay
}

// ProvideLoader returns a do provider building the Loader.
// Usage:
//
//	do.Provide(injector, config.ProvideLoader(config.ProvideLoaderOptions{
//	    ConfigPath: "configs/analytics-consumer",
//	    EnvPrefix:  "APP",
//	}))
//	loader := do.MustInvoke[*config.Loader](injector)
func ProvideLoader(opts ProvideLoaderOptions) func(do.Injector) (*Loader, error) {
	return func(do.Injector) (*Loader, error) {
		builder := NewLoaderBuilder().
			WithConfigPath(opts.ConfigPath).
			WithEnvPrefix(opts.EnvPrefix).
			WithFlags(opts.Flags, opts.FlagKeys).
			WithEnvFlag(opts.EnvFlag)
		for key, envKey := range opts.EnvBindings {
			builder.WithEnvBinding(key, envKey)
		}

		loader, err := builder.Build()
		if err != nil {
			return nil, fmt.Errorf("config loader build failed: %w", err)
		}
		return loader, nil
	}
}

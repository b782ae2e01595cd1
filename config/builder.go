package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// LoaderBuilder assembles the standard source layers
type LoaderBuilder struct {
	configPath string
	envPrefix  string
	envBinds   map[string]string
	flags      *pflag.FlagSet
	flagKeys   map[string]string
	envFlag    string
}

// NewLoaderBuilder creates a loader builder
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{
		envBinds: make(map[string]string),
	}
}

// WithConfigPath sets the directory holding config.yaml and <env>.yaml
func (b *LoaderBuilder) WithConfigPath(path string) *LoaderBuilder {
	b.configPath = path
	return b
}

// WithEnvPrefix sets the environment variable prefix
func (b *LoaderBuilder) WithEnvPrefix(prefix string) *LoaderBuilder {
	b.envPrefix = prefix
	return b
}

// WithEnvBinding maps an unprefixed environment variable onto a key
func (b *LoaderBuilder) WithEnvBinding(key, envKey string) *LoaderBuilder {
	b.envBinds[key] = envKey
	return b
}

// WithFlags reads changed flags, mapping flag names to config keys
func (b *LoaderBuilder) WithFlags(flags *pflag.FlagSet, keys map[string]string) *LoaderBuilder {
	b.flags = flags
	b.flagKeys = keys
	return b
}

// WithEnvFlag names the flag that, when set, selects the <env>.yaml overlay
// ahead of APP_ENV and NODE_ENV
func (b *LoaderBuilder) WithEnvFlag(name string) *LoaderBuilder {
	b.envFlag = name
	return b
}

// Env returns the environment whose overlay Build loads
func (b *LoaderBuilder) Env() string {
	if b.flags != nil && b.envFlag != "" {
		if f := b.flags.Lookup(b.envFlag); f != nil && f.Changed && f.Value.String() != "" {
			return f.Value.String()
		}
	}
	return GetEnv()
}

// Build creates and loads the loader
func (b *LoaderBuilder) Build() (*Loader, error) {
	loader := NewLoader()

	if b.configPath != "" {
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, "config.yaml"), 10))
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, b.Env()+".yaml"), 20))
	}

	if b.envPrefix != "" || len(b.envBinds) > 0 {
		env := NewEnvSource(b.envPrefix, 50)
		for key, envKey := range b.envBinds {
			env.AddBinding(key, envKey)
		}
		loader.AddSource(env)
	}

	if b.flags != nil {
		loader.AddSource(NewFlagSource(b.flags, b.flagKeys, 100))
	}

	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader, nil
}

// GetEnv returns the deployment environment name
// (priority: APP_ENV > NODE_ENV > development)
func GetEnv() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	if env := os.Getenv("NODE_ENV"); env != "" {
		return env
	}
	return "development"
}

// Package config loads layered configuration (files, env, flags) through viper
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Loader merges configuration sources by priority
type Loader struct {
	sources     []ConfigSource
	merged      map[string]any // flat keys
	v           *viper.Viper
	loadedFiles []string
}

// NewLoader creates an empty loader
func NewLoader() *Loader {
	return &Loader{
		merged: make(map[string]any),
		v:      viper.New(),
	}
}

// AddSource adds a configuration source
func (l *Loader) AddSource(source ConfigSource) {
	l.sources = append(l.sources, source)
}

// Load loads all sources from low to high priority and merges them
func (l *Loader) Load() error {
	sort.SliceStable(l.sources, func(i, j int) bool {
		return l.sources[i].Priority() < l.sources[j].Priority()
	})

	l.merged = make(map[string]any)
	l.loadedFiles = l.loadedFiles[:0]
	for _, source := range l.sources {
		data, err := source.Load()
		if err != nil {
			return fmt.Errorf("load source %s: %w", source.Name(), err)
		}
		if fileSource, ok := source.(*FileSource); ok && len(data) > 0 {
			l.loadedFiles = append(l.loadedFiles, fileSource.path)
		}
		for key, value := range data {
			l.merged[key] = value
		}
	}

	l.v = viper.New()
	for key, value := range unflattenMap(l.merged) {
		l.v.Set(key, value)
	}
	return nil
}

// unflattenMap {"kafka.client_id": "x"} -> {"kafka": {"client_id": "x"}}
func unflattenMap(flat map[string]any) map[string]any {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	// shorter keys first so a deeper key wins over a scalar parent
	sort.Strings(keys)

	result := make(map[string]any)
	for _, key := range keys {
		parts := strings.FieldsFunc(key, func(r rune) bool { return r == '.' })
		if len(parts) == 0 {
			continue
		}

		current := result
		for _, part := range parts[:len(parts)-1] {
			nested, ok := current[part].(map[string]any)
			if !ok {
				nested = make(map[string]any)
				current[part] = nested
			}
			current = nested
		}
		current[parts[len(parts)-1]] = flat[key]
	}
	return result
}

// Unmarshal decodes the section at key into v (empty key: whole tree)
func (l *Loader) Unmarshal(key string, v any) error {
	if key == "" {
		return l.v.Unmarshal(v)
	}
	return l.v.UnmarshalKey(key, v)
}

// Get returns a raw value
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// GetString returns a string value
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// GetInt returns an int value
func (l *Loader) GetInt(key string) int {
	return l.v.GetInt(key)
}

// GetBool returns a bool value
func (l *Loader) GetBool(key string) bool {
	return l.v.GetBool(key)
}

// IsSet reports whether key has a value
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// GetLoadedFiles returns files that contributed keys
func (l *Loader) GetLoadedFiles() []string {
	return l.loadedFiles
}

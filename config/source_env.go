package config

import (
	"os"
	"strings"
)

// EnvSource reads prefixed environment variables.
// A double underscore separates levels so keys may keep single underscores:
// APP_KAFKA__CLIENT_ID -> kafka.client_id
type EnvSource struct {
	prefix   string
	priority int
	bindings map[string]string // config key -> env var (used verbatim)
}

// NewEnvSource creates an environment source
func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{
		prefix:   prefix,
		priority: priority,
		bindings: make(map[string]string),
	}
}

// AddBinding maps an unprefixed variable onto a key,
// e.g. AddBinding("kafka.in_cluster", "KAFKA_IN_CLUSTER")
func (s *EnvSource) AddBinding(key, envKey string) *EnvSource {
	s.bindings[key] = envKey
	return s
}

// Name source name
func (s *EnvSource) Name() string {
	return "env:" + s.prefix
}

// Priority source priority
func (s *EnvSource) Priority() int {
	return s.priority
}

// Load scans the environment
func (s *EnvSource) Load() (map[string]any, error) {
	result := make(map[string]any)

	if s.prefix != "" {
		prefix := s.prefix + "_"
		for _, env := range os.Environ() {
			name, value, ok := strings.Cut(env, "=")
			if !ok || !strings.HasPrefix(name, prefix) {
				continue
			}
			key := strings.ToLower(strings.TrimPrefix(name, prefix))
			result[strings.ReplaceAll(key, "__", ".")] = value
		}
	}

	for key, envKey := range s.bindings {
		if value, ok := os.LookupEnv(envKey); ok && value != "" {
			result[key] = value
		}
	}

	return result, nil
}

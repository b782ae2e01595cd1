package config

// ConfigSource is one layer of configuration data.
// Suggested priorities:
//   - config.yaml: 10
//   - <env>.yaml: 20
//   - environment variables: 50
//   - command line flags: 100
type ConfigSource interface {
	// Name identifies the source in errors and logs
	Name() string

	// Priority higher values override lower ones
	Priority() int

	// Load returns dot-separated keys, e.g. "kafka.client_id"
	Load() (map[string]any, error)
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/viper"
)

// FileSource reads a yaml/json/toml file; a missing file yields no keys
type FileSource struct {
	path     string
	priority int
}

// NewFileSource creates a file source
func NewFileSource(path string, priority int) *FileSource {
	return &FileSource{path: path, priority: priority}
}

// Name source name
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Priority source priority
func (s *FileSource) Priority() int {
	return s.priority
}

// Load reads and flattens the file
func (s *FileSource) Load() (map[string]any, error) {
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("stat config file %s: %w", s.path, err)
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", s.path, err)
	}

	return flattenMap("", v.AllSettings()), nil
}

// flattenMap {"kafka": {"client_id": "x"}} -> {"kafka.client_id": "x"}
func flattenMap(prefix string, data map[string]any) map[string]any {
	result := make(map[string]any)

	for key, value := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]any); ok && len(nested) > 0 {
			for k, v := range flattenMap(fullKey, nested) {
				result[k] = v
			}
			continue
		}
		result[fullKey] = value
	}

	return result
}

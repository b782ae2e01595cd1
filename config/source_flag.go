package config

import (
	"github.com/spf13/pflag"
)

// FlagSource exposes explicitly set command line flags as config keys
type FlagSource struct {
	flags    *pflag.FlagSet
	priority int
	keys     map[string]string // flag name -> config key
}

// NewFlagSource creates a flag source; only flags listed in keys are read
func NewFlagSource(flags *pflag.FlagSet, keys map[string]string, priority int) *FlagSource {
	return &FlagSource{flags: flags, keys: keys, priority: priority}
}

// Name source name
func (s *FlagSource) Name() string {
	return "flags"
}

// Priority source priority
func (s *FlagSource) Priority() int {
	return s.priority
}

// Load returns flags that were changed on the command line.
// Defaults stay with the lower layers.
func (s *FlagSource) Load() (map[string]any, error) {
	result := make(map[string]any)
	if s.flags == nil {
		return result, nil
	}

	for name, key := range s.keys {
		f := s.flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			result[key] = sv.GetSlice()
			continue
		}
		result[key] = f.Value.String()
	}

	return result, nil
}

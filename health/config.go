package health

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const defaultTimeout = 5 * time.Second

// Config for the aggregator, read from the "health" section
type Config struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() Config {
	return Config{Timeout: defaultTimeout}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Timeout, validation.Min(time.Millisecond)),
	)
}

package logger

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// ManagerConfig global manager configuration (shared by all modules)
type ManagerConfig struct {
	BaseLogDir           string `mapstructure:"base_log_dir"` // Log root directory (default logs/)
	Level                string `mapstructure:"level"`
	AppName              string `mapstructure:"app_name"` // Injected into every log line, even when empty
	Encoding             string `mapstructure:"encoding"` // json or console
	ConsoleEncoding      string `mapstructure:"console_encoding"`
	EnableConsole        bool   `mapstructure:"enable_console"`
	EnableFile           bool   `mapstructure:"enable_file"`
	EnableDateInFilename bool   `mapstructure:"enable_date_in_filename"`
	DateFormat           string `mapstructure:"date_format"`
	MaxSize              int    `mapstructure:"max_size"` // MB
	MaxBackups           int    `mapstructure:"max_backups"`
	MaxAge               int    `mapstructure:"max_age"` // days
	Compress             bool   `mapstructure:"compress"`
	EnableCaller         bool   `mapstructure:"enable_caller"`
	EnableStacktrace     bool   `mapstructure:"enable_stacktrace"`
	StacktraceLevel      string `mapstructure:"stacktrace_level"`

	// Trace ID configuration
	EnableTraceID    bool   `mapstructure:"enable_trace_id"`
	TraceIDKey       string `mapstructure:"trace_id_key"`        // context key (default "trace_id")
	TraceIDFieldName string `mapstructure:"trace_id_field_name"` // log field name (default "trace_id")
}

// DefaultManagerConfig returns the default manager configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BaseLogDir:           "logs",
		Level:                "info",
		Encoding:             "json",
		ConsoleEncoding:      "console",
		EnableConsole:        true,
		EnableFile:           false,
		EnableDateInFilename: true,
		DateFormat:           "2006-01-02",
		MaxSize:              100,
		MaxBackups:           3,
		MaxAge:               28,
		Compress:             true,
		EnableCaller:         true,
		EnableStacktrace:     true,
		StacktraceLevel:      "error",
		EnableTraceID:        true,
		TraceIDKey:           "trace_id",
		TraceIDFieldName:     "trace_id",
	}
}

// ApplyDefaults fills zero-valued fields with default values.
// Booleans are kept as configured.
func (c *ManagerConfig) ApplyDefaults() {
	defaults := DefaultManagerConfig()

	if c.BaseLogDir == "" {
		c.BaseLogDir = defaults.BaseLogDir
	}
	if c.Level == "" {
		c.Level = defaults.Level
	}
	if c.Encoding == "" {
		c.Encoding = defaults.Encoding
	}
	if c.ConsoleEncoding == "" {
		c.ConsoleEncoding = defaults.ConsoleEncoding
	}
	if c.DateFormat == "" {
		c.DateFormat = defaults.DateFormat
	}
	if c.StacktraceLevel == "" {
		c.StacktraceLevel = defaults.StacktraceLevel
	}
	if c.TraceIDKey == "" {
		c.TraceIDKey = defaults.TraceIDKey
	}
	if c.TraceIDFieldName == "" {
		c.TraceIDFieldName = defaults.TraceIDFieldName
	}
	if c.MaxSize == 0 {
		c.MaxSize = defaults.MaxSize
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = defaults.MaxBackups
	}
	if c.MaxAge == 0 {
		c.MaxAge = defaults.MaxAge
	}
}

var (
	validLevels    = []string{"debug", "info", "warn", "error", "fatal"}
	validEncodings = []string{"json", "console"}
)

// Validate checks enum and range fields
func (c ManagerConfig) Validate() error {
	if !slices.Contains(validLevels, c.Level) {
		return fmt.Errorf("invalid log level: %s (valid values: %v)", c.Level, validLevels)
	}
	if !slices.Contains(validEncodings, c.Encoding) {
		return fmt.Errorf("invalid log encoding: %s (valid values: %v)", c.Encoding, validEncodings)
	}
	if c.MaxSize < 1 || c.MaxSize > 10000 {
		return fmt.Errorf("max_size must be between 1-10000 MB, current: %d", c.MaxSize)
	}
	if c.MaxBackups < 0 || c.MaxBackups > 1000 {
		return fmt.Errorf("max_backups must be between 0-1000, current: %d", c.MaxBackups)
	}
	if c.MaxAge < 0 || c.MaxAge > 3650 {
		return fmt.Errorf("max_age must be between 0-3650 days, current: %d", c.MaxAge)
	}
	if !slices.Contains(validLevels, c.StacktraceLevel) {
		return fmt.Errorf("invalid stack trace level: %s (valid values: %v)", c.StacktraceLevel, validLevels)
	}
	return nil
}

// ParseLevel parses a level string; unknown values map to info
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// filePath builds the log file path of a module and level:
// logs/kafka/kafka-info-2024-12-19.log
func (c ManagerConfig) filePath(module, level string) string {
	parts := []string{module, level}
	if c.EnableDateInFilename {
		parts = append(parts, time.Now().Format(c.DateFormat))
	}
	return filepath.Join(c.BaseLogDir, module, strings.Join(parts, "-")+".log")
}

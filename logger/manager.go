// Package logger provides module-scoped, context-aware zap loggers
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager manages one logger per module
type Manager struct {
	baseConfig ManagerConfig
	loggers    map[string]*CtxZapLogger        // module -> CtxZapLogger
	zapLoggers map[string]*zap.Logger          // module -> underlying zap.Logger
	writers    map[string][]*lumberjack.Logger // module -> file writers (closed by CloseAll)
	mu         sync.RWMutex
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager creates an independent manager.
// Zero-valued fields of cfg are filled with defaults.
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		baseConfig: cfg,
		loggers:    make(map[string]*CtxZapLogger),
		zapLoggers: make(map[string]*zap.Logger),
		writers:    make(map[string][]*lumberjack.Logger),
	}
}

// InitManager initializes the global manager (only the first call wins)
func InitManager(cfg ManagerConfig) {
	managerOnce.Do(func() {
		globalManager = NewManager(cfg)
	})
}

// GetLogger returns the logger of a module, creating it on first use.
// The returned logger already carries the module field.
func (m *Manager) GetLogger(moduleName string) *CtxZapLogger {
	m.mu.RLock()
	if l, ok := m.loggers[moduleName]; ok {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.loggers[moduleName]; ok {
		return l
	}

	zapLogger := m.createLogger(moduleName).With(zap.String("module", moduleName))

	ctxLogger := &CtxZapLogger{
		base:   zapLogger.WithOptions(zap.AddCallerSkip(1)),
		module: moduleName,
		config: &m.baseConfig,
	}

	m.loggers[moduleName] = ctxLogger
	m.zapLoggers[moduleName] = zapLogger
	return ctxLogger
}

func (m *Manager) createLogger(moduleName string) *zap.Logger {
	cfg := m.baseConfig
	level := ParseLevel(cfg.Level)
	var cores []zapcore.Core

	if cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(
			createEncoder(cfg.ConsoleEncoding),
			zapcore.AddSync(os.Stdout),
			level,
		))
	}

	if cfg.EnableFile {
		encoder := createEncoder(cfg.Encoding)

		infoWriter := m.createFileWriter(moduleName, cfg.filePath(moduleName, "info"))
		cores = append(cores, zapcore.NewCore(encoder, infoWriter,
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= level && lvl < zapcore.ErrorLevel
			})))

		errorWriter := m.createFileWriter(moduleName, cfg.filePath(moduleName, "error"))
		cores = append(cores, zapcore.NewCore(encoder, errorWriter,
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= zapcore.ErrorLevel
			})))
	}

	opts := []zap.Option{}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(ParseLevel(cfg.StacktraceLevel)))
	}

	return zap.New(zapcore.NewTee(cores...), opts...)
}

// createFileWriter creates a rotating file writer; caller holds m.mu
func (m *Manager) createFileWriter(moduleName, filename string) zapcore.WriteSyncer {
	_ = os.MkdirAll(filepath.Dir(filename), 0o755)

	lj := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    m.baseConfig.MaxSize,
		MaxBackups: m.baseConfig.MaxBackups,
		MaxAge:     m.baseConfig.MaxAge,
		Compress:   m.baseConfig.Compress,
		LocalTime:  true,
	}
	m.writers[moduleName] = append(m.writers[moduleName], lj)
	return zapcore.AddSync(lj)
}

// CloseAll flushes buffers and closes file handles (call on exit)
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.zapLoggers {
		_ = l.Sync()
	}
	for _, writers := range m.writers {
		for _, w := range writers {
			_ = w.Close()
		}
	}

	m.loggers = make(map[string]*CtxZapLogger)
	m.zapLoggers = make(map[string]*zap.Logger)
	m.writers = make(map[string][]*lumberjack.Logger)
}

func createEncoder(encoding string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if encoding == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// GetLogger returns a module logger from the global manager,
// initializing it with defaults when needed
func GetLogger(moduleName string) *CtxZapLogger {
	InitManager(DefaultManagerConfig())
	return globalManager.GetLogger(moduleName)
}

// CloseAll closes the global manager's loggers
func CloseAll() {
	if globalManager == nil {
		return
	}
	globalManager.CloseAll()
}

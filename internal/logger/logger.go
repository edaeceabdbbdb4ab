package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop()
)

// New builds a zap logger. format is "json" (production encoder) or
// "console" (development encoder).
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// Init installs l as the process-wide logger.
func Init(l *zap.Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
	zap.ReplaceGlobals(l)
}

// L returns the process-wide logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// S returns the process-wide sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// SW returns the sugared logger with the given key/value pairs bound.
func SW(kv ...interface{}) *zap.SugaredLogger {
	return S().With(kv...)
}

// Std adapts the process-wide logger for APIs that want a *log.Logger, such
// as chi's request logger and http.Server.ErrorLog.
func Std(name string) *log.Logger {
	return zap.NewStdLog(L().Named(name))
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

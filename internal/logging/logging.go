// Package logging builds the structured logger used across the
// detection core and provides a chainable field builder for the
// standard set of fields the core attaches to log lines.
package logging

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logr.Logger backed by zap at the given level
// ("debug", "info", "warning", "error", "critical"). Components depend
// on logr.Logger rather than *zap.Logger directly so the logging
// backend stays swappable.
func New(level string) (logr.Logger, *zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, nil, fmt.Errorf("building zap logger: %w", err)
	}

	return zapr.NewLogger(zl), zl, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "DEBUG", "debug":
		return zapcore.DebugLevel
	case "WARNING", "warning", "WARN", "warn":
		return zapcore.WarnLevel
	case "ERROR", "error":
		return zapcore.ErrorLevel
	case "CRITICAL", "critical":
		return zapcore.DPanicLevel
	default:
		return zapcore.InfoLevel
	}
}

// Fields is a chainable builder for the standard log fields the core
// attaches to its structured log lines.
type Fields map[string]any

// NewFields starts an empty field set.
func NewFields() Fields {
	return Fields{}
}

// Component records which component emitted the log line (e.g. "loop",
// "blocker", "detector").
func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

// Operation records the operation in progress (e.g. "block", "release",
// "apply", "find_users").
func (f Fields) Operation(op string) Fields {
	f["operation"] = op
	return f
}

// Detector records the detector name involved.
func (f Fields) Detector(name string) Fields {
	f["detector"] = name
	return f
}

// Blocker records the blocker name involved.
func (f Fields) Blocker(name string) Fields {
	f["blocker"] = name
	return f
}

// Duration records an elapsed time in milliseconds.
func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

// Error records an error's message, if non-nil.
func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

// KeysAndValues flattens the field set into logr's variadic
// key1, value1, key2, value2... form.
func (f Fields) KeysAndValues() []any {
	kv := make([]any, 0, len(f)*2)
	for k, v := range f {
		kv = append(kv, k, v)
	}
	return kv
}

// Package log provides the process-wide structured logger.
//
// All logging goes through context-aware package functions so that hooks can
// attach request-scoped fields (trace IDs etc.) transparently.
package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps a zap logger with context hooks.
type Logger struct {
	zl    *zap.Logger
	level zap.AtomicLevel

	mu    sync.RWMutex
	hooks []Hook
}

// New builds a Logger from config.
func New(cfg Config) *Logger {
	cfg = cfg.withDefaults()

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var sink zapcore.WriteSyncer

	switch cfg.Output {
	case "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "file":
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	default:
		sink = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(encoder, sink, level)

	return &Logger{
		zl:    zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2)),
		level: level,
	}
}

// AddHook registers a context hook. Hooks run in registration order.
func (l *Logger) AddHook(hook Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hooks = append(l.hooks, hook)
}

func (l *Logger) applyHooks(ctx context.Context, msg string, fields []Field) []Field {
	l.mu.RLock()
	hooks := l.hooks
	l.mu.RUnlock()

	for _, hook := range hooks {
		fields = hook.Apply(ctx, msg, fields...)
	}

	return fields
}

func (l *Logger) log(ctx context.Context, lvl zapcore.Level, msg string, fields []Field) {
	if !l.level.Enabled(lvl) {
		return
	}

	fields = l.applyHooks(ctx, msg, fields)

	switch lvl {
	case zapcore.DebugLevel:
		l.zl.Debug(msg, fields...)
	case zapcore.InfoLevel:
		l.zl.Info(msg, fields...)
	case zapcore.WarnLevel:
		l.zl.Warn(msg, fields...)
	default:
		l.zl.Error(msg, fields...)
	}
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// AsSlog exposes the logger as *slog.Logger for libraries that want one.
func (l *Logger) AsSlog() *slog.Logger {
	return slog.New(&slogHandler{logger: l})
}

//nolint:gochecknoglobals // process-wide logger singleton.
var (
	globalMu     sync.RWMutex
	globalLogger = New(Config{})
)

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	return globalLogger
}

// SetGlobalConfig rebuilds the process-wide logger from config.
// Hooks registered on the previous logger are carried over.
func SetGlobalConfig(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	next := New(cfg)
	next.hooks = globalLogger.hooks
	globalLogger = next
}

// DebugEnabled reports whether debug logging is enabled, to guard
// expensive field construction.
func DebugEnabled(_ context.Context) bool {
	return GetGlobalLogger().level.Enabled(zapcore.DebugLevel)
}

func Debug(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Debug(ctx, msg, fields...)
}

func Info(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Info(ctx, msg, fields...)
}

func Warn(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Warn(ctx, msg, fields...)
}

func Error(ctx context.Context, msg string, fields ...Field) {
	GetGlobalLogger().Error(ctx, msg, fields...)
}

// Fatalf logs to stderr and exits. Only for use before the logger is up.
func Fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

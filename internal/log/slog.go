package log

import (
	"context"
	"log/slog"

	"go.uber.org/zap/zapcore"
)

// slogHandler bridges slog records onto the zap-backed Logger.
type slogHandler struct {
	logger *Logger
	attrs  []slog.Attr
	group  string
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.level.Enabled(slogToZapLevel(level))
}

func (h *slogHandler) Handle(ctx context.Context, record slog.Record) error {
	fields := make([]Field, 0, len(h.attrs)+record.NumAttrs())
	for _, attr := range h.attrs {
		fields = append(fields, Any(h.key(attr.Key), attr.Value.Any()))
	}

	record.Attrs(func(attr slog.Attr) bool {
		fields = append(fields, Any(h.key(attr.Key), attr.Value.Any()))
		return true
	})

	h.logger.log(ctx, slogToZapLevel(record.Level), record.Message, fields)

	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)

	return &next
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.group = name

	return &next
}

func (h *slogHandler) key(k string) string {
	if h.group == "" {
		return k
	}

	return h.group + "." + k
}

func slogToZapLevel(level slog.Level) zapcore.Level {
	switch {
	case level < slog.LevelInfo:
		return zapcore.DebugLevel
	case level < slog.LevelWarn:
		return zapcore.InfoLevel
	case level < slog.LevelError:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

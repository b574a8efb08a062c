package log

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var (
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	rootLogger = newLogger()
)

func newLogger() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

// SetLevel changes the level of all the loggers ("debug", "info", "warn", "error")
func SetLevel(lvl string) error {
	return level.UnmarshalText([]byte(lvl))
}

// Logger returns the logger attached to the context, or the root logger
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return rootLogger
}

// WithFields returns a context whose logger carries the fields
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return context.WithValue(ctx, ctxKey{}, Logger(ctx).With(fields...))
}

// With is a shortcut for WithFields(ctx, zap.String(key, value))
func With(ctx context.Context, key, value string) context.Context {
	return WithFields(ctx, zap.String(key, value))
}

// Fatal logs the message with the root logger and exits
func Fatal(msg string, fields ...zap.Field) {
	rootLogger.Fatal(msg, fields...)
}

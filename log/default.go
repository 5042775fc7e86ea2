package log

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	std = New(os.Stderr, InfoLevel, WithCaller(true), AddCallerSkip(1))
)

type ctxKey struct{}

// Default returns the process wide logger
func Default() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// ResetDefault replaces the process wide logger.
// Not safe to call while other goroutines log via the package functions.
func ResetDefault(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	std = l
}

func AddToContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// GetFromContext returns the logger stored in ctx or the default logger
func GetFromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
			return l
		}
	}
	return Default()
}

func Debug(msg string, fields ...Field) { Default().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { Default().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { Default().Warn(msg, fields...) }
func Error(msg string, fields ...Field) { Default().Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { Default().Fatal(msg, fields...) }

func Sync() error { return Default().Sync() }

var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Int8     = zap.Int8
	Int32    = zap.Int32
	Int64    = zap.Int64
	Uint8    = zap.Uint8
	Uint16   = zap.Uint16
	Uint32   = zap.Uint32
	Uint64   = zap.Uint64
	Float32  = zap.Float32
	Float64  = zap.Float64
	Bool     = zap.Bool
	Any      = zap.Any
	Duration = zap.Duration
	Time     = zap.Time
	Skip     = zap.Skip
)

func ErrorField(err error) Field {
	return zap.Error(err)
}

func Since(key string, t time.Time) Field {
	return zap.Duration(key, time.Since(t))
}

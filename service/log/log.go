package log

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootLogger *zap.Logger
var defaultLogger *zap.Logger

type contextKey int

const (
	contextKeyFields contextKey = iota
)

func init() {
	if os.Getenv("LOG_DEV") != "" {
		Console()
	} else {
		Structured()
	}
}

func setLogger(l *zap.Logger) {
	defaultLogger = l
}

func resetLogger() {
	defaultLogger = rootLogger
}

func level() zap.AtomicLevel {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(lvl)); err == nil {
			return zap.NewAtomicLevelAt(l)
		}
	}
	return zap.NewAtomicLevelAt(zap.DebugLevel)
}

// Structured sets output to be JSON encoded
func Structured() {
	cfg := zap.NewProductionConfig()
	enc := zap.NewProductionEncoderConfig()
	enc.LevelKey = "severity"
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.StacktraceKey = ""
	enc.MessageKey = "message"
	cfg.EncoderConfig = enc
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.Level = level()
	build(cfg)
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02T15:04:05.000"))
}

// Console sets output to be human-readable
func Console() {
	cfg := zap.NewDevelopmentConfig()
	enc := zap.NewDevelopmentEncoderConfig()
	enc.LevelKey = "severity"
	enc.TimeKey = "timestamp"
	enc.EncodeTime = timeEncoder
	enc.StacktraceKey = ""
	enc.MessageKey = "message"
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig = enc
	cfg.DisableCaller = true
	cfg.DisableStacktrace = true
	cfg.Level = level()
	build(cfg)
}

func build(cfg zap.Config) {
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	rootLogger = l
	defaultLogger = l
}

// Logger returns a logger that will print fields previously added to the context
func Logger(ctx context.Context) *zap.Logger {
	if flds, ok := ctx.Value(contextKeyFields).([]zap.Field); ok {
		return defaultLogger.With(flds...)
	}
	return defaultLogger
}

// With adds a key=value field to the returned context
func With(ctx context.Context, key string, value interface{}) context.Context {
	return WithFields(ctx, zap.Any(key, value))
}

// WithFields adds fields to the returned context
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	var flds []zap.Field
	if cflds, ok := ctx.Value(contextKeyFields).([]zap.Field); ok {
		flds = append(flds, cflds...)
	}
	flds = append(flds, fields...)
	return context.WithValue(ctx, contextKeyFields, flds)
}

// Fatal logs the message at Fatal level and exits
func Fatal(msg string, fields ...zap.Field) {
	defaultLogger.Fatal(msg, fields...)
}

// Sync flushes the buffered logs
func Sync() {
	_ = defaultLogger.Sync()
}

package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const loggerKey contextKey = "logger"

// PrepareLogger builds a logger from the DEPLOYCTL_ENV environment variable
// and stores it in ctx, so every subsequent GetLogger(ctx) call downstream —
// Coordinator, the phase executors, the Worker Loop — sees the same instance.
func PrepareLogger(ctx context.Context) (context.Context, *zap.Logger) {
	log := NewLoggerFromEnv()
	return context.WithValue(ctx, loggerKey, log), log
}

// GetLogger retrieves the logger stashed in ctx by PrepareLogger, falling
// back to a production logger so it never returns nil.
func GetLogger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return NewProductionLogger()
	}
	if log, ok := ctx.Value(loggerKey).(*zap.Logger); ok && log != nil {
		return log
	}
	return NewProductionLogger()
}

// NewProductionLogger logs at INFO level and above to stdout in JSON format.
func NewProductionLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// NewDevelopmentLogger logs at DEBUG level and above in human-readable
// console format.
func NewDevelopmentLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	log, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// NewLoggerFromEnv picks NewDevelopmentLogger when DEPLOYCTL_ENV is
// "development" or "dev", and NewProductionLogger otherwise.
func NewLoggerFromEnv() *zap.Logger {
	switch os.Getenv("DEPLOYCTL_ENV") {
	case "development", "dev":
		return NewDevelopmentLogger()
	default:
		return NewProductionLogger()
	}
}

// Sync flushes any buffered log entries from the logger in ctx. Call it
// before process exit.
func Sync(ctx context.Context) error {
	return GetLogger(ctx).Sync()
}

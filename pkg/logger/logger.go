// Package logger provides structured logging with context support.
package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appctx "tablequery/internal/core/context"
)

// Logger wraps zap.SugaredLogger with context-aware logging.
type Logger struct {
	*zap.SugaredLogger
	// logArgs enables argument values in Statement logs. They carry user input.
	logArgs bool
}

type loggerKey struct{}

// Config holds logger configuration.
type Config struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoding with colors
	OutputPaths []string
	// LogArgs includes bound query arguments in statement logs.
	LogArgs bool
}

// New creates a Logger from configuration. Unknown levels fall back to info.
func New(cfg Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var config zap.Config
	if cfg.Development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stderr"}
	if len(cfg.OutputPaths) > 0 {
		config.OutputPaths = cfg.OutputPaths
	}

	zapLogger, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: zapLogger.Sugar(), logArgs: cfg.LogArgs}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger, logArgs bool) *Logger {
	return &Logger{SugaredLogger: l.Sugar(), logArgs: logArgs}
}

var (
	defaultOnce   sync.Once
	defaultLogger *Logger
)

// Default returns the fallback logger used when the context carries none.
func Default() *Logger {
	defaultOnce.Do(func() {
		config := zap.NewProductionConfig()
		config.OutputPaths = []string{"stderr"}
		zapLogger, err := config.Build(zap.AddCallerSkip(1))
		if err != nil {
			zapLogger = zap.NewNop()
		}
		defaultLogger = &Logger{SugaredLogger: zapLogger.Sugar()}
	})
	return defaultLogger
}

func (l *Logger) with(keysAndValues ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...), logArgs: l.logArgs}
}

// WithContext adds the trace ids and the authenticated subject.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var fields []any
	if trace := appctx.GetTrace(ctx); trace != nil {
		fields = append(fields, "trace_id", trace.TraceID, "request_id", trace.RequestID)
	}
	if subject := appctx.GetSubject(ctx); subject != "" {
		fields = append(fields, "subject", subject)
	}
	if len(fields) == 0 {
		return l
	}
	return l.with(fields...)
}

// ForTable scopes the logger to a base table.
func (l *Logger) ForTable(table string) *Logger {
	return l.with("table", table)
}

// Statement logs a compiled statement at debug level. Argument values are
// included only when LogArgs is set; otherwise only their count is.
func (l *Logger) Statement(op, sql string, args []any) {
	if !l.Desugar().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	fields := []any{"op", op, "sql", sql, "arg_count", len(args)}
	if l.logArgs {
		fields = append(fields, "args", args)
	}
	l.Debugw("sql statement", fields...)
}

// WithLogger adds Logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the context logger, or the default one, with context fields added.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l.WithContext(ctx)
	}
	return Default().WithContext(ctx)
}

// Debug logs at debug level from context.
func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Debugw(msg, keysAndValues...)
}

// Info logs at info level from context.
func Info(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Infow(msg, keysAndValues...)
}

// Error logs at error level from context.
func Error(ctx context.Context, msg string, keysAndValues ...any) {
	FromContext(ctx).Errorw(msg, keysAndValues...)
}

package observability

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/rbacabac/pkg/contextkeys"
)

// NewLogger creates a JSON logger writing to output (stdout when nil)
func NewLogger(level logrus.Level, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}

	logger := logrus.New()
	logger.SetOutput(output)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "message",
		},
	})
	return logger
}

// NewDiscardLogger creates a logger that drops everything. Library types use it when no
// logger is supplied.
func NewDiscardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ParseLogLevel parses a log level string, defaulting to info
func ParseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *logrus.Logger) context.Context {
	return contextkeys.WithLogger(ctx, logger)
}

// FromContext returns an entry carrying the request and user IDs found in ctx, using the
// context logger or fallback.
func FromContext(ctx context.Context, fallback *logrus.Logger) *logrus.Entry {
	logger, ok := contextkeys.GetLogger(ctx).(*logrus.Logger)
	if !ok || logger == nil {
		logger = fallback
	}
	if logger == nil {
		logger = NewDiscardLogger()
	}

	entry := logrus.NewEntry(logger)
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	if userID := contextkeys.GetUserID(ctx); userID != "" {
		entry = entry.WithField("user_id", userID)
	}
	return entry
}

package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogBucketStart logs the beginning of one month bucket
func LogBucketStart(l Logger, bucket string, index, total int) {
	l.InfoWithFields("Processing month", map[string]interface{}{
		"bucket": bucket,
		"index":  index,
		"total":  total,
	})
}

// LogBucketFailed logs a month that was abandoned; the run continues
func LogBucketFailed(l Logger, bucket string, err error) {
	l.WithError(err).WithField("bucket", bucket).Error("Month skipped")
}

// LogRequest logs a remote call outcome at a level matching the status
func LogRequest(l Logger, method, url string, statusCode int, durationMs float64) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		l.DebugWithFields("HTTP request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		l.WarnWithFields("HTTP request client error", fields)
	default:
		l.ErrorWithFields("HTTP request server error", fields)
	}
}

// LogMetrics logs a set of counters under one operation name
func LogMetrics(l Logger, operation string, metrics map[string]interface{}) {
	fields := map[string]interface{}{
		"operation": operation,
		"type":      "metrics",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	l.InfoWithFields("Run metrics", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }

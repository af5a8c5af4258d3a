// Package alert delivers escalation notices to operators.
package alert

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// LogSink writes alerts to the structured log. The default when no external
// channel is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink writing at warn level.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Notify logs the alert.
func (s *LogSink) Notify(_ context.Context, category engine.AlertCategory, subject, body string) error {
	s.logger.Warn("alert",
		zap.String("category", string(category)),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

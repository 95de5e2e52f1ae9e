package sink

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes each event as one structured log line.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, e Event) error {
	s.logger.Info("history recorded",
		zap.String("history_id", e.HistoryID),
		zap.String("table", e.Table),
		zap.String("operation", e.Operation),
		zap.String("record_id", e.RecordID),
		zap.Any("changes", e.Changes),
		zap.String("operator", e.Operator),
		zap.String("trace_id", e.TraceID),
		zap.String("reason", e.Reason),
		zap.Time("operated_at", e.OperatedAt),
	)
	return nil
}

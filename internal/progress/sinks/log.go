package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vishalm/serp-forge/internal/progress"
)

// LogSink emits one structured log line per event. Failures log at warn,
// everything else at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Query != "" {
			fields = append(fields, zap.String("query", evt.Query))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Site != "" {
			fields = append(fields, zap.String("site", evt.Site))
		}
		switch evt.Stage {
		case progress.StageSearchDone:
			fields = append(fields, zap.Int("hits", evt.Count))
		case progress.StageFetchDone:
			fields = append(fields,
				zap.String("status_class", string(evt.StatusClass)),
				zap.Int64("bytes", evt.Bytes),
			)
		case progress.StageBatchDone:
			fields = append(fields,
				zap.Int("successful", evt.Count),
				zap.Int("total", evt.Total),
			)
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Log(levelFor(evt.Stage), stageMessage(evt.Stage), fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StageSearchError, progress.StageFetchFailed:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func stageMessage(stage progress.Stage) string {
	switch stage {
	case progress.StageSearchStart:
		return "search started"
	case progress.StageSearchDone:
		return "search completed"
	case progress.StageSearchError:
		return "search failed"
	case progress.StageFetchDone:
		return "fetch completed"
	case progress.StageFetchFailed:
		return "fetch failed"
	case progress.StageBatchDone:
		return "batch summary"
	default:
		return "progress event"
	}
}

package emit

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEmitter writes events as structured zap log entries.
//
// Failures are logged at error level, retries at warn, node starts at debug
// and everything else at info. Metadata keys become fields in sorted order.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter wraps logger. A nil logger discards output.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger.With(zap.String("component", "graph"))}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	fields := make([]zap.Field, 0, 3+len(event.Meta))
	fields = append(fields,
		zap.String("run_id", event.RunID),
		zap.Int("step", event.Step),
		zap.String("node_id", event.NodeID),
	)

	keys := make([]string, 0, len(event.Meta))
	for k := range event.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, event.Meta[k]))
	}

	if ce := l.logger.Check(levelFor(event.Msg), event.Msg); ce != nil {
		ce.Write(fields...)
	}
}

func levelFor(msg string) zapcore.Level {
	switch msg {
	case "node_error":
		return zapcore.ErrorLevel
	case "node_retry":
		return zapcore.WarnLevel
	case "node_start":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

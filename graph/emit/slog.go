package emit

import (
	"context"
	"log/slog"
)

// SlogEmitter writes events through a structured logger. Node and routing
// events are logged at Debug; run outcomes at Info, or Error for run_failed.
type SlogEmitter struct {
	logger *slog.Logger
}

// NewSlogEmitter creates an emitter on logger. A nil logger uses slog.Default.
func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEmitter{logger: logger}
}

// Emit implements Emitter.
func (s *SlogEmitter) Emit(event Event) {
	level := slog.LevelDebug
	switch event.Msg {
	case MsgRunStart, MsgRunComplete:
		level = slog.LevelInfo
	case MsgRunFailed:
		level = slog.LevelError
	}

	ctx := context.Background()
	if !s.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 3+len(event.Meta))
	attrs = append(attrs, slog.String("run_id", event.RunID), slog.Int("step", event.Step))
	if event.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", event.NodeID))
	}
	for k, v := range event.Meta {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.logger.LogAttrs(ctx, level, event.Msg, attrs...)
}

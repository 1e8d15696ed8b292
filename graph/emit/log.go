package emit

import (
	"time"

	"github.com/rs/zerolog"
)

// LogEmitter writes events as structured log lines.
//
// Events carrying an "error" meta key are logged at warn level, everything
// else at debug level except node_end and run_end, which are info.
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter creates a LogEmitter on top of logger.
func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger.With().Str("component", "graph").Logger()}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	var ev *zerolog.Event
	switch {
	case event.Meta["error"] != nil:
		ev = l.logger.Warn()
	case event.Msg == MsgNodeEnd || event.Msg == MsgRunEnd || event.Msg == MsgCheckpoint:
		ev = l.logger.Info()
	default:
		ev = l.logger.Debug()
	}

	ev = ev.Str("run_id", event.RunID).Int("step", event.Step)
	if event.NodeID != "" {
		ev = ev.Str("node_id", event.NodeID)
	}
	for k, v := range event.Meta {
		switch val := v.(type) {
		case time.Duration:
			ev = ev.Dur(k, val)
		case error:
			ev = ev.AnErr(k, val)
		default:
			ev = ev.Interface(k, val)
		}
	}
	ev.Msg(event.Msg)
}

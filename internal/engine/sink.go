package engine

import "log/slog"

// EventSink receives every event the coordinator emits, in order, on the
// coordinator goroutine. Emit should return quickly.
type EventSink interface {
	Emit(Event)
}

// ChanSink delivers events on a channel. Emit blocks while the channel is
// full.
type ChanSink chan Event

func (s ChanSink) Emit(e Event) { s <- e }

// FuncSink adapts a function.
type FuncSink func(Event)

func (f FuncSink) Emit(e Event) { f(e) }

// MultiSink fans out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// LogSink logs every event at debug level and errors at warn level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Emit(e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch e.Type {
	case EventError:
		logger.Warn("engine error event", "bvid", e.Error.VideoID, "message", e.Error.Message)
	case EventProgress:
		logger.Debug("engine progress", "loaded", e.Progress.Loaded, "total", e.Progress.Total, "bvid", e.Progress.VideoID, "cached", e.Progress.Cached)
	case EventReady:
		logger.Info("engine ready", "videos", e.Ready.TotalVideos, "quotes", e.Ready.TotalQuotes, "cached", e.Ready.Cached)
	default:
		logger.Debug("engine event", "type", e.Type)
	}
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

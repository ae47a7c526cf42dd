package progress

import "log/slog"

// LoggingSink emits every event as a structured slog record. It is the
// default, dependency-free sink a host application can use directly,
// mirroring the teacher's preference for slog over print-style logging
// anywhere an event needs to be observable.
type LoggingSink struct {
	log *slog.Logger
}

// NewLoggingSink constructs a LoggingSink. A nil logger uses slog.Default.
func NewLoggingSink(log *slog.Logger) *LoggingSink {
	if log == nil {
		log = slog.Default()
	}
	return &LoggingSink{log: log}
}

func (s *LoggingSink) Emit(ev Event) {
	s.log.Info("progress",
		"workflow_id", ev.WorkflowID,
		"event_type", ev.Type,
		"current_stage", ev.CurrentStage,
		"percent_complete", ev.PercentComplete,
		"total_tokens", ev.TotalTokens,
		"cache_hits", ev.CacheHits,
		"cache_misses", ev.CacheMisses,
		"errors", len(ev.Errors),
	)
}

// RecordingSink accumulates every event it receives, in order. Intended
// for tests that need to assert on the full event sequence.
type RecordingSink struct {
	Events []Event
}

func (s *RecordingSink) Emit(ev Event) {
	s.Events = append(s.Events, ev)
}

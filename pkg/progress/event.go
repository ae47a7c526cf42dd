// Package progress implements the Progress Emitter (spec §4.9): it
// translates internal Orchestrator/Agent events into a stable outward
// event shape and fans them out to caller-supplied EventSinks (API,
// metrics, logging), none of which the core depends on beyond the
// EventSink interface itself.
package progress

import (
	"time"

	"github.com/kadirpekel/orchestrator/pkg/stage"
)

// EventType is the closed set of progress event kinds.
type EventType string

const (
	EventStageStart    EventType = "stage_start"
	EventStageComplete EventType = "stage_complete"
	EventError         EventType = "error"
	EventTerminal      EventType = "terminal"
)

// Outcome is the closed set of terminal workflow outcomes.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCanceled  Outcome = "canceled"
)

// ErrorEntry records one error observed during a workflow, carried
// forward on every subsequent event per spec §7 ("progress events always
// carry the latest error list").
type ErrorEntry struct {
	Kind      string
	Message   string
	Stage     stage.Stage
	Timestamp time.Time
}

// Event is one emitted progress record: the stable shape spec §4.9
// prescribes (event type, workflow id, stage, percent, timestamp,
// payload) combined with the accounting fields named in the Data Model
// (stage history, total tokens, cache hit/miss counts, error list).
type Event struct {
	Type            EventType
	WorkflowID      string
	CurrentStage    stage.Stage
	PercentComplete float64
	StageHistory    []stage.Stage
	TotalTokens     int
	CacheHits       int
	CacheMisses     int
	Errors          []ErrorEntry
	Timestamp       time.Time

	// Outcome and LastError are populated only on EventTerminal.
	Outcome   Outcome
	LastError *ErrorEntry

	Payload map[string]any
}

// EventSink consumes progress events. A sink must not block the emitting
// goroutine indefinitely; the Emitter does not enforce a timeout itself
// (spec §4.9 describes the sink as opaque to the core) but does isolate
// a panicking sink from its peers.
type EventSink interface {
	Emit(Event)
}

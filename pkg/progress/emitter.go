package progress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/orchestrator/pkg/stage"
)

// Emitter accumulates the running counters a workflow's progress events
// report (stage history, token/cache counts, error list) and publishes an
// Event to every registered EventSink on each state change.
type Emitter struct {
	workflowID string
	sinks      []EventSink
	log        *slog.Logger

	mu           sync.Mutex
	stageHistory []stage.Stage
	currentStage stage.Stage
	totalTokens  int
	cacheHits    int
	cacheMisses  int
	errors       []ErrorEntry
}

// New constructs an Emitter for workflowID, fanning out to sinks.
func New(workflowID string, log *slog.Logger, sinks ...EventSink) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{
		workflowID:   workflowID,
		sinks:        sinks,
		log:          log,
		currentStage: stage.Initial,
	}
}

// AddSink registers an additional sink after construction.
func (e *Emitter) AddSink(s EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, s)
}

// percentComplete reports how far s is through the canonical stage order,
// as a fraction in [0, 1]. Stages outside the canonical order (Failed)
// report 1.0: the workflow has reached a terminal point.
func percentComplete(s stage.Stage) float64 {
	all := stage.AllStages()
	idx := stage.Index(s)
	if idx < 0 {
		return 1.0
	}
	return float64(idx) / float64(len(all)-1)
}

// StageStarted records the start of s and emits EventStageStart.
func (e *Emitter) StageStarted(s stage.Stage) {
	e.mu.Lock()
	e.currentStage = s
	e.stageHistory = append(e.stageHistory, s)
	e.mu.Unlock()
	e.emit(EventStageStart)
}

// StageCompleted emits EventStageComplete for the current stage. It does
// not itself advance current_stage - the caller advances Project State's
// stage and then calls StageStarted for the next one, keeping a single
// source of truth for stage progression.
func (e *Emitter) StageCompleted(s stage.Stage) {
	e.mu.Lock()
	e.currentStage = s
	e.mu.Unlock()
	e.emit(EventStageComplete)
}

// RecordCacheHit increments the cache hit counter.
func (e *Emitter) RecordCacheHit() {
	e.mu.Lock()
	e.cacheHits++
	e.mu.Unlock()
}

// RecordCacheMiss increments the cache miss counter.
func (e *Emitter) RecordCacheMiss() {
	e.mu.Lock()
	e.cacheMisses++
	e.mu.Unlock()
}

// AddTokens accumulates generation token usage.
func (e *Emitter) AddTokens(n int) {
	e.mu.Lock()
	e.totalTokens += n
	e.mu.Unlock()
}

// RecordError appends an error entry and emits EventError. Per spec §7,
// an error entry is never dropped: every later event's Errors slice
// still includes it.
func (e *Emitter) RecordError(kind, message string, s stage.Stage) {
	e.mu.Lock()
	e.errors = append(e.errors, ErrorEntry{Kind: kind, Message: message, Stage: s, Timestamp: time.Now()})
	e.mu.Unlock()
	e.emit(EventError)
}

// Terminal emits the final EventTerminal event for the workflow, with the
// given outcome and, for a failed workflow, the triggering error.
func (e *Emitter) Terminal(outcome Outcome, lastError *ErrorEntry) {
	ev := e.snapshot(EventTerminal)
	ev.Outcome = outcome
	ev.LastError = lastError
	e.dispatch(ev)
}

// Snapshot returns the emitter's current accumulated state as an Event
// without publishing it, useful for building a workflow summary record.
func (e *Emitter) Snapshot() Event {
	return e.snapshot(EventStageComplete)
}

func (e *Emitter) snapshot(t EventType) Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Event{
		Type:            t,
		WorkflowID:      e.workflowID,
		CurrentStage:    e.currentStage,
		PercentComplete: percentComplete(e.currentStage),
		StageHistory:    append([]stage.Stage(nil), e.stageHistory...),
		TotalTokens:     e.totalTokens,
		CacheHits:       e.cacheHits,
		CacheMisses:     e.cacheMisses,
		Errors:          append([]ErrorEntry(nil), e.errors...),
		Timestamp:       time.Now(),
	}
}

func (e *Emitter) emit(t EventType) {
	e.dispatch(e.snapshot(t))
}

func (e *Emitter) dispatch(ev Event) {
	e.mu.Lock()
	sinks := append([]EventSink(nil), e.sinks...)
	e.mu.Unlock()

	for _, s := range sinks {
		e.safeEmit(s, ev)
	}
}

func (e *Emitter) safeEmit(s EventSink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("progress: sink panicked", "workflow_id", e.workflowID, "panic", r)
		}
	}()
	s.Emit(ev)
}

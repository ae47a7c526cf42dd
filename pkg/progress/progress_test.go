package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/orchestrator/pkg/stage"
)

func TestStageEventsAccumulateHistoryAndPercent(t *testing.T) {
	rec := &RecordingSink{}
	e := New("wf-1", nil, rec)

	e.StageStarted(stage.RequirementsAnalysis)
	e.StageCompleted(stage.RequirementsAnalysis)
	e.StageStarted(stage.ArchitectureDesign)

	require.Len(t, rec.Events, 3)
	last := rec.Events[2]
	assert.Equal(t, stage.ArchitectureDesign, last.CurrentStage)
	assert.Equal(t, []stage.Stage{stage.RequirementsAnalysis, stage.ArchitectureDesign}, last.StageHistory)
	assert.Greater(t, last.PercentComplete, 0.0)
}

func TestCacheAndTokenCounters(t *testing.T) {
	rec := &RecordingSink{}
	e := New("wf-1", nil, rec)

	e.RecordCacheHit()
	e.RecordCacheHit()
	e.RecordCacheMiss()
	e.AddTokens(42)
	e.StageStarted(stage.Implementation)

	ev := rec.Events[len(rec.Events)-1]
	assert.Equal(t, 2, ev.CacheHits)
	assert.Equal(t, 1, ev.CacheMisses)
	assert.Equal(t, 42, ev.TotalTokens)
}

func TestErrorsAreCarriedForwardOnLaterEvents(t *testing.T) {
	rec := &RecordingSink{}
	e := New("wf-1", nil, rec)

	e.RecordError("Timeout", "boom", stage.ArchitectureDesign)
	e.StageStarted(stage.Implementation)

	last := rec.Events[len(rec.Events)-1]
	require.Len(t, last.Errors, 1)
	assert.Equal(t, "Timeout", last.Errors[0].Kind)
}

func TestTerminalEventCarriesOutcome(t *testing.T) {
	rec := &RecordingSink{}
	e := New("wf-1", nil, rec)

	e.StageStarted(stage.RequirementsAnalysis)
	e.Terminal(OutcomeCompleted, nil)

	last := rec.Events[len(rec.Events)-1]
	assert.Equal(t, EventTerminal, last.Type)
	assert.Equal(t, OutcomeCompleted, last.Outcome)
}

func TestTerminalFailureCarriesLastError(t *testing.T) {
	rec := &RecordingSink{}
	e := New("wf-1", nil, rec)

	lastErr := &ErrorEntry{Kind: "Timeout", Message: "exhausted retries", Stage: stage.ArchitectureDesign}
	e.Terminal(OutcomeFailed, lastErr)

	last := rec.Events[len(rec.Events)-1]
	require.NotNil(t, last.LastError)
	assert.Equal(t, "Timeout", last.LastError.Kind)
}

func TestPanickingSinkDoesNotStopOtherSinks(t *testing.T) {
	rec := &RecordingSink{}
	panicky := panickingSink{}
	e := New("wf-1", nil, panicky, rec)

	e.StageStarted(stage.RequirementsAnalysis)
	assert.Len(t, rec.Events, 1, "the well-behaved sink must still receive the event")
}

type panickingSink struct{}

func (panickingSink) Emit(Event) { panic("sink exploded") }

func TestCompletedStageReportsFullPercent(t *testing.T) {
	rec := &RecordingSink{}
	e := New("wf-1", nil, rec)
	e.StageStarted(stage.Completed)
	assert.Equal(t, 1.0, rec.Events[0].PercentComplete)
}

func TestFailedStageReportsFullPercent(t *testing.T) {
	rec := &RecordingSink{}
	e := New("wf-1", nil, rec)
	e.StageStarted(stage.Failed)
	assert.Equal(t, 1.0, rec.Events[0].PercentComplete)
}

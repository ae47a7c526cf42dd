package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/orchestrator/pkg/stage"
)

func TestAdvanceStageRejectsNonAdjacent(t *testing.T) {
	p := New("p", "build a thing")
	err := p.AdvanceStage(stage.Implementation)
	require.ErrorIs(t, err, ErrInvalidStageTransition)
	assert.Equal(t, stage.Initial, p.CurrentStage())
}

func TestAdvanceStageAllowsAdjacentAndFailed(t *testing.T) {
	p := New("p", "build a thing")
	require.NoError(t, p.AdvanceStage(stage.RequirementsAnalysis))
	assert.Equal(t, stage.RequirementsAnalysis, p.CurrentStage())
	require.NoError(t, p.AdvanceStage(stage.Failed))
	assert.Equal(t, stage.Failed, p.CurrentStage())
}

func TestAdvanceStageNeverRegresses(t *testing.T) {
	p := New("p", "x")
	require.NoError(t, p.AdvanceStage(stage.RequirementsAnalysis))
	require.NoError(t, p.AdvanceStage(stage.ArchitectureDesign))
	err := p.AdvanceStage(stage.RequirementsAnalysis)
	require.ErrorIs(t, err, ErrInvalidStageTransition)
}

func TestUpdateTaskNoExistentIsNoop(t *testing.T) {
	p := New("p", "x")
	p.UpdateTask("does-not-exist", func(tk *Task) { tk.SetStatus(stage.TaskCompleted) })
}

func TestTaskCompletedAtInvariant(t *testing.T) {
	tk := NewTask("t", "d", stage.Implementation)
	assert.Nil(t, tk.CompletedAt())

	tk.SetStatus(stage.TaskCompleted)
	assert.NotNil(t, tk.CompletedAt())

	tk.SetStatus(stage.TaskInProgress)
	assert.Nil(t, tk.CompletedAt())
}

func TestGetTasksByStageAndStatus(t *testing.T) {
	p := New("p", "x")
	t1 := NewTask("t1", "", stage.Implementation)
	t2 := NewTask("t2", "", stage.Testing)
	t1.SetStatus(stage.TaskInProgress)
	p.AddTask(t1)
	p.AddTask(t2)

	byStage := p.GetTasksByStage(stage.Implementation)
	require.Len(t, byStage, 1)
	assert.Equal(t, "t1", byStage[0].Title)

	byStatus := p.GetTasksByStatus(stage.TaskInProgress)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "t1", byStatus[0].Title)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	p := New("p", "x")
	require.NoError(t, p.AdvanceStage(stage.RequirementsAnalysis))
	p.RequirementsSet("summary", "reverse stdin")
	p.AddDecision("use go", stage.Architect, "simplicity")
	p.AddArtifact("requirements_doc", "/tmp/out/requirements.md")
	tk := NewTask("analyze", "", stage.RequirementsAnalysis)
	p.AddTask(tk)

	snap := p.Snapshot()
	restored := FromSnapshot(snap)

	assert.Equal(t, p.CurrentStage(), restored.CurrentStage())
	v, ok := restored.RequirementsGet("summary")
	require.True(t, ok)
	assert.Equal(t, "reverse stdin", v)
	assert.Len(t, restored.Decisions(), 1)
	art, ok := restored.Artifact("requirements_doc")
	require.True(t, ok)
	assert.Equal(t, "/tmp/out/requirements.md", art)
	_, ok = restored.Task(tk.ID)
	assert.True(t, ok)
}

func TestContextStringDeterministicOrdering(t *testing.T) {
	p := New("Reverser", "Build a CLI that reverses stdin")
	p.RequirementsSet("b_key", "2")
	p.RequirementsSet("a_key", "1")

	c1 := p.ContextString(5)
	c2 := p.ContextString(5)
	assert.Equal(t, c1, c2)
	assert.Contains(t, c1, "a_key: 1\n  b_key: 2")
}

func TestRegionsDoNotBlockEachOther(t *testing.T) {
	p := New("p", "x")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			p.RequirementsSet("k", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			p.ArchitectureSet("k", i)
		}
	}()
	wg.Wait()
}

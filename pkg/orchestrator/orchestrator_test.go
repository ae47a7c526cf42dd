package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/orchestrator/pkg/agent"
	"github.com/kadirpekel/orchestrator/pkg/checkpoint"
	"github.com/kadirpekel/orchestrator/pkg/llm"
	"github.com/kadirpekel/orchestrator/pkg/progress"
	"github.com/kadirpekel/orchestrator/pkg/stage"
	"github.com/kadirpekel/orchestrator/pkg/state"
)

const (
	architectPrompt    = "You are the software architect. Design a system architecture satisfying the recorded requirements."
	developerPrompt    = "You are the developer. Implement the system described by the recorded architecture and design."
	testEngineerPrompt = "You are the test engineer. Write and run tests against the implementation and report failures plainly."
)

func TestRunStageDispatchNeverIncludesProjectManager(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 1})
	o, err := New(Config{ProjectID: "demo-10", Requirements: "Build a thing"}, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	for _, a := range o.registry.ForStage(stage.RequirementsAnalysis) {
		assert.NotEqual(t, stage.ProjectManager, a.Role(),
			"PROJECT_MANAGER contributes only through OnStage, dispatching it directly would waste a Generator call")
	}
}

func TestInvokeAgentTaskReusesCachedResultForIdenticalContext(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 2})
	o, err := New(Config{ProjectID: "demo-11", Requirements: "Build a thing"}, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	architect, ok := o.registry.Get(stage.Architect)
	require.True(t, ok)

	// The architect's Apply writes architecture["document"], which is part of
	// the context string; seeding it with the stub's output keeps the context
	// identical before and after the first invocation.
	o.state.ArchitectureSet("document", "ok")

	task1 := state.NewTask("design", "design the system", stage.ArchitectureDesign)
	require.NoError(t, o.invokeAgentTask(context.Background(), architect, task1))

	before, _ := architect.Counters()
	task2 := state.NewTask("design", "design the system", stage.ArchitectureDesign)
	require.NoError(t, o.invokeAgentTask(context.Background(), architect, task2))
	after, _ := architect.Counters()

	assert.Equal(t, before, after, "an identical context fingerprint must be served from the Result Cache, adding no tokens")
}

func TestRunCompletesSequentialHappyPath(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 2})
	o, err := New(Config{ProjectID: "demo-1", Requirements: "Build a thing"}, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeCompleted, result.Outcome)
	assert.Equal(t, stage.Completed, result.State.CurrentStage)
	assert.Contains(t, result.State.Artifacts, agent.ArtifactRequirementsDoc)
	assert.Contains(t, result.State.Artifacts, agent.ArtifactArchitectureDoc)
	assert.Contains(t, result.State.Artifacts, agent.ArtifactUIDesigns)
	assert.Contains(t, result.State.Artifacts, agent.ArtifactSourceCode)
	assert.Contains(t, result.State.Artifacts, agent.ArtifactTestCode)
	assert.Contains(t, result.State.Artifacts, agent.ArtifactQAReport)
	assert.Empty(t, result.Summary.Errors)
	assert.Greater(t, result.Summary.TotalTokens, 0)
}

func TestRunSkipsUIDesignWhenConfigured(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 1})
	o, err := New(Config{ProjectID: "demo-2", Requirements: "Build a thing", SkipUIDesign: true}, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeCompleted, result.Outcome)
	assert.NotContains(t, result.State.Artifacts, agent.ArtifactUIDesigns)
}

func TestRunFailsOnNonRetryableGeneratorError(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 1})
	gen.Script(architectPrompt, llm.Step{Err: &llm.Error{Kind: llm.KindInvalidRequest, Message: "malformed requirements"}})

	o, err := New(Config{ProjectID: "demo-3", Requirements: "Build a thing"}, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeFailed, result.Outcome)
	assert.Equal(t, stage.Failed, result.State.CurrentStage)
	require.NotEmpty(t, result.Summary.Errors)
	assert.Equal(t, "InvalidRequest", result.Summary.Errors[len(result.Summary.Errors)-1].Kind)
	assert.Equal(t, stage.ArchitectureDesign, result.Summary.Errors[len(result.Summary.Errors)-1].Stage)
}

func TestRunRecoversFromTransientGeneratorError(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 1})
	gen.Script(architectPrompt,
		llm.Step{Err: &llm.Error{Kind: llm.KindRateLimited, Message: "rate limited, try again", Retryable: true}},
		llm.Step{Result: llm.Result{Content: "architecture after retry", TotalTokens: 2}},
	)

	cfg := Config{ProjectID: "demo-9", Requirements: "Build a thing"}
	cfg.RetryPolicy.InitialDelay = time.Millisecond
	cfg.RetryPolicy.MaxDelay = time.Millisecond
	o, err := New(cfg, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeCompleted, result.Outcome)
	assert.Empty(t, result.Summary.Errors)
	assert.Equal(t, "architecture after retry", result.State.Architecture["document"])
}

func TestRefinementLoopRepairsUntilTestsPass(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 1})
	gen.Script(developerPrompt,
		llm.Step{Result: llm.Result{Content: "v1 implementation", TotalTokens: 4}},
		llm.Step{Result: llm.Result{Content: "v2 implementation - patched", TotalTokens: 4}},
	)
	gen.Script(testEngineerPrompt,
		llm.Step{Result: llm.Result{Content: "2 tests failed", TotalTokens: 3}},
		llm.Step{Result: llm.Result{Content: "all green", TotalTokens: 3}},
	)

	o, err := New(Config{ProjectID: "demo-4", Requirements: "Build a thing", MaxIterations: 3}, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeCompleted, result.Outcome)
	tr, ok := result.State.Artifacts[agent.ArtifactTestResults].(agent.TestResults)
	require.True(t, ok)
	assert.True(t, tr.AllPassed)
}

func TestRefinementLoopExhaustsIterationsAndFails(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 1})
	gen.SetResponse(testEngineerPrompt, llm.Result{Content: "1 test failed, every time", TotalTokens: 1})

	o, err := New(Config{ProjectID: "demo-5", Requirements: "Build a thing", MaxIterations: 2}, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeFailed, result.Outcome)
	require.NotEmpty(t, result.Summary.Errors)
	assert.Equal(t, stage.Testing, result.Summary.Errors[len(result.Summary.Errors)-1].Stage)
}

func TestCancelBeforeRunTransitionsToCanceledOutcome(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 1})
	o, err := New(Config{ProjectID: "demo-6", Requirements: "Build a thing"}, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	o.Cancel()
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeCanceled, result.Outcome)
	assert.Equal(t, stage.Failed, result.State.CurrentStage)
	_, ok := result.State.Metadata["cancellation_reason"]
	assert.True(t, ok)
}

func TestResumeContinuesAfterCheckpointedStage(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 1})
	cfg := Config{
		ProjectID:    "demo-7",
		Requirements: "Build a thing",
		CheckpointPolicy: checkpoint.Policy{
			Enabled:             true,
			CheckpointDirectory: t.TempDir(),
		},
	}
	o, err := New(cfg, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	require.NoError(t, o.state.AdvanceStage(stage.RequirementsAnalysis))
	require.NoError(t, o.state.AdvanceStage(stage.ArchitectureDesign))
	require.NoError(t, o.state.AdvanceStage(stage.UIUXDesign))
	require.NoError(t, o.state.AdvanceStage(stage.Implementation))

	snap := o.state.Snapshot()
	wr := o.checkpointMgr.Checkpoint(o.state.ID, snap, stage.AllStages()[:5], checkpoint.TriggerStageComplete)
	require.True(t, wr.Written)

	result, err := o.Resume(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeCompleted, result.Outcome)
	assert.NotContains(t, result.State.Artifacts, agent.ArtifactRequirementsDoc)
	assert.NotContains(t, result.State.Artifacts, agent.ArtifactArchitectureDoc)
	assert.NotContains(t, result.State.Artifacts, agent.ArtifactUIDesigns)
	assert.Contains(t, result.State.Artifacts, agent.ArtifactTestCode)
	assert.Contains(t, result.State.Artifacts, agent.ArtifactQAReport)
}

func TestResumeFallsBackToFreshRunWithoutACheckpoint(t *testing.T) {
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 1})
	cfg := Config{
		ProjectID:    "demo-8",
		Requirements: "Build a thing",
		CheckpointPolicy: checkpoint.Policy{
			Enabled:             true,
			CheckpointDirectory: t.TempDir(),
		},
	}
	o, err := New(cfg, gen)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	result, err := o.Resume(context.Background())
	require.NoError(t, err)

	assert.Equal(t, progress.OutcomeCompleted, result.Outcome)
	assert.Contains(t, result.State.Artifacts, agent.ArtifactRequirementsDoc)
}

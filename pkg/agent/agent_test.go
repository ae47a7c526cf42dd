package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/orchestrator/pkg/bus"
	"github.com/kadirpekel/orchestrator/pkg/cache"
	"github.com/kadirpekel/orchestrator/pkg/llm"
	"github.com/kadirpekel/orchestrator/pkg/stage"
	"github.com/kadirpekel/orchestrator/pkg/state"
)

func newTestDeps(t *testing.T) (Deps, *bus.Bus, *state.ProjectState) {
	t.Helper()
	b := bus.New()
	ps := state.New("demo", "a demo project")
	gen := llm.NewStubGenerator(llm.Result{Content: "ok", TotalTokens: 5})
	c, err := cache.New(32)
	require.NoError(t, err)
	return Deps{Bus: b, State: ps, Generator: gen, Cache: c}, b, ps
}

func TestRequirementsAnalystCompletesAssignedTask(t *testing.T) {
	d, b, ps := newTestDeps(t)
	a := NewRequirementsAnalyst(d)
	require.NoError(t, a.Start())
	defer a.Stop()

	task := state.NewTask("Gather requirements", "from project intent", stage.RequirementsAnalysis)
	ps.AddTask(task)

	var complete bus.Message
	_, err := b.Subscribe("type:"+string(bus.TaskComplete), func(m bus.Message) { complete = m })
	require.NoError(t, err)

	b.Publish(bus.Message{
		Type:     bus.TaskAssigned,
		Sender:   bus.SenderWorkflow,
		Receiver: string(stage.RequirementsAnalyst),
		Payload:  map[string]any{"task_id": task.ID},
	})

	require.Eventually(t, func() bool {
		return task.Status() == stage.TaskCompleted
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		return complete.Type == bus.TaskComplete
	}, time.Second, time.Millisecond)

	doc, ok := ps.RequirementsGet("document")
	require.True(t, ok)
	assert.Equal(t, "ok", doc)

	artifact, ok := ps.Artifact(ArtifactRequirementsDoc)
	require.True(t, ok)
	assert.Equal(t, "ok", artifact)
}

func TestUnknownTaskProducesErrorResponse(t *testing.T) {
	d, b, _ := newTestDeps(t)
	a := NewArchitect(d)
	require.NoError(t, a.Start())
	defer a.Stop()

	var response bus.Message
	_, err := b.Subscribe("receiver:"+bus.SenderWorkflow, func(m bus.Message) { response = m })
	require.NoError(t, err)

	b.Publish(bus.Message{
		Type:     bus.TaskAssigned,
		Sender:   bus.SenderWorkflow,
		Receiver: string(stage.Architect),
		Payload:  map[string]any{"task_id": "does-not-exist"},
	})

	require.Eventually(t, func() bool {
		return response.Type == bus.AgentResponse
	}, time.Second, time.Millisecond)
	assert.Equal(t, "error", response.Payload["status"])
}

func TestProjectManagerOnStageStartSeedsTaskAndDecision(t *testing.T) {
	d, b, ps := newTestDeps(t)
	pm := NewProjectManager(d)
	require.NoError(t, pm.Start())
	defer pm.Stop()

	b.Publish(bus.Message{
		Type:    bus.StageStart,
		Sender:  bus.SenderWorkflow,
		Payload: map[string]any{"stage": stage.RequirementsAnalysis},
	})

	require.Eventually(t, func() bool {
		return len(ps.Decisions()) == 1
	}, time.Second, time.Millisecond)

	tasks := ps.GetTasksByStage(stage.RequirementsAnalysis)
	assert.Len(t, tasks, 1)
}

func TestStageStartIgnoredWhenNotResponsible(t *testing.T) {
	d, b, ps := newTestDeps(t)
	pm := NewProjectManager(d)
	require.NoError(t, pm.Start())
	defer pm.Stop()

	b.Publish(bus.Message{
		Type:    bus.StageStart,
		Sender:  bus.SenderWorkflow,
		Payload: map[string]any{"stage": stage.Implementation},
	})

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, ps.Decisions())
}

func TestUserFeedbackIsRecorded(t *testing.T) {
	d, b, ps := newTestDeps(t)
	a := NewDeveloper(d)
	require.NoError(t, a.Start())
	defer a.Stop()

	b.Publish(bus.Message{
		Type:     bus.UserFeedback,
		Sender:   bus.SenderUser,
		Receiver: string(stage.Developer),
		Payload:  map[string]any{"text": "please add pagination"},
	})

	require.Eventually(t, func() bool {
		return len(ps.ClientFeedback()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "please add pagination", ps.ClientFeedback()[0].Text)
}

func TestGenerateUsesCacheOnSecondCall(t *testing.T) {
	d, _, _ := newTestDeps(t)
	stub := d.Generator.(*llm.StubGenerator)
	stub.Script("key-a",
		llm.Step{Result: llm.Result{Content: "first", TotalTokens: 3}},
	)

	a := New(d.config(stage.Architect, "key-a", nil, []stage.Stage{stage.ArchitectureDesign}))

	r1, err := a.Generate(context.Background(), "cap", "prompt", llm.Options{})
	require.NoError(t, err)
	assert.Equal(t, "first", r1.Content)

	r2, err := a.Generate(context.Background(), "cap", "prompt", llm.Options{})
	require.NoError(t, err)
	assert.Equal(t, "first", r2.Content, "second call should be served from cache, not re-scripted")

	total, requests := a.Counters()
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, requests, "cache hit must not count as a new request")
}

func TestDeriveTestResults(t *testing.T) {
	assert.Equal(t, TestResults{AllPassed: true, Failures: 0}, deriveTestResults("all green"))
	assert.Equal(t, TestResults{AllPassed: false, Failures: 2}, deriveTestResults("test A failed\ntest B failed"))
}

func TestDeriveQAResults(t *testing.T) {
	assert.Equal(t, QAResults{Approved: true}, deriveQAResults("looks solid"))
	r := deriveQAResults("Issue: missing input validation\nOtherwise fine")
	assert.False(t, r.Approved)
	assert.Len(t, r.Issues, 1)
}

func TestExecuteTaskGeneratesOnCacheMiss(t *testing.T) {
	d, _, ps := newTestDeps(t)
	a := NewArchitect(d)

	task := state.NewTask("design", "design the system", stage.ArchitectureDesign)
	ps.AddTask(task)

	result, attempts, err := a.ExecuteTask(context.Background(), task, "some context", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, 1, attempts)

	doc, ok := ps.ArchitectureGet("document")
	require.True(t, ok)
	assert.Equal(t, "ok", doc)

	total, requests := a.Counters()
	assert.Equal(t, 5, total)
	assert.Equal(t, 1, requests)
}

func TestExecuteTaskAppliesCachedResultWithoutGenerating(t *testing.T) {
	d, _, ps := newTestDeps(t)
	a := NewArchitect(d)

	task := state.NewTask("design", "design the system", stage.ArchitectureDesign)
	ps.AddTask(task)

	cached := &llm.Result{Content: "cached content", TotalTokens: 9}
	result, attempts, err := a.ExecuteTask(context.Background(), task, "some context", cached)
	require.NoError(t, err)
	assert.Equal(t, "cached content", result.Content)
	assert.Equal(t, 0, attempts, "applying a cached result must not call the Generator")

	doc, ok := ps.ArchitectureGet("document")
	require.True(t, ok)
	assert.Equal(t, "cached content", doc)

	total, requests := a.Counters()
	assert.Equal(t, 0, total, "applying a cached result must not add to the token counter")
	assert.Equal(t, 0, requests)
}

func TestDefaultRegistryRegistersAllSevenRoles(t *testing.T) {
	d, _, _ := newTestDeps(t)
	r := NewDefaultRegistry(d)
	for _, role := range stage.AllRoles() {
		_, ok := r.Get(role)
		assert.True(t, ok, "expected role %s to be registered", role)
	}
	assert.Len(t, r.All(), 7)
}

// Package agent implements the Agent abstraction (spec §4.4): one
// instance per role, bound to the shared Message Bus, Project State, and
// Generator, driving a single role's slice of a workflow. The seven
// concrete roles (see roles.go) share this one base implementation, per
// the spec's own design note that they differ only in system prompt,
// responsible stages, and how they apply a generation result to Project
// State — grounded on original_source/core/agent.py's single Agent base
// class and original_source/agents/*.py's role subclasses.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/orchestrator/pkg/bus"
	"github.com/kadirpekel/orchestrator/pkg/cache"
	"github.com/kadirpekel/orchestrator/pkg/llm"
	"github.com/kadirpekel/orchestrator/pkg/retry"
	"github.com/kadirpekel/orchestrator/pkg/stage"
	"github.com/kadirpekel/orchestrator/pkg/state"
)

// ApplyFunc writes a generation result produced for an assigned task back
// into Project State and the task itself (the artifact/bucket writes
// spec §4.4 lists per role).
type ApplyFunc func(a *Agent, task *state.Task, result llm.Result)

// StageHook runs when the workflow enters one of the agent's responsible
// stages (on_stage_start in spec §4.4).
type StageHook func(a *Agent, s stage.Stage)

// Config constructs an Agent. Bus, State and Generator are required;
// Cache and Retry are optional (a nil Cache skips memoization, a nil
// Retry calls the Generator directly with no retry wrapping).
type Config struct {
	Role              stage.Role
	SystemPrompt      string
	Capabilities      []string
	ResponsibleStages []stage.Stage

	// DispatchStages lists the stages the Orchestrator's Registry.ForStage
	// should hand this agent a direct ExecuteTask call for. It is
	// separate from ResponsibleStages (which gates the STAGE_START
	// broadcast's OnStage hook) because a role can be responsible for a
	// stage purely through its hook - seeding a task, recording a
	// decision - with nothing for a Generator call to produce: dispatching
	// it anyway would waste a Generator call and a cache slot on output
	// the Project State write never uses. Defaults to ResponsibleStages
	// when nil.
	DispatchStages []stage.Stage

	Bus       *bus.Bus
	State     *state.ProjectState
	Generator llm.Generator
	Cache     *cache.Cache
	Retry     *retry.Controller
	Logger    *slog.Logger

	Apply   ApplyFunc
	OnStage StageHook
}

// Agent is one role's runtime participant in a workflow.
type Agent struct {
	role              stage.Role
	systemPrompt      string
	capabilities      []string
	responsibleStages []stage.Stage
	dispatchStages    []stage.Stage

	bus   *bus.Bus
	state *state.ProjectState
	gen   llm.Generator
	cache *cache.Cache
	retry *retry.Controller
	log   *slog.Logger

	apply   ApplyFunc
	onStage StageHook

	mu            sync.Mutex
	totalTokens   int
	requestsCount int

	handles []bus.Handle
}

// New constructs an Agent from cfg. The agent is not yet listening on the
// bus; call Start to subscribe.
func New(cfg Config) *Agent {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	dispatchStages := cfg.DispatchStages
	if dispatchStages == nil {
		dispatchStages = cfg.ResponsibleStages
	}
	return &Agent{
		role:              cfg.Role,
		systemPrompt:      cfg.SystemPrompt,
		capabilities:      append([]string(nil), cfg.Capabilities...),
		responsibleStages: append([]stage.Stage(nil), cfg.ResponsibleStages...),
		dispatchStages:    append([]stage.Stage(nil), dispatchStages...),
		bus:               cfg.Bus,
		state:             cfg.State,
		gen:               cfg.Generator,
		cache:             cfg.Cache,
		retry:             cfg.Retry,
		log:               log,
		apply:             cfg.Apply,
		onStage:           cfg.OnStage,
	}
}

// Role returns the agent's role.
func (a *Agent) Role() stage.Role { return a.role }

// Capabilities returns the agent's declared capability list.
func (a *Agent) Capabilities() []string { return append([]string(nil), a.capabilities...) }

// ResponsibleStages returns the stages whose STAGE_START broadcast
// triggers this agent's OnStage hook.
func (a *Agent) ResponsibleStages() []stage.Stage {
	return append([]stage.Stage(nil), a.responsibleStages...)
}

// DispatchStages returns the stages for which the Orchestrator's
// Registry.ForStage should invoke this agent directly.
func (a *Agent) DispatchStages() []stage.Stage {
	return append([]stage.Stage(nil), a.dispatchStages...)
}

// Counters returns accumulated token and request counts since construction.
func (a *Agent) Counters() (totalTokens, requestsCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalTokens, a.requestsCount
}

// Start subscribes the agent to its own role's messages and to every
// STAGE_START broadcast (spec §4.4: "On construction, each Agent
// subscribes to receiver:<own role> and to type:STAGE_START").
func (a *Agent) Start() error {
	h1, err := a.bus.Subscribe("receiver:"+string(a.role), a.handleMessage)
	if err != nil {
		return fmt.Errorf("agent: subscribing receiver selector: %w", err)
	}
	h2, err := a.bus.Subscribe("type:"+string(bus.StageStart), a.handleMessage)
	if err != nil {
		return fmt.Errorf("agent: subscribing stage-start selector: %w", err)
	}
	a.handles = []bus.Handle{h1, h2}
	return nil
}

// Stop unsubscribes the agent from the bus.
func (a *Agent) Stop() {
	for _, h := range a.handles {
		a.bus.Unsubscribe(h)
	}
	a.handles = nil
}

func (a *Agent) publish(msg bus.Message) {
	msg.CreatedAt = time.Now()
	a.bus.Publish(msg)
}

// handleMessage routes an incoming message to the matching operation.
// Per spec §4.4's error policy, a handler error never propagates beyond
// the agent: it is logged and reported back to the sender as an
// AGENT_RESPONSE with status=error, so one failing agent can never crash
// the bus or the workflow.
func (a *Agent) handleMessage(msg bus.Message) {
	var err error
	switch msg.Type {
	case bus.AgentRequest:
		err = a.processRequest(msg)
	case bus.TaskAssigned:
		err = a.handleTaskAssignment(msg)
	case bus.UserFeedback:
		err = a.handleUserFeedback(msg)
	case bus.StageStart:
		a.handleStageStart(msg)
		return
	default:
		return
	}
	if err != nil {
		a.log.Error("agent: handler failed", "role", a.role, "message_type", msg.Type, "error", err)
		a.publish(bus.Message{
			Type:          bus.AgentResponse,
			Sender:        string(a.role),
			Receiver:      msg.Sender,
			CorrelationID: msg.ID,
			Payload: map[string]any{
				"status": "error",
				"error":  err.Error(),
			},
		})
	}
}

// processRequest handles an AGENT_REQUEST addressed to this role.
func (a *Agent) processRequest(msg bus.Message) error {
	prompt, _ := msg.Payload["prompt"].(string)
	result, err := a.Generate(context.Background(), "request", prompt, llm.Options{})
	if err != nil {
		return err
	}
	a.publish(bus.Message{
		Type:          bus.AgentResponse,
		Sender:        string(a.role),
		Receiver:      msg.Sender,
		CorrelationID: msg.ID,
		Payload: map[string]any{
			"status":  "ok",
			"content": result.Content,
		},
	})
	return nil
}

// handleTaskAssignment handles a TASK_ASSIGNED message: looks up the task
// and runs it, then publishes TASK_COMPLETE. This path has no Orchestrator
// dispatch loop behind it - it is agent-to-agent delegation over the bus -
// so unlike ExecuteTask the Agent computes and owns its own fingerprint
// and Result Cache Get/Set here, the same way Generate does for ad hoc
// AGENT_REQUEST handling.
func (a *Agent) handleTaskAssignment(msg bus.Message) error {
	taskID, _ := msg.Payload["task_id"].(string)
	task, ok := a.state.Task(taskID)
	if !ok {
		return fmt.Errorf("agent: unknown task %q", taskID)
	}

	contextStr := a.state.ContextString(5)
	var cached *llm.Result
	var key string
	if a.cache != nil {
		key = cache.Key(a.role, contextStr, "task")
		if e, ok := a.cache.Get(key); ok {
			if r, ok := e.Value.(llm.Result); ok {
				cached = &r
			}
		}
	}

	result, _, err := a.runTask(context.Background(), task, contextStr, cached)
	if err != nil {
		return err
	}
	if cached == nil && a.cache != nil && key != "" {
		a.cache.Set(key, &cache.Entry{Value: result, TokenCount: result.TotalTokens, CreatedAt: time.Now()})
	}

	a.publish(bus.Message{
		Type:   bus.TaskComplete,
		Sender: string(a.role),
		Payload: map[string]any{
			"task_id": task.ID,
		},
	})
	return nil
}

// ExecuteTask runs task to completion synchronously. contextStr is the
// Project State context fingerprint the Orchestrator already computed for
// this invocation, and cached - if non-nil - is the Result Cache entry the
// Orchestrator found under the fingerprint it derived from contextStr: the
// Orchestrator, not the Agent, decides what the fingerprint is and owns
// the cache Get/Set around this call, so the two can never diverge on
// what "the same context" means. attempts reports how many times the
// Generator was actually called (0 when cached was applied instead). It
// is the entry point the Orchestrator uses to drive stage dispatch
// directly (§4.8), bypassing the bus round-trip handleTaskAssignment uses
// for externally-originated TASK_ASSIGNED messages - the Orchestrator
// needs a blocking call it can run under its own cancelable,
// per-stage-timeout context.
func (a *Agent) ExecuteTask(ctx context.Context, task *state.Task, contextStr string, cached *llm.Result) (result llm.Result, attempts int, err error) {
	return a.runTask(ctx, task, contextStr, cached)
}

// runTask marks task IN_PROGRESS, applies cached if the caller already
// resolved a cache hit, otherwise generates fresh output, applies the
// role-specific Project State write, and marks the task COMPLETED (or
// BLOCKED on failure).
func (a *Agent) runTask(ctx context.Context, task *state.Task, contextStr string, cached *llm.Result) (llm.Result, int, error) {
	task.Assign(a.role)
	task.SetStatus(stage.TaskInProgress)

	var result llm.Result
	var attempts int
	if cached != nil {
		result = *cached
	} else {
		prompt := fmt.Sprintf("%s\n\nTitle: %s\nDescription: %s", contextStr, task.Title, task.Description)
		r, n, err := a.generate(ctx, prompt, llm.Options{})
		if err != nil {
			task.SetStatus(stage.TaskBlocked)
			return llm.Result{}, n, err
		}
		result = r
		attempts = n
	}

	if a.apply != nil {
		a.apply(a, task, result)
	}
	task.SetStatus(stage.TaskCompleted)
	return result, attempts, nil
}

// handleUserFeedback appends client feedback to Project State.
func (a *Agent) handleUserFeedback(msg bus.Message) error {
	text, _ := msg.Payload["text"].(string)
	a.state.AddClientFeedback(text, a.state.CurrentStage())
	return nil
}

// handleStageStart invokes the agent's OnStage hook if the broadcast
// stage is one this agent is responsible for.
func (a *Agent) handleStageStart(msg bus.Message) {
	s, _ := msg.Payload["stage"].(stage.Stage)
	if !a.isResponsibleFor(s) {
		return
	}
	if a.onStage != nil {
		a.onStage(a, s)
	}
}

func (a *Agent) isResponsibleFor(s stage.Stage) bool {
	for _, rs := range a.responsibleStages {
		if rs == s {
			return true
		}
	}
	return false
}

// Generate is the agent's convenience generation wrapper for ad hoc
// AGENT_REQUEST handling (processRequest): it builds a deterministic
// context string from Project State, consults the Result Cache keyed on
// (role, context, capability), calls the Generator on a miss, and caches
// the result. Unlike ExecuteTask, no Orchestrator dispatch loop sits
// above this call, so the Agent is the only party that can decide the
// fingerprint here.
func (a *Agent) Generate(ctx context.Context, capability, prompt string, opts llm.Options) (llm.Result, error) {
	contextStr := a.state.ContextString(5)

	var key string
	if a.cache != nil {
		key = cache.Key(a.role, contextStr, capability)
		if e, ok := a.cache.Get(key); ok {
			if result, ok := e.Value.(llm.Result); ok {
				return result, nil
			}
		}
	}

	result, _, err := a.generate(ctx, contextStr+"\n\n"+prompt, opts)
	if err != nil {
		return llm.Result{}, err
	}

	if a.cache != nil && key != "" {
		a.cache.Set(key, &cache.Entry{Value: result, TokenCount: result.TotalTokens, CreatedAt: time.Now()})
	}

	return result, nil
}

// generate calls the Generator (through the Retry Controller if one is
// configured) on prompt, updating the agent's token/request counters on
// success. It reports the number of Generator calls the Retry Controller
// made, so callers can tell a plain success from one that needed a retry.
func (a *Agent) generate(ctx context.Context, prompt string, opts llm.Options) (llm.Result, int, error) {
	call := func(ctx context.Context) (llm.Result, error) {
		return a.gen.Generate(ctx, a.systemPrompt, prompt, opts)
	}

	var result llm.Result
	var attempts int
	var err error
	if a.retry != nil {
		result, attempts, err = retry.Execute(ctx, a.retry, string(a.role), call)
	} else {
		result, err = call(ctx)
		attempts = 1
	}
	if err != nil {
		return llm.Result{}, attempts, err
	}

	a.mu.Lock()
	a.totalTokens += result.TotalTokens
	a.requestsCount++
	a.mu.Unlock()

	return result, attempts, nil
}

package orchestrator

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/orchestrator/pkg/agent"
	"github.com/kadirpekel/orchestrator/pkg/cache"
	"github.com/kadirpekel/orchestrator/pkg/llm"
	"github.com/kadirpekel/orchestrator/pkg/stage"
	"github.com/kadirpekel/orchestrator/pkg/state"
)

// newStageTask builds the task an agent is assigned when the Orchestrator
// drives a stage directly, rather than a task authored by another agent
// (e.g. the PROJECT_MANAGER's kickoff task) and picked up off Project
// State.
func newStageTask(a *agent.Agent, s stage.Stage) *state.Task {
	return state.NewTask(
		string(a.Role())+" output for "+string(s),
		"Produce "+string(a.Role())+" output for stage "+string(s)+".",
		s,
	)
}

// effectiveStrategy resolves the configured ExecutionStrategy to the one
// dispatch.go actually implements. Registry.ForStage returns exactly one
// agent for every stage (PROJECT_MANAGER has no dispatch stages and takes
// part in REQUIREMENTS_ANALYSIS only through its OnStage hook), so ADAPTIVE
// has nothing to adapt between and runs as SEQUENTIAL; only an explicit
// PARALLEL configuration dispatches agents concurrently.
func (o *Orchestrator) effectiveStrategy() ExecutionStrategy {
	if o.config.ExecutionStrategy == Parallel {
		return Parallel
	}
	return Sequential
}

// runStage resolves s's responsible agents and dispatches them, wrapping
// ordinary stages in a per-stage timeout and routing TESTING and
// QUALITY_ASSURANCE through the bounded refinement loop instead.
func (o *Orchestrator) runStage(ctx context.Context, s stage.Stage) error {
	agents := orderAgents(o.registry.ForStage(s))
	if len(agents) == 0 {
		return nil
	}

	dispatch := func(ctx context.Context) error {
		if o.effectiveStrategy() == Parallel {
			return o.dispatchParallel(ctx, s, agents)
		}
		return o.dispatchSequential(ctx, s, agents)
	}

	if s == stage.Testing || s == stage.QualityAssurance {
		return o.runRefinementLoop(ctx, s, dispatch)
	}
	return o.withStageTimeout(ctx, dispatch)
}

// withStageTimeout runs fn under a derived context bounded by
// Config.TimeoutPerStage (a TimeoutPerStage of zero means no bound).
func (o *Orchestrator) withStageTimeout(ctx context.Context, fn func(context.Context) error) error {
	if o.config.TimeoutPerStage <= 0 {
		return fn(ctx)
	}
	stageCtx, cancel := context.WithTimeout(ctx, o.config.TimeoutPerStage)
	defer cancel()
	return fn(stageCtx)
}

// dispatchSequential runs agents one at a time, in a fixed deterministic
// order, stopping at the first failure.
func (o *Orchestrator) dispatchSequential(ctx context.Context, s stage.Stage, agents []*agent.Agent) error {
	for _, a := range agents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.invokeAgent(ctx, a, s); err != nil {
			return err
		}
	}
	return nil
}

// dispatchParallel runs agents concurrently, bounded by
// Config.MaxParallelAgents, returning the first error (if any) once every
// goroutine has finished.
func (o *Orchestrator) dispatchParallel(ctx context.Context, s stage.Stage, agents []*agent.Agent) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxParallelAgents)
	for _, a := range agents {
		a := a
		g.Go(func() error {
			return o.invokeAgent(gctx, a, s)
		})
	}
	return g.Wait()
}

// invokeAgent assigns a itself a fresh task for stage s and runs it to
// completion, updating progress and metrics counters from the result.
func (o *Orchestrator) invokeAgent(ctx context.Context, a *agent.Agent, s stage.Stage) error {
	return o.invokeAgentTask(ctx, a, newStageTask(a, s))
}

// invokeAgentTask runs task on a to completion, updating progress and
// metrics counters from the result. It underlies both invokeAgent's
// stage dispatch and the refinement loop's repair task, so every agent
// invocation - however it was authored - accounts the same way.
//
// The Orchestrator, not the Agent, computes the context fingerprint this
// invocation is cached under and owns the Result Cache Get/Set around the
// call (spec: "The Orchestrator decides what the context fingerprint is
// for each invocation, to prevent accidental divergence") - a gets only
// the already-resolved fingerprint string and, on a hit, the cached
// result to apply directly with no Generator call.
func (o *Orchestrator) invokeAgentTask(ctx context.Context, a *agent.Agent, task *state.Task) error {
	o.state.AddTask(task)

	contextStr := o.state.ContextString(5)
	fingerprint := cache.Key(a.Role(), contextStr, "task")

	var cached *llm.Result
	if o.cache != nil {
		if e, ok := o.cache.Get(fingerprint); ok {
			if r, ok := e.Value.(llm.Result); ok {
				cached = &r
			}
		}
	}
	hit := cached != nil

	before, _ := a.Counters()
	result, attempts, err := a.ExecuteTask(ctx, task, contextStr, cached)
	after, _ := a.Counters()
	o.emitter.AddTokens(after - before)

	if err == nil && !hit && o.cache != nil {
		o.cache.Set(fingerprint, &cache.Entry{Value: result, TokenCount: result.TotalTokens, CreatedAt: time.Now()})
	}

	if hit {
		o.emitter.RecordCacheHit()
		o.metrics.IncCacheHit()
	} else {
		o.emitter.RecordCacheMiss()
		o.metrics.IncCacheMiss()
	}

	outcome := "success"
	switch {
	case err != nil:
		outcome = "failed"
	case hit:
		outcome = "cached"
	case attempts > 1:
		outcome = "retried"
	}
	o.metrics.IncAgentInvocation(string(a.Role()), outcome)
	return err
}

// orderAgents sorts agents into the fixed role order stage.AllRoles
// defines, so SEQUENTIAL dispatch (and test assertions about it) never
// depend on Registry.ForStage's unordered map iteration.
func orderAgents(agents []*agent.Agent) []*agent.Agent {
	position := make(map[stage.Role]int, len(stage.AllRoles()))
	for i, r := range stage.AllRoles() {
		position[r] = i
	}
	out := append([]*agent.Agent(nil), agents...)
	sort.Slice(out, func(i, j int) bool {
		return position[out[i].Role()] < position[out[j].Role()]
	})
	return out
}

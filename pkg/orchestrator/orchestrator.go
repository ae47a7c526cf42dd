// Package orchestrator implements the Workflow Orchestrator (spec §4.8):
// the stage machine that drives a single workflow's Project State through
// REQUIREMENTS_ANALYSIS -> ... -> QUALITY_ASSURANCE -> COMPLETED (or
// FAILED), dispatching each stage's responsible agents, running the
// TESTING/QUALITY_ASSURANCE refinement loops, writing checkpoints at
// stage boundaries, and reporting progress and metrics throughout.
//
// Grounded on the run-loop shape of
// kadirpekel-hector/pkg/agent/workflowagent/workflow.go (a step machine
// advancing over an ordered step list, each step resolved to one or more
// sub-agents and dispatched sequentially or in parallel) retargeted from
// hector's graph-defined steps to this package's fixed nine-stage order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kadirpekel/orchestrator/pkg/agent"
	"github.com/kadirpekel/orchestrator/pkg/bus"
	"github.com/kadirpekel/orchestrator/pkg/cache"
	"github.com/kadirpekel/orchestrator/pkg/checkpoint"
	"github.com/kadirpekel/orchestrator/pkg/llm"
	"github.com/kadirpekel/orchestrator/pkg/metrics"
	"github.com/kadirpekel/orchestrator/pkg/progress"
	"github.com/kadirpekel/orchestrator/pkg/retry"
	"github.com/kadirpekel/orchestrator/pkg/stage"
	"github.com/kadirpekel/orchestrator/pkg/state"
)

// restoredMarker is not a member of stage.AllStages' canonical order - it
// exists only as a stage-history entry a resumed workflow's first
// progress event carries, so a consumer of the event stream can tell a
// resumed run's history apart from a run that executed every stage.
const restoredMarker stage.Stage = "RESTORED"

// Orchestrator drives one workflow's Project State to completion.
type Orchestrator struct {
	config Config
	log    *slog.Logger

	bus           *bus.Bus
	state         *state.ProjectState
	registry      *agent.Registry
	cache         *cache.Cache
	retryCtl      *retry.Controller
	checkpointMgr *checkpoint.Manager
	emitter       *progress.Emitter
	metrics       metrics.MetricsSink

	mu             sync.Mutex
	cancelFn       context.CancelFunc
	canceled       bool
	stageDurations map[stage.Stage]time.Duration

	sinks []progress.EventSink
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithEventSink registers a progress.EventSink the Progress Emitter fans
// events out to.
func WithEventSink(s progress.EventSink) Option {
	return func(o *Orchestrator) { o.sinks = append(o.sinks, s) }
}

// WithMetricsSink overrides the default no-op MetricsSink.
func WithMetricsSink(m metrics.MetricsSink) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger overrides the orchestrator's logger, propagated to every
// collaborator it constructs.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New constructs an Orchestrator for a fresh workflow from cfg, wiring the
// Message Bus, Project State, Result Cache, Retry Controller, Checkpoint
// Manager, Progress Emitter and the seven-role Agent Registry. gen is the
// Generator every agent shares. Callers resolving cfg.ProjectID from a
// ProjectRepository are expected to have already copied the descriptor's
// Requirements/OutputDirectory into cfg before calling New.
func New(cfg Config, gen llm.Generator, opts ...Option) (*Orchestrator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		config:         cfg,
		log:            slog.Default(),
		metrics:        metrics.NoOp{},
		stageDurations: make(map[stage.Stage]time.Duration),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.bus = bus.New(bus.WithLogger(o.log))
	o.state = state.New(cfg.ProjectID, cfg.Requirements)
	// The Checkpoint Store and cache backends are keyed by o.state.ID, and
	// a resumed run must land on the same key a prior process's run wrote
	// under - so identity is cfg.ProjectID, not the random id state.New
	// assigns fresh ProjectStates for workflows with no external identity.
	o.state.ID = cfg.ProjectID
	if cfg.OutputDirectory != "" {
		o.state.MetadataSet("output_directory", cfg.OutputDirectory)
	}

	c, err := buildCache(cfg.CachePolicy, cfg.ProjectID, o.log)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: constructing result cache: %w", err)
	}
	o.cache = c

	o.retryCtl = retry.NewController(cfg.RetryPolicy.toPolicy(), retry.WithLogger(o.log))
	o.checkpointMgr = checkpoint.NewManager(cfg.CheckpointPolicy, o.log)
	o.emitter = progress.New(o.state.ID, o.log, o.sinks...)

	o.registry = agent.NewDefaultRegistry(agent.Deps{
		Bus:       o.bus,
		State:     o.state,
		Generator: gen,
		Cache:     o.cache,
		Retry:     o.retryCtl,
		Logger:    o.log,
	})
	if err := o.registry.StartAll(); err != nil {
		return nil, fmt.Errorf("orchestrator: starting agent registry: %w", err)
	}

	return o, nil
}

func buildCache(policy CachePolicy, projectID string, log *slog.Logger) (*cache.Cache, error) {
	var backend cache.Backend
	if policy.Enabled {
		if policy.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{Addr: policy.RedisAddr})
			backend = cache.NewRedisBackend(client, "orchestrator:"+projectID, 0)
		} else {
			backend = cache.NewFileBackend(filepath.Join(policy.CacheDirectory, projectID+".json"))
		}
	}

	var c *cache.Cache
	var err error
	if backend != nil {
		c, err = cache.New(policy.MaxCacheSize, cache.WithBackend(backend), cache.WithLogger(log))
	} else {
		c, err = cache.New(policy.MaxCacheSize, cache.WithLogger(log))
	}
	if err != nil {
		return nil, err
	}
	if policy.Enabled {
		c.Load()
	}
	return c, nil
}

// State returns the workflow's Project State, for callers that need
// direct read access (e.g. a CLI printing a final summary).
func (o *Orchestrator) State() *state.ProjectState { return o.state }

// Close stops every registered agent's bus subscriptions and drains the
// Message Bus's dispatch goroutines. Run and Resume do not call it: the
// caller calls Close once it is done with the Orchestrator, whether or not
// a workflow was run, so the bus's per-subscription goroutines do not leak.
func (o *Orchestrator) Close() {
	o.registry.StopAll()
	o.bus.Close()
}

// Run executes every stage from the beginning.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	return o.execute(ctx, stage.Initial)
}

// Resume loads the most recent checkpoint for the workflow, restores
// Project State from it, and continues execution from the stage after
// the one the checkpoint recorded as complete. If no checkpoint exists,
// Resume behaves exactly like Run.
func (o *Orchestrator) Resume(ctx context.Context) (*Result, error) {
	rec, ok := o.checkpointMgr.Resume(o.state.ID)
	if !ok {
		return o.Run(ctx)
	}
	o.state.Restore(rec.State)
	o.emitter.StageStarted(restoredMarker)
	return o.execute(ctx, rec.CurrentStage)
}

// Cancel requests the running (or next) Run/Resume call to stop at the
// next suspension point and transition the workflow to FAILED with a
// cancellation_reason. Safe to call concurrently with Run/Resume and
// before either has started.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	o.canceled = true
	cancel := o.cancelFn
	o.mu.Unlock()

	o.bus.Publish(bus.Message{Type: bus.WorkflowCanceled, Sender: bus.SenderWorkflow})
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) isCanceled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.canceled
}

// execute runs the stage machine, skipping every stage up to and
// including resumeAfter (stage.Initial skips nothing).
func (o *Orchestrator) execute(ctx context.Context, resumeAfter stage.Stage) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancelFn = cancel
	o.mu.Unlock()
	defer cancel()

	reached := resumeAfter == stage.Initial
	for _, s := range stage.AllStages() {
		if s == stage.Initial || s == stage.Completed {
			continue
		}
		if s == stage.UIUXDesign && o.config.SkipUIDesign {
			// A skipped stage runs no agent and emits no event, but Project
			// State still steps through it so the next AdvanceStage is adjacent.
			if reached {
				if err := o.state.AdvanceStage(s); err != nil {
					return o.finishFailed(s, "InvalidStageTransition", err), nil
				}
			}
			continue
		}
		if !reached {
			if s == resumeAfter {
				reached = true
			}
			continue
		}

		if o.isCanceled() || ctx.Err() != nil {
			return o.finishCanceled(s), nil
		}

		if err := o.state.AdvanceStage(s); err != nil {
			return o.finishFailed(s, "InvalidStageTransition", err), nil
		}
		o.emitter.StageStarted(s)
		o.bus.Publish(bus.Message{
			Type:    bus.StageStart,
			Sender:  bus.SenderWorkflow,
			Payload: map[string]any{"stage": s},
		})

		started := time.Now()
		err := o.runStage(ctx, s)
		elapsed := time.Since(started)
		o.recordStageDuration(s, elapsed)
		o.metrics.ObserveStageDuration(string(s), elapsed)

		if err != nil {
			if o.isCanceled() || errors.Is(err, context.Canceled) {
				return o.finishCanceled(s), nil
			}
			return o.finishFailed(s, classifyErrorKind(err), err), nil
		}

		o.writeCheckpoint(s, checkpoint.TriggerStageComplete)
		o.emitter.StageCompleted(s)
		o.bus.Publish(bus.Message{
			Type:    bus.StageComplete,
			Sender:  bus.SenderWorkflow,
			Payload: map[string]any{"stage": s},
		})
	}

	if err := o.state.AdvanceStage(stage.Completed); err != nil {
		return o.finishFailed(stage.Completed, "InvalidStageTransition", err), nil
	}
	o.emitter.StageStarted(stage.Completed)
	o.writeCheckpoint(stage.Completed, checkpoint.TriggerStageComplete)
	o.emitter.Terminal(progress.OutcomeCompleted, nil)

	return o.buildResult(progress.OutcomeCompleted), nil
}

func (o *Orchestrator) finishCanceled(s stage.Stage) *Result {
	_ = o.state.AdvanceStage(stage.Failed)
	o.state.MetadataSet("cancellation_reason", "workflow canceled while in stage "+string(s))
	o.writeCheckpoint(stage.Failed, checkpoint.TriggerExplicit)
	o.emitter.Terminal(progress.OutcomeCanceled, nil)
	return o.buildResult(progress.OutcomeCanceled)
}

func (o *Orchestrator) finishFailed(s stage.Stage, kind string, err error) *Result {
	o.emitter.RecordError(kind, err.Error(), s)
	_ = o.state.AdvanceStage(stage.Failed)
	o.writeCheckpoint(stage.Failed, checkpoint.TriggerExplicit)
	lastErr := &progress.ErrorEntry{Kind: kind, Message: err.Error(), Stage: s, Timestamp: time.Now()}
	o.emitter.Terminal(progress.OutcomeFailed, lastErr)
	return o.buildResult(progress.OutcomeFailed)
}

func (o *Orchestrator) writeCheckpoint(s stage.Stage, trigger checkpoint.WriteTrigger) {
	snap := o.state.Snapshot()
	result := o.checkpointMgr.Checkpoint(o.state.ID, snap, o.emitter.Snapshot().StageHistory, trigger)
	switch {
	case result.Written:
		o.metrics.IncCheckpointWrite("written")
		o.log.Debug("orchestrator: checkpoint written", "stage", s, "trigger", trigger)
	case result.Degraded:
		o.metrics.IncCheckpointWrite("degraded")
	default:
		o.metrics.IncCheckpointWrite("skipped")
	}
}

func (o *Orchestrator) recordStageDuration(s stage.Stage, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stageDurations[s] = d
}

func (o *Orchestrator) snapshotDurations() map[stage.Stage]time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[stage.Stage]time.Duration, len(o.stageDurations))
	for k, v := range o.stageDurations {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) buildResult(outcome progress.Outcome) *Result {
	snap := o.emitter.Snapshot()
	var hitRate float64
	if total := snap.CacheHits + snap.CacheMisses; total > 0 {
		hitRate = float64(snap.CacheHits) / float64(total)
	}
	return &Result{
		Outcome: outcome,
		State:   o.state.Snapshot(),
		Summary: Summary{
			TotalTokens:    snap.TotalTokens,
			CacheHitRate:   hitRate,
			StageDurations: o.snapshotDurations(),
			Errors:         snap.Errors,
		},
	}
}

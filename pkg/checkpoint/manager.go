package checkpoint

import (
	"log/slog"

	"github.com/kadirpekel/orchestrator/pkg/stage"
	"github.com/kadirpekel/orchestrator/pkg/state"
)

// Policy controls whether and how often the Workflow Orchestrator writes
// checkpoints, mirroring the checkpoint_policy surface of spec §4.8.
type Policy struct {
	Enabled             bool
	CheckpointDirectory string
	RetainLast          int
}

// SetDefaults fills zero-valued fields with the engine's defaults.
func (p *Policy) SetDefaults() {
	if p.CheckpointDirectory == "" {
		p.CheckpointDirectory = "./checkpoints"
	}
	if p.RetainLast == 0 {
		p.RetainLast = 5
	}
}

// Manager wraps a Store with the write-trigger and degraded-failure
// semantics the Orchestrator needs: a checkpoint write failure is retried
// once, and if the retry also fails the write is abandoned with a
// "checkpoint-degraded" warning rather than failing the workflow.
// Adapted from kadirpekel-hector/pkg/checkpoint/manager.go's hook
// structure, retargeted at the Store's plain-file backend.
type Manager struct {
	store   *Store
	policy  Policy
	log     *slog.Logger
	onDrift func(workflowID string, err error)
}

// NewManager constructs a Manager. policy.SetDefaults() is called if the
// policy has not already been defaulted by the caller.
func NewManager(policy Policy, log *slog.Logger) *Manager {
	policy.SetDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:  NewStore(policy.CheckpointDirectory, policy.RetainLast),
		policy: policy,
		log:    log,
	}
}

// WriteResult reports what happened to a checkpoint write attempt.
type WriteResult struct {
	Written  bool
	Degraded bool
	Err      error
}

// WriteTrigger identifies what caused a checkpoint write, for logging.
type WriteTrigger string

const (
	TriggerStageComplete WriteTrigger = "stage_complete"
	TriggerTaskComplete  WriteTrigger = "task_complete"
	TriggerExplicit      WriteTrigger = "explicit"
)

// Checkpoint writes a checkpoint for the given project state and stage
// history, attributing the write to trigger. If checkpointing is
// disabled by policy, this is a no-op success. A failed write is retried
// exactly once; if the retry also fails, the failure is logged as
// "checkpoint-degraded" and reported in WriteResult.Degraded rather than
// returned as an error — a checkpoint failure must never abort a running
// workflow.
func (m *Manager) Checkpoint(workflowID string, snapshot *state.Snapshot, history []stage.Stage, trigger WriteTrigger) WriteResult {
	if !m.policy.Enabled {
		return WriteResult{Written: false}
	}

	rec := &Record{
		WorkflowID:   workflowID,
		CurrentStage: snapshot.CurrentStage,
		StageHistory: history,
		State:        snapshot,
		Reason:       string(trigger),
	}

	err := m.store.Save(rec)
	if err == nil {
		return WriteResult{Written: true}
	}
	m.log.Warn("checkpoint: write failed, retrying once", "workflow_id", workflowID, "trigger", trigger, "error", err)

	err = m.store.Save(rec)
	if err == nil {
		return WriteResult{Written: true}
	}

	m.log.Warn("checkpoint-degraded: checkpoint write failed twice, continuing without a fresh checkpoint",
		"workflow_id", workflowID, "trigger", trigger, "error", err)
	return WriteResult{Written: false, Degraded: true, Err: err}
}

// Resume attempts to load the most recent valid checkpoint for
// workflowID. The second return value is false if no valid checkpoint
// exists (including when checkpointing is disabled), in which case the
// caller starts a fresh workflow.
func (m *Manager) Resume(workflowID string) (*Record, bool) {
	if !m.policy.Enabled {
		return nil, false
	}
	rec, err := m.store.Load(workflowID)
	if err != nil {
		if err != ErrNoCheckpoint {
			m.log.Warn("checkpoint: discarding unrecoverable checkpoint history", "workflow_id", workflowID, "error", err)
		}
		return nil, false
	}
	return rec, true
}

// Store exposes the underlying Store for callers that need direct access
// (e.g. tests asserting on-disk layout).
func (m *Manager) Store() *Store { return m.store }

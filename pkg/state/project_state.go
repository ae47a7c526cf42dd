// Package state implements Project State: the single authoritative,
// concurrently-accessed representation of one workflow's data, grounded on
// original_source/core/state.py's ProjectState dataclass and generalized
// to Go's per-region-lock concurrency discipline described in spec §4.1/§5.
package state

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/orchestrator/pkg/stage"
)

// ProjectState is the shared mutable hub a workflow's agents and
// orchestrator operate on. Identity fields are immutable after
// construction; every other field lives behind a region-specific lock so
// that independent buckets never contend with each other.
type ProjectState struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time

	stageMu      sync.RWMutex
	currentStage stage.Stage

	updatedMu sync.Mutex
	updatedAt time.Time

	requirements       *region
	architecture       *region
	design             *region
	implementationPlan *region
	artifacts          *region
	metadata           *region

	tasksMu sync.RWMutex
	tasks   map[string]*Task

	decisionsMu sync.Mutex
	decisions   []Decision

	feedbackMu     sync.Mutex
	clientFeedback []ClientFeedback
}

// New creates a fresh Project State in the Initial stage.
func New(name, description string) *ProjectState {
	now := time.Now()
	return &ProjectState{
		ID:                 uuid.New().String(),
		Name:               name,
		Description:        description,
		CreatedAt:          now,
		currentStage:       stage.Initial,
		updatedAt:          now,
		requirements:       newRegion(),
		architecture:       newRegion(),
		design:             newRegion(),
		implementationPlan: newRegion(),
		artifacts:          newRegion(),
		metadata:           newRegion(),
		tasks:              make(map[string]*Task),
	}
}

func (p *ProjectState) touch() {
	p.updatedMu.Lock()
	defer p.updatedMu.Unlock()
	now := time.Now()
	if now.Before(p.updatedAt) {
		now = p.updatedAt
	}
	p.updatedAt = now
}

// UpdatedAt returns the timestamp of the most recent mutation to any
// region of the state.
func (p *ProjectState) UpdatedAt() time.Time {
	p.updatedMu.Lock()
	defer p.updatedMu.Unlock()
	return p.updatedAt
}

// CurrentStage returns the workflow's current stage.
func (p *ProjectState) CurrentStage() stage.Stage {
	p.stageMu.RLock()
	defer p.stageMu.RUnlock()
	return p.currentStage
}

// AdvanceStage moves current_stage forward by exactly one step in the
// canonical order, or to Failed from any stage. Any other target is
// rejected with ErrInvalidStageTransition; current_stage never regresses.
func (p *ProjectState) AdvanceStage(to stage.Stage) error {
	p.stageMu.Lock()
	defer p.stageMu.Unlock()
	if !stage.IsAdjacent(p.currentStage, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStageTransition, p.currentStage, to)
	}
	p.currentStage = to
	p.touch()
	return nil
}

// --- Requirements / Architecture / Design / Implementation Plan buckets ---

func (p *ProjectState) RequirementsGet(key string) (any, bool) { return p.requirements.get(key) }
func (p *ProjectState) RequirementsSet(key string, v any) {
	p.requirements.set(key, v)
	p.touch()
}
func (p *ProjectState) RequirementsSnapshot() map[string]any { return p.requirements.snapshot() }

func (p *ProjectState) ArchitectureGet(key string) (any, bool) { return p.architecture.get(key) }
func (p *ProjectState) ArchitectureSet(key string, v any) {
	p.architecture.set(key, v)
	p.touch()
}
func (p *ProjectState) ArchitectureSnapshot() map[string]any { return p.architecture.snapshot() }

func (p *ProjectState) DesignGet(key string) (any, bool) { return p.design.get(key) }
func (p *ProjectState) DesignSet(key string, v any) {
	p.design.set(key, v)
	p.touch()
}
func (p *ProjectState) DesignSnapshot() map[string]any { return p.design.snapshot() }

func (p *ProjectState) ImplementationPlanGet(key string) (any, bool) {
	return p.implementationPlan.get(key)
}
func (p *ProjectState) ImplementationPlanSet(key string, v any) {
	p.implementationPlan.set(key, v)
	p.touch()
}
func (p *ProjectState) ImplementationPlanSnapshot() map[string]any {
	return p.implementationPlan.snapshot()
}

func (p *ProjectState) MetadataGet(key string) (any, bool) { return p.metadata.get(key) }
func (p *ProjectState) MetadataSet(key string, v any) {
	p.metadata.set(key, v)
	p.touch()
}
func (p *ProjectState) MetadataSnapshot() map[string]any { return p.metadata.snapshot() }

// --- Artifacts ---

// AddArtifact records an artifact (opaque blob or file path) under key.
func (p *ProjectState) AddArtifact(key string, value any) {
	p.artifacts.set(key, value)
	p.touch()
}

// Artifact returns an artifact by key.
func (p *ProjectState) Artifact(key string) (any, bool) { return p.artifacts.get(key) }

// Artifacts returns a snapshot of the full artifacts map.
func (p *ProjectState) Artifacts() map[string]any { return p.artifacts.snapshot() }

// --- Tasks ---

// AddTask registers a new task.
func (p *ProjectState) AddTask(t *Task) {
	p.tasksMu.Lock()
	p.tasks[t.ID] = t
	p.tasksMu.Unlock()
	p.touch()
}

// Task returns the task with the given id, if present.
func (p *ProjectState) Task(id string) (*Task, bool) {
	p.tasksMu.RLock()
	defer p.tasksMu.RUnlock()
	t, ok := p.tasks[id]
	return t, ok
}

// UpdateTask applies mutate to the task with the given id. Updating a
// non-existent task id is a no-op (idempotent), matching §4.1.
func (p *ProjectState) UpdateTask(id string, mutate func(*Task)) {
	p.tasksMu.RLock()
	t, ok := p.tasks[id]
	p.tasksMu.RUnlock()
	if !ok {
		return
	}
	mutate(t)
	p.touch()
}

// GetTasksByStage returns all tasks owned by the given stage.
func (p *ProjectState) GetTasksByStage(s stage.Stage) []*Task {
	p.tasksMu.RLock()
	defer p.tasksMu.RUnlock()
	var out []*Task
	for _, t := range p.tasks {
		if t.Stage == s {
			out = append(out, t)
		}
	}
	return out
}

// GetTasksByStatus returns all tasks with the given status.
func (p *ProjectState) GetTasksByStatus(s stage.TaskStatus) []*Task {
	p.tasksMu.RLock()
	defer p.tasksMu.RUnlock()
	var out []*Task
	for _, t := range p.tasks {
		if t.Status() == s {
			out = append(out, t)
		}
	}
	return out
}

// --- Decisions / client feedback ---

// AddDecision records a project decision.
func (p *ProjectState) AddDecision(decision string, madeBy stage.Role, rationale string) {
	p.decisionsMu.Lock()
	p.decisions = append(p.decisions, Decision{
		Decision:  decision,
		MadeBy:    madeBy,
		Rationale: rationale,
		Timestamp: time.Now(),
	})
	p.decisionsMu.Unlock()
	p.touch()
}

// Decisions returns a copy of the ordered decision log.
func (p *ProjectState) Decisions() []Decision {
	p.decisionsMu.Lock()
	defer p.decisionsMu.Unlock()
	out := make([]Decision, len(p.decisions))
	copy(out, p.decisions)
	return out
}

// AddClientFeedback records client feedback for a stage.
func (p *ProjectState) AddClientFeedback(text string, s stage.Stage) {
	p.feedbackMu.Lock()
	p.clientFeedback = append(p.clientFeedback, ClientFeedback{
		Text:      text,
		Stage:     s,
		Timestamp: time.Now(),
	})
	p.feedbackMu.Unlock()
	p.touch()
}

// ClientFeedback returns a copy of the ordered feedback log.
func (p *ProjectState) ClientFeedback() []ClientFeedback {
	p.feedbackMu.Lock()
	defer p.feedbackMu.Unlock()
	out := make([]ClientFeedback, len(p.clientFeedback))
	copy(out, p.clientFeedback)
	return out
}

// --- Snapshot / Restore ---

// Snapshot produces a deep, lock-free copy of the state suitable for
// checkpoint persistence.
func (p *ProjectState) Snapshot() *Snapshot {
	p.tasksMu.RLock()
	tasks := make(map[string]*TaskSnapshot, len(p.tasks))
	for id, t := range p.tasks {
		tasks[id] = t.snapshot()
	}
	p.tasksMu.RUnlock()

	return &Snapshot{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		CurrentStage:       p.CurrentStage(),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt(),
		Requirements:       p.RequirementsSnapshot(),
		Architecture:       p.ArchitectureSnapshot(),
		Design:             p.DesignSnapshot(),
		ImplementationPlan: p.ImplementationPlanSnapshot(),
		Tasks:              tasks,
		Artifacts:          p.Artifacts(),
		Decisions:          p.Decisions(),
		ClientFeedback:     p.ClientFeedback(),
		Metadata:           p.MetadataSnapshot(),
	}
}

// Restore replaces the state's content with a previously captured
// Snapshot. Identity (ID) is preserved from the receiver; all mutable
// content is overwritten.
func (p *ProjectState) Restore(s *Snapshot) {
	p.stageMu.Lock()
	p.currentStage = s.CurrentStage
	p.stageMu.Unlock()

	p.updatedMu.Lock()
	p.updatedAt = s.UpdatedAt
	p.updatedMu.Unlock()

	p.requirements.restore(s.Requirements)
	p.architecture.restore(s.Architecture)
	p.design.restore(s.Design)
	p.implementationPlan.restore(s.ImplementationPlan)
	p.artifacts.restore(s.Artifacts)
	p.metadata.restore(s.Metadata)

	p.tasksMu.Lock()
	p.tasks = make(map[string]*Task, len(s.Tasks))
	for id, ts := range s.Tasks {
		p.tasks[id] = taskFromSnapshot(ts)
	}
	p.tasksMu.Unlock()

	p.decisionsMu.Lock()
	p.decisions = append([]Decision(nil), s.Decisions...)
	p.decisionsMu.Unlock()

	p.feedbackMu.Lock()
	p.clientFeedback = append([]ClientFeedback(nil), s.ClientFeedback...)
	p.feedbackMu.Unlock()
}

// FromSnapshot builds a fresh ProjectState from a Snapshot, taking its ID
// and CreatedAt from the snapshot (Orchestrator.Resume uses Restore instead).
func FromSnapshot(s *Snapshot) *ProjectState {
	p := New(s.Name, s.Description)
	p.ID = s.ID
	p.CreatedAt = s.CreatedAt
	p.Restore(s)
	return p
}

// ContextString builds the deterministic context summary used both by
// Agents to construct generation prompts and by the Orchestrator to
// derive cache fingerprints (§4.4, §4.5, §4.9 design notes). It is defined
// once, here, so the two call sites can never diverge: sections are
// emitted in a fixed order, and the only variable-length section (map
// contents) is rendered from sorted keys.
//
// Grounded on original_source/core/agent.py's get_context_from_state.
func (p *ProjectState) ContextString(maxDecisions int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Project: %s\n", p.Name)
	fmt.Fprintf(&b, "Description: %s\n", p.Description)
	fmt.Fprintf(&b, "Current Stage: %s\n", p.CurrentStage())

	writeBucket(&b, "Requirements", p.RequirementsSnapshot())
	writeBucket(&b, "Architecture", p.ArchitectureSnapshot())
	writeBucket(&b, "Design", p.DesignSnapshot())
	writeBucket(&b, "Implementation Plan", p.ImplementationPlanSnapshot())

	decisions := p.Decisions()
	if len(decisions) > 0 {
		if maxDecisions > 0 && len(decisions) > maxDecisions {
			decisions = decisions[len(decisions)-maxDecisions:]
		}
		b.WriteString("Recent Decisions:\n")
		for _, d := range decisions {
			fmt.Fprintf(&b, "- %s (by %s)\n", d.Decision, d.MadeBy)
		}
	}

	return b.String()
}

func writeBucket(b *strings.Builder, label string, bucket map[string]any) {
	if len(bucket) == 0 {
		return
	}
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "%s:\n", label)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %v\n", k, bucket[k])
	}
}

package state

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/orchestrator/pkg/stage"
)

// Task is a unit of work owned by one workflow stage and (once assigned)
// one agent role. Identity and creation time are immutable; status,
// timestamps, dependencies, artifacts and metadata mutate behind a
// per-task lock so a Task can be safely handed to multiple goroutines
// during PARALLEL stage dispatch.
type Task struct {
	ID          string
	Title       string
	Description string
	Stage       stage.Stage
	CreatedAt   time.Time

	mu           sync.RWMutex
	assignedTo   stage.Role
	status       stage.TaskStatus
	updatedAt    time.Time
	completedAt  *time.Time
	dependencies []string
	artifacts    []string
	metadata     map[string]any
}

// NewTask creates a task in PENDING status owned by the given stage.
func NewTask(title, description string, s stage.Stage) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Stage:       s,
		CreatedAt:   now,
		status:      stage.TaskPending,
		updatedAt:   now,
		metadata:    make(map[string]any),
	}
}

func (t *Task) touch() {
	now := time.Now()
	if now.Before(t.updatedAt) {
		now = t.updatedAt
	}
	t.updatedAt = now
}

// Status returns the task's current status.
func (t *Task) Status() stage.TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// SetStatus transitions the task to a new status. CompletedAt is set iff
// the new status is TaskCompleted, and cleared otherwise (invariant: a
// task's completed_at is set iff its status is COMPLETED).
func (t *Task) SetStatus(s stage.TaskStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	if s == stage.TaskCompleted {
		now := time.Now()
		t.completedAt = &now
	} else {
		t.completedAt = nil
	}
	t.touch()
}

// AssignedTo returns the role currently assigned to the task, or "" if
// unassigned.
func (t *Task) AssignedTo() stage.Role {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.assignedTo
}

// Assign sets the owning role.
func (t *Task) Assign(r stage.Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.assignedTo = r
	t.touch()
}

// UpdatedAt returns the last-mutation timestamp.
func (t *Task) UpdatedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updatedAt
}

// CompletedAt returns the completion timestamp, or nil if the task has not
// reached TaskCompleted.
func (t *Task) CompletedAt() *time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.completedAt == nil {
		return nil
	}
	c := *t.completedAt
	return &c
}

// AddArtifact records an artifact key produced by this task.
func (t *Task) AddArtifact(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.artifacts = append(t.artifacts, key)
	t.touch()
}

// Artifacts returns a copy of the artifact keys produced by this task.
func (t *Task) Artifacts() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.artifacts))
	copy(out, t.artifacts)
	return out
}

// SetDependencies replaces the task's dependency list.
func (t *Task) SetDependencies(deps []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dependencies = append([]string(nil), deps...)
	t.touch()
}

// Dependencies returns a copy of the task's dependency list.
func (t *Task) Dependencies() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.dependencies))
	copy(out, t.dependencies)
	return out
}

// SetMetadata sets a metadata value on the task.
func (t *Task) SetMetadata(key string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metadata[key] = value
	t.touch()
}

// Metadata returns a shallow copy of the task's metadata map.
func (t *Task) Metadata() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]any, len(t.metadata))
	for k, v := range t.metadata {
		out[k] = v
	}
	return out
}

// Snapshot is the serializable, lock-free projection of a ProjectState used
// by Project State snapshot/restore and the Checkpoint Store.
type Snapshot struct {
	ID                  string
	Name                string
	Description         string
	CurrentStage        stage.Stage
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Requirements        map[string]any
	Architecture        map[string]any
	Design              map[string]any
	ImplementationPlan  map[string]any
	Tasks               map[string]*TaskSnapshot
	Artifacts           map[string]any
	Decisions           []Decision
	ClientFeedback      []ClientFeedback
	Metadata            map[string]any
}

// TaskSnapshot is the serializable projection of a Task.
type TaskSnapshot struct {
	ID           string
	Title        string
	Description  string
	AssignedTo   stage.Role
	Status       stage.TaskStatus
	Stage        stage.Stage
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
	Dependencies []string
	Artifacts    []string
	Metadata     map[string]any
}

func (t *Task) snapshot() *TaskSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var completedAt *time.Time
	if t.completedAt != nil {
		c := *t.completedAt
		completedAt = &c
	}
	meta := make(map[string]any, len(t.metadata))
	for k, v := range t.metadata {
		meta[k] = v
	}
	return &TaskSnapshot{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		AssignedTo:   t.assignedTo,
		Status:       t.status,
		Stage:        t.Stage,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.updatedAt,
		CompletedAt:  completedAt,
		Dependencies: append([]string(nil), t.dependencies...),
		Artifacts:    append([]string(nil), t.artifacts...),
		Metadata:     meta,
	}
}

func taskFromSnapshot(s *TaskSnapshot) *Task {
	t := &Task{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Stage:       s.Stage,
		CreatedAt:   s.CreatedAt,
		status:      s.Status,
		updatedAt:   s.UpdatedAt,
		assignedTo:  s.AssignedTo,
		metadata:    make(map[string]any, len(s.Metadata)),
	}
	if s.CompletedAt != nil {
		c := *s.CompletedAt
		t.completedAt = &c
	}
	t.dependencies = append([]string(nil), s.Dependencies...)
	t.artifacts = append([]string(nil), s.Artifacts...)
	for k, v := range s.Metadata {
		t.metadata[k] = v
	}
	return t
}

// Decision is an ordered project decision record.
type Decision struct {
	Decision  string
	MadeBy    stage.Role
	Rationale string
	Timestamp time.Time
}

// ClientFeedback is an ordered client feedback record.
type ClientFeedback struct {
	Text      string
	Stage     stage.Stage
	Timestamp time.Time
}

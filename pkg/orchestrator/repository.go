package orchestrator

import "context"

// ProjectDescriptor is the external record a ProjectRepository resolves
// a project id into (spec §6).
type ProjectDescriptor struct {
	ID              string
	Name            string
	Requirements    string
	LLMConfig       map[string]any
	OutputDirectory string
}

// ProjectRepository is an input interface the core consumes (spec §6):
// it never persists projects itself, only reads the descriptor needed to
// start or resume a workflow from a host-owned store.
type ProjectRepository interface {
	LoadProject(ctx context.Context, id string) (ProjectDescriptor, error)
}

// StaticRepository is an in-memory ProjectRepository, useful for the
// demonstration CLI and tests where project records do not come from an
// external store.
type StaticRepository struct {
	projects map[string]ProjectDescriptor
}

// NewStaticRepository constructs a StaticRepository seeded with descriptors.
func NewStaticRepository(descriptors ...ProjectDescriptor) *StaticRepository {
	r := &StaticRepository{projects: make(map[string]ProjectDescriptor, len(descriptors))}
	for _, d := range descriptors {
		r.projects[d.ID] = d
	}
	return r
}

func (r *StaticRepository) LoadProject(_ context.Context, id string) (ProjectDescriptor, error) {
	d, ok := r.projects[id]
	if !ok {
		return ProjectDescriptor{}, errProjectNotFound(id)
	}
	return d, nil
}

type projectNotFoundError string

func (e projectNotFoundError) Error() string { return "orchestrator: unknown project " + string(e) }

func errProjectNotFound(id string) error { return projectNotFoundError(id) }

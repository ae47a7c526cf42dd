// Package stage defines the workflow pipeline's stage, task-status, and
// agent-role enumerations and the total order over stages.
package stage

// Stage is a discrete phase of the workflow pipeline.
type Stage string

const (
	Initial             Stage = "INITIAL"
	RequirementsAnalysis Stage = "REQUIREMENTS_ANALYSIS"
	ArchitectureDesign   Stage = "ARCHITECTURE_DESIGN"
	UIUXDesign           Stage = "UI_UX_DESIGN"
	Implementation       Stage = "IMPLEMENTATION"
	Testing              Stage = "TESTING"
	QualityAssurance     Stage = "QUALITY_ASSURANCE"
	Completed            Stage = "COMPLETED"
	Failed               Stage = "FAILED"
)

// order is the canonical total order of the main pipeline, excluding the
// FAILED sink which is reachable from any stage.
var order = []Stage{
	Initial,
	RequirementsAnalysis,
	ArchitectureDesign,
	UIUXDesign,
	Implementation,
	Testing,
	QualityAssurance,
	Completed,
}

// Index returns the stage's position in the canonical order, or -1 for
// Failed (which has no position: it is an alternate terminal reachable
// from any stage, not a member of the forward sequence) or an unknown
// stage value.
func Index(s Stage) int {
	for i, o := range order {
		if o == s {
			return i
		}
	}
	return -1
}

// Next returns the stage immediately following s in the canonical order,
// and false if s is the last stage or not part of the order (including
// Failed).
func Next(s Stage) (Stage, bool) {
	i := Index(s)
	if i < 0 || i+1 >= len(order) {
		return "", false
	}
	return order[i+1], true
}

// IsAdjacent reports whether to is either Failed (always a valid jump) or
// the stage immediately following from in the canonical order.
func IsAdjacent(from, to Stage) bool {
	if to == Failed {
		return true
	}
	next, ok := Next(from)
	return ok && next == to
}

// Less reports whether a precedes b in the canonical order. Failed and any
// unrecognized stage compare as greater than every ordered stage, so that
// "did we reach at least stage X" checks behave sensibly once a workflow
// has terminated.
func Less(a, b Stage) bool {
	ia, ib := Index(a), Index(b)
	if ia >= 0 && ib >= 0 {
		return ia < ib
	}
	if ia >= 0 {
		return true
	}
	return false
}

// AllStages returns the canonical order, excluding Failed.
func AllStages() []Stage {
	out := make([]Stage, len(order))
	copy(out, order)
	return out
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskReview     TaskStatus = "REVIEW"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskBlocked    TaskStatus = "BLOCKED"
)

// Role is the closed set of agent roles.
type Role string

const (
	ProjectManager      Role = "PROJECT_MANAGER"
	RequirementsAnalyst Role = "REQUIREMENTS_ANALYST"
	Architect           Role = "ARCHITECT"
	UXUIDesigner        Role = "UXUI_DESIGNER"
	Developer           Role = "DEVELOPER"
	TestEngineer        Role = "TEST_ENGINEER"
	QualityExpert       Role = "QUALITY_EXPERT"
)

// AllRoles returns the seven roles in a fixed deterministic order, used by
// SEQUENTIAL dispatch.
func AllRoles() []Role {
	return []Role{
		ProjectManager,
		RequirementsAnalyst,
		Architect,
		UXUIDesigner,
		Developer,
		TestEngineer,
		QualityExpert,
	}
}

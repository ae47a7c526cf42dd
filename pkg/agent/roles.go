package agent

import (
	"log/slog"

	"github.com/kadirpekel/orchestrator/pkg/bus"
	"github.com/kadirpekel/orchestrator/pkg/cache"
	"github.com/kadirpekel/orchestrator/pkg/llm"
	"github.com/kadirpekel/orchestrator/pkg/retry"
	"github.com/kadirpekel/orchestrator/pkg/stage"
	"github.com/kadirpekel/orchestrator/pkg/state"
)

// Deps bundles the shared collaborators every concrete role agent needs,
// so constructing the full seven-agent roster reads as a flat list
// rather than repeating five parameters seven times.
type Deps struct {
	Bus       *bus.Bus
	State     *state.ProjectState
	Generator llm.Generator
	Cache     *cache.Cache
	Retry     *retry.Controller
	Logger    *slog.Logger
}

func (d Deps) config(role stage.Role, systemPrompt string, capabilities []string, stages []stage.Stage) Config {
	return Config{
		Role:              role,
		SystemPrompt:      systemPrompt,
		Capabilities:      capabilities,
		ResponsibleStages: stages,
		DispatchStages:    stages,
		Bus:               d.Bus,
		State:             d.State,
		Generator:         d.Generator,
		Cache:             d.Cache,
		Retry:             d.Retry,
		Logger:            d.Logger,
	}
}

// NewProjectManager builds the PROJECT_MANAGER agent: responsible for
// REQUIREMENTS_ANALYSIS, where it records a kickoff decision and seeds
// the first task rather than producing a document itself. It has no
// DispatchStages: its entire contribution happens in OnStage below, so a
// direct stage dispatch would only spend a Generator call and a cache
// slot on output nothing ever reads.
func NewProjectManager(d Deps) *Agent {
	cfg := d.config(stage.ProjectManager,
		"You are the project manager. Summarize project intent and kick off requirements analysis.",
		[]string{"kickoff", "task_seeding"},
		[]stage.Stage{stage.RequirementsAnalysis},
	)
	cfg.DispatchStages = []stage.Stage{}
	cfg.OnStage = func(a *Agent, s stage.Stage) {
		a.state.AddDecision("Kick off requirements analysis", stage.ProjectManager, "workflow entered "+string(s))
		task := state.NewTask(
			"Gather requirements",
			"Produce a requirements document from the project description: "+a.state.Description,
			stage.RequirementsAnalysis,
		)
		a.state.AddTask(task)
	}
	return New(cfg)
}

// NewRequirementsAnalyst builds the REQUIREMENTS_ANALYST agent: writes
// the requirements bucket and artifacts["requirements_doc"].
func NewRequirementsAnalyst(d Deps) *Agent {
	cfg := d.config(stage.RequirementsAnalyst,
		"You are the requirements analyst. Turn project intent into a concrete requirements document.",
		[]string{"requirements_analysis"},
		[]stage.Stage{stage.RequirementsAnalysis},
	)
	cfg.Apply = func(a *Agent, task *state.Task, result llm.Result) {
		a.state.RequirementsSet("document", result.Content)
		a.state.AddArtifact(ArtifactRequirementsDoc, result.Content)
		task.AddArtifact(ArtifactRequirementsDoc)
	}
	return New(cfg)
}

// NewArchitect builds the ARCHITECT agent: writes the architecture
// bucket and artifacts["architecture_doc"].
func NewArchitect(d Deps) *Agent {
	cfg := d.config(stage.Architect,
		"You are the software architect. Design a system architecture satisfying the recorded requirements.",
		[]string{"architecture_design"},
		[]stage.Stage{stage.ArchitectureDesign},
	)
	cfg.Apply = func(a *Agent, task *state.Task, result llm.Result) {
		a.state.ArchitectureSet("document", result.Content)
		a.state.AddArtifact(ArtifactArchitectureDoc, result.Content)
		task.AddArtifact(ArtifactArchitectureDoc)
	}
	return New(cfg)
}

// NewUXUIDesigner builds the UXUI_DESIGNER agent: writes the design
// bucket and artifacts["ui_designs"].
func NewUXUIDesigner(d Deps) *Agent {
	cfg := d.config(stage.UXUIDesigner,
		"You are the UX/UI designer. Produce interface designs consistent with the recorded architecture.",
		[]string{"ui_design"},
		[]stage.Stage{stage.UIUXDesign},
	)
	cfg.Apply = func(a *Agent, task *state.Task, result llm.Result) {
		a.state.DesignSet("document", result.Content)
		a.state.AddArtifact(ArtifactUIDesigns, result.Content)
		task.AddArtifact(ArtifactUIDesigns)
	}
	return New(cfg)
}

// NewDeveloper builds the DEVELOPER agent: responsible for
// IMPLEMENTATION, and reused as the repair agent inside the TESTING and
// QUALITY_ASSURANCE refinement loops. Writes the implementation_plan
// bucket, artifacts["source_code"], and metadata["development_complete"].
func NewDeveloper(d Deps) *Agent {
	cfg := d.config(stage.Developer,
		"You are the developer. Implement the system described by the recorded architecture and design.",
		[]string{"implementation", "repair"},
		[]stage.Stage{stage.Implementation},
	)
	cfg.Apply = func(a *Agent, task *state.Task, result llm.Result) {
		a.state.ImplementationPlanSet("summary", result.Content)
		a.state.AddArtifact(ArtifactSourceCode, result.Content)
		task.AddArtifact(ArtifactSourceCode)
		a.state.MetadataSet(MetadataDevelopmentComplete, true)
	}
	return New(cfg)
}

// NewTestEngineer builds the TEST_ENGINEER agent: writes
// artifacts["test_code"] and the mandatory artifacts["test_results"]
// success-flag contract the orchestrator reads to drive the TESTING
// refinement loop.
func NewTestEngineer(d Deps) *Agent {
	cfg := d.config(stage.TestEngineer,
		"You are the test engineer. Write and run tests against the implementation and report failures plainly.",
		[]string{"testing"},
		[]stage.Stage{stage.Testing},
	)
	cfg.Apply = func(a *Agent, task *state.Task, result llm.Result) {
		a.state.AddArtifact(ArtifactTestCode, result.Content)
		task.AddArtifact(ArtifactTestCode)

		tr := deriveTestResults(result.Content)
		a.state.AddArtifact(ArtifactTestResults, tr)
		task.AddArtifact(ArtifactTestResults)
	}
	return New(cfg)
}

// NewQualityExpert builds the QUALITY_EXPERT agent: writes
// artifacts["qa_report"] and the mandatory artifacts["qa_results"]
// success-flag contract the orchestrator reads to drive the
// QUALITY_ASSURANCE refinement loop.
func NewQualityExpert(d Deps) *Agent {
	cfg := d.config(stage.QualityExpert,
		"You are the quality expert. Review the implementation against requirements and architecture and flag issues plainly.",
		[]string{"quality_assurance"},
		[]stage.Stage{stage.QualityAssurance},
	)
	cfg.Apply = func(a *Agent, task *state.Task, result llm.Result) {
		a.state.AddArtifact(ArtifactQAReport, result.Content)
		task.AddArtifact(ArtifactQAReport)

		qr := deriveQAResults(result.Content)
		a.state.AddArtifact(ArtifactQAResults, qr)
		task.AddArtifact(ArtifactQAResults)
	}
	return New(cfg)
}

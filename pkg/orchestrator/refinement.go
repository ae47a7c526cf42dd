package orchestrator

import (
	"context"
	"fmt"

	"github.com/kadirpekel/orchestrator/pkg/agent"
	"github.com/kadirpekel/orchestrator/pkg/stage"
	"github.com/kadirpekel/orchestrator/pkg/state"
)

// runRefinementLoop drives the bounded TESTING/QUALITY_ASSURANCE loop
// (spec §4.8): dispatch, check the stage's mandatory success-flag
// artifact, and if it is not satisfied, have the DEVELOPER agent repair
// and try again - up to Config.MaxIterations attempts. Exhausting every
// attempt without success is a stage failure, not a silent pass-through:
// the caller's err check treats it exactly like any other stage error.
func (o *Orchestrator) runRefinementLoop(ctx context.Context, s stage.Stage, dispatch func(context.Context) error) error {
	for iteration := 1; iteration <= o.config.MaxIterations; iteration++ {
		if err := o.withStageTimeout(ctx, dispatch); err != nil {
			return err
		}

		satisfied, err := o.refinementSatisfied(s)
		if err != nil {
			return err
		}
		if satisfied {
			return nil
		}

		o.log.Warn("orchestrator: refinement loop iteration did not satisfy success contract",
			"stage", s, "iteration", iteration, "max_iterations", o.config.MaxIterations)

		if iteration == o.config.MaxIterations {
			return fmt.Errorf("orchestrator: %s exhausted %d refinement iterations without success", s, o.config.MaxIterations)
		}
		if err := o.repair(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// refinementSatisfied reads the stage's mandatory success-flag artifact
// from Project State. Any stage other than TESTING/QUALITY_ASSURANCE is
// trivially satisfied, since it is never routed through this loop.
func (o *Orchestrator) refinementSatisfied(s stage.Stage) (bool, error) {
	switch s {
	case stage.Testing:
		v, ok := o.state.Artifact(agent.ArtifactTestResults)
		if !ok {
			return false, fmt.Errorf("orchestrator: %s produced no %s artifact", s, agent.ArtifactTestResults)
		}
		tr, ok := v.(agent.TestResults)
		if !ok {
			return false, fmt.Errorf("orchestrator: %s artifact has unexpected type %T", agent.ArtifactTestResults, v)
		}
		return tr.AllPassed, nil
	case stage.QualityAssurance:
		v, ok := o.state.Artifact(agent.ArtifactQAResults)
		if !ok {
			return false, fmt.Errorf("orchestrator: %s produced no %s artifact", s, agent.ArtifactQAResults)
		}
		qr, ok := v.(agent.QAResults)
		if !ok {
			return false, fmt.Errorf("orchestrator: %s artifact has unexpected type %T", agent.ArtifactQAResults, v)
		}
		return qr.Approved, nil
	default:
		return true, nil
	}
}

// repair re-invokes the DEVELOPER role - reused per spec §4.4 as the
// refinement loop's repair agent - with a task describing what the
// failed stage found, so its next IMPLEMENTATION output can be re-tested
// or re-reviewed.
func (o *Orchestrator) repair(ctx context.Context, s stage.Stage) error {
	dev, ok := o.registry.Get(stage.Developer)
	if !ok {
		return fmt.Errorf("orchestrator: no developer agent registered to repair %s findings", s)
	}

	task := state.NewTask(
		"Repair after "+string(s),
		"Address the issues "+string(s)+" found in the current implementation.",
		stage.Implementation,
	)

	return o.invokeAgentTask(ctx, dev, task)
}

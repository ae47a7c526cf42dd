package agent

import "strings"

// Artifact keys written by the seven concrete roles, per spec §4.4.
const (
	ArtifactRequirementsDoc = "requirements_doc"
	ArtifactArchitectureDoc = "architecture_doc"
	ArtifactUIDesigns       = "ui_designs"
	ArtifactSourceCode      = "source_code"
	ArtifactTestCode        = "test_code"
	ArtifactTestResults     = "test_results"
	ArtifactQAReport        = "qa_report"
	ArtifactQAResults       = "qa_results"
)

// MetadataDevelopmentComplete is the metadata key the Developer role sets
// once implementation output has been written.
const MetadataDevelopmentComplete = "development_complete"

// TestResults is the mandatory success-flag contract the TESTING stage
// writes to artifacts["test_results"] (spec §9 open question resolution):
// the Orchestrator reads this, not a free-text summary, to decide whether
// the TESTING refinement loop has converged.
type TestResults struct {
	AllPassed bool
	Failures  int
}

// QAResults is the mandatory success-flag contract the QUALITY_ASSURANCE
// stage writes to artifacts["qa_results"].
type QAResults struct {
	Approved bool
	Issues   []string
}

// deriveTestResults extracts a TestResults from generated test-run
// narrative. A Generator (stub, echo, or a real provider) is expected to
// describe failures in prose; this counts "fail" occurrences as a simple,
// deterministic oracle - deterministic specifically so that a scripted
// StubGenerator response can drive the TESTING refinement loop in tests
// by including or omitting the word.
func deriveTestResults(content string) TestResults {
	failures := strings.Count(strings.ToLower(content), "fail")
	return TestResults{AllPassed: failures == 0, Failures: failures}
}

// deriveQAResults extracts a QAResults from generated review narrative,
// collecting lines marked "issue:" as the issue list. Approved is false
// whenever at least one such line is present.
func deriveQAResults(content string) QAResults {
	var issues []string
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), "issue:") {
			issues = append(issues, strings.TrimSpace(line))
		}
	}
	return QAResults{Approved: len(issues) == 0, Issues: issues}
}

package orchestrator

import (
	"time"

	"github.com/kadirpekel/orchestrator/pkg/progress"
	"github.com/kadirpekel/orchestrator/pkg/stage"
	"github.com/kadirpekel/orchestrator/pkg/state"
)

// Summary is the accompanying record a terminal workflow outcome carries
// (spec §6): {total_tokens, cache_hit_rate, stage_durations, errors}.
type Summary struct {
	TotalTokens    int
	CacheHitRate   float64
	StageDurations map[stage.Stage]time.Duration
	Errors         []progress.ErrorEntry
}

// Result is what Run/Resume returns: the final outcome, a snapshot of
// Project State at termination, and the summary record.
type Result struct {
	Outcome progress.Outcome
	State   *state.Snapshot
	Summary Summary
}

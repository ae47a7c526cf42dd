package orchestrator

import (
	"context"
	"errors"

	"github.com/kadirpekel/orchestrator/pkg/checkpoint"
	"github.com/kadirpekel/orchestrator/pkg/llm"
)

// classifyErrorKind labels a stage failure for progress events and
// metrics. A Generator failure carries its own llm.Kind; everything else
// collapses to a small fixed set of orchestrator-level kinds.
func classifyErrorKind(err error) string {
	var lerr *llm.Error
	if errors.As(err, &lerr) {
		return string(lerr.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "Canceled"
	}
	if errors.Is(err, checkpoint.ErrCorrupted) {
		return "CheckpointCorrupted"
	}
	return "Unknown"
}

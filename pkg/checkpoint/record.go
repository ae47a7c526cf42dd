// Package checkpoint implements the Checkpoint Store (spec §4.6):
// directory-per-workflow, atomically-written, versioned snapshots of
// Project State with latest-sequence-wins recovery. Grounded on the
// schema-versioned, builder-style State record of
// kadirpekel-hector/pkg/checkpoint/state.go, retargeted from hector's
// session-service-backed storage (pkg/checkpoint/storage.go) to the
// spec's mandatory plain-file-per-sequence layout.
package checkpoint

import (
	"time"

	"github.com/kadirpekel/orchestrator/pkg/stage"
	"github.com/kadirpekel/orchestrator/pkg/state"
)

// CurrentSchemaVersion is the schema version this build writes and reads.
// A record with a different version is treated as CheckpointCorrupted on
// load: the design note in spec §9 is explicit that the engine must not
// guess migrations.
const CurrentSchemaVersion = 1

// Record is a single checkpoint: a full Project State snapshot plus stage
// history and metadata, written under a monotonically increasing
// per-workflow sequence number.
type Record struct {
	SchemaVersion int
	WorkflowID    string
	Sequence      int
	CurrentStage  stage.Stage
	StageHistory  []stage.Stage
	State         *state.Snapshot
	Metadata      map[string]any
	Reason        string
	CreatedAt     time.Time
}

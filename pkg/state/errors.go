package state

import "errors"

// ErrInvalidStageTransition is returned by AdvanceStage when the requested
// stage is neither the immediate successor of the current stage nor
// Failed.
var ErrInvalidStageTransition = errors.New("state: invalid stage transition")

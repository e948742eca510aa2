package terrain

import (
	"errors"
	"fmt"
)

// ErrInvalidRaster is matched by every PreconditionError.
var ErrInvalidRaster = errors.New("terrain: invalid input raster")

// PreconditionError reports an input that fails validation before any stage runs.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	if e.Reason == "" {
		return "precondition failed: invalid input raster"
	}
	return "precondition failed: invalid input raster: " + e.Reason
}

func (e *PreconditionError) Unwrap() error { return ErrInvalidRaster }

// StageExecutionError wraps a collaborator failure with the identity of the
// stage that issued the call. The pipeline never retries.
type StageExecutionError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *StageExecutionError) Error() string {
	if e.Stage != "" && e.Stage != string(e.Kind) {
		return fmt.Sprintf("stage %s (%s) failed: %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Kind, e.Err)
}

func (e *StageExecutionError) Unwrap() error { return e.Err }

// SinkWriteError reports a failed import into one database table.
type SinkWriteError struct {
	Table string
	Err   error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("import into %q failed: %v", e.Table, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

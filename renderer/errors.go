package renderer

import "errors"

var (
	ErrNoTracers          = errors.New("renderer: no tracers attached")
	ErrSceneNotDefined    = errors.New("renderer: no scene defined")
	ErrCameraNotDefined   = errors.New("renderer: no camera defined")
	ErrInterrupted        = errors.New("renderer: interrupted while rendering")
	ErrCheckpointMismatch = errors.New("renderer: checkpoint does not match the current render setup")
	ErrInvalidCheckpoint  = errors.New("renderer: invalid checkpoint data")
)

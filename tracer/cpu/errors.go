package cpu

import "errors"

var (
	ErrNoSceneData   = errors.New("cpu tracer: no scene data uploaded")
	ErrInvalidBlock  = errors.New("cpu tracer: block request does not fit the frame")
	ErrTracerBusy    = errors.New("cpu tracer: worker did not accept block request")
	ErrTracerClosed  = errors.New("cpu tracer: tracer is not running")
	ErrInvalidUpdate = errors.New("cpu tracer: unsupported update")
)

package device

import "errors"

var (
	ErrOutOfDeviceMemory = errors.New("device: allocation exceeds the device memory budget")
	ErrBufferReleased    = errors.New("device: buffer has been released")
	ErrInvalidFrameSize  = errors.New("device: invalid frame size")
	ErrInvalidLayout     = errors.New("device: buffer size is not a multiple of the element stride")
)

package tracer

import (
	"time"

	"github.com/lumen-rt/lumen/tracer/kernel"
)

type UpdateType uint8

// Supported update types.
const (
	// Replace the scene (*kernel.Scene).
	UpdateScene UpdateType = iota

	// Replace kernel tunables (kernel.Options).
	UpdateKernelOptions

	// Replace display settings (kernel.Display).
	UpdateDisplay
)

func (u UpdateType) String() string {
	switch u {
	case UpdateScene:
		return "scene"
	case UpdateKernelOptions:
		return "kernel options"
	case UpdateDisplay:
		return "display"
	}
	return "unknown"
}

// A unit of work that is processed by a tracer: trace one sample for every
// pixel in rows [BlockY, BlockY+BlockH) and resolve them into the frame
// buffer.
type BlockRequest struct {
	// The frame being rendered. Accumulation state is shared by all
	// tracers; each tracer only touches its own rows.
	Frame *kernel.Frame

	// The RGBA8 output buffer for the whole frame.
	FrameBuffer []uint8

	// Block start row and height.
	BlockY uint32
	BlockH uint32

	// A channel to signal on block completion with the number of completed rows.
	DoneChan chan<- uint32

	// A channel to signal if an error occurs.
	ErrChan chan<- error
}

// Tracer statistics.
type Stats struct {
	// The rendered block height.
	BlockH uint32

	// Time spent applying pending updates before the last block.
	UpdateTime time.Duration

	// Time spent rendering the last block.
	RenderTime time.Duration
}

type Tracer interface {
	// Get tracer id.
	Id() string

	// Get the computation speed estimate relative to the other tracers.
	Speed() uint32

	// Initialize tracer.
	Init() error

	// Enqueue block request.
	Enqueue(BlockRequest)

	// Append a change to the tracer's update buffer. Updates are applied
	// before the next block is rendered; for each update type only the
	// latest value is kept.
	Update(UpdateType, interface{})

	// Retrieve last frame statistics.
	Stats() *Stats

	// Shutdown and cleanup tracer.
	Close()
}

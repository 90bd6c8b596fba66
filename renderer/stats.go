package renderer

import "time"

type TracerStat struct {
	// The tracer id.
	Id string

	// The block height and the percentage of total frame area it represents.
	BlockH       uint32
	FramePercent float32

	// Render time for assigned block
	RenderTime time.Duration
}

type FrameStats struct {
	// Individual tracer stats.
	Tracers []TracerStat

	// The number of samples per pixel accumulated so far.
	Samples uint32

	// Total render time for the last frame.
	RenderTime time.Duration

	// Total time spent rendering since the last accumulation reset.
	AccumulatedTime time.Duration
}

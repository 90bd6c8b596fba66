package renderer

import (
	"fmt"

	"github.com/lumen-rt/lumen/tracer/device"
	"github.com/lumen-rt/lumen/tracer/kernel"
)

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Number of progressive frames to accumulate for still renders. 0 means
	// render until interrupted.
	SamplesPerPixel uint32

	// Maximum number of path segments.
	NumBounces uint32

	// Min bounces before applying russian roulette for path elimination; 0
	// disables russian roulette.
	MinBouncesForRR uint32

	// Exposure and operator for tonemapping.
	Exposure   float32
	ToneMapper kernel.ToneMapper

	// Number of tracers and goroutines per tracer (0 = one per cpu).
	NumTracers       int
	WorkersPerTracer int

	// Device memory budget in bytes (0 = unlimited).
	DeviceMemoryBudget int64
}

// Get the default renderer options.
func DefaultOptions() Options {
	kOpts := kernel.DefaultOptions()
	display := kernel.DefaultDisplay()
	return Options{
		FrameW:             512,
		FrameH:             512,
		SamplesPerPixel:    16,
		NumBounces:         kOpts.MaxBounces,
		MinBouncesForRR:    kOpts.MinBouncesForRR,
		Exposure:           display.Exposure,
		ToneMapper:         display.ToneMapper,
		NumTracers:         1,
		DeviceMemoryBudget: device.DefaultMemoryBudget,
	}
}

// Check options for errors.
func (o *Options) Validate() error {
	if o.FrameW == 0 || o.FrameH == 0 {
		return fmt.Errorf("renderer: invalid frame size %dx%d", o.FrameW, o.FrameH)
	}
	if o.NumBounces == 0 {
		return fmt.Errorf("renderer: number of bounces must be at least 1")
	}
	if o.Exposure < 0 {
		return fmt.Errorf("renderer: exposure must not be negative; got %v", o.Exposure)
	}
	return nil
}

// Get the kernel tunables.
func (o *Options) KernelOptions() kernel.Options {
	return kernel.Options{
		MaxBounces:      o.NumBounces,
		MinBouncesForRR: o.MinBouncesForRR,
	}
}

// Get the display settings.
func (o *Options) Display() kernel.Display {
	return kernel.Display{
		Exposure:   o.Exposure,
		ToneMapper: o.ToneMapper,
	}
}

package cpu

import (
	"time"

	"github.com/lumen-rt/lumen/tracer"
	"github.com/lumen-rt/lumen/tracer/kernel"
)

// An alias for functions that can be used as part of the rendering pipeline.
type PipelineStage func(tr *Tracer, blockReq *tracer.BlockRequest) (time.Duration, error)

// The list of pluggable stages that are used to render a block.
type Pipeline struct {
	// Reset the tracer state. This stage is executed for the first frame
	// after the accumulation has been reset.
	Reset PipelineStage

	// Trace one sample per pixel and blend it into the accumulation buffer.
	Integrator PipelineStage

	// A set of post-processing stages that are executed after the
	// integrator.
	PostProcess []PipelineStage
}

// Get the default pipeline: clear, path trace and tone map.
func DefaultPipeline() *Pipeline {
	return &Pipeline{
		Reset:      ClearAccumulator(),
		Integrator: PathTracer(),
		PostProcess: []PipelineStage{
			ToneMap(),
		},
	}
}

// Zero the accumulation buffer rows covered by the block.
func ClearAccumulator() PipelineStage {
	return func(tr *Tracer, blockReq *tracer.BlockRequest) (time.Duration, error) {
		start := time.Now()
		frame := blockReq.Frame
		first := blockReq.BlockY * frame.Width
		last := (blockReq.BlockY + blockReq.BlockH) * frame.Width
		clear(frame.Accum[first:last])
		return time.Since(start), nil
	}
}

// Trace the block rows using the progressive path tracing kernel.
func PathTracer() PipelineStage {
	return func(tr *Tracer, blockReq *tracer.BlockRequest) (time.Duration, error) {
		start := time.Now()
		kernel.RenderRows(tr.scene, blockReq.Frame, tr.options, blockReq.BlockY, blockReq.BlockY+blockReq.BlockH, tr.numWorkers)
		return time.Since(start), nil
	}
}

// Tone map and gamma correct the block rows into the RGBA8 frame buffer.
func ToneMap() PipelineStage {
	return func(tr *Tracer, blockReq *tracer.BlockRequest) (time.Duration, error) {
		start := time.Now()
		frame := blockReq.Frame
		fb := blockReq.FrameBuffer
		display := tr.display
		kernel.Dispatch(frame.Width, frame.Height, blockReq.BlockY, blockReq.BlockY+blockReq.BlockH, tr.numWorkers, func(x, y uint32) {
			index := y*frame.Width + x
			c := display.Resolve(frame.Accum[index].Vec3())
			offset := index * 4
			fb[offset] = c[0]
			fb[offset+1] = c[1]
			fb[offset+2] = c[2]
			fb[offset+3] = 255
		})
		return time.Since(start), nil
	}
}

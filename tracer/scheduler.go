package tracer

import (
	"math"

	"github.com/lumen-rt/lumen/tracer/kernel"
)

// The BlockScheduler interface is implemented by all block scheduling algorithms.
type BlockScheduler interface {
	// Split frame into blocks of variable height and assign them to the pool
	// of tracers. Block heights are multiples of the kernel workgroup size
	// (except the last block which ends at the frame edge) so that
	// workgroups never straddle two tracers. A tracer may be assigned 0 rows.
	//
	// This function returns the block height assignment for each tracer
	// in the input list.
	Schedule(tracers []Tracer, frameH uint32) []uint32
}

// The naive scheduler splits the frame using the tracer speed estimates.
type naiveScheduler struct {
	blockAssignment []uint32
}

// Create a scheduler that splits work based on tracer speed estimates.
func NaiveScheduler() BlockScheduler {
	return &naiveScheduler{}
}

func (sch *naiveScheduler) Schedule(tracers []Tracer, frameH uint32) []uint32 {
	if len(sch.blockAssignment) != len(tracers) {
		sch.blockAssignment = make([]uint32, len(tracers))
	}

	weights := make([]float64, len(tracers))
	for idx, tr := range tracers {
		weights[idx] = float64(tr.Speed())
	}
	assignRows(sch.blockAssignment, weights, frameH)
	return sch.blockAssignment
}

// The perfect scheduler assumes that the volume of tracing work between two
// subsequent frames is approximately the same.
type perfectScheduler struct {
	naive           naiveScheduler
	blockAssignment []uint32
}

// Create a scheduler that splits work based on the throughput of each tracer
// in the previous frame.
func PerfectScheduler() BlockScheduler {
	return &perfectScheduler{}
}

// When previous frame information is available the scheduler uses the
// following formula for estimating the workload for tracer w and frame i+1:
// w_i, f_i+1 = (blockH,w_i / time,w_i) / Σ(blockH_i-1 / time,i-1)
func (sch *perfectScheduler) Schedule(tracers []Tracer, frameH uint32) []uint32 {
	// If this is the first time we try to schedule or the number of tracers
	// has changed we need to reset the block assignments
	if len(sch.blockAssignment) != len(tracers) {
		sch.blockAssignment = make([]uint32, len(tracers))
		copy(sch.blockAssignment, sch.naive.Schedule(tracers, frameH))
		return sch.blockAssignment
	}

	// Use last frame statistics. Tracers that were idle in the last frame
	// have no throughput data so fall back to the speed estimates.
	weights := make([]float64, len(tracers))
	for idx, tr := range tracers {
		stats := tr.Stats()
		if stats.BlockH == 0 || stats.RenderTime <= 0 {
			copy(sch.blockAssignment, sch.naive.Schedule(tracers, frameH))
			return sch.blockAssignment
		}
		weights[idx] = float64(stats.BlockH) / float64(stats.RenderTime)
	}
	assignRows(sch.blockAssignment, weights, frameH)
	return sch.blockAssignment
}

// Distribute frame rows in workgroup-sized units proportionally to weights.
// Units lost to rounding go to the first tracer.
func assignRows(out []uint32, weights []float64, frameH uint32) {
	if len(out) == 0 {
		return
	}

	units := (frameH + kernel.WorkgroupSize - 1) / kernel.WorkgroupSize
	var total float64
	for _, w := range weights {
		total += w
	}

	var scheduledUnits uint32
	for idx := range out {
		out[idx] = 0
		if total > 0 {
			out[idx] = uint32(math.Floor(weights[idx] / total * float64(units)))
		}
		scheduledUnits += out[idx]
	}
	out[0] += units - scheduledUnits

	// Convert to rows; the block that reaches past the frame edge is clipped
	var scheduledRows uint32
	for idx := range out {
		rows := out[idx] * kernel.WorkgroupSize
		if scheduledRows+rows > frameH {
			rows = frameH - scheduledRows
		}
		out[idx] = rows
		scheduledRows += rows
	}
}

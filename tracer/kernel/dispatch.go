package kernel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Get the number of workgroups needed to cover a width x height frame.
func GroupCount(width, height uint32) (uint32, uint32) {
	return (width + WorkgroupSize - 1) / WorkgroupSize, (height + WorkgroupSize - 1) / WorkgroupSize
}

// Invoke fn once for every pixel of rows [rowStart, rowEnd) of a frame. The
// rows are covered by whole workgroups of WorkgroupSize x WorkgroupSize
// invocations which are handed out to numWorkers goroutines; invocations
// outside the frame or the row range return without calling fn. If
// numWorkers <= 0 one worker per CPU is used.
func Dispatch(width, height, rowStart, rowEnd uint32, numWorkers int, fn func(x, y uint32)) {
	if rowEnd > height {
		rowEnd = height
	}
	if width == 0 || rowStart >= rowEnd {
		return
	}

	groupsX, _ := GroupCount(width, height)
	firstGroupY := rowStart / WorkgroupSize
	lastGroupY := (rowEnd + WorkgroupSize - 1) / WorkgroupSize
	totalGroups := int64(groupsX * (lastGroupY - firstGroupY))

	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if int64(numWorkers) > totalGroups {
		numWorkers = int(totalGroups)
	}

	var nextGroup int64
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for worker := 0; worker < numWorkers; worker++ {
		go func() {
			defer wg.Done()
			for {
				group := atomic.AddInt64(&nextGroup, 1) - 1
				if group >= totalGroups {
					return
				}

				baseX := uint32(group%int64(groupsX)) * WorkgroupSize
				baseY := (firstGroupY + uint32(group/int64(groupsX))) * WorkgroupSize
				for localY := uint32(0); localY < WorkgroupSize; localY++ {
					y := baseY + localY
					if y < rowStart || y >= rowEnd {
						continue
					}
					for localX := uint32(0); localX < WorkgroupSize; localX++ {
						x := baseX + localX
						if x >= width {
							break
						}
						fn(x, y)
					}
				}
			}
		}()
	}
	wg.Wait()
}

// Trace one sample for every pixel in rows [rowStart, rowEnd) and blend it
// into the frame accumulation buffer.
func RenderRows(sc *Scene, frame *Frame, opts Options, rowStart, rowEnd uint32, numWorkers int) {
	Dispatch(frame.Width, frame.Height, rowStart, rowEnd, numWorkers, func(x, y uint32) {
		TracePixel(sc, frame, opts, x, y)
	})
}

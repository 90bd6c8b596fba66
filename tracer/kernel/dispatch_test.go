package kernel

import (
	"sync/atomic"
	"testing"
)

func TestGroupCount(t *testing.T) {
	type spec struct {
		width, height uint32
		expX, expY    uint32
	}
	specs := []spec{
		{16, 16, 1, 1},
		{17, 16, 2, 1},
		{1920, 1080, 120, 68},
		{1, 1, 1, 1},
		{0, 0, 0, 0},
	}
	for index, s := range specs {
		gx, gy := GroupCount(s.width, s.height)
		if gx != s.expX || gy != s.expY {
			t.Fatalf("[spec %d] expected group count to be %dx%d; got %dx%d", index, s.expX, s.expY, gx, gy)
		}
	}
}

func TestDispatchCoverage(t *testing.T) {
	type spec struct {
		width, height    uint32
		rowStart, rowEnd uint32
		workers          int
	}
	specs := []spec{
		{16, 16, 0, 16, 1},
		{17, 5, 0, 5, 3},
		{33, 40, 16, 32, 4},
		{33, 40, 7, 21, 2},
		{64, 48, 0, 100, 0},
		{10, 10, 5, 5, 2},
	}

	for index, s := range specs {
		counts := make([]int32, s.width*s.height)
		Dispatch(s.width, s.height, s.rowStart, s.rowEnd, s.workers, func(x, y uint32) {
			atomic.AddInt32(&counts[y*s.width+x], 1)
		})

		for y := uint32(0); y < s.height; y++ {
			for x := uint32(0); x < s.width; x++ {
				expCount := int32(0)
				if y >= s.rowStart && y < s.rowEnd {
					expCount = 1
				}
				if got := counts[y*s.width+x]; got != expCount {
					t.Fatalf("[spec %d] expected pixel (%d, %d) to be invoked %d time(s); got %d", index, x, y, expCount, got)
				}
			}
		}
	}
}

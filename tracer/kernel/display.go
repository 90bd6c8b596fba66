package kernel

import (
	"fmt"
	"math"

	"github.com/lumen-rt/lumen/types"
)

// Display gamma.
const Gamma float32 = 2.2

// A HDR to LDR mapping operator.
type ToneMapper uint32

const (
	Reinhard ToneMapper = iota
	ACES
)

func (tm ToneMapper) String() string {
	switch tm {
	case Reinhard:
		return "reinhard"
	case ACES:
		return "aces"
	}
	return "unknown"
}

// Parse a tone mapping operator name.
func ParseToneMapper(name string) (ToneMapper, error) {
	switch name {
	case "reinhard":
		return Reinhard, nil
	case "aces":
		return ACES, nil
	}
	return Reinhard, fmt.Errorf("unsupported tone mapping operator %q", name)
}

// Map a linear HDR value to [0, 1].
func (tm ToneMapper) Apply(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	switch tm {
	case ACES:
		// Narkowicz fit
		v = (v * (2.51*v + 0.03)) / (v*(2.43*v+0.59) + 0.14)
	default:
		v = v / (1 + v)
	}
	return clampf(v, 0, 1)
}

// Display settings for the resolve pass.
type Display struct {
	Exposure   float32
	ToneMapper ToneMapper
}

// Get default display settings.
func DefaultDisplay() Display {
	return Display{Exposure: 1.0, ToneMapper: Reinhard}
}

// Convert a linear radiance value into a display color.
func (d Display) Resolve(c types.Vec3) [3]uint8 {
	var out [3]uint8
	for i := 0; i < 3; i++ {
		v := d.ToneMapper.Apply(c[i] * d.Exposure)
		v = float32(math.Pow(float64(v), 1.0/float64(Gamma)))
		out[i] = uint8(v*255 + 0.5)
	}
	return out
}

// Resolve rows [rowStart, rowEnd) of the accumulation buffer into an RGBA8
// frame buffer.
func (d Display) ResolveRows(accum []types.Vec4, rgba []uint8, width, rowStart, rowEnd uint32) {
	for y := rowStart; y < rowEnd; y++ {
		for x := uint32(0); x < width; x++ {
			index := y*width + x
			c := d.Resolve(accum[index].Vec3())
			offset := index * 4
			rgba[offset] = c[0]
			rgba[offset+1] = c[1]
			rgba[offset+2] = c[2]
			rgba[offset+3] = 255
		}
	}
}

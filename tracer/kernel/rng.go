package kernel

// A per-invocation random stream based on the PCG hash. Each invocation owns
// its own value so no state is shared between pixels.
type Rng struct {
	state uint32
}

// Seed a stream for pixel (x, y) of the given frame.
func NewRng(x, y, frame uint32) Rng {
	return Rng{state: pcgHash(x ^ pcgHash(y^pcgHash(frame+0x9E3779B9)))}
}

// Get the next 32-bit value.
func (r *Rng) Uint32() uint32 {
	r.state = r.state*747796405 + 2891336453
	word := ((r.state >> ((r.state >> 28) + 4)) ^ r.state) * 277803737
	return (word >> 22) ^ word
}

// Get a uniform float in [0, 1).
func (r *Rng) Float() float32 {
	return float32(r.Uint32()>>8) * (1.0 / 16777216.0)
}

func pcgHash(v uint32) uint32 {
	state := v*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

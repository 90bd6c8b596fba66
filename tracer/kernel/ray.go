package kernel

import (
	"math"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/types"
)

// Direction components below this magnitude are nudged away from zero before
// inversion so the slab test never computes 0 * Inf.
const minDirComponent float32 = 1e-20

type Ray struct {
	Origin types.Vec3
	Dir    types.Vec3
	InvDir types.Vec3
}

// Create a ray. Dir is expected to be normalized.
func NewRay(origin, dir types.Vec3) Ray {
	r := Ray{Origin: origin, Dir: dir}
	for axis := 0; axis < 3; axis++ {
		d := dir[axis]
		if d >= 0 && d < minDirComponent {
			d = minDirComponent
		} else if d < 0 && d > -minDirComponent {
			d = -minDirComponent
		}
		r.InvDir[axis] = 1.0 / d
	}
	return r
}

// Get the point at distance t along the ray.
func (r Ray) At(t float32) types.Vec3 {
	return r.Origin.Add(r.Dir.Mul(t))
}

// Generate a primary ray through pixel (x, y). The sample position is
// jittered inside the pixel footprint.
func GenerateRay(cam *scene.Camera, x, y, width, height uint32, rng *Rng) Ray {
	jx := rng.Float()
	jy := rng.Float()

	tanHalfFov := float32(math.Tan(float64(cam.FOV) * math.Pi / 360.0))
	ndcX := (2.0*(float32(x)+jx)/float32(width) - 1.0) * cam.Aspect * tanHalfFov
	ndcY := (1.0 - 2.0*(float32(y)+jy)/float32(height)) * tanHalfFov

	dir := cam.Forward.Add(cam.Right.Mul(ndcX)).Add(cam.Up.Mul(ndcY)).Normalize()
	return NewRay(cam.Position, dir)
}

package scene

import (
	"math"

	"github.com/lumen-rt/lumen/types"
)

// An axis-aligned bounding box.
type AABB struct {
	Min types.Vec3
	Max types.Vec3
}

// Create an empty (inverted) bounding box that acts as the identity for Extend/Merge.
func EmptyAABB() AABB {
	return AABB{
		Min: types.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: types.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Returns true if the box encloses at least one point (min <= max on every axis).
func (b AABB) Valid() bool {
	return b.Min[0] <= b.Max[0] && b.Min[1] <= b.Max[1] && b.Min[2] <= b.Max[2]
}

// Grow the box so it includes point p.
func (b AABB) Extend(p types.Vec3) AABB {
	return AABB{
		Min: types.MinVec3(b.Min, p),
		Max: types.MaxVec3(b.Max, p),
	}
}

// Get the union of two boxes.
func (b AABB) Merge(other AABB) AABB {
	return AABB{
		Min: types.MinVec3(b.Min, other.Min),
		Max: types.MaxVec3(b.Max, other.Max),
	}
}

// Get the box side lengths.
func (b AABB) Extent() types.Vec3 {
	return b.Max.Sub(b.Min)
}

// Get box center.
func (b AABB) Center() types.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Get box surface area. Invalid boxes have zero area.
func (b AABB) SurfaceArea() float32 {
	if !b.Valid() {
		return 0
	}
	side := b.Extent()
	return 2 * (side[0]*side[1] + side[1]*side[2] + side[0]*side[2])
}

// Returns true if p lies inside the box or within epsilon of its boundary.
func (b AABB) Contains(p types.Vec3, epsilon float32) bool {
	for axis := 0; axis < 3; axis++ {
		if p[axis] < b.Min[axis]-epsilon || p[axis] > b.Max[axis]+epsilon {
			return false
		}
	}
	return true
}

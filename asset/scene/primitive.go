package scene

import "github.com/lumen-rt/lumen/types"

// A world-space triangle.
type Triangle struct {
	Vertices [3]types.Vec3
	Normals  [3]types.Vec3
	UVs      [3]types.Vec2

	MaterialIndex uint32
}

// Get the triangle bounding box.
func (t *Triangle) BBox() AABB {
	return EmptyAABB().Extend(t.Vertices[0]).Extend(t.Vertices[1]).Extend(t.Vertices[2])
}

// Get the triangle centroid.
func (t *Triangle) Centroid() types.Vec3 {
	return t.Vertices[0].Add(t.Vertices[1]).Add(t.Vertices[2]).Mul(1.0 / 3.0)
}

// Get the unnormalized geometric normal (e1 x e2); its length is twice the triangle area.
func (t *Triangle) EdgeCross() types.Vec3 {
	return t.Vertices[1].Sub(t.Vertices[0]).Cross(t.Vertices[2].Sub(t.Vertices[0]))
}

// Get the triangle area.
func (t *Triangle) Area() float32 {
	return 0.5 * t.EdgeCross().Len()
}

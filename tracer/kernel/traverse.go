package kernel

import (
	"math"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/types"
)

// The capacity of the traversal stack. Trees produced by the BVH builder are
// at most 62 levels deep so a depth-first walk never needs more entries.
const StackSize = 64

const (
	// Determinants below this value mean the ray is parallel to the triangle plane.
	detEpsilon float32 = 1e-10

	// Hits closer than this are treated as self-intersections.
	minHitDistance float32 = 1e-5

	// Used as "no distance limit".
	maxDistance float32 = math.MaxFloat32
)

// The closest intersection returned by a traversal.
type Hit struct {
	T             float32
	TriangleIndex uint32

	// Barycentric coordinates of the hit point relative to vertices 1 and 2.
	U float32
	V float32
}

type stackEntry struct {
	node   uint32
	tEntry float32
}

type traversalStats struct {
	steps    int
	overflow bool
}

// Find the closest triangle hit by ray within (0, tMax).
func Intersect(sc *Scene, ray Ray, tMax float32) (Hit, bool) {
	hit, found, _ := traverse(sc, ray, tMax, false)
	return hit, found
}

// Check whether any triangle blocks ray within (0, tMax).
func Occluded(sc *Scene, ray Ray, tMax float32) bool {
	_, found, _ := traverse(sc, ray, tMax, true)
	return found
}

func traverse(sc *Scene, ray Ray, tMax float32, anyHit bool) (Hit, bool, traversalStats) {
	var stats traversalStats
	hit := Hit{T: tMax}
	found := false

	if len(sc.Nodes) == 0 {
		return hit, false, stats
	}

	tRoot, ok := intersectAABB(&sc.Nodes[0], ray, tMax)
	if !ok {
		return hit, false, stats
	}

	var stack [StackSize]stackEntry
	stack[0] = stackEntry{node: 0, tEntry: tRoot}
	sp := 1

	for sp > 0 {
		sp--
		entry := stack[sp]

		// A closer hit was found after this node was pushed
		if entry.tEntry > hit.T {
			continue
		}
		stats.steps++

		node := &sc.Nodes[entry.node]
		if node.IsLeaf() {
			last := node.TriangleOffset + node.TriangleCount
			for triIndex := node.TriangleOffset; triIndex < last; triIndex++ {
				t, u, v, ok := intersectTriangle(&sc.Triangles[triIndex], ray)
				if !ok || t >= hit.T {
					continue
				}
				hit = Hit{T: t, TriangleIndex: triIndex, U: u, V: v}
				found = true
				if anyHit {
					return hit, true, stats
				}
			}
			continue
		}

		tLeft, hitLeft := intersectAABB(&sc.Nodes[node.Left], ray, hit.T)
		tRight, hitRight := intersectAABB(&sc.Nodes[node.Right], ray, hit.T)

		switch {
		case hitLeft && hitRight:
			if sp+2 > StackSize {
				stats.overflow = true
				continue
			}

			// Push the farther child first so the nearer one is visited next
			near := stackEntry{node: node.Left, tEntry: tLeft}
			far := stackEntry{node: node.Right, tEntry: tRight}
			if tRight < tLeft {
				near, far = far, near
			}
			stack[sp] = far
			stack[sp+1] = near
			sp += 2
		case hitLeft || hitRight:
			if sp+1 > StackSize {
				stats.overflow = true
				continue
			}
			if hitLeft {
				stack[sp] = stackEntry{node: node.Left, tEntry: tLeft}
			} else {
				stack[sp] = stackEntry{node: node.Right, tEntry: tRight}
			}
			sp++
		}
	}

	return hit, found, stats
}

// Slab test. Returns the entry distance (clamped to 0) if the ray overlaps
// the node box inside [0, tMax].
func intersectAABB(node *scene.BvhNode, ray Ray, tMax float32) (float32, bool) {
	tMin := float32(-math.MaxFloat32)
	tFar := float32(math.MaxFloat32)

	for axis := 0; axis < 3; axis++ {
		t1 := (node.Min[axis] - ray.Origin[axis]) * ray.InvDir[axis]
		t2 := (node.Max[axis] - ray.Origin[axis]) * ray.InvDir[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tMin {
			tMin = t1
		}
		if t2 < tFar {
			tFar = t2
		}
	}

	if tFar < tMin || tFar < 0 || tMin > tMax {
		return 0, false
	}
	if tMin < 0 {
		tMin = 0
	}
	return tMin, true
}

// Möller–Trumbore ray/triangle intersection.
func intersectTriangle(tri *scene.Triangle, ray Ray) (t, u, v float32, ok bool) {
	e1 := tri.Vertices[1].Sub(tri.Vertices[0])
	e2 := tri.Vertices[2].Sub(tri.Vertices[0])

	p := ray.Dir.Cross(e2)
	det := e1.Dot(p)
	if det > -detEpsilon && det < detEpsilon {
		return 0, 0, 0, false
	}
	invDet := 1.0 / det

	s := ray.Origin.Sub(tri.Vertices[0])
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	q := s.Cross(e1)
	v = ray.Dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = e2.Dot(q) * invDet
	if t <= minHitDistance {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

// Interpolate a per-vertex attribute using hit barycentrics.
func interpolate3(attr *[3]types.Vec3, u, v float32) types.Vec3 {
	w := 1 - u - v
	return attr[0].Mul(w).Add(attr[1].Mul(u)).Add(attr[2].Mul(v))
}

func interpolate2(attr *[3]types.Vec2, u, v float32) types.Vec2 {
	w := 1 - u - v
	return attr[0].Mul(w).Add(attr[1].Mul(u)).Add(attr[2].Mul(v))
}

package kernel

import (
	"math"
	"math/rand"
	"testing"

	"github.com/lumen-rt/lumen/asset/compiler/bvh"
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/types"
)

func randomTriangleSoup(rng *rand.Rand, count int) []scene.Triangle {
	tris := make([]scene.Triangle, count)
	for index := range tris {
		center := types.Vec3{rng.Float32()*20 - 10, rng.Float32()*20 - 10, rng.Float32()*20 - 10}
		for v := 0; v < 3; v++ {
			tris[index].Vertices[v] = center.Add(types.Vec3{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1})
		}
	}
	return tris
}

func randomDirection(rng *rand.Rand) types.Vec3 {
	for {
		d := types.Vec3{rng.Float32()*2 - 1, rng.Float32()*2 - 1, rng.Float32()*2 - 1}
		if l := d.Len(); l > 0.01 && l <= 1 {
			return d.Normalize()
		}
	}
}

func bruteForceIntersect(tris []scene.Triangle, ray Ray) (float32, bool) {
	closest := maxDistance
	found := false
	for index := range tris {
		if t, _, _, ok := intersectTriangle(&tris[index], ray); ok && t < closest {
			closest = t
			found = true
		}
	}
	return closest, found
}

func TestIntersectMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	nodes, tris := bvh.Build(randomTriangleSoup(rng, 2000), bvh.DefaultOptions())
	sc := &Scene{Triangles: tris, Nodes: nodes}

	hits := 0
	for index := 0; index < 1000; index++ {
		origin := types.Vec3{rng.Float32()*30 - 15, rng.Float32()*30 - 15, rng.Float32()*30 - 15}
		ray := NewRay(origin, randomDirection(rng))

		expT, expFound := bruteForceIntersect(tris, ray)
		hit, found := Intersect(sc, ray, maxDistance)
		if found != expFound {
			t.Fatalf("[ray %d] expected found to be %t; got %t", index, expFound, found)
		}
		if !found {
			continue
		}
		hits++

		if relErr := math.Abs(float64(hit.T-expT)) / math.Max(1e-6, float64(expT)); relErr > 1e-4 {
			t.Fatalf("[ray %d] expected closest hit distance to be %f; got %f", index, expT, hit.T)
		}
		if tri := &tris[hit.TriangleIndex]; !tri.BBox().Contains(ray.At(hit.T), 1e-3) {
			t.Fatalf("[ray %d] expected hit point to lie on triangle %d", index, hit.TriangleIndex)
		}
	}

	if hits == 0 {
		t.Fatal("expected at least one ray to hit the scene")
	}
}

func TestQuadTraversal(t *testing.T) {
	sc := quadScene(50)

	if len(sc.Nodes) != 1 {
		t.Fatalf("expected a single BVH node; got %d", len(sc.Nodes))
	}
	root := sc.Nodes[0]
	if !root.IsLeaf() || root.TriangleCount != 2 {
		t.Fatalf("expected root to be a leaf with 2 triangles; got %+v", root)
	}
	if root.Min != (types.Vec3{-1, 0, -1}) || root.Max != (types.Vec3{1, 0, 1}) {
		t.Fatalf("expected root bbox to be [-1 0 -1]-[1 0 1]; got %v-%v", root.Min, root.Max)
	}

	type spec struct {
		origin types.Vec3
		dir    types.Vec3
		expHit bool
		expT   float32
	}
	specs := []spec{
		{types.Vec3{0.3, 5, 0.2}, types.Vec3{0, -1, 0}, true, 5},
		{types.Vec3{-0.9, 2.5, 0.9}, types.Vec3{0, -1, 0}, true, 2.5},
		{types.Vec3{0, -3, 0}, types.Vec3{0, 1, 0}, true, 3},
		{types.Vec3{0, 5, 0}, types.Vec3{0, 1, 0}, false, 0},
		{types.Vec3{1.5, 5, 0}, types.Vec3{0, -1, 0}, false, 0},
		{types.Vec3{-5, 1, 0}, types.Vec3{1, 0, 0}, false, 0},
	}

	for index, s := range specs {
		hit, found := Intersect(sc, NewRay(s.origin, s.dir), maxDistance)
		if found != s.expHit {
			t.Fatalf("[spec %d] expected hit to be %t; got %t", index, s.expHit, found)
		}
		if found && math.Abs(float64(hit.T-s.expT)) > 1e-5 {
			t.Fatalf("[spec %d] expected hit distance to be %f; got %f", index, s.expT, hit.T)
		}
	}
}

func TestTraversalRespectsMaxDistance(t *testing.T) {
	sc := quadScene(50)
	ray := NewRay(types.Vec3{0, 5, 0}, types.Vec3{0, -1, 0})

	if !Occluded(sc, ray, 10) {
		t.Fatal("expected ray to be occluded within distance 10")
	}
	if Occluded(sc, ray, 4.9) {
		t.Fatal("expected ray not to be occluded within distance 4.9")
	}
	if _, found := Intersect(sc, ray, 4.9); found {
		t.Fatal("expected no hit within distance 4.9")
	}
}

func TestDegenerateTrees(t *testing.T) {
	ray := NewRay(types.Vec3{0, 5, 0}, types.Vec3{0, -1, 0})

	// Empty input produces a single leaf with an empty box
	nodes, tris := bvh.Build(nil, bvh.DefaultOptions())
	sc := &Scene{Triangles: tris, Nodes: nodes}
	if _, found := Intersect(sc, ray, maxDistance); found {
		t.Fatal("expected empty scene to report no hit")
	}
	if Occluded(sc, ray, maxDistance) {
		t.Fatal("expected empty scene to report no occlusion")
	}

	// No nodes at all
	if _, found := Intersect(&Scene{}, ray, maxDistance); found {
		t.Fatal("expected scene without nodes to report no hit")
	}

	// Single triangle
	single := quadTriangles(
		types.Vec3{-1, 0, -1}, types.Vec3{1, 0, -1}, types.Vec3{1, 0, 1}, types.Vec3{-1, 0, 1},
		types.Vec3{0, 1, 0}, 0,
	)[:1]
	nodes, tris = bvh.Build(single, bvh.DefaultOptions())
	sc = &Scene{Triangles: tris, Nodes: nodes}
	hit, found := Intersect(sc, NewRay(types.Vec3{0.5, 5, -0.5}, types.Vec3{0, -1, 0}), maxDistance)
	if !found || math.Abs(float64(hit.T-5)) > 1e-5 {
		t.Fatalf("expected single triangle hit at distance 5; got %f (found: %t)", hit.T, found)
	}
}

func TestTraversalStackNeverOverflows(t *testing.T) {
	// Near-collinear, exponentially spaced triangles produce a deep,
	// unbalanced tree.
	tris := make([]scene.Triangle, 200)
	for index := range tris {
		x := float32(math.Pow(1.1, float64(index)))
		tris[index].Vertices = [3]types.Vec3{
			{x, 0, 0},
			{x, 1e-3, 0},
			{x, 0, 1e-3},
		}
	}
	opts := bvh.DefaultOptions()
	opts.MaxTrianglesPerLeaf = 1
	nodes, tris := bvh.Build(tris, opts)
	sc := &Scene{Triangles: tris, Nodes: nodes}

	rng := rand.New(rand.NewSource(7))
	for index := 0; index < 500; index++ {
		origin := types.Vec3{-1, rng.Float32() * 1e-3, rng.Float32() * 1e-3}
		dir := types.Vec3{1, rng.Float32()*1e-4 - 5e-5, rng.Float32()*1e-4 - 5e-5}.Normalize()
		if index%2 == 1 {
			origin = types.Vec3{rng.Float32() * 1e8, 1, 1}
			dir = randomDirection(rng)
		}

		_, _, stats := traverse(sc, NewRay(origin, dir), maxDistance, false)
		if stats.overflow {
			t.Fatalf("[ray %d] traversal stack overflow", index)
		}
		if stats.steps > len(nodes) {
			t.Fatalf("[ray %d] expected at most %d traversal steps; got %d", index, len(nodes), stats.steps)
		}
	}
}

func TestIntersectTriangleRejectsParallelRays(t *testing.T) {
	tri := quadTriangles(
		types.Vec3{-1, 0, -1}, types.Vec3{1, 0, -1}, types.Vec3{1, 0, 1}, types.Vec3{-1, 0, 1},
		types.Vec3{0, 1, 0}, 0,
	)[0]

	if _, _, _, ok := intersectTriangle(&tri, NewRay(types.Vec3{-2, 0, 0}, types.Vec3{1, 0, 0})); ok {
		t.Fatal("expected ray parallel to the triangle plane to miss")
	}
	if _, _, _, ok := intersectTriangle(&tri, NewRay(types.Vec3{0.5, 1e-7, -0.5}, types.Vec3{0, -1, 0})); ok {
		t.Fatal("expected hit closer than the self-intersection threshold to be rejected")
	}
}

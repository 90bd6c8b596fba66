package bvh

import (
	"math"
	"math/rand"
	"testing"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/types"
)

func quad(min, max types.Vec3) []scene.Triangle {
	v0 := types.Vec3{min[0], min[1], min[2]}
	v1 := types.Vec3{max[0], min[1], min[2]}
	v2 := types.Vec3{max[0], max[1], max[2]}
	v3 := types.Vec3{min[0], max[1], max[2]}
	n := types.Vec3{0, 1, 0}
	return []scene.Triangle{
		{Vertices: [3]types.Vec3{v0, v1, v2}, Normals: [3]types.Vec3{n, n, n}},
		{Vertices: [3]types.Vec3{v0, v2, v3}, Normals: [3]types.Vec3{n, n, n}},
	}
}

func randomTriangles(rng *rand.Rand, count int) []scene.Triangle {
	tris := make([]scene.Triangle, count)
	for index := range tris {
		center := types.Vec3{rng.Float32()*20 - 10, rng.Float32()*20 - 10, rng.Float32()*20 - 10}
		for v := 0; v < 3; v++ {
			tris[index].Vertices[v] = center.Add(types.Vec3{rng.Float32() - 0.5, rng.Float32() - 0.5, rng.Float32() - 0.5})
		}
		tris[index].MaterialIndex = uint32(index)
	}
	return tris
}

func treeDepth(nodes []scene.BvhNode, index uint32) int {
	if nodes[index].IsLeaf() {
		return 0
	}
	l := treeDepth(nodes, nodes[index].Left)
	r := treeDepth(nodes, nodes[index].Right)
	if l > r {
		return l + 1
	}
	return r + 1
}

func TestSingleQuadBuildsOneLeaf(t *testing.T) {
	tris := quad(types.Vec3{-1, 0, -1}, types.Vec3{1, 0, 1})
	nodes, reordered := Build(tris, DefaultOptions())

	if len(nodes) != 1 {
		t.Fatalf("expected 1 node; got %d", len(nodes))
	}
	if !nodes[0].IsLeaf() || nodes[0].TriangleCount != 2 || nodes[0].TriangleOffset != 0 {
		t.Fatalf("expected root to be a leaf with 2 triangles; got %+v", nodes[0])
	}
	if nodes[0].Min != (types.Vec3{-1, 0, -1}) || nodes[0].Max != (types.Vec3{1, 0, 1}) {
		t.Fatalf("expected tight root bbox [-1,0,-1]-[1,0,1]; got %v-%v", nodes[0].Min, nodes[0].Max)
	}
	if err := Validate(nodes, reordered); err != nil {
		t.Fatal(err)
	}
}

func TestLeafSize(t *testing.T) {
	type spec struct {
		maxLeaf  int
		expNodes int
		expLeafs int
	}
	specs := []spec{
		{1, 7, 4},
		{2, 3, 2},
		{4, 1, 1},
	}

	for index, s := range specs {
		var tris []scene.Triangle
		for _, corner := range []types.Vec3{{-2, 0, -2}, {1, 0, -2}, {-2, 0, 1}, {1, 0, 1}} {
			tris = append(tris, scene.Triangle{
				Vertices: [3]types.Vec3{corner, corner.Add(types.Vec3{1, 0, 0}), corner.Add(types.Vec3{0, 1, 1})},
			})
		}

		nodes, reordered := Build(tris, Options{MaxTrianglesPerLeaf: s.maxLeaf, BinCount: 12})
		if len(nodes) != s.expNodes {
			t.Fatalf("[spec %d] expected bvh tree to have %d nodes; got %d", index, s.expNodes, len(nodes))
		}

		leafs := 0
		for _, node := range nodes {
			if node.IsLeaf() {
				leafs++
				if int(node.TriangleCount) > s.maxLeaf {
					t.Fatalf("[spec %d] expected leaf to have at most %d triangles; got %d", index, s.maxLeaf, node.TriangleCount)
				}
			}
		}
		if leafs != s.expLeafs {
			t.Fatalf("[spec %d] expected %d leafs; got %d", index, s.expLeafs, leafs)
		}

		if err := Validate(nodes, reordered); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
	}
}

func TestRandomSoupIsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tris := randomTriangles(rng, 2000)

	original := make(map[scene.Triangle]int, len(tris))
	expBounds := scene.EmptyAABB()
	for _, tri := range tris {
		original[tri]++
		expBounds = expBounds.Merge(tri.BBox())
	}

	nodes, reordered := Build(tris, DefaultOptions())
	if len(reordered) != len(original) {
		t.Fatalf("expected %d reordered triangles; got %d", len(original), len(reordered))
	}

	for _, tri := range reordered {
		original[tri]--
	}
	for tri, count := range original {
		if count != 0 {
			t.Fatalf("expected triangle %d to appear exactly once; count delta %d", tri.MaterialIndex, count)
		}
	}

	if err := Validate(nodes, reordered); err != nil {
		t.Fatal(err)
	}

	if nodes[0].Min != expBounds.Min || nodes[0].Max != expBounds.Max {
		t.Fatalf("expected root bbox to be %v-%v; got %v-%v", expBounds.Min, expBounds.Max, nodes[0].Min, nodes[0].Max)
	}

	for index, node := range nodes {
		if node.IsLeaf() && node.TriangleCount > DefaultMaxSAHLeafTriangles {
			t.Fatalf("expected leaf %d to hold at most %d triangles; got %d", index, DefaultMaxSAHLeafTriangles, node.TriangleCount)
		}
	}
}

func TestOverlappingTrianglesStayInOneLeaf(t *testing.T) {
	// Large triangles with slightly shifted centroids: every split produces
	// children with almost the parent's area so none beats the leaf cost.
	makeCluster := func(count int) []scene.Triangle {
		tris := make([]scene.Triangle, count)
		for index := range tris {
			offset := types.Vec3{0.01 * float32(index), 0, 0}
			tris[index] = scene.Triangle{
				Vertices: [3]types.Vec3{
					types.Vec3{-5, -5, 0}.Add(offset),
					types.Vec3{5, -5, 0}.Add(offset),
					types.Vec3{0, 5, 1}.Add(offset),
				},
				MaterialIndex: uint32(index),
			}
		}
		return tris
	}

	type spec struct {
		count    int
		opts     Options
		expNodes int
	}
	specs := []spec{
		{8, DefaultOptions(), 1},
		{DefaultMaxSAHLeafTriangles, DefaultOptions(), 1},
		// Above the cost leaf limit the range is always split
		{DefaultMaxSAHLeafTriangles + 1, DefaultOptions(), 0},
		// Cost based termination disabled
		{8, Options{MaxTrianglesPerLeaf: DefaultMaxTrianglesPerLeaf}, 0},
	}

	for index, s := range specs {
		nodes, reordered := Build(makeCluster(s.count), s.opts)
		if err := Validate(nodes, reordered); err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}

		if s.expNodes == 1 {
			if len(nodes) != 1 || nodes[0].TriangleCount != uint32(s.count) {
				t.Fatalf("[spec %d] expected a single leaf with %d triangles; got %d nodes", index, s.count, len(nodes))
			}
			continue
		}
		if len(nodes) == 1 {
			t.Fatalf("[spec %d] expected root to be split", index)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	nodes, reordered := Build(nil, DefaultOptions())
	if len(nodes) != 1 {
		t.Fatalf("expected a single node; got %d", len(nodes))
	}
	if len(reordered) != 0 {
		t.Fatalf("expected no triangles; got %d", len(reordered))
	}
	if !nodes[0].IsLeaf() || nodes[0].TriangleCount != 0 {
		t.Fatalf("expected an empty leaf; got %+v", nodes[0])
	}
	if nodes[0].BBox().Valid() {
		t.Fatal("expected empty leaf to have an invalid bbox")
	}
	if err := Validate(nodes, reordered); err != nil {
		t.Fatal(err)
	}
}

func TestIdenticalCentroidsForceLeaf(t *testing.T) {
	tri := scene.Triangle{Vertices: [3]types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}}
	tris := make([]scene.Triangle, 10)
	for index := range tris {
		tris[index] = tri
	}

	nodes, reordered := Build(tris, DefaultOptions())
	if len(nodes) != 1 {
		t.Fatalf("expected un-splittable set to produce a single leaf; got %d nodes", len(nodes))
	}
	if nodes[0].TriangleCount != 10 {
		t.Fatalf("expected leaf to hold all 10 triangles; got %d", nodes[0].TriangleCount)
	}
	if err := Validate(nodes, reordered); err != nil {
		t.Fatal(err)
	}
}

func TestUnbalancedInputRespectsDepthLimit(t *testing.T) {
	// Exponentially spaced centroids make every SAH split peel off a
	// handful of triangles, which without a depth limit yields a chain.
	var tris []scene.Triangle
	for index := 0; index < 150; index++ {
		x := float32(math.Pow(1.4, float64(index)))
		tris = append(tris, scene.Triangle{
			Vertices: [3]types.Vec3{{x, 0, 0}, {x + 1, 0, 0}, {x, 1, 0}},
		})
	}

	nodes, reordered := Build(tris, Options{MaxTrianglesPerLeaf: 1})
	if err := Validate(nodes, reordered); err != nil {
		t.Fatal(err)
	}

	if depth := treeDepth(nodes, 0); depth > MaxTreeDepth {
		t.Fatalf("expected tree depth to be at most %d; got %d", MaxTreeDepth, depth)
	}

	limited, reordered := Build(reordered, Options{MaxTrianglesPerLeaf: 1, MaxDepth: 8})
	if depth := treeDepth(limited, 0); depth > 8 {
		t.Fatalf("expected tree depth to be at most 8; got %d", depth)
	}
	if err := Validate(limited, reordered); err != nil {
		t.Fatal(err)
	}
}

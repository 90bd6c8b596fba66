package bvh

import (
	"time"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/log"
	"github.com/lumen-rt/lumen/types"
)

const (
	// The builder will not attempt to split along an axis whose centroid
	// extent is below this threshold.
	minCentroidExtent float32 = 1e-4

	// The device traversal stack holds 64 entries. A depth-first traversal
	// needs at most depth+1 of them, so the builder never exceeds this depth.
	MaxTreeDepth = 62

	// Cost of visiting an interior node relative to one triangle test.
	traversalCost float32 = 1

	DefaultMaxTrianglesPerLeaf = 4
	DefaultMaxSAHLeafTriangles = 16
	DefaultBinCount            = 12
)

// Build options.
type Options struct {
	// Ranges with at most this many triangles become leaves.
	MaxTrianglesPerLeaf int

	// Ranges with at most this many triangles also become leaves when no
	// split is cheaper than intersecting all of them. Values below
	// MaxTrianglesPerLeaf disable the cost based termination.
	MaxSAHLeafTriangles int

	// Number of SAH bins evaluated per axis.
	BinCount int

	// Nodes at this depth are forced to become leaves. Values outside
	// [1, MaxTreeDepth] are replaced by MaxTreeDepth.
	MaxDepth int
}

// Get the default build options.
func DefaultOptions() Options {
	return Options{
		MaxTrianglesPerLeaf: DefaultMaxTrianglesPerLeaf,
		MaxSAHLeafTriangles: DefaultMaxSAHLeafTriangles,
		BinCount:            DefaultBinCount,
		MaxDepth:            MaxTreeDepth,
	}
}

func (o Options) normalize() Options {
	if o.MaxTrianglesPerLeaf < 1 {
		o.MaxTrianglesPerLeaf = DefaultMaxTrianglesPerLeaf
	}
	if o.MaxSAHLeafTriangles < o.MaxTrianglesPerLeaf {
		o.MaxSAHLeafTriangles = o.MaxTrianglesPerLeaf
	}
	if o.BinCount < 2 {
		o.BinCount = DefaultBinCount
	}
	if o.MaxDepth < 1 || o.MaxDepth > MaxTreeDepth {
		o.MaxDepth = MaxTreeDepth
	}
	return o
}

// A pending build task for the triangle range [start, end).
type buildTask struct {
	nodeIndex  uint32
	start, end int
	depth      int
}

type bin struct {
	bounds scene.AABB
	count  int
}

type splitCandidate struct {
	axis int

	// Triangles whose centroid falls in a bin < splitBin go to the left child.
	splitBin int
	cost     float32
}

type stats struct {
	nodes       int
	leafs       int
	costLeafs   int
	forcedLeafs int
	maxDepth    int
}

type builder struct {
	logger log.Logger
	opts   Options

	// The triangles being partitioned and their cached centroids. Both
	// slices are permuted in lockstep.
	triangles []scene.Triangle
	centroids []types.Vec3

	// Bvh nodes stored as a contiguous list
	nodes []scene.BvhNode

	// Reusable bin storage and right-to-left sweep results
	bins       []bin
	rightArea  []float32
	rightCount []int

	stats stats
}

// Construct a BVH over triangles using a binned surface area heuristic.
//
// The builder takes ownership of the triangles slice: it is reordered in place
// so that each leaf references a contiguous range and is then returned to the
// caller. The input slice must not be used after this call.
//
// An empty triangle list produces a single leaf with an invalid bounding box
// and no triangles.
func Build(triangles []scene.Triangle, opts Options) ([]scene.BvhNode, []scene.Triangle) {
	b := &builder{
		logger:    log.New("bvh builder"),
		opts:      opts.normalize(),
		triangles: triangles,
		centroids: make([]types.Vec3, len(triangles)),
	}
	b.bins = make([]bin, b.opts.BinCount)
	b.rightArea = make([]float32, b.opts.BinCount)
	b.rightCount = make([]int, b.opts.BinCount)

	for index := range triangles {
		b.centroids[index] = triangles[index].Centroid()
	}

	start := time.Now()
	b.build()
	b.logger.Debugf(
		"BVH build time: %d ms, triangles: %d, nodes: %d, leafs: %d (%d by cost, %d forced), maxDepth: %d",
		time.Since(start).Nanoseconds()/1e6,
		len(triangles), b.stats.nodes, b.stats.leafs, b.stats.costLeafs, b.stats.forcedLeafs, b.stats.maxDepth,
	)

	return b.nodes, b.triangles
}

func (b *builder) build() {
	b.nodes = make([]scene.BvhNode, 1, 2*len(b.triangles)/b.opts.MaxTrianglesPerLeaf+1)
	b.stats.nodes = 1

	if len(b.triangles) == 0 {
		b.nodes[0].SetBBox(scene.EmptyAABB())
		b.nodes[0].SetTriangles(0, 0)
		b.stats.leafs++
		return
	}

	workStack := []buildTask{{nodeIndex: 0, start: 0, end: len(b.triangles)}}
	for len(workStack) > 0 {
		task := workStack[len(workStack)-1]
		workStack = workStack[:len(workStack)-1]

		if task.depth > b.stats.maxDepth {
			b.stats.maxDepth = task.depth
		}

		bounds, centroidBounds := b.rangeBounds(task.start, task.end)
		b.nodes[task.nodeIndex].SetBBox(bounds)

		// Do we have few enough items to create a leaf?
		count := task.end - task.start
		if count <= b.opts.MaxTrianglesPerLeaf {
			b.createLeaf(task)
			continue
		}

		if task.depth >= b.opts.MaxDepth {
			b.stats.forcedLeafs++
			b.createLeaf(task)
			continue
		}

		split, found := b.findSplit(task, bounds, centroidBounds)
		if !found {
			b.stats.forcedLeafs++
			b.createLeaf(task)
			continue
		}

		// If no split improves on the leaf cost keep the range as a leaf
		if count <= b.opts.MaxSAHLeafTriangles && split.cost >= leafCost(bounds, count) {
			b.stats.costLeafs++
			b.createLeaf(task)
			continue
		}

		mid := b.partition(task, split, centroidBounds)

		// Guard against partitions that leave one side empty.
		if mid == task.start || mid == task.end {
			b.stats.forcedLeafs++
			b.createLeaf(task)
			continue
		}

		leftIndex := uint32(len(b.nodes))
		rightIndex := leftIndex + 1
		b.nodes = append(b.nodes, scene.BvhNode{}, scene.BvhNode{})
		b.stats.nodes += 2
		b.nodes[task.nodeIndex].SetChildNodes(leftIndex, rightIndex)

		// Push right first so the left subtree is built first.
		workStack = append(workStack,
			buildTask{nodeIndex: rightIndex, start: mid, end: task.end, depth: task.depth + 1},
			buildTask{nodeIndex: leftIndex, start: task.start, end: mid, depth: task.depth + 1},
		)
	}
}

// Calculate the SAH cost of intersecting every triangle in a node:
// count * bbox area
func leafCost(bounds scene.AABB, count int) float32 {
	return float32(count) * bounds.SurfaceArea()
}

// Setup the task node as a leaf containing all triangles in the task range.
func (b *builder) createLeaf(task buildTask) {
	b.nodes[task.nodeIndex].SetTriangles(uint32(task.start), uint32(task.end-task.start))
	b.stats.leafs++
}

// Calculate the bounds of all triangles in the range as well as the bounds of their centroids.
func (b *builder) rangeBounds(start, end int) (bounds, centroidBounds scene.AABB) {
	bounds = scene.EmptyAABB()
	centroidBounds = scene.EmptyAABB()
	for index := start; index < end; index++ {
		tri := &b.triangles[index]
		bounds = bounds.Extend(tri.Vertices[0]).Extend(tri.Vertices[1]).Extend(tri.Vertices[2])
		centroidBounds = centroidBounds.Extend(b.centroids[index])
	}
	return bounds, centroidBounds
}

// Map a centroid coordinate to a bin index.
func (b *builder) binIndex(value, min, extent float32) int {
	index := int(float32(len(b.bins)) * (value - min) / extent)
	if index < 0 {
		return 0
	}
	if index >= len(b.bins) {
		return len(b.bins) - 1
	}
	return index
}

// Evaluate the SAH cost of all bin boundaries along each axis and return the
// cheapest split:
//
// cost = traversal cost * parent area + left area * left count + right area * right count
//
// Boundaries that leave either side empty are skipped. The cost is expressed
// in the same units as leafCost.
func (b *builder) findSplit(task buildTask, bounds, centroidBounds scene.AABB) (splitCandidate, bool) {
	var best splitCandidate
	found := false

	binCount := len(b.bins)
	rightArea, rightCount := b.rightArea, b.rightCount
	baseCost := traversalCost * bounds.SurfaceArea()

	extent := centroidBounds.Extent()
	for axis := 0; axis < 3; axis++ {
		if extent[axis] < minCentroidExtent {
			continue
		}

		for index := range b.bins {
			b.bins[index] = bin{bounds: scene.EmptyAABB()}
		}

		axisMin := centroidBounds.Min[axis]
		for index := task.start; index < task.end; index++ {
			binIndex := b.binIndex(b.centroids[index][axis], axisMin, extent[axis])
			tri := &b.triangles[index]
			b.bins[binIndex].count++
			b.bins[binIndex].bounds = b.bins[binIndex].bounds.
				Extend(tri.Vertices[0]).Extend(tri.Vertices[1]).Extend(tri.Vertices[2])
		}

		// Sweep from the right to collect the area/count of bins >= i
		accumBounds := scene.EmptyAABB()
		accumCount := 0
		for index := binCount - 1; index > 0; index-- {
			accumBounds = accumBounds.Merge(b.bins[index].bounds)
			accumCount += b.bins[index].count
			rightArea[index] = accumBounds.SurfaceArea()
			rightCount[index] = accumCount
		}

		// Sweep from the left and score each boundary
		accumBounds = scene.EmptyAABB()
		accumCount = 0
		for splitBin := 1; splitBin < binCount; splitBin++ {
			accumBounds = accumBounds.Merge(b.bins[splitBin-1].bounds)
			accumCount += b.bins[splitBin-1].count
			if accumCount == 0 || rightCount[splitBin] == 0 {
				continue
			}

			cost := baseCost + accumBounds.SurfaceArea()*float32(accumCount) + rightArea[splitBin]*float32(rightCount[splitBin])
			if !found || cost < best.cost {
				best = splitCandidate{axis: axis, splitBin: splitBin, cost: cost}
				found = true
			}
		}
	}

	return best, found
}

// Reorder the task range in place so that all triangles whose centroid falls
// left of the split boundary precede the others. Returns the index of the first
// triangle on the right side.
func (b *builder) partition(task buildTask, split splitCandidate, centroidBounds scene.AABB) int {
	axisMin := centroidBounds.Min[split.axis]
	axisExtent := centroidBounds.Max[split.axis] - axisMin

	left, right := task.start, task.end-1
	for left <= right {
		if b.binIndex(b.centroids[left][split.axis], axisMin, axisExtent) < split.splitBin {
			left++
			continue
		}

		b.triangles[left], b.triangles[right] = b.triangles[right], b.triangles[left]
		b.centroids[left], b.centroids[right] = b.centroids[right], b.centroids[left]
		right--
	}

	return left
}

package bvh

import (
	"fmt"

	"github.com/lumen-rt/lumen/asset/scene"
)

// Bounds checks allow for this much floating point slack.
const boundsEpsilon float32 = 1e-4

// Check the structural invariants of a BVH tree built over triangles:
//   - every node is either a leaf (no children, triangles > 0) or an interior
//     node (two children with higher indices, no triangles);
//   - every triangle is referenced by exactly one leaf;
//   - node boxes enclose everything beneath them.
//
// A single leaf without triangles is accepted for empty scenes.
func Validate(nodes []scene.BvhNode, triangles []scene.Triangle) error {
	if len(nodes) == 0 {
		return fmt.Errorf("bvh: tree has no nodes")
	}

	if len(triangles) == 0 {
		if len(nodes) != 1 || !nodes[0].IsLeaf() || nodes[0].TriangleCount != 0 {
			return fmt.Errorf("bvh: expected a single empty leaf for an empty triangle list")
		}
		return nil
	}

	seen := make([]bool, len(triangles))
	for index := range nodes {
		node := &nodes[index]
		switch {
		case node.IsLeaf():
			if node.Right != scene.NoChild {
				return fmt.Errorf("bvh: leaf node %d has a right child", index)
			}
			if node.TriangleCount == 0 {
				return fmt.Errorf("bvh: leaf node %d has no triangles", index)
			}
			end := uint64(node.TriangleOffset) + uint64(node.TriangleCount)
			if end > uint64(len(triangles)) {
				return fmt.Errorf("bvh: leaf node %d references triangles [%d, %d) past the end of the list", index, node.TriangleOffset, end)
			}

			bbox := node.BBox()
			for triIndex := node.TriangleOffset; triIndex < uint32(end); triIndex++ {
				if seen[triIndex] {
					return fmt.Errorf("bvh: triangle %d is referenced by more than one leaf", triIndex)
				}
				seen[triIndex] = true

				for _, v := range triangles[triIndex].Vertices {
					if !bbox.Contains(v, boundsEpsilon) {
						return fmt.Errorf("bvh: triangle %d lies outside the bounds of leaf %d", triIndex, index)
					}
				}
			}
		default:
			if node.TriangleCount != 0 {
				return fmt.Errorf("bvh: interior node %d also references triangles", index)
			}
			for _, child := range []uint32{node.Left, node.Right} {
				if child == scene.NoChild || child >= uint32(len(nodes)) {
					return fmt.Errorf("bvh: interior node %d has invalid child index %d", index, child)
				}
				if child <= uint32(index) {
					return fmt.Errorf("bvh: child %d of node %d does not follow its parent", child, index)
				}

				parentBox := node.BBox()
				childBox := nodes[child].BBox()
				if !parentBox.Contains(childBox.Min, boundsEpsilon) || !parentBox.Contains(childBox.Max, boundsEpsilon) {
					return fmt.Errorf("bvh: child %d is not enclosed by parent %d", child, index)
				}
			}
		}
	}

	for triIndex, ok := range seen {
		if !ok {
			return fmt.Errorf("bvh: triangle %d is not referenced by any leaf", triIndex)
		}
	}

	return nil
}

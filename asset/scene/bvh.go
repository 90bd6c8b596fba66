package scene

import "github.com/lumen-rt/lumen/types"

// Child index value used by leaf nodes.
const NoChild uint32 = 0xFFFFFFFF

// A node of the flattened BVH tree. Interior nodes reference two children and
// have a zero triangle count; leaves reference a contiguous range of the
// reordered triangle list and use NoChild for both child indices.
type BvhNode struct {
	Min  types.Vec3
	Left uint32

	Max   types.Vec3
	Right uint32

	TriangleOffset uint32
	TriangleCount  uint32
}

// Set bounding box.
func (n *BvhNode) SetBBox(bbox AABB) {
	n.Min = bbox.Min
	n.Max = bbox.Max
}

// Get bounding box.
func (n *BvhNode) BBox() AABB {
	return AABB{Min: n.Min, Max: n.Max}
}

// Set left and right child node indices.
func (n *BvhNode) SetChildNodes(left, right uint32) {
	n.Left = left
	n.Right = right
	n.TriangleOffset = 0
	n.TriangleCount = 0
}

// Set the triangle range for a leaf.
func (n *BvhNode) SetTriangles(offset, count uint32) {
	n.Left = NoChild
	n.Right = NoChild
	n.TriangleOffset = offset
	n.TriangleCount = count
}

// Returns true if this is a leaf node.
func (n *BvhNode) IsLeaf() bool {
	return n.Left == NoChild
}

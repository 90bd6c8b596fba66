package kernel

import (
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/types"
)

// The edge length of a square workgroup. The invocation grid always consists
// of whole workgroups; invocations that fall outside the frame return early.
const WorkgroupSize = 16

// Default path length limit.
const DefaultMaxBounces = 8

// The read-only scene data bound to the kernel.
type Scene struct {
	Triangles  []scene.Triangle
	Nodes      []scene.BvhNode
	Materials  []scene.Material
	Lights     []scene.Light
	Atlas      *scene.Atlas
	Background types.Vec3
}

// Build a kernel scene view over a compiled scene. No data is copied.
func NewScene(sc *scene.Scene) *Scene {
	return &Scene{
		Triangles:  sc.Triangles,
		Nodes:      sc.BvhNodes,
		Materials:  sc.Materials,
		Lights:     sc.Lights,
		Atlas:      sc.Atlas,
		Background: sc.Background,
	}
}

// The per-frame state shared by all invocations of a dispatch.
type Frame struct {
	Width  uint32
	Height uint32

	// The number of frames accumulated since the last reset.
	Index uint32

	Camera scene.Camera

	// The running radiance average; one entry per pixel in row-major order.
	Accum []types.Vec4
}

// Kernel tunables.
type Options struct {
	// Maximum number of path segments.
	MaxBounces uint32

	// Russian roulette starts at this bounce; 0 disables it.
	MinBouncesForRR uint32
}

// Get the default kernel options.
func DefaultOptions() Options {
	return Options{
		MaxBounces:      DefaultMaxBounces,
		MinBouncesForRR: 2,
	}
}

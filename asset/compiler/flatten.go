package compiler

import (
	"fmt"

	"github.com/lumen-rt/lumen/asset/compiler/input"
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/types"
)

// Primitives with more vertices than this need 32-bit indices.
const maxPrimitiveVertices = 65535

// The world-space output of the scene graph flattening pass.
type Flattened struct {
	Triangles []scene.Triangle

	// One material slot per (node, primitive) pair. Triangle material
	// indices point into this list.
	Materials []scene.Material

	// The input material each slot was created from.
	MaterialSources []*input.Material

	// Analytic lights in world space.
	Lights []scene.Light
}

type flattenTask struct {
	nodeIndex int
	world     types.Mat4
}

// Walk the scene graph and emit world-space triangles, per-primitive material
// slots and analytic lights.
func Flatten(sc *input.Scene) (*Flattened, error) {
	out := &Flattened{}
	visited := make([]bool, len(sc.Nodes))

	stack := make([]flattenTask, 0, len(sc.Roots))
	for index := len(sc.Roots) - 1; index >= 0; index-- {
		stack = append(stack, flattenTask{nodeIndex: sc.Roots[index], world: types.Ident4()})
	}

	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if task.nodeIndex < 0 || task.nodeIndex >= len(sc.Nodes) {
			return nil, fmt.Errorf("%w: node index %d", ErrInvalidNodeRef, task.nodeIndex)
		}
		if visited[task.nodeIndex] {
			return nil, fmt.Errorf("%w: node %d is reachable through more than one parent", ErrInvalidNodeRef, task.nodeIndex)
		}
		visited[task.nodeIndex] = true

		node := sc.Nodes[task.nodeIndex]
		world := task.world.Mul4(node.Transform)

		if node.Mesh >= 0 {
			if node.Mesh >= len(sc.Meshes) {
				return nil, fmt.Errorf("%w: node %q references mesh %d", ErrInvalidNodeRef, node.Name, node.Mesh)
			}
			if err := out.appendMesh(sc, sc.Meshes[node.Mesh], world); err != nil {
				return nil, fmt.Errorf("node %q: %w", node.Name, err)
			}
		}

		if node.Light >= 0 {
			if node.Light >= len(sc.Lights) {
				return nil, fmt.Errorf("%w: node %q references light %d", ErrInvalidNodeRef, node.Name, node.Light)
			}
			out.appendLight(sc.Lights[node.Light], world)
		}

		for index := len(node.Children) - 1; index >= 0; index-- {
			stack = append(stack, flattenTask{nodeIndex: node.Children[index], world: world})
		}
	}

	return out, nil
}

func (f *Flattened) appendMesh(sc *input.Scene, mesh *input.Mesh, world types.Mat4) error {
	normalMat := world.NormalMatrix()

	for primIndex, prim := range mesh.Primitives {
		if err := validatePrimitive(sc, prim); err != nil {
			return fmt.Errorf("mesh %q primitive %d: %w", mesh.Name, primIndex, err)
		}

		src := sc.Materials[prim.MaterialIndex]
		slot := uint32(len(f.Materials))
		f.Materials = append(f.Materials, convertMaterial(src))
		f.MaterialSources = append(f.MaterialSources, src)

		hasUVs := len(prim.UVs) == len(prim.Positions)
		for offset := 0; offset < len(prim.Indices); offset += 3 {
			tri := scene.Triangle{MaterialIndex: slot}
			for v := 0; v < 3; v++ {
				vIndex := prim.Indices[offset+v]
				tri.Vertices[v] = world.TransformPoint(prim.Positions[vIndex])
				tri.Normals[v] = normalMat.Mul3x1(prim.Normals[vIndex]).Normalize()
				if hasUVs {
					tri.UVs[v] = prim.UVs[vIndex]
				}
			}
			f.Triangles = append(f.Triangles, tri)
		}
	}

	return nil
}

func (f *Flattened) appendLight(light *input.Light, world types.Mat4) {
	out := scene.Light{
		Intensity: light.Intensity,
		Color:     light.Color,
		Radius:    light.Radius,
	}

	switch light.Type {
	case input.DirectionalLight:
		out.Type = scene.DirectionalLight
		out.Position = world.Mat3().Mul3x1(light.Direction).Normalize()
	case input.PointLight:
		out.Type = scene.PointLight
		out.Position = world.TransformPoint(light.Position)
	}

	f.Lights = append(f.Lights, out)
}

func validatePrimitive(sc *input.Scene, prim *input.Primitive) error {
	if prim.IndexFormat == input.Uint32Indices || len(prim.Positions) > maxPrimitiveVertices {
		return fmt.Errorf("%w (%d vertices)", ErrUnsupportedIndexWidth, len(prim.Positions))
	}
	if len(prim.Indices) == 0 || len(prim.Indices)%3 != 0 {
		return fmt.Errorf("%w (%d indices)", ErrEmptyIndexBuffer, len(prim.Indices))
	}
	if len(prim.Normals) != len(prim.Positions) {
		return fmt.Errorf("%w (%d normals for %d vertices)", ErrMissingNormals, len(prim.Normals), len(prim.Positions))
	}
	if prim.MaterialIndex < 0 || prim.MaterialIndex >= len(sc.Materials) {
		return fmt.Errorf("%w (material %d)", ErrInvalidMaterialRef, prim.MaterialIndex)
	}
	for _, vIndex := range prim.Indices {
		if int(vIndex) >= len(prim.Positions) {
			return fmt.Errorf("%w (index %d, %d vertices)", ErrIndexOutOfRange, vIndex, len(prim.Positions))
		}
	}
	return nil
}

func convertMaterial(src *input.Material) scene.Material {
	mat := scene.Material{
		BaseColor:        src.BaseColor,
		Metallic:         src.Metallic,
		Roughness:        src.Roughness,
		Emission:         src.Emission,
		EmissiveStrength: src.EmissiveStrength,
		IOR:              src.IOR,
		Transmission:     src.Transmission,
	}
	mat.Sanitize()
	return mat
}

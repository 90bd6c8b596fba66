package input

import (
	"github.com/lumen-rt/lumen/asset"
	"github.com/lumen-rt/lumen/types"
)

type IndexFormat uint8

// Supported index buffer element widths.
const (
	Uint16Indices IndexFormat = iota
	Uint32Indices
)

// An indexed triangle list that uses a single material.
type Primitive struct {
	Positions []types.Vec3
	Normals   []types.Vec3
	UVs       []types.Vec2

	// Triangle indices; every 3 consecutive entries form a triangle.
	Indices     []uint32
	IndexFormat IndexFormat

	// Index into the scene material list.
	MaterialIndex int
}

// A named collection of primitives.
type Mesh struct {
	Name       string
	Primitives []*Primitive
}

// Create a new mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:       name,
		Primitives: make([]*Primitive, 0),
	}
}

// A scene graph node. Node transforms are relative to the parent node.
type Node struct {
	Name      string
	Transform types.Mat4

	// Index of the mesh attached to this node or -1.
	Mesh int

	// Index of the light attached to this node or -1.
	Light int

	// Child node indices.
	Children []int
}

// Create a node with an identity transform and no attachments.
func NewNode(name string) *Node {
	return &Node{
		Name:      name,
		Transform: types.Ident4(),
		Mesh:      -1,
		Light:     -1,
	}
}

// A metallic-roughness material definition.
type Material struct {
	Name string

	BaseColor        types.Vec3
	Metallic         float32
	Roughness        float32
	Emission         types.Vec3
	EmissiveStrength float32
	IOR              float32
	Transmission     float32

	// Optional texture paths, resolved relative to AssetRelPath.
	AlbedoTex            string
	NormalTex            string
	MetallicRoughnessTex string
	EmissiveTex          string

	AssetRelPath *asset.Resource
}

// Create a material with default parameters.
func NewMaterial(name string) *Material {
	return &Material{
		Name:             name,
		BaseColor:        types.Vec3{0.8, 0.8, 0.8},
		Roughness:        1.0,
		EmissiveStrength: 1.0,
		IOR:              1.5,
	}
}

type LightType uint8

// Analytic light types.
const (
	DirectionalLight LightType = iota
	PointLight
)

// An analytic light. Position and Direction are expressed in the space of the
// node the light is attached to.
type Light struct {
	Name      string
	Type      LightType
	Color     types.Vec3
	Intensity float32

	// Point light radius (0 for hard shadows).
	Radius float32

	Position  types.Vec3
	Direction types.Vec3
}

type Camera struct {
	FOV  float32
	Eye  types.Vec3
	Look types.Vec3
	Up   types.Vec3
}

// The scene graph produced by scene readers.
type Scene struct {
	Meshes    []*Mesh
	Materials []*Material
	Lights    []*Light
	Nodes     []*Node

	// Indices of the root nodes.
	Roots []int

	// Radiance for rays escaping the scene.
	Background types.Vec3

	Camera *Camera
}

// Create a new empty scene with a default camera.
func NewScene() *Scene {
	return &Scene{
		Meshes:    make([]*Mesh, 0),
		Materials: make([]*Material, 0),
		Lights:    make([]*Light, 0),
		Nodes:     make([]*Node, 0),
		Roots:     make([]int, 0),
		Camera: &Camera{
			FOV:  45.0,
			Eye:  types.Vec3{0.0, 0.0, 0.0},
			Look: types.Vec3{0.0, 0.0, -1.0},
			Up:   types.Vec3{0.0, 1.0, 0.0},
		},
	}
}

// Append a node and return its index. If parent is -1 the node becomes a root.
func (sc *Scene) AddNode(node *Node, parent int) int {
	sc.Nodes = append(sc.Nodes, node)
	index := len(sc.Nodes) - 1
	if parent < 0 {
		sc.Roots = append(sc.Roots, index)
	} else {
		sc.Nodes[parent].Children = append(sc.Nodes[parent].Children, index)
	}
	return index
}

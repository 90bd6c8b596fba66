package scene

import "github.com/lumen-rt/lumen/types"

type LightType uint32

// Light type discriminants; values are shared with the device kernel.
const (
	EmissiveLight LightType = iota
	DirectionalLight
	PointLight
)

func (t LightType) String() string {
	switch t {
	case EmissiveLight:
		return "emissive"
	case DirectionalLight:
		return "directional"
	case PointLight:
		return "point"
	}
	return "unknown"
}

// A light source. The interpretation of the payload depends on Type:
//   - EmissiveLight: TriangleIndex references the emitting triangle.
//   - DirectionalLight: Position holds the (normalized) travel direction.
//   - PointLight: Position holds the light position; Radius > 0 enables soft shadows.
type Light struct {
	Type          LightType
	TriangleIndex uint32
	Intensity     float32
	Radius        float32

	Position types.Vec3
	Color    types.Vec3
}

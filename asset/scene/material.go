package scene

import "github.com/lumen-rt/lumen/types"

const (
	// Materials never go below this roughness to keep the GGX lobe well defined.
	MinRoughness float32 = 0.04

	DefaultIOR float32 = 1.5
)

// A rectangle inside the texture atlas expressed in normalized [0, 1] atlas
// coordinates. A zero-sized rectangle means that no texture is attached.
type TextureRect struct {
	Origin types.Vec2
	Size   types.Vec2
}

// Returns true if the rectangle does not reference a texture.
func (r TextureRect) Empty() bool {
	return r.Size[0] <= 0 || r.Size[1] <= 0
}

// A metallic-roughness material.
type Material struct {
	BaseColor types.Vec3
	Metallic  float32

	Emission  types.Vec3
	Roughness float32

	EmissiveStrength float32
	IOR              float32
	Transmission     float32

	AlbedoTex            TextureRect
	NormalTex            TextureRect
	MetallicRoughnessTex TextureRect
	EmissiveTex          TextureRect
}

// Create a white diffuse material.
func NewMaterial() Material {
	return Material{
		BaseColor:        types.Vec3{0.8, 0.8, 0.8},
		Roughness:        1.0,
		EmissiveStrength: 1.0,
		IOR:              DefaultIOR,
	}
}

// Get the emitted radiance (emission scaled by strength).
func (m *Material) Radiance() types.Vec3 {
	return m.Emission.Mul(m.EmissiveStrength)
}

// Returns true if the material emits light.
func (m *Material) IsEmissive() bool {
	return m.EmissiveStrength > 0 && (m.Emission.MaxComponent() > 0 || !m.EmissiveTex.Empty())
}

// Clamp material parameters to their valid ranges.
func (m *Material) Sanitize() {
	m.Metallic = clamp01(m.Metallic)
	m.Transmission = clamp01(m.Transmission)
	m.Roughness = clamp01(m.Roughness)
	if m.Roughness < MinRoughness {
		m.Roughness = MinRoughness
	}
	if m.IOR <= 0 {
		m.IOR = DefaultIOR
	}
	if m.EmissiveStrength < 0 {
		m.EmissiveStrength = 0
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// A texture atlas that stores all scene textures as linear RGBA texels.
type Atlas struct {
	Width  uint32
	Height uint32
	Texels []types.Vec4
}

// Fetch the texel closest to the given uv coordinates inside rect. UVs wrap
// around the rectangle.
func (a *Atlas) Sample(rect TextureRect, uv types.Vec2) types.Vec4 {
	if a == nil || a.Width == 0 || a.Height == 0 || rect.Empty() {
		return types.Vec4{1, 1, 1, 1}
	}

	u := fract(uv[0])
	v := fract(uv[1])
	x := uint32((rect.Origin[0] + u*rect.Size[0]) * float32(a.Width))
	y := uint32((rect.Origin[1] + v*rect.Size[1]) * float32(a.Height))
	if x >= a.Width {
		x = a.Width - 1
	}
	if y >= a.Height {
		y = a.Height - 1
	}
	return a.Texels[y*a.Width+x]
}

func fract(v float32) float32 {
	f := v - float32(int64(v))
	if f < 0 {
		f += 1
	}
	return f
}

package device

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/tracer/kernel"
	"github.com/lumen-rt/lumen/types"
)

// Element strides in bytes. They match the struct layouts declared in the
// device kernel (vec3 members are padded to 16 bytes).
const (
	TriangleStride = 128
	BvhNodeStride  = 48
	LightStride    = 48
	MaterialStride = 112
	TexelStride    = 16
	UniformSize    = 112
	AccumStride    = 16
	PixelStride    = 4
)

// The per-frame uniform block.
type Uniforms struct {
	Camera     scene.Camera
	Width      uint32
	Height     uint32
	FrameIndex uint32
	LightCount uint32
	NodeCount  uint32
	Background types.Vec3

	AtlasWidth  uint32
	AtlasHeight uint32

	Options kernel.Options
	Display kernel.Display
}

type layoutWriter []byte

func (w layoutWriter) u32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(w[offset:], v)
}

func (w layoutWriter) f32(offset int, v float32) {
	binary.LittleEndian.PutUint32(w[offset:], math.Float32bits(v))
}

func (w layoutWriter) vec2(offset int, v types.Vec2) {
	w.f32(offset, v[0])
	w.f32(offset+4, v[1])
}

func (w layoutWriter) vec3(offset int, v types.Vec3) {
	w.f32(offset, v[0])
	w.f32(offset+4, v[1])
	w.f32(offset+8, v[2])
}

func (w layoutWriter) rect(offset int, r scene.TextureRect) {
	w.vec2(offset, r.Origin)
	w.vec2(offset+8, r.Size)
}

type layoutReader []byte

func (r layoutReader) u32(offset int) uint32 {
	return binary.LittleEndian.Uint32(r[offset:])
}

func (r layoutReader) f32(offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(r[offset:]))
}

func (r layoutReader) vec2(offset int) types.Vec2 {
	return types.Vec2{r.f32(offset), r.f32(offset + 4)}
}

func (r layoutReader) vec3(offset int) types.Vec3 {
	return types.Vec3{r.f32(offset), r.f32(offset + 4), r.f32(offset + 8)}
}

func (r layoutReader) rect(offset int) scene.TextureRect {
	return scene.TextureRect{Origin: r.vec2(offset), Size: r.vec2(offset + 8)}
}

func checkStride(data []byte, stride int, what string) (int, error) {
	if len(data)%stride != 0 {
		return 0, fmt.Errorf("%w: %s buffer has %d bytes; stride is %d", ErrInvalidLayout, what, len(data), stride)
	}
	return len(data) / stride, nil
}

// Pack triangles into their device layout.
func PackTriangles(tris []scene.Triangle) []byte {
	out := make([]byte, len(tris)*TriangleStride)
	for index := range tris {
		tri := &tris[index]
		w := layoutWriter(out[index*TriangleStride : (index+1)*TriangleStride])
		w.vec3(0, tri.Vertices[0])
		w.u32(12, tri.MaterialIndex)
		w.vec3(16, tri.Vertices[1])
		w.vec3(32, tri.Vertices[2])
		w.vec3(48, tri.Normals[0])
		w.vec3(64, tri.Normals[1])
		w.vec3(80, tri.Normals[2])
		w.vec2(96, tri.UVs[0])
		w.vec2(104, tri.UVs[1])
		w.vec2(112, tri.UVs[2])
	}
	return out
}

// Decode a device triangle buffer.
func UnpackTriangles(data []byte) ([]scene.Triangle, error) {
	count, err := checkStride(data, TriangleStride, "triangle")
	if err != nil {
		return nil, err
	}
	tris := make([]scene.Triangle, count)
	for index := range tris {
		r := layoutReader(data[index*TriangleStride : (index+1)*TriangleStride])
		tris[index] = scene.Triangle{
			Vertices:      [3]types.Vec3{r.vec3(0), r.vec3(16), r.vec3(32)},
			Normals:       [3]types.Vec3{r.vec3(48), r.vec3(64), r.vec3(80)},
			UVs:           [3]types.Vec2{r.vec2(96), r.vec2(104), r.vec2(112)},
			MaterialIndex: r.u32(12),
		}
	}
	return tris, nil
}

// Pack BVH nodes into their device layout.
func PackBvhNodes(nodes []scene.BvhNode) []byte {
	out := make([]byte, len(nodes)*BvhNodeStride)
	for index := range nodes {
		node := &nodes[index]
		w := layoutWriter(out[index*BvhNodeStride : (index+1)*BvhNodeStride])
		w.vec3(0, node.Min)
		w.u32(12, node.Left)
		w.vec3(16, node.Max)
		w.u32(28, node.Right)
		w.u32(32, node.TriangleOffset)
		w.u32(36, node.TriangleCount)
	}
	return out
}

// Decode a device BVH node buffer.
func UnpackBvhNodes(data []byte) ([]scene.BvhNode, error) {
	count, err := checkStride(data, BvhNodeStride, "bvh node")
	if err != nil {
		return nil, err
	}
	nodes := make([]scene.BvhNode, count)
	for index := range nodes {
		r := layoutReader(data[index*BvhNodeStride : (index+1)*BvhNodeStride])
		nodes[index] = scene.BvhNode{
			Min:            r.vec3(0),
			Left:           r.u32(12),
			Max:            r.vec3(16),
			Right:          r.u32(28),
			TriangleOffset: r.u32(32),
			TriangleCount:  r.u32(36),
		}
	}
	return nodes, nil
}

// Pack lights into their device layout.
func PackLights(lights []scene.Light) []byte {
	out := make([]byte, len(lights)*LightStride)
	for index := range lights {
		light := &lights[index]
		w := layoutWriter(out[index*LightStride : (index+1)*LightStride])
		w.u32(0, uint32(light.Type))
		w.u32(4, light.TriangleIndex)
		w.f32(8, light.Intensity)
		w.f32(12, light.Radius)
		w.vec3(16, light.Position)
		w.vec3(32, light.Color)
	}
	return out
}

// Decode a device light buffer.
func UnpackLights(data []byte) ([]scene.Light, error) {
	count, err := checkStride(data, LightStride, "light")
	if err != nil {
		return nil, err
	}
	lights := make([]scene.Light, count)
	for index := range lights {
		r := layoutReader(data[index*LightStride : (index+1)*LightStride])
		lights[index] = scene.Light{
			Type:          scene.LightType(r.u32(0)),
			TriangleIndex: r.u32(4),
			Intensity:     r.f32(8),
			Radius:        r.f32(12),
			Position:      r.vec3(16),
			Color:         r.vec3(32),
		}
	}
	return lights, nil
}

// Pack materials into their device layout.
func PackMaterials(materials []scene.Material) []byte {
	out := make([]byte, len(materials)*MaterialStride)
	for index := range materials {
		mat := &materials[index]
		w := layoutWriter(out[index*MaterialStride : (index+1)*MaterialStride])
		w.vec3(0, mat.BaseColor)
		w.f32(12, mat.Metallic)
		w.vec3(16, mat.Emission)
		w.f32(28, mat.Roughness)
		w.f32(32, mat.EmissiveStrength)
		w.f32(36, mat.IOR)
		w.f32(40, mat.Transmission)
		w.rect(48, mat.AlbedoTex)
		w.rect(64, mat.NormalTex)
		w.rect(80, mat.MetallicRoughnessTex)
		w.rect(96, mat.EmissiveTex)
	}
	return out
}

// Decode a device material buffer.
func UnpackMaterials(data []byte) ([]scene.Material, error) {
	count, err := checkStride(data, MaterialStride, "material")
	if err != nil {
		return nil, err
	}
	materials := make([]scene.Material, count)
	for index := range materials {
		r := layoutReader(data[index*MaterialStride : (index+1)*MaterialStride])
		materials[index] = scene.Material{
			BaseColor:            r.vec3(0),
			Metallic:             r.f32(12),
			Emission:             r.vec3(16),
			Roughness:            r.f32(28),
			EmissiveStrength:     r.f32(32),
			IOR:                  r.f32(36),
			Transmission:         r.f32(40),
			AlbedoTex:            r.rect(48),
			NormalTex:            r.rect(64),
			MetallicRoughnessTex: r.rect(80),
			EmissiveTex:          r.rect(96),
		}
	}
	return materials, nil
}

// Pack atlas texels as vec4<f32> values.
func PackTexels(texels []types.Vec4) []byte {
	out := make([]byte, len(texels)*TexelStride)
	for index, texel := range texels {
		w := layoutWriter(out[index*TexelStride : (index+1)*TexelStride])
		w.vec3(0, texel.Vec3())
		w.f32(12, texel[3])
	}
	return out
}

// Decode a device texel buffer.
func UnpackTexels(data []byte) ([]types.Vec4, error) {
	count, err := checkStride(data, TexelStride, "texel")
	if err != nil {
		return nil, err
	}
	texels := make([]types.Vec4, count)
	for index := range texels {
		r := layoutReader(data[index*TexelStride : (index+1)*TexelStride])
		texels[index] = r.vec3(0).Vec4(r.f32(12))
	}
	return texels, nil
}

// Pack the uniform block.
func PackUniforms(u *Uniforms) []byte {
	out := make([]byte, UniformSize)
	w := layoutWriter(out)
	w.vec3(0, u.Camera.Position)
	w.f32(12, u.Camera.FOV)
	w.vec3(16, u.Camera.Forward)
	w.f32(28, u.Camera.Aspect)
	w.vec3(32, u.Camera.Right)
	w.u32(44, u.Width)
	w.vec3(48, u.Camera.Up)
	w.u32(60, u.Height)
	w.u32(64, u.FrameIndex)
	w.u32(68, u.LightCount)
	w.u32(72, u.Options.MaxBounces)
	w.u32(76, u.Options.MinBouncesForRR)
	w.vec3(80, u.Background)
	w.u32(92, u.NodeCount)
	w.u32(96, u.AtlasWidth)
	w.u32(100, u.AtlasHeight)
	w.f32(104, u.Display.Exposure)
	w.u32(108, uint32(u.Display.ToneMapper))
	return out
}

package device

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/tracer/kernel"
	"github.com/lumen-rt/lumen/types"
)

func readF32(data []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}

func readU32(data []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(data[offset:])
}

func TestTriangleLayout(t *testing.T) {
	tri := scene.Triangle{
		Vertices:      [3]types.Vec3{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}},
		Normals:       [3]types.Vec3{{0, 1, 0}, {0, 0, 1}, {1, 0, 0}},
		UVs:           [3]types.Vec2{{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}},
		MaterialIndex: 42,
	}

	data := PackTriangles([]scene.Triangle{tri, tri})
	if len(data) != 2*TriangleStride {
		t.Fatalf("expected packed size to be %d; got %d", 2*TriangleStride, len(data))
	}

	type spec struct {
		offset int
		exp    float32
	}
	specs := []spec{
		{0, 1}, {8, 3}, {16, 4}, {40, 9}, {52, 1}, {68, 0}, {72, 1}, {80, 1}, {96, 0.1}, {108, 0.4}, {116, 0.6},
	}
	for index, s := range specs {
		if got := readF32(data, s.offset); got != s.exp {
			t.Errorf("[spec %d] expected value at offset %d to be %v; got %v", index, s.offset, s.exp, got)
		}
	}
	if got := readU32(data, 12); got != 42 {
		t.Fatalf("expected material index to be 42; got %d", got)
	}
	if got := readU32(data, TriangleStride+12); got != 42 {
		t.Fatalf("expected second material index to be 42; got %d", got)
	}

	out, err := UnpackTriangles(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out[1], tri) {
		t.Fatalf("expected decoded triangle to be %v; got %v", tri, out[1])
	}
}

func TestBvhNodeLayout(t *testing.T) {
	var leaf, inner scene.BvhNode
	leaf.SetBBox(scene.AABB{Min: types.Vec3{-1, -2, -3}, Max: types.Vec3{1, 2, 3}})
	leaf.SetTriangles(8, 3)
	inner.SetChildNodes(1, 2)

	data := PackBvhNodes([]scene.BvhNode{leaf, inner})
	if len(data) != 2*BvhNodeStride {
		t.Fatalf("expected packed size to be %d; got %d", 2*BvhNodeStride, len(data))
	}
	if got := readU32(data, 12); got != scene.NoChild {
		t.Fatalf("expected leaf left child to be the sentinel; got %d", got)
	}
	if got := readU32(data, 28); got != scene.NoChild {
		t.Fatalf("expected leaf right child to be the sentinel; got %d", got)
	}
	if got := readF32(data, 24); got != 3 {
		t.Fatalf("expected max.z to be 3; got %v", got)
	}
	if got := readU32(data, 32); got != 8 {
		t.Fatalf("expected triangle offset to be 8; got %d", got)
	}
	if got := readU32(data, 36); got != 3 {
		t.Fatalf("expected triangle count to be 3; got %d", got)
	}
	if got := readU32(data, BvhNodeStride+12); got != 1 {
		t.Fatalf("expected inner left child to be 1; got %d", got)
	}

	out, err := UnpackBvhNodes(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, []scene.BvhNode{leaf, inner}) {
		t.Fatalf("expected decoded nodes to match; got %v", out)
	}
}

func TestLightLayout(t *testing.T) {
	lights := []scene.Light{
		{Type: scene.EmissiveLight, TriangleIndex: 7},
		{Type: scene.DirectionalLight, Position: types.Vec3{0, -1, 0}, Color: types.Vec3{1, 0.5, 0.25}, Intensity: 2},
		{Type: scene.PointLight, Position: types.Vec3{1, 2, 3}, Color: types.Vec3{1, 1, 1}, Intensity: 10, Radius: 0.5},
	}

	data := PackLights(lights)
	if len(data) != 3*LightStride {
		t.Fatalf("expected packed size to be %d; got %d", 3*LightStride, len(data))
	}

	type spec struct {
		light  int
		offset int
		exp    uint32
	}
	specs := []spec{
		{0, 0, uint32(scene.EmissiveLight)},
		{0, 4, 7},
		{1, 0, uint32(scene.DirectionalLight)},
		{2, 0, uint32(scene.PointLight)},
	}
	for index, s := range specs {
		if got := readU32(data, s.light*LightStride+s.offset); got != s.exp {
			t.Errorf("[spec %d] expected value to be %d; got %d", index, s.exp, got)
		}
	}
	if got := readF32(data, 2*LightStride+12); got != 0.5 {
		t.Fatalf("expected point light radius to be 0.5; got %v", got)
	}
	if got := readF32(data, LightStride+36); got != 0.5 {
		t.Fatalf("expected directional light green channel to be 0.5; got %v", got)
	}

	out, err := UnpackLights(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out, lights) {
		t.Fatalf("expected decoded lights to match; got %v", out)
	}
}

func TestMaterialLayout(t *testing.T) {
	mat := scene.NewMaterial()
	mat.BaseColor = types.Vec3{0.1, 0.2, 0.3}
	mat.Metallic = 0.4
	mat.Emission = types.Vec3{1, 2, 3}
	mat.Roughness = 0.5
	mat.EmissiveStrength = 6
	mat.Transmission = 0.7
	mat.AlbedoTex = scene.TextureRect{Origin: types.Vec2{0.25, 0.5}, Size: types.Vec2{0.125, 0.0625}}
	mat.EmissiveTex = scene.TextureRect{Origin: types.Vec2{0.75, 0}, Size: types.Vec2{0.25, 0.25}}

	data := PackMaterials([]scene.Material{mat})
	if len(data) != MaterialStride {
		t.Fatalf("expected packed size to be %d; got %d", MaterialStride, len(data))
	}

	type spec struct {
		offset int
		exp    float32
	}
	specs := []spec{
		{0, 0.1}, {12, 0.4}, {24, 3}, {28, 0.5}, {32, 6}, {36, scene.DefaultIOR}, {40, 0.7},
		{48, 0.25}, {52, 0.5}, {56, 0.125}, {60, 0.0625}, {64, 0}, {96, 0.75}, {104, 0.25},
	}
	for index, s := range specs {
		if got := readF32(data, s.offset); got != s.exp {
			t.Errorf("[spec %d] expected value at offset %d to be %v; got %v", index, s.offset, s.exp, got)
		}
	}

	out, err := UnpackMaterials(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(out[0], mat) {
		t.Fatalf("expected decoded material to be %v; got %v", mat, out[0])
	}
}

func TestUniformLayout(t *testing.T) {
	cam := scene.NewCamera(60)
	cam.LookAt(types.Vec3{1, 2, 3}, types.Vec3{1, 2, 0}, types.Vec3{0, 1, 0})
	cam.SetAspect(200, 100)

	u := &Uniforms{
		Camera:      *cam,
		Width:       200,
		Height:      100,
		FrameIndex:  17,
		LightCount:  3,
		NodeCount:   9,
		Background:  types.Vec3{0.5, 0.25, 0.125},
		AtlasWidth:  64,
		AtlasHeight: 32,
		Options:     kernel.Options{MaxBounces: 5, MinBouncesForRR: 3},
		Display:     kernel.Display{Exposure: 1.5, ToneMapper: kernel.ACES},
	}
	data := PackUniforms(u)
	if len(data) != UniformSize {
		t.Fatalf("expected uniform size to be %d; got %d", UniformSize, len(data))
	}

	type spec struct {
		offset int
		exp    uint32
	}
	u32Specs := []spec{
		{44, 200}, {60, 100}, {64, 17}, {68, 3}, {72, 5}, {76, 3}, {92, 9}, {96, 64}, {100, 32}, {108, uint32(kernel.ACES)},
	}
	for index, s := range u32Specs {
		if got := readU32(data, s.offset); got != s.exp {
			t.Errorf("[spec %d] expected value at offset %d to be %d; got %d", index, s.offset, s.exp, got)
		}
	}

	f32Specs := []struct {
		offset int
		exp    float32
	}{
		{0, 1}, {4, 2}, {8, 3}, {12, 60}, {24, -1}, {28, 2}, {32, 1}, {52, 1}, {80, 0.5}, {88, 0.125}, {104, 1.5},
	}
	for index, s := range f32Specs {
		if got := readF32(data, s.offset); got != s.exp {
			t.Errorf("[spec %d] expected value at offset %d to be %v; got %v", index, s.offset, s.exp, got)
		}
	}
}

func TestUnpackRejectsPartialRecords(t *testing.T) {
	type spec struct {
		name   string
		unpack func([]byte) error
		stride int
	}
	specs := []spec{
		{"triangles", func(b []byte) error { _, err := UnpackTriangles(b); return err }, TriangleStride},
		{"nodes", func(b []byte) error { _, err := UnpackBvhNodes(b); return err }, BvhNodeStride},
		{"lights", func(b []byte) error { _, err := UnpackLights(b); return err }, LightStride},
		{"materials", func(b []byte) error { _, err := UnpackMaterials(b); return err }, MaterialStride},
		{"texels", func(b []byte) error { _, err := UnpackTexels(b); return err }, TexelStride},
	}

	for _, s := range specs {
		if err := s.unpack(make([]byte, s.stride+4)); !errors.Is(err, ErrInvalidLayout) {
			t.Errorf("[%s] expected error to be %v; got %v", s.name, ErrInvalidLayout, err)
		}
		if err := s.unpack(make([]byte, 2*s.stride)); err != nil {
			t.Errorf("[%s] expected whole records to decode; got %v", s.name, err)
		}
	}
}

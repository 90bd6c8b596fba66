package compiler

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/lumen-rt/lumen/asset"
	"github.com/lumen-rt/lumen/asset/compiler/input"
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/types"
)

func quadPrimitive(matIndex int) *input.Primitive {
	n := types.Vec3{0, 1, 0}
	return &input.Primitive{
		Positions: []types.Vec3{{-1, 0, -1}, {1, 0, -1}, {1, 0, 1}, {-1, 0, 1}},
		Normals:   []types.Vec3{n, n, n, n},
		UVs:       []types.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},

		MaterialIndex: matIndex,
	}
}

func quadScene() *input.Scene {
	sc := input.NewScene()
	sc.Materials = append(sc.Materials, input.NewMaterial("white"))
	mesh := input.NewMesh("quad")
	mesh.Primitives = append(mesh.Primitives, quadPrimitive(0))
	sc.Meshes = append(sc.Meshes, mesh)

	node := input.NewNode("quad")
	node.Mesh = 0
	sc.AddNode(node, -1)
	return sc
}

func TestFlattenHierarchy(t *testing.T) {
	sc := quadScene()

	parent := input.NewNode("parent")
	parent.Transform = types.Translate4(types.Vec3{0, 10, 0})
	parentIndex := sc.AddNode(parent, -1)

	child := input.NewNode("child")
	child.Transform = types.Translate4(types.Vec3{5, 0, 0})
	child.Mesh = 0
	sc.AddNode(child, parentIndex)

	flat, err := Flatten(sc)
	if err != nil {
		t.Fatal(err)
	}

	if len(flat.Triangles) != 4 {
		t.Fatalf("expected 4 triangles; got %d", len(flat.Triangles))
	}

	// Each (node, primitive) pair gets its own material slot
	if len(flat.Materials) != 2 {
		t.Fatalf("expected 2 material slots; got %d", len(flat.Materials))
	}
	if flat.Triangles[0].MaterialIndex != 0 || flat.Triangles[2].MaterialIndex != 1 {
		t.Fatalf("expected triangles to reference per-node slots; got %d and %d", flat.Triangles[0].MaterialIndex, flat.Triangles[2].MaterialIndex)
	}

	expV0 := types.Vec3{4, 10, -1}
	if flat.Triangles[2].Vertices[0] != expV0 {
		t.Fatalf("expected child vertex to be transformed to %v; got %v", expV0, flat.Triangles[2].Vertices[0])
	}
}

func TestFlattenTransformsNormals(t *testing.T) {
	sc := input.NewScene()
	sc.Materials = append(sc.Materials, input.NewMaterial("white"))

	n := types.Vec3{1, 1, 0}.Normalize()
	mesh := input.NewMesh("tri")
	mesh.Primitives = append(mesh.Primitives, &input.Primitive{
		Positions: []types.Vec3{{0, 0, 0}, {1, -1, 0}, {0, 0, 1}},
		Normals:   []types.Vec3{n, n, n},
		Indices:   []uint32{0, 1, 2},
	})
	sc.Meshes = append(sc.Meshes, mesh)

	node := input.NewNode("scaled")
	node.Transform = types.Scale4(types.Vec3{2, 1, 1})
	node.Mesh = 0
	sc.AddNode(node, -1)

	flat, err := Flatten(sc)
	if err != nil {
		t.Fatal(err)
	}

	// The inverse-transpose keeps the normal perpendicular to the scaled surface
	exp := types.Vec3{0.5, 1, 0}.Normalize()
	got := flat.Triangles[0].Normals[0]
	for axis := 0; axis < 3; axis++ {
		if math.Abs(float64(exp[axis]-got[axis])) > 1e-5 {
			t.Fatalf("expected transformed normal to be %v; got %v", exp, got)
		}
	}

	edge := flat.Triangles[0].Vertices[1].Sub(flat.Triangles[0].Vertices[0])
	if d := edge.Dot(got); math.Abs(float64(d)) > 1e-5 {
		t.Fatalf("expected normal to be perpendicular to the transformed edge; dot = %f", d)
	}
}

func TestFlattenLights(t *testing.T) {
	sc := input.NewScene()
	sc.Lights = append(sc.Lights,
		&input.Light{Type: input.PointLight, Position: types.Vec3{0, 1, 0}, Intensity: 10, Color: types.Vec3{1, 1, 1}},
		&input.Light{Type: input.DirectionalLight, Direction: types.Vec3{0, 0, -1}, Intensity: 2, Color: types.Vec3{1, 1, 1}},
	)

	point := input.NewNode("point")
	point.Transform = types.Translate4(types.Vec3{0, 4, 0})
	point.Light = 0
	sc.AddNode(point, -1)

	sun := input.NewNode("sun")
	sun.Transform = types.QuatFromAxisAngle(types.Vec3{1, 0, 0}, -math.Pi/2).Mat4()
	sun.Light = 1
	sc.AddNode(sun, -1)

	flat, err := Flatten(sc)
	if err != nil {
		t.Fatal(err)
	}

	if len(flat.Lights) != 2 {
		t.Fatalf("expected 2 lights; got %d", len(flat.Lights))
	}
	if flat.Lights[0].Type != scene.PointLight || flat.Lights[0].Position != (types.Vec3{0, 5, 0}) {
		t.Fatalf("expected point light at [0 5 0]; got %+v", flat.Lights[0])
	}
	dir := flat.Lights[1].Position
	if flat.Lights[1].Type != scene.DirectionalLight || math.Abs(float64(dir[1]+1)) > 1e-5 {
		t.Fatalf("expected directional light pointing down; got %+v", flat.Lights[1])
	}
}

func TestFlattenErrors(t *testing.T) {
	type spec struct {
		mutate func(*input.Primitive)
		expErr error
	}

	specs := []spec{
		{func(p *input.Primitive) { p.IndexFormat = input.Uint32Indices }, ErrUnsupportedIndexWidth},
		{func(p *input.Primitive) {
			p.Positions = make([]types.Vec3, maxPrimitiveVertices+1)
			p.Normals = make([]types.Vec3, maxPrimitiveVertices+1)
		}, ErrUnsupportedIndexWidth},
		{func(p *input.Primitive) { p.Indices = nil }, ErrEmptyIndexBuffer},
		{func(p *input.Primitive) { p.Indices = p.Indices[:4] }, ErrEmptyIndexBuffer},
		{func(p *input.Primitive) { p.Normals = nil }, ErrMissingNormals},
		{func(p *input.Primitive) { p.Indices[5] = 4 }, ErrIndexOutOfRange},
		{func(p *input.Primitive) { p.MaterialIndex = 3 }, ErrInvalidMaterialRef},
	}

	for index, s := range specs {
		sc := quadScene()
		s.mutate(sc.Meshes[0].Primitives[0])

		_, err := Flatten(sc)
		if !errors.Is(err, s.expErr) {
			t.Fatalf("[spec %d] expected error %q; got %v", index, s.expErr, err)
		}
	}
}

func TestFlattenRejectsSharedNodes(t *testing.T) {
	sc := quadScene()
	sc.Roots = append(sc.Roots, 0)

	if _, err := Flatten(sc); !errors.Is(err, ErrInvalidNodeRef) {
		t.Fatalf("expected error %q; got %v", ErrInvalidNodeRef, err)
	}
}

func TestCompileCollectsEmissiveLights(t *testing.T) {
	sc := input.NewScene()
	white := input.NewMaterial("white")
	light := input.NewMaterial("light")
	light.Emission = types.Vec3{1, 1, 1}
	light.EmissiveStrength = 5
	sc.Materials = append(sc.Materials, white, light)
	sc.Lights = append(sc.Lights, &input.Light{Type: input.PointLight, Intensity: 1, Color: types.Vec3{1, 1, 1}})

	mesh := input.NewMesh("quads")
	mesh.Primitives = append(mesh.Primitives, quadPrimitive(0))
	sc.Meshes = append(sc.Meshes, mesh)

	emissiveMesh := input.NewMesh("emitter")
	emissiveMesh.Primitives = append(emissiveMesh.Primitives, quadPrimitive(1))
	sc.Meshes = append(sc.Meshes, emissiveMesh)

	// A grid of diffuse quads plus one emitter to force a multi-level tree
	for x := 0; x < 8; x++ {
		node := input.NewNode("quad")
		node.Transform = types.Translate4(types.Vec3{float32(x) * 3, 0, 0})
		node.Mesh = 0
		sc.AddNode(node, -1)
	}
	emitter := input.NewNode("emitter")
	emitter.Transform = types.Translate4(types.Vec3{10, 5, 0})
	emitter.Mesh = 1
	sc.AddNode(emitter, -1)

	lightNode := input.NewNode("light")
	lightNode.Light = 0
	sc.AddNode(lightNode, -1)

	out, err := Compile(sc, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	if len(out.Triangles) != 18 {
		t.Fatalf("expected 18 triangles; got %d", len(out.Triangles))
	}
	if len(out.Lights) != 3 {
		t.Fatalf("expected 3 lights; got %d", len(out.Lights))
	}
	if out.Lights[0].Type != scene.PointLight {
		t.Fatalf("expected analytic lights to precede emissive lights; got %v first", out.Lights[0].Type)
	}

	for _, l := range out.Lights[1:] {
		if l.Type != scene.EmissiveLight {
			t.Fatalf("expected emissive light; got %v", l.Type)
		}
		tri := out.Triangles[l.TriangleIndex]
		if !out.Materials[tri.MaterialIndex].IsEmissive() {
			t.Fatalf("expected emissive light to reference an emissive triangle; got triangle %d", l.TriangleIndex)
		}
		if tri.Vertices[0][1] != 5 {
			t.Fatalf("expected emissive triangle to belong to the emitter; got %v", tri.Vertices)
		}
	}
}

func TestCompileCamera(t *testing.T) {
	sc := quadScene()
	sc.Camera = &input.Camera{FOV: 60, Eye: types.Vec3{0, 0, 5}, Look: types.Vec3{0, 0, 0}, Up: types.Vec3{0, 1, 0}}
	sc.Background = types.Vec3{0.1, 0.2, 0.3}

	out, err := Compile(sc, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	if out.Camera.FOV != 60 || out.Camera.Position != (types.Vec3{0, 0, 5}) {
		t.Fatalf("expected camera at [0 0 5] with fov 60; got %+v", out.Camera)
	}
	if out.Camera.Forward != (types.Vec3{0, 0, -1}) {
		t.Fatalf("expected camera to look down -Z; got %v", out.Camera.Forward)
	}
	if out.Background != sc.Background {
		t.Fatalf("expected background to be %v; got %v", sc.Background, out.Background)
	}
	if out.Atlas != nil {
		t.Fatal("expected no atlas for an untextured scene")
	}
}

func TestCompileTextures(t *testing.T) {
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, "albedo.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err = png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	mtlPath := filepath.Join(dir, "scene.mtl")
	if err = os.WriteFile(mtlPath, []byte("newmtl white\n"), 0644); err != nil {
		t.Fatal(err)
	}
	mtlRes, err := asset.NewResource(mtlPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	mtlRes.Close()

	sc := quadScene()
	sc.Materials[0].AlbedoTex = "albedo.png"
	sc.Materials[0].NormalTex = "missing.png"
	sc.Materials[0].AssetRelPath = mtlRes

	out, err := Compile(sc, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	if out.Atlas == nil {
		t.Fatal("expected an atlas to be generated")
	}
	mat := out.Materials[0]
	if mat.AlbedoTex.Empty() {
		t.Fatal("expected albedo texture rect to be assigned")
	}
	if !mat.NormalTex.Empty() {
		t.Fatal("expected missing normal texture to be skipped")
	}
	if texel := out.Atlas.Sample(mat.AlbedoTex, types.Vec2{0.5, 0.5}); texel != (types.Vec4{1, 1, 1, 1}) {
		t.Fatalf("expected albedo texel to be white; got %v", texel)
	}
}

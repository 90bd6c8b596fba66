package compiler

import (
	"time"

	"github.com/lumen-rt/lumen/asset"
	"github.com/lumen-rt/lumen/asset/compiler/bvh"
	"github.com/lumen-rt/lumen/asset/compiler/input"
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/asset/texture"
	"github.com/lumen-rt/lumen/log"
)

// Compiler options.
type Options struct {
	Bvh bvh.Options
}

// Get the default compiler options.
func DefaultOptions() Options {
	return Options{Bvh: bvh.DefaultOptions()}
}

type textureKey struct {
	path  string
	space texture.ColorSpace
}

type sceneCompiler struct {
	parsedScene    *input.Scene
	optimizedScene *scene.Scene
	opts           Options
	logger         log.Logger

	flattened *Flattened

	// A map of a texture path to its packer index. This cache allows us to
	// re-use already loaded textures when referenced by multiple materials.
	texIndexCache map[textureKey]int
	packer        texture.Packer
}

// Compile a scene representation parsed by a scene reader into a flat,
// device-friendly scene with a BVH, a light list and a texture atlas.
func Compile(parsedScene *input.Scene, opts Options) (*scene.Scene, error) {
	compiler := &sceneCompiler{
		parsedScene:    parsedScene,
		optimizedScene: &scene.Scene{Background: parsedScene.Background},
		opts:           opts,
		logger:         log.New("scene compiler"),
		texIndexCache:  make(map[textureKey]int),
	}

	start := time.Now()
	compiler.logger.Noticef("compiling scene")

	var err error
	compiler.flattened, err = Flatten(parsedScene)
	if err != nil {
		return nil, err
	}
	compiler.logger.Infof(
		"flattened scene graph into %d triangles, %d material slots and %d analytic lights",
		len(compiler.flattened.Triangles), len(compiler.flattened.Materials), len(compiler.flattened.Lights),
	)

	compiler.bakeTextures()
	compiler.partitionGeometry()
	compiler.collectLights()
	compiler.setupCamera()

	compiler.logger.Noticef("compiled scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return compiler.optimizedScene, nil
}

// Load the textures referenced by each material slot and pack them into an atlas.
func (sc *sceneCompiler) bakeTextures() {
	start := time.Now()

	type pendingRect struct {
		rect     *scene.TextureRect
		texIndex int
	}
	var pending []pendingRect

	materials := sc.flattened.Materials
	for slot := range materials {
		src := sc.flattened.MaterialSources[slot]
		mat := &materials[slot]

		refs := []struct {
			path  string
			space texture.ColorSpace
			rect  *scene.TextureRect
		}{
			{src.AlbedoTex, texture.SRGB, &mat.AlbedoTex},
			{src.NormalTex, texture.Linear, &mat.NormalTex},
			{src.MetallicRoughnessTex, texture.Linear, &mat.MetallicRoughnessTex},
			{src.EmissiveTex, texture.SRGB, &mat.EmissiveTex},
		}
		for _, ref := range refs {
			if ref.path == "" {
				continue
			}
			if texIndex, ok := sc.loadTexture(src, ref.path, ref.space); ok {
				pending = append(pending, pendingRect{rect: ref.rect, texIndex: texIndex})
			}
		}
	}

	if sc.packer.Len() == 0 {
		sc.optimizedScene.Materials = materials
		return
	}

	atlas, rects := sc.packer.Pack()
	for _, p := range pending {
		*p.rect = rects[p.texIndex]
	}

	sc.optimizedScene.Materials = materials
	sc.optimizedScene.Atlas = atlas
	sc.logger.Noticef(
		"packed %d textures into a %dx%d atlas in %d ms",
		sc.packer.Len(), atlas.Width, atlas.Height, time.Since(start).Nanoseconds()/1e6,
	)
}

// Load a texture resource and queue it for packing. Missing or undecodable
// textures are skipped with a warning.
func (sc *sceneCompiler) loadTexture(mat *input.Material, texPath string, space texture.ColorSpace) (int, bool) {
	res, err := asset.NewResource(texPath, mat.AssetRelPath)
	if err != nil {
		sc.logger.Warningf("%q: skipping missing texture %q", mat.Name, texPath)
		return -1, false
	}
	defer res.Close()

	key := textureKey{path: res.Path(), space: space}
	if texIndex, exists := sc.texIndexCache[key]; exists {
		sc.logger.Infof("%q: re-using already loaded texture %q", mat.Name, texPath)
		return texIndex, true
	}

	sc.logger.Infof("%q: processing texture %q", mat.Name, texPath)
	tex, err := texture.New(res, space)
	if err != nil {
		sc.logger.Warningf("%q: skipping texture: %v", mat.Name, err)
		return -1, false
	}

	texIndex := sc.packer.Add(tex)
	sc.texIndexCache[key] = texIndex
	return texIndex, true
}

// Build the scene BVH. The flattened triangle list is consumed by the builder.
func (sc *sceneCompiler) partitionGeometry() {
	start := time.Now()
	sc.logger.Noticef("partitioning geometry (%d triangles)", len(sc.flattened.Triangles))

	nodes, triangles := bvh.Build(sc.flattened.Triangles, sc.opts.Bvh)
	sc.flattened.Triangles = nil

	sc.optimizedScene.BvhNodes = nodes
	sc.optimizedScene.Triangles = triangles
	sc.logger.Noticef("partitioned geometry into %d BVH nodes in %d ms", len(nodes), time.Since(start).Nanoseconds()/1e6)
}

// Assemble the scene light list: analytic lights followed by one emissive
// light per emitting triangle. Emissive lights reference triangles by their
// index in the BVH-ordered triangle list.
func (sc *sceneCompiler) collectLights() {
	lights := append([]scene.Light(nil), sc.flattened.Lights...)

	for triIndex := range sc.optimizedScene.Triangles {
		tri := &sc.optimizedScene.Triangles[triIndex]
		mat := &sc.optimizedScene.Materials[tri.MaterialIndex]
		if !mat.IsEmissive() || tri.Area() <= 0 {
			continue
		}

		lights = append(lights, scene.Light{
			Type:          scene.EmissiveLight,
			TriangleIndex: uint32(triIndex),
			Intensity:     mat.EmissiveStrength,
			Color:         mat.Emission,
		})
	}
	sc.optimizedScene.Lights = lights

	if len(lights) == 0 {
		sc.logger.Warning("the scene contains no emissive triangles or analytic lights; only the background will contribute light!")
		return
	}
	sc.logger.Infof(
		"collected %d lights (%d emissive, %d directional, %d point)",
		len(lights),
		sc.optimizedScene.LightCount(scene.EmissiveLight),
		sc.optimizedScene.LightCount(scene.DirectionalLight),
		sc.optimizedScene.LightCount(scene.PointLight),
	)
}

// Initialize and position the camera for the scene.
func (sc *sceneCompiler) setupCamera() {
	cam := sc.parsedScene.Camera
	if cam == nil {
		sc.optimizedScene.Camera = scene.NewCamera(45)
		return
	}

	sc.optimizedScene.Camera = scene.NewCamera(cam.FOV)
	sc.optimizedScene.Camera.LookAt(cam.Eye, cam.Look, cam.Up)
}

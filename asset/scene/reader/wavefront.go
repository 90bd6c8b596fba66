package reader

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lumen-rt/lumen/asset"
	"github.com/lumen-rt/lumen/asset/compiler"
	"github.com/lumen-rt/lumen/asset/compiler/input"
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/log"
	"github.com/lumen-rt/lumen/types"
)

// Primitives are split before they need 32-bit indices.
const maxPrimitiveVertices = 65535

type wavefrontMaterial struct {
	Name string

	// Albedo color.
	Kd types.Vec3

	// Emissive color and strength.
	Ke  types.Vec3
	Kes float32

	// Transmission filter and dissolve.
	Tf types.Vec3
	Tr float32

	// Index of refraction.
	Ni float32

	// PBR extension: metallic and roughness.
	Pm float32
	Pr float32

	// Textures for modulating above parameters.
	KdTex     string
	KeTex     string
	PmPrTex   string
	NormalTex string

	// Relative path for textures.
	AssetRelPath *asset.Resource

	// True if this material is used by at least one primitive.
	Used bool
}

func newWavefrontMaterial(name string, relPath *asset.Resource) *wavefrontMaterial {
	return &wavefrontMaterial{
		Name:         name,
		Kd:           types.Vec3{0.7, 0.7, 0.7},
		Kes:          1.0,
		Ni:           scene.DefaultIOR,
		Pr:           1.0,
		AssetRelPath: relPath,
	}
}

// Convert to a metallic-roughness input material.
func (wf *wavefrontMaterial) toMaterial() *input.Material {
	mat := input.NewMaterial(wf.Name)
	mat.BaseColor = wf.Kd
	mat.Emission = wf.Ke
	mat.EmissiveStrength = wf.Kes
	mat.IOR = wf.Ni
	mat.Metallic = wf.Pm
	mat.Roughness = wf.Pr
	mat.Transmission = wf.Tr
	if tf := wf.Tf.MaxComponent(); tf > mat.Transmission {
		mat.Transmission = tf
	}
	mat.AlbedoTex = wf.KdTex
	mat.EmissiveTex = wf.KeTex
	mat.MetallicRoughnessTex = wf.PmPrTex
	mat.NormalTex = wf.NormalTex
	mat.AssetRelPath = wf.AssetRelPath
	return mat
}

// Each face vertex is identified by its position/uv/normal indices. Faces
// without normals get a generated face normal and are never shared.
type faceVertex struct {
	v, vt, vn int
}

// Accumulates the indexed primitive for a (mesh, material) pair.
type primitiveBuilder struct {
	prim  *input.Primitive
	cache map[faceVertex]uint32
}

type pendingInstance struct {
	meshName  string
	transform types.Mat4
	file      string
	line      int
}

type wavefrontSceneReader struct {
	logger log.Logger
	opts   compiler.Options

	// The parsed scene.
	rawScene *input.Scene

	// A map of material names to parsed wavefront materials
	matNameToIndex map[string]int

	// Currently selected material.
	curMaterial *wavefrontMaterial

	// Parsed wavefront materials.
	materials []*wavefrontMaterial

	// List of vertices, normals and uv coords.
	vertexList []types.Vec3
	normalList []types.Vec3
	uvList     []types.Vec2

	// Open primitive builders for the current mesh keyed by material index.
	builders map[int]*primitiveBuilder

	instances []pendingInstance

	// An error stack that provides additional error information when
	// scene files include other files (models, mat libs e.t.c)
	errStack []string
}

// Create a new wavefront scene reader.
func newWavefrontReader(opts compiler.Options) *wavefrontSceneReader {
	return &wavefrontSceneReader{
		logger:         log.New("wavefront scene reader"),
		opts:           opts,
		rawScene:       input.NewScene(),
		matNameToIndex: make(map[string]int, 0),
		vertexList:     make([]types.Vec3, 0),
		normalList:     make([]types.Vec3, 0),
		uvList:         make([]types.Vec2, 0),
		builders:       make(map[int]*primitiveBuilder),
		errStack:       make([]string, 0),
	}
}

// Read and compile a scene definition.
func (r *wavefrontSceneReader) Read(sceneRes *asset.Resource) (*scene.Scene, error) {
	rawScene, err := r.ReadRaw(sceneRes)
	if err != nil {
		return nil, err
	}

	// Compile scene into an optimized, device-friendly format
	return compiler.Compile(rawScene, r.opts)
}

// Parse a scene definition into a scene graph without compiling it.
func (r *wavefrontSceneReader) ReadRaw(sceneRes *asset.Resource) (*input.Scene, error) {
	r.logger.Noticef(`parsing scene from "%s"`, sceneRes.Path())
	start := time.Now()

	err := r.parse(sceneRes)
	if err != nil {
		return nil, err
	}

	err = r.createMeshNodes()
	if err != nil {
		return nil, err
	}

	r.processMaterials()

	r.logger.Noticef("parsed scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return r.rawScene, nil
}

// Generate scene materials for material entries that are in use and update the
// material indices for all parsed primitives.
func (r *wavefrontSceneReader) processMaterials() {
	wfMaterialToSceneMaterial := make(map[int]int, 0)
	pruned := 0
	for wfIndex, wfMat := range r.materials {
		if !wfMat.Used {
			r.logger.Infof("skipping unused material %q", wfMat.Name)
			pruned++
			continue
		}

		r.rawScene.Materials = append(r.rawScene.Materials, wfMat.toMaterial())
		wfMaterialToSceneMaterial[wfIndex] = len(r.rawScene.Materials) - 1
	}

	// For each primitive, map wavefront material indices to the generated materials
	for _, mesh := range r.rawScene.Meshes {
		for _, prim := range mesh.Primitives {
			prim.MaterialIndex = wfMaterialToSceneMaterial[prim.MaterialIndex]
		}
	}

	if pruned > 0 {
		r.logger.Noticef("pruned %d unused materials", pruned)
	}
}

// Attach meshes to scene graph nodes. If no instances are defined each mesh
// gets a root node with an identity transformation.
func (r *wavefrontSceneReader) createMeshNodes() error {
	if len(r.instances) == 0 {
		for meshIndex, mesh := range r.rawScene.Meshes {
			node := input.NewNode(mesh.Name)
			node.Mesh = meshIndex
			r.rawScene.AddNode(node, -1)
		}
		return nil
	}

	for _, inst := range r.instances {
		meshIndex := -1
		for index, mesh := range r.rawScene.Meshes {
			if mesh.Name == inst.meshName {
				meshIndex = index
				break
			}
		}
		if meshIndex == -1 {
			return r.emitError(inst.file, inst.line, `unknown mesh with name "%s"`, inst.meshName)
		}

		node := input.NewNode(inst.meshName)
		node.Transform = inst.transform
		node.Mesh = meshIndex
		r.rawScene.AddNode(node, -1)
	}
	return nil
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontSceneReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = strings.Trim(
			fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	} else {
		errMsg = strings.Trim(
			fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	}

	return errors.New(errMsg)
}

// Push a frame to the error stack.
func (r *wavefrontSceneReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontSceneReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Create and select a default material for surfaces not using one.
func (r *wavefrontSceneReader) defaultMaterial() *wavefrontMaterial {
	matName := ""

	// Search for material in referenced list
	matIndex, exists := r.matNameToIndex[matName]
	if !exists {
		// Add it now
		r.materials = append(r.materials, newWavefrontMaterial(matName, nil))
		matIndex = len(r.materials) - 1
		r.matNameToIndex[matName] = matIndex
	}
	r.curMaterial = r.materials[matIndex]
	return r.curMaterial
}

// Parse wavefront object scene format.
func (r *wavefrontSceneReader) parse(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	// The main obj file may include (call) several other object files. Each
	// object file contains 1-based indices (when they are positive). By
	// tracking the current vertex/uv/normal offsets we can apply them
	// while parsing faces to select the correct coordinates.
	relVertexOffset := len(r.vertexList)
	relUvOffset := len(r.uvList)
	relNormalOffset := len(r.normalList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			switch lineTokens[0] {
			case "call":
				err = r.parse(incRes)
			case "mtllib":
				err = r.parseMaterials(incRes)
			}
			incRes.Close()

			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "usemtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			// Lookup material
			matName := lineTokens[1]
			matIndex, exists := r.matNameToIndex[matName]
			if !exists {
				return r.emitError(res.Path(), lineNum, `undefined material with name "%s"`, matName)
			}

			// Activate material
			r.curMaterial = r.materials[matIndex]
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.normalList = append(r.normalList, v)
		case "vt":
			v, err := parseVec2(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.uvList = append(r.uvList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument for object name; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.verifyLastParsedMesh()
			r.rawScene.Meshes = append(r.rawScene.Meshes, input.NewMesh(lineTokens[1]))
			r.builders = make(map[int]*primitiveBuilder)
		case "f":
			// If no object has been defined create a default one
			if len(r.rawScene.Meshes) == 0 {
				r.rawScene.Meshes = append(r.rawScene.Meshes, input.NewMesh("default"))
			}

			err = r.parseFace(lineTokens, relVertexOffset, relUvOffset, relNormalOffset)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "camera_fov":
			r.rawScene.Camera.FOV, err = parseFloat32(lineTokens)
		case "camera_eye":
			r.rawScene.Camera.Eye, err = parseVec3(lineTokens)
		case "camera_look":
			r.rawScene.Camera.Look, err = parseVec3(lineTokens)
		case "camera_up":
			r.rawScene.Camera.Up, err = parseVec3(lineTokens)
		case "background":
			r.rawScene.Background, err = parseVec3(lineTokens)
		case "light_point", "light_dir":
			err = r.parseLight(lineTokens)
		case "instance":
			var inst pendingInstance
			inst, err = parseMeshInstance(lineTokens)
			inst.file, inst.line = res.Path(), lineNum
			if err == nil {
				r.instances = append(r.instances, inst)
			}
		}

		if err != nil {
			return r.emitError(res.Path(), lineNum, "%s", err.Error())
		}
	}

	r.verifyLastParsedMesh()
	return scanner.Err()
}

// Drop the last parsed mesh if it contains no primitives.
func (r *wavefrontSceneReader) verifyLastParsedMesh() {
	lastMeshIndex := len(r.rawScene.Meshes) - 1
	if lastMeshIndex >= 0 && len(r.rawScene.Meshes[lastMeshIndex].Primitives) == 0 {
		r.logger.Warningf(`dropping mesh "%s" as it contains no polygons`, r.rawScene.Meshes[lastMeshIndex].Name)
		r.rawScene.Meshes = r.rawScene.Meshes[:lastMeshIndex]
	}
}

// Parse a light definition and attach it to a new root node. Definitions use
// the following formats:
// light_point x y z r g b intensity [radius]
// light_dir dx dy dz r g b intensity
func (r *wavefrontSceneReader) parseLight(lineTokens []string) error {
	minArgs, maxArgs := 7, 7
	if lineTokens[0] == "light_point" {
		maxArgs = 8
	}
	if len(lineTokens)-1 < minArgs || len(lineTokens)-1 > maxArgs {
		return fmt.Errorf(`unsupported syntax for "%s"; expected %d arguments; got %d`, lineTokens[0], minArgs, len(lineTokens)-1)
	}

	values, err := parseFloats(lineTokens[1:])
	if err != nil {
		return err
	}

	light := &input.Light{
		Name:      lineTokens[0],
		Color:     types.Vec3{values[3], values[4], values[5]},
		Intensity: values[6],
	}
	vec := types.Vec3{values[0], values[1], values[2]}
	switch lineTokens[0] {
	case "light_point":
		light.Type = input.PointLight
		light.Position = vec
		if len(values) == 8 {
			light.Radius = values[7]
		}
	case "light_dir":
		if vec.LenSq() == 0 {
			return fmt.Errorf(`"light_dir" requires a non-zero direction`)
		}
		light.Type = input.DirectionalLight
		light.Direction = vec.Normalize()
	}

	r.rawScene.Lights = append(r.rawScene.Lights, light)
	node := input.NewNode(light.Name)
	node.Light = len(r.rawScene.Lights) - 1
	r.rawScene.AddNode(node, -1)
	return nil
}

// Parse mesh instance definition. Definitions use the following format:
// instance mesh_name tX tY tZ yaw pitch roll sX sY sZ
// where:
// - tX, tY, tZ       : translation vector
// - yaw, pitch, roll : rotation angles in degrees around the Y, X and Z axes
// - sX, sY, sZ	      : scale
func parseMeshInstance(lineTokens []string) (pendingInstance, error) {
	if len(lineTokens) != 11 {
		return pendingInstance{}, fmt.Errorf(`unsupported syntax for "instance"; expected 10 arguments: mesh_name tX tY tZ yaw pitch roll sX sY sZ; got %d`, len(lineTokens)-1)
	}

	values, err := parseFloats(lineTokens[2:])
	if err != nil {
		return pendingInstance{}, err
	}

	translation := types.Vec3{values[0], values[1], values[2]}
	var rotation types.Vec3
	for index := 0; index < 3; index++ {
		rotation[index] = values[3+index] * math.Pi / 180.0
	}
	scale := types.Vec3{values[6], values[7], values[8]}

	// Generate final matrix: M = T * R * S
	yawQuat := types.QuatFromAxisAngle(types.Vec3{0, 1, 0}, rotation[0])
	pitchQuat := types.QuatFromAxisAngle(types.Vec3{1, 0, 0}, rotation[1])
	rollQuat := types.QuatFromAxisAngle(types.Vec3{0, 0, 1}, rotation[2])
	rotMat := yawQuat.Mul(pitchQuat.Mul(rollQuat)).Normalize().Mat4()

	return pendingInstance{
		meshName:  lineTokens[1],
		transform: types.Translate4(translation).Mul4(rotMat.Mul4(types.Scale4(scale))),
	}, nil
}

// Parse face definition. Each face definitions consists of 3 arguments,
// one for each vertex. Each one of the vertex arguments is comprised of
// 1, 2 or 3 args separated by a slash character. The following formats are
// supported:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate
// an offset off the end of the vertex/uv list.
//
// This method only works with triangular/quad faces and will return an error if a
// face with more than 4 vertices is encountered.
func (r *wavefrontSceneReader) parseFace(lineTokens []string, relVertexOffset, relUvOffset, relNormalOffset int) error {
	if len(lineTokens) < 4 || len(lineTokens) > 5 {
		return fmt.Errorf(`unsupported syntax for "f"; expected 3 arguments for triangular face or 4 arguments for a quad face; got %d. Select the triangulation option in your exporter`, len(lineTokens)-1)
	}

	var keys [4]faceVertex
	var err error
	expIndices := 0
	hasNormals := false
	for arg := 0; arg < len(lineTokens)-1; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")
		keys[arg] = faceVertex{v: -1, vt: -1, vn: -1}

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		// Faces must at least define a vertex coord
		if vTokens[0] == "" {
			return fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		keys[arg].v, err = selectFaceCoordIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}

		// Parse UV coords if specified
		if expIndices > 1 && vTokens[1] != "" {
			keys[arg].vt, err = selectFaceCoordIndex(vTokens[1], len(r.uvList), relUvOffset)
			if err != nil {
				return fmt.Errorf("could not parse tex coord for face argument %d: %s", arg, err.Error())
			}
		}

		// Parse normal coords if specified. Either all face arguments
		// define a normal or none of them does.
		argHasNormal := expIndices > 2 && vTokens[2] != ""
		if arg == 0 {
			hasNormals = argHasNormal
		} else if argHasNormal != hasNormals {
			return fmt.Errorf("face argument %d does not match the normal index format of argument 0", arg)
		}
		if argHasNormal {
			keys[arg].vn, err = selectFaceCoordIndex(vTokens[2], len(r.normalList), relNormalOffset)
			if err != nil {
				return fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
		}
	}

	// If no material defined select the default. Also flag the current material
	// as being in use so we don't prune it later.
	if r.curMaterial == nil {
		r.curMaterial = r.defaultMaterial()
	}
	r.curMaterial.Used = true

	// If no normals are available generate them from the vertices
	var faceNormal types.Vec3
	if !hasNormals {
		e01 := r.vertexList[keys[1].v].Sub(r.vertexList[keys[0].v])
		e02 := r.vertexList[keys[2].v].Sub(r.vertexList[keys[0].v])
		faceNormal = e01.Cross(e02).Normalize()
	}

	faceVertices := len(lineTokens) - 1
	builder := r.primitiveBuilder(r.matNameToIndex[r.curMaterial.Name], faceVertices)

	var vertIndices [4]uint32
	for arg := 0; arg < faceVertices; arg++ {
		vertIndices[arg] = r.addVertex(builder, keys[arg], hasNormals, faceNormal)
	}

	// Assemble vertices into one or two triangles depending on whether we are parsing a triangular or a quad face
	indiceList := [][3]int{{0, 1, 2}}
	if faceVertices == 4 {
		indiceList = append(indiceList, [3]int{0, 2, 3})
	}
	for _, indices := range indiceList {
		for _, selectIndex := range indices {
			builder.prim.Indices = append(builder.prim.Indices, vertIndices[selectIndex])
		}
	}

	return nil
}

// Get the primitive builder for the current mesh and the given material,
// starting a new primitive if the current one cannot hold the extra vertices.
func (r *wavefrontSceneReader) primitiveBuilder(matIndex, extraVertices int) *primitiveBuilder {
	builder, exists := r.builders[matIndex]
	if exists && len(builder.prim.Positions)+extraVertices <= maxPrimitiveVertices {
		return builder
	}

	mesh := r.rawScene.Meshes[len(r.rawScene.Meshes)-1]
	if exists {
		r.logger.Infof(`splitting mesh "%s": primitive reached %d vertices`, mesh.Name, len(builder.prim.Positions))
	}

	builder = &primitiveBuilder{
		prim: &input.Primitive{
			IndexFormat:   input.Uint16Indices,
			MaterialIndex: matIndex,
		},
		cache: make(map[faceVertex]uint32),
	}
	mesh.Primitives = append(mesh.Primitives, builder.prim)
	r.builders[matIndex] = builder
	return builder
}

// Append a face vertex to a primitive and return its index. Vertices with
// explicit normals are shared between faces.
func (r *wavefrontSceneReader) addVertex(builder *primitiveBuilder, key faceVertex, hasNormals bool, faceNormal types.Vec3) uint32 {
	if hasNormals {
		if index, exists := builder.cache[key]; exists {
			return index
		}
	}

	prim := builder.prim
	index := uint32(len(prim.Positions))
	prim.Positions = append(prim.Positions, r.vertexList[key.v])
	if hasNormals {
		prim.Normals = append(prim.Normals, r.normalList[key.vn])
		builder.cache[key] = index
	} else {
		prim.Normals = append(prim.Normals, faceNormal)
	}

	var uv types.Vec2
	if key.vt >= 0 {
		uv = r.uvList[key.vt]
	}
	prim.UVs = append(prim.UVs, uv)
	return index
}

// Parse a wavefront material library.
func (r *wavefrontSceneReader) parseMaterials(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	r.logger.Infof(`parsing material library "%s"`, res.Path())

	scanner := bufio.NewScanner(res)

	var curMaterial *wavefrontMaterial = nil
	var matName string = ""

	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "newmtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "newmtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matName = lineTokens[1]
			if _, exists := r.matNameToIndex[matName]; exists {
				return r.emitError(res.Path(), lineNum, `material "%s" already defined`, matName)
			}

			// Allocate new material and add it to library
			curMaterial = newWavefrontMaterial(matName, res)
			r.materials = append(r.materials, curMaterial)
			r.matNameToIndex[matName] = len(r.materials) - 1
		default:
			if curMaterial == nil {
				return r.emitError(res.Path(), lineNum, `got "%s" without a "newmtl"`, lineTokens[0])
			}

			switch lineTokens[0] {
			case "include":
				if len(lineTokens) < 2 {
					return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
				}

				baseMaterialIndex, exists := r.matNameToIndex[lineTokens[1]]
				if !exists {
					return r.emitError(res.Path(), lineNum, `could not include unknown material "%s"`, lineTokens[1])
				}

				// Overwrite material but keep the original name
				*curMaterial = *r.materials[baseMaterialIndex]
				curMaterial.Name = matName
			case "Kd", "Ke", "Tf":
				var target *types.Vec3
				switch lineTokens[0] {
				case "Kd":
					target = &curMaterial.Kd
				case "Ke":
					target = &curMaterial.Ke
				case "Tf":
					target = &curMaterial.Tf
				}

				*target, err = parseVec3(lineTokens)
			case "Ni", "Kes", "Pm", "Pr", "Tr", "d", "Ns":
				var v float32
				v, err = parseFloat32(lineTokens)
				switch lineTokens[0] {
				case "Ni":
					curMaterial.Ni = v
				case "Kes":
					curMaterial.Kes = v
				case "Pm":
					curMaterial.Pm = v
				case "Pr":
					curMaterial.Pr = v
				case "Tr":
					curMaterial.Tr = v
				case "d":
					curMaterial.Tr = 1 - v
				case "Ns":
					// Blinn-Phong exponent to GGX roughness
					curMaterial.Pr = float32(math.Sqrt(2.0 / (float64(v) + 2.0)))
				}
			case "map_Kd", "map_Ke", "map_Pr", "map_Pm", "norm", "map_normal":
				if len(lineTokens) < 2 {
					return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
				}

				// Texture options may precede the file name
				texPath := lineTokens[len(lineTokens)-1]
				switch lineTokens[0] {
				case "map_Kd":
					curMaterial.KdTex = texPath
				case "map_Ke":
					curMaterial.KeTex = texPath
				case "map_Pr", "map_Pm":
					curMaterial.PmPrTex = texPath
				case "norm", "map_normal":
					curMaterial.NormalTex = texPath
				}
			}

			// Report any errors
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		}
	}

	return scanner.Err()
}

// Given an index for a face coord type (vertex, normal, tex) calculate the
// proper offset into the coord list. Wavefront format can also use negative
// indices to reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int = 0
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = relOffset + int(index-1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a list of float tokens.
func parseFloats(tokens []string) ([]float32, error) {
	out := make([]float32, len(tokens))
	for index, token := range tokens {
		v, err := strconv.ParseFloat(token, 32)
		if err != nil {
			return nil, err
		}
		out[index] = float32(v)
	}
	return out, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

// Parse a Vec2 row.
func parseVec2(lineTokens []string) (types.Vec2, error) {
	if len(lineTokens) < 3 {
		return types.Vec2{}, fmt.Errorf(`unsupported syntax for "%s"; expected 2 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec2{}
	for tokIdx := 1; tokIdx <= 2; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

package device

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"reflect"
	"sync"
	"time"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/log"
	"github.com/lumen-rt/lumen/tracer/kernel"
	"github.com/olekukonko/tablewriter"
)

type bufferSet struct {
	// Scene data
	Triangles *Buffer
	BvhNodes  *Buffer
	Materials *Buffer
	Lights    *Buffer
	Texels    *Buffer

	// Per-frame uniform block
	Uniforms *Buffer

	// Running radiance average (vec4<f32> per pixel)
	Accumulator *Buffer

	// Resolved RGBA8 output
	FrameBuffer *Buffer
}

func newBufferSet(dev *Device) *bufferSet {
	return &bufferSet{
		Triangles:   dev.Buffer("triangles"),
		BvhNodes:    dev.Buffer("bvhNodes"),
		Materials:   dev.Buffer("materials"),
		Lights:      dev.Buffer("lights"),
		Texels:      dev.Buffer("texels"),
		Uniforms:    dev.Buffer("uniforms"),
		Accumulator: dev.Buffer("accumulator"),
		FrameBuffer: dev.Buffer("frameBuffer"),
	}
}

// Iterate the buffers in declaration order.
func (bs *bufferSet) each(fn func(*Buffer)) {
	reflVal := reflect.ValueOf(*bs)
	for fieldIndex := 0; fieldIndex < reflVal.NumField(); fieldIndex++ {
		if buf, ok := reflVal.Field(fieldIndex).Interface().(*Buffer); ok {
			fn(buf)
		}
	}
}

// Release all buffers.
func (bs *bufferSet) Release() {
	bs.each(func(buf *Buffer) { buf.Release() })
}

// Resources owns every buffer that the tracing kernel binds: packed scene
// data, the uniform block, the accumulation buffer and the output frame
// buffer. State mutations (upload, resize, camera and option changes) must
// happen between frames; resetting the accumulation buffer and zeroing the
// frame index always happen together.
type Resources struct {
	sync.Mutex

	device  *Device
	logger  log.Logger
	buffers *bufferSet

	// Decoded view of the scene buffers consumed by the CPU kernel.
	scene *kernel.Scene

	uniforms Uniforms
	uploaded bool
}

// Create an empty resource set backed by dev.
func NewResources(dev *Device) *Resources {
	return &Resources{
		device:  dev,
		logger:  log.New(fmt.Sprintf("resources (%s)", dev.Name)),
		buffers: newBufferSet(dev),
		uniforms: Uniforms{
			Options: kernel.DefaultOptions(),
			Display: kernel.DefaultDisplay(),
		},
	}
}

// Get the device that backs this resource set.
func (r *Resources) Device() *Device {
	return r.device
}

// Upload a compiled scene and allocate frame buffers for a frameW x frameH
// frame. Any previously uploaded data is released first. The scene camera
// (if any) becomes the active camera.
func (r *Resources) Upload(sc *scene.Scene, frameW, frameH uint32) error {
	r.Lock()
	defer r.Unlock()

	if frameW == 0 || frameH == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidFrameSize, frameW, frameH)
	}

	start := time.Now()
	r.buffers.Release()
	r.scene = nil
	r.uploaded = false

	var atlas scene.Atlas
	if sc.Atlas != nil {
		atlas = *sc.Atlas
	}

	uploads := []struct {
		buf  *Buffer
		data []byte
	}{
		{r.buffers.Triangles, PackTriangles(sc.Triangles)},
		{r.buffers.BvhNodes, PackBvhNodes(sc.BvhNodes)},
		{r.buffers.Materials, PackMaterials(sc.Materials)},
		{r.buffers.Lights, PackLights(sc.Lights)},
		{r.buffers.Texels, PackTexels(atlas.Texels)},
	}
	for _, upload := range uploads {
		if err := upload.buf.AllocateAndWriteData(upload.data); err != nil {
			r.buffers.Release()
			return err
		}
	}

	kernelScene, err := r.decodeScene(atlas.Width, atlas.Height)
	if err != nil {
		r.buffers.Release()
		return err
	}
	kernelScene.Background = sc.Background
	r.scene = kernelScene

	r.uniforms.NodeCount = uint32(len(sc.BvhNodes))
	r.uniforms.LightCount = uint32(len(sc.Lights))
	r.uniforms.Background = sc.Background
	r.uniforms.AtlasWidth = atlas.Width
	r.uniforms.AtlasHeight = atlas.Height
	if sc.Camera != nil {
		r.uniforms.Camera = *sc.Camera
	}

	if err = r.resize(frameW, frameH); err != nil {
		r.buffers.Release()
		r.scene = nil
		return err
	}

	r.uploaded = true
	r.logger.Infof("uploaded scene (%d triangles, %d nodes, %d lights) in %d ms", len(sc.Triangles), len(sc.BvhNodes), len(sc.Lights), time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Decode the packed scene buffers into the representation used by the CPU kernel.
func (r *Resources) decodeScene(atlasW, atlasH uint32) (*kernel.Scene, error) {
	tris, err := UnpackTriangles(r.buffers.Triangles.Bytes())
	if err != nil {
		return nil, err
	}
	nodes, err := UnpackBvhNodes(r.buffers.BvhNodes.Bytes())
	if err != nil {
		return nil, err
	}
	materials, err := UnpackMaterials(r.buffers.Materials.Bytes())
	if err != nil {
		return nil, err
	}
	lights, err := UnpackLights(r.buffers.Lights.Bytes())
	if err != nil {
		return nil, err
	}
	texels, err := UnpackTexels(r.buffers.Texels.Bytes())
	if err != nil {
		return nil, err
	}

	return &kernel.Scene{
		Triangles: tris,
		Nodes:     nodes,
		Materials: materials,
		Lights:    lights,
		Atlas: &scene.Atlas{
			Width:  atlasW,
			Height: atlasH,
			Texels: texels,
		},
	}, nil
}

// Reallocate the accumulation and frame buffers for a new frame size and
// reset accumulation.
func (r *Resources) Resize(frameW, frameH uint32) error {
	r.Lock()
	defer r.Unlock()

	if frameW == 0 || frameH == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidFrameSize, frameW, frameH)
	}
	if frameW == r.uniforms.Width && frameH == r.uniforms.Height && r.buffers.Accumulator.Allocated() {
		r.resetAccumulation()
		return nil
	}
	return r.resize(frameW, frameH)
}

// Reallocate the frame sized buffers. If the new buffers do not fit the
// device budget the current buffers, frame size and frame index are kept.
func (r *Resources) resize(frameW, frameH uint32) error {
	pixels := int(frameW) * int(frameH)
	accumSize, fbSize := pixels*AccumStride, pixels*PixelStride

	inUse := int64(r.buffers.Accumulator.Size() + r.buffers.FrameBuffer.Size())
	if !r.device.fits(int64(accumSize+fbSize), inUse) {
		return fmt.Errorf("%w: %dx%d frame needs %d bytes", ErrOutOfDeviceMemory, frameW, frameH, accumSize+fbSize)
	}

	oldW, oldH := r.uniforms.Width, r.uniforms.Height
	r.buffers.Accumulator.Release()
	r.buffers.FrameBuffer.Release()

	err := r.buffers.Accumulator.Allocate(accumSize)
	if err == nil {
		err = r.buffers.FrameBuffer.Allocate(fbSize)
	}
	if err != nil {
		// Another resource set sharing the device took the space; fall back
		// to the previous frame size.
		r.buffers.Accumulator.Release()
		r.buffers.FrameBuffer.Release()
		if oldW != 0 && oldH != 0 {
			oldPixels := int(oldW) * int(oldH)
			if r.buffers.Accumulator.Allocate(oldPixels*AccumStride) == nil {
				_ = r.buffers.FrameBuffer.Allocate(oldPixels * PixelStride)
			}
			r.resetAccumulation()
		}
		return err
	}

	r.uniforms.Width = frameW
	r.uniforms.Height = frameH
	r.uniforms.Camera.SetAspect(frameW, frameH)
	r.resetAccumulation()
	return nil
}

// Zero the accumulation buffer and the frame index.
func (r *Resources) ResetAccumulation() {
	r.Lock()
	r.resetAccumulation()
	r.Unlock()
}

func (r *Resources) resetAccumulation() {
	r.buffers.Accumulator.Clear()
	r.uniforms.FrameIndex = 0
	r.writeUniforms()
}

// Replace the active camera and reset accumulation. The camera aspect ratio is
// forced to match the current frame size.
func (r *Resources) SetCamera(cam *scene.Camera) {
	r.Lock()
	defer r.Unlock()

	r.uniforms.Camera = *cam
	r.uniforms.Camera.SetAspect(r.uniforms.Width, r.uniforms.Height)
	r.resetAccumulation()
}

// Get a copy of the active camera.
func (r *Resources) Camera() *scene.Camera {
	r.Lock()
	defer r.Unlock()
	return r.uniforms.Camera.Clone()
}

// Update kernel options and display settings. Changing the kernel options
// invalidates the accumulated estimate and resets it; display settings only
// affect the resolve pass.
func (r *Resources) SetOptions(opts kernel.Options, display kernel.Display) {
	r.Lock()
	defer r.Unlock()

	r.uniforms.Display = display
	if opts != r.uniforms.Options {
		r.uniforms.Options = opts
		r.resetAccumulation()
		return
	}
	r.writeUniforms()
}

// Get the active kernel options and display settings.
func (r *Resources) Options() (kernel.Options, kernel.Display) {
	r.Lock()
	defer r.Unlock()
	return r.uniforms.Options, r.uniforms.Display
}

// Mark the current frame as complete and move to the next one.
func (r *Resources) AdvanceFrame() uint32 {
	r.Lock()
	defer r.Unlock()
	r.uniforms.FrameIndex++
	r.writeUniforms()
	return r.uniforms.FrameIndex
}

// Set the frame index without touching the accumulation buffer. Used when
// restoring a previously saved accumulation state.
func (r *Resources) SetFrameIndex(index uint32) {
	r.Lock()
	defer r.Unlock()
	r.uniforms.FrameIndex = index
	r.writeUniforms()
}

// Get the number of frames accumulated since the last reset.
func (r *Resources) FrameIndex() uint32 {
	r.Lock()
	defer r.Unlock()
	return r.uniforms.FrameIndex
}

// Get the frame dimensions.
func (r *Resources) FrameSize() (uint32, uint32) {
	r.Lock()
	defer r.Unlock()
	return r.uniforms.Width, r.uniforms.Height
}

// Returns true if a scene has been uploaded.
func (r *Resources) Ready() bool {
	r.Lock()
	defer r.Unlock()
	return r.uploaded
}

// Get the kernel view of the uploaded scene.
func (r *Resources) Scene() *kernel.Scene {
	r.Lock()
	defer r.Unlock()
	return r.scene
}

// Get the frame state for the next dispatch. The returned accumulation slice
// aliases the device buffer and stays valid until the next Resize or Upload.
func (r *Resources) Frame() *kernel.Frame {
	r.Lock()
	defer r.Unlock()
	return &kernel.Frame{
		Width:  r.uniforms.Width,
		Height: r.uniforms.Height,
		Index:  r.uniforms.FrameIndex,
		Camera: r.uniforms.Camera,
		Accum:  r.buffers.Accumulator.Vec4s(),
	}
}

// Get the packed uniform block.
func (r *Resources) UniformBytes() []byte {
	r.Lock()
	defer r.Unlock()
	return r.buffers.Uniforms.Bytes()
}

// Get the RGBA8 frame buffer contents.
func (r *Resources) FrameBuffer() []byte {
	r.Lock()
	defer r.Unlock()
	return r.buffers.FrameBuffer.Bytes()
}

// Get the raw accumulation buffer contents.
func (r *Resources) Accumulator() []byte {
	r.Lock()
	defer r.Unlock()
	return r.buffers.Accumulator.Bytes()
}

// Get a hash of the packed scene buffers. Two resource sets report the same
// fingerprint only if they were uploaded with the same geometry, materials,
// lights and textures.
func (r *Resources) SceneFingerprint() uint64 {
	r.Lock()
	defer r.Unlock()

	h := fnv.New64a()
	for _, buf := range []*Buffer{r.buffers.Triangles, r.buffers.BvhNodes, r.buffers.Materials, r.buffers.Lights, r.buffers.Texels} {
		fmt.Fprintf(h, "%s:%d;", buf.Name(), buf.Size())
		h.Write(buf.Bytes())
	}
	return h.Sum64()
}

// Overwrite the accumulation buffer contents.
func (r *Resources) LoadAccumulator(data []byte) error {
	r.Lock()
	defer r.Unlock()
	if len(data) != r.buffers.Accumulator.Size() {
		return fmt.Errorf("%w: accumulator holds %d bytes; got %d", ErrInvalidLayout, r.buffers.Accumulator.Size(), len(data))
	}
	return r.buffers.Accumulator.WriteData(data, 0)
}

func (r *Resources) writeUniforms() {
	data := PackUniforms(&r.uniforms)
	if !r.buffers.Uniforms.Allocated() {
		if err := r.buffers.Uniforms.AllocateAndWriteData(data); err != nil {
			r.logger.Errorf("could not allocate uniform buffer: %v", err)
		}
		return
	}
	_ = r.buffers.Uniforms.WriteData(data, 0)
}

// Build a tabular representation of buffer allocations.
func (r *Resources) Stats() string {
	r.Lock()
	defer r.Unlock()

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Buffer", "Size"})
	var total int
	r.buffers.each(func(b *Buffer) {
		total += b.Size()
		table.Append([]string{b.Name(), fmtBytes(b.Size())})
	})
	budget := "unlimited"
	if r.device.MemoryBudget > 0 {
		budget = fmtBytes(int(r.device.MemoryBudget))
	}
	table.SetFooter([]string{"Total / budget", fmt.Sprintf("%s / %s", fmtBytes(total), budget)})
	table.Render()
	return buf.String()
}

// Release all buffers.
func (r *Resources) Close() {
	r.Lock()
	defer r.Unlock()
	r.buffers.Release()
	r.scene = nil
	r.uploaded = false
}

func fmtBytes(size int) string {
	switch {
	case size < 1e3:
		return fmt.Sprintf("%d bytes", size)
	case size < 1e6:
		return fmt.Sprintf("%.1f kb", float64(size)/1e3)
	}
	return fmt.Sprintf("%.1f mb", float64(size)/1e6)
}

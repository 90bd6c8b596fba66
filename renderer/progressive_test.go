package renderer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lumen-rt/lumen/asset/compiler/bvh"
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/tracer"
	"github.com/lumen-rt/lumen/tracer/device"
	"github.com/lumen-rt/lumen/tracer/kernel"
	"github.com/lumen-rt/lumen/types"
)

func testScene() *scene.Scene {
	n := types.Vec3{0, 1, 0}
	normals := [3]types.Vec3{n, n, n}
	tris := []scene.Triangle{
		{Vertices: [3]types.Vec3{{-1, 0, -1}, {1, 0, -1}, {1, 0, 1}}, Normals: normals},
		{Vertices: [3]types.Vec3{{-1, 0, -1}, {1, 0, 1}, {-1, 0, 1}}, Normals: normals},
	}
	nodes, ordered := bvh.Build(tris, bvh.DefaultOptions())

	cam := scene.NewCamera(45)
	cam.LookAt(types.Vec3{0, 3, 0.01}, types.Vec3{0, 0, 0}, types.Vec3{0, 1, 0})

	return &scene.Scene{
		Triangles: ordered,
		BvhNodes:  nodes,
		Materials: []scene.Material{scene.NewMaterial()},
		Lights: []scene.Light{
			{Type: scene.PointLight, Position: types.Vec3{0, 4, 0}, Color: types.Vec3{1, 1, 1}, Intensity: 16},
		},
		Background: types.Vec3{0.1, 0.1, 0.1},
		Camera:     cam,
	}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.FrameW = 32
	opts.FrameH = 32
	opts.SamplesPerPixel = 4
	opts.NumBounces = 3
	opts.NumTracers = 2
	opts.WorkersPerTracer = 2
	return opts
}

func createTestRenderer(t *testing.T, opts Options) *Progressive {
	r, err := NewProgressive(testScene(), tracer.NaiveScheduler(), opts)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestProgressiveSetupErrors(t *testing.T) {
	_, err := NewProgressive(nil, nil, testOptions())
	if err != ErrSceneNotDefined {
		t.Fatalf("expected error to be %v; got %v", ErrSceneNotDefined, err)
	}

	sc := testScene()
	sc.Camera = nil
	_, err = NewProgressive(sc, nil, testOptions())
	if err != ErrCameraNotDefined {
		t.Fatalf("expected error to be %v; got %v", ErrCameraNotDefined, err)
	}

	opts := testOptions()
	opts.FrameH = 0
	if _, err = NewProgressive(testScene(), nil, opts); err == nil {
		t.Fatal("expected an error for a zero frame height")
	}

	opts = testOptions()
	opts.DeviceMemoryBudget = 1024
	_, err = NewProgressive(testScene(), nil, opts)
	if !errors.Is(err, device.ErrOutOfDeviceMemory) {
		t.Fatalf("expected error to be %v; got %v", device.ErrOutOfDeviceMemory, err)
	}
}

func TestProgressiveRender(t *testing.T) {
	r := createTestRenderer(t, testOptions())
	defer r.Close()

	if err := r.Render(); err != nil {
		t.Fatal(err)
	}
	if r.Samples() != 4 {
		t.Fatalf("expected 4 accumulated samples; got %d", r.Samples())
	}

	stats := r.Stats()
	if stats.Samples != 4 {
		t.Fatalf("expected stats to report 4 samples; got %d", stats.Samples)
	}
	if len(stats.Tracers) != 2 {
		t.Fatalf("expected stats for 2 tracers; got %d", len(stats.Tracers))
	}
	var totalRows uint32
	for _, stat := range stats.Tracers {
		totalRows += stat.BlockH
	}
	if totalRows != 32 {
		t.Fatalf("expected tracers to cover 32 rows; got %d", totalRows)
	}

	img := r.Image()
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
		t.Fatalf("expected a 32x32 image; got %v", img.Bounds())
	}
	for index := 3; index < len(img.Pix); index += 4 {
		if img.Pix[index] != 255 {
			t.Fatalf("expected pixel %d to be opaque", index/4)
		}
	}

	// Rendering again once the target is reached is a no-op
	if err := r.Render(); err != nil {
		t.Fatal(err)
	}
	if r.Samples() != 4 {
		t.Fatalf("expected sample count to stay at 4; got %d", r.Samples())
	}
}

func TestProgressiveResetOnCameraChange(t *testing.T) {
	r := createTestRenderer(t, testOptions())
	defer r.Close()

	for i := 0; i < 3; i++ {
		if err := r.RenderFrame(); err != nil {
			t.Fatal(err)
		}
	}

	eye, target := types.Vec3{0.5, 2.5, 0.5}, types.Vec3{0, 0, 0}
	r.LookAt(eye, target, types.Vec3{0, 1, 0})
	if err := r.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	if r.Samples() != 1 {
		t.Fatalf("expected accumulation to restart after a camera change; got %d samples", r.Samples())
	}

	// The first frame after the reset matches a fresh render from the new viewpoint
	sc := testScene()
	sc.Camera.LookAt(eye, target, types.Vec3{0, 1, 0})
	fresh, err := NewProgressive(sc, tracer.NaiveScheduler(), testOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Close()
	if err = fresh.RenderFrame(); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(r.resources.Accumulator(), fresh.resources.Accumulator()) {
		t.Fatal("expected accumulation after reset to match a fresh render")
	}
}

func TestProgressiveResize(t *testing.T) {
	r := createTestRenderer(t, testOptions())
	defer r.Close()

	if err := r.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	if err := r.Resize(0, 10); !errors.Is(err, device.ErrInvalidFrameSize) {
		t.Fatalf("expected error to be %v; got %v", device.ErrInvalidFrameSize, err)
	}
	if err := r.Resize(48, 20); err != nil {
		t.Fatal(err)
	}
	if err := r.RenderFrame(); err != nil {
		t.Fatal(err)
	}

	w, h := r.FrameSize()
	if w != 48 || h != 20 {
		t.Fatalf("expected frame size to be 48x20; got %dx%d", w, h)
	}
	if r.Samples() != 1 {
		t.Fatalf("expected accumulation to restart after a resize; got %d samples", r.Samples())
	}
	if cam := r.Camera(); !approxEq(cam.Aspect, 2.4) {
		t.Fatalf("expected camera aspect to be 2.4; got %v", cam.Aspect)
	}
	if img := r.Image(); img.Bounds().Dx() != 48 || img.Bounds().Dy() != 20 {
		t.Fatalf("expected a 48x20 image; got %v", img.Bounds())
	}
}

func TestProgressiveRejectedResize(t *testing.T) {
	opts := testOptions()
	opts.DeviceMemoryBudget = 1 << 20
	r := createTestRenderer(t, opts)
	defer r.Close()

	if err := r.RenderFrame(); err != nil {
		t.Fatal(err)
	}

	// A frame that does not fit the device budget is dropped
	if err := r.Resize(1024, 1024); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := r.RenderFrame(); err != nil {
			t.Fatalf("expected render %d to succeed after a rejected resize; got %v", i, err)
		}
	}
	if w, h := r.FrameSize(); w != 32 || h != 32 {
		t.Fatalf("expected frame size to stay 32x32; got %dx%d", w, h)
	}
	if r.Samples() != 4 {
		t.Fatalf("expected accumulation to continue; got %d samples", r.Samples())
	}
	if img := r.Image(); img.Bounds().Dx() != 32 || img.Bounds().Dy() != 32 {
		t.Fatalf("expected a 32x32 image; got %v", img.Bounds())
	}

	// Later resizes that fit are still applied
	if err := r.Resize(48, 20); err != nil {
		t.Fatal(err)
	}
	if err := r.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	if w, h := r.FrameSize(); w != 48 || h != 20 {
		t.Fatalf("expected frame size to be 48x20; got %dx%d", w, h)
	}
}

func TestProgressiveDisplayChangeKeepsAccumulation(t *testing.T) {
	r := createTestRenderer(t, testOptions())
	defer r.Close()

	for i := 0; i < 2; i++ {
		if err := r.RenderFrame(); err != nil {
			t.Fatal(err)
		}
	}

	r.SetExposure(0)
	if err := r.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	if r.Samples() != 3 {
		t.Fatalf("expected exposure change to keep accumulating; got %d samples", r.Samples())
	}
	img := r.Image()
	for index := 0; index < len(img.Pix); index += 4 {
		if img.Pix[index] != 0 || img.Pix[index+1] != 0 || img.Pix[index+2] != 0 {
			t.Fatalf("expected pixel %d to be black at zero exposure; got %v", index/4, img.Pix[index:index+4])
		}
	}

	// Kernel option changes restart accumulation
	r.SetKernelOptions(kernel.Options{MaxBounces: 1})
	if err := r.RenderFrame(); err != nil {
		t.Fatal(err)
	}
	if r.Samples() != 1 {
		t.Fatalf("expected kernel option change to restart accumulation; got %d samples", r.Samples())
	}
}

func TestProgressiveInterrupt(t *testing.T) {
	opts := testOptions()
	opts.SamplesPerPixel = 0
	r := createTestRenderer(t, opts)
	defer r.Close()

	r.Interrupt()
	if err := r.Render(); err != ErrInterrupted {
		t.Fatalf("expected error to be %v; got %v", ErrInterrupted, err)
	}

	// The interrupt flag is cleared once observed
	if r.interrupted.Load() {
		t.Fatal("expected interrupt flag to be cleared")
	}
}

func TestProgressiveWithoutTracers(t *testing.T) {
	r := createTestRenderer(t, testOptions())
	defer r.Close()

	for _, tr := range r.tracers {
		tr.Close()
	}
	r.tracers = nil

	if err := r.RenderFrame(); err != ErrNoTracers {
		t.Fatalf("expected error to be %v; got %v", ErrNoTracers, err)
	}
}

func approxEq(a, b float32) bool {
	d := a - b
	return d < 1e-4 && d > -1e-4
}

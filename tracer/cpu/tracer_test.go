package cpu

import (
	"errors"
	"testing"
	"time"

	"github.com/lumen-rt/lumen/asset/compiler/bvh"
	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/tracer"
	"github.com/lumen-rt/lumen/tracer/kernel"
	"github.com/lumen-rt/lumen/types"
)

func testScene() *kernel.Scene {
	n := types.Vec3{0, 1, 0}
	normals := [3]types.Vec3{n, n, n}
	tris := []scene.Triangle{
		{Vertices: [3]types.Vec3{{-1, 0, -1}, {1, 0, -1}, {1, 0, 1}}, Normals: normals},
		{Vertices: [3]types.Vec3{{-1, 0, -1}, {1, 0, 1}, {-1, 0, 1}}, Normals: normals},
	}
	nodes, ordered := bvh.Build(tris, bvh.DefaultOptions())
	return &kernel.Scene{
		Triangles: ordered,
		Nodes:     nodes,
		Materials: []scene.Material{scene.NewMaterial()},
		Lights: []scene.Light{
			{Type: scene.PointLight, Position: types.Vec3{0, 4, 0}, Color: types.Vec3{1, 1, 1}, Intensity: 16},
		},
	}
}

func testFrame(width, height uint32) (*kernel.Frame, []uint8) {
	cam := scene.NewCamera(45)
	cam.LookAt(types.Vec3{0, 3, 0.01}, types.Vec3{0, 0, 0}, types.Vec3{0, 1, 0})
	cam.SetAspect(width, height)
	return &kernel.Frame{
		Width:  width,
		Height: height,
		Camera: *cam,
		Accum:  make([]types.Vec4, width*height),
	}, make([]uint8, width*height*4)
}

func createTestTracer(t *testing.T) *Tracer {
	tr := NewTracer("test", 2, nil)
	if err := tr.Init(); err != nil {
		t.Fatal(err)
	}
	return tr
}

// Submit a block and wait for the worker to reply.
func renderBlock(t *testing.T, tr *Tracer, frame *kernel.Frame, fb []uint8, blockY, blockH uint32) error {
	doneChan := make(chan uint32, 1)
	errChan := make(chan error, 1)
	tr.Enqueue(tracer.BlockRequest{
		Frame:       frame,
		FrameBuffer: fb,
		BlockY:      blockY,
		BlockH:      blockH,
		DoneChan:    doneChan,
		ErrChan:     errChan,
	})

	select {
	case rows := <-doneChan:
		if rows != blockH {
			t.Fatalf("expected tracer to complete %d rows; got %d", blockH, rows)
		}
		return nil
	case err := <-errChan:
		return err
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for block")
	}
	return nil
}

func TestTracerBlockWorker(t *testing.T) {
	tr := createTestTracer(t)
	defer tr.Close()

	tr.Update(tracer.UpdateScene, testScene())

	frame, fb := testFrame(32, 32)
	if err := renderBlock(t, tr, frame, fb, 0, 16); err != nil {
		t.Fatal(err)
	}

	// Rows outside the block stay untouched
	for y := uint32(0); y < frame.Height; y++ {
		for x := uint32(0); x < frame.Width; x++ {
			alpha := fb[(y*frame.Width+x)*4+3]
			if y < 16 && alpha != 255 {
				t.Fatalf("expected pixel (%d, %d) to be resolved", x, y)
			}
			if y >= 16 && (alpha != 0 || frame.Accum[y*frame.Width+x] != (types.Vec4{})) {
				t.Fatalf("expected pixel (%d, %d) outside the block to be untouched", x, y)
			}
		}
	}

	// The quad fills the center of the view
	center := frame.Accum[8*frame.Width+16]
	if center[0] <= 0 {
		t.Fatalf("expected lit quad radiance at the frame center; got %v", center)
	}

	stats := tr.Stats()
	if stats.BlockH != 16 {
		t.Fatalf("expected stats block height to be 16; got %d", stats.BlockH)
	}
	if stats.RenderTime <= 0 {
		t.Fatalf("expected a positive render time; got %v", stats.RenderTime)
	}
}

func TestTracerWithoutScene(t *testing.T) {
	tr := createTestTracer(t)
	defer tr.Close()

	frame, fb := testFrame(16, 16)
	err := renderBlock(t, tr, frame, fb, 0, 16)
	if !errors.Is(err, ErrNoSceneData) {
		t.Fatalf("expected error to be %v; got %v", ErrNoSceneData, err)
	}
}

func TestTracerRejectsInvalidBlock(t *testing.T) {
	tr := createTestTracer(t)
	defer tr.Close()
	tr.Update(tracer.UpdateScene, testScene())

	frame, fb := testFrame(16, 16)
	err := renderBlock(t, tr, frame, fb, 8, 16)
	if !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("expected error to be %v; got %v", ErrInvalidBlock, err)
	}
}

func TestTracerLatestUpdateWins(t *testing.T) {
	tr := createTestTracer(t)
	defer tr.Close()

	tr.Update(tracer.UpdateScene, testScene())
	tr.Update(tracer.UpdateDisplay, kernel.Display{Exposure: 100, ToneMapper: kernel.ACES})
	tr.Update(tracer.UpdateDisplay, kernel.Display{Exposure: 0, ToneMapper: kernel.Reinhard})
	tr.Update(tracer.UpdateKernelOptions, kernel.Options{MaxBounces: 1})

	frame, fb := testFrame(16, 16)
	if err := renderBlock(t, tr, frame, fb, 0, 16); err != nil {
		t.Fatal(err)
	}

	// Zero exposure maps everything to black
	for index := 0; index < len(fb); index += 4 {
		if fb[index] != 0 || fb[index+1] != 0 || fb[index+2] != 0 || fb[index+3] != 255 {
			t.Fatalf("expected pixel %d to be opaque black; got %v", index/4, fb[index:index+4])
		}
	}
	if tr.options.MaxBounces != 1 {
		t.Fatalf("expected max bounces to be 1; got %d", tr.options.MaxBounces)
	}
}

func TestTracerRejectsInvalidUpdate(t *testing.T) {
	tr := createTestTracer(t)
	defer tr.Close()

	tr.Update(tracer.UpdateScene, "not a scene")
	frame, fb := testFrame(16, 16)
	err := renderBlock(t, tr, frame, fb, 0, 16)
	if !errors.Is(err, ErrInvalidUpdate) {
		t.Fatalf("expected error to be %v; got %v", ErrInvalidUpdate, err)
	}
}

func TestTracerResetStage(t *testing.T) {
	tr := createTestTracer(t)
	defer tr.Close()
	tr.Update(tracer.UpdateScene, testScene())

	frame, fb := testFrame(16, 16)
	for index := range frame.Accum {
		frame.Accum[index] = types.Vec4{1000, 1000, 1000, 1}
	}

	// Frame 0 must not blend with stale accumulation data
	if err := renderBlock(t, tr, frame, fb, 0, 16); err != nil {
		t.Fatal(err)
	}
	for index, v := range frame.Accum {
		if v[0] >= 1000 {
			t.Fatalf("expected pixel %d to hold a fresh sample; got %v", index, v)
		}
	}
}

func TestTracerClose(t *testing.T) {
	tr := createTestTracer(t)
	tr.Close()

	// Closing twice is a no-op
	tr.Close()

	errChan := make(chan error, 1)
	frame, fb := testFrame(16, 16)
	tr.Enqueue(tracer.BlockRequest{Frame: frame, FrameBuffer: fb, BlockH: 16, ErrChan: errChan})
	if err := <-errChan; !errors.Is(err, ErrTracerClosed) {
		t.Fatalf("expected error to be %v; got %v", ErrTracerClosed, err)
	}
}

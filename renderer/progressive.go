package renderer

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/log"
	"github.com/lumen-rt/lumen/tracer"
	"github.com/lumen-rt/lumen/tracer/cpu"
	"github.com/lumen-rt/lumen/tracer/device"
	"github.com/lumen-rt/lumen/tracer/kernel"
	"github.com/lumen-rt/lumen/types"
)

// A progressive renderer. Every call to RenderFrame traces one more sample
// per pixel and blends it into the running average. Camera, frame size and
// option changes can be requested at any time from any goroutine; they are
// queued and applied right before the next frame so a frame never observes
// a half-applied change.
type Progressive struct {
	logger log.Logger

	options   Options
	scheduler tracer.BlockScheduler
	tracers   []tracer.Tracer
	resources *device.Resources

	blockAssignments []uint32
	stats            FrameStats

	// Changes queued for the next frame.
	pendingMutex   sync.Mutex
	pendingCamera  []func(*scene.Camera)
	pendingResize  *[2]uint32
	pendingDisplay *kernel.Display
	pendingOptions *kernel.Options

	interrupted atomic.Bool
}

var _ Renderer = (*Progressive)(nil)

// Create a progressive renderer for sc with opts.NumTracers cpu tracers.
func NewProgressive(sc *scene.Scene, scheduler tracer.BlockScheduler, opts Options) (*Progressive, error) {
	if sc == nil {
		return nil, ErrSceneNotDefined
	}
	if sc.Camera == nil {
		return nil, ErrCameraNotDefined
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if scheduler == nil {
		scheduler = tracer.PerfectScheduler()
	}

	r := &Progressive{
		logger:    log.New("renderer"),
		options:   opts,
		scheduler: scheduler,
		resources: device.NewResources(device.NewDevice("host", opts.DeviceMemoryBudget)),
	}

	start := time.Now()
	if err := r.resources.Upload(sc, opts.FrameW, opts.FrameH); err != nil {
		r.Close()
		return nil, err
	}
	r.resources.SetOptions(opts.KernelOptions(), opts.Display())

	numTracers := opts.NumTracers
	if numTracers <= 0 {
		numTracers = 1
	}
	for index := 0; index < numTracers; index++ {
		tr := cpu.NewTracer(fmt.Sprintf("cpu-%d", index), opts.WorkersPerTracer, cpu.DefaultPipeline())
		if err := r.AddTracer(tr); err != nil {
			r.Close()
			return nil, err
		}
	}

	r.logger.Noticef("setup %d tracers in %d ms", len(r.tracers), time.Since(start).Nanoseconds()/1e6)
	return r, nil
}

// Initialize a tracer and attach it to the renderer.
func (r *Progressive) AddTracer(tr tracer.Tracer) error {
	if err := tr.Init(); err != nil {
		return err
	}

	kOpts, display := r.resources.Options()
	tr.Update(tracer.UpdateScene, r.resources.Scene())
	tr.Update(tracer.UpdateKernelOptions, kOpts)
	tr.Update(tracer.UpdateDisplay, display)

	r.tracers = append(r.tracers, tr)
	r.logger.Infof("attached tracer %q", tr.Id())
	return nil
}

// Shutdown renderer and any attached tracer.
func (r *Progressive) Close() {
	for _, tr := range r.tracers {
		tr.Close()
	}
	r.tracers = nil
	if r.resources != nil {
		r.resources.Close()
	}
}

// Render frames until the configured number of samples per pixel has been
// accumulated or Interrupt is called. Requesting a change that resets the
// accumulation while rendering restarts the sample count.
func (r *Progressive) Render() error {
	defer r.interrupted.Store(false)

	start := time.Now()
	for {
		if r.interrupted.Load() {
			return ErrInterrupted
		}
		if r.options.SamplesPerPixel != 0 && r.resources.FrameIndex() >= r.options.SamplesPerPixel && !r.PendingChanges() {
			break
		}
		if err := r.RenderFrame(); err != nil {
			return err
		}
	}

	r.logger.Infof("rendered %d samples per pixel in %d ms", r.resources.FrameIndex(), time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Abort an in-progress Render call after the current frame completes.
func (r *Progressive) Interrupt() {
	r.interrupted.Store(true)
}

// Apply pending changes and trace one more sample per pixel.
func (r *Progressive) RenderFrame() error {
	if len(r.tracers) == 0 {
		return ErrNoTracers
	}
	if err := r.applyPendingChanges(); err != nil {
		return err
	}

	start := time.Now()
	frame := r.resources.Frame()
	frameBuffer := r.resources.FrameBuffer()
	r.blockAssignments = r.scheduler.Schedule(r.tracers, frame.Height)

	doneChan := make(chan uint32, len(r.tracers))
	errChan := make(chan error, len(r.tracers))
	var blockY uint32
	pending := 0
	for idx, tr := range r.tracers {
		blockH := r.blockAssignments[idx]
		if blockH == 0 {
			// Idle tracers report no throughput to the scheduler
			tr.Stats().BlockH = 0
			continue
		}

		tr.Enqueue(tracer.BlockRequest{
			Frame:       frame,
			FrameBuffer: frameBuffer,
			BlockY:      blockY,
			BlockH:      blockH,
			DoneChan:    doneChan,
			ErrChan:     errChan,
		})
		blockY += blockH
		pending++
	}

	// Wait for all tracers to finish
	var err error
	for ; pending > 0; pending-- {
		select {
		case <-doneChan:
		case blockErr := <-errChan:
			if err == nil {
				err = blockErr
			}
		}
	}
	if err != nil {
		return err
	}

	samples := r.resources.AdvanceFrame()
	r.updateStats(samples, time.Since(start))
	return nil
}

func (r *Progressive) updateStats(samples uint32, renderTime time.Duration) {
	if samples == 1 {
		r.stats.AccumulatedTime = 0
	}
	r.stats.Samples = samples
	r.stats.RenderTime = renderTime
	r.stats.AccumulatedTime += renderTime

	_, frameH := r.resources.FrameSize()
	r.stats.Tracers = make([]TracerStat, len(r.tracers))
	for idx, tr := range r.tracers {
		blockH := r.blockAssignments[idx]
		stat := TracerStat{
			Id:           tr.Id(),
			BlockH:       blockH,
			FramePercent: 100.0 * float32(blockH) / float32(frameH),
		}
		if blockH > 0 {
			stat.RenderTime = tr.Stats().RenderTime
		}
		r.stats.Tracers[idx] = stat
	}
}

// Get render statistics.
func (r *Progressive) Stats() FrameStats {
	return r.stats
}

// Get the number of samples accumulated since the last reset.
func (r *Progressive) Samples() uint32 {
	return r.resources.FrameIndex()
}

// Get the current frame dimensions.
func (r *Progressive) FrameSize() (uint32, uint32) {
	return r.resources.FrameSize()
}

// Get a copy of the active camera.
func (r *Progressive) Camera() *scene.Camera {
	return r.resources.Camera()
}

// Get a copy of the last rendered frame.
func (r *Progressive) Image() *image.RGBA {
	w, h := r.resources.FrameSize()
	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	copy(img.Pix, r.resources.FrameBuffer())
	return img
}

// Get a table with device buffer allocations.
func (r *Progressive) ResourceStats() string {
	return r.resources.Stats()
}

// Queue a camera edit for the next frame. Camera edits reset accumulation.
func (r *Progressive) UpdateCamera(fn func(cam *scene.Camera)) {
	r.pendingMutex.Lock()
	r.pendingCamera = append(r.pendingCamera, fn)
	r.pendingMutex.Unlock()
}

// Move the camera along one of its basis vectors.
func (r *Progressive) MoveCamera(dir scene.CameraDirection, amount float32) {
	r.UpdateCamera(func(cam *scene.Camera) {
		cam.Move(dir, amount)
	})
}

// Rotate the camera by yaw and pitch radians.
func (r *Progressive) RotateCamera(yaw, pitch float32) {
	r.UpdateCamera(func(cam *scene.Camera) {
		cam.Rotate(yaw, pitch)
	})
}

// Point the camera at target from eye.
func (r *Progressive) LookAt(eye, target, up types.Vec3) {
	r.UpdateCamera(func(cam *scene.Camera) {
		cam.LookAt(eye, target, up)
	})
}

// Queue a frame resize for the next frame.
func (r *Progressive) Resize(frameW, frameH uint32) error {
	if frameW == 0 || frameH == 0 {
		return fmt.Errorf("%w: %dx%d", device.ErrInvalidFrameSize, frameW, frameH)
	}
	r.pendingMutex.Lock()
	r.pendingResize = &[2]uint32{frameW, frameH}
	r.pendingMutex.Unlock()
	return nil
}

// Queue new display settings for the next frame. Display changes do not
// reset accumulation.
func (r *Progressive) SetDisplay(display kernel.Display) {
	r.pendingMutex.Lock()
	r.pendingDisplay = &display
	r.pendingMutex.Unlock()
}

// Queue an exposure change for the next frame.
func (r *Progressive) SetExposure(exposure float32) {
	r.editDisplay(func(display *kernel.Display) {
		display.Exposure = exposure
	})
}

// Queue a tone mapping operator change for the next frame.
func (r *Progressive) SetToneMapper(toneMapper kernel.ToneMapper) {
	r.editDisplay(func(display *kernel.Display) {
		display.ToneMapper = toneMapper
	})
}

func (r *Progressive) editDisplay(fn func(*kernel.Display)) {
	r.pendingMutex.Lock()
	defer r.pendingMutex.Unlock()

	_, display := r.resources.Options()
	if r.pendingDisplay != nil {
		display = *r.pendingDisplay
	}
	fn(&display)
	r.pendingDisplay = &display
}

// Queue new kernel options for the next frame.
func (r *Progressive) SetKernelOptions(opts kernel.Options) {
	r.pendingMutex.Lock()
	r.pendingOptions = &opts
	r.pendingMutex.Unlock()
}

// Returns true if changes are queued for the next frame.
func (r *Progressive) PendingChanges() bool {
	r.pendingMutex.Lock()
	defer r.pendingMutex.Unlock()
	return len(r.pendingCamera) != 0 || r.pendingResize != nil || r.pendingDisplay != nil || r.pendingOptions != nil
}

// Apply queued changes. Called between frames only.
func (r *Progressive) applyPendingChanges() error {
	r.pendingMutex.Lock()
	cameraEdits := r.pendingCamera
	resize := r.pendingResize
	display := r.pendingDisplay
	kOpts := r.pendingOptions
	r.pendingCamera = nil
	r.pendingResize = nil
	r.pendingDisplay = nil
	r.pendingOptions = nil
	r.pendingMutex.Unlock()

	// A rejected resize keeps the current frame and accumulation state
	if resize != nil {
		if err := r.resources.Resize(resize[0], resize[1]); err != nil {
			r.logger.Warningf("ignoring resize to %dx%d: %v", resize[0], resize[1], err)
		} else {
			r.options.FrameW, r.options.FrameH = resize[0], resize[1]
			r.logger.Infof("resized frame to %dx%d", resize[0], resize[1])
		}
	}

	if len(cameraEdits) != 0 {
		cam := r.resources.Camera()
		for _, edit := range cameraEdits {
			edit(cam)
		}
		r.resources.SetCamera(cam)
	}

	if display == nil && kOpts == nil {
		return nil
	}

	curOpts, curDisplay := r.resources.Options()
	if kOpts != nil {
		curOpts = *kOpts
		r.options.NumBounces = kOpts.MaxBounces
		r.options.MinBouncesForRR = kOpts.MinBouncesForRR
	}
	if display != nil {
		curDisplay = *display
		r.options.Exposure = display.Exposure
		r.options.ToneMapper = display.ToneMapper
	}
	r.resources.SetOptions(curOpts, curDisplay)

	for _, tr := range r.tracers {
		if kOpts != nil {
			tr.Update(tracer.UpdateKernelOptions, curOpts)
		}
		if display != nil {
			tr.Update(tracer.UpdateDisplay, curDisplay)
		}
	}
	return nil
}

package cpu

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/lumen-rt/lumen/log"
	"github.com/lumen-rt/lumen/tracer"
	"github.com/lumen-rt/lumen/tracer/kernel"
)

// A tracer that runs the path tracing kernel on a pool of goroutines.
type Tracer struct {
	logger log.Logger

	sync.Mutex
	wg sync.WaitGroup

	// The tracer id.
	id string

	// Number of goroutines used for kernel dispatches.
	numWorkers int

	// A buffer for queuing updates. Updates are grouped by type and
	// latest updates always overwrite the previous ones.
	updateMutex  sync.Mutex
	updateBuffer map[tracer.UpdateType]interface{}

	// A channel for receiving block requests from the renderer.
	blockReqChan chan tracer.BlockRequest

	// A channel for signaling the worker to exit.
	closeChan chan struct{}

	// Statistics for last rendered block.
	stats *tracer.Stats

	// The tracer rendering pipeline.
	pipeline *Pipeline

	// State owned by the worker goroutine.
	scene   *kernel.Scene
	options kernel.Options
	display kernel.Display
}

// Create a new cpu tracer that uses numWorkers goroutines for each block. If
// numWorkers <= 0 one goroutine per cpu is used. A nil pipeline selects the
// default pipeline.
func NewTracer(id string, numWorkers int, pipeline *Pipeline) *Tracer {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if pipeline == nil {
		pipeline = DefaultPipeline()
	}

	return &Tracer{
		logger:       log.New(fmt.Sprintf("cpu tracer (%s)", id)),
		id:           id,
		numWorkers:   numWorkers,
		updateBuffer: make(map[tracer.UpdateType]interface{}),
		stats:        &tracer.Stats{},
		pipeline:     pipeline,
		options:      kernel.DefaultOptions(),
		display:      kernel.DefaultDisplay(),
	}
}

// Get tracer id.
func (tr *Tracer) Id() string {
	return tr.id
}

// Get the computation speed estimate. Tracers are compared by the number of
// goroutines they dispatch work to.
func (tr *Tracer) Speed() uint32 {
	return uint32(tr.numWorkers)
}

// Initialize tracer and start its worker.
func (tr *Tracer) Init() error {
	tr.Lock()
	defer tr.Unlock()

	if tr.pipeline.Integrator == nil {
		return fmt.Errorf("cpu tracer (%s): pipeline has no integrator stage", tr.id)
	}

	if tr.closeChan == nil {
		tr.startWorker()
	}
	return nil
}

// Shutdown and cleanup tracer.
func (tr *Tracer) Close() {
	tr.Lock()
	defer tr.Unlock()

	// If the worker is running shut it down
	if tr.closeChan != nil {
		tr.closeChan <- struct{}{}

		// wait for worker to ack close and shutdown channel
		<-tr.closeChan
		close(tr.closeChan)
		tr.closeChan = nil
		tr.wg.Wait()
	}

	tr.scene = nil
}

// Enqueue block request.
func (tr *Tracer) Enqueue(blockReq tracer.BlockRequest) {
	tr.Lock()
	running := tr.closeChan != nil
	tr.Unlock()

	if !running {
		blockReq.ErrChan <- fmt.Errorf("%w: %s", ErrTracerClosed, tr.id)
		return
	}

	select {
	case tr.blockReqChan <- blockReq:
	default:
		// drop the request if worker is not listening
		tr.logger.Error("request processor did not receive block request")
		blockReq.ErrChan <- fmt.Errorf("%w: %s", ErrTracerBusy, tr.id)
	}
}

// Append a change to the tracer's update buffer.
func (tr *Tracer) Update(updateType tracer.UpdateType, data interface{}) {
	tr.updateMutex.Lock()
	tr.updateBuffer[updateType] = data
	tr.updateMutex.Unlock()
}

// Retrieve last frame statistics.
func (tr *Tracer) Stats() *tracer.Stats {
	return tr.stats
}

// Commit queued changes.
func (tr *Tracer) commitUpdates() error {
	tr.updateMutex.Lock()
	pending := tr.updateBuffer
	tr.updateBuffer = make(map[tracer.UpdateType]interface{})
	tr.updateMutex.Unlock()

	for updateType, data := range pending {
		switch updateType {
		case tracer.UpdateScene:
			sc, ok := data.(*kernel.Scene)
			if !ok {
				return fmt.Errorf("%w: %s update with payload %T", ErrInvalidUpdate, updateType, data)
			}
			tr.scene = sc
		case tracer.UpdateKernelOptions:
			opts, ok := data.(kernel.Options)
			if !ok {
				return fmt.Errorf("%w: %s update with payload %T", ErrInvalidUpdate, updateType, data)
			}
			tr.options = opts
		case tracer.UpdateDisplay:
			display, ok := data.(kernel.Display)
			if !ok {
				return fmt.Errorf("%w: %s update with payload %T", ErrInvalidUpdate, updateType, data)
			}
			tr.display = display
		default:
			return fmt.Errorf("%w: type %d", ErrInvalidUpdate, updateType)
		}
	}
	return nil
}

func (tr *Tracer) hasPendingUpdates() bool {
	tr.updateMutex.Lock()
	defer tr.updateMutex.Unlock()
	return len(tr.updateBuffer) != 0
}

// Spawn a go-routine to process block render requests. This method is meant
// to be called while holding tr.Lock().
func (tr *Tracer) startWorker() {
	tr.closeChan = make(chan struct{})
	tr.blockReqChan = make(chan tracer.BlockRequest, 1)

	readyChan := make(chan struct{})
	tr.wg.Add(1)
	go func(blockReqChan <-chan tracer.BlockRequest, closeChan chan struct{}) {
		defer tr.wg.Done()
		var blockReq tracer.BlockRequest
		var startTime time.Time
		var err error
		close(readyChan)
		for {
			select {
			case blockReq = <-blockReqChan:
				// Apply any pending changes
				if tr.hasPendingUpdates() {
					startTime = time.Now()
					err = tr.commitUpdates()
					if err != nil {
						blockReq.ErrChan <- err
						continue
					}
					tr.stats.UpdateTime = time.Since(startTime)
				}

				// Render block and reply with our completion status
				startTime = time.Now()
				err = tr.renderBlock(&blockReq)
				if err != nil {
					blockReq.ErrChan <- err
					continue
				}

				// Update stats
				tr.stats.BlockH = blockReq.BlockH
				tr.stats.RenderTime = time.Since(startTime)

				blockReq.DoneChan <- blockReq.BlockH
			case <-closeChan:
				// Ack close
				closeChan <- struct{}{}
				return
			}
		}
	}(tr.blockReqChan, tr.closeChan)

	// Wait for go-routine to start
	<-readyChan
}

// Render block.
func (tr *Tracer) renderBlock(blockReq *tracer.BlockRequest) error {
	if tr.scene == nil {
		return ErrNoSceneData
	}

	frame := blockReq.Frame
	if frame == nil ||
		blockReq.BlockY+blockReq.BlockH > frame.Height ||
		len(frame.Accum) < int(frame.Width*frame.Height) ||
		len(blockReq.FrameBuffer) < int(frame.Width*frame.Height*4) {
		return ErrInvalidBlock
	}
	if blockReq.BlockH == 0 {
		return nil
	}

	// Execute pipeline
	if frame.Index == 0 && tr.pipeline.Reset != nil {
		if _, err := tr.pipeline.Reset(tr, blockReq); err != nil {
			return err
		}
	}
	if _, err := tr.pipeline.Integrator(tr, blockReq); err != nil {
		return err
	}
	for _, stage := range tr.pipeline.PostProcess {
		if _, err := stage(tr, blockReq); err != nil {
			return err
		}
	}

	return nil
}

package renderer

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/lumen-rt/lumen/asset/scene"
)

const checkpointVersion uint32 = 2

var checkpointMagic = [8]byte{'L', 'U', 'M', 'E', 'N', 'C', 'K', 'P'}

// The checkpoint header is followed by the snappy-framed accumulation buffer.
type checkpointHeader struct {
	Magic      [8]byte
	Version    uint32
	Width      uint32
	Height     uint32
	FrameIndex uint32

	MaxBounces      uint32
	MinBouncesForRR uint32

	// Scene the accumulation was rendered from.
	TriangleCount    uint32
	BvhNodeCount     uint32
	MaterialCount    uint32
	LightCount       uint32
	SceneFingerprint uint64

	Camera scene.Camera
}

// Fill in the header fields that identify the renderer scene.
func (r *Progressive) sceneHeader(header *checkpointHeader) {
	sc := r.resources.Scene()
	header.TriangleCount = uint32(len(sc.Triangles))
	header.BvhNodeCount = uint32(len(sc.Nodes))
	header.MaterialCount = uint32(len(sc.Materials))
	header.LightCount = uint32(len(sc.Lights))
	header.SceneFingerprint = r.resources.SceneFingerprint()
}

// Serialize the accumulation state so a render can be resumed later. Must
// not be called while a frame is being rendered.
func (r *Progressive) SaveCheckpoint(w io.Writer) error {
	frameW, frameH := r.resources.FrameSize()
	kOpts, _ := r.resources.Options()
	header := checkpointHeader{
		Magic:           checkpointMagic,
		Version:         checkpointVersion,
		Width:           frameW,
		Height:          frameH,
		FrameIndex:      r.resources.FrameIndex(),
		MaxBounces:      kOpts.MaxBounces,
		MinBouncesForRR: kOpts.MinBouncesForRR,
		Camera:          *r.resources.Camera(),
	}
	r.sceneHeader(&header)
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return err
	}

	sw := snappy.NewBufferedWriter(w)
	if _, err := sw.Write(r.resources.Accumulator()); err != nil {
		return err
	}
	return sw.Close()
}

// Restore accumulation state from a checkpoint. The checkpoint must have been
// produced for the same frame size and kernel options; its camera replaces
// the active one.
func (r *Progressive) LoadCheckpoint(rd io.Reader) error {
	if err := r.applyPendingChanges(); err != nil {
		return err
	}

	var header checkpointHeader
	if err := binary.Read(rd, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}
	if header.Magic != checkpointMagic || header.Version != checkpointVersion {
		return ErrInvalidCheckpoint
	}

	frameW, frameH := r.resources.FrameSize()
	kOpts, display := r.resources.Options()
	if header.Width != frameW || header.Height != frameH {
		return fmt.Errorf("%w: checkpoint frame is %dx%d; renderer frame is %dx%d", ErrCheckpointMismatch, header.Width, header.Height, frameW, frameH)
	}
	if header.MaxBounces != kOpts.MaxBounces || header.MinBouncesForRR != kOpts.MinBouncesForRR {
		return fmt.Errorf("%w: kernel options differ", ErrCheckpointMismatch)
	}
	var active checkpointHeader
	r.sceneHeader(&active)
	if header.TriangleCount != active.TriangleCount || header.BvhNodeCount != active.BvhNodeCount ||
		header.MaterialCount != active.MaterialCount || header.LightCount != active.LightCount {
		return fmt.Errorf(
			"%w: checkpoint scene has %d triangles, %d nodes, %d materials and %d lights; renderer scene has %d, %d, %d and %d",
			ErrCheckpointMismatch,
			header.TriangleCount, header.BvhNodeCount, header.MaterialCount, header.LightCount,
			active.TriangleCount, active.BvhNodeCount, active.MaterialCount, active.LightCount,
		)
	}
	if header.SceneFingerprint != active.SceneFingerprint {
		return fmt.Errorf("%w: scene contents differ", ErrCheckpointMismatch)
	}

	data := make([]byte, len(r.resources.Accumulator()))
	if _, err := io.ReadFull(snappy.NewReader(rd), data); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCheckpoint, err)
	}

	r.resources.SetCamera(&header.Camera)
	if err := r.resources.LoadAccumulator(data); err != nil {
		return err
	}
	r.resources.SetFrameIndex(header.FrameIndex)

	// Refresh the frame buffer so the restored state is visible right away
	frame := r.resources.Frame()
	display.ResolveRows(frame.Accum, r.resources.FrameBuffer(), frame.Width, 0, frame.Height)

	r.stats = FrameStats{Samples: header.FrameIndex}
	r.logger.Noticef("restored checkpoint with %d samples per pixel", header.FrameIndex)
	return nil
}

// Save a checkpoint to a file.
func (r *Progressive) SaveCheckpointFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = r.SaveCheckpoint(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load a checkpoint from a file.
func (r *Progressive) LoadCheckpointFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.LoadCheckpoint(f)
}

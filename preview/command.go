package preview

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lumen-rt/lumen/asset/scene"
	"github.com/lumen-rt/lumen/tracer/kernel"
	"github.com/lumen-rt/lumen/types"
)

var (
	ErrUnknownCommand   = errors.New("preview: unknown command")
	ErrInvalidCommand   = errors.New("preview: invalid command arguments")
	ErrUnknownDirection = errors.New("preview: unknown camera direction")
)

// The set of operations a preview client can request. All calls must be safe
// to invoke concurrently with rendering.
type Controller interface {
	MoveCamera(dir scene.CameraDirection, amount float32)
	RotateCamera(yaw, pitch float32)
	LookAt(eye, target, up types.Vec3)
	Resize(frameW, frameH uint32) error
	SetExposure(exposure float32)
	SetToneMapper(toneMapper kernel.ToneMapper)
}

// A client command. Only the fields relevant to Type need to be set.
type Command struct {
	Type string `json:"type"`

	// move
	Direction string  `json:"direction,omitempty"`
	Amount    float32 `json:"amount,omitempty"`

	// rotate (radians)
	Yaw   float32 `json:"yaw,omitempty"`
	Pitch float32 `json:"pitch,omitempty"`

	// look_at
	Eye    *types.Vec3 `json:"eye,omitempty"`
	Target *types.Vec3 `json:"target,omitempty"`
	Up     *types.Vec3 `json:"up,omitempty"`

	// resize
	Width  uint32 `json:"width,omitempty"`
	Height uint32 `json:"height,omitempty"`

	// exposure / tone_mapper
	Value      *float32 `json:"value,omitempty"`
	ToneMapper string   `json:"tone_mapper,omitempty"`
}

// The reply sent back to a client when a command cannot be applied.
type commandError struct {
	Error string `json:"error"`
}

var directions = map[string]scene.CameraDirection{
	"forward":  scene.Forward,
	"backward": scene.Backward,
	"left":     scene.Left,
	"right":    scene.Right,
	"up":       scene.Up,
	"down":     scene.Down,
}

// Parse a camera direction name.
func ParseDirection(name string) (scene.CameraDirection, error) {
	dir, ok := directions[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, name)
	}
	return dir, nil
}

// Decode a JSON command and forward it to ctrl.
func Dispatch(ctrl Controller, payload []byte) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return Apply(ctrl, cmd)
}

// Forward a decoded command to ctrl.
func Apply(ctrl Controller, cmd Command) error {
	switch cmd.Type {
	case "move":
		dir, err := ParseDirection(cmd.Direction)
		if err != nil {
			return err
		}
		ctrl.MoveCamera(dir, cmd.Amount)
	case "rotate":
		ctrl.RotateCamera(cmd.Yaw, cmd.Pitch)
	case "look_at":
		if cmd.Eye == nil || cmd.Target == nil {
			return fmt.Errorf("%w: look_at requires eye and target", ErrInvalidCommand)
		}
		up := types.Vec3{0, 1, 0}
		if cmd.Up != nil {
			up = *cmd.Up
		}
		ctrl.LookAt(*cmd.Eye, *cmd.Target, up)
	case "resize":
		return ctrl.Resize(cmd.Width, cmd.Height)
	case "exposure":
		if cmd.Value == nil || *cmd.Value < 0 {
			return fmt.Errorf("%w: exposure requires a non-negative value", ErrInvalidCommand)
		}
		ctrl.SetExposure(*cmd.Value)
	case "tone_mapper":
		tm, err := kernel.ParseToneMapper(cmd.ToneMapper)
		if err != nil {
			return err
		}
		ctrl.SetToneMapper(tm)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
	return nil
}

package scene

import (
	"math"

	"github.com/lumen-rt/lumen/types"
)

type CameraDirection uint8

// Supported camera movement directions.
const (
	Forward CameraDirection = iota
	Backward
	Left
	Right
	Up
	Down
)

// Pitch never reaches the poles so that the basis stays well defined.
const maxPitchCos float32 = 0.999

// The camera type controls the scene camera. The Forward, Right and Up vectors
// always form an orthonormal basis.
type Camera struct {
	Position types.Vec3
	Forward  types.Vec3
	Right    types.Vec3
	Up       types.Vec3

	// The world up vector used for rebuilding the basis.
	WorldUp types.Vec3

	// Vertical field of view in degrees.
	FOV float32

	// Frame width / frame height.
	Aspect float32
}

// Create a camera at the origin looking down the -Z axis.
func NewCamera(fov float32) *Camera {
	c := &Camera{
		FOV:     fov,
		Aspect:  1.0,
		WorldUp: types.Vec3{0, 1, 0},
	}
	c.LookAt(types.Vec3{0, 0, 0}, types.Vec3{0, 0, -1}, c.WorldUp)
	return c
}

// Position the camera at eye and point it towards target.
func (c *Camera) LookAt(eye, target, up types.Vec3) {
	c.Position = eye
	if up.LenSq() > 0 {
		c.WorldUp = up.Normalize()
	}

	dir := target.Sub(eye)
	if dir.LenSq() == 0 {
		dir = types.Vec3{0, 0, -1}
	}
	c.setForward(dir.Normalize())
}

// Set the aspect ratio from the frame dimensions.
func (c *Camera) SetAspect(frameW, frameH uint32) {
	if frameW == 0 || frameH == 0 {
		return
	}
	c.Aspect = float32(frameW) / float32(frameH)
}

// Move camera along one of its basis vectors.
func (c *Camera) Move(dir CameraDirection, amount float32) {
	var delta types.Vec3
	switch dir {
	case Forward:
		delta = c.Forward.Mul(amount)
	case Backward:
		delta = c.Forward.Mul(-amount)
	case Left:
		delta = c.Right.Mul(-amount)
	case Right:
		delta = c.Right.Mul(amount)
	case Up:
		delta = c.Up.Mul(amount)
	case Down:
		delta = c.Up.Mul(-amount)
	}
	c.Position = c.Position.Add(delta)
}

// Rotate the camera by yaw radians around the world up vector and by pitch
// radians around the camera right vector.
func (c *Camera) Rotate(yaw, pitch float32) {
	yawQuat := types.QuatFromAxisAngle(c.WorldUp, -yaw)
	pitchQuat := types.QuatFromAxisAngle(c.Right, pitch)
	orientQuat := yawQuat.Mul(pitchQuat).Normalize()

	dir := orientQuat.Rotate(c.Forward).Normalize()

	// Refuse to pitch past the poles
	if float32(math.Abs(float64(dir.Dot(c.WorldUp)))) > maxPitchCos {
		dir = yawQuat.Rotate(c.Forward).Normalize()
	}
	c.setForward(dir)
}

// Recalculate the orthonormal basis from a forward direction.
func (c *Camera) setForward(dir types.Vec3) {
	worldUp := c.WorldUp
	if float32(math.Abs(float64(dir.Dot(worldUp)))) > maxPitchCos {
		// Looking straight up/down; pick another reference axis
		worldUp = types.Vec3{0, 0, 1}
		if float32(math.Abs(float64(dir[2]))) > maxPitchCos {
			worldUp = types.Vec3{1, 0, 0}
		}
	}

	c.Forward = dir
	c.Right = dir.Cross(worldUp).Normalize()
	c.Up = c.Right.Cross(dir).Normalize()
}

// Get a copy of the camera.
func (c *Camera) Clone() *Camera {
	clone := *c
	return &clone
}

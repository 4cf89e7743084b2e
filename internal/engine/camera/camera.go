// Package camera provides the viewer cameras. Both implement the terrain
// node's camera collaborator through WorldPos.
package camera

import (
	gomath "math"

	"github.com/istavang/medea.js/pkg/math"
)

// FlyCamera moves freely above the terrain.
type FlyCamera struct {
	Pos math.Vec3

	Yaw   float32 // Horizontal angle (radians), 0 looks down -Z
	Pitch float32 // Vertical angle (radians), negative looks down

	MinPitch float32
	MaxPitch float32

	// Speed is in world units per second.
	Speed           float32
	LookSensitivity float32

	// MinClearance keeps the eye this far above the ground in FollowGround.
	MinClearance float32
}

// NewFlyCamera creates a fly camera at pos looking slightly down.
func NewFlyCamera(pos math.Vec3) *FlyCamera {
	return &FlyCamera{
		Pos:             pos,
		Pitch:           -0.3,
		MinPitch:        -1.5,
		MaxPitch:        1.5,
		Speed:           100,
		LookSensitivity: 0.004,
		MinClearance:    2,
	}
}

// WorldPos returns the eye position.
func (c *FlyCamera) WorldPos() math.Vec3 {
	return c.Pos
}

// Forward returns the unit view direction.
func (c *FlyCamera) Forward() math.Vec3 {
	cp := gomath.Cos(float64(c.Pitch))
	return math.Vec3{
		X: float32(-cp * gomath.Sin(float64(c.Yaw))),
		Y: float32(gomath.Sin(float64(c.Pitch))),
		Z: float32(-cp * gomath.Cos(float64(c.Yaw))),
	}
}

// Right returns the unit strafe direction on the XZ plane.
func (c *FlyCamera) Right() math.Vec3 {
	return math.Vec3{
		X: float32(gomath.Cos(float64(c.Yaw))),
		Z: float32(-gomath.Sin(float64(c.Yaw))),
	}
}

// ViewMatrix returns the view matrix for this camera.
func (c *FlyCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.Pos, c.Pos.Add(c.Forward()), math.Vec3{Y: 1})
}

// HandleLook turns the camera by a mouse delta in pixels.
func (c *FlyCamera) HandleLook(deltaX, deltaY float32) {
	c.Yaw -= deltaX * c.LookSensitivity
	c.Pitch -= deltaY * c.LookSensitivity

	if c.Pitch < c.MinPitch {
		c.Pitch = c.MinPitch
	}
	if c.Pitch > c.MaxPitch {
		c.Pitch = c.MaxPitch
	}
}

// HandleMovement moves along the view direction, the strafe direction and
// world up. Each axis is in [-1, 1]; dt is in seconds.
func (c *FlyCamera) HandleMovement(forward, right, up, dt float32) {
	step := c.Speed * dt
	d := c.Forward().Scale(forward).
		Add(c.Right().Scale(right)).
		Add(math.Vec3{Y: up})
	c.Pos = c.Pos.Add(d.Scale(step))
}

// FollowGround lifts the camera so it stays MinClearance above ground.
func (c *FlyCamera) FollowGround(ground float64) {
	if floor := float32(ground) + c.MinClearance; c.Pos.Y < floor {
		c.Pos.Y = floor
	}
}

// OrbitCamera orbits around a center point.
type OrbitCamera struct {
	Center math.Vec3

	// Spherical coordinates
	Distance  float32 // Distance from center
	RotationX float32 // Pitch (vertical angle, radians)
	RotationY float32 // Yaw (horizontal angle, radians)

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Sensitivity
	DragSensitivity float32
	ZoomSensitivity float32
}

// NewOrbitCamera creates a new orbit camera with default settings.
func NewOrbitCamera() *OrbitCamera {
	return &OrbitCamera{
		Distance:        200.0,
		RotationX:       0.5,
		MinDistance:     10.0,
		MaxDistance:     20000.0,
		MinPitch:        0.1,
		MaxPitch:        1.5,
		DragSensitivity: 0.005,
		ZoomSensitivity: 0.1,
	}
}

// WorldPos returns the camera position in world space.
func (c *OrbitCamera) WorldPos() math.Vec3 {
	cx := gomath.Cos(float64(c.RotationX))
	return c.Center.Add(math.Vec3{
		X: c.Distance * float32(cx*gomath.Sin(float64(c.RotationY))),
		Y: c.Distance * float32(gomath.Sin(float64(c.RotationX))),
		Z: c.Distance * float32(cx*gomath.Cos(float64(c.RotationY))),
	})
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() math.Mat4 {
	return math.LookAt(c.WorldPos(), c.Center, math.Vec3{Y: 1})
}

// HandleDrag updates rotation based on mouse drag delta.
func (c *OrbitCamera) HandleDrag(deltaX, deltaY float32) {
	c.RotationY -= deltaX * c.DragSensitivity
	c.RotationX += deltaY * c.DragSensitivity

	if c.RotationX < c.MinPitch {
		c.RotationX = c.MinPitch
	}
	if c.RotationX > c.MaxPitch {
		c.RotationX = c.MaxPitch
	}
}

// HandleZoom updates distance based on scroll wheel delta.
func (c *OrbitCamera) HandleZoom(delta float32) {
	c.Distance -= delta * c.Distance * c.ZoomSensitivity
	if c.Distance < c.MinDistance {
		c.Distance = c.MinDistance
	}
	if c.Distance > c.MaxDistance {
		c.Distance = c.MaxDistance
	}
}

// FitToBounds centers the camera on a box and backs off far enough to see
// its larger horizontal side.
func (c *OrbitCamera) FitToBounds(lo, hi [3]float32) {
	c.Center = math.Vec3{
		X: (lo[0] + hi[0]) / 2,
		Y: (lo[1] + hi[1]) / 2,
		Z: (lo[2] + hi[2]) / 2,
	}

	size := hi[0] - lo[0]
	if sz := hi[2] - lo[2]; sz > size {
		size = sz
	}
	c.Distance = size
	if c.Distance < c.MinDistance {
		c.Distance = c.MinDistance
	}
	if c.Distance > c.MaxDistance {
		c.Distance = c.MaxDistance
	}
	c.RotationX = 0.6
	c.RotationY = 0
}

// Package lighting converts sun angles into the directional light used by
// the terrain shader.
package lighting

import (
	gomath "math"

	"github.com/istavang/medea.js/pkg/math"
)

// Sun places a directional light by compass angle and elevation, both in
// degrees. Azimuth 0 puts the sun toward +Z and increases toward +X.
// Elevation is measured from the horizon.
type Sun struct {
	Azimuth   float64
	Elevation float64
}

// ToSun returns the unit vector pointing from the ground toward the sun.
func (s Sun) ToSun() math.Vec3 {
	az := s.Azimuth * gomath.Pi / 180
	el := s.Elevation * gomath.Pi / 180
	return math.Vec3{
		X: float32(gomath.Cos(el) * gomath.Sin(az)),
		Y: float32(gomath.Sin(el)),
		Z: float32(gomath.Cos(el) * gomath.Cos(az)),
	}
}

// Direction returns the direction the light travels, as the terrain shader
// expects it.
func (s Sun) Direction() [3]float32 {
	return s.ToSun().Scale(-1).Array()
}

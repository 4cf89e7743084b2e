package renderer

import (
	"testing"

	"github.com/istavang/medea.js/pkg/math"
)

func TestProjectionAspect(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
	}{
		{"wide", 1280, 720},
		{"square", 512, 512},
		{"minimized", 800, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Width: tt.width, Height: tt.height, FOV: 90, Near: 1, Far: 1000}
			m := projection(cfg)

			aspect := float32(1)
			if tt.height > 0 {
				aspect = float32(tt.width) / float32(tt.height)
			}
			// With a 90 degree FOV, m[5] is 1 and m[0] is 1/aspect.
			if d := m[5] - 1; d > 1e-5 || d < -1e-5 {
				t.Errorf("m[5] = %v, want 1", m[5])
			}
			if d := m[0]*aspect - 1; d > 1e-5 || d < -1e-5 {
				t.Errorf("m[0] = %v, want %v", m[0], 1/aspect)
			}
		})
	}
}

func TestProjectionDepthRange(t *testing.T) {
	m := projection(Config{Width: 100, Height: 100, FOV: 60, Near: 2, Far: 500})

	near := m.TransformPoint(math.Vec3{Z: -2})
	far := m.TransformPoint(math.Vec3{Z: -500})
	if d := near.Z + 1; d > 1e-4 || d < -1e-4 {
		t.Errorf("near plane maps to z=%v, want -1", near.Z)
	}
	if d := far.Z - 1; d > 1e-4 || d < -1e-4 {
		t.Errorf("far plane maps to z=%v, want 1", far.Z)
	}
}

package lighting

import (
	gomath "math"
	"testing"
)

func TestSunDirection(t *testing.T) {
	tests := []struct {
		name string
		sun  Sun
		want [3]float32
	}{
		{"zenith", Sun{Azimuth: 0, Elevation: 90}, [3]float32{0, -1, 0}},
		{"horizon north", Sun{Azimuth: 0, Elevation: 0}, [3]float32{0, 0, -1}},
		{"horizon east", Sun{Azimuth: 90, Elevation: 0}, [3]float32{-1, 0, 0}},
		{"diagonal", Sun{Azimuth: 180, Elevation: 45}, [3]float32{0, -0.70710677, 0.70710677}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.sun.Direction()
			for i := range got {
				if gomath.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Fatalf("Direction() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestToSunIsUnit(t *testing.T) {
	for az := 0.0; az < 360; az += 45 {
		for el := -30.0; el <= 90; el += 30 {
			v := Sun{Azimuth: az, Elevation: el}.ToSun()
			if l := v.Length(); gomath.Abs(float64(l)-1) > 1e-6 {
				t.Errorf("|ToSun(%v,%v)| = %v", az, el, l)
			}
		}
	}
}

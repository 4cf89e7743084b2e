package terrain

import (
	"github.com/istavang/medea.js/pkg/math"
)

// HeightField is a (Width x Height) lattice of vertex positions, row-major.
// X and Z are local to the field's first vertex; Y is the scaled height.
type HeightField struct {
	Positions []math.Vec3
	Width     int
	Height    int

	// OriginX and OriginY are the grid-space coordinates of the first
	// vertex. Only set by Provider.SampleLOD.
	OriginX float64
	OriginY float64
	// Spacing is the xz distance between neighboring vertices.
	Spacing float32
}

// At returns the position at lattice coordinate (x,y).
func (hf *HeightField) At(x, y int) math.Vec3 {
	return hf.Positions[y*hf.Width+x]
}

// flatHeightField returns a w x h lattice at height def spaced by xzScale.
func flatHeightField(w, h int, def, xzScale float32) *HeightField {
	pos := make([]math.Vec3, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pos = append(pos, math.Vec3{X: float32(x) * xzScale, Y: def, Z: float32(y) * xzScale})
		}
	}
	return &HeightField{Positions: pos, Width: w, Height: h, Spacing: xzScale}
}

// heightfieldFromImage extracts a w x h vertex lattice from the red channel
// of img starting at pixel (x,y). The rectangle must lie inside the image.
func heightfieldFromImage(img Image, x, y, w, h int, yScale, xzScale float32) *HeightField {
	pos := make([]math.Vec3, 0, w*h)
	for yy := 0; yy < h; yy++ {
		for xx := 0; xx < w; xx++ {
			pos = append(pos, math.Vec3{
				X: float32(xx) * xzScale,
				Y: img.PixelComponent(x+xx, y+yy, 0) * yScale,
				Z: float32(yy) * xzScale,
			})
		}
	}
	return &HeightField{Positions: pos, Width: w, Height: h, Spacing: xzScale}
}

// sampleKernel is the 3x3 pseudo-gaussian used for point height queries.
var sampleKernel = [3][3]float32{
	{0.05, 0.1, 0.05},
	{0.1, 0.4, 0.1},
	{0.05, 0.1, 0.05},
}

// filteredHeight applies sampleKernel around pixel (x,y).
func filteredHeight(img Image, x, y int, hscale float32) float32 {
	var h float32
	for n := -1; n <= 1; n++ {
		for m := -1; m <= 1; m++ {
			h += img.PixelComponent(x+n, y+m, 0) * hscale * sampleKernel[n+1][m+1]
		}
	}
	return h
}

// TangentSpace holds per-vertex lighting frames for a heightfield.
type TangentSpace struct {
	Normals    []math.Vec3
	Tangents   []math.Vec3
	Bitangents []math.Vec3
}

// GenTangentSpace computes normals, tangents and bitangents with central
// differences; edge vertices fall back to one-sided differences.
func GenTangentSpace(pos []math.Vec3, w, h int) TangentSpace {
	ts := TangentSpace{
		Normals:    make([]math.Vec3, len(pos)),
		Tangents:   make([]math.Vec3, len(pos)),
		Bitangents: make([]math.Vec3, len(pos)),
	}
	if w < 2 || h < 2 {
		for i := range pos {
			ts.Normals[i] = math.Vec3{Y: 1}
			ts.Tangents[i] = math.Vec3{X: 1}
			ts.Bitangents[i] = math.Vec3{Z: 1}
		}
		return ts
	}

	at := func(x, y int) math.Vec3 { return pos[y*w+x] }
	for y := 0; y < h; y++ {
		y0, y1 := max(y-1, 0), min(y+1, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-1, 0), min(x+1, w-1)

			t := at(x1, y).Sub(at(x0, y)).Normalize()
			b := at(x, y1).Sub(at(x, y0)).Normalize()
			n := b.Cross(t).Normalize()
			if n == (math.Vec3{}) {
				n = math.Vec3{Y: 1}
			}

			i := y*w + x
			ts.Normals[i] = n
			ts.Tangents[i] = t
			ts.Bitangents[i] = b
		}
	}
	return ts
}

// genUVs returns texture coordinates in terrain grid units so that
// neighboring rings share the same mapping along their seam.
func genUVs(hf *HeightField, cellsPerVertex float64) [][2]float32 {
	uv := make([][2]float32, 0, hf.Width*hf.Height)
	for y := 0; y < hf.Height; y++ {
		for x := 0; x < hf.Width; x++ {
			uv = append(uv, [2]float32{
				float32(hf.OriginX + float64(x)*cellsPerVertex),
				float32(hf.OriginY + float64(y)*cellsPerVertex),
			})
		}
	}
	return uv
}

package texture

import (
	"image"
)

// Heightmap is a decoded image with per-channel pixel access. It implements
// the terrain provider's image interface.
type Heightmap struct {
	rgba *image.RGBA
}

// NewHeightmap wraps img.
func NewHeightmap(img image.Image) *Heightmap {
	return &Heightmap{rgba: ImageToRGBA(img)}
}

// Width returns the image width in pixels.
func (h *Heightmap) Width() int { return h.rgba.Rect.Dx() }

// Height returns the image height in pixels.
func (h *Heightmap) Height() int { return h.rgba.Rect.Dy() }

// RGBA returns the underlying pixels.
func (h *Heightmap) RGBA() *image.RGBA { return h.rgba }

// PixelComponent returns channel c (0=R .. 3=A) of pixel (x,y) in 0-255.
// Coordinates outside the image are clamped to the nearest edge pixel.
func (h *Heightmap) PixelComponent(x, y, c int) float32 {
	x = min(max(x, 0), h.Width()-1)
	y = min(max(y, 0), h.Height()-1)
	c = min(max(c, 0), 3)
	return float32(h.rgba.Pix[h.rgba.PixOffset(x, y)+c])
}

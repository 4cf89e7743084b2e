// Package terrain streams multi-resolution heightmap data around a moving
// camera and stitches the resulting LOD rings into one seamless mesh.
package terrain

import "errors"

// Sentinel errors. Each indicates a content or programming defect that a
// retry cannot fix. Other fetch failures, such as a missing or unreadable
// file, are retried.
var (
	ErrInvalidDescription = errors.New("invalid terrain description")
	ErrAspectMismatch     = errors.New("LOD images with different aspect ratios than the main terrain are not supported")
	ErrLODNotPresent      = errors.New("LOD not present")
	ErrUnknownJob         = errors.New("job not in waitlist")
	ErrTileSize           = errors.New("heightmap image size does not match its descriptor")
)

// fatal reports whether err wraps one of the sentinel errors.
func fatal(err error) bool {
	for _, target := range []error{ErrInvalidDescription, ErrAspectMismatch, ErrLODNotPresent, ErrUnknownJob, ErrTileSize} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Vertex represents a terrain mesh vertex with all attributes.
type Vertex struct {
	Position  [3]float32
	Normal    [3]float32
	Tangent   [3]float32
	Bitangent [3]float32
	TexCoord  [2]float32
}

// Bounds holds an axis-aligned bounding box.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// EmptyBounds returns an inverted box that any point will expand.
func EmptyBounds() Bounds {
	return Bounds{
		Min: [3]float32{1e10, 1e10, 1e10},
		Max: [3]float32{-1e10, -1e10, -1e10},
	}
}

// IsEmpty reports whether no point has been added to b.
func (b Bounds) IsEmpty() bool {
	return b.Min[0] > b.Max[0]
}

// Extend grows b to contain p.
func (b *Bounds) Extend(p [3]float32) {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i] > b.Max[i] {
			b.Max[i] = p[i]
		}
	}
}

// Merge grows b to contain o.
func (b *Bounds) Merge(o Bounds) {
	if o.IsEmpty() {
		return
	}
	b.Extend(o.Min)
	b.Extend(o.Max)
}

// ComputeBounds returns the bounding box of the vertex positions.
func ComputeBounds(vertices []Vertex) Bounds {
	b := EmptyBounds()
	for i := range vertices {
		b.Extend(vertices[i].Position)
	}
	return b
}

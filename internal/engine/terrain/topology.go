package terrain

import (
	"fmt"

	"go.uber.org/zap"
)

// Variant selects how a ring's triangulation treats its outer border.
type Variant int

const (
	// VariantPlain is a full grid without a hole. Used by the finest ring;
	// its border is stitched to the next-coarser ring.
	VariantPlain Variant = iota
	// VariantHoleNoSkirt is a grid with a hole and an unstitched border.
	// Used by the outermost ring, which has no coarser neighbor.
	VariantHoleNoSkirt
	// VariantHoleWithSkirt is a grid with a hole and a border that blends
	// into the next-coarser ring.
	VariantHoleWithSkirt
)

func (v Variant) String() string {
	switch v {
	case VariantPlain:
		return "plain"
	case VariantHoleNoSkirt:
		return "hole"
	case VariantHoleWithSkirt:
		return "hole+skirt"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// TopologyKey identifies one generated triangulation. W and H are cell
// counts; the hole is given in cells.
type TopologyKey struct {
	W, H         int
	HoleX, HoleY int
	HoleW, HoleH int
	Variant      Variant
}

func (k TopologyKey) String() string {
	return fmt.Sprintf("%d-%d-%d-%d-%d-%d-%s", k.W, k.H, k.HoleX, k.HoleY, k.HoleW, k.HoleH, k.Variant)
}

// stitched reports whether the border is reduced to every other vertex.
func (k TopologyKey) stitched() bool {
	if k.Variant == VariantHoleNoSkirt {
		return false
	}
	return k.W >= 2 && k.H >= 2 && k.W%2 == 0 && k.H%2 == 0
}

// IndexBuffer is an immutable triangle list shared by every mesh whose
// topology has the same key.
type IndexBuffer struct {
	Key     TopologyKey
	Indices []uint32
}

// Triangles returns the number of triangles.
func (ib *IndexBuffer) Triangles() int {
	return len(ib.Indices) / 3
}

// TopologyCache maps topology keys to generated index buffers. It is owned
// by the rendering context and shared by every ring drawn with it. It is not
// safe for concurrent use; rings only touch it from the update goroutine.
type TopologyCache struct {
	entries   map[TopologyKey]*IndexBuffer
	generated int
	log       *zap.Logger
}

// NewTopologyCache creates an empty cache. log may be nil.
func NewTopologyCache(log *zap.Logger) *TopologyCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &TopologyCache{
		entries: make(map[TopologyKey]*IndexBuffer),
		log:     log,
	}
}

// Get returns the index buffer for key, generating it on first use.
func (c *TopologyCache) Get(key TopologyKey) *IndexBuffer {
	if ib, ok := c.entries[key]; ok {
		return ib
	}

	ib := &IndexBuffer{Key: key, Indices: generateIndices(key)}
	c.entries[key] = ib
	c.generated++

	c.log.Debug("populate terrain IB cache",
		zap.Stringer("key", key),
		zap.Int("triangles", ib.Triangles()),
	)
	return ib
}

// Len returns the number of cached topologies.
func (c *TopologyCache) Len() int {
	return len(c.entries)
}

// Generated returns how many topologies have been generated so far.
func (c *TopologyCache) Generated() int {
	return c.generated
}

// gridBuilder emits triangles over a (w+1)x(h+1) vertex lattice, always
// wound counter-clockwise when seen from +Y.
type gridBuilder struct {
	w       int
	indices []uint32
}

func (g *gridBuilder) vertex(x, y int) uint32 {
	return uint32(y*(g.w+1) + x)
}

func (g *gridBuilder) tri(a, b, c [2]int) {
	// Grid y maps to world +Z, so a negative 2D cross product is CCW from above.
	cross := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	if cross > 0 {
		b, c = c, b
	}
	g.indices = append(g.indices, g.vertex(a[0], a[1]), g.vertex(b[0], b[1]), g.vertex(c[0], c[1]))
}

func (g *gridBuilder) quad(x, y int) {
	a := [2]int{x, y}
	b := [2]int{x + 1, y}
	c := [2]int{x, y + 1}
	d := [2]int{x + 1, y + 1}
	g.tri(a, c, b)
	g.tri(b, c, d)
}

// generateIndices builds the triangle list for key.
func generateIndices(key TopologyKey) []uint32 {
	g := &gridBuilder{w: key.W}

	x0, y0, x1, y1 := 0, 0, key.W, key.H
	stitch := key.stitched()
	if stitch {
		x0, y0, x1, y1 = 1, 1, key.W-1, key.H-1
	}

	inHole := func(x, y int) bool {
		return x >= key.HoleX && x < key.HoleX+key.HoleW &&
			y >= key.HoleY && y < key.HoleY+key.HoleH
	}

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			if inHole(x, y) {
				continue
			}
			g.quad(x, y)
		}
	}

	if stitch {
		stitchBorder(g, key.W, key.H)
	}
	return g.indices
}

// stitchBorder fills the one-cell border between the lattice edge and the
// inner grid. Only even edge vertices are used, so the edge matches a grid
// with half the resolution and no T-junctions appear at the seam. The four
// trapezoids meet along the corner diagonals.
func stitchBorder(g *gridBuilder, w, h int) {
	edge := func(n int, outer func(i int) [2]int, inner func(i int) [2]int) {
		for k := 0; k < n/2; k++ {
			o0, o1, mid := outer(2*k), outer(2*k+2), inner(2*k+1)
			g.tri(o0, o1, mid)
			if k > 0 {
				g.tri(o0, mid, inner(2*k))
			}
			if k < n/2-1 {
				g.tri(o1, inner(2*k+2), mid)
			}
		}
	}

	edge(w, func(i int) [2]int { return [2]int{i, 0} }, func(i int) [2]int { return [2]int{i, 1} })
	edge(w, func(i int) [2]int { return [2]int{i, h} }, func(i int) [2]int { return [2]int{i, h - 1} })
	edge(h, func(i int) [2]int { return [2]int{0, i} }, func(i int) [2]int { return [2]int{1, i} })
	edge(h, func(i int) [2]int { return [2]int{w, i} }, func(i int) [2]int { return [2]int{w - 1, i} })
}

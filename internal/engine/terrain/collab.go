package terrain

import (
	"context"

	"github.com/istavang/medea.js/pkg/math"
)

// Image is a decoded heightmap. PixelComponent returns the raw channel value
// (0-255) and clamps out-of-range coordinates to the nearest edge pixel.
type Image interface {
	Width() int
	Height() int
	PixelComponent(x, y, channel int) float32
}

// ImageLoader fetches and decodes a heightmap. Load blocks; the provider runs
// it off the update goroutine.
type ImageLoader interface {
	Load(ctx context.Context, path string) (Image, error)
}

// Material is an opaque handle owned by the rendering pipeline.
type Material any

// MaterialSpec is a resolved material description for one LOD.
type MaterialSpec struct {
	LOD       int
	Effect    string
	Constants map[string]any
	CullFace  bool
}

// MaterialFactory creates rendering materials.
type MaterialFactory interface {
	CreateMaterial(spec MaterialSpec) (Material, error)
}

// Mesh is a renderable vertex/index buffer pair. Fill replaces the vertex
// data in place; the vertex count never changes for a given ring.
type Mesh interface {
	Fill(vertices []Vertex) error
	UpdateBounds()
	Bounds() Bounds
	SetIndices(ib *IndexBuffer)
	Indices() *IndexBuffer
}

// MeshFactory allocates meshes. material may be nil, in which case the
// factory picks its own default.
type MeshFactory interface {
	NewMesh(vertices []Vertex, ib *IndexBuffer, material Material) (Mesh, error)
}

// Scene is the scene-graph node the rings attach their meshes to.
type Scene interface {
	AddEntity(m Mesh)
	RemoveEntity(m Mesh)
}

// EntitySwapper is implemented by scenes that can replace an entity in one
// step. Either mesh may be nil.
type EntitySwapper interface {
	SwapEntity(old, new Mesh)
}

// Camera supplies the viewpoint the rings follow.
type Camera interface {
	WorldPos() math.Vec3
}

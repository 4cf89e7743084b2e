package scene

import (
	"fmt"

	"github.com/istavang/medea.js/internal/engine/terrain"
)

// MemoryMesh keeps vertex data on the CPU. It is used where no GL context
// exists.
type MemoryMesh struct {
	Vertices []terrain.Vertex
	Material *Material

	ib     *terrain.IndexBuffer
	bounds terrain.Bounds
	fills  int
}

// Fill replaces the vertex data. The vertex count must not change.
func (m *MemoryMesh) Fill(vertices []terrain.Vertex) error {
	if len(vertices) != len(m.Vertices) {
		return fmt.Errorf("fill: %d vertices for a mesh of %d", len(vertices), len(m.Vertices))
	}
	copy(m.Vertices, vertices)
	m.fills++
	return nil
}

// UpdateBounds recomputes the bounding box from the vertex data.
func (m *MemoryMesh) UpdateBounds() { m.bounds = terrain.ComputeBounds(m.Vertices) }

// Bounds returns the last computed bounding box.
func (m *MemoryMesh) Bounds() terrain.Bounds { return m.bounds }

// SetIndices replaces the index buffer.
func (m *MemoryMesh) SetIndices(ib *terrain.IndexBuffer) { m.ib = ib }

// Indices returns the index buffer.
func (m *MemoryMesh) Indices() *terrain.IndexBuffer { return m.ib }

// Fills returns how many times the vertex data was refilled.
func (m *MemoryMesh) Fills() int { return m.fills }

// MemoryMeshFactory creates MemoryMeshes.
type MemoryMeshFactory struct {
	Created int
}

// NewMesh copies vertices into a new MemoryMesh.
func (f *MemoryMeshFactory) NewMesh(vertices []terrain.Vertex, ib *terrain.IndexBuffer, material terrain.Material) (terrain.Mesh, error) {
	m := &MemoryMesh{
		Vertices: append([]terrain.Vertex(nil), vertices...),
		Material: materialOrDefault(material),
		ib:       ib,
	}
	m.UpdateBounds()
	f.Created++
	return m, nil
}

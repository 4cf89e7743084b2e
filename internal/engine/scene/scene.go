// Package scene holds the entities drawn by the terrain viewer and the
// meshes that back them, both in memory and on the GPU.
package scene

import (
	"github.com/istavang/medea.js/internal/engine/terrain"
)

// Scene is a flat list of mesh entities with a cached bounding box. It
// implements the terrain node's scene and entity swapper interfaces.
type Scene struct {
	entities []terrain.Mesh

	// Lighting
	LightDir     [3]float32
	AmbientColor [3]float32
	DiffuseColor [3]float32

	bounds      terrain.Bounds
	boundsDirty bool
}

// New creates an empty scene with default lighting.
func New() *Scene {
	return &Scene{
		LightDir:     [3]float32{-0.4, -1, -0.3},
		AmbientColor: [3]float32{0.35, 0.35, 0.4},
		DiffuseColor: [3]float32{0.8, 0.8, 0.75},
		bounds:       terrain.EmptyBounds(),
	}
}

// AddEntity adds m. Adding an entity twice has no effect.
func (s *Scene) AddEntity(m terrain.Mesh) {
	if m == nil || s.index(m) >= 0 {
		return
	}
	s.entities = append(s.entities, m)
	s.boundsDirty = true
}

// RemoveEntity removes m if present.
func (s *Scene) RemoveEntity(m terrain.Mesh) {
	i := s.index(m)
	if i < 0 {
		return
	}
	s.entities = append(s.entities[:i], s.entities[i+1:]...)
	s.boundsDirty = true
}

// SwapEntity replaces old with new in one step, keeping draw order. Either
// may be nil.
func (s *Scene) SwapEntity(old, new terrain.Mesh) {
	if old == new {
		return
	}
	if i := s.index(old); i >= 0 && new != nil && s.index(new) < 0 {
		s.entities[i] = new
		s.boundsDirty = true
		return
	}
	s.RemoveEntity(old)
	s.AddEntity(new)
}

// Entities returns the entities in draw order.
func (s *Scene) Entities() []terrain.Mesh {
	return s.entities
}

// Len returns the number of entities.
func (s *Scene) Len() int {
	return len(s.entities)
}

// InvalidateBounds marks the cached bounds stale. Call it after refilling
// an entity's vertices.
func (s *Scene) InvalidateBounds() {
	s.boundsDirty = true
}

// Bounds returns the merged bounds of all entities.
func (s *Scene) Bounds() terrain.Bounds {
	if s.boundsDirty {
		s.bounds = terrain.EmptyBounds()
		for _, e := range s.entities {
			s.bounds.Merge(e.Bounds())
		}
		s.boundsDirty = false
	}
	return s.bounds
}

func (s *Scene) index(m terrain.Mesh) int {
	if m == nil {
		return -1
	}
	for i, e := range s.entities {
		if e == m {
			return i
		}
	}
	return -1
}

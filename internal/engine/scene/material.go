package scene

import (
	"fmt"

	"github.com/istavang/medea.js/internal/engine/terrain"
)

// DefaultColor is used by meshes created without a material.
var DefaultColor = [4]float32{0.7, 0.7, 0.5, 1.0}

// Material is the viewer's terrain material: a base color and a culling
// flag, plus the spec it was built from.
type Material struct {
	Spec     terrain.MaterialSpec
	Color    [4]float32
	CullFace bool
}

// MaterialFactory builds Materials from terrain material specs. The color
// is read from the "color" constant, a list of 3 or 4 numbers.
type MaterialFactory struct{}

// CreateMaterial implements terrain.MaterialFactory.
func (MaterialFactory) CreateMaterial(spec terrain.MaterialSpec) (terrain.Material, error) {
	m := &Material{Spec: spec, Color: DefaultColor, CullFace: spec.CullFace}

	v, ok := spec.Constants["color"]
	if !ok {
		return m, nil
	}
	list, ok := v.([]any)
	if !ok || len(list) < 3 || len(list) > 4 {
		return nil, fmt.Errorf("material %s: color must be a list of 3 or 4 numbers", spec.Effect)
	}
	for i, c := range list {
		f, ok := toFloat(c)
		if !ok {
			return nil, fmt.Errorf("material %s: color[%d] is not a number", spec.Effect, i)
		}
		m.Color[i] = float32(f)
	}
	return m, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func materialOrDefault(m terrain.Material) *Material {
	if mat, ok := m.(*Material); ok && mat != nil {
		return mat
	}
	return &Material{Color: DefaultColor, CullFace: true}
}

package terrain

import (
	"github.com/istavang/medea.js/pkg/math"
)

// BuildVertices interleaves a positioned heightfield, its tangent space and
// its UVs into mesh vertices. offset is added to every position.
func BuildVertices(hf *HeightField, ts TangentSpace, uv [][2]float32, offset math.Vec3) []Vertex {
	vertices := make([]Vertex, len(hf.Positions))
	for i, p := range hf.Positions {
		v := &vertices[i]
		v.Position = p.Add(offset).Array()
		if i < len(ts.Normals) {
			v.Normal = ts.Normals[i].Array()
			v.Tangent = ts.Tangents[i].Array()
			v.Bitangent = ts.Bitangents[i].Array()
		} else {
			v.Normal = [3]float32{0, 1, 0}
		}
		if i < len(uv) {
			v.TexCoord = uv[i]
		}
	}
	return vertices
}

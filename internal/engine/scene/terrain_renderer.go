package scene

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"github.com/istavang/medea.js/internal/engine/scene/shaders"
	"github.com/istavang/medea.js/internal/engine/shader"
	"github.com/istavang/medea.js/internal/engine/terrain"
	"github.com/istavang/medea.js/pkg/math"
)

var vertexSize = int(unsafe.Sizeof(terrain.Vertex{}))

// GLMesh is a terrain ring mesh stored in GPU buffers. The vertex buffer is
// allocated once with DYNAMIC_DRAW and refilled in place.
type GLMesh struct {
	vao uint32
	vbo uint32
	ebo uint32

	Material *Material

	vertexCount int
	ib          *terrain.IndexBuffer
	pending     terrain.Bounds
	bounds      terrain.Bounds
}

// GLMeshFactory creates GLMeshes. It requires a current GL context.
type GLMeshFactory struct{}

// NewMesh uploads vertices and ib into new GPU buffers.
func (GLMeshFactory) NewMesh(vertices []terrain.Vertex, ib *terrain.IndexBuffer, material terrain.Material) (terrain.Mesh, error) {
	if len(vertices) == 0 {
		return nil, fmt.Errorf("gl mesh: no vertices")
	}

	m := &GLMesh{Material: materialOrDefault(material), vertexCount: len(vertices)}

	gl.GenVertexArrays(1, &m.vao)
	gl.BindVertexArray(m.vao)

	gl.GenBuffers(1, &m.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*vertexSize, unsafe.Pointer(&vertices[0]), gl.DYNAMIC_DRAW)

	// Position, normal, tangent, bitangent, texcoord
	sizes := []int32{3, 3, 3, 3, 2}
	offset := 0
	for loc, size := range sizes {
		gl.VertexAttribPointerWithOffset(uint32(loc), size, gl.FLOAT, false, int32(vertexSize), uintptr(offset))
		gl.EnableVertexAttribArray(uint32(loc))
		offset += int(size) * 4
	}

	gl.GenBuffers(1, &m.ebo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
	gl.BindVertexArray(0)

	m.SetIndices(ib)
	m.pending = terrain.ComputeBounds(vertices)
	m.UpdateBounds()
	return m, nil
}

// Fill uploads new vertex data into the existing buffer.
func (m *GLMesh) Fill(vertices []terrain.Vertex) error {
	if len(vertices) != m.vertexCount {
		return fmt.Errorf("gl mesh: fill with %d vertices, buffer holds %d", len(vertices), m.vertexCount)
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, m.vbo)
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, len(vertices)*vertexSize, unsafe.Pointer(&vertices[0]))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	m.pending = terrain.ComputeBounds(vertices)
	return nil
}

// UpdateBounds publishes the bounds of the last filled vertex data.
func (m *GLMesh) UpdateBounds() { m.bounds = m.pending }

// Bounds returns the mesh bounds.
func (m *GLMesh) Bounds() terrain.Bounds { return m.bounds }

// Indices returns the current index buffer.
func (m *GLMesh) Indices() *terrain.IndexBuffer { return m.ib }

// SetIndices uploads a new index buffer.
func (m *GLMesh) SetIndices(ib *terrain.IndexBuffer) {
	m.ib = ib
	if ib == nil || len(ib.Indices) == 0 {
		return
	}
	gl.BindVertexArray(m.vao)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(ib.Indices)*4, unsafe.Pointer(&ib.Indices[0]), gl.STATIC_DRAW)
	gl.BindVertexArray(0)
}

// Draw issues the draw call. The program must already be bound.
func (m *GLMesh) Draw() {
	if m.ib == nil || len(m.ib.Indices) == 0 {
		return
	}
	gl.BindVertexArray(m.vao)
	gl.DrawElements(gl.TRIANGLES, int32(len(m.ib.Indices)), gl.UNSIGNED_INT, nil)
	gl.BindVertexArray(0)
}

// Destroy releases the GPU buffers.
func (m *GLMesh) Destroy() {
	if m.vao != 0 {
		gl.DeleteVertexArrays(1, &m.vao)
		m.vao = 0
	}
	if m.vbo != 0 {
		gl.DeleteBuffers(1, &m.vbo)
		m.vbo = 0
	}
	if m.ebo != 0 {
		gl.DeleteBuffers(1, &m.ebo)
		m.ebo = 0
	}
}

// TerrainRenderer draws the GLMesh entities of a scene.
type TerrainRenderer struct {
	program *shader.Program

	// Wireframe draws triangle edges only.
	Wireframe bool
	// Grid overlays terrain cell lines.
	Grid bool
}

// NewTerrainRenderer compiles the terrain program. gridLine is the width of
// the grid overlay lines as a fraction of a cell.
func NewTerrainRenderer(gridLine float32) (*TerrainRenderer, error) {
	defines := map[string]string{"GRID_LINE": fmt.Sprintf("%.4f", gridLine)}
	program, err := shader.Compile("terrain", shaders.TerrainVertexShader, shaders.TerrainFragmentShader, defines)
	if err != nil {
		return nil, err
	}
	return &TerrainRenderer{program: program}, nil
}

// Render draws every GLMesh in s with the given model transform.
func (tr *TerrainRenderer) Render(s *Scene, viewProj, model math.Mat4) {
	p := tr.program
	p.Use()

	gl.UniformMatrix4fv(p.Uniform("uViewProj"), 1, false, viewProj.Ptr())
	gl.UniformMatrix4fv(p.Uniform("uModel"), 1, false, model.Ptr())
	gl.Uniform3f(p.Uniform("uLightDir"), s.LightDir[0], s.LightDir[1], s.LightDir[2])
	gl.Uniform3f(p.Uniform("uAmbient"), s.AmbientColor[0], s.AmbientColor[1], s.AmbientColor[2])
	gl.Uniform3f(p.Uniform("uDiffuse"), s.DiffuseColor[0], s.DiffuseColor[1], s.DiffuseColor[2])
	grid := int32(0)
	if tr.Grid {
		grid = 1
	}
	gl.Uniform1i(p.Uniform("uGrid"), grid)

	if tr.Wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
		defer gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}

	locColor := p.Uniform("uColor")
	for _, e := range s.Entities() {
		m, ok := e.(*GLMesh)
		if !ok {
			continue
		}
		c := m.Material.Color
		gl.Uniform4f(locColor, c[0], c[1], c[2], c[3])
		if m.Material.CullFace {
			gl.Enable(gl.CULL_FACE)
			gl.CullFace(gl.BACK)
		} else {
			gl.Disable(gl.CULL_FACE)
		}
		m.Draw()
	}
}

// Destroy releases the program.
func (tr *TerrainRenderer) Destroy() {
	tr.program.Delete()
}

// Package renderer owns per-frame OpenGL state for the terrain viewer.
package renderer

import (
	"fmt"
	gomath "math"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/istavang/medea.js/internal/engine/scene"
	"github.com/istavang/medea.js/internal/logger"
	"github.com/istavang/medea.js/pkg/math"
)

// Config holds renderer configuration.
type Config struct {
	Width  int
	Height int
	// FOV is the vertical field of view in degrees.
	FOV        float32
	Near       float32
	Far        float32
	ClearColor [3]float32
	// GridLine is the grid overlay line width in cells.
	GridLine float32
}

// Renderer clears the frame and draws the terrain scene.
type Renderer struct {
	config  Config
	terrain *scene.TerrainRenderer
	log     *zap.Logger
}

// New creates a new renderer.
// IMPORTANT: Must be called AFTER OpenGL context is created!
func New(cfg Config) (*Renderer, error) {
	r := &Renderer{
		config: cfg,
		log:    logger.Component("renderer"),
	}

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	r.log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Enable(gl.MULTISAMPLE)
	c := cfg.ClearColor
	gl.ClearColor(c[0], c[1], c[2], 1.0)

	if cfg.GridLine <= 0 {
		cfg.GridLine = 0.02
	}
	var err error
	r.terrain, err = scene.NewTerrainRenderer(cfg.GridLine)
	if err != nil {
		return nil, fmt.Errorf("failed to create terrain renderer: %w", err)
	}

	r.Resize(cfg.Width, cfg.Height)
	return r, nil
}

// Close cleans up renderer resources.
func (r *Renderer) Close() {
	r.log.Info("closing renderer")
	if r.terrain != nil {
		r.terrain.Destroy()
	}
}

// Resize handles framebuffer resize.
func (r *Renderer) Resize(width, height int) {
	r.config.Width = width
	r.config.Height = height
	gl.Viewport(0, 0, int32(width), int32(height))
	r.log.Debug("renderer resized",
		zap.Int("width", width),
		zap.Int("height", height),
	)
}

// Projection returns the perspective matrix for the current size.
func (r *Renderer) Projection() math.Mat4 {
	return projection(r.config)
}

func projection(cfg Config) math.Mat4 {
	aspect := float32(1)
	if cfg.Height > 0 {
		aspect = float32(cfg.Width) / float32(cfg.Height)
	}
	fov := float32(float64(cfg.FOV) * gomath.Pi / 180)
	return math.Perspective(fov, aspect, cfg.Near, cfg.Far)
}

// SetWireframe toggles edge-only drawing.
func (r *Renderer) SetWireframe(on bool) { r.terrain.Wireframe = on }

// Wireframe reports whether edge-only drawing is on.
func (r *Renderer) Wireframe() bool { return r.terrain.Wireframe }

// SetGrid toggles the cell grid overlay.
func (r *Renderer) SetGrid(on bool) { r.terrain.Grid = on }

// Grid reports whether the cell grid overlay is on.
func (r *Renderer) Grid() bool { return r.terrain.Grid }

// Frame clears the framebuffer and draws s. model places the terrain node.
func (r *Renderer) Frame(s *scene.Scene, view, model math.Mat4) {
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
	r.terrain.Render(s, r.Projection().Mul(view), model)
}

// ReadPixels returns the RGBA contents of the back buffer, bottom row first.
// Call it after Frame and before the buffers are swapped.
func (r *Renderer) ReadPixels() ([]byte, int, int) {
	w, h := r.config.Width, r.config.Height
	pixels := make([]byte, w*h*4)
	if len(pixels) == 0 {
		return pixels, w, h
	}
	gl.ReadBuffer(gl.BACK)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(0, 0, int32(w), int32(h), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	return pixels, w, h
}

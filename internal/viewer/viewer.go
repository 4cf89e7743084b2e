// Package viewer runs the interactive terrain viewer: a fly camera over a
// streamed ring terrain drawn with OpenGL.
package viewer

import (
	"fmt"
	"time"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/istavang/medea.js/internal/config"
	"github.com/istavang/medea.js/internal/engine/camera"
	"github.com/istavang/medea.js/internal/engine/debug"
	"github.com/istavang/medea.js/internal/engine/input"
	"github.com/istavang/medea.js/internal/engine/lighting"
	"github.com/istavang/medea.js/internal/engine/renderer"
	"github.com/istavang/medea.js/internal/engine/scene"
	"github.com/istavang/medea.js/internal/engine/terrain"
	"github.com/istavang/medea.js/internal/engine/texture"
	"github.com/istavang/medea.js/internal/engine/window"
	"github.com/istavang/medea.js/internal/logger"
	"github.com/istavang/medea.js/pkg/math"
)

const title = "Ring Terrain"

// Viewer is the main viewer instance.
type Viewer struct {
	config   *config.Config
	running  bool
	window   *window.Window
	renderer *renderer.Renderer
	input    *input.Input
	log      *zap.Logger

	scene    *scene.Scene
	provider *terrain.Provider
	node     *terrain.Node
	camera   *camera.FlyCamera
	captured bool

	screenshots *debug.ScreenshotCapture
	capture     bool
}

// New creates the window, the renderer and the terrain node.
func New(cfg *config.Config) (*Viewer, error) {
	v := &Viewer{
		config: cfg,
		log:    logger.Component("viewer"),
	}
	v.log.Info("initializing viewer",
		zap.String("terrain", cfg.Terrain.Description),
		zap.Int("width", cfg.Window.Width),
		zap.Int("height", cfg.Window.Height),
	)

	desc, err := terrain.LoadDescription(cfg.Terrain.Description)
	if err != nil {
		return nil, fmt.Errorf("loading terrain: %w", err)
	}

	// The window creates the GL context, so it must exist before the
	// renderer and any GL mesh.
	v.window, err = window.New(window.Config{
		Title:      title,
		Width:      cfg.Window.Width,
		Height:     cfg.Window.Height,
		Fullscreen: cfg.Window.Fullscreen,
		VSync:      cfg.Window.VSync,
		Samples:    cfg.Window.Samples,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	fbWidth, fbHeight := v.window.DrawableSize()
	v.renderer, err = renderer.New(renderer.Config{
		Width:      fbWidth,
		Height:     fbHeight,
		FOV:        cfg.Camera.FOV,
		Near:       cfg.Camera.Near,
		Far:        cfg.Camera.Far,
		ClearColor: [3]float32{0.55, 0.7, 0.85},
	})
	if err != nil {
		v.window.Close()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	v.input = input.New()
	v.scene = scene.New()
	v.scene.LightDir = lighting.Sun{
		Azimuth:   cfg.Lighting.SunAzimuth,
		Elevation: cfg.Lighting.SunElevation,
	}.Direction()
	v.screenshots = debug.NewScreenshotCapture(cfg.Lighting.ScreenshotDir, "terrain")

	start := cfg.Camera.Start
	v.camera = camera.NewFlyCamera(math.Vec3{X: start[0], Y: start[1], Z: start[2]})
	v.camera.Speed = cfg.Camera.Speed

	loader := texture.NewLoader(logger.Component("texture"))
	v.provider, err = terrain.NewProvider(desc, cfg.ProviderOptions(loader, scene.MaterialFactory{}))
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("creating provider: %w", err)
	}

	v.node, err = terrain.NewNode(v.provider, v.camera, v.scene, scene.GLMeshFactory{}, nil, cfg.NodeOptions())
	if err != nil {
		v.Close()
		return nil, fmt.Errorf("creating terrain node: %w", err)
	}

	v.log.Info("viewer initialized",
		zap.Int("lods", v.provider.LODCount()),
		zap.Ints("size", []int{v.provider.Width(), v.provider.Height()}),
	)
	return v, nil
}

// Run starts the main loop.
func (v *Viewer) Run() error {
	v.running = true

	lastTime := time.Now()
	frameCount := 0
	fpsTimer := time.Now()

	v.log.Info("starting viewer loop")

	for v.running {
		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		if v.input.Update() {
			v.running = false
			break
		}
		v.handleEvents()
		v.moveCamera(float32(dt))

		if err := v.node.Update(dt); err != nil {
			return fmt.Errorf("update error: %w", err)
		}
		if v.config.Camera.FollowGround {
			p := v.camera.WorldPos()
			if h, ok := v.node.GetWorldHeightForWorldPos(float64(p.X), float64(p.Z)); ok {
				v.camera.FollowGround(h)
			}
		}

		v.renderer.Frame(v.scene, v.camera.ViewMatrix(), math.Translate(v.node.Position()))
		if v.capture {
			v.capture = false
			v.saveScreenshot()
		}
		v.window.SwapBuffers()

		frameCount++
		if time.Since(fpsTimer) >= time.Second {
			status := statusLine(frameCount, v.provider.PendingFetches(), v.node.Dispatcher().Pending(), terrain.RingStates(v.node.Rings()))
			v.window.SetTitle(title + " | " + status)
			v.log.Debug("frame stats", zap.String("status", status), zap.Duration("dt", time.Duration(dt*float64(time.Second))))
			frameCount = 0
			fpsTimer = time.Now()
		}
	}

	return nil
}

func (v *Viewer) handleEvents() {
	for _, event := range v.input.Events() {
		switch event.Type {
		case input.EventWindowResize:
			v.renderer.Resize(v.window.DrawableSize())
		case input.EventKeyDown:
			if event.Repeat {
				continue
			}
			switch event.Key {
			case sdl.SCANCODE_ESCAPE:
				if v.captured {
					v.setCaptured(false)
				} else {
					v.running = false
				}
			case sdl.SCANCODE_TAB:
				v.setCaptured(!v.captured)
			case sdl.SCANCODE_F1:
				v.renderer.SetWireframe(!v.renderer.Wireframe())
			case sdl.SCANCODE_G:
				v.renderer.SetGrid(!v.renderer.Grid())
			case sdl.SCANCODE_F:
				v.config.Camera.FollowGround = !v.config.Camera.FollowGround
			case sdl.SCANCODE_F12:
				v.capture = true
			}
		}
	}
}

func (v *Viewer) saveScreenshot() {
	pixels, w, h := v.renderer.ReadPixels()
	name, err := v.screenshots.CaptureFromPixels(pixels, w, h)
	if err != nil {
		v.log.Warn("screenshot failed", zap.Error(err))
		return
	}
	v.log.Info("screenshot saved", zap.String("file", name))
}

func (v *Viewer) setCaptured(on bool) {
	v.captured = on
	v.window.SetMouseCaptured(on)
}

func (v *Viewer) moveCamera(dt float32) {
	if dx, dy := v.input.MouseDelta(); v.captured || v.input.IsButtonDown(sdl.BUTTON_RIGHT) {
		v.camera.HandleLook(float32(dx), float32(dy))
	}
	if w := v.input.Wheel(); w != 0 {
		v.camera.Speed *= 1 + 0.1*float32(w)
	}

	speedUp := float32(1)
	if v.input.IsKeyDown(sdl.SCANCODE_LSHIFT) {
		speedUp = 5
	}
	v.camera.HandleMovement(
		v.input.Axis(sdl.SCANCODE_S, sdl.SCANCODE_W),
		v.input.Axis(sdl.SCANCODE_A, sdl.SCANCODE_D),
		v.input.Axis(sdl.SCANCODE_LCTRL, sdl.SCANCODE_SPACE),
		dt*speedUp,
	)
}

// Close releases the node, the provider and the window.
func (v *Viewer) Close() {
	v.log.Info("closing viewer")

	if v.node != nil {
		v.node.Close()
	}
	if v.provider != nil {
		v.provider.Close()
	}
	if v.renderer != nil {
		v.renderer.Close()
	}
	if v.window != nil {
		v.window.Close()
	}
}

// statusLine formats frame statistics for the window title, for example
// "60 fps | fetch 1 | jobs 0 | rings PPS--".
func statusLine(fps, fetches, jobs int, rings string) string {
	return fmt.Sprintf("%d fps | fetch %d | jobs %d | rings %s", fps, fetches, jobs, rings)
}

// Package config handles viewer and tool configuration loading.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/istavang/medea.js/internal/engine/terrain"
	"github.com/istavang/medea.js/internal/logger"
	"github.com/istavang/medea.js/pkg/math"
)

// Config holds all settings.
type Config struct {
	Terrain   TerrainConfig   `yaml:"terrain"`
	Streaming StreamingConfig `yaml:"streaming"`
	Offload   OffloadConfig   `yaml:"offload"`
	Window    WindowConfig    `yaml:"window"`
	Camera    CameraConfig    `yaml:"camera"`
	Lighting  LightingConfig  `yaml:"lighting"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TerrainConfig selects the terrain and tunes ring streaming.
type TerrainConfig struct {
	Description     string     `yaml:"description"` // Path to the terrain description document
	UpdateThreshold float64    `yaml:"update_threshold"`
	BorderMargin    float64    `yaml:"border_margin"`
	RingCells       int        `yaml:"ring_cells"`
	Position        [3]float32 `yaml:"position"`
}

// StreamingConfig throttles heightmap fetches.
type StreamingConfig struct {
	FetchRate  float64 `yaml:"fetch_rate"` // Fetch starts per second, 0 = unlimited
	FetchBurst int     `yaml:"fetch_burst"`
	// RetryDelay is the wait before a failed tile load is attempted again.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// OffloadConfig sizes the tangent-space worker pool.
type OffloadConfig struct {
	Workers int `yaml:"workers"` // 0 = compute on the update goroutine
}

// WindowConfig holds display settings.
type WindowConfig struct {
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Fullscreen bool `yaml:"fullscreen"`
	VSync      bool `yaml:"vsync"`
	Samples    int  `yaml:"samples"`
}

// CameraConfig holds projection and movement settings.
type CameraConfig struct {
	FOV          float32    `yaml:"fov"` // Vertical field of view in degrees
	Near         float32    `yaml:"near"`
	Far          float32    `yaml:"far"`
	Speed        float32    `yaml:"speed"`
	Start        [3]float32 `yaml:"start"`
	FollowGround bool       `yaml:"follow_ground"`
}

// LightingConfig places the sun and names the screenshot directory.
type LightingConfig struct {
	SunAzimuth    float64 `yaml:"sun_azimuth"`   // Degrees, 0 = +Z, 90 = +X
	SunElevation  float64 `yaml:"sun_elevation"` // Degrees above the horizon
	ScreenshotDir string  `yaml:"screenshot_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			Description:     "terrain.yaml",
			UpdateThreshold: terrain.DefaultUpdateThreshold,
			BorderMargin:    terrain.DefaultBorderMargin,
			RingCells:       terrain.DefaultRingCells,
		},
		Streaming: StreamingConfig{
			FetchRate:  0,
			FetchBurst: 1,
			RetryDelay: terrain.DefaultRetryDelay,
		},
		Offload: OffloadConfig{
			Workers: 2,
		},
		Window: WindowConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			Samples:    4,
		},
		Camera: CameraConfig{
			FOV:          60,
			Near:         1,
			Far:          100000,
			Speed:        200,
			Start:        [3]float32{0, 200, 0},
			FollowGround: true,
		},
		Lighting: LightingConfig{
			SunAzimuth:    225,
			SunElevation:  50,
			ScreenshotDir: "screenshots",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate checks values that would otherwise fail deep inside the terrain
// node or the renderer.
func (c *Config) Validate() error {
	var errs []error
	if c.Terrain.Description == "" {
		errs = append(errs, errors.New("terrain.description is required"))
	}
	if rc := c.Terrain.RingCells; rc < 8 || rc%4 != 0 {
		errs = append(errs, fmt.Errorf("terrain.ring_cells must be a multiple of 4 and at least 8, got %d", rc))
	}
	if c.Terrain.UpdateThreshold <= 0 {
		errs = append(errs, fmt.Errorf("terrain.update_threshold must be positive, got %v", c.Terrain.UpdateThreshold))
	}
	if c.Terrain.BorderMargin < 0 {
		errs = append(errs, fmt.Errorf("terrain.border_margin must not be negative, got %v", c.Terrain.BorderMargin))
	}
	if c.Streaming.FetchRate < 0 {
		errs = append(errs, fmt.Errorf("streaming.fetch_rate must not be negative, got %v", c.Streaming.FetchRate))
	}
	if c.Streaming.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("streaming.retry_delay must not be negative, got %v", c.Streaming.RetryDelay))
	}
	if c.Offload.Workers < 0 {
		errs = append(errs, fmt.Errorf("offload.workers must not be negative, got %d", c.Offload.Workers))
	}
	if c.Camera.Near <= 0 || c.Camera.Far <= c.Camera.Near {
		errs = append(errs, fmt.Errorf("camera near/far must satisfy 0 < near < far, got %v/%v", c.Camera.Near, c.Camera.Far))
	}
	if e := c.Lighting.SunElevation; e < -90 || e > 90 {
		errs = append(errs, fmt.Errorf("lighting.sun_elevation must be within [-90,90], got %v", e))
	}
	if !logger.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// NodeOptions converts the terrain and offload sections for terrain.NewNode.
func (c *Config) NodeOptions() terrain.NodeOptions {
	p := c.Terrain.Position
	return terrain.NodeOptions{
		UpdateThreshold: c.Terrain.UpdateThreshold,
		BorderMargin:    c.Terrain.BorderMargin,
		RingCells:       c.Terrain.RingCells,
		RetryDelay:      c.Streaming.RetryDelay,
		Workers:         c.Offload.Workers,
		Position:        math.Vec3{X: p[0], Y: p[1], Z: p[2]},
		Log:             logger.Component("terrain"),
	}
}

// ProviderOptions fills the throttling fields of terrain.ProviderOptions.
// The caller supplies the loader and material factory.
func (c *Config) ProviderOptions(loader terrain.ImageLoader, materials terrain.MaterialFactory) terrain.ProviderOptions {
	return terrain.ProviderOptions{
		Loader:     loader,
		Materials:  materials,
		FetchRate:  c.Streaming.FetchRate,
		FetchBurst: c.Streaming.FetchBurst,
		Log:        logger.Component("provider"),
	}
}

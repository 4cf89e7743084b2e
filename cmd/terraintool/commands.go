package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/istavang/medea.js/internal/engine/camera"
	"github.com/istavang/medea.js/internal/engine/scene"
	"github.com/istavang/medea.js/internal/engine/terrain"
	"github.com/istavang/medea.js/internal/engine/texture"
	"github.com/istavang/medea.js/internal/logger"
	"github.com/istavang/medea.js/pkg/math"
)

// newFlagSet returns a flag set that reports errors instead of exiting and
// registers the shared -v flag.
func newFlagSet(name string) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	verbose := fs.Bool("v", false, "Log debug output to stderr")
	return fs, verbose
}

// loadArgs parses args, sets up logging and loads the description named by
// the single positional argument.
func loadArgs(fs *flag.FlagSet, verbose *bool, args []string) (*terrain.Description, string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}
	if fs.NArg() != 1 {
		return nil, "", fmt.Errorf("usage: terraintool %s [options] <terrain.yaml>", fs.Name())
	}
	if *verbose {
		if err := logger.Init("debug", ""); err != nil {
			return nil, "", err
		}
	}

	path := fs.Arg(0)
	desc, err := terrain.LoadDescription(path)
	if err != nil {
		return nil, "", err
	}
	return desc, path, nil
}

func cmdValidate(w io.Writer, args []string) error {
	fs, verbose := newFlagSet("validate")
	desc, path, err := loadArgs(fs, verbose, args)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Terrain: %s\n", path)
	fmt.Fprintf(w, "Size:    %dx%d\n", desc.Size[0], desc.Size[1])
	fmt.Fprintf(w, "LODs:    %d\n", desc.LODCount())
	fmt.Fprintln(w)

	loader := texture.NewLoader(logger.Component("texture"))
	ctx := context.Background()

	problems := 0
	for lod := 0; lod < desc.LODCount(); lod++ {
		tw, th := desc.LODSize(lod)
		m, ok := desc.FindTile(tw, th)
		if !ok {
			fmt.Fprintf(w, "  LOD %-2d %5dx%-5d MISSING (no map entry)\n", lod, tw, th)
			problems++
			continue
		}

		img, err := loader.Load(ctx, desc.ResolvePath(m.Image))
		switch {
		case err != nil:
			fmt.Fprintf(w, "  LOD %-2d %5dx%-5d %s: %v\n", lod, tw, th, m.Image, err)
			problems++
		case img.Width() != tw || img.Height() != th:
			fmt.Fprintf(w, "  LOD %-2d %5dx%-5d %s: image is %dx%d\n", lod, tw, th, m.Image, img.Width(), img.Height())
			problems++
		default:
			fmt.Fprintf(w, "  LOD %-2d %5dx%-5d %s ok\n", lod, tw, th, m.Image)
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	fmt.Fprintln(w, "\nAll LOD tiles present.")
	return nil
}

func cmdLODs(w io.Writer, args []string) error {
	fs, verbose := newFlagSet("lods")
	desc, _, err := loadArgs(fs, verbose, args)
	if err != nil {
		return err
	}

	cell := desc.UnitBase * desc.Scale[0]
	fmt.Fprintf(w, "%-4s %-11s %-10s %-9s %s\n", "LOD", "Size", "Spacing", "Material", "Image")
	for lod := 0; lod < desc.LODCount(); lod++ {
		tw, th := desc.LODSize(lod)
		img := "-"
		if m, ok := desc.FindTile(tw, th); ok {
			img = m.Image
		}
		mat := "-"
		if src := desc.MaterialSource(lod); src >= 0 {
			mat = fmt.Sprintf("lod %d", src)
		}
		spacing := cell * float64(int(1)<<lod)
		fmt.Fprintf(w, "%-4d %-11s %-10g %-9s %s\n", lod, fmt.Sprintf("%dx%d", tw, th), spacing, mat, img)
	}
	return nil
}

func cmdSimulate(w io.Writer, args []string) error {
	fs, verbose := newFlagSet("simulate")
	steps := fs.Int("steps", 4, "Number of camera moves")
	startX := fs.Float64("x", 0, "Camera start X in world units")
	startZ := fs.Float64("z", 0, "Camera start Z in world units")
	dx := fs.Float64("dx", 0, "Camera X move per step")
	dz := fs.Float64("dz", 0, "Camera Z move per step")
	cells := fs.Int("cells", terrain.DefaultRingCells, "Cells per ring side (multiple of 4, at least 8)")
	workers := fs.Int("workers", 0, "Offload workers (0 = synchronous)")
	timeout := fs.Duration("timeout", 10*time.Second, "Maximum time to wait for each step to settle")
	desc, _, err := loadArgs(fs, verbose, args)
	if err != nil {
		return err
	}

	log := logger.Component("simulate")
	provider, err := terrain.NewProvider(desc, terrain.ProviderOptions{
		Loader:    texture.NewLoader(logger.Component("texture")),
		Materials: scene.MaterialFactory{},
		Log:       logger.Component("provider"),
	})
	if err != nil {
		return err
	}
	defer provider.Close()

	cam := camera.NewFlyCamera(math.Vec3{X: float32(*startX), Z: float32(*startZ)})
	sc := scene.New()
	meshes := &scene.MemoryMeshFactory{}
	node, err := terrain.NewNode(provider, cam, sc, meshes, nil, terrain.NodeOptions{
		RingCells: *cells,
		Workers:   *workers,
		Log:       logger.Component("terrain"),
	})
	if err != nil {
		return err
	}
	defer node.Close()

	fmt.Fprintf(w, "%-5s %-21s %-8s %-9s %-7s %s\n", "Step", "Camera", "Rings", "Entities", "Meshes", "Height")
	for step := 0; step <= *steps; step++ {
		if step > 0 {
			cam.Pos = cam.Pos.Add(math.Vec3{X: float32(*dx), Z: float32(*dz)})
		}

		start := time.Now()
		if err := settle(node, provider, *timeout); err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
		log.Debug("step settled", zap.Int("step", step), zap.Duration("took", time.Since(start)))

		height := "-"
		if h, ok := node.GetWorldHeightForWorldPos(float64(cam.Pos.X), float64(cam.Pos.Z)); ok {
			height = fmt.Sprintf("%.3f", h)
		}
		pos := fmt.Sprintf("(%.1f, %.1f)", cam.Pos.X, cam.Pos.Z)
		fmt.Fprintf(w, "%-5d %-21s %-8s %-9d %-7d %s\n", step, pos, terrain.RingStates(node.Rings()), sc.Len(), meshes.Created, height)
	}
	return nil
}

// settle updates the node until every ring is present and no fetch or
// offload job is outstanding.
func settle(node *terrain.Node, provider *terrain.Provider, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	last := time.Now()
	for {
		now := time.Now()
		if err := node.Update(now.Sub(last).Seconds()); err != nil {
			return err
		}
		last = now
		if provider.PendingFetches() == 0 && node.Dispatcher().Pending() == 0 && allPresent(node.Rings()) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("rings %s not settled after %v", terrain.RingStates(node.Rings()), timeout)
		}
		time.Sleep(time.Millisecond)
	}
}

func allPresent(rings []*terrain.Ring) bool {
	for _, r := range rings {
		if !r.IsPresent() {
			return false
		}
	}
	return true
}

func cmdPreview(w io.Writer, args []string) error {
	fs, verbose := newFlagSet("preview")
	lod := fs.Int("lod", 0, "LOD whose tile to render")
	size := fs.Int("size", 256, "Longest side of the output image in pixels")
	out := fs.String("o", "preview.webp", "Output WebP file")
	desc, _, err := loadArgs(fs, verbose, args)
	if err != nil {
		return err
	}
	if *lod < 0 || *lod >= desc.LODCount() {
		return fmt.Errorf("lod %d out of range [0,%d)", *lod, desc.LODCount())
	}
	if *size <= 0 {
		return errors.New("size must be positive")
	}

	tw, th := desc.LODSize(*lod)
	m, ok := desc.FindTile(tw, th)
	if !ok {
		return fmt.Errorf("%w: %d", terrain.ErrLODNotPresent, *lod)
	}
	img, err := texture.NewLoader(logger.Component("texture")).Load(context.Background(), desc.ResolvePath(m.Image))
	if err != nil {
		return err
	}

	gray := heightImage(img)
	ow, oh := fitSize(img.Width(), img.Height(), *size)

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := texture.EncodeWebP(f, texture.Resize(gray, ow, oh)); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", *out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Wrote %s (%dx%d) from LOD %d %s\n", *out, ow, oh, *lod, m.Image)
	return nil
}

// heightImage maps the heightmap's first channel to gray, stretched so the
// lowest sample is black and the highest white.
func heightImage(img terrain.Image) *image.Gray {
	w, h := img.Width(), img.Height()
	lo, hi := float32(0), float32(0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := img.PixelComponent(x, y, 0)
			if (x == 0 && y == 0) || v < lo {
				lo = v
			}
			if (x == 0 && y == 0) || v > hi {
				hi = v
			}
		}
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	span := hi - lo
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var g uint8
			if span > 0 {
				g = uint8((img.PixelComponent(x, y, 0)-lo)/span*255 + 0.5)
			}
			gray.SetGray(x, y, color.Gray{Y: g})
		}
	}
	return gray
}

// fitSize scales (w,h) so the longer side is limit, keeping at least one
// pixel on the shorter side.
func fitSize(w, h, limit int) (int, int) {
	if w >= h {
		return limit, max(h*limit/w, 1)
	}
	return max(w*limit/h, 1), limit
}

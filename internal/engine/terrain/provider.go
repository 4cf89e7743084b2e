package terrain

import (
	"context"
	"fmt"
	gomath "math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/istavang/medea.js/pkg/math"
)

// HeightmapTile is a loaded heightmap for one tile descriptor.
type HeightmapTile struct {
	Desc  TileDescriptor
	Image Image
}

// Sample is what RequestLOD hands to its callback: the requested window and
// the tile it can be sampled from.
type Sample struct {
	X, Y float64
	W, H int
	LOD  int
	Tile *HeightmapTile
}

// ProviderOptions configures a Provider. Only Loader is required.
type ProviderOptions struct {
	Loader    ImageLoader
	Materials MaterialFactory
	// FetchRate limits how many fetches may start per second; 0 disables
	// the limit. FetchBurst defaults to 1.
	FetchRate  float64
	FetchBurst int
	Log        *zap.Logger
}

type tileSize [2]int

type fetchWaiter struct {
	task *Task
	fn   func(*HeightmapTile, error)
}

type fetchEntry struct {
	tile       TileDescriptor
	waiting    []fetchWaiter
	inProgress bool
}

type fetchResult struct {
	entry *fetchEntry
	img   Image
	err   error
}

// Provider owns the terrain description, the loaded heightmap tiles and the
// fetch scheduler. All methods except the internal fetch goroutine must be
// called from the update goroutine.
type Provider struct {
	desc      *Description
	loader    ImageLoader
	materials MaterialFactory
	limiter   *rate.Limiter
	log       *zap.Logger

	tiles    map[tileSize]*HeightmapTile
	queue    []*fetchEntry
	inflight *fetchEntry
	done     chan fetchResult
	spawn    func(func())

	ctx    context.Context
	cancel context.CancelFunc

	materialCache map[int]Material
}

// NewProvider creates a provider for a parsed description.
func NewProvider(desc *Description, opts ProviderOptions) (*Provider, error) {
	if desc == nil || desc.lodCount == 0 {
		return nil, fmt.Errorf("%w: description was not parsed", ErrInvalidDescription)
	}
	if opts.Loader == nil {
		return nil, fmt.Errorf("terrain provider: image loader is required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		desc:          desc,
		loader:        opts.Loader,
		materials:     opts.Materials,
		log:           log,
		tiles:         make(map[tileSize]*HeightmapTile),
		done:          make(chan fetchResult, 1),
		spawn:         func(f func()) { go f() },
		ctx:           ctx,
		cancel:        cancel,
		materialCache: make(map[int]Material),
	}
	if opts.FetchRate > 0 {
		burst := opts.FetchBurst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(opts.FetchRate), burst)
	}
	return p, nil
}

// Description returns the terrain description.
func (p *Provider) Description() *Description { return p.desc }

// Size returns the terrain grid size.
func (p *Provider) Size() [2]int { return p.desc.Size }

// Width returns the terrain grid width.
func (p *Provider) Width() int { return p.desc.Size[0] }

// Height returns the terrain grid height.
func (p *Provider) Height() int { return p.desc.Size[1] }

// LODCount returns the number of LOD levels.
func (p *Provider) LODCount() int { return p.desc.lodCount }

// UnitBase returns world units per grid cell.
func (p *Provider) UnitBase() float64 { return p.desc.UnitBase }

// Scale returns the world scale.
func (p *Provider) Scale() [3]float64 { return p.desc.Scale }

// Tile returns the loaded tile with declared size (w,h), if any.
func (p *Provider) Tile(w, h int) *HeightmapTile {
	return p.tiles[tileSize{w, h}]
}

// PendingFetches returns the number of queued or in-flight fetches.
func (p *Provider) PendingFetches() int {
	return len(p.queue)
}

// Close aborts the in-flight fetch, if any.
func (p *Provider) Close() {
	p.cancel()
}

// findLoaded returns the loaded tile of size (w,h) or, failing that, the
// finest loaded tile of a halved size. The search halves at most LODCount
// times.
func (p *Provider) findLoaded(w, h int) *HeightmapTile {
	for i := 0; i < p.desc.lodCount && w > 0 && h > 0; i++ {
		if t, ok := p.tiles[tileSize{w, h}]; ok {
			return t
		}
		w, h = w/2, h/2
	}
	return nil
}

// TryGetHeightAtPos returns the filtered height at grid position (x,y) from
// the finest loaded tile. It reports false while nothing is loaded.
func (p *Provider) TryGetHeightAtPos(x, y float64) (float64, bool) {
	t := p.findLoaded(p.desc.Size[0], p.desc.Size[1])
	if t == nil {
		return 0, false
	}

	iw, ih := t.Image.Width(), t.Image.Height()
	xx := int(gomath.Floor(float64(iw) * x / float64(p.desc.Size[0])))
	yy := int(gomath.Floor(float64(ih) * y / float64(p.desc.Size[1])))

	h := filteredHeight(t.Image, xx, yy, float32(p.desc.BaseHScale))
	return float64(h) * p.desc.Scale[1], true
}

// RequestLOD asks for the window (x,y,w,h) at lod. If the tile for that LOD
// is loaded, cb runs before RequestLOD returns. Otherwise the tile is queued
// for fetching and cb runs from a later Update. A descriptor-less LOD is
// reported through cb as ErrLODNotPresent.
func (p *Provider) RequestLOD(x, y float64, w, h, lod int, cb func(Sample, error)) *Task {
	task := newTask()
	p.requestLOD(Sample{X: x, Y: y, W: w, H: h, LOD: lod}, task, cb, 0)
	return task
}

func (p *Provider) requestLOD(s Sample, task *Task, cb func(Sample, error), attempt int) {
	if attempt > p.desc.lodCount {
		if task.finish() {
			cb(s, fmt.Errorf("%w: %d (gave up after %d fetches)", ErrLODNotPresent, s.LOD, attempt))
		}
		return
	}

	tw, th := p.desc.LODSize(s.LOD)
	if t, ok := p.tiles[tileSize{tw, th}]; ok {
		s.Tile = t
		if task.finish() {
			cb(s, nil)
		}
		return
	}

	m, ok := p.desc.FindTile(tw, th)
	if !ok {
		if task.finish() {
			cb(s, fmt.Errorf("%w: %d", ErrLODNotPresent, s.LOD))
		}
		return
	}

	p.fetchMap(m, fetchWaiter{task: task, fn: func(_ *HeightmapTile, err error) {
		if err != nil {
			if task.finish() {
				cb(s, err)
			}
			return
		}
		p.requestLOD(s, task, cb, attempt+1)
	}})
}

// fetchMap joins an existing queue entry for m or creates one.
func (p *Provider) fetchMap(m TileDescriptor, w fetchWaiter) {
	for _, e := range p.queue {
		if e.tile.Size == m.Size {
			e.waiting = append(e.waiting, w)
			return
		}
	}
	p.queue = append(p.queue, &fetchEntry{tile: m, waiting: []fetchWaiter{w}})
}

// SampleLOD extracts the vertex lattice for a sample delivered by
// RequestLOD. The lattice has (W+1)x(H+1) vertices spaced by the world size
// of one texel of the sample's tile.
func (p *Provider) SampleLOD(s Sample) (*HeightField, error) {
	if s.Tile == nil {
		tw, th := p.desc.LODSize(s.LOD)
		s.Tile = p.findLoaded(tw, th)
		if s.Tile == nil {
			return nil, fmt.Errorf("%w: %d", ErrLODNotPresent, s.LOD)
		}
	}

	ratio := float64(s.Tile.Desc.Size[0]) / float64(p.desc.Size[0])
	if ratio != float64(s.Tile.Desc.Size[1])/float64(p.desc.Size[1]) {
		return nil, fmt.Errorf("%w: tile %v for terrain %v", ErrAspectMismatch, s.Tile.Desc.Size, p.desc.Size)
	}

	x := gomath.Floor(s.X*2) * 0.5
	y := gomath.Floor(s.Y*2) * 0.5
	px := int(gomath.Floor(x * ratio))
	py := int(gomath.Floor(y * ratio))

	yScale := float32(p.desc.Scale[1] * p.desc.BaseHScale)
	xzScale := float32(p.desc.UnitBase * p.desc.Scale[0] / ratio)

	hf := p.CreateHeightField(s.Tile.Image, px, py, s.W, s.H, yScale, xzScale)
	hf.OriginX = float64(px) / ratio
	hf.OriginY = float64(py) / ratio
	return hf, nil
}

// CreateHeightField extracts a (w+1)x(h+1) lattice starting at pixel (x,y).
// Parts of the rectangle outside the image are padded with the default
// height.
func (p *Provider) CreateHeightField(img Image, x, y, w, h int, yScale, xzScale float32) *HeightField {
	def := float32(p.desc.DefaultHeight)

	w++
	h++

	ow, oh := w, h
	var xofs, yofs, xofsr, yofsr int
	if x < 0 {
		xofs = -x
		w += x
		x = 0
	}
	if y < 0 {
		yofs = -y
		h += y
		y = 0
	}
	if x+w > img.Width() {
		xofsr = x + w - img.Width()
		w -= xofsr
	}
	if y+h > img.Height() {
		yofsr = y + h - img.Height()
		h -= yofsr
	}

	if h <= 0 || w <= 0 || yofsr >= oh || xofsr >= ow {
		return flatHeightField(ow, oh, def, xzScale)
	}

	hf := heightfieldFromImage(img, x, y, w, h, yScale, xzScale)
	if xofs == 0 && yofs == 0 && xofsr == 0 && yofsr == 0 {
		return hf
	}

	p.log.Debug("heightfield out of range",
		zap.Int("xofs", xofs), zap.Int("yofs", yofs),
		zap.Int("xofsr", xofsr), zap.Int("yofsr", yofsr),
	)

	padded := flatHeightField(ow, oh, def, xzScale)
	for yy := 0; yy < h; yy++ {
		for xx := 0; xx < w; xx++ {
			padded.Positions[(yofs+yy)*ow+xofs+xx].Y = hf.Positions[yy*w+xx].Y
		}
	}
	return padded
}

// Update is the per-frame scheduler tick. It completes a finished fetch,
// then starts at most one new fetch: the smallest pending tile first. At
// most one fetch is ever in flight. The camera position is accepted for
// distance based prioritization; tiles are currently ordered by size alone.
func (p *Provider) Update(math.Vec3) error {
	select {
	case res := <-p.done:
		p.complete(res)
	default:
	}

	if p.inflight != nil {
		return nil
	}

	var match *fetchEntry
	smallest := gomath.MaxInt
	for _, e := range p.queue {
		if e.inProgress {
			continue
		}
		if a := e.tile.Area(); a < smallest {
			match, smallest = e, a
		}
	}
	if match == nil {
		return nil
	}
	if p.limiter != nil && !p.limiter.Allow() {
		return nil
	}

	match.inProgress = true
	p.inflight = match
	src := p.desc.ResolvePath(match.tile.Image)
	ctx := p.ctx

	p.log.Debug("fetching heightmap",
		zap.String("path", src),
		zap.Int("width", match.tile.Size[0]),
		zap.Int("height", match.tile.Size[1]),
	)

	p.spawn(func() {
		img, err := p.loader.Load(ctx, src)
		p.done <- fetchResult{entry: match, img: img, err: err}
	})
	return nil
}

// complete registers a fetched tile and runs every waiter queued on it.
func (p *Provider) complete(res fetchResult) {
	p.inflight = nil
	e := res.entry

	for i, q := range p.queue {
		if q == e {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}

	var tile *HeightmapTile
	err := res.err
	if err == nil && (res.img.Width() != e.tile.Size[0] || res.img.Height() != e.tile.Size[1]) {
		err = fmt.Errorf("%w: %s is %dx%d, declared %v", ErrTileSize, e.tile.Image,
			res.img.Width(), res.img.Height(), e.tile.Size)
	}
	if err != nil {
		err = fmt.Errorf("fetching %s: %w", e.tile.Image, err)
		p.log.Error("heightmap fetch failed", zap.Error(err))
	} else {
		tile = &HeightmapTile{Desc: e.tile, Image: res.img}
		p.tiles[tileSize(e.tile.Size)] = tile
		p.log.Debug("heightmap loaded", zap.String("path", e.tile.Image))
	}

	for _, w := range e.waiting {
		if w.task.Cancelled() {
			continue
		}
		w.fn(tile, err)
	}
}

// GetMaterial returns the material for lod, following clonefrom links. It
// returns nil when the description has no material for lod or no material
// factory was configured.
func (p *Provider) GetMaterial(lod int) (Material, error) {
	src := p.desc.MaterialSource(lod)
	if src < 0 || p.materials == nil {
		return nil, nil
	}
	if m, ok := p.materialCache[src]; ok {
		return m, nil
	}

	md := p.desc.Materials[src]
	spec := MaterialSpec{
		LOD:       src,
		Effect:    p.desc.ResolvePath(md.Effect),
		Constants: p.fixTexturePaths(md.Constants),
		CullFace:  md.CullFace == nil || *md.CullFace,
	}
	m, err := p.materials.CreateMaterial(spec)
	if err != nil {
		return nil, fmt.Errorf("material for LOD %d: %w", lod, err)
	}
	p.materialCache[src] = m
	return m, nil
}

// fixTexturePaths returns a copy of constants where "./"-relative strings
// are made absolute under the URL root.
func (p *Provider) fixTexturePaths(constants map[string]any) map[string]any {
	if constants == nil {
		return nil
	}
	out := make(map[string]any, len(constants))
	for k, v := range constants {
		out[k] = p.fixTexturePathValue(v)
	}
	return out
}

func (p *Provider) fixTexturePathValue(v any) any {
	switch t := v.(type) {
	case string:
		if strings.HasPrefix(t, "./") {
			return strings.TrimSuffix(p.desc.URLRoot, "/") + t[1:]
		}
		return t
	case map[string]any:
		return p.fixTexturePaths(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = p.fixTexturePathValue(e)
		}
		return out
	}
	return v
}

package terrain

import (
	"fmt"
	gomath "math"
	"time"

	"go.uber.org/zap"

	"github.com/istavang/medea.js/pkg/math"
)

// Defaults for NodeOptions.
const (
	DefaultUpdateThreshold = 0.4
	DefaultBorderMargin    = 0.1
	DefaultRingCells       = 64
	DefaultRetryDelay      = time.Second
)

// NodeOptions configures a Node.
type NodeOptions struct {
	// UpdateThreshold is the camera displacement, in grid cells, that
	// triggers a ring rebuild.
	UpdateThreshold float64
	// BorderMargin is the distance, in grid cells, from the terrain edge
	// inside which height queries report no height.
	BorderMargin float64
	// RingCells is the number of cells along each side of every ring. It
	// must be a multiple of 4 and at least 8, so every hole keeps a margin
	// of at least one cell.
	RingCells int
	// RetryDelay is how long a ring waits before fetching a tile again
	// after a failed load.
	RetryDelay time.Duration
	// Workers is the number of offload workers. Zero computes tangent
	// space synchronously.
	Workers int
	// Position is the node's world position.
	Position math.Vec3
	Log      *zap.Logger
}

// Node owns one ring per LOD and keeps them centered on the camera.
type Node struct {
	provider   *Provider
	camera     Camera
	scene      Scene
	meshes     MeshFactory
	topology   *TopologyCache
	dispatcher *Dispatcher
	log        *zap.Logger

	rings     []*Ring
	ringCells int
	threshold  float64
	margin     float64
	retryDelay time.Duration
	position   math.Vec3

	lastX, lastY float64
	err          error
}

// NewNode creates a terrain node and its rings. topology may be shared
// between nodes; if nil a private cache is created.
func NewNode(p *Provider, cam Camera, scene Scene, meshes MeshFactory, topology *TopologyCache, opts NodeOptions) (*Node, error) {
	if p == nil || cam == nil || scene == nil || meshes == nil {
		return nil, fmt.Errorf("terrain node: provider, camera, scene and mesh factory are required")
	}
	if opts.RingCells == 0 {
		opts.RingCells = DefaultRingCells
	}
	if opts.RingCells < 8 || opts.RingCells%4 != 0 {
		return nil, fmt.Errorf("terrain node: ring cells must be a multiple of 4 and at least 8, got %d", opts.RingCells)
	}
	if opts.UpdateThreshold <= 0 {
		opts.UpdateThreshold = DefaultUpdateThreshold
	}
	if opts.BorderMargin <= 0 {
		opts.BorderMargin = DefaultBorderMargin
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if topology == nil {
		topology = NewTopologyCache(log)
	}

	n := &Node{
		provider:   p,
		camera:     cam,
		scene:      scene,
		meshes:     meshes,
		topology:   topology,
		dispatcher: NewDispatcher(opts.Workers, log),
		log:        log,
		ringCells:  opts.RingCells,
		threshold:  opts.UpdateThreshold,
		margin:     opts.BorderMargin,
		retryDelay: opts.RetryDelay,
		position:   opts.Position,
		lastX:      1e10,
		lastY:      1e10,
	}

	n.rings = make([]*Ring, p.LODCount())
	for i := range n.rings {
		n.rings[i] = newRing(n, i)
	}

	log.Info("terrain node created",
		zap.Int("lods", len(n.rings)),
		zap.Int("ring_cells", n.ringCells),
		zap.Int("workers", opts.Workers),
	)
	return n, nil
}

// Provider returns the node's data provider.
func (n *Node) Provider() *Provider { return n.provider }

// Dispatcher returns the node's offload dispatcher.
func (n *Node) Dispatcher() *Dispatcher { return n.dispatcher }

// Topology returns the index topology cache.
func (n *Node) Topology() *TopologyCache { return n.topology }

// LOD returns ring i.
func (n *Node) LOD(i int) *Ring { return n.rings[i] }

// LODCount returns the number of rings.
func (n *Node) LODCount() int { return len(n.rings) }

// Rings returns all rings, finest first.
func (n *Node) Rings() []*Ring { return n.rings }

// Position returns the node's world position.
func (n *Node) Position() math.Vec3 { return n.position }

// SetPosition moves the node. Rings follow on the next threshold crossing.
func (n *Node) SetPosition(p math.Vec3) { n.position = p }

// UpdateThreshold returns the rebuild hysteresis in grid cells.
func (n *Node) UpdateThreshold() float64 { return n.threshold }

// SetUpdateThreshold sets the rebuild hysteresis in grid cells.
func (n *Node) SetUpdateThreshold(t float64) { n.threshold = t }

// BorderMargin returns the no-height border width in grid cells.
func (n *Node) BorderMargin() float64 { return n.margin }

// SetBorderMargin sets the no-height border width in grid cells.
func (n *Node) SetBorderMargin(b float64) { n.margin = b }

// Err returns the first error recorded by asynchronous work.
func (n *Node) Err() error { return n.err }

func (n *Node) fail(err error) {
	if n.err == nil {
		n.log.Error("terrain update failed", zap.Error(err))
		n.err = err
	}
}

// cellSize returns world units per grid cell.
func (n *Node) cellSize() float64 {
	return n.provider.UnitBase() * n.provider.Scale()[0]
}

// worldToGrid maps world x/z to grid coordinates.
func (n *Node) worldToGrid(wx, wz float64) (float64, float64) {
	g := n.cellSize()
	x := (wx-float64(n.position.X))/g + float64(n.provider.Width())*0.5
	y := (wz-float64(n.position.Z))/g + float64(n.provider.Height())*0.5
	return x, y
}

// Update delivers finished offload jobs, rebuilds the rings when the camera
// moved more than the update threshold, and ticks the fetch scheduler. dt is
// the time in seconds since the previous call and drives fetch retries. It
// returns the first error any of that work produced.
func (n *Node) Update(dt float64) error {
	if n.err != nil {
		return n.err
	}
	if err := n.dispatcher.Poll(); err != nil {
		n.fail(err)
		return err
	}

	cam := n.camera.WorldPos()
	newX, newY := n.worldToGrid(float64(cam.X), float64(cam.Z))

	dx, dy := newX-n.lastX, newY-n.lastY
	if gomath.Abs(dx) > n.threshold || gomath.Abs(dy) > n.threshold {
		for _, r := range n.rings {
			r.Update(newX, newY)
		}
		n.lastX, n.lastY = newX, newY
	}
	for _, r := range n.rings {
		r.tick(dt)
	}

	if err := n.provider.Update(cam); err != nil {
		n.fail(err)
	}
	return n.err
}

// GetWorldHeightForWorldPos returns the terrain height at world (wx,wz). It
// reports false within the border margin or while no heightmap is loaded.
func (n *Node) GetWorldHeightForWorldPos(wx, wz float64) (float64, bool) {
	x, y := n.worldToGrid(wx, wz)
	w, h := float64(n.provider.Width()), float64(n.provider.Height())
	b := n.margin
	if x < b || x >= w-b || y < b || y >= h-b {
		return 0, false
	}

	height, ok := n.provider.TryGetHeightAtPos(x, y)
	if !ok {
		return 0, false
	}
	return height + float64(n.position.Y), true
}

// Bounds returns the merged bounds of every shown ring mesh, in node space.
func (n *Node) Bounds() Bounds {
	b := EmptyBounds()
	for _, r := range n.rings {
		if r.shown != nil {
			b.Merge(r.shown.Bounds())
		}
	}
	return b
}

// Close cancels outstanding ring work, stops the dispatcher and removes the
// ring meshes from the scene. The provider is left open.
func (n *Node) Close() {
	for _, r := range n.rings {
		r.cancel()
		r.setMesh(nil)
	}
	n.dispatcher.Close()
}

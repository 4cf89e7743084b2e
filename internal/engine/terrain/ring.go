package terrain

import (
	"fmt"
	gomath "math"
	"strings"

	"go.uber.org/zap"

	"github.com/istavang/medea.js/pkg/math"
)

// presentListener runs when a ring becomes present. It returns true to be
// removed from the ring's listener list.
type presentListener struct {
	fn func() bool
}

// Ring is the mesh for one LOD level. Ring 0 is the finest and is drawn as a
// full grid; every coarser ring leaves a hole where the next finer ring is.
type Ring struct {
	node      *Node
	lod       int
	halfScale float64
	log       *zap.Logger

	startX, startY float64
	// originX/originY are the grid coordinates of the mesh's first vertex.
	// They lag startX/startY until a rebuild is applied.
	originX, originY float64

	present     bool
	substituted bool
	listeners   []*presentListener
	// watching[n] is set while this ring has a listener on ring n.
	watching map[int]bool

	mesh  Mesh
	shown Mesh
	w, h  int

	fetch *Task
	job   *Task
	// generation counts rebuild requests; applied is the generation of the
	// vertex data currently in the mesh.
	generation uint64
	applied    uint64

	// retryIn counts down, in seconds, to the next attempt after a failed
	// fetch while retry is set.
	retry   bool
	retryIn float64
}

func newRing(n *Node, lod int) *Ring {
	return &Ring{
		node:      n,
		lod:       lod,
		halfScale: 0.5 * float64(int(1)<<lod),
		log:       n.log.With(zap.Int("lod", lod)),
		startX:    1e10,
		startY:    1e10,
		watching:  make(map[int]bool),
	}
}

// LOD returns the ring's level.
func (r *Ring) LOD() int { return r.lod }

// IsPresent reports whether the ring has been built at least once.
func (r *Ring) IsPresent() bool { return r.present }

// IsSubstituted reports whether a coarser ring currently covers this ring's
// area because this ring is not built yet.
func (r *Ring) IsSubstituted() bool { return r.substituted }

// RingState summarizes a ring for status displays.
type RingState int

const (
	RingPending RingState = iota
	RingSubstituted
	RingPresent
)

// String returns a one-character tag: "-", "S" or "P".
func (s RingState) String() string {
	switch s {
	case RingPresent:
		return "P"
	case RingSubstituted:
		return "S"
	}
	return "-"
}

// State returns the ring's status.
func (r *Ring) State() RingState {
	switch {
	case r.present:
		return RingPresent
	case r.substituted:
		return RingSubstituted
	}
	return RingPending
}

// RingStates concatenates the state tags of rings, finest first.
func RingStates(rings []*Ring) string {
	var b strings.Builder
	for _, r := range rings {
		b.WriteString(r.State().String())
	}
	return b.String()
}

// Start returns the grid coordinates of the ring's first cell.
func (r *Ring) Start() (float64, float64) { return r.startX, r.startY }

// Mesh returns the ring's mesh, or nil before the first build.
func (r *Ring) Mesh() Mesh { return r.mesh }

// Listeners returns the number of registered on-present listeners.
func (r *Ring) Listeners() int { return len(r.listeners) }

// Update moves the ring so it is centered on grid position (cx,cy) and
// starts an asynchronous rebuild.
func (r *Ring) Update(cx, cy float64) {
	r.place(cx, cy)
	r.build()
}

// place sets the ring's start for a camera at grid position (cx,cy).
func (r *Ring) place(cx, cy float64) {
	cells := float64(r.node.ringCells)
	// Starts snap to the coarser ring's vertex spacing so seams line up.
	snap := 2 * float64(int(1)<<r.lod)
	r.startX = gomath.Floor((cx-r.halfScale*cells)/snap) * snap
	r.startY = gomath.Floor((cy-r.halfScale*cells)/snap) * snap
}

func (r *Ring) build() {
	r.retry = false
	r.generation++
	gen := r.generation

	// A request still waiting for its tile is superseded by this one.
	if r.fetch != nil && !r.fetch.Done() {
		r.fetch.Cancel()
	}

	cells := r.node.ringCells
	r.fetch = r.node.provider.RequestLOD(r.startX, r.startY, cells, cells, r.lod, func(s Sample, err error) {
		r.onSample(gen, s, err)
	})
}

func (r *Ring) onSample(gen uint64, s Sample, err error) {
	if err != nil && !fatal(err) {
		r.log.Warn("terrain tile fetch failed, retrying",
			zap.Duration("retry_in", r.node.retryDelay),
			zap.Error(err),
		)
		r.retry = true
		r.retryIn = r.node.retryDelay.Seconds()
		return
	}
	if err != nil {
		r.node.fail(fmt.Errorf("terrain ring %d: %w", r.lod, err))
		return
	}

	p := r.node.provider
	hf, err := p.SampleLOD(s)
	if err != nil {
		r.node.fail(fmt.Errorf("terrain ring %d: %w", r.lod, err))
		return
	}

	desc := p.Description()
	g := desc.UnitBase * desc.Scale[0]
	offset := math.Vec3{
		X: float32((hf.OriginX - float64(desc.Size[0])*0.5) * g),
		Z: float32((hf.OriginY - float64(desc.Size[1])*0.5) * g),
	}
	uv := genUVs(hf, float64(int(1)<<r.lod))

	args := TangentSpaceArgs{Positions: hf.Positions, Width: hf.Width, Height: hf.Height}
	r.job = r.node.dispatcher.Dispatch(CommandTangentSpace, args, func(res any, err error) {
		if gen < r.applied {
			r.log.Debug("dropping stale ring data", zap.Uint64("generation", gen))
			return
		}
		if err != nil {
			r.node.fail(fmt.Errorf("terrain ring %d: %w", r.lod, err))
			return
		}
		ts, ok := res.(TangentSpace)
		if !ok {
			r.node.fail(fmt.Errorf("terrain ring %d: unexpected tangent space result %T", r.lod, res))
			return
		}
		r.apply(gen, BuildVertices(hf, ts, uv, offset), hf)
	})
}

// tick advances a pending retry by dt seconds and rebuilds once it is due.
func (r *Ring) tick(dt float64) {
	if !r.retry {
		return
	}
	r.retryIn -= dt
	if r.retryIn <= 0 {
		r.log.Debug("retrying terrain tile fetch")
		r.build()
	}
}

// apply uploads rebuilt vertex data sampled into hf. The mesh is created on
// the first call and refilled in place afterwards.
func (r *Ring) apply(gen uint64, vertices []Vertex, hf *HeightField) {
	r.applied = gen
	r.w, r.h = hf.Width-1, hf.Height-1
	r.originX, r.originY = hf.OriginX, hf.OriginY
	ib := r.indices(r.w, r.h)

	if r.mesh == nil {
		mat, err := r.node.provider.GetMaterial(r.lod)
		if err != nil {
			r.node.fail(err)
			return
		}
		m, err := r.node.meshes.NewMesh(vertices, ib, mat)
		if err != nil {
			r.node.fail(fmt.Errorf("terrain ring %d: creating mesh: %w", r.lod, err))
			return
		}
		r.mesh = m
	} else {
		if err := r.mesh.Fill(vertices); err != nil {
			r.node.fail(fmt.Errorf("terrain ring %d: filling mesh: %w", r.lod, err))
			return
		}
		r.mesh.UpdateBounds()
		if r.mesh.Indices() != ib {
			r.mesh.SetIndices(ib)
		}
	}

	r.log.Debug("(re-)generate terrain ring",
		zap.Float64("startx", r.startX),
		zap.Float64("starty", r.startY),
		zap.Stringer("topology", ib.Key),
	)

	r.setMesh(r.mesh)
	r.setPresent()

	// Coarser holes are cut from this ring's origin, which just moved.
	for _, c := range r.node.rings[r.lod+1:] {
		c.refreshIndices()
	}
}

// indices returns the topology for a w x h cell ring. A coarser ring's hole
// is cut where the nearest present finer ring actually lies. When finer
// rings are not present yet, the hole shrinks to that ring, or closes, so
// this ring covers their area too, and listeners on those rings let the hole
// grow back once they load.
func (r *Ring) indices(w, h int) *IndexBuffer {
	outermost := r.lod == r.node.provider.LODCount()-1

	if r.lod == 0 {
		key := TopologyKey{W: w, H: h, Variant: VariantPlain}
		if outermost {
			key.Variant = VariantHoleNoSkirt
		}
		return r.node.topology.Get(key)
	}

	n := r.lod - 1
	for n >= 0 && !r.node.rings[n].present {
		n--
	}
	if n < r.lod-1 {
		r.log.Debug("extending ring to cover absent finer rings", zap.Int("down_to", n+1))
		for nn := n + 1; nn < r.lod; nn++ {
			r.node.rings[nn].substituted = true
			r.watch(nn)
		}
	}

	key := TopologyKey{W: w, H: h, Variant: VariantHoleWithSkirt}
	if outermost {
		key.Variant = VariantHoleNoSkirt
	}
	if n >= 0 {
		f := r.node.rings[n]
		key.HoleX, key.HoleW = r.holeSpan(f.originX-r.originX, f.w, n, w)
		key.HoleY, key.HoleH = r.holeSpan(f.originY-r.originY, f.h, n, h)
		if key.HoleW == 0 || key.HoleH == 0 {
			key.HoleX, key.HoleY, key.HoleW, key.HoleH = 0, 0, 0, 0
		}
	}
	return r.node.topology.Get(key)
}

// holeSpan returns the first cell and the number of cells of this ring,
// along one axis, that lie entirely inside a ring of finerCells cells at
// level finer starting off grid units past this ring's origin. The span is
// clamped to the ring's cells.
func (r *Ring) holeSpan(off float64, finerCells, finer, cells int) (int, int) {
	step := float64(int(1) << r.lod)
	span := float64(finerCells * (int(1) << finer))
	lo := int(gomath.Ceil(off / step))
	hi := int(gomath.Floor((off + span) / step))
	lo = min(max(lo, 0), cells)
	hi = min(max(hi, lo), cells)
	return lo, hi - lo
}

// refreshIndices recomputes the hole of a built ring and swaps its index
// buffer if the topology changed.
func (r *Ring) refreshIndices() {
	if r.mesh == nil {
		return
	}
	ib := r.indices(r.w, r.h)
	if ib != r.mesh.Indices() {
		r.log.Debug("updating ring hole", zap.Stringer("topology", ib.Key))
		r.mesh.SetIndices(ib)
	}
}

// watch registers a one-shot listener on finer ring nn that recomputes this
// ring's topology once nn is present.
func (r *Ring) watch(nn int) {
	if r.watching[nn] {
		return
	}
	r.watching[nn] = true

	r.node.rings[nn].addListener(func() bool {
		r.watching[nn] = false
		r.refreshIndices()
		return true
	})
}

func (r *Ring) addListener(fn func() bool) {
	r.listeners = append(r.listeners, &presentListener{fn: fn})
}

// setMesh shows m in the scene in place of the current mesh.
func (r *Ring) setMesh(m Mesh) {
	if m == r.shown {
		return
	}
	old := r.shown
	r.shown = m

	if s, ok := r.node.scene.(EntitySwapper); ok {
		s.SwapEntity(old, m)
		return
	}
	if old != nil {
		r.node.scene.RemoveEntity(old)
	}
	if m != nil {
		r.node.scene.AddEntity(m)
	}
}

// setPresent marks the ring present and notifies listeners. Listeners that
// ask to be removed are dropped after the whole pass.
func (r *Ring) setPresent() {
	r.present = true
	r.substituted = false

	snapshot := append([]*presentListener(nil), r.listeners...)
	var remove map[*presentListener]bool
	for _, l := range snapshot {
		if l.fn() {
			if remove == nil {
				remove = make(map[*presentListener]bool)
			}
			remove[l] = true
		}
	}
	if remove == nil {
		return
	}

	kept := r.listeners[:0]
	for _, l := range r.listeners {
		if !remove[l] {
			kept = append(kept, l)
		}
	}
	r.listeners = kept
}

// cancel drops outstanding work for the ring.
func (r *Ring) cancel() {
	r.fetch.Cancel()
	r.job.Cancel()
}

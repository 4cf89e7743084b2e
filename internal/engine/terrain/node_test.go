package terrain

import (
	"errors"
	"testing"
	"time"

	"github.com/istavang/medea.js/pkg/math"
)

type nodeFixture struct {
	node   *Node
	cam    *testCamera
	scene  *testScene
	meshes *testMeshFactory
	loader *testLoader
}

// newNodeFixture builds a node over a 16x16 terrain with five LODs and eight
// cells per ring. Fetches and tangent space run synchronously.
func newNodeFixture(t *testing.T, opts NodeOptions) *nodeFixture {
	t.Helper()
	p, loader := newTestProvider(t, pyramidDescription(16), pyramidImages(16, flat(255)))

	f := &nodeFixture{
		cam:    &testCamera{},
		scene:  newTestScene(),
		meshes: &testMeshFactory{},
		loader: loader,
	}
	if opts.RingCells == 0 {
		opts.RingCells = 8
	}
	n, err := NewNode(p, f.cam, f.scene, f.meshes, nil, opts)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	t.Cleanup(n.Close)
	f.node = n
	return f
}

func (f *nodeFixture) update(t *testing.T, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		if err := f.node.Update(0.016); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
}

func TestNodeLoadsCoarsestFirst(t *testing.T) {
	f := newNodeFixture(t, NodeOptions{})
	n := f.node

	if len(n.Rings()) != 5 || n.LODCount() != 5 {
		t.Fatalf("rings = %d, LODCount() = %d, want 5", len(n.Rings()), n.LODCount())
	}

	if got := RingStates(n.Rings()); got != "-----" {
		t.Errorf("RingStates() before update = %q", got)
	}

	f.update(t, 2)
	outer := n.LOD(4)
	if !outer.IsPresent() {
		t.Fatal("coarsest ring should be present after its tile loads")
	}
	if got := RingStates(n.Rings()); got != "SSSSP" {
		t.Errorf("RingStates() = %q, want SSSSP", got)
	}
	for i := 0; i < 4; i++ {
		if n.LOD(i).IsPresent() {
			t.Errorf("ring %d present too early", i)
		}
		if !n.LOD(i).IsSubstituted() {
			t.Errorf("ring %d should be substituted by the coarsest ring", i)
		}
	}
	key := outer.Mesh().Indices().Key
	if key.HoleW != 0 || key.HoleH != 0 || key.Variant != VariantHoleNoSkirt {
		t.Errorf("outer ring topology = %s, want no hole", key)
	}

	// Ring 3 loads next and the outer ring's hole grows back to its size.
	// Ring 3 starts at -32 and ring 4 at -64, two ring 4 cells apart.
	f.update(t, 1)
	if !n.LOD(3).IsPresent() || n.LOD(3).IsSubstituted() {
		t.Fatal("ring 3 should be present")
	}
	if key := outer.Mesh().Indices().Key; key.HoleW != 4 || key.HoleH != 4 || key.HoleX != 2 || key.HoleY != 2 {
		t.Errorf("outer ring topology = %s, want tight hole", key)
	}
	if key := n.LOD(3).Mesh().Indices().Key; key.HoleW != 0 || key.Variant != VariantHoleWithSkirt {
		t.Errorf("ring 3 topology = %s, want no hole", key)
	}

	f.update(t, 3)
	for i, r := range n.Rings() {
		if !r.IsPresent() || r.IsSubstituted() {
			t.Errorf("ring %d present=%v substituted=%v", i, r.IsPresent(), r.IsSubstituted())
		}
		if r.Listeners() != 0 {
			t.Errorf("ring %d still has %d listeners", i, r.Listeners())
		}
		key := r.Mesh().Indices().Key
		switch {
		case i == 0 && key.Variant != VariantPlain:
			t.Errorf("ring 0 topology = %s, want plain", key)
		case i > 0 && (key.HoleW != 4 || key.HoleH != 4):
			t.Errorf("ring %d topology = %s, want tight hole", i, key)
		}
	}
	if len(f.scene.entities) != 5 {
		t.Errorf("scene has %d entities, want 5", len(f.scene.entities))
	}
	if got := RingStates(n.Rings()); got != "PPPPP" {
		t.Errorf("RingStates() = %q, want PPPPP", got)
	}
}

// placeRings positions every ring for a camera at grid (cx,cy) as if its
// mesh had been built there, without fetching anything.
func placeRings(n *Node, cx, cy float64) {
	for _, r := range n.Rings() {
		r.place(cx, cy)
		r.originX, r.originY = r.Start()
		r.w, r.h = n.ringCells, n.ringCells
	}
}

func TestRingHoleShrinksWithAbsentFinerRings(t *testing.T) {
	f := newNodeFixture(t, NodeOptions{})
	n := f.node
	placeRings(n, 8, 8)
	r := n.LOD(3)

	set := func(present ...bool) {
		for i, p := range present {
			n.LOD(i).present = p
		}
	}

	// Ring 3 starts at -32 with 8 unit cells. Rings 0, 1 and 2 start at 4,
	// 0 and -8 and span 8, 16 and 32 units.
	tests := []struct {
		name    string
		present []bool
		holeX   int
		holeW   int
	}{
		{"all present", []bool{true, true, true}, 3, 4},
		{"one missing", []bool{true, true, false}, 4, 2},
		{"two missing", []bool{true, false, false}, 0, 0},
		{"all missing", []bool{false, false, false}, 0, 0},
	}
	for _, tt := range tests {
		set(tt.present...)
		key := r.indices(8, 8).Key
		if key.HoleX != tt.holeX || key.HoleW != tt.holeW || key.HoleY != tt.holeX || key.HoleH != tt.holeW {
			t.Errorf("%s: topology %s, want hole at %d size %d", tt.name, key, tt.holeX, tt.holeW)
		}
	}
}

func TestRingHoleGrowsBackAsRingsLoad(t *testing.T) {
	f := newNodeFixture(t, NodeOptions{})
	n := f.node
	placeRings(n, 8, 8)
	r := n.LOD(3)

	n.LOD(0).present = true
	r.mesh = &testMesh{ib: r.indices(8, 8)}

	if r.mesh.Indices().Key.HoleW != 0 {
		t.Fatalf("initial hole = %s", r.mesh.Indices().Key)
	}
	if !n.LOD(1).IsSubstituted() || !n.LOD(2).IsSubstituted() || n.LOD(0).IsSubstituted() {
		t.Error("rings 1 and 2 should be substituted")
	}
	if n.LOD(1).Listeners() != 1 || n.LOD(2).Listeners() != 1 {
		t.Fatalf("listeners = %d,%d, want 1,1", n.LOD(1).Listeners(), n.LOD(2).Listeners())
	}

	// Rebuilding with the same presence must not stack listeners.
	r.indices(8, 8)
	if n.LOD(1).Listeners() != 1 {
		t.Errorf("listeners on ring 1 = %d after rebuild, want 1", n.LOD(1).Listeners())
	}

	n.LOD(1).setPresent()
	if got := r.mesh.Indices().Key.HoleW; got != 2 {
		t.Errorf("hole after ring 1 loads = %d, want 2", got)
	}
	if n.LOD(1).Listeners() != 0 {
		t.Errorf("ring 1 listener not removed")
	}

	n.LOD(2).setPresent()
	if got := r.mesh.Indices().Key.HoleW; got != 4 {
		t.Errorf("hole after ring 2 loads = %d, want 4", got)
	}
	if n.LOD(2).Listeners() != 0 || n.LOD(2).IsSubstituted() {
		t.Errorf("ring 2 listeners=%d substituted=%v", n.LOD(2).Listeners(), n.LOD(2).IsSubstituted())
	}
}

func TestRingFootprintMatchesCoarserHole(t *testing.T) {
	positions := [][2]float32{{0, 0}, {2, 0}, {5, 0}, {-3, 0}, {3, -7}, {0.5, 6}}

	for _, pos := range positions {
		f := newNodeFixture(t, NodeOptions{})
		f.cam.pos = math.Vec3{X: pos[0], Z: pos[1]}
		f.update(t, 6)

		rings := f.node.Rings()
		if got := RingStates(rings); got != "PPPPP" {
			t.Fatalf("camera %v: RingStates() = %q", pos, got)
		}
		cells := f.node.ringCells
		for l := 1; l < len(rings); l++ {
			key := rings[l].Mesh().Indices().Key
			step := float64(int(1) << l)
			fx, fy := rings[l-1].Start()
			cx, cy := rings[l].Start()

			if cx+float64(key.HoleX)*step != fx || cy+float64(key.HoleY)*step != fy {
				t.Errorf("camera %v: ring %d hole %s starts off ring %d at (%v,%v)", pos, l, key, l-1, fx, fy)
			}
			if key.HoleW*2 != cells || key.HoleH*2 != cells {
				t.Errorf("camera %v: ring %d hole %s does not match ring %d size", pos, l, key, l-1)
			}
			if key.HoleX < 1 || key.HoleY < 1 || key.HoleX+key.HoleW > cells-1 || key.HoleY+key.HoleH > cells-1 {
				t.Errorf("camera %v: ring %d hole %s touches the stitched border", pos, l, key)
			}
		}
	}
}

func TestNodeRetriesFailedFetch(t *testing.T) {
	f := newNodeFixture(t, NodeOptions{RetryDelay: 50 * time.Millisecond})
	f.loader.failOnce["lod2.png"] = errors.New("read error")

	// lod4 and lod3 load, then the lod2 fetch fails.
	f.update(t, 4)
	if f.node.LOD(2).IsPresent() {
		t.Fatal("ring 2 present after a failed fetch")
	}
	if f.node.Err() != nil {
		t.Fatalf("fetch failure stopped the node: %v", f.node.Err())
	}

	f.update(t, 20)
	if got := RingStates(f.node.Rings()); got != "PPPPP" {
		t.Errorf("RingStates() = %q after retry, want PPPPP", got)
	}
	loads := 0
	for _, l := range f.loader.Loads() {
		if l == "lod2.png" {
			loads++
		}
	}
	if loads != 2 {
		t.Errorf("lod2.png loaded %d times, want 2", loads)
	}
}

func TestNodeTileSizeErrorIsFatal(t *testing.T) {
	images := pyramidImages(16, flat(0))
	images["lod2.png"] = newTestImage(8, 4, flat(0))
	p, _ := newTestProvider(t, pyramidDescription(16), images)
	n, err := NewNode(p, &testCamera{}, newTestScene(), &testMeshFactory{}, nil, NodeOptions{RingCells: 8})
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	for i := 0; i < 6 && err == nil; i++ {
		err = n.Update(0.016)
	}
	if !errors.Is(err, ErrTileSize) {
		t.Errorf("err = %v, want ErrTileSize", err)
	}
}

func TestNodeUpdateThreshold(t *testing.T) {
	f := newNodeFixture(t, NodeOptions{})
	n := f.node
	r := n.LOD(0)

	f.update(t, 1)
	if r.generation != 1 {
		t.Fatalf("generation = %d after first update, want 1", r.generation)
	}

	f.cam.pos = math.Vec3{X: 0.3, Z: -0.3}
	f.update(t, 1)
	if r.generation != 1 {
		t.Errorf("jitter below threshold rebuilt the ring")
	}

	f.cam.pos = math.Vec3{X: 0.5}
	f.update(t, 1)
	if r.generation != 2 {
		t.Errorf("generation = %d after crossing threshold, want 2", r.generation)
	}
}

func TestNodeReusesMeshes(t *testing.T) {
	f := newNodeFixture(t, NodeOptions{})
	f.update(t, 6)
	if len(f.meshes.meshes) != 5 {
		t.Fatalf("meshes = %d, want 5", len(f.meshes.meshes))
	}

	f.cam.pos = math.Vec3{X: 3, Z: 2}
	f.update(t, 1)

	if len(f.meshes.meshes) != 5 {
		t.Errorf("rebuild allocated new meshes: %d", len(f.meshes.meshes))
	}
	for i, m := range f.meshes.meshes {
		if m.fills != 1 {
			t.Errorf("mesh %d filled %d times, want 1", i, m.fills)
		}
	}
	if f.scene.adds != 5 || f.scene.removes != 0 {
		t.Errorf("scene adds=%d removes=%d", f.scene.adds, f.scene.removes)
	}
}

func TestNodeRingPlacement(t *testing.T) {
	f := newNodeFixture(t, NodeOptions{})
	f.update(t, 6)

	// Camera at the origin is grid (8,8). Ring 0 covers cells 4..12.
	b := f.node.LOD(0).Mesh().Bounds()
	if b.Min[0] != -4 || b.Max[0] != 4 || b.Min[2] != -4 || b.Max[2] != 4 {
		t.Errorf("ring 0 bounds = %+v", b)
	}
	if b.Min[1] < 1-1e-5 || b.Max[1] > 1+1e-5 {
		t.Errorf("ring 0 height range = %v..%v, want 1", b.Min[1], b.Max[1])
	}

	// Ring 1 covers cells 0..16 at two cells per vertex.
	b = f.node.LOD(1).Mesh().Bounds()
	if b.Min[0] != -8 || b.Max[0] != 8 {
		t.Errorf("ring 1 bounds = %+v", b)
	}

	nb := f.node.Bounds()
	if nb.Min[0] > -4 || nb.Max[0] < 4 {
		t.Errorf("node bounds = %+v", nb)
	}
}

func TestGetWorldHeightForWorldPos(t *testing.T) {
	f := newNodeFixture(t, NodeOptions{Position: math.Vec3{Y: 10}})
	n := f.node

	if _, ok := n.GetWorldHeightForWorldPos(0, 0); ok {
		t.Error("expected no height before loading")
	}

	f.update(t, 6)

	h, ok := n.GetWorldHeightForWorldPos(0, 0)
	if !ok {
		t.Fatal("expected height at the terrain center")
	}
	if h < 11-1e-5 || h > 11+1e-5 {
		t.Errorf("height = %v, want 11", h)
	}

	for _, pos := range [][2]float64{{-8, 0}, {0, -7.95}, {7.95, 0}, {100, 100}} {
		if _, ok := n.GetWorldHeightForWorldPos(pos[0], pos[1]); ok {
			t.Errorf("position %v inside the border margin returned a height", pos)
		}
	}
	if _, ok := n.GetWorldHeightForWorldPos(-7.8, 7.8); !ok {
		t.Error("position just inside the margin should have a height")
	}
}

func TestNodeCloseDropsLateResults(t *testing.T) {
	f := newNodeFixture(t, NodeOptions{})

	f.update(t, 1)
	f.node.Close()

	p := f.node.Provider()
	for i := 0; i < 6; i++ {
		if err := p.Update(math.Vec3{}); err != nil {
			t.Fatal(err)
		}
	}
	if len(f.meshes.meshes) != 0 {
		t.Errorf("late results created %d meshes", len(f.meshes.meshes))
	}
}

func TestNodeMissingLOD(t *testing.T) {
	doc := `
size: [4, 4]
unitbase: 1
maps:
  - {size: [4, 4], img: a.png}
`
	p, _ := newTestProvider(t, doc, map[string]Image{"a.png": newTestImage(4, 4, flat(0))})
	n, err := NewNode(p, &testCamera{}, newTestScene(), &testMeshFactory{}, nil, NodeOptions{RingCells: 8})
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	err = n.Update(0)
	if !errors.Is(err, ErrLODNotPresent) {
		t.Errorf("err = %v, want ErrLODNotPresent", err)
	}
	if !errors.Is(n.Update(0), ErrLODNotPresent) {
		t.Error("error should stick")
	}
}

func TestNewNodeValidatesRingCells(t *testing.T) {
	p, _ := newTestProvider(t, pyramidDescription(8), nil)
	for _, cells := range []int{2, 4, 6, -4} {
		if _, err := NewNode(p, &testCamera{}, newTestScene(), &testMeshFactory{}, nil, NodeOptions{RingCells: cells}); err == nil {
			t.Errorf("RingCells %d accepted", cells)
		}
	}
}

func TestNodeAsyncWorkers(t *testing.T) {
	f := newNodeFixture(t, NodeOptions{Workers: 2})

	deadline := time.Now().Add(5 * time.Second)
	for {
		f.update(t, 1)
		all := true
		for _, r := range f.node.Rings() {
			all = all && r.IsPresent()
		}
		if all {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("rings never became present")
		}
		time.Sleep(time.Millisecond)
	}
	if f.node.Dispatcher().Pending() != 0 {
		t.Errorf("pending jobs = %d", f.node.Dispatcher().Pending())
	}
}

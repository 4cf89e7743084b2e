package terrain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/istavang/medea.js/pkg/math"
)

type testImage struct {
	w, h int
	pix  []float32
}

func newTestImage(w, h int, f func(x, y int) float32) *testImage {
	img := &testImage{w: w, h: h, pix: make([]float32, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.pix[y*w+x] = f(x, y)
		}
	}
	return img
}

func (i *testImage) Width() int  { return i.w }
func (i *testImage) Height() int { return i.h }

func (i *testImage) PixelComponent(x, y, _ int) float32 {
	x = min(max(x, 0), i.w-1)
	y = min(max(y, 0), i.h-1)
	return i.pix[y*i.w+x]
}

type testLoader struct {
	mu     sync.Mutex
	images map[string]Image
	errs   map[string]error
	// failOnce entries fail the next load of their path and are removed.
	failOnce map[string]error
	loads    []string
}

func (l *testLoader) Load(_ context.Context, path string) (Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads = append(l.loads, path)
	if err, ok := l.errs[path]; ok {
		return nil, err
	}
	if err, ok := l.failOnce[path]; ok {
		delete(l.failOnce, path)
		return nil, err
	}
	img, ok := l.images[path]
	if !ok {
		return nil, fmt.Errorf("no such image: %s", path)
	}
	return img, nil
}

func (l *testLoader) Loads() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.loads...)
}

type testMesh struct {
	vertices []Vertex
	ib       *IndexBuffer
	bounds   Bounds
	material Material
	fills    int
}

func (m *testMesh) Fill(vertices []Vertex) error {
	if len(vertices) != len(m.vertices) {
		return fmt.Errorf("vertex count changed from %d to %d", len(m.vertices), len(vertices))
	}
	copy(m.vertices, vertices)
	m.fills++
	return nil
}

func (m *testMesh) UpdateBounds()              { m.bounds = ComputeBounds(m.vertices) }
func (m *testMesh) Bounds() Bounds             { return m.bounds }
func (m *testMesh) SetIndices(ib *IndexBuffer) { m.ib = ib }
func (m *testMesh) Indices() *IndexBuffer      { return m.ib }

type testMeshFactory struct {
	meshes []*testMesh
}

func (f *testMeshFactory) NewMesh(vertices []Vertex, ib *IndexBuffer, material Material) (Mesh, error) {
	m := &testMesh{vertices: append([]Vertex(nil), vertices...), ib: ib, material: material}
	m.UpdateBounds()
	f.meshes = append(f.meshes, m)
	return m, nil
}

type testScene struct {
	entities map[Mesh]bool
	adds     int
	removes  int
}

func newTestScene() *testScene {
	return &testScene{entities: make(map[Mesh]bool)}
}

func (s *testScene) AddEntity(m Mesh) {
	s.entities[m] = true
	s.adds++
}

func (s *testScene) RemoveEntity(m Mesh) {
	delete(s.entities, m)
	s.removes++
}

type testCamera struct {
	pos math.Vec3
}

func (c *testCamera) WorldPos() math.Vec3 { return c.pos }

type testMaterials struct {
	specs []MaterialSpec
}

func (f *testMaterials) CreateMaterial(spec MaterialSpec) (Material, error) {
	f.specs = append(f.specs, spec)
	return &spec, nil
}

// pyramidDescription returns a description of a size x size terrain with one
// map per LOD named lod<N>.png.
func pyramidDescription(size int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "size: [%d, %d]\nunitbase: 1\nmaps:\n", size, size)
	for s, lod := size, 0; s >= 1; s, lod = s/2, lod+1 {
		fmt.Fprintf(&b, "  - {size: [%d, %d], img: lod%d.png}\n", s, s, lod)
	}
	return b.String()
}

// pyramidImages returns images matching pyramidDescription, filled by f.
func pyramidImages(size int, f func(x, y int) float32) map[string]Image {
	images := make(map[string]Image)
	for s, lod := size, 0; s >= 1; s, lod = s/2, lod+1 {
		images[fmt.Sprintf("lod%d.png", lod)] = newTestImage(s, s, f)
	}
	return images
}

// newTestProvider parses doc and returns a provider whose fetches run
// synchronously inside Update.
func newTestProvider(t *testing.T, doc string, images map[string]Image) (*Provider, *testLoader) {
	t.Helper()
	desc, err := ParseDescription([]byte(doc), "")
	if err != nil {
		t.Fatalf("ParseDescription: %v", err)
	}
	loader := &testLoader{images: images, errs: make(map[string]error), failOnce: make(map[string]error)}
	p, err := NewProvider(desc, ProviderOptions{Loader: loader, Materials: &testMaterials{}})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	p.spawn = func(f func()) { f() }
	t.Cleanup(p.Close)
	return p, loader
}

func flat(v float32) func(x, y int) float32 {
	return func(int, int) float32 { return v }
}

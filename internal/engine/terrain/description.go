package terrain

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBaseHScale maps 8-bit heightmap values to [0,1].
const DefaultBaseHScale = 1.0 / 255.0

// TileDescriptor names one heightmap image and its resolution.
type TileDescriptor struct {
	Size  [2]int `yaml:"size"`
	Image string `yaml:"img"`
}

// Area returns the tile's pixel count.
func (t TileDescriptor) Area() int {
	return t.Size[0] * t.Size[1]
}

// MaterialDescriptor describes the material for one LOD. Either Effect is
// set, or CloneFrom points at another LOD's entry.
type MaterialDescriptor struct {
	Effect    string         `yaml:"effect"`
	Constants map[string]any `yaml:"constants"`
	CloneFrom *int           `yaml:"clonefrom"`
	CullFace  *bool          `yaml:"cull_face"`
}

// Description is the validated terrain description. Use ParseDescription or
// LoadDescription to build one; the zero value is not usable.
type Description struct {
	Size          [2]int               `yaml:"size"`
	UnitBase      float64              `yaml:"unitbase"`
	Scale         [3]float64           `yaml:"scale"`
	BaseHScale    float64              `yaml:"base_hscale"`
	DefaultHeight float64              `yaml:"default_height"`
	URLRoot       string               `yaml:"url_root"`
	Maps          []TileDescriptor     `yaml:"maps"`
	Materials     []MaterialDescriptor `yaml:"materials"`

	lodCount int
	// materialSource[i] is the LOD whose descriptor LOD i ends up using,
	// or -1 when LOD i has no material.
	materialSource []int
}

// LoadDescription reads a description file. JSON and YAML are both accepted.
// When the document has no url_root, the file's directory is used.
func LoadDescription(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading terrain description: %w", err)
	}
	desc, err := ParseDescription(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

// ResolvePath joins a description-relative path with the URL root. Absolute
// paths and URLs are returned unchanged.
func (d *Description) ResolvePath(rel string) string {
	if d.URLRoot == "" || path.IsAbs(rel) || strings.Contains(rel, "://") {
		return rel
	}
	return strings.TrimSuffix(d.URLRoot, "/") + "/" + rel
}

// ParseDescription parses and validates a description document. urlRoot is
// used when the document does not set url_root itself.
func ParseDescription(data []byte, urlRoot string) (*Description, error) {
	var d Description
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if d.URLRoot == "" {
		d.URLRoot = urlRoot
	}
	if err := d.resolve(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LODCount returns the number of LOD levels.
func (d *Description) LODCount() int {
	return d.lodCount
}

// LODSize returns the declared tile resolution wanted for lod.
func (d *Description) LODSize(lod int) (int, int) {
	return d.Size[0] >> lod, d.Size[1] >> lod
}

// FindTile returns the descriptor whose declared size is exactly (w,h).
// Entries without an image are ignored.
func (d *Description) FindTile(w, h int) (TileDescriptor, bool) {
	for _, m := range d.Maps {
		if m.Image == "" {
			continue
		}
		if m.Size[0] == w && m.Size[1] == h {
			return m, true
		}
	}
	return TileDescriptor{}, false
}

// MaterialSource returns the LOD whose material descriptor lod resolves to
// after following clonefrom links, or -1.
func (d *Description) MaterialSource(lod int) int {
	if lod < 0 || lod >= len(d.materialSource) {
		return -1
	}
	return d.materialSource[lod]
}

// resolve fills defaults and validates the document.
func (d *Description) resolve() error {
	if d.Size[0] <= 0 || d.Size[1] <= 0 {
		return fmt.Errorf("%w: size must be positive, got %v", ErrInvalidDescription, d.Size)
	}
	if d.UnitBase <= 0 {
		return fmt.Errorf("%w: unitbase must be positive, got %v", ErrInvalidDescription, d.UnitBase)
	}
	if d.Scale == [3]float64{} {
		d.Scale = [3]float64{1, 1, 1}
	}
	if d.BaseHScale == 0 {
		d.BaseHScale = DefaultBaseHScale
	}

	d.lodCount = 0
	for w := min(d.Size[0], d.Size[1]); w >= 1; w /= 2 {
		d.lodCount++
	}

	for i, m := range d.Maps {
		if m.Image == "" {
			continue
		}
		if m.Size[0] <= 0 || m.Size[1] <= 0 {
			return fmt.Errorf("%w: maps[%d] has invalid size %v", ErrInvalidDescription, i, m.Size)
		}
		if m.Size[0] > d.Size[0] || m.Size[1] > d.Size[1] {
			return fmt.Errorf("%w: maps[%d] size %v exceeds terrain size %v", ErrInvalidDescription, i, m.Size, d.Size)
		}
	}

	return d.resolveMaterials()
}

// resolveMaterials follows clonefrom chains for every LOD and rejects
// dangling references and cycles.
func (d *Description) resolveMaterials() error {
	d.materialSource = make([]int, d.lodCount)
	for lod := range d.materialSource {
		d.materialSource[lod] = -1
		if lod >= len(d.Materials) {
			continue
		}

		cur := lod
		seen := make(map[int]bool)
		for {
			if seen[cur] {
				return fmt.Errorf("%w: materials[%d]: clonefrom cycle", ErrInvalidDescription, lod)
			}
			seen[cur] = true

			m := d.Materials[cur]
			if m.CloneFrom == nil {
				if m.Effect == "" {
					return fmt.Errorf("%w: materials[%d]: needs effect or clonefrom", ErrInvalidDescription, cur)
				}
				d.materialSource[lod] = cur
				break
			}
			next := *m.CloneFrom
			if next < 0 || next >= len(d.Materials) {
				return fmt.Errorf("%w: materials[%d]: clonefrom %d out of range", ErrInvalidDescription, cur, next)
			}
			cur = next
		}
	}
	return nil
}

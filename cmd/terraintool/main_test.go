package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/webp"
)

// writeTerrain writes a size x size heightmap pyramid with a diagonal ramp
// and a description listing every tile. Tiles whose size is in skip are
// left out of the description.
func writeTerrain(t *testing.T, size int, skip ...int) string {
	t.Helper()
	dir := t.TempDir()

	var maps strings.Builder
	for s := size; s >= 1; s /= 2 {
		img := image.NewGray(image.Rect(0, 0, s, s))
		for y := 0; y < s; y++ {
			for x := 0; x < s; x++ {
				img.SetGray(x, y, color.Gray{Y: uint8((x + y) * 255 / (2 * s))})
			}
		}
		name := fmt.Sprintf("hm%d.png", s)
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		f.Close()

		skipped := false
		for _, k := range skip {
			skipped = skipped || k == s
		}
		if !skipped {
			fmt.Fprintf(&maps, "  - {size: [%d, %d], img: %s}\n", s, s, name)
		}
	}

	doc := fmt.Sprintf("size: [%d, %d]\nunitbase: 1\nscale: [1, 10, 1]\nmaps:\n%s", size, size, maps.String())
	path := filepath.Join(dir, "terrain.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		skip    []int
		wantErr bool
		want    string
	}{
		{"complete", nil, false, "All LOD tiles present."},
		{"missing tile", []int{4}, true, "MISSING"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := writeTerrain(t, 16, tt.skip...)

			var out bytes.Buffer
			err := cmdValidate(&out, []string{desc})
			if (err != nil) != tt.wantErr {
				t.Fatalf("cmdValidate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestValidateUsage(t *testing.T) {
	if err := cmdValidate(&bytes.Buffer{}, nil); err == nil {
		t.Error("expected usage error without a description")
	}
}

func TestLODs(t *testing.T) {
	desc := writeTerrain(t, 16)

	var out bytes.Buffer
	if err := cmdLODs(&out, []string{desc}); err != nil {
		t.Fatalf("cmdLODs() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want header and 5 LODs:\n%s", len(lines), out.String())
	}
	for _, want := range []string{"16x16", "hm16.png", "1x1", "hm1.png"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}
	if fields := strings.Fields(lines[5]); len(fields) < 3 || fields[2] != "16" {
		t.Errorf("LOD 4 spacing line = %q, want spacing 16", lines[5])
	}
}

func TestSimulate(t *testing.T) {
	desc := writeTerrain(t, 16)

	var out bytes.Buffer
	err := cmdSimulate(&out, []string{"-steps", "1", "-cells", "8", "-dx", "1", "-timeout", "5s", desc})
	if err != nil {
		t.Fatalf("cmdSimulate() error = %v\n%s", err, out.String())
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header and 2 steps:\n%s", len(lines), out.String())
	}
	for _, l := range lines[1:] {
		if !strings.Contains(l, "PPPPP") {
			t.Errorf("step did not settle: %q", l)
		}
	}
}

func TestPreview(t *testing.T) {
	desc := writeTerrain(t, 16)
	dst := filepath.Join(t.TempDir(), "out.webp")

	var out bytes.Buffer
	if err := cmdPreview(&out, []string{"-lod", "1", "-size", "32", "-o", dst, desc}); err != nil {
		t.Fatalf("cmdPreview() error = %v", err)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := webp.DecodeConfig(f)
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != 32 || cfg.Height != 32 {
		t.Errorf("preview is %dx%d, want 32x32", cfg.Width, cfg.Height)
	}
}

func TestPreviewBadLOD(t *testing.T) {
	desc := writeTerrain(t, 16)
	if err := cmdPreview(&bytes.Buffer{}, []string{"-lod", "9", desc}); err == nil {
		t.Error("expected error for out of range LOD")
	}
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		w, h, limit  int
		wantW, wantH int
	}{
		{16, 16, 32, 32, 32},
		{64, 16, 32, 32, 8},
		{16, 64, 32, 8, 32},
		{1000, 1, 10, 10, 1},
	}

	for _, tt := range tests {
		w, h := fitSize(tt.w, tt.h, tt.limit)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("fitSize(%d,%d,%d) = %d,%d, want %d,%d", tt.w, tt.h, tt.limit, w, h, tt.wantW, tt.wantH)
		}
	}
}

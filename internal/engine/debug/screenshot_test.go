package debug

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/webp"
)

func TestGenerateFilename(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	tests := []struct {
		dir  string
		want string
	}{
		{"", "terrain_2024-03-09_14-05-07.webp"},
		{"shots", filepath.Join("shots", "terrain_2024-03-09_14-05-07.webp")},
	}

	for _, tt := range tests {
		sc := NewScreenshotCapture(tt.dir, "terrain")
		sc.now = func() time.Time { return at }
		if got := sc.GenerateFilename(); got != tt.want {
			t.Errorf("GenerateFilename() = %q, want %q", got, tt.want)
		}
	}
}

func TestCaptureFromPixelsFlips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	sc := NewScreenshotCapture(dir, "test")

	// Two rows: the bottom row (first in GL order) is red, the top is blue.
	pixels := []byte{
		255, 0, 0, 255, 255, 0, 0, 255,
		0, 0, 255, 255, 0, 0, 255, 255,
	}
	name, err := sc.CaptureFromPixels(pixels, 2, 2)
	if err != nil {
		t.Fatalf("CaptureFromPixels: %v", err)
	}

	f, err := os.Open(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := webp.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	top := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA)
	bottom := color.RGBAModel.Convert(img.At(0, 1)).(color.RGBA)
	if top.B != 255 || top.R != 0 {
		t.Errorf("top pixel = %v, want blue", top)
	}
	if bottom.R != 255 || bottom.B != 0 {
		t.Errorf("bottom pixel = %v, want red", bottom)
	}
}

func TestCaptureFromPixelsSizeMismatch(t *testing.T) {
	sc := NewScreenshotCapture(t.TempDir(), "test")
	if _, err := sc.CaptureFromPixels(make([]byte, 10), 2, 2); err == nil {
		t.Error("expected size mismatch error")
	}
}

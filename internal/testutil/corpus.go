package testutil

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/tiff"
)

// PatternRGBA returns a deterministic textured RGBA image. The texture
// gives lossy codecs something to lose at low quality.
func PatternRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x*7 + y*3) % 256),
				G: uint8((x * y) % 256),
				B: uint8((x*x + 3*y) % 256),
				A: 255,
			})
		}
	}
	return img
}

// PatternGray returns a deterministic textured grayscale image.
func PatternGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x*11 + y*y) % 256)})
		}
	}
	return img
}

// WriteImage encodes img at path in the format implied by its extension.
func WriteImage(t testing.TB, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, nil)
	case ".png":
		err = png.Encode(f, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	default:
		t.Fatalf("unsupported test image extension: %s", path)
	}
	if err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

// WriteFile writes content at path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// SetupCorpus creates a corpus of n small TIFF images with JSON labels
// named sample_000..sample_<n-1> under a fresh temp directory.
func SetupCorpus(t testing.TB, n int) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "alldata")
	for _, dir := range []string{"images", "labels"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o750); err != nil {
			t.Fatalf("failed to create %s: %v", dir, err)
		}
	}
	for i := 0; i < n; i++ {
		base := fmt.Sprintf("sample_%03d", i)
		WriteImage(t, filepath.Join(root, "images", base+".tif"), PatternRGBA(8+i, 8))
		WriteFile(t, filepath.Join(root, "labels", base+".json"), fmt.Sprintf(`{"id": %d}`, i))
	}
	return root
}

// ListNames returns the sorted names of regular files in dir.
func ListNames(t testing.TB, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names
}

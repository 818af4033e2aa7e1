package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 128, A: 255})
		}
	}
	return img
}

// writeJPEGWithExif encodes a JPEG and splices a fake APP1 Exif segment in
// right after SOI, the position real cameras use.
func writeJPEGWithExif(t *testing.T, path string) {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	encoded := buf.Bytes()
	if len(encoded) < 2 || encoded[0] != 0xFF || encoded[1] != 0xD8 {
		t.Fatal("encoded jpeg missing SOI marker")
	}

	payload := []byte("Exif\x00\x00GPSLatitude=51.5007")
	segment := make([]byte, 0, 4+len(payload))
	segment = append(segment, 0xFF, 0xE1)
	length := len(payload) + 2
	segment = append(segment, byte(length>>8), byte(length&0xFF))
	segment = append(segment, payload...)

	spliced := make([]byte, 0, len(encoded)+len(segment))
	spliced = append(spliced, encoded[:2]...)
	spliced = append(spliced, segment...)
	spliced = append(spliced, encoded[2:]...)

	if err := os.WriteFile(path, spliced, 0o644); err != nil {
		t.Fatalf("failed to write test jpeg: %v", err)
	}
}

func TestSanitizeStripsExif(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "cover.jpg")
	writeJPEGWithExif(t, source)

	// Confidence check: the input really carries the marker segment.
	raw, _ := os.ReadFile(source)
	if !bytes.Contains(raw, []byte("GPSLatitude")) {
		t.Fatal("test input lost its exif payload")
	}

	cleaned, err := NewExifSanitizer().Sanitize(source)
	if err != nil {
		t.Fatalf("Sanitize failed: %v", err)
	}
	if cleaned != filepath.Join(dir, "cover-cleaned.jpg") {
		t.Errorf("cleaned path = %s, want cover-cleaned.jpg alongside the source", cleaned)
	}

	out, err := os.ReadFile(cleaned)
	if err != nil {
		t.Fatalf("failed to read cleaned image: %v", err)
	}
	if bytes.Contains(out, []byte("Exif")) || bytes.Contains(out, []byte("GPSLatitude")) {
		t.Error("cleaned image still contains exif payload")
	}

	// Still decodable, same dimensions.
	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("cleaned image does not decode: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 16, 16) {
		t.Errorf("cleaned image bounds = %v", img.Bounds())
	}

	// Source untouched.
	after, _ := os.ReadFile(source)
	if !bytes.Equal(raw, after) {
		t.Error("sanitize modified the source file")
	}
}

func TestSanitizePNGStaysPNG(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "cover.png")

	f, err := os.Create(source)
	if err != nil {
		t.Fatalf("failed to create png: %v", err)
	}
	if err := png.Encode(f, testImage()); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	f.Close()

	cleaned, err := NewExifSanitizer().Sanitize(source)
	if err != nil {
		t.Fatalf("Sanitize failed: %v", err)
	}
	if !strings.HasSuffix(cleaned, "-cleaned.png") {
		t.Errorf("cleaned path = %s, want png extension kept", cleaned)
	}

	out, err := os.Open(cleaned)
	if err != nil {
		t.Fatalf("failed to open cleaned png: %v", err)
	}
	defer out.Close()
	if _, format, err := image.Decode(out); err != nil || format != "png" {
		t.Errorf("cleaned image format = %q (err %v), want png", format, err)
	}
}

func TestSanitizeRejectsNonImage(t *testing.T) {
	source := filepath.Join(t.TempDir(), "cover.jpg")
	if err := os.WriteFile(source, []byte("definitely not an image"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	_, err := NewExifSanitizer().Sanitize(source)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
	}
	if _, statErr := os.Stat(CleanedPath(source)); !os.IsNotExist(statErr) {
		t.Error("rejected input left a cleaned file behind")
	}
}

func TestSanitizeMissingFile(t *testing.T) {
	_, err := NewExifSanitizer().Sanitize(filepath.Join(t.TempDir(), "absent.jpg"))
	if err == nil {
		t.Fatal("Sanitize of a missing file succeeded")
	}
}

func TestCleanedPath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"a/b/cover.jpg", "a/b/cover-cleaned.jpg"},
		{"cover.png", "cover-cleaned.png"},
		{"noext", "noext-cleaned"},
	}
	for _, tt := range tests {
		if got := CleanedPath(tt.in); got != tt.want {
			t.Errorf("CleanedPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

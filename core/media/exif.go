package media

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when an uploaded image cannot be decoded.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ExifSanitizer strips identifying metadata (EXIF, GPS, camera fields) from
// uploaded images by decoding the pixel data and re-encoding it fresh. The
// re-encode carries no ancillary segments, so nothing survives by accident.
// Stateless; safe for concurrent use on independent files.
type ExifSanitizer struct {
	// JPEGQuality applies when the cleaned copy is JPEG-encoded.
	JPEGQuality int
}

// NewExifSanitizer creates a sanitizer with the default JPEG quality.
func NewExifSanitizer() *ExifSanitizer {
	return &ExifSanitizer{JPEGQuality: 90}
}

// CleanedPath derives the output path for a source image. The original is
// never rewritten in place, so rollback only has to delete the derived file.
func CleanedPath(sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	return strings.TrimSuffix(sourcePath, ext) + "-cleaned" + ext
}

// Sanitize reads the image at sourcePath and writes a metadata-free copy to
// the derived cleaned path, returning that path. PNG input stays PNG;
// everything else decodable is written as JPEG.
func (s *ExifSanitizer) Sanitize(sourcePath string) (string, error) {
	src, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to open image %s: %w", sourcePath, err)
	}
	defer src.Close()

	img, format, err := image.Decode(src)
	if err != nil {
		return "", fmt.Errorf("failed to decode image %s: %w", sourcePath, ErrUnsupportedFormat)
	}

	cleanedPath := CleanedPath(sourcePath)
	dst, err := os.Create(cleanedPath)
	if err != nil {
		return "", fmt.Errorf("failed to create cleaned image %s: %w", cleanedPath, err)
	}

	switch format {
	case "png":
		err = png.Encode(dst, img)
	default:
		quality := s.JPEGQuality
		if quality <= 0 {
			quality = 90
		}
		err = jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
	}

	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(cleanedPath)
		return "", fmt.Errorf("failed to encode cleaned image %s: %w", cleanedPath, err)
	}

	return cleanedPath, nil
}

// Package stream serves stored files over HTTP with RFC 7233 byte-range
// semantics: full-body 200 when no Range header is present, 206 with an
// exact byte window for a satisfiable range, 416 otherwise. Bodies are
// copied incrementally so memory per connection stays bounded regardless
// of file size.
package stream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// ErrUnsatisfiableRange is returned when a Range header is malformed or
// names bytes outside the resource.
var ErrUnsatisfiableRange = errors.New("requested range not satisfiable")

// ByteRange is an inclusive byte window within a resource of known size.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the window.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ParseRange interprets a Range header against a resource of total bytes.
// It returns (nil, nil) when the header is absent, the parsed window for a
// satisfiable "bytes=start-end" (end optional, defaulting to the last
// byte), and ErrUnsatisfiableRange for anything malformed or out of
// bounds: missing start, start > end, or start beyond the resource.
func ParseRange(header string, total int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}

	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return nil, fmt.Errorf("unsupported range unit in %q: %w", header, ErrUnsatisfiableRange)
	}

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return nil, fmt.Errorf("malformed range %q: %w", header, ErrUnsatisfiableRange)
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("malformed range start in %q: %w", header, ErrUnsatisfiableRange)
	}

	end := total - 1
	if trimmed := strings.TrimSpace(endStr); trimmed != "" {
		end, err = strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed range end in %q: %w", header, ErrUnsatisfiableRange)
		}
	}
	if end > total-1 {
		end = total - 1
	}

	if start > end || start >= total {
		return nil, fmt.Errorf("range %q outside resource of %d bytes: %w", header, total, ErrUnsatisfiableRange)
	}

	return &ByteRange{Start: start, End: end}, nil
}

// Streamer serves stored asset files with byte-range support.
type Streamer struct {
	// ContentType is sent on every response. Compressed tracks are mpeg
	// audio.
	ContentType string
}

// NewStreamer creates a streamer for audio assets.
func NewStreamer() *Streamer {
	return &Streamer{ContentType: "audio/mpeg"}
}

// Serve streams the file at path (of total bytes) to w, honoring the
// request's Range header. The file handle is released on every exit path;
// a client disconnect aborts the copy through the failed write.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, path string, total int64) error {
	rng, err := ParseRange(r.Header.Get("Range"), total)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", total))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open asset %s: %w", path, err)
	}
	defer file.Close()

	w.Header().Set("Content-Type", s.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if rng == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, file); err != nil {
			return fmt.Errorf("stream aborted for %s: %w", path, err)
		}
		return nil
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek %s to %d: %w", path, rng.Start, err)
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, total))
	w.Header().Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := io.CopyN(w, file, rng.Length()); err != nil {
		return fmt.Errorf("stream aborted for %s: %w", path, err)
	}
	return nil
}

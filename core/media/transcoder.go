package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"resonate/logger"
)

// ErrTranscodeFailed is returned when the external encoder exits nonzero,
// times out, or produces no output.
var ErrTranscodeFailed = errors.New("audio transcode failed")

// Transcoder re-encodes an audio file to the service's target bitrate.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string) error
}

// FFmpegTranscoder implements Transcoder by spawning ffmpeg per call.
// A buffered-channel semaphore caps concurrent encoder processes
// system-wide; excess callers queue on it instead of spawning freely.
type FFmpegTranscoder struct {
	ffmpegPath string
	bitrate    string // e.g. "128k"
	timeout    time.Duration
	sem        chan struct{}
}

// NewFFmpegTranscoder creates a transcoder bound to maxConcurrent parallel
// ffmpeg processes, each limited to timeout.
func NewFFmpegTranscoder(ffmpegPath, bitrate string, maxConcurrent int, timeout time.Duration) *FFmpegTranscoder {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &FFmpegTranscoder{
		ffmpegPath: ffmpegPath,
		bitrate:    bitrate,
		timeout:    timeout,
		sem:        make(chan struct{}, maxConcurrent),
	}
}

// Transcode re-encodes inputPath to outputPath at the target bitrate. On
// timeout or nonzero exit the partial output file is removed before the
// error returns, so failed runs leave nothing on disk.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, inputPath, outputPath string) error {
	select {
	case t.sem <- struct{}{}:
		defer func() { <-t.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{
		"-i", inputPath,
		"-b:a", t.bitrate,
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(runCtx, t.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		os.Remove(outputPath)
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg timed out after %s for %s: %w", t.timeout, inputPath, ErrTranscodeFailed)
		}
		return fmt.Errorf("ffmpeg execution failed for %s: %v: %s: %w", inputPath, err, stderr.String(), ErrTranscodeFailed)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg produced no output for %s: %w", inputPath, ErrTranscodeFailed)
	}

	logger.Debug("transcode finished",
		logger.String("input", inputPath),
		logger.String("output", outputPath),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

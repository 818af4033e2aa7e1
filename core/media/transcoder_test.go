package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

// fakeEncoder writes a shell script that mimics ffmpeg's CLI shape: the
// last argument is the output path.
func fakeEncoder(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake encoder script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	content := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("failed to write fake encoder: %v", err)
	}
	return path
}

func TestTranscodeSuccess(t *testing.T) {
	encoder := fakeEncoder(t, `
for out; do :; done
printf 'compressed audio' > "$out"`)

	dir := t.TempDir()
	input := filepath.Join(dir, "in.wav")
	output := filepath.Join(dir, "out.mp3")
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewFFmpegTranscoder(encoder, "128k", 2, 10*time.Second)
	if err := tr.Transcode(context.Background(), input, output); err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil || string(data) != "compressed audio" {
		t.Fatalf("output content = %q, err %v", data, err)
	}
}

func TestTranscodeNonzeroExit(t *testing.T) {
	encoder := fakeEncoder(t, `
for out; do :; done
printf 'partial' > "$out"
echo "Invalid data found when processing input" >&2
exit 1`)

	dir := t.TempDir()
	input := filepath.Join(dir, "in.wav")
	output := filepath.Join(dir, "out.mp3")
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewFFmpegTranscoder(encoder, "128k", 1, 10*time.Second)
	err := tr.Transcode(context.Background(), input, output)
	if !errors.Is(err, ErrTranscodeFailed) {
		t.Fatalf("error = %v, want ErrTranscodeFailed", err)
	}

	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Error("failed transcode left partial output on disk")
	}
}

func TestTranscodeEmptyOutput(t *testing.T) {
	encoder := fakeEncoder(t, `
for out; do :; done
: > "$out"`)

	dir := t.TempDir()
	input := filepath.Join(dir, "in.wav")
	output := filepath.Join(dir, "out.mp3")
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewFFmpegTranscoder(encoder, "128k", 1, 10*time.Second)
	err := tr.Transcode(context.Background(), input, output)
	if !errors.Is(err, ErrTranscodeFailed) {
		t.Fatalf("error = %v, want ErrTranscodeFailed", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Error("empty output not removed")
	}
}

func TestTranscodeTimeout(t *testing.T) {
	encoder := fakeEncoder(t, `sleep 5`)

	dir := t.TempDir()
	input := filepath.Join(dir, "in.wav")
	output := filepath.Join(dir, "out.mp3")
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewFFmpegTranscoder(encoder, "128k", 1, 100*time.Millisecond)
	start := time.Now()
	err := tr.Transcode(context.Background(), input, output)
	if !errors.Is(err, ErrTranscodeFailed) {
		t.Fatalf("error = %v, want ErrTranscodeFailed", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout took %s, deadline not enforced", elapsed)
	}
}

func TestTranscodeCanceledBeforeStart(t *testing.T) {
	tr := NewFFmpegTranscoder("ffmpeg-not-called", "128k", 1, time.Second)

	// Occupy the only slot so the second call queues on the semaphore.
	tr.sem <- struct{}{}
	defer func() { <-tr.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Transcode(ctx, "in", "out"); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestTranscodeConcurrencyBound(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "running")

	// The script fails the run if it ever sees another instance's marker.
	encoder := fakeEncoder(t, fmt.Sprintf(`
for out; do :; done
if [ -e %q ]; then
  echo overlap >&2
  exit 1
fi
touch %q
sleep 0.1
rm -f %q
printf 'ok' > "$out"`, marker, marker, marker))

	input := filepath.Join(dir, "in.wav")
	if err := os.WriteFile(input, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewFFmpegTranscoder(encoder, "128k", 1, 10*time.Second)

	var failures atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			output := filepath.Join(dir, fmt.Sprintf("out-%d.mp3", i))
			if err := tr.Transcode(context.Background(), input, output); err != nil {
				failures.Add(1)
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	if failures.Load() != 0 {
		t.Fatalf("%d transcodes overlapped despite a concurrency bound of 1", failures.Load())
	}
}

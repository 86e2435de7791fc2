// Package ffmpeg wraps ffmpeg execution for audio normalization and
// segmentation. All transcription input passes through here first: backends
// expect mono 16 kHz 16-bit PCM WAV regardless of the uploaded container.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"lectern/internal/services"
)

// Runner executes an external command, returning its stderr in the error on
// failure. Tests substitute a fake to avoid invoking real binaries.
type Runner func(ctx context.Context, name string, args ...string) error

// Transcoder converts and segments audio via the ffmpeg binary.
type Transcoder struct {
	binary string
	run    Runner
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithRunner overrides command execution.
func WithRunner(r Runner) Option {
	return func(t *Transcoder) {
		if r != nil {
			t.run = r
		}
	}
}

// New creates a Transcoder using the given ffmpeg binary name or path.
func New(binary string, opts ...Option) *Transcoder {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	t := &Transcoder{binary: binary, run: defaultRunner}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Convert transcodes src into a mono 16 kHz 16-bit PCM WAV at dst.
func (t *Transcoder) Convert(ctx context.Context, src, dst string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dst,
	}
	if err := t.run(ctx, t.binary, args...); err != nil {
		return t.wrapRunError("convert", "audio conversion failed", err)
	}
	return nil
}

// Segment splits src into consecutive chunks of at most chunkSeconds inside
// dir, returning the chunk paths in playback order. Chunk names carry a
// zero-padded sequence index so lexical order matches temporal order.
func (t *Transcoder) Segment(ctx context.Context, src, dir string, chunkSeconds int) ([]string, error) {
	if chunkSeconds <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "ffmpeg", "segment",
			fmt.Sprintf("invalid chunk duration %d", chunkSeconds), nil)
	}

	pattern := filepath.Join(dir, "chunk_%04d.wav")
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSeconds),
		"-c", "copy",
		pattern,
	}
	if err := t.run(ctx, t.binary, args...); err != nil {
		return nil, t.wrapRunError("segment", "audio segmentation failed", err)
	}

	chunks, err := filepath.Glob(filepath.Join(dir, "chunk_*.wav"))
	if err != nil {
		return nil, services.Wrap(services.ErrConversion, "ffmpeg", "segment", "list chunks", err)
	}
	if len(chunks) == 0 {
		return nil, services.Wrap(services.ErrConversion, "ffmpeg", "segment", "segmentation produced no chunks", nil)
	}
	sort.Strings(chunks)
	return chunks, nil
}

func (t *Transcoder) wrapRunError(operation, message string, err error) error {
	marker := services.ErrConversion
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		marker = services.ErrConfiguration
		message = fmt.Sprintf("%s binary not found", t.binary)
	}
	return services.Wrap(marker, "ffmpeg", operation, message, err)
}

func defaultRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

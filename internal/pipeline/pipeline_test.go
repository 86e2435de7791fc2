package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/config"
	"lectern/internal/services"
	"lectern/internal/testsupport"
	"lectern/internal/transcripts"
)

type fakeTranscoder struct {
	segments    int
	convertErr  error
	segmentErr  error
	convertDone bool
}

func (f *fakeTranscoder) Convert(_ context.Context, src, dst string) error {
	if f.convertErr != nil {
		return f.convertErr
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	f.convertDone = true
	return os.WriteFile(dst, data, 0o644)
}

func (f *fakeTranscoder) Segment(_ context.Context, _ string, dir string, _ int) ([]string, error) {
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	paths := make([]string, 0, f.segments)
	for i := 0; i < f.segments; i++ {
		path := filepath.Join(dir, fmt.Sprintf("chunk_%04d.wav", i))
		if err := os.WriteFile(path, []byte("riff"), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

type fakeProber struct {
	duration float64
	err      error
}

func (f fakeProber) Duration(context.Context, string) (float64, error) {
	return f.duration, f.err
}

type fakeTranscriber struct {
	byBase  map[string]string
	failOn  string
	visited []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	base := filepath.Base(path)
	f.visited = append(f.visited, base)
	if f.failOn != "" && base == f.failOn {
		return "", services.Wrap(services.ErrBackend, "whisper", "transcribe", "backend failed", nil)
	}
	if text, ok := f.byBase[base]; ok {
		return text, nil
	}
	return "", nil
}

func newTestPipeline(t *testing.T, transcoder Transcoder, prober Prober, transcriber *fakeTranscriber, opts ...testsupport.ConfigOption) (*Pipeline, *transcripts.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)

	return New(cfg, transcoder, prober, transcriber, store, nil), store, cfg
}

func upload(name, content string) Upload {
	return Upload{Filename: name, Size: int64(len(content)), Reader: strings.NewReader(content)}
}

func workspaceCount(t *testing.T, workDir string) int {
	t.Helper()
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	return len(entries)
}

func TestProcessShortRecordingSkipsSegmentation(t *testing.T) {
	transcriber := &fakeTranscriber{byBase: map[string]string{"normalized.wav": "short lecture text"}}
	p, store, cfg := newTestPipeline(t, &fakeTranscoder{}, fakeProber{duration: 90}, transcriber)

	result, err := p.Process(context.Background(), upload("intro.wav", "riff data"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.Persisted() {
		t.Fatal("expected persisted transcript")
	}
	if result.Text != "short lecture text" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if result.Chunks != 1 {
		t.Fatalf("expected 1 chunk, got %d", result.Chunks)
	}
	if len(transcriber.visited) != 1 || transcriber.visited[0] != "normalized.wav" {
		t.Fatalf("expected direct transcription of normalized audio, got %v", transcriber.visited)
	}

	stored, err := store.Get(context.Background(), result.TranscriptID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.Text != result.Text {
		t.Fatalf("stored text mismatch: %q", stored.Text)
	}
	if workspaceCount(t, cfg.Paths.WorkDir) != 0 {
		t.Fatal("expected workspace removed after success")
	}
}

func TestProcessLongRecordingJoinsChunksInOrder(t *testing.T) {
	transcriber := &fakeTranscriber{byBase: map[string]string{
		"chunk_0000.wav": "part one",
		"chunk_0001.wav": "part two",
		"chunk_0002.wav": "part three",
	}}
	p, store, _ := newTestPipeline(t, &fakeTranscoder{segments: 3}, fakeProber{duration: 900}, transcriber)

	result, err := p.Process(context.Background(), upload("long.mp3", "riff data"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Chunks != 3 {
		t.Fatalf("expected 3 chunks, got %d", result.Chunks)
	}
	want := "part one\npart two\npart three"
	if result.Text != want {
		t.Fatalf("expected ordered join, got %q", result.Text)
	}

	stored, err := store.Get(context.Background(), result.TranscriptID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.Text != want {
		t.Fatalf("stored text mismatch: %q", stored.Text)
	}
}

func TestProcessDurationAtChunkBoundaryBypassesSegmenter(t *testing.T) {
	transcriber := &fakeTranscriber{byBase: map[string]string{"normalized.wav": "exactly at limit"}}
	p, _, cfg := newTestPipeline(t, &fakeTranscoder{}, fakeProber{duration: 300}, transcriber)
	if cfg.Segmenter.ChunkSeconds != 300 {
		t.Fatalf("unexpected default chunk seconds: %d", cfg.Segmenter.ChunkSeconds)
	}

	result, err := p.Process(context.Background(), upload("edge.wav", "riff"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Chunks != 1 {
		t.Fatalf("expected bypass at boundary, got %d chunks", result.Chunks)
	}
}

func TestProcessHonorsConfiguredChunkDuration(t *testing.T) {
	transcriber := &fakeTranscriber{byBase: map[string]string{
		"chunk_0000.wav": "first minute",
		"chunk_0001.wav": "second minute",
	}}
	p, _, _ := newTestPipeline(t, &fakeTranscoder{segments: 2}, fakeProber{duration: 90}, transcriber,
		testsupport.WithChunkSeconds(60))

	result, err := p.Process(context.Background(), upload("talk.wav", "riff"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Chunks != 2 {
		t.Fatalf("expected segmentation under a 60s chunk limit, got %d chunks", result.Chunks)
	}
	if result.Text != "first minute\nsecond minute" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
}

func TestProcessRejectsInvalidUploadBeforeAnyWork(t *testing.T) {
	transcoder := &fakeTranscoder{}
	p, store, cfg := newTestPipeline(t, transcoder, fakeProber{duration: 10}, &fakeTranscriber{})

	_, err := p.Process(context.Background(), upload("movie.mp4", "data"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if transcoder.convertDone {
		t.Fatal("conversion should not run for rejected uploads")
	}
	summaries, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatal("expected no stored transcripts")
	}
	if workspaceCount(t, cfg.Paths.WorkDir) != 0 {
		t.Fatal("expected no workspace left behind")
	}
}

func TestProcessConversionFailureCleansWorkspace(t *testing.T) {
	convertErr := services.Wrap(services.ErrConversion, "ffmpeg", "convert", "corrupt input", nil)
	p, store, cfg := newTestPipeline(t, &fakeTranscoder{convertErr: convertErr}, fakeProber{duration: 10}, &fakeTranscriber{})

	_, err := p.Process(context.Background(), upload("bad.wav", "not audio"))
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("expected conversion error, got %v", err)
	}
	summaries, _ := store.List(context.Background())
	if len(summaries) != 0 {
		t.Fatal("expected no stored transcripts")
	}
	if workspaceCount(t, cfg.Paths.WorkDir) != 0 {
		t.Fatal("expected workspace removed after failure")
	}
}

func TestProcessChunkFailureAbortsWholeRequest(t *testing.T) {
	transcriber := &fakeTranscriber{
		byBase: map[string]string{"chunk_0000.wav": "part one"},
		failOn: "chunk_0001.wav",
	}
	p, store, cfg := newTestPipeline(t, &fakeTranscoder{segments: 3}, fakeProber{duration: 900}, transcriber)

	_, err := p.Process(context.Background(), upload("long.wav", "riff"))
	if !errors.Is(err, services.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !strings.Contains(err.Error(), "chunk 1 of 3") {
		t.Fatalf("expected the failing chunk index in the error, got %v", err)
	}
	// No partial transcript may survive a mid-run failure.
	summaries, listErr := store.List(context.Background())
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(summaries) != 0 {
		t.Fatal("expected all-or-nothing behavior")
	}
	if workspaceCount(t, cfg.Paths.WorkDir) != 0 {
		t.Fatal("expected workspace removed after failure")
	}
}

func TestProcessEmptyTranscriptionSucceedsWithoutPersisting(t *testing.T) {
	transcriber := &fakeTranscriber{byBase: map[string]string{}}
	p, store, _ := newTestPipeline(t, &fakeTranscoder{}, fakeProber{duration: 30}, transcriber)

	result, err := p.Process(context.Background(), upload("silence.wav", "riff"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Persisted() {
		t.Fatal("expected no persistence for empty transcription")
	}
	if result.Text != "" {
		t.Fatalf("expected empty text, got %q", result.Text)
	}
	summaries, _ := store.List(context.Background())
	if len(summaries) != 0 {
		t.Fatal("expected no stored transcripts")
	}
}

func TestProcessSanitizesStoredFilename(t *testing.T) {
	transcriber := &fakeTranscriber{byBase: map[string]string{"normalized.wav": "text"}}
	p, store, _ := newTestPipeline(t, &fakeTranscoder{}, fakeProber{duration: 10}, transcriber)

	result, err := p.Process(context.Background(), upload("../sneaky path.wav", "riff"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	stored, err := store.Get(context.Background(), result.TranscriptID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.ContainsAny(stored.Filename, "/\\ ") {
		t.Fatalf("expected sanitized filename, got %q", stored.Filename)
	}
}

func TestProcessRejectsOversizeStreamAfterWrite(t *testing.T) {
	transcoder := &fakeTranscoder{}
	p, store, cfg := newTestPipeline(t, transcoder, fakeProber{duration: 10}, &fakeTranscriber{},
		testsupport.WithMaxFileMiB(1))

	oversized := filepath.Join(t.TempDir(), "lecture.wav")
	testsupport.WriteFile(t, oversized, cfg.MaxFileBytes()+1)
	f, err := os.Open(oversized)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()

	// The declared size understates the stream; the limit is enforced again
	// after the upload is written out.
	_, err = p.Process(context.Background(), Upload{Filename: "lecture.wav", Size: 1024, Reader: f})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) || uploadErr.ErrCode != CodeTooLarge {
		t.Fatalf("expected %s code, got %v", CodeTooLarge, err)
	}
	if transcoder.convertDone {
		t.Fatal("conversion should not run for oversize uploads")
	}
	summaries, _ := store.List(context.Background())
	if len(summaries) != 0 {
		t.Fatal("expected no stored transcripts")
	}
	if workspaceCount(t, cfg.Paths.WorkDir) != 0 {
		t.Fatal("expected workspace removed after rejection")
	}
}

func TestProberMissingBinaryIsConfigurationError(t *testing.T) {
	for _, binary := range []string{
		filepath.Join(t.TempDir(), "ffprobe"),
		"lectern-missing-ffprobe",
	} {
		_, err := FFprobeProber{Binary: binary}.Duration(context.Background(), "normalized.wav")
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("binary %q: expected configuration error, got %v", binary, err)
		}
		if got := services.HTTPStatus(err); got != http.StatusInternalServerError {
			t.Fatalf("binary %q: expected status 500, got %d", binary, got)
		}
		if code := services.Code(err); code != "CONFIGURATION_ERROR" {
			t.Fatalf("binary %q: unexpected code %q", binary, code)
		}
	}
}

func TestProberToolFailureIsConversionError(t *testing.T) {
	// The stub exits 0 without output, so the probe fails at JSON decode.
	testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffprobe"))

	_, err := FFprobeProber{}.Duration(context.Background(), "normalized.wav")
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("expected conversion error, got %v", err)
	}
}

func TestProberReadsDurationFromProbeOutput(t *testing.T) {
	testsupport.NewConfig(t, testsupport.WithStubbedBinary("ffprobe", `#!/bin/sh
echo '{"streams":[{"codec_type":"audio","codec_name":"pcm_s16le"}],"format":{"duration":"421.5"}}'
`))

	duration, err := FFprobeProber{}.Duration(context.Background(), "normalized.wav")
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if duration != 421.5 {
		t.Fatalf("unexpected duration: %v", duration)
	}
}

func TestProberRejectsOutputWithoutAudioStream(t *testing.T) {
	testsupport.NewConfig(t, testsupport.WithStubbedBinary("ffprobe", `#!/bin/sh
echo '{"streams":[{"codec_type":"video"}],"format":{"duration":"12.0"}}'
`))

	_, err := FFprobeProber{}.Duration(context.Background(), "normalized.wav")
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("expected conversion error, got %v", err)
	}
	if !strings.Contains(err.Error(), "no audio stream") {
		t.Fatalf("expected missing-stream detail, got %v", err)
	}
}

// Package pipeline orchestrates the transcription flow: upload validation,
// workspace management, audio normalization, segmentation, ordered backend
// transcription, and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"lectern/internal/config"
	"lectern/internal/fileutil"
	"lectern/internal/logging"
	"lectern/internal/media/ffprobe"
	"lectern/internal/services"
	"lectern/internal/services/whisper"
	"lectern/internal/transcripts"
)

// Transcoder normalizes and segments audio. The ffmpeg implementation lives
// in media/ffmpeg; tests substitute fakes.
type Transcoder interface {
	Convert(ctx context.Context, src, dst string) error
	Segment(ctx context.Context, src, dir string, chunkSeconds int) ([]string, error)
}

// Prober reports the duration of an audio file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FFprobeProber implements Prober on top of the ffprobe binary.
type FFprobeProber struct {
	Binary string
}

// Duration inspects path and returns the container duration.
func (p FFprobeProber) Duration(ctx context.Context, path string) (float64, error) {
	result, err := ffprobe.Inspect(ctx, p.Binary, path)
	if err != nil {
		// A missing ffprobe binary is an operator problem, not a bad upload.
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return 0, services.Wrap(services.ErrConfiguration, "pipeline", "probe",
				fmt.Sprintf("%s binary not found", p.binaryName()), err)
		}
		return 0, services.Wrap(services.ErrConversion, "pipeline", "probe", "inspect normalized audio", err)
	}
	if result.AudioStreamCount() == 0 {
		return 0, services.Wrap(services.ErrConversion, "pipeline", "probe",
			"normalized output carries no audio stream", nil)
	}
	return result.DurationSeconds(), nil
}

func (p FFprobeProber) binaryName() string {
	if name := strings.TrimSpace(p.Binary); name != "" {
		return name
	}
	return "ffprobe"
}

// Upload is an incoming audio file to transcribe.
type Upload struct {
	Filename string
	Size     int64
	Reader   io.Reader
}

// Result is the outcome of a successful pipeline run. TranscriptID is zero
// when the audio produced no speech and nothing was persisted.
type Result struct {
	TranscriptID    int64
	Text            string
	Filename        string
	Chunks          int
	DurationSeconds float64
}

// Persisted reports whether the run stored a transcript.
func (r *Result) Persisted() bool { return r.TranscriptID != 0 }

// Pipeline wires the transcription stages together.
type Pipeline struct {
	cfg         *config.Config
	transcoder  Transcoder
	prober      Prober
	transcriber whisper.Transcriber
	store       *transcripts.Store
	logger      *slog.Logger
}

// New assembles a Pipeline from its stages.
func New(cfg *config.Config, transcoder Transcoder, prober Prober, transcriber whisper.Transcriber, store *transcripts.Store, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		transcoder:  transcoder,
		prober:      prober,
		transcriber: transcriber,
		store:       store,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Process runs one upload through the full pipeline. The workspace is removed
// before return on both success and failure; only the database row survives.
func (p *Pipeline) Process(ctx context.Context, upload Upload) (*Result, error) {
	started := time.Now()
	log := logging.WithContext(ctx, p.logger)

	if err := ValidateUpload(p.cfg, upload.Filename, upload.Size); err != nil {
		return nil, err
	}

	ws, err := NewWorkspace(p.cfg.Paths.WorkDir)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "pipeline", "workspace", "create request workspace", err)
	}
	defer func() {
		if cleanupErr := ws.Cleanup(); cleanupErr != nil {
			log.Warn("workspace cleanup failed",
				logging.String("workspace", ws.Root()),
				logging.Error(cleanupErr),
			)
		}
	}()

	safeName := fileutil.SanitizeFilename(upload.Filename)
	sourcePath := ws.Path("source" + filepath.Ext(safeName))
	written, err := fileutil.WriteReader(sourcePath, upload.Reader)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "pipeline", "receive", "store uploaded audio", err)
	}
	if written > p.cfg.MaxFileBytes() {
		return nil, rejectUpload(CodeTooLarge, "file exceeds the upload limit")
	}

	normalizedPath := ws.Path("normalized.wav")
	if err := p.transcoder.Convert(ctx, sourcePath, normalizedPath); err != nil {
		return nil, err
	}

	duration, err := p.prober.Duration(ctx, normalizedPath)
	if err != nil {
		return nil, err
	}

	chunkSeconds := p.cfg.Segmenter.ChunkSeconds
	var chunkPaths []string
	if duration > float64(chunkSeconds) {
		chunkDir, err := ws.MkdirAll("chunks")
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "pipeline", "segment", "create chunk directory", err)
		}
		chunkPaths, err = p.transcoder.Segment(ctx, normalizedPath, chunkDir, chunkSeconds)
		if err != nil {
			return nil, err
		}
	} else {
		// Short recordings skip segmentation entirely.
		chunkPaths = []string{normalizedPath}
	}

	log.Info("transcribing audio",
		logging.String("filename", safeName),
		logging.Float64("duration_seconds", duration),
		logging.Int("chunks", len(chunkPaths)),
	)

	fragments := make([]string, 0, len(chunkPaths))
	for i, chunkPath := range chunkPaths {
		fragment, err := p.transcriber.Transcribe(ctx, chunkPath)
		if err != nil {
			return nil, services.Wrap(services.ErrBackend, "pipeline", "transcribe",
				fmt.Sprintf("chunk %d of %d failed", i, len(chunkPaths)), err)
		}
		fragments = append(fragments, fragment)
	}

	text := strings.TrimSpace(strings.Join(fragments, "\n"))

	result := &Result{
		Text:            text,
		Filename:        safeName,
		Chunks:          len(chunkPaths),
		DurationSeconds: duration,
	}

	if text == "" {
		log.Info("transcription produced no speech, skipping persistence",
			logging.String("filename", safeName),
		)
		return result, nil
	}

	id, err := p.store.Insert(ctx, text, safeName)
	if err != nil {
		return nil, err
	}
	result.TranscriptID = id

	log.Info("transcript stored",
		logging.Int64(logging.FieldTranscriptID, id),
		logging.Int("text_bytes", len(text)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Whisper.APIKey = "test"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMaxFileMiB overrides the upload size limit on the test config.
func WithMaxFileMiB(mib int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.MaxFileMiB = mib
	}
}

// WithChunkSeconds overrides the segmenter chunk duration on the test config.
func WithChunkSeconds(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Segmenter.ChunkSeconds = seconds
	}
}

// WithStubbedBinaries writes no-op stub executables for the provided names
// and prepends them to PATH. If names is empty, ffmpeg and ffprobe are
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		for _, name := range names {
			b.installStub(name, "#!/bin/sh\nexit 0\n")
		}
	}
}

// WithStubbedBinary installs a stub executable with the given script body and
// prepends its directory to PATH.
func WithStubbedBinary(name, script string) ConfigOption {
	return func(b *configBuilder) {
		b.installStub(name, script)
	}
}

func (b *configBuilder) installStub(name, script string) {
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		b.t.Fatalf("write stub %s: %v", name, err)
	}

	oldPath := os.Getenv("PATH")
	if strings.HasPrefix(oldPath, binDir+string(os.PathListSeparator)) {
		return
	}
	if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
		b.t.Fatalf("set PATH: %v", err)
	}
	b.t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

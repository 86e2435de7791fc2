// Package fileutil provides small filesystem helpers shared across the
// pipeline: streaming writes for uploads and filename sanitization.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriteReader streams r to path, creating parent directories as needed.
// Returns the number of bytes written.
func WriteReader(path string, r io.Reader) (int64, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	written, err := io.Copy(out, r)
	if err != nil {
		return written, err
	}
	return written, out.Close()
}

// SanitizeFilename reduces an untrusted upload filename to a safe base name.
// Any path components are stripped, the extension is preserved in lowercase,
// and remaining characters outside [a-z0-9-_] become underscores. Returns
// "upload" plus the extension when nothing survives.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(filepath.ToSlash(name))
	if name == "." || name == ".." || name == "/" {
		name = ""
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "." {
		ext = ""
	}
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	cleaned := strings.Trim(b.String(), "._")
	if cleaned == "" {
		cleaned = "upload"
	}
	return cleaned + ext
}

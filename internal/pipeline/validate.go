package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"lectern/internal/config"
	"lectern/internal/services"
)

// Upload error codes surfaced to API clients.
const (
	CodeEmptyFilename       = "EMPTY_FILENAME"
	CodeDisallowedExtension = "DISALLOWED_EXTENSION"
	CodeTooLarge            = "TOO_LARGE"
)

// UploadError describes a rejected upload with a stable machine-readable code.
type UploadError struct {
	ErrCode string
	Message string
}

func (e *UploadError) Error() string { return e.Message }

// Code returns the stable rejection code.
func (e *UploadError) Code() string { return e.ErrCode }

func rejectUpload(code, message string) error {
	return services.Wrap(services.ErrValidation, "pipeline", "validate upload", message,
		&UploadError{ErrCode: code, Message: message})
}

// ValidateUpload checks an upload's filename, extension, and declared size
// against configured limits before any disk or backend work happens.
func ValidateUpload(cfg *config.Config, filename string, size int64) error {
	trimmed := strings.TrimSpace(filename)
	if trimmed == "" {
		return rejectUpload(CodeEmptyFilename, "upload filename is empty")
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(trimmed)), ".")
	if ext == "" || !cfg.ExtensionAllowed(ext) {
		return rejectUpload(CodeDisallowedExtension,
			fmt.Sprintf("file extension %q is not an accepted audio format", ext))
	}

	if size > cfg.MaxFileBytes() {
		return rejectUpload(CodeTooLarge,
			fmt.Sprintf("file exceeds the %d MiB upload limit", cfg.Upload.MaxFileMiB))
	}

	return nil
}

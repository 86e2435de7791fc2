package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConversion    = errors.New("conversion error")
	ErrConfiguration = errors.New("configuration error")
	ErrBackend       = errors.New("backend error")
	ErrSchema        = errors.New("schema error")
	ErrNotFound      = errors.New("not found")
	ErrStorage       = errors.New("storage error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later status classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrBackend
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// HTTPStatus maps a pipeline error to the HTTP status code the API server
// should return. Client-caused failures map to 4xx, everything else to 5xx.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConversion):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable reason code for an error. Errors
// carrying their own code (upload rejections) take precedence over the
// taxonomy-level default.
func Code(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_FAILED"
	case errors.Is(err, ErrConversion):
		return "CONVERSION_FAILED"
	case errors.Is(err, ErrConfiguration):
		return "CONFIGURATION_ERROR"
	case errors.Is(err, ErrSchema):
		return "SCHEMA_PARSE_FAILED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrStorage):
		return "STORAGE_UNAVAILABLE"
	default:
		return "BACKEND_FAILED"
	}
}

// Redacted reports whether the error's internal detail should be hidden from
// API clients. Configuration and backend failures may carry process stderr or
// provider response snippets that belong in logs, not responses.
func Redacted(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrBackend) || errors.Is(err, ErrStorage)
}

// ClientMessage returns the message to surface to API clients: the full error
// text for client-caused failures, a generic summary for redacted kinds.
func ClientMessage(err error) string {
	if err == nil {
		return ""
	}
	if !Redacted(err) {
		return err.Error()
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return "server configuration error"
	case errors.Is(err, ErrStorage):
		return "storage unavailable"
	default:
		return "backend request failed"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

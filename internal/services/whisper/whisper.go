// Package whisper provides the transcription backend client. Audio handed to
// Transcribe must already be normalized; the backend is treated as a black box
// that maps one audio file to one text fragment.
package whisper

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"lectern/internal/config"
	"lectern/internal/services"
)

// Transcriber converts a single audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Client is a Transcriber backed by an OpenAI-compatible audio API.
type Client struct {
	api   openai.Client
	model string
}

// NewClient builds a transcription client from configuration.
func NewClient(cfg config.Whisper) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "whisper", "new",
			"transcription API key is not configured", nil)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(cfg.BaseURL))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "whisper-1"
	}

	return &Client{
		api:   openai.NewClient(requestOpts...),
		model: model,
	}, nil
}

// Transcribe sends the audio file at path to the backend and returns the
// transcribed text. An empty transcript is a valid result for silent audio.
func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrBackend, "whisper", "transcribe", "open audio file", err)
	}
	defer file.Close()

	response, err := c.api.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:           file,
		Model:          openai.AudioModel(c.model),
		ResponseFormat: openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", services.Wrap(services.ErrBackend, "whisper", "transcribe", "transcription request failed", err)
	}
	if response == nil {
		return "", services.Wrap(services.ErrBackend, "whisper", "transcribe", "transcription returned no response", nil)
	}

	return strings.TrimSpace(response.Text), nil
}

// Package serverctl is the HTTP client the CLI uses to drive a running
// lectern daemon.
package serverctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lectern/internal/api"
)

// HTTPDoer describes the HTTP client used to reach the daemon.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL string
	http    HTTPDoer
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// New builds a client for the daemon listening at bind. A bare host:port is
// promoted to an http URL.
func New(bind string, opts ...Option) *Client {
	base := strings.TrimSpace(bind)
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	c := &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 15 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daemon returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Transcribe uploads the audio file at path and returns the daemon's
// transcription response.
func (c *Client) Transcribe(ctx context.Context, path string) (*api.TranscribeResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", pr)
	if err != nil {
		return nil, fmt.Errorf("build transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out api.TranscribeResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transcripts lists stored transcripts, newest first.
func (c *Client) Transcripts(ctx context.Context) ([]api.TranscriptSummary, error) {
	var out []api.TranscriptSummary
	if err := c.get(ctx, "/transcripts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Transcript fetches one transcript including its full text.
func (c *Client) Transcript(ctx context.Context, id int64) (*api.TranscriptDetail, error) {
	var out api.TranscriptDetail
	if err := c.get(ctx, fmt.Sprintf("/transcript/%d", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a transcript; the returned flag reports whether a row
// existed.
func (c *Client) Delete(ctx context.Context, id int64) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/transcript/%d", c.baseURL, id), nil)
	if err != nil {
		return false, fmt.Errorf("build delete request: %w", err)
	}
	var out api.DeleteResponse
	if err := c.do(req, &out); err != nil {
		return false, err
	}
	return out.Deleted, nil
}

// DeleteAll clears every transcript and returns the removed count.
func (c *Client) DeleteAll(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/transcripts", nil)
	if err != nil {
		return 0, fmt.Errorf("build clear request: %w", err)
	}
	var out api.DeleteAllResponse
	if err := c.do(req, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// GenerateContent derives a study document of the given kind (empty for the
// default) from a stored transcript.
func (c *Client) GenerateContent(ctx context.Context, id int64, kind string) (*api.GenerateContentResponse, error) {
	url := fmt.Sprintf("%s/generate_content/%d", c.baseURL, id)
	if kind = strings.TrimSpace(kind); kind != "" {
		url += "?kind=" + kind
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	var out api.GenerateContentResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Content lists stored derived documents for a transcript, newest first.
// Kind narrows the listing to one document kind when non-empty.
func (c *Client) Content(ctx context.Context, id int64, kind string) ([]api.StudyDocument, error) {
	path := fmt.Sprintf("/content/%d", id)
	if kind = strings.TrimSpace(kind); kind != "" {
		path += "?kind=" + kind
	}
	var out []api.StudyDocument
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LatestContent fetches the most recent derived document for a transcript,
// optionally narrowed to one kind.
func (c *Client) LatestContent(ctx context.Context, id int64, kind string) (*api.StudyDocument, error) {
	path := fmt.Sprintf("/content/%d?latest=true", id)
	if kind = strings.TrimSpace(kind); kind != "" {
		path += "&kind=" + kind
	}
	var out api.StudyDocument
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches daemon health information. Deep additionally probes the
// generative backend.
func (c *Client) Status(ctx context.Context, deep bool) (*api.StatusResponse, error) {
	path := "/status"
	if deep {
		path += "?deep=true"
	}
	var out api.StatusResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		var body api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr == nil && body.Error != "" {
			apiErr.Message = body.Error
			apiErr.Code = body.Code
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

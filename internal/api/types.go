// Package api defines the JSON payloads exchanged between the daemon's HTTP
// surface and its clients.
package api

import (
	"encoding/json"
	"time"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// TranscribeResponse reports the outcome of an upload. TranscriptID is null
// when the audio produced no speech and nothing was persisted.
type TranscribeResponse struct {
	Transcription string `json:"transcription"`
	TranscriptID  *int64 `json:"transcript_id"`
}

// TranscriptSummary is one row of the transcript listing.
type TranscriptSummary struct {
	ID                int64     `json:"id"`
	Text              string    `json:"text"`
	Filename          string    `json:"filename"`
	CreatedAt         time.Time `json:"created_at"`
	HasDerivedContent bool      `json:"has_derived_content"`
}

// TranscriptDetail is a single stored transcript including its text.
type TranscriptDetail struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// DeleteResponse reports whether a single-transcript delete removed a row.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// DeleteAllResponse reports how many transcripts a clear removed.
type DeleteAllResponse struct {
	Deleted int64 `json:"deleted"`
}

// GenerateContentResponse carries a freshly generated study document. Content
// holds the exact bytes that were persisted.
type GenerateContentResponse struct {
	TranscriptID int64           `json:"transcript_id"`
	Kind         string          `json:"kind"`
	Content      json.RawMessage `json:"content"`
}

// StudyDocument is one stored derived document for a transcript.
type StudyDocument struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	Content   json.RawMessage `json:"content"`
}

// StatusResponse summarizes daemon health for clients. LLMHealthy is only
// populated when the caller requested a deep status probe.
type StatusResponse struct {
	Running        bool   `json:"running"`
	DatabasePath   string `json:"database_path"`
	LockFilePath   string `json:"lock_file_path"`
	StorageHealthy bool   `json:"storage_healthy"`
	StorageError   string `json:"storage_error,omitempty"`
	WhisperModel   string `json:"whisper_model"`
	LLMModel       string `json:"llm_model"`
	LLMHealthy     *bool  `json:"llm_healthy,omitempty"`
	LLMError       string `json:"llm_error,omitempty"`
}

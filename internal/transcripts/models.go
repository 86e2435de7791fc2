package transcripts

import (
	"encoding/json"
	"time"
)

// Transcript is a persisted transcription result.
type Transcript struct {
	ID        int64
	Text      string
	Filename  string
	CreatedAt time.Time
}

// Summary is the listing projection of a transcript. HasStudyContent reports
// whether any derived document exists for the transcript.
type Summary struct {
	ID              int64
	Text            string
	Filename        string
	CreatedAt       time.Time
	HasStudyContent bool
}

// StudyDocument is a generated document (mini-lecture or quiz) derived from a
// transcript. Document holds the validated JSON payload.
type StudyDocument struct {
	ID           int64
	TranscriptID int64
	Kind         string
	Document     json.RawMessage
	CreatedAt    time.Time
}

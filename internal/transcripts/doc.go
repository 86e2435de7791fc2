// Package transcripts persists transcription results and their derived study
// documents in SQLite.
//
// The store owns schema creation and versioning, applies WAL journaling with
// foreign keys enabled, and retries on transient SQLITE_BUSY errors. Derived
// documents cascade-delete with their parent transcript.
package transcripts

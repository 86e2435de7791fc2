package testsupport

import (
	"context"
	"testing"

	"lectern/internal/config"
	"lectern/internal/transcripts"
)

// MustOpenStore opens a transcripts.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *transcripts.Store {
	t.Helper()

	store, err := transcripts.Open(cfg)
	if err != nil {
		t.Fatalf("transcripts.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTranscript inserts a transcript for tests using the provided store.
func NewTranscript(t testing.TB, store *transcripts.Store, text, filename string) int64 {
	t.Helper()

	id, err := store.Insert(context.Background(), text, filename)
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return id
}

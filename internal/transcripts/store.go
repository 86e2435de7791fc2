package transcripts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lectern/internal/config"
	"lectern/internal/services"
)

// Store manages transcript persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the transcript database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath initializes or connects to the transcript database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// CheckHealth verifies the database responds to a trivial query.
func (s *Store) CheckHealth(ctx context.Context) error {
	ctx = ensureContext(ctx)
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return services.Wrap(services.ErrStorage, "transcripts", "health", "database unavailable", err)
	}
	return nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// Insert stores a transcript and returns its identifier.
func (s *Store) Insert(ctx context.Context, text, filename string) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"INSERT INTO transcripts (text, filename, created_at) VALUES (?, ?, ?)",
		text, filename, timestamp(),
	)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "transcripts", "insert", "persist transcript", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "transcripts", "insert", "read insert id", err)
	}
	return id, nil
}

// Get returns a transcript by id, including its text.
func (s *Store) Get(ctx context.Context, id int64) (*Transcript, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		"SELECT id, text, filename, created_at FROM transcripts WHERE id = ?", id)

	var (
		t       Transcript
		created string
	)
	if err := row.Scan(&t.ID, &t.Text, &t.Filename, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrNotFound, "transcripts", "get",
				fmt.Sprintf("transcript %d not found", id), nil)
		}
		return nil, services.Wrap(services.ErrStorage, "transcripts", "get", "query transcript", err)
	}
	t.CreatedAt = parseTimestamp(created)
	return &t, nil
}

// List returns transcript summaries, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.text, t.filename, t.created_at,
		       COUNT(d.id) > 0 AS has_study_content
		FROM transcripts t
		LEFT JOIN study_documents d ON d.transcript_id = t.id
		GROUP BY t.id
		ORDER BY t.id DESC`)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "transcripts", "list", "query transcripts", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var (
			summary Summary
			created string
		)
		if err := rows.Scan(&summary.ID, &summary.Text, &summary.Filename, &created, &summary.HasStudyContent); err != nil {
			return nil, services.Wrap(services.ErrStorage, "transcripts", "list", "scan row", err)
		}
		summary.CreatedAt = parseTimestamp(created)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrStorage, "transcripts", "list", "iterate rows", err)
	}
	return summaries, nil
}

// Delete removes a transcript and, via cascade, its derived documents. The
// operation is idempotent: deleting an unknown id is not an error, and the
// returned flag reports whether a row was actually removed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM transcripts WHERE id = ?", id)
	if err != nil {
		return false, services.Wrap(services.ErrStorage, "transcripts", "delete", "delete transcript", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, services.Wrap(services.ErrStorage, "transcripts", "delete", "read affected rows", err)
	}
	return affected > 0, nil
}

// DeleteAll removes every transcript and derived document, returning the
// number of transcripts removed.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM transcripts")
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "transcripts", "delete_all", "clear transcripts", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "transcripts", "delete_all", "read affected rows", err)
	}
	return affected, nil
}

// InsertDocument stores a derived document for a transcript. The transcript
// must exist; a missing parent surfaces as a not found error.
func (s *Store) InsertDocument(ctx context.Context, transcriptID int64, kind string, document json.RawMessage) (int64, error) {
	if _, err := s.Get(ctx, transcriptID); err != nil {
		return 0, err
	}
	res, err := s.execWithRetry(ctx,
		"INSERT INTO study_documents (transcript_id, kind, document, created_at) VALUES (?, ?, ?, ?)",
		transcriptID, kind, string(document), timestamp(),
	)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "transcripts", "insert_document", "persist document", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "transcripts", "insert_document", "read insert id", err)
	}
	return id, nil
}

// DocumentsByTranscript returns derived documents for a transcript, newest
// first. Kind filters to a single document kind when non-empty.
func (s *Store) DocumentsByTranscript(ctx context.Context, transcriptID int64, kind string) ([]StudyDocument, error) {
	ctx = ensureContext(ctx)

	query := "SELECT id, transcript_id, kind, document, created_at FROM study_documents WHERE transcript_id = ?"
	args := []any{transcriptID}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "transcripts", "documents", "query documents", err)
	}
	defer rows.Close()

	var docs []StudyDocument
	for rows.Next() {
		var (
			doc     StudyDocument
			payload string
			created string
		)
		if err := rows.Scan(&doc.ID, &doc.TranscriptID, &doc.Kind, &payload, &created); err != nil {
			return nil, services.Wrap(services.ErrStorage, "transcripts", "documents", "scan row", err)
		}
		doc.Document = json.RawMessage(payload)
		doc.CreatedAt = parseTimestamp(created)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrStorage, "transcripts", "documents", "iterate rows", err)
	}
	return docs, nil
}

// LatestDocument returns the most recent derived document of the given kind
// for a transcript.
func (s *Store) LatestDocument(ctx context.Context, transcriptID int64, kind string) (*StudyDocument, error) {
	docs, err := s.DocumentsByTranscript(ctx, transcriptID, kind)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "transcripts", "latest_document",
			fmt.Sprintf("no %s content for transcript %d", kind, transcriptID), nil)
	}
	return &docs[0], nil
}

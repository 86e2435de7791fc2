package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/api"
	"lectern/internal/pipeline"
	"lectern/internal/studycontent"
	"lectern/internal/testsupport"
	"lectern/internal/transcripts"
)

type fakeTranscoder struct{}

func (fakeTranscoder) Convert(_ context.Context, src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func (fakeTranscoder) Segment(_ context.Context, _ string, dir string, _ int) ([]string, error) {
	paths := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		path := filepath.Join(dir, fmt.Sprintf("chunk_%04d.wav", i))
		if err := os.WriteFile(path, []byte("riff"), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

type fakeProber struct {
	duration float64
}

func (f fakeProber) Duration(context.Context, string) (float64, error) {
	return f.duration, nil
}

type fakeTranscriber struct {
	text string
}

func (f fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, nil
}

type stubCompleter struct {
	content   string
	healthErr error
}

func (s stubCompleter) CompleteJSON(context.Context, string, string) (string, error) {
	return s.content, nil
}

func (s stubCompleter) HealthCheck(context.Context) error {
	return s.healthErr
}

const miniLectureJSON = `{
  "abstract": "Covers cellular respiration end to end.",
  "key_topics": [
    {"topic": "Glycolysis", "definition": "The splitting of glucose.", "insights": ["Occurs in the cytoplasm."]}
  ],
  "mcqs": [
    {
      "question": "Where does glycolysis occur?",
      "options": {"A": "Cytoplasm", "B": "Nucleus", "C": "Mitochondria", "D": "Ribosome"},
      "correct_answer": "A",
      "explanation": "Glycolysis happens in the cytoplasm."
    }
  ]
}`

type testServer struct {
	daemon *Daemon
	store  *transcripts.Store
	base   string
}

func newTestServer(t *testing.T, prober fakeProber, transcriber fakeTranscriber, completer stubCompleter) *testServer {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	pipe := pipeline.New(cfg, fakeTranscoder{}, prober, transcriber, store, nil)
	generator := studycontent.NewGenerator(completer, nil)

	d, err := New(cfg, store, pipe, generator, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	return &testServer{daemon: d, store: store, base: "http://" + d.Addr()}
}

func (ts *testServer) uploadAudio(t *testing.T, filename, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	resp, err := http.Post(ts.base+"/transcribe", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post transcribe: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestTranscribeAndListEndToEnd(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 90}, fakeTranscriber{text: "hello world"}, stubCompleter{})

	resp := ts.uploadAudio(t, "lecture.wav", "riff data")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	result := decodeBody[api.TranscribeResponse](t, resp)
	if result.Transcription != "hello world" {
		t.Fatalf("unexpected transcription: %q", result.Transcription)
	}
	if result.TranscriptID == nil {
		t.Fatal("expected a transcript id")
	}

	listResp := doRequest(t, http.MethodGet, ts.base+"/transcripts")
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", listResp.StatusCode)
	}
	summaries := decodeBody[[]api.TranscriptSummary](t, listResp)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 transcript, got %d", len(summaries))
	}
	if summaries[0].ID != *result.TranscriptID {
		t.Fatalf("listing id mismatch: %d vs %d", summaries[0].ID, *result.TranscriptID)
	}
	if summaries[0].Text != "hello world" {
		t.Fatalf("listing text mismatch: %q", summaries[0].Text)
	}
	if summaries[0].HasDerivedContent {
		t.Fatal("fresh transcript should have no derived content")
	}
}

func TestTranscribeLongRecordingJoinsChunks(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 480}, fakeTranscriber{text: "segment text"}, stubCompleter{})

	resp := ts.uploadAudio(t, "lecture.mp3", "riff data")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	result := decodeBody[api.TranscribeResponse](t, resp)
	if result.Transcription != "segment text\nsegment text" {
		t.Fatalf("unexpected joined transcription: %q", result.Transcription)
	}
}

func TestTranscribeSilentAudioReturnsNullID(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: ""}, stubCompleter{})

	resp := ts.uploadAudio(t, "silence.wav", "riff")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	result := decodeBody[api.TranscribeResponse](t, resp)
	if result.TranscriptID != nil {
		t.Fatalf("expected null transcript id, got %d", *result.TranscriptID)
	}
	if result.Transcription != "" {
		t.Fatalf("expected empty transcription, got %q", result.Transcription)
	}
}

func TestTranscribeRejectsDisallowedExtension(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{})

	resp := ts.uploadAudio(t, "talk.mp4", "data")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	errBody := decodeBody[api.ErrorResponse](t, resp)
	if errBody.Code != pipeline.CodeDisallowedExtension {
		t.Fatalf("unexpected code: %q", errBody.Code)
	}
}

func TestTranscribeRequiresFileField(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{})

	resp, err := http.Post(ts.base+"/transcribe", "multipart/form-data; boundary=xyz", strings.NewReader("--xyz--\r\n"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	errBody := decodeBody[api.ErrorResponse](t, resp)
	if errBody.Code != "VALIDATION_FAILED" {
		t.Fatalf("unexpected code: %q", errBody.Code)
	}
}

func TestGenerateContentRoundTrip(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{content: miniLectureJSON})

	id := testsupport.NewTranscript(t, ts.store, "lecture transcript", "lecture.wav")

	resp := doRequest(t, http.MethodPost, fmt.Sprintf("%s/generate_content/%d", ts.base, id))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	generated := decodeBody[api.GenerateContentResponse](t, resp)
	if generated.Kind != studycontent.KindMiniLecture {
		t.Fatalf("unexpected kind: %q", generated.Kind)
	}
	if generated.TranscriptID != id {
		t.Fatalf("unexpected transcript id: %d", generated.TranscriptID)
	}

	contentResp := doRequest(t, http.MethodGet, fmt.Sprintf("%s/content/%d", ts.base, id))
	if contentResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", contentResp.StatusCode)
	}
	docs := decodeBody[[]api.StudyDocument](t, contentResp)
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	// Stored payload and generation response must be byte-identical.
	if !bytes.Equal(docs[0].Content, generated.Content) {
		t.Fatalf("round-trip mismatch:\nstored:   %s\nreturned: %s", docs[0].Content, generated.Content)
	}

	listResp := doRequest(t, http.MethodGet, ts.base+"/transcripts")
	summaries := decodeBody[[]api.TranscriptSummary](t, listResp)
	if len(summaries) != 1 || !summaries[0].HasDerivedContent {
		t.Fatalf("expected derived-content flag set, got %+v", summaries)
	}
}

func TestContentLatestReturnsNewestDocument(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{})

	id := testsupport.NewTranscript(t, ts.store, "text", "a.wav")
	if _, err := ts.store.InsertDocument(context.Background(), id, "quiz", []byte(`{"questions":["old"]}`)); err != nil {
		t.Fatalf("insert first document: %v", err)
	}
	if _, err := ts.store.InsertDocument(context.Background(), id, "quiz", []byte(`{"questions":["new"]}`)); err != nil {
		t.Fatalf("insert second document: %v", err)
	}

	resp := doRequest(t, http.MethodGet, fmt.Sprintf("%s/content/%d?latest=true&kind=quiz", ts.base, id))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	doc := decodeBody[api.StudyDocument](t, resp)
	if doc.Kind != "quiz" {
		t.Fatalf("unexpected kind: %q", doc.Kind)
	}
	if !strings.Contains(string(doc.Content), "new") {
		t.Fatalf("expected newest document, got %s", doc.Content)
	}
}

func TestContentLatestWithoutDocumentsIs404(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{})

	id := testsupport.NewTranscript(t, ts.store, "text", "a.wav")
	resp := doRequest(t, http.MethodGet, fmt.Sprintf("%s/content/%d?latest=true", ts.base, id))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGenerateContentUnknownTranscript(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{content: miniLectureJSON})

	resp := doRequest(t, http.MethodPost, ts.base+"/generate_content/999")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	errBody := decodeBody[api.ErrorResponse](t, resp)
	if errBody.Code != "NOT_FOUND" {
		t.Fatalf("unexpected code: %q", errBody.Code)
	}
}

func TestGenerateContentRejectsUnknownKind(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{content: miniLectureJSON})

	id := testsupport.NewTranscript(t, ts.store, "text", "a.wav")
	resp := doRequest(t, http.MethodPost, fmt.Sprintf("%s/generate_content/%d?kind=flashcards", ts.base, id))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDeleteTranscriptIsIdempotent(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{})

	id := testsupport.NewTranscript(t, ts.store, "text", "a.wav")

	resp := doRequest(t, http.MethodDelete, fmt.Sprintf("%s/transcript/%d", ts.base, id))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if deleted := decodeBody[api.DeleteResponse](t, resp); !deleted.Deleted {
		t.Fatal("expected first delete to remove the transcript")
	}

	resp = doRequest(t, http.MethodDelete, fmt.Sprintf("%s/transcript/%d", ts.base, id))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on repeat delete, got %d", resp.StatusCode)
	}
	if deleted := decodeBody[api.DeleteResponse](t, resp); deleted.Deleted {
		t.Fatal("expected repeat delete to be a no-op")
	}
}

func TestDeleteAllTranscripts(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{})

	for i := 0; i < 3; i++ {
		testsupport.NewTranscript(t, ts.store, "text", "a.wav")
	}

	resp := doRequest(t, http.MethodDelete, ts.base+"/transcripts")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cleared := decodeBody[api.DeleteAllResponse](t, resp); cleared.Deleted != 3 {
		t.Fatalf("expected 3 deleted, got %d", cleared.Deleted)
	}
}

func TestStatusReportsHealthyStore(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{})

	resp := doRequest(t, http.MethodGet, ts.base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	status := decodeBody[api.StatusResponse](t, resp)
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if !status.StorageHealthy {
		t.Fatalf("expected healthy storage, got error %q", status.StorageError)
	}
	if status.LockFilePath == "" || status.DatabasePath == "" {
		t.Fatalf("expected populated paths, got %+v", status)
	}
	if status.LLMHealthy != nil {
		t.Fatal("expected no backend probe without deep=true")
	}
}

func TestStatusDeepProbesGenerativeBackend(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{})

	resp := doRequest(t, http.MethodGet, ts.base+"/status?deep=true")
	status := decodeBody[api.StatusResponse](t, resp)
	if status.LLMHealthy == nil || !*status.LLMHealthy {
		t.Fatalf("expected healthy backend, got %+v", status)
	}
	if status.LLMError != "" {
		t.Fatalf("expected no backend error, got %q", status.LLMError)
	}
}

func TestStatusDeepReportsUnreachableBackend(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"},
		stubCompleter{healthErr: errors.New("connection refused")})

	resp := doRequest(t, http.MethodGet, ts.base+"/status?deep=true")
	status := decodeBody[api.StatusResponse](t, resp)
	if status.LLMHealthy == nil || *status.LLMHealthy {
		t.Fatalf("expected unhealthy backend, got %+v", status)
	}
	if status.LLMError == "" {
		t.Fatal("expected a backend error message")
	}
	// Provider detail stays in the logs.
	if strings.Contains(status.LLMError, "connection refused") {
		t.Fatalf("expected redacted backend error, got %q", status.LLMError)
	}
}

func TestSecondDaemonInstanceIsRejected(t *testing.T) {
	ts := newTestServer(t, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, stubCompleter{})

	cfg := ts.daemon.cfg
	pipe := pipeline.New(cfg, fakeTranscoder{}, fakeProber{duration: 30}, fakeTranscriber{text: "x"}, ts.store, nil)
	generator := studycontent.NewGenerator(stubCompleter{}, nil)

	second, err := New(cfg, ts.store, pipe, generator, nil)
	if err != nil {
		t.Fatalf("new second daemon: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail lock acquisition")
	}
}

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"lectern/internal/api"
	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
	"lectern/internal/services"
	"lectern/internal/studycontent"
)

// multipartOverheadBytes is slack added to the upload limit to cover the
// multipart framing around the audio payload.
const multipartOverheadBytes = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	maxBodyBytes int64

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is empty")
	}

	srv := &apiServer{
		bind:         bind,
		logger:       logger,
		daemon:       d,
		maxBodyBytes: cfg.MaxFileBytes() + multipartOverheadBytes,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", srv.handleTranscribe)
	mux.HandleFunc("/transcripts", srv.handleTranscripts)
	mux.HandleFunc("/transcript/", srv.handleTranscript)
	mux.HandleFunc("/generate_content/", srv.handleGenerateContent)
	mux.HandleFunc("/content/", srv.handleContent)
	mux.HandleFunc("/status", srv.handleStatus)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// requestContext tags the request with a correlation id used by pipeline logs
// and workspace names.
func requestContext(r *http.Request) context.Context {
	return services.WithRequestID(r.Context(), uuid.NewString())
}

func (s *apiServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := requestContext(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeServiceError(ctx, w, services.Wrap(services.ErrValidation, "api", "transcribe",
				"request body exceeds the upload limit", &pipeline.UploadError{
					ErrCode: pipeline.CodeTooLarge,
					Message: "file exceeds the upload limit",
				}))
			return
		}
		s.writeServiceError(ctx, w, services.Wrap(services.ErrValidation, "api", "transcribe",
			"multipart form field \"file\" is required", err))
		return
	}
	defer file.Close()

	result, err := s.daemon.pipe.Process(ctx, pipeline.Upload{
		Filename: header.Filename,
		Size:     header.Size,
		Reader:   file,
	})
	if err != nil {
		s.writeServiceError(ctx, w, err)
		return
	}

	response := api.TranscribeResponse{Transcription: result.Text}
	if result.Persisted() {
		id := result.TranscriptID
		response.TranscriptID = &id
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *apiServer) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	switch r.Method {
	case http.MethodGet:
		summaries, err := s.daemon.store.List(ctx)
		if err != nil {
			s.writeServiceError(ctx, w, err)
			return
		}
		payload := make([]api.TranscriptSummary, 0, len(summaries))
		for _, summary := range summaries {
			payload = append(payload, api.TranscriptSummary{
				ID:                summary.ID,
				Text:              summary.Text,
				Filename:          summary.Filename,
				CreatedAt:         summary.CreatedAt,
				HasDerivedContent: summary.HasStudyContent,
			})
		}
		s.writeJSON(w, http.StatusOK, payload)
	case http.MethodDelete:
		removed, err := s.daemon.store.DeleteAll(ctx)
		if err != nil {
			s.writeServiceError(ctx, w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.DeleteAllResponse{Deleted: removed})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleTranscript(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)
	id, ok := s.pathID(w, r.URL.Path, "/transcript/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		transcript, err := s.daemon.store.Get(ctx, id)
		if err != nil {
			s.writeServiceError(ctx, w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.TranscriptDetail{
			ID:        transcript.ID,
			Text:      transcript.Text,
			Filename:  transcript.Filename,
			CreatedAt: transcript.CreatedAt,
		})
	case http.MethodDelete:
		deleted, err := s.daemon.store.Delete(ctx, id)
		if err != nil {
			s.writeServiceError(ctx, w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.DeleteResponse{Deleted: deleted})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleGenerateContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := requestContext(r)
	id, ok := s.pathID(w, r.URL.Path, "/generate_content/")
	if !ok {
		return
	}

	kind, err := studycontent.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		s.writeServiceError(ctx, w, err)
		return
	}

	transcript, err := s.daemon.store.Get(ctx, id)
	if err != nil {
		s.writeServiceError(ctx, w, err)
		return
	}

	document, err := s.daemon.generator.Generate(ctx, kind, transcript.Text)
	if err != nil {
		s.writeServiceError(ctx, w, err)
		return
	}

	if _, err := s.daemon.store.InsertDocument(ctx, id, kind, document); err != nil {
		s.writeServiceError(ctx, w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.GenerateContentResponse{
		TranscriptID: id,
		Kind:         kind,
		Content:      document,
	})
}

func (s *apiServer) handleContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := requestContext(r)
	id, ok := s.pathID(w, r.URL.Path, "/content/")
	if !ok {
		return
	}

	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind != "" {
		parsed, err := studycontent.ParseKind(kind)
		if err != nil {
			s.writeServiceError(ctx, w, err)
			return
		}
		kind = parsed
	}

	if _, err := s.daemon.store.Get(ctx, id); err != nil {
		s.writeServiceError(ctx, w, err)
		return
	}

	if latest, _ := strconv.ParseBool(r.URL.Query().Get("latest")); latest {
		doc, err := s.daemon.store.LatestDocument(ctx, id, kind)
		if err != nil {
			s.writeServiceError(ctx, w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.StudyDocument{
			ID:        doc.ID,
			Kind:      doc.Kind,
			CreatedAt: doc.CreatedAt,
			Content:   doc.Document,
		})
		return
	}

	docs, err := s.daemon.store.DocumentsByTranscript(ctx, id, kind)
	if err != nil {
		s.writeServiceError(ctx, w, err)
		return
	}
	payload := make([]api.StudyDocument, 0, len(docs))
	for _, doc := range docs {
		payload = append(payload, api.StudyDocument{
			ID:        doc.ID,
			Kind:      doc.Kind,
			CreatedAt: doc.CreatedAt,
			Content:   doc.Document,
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	response := api.StatusResponse{
		Running:        status.Running,
		DatabasePath:   status.DatabasePath,
		LockFilePath:   status.LockFilePath,
		StorageHealthy: status.StorageErr == nil,
		WhisperModel:   s.daemon.cfg.Whisper.Model,
		LLMModel:       s.daemon.cfg.LLM.Model,
	}
	if status.StorageErr != nil {
		response.StorageError = services.ClientMessage(status.StorageErr)
	}
	if deep, _ := strconv.ParseBool(r.URL.Query().Get("deep")); deep {
		healthy := true
		if err := s.daemon.generator.CheckBackend(r.Context()); err != nil {
			healthy = false
			response.LLMError = services.ClientMessage(err)
			logging.WithContext(r.Context(), s.log()).Warn("generative backend probe failed", logging.Error(err))
		}
		response.LLMHealthy = &healthy
	}
	s.writeJSON(w, http.StatusOK, response)
}

// pathID extracts the numeric id trailing prefix in the request path. It
// writes the error response itself when the path is malformed.
func (s *apiServer) pathID(w http.ResponseWriter, path, prefix string) (int64, bool) {
	idStr := strings.TrimPrefix(path, prefix)
	if idStr == "" || strings.Contains(idStr, "/") {
		s.writeError(w, http.StatusNotFound, "not found")
		return 0, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid transcript id")
		return 0, false
	}
	return id, true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// writeServiceError maps a pipeline error onto the HTTP taxonomy. The full
// error is logged; redacted kinds surface only a generic client message.
func (s *apiServer) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := services.HTTPStatus(err)
	log := logging.WithContext(ctx, s.log())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logging.Error(err))
	} else {
		log.Warn("request rejected", logging.Error(err))
	}
	s.writeJSON(w, status, api.ErrorResponse{
		Error: services.ClientMessage(err),
		Code:  services.Code(err),
	})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}

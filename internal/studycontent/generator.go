package studycontent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"lectern/internal/logging"
	"lectern/internal/services"
	"lectern/internal/services/llm"
)

// Completer is the generative backend contract. The concrete implementation
// lives in services/llm; tests substitute a stub.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Generator produces validated study documents from transcripts.
type Generator struct {
	backend Completer
	logger  *slog.Logger
}

// NewGenerator creates a Generator on top of the given backend.
func NewGenerator(backend Completer, logger *slog.Logger) *Generator {
	return &Generator{
		backend: backend,
		logger:  logging.NewComponentLogger(logger, "studycontent"),
	}
}

// CheckBackend verifies the generative backend is reachable and answering
// with parseable JSON. Backends without a health probe pass trivially.
func (g *Generator) CheckBackend(ctx context.Context) error {
	checker, ok := g.backend.(interface{ HealthCheck(ctx context.Context) error })
	if !ok {
		return nil
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return services.Wrap(services.ErrBackend, "studycontent", "check backend",
			"generative backend health probe failed", err)
	}
	return nil
}

// Generate asks the backend for a document of the given kind and validates it
// strictly. The returned payload is the canonical re-marshaled form of the
// validated document, never the raw backend output.
func (g *Generator) Generate(ctx context.Context, kind, transcript string) (json.RawMessage, error) {
	kind, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, services.Wrap(services.ErrValidation, "studycontent", "generate",
			"transcript text is empty", nil)
	}

	var systemPrompt, userPrompt string
	switch kind {
	case KindQuiz:
		systemPrompt = quizSystemPrompt
		userPrompt = quizPrompt(transcript)
	default:
		systemPrompt = miniLectureSystemPrompt
		userPrompt = miniLecturePrompt(transcript)
	}

	content, err := g.backend.CompleteJSON(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, services.Wrap(services.ErrBackend, "studycontent", "generate",
			"generative backend request failed", err)
	}

	logging.WithContext(ctx, g.logger).Debug("backend response received",
		logging.String("kind", kind),
		logging.Int("content_bytes", len(content)),
	)

	switch kind {
	case KindQuiz:
		var quiz Quiz
		if err := llm.DecodeLLMJSON(content, &quiz); err != nil {
			return nil, services.Wrap(services.ErrSchema, "studycontent", "generate",
				"backend returned malformed quiz payload", err)
		}
		if err := quiz.Validate(); err != nil {
			return nil, err
		}
		return canonicalize(quiz)
	default:
		var lecture MiniLecture
		if err := llm.DecodeLLMJSON(content, &lecture); err != nil {
			return nil, services.Wrap(services.ErrSchema, "studycontent", "generate",
				"backend returned malformed mini-lecture payload", err)
		}
		if err := lecture.Validate(); err != nil {
			return nil, err
		}
		return canonicalize(lecture)
	}
}

func canonicalize(document any) (json.RawMessage, error) {
	encoded, err := json.Marshal(document)
	if err != nil {
		return nil, services.Wrap(services.ErrSchema, "studycontent", "generate",
			"re-encode validated document", err)
	}
	return encoded, nil
}

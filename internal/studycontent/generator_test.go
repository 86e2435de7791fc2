package studycontent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"lectern/internal/services"
)

const validLecturePayload = `{
  "abstract": "The lecture covers the basics of cellular respiration in depth.",
  "key_topics": [
    {"topic": "Glycolysis", "definition": "The splitting of glucose.", "insights": ["Occurs in the cytoplasm."]}
  ],
  "mcqs": [
    {
      "question": "Where does glycolysis occur?",
      "options": {"A": "Cytoplasm", "B": "Nucleus", "C": "Mitochondria", "D": "Ribosome"},
      "correct_answer": "A",
      "explanation": "Glycolysis takes place in the cytoplasm."
    }
  ]
}`

type stubCompleter struct {
	content string
	err     error

	gotSystem string
	gotUser   string
}

func (s *stubCompleter) CompleteJSON(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	s.gotSystem = systemPrompt
	s.gotUser = userPrompt
	return s.content, s.err
}

func TestGenerateMiniLectureValidPayload(t *testing.T) {
	stub := &stubCompleter{content: validLecturePayload}
	gen := NewGenerator(stub, nil)

	payload, err := gen.Generate(context.Background(), KindMiniLecture, "lecture text")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var lecture MiniLecture
	if err := json.Unmarshal(payload, &lecture); err != nil {
		t.Fatalf("decode canonical payload: %v", err)
	}
	if lecture.Abstract == "" || len(lecture.KeyTopics) != 1 || len(lecture.MCQs) != 1 {
		t.Fatalf("unexpected document: %+v", lecture)
	}
	if !strings.Contains(stub.gotUser, "lecture text") {
		t.Fatal("expected transcript embedded in prompt")
	}
	if !strings.Contains(stub.gotSystem, "mini-lecture") {
		t.Fatalf("unexpected system prompt: %q", stub.gotSystem)
	}
}

func TestGenerateStripsCodeFences(t *testing.T) {
	stub := &stubCompleter{content: "```json\n" + validLecturePayload + "\n```"}
	gen := NewGenerator(stub, nil)

	if _, err := gen.Generate(context.Background(), "", "text"); err != nil {
		t.Fatalf("generate: %v", err)
	}
}

func TestGenerateBackendFailureIsBackendError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("upstream exploded")}
	gen := NewGenerator(stub, nil)

	_, err := gen.Generate(context.Background(), KindMiniLecture, "text")
	if !errors.Is(err, services.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestGenerateMalformedJSONIsSchemaError(t *testing.T) {
	stub := &stubCompleter{content: "I could not produce JSON, sorry"}
	gen := NewGenerator(stub, nil)

	_, err := gen.Generate(context.Background(), KindMiniLecture, "text")
	if !errors.Is(err, services.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestGenerateInvalidDocumentIsSchemaError(t *testing.T) {
	stub := &stubCompleter{content: `{"abstract":"only an abstract"}`}
	gen := NewGenerator(stub, nil)

	_, err := gen.Generate(context.Background(), KindMiniLecture, "text")
	if !errors.Is(err, services.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestGenerateEmptyTranscriptRejected(t *testing.T) {
	gen := NewGenerator(&stubCompleter{content: validLecturePayload}, nil)

	_, err := gen.Generate(context.Background(), KindMiniLecture, "   ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateUnknownKindRejected(t *testing.T) {
	gen := NewGenerator(&stubCompleter{content: validLecturePayload}, nil)

	_, err := gen.Generate(context.Background(), "flashcards", "text")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGenerateQuiz(t *testing.T) {
	stub := &stubCompleter{content: `{
	  "questions": [
	    {
	      "question": "What is ATP?",
	      "options": {"A": "Energy currency", "B": "A protein", "C": "A sugar", "D": "A lipid"},
	      "correct_answer": "A",
	      "explanation": "ATP stores and transfers energy."
	    }
	  ]
	}`}
	gen := NewGenerator(stub, nil)

	payload, err := gen.Generate(context.Background(), KindQuiz, "text")
	if err != nil {
		t.Fatalf("generate quiz: %v", err)
	}
	var quiz Quiz
	if err := json.Unmarshal(payload, &quiz); err != nil {
		t.Fatalf("decode quiz: %v", err)
	}
	if len(quiz.Questions) != 1 {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	if !strings.Contains(stub.gotSystem, "exam questions") {
		t.Fatalf("unexpected quiz system prompt: %q", stub.gotSystem)
	}
}

func TestMCQValidationRejectsBadAnswerAndOptions(t *testing.T) {
	base := MCQ{
		Question:      "Q?",
		Options:       map[string]string{"A": "1", "B": "2", "C": "3", "D": "4"},
		CorrectAnswer: "A",
		Explanation:   "Because.",
	}

	bad := base
	bad.CorrectAnswer = "E"
	if err := (Quiz{Questions: []MCQ{bad}}).Validate(); !errors.Is(err, services.ErrSchema) {
		t.Fatalf("expected schema error for bad answer, got %v", err)
	}

	bad = base
	bad.Options = map[string]string{"A": "1", "B": "2", "C": "3"}
	if err := (Quiz{Questions: []MCQ{bad}}).Validate(); !errors.Is(err, services.ErrSchema) {
		t.Fatalf("expected schema error for missing option, got %v", err)
	}

	bad = base
	bad.Options = map[string]string{"A": "1", "B": "2", "C": "3", "E": "5"}
	if err := (Quiz{Questions: []MCQ{bad}}).Validate(); !errors.Is(err, services.ErrSchema) {
		t.Fatalf("expected schema error for wrong option letter, got %v", err)
	}
}

func TestParseKindDefaultsToMiniLecture(t *testing.T) {
	kind, err := ParseKind("")
	if err != nil {
		t.Fatalf("parse kind: %v", err)
	}
	if kind != KindMiniLecture {
		t.Fatalf("expected default mini_lecture, got %q", kind)
	}
}

// Package studycontent generates and validates derived study documents
// (mini-lectures and quizzes) from lecture transcripts.
//
// Generation goes through a JSON-only generative backend; every payload is
// decoded into a typed document and strictly validated before persistence, so
// stored documents always match the published schema.
package studycontent

import (
	"fmt"
	"strings"

	"lectern/internal/services"
)

// Document kinds accepted by the generator.
const (
	KindMiniLecture = "mini_lecture"
	KindQuiz        = "quiz"
)

// ParseKind normalizes a document kind string. An empty value defaults to a
// mini-lecture; unknown kinds are rejected as validation errors.
func ParseKind(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", KindMiniLecture:
		return KindMiniLecture, nil
	case KindQuiz:
		return KindQuiz, nil
	default:
		return "", services.Wrap(services.ErrValidation, "studycontent", "parse kind",
			fmt.Sprintf("unknown content kind %q", value), nil)
	}
}

// MiniLecture is the generated study summary for a transcript.
type MiniLecture struct {
	Abstract  string     `json:"abstract"`
	KeyTopics []KeyTopic `json:"key_topics"`
	MCQs      []MCQ      `json:"mcqs"`
}

// KeyTopic is one topic entry in a mini-lecture.
type KeyTopic struct {
	Topic      string   `json:"topic"`
	Definition string   `json:"definition"`
	Insights   []string `json:"insights"`
}

// MCQ is a multiple-choice question with four lettered options.
type MCQ struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
	Explanation   string            `json:"explanation"`
}

// Quiz is a standalone question set derived from a transcript.
type Quiz struct {
	Questions []MCQ `json:"questions"`
}

var optionLetters = []string{"A", "B", "C", "D"}

// Validate checks a mini-lecture against the published schema.
func (m MiniLecture) Validate() error {
	if strings.TrimSpace(m.Abstract) == "" {
		return schemaError("abstract must be a non-empty string")
	}
	if len(m.KeyTopics) == 0 {
		return schemaError("key_topics must contain at least one topic")
	}
	for i, topic := range m.KeyTopics {
		if err := topic.validate(); err != nil {
			return schemaError(fmt.Sprintf("key_topics[%d]: %v", i, err))
		}
	}
	if len(m.MCQs) == 0 {
		return schemaError("mcqs must contain at least one question")
	}
	for i, mcq := range m.MCQs {
		if err := mcq.validate(); err != nil {
			return schemaError(fmt.Sprintf("mcqs[%d]: %v", i, err))
		}
	}
	return nil
}

// Validate checks a quiz against the published schema.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return schemaError("questions must contain at least one question")
	}
	for i, mcq := range q.Questions {
		if err := mcq.validate(); err != nil {
			return schemaError(fmt.Sprintf("questions[%d]: %v", i, err))
		}
	}
	return nil
}

func (t KeyTopic) validate() error {
	if strings.TrimSpace(t.Topic) == "" {
		return fmt.Errorf("topic must be a non-empty string")
	}
	if strings.TrimSpace(t.Definition) == "" {
		return fmt.Errorf("definition must be a non-empty string")
	}
	if len(t.Insights) == 0 {
		return fmt.Errorf("insights must contain at least one entry")
	}
	for i, insight := range t.Insights {
		if strings.TrimSpace(insight) == "" {
			return fmt.Errorf("insights[%d] must be a non-empty string", i)
		}
	}
	return nil
}

func (m MCQ) validate() error {
	if strings.TrimSpace(m.Question) == "" {
		return fmt.Errorf("question must be a non-empty string")
	}
	if len(m.Options) != len(optionLetters) {
		return fmt.Errorf("options must contain exactly the keys A, B, C, D")
	}
	for _, letter := range optionLetters {
		value, ok := m.Options[letter]
		if !ok {
			return fmt.Errorf("options missing key %q", letter)
		}
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("options[%q] must be a non-empty string", letter)
		}
	}
	answer := strings.TrimSpace(m.CorrectAnswer)
	valid := false
	for _, letter := range optionLetters {
		if answer == letter {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("correct_answer must be one of A, B, C, D, got %q", m.CorrectAnswer)
	}
	if strings.TrimSpace(m.Explanation) == "" {
		return fmt.Errorf("explanation must be a non-empty string")
	}
	return nil
}

func schemaError(message string) error {
	return services.Wrap(services.ErrSchema, "studycontent", "validate", message, nil)
}

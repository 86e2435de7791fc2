package studycontent

import "fmt"

const miniLectureSystemPrompt = "You are a helpful educational assistant that creates a mini-lecture based on the transcript. " +
	"Always return a valid JSON object with the keys: 'abstract', 'key_topics', and 'mcqs'."

const miniLecturePromptTemplate = `Based on the following lecture transcript, generate a mini-lecture with the following structure:

1. Abstract: Write 4-6 sentences summarizing the central themes, key points, and overarching message of the lecture.
2. Key Topics & Explanations: Identify the main topics and significant subtopics from the lecture. For each topic:
   - A one-sentence definition or overview.
   - 1-2 essential insights or critical points emphasized during the lecture.
3. MCQs: Provide 2-3 multiple-choice questions. Each question must include:
   - The question text.
   - Four options (A, B, C, D) as plausible distractors.
   - The correct answer (A/B/C/D).
   - A brief explanation of why the answer is correct.

Return the mini-lecture in valid JSON with the following keys:
{
  "abstract": "...",
  "key_topics": [
    {
      "topic": "...",
      "definition": "...",
      "insights": ["...", "..."]
    }
  ],
  "mcqs": [
    {
      "question": "...",
      "options": {"A": "...", "B": "...", "C": "...", "D": "..."},
      "correct_answer": "...",
      "explanation": "..."
    }
  ]
}

Lecture Transcript:
%s`

const quizSystemPrompt = "You are a helpful educational assistant that writes exam questions from a lecture transcript. " +
	"Always return a valid JSON object with the key: 'questions'."

const quizPromptTemplate = `Based on the following lecture transcript, write 5-8 multiple-choice questions that test understanding of its key points. Each question must include:
   - The question text.
   - Four options (A, B, C, D) as plausible distractors.
   - The correct answer (A/B/C/D).
   - A brief explanation of why the answer is correct.

Return the quiz in valid JSON with the following structure:
{
  "questions": [
    {
      "question": "...",
      "options": {"A": "...", "B": "...", "C": "...", "D": "..."},
      "correct_answer": "...",
      "explanation": "..."
    }
  ]
}

Lecture Transcript:
%s`

func miniLecturePrompt(transcript string) string {
	return fmt.Sprintf(miniLecturePromptTemplate, transcript)
}

func quizPrompt(transcript string) string {
	return fmt.Sprintf(quizPromptTemplate, transcript)
}

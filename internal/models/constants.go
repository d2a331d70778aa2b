package models

const (
	PageBannerFormat = "\n\n=== Page %d ===\n\n"
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	MetaSource  = "source"
	MetaChunkID = "chunk_id"
	MetaPage    = "page"

	StatusActive        = "active"
	StatusUninitialized = "uninitialized"

	NotInMaterialAnswer = "The material does not cover this."
)

var (
	TutorPromptTemplate = `You are an AI tutor grounded in university lecture material.

%s

Student question: %s

- If the lecture material does not contain the answer, reply exactly "` + NotInMaterialAnswer + `"
- Be friendly and include a short example where it helps.

Answer:`

	// QuizPromptTemplate arguments: subject, count, difficulty, kinds description, example subject, context.
	QuizPromptTemplate = `You are a quiz generator for the subject "%s", working only from the lecture material below.
Generate %d questions at %s difficulty. Allowed question types: %s.

Return JSON with exactly this structure and nothing else:
{
  "quizzes": [
    {
      "type": "multiple",
      "question": "question text",
      "options": ["option 1", "option 2", "option 3", "option 4"],
      "correct_answer": 0,
      "explanation": "short explanation",
      "subject": "%s"
    }
  ]
}

Rules:
- "multiple": exactly 4 options, correct_answer is the 0-based index of the right option.
- "ox": options are exactly ["O", "X"], correct_answer is 0 for O (true) or 1 for X (false).
- "short": options is an empty array, correct_answer is the short answer text.
- Output the JSON only, without code fences or commentary.

material:
%s
`
)

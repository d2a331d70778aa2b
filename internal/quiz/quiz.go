package quiz

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of quiz variants.
type Kind string

const (
	KindMultiple Kind = "multiple"
	KindShort    Kind = "short"
	KindOX       Kind = "ox"
)

// ParseKind normalises a type tag. It reports false for anything outside the closed set.
func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMultiple, KindShort, KindOX:
		return k, true
	}
	return "", false
}

// Label is the human readable name of the kind.
func (k Kind) Label() string {
	switch k {
	case KindMultiple:
		return "multiple choice"
	case KindShort:
		return "short answer"
	case KindOX:
		return "true/false (O/X)"
	}
	return string(k)
}

// Quiz is one validated question. Build it with NewMultiple, NewOX or NewShort; it is not mutated afterwards.
type Quiz struct {
	ID          string
	Kind        Kind
	Question    string
	Explanation string
	Subject     string
	// Options is empty for short-answer quizzes.
	Options []string
	// AnswerIndex is the correct option for multiple and ox quizzes.
	AnswerIndex int
	// AnswerText is the correct answer for short-answer quizzes.
	AnswerText string
}

// NewMultiple builds a multiple-choice quiz. At least two options are required and answer must index one of them.
func NewMultiple(question string, options []string, answer int, explanation, subject string) (Quiz, error) {
	if len(options) < 2 {
		return Quiz{}, fmt.Errorf("multiple choice needs at least 2 options, got %d", len(options))
	}
	if answer < 0 || answer >= len(options) {
		return Quiz{}, fmt.Errorf("answer index %d out of range [0,%d)", answer, len(options))
	}
	return Quiz{
		Kind:        KindMultiple,
		Question:    question,
		Explanation: explanation,
		Subject:     subject,
		Options:     append([]string(nil), options...),
		AnswerIndex: answer,
	}, nil
}

// NewOX builds a true/false quiz. options must equal ["O","X"] ignoring case; their case is kept.
func NewOX(question string, options []string, answer int, explanation, subject string) (Quiz, error) {
	if len(options) != 2 || !strings.EqualFold(options[0], "O") || !strings.EqualFold(options[1], "X") {
		return Quiz{}, fmt.Errorf(`ox options must be ["O","X"], got %q`, options)
	}
	if answer != 0 && answer != 1 {
		return Quiz{}, fmt.Errorf("ox answer must be 0 or 1, got %d", answer)
	}
	return Quiz{
		Kind:        KindOX,
		Question:    question,
		Explanation: explanation,
		Subject:     subject,
		Options:     append([]string(nil), options...),
		AnswerIndex: answer,
	}, nil
}

// NewShort builds a short-answer quiz with a non-blank answer.
func NewShort(question, answer, explanation, subject string) (Quiz, error) {
	if strings.TrimSpace(answer) == "" {
		return Quiz{}, fmt.Errorf("short answer must not be empty")
	}
	return Quiz{
		Kind:        KindShort,
		Question:    question,
		Explanation: explanation,
		Subject:     subject,
		AnswerText:  answer,
	}, nil
}

// CorrectAnswerText renders the correct answer for display.
func (q Quiz) CorrectAnswerText() string {
	if q.Kind == KindShort {
		return q.AnswerText
	}
	if q.AnswerIndex >= 0 && q.AnswerIndex < len(q.Options) {
		return fmt.Sprintf("%c. %s", 'A'+rune(q.AnswerIndex), q.Options[q.AnswerIndex])
	}
	return ""
}

type wireQuiz struct {
	ID            string   `json:"id,omitempty"`
	Type          Kind     `json:"type"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer any      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Subject       string   `json:"subject"`
}

// MarshalJSON emits the quiz wire shape: correct_answer is an index for multiple/ox and text for short.
func (q Quiz) MarshalJSON() ([]byte, error) {
	w := wireQuiz{
		ID:          q.ID,
		Type:        q.Kind,
		Question:    q.Question,
		Options:     q.Options,
		Explanation: q.Explanation,
		Subject:     q.Subject,
	}
	if w.Options == nil {
		w.Options = []string{}
	}
	if q.Kind == KindShort {
		w.CorrectAnswer = q.AnswerText
	} else {
		w.CorrectAnswer = q.AnswerIndex
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the wire shape and applies the same rules as the validator.
func (q *Quiz) UnmarshalJSON(data []byte) error {
	var item map[string]any
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	parsed, err := validateItem(item, "")
	if err != nil {
		return err
	}
	if id, ok := item["id"].(string); ok {
		parsed.ID = id
	}
	*q = parsed
	return nil
}

// Answer is a user's submission: Index for multiple/ox, Text for short.
type Answer struct {
	Index int    `json:"index"`
	Text  string `json:"text,omitempty"`
}

// Display renders the submitted answer against q.
func (a Answer) Display(q Quiz) string {
	if q.Kind == KindShort {
		return a.Text
	}
	if a.Index >= 0 && a.Index < len(q.Options) {
		return fmt.Sprintf("%c. %s", 'A'+rune(a.Index), q.Options[a.Index])
	}
	return fmt.Sprintf("#%d", a.Index)
}

// Grade reports whether a is correct for q. Choice answers must match the index exactly;
// short answers are compared case-folded with surrounding whitespace trimmed.
func Grade(q Quiz, a Answer) bool {
	switch q.Kind {
	case KindMultiple, KindOX:
		return a.Index == q.AnswerIndex
	case KindShort:
		return normalizeShort(a.Text) == normalizeShort(q.AnswerText)
	}
	return false
}

func normalizeShort(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// WrongAnswer is a snapshot of a missed quiz and what was submitted.
type WrongAnswer struct {
	Quiz       Quiz      `json:"quiz"`
	Submitted  Answer    `json:"submitted"`
	RecordedAt time.Time `json:"recorded_at"`
}

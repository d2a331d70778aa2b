package session

import (
	"errors"

	"lecture-rag/internal/quiz"
)

var (
	ErrNoQuiz        = errors.New("no quiz in progress")
	ErrQuizCompleted = errors.New("quiz already completed")
)

// QuizRun is one pass through a generated quiz batch.
type QuizRun struct {
	Subject   string
	Quizzes   []quiz.Quiz
	answers   []*quiz.Answer
	index     int
	completed bool
}

func NewQuizRun(subject string, quizzes []quiz.Quiz) *QuizRun {
	return &QuizRun{
		Subject: subject,
		Quizzes: quizzes,
		answers: make([]*quiz.Answer, len(quizzes)),
	}
}

// Index is the 0-based position of the current question.
func (r *QuizRun) Index() int { return r.index }

func (r *QuizRun) Total() int { return len(r.Quizzes) }

func (r *QuizRun) Completed() bool { return r.completed }

// Current returns the question being answered; false once the run is completed.
func (r *QuizRun) Current() (quiz.Quiz, bool) {
	if r.completed || r.index >= len(r.Quizzes) {
		return quiz.Quiz{}, false
	}
	return r.Quizzes[r.index], true
}

// Submission is the outcome of answering the current question.
type Submission struct {
	Quiz      quiz.Quiz
	Answer    quiz.Answer
	Correct   bool
	Completed bool
}

// Submit records a for the current question and moves on, completing the run after the last one.
func (r *QuizRun) Submit(a quiz.Answer) (Submission, error) {
	q, ok := r.Current()
	if !ok {
		return Submission{}, ErrQuizCompleted
	}
	r.answers[r.index] = &a
	correct := quiz.Grade(q, a)
	if r.index+1 < len(r.Quizzes) {
		r.index++
	} else {
		r.completed = true
	}
	return Submission{Quiz: q, Answer: a, Correct: correct, Completed: r.completed}, nil
}

// Previous steps back one question. It reports false at the first question or after completion.
func (r *QuizRun) Previous() bool {
	if r.completed || r.index == 0 {
		return false
	}
	r.index--
	return true
}

// Restart clears every answer and returns to the first question.
func (r *QuizRun) Restart() {
	r.answers = make([]*quiz.Answer, len(r.Quizzes))
	r.index = 0
	r.completed = false
}

// ItemResult is the outcome of one question. Answer is nil when it was skipped.
type ItemResult struct {
	Quiz    quiz.Quiz    `json:"quiz"`
	Answer  *quiz.Answer `json:"answer,omitempty"`
	Correct bool         `json:"correct"`
}

// RunResult is the score of a run.
type RunResult struct {
	Items   []ItemResult `json:"items"`
	Correct int          `json:"correct"`
	Total   int          `json:"total"`
	Percent float64      `json:"percent"`
}

// Result grades every question answered so far.
func (r *QuizRun) Result() RunResult {
	res := RunResult{Total: len(r.Quizzes), Items: make([]ItemResult, len(r.Quizzes))}
	for i, q := range r.Quizzes {
		item := ItemResult{Quiz: q, Answer: r.answers[i]}
		if item.Answer != nil && quiz.Grade(q, *item.Answer) {
			item.Correct = true
			res.Correct++
		}
		res.Items[i] = item
	}
	if res.Total > 0 {
		res.Percent = float64(res.Correct) / float64(res.Total) * 100
	}
	return res
}

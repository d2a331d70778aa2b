package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"lecture-rag/internal/helper"
	"lecture-rag/internal/models"
	"lecture-rag/internal/quiz"
)

var ErrSessionNotFound = errors.New("session not found")

// Exchange is one chat question and its answer.
type Exchange struct {
	Question string                `json:"question"`
	Answer   string                `json:"answer"`
	Sources  []models.SearchResult `json:"sources"`
	AskedAt  time.Time             `json:"asked_at"`
}

// Session is the per-user state every handler works on.
//
// Reset policy: selecting a subject keeps the quiz and the wrong-answer log; starting a quiz
// replaces the previous run; ClearWrongAnswers empties the log; Reset clears everything but the ID.
type Session struct {
	ID string

	mu             sync.Mutex
	currentSubject string
	chatHistory    map[string][]Exchange
	run            *QuizRun
	wrong          WrongAnswerLog
	now            func() time.Time
}

func newSession(id string, wrong WrongAnswerLog) *Session {
	return &Session{
		ID:          id,
		chatHistory: make(map[string][]Exchange),
		wrong:       wrong,
		now:         time.Now,
	}
}

func (s *Session) CurrentSubject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSubject
}

func (s *Session) SelectSubject(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentSubject = subject
}

// AddExchange appends to the chat history of subject.
func (s *Session) AddExchange(subject string, ex Exchange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex.AskedAt.IsZero() {
		ex.AskedAt = s.now()
	}
	s.chatHistory[subject] = append(s.chatHistory[subject], ex)
}

// History returns the chat history of subject, oldest first.
func (s *Session) History(subject string) []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exchange(nil), s.chatHistory[subject]...)
}

// StartQuiz replaces any run in progress.
func (s *Session) StartQuiz(subject string, quizzes []quiz.Quiz) *QuizRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = NewQuizRun(subject, quizzes)
	return s.run
}

// QuizState is a snapshot of the run in progress.
type QuizState struct {
	Subject   string
	Quiz      quiz.Quiz
	HasQuiz   bool
	Index     int
	Total     int
	Completed bool
}

func (s *Session) QuizState() (QuizState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() (QuizState, error) {
	if s.run == nil {
		return QuizState{}, ErrNoQuiz
	}
	q, ok := s.run.Current()
	return QuizState{
		Subject:   s.run.Subject,
		Quiz:      q,
		HasQuiz:   ok,
		Index:     s.run.Index(),
		Total:     s.run.Total(),
		Completed: s.run.Completed(),
	}, nil
}

// SubmitAnswer grades a against the current question. A wrong answer is appended to the log
// before the run moves on; when that fails the question stays current.
func (s *Session) SubmitAnswer(ctx context.Context, a quiz.Answer) (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return Submission{}, ErrNoQuiz
	}
	q, ok := s.run.Current()
	if !ok {
		return Submission{}, ErrQuizCompleted
	}
	if !quiz.Grade(q, a) {
		rec := quiz.WrongAnswer{Quiz: q, Submitted: a, RecordedAt: s.now()}
		if err := s.wrong.Append(ctx, s.ID, rec); err != nil {
			log.Error().Err(err).Str("session", s.ID).Msg("Failed to record wrong answer")
			return Submission{}, fmt.Errorf("failed to record wrong answer: %w", err)
		}
	}
	return s.run.Submit(a)
}

func (s *Session) PreviousQuestion() (QuizState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return QuizState{}, ErrNoQuiz
	}
	s.run.Previous()
	return s.stateLocked()
}

func (s *Session) RestartQuiz() (QuizState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return QuizState{}, ErrNoQuiz
	}
	s.run.Restart()
	return s.stateLocked()
}

func (s *Session) QuizResult() (RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return RunResult{}, ErrNoQuiz
	}
	return s.run.Result(), nil
}

// WrongAnswers lists the log, filtered by subject when it is not empty.
func (s *Session) WrongAnswers(ctx context.Context, subject string) ([]quiz.WrongAnswer, error) {
	return s.wrong.List(ctx, s.ID, subject)
}

// WrongAnswerSubjects lists the subjects that have wrong answers recorded.
func (s *Session) WrongAnswerSubjects(ctx context.Context) ([]string, error) {
	return s.wrong.Subjects(ctx, s.ID)
}

func (s *Session) ClearWrongAnswers(ctx context.Context) error {
	return s.wrong.Clear(ctx, s.ID)
}

// Reset clears the subject, chat history, quiz and wrong-answer log.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.currentSubject = ""
	s.chatHistory = make(map[string][]Exchange)
	s.run = nil
	s.mu.Unlock()
	return s.wrong.Clear(ctx, s.ID)
}

// Registry holds the live sessions of the process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	wrong    WrongAnswerLog
}

// NewRegistry creates a registry whose sessions record wrong answers in wrong (in memory when nil).
func NewRegistry(wrong WrongAnswerLog) *Registry {
	if wrong == nil {
		wrong = NewMemoryLog()
	}
	return &Registry{sessions: make(map[string]*Session), wrong: wrong}
}

func (r *Registry) Create() (*Session, error) {
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	s := newSession(id, r.wrong)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	log.Debug().Str("session", id).Msg("Created session")
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

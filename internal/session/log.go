package session

import (
	"context"
	"slices"
	"sync"

	"github.com/samber/lo"

	"lecture-rag/internal/quiz"
)

// WrongAnswerLog stores missed questions per session. Records are appended and only ever cleared wholesale.
type WrongAnswerLog interface {
	Append(ctx context.Context, sessionID string, rec quiz.WrongAnswer) error
	// List returns the records in append order. An empty subject lists every subject.
	List(ctx context.Context, sessionID, subject string) ([]quiz.WrongAnswer, error)
	Clear(ctx context.Context, sessionID string) error
	// Subjects returns the distinct subjects in the log, sorted.
	Subjects(ctx context.Context, sessionID string) ([]string, error)
}

// MemoryLog keeps wrong answers in process memory.
type MemoryLog struct {
	mu      sync.RWMutex
	records map[string][]quiz.WrongAnswer
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{records: make(map[string][]quiz.WrongAnswer)}
}

func (l *MemoryLog) Append(_ context.Context, sessionID string, rec quiz.WrongAnswer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[sessionID] = append(l.records[sessionID], rec)
	return nil
}

func (l *MemoryLog) List(_ context.Context, sessionID, subject string) ([]quiz.WrongAnswer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	recs := l.records[sessionID]
	if subject == "" {
		return append([]quiz.WrongAnswer(nil), recs...), nil
	}
	return lo.Filter(recs, func(r quiz.WrongAnswer, _ int) bool { return r.Quiz.Subject == subject }), nil
}

func (l *MemoryLog) Clear(_ context.Context, sessionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, sessionID)
	return nil
}

func (l *MemoryLog) Subjects(_ context.Context, sessionID string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	subjects := lo.Uniq(lo.Map(l.records[sessionID], func(r quiz.WrongAnswer, _ int) string { return r.Quiz.Subject }))
	slices.Sort(subjects)
	return subjects, nil
}

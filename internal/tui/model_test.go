package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"lecture-rag/internal/models"
)

type stubTutor struct {
	answer string
	err    error
	asked  []string
}

func (s *stubTutor) Ask(_ context.Context, subject, question string) (models.PromptResponse, error) {
	s.asked = append(s.asked, subject+":"+question)
	if s.err != nil {
		return models.PromptResponse{}, s.err
	}
	return models.PromptResponse{
		Query:   question,
		Answer:  s.answer,
		Sources: []models.SearchResult{{Content: "Round robin uses a quantum.", Metadata: map[string]string{models.MetaSource: "w1.pdf", models.MetaPage: "3"}}},
	}, nil
}

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func typeAndSubmit(t *testing.T, m Model, text string) Model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected ask command")
	}
	next, _ = next.Update(cmd())
	return next.(Model)
}

func TestModel_AskShowsAnswerAndSources(t *testing.T) {
	tutor := &stubTutor{answer: "It is a time slice."}
	m := sized(New(context.Background(), tutor, "OS", "OS: 4 chunks"))

	m = typeAndSubmit(t, m, "What is a quantum?")
	if len(tutor.asked) != 1 || tutor.asked[0] != "OS:What is a quantum?" {
		t.Fatalf("unexpected calls %v", tutor.asked)
	}
	out := m.renderTranscript()
	if !strings.Contains(out, "It is a time slice.") || strings.Contains(out, "w1.pdf") {
		t.Fatalf("unexpected transcript:\n%s", out)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	out = next.(Model).renderTranscript()
	if !strings.Contains(out, "[w1.pdf p.3]") {
		t.Fatalf("expected sources after toggle:\n%s", out)
	}
}

func TestModel_ErrorDropsPendingTurn(t *testing.T) {
	m := sized(New(context.Background(), &stubTutor{err: errors.New("boom")}, "OS", ""))
	m = typeAndSubmit(t, m, "hi")
	if len(m.turns) != 0 || !strings.Contains(m.status, "boom") {
		t.Fatalf("expected error status and no turns, got %d turns, status %q", len(m.turns), m.status)
	}
}

func TestModel_EmptyInputIgnored(t *testing.T) {
	m := sized(New(context.Background(), &stubTutor{}, "OS", ""))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatal("empty question must not be sent")
	}
}

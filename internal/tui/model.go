package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lecture-rag/internal/models"
)

// Tutor is the TUI-facing subset of the chatbot.
type Tutor interface {
	Ask(ctx context.Context, subject, question string) (models.PromptResponse, error)
}

type answerMsg struct {
	resp models.PromptResponse
	err  error
}

type turn struct {
	question string
	answer   string
	sources  []models.SearchResult
}

// Model is the Bubble Tea model for chatting about one subject.
type Model struct {
	ctx         context.Context
	tutor       Tutor
	subject     string
	summary     string
	input       textinput.Model
	viewport    viewport.Model
	turns       []turn
	showSources bool
	waiting     bool
	status      string
	ready       bool
}

// New creates a chat model bound to subject.
func New(ctx context.Context, tutor Tutor, subject, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the lecture and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		tutor:    tutor,
		subject:  subject,
		summary:  summary,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Enter to ask, Tab to toggle sources, Ctrl+C to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.tutor.Ask(m.ctx, m.subject, question)
		return answerMsg{resp: resp, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ah := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-ah)
		m.refresh()
		return m, nil
	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.turns = m.turns[:len(m.turns)-1]
		} else {
			last := &m.turns[len(m.turns)-1]
			last.answer = msg.resp.Answer
			last.sources = msg.resp.Sources
			m.status = fmt.Sprintf("Answered from %d source chunks.", len(msg.resp.Sources))
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.waiting {
				return m, nil
			}
			m.input.SetValue("")
			m.turns = append(m.turns, turn{question: q})
			m.waiting = true
			m.status = "Thinking..."
			m.refresh()
			return m, m.ask(q)
		case "tab":
			m.showSources = !m.showSources
			m.refresh()
			return m, nil
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Lecture Tutor: " + m.subject)
	summary := summaryStyle.Render(m.summary)
	answers := answerBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + answers + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No questions yet."
	}
	var sb strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(questionStyle.Render("Q: " + t.question))
		sb.WriteString("\n")
		if t.answer == "" {
			sb.WriteString(sourceStyle.Render("..."))
			continue
		}
		sb.WriteString(t.answer)
		if m.showSources {
			for _, s := range t.sources {
				sb.WriteString("\n")
				sb.WriteString(sourceStyle.Render(sourceLine(s)))
			}
		}
	}
	return sb.String()
}

func sourceLine(s models.SearchResult) string {
	text := strings.Join(strings.Fields(s.Content), " ")
	if r := []rune(text); len(r) > 80 {
		text = string(r[:80]) + "..."
	}
	if page := s.Metadata[models.MetaPage]; page != "" && page != "0" {
		return fmt.Sprintf("  [%s p.%s] %s", s.Source(), page, text)
	}
	return fmt.Sprintf("  [%s] %s", s.Source(), text)
}

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	summaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

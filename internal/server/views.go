package server

import (
	"bytes"
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"lecture-rag/internal/models"
	"lecture-rag/internal/quiz"
	"lecture-rag/internal/session"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// renderMarkdown converts a model answer to HTML. Raw HTML in the answer is not passed through.
func renderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return ""
	}
	return buf.String()
}

type SubjectView struct {
	models.SubjectInfo
	Files []string `json:"files"`
}

type UploadView struct {
	Subject         string      `json:"subject"`
	File            string      `json:"file"`
	ChunksAdded     int         `json:"chunks_added"`
	AlreadyUploaded bool        `json:"already_uploaded"`
	Info            SubjectView `json:"info"`
}

type SourceView struct {
	Source     string  `json:"source"`
	Page       int     `json:"page"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

func sourceViews(results []models.SearchResult) []SourceView {
	out := make([]SourceView, len(results))
	for i, r := range results {
		page, _ := strconv.Atoi(r.Metadata[models.MetaPage])
		out[i] = SourceView{Source: r.Source(), Page: page, Content: r.Content, Similarity: r.Similarity}
	}
	return out
}

type ChatView struct {
	Subject    string       `json:"subject"`
	Question   string       `json:"question"`
	Answer     string       `json:"answer"`
	AnswerHTML string       `json:"answer_html"`
	Sources    []SourceView `json:"sources"`
}

func chatView(subject string, ex session.Exchange) ChatView {
	return ChatView{
		Subject:    subject,
		Question:   ex.Question,
		Answer:     ex.Answer,
		AnswerHTML: renderMarkdown(ex.Answer),
		Sources:    sourceViews(ex.Sources),
	}
}

// QuestionView is a quiz without its answer or explanation.
type QuestionView struct {
	ID       string    `json:"id"`
	Type     quiz.Kind `json:"type"`
	Question string    `json:"question"`
	Options  []string  `json:"options"`
}

func questionView(q quiz.Quiz) *QuestionView {
	opts := q.Options
	if opts == nil {
		opts = []string{}
	}
	return &QuestionView{ID: q.ID, Type: q.Kind, Question: q.Question, Options: opts}
}

type QuizStateView struct {
	Subject   string        `json:"subject"`
	Index     int           `json:"index"`
	Total     int           `json:"total"`
	Completed bool          `json:"completed"`
	Question  *QuestionView `json:"question,omitempty"`
}

func quizStateView(st session.QuizState) QuizStateView {
	v := QuizStateView{Subject: st.Subject, Index: st.Index, Total: st.Total, Completed: st.Completed}
	if st.HasQuiz {
		v.Question = questionView(st.Quiz)
	}
	return v
}

type GenerateView struct {
	Subject  string        `json:"subject"`
	Count    int           `json:"count"`
	Dropped  int           `json:"dropped"`
	Strategy quiz.Strategy `json:"strategy"`
	State    QuizStateView `json:"state"`
}

type SubmitView struct {
	Correct       bool          `json:"correct"`
	CorrectAnswer string        `json:"correct_answer"`
	Explanation   string        `json:"explanation"`
	State         QuizStateView `json:"state"`
}

type WrongAnswersView struct {
	Count    int                `json:"count"`
	Subjects []string           `json:"subjects"`
	Items    []quiz.WrongAnswer `json:"items"`
}

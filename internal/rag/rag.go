package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"lecture-rag/internal/llmservice"
	"lecture-rag/internal/models"
)

const defaultTopK = 4

// ErrNoMaterial means the subject has no uploaded material to answer from.
var ErrNoMaterial = errors.New("no material uploaded for this subject")

// Retriever finds the chunks of a subject nearest to a query.
type Retriever interface {
	Search(ctx context.Context, subject, query string, k int) ([]models.SearchResult, error)
	SubjectInfo(subject string) models.SubjectInfo
}

// Chatbot answers questions from one subject's lecture material.
type Chatbot struct {
	llm       llmservice.Completer
	retriever Retriever
	topK      int
}

func NewChatbot(llm llmservice.Completer, retriever Retriever, topK int) *Chatbot {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Chatbot{llm: llm, retriever: retriever, topK: topK}
}

// Ask retrieves the top chunks of subject, stuffs them into the tutor prompt and returns the answer with its sources.
func (c *Chatbot) Ask(ctx context.Context, subject, question string) (models.PromptResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.PromptResponse{}, errors.New("question is empty")
	}
	if subject == "" || c.retriever.SubjectInfo(subject).Status != models.StatusActive {
		return models.PromptResponse{}, fmt.Errorf("%w: %q", ErrNoMaterial, subject)
	}

	docs, err := c.retriever.Search(ctx, subject, question, c.topK)
	if err != nil {
		return models.PromptResponse{}, fmt.Errorf("failed to retrieve context: %w", err)
	}

	prompt := fmt.Sprintf(models.TutorPromptTemplate, buildContext(docs), question)
	log.Debug().Str("subject", subject).Int("sources", len(docs)).Msg("Asking tutor")

	answer, err := c.llm.Complete(ctx, prompt)
	if err != nil {
		return models.PromptResponse{}, err
	}
	return models.PromptResponse{Query: question, Answer: answer, Sources: docs}, nil
}

func buildContext(docs []models.SearchResult) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, models.ContextSeparator)
}

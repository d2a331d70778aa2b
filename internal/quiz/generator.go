package quiz

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"lecture-rag/internal/helper"
	"lecture-rag/internal/llmservice"
	"lecture-rag/internal/models"
)

const (
	DefaultCount    = 5
	MaxCount        = 20
	defaultContextK = 8

	DifficultyEasy   = "easy"
	DifficultyNormal = "normal"
	DifficultyHard   = "hard"
)

// Material is where quiz context comes from.
type Material interface {
	Search(ctx context.Context, subject, query string, k int) ([]models.SearchResult, error)
	Sample(ctx context.Context, subject string, n int) ([]models.SearchResult, error)
}

// LinkFetcher returns the readable text of a web page.
type LinkFetcher interface {
	FetchLinkContent(ctx context.Context, url string) (string, error)
}

// Request describes one quiz batch.
type Request struct {
	Subject    string `json:"subject"`
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"`
	Topic      string `json:"topic"`
	Kinds      []Kind `json:"kinds"`
}

// Normalize clamps the count, defaults the difficulty and drops unknown kinds.
func (r Request) Normalize() Request {
	switch {
	case r.Count <= 0:
		r.Count = DefaultCount
	case r.Count > MaxCount:
		r.Count = MaxCount
	}
	switch d := strings.ToLower(strings.TrimSpace(r.Difficulty)); d {
	case DifficultyEasy, DifficultyNormal, DifficultyHard:
		r.Difficulty = d
	default:
		r.Difficulty = DifficultyNormal
	}
	kinds := make([]Kind, 0, len(r.Kinds))
	for _, k := range r.Kinds {
		if parsed, ok := ParseKind(string(k)); ok {
			kinds = append(kinds, parsed)
		}
	}
	r.Kinds = lo.Uniq(kinds)
	if len(r.Kinds) == 0 {
		r.Kinds = []Kind{KindMultiple}
	}
	r.Topic = strings.TrimSpace(r.Topic)
	return r
}

// Generator asks the model for quizzes grounded in lecture material.
type Generator struct {
	llm      llmservice.Completer
	material Material
	links    LinkFetcher
	contextK int
}

func NewGenerator(llm llmservice.Completer, material Material, links LinkFetcher, contextK int) *Generator {
	if contextK <= 0 {
		contextK = defaultContextK
	}
	return &Generator{llm: llm, material: material, links: links, contextK: contextK}
}

// FromSubject builds a quiz from a subject's material: chunks near the topic, or a random sample without one.
func (g *Generator) FromSubject(ctx context.Context, req Request) (Result, error) {
	req = req.Normalize()
	if strings.TrimSpace(req.Subject) == "" {
		return Result{}, ErrNoMaterial
	}

	var (
		docs []models.SearchResult
		err  error
	)
	if req.Topic != "" {
		docs, err = g.material.Search(ctx, req.Subject, req.Topic, g.contextK)
	} else {
		docs, err = g.material.Sample(ctx, req.Subject, g.contextK)
	}
	if err != nil {
		return Result{}, err
	}
	material := strings.Join(lo.Map(docs, func(d models.SearchResult, _ int) string { return d.Content }), "\n")
	if strings.TrimSpace(material) == "" {
		return Result{}, fmt.Errorf("%w for subject %q", ErrNoMaterial, req.Subject)
	}
	return g.generate(ctx, req, req.Subject, material)
}

// FromLink builds a quiz from the paragraphs of a web page. Items are stamped with
// req.Subject, or with the URL when no subject is given.
func (g *Generator) FromLink(ctx context.Context, url string, req Request) (Result, error) {
	req = req.Normalize()
	if g.links == nil {
		return Result{}, fmt.Errorf("%w: link fetching is not configured", ErrNoMaterial)
	}
	content, err := g.links.FetchLinkContent(ctx, url)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNoMaterial, err)
	}
	subject := req.Subject
	if strings.TrimSpace(subject) == "" {
		subject = url
	}
	return g.generate(ctx, req, subject, content)
}

func (g *Generator) generate(ctx context.Context, req Request, subject, material string) (Result, error) {
	prompt := buildPrompt(req, subject, material)
	log.Debug().Str("subject", subject).Int("count", req.Count).Str("difficulty", req.Difficulty).
		Int("material_chars", len(material)).Msg("Generating quiz")

	raw, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	res, err := Validator{Subject: subject}.Parse(raw)
	if err != nil {
		return res, err
	}
	if len(res.Quizzes) > req.Count {
		res.Quizzes = res.Quizzes[:req.Count]
	}
	for i := range res.Quizzes {
		id, err := helper.GenerateUUID()
		if err != nil {
			return Result{}, err
		}
		res.Quizzes[i].ID = id
	}
	log.Info().Str("subject", subject).Int("quizzes", len(res.Quizzes)).Int("dropped", res.Dropped).Msg("Generated quiz")
	return res, nil
}

func buildPrompt(req Request, subject, material string) string {
	kinds := lo.Map(req.Kinds, func(k Kind, _ int) string {
		return fmt.Sprintf("%q (%s)", string(k), k.Label())
	})
	return fmt.Sprintf(models.QuizPromptTemplate, subject, req.Count, req.Difficulty, strings.Join(kinds, ", "), subject, material)
}

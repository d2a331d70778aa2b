package quiz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lecture-rag/internal/llmservice"
	"lecture-rag/internal/models"
)

type scriptedLLM struct {
	reply   string
	err     error
	prompts []string
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

type fakeMaterial struct {
	chunks   []models.SearchResult
	searched string
	sampled  bool
}

func (f *fakeMaterial) Search(_ context.Context, _ string, query string, k int) ([]models.SearchResult, error) {
	f.searched = query
	return f.chunks[:min(k, len(f.chunks))], nil
}

func (f *fakeMaterial) Sample(_ context.Context, _ string, n int) ([]models.SearchResult, error) {
	f.sampled = true
	return f.chunks[:min(n, len(f.chunks))], nil
}

type fakeLinks struct{ text string }

func (f fakeLinks) FetchLinkContent(context.Context, string) (string, error) { return f.text, nil }

const twoQuizzes = `{"quizzes":[
 {"type":"multiple","question":"Which is a scheduler?","options":["RR","TCP","DNS","ARP"],"correct_answer":0,"explanation":"round robin","subject":"ignored"},
 {"type":"ox","question":"Paging avoids external fragmentation.","options":["O","X"],"correct_answer":0,"explanation":"fixed frames","subject":"ignored"}
]}`

func TestRequestNormalize(t *testing.T) {
	r := Request{Count: 99, Difficulty: "HARD", Kinds: []Kind{"ox", "essay", "OX"}}.Normalize()
	if r.Count != MaxCount || r.Difficulty != DifficultyHard {
		t.Fatalf("unexpected normalised request %+v", r)
	}
	if len(r.Kinds) != 1 || r.Kinds[0] != KindOX {
		t.Fatalf("expected only ox, got %v", r.Kinds)
	}
	r = Request{}.Normalize()
	if r.Count != DefaultCount || r.Difficulty != DifficultyNormal || r.Kinds[0] != KindMultiple {
		t.Fatalf("unexpected defaults %+v", r)
	}
}

func TestGenerator_FromSubject(t *testing.T) {
	llm := &scriptedLLM{reply: twoQuizzes}
	mat := &fakeMaterial{chunks: []models.SearchResult{{Content: "round robin scheduling"}, {Content: "paging"}}}
	g := NewGenerator(llm, mat, nil, 8)

	res, err := g.FromSubject(context.Background(), Request{Subject: "OS", Count: 2, Topic: "scheduling"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mat.searched != "scheduling" || mat.sampled {
		t.Fatal("expected topic search, not sampling")
	}
	if len(res.Quizzes) != 2 {
		t.Fatalf("expected 2 quizzes, got %d", len(res.Quizzes))
	}
	for _, q := range res.Quizzes {
		if q.Subject != "OS" {
			t.Fatalf("expected subject stamped as OS, got %s", q.Subject)
		}
		if q.ID == "" {
			t.Fatal("expected quiz id")
		}
	}
	if !strings.Contains(llm.prompts[0], "round robin scheduling") || !strings.Contains(llm.prompts[0], `"OS"`) {
		t.Fatalf("prompt missing material or subject:\n%s", llm.prompts[0])
	}
}

func TestGenerator_TruncatesToCount(t *testing.T) {
	llm := &scriptedLLM{reply: twoQuizzes}
	mat := &fakeMaterial{chunks: []models.SearchResult{{Content: "text"}}}
	res, err := NewGenerator(llm, mat, nil, 8).FromSubject(context.Background(), Request{Subject: "OS", Count: 1})
	if err != nil {
		t.Fatal(err)
	}
	if !mat.sampled {
		t.Fatal("expected sampling without a topic")
	}
	if len(res.Quizzes) != 1 {
		t.Fatalf("expected 1 quiz, got %d", len(res.Quizzes))
	}
}

func TestGenerator_NoMaterial(t *testing.T) {
	llm := &scriptedLLM{reply: twoQuizzes}
	g := NewGenerator(llm, &fakeMaterial{}, nil, 8)
	if _, err := g.FromSubject(context.Background(), Request{Subject: "empty"}); !errors.Is(err, ErrNoMaterial) {
		t.Fatalf("expected ErrNoMaterial, got %v", err)
	}
	if _, err := g.FromSubject(context.Background(), Request{}); !errors.Is(err, ErrNoMaterial) {
		t.Fatalf("expected ErrNoMaterial for blank subject, got %v", err)
	}
	if len(llm.prompts) != 0 {
		t.Fatal("the model must not be called without material")
	}
}

func TestGenerator_CallFailure(t *testing.T) {
	llm := &scriptedLLM{err: &llmservice.CallError{Op: "llm", Err: errors.New("timeout")}}
	mat := &fakeMaterial{chunks: []models.SearchResult{{Content: "text"}}}
	_, err := NewGenerator(llm, mat, nil, 8).FromSubject(context.Background(), Request{Subject: "OS"})
	var cerr *llmservice.CallError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CallError, got %v", err)
	}
}

func TestGenerator_FromLink(t *testing.T) {
	llm := &scriptedLLM{reply: twoQuizzes}
	g := NewGenerator(llm, &fakeMaterial{}, fakeLinks{text: "paragraph one\nparagraph two"}, 8)
	res, err := g.FromLink(context.Background(), "https://example.com/a", Request{Count: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Quizzes[0].Subject != "https://example.com/a" {
		t.Fatalf("expected url as subject, got %s", res.Quizzes[0].Subject)
	}
	if !strings.Contains(llm.prompts[0], "paragraph two") {
		t.Fatal("prompt missing link content")
	}
}

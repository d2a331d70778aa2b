package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lecture-rag/internal/llmservice"
	"lecture-rag/internal/models"
)

type fakeLLM struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.reply, f.err
}

type fakeRetriever struct {
	docs map[string][]models.SearchResult
	k    int
}

func (f *fakeRetriever) Search(_ context.Context, subject, _ string, k int) ([]models.SearchResult, error) {
	f.k = k
	docs := f.docs[subject]
	return docs[:min(k, len(docs))], nil
}

func (f *fakeRetriever) SubjectInfo(subject string) models.SubjectInfo {
	if _, ok := f.docs[subject]; !ok {
		return models.SubjectInfo{Name: subject, Status: models.StatusUninitialized}
	}
	return models.SubjectInfo{Name: subject, Status: models.StatusActive, DocumentCount: len(f.docs[subject])}
}

func TestChatbot_Ask(t *testing.T) {
	llm := &fakeLLM{reply: "A semaphore is a counter."}
	ret := &fakeRetriever{docs: map[string][]models.SearchResult{
		"OS": {
			{ID: "chunk-00000000", Content: "Semaphores guard critical sections", Metadata: map[string]string{models.MetaSource: "w3.pdf"}},
			{ID: "chunk-00000001", Content: "Mutexes are binary semaphores"},
		},
	}}
	bot := NewChatbot(llm, ret, 0)

	resp, err := bot.Ask(context.Background(), "OS", "What is a semaphore?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ret.k != 4 {
		t.Fatalf("expected default top_k 4, got %d", ret.k)
	}
	if resp.Answer != "A semaphore is a counter." || len(resp.Sources) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Sources[0].Source() != "w3.pdf" {
		t.Fatalf("expected source w3.pdf, got %q", resp.Sources[0].Source())
	}
	for _, want := range []string{"Semaphores guard critical sections", "Mutexes are binary semaphores", "What is a semaphore?", models.NotInMaterialAnswer} {
		if !strings.Contains(llm.prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, llm.prompt)
		}
	}
}

func TestChatbot_UnknownSubject(t *testing.T) {
	llm := &fakeLLM{reply: "x"}
	bot := NewChatbot(llm, &fakeRetriever{}, 4)
	for _, subject := range []string{"", "ghost"} {
		if _, err := bot.Ask(context.Background(), subject, "hi"); !errors.Is(err, ErrNoMaterial) {
			t.Fatalf("%q: expected ErrNoMaterial, got %v", subject, err)
		}
	}
	if llm.prompt != "" {
		t.Fatal("the model must not be called without material")
	}
}

func TestChatbot_CallError(t *testing.T) {
	llm := &fakeLLM{err: &llmservice.CallError{Op: "llm", Err: errors.New("rate limited")}}
	ret := &fakeRetriever{docs: map[string][]models.SearchResult{"OS": {{Content: "x"}}}}
	_, err := NewChatbot(llm, ret, 4).Ask(context.Background(), "OS", "q")
	var cerr *llmservice.CallError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CallError, got %v", err)
	}
}

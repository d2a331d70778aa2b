package chromemdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"lecture-rag/internal/models"
)

func TestManager_CreateOrUpdateAndInfo(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(t.TempDir(), testOptions())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	info := m.SubjectInfo("physics")
	if info.Status != models.StatusUninitialized || info.DocumentCount != 0 {
		t.Fatalf("expected uninitialized subject, got %+v", info)
	}
	if _, ok := m.Get("physics"); ok {
		t.Fatal("Get must not create subjects")
	}

	if _, err := m.CreateOrUpdate(ctx, "physics", makeChunks("w1.pdf", "newton", "force"), "w1.pdf"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.CreateOrUpdate(ctx, "physics", makeChunks("w1.pdf", "mass"), "w1.pdf"); err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if _, err := m.CreateOrUpdate(ctx, "physics", makeChunks("w2.pdf", "energy"), "w2.pdf"); err != nil {
		t.Fatalf("update: %v", err)
	}

	info = m.SubjectInfo("physics")
	if info.Status != models.StatusActive {
		t.Fatalf("expected active, got %s", info.Status)
	}
	if info.DocumentCount != 4 {
		t.Fatalf("expected 4 chunks, got %d", info.DocumentCount)
	}
	if info.UploadedFileCount != 2 {
		t.Fatalf("expected 2 uploaded files, got %d", info.UploadedFileCount)
	}
	if !m.HasUploaded("physics", "w1.pdf") || m.HasUploaded("physics", "w3.pdf") {
		t.Fatalf("unexpected manifest %v", m.UploadedFiles("physics"))
	}
}

func TestManager_RejectsInvalidSubjects(t *testing.T) {
	m, _ := NewManager(t.TempDir(), testOptions())
	for _, name := range []string{"", "   ", "..", "a/b", `a\b`} {
		_, err := m.CreateOrUpdate(context.Background(), name, makeChunks("x.pdf", "x"), "")
		if !errors.Is(err, ErrInvalidSubject) {
			t.Fatalf("%q: expected ErrInvalidSubject, got %v", name, err)
		}
	}
	// case and surrounding whitespace are significant
	m.CreateOrUpdate(context.Background(), "Math", makeChunks("x.pdf", "x"), "")
	m.CreateOrUpdate(context.Background(), " Math", makeChunks("x.pdf", "x"), "")
	if got := len(m.ListSubjects()); got != 2 {
		t.Fatalf("expected 2 distinct subjects, got %d", got)
	}
}

func TestManager_DeleteRemovesMemoryAndDisk(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	m, _ := NewManager(base, testOptions())
	m.CreateOrUpdate(ctx, "history", makeChunks("h.pdf", "rome"), "h.pdf")
	m.CreateOrUpdate(ctx, "art", makeChunks("a.pdf", "baroque"), "a.pdf")

	if err := m.Delete("history"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if slices.Contains(m.ListSubjects(), "history") {
		t.Fatalf("deleted subject still listed: %v", m.ListSubjects())
	}
	if _, err := os.Stat(filepath.Join(base, "history")); !os.IsNotExist(err) {
		t.Fatalf("expected directory removed, got %v", err)
	}
	if err := m.Delete("never-existed"); err != nil {
		t.Fatalf("deleting unknown subject should be a no-op, got %v", err)
	}
	if got := m.ListSubjects(); len(got) != 1 || got[0] != "art" {
		t.Fatalf("expected only art, got %v", got)
	}
}

func TestManager_ReloadsAndSkipsCorruptSubjects(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	m, _ := NewManager(base, testOptions())
	m.CreateOrUpdate(ctx, "good", makeChunks("g.pdf", "alpha", "beta"), "g.pdf")
	m.CreateOrUpdate(ctx, "bad", makeChunks("b.pdf", "gamma"), "b.pdf")

	if err := os.WriteFile(filepath.Join(base, "bad", indexFile), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "stray.txt"), []byte("not a subject"), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewManager(base, testOptions())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.ListSubjects(); len(got) != 1 || got[0] != "good" {
		t.Fatalf("expected only good subject, got %v", got)
	}
	info := reloaded.SubjectInfo("good")
	if info.DocumentCount != 2 || info.UploadedFileCount != 1 {
		t.Fatalf("unexpected info after reload: %+v", info)
	}

	errs := reloaded.LoadErrors()
	if len(errs) != 1 {
		t.Fatalf("expected one load error, got %v", errs)
	}
	var lerr *LoadError
	if !errors.As(errs[0], &lerr) || lerr.Subject != "bad" {
		t.Fatalf("expected LoadError for bad, got %v", errs[0])
	}
}

func TestManager_SearchUnknownSubject(t *testing.T) {
	m, _ := NewManager(t.TempDir(), testOptions())
	res, err := m.Search(context.Background(), "ghost", "anything", 4)
	if err != nil || len(res) != 0 {
		t.Fatalf("expected empty result, got %v (%v)", res, err)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding service down")
}

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

func TestManager_SkippedSubjectKeepsItsData(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	m, _ := NewManager(base, testOptions())
	if _, err := m.CreateOrUpdate(ctx, "os", makeChunks("os.pdf", "paging", "threads", "locks"), "os.pdf"); err != nil {
		t.Fatalf("create: %v", err)
	}
	index := filepath.Join(base, "os", indexFile)
	before, err := os.ReadFile(index)
	if err != nil {
		t.Fatal(err)
	}

	rotated := testOptions()
	rotated.ChecksumKey = make([]byte, 32)
	reloaded, err := NewManager(base, rotated)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.LoadErrors()) != 1 {
		t.Fatalf("expected os to be skipped, got %v", reloaded.LoadErrors())
	}

	var lerr *LoadError
	_, err = reloaded.CreateOrUpdate(ctx, "os", makeChunks("os2.pdf", "deadlock"), "os2.pdf")
	if !errors.As(err, &lerr) || lerr.Subject != "os" {
		t.Fatalf("expected LoadError for skipped subject, got %v", err)
	}
	after, err := os.ReadFile(index)
	if err != nil || string(after) != string(before) {
		t.Fatalf("skipped subject index must be untouched (%v)", err)
	}

	rotated.Embedder = failingEmbedder{}
	failing, _ := NewManager(base, rotated)
	if _, err := failing.CreateOrUpdate(ctx, "os", makeChunks("os2.pdf", "deadlock"), "os2.pdf"); err == nil {
		t.Fatal("expected an error")
	}
	if _, err := os.Stat(index); err != nil {
		t.Fatalf("failed update must not remove the saved index: %v", err)
	}

	if err := reloaded.Delete("os"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(reloaded.LoadErrors()) != 0 {
		t.Fatalf("expected load error cleared after delete, got %v", reloaded.LoadErrors())
	}
	if _, err := reloaded.CreateOrUpdate(ctx, "os", makeChunks("os2.pdf", "deadlock"), "os2.pdf"); err != nil {
		t.Fatalf("recreate after delete: %v", err)
	}
	if got := reloaded.SubjectInfo("os").DocumentCount; got != 1 {
		t.Fatalf("expected a fresh subject with 1 chunk, got %d", got)
	}
}

func TestManager_FailedCreateRemovesNewDirectory(t *testing.T) {
	base := t.TempDir()
	opts := testOptions()
	opts.Embedder = failingEmbedder{}
	m, _ := NewManager(base, opts)
	if _, err := m.CreateOrUpdate(context.Background(), "bio", makeChunks("b.pdf", "cells"), "b.pdf"); err == nil {
		t.Fatal("expected an error")
	}
	if _, err := os.Stat(filepath.Join(base, "bio")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no directory for a subject never created, got %v", err)
	}
	if len(m.ListSubjects()) != 0 {
		t.Fatalf("expected no subjects, got %v", m.ListSubjects())
	}
}

func TestManager_ManifestNamesSurviveReload(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	m, _ := NewManager(base, testOptions())
	name := "week\n1.pdf"
	if _, err := m.CreateOrUpdate(ctx, "math", makeChunks(name, "limits"), name); err != nil {
		t.Fatalf("create: %v", err)
	}
	reloaded, _ := NewManager(base, testOptions())
	for _, mgr := range []*Manager{m, reloaded} {
		if !mgr.HasUploaded("math", name) || !mgr.HasUploaded("math", "week 1.pdf") {
			t.Fatalf("expected the file recorded, manifest %q", mgr.UploadedFiles("math"))
		}
		if files := mgr.UploadedFiles("math"); len(files) != 1 || files[0] != "week 1.pdf" {
			t.Fatalf("unexpected manifest %q", files)
		}
	}
}

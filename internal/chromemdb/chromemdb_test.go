package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"lecture-rag/internal/embedding"
	"lecture-rag/internal/models"
)

func testOptions() Options {
	return Options{
		Embedder:       embedding.NewHashEmbedder(64),
		EmbeddingModel: "hash-64",
	}
}

func makeChunks(source string, texts ...string) []models.Chunk {
	chunks := make([]models.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = models.Chunk{Content: t, Source: source, PageNumber: 1, ChunkID: i}
	}
	return chunks
}

func TestSubjectStore_MergeGrowsMonotonically(t *testing.T) {
	ctx := context.Background()
	s, err := NewSubjectStore("os", "", testOptions())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := s.CreateOrMerge(ctx, makeChunks("a.pdf", "process scheduling", "virtual memory")); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	after1 := s.DocumentCount()
	if after1 != 2 {
		t.Fatalf("expected 2 chunks, got %d", after1)
	}
	// identical content must not overwrite earlier chunks
	if _, err := s.CreateOrMerge(ctx, makeChunks("a.pdf", "process scheduling", "deadlock", "paging")); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if got := s.DocumentCount(); got != after1+3 {
		t.Fatalf("expected %d chunks, got %d", after1+3, got)
	}
}

func TestSubjectStore_EmptyMerge(t *testing.T) {
	s, _ := NewSubjectStore("os", "", testOptions())
	if _, err := s.CreateOrMerge(context.Background(), nil); !errors.Is(err, ErrNoChunks) {
		t.Fatalf("expected ErrNoChunks, got %v", err)
	}
}

func TestSubjectStore_SimilaritySearchBounds(t *testing.T) {
	ctx := context.Background()
	s, _ := NewSubjectStore("net", "", testOptions())

	res, err := s.SimilaritySearch(ctx, "tcp", 3)
	if err != nil || len(res) != 0 {
		t.Fatalf("expected no results from empty store, got %d (%v)", len(res), err)
	}
	if _, err := s.SimilaritySearch(ctx, "tcp", 0); !errors.Is(err, ErrInvalidK) {
		t.Fatalf("expected ErrInvalidK, got %v", err)
	}

	_, err = s.CreateOrMerge(ctx, makeChunks("net.pdf",
		"tcp congestion control uses a sliding window",
		"udp is connectionless",
		"ip routing forwards packets"))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	for _, k := range []int{1, 2, 3, 10} {
		res, err := s.SimilaritySearch(ctx, "tcp sliding window", k)
		if err != nil {
			t.Fatalf("search k=%d: %v", k, err)
		}
		if want := min(k, 3); len(res) != want {
			t.Fatalf("k=%d: expected %d results, got %d", k, want, len(res))
		}
	}

	res, _ = s.SimilaritySearch(ctx, "tcp sliding window", 3)
	if res[0].Source() != "net.pdf" || res[0].Content != "tcp congestion control uses a sliding window" {
		t.Fatalf("expected tcp chunk first, got %+v", res[0])
	}
	for i := 1; i < len(res); i++ {
		if res[i].Similarity > res[i-1].Similarity {
			t.Fatalf("results not ordered by similarity: %v > %v", res[i].Similarity, res[i-1].Similarity)
		}
	}

	retrieve := s.Retriever(2)
	got, err := retrieve(ctx, "udp")
	if err != nil || len(got) != 2 || got[0].Content != "udp is connectionless" {
		t.Fatalf("unexpected retriever results %+v (%v)", got, err)
	}
}

func TestSubjectStore_Sample(t *testing.T) {
	ctx := context.Background()
	s, _ := NewSubjectStore("db", "", testOptions())
	if res, _ := s.Sample(ctx, 3); len(res) != 0 {
		t.Fatalf("expected empty sample, got %d", len(res))
	}
	s.CreateOrMerge(ctx, makeChunks("db.pdf", "joins", "indexes", "transactions", "locks"))
	res, err := s.Sample(ctx, 3)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(res))
	}
	seen := map[string]bool{}
	for _, r := range res {
		if seen[r.ID] {
			t.Fatalf("duplicate sample %s", r.ID)
		}
		seen[r.ID] = true
	}
	if res, _ := s.Sample(ctx, 10); len(res) != 4 {
		t.Fatalf("expected sample capped at 4, got %d", len(res))
	}
}

func TestSubjectStore_SaveLoadRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		t.Run(fmt.Sprintf("compress=%v", compress), func(t *testing.T) {
			ctx := context.Background()
			dir := filepath.Join(t.TempDir(), "algo")
			opts := testOptions()
			opts.Compress = compress
			opts.EncryptionKey = "0123456789abcdef0123456789abcdef"

			s, _ := NewSubjectStore("algo", dir, opts)
			if _, err := s.CreateOrMerge(ctx, makeChunks("algo.pdf", "quicksort partitions", "heaps are trees")); err != nil {
				t.Fatalf("merge: %v", err)
			}
			if _, err := os.Stat(filepath.Join(dir, checksumFile)); err != nil {
				t.Fatalf("expected checksum file: %v", err)
			}

			loaded, err := LoadSubjectStore("algo", dir, opts)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.DocumentCount() != 2 {
				t.Fatalf("expected 2 chunks after load, got %d", loaded.DocumentCount())
			}
			res, err := loaded.SimilaritySearch(ctx, "quicksort", 1)
			if err != nil || len(res) != 1 || res[0].Content != "quicksort partitions" {
				t.Fatalf("unexpected search after load: %+v (%v)", res, err)
			}
			// ids continue after reload
			loaded.CreateOrMerge(ctx, makeChunks("more.pdf", "graphs"))
			if loaded.DocumentCount() != 3 {
				t.Fatalf("expected 3 chunks, got %d", loaded.DocumentCount())
			}
		})
	}
}

func TestLoadSubjectStore_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "bio")
	opts := testOptions()
	s, _ := NewSubjectStore("bio", dir, opts)
	if _, err := s.CreateOrMerge(ctx, makeChunks("bio.pdf", "cells divide")); err != nil {
		t.Fatalf("merge: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, indexFile), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte("tampered"))
	f.Close()

	if _, err := LoadSubjectStore("bio", dir, opts); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}

	os.Remove(filepath.Join(dir, checksumFile))
	if _, err := LoadSubjectStore("bio", dir, opts); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch for missing sum, got %v", err)
	}
}

func TestLoadSubjectStore_WrongChecksumKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chem")
	opts := testOptions()
	s, _ := NewSubjectStore("chem", dir, opts)
	s.CreateOrMerge(context.Background(), makeChunks("chem.pdf", "atoms bond"))

	other := opts
	other.ChecksumKey = make([]byte, 32)
	if _, err := LoadSubjectStore("chem", dir, other); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch with another key, got %v", err)
	}
}

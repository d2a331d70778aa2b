package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"lecture-rag/internal/embedding"
	"lecture-rag/internal/llmservice"
	"lecture-rag/internal/models"
)

const (
	collectionName     = "chunks"
	indexFile          = "index.gob"
	compressedSuffix   = ".gz"
	metaEmbeddingModel = "embedding_model"
	chunkIDFormat      = "chunk-%08d"
)

var (
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrInvalidSubject   = errors.New("invalid subject name")
	ErrNoChunks         = errors.New("no chunks to index")
	ErrInvalidK         = errors.New("k must be a positive integer")
	ErrChecksumMismatch = errors.New("index checksum mismatch")
)

// LoadError reports a persisted subject that could not be restored.
type LoadError struct {
	Subject string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load subject %q: %v", e.Subject, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Options are shared by every subject store of a manager.
type Options struct {
	Embedder       embedding.Embedder
	EmbeddingModel string
	Compress       bool
	// EncryptionKey, when set, must be 32 bytes; chromem encrypts the exported index with AES-GCM.
	EncryptionKey string
	// ChecksumKey keys the HighwayHash over the exported index. Nil uses the built-in key.
	ChecksumKey []byte
}

// SubjectStore is one subject's searchable chunk collection.
// All chunks must be embedded with the same model; this is not checked.
type SubjectStore struct {
	name       string
	dir        string
	db         *chromem.DB
	collection *chromem.Collection
	opts       Options
	mu         sync.RWMutex
}

// NewSubjectStore creates an empty store. With a non-empty dir every merge is persisted there.
func NewSubjectStore(name, dir string, opts Options) (*SubjectStore, error) {
	db := chromem.NewDB()
	c, err := db.CreateCollection(collectionName, map[string]string{metaEmbeddingModel: opts.EmbeddingModel}, embedFunc(opts.Embedder))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &SubjectStore{name: name, dir: dir, db: db, collection: c, opts: opts}, nil
}

func embedFunc(e embedding.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.EmbedQuery(ctx, text)
	}
}

func chunkID(i int) string {
	return fmt.Sprintf(chunkIDFormat, i)
}

// Name returns the subject name.
func (s *SubjectStore) Name() string { return s.name }

// Dir returns the persistence directory, empty for memory-only stores.
func (s *SubjectStore) Dir() string { return s.dir }

// DocumentCount returns the number of indexed chunks.
func (s *SubjectStore) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count()
}

// CreateOrMerge embeds chunks and adds them after the existing ones, then persists the store.
// It returns the number of chunks added.
func (s *SubjectStore) CreateOrMerge(ctx context.Context, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, ErrNoChunks
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := embedding.EmbedChunks(ctx, s.opts.Embedder, texts)
	if err != nil {
		return 0, &llmservice.CallError{Op: "embedding", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	offset := s.collection.Count()
	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		meta := ch.Metadata()
		meta[metaEmbeddingModel] = s.opts.EmbeddingModel
		docs[i] = chromem.Document{
			ID:        chunkID(offset + i),
			Content:   ch.Content,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("failed to add documents: %w", err)
	}
	log.Info().Str("subject", s.name).Int("added", len(docs)).Int("total", s.collection.Count()).Msg("Merged chunks into subject store")

	if s.dir != "" {
		if err := s.save(s.dir); err != nil {
			return len(docs), err
		}
	}
	return len(docs), nil
}

// SimilaritySearch returns up to k chunks nearest to query, most similar first.
// An empty store yields no results.
func (s *SubjectStore) SimilaritySearch(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if s.DocumentCount() == 0 {
		return nil, nil
	}
	vec, err := s.opts.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &llmservice.CallError{Op: "embedding", Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	n := min(k, s.collection.Count())
	results, err := s.collection.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	out := make([]models.SearchResult, len(results))
	for i, r := range results {
		out[i] = models.SearchResult{ID: r.ID, Content: r.Content, Metadata: r.Metadata, Similarity: r.Similarity}
	}
	return out, nil
}

// Retriever binds k so callers only supply the query.
func (s *SubjectStore) Retriever(k int) func(ctx context.Context, query string) ([]models.SearchResult, error) {
	return func(ctx context.Context, query string) ([]models.SearchResult, error) {
		return s.SimilaritySearch(ctx, query, k)
	}
}

// Sample returns up to n chunks chosen uniformly at random.
func (s *SubjectStore) Sample(ctx context.Context, n int) ([]models.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := s.collection.Count()
	if n <= 0 || count == 0 {
		return nil, nil
	}
	picks := rand.Perm(count)[:min(n, count)]
	out := make([]models.SearchResult, 0, len(picks))
	for _, i := range picks {
		doc, err := s.collection.GetByID(ctx, chunkID(i))
		if err != nil {
			return nil, fmt.Errorf("failed to read chunk %d: %w", i, err)
		}
		out = append(out, models.SearchResult{ID: doc.ID, Content: doc.Content, Metadata: doc.Metadata})
	}
	return out, nil
}

// Save writes the index and its checksum into dir.
func (s *SubjectStore) Save(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.save(dir)
}

func (s *SubjectStore) save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create subject directory: %w", err)
	}
	path := indexPath(dir, s.opts.Compress)
	tmp := path + ".tmp"
	if err := s.db.ExportToFile(tmp, s.opts.Compress, s.opts.EncryptionKey, collectionName); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to export index: %w", err)
	}
	sum, err := fileChecksum(tmp, s.opts.ChecksumKey)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	// a stale index from the other compression setting would be ambiguous on load
	_ = os.Remove(indexPath(dir, !s.opts.Compress))
	if err := writeChecksum(dir, sum); err != nil {
		return err
	}
	log.Debug().Str("subject", s.name).Str("path", path).Bool("compress", s.opts.Compress).Msg("Saved subject store")
	return nil
}

// LoadSubjectStore restores a store saved in dir. The index is only decoded after its checksum matches.
func LoadSubjectStore(name, dir string, opts Options) (*SubjectStore, error) {
	path, err := findIndex(dir)
	if err != nil {
		return nil, err
	}
	if err := verifyChecksum(dir, path, opts.ChecksumKey); err != nil {
		return nil, err
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(path, opts.EncryptionKey, collectionName); err != nil {
		return nil, fmt.Errorf("failed to import index: %w", err)
	}
	c := db.GetCollection(collectionName, embedFunc(opts.Embedder))
	if c == nil {
		return nil, fmt.Errorf("index %s has no %q collection", path, collectionName)
	}
	s := &SubjectStore{name: name, dir: dir, db: db, collection: c, opts: opts}
	s.warnOnModelMismatch()
	return s, nil
}

func (s *SubjectStore) warnOnModelMismatch() {
	if s.collection.Count() == 0 || s.opts.EmbeddingModel == "" {
		return
	}
	doc, err := s.collection.GetByID(context.Background(), chunkID(0))
	if err != nil {
		return
	}
	if stored := doc.Metadata[metaEmbeddingModel]; stored != "" && stored != s.opts.EmbeddingModel {
		log.Warn().Str("subject", s.name).Str("stored_model", stored).Str("current_model", s.opts.EmbeddingModel).
			Msg("Subject was embedded with a different model, similarity results will be unreliable")
	}
}

func indexPath(dir string, compress bool) string {
	if compress {
		return filepath.Join(dir, indexFile+compressedSuffix)
	}
	return filepath.Join(dir, indexFile)
}

func findIndex(dir string) (string, error) {
	for _, compress := range []bool{false, true} {
		p := indexPath(dir, compress)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("no index file in %s", dir)
}

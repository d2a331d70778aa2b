package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"lecture-rag/internal/config"
)

// Embedder turns text into vectors. Every vector in one subject store must come from the same Embedder.
type Embedder = embeddings.Embedder

// New builds the embedder selected by cfg.Type
func New(cfg *config.EmbedConfig) (Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"type":     cfg.Type,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Creating embedder")

	switch cfg.Type {
	case config.EmbedOpenAI:
		return NewEmbedder(cfg.Key, cfg.BaseURL, cfg.Model)
	case config.EmbedOllama:
		return NewOllamaEmbedder(cfg)
	case config.EmbedHash:
		return NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedder type: %s", cfg.Type)
	}
}

// ModelName identifies the embedding model so stores can record what produced their vectors.
func ModelName(cfg *config.EmbedConfig) string {
	if cfg.Type == config.EmbedHash {
		return fmt.Sprintf("hash-%d", cfg.Dimension)
	}
	return cfg.Type + ":" + cfg.Model
}

// NewEmbedder creates an OpenAI (or OpenAI-compatible) embedder
func NewEmbedder(openAIKey, baseURL, embeddingModel string) (*embeddings.EmbedderImpl, error) {
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(openAIKey, "Bearer ")),
		openai.WithEmbeddingModel(embeddingModel),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.EmbedConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// EmbedChunks embeds the chunk texts in one batch call.
func EmbedChunks(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

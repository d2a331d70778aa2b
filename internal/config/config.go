package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"

	EmbedOpenAI = "openai"
	EmbedOllama = "ollama"
	EmbedHash   = "hash"

	DriverPostgres = "postgres"
	DriverPQ       = "pq"
	DriverSQLite   = "sqlite"

	defaultOpenAIModel    = "gpt-4o"
	defaultClaudeModel    = "claude-3-7-sonnet-20250219"
	defaultEmbeddingModel = "text-embedding-ada-002"
	defaultOllamaURL      = "http://localhost:11434"
	defaultOllamaModel    = "nomic-embed-text"
	defaultHashDimension  = 256

	defaultChunkSize     = 1000
	defaultChunkOverlap  = 200
	defaultMaxFileSizeMB = 10
	defaultTopK          = 4
	defaultQuizContextK  = 8
	defaultBasePath      = "./subjects"
	defaultAddr          = ":8080"
	defaultWebTimeout    = 7
	defaultLLMTimeout    = 120
	defaultQuizTemp      = 0.3
	defaultLogLevel      = "debug"
)

// LLMConfig selects the chat/quiz model provider.
type LLMConfig struct {
	Provider        string  `yaml:"provider"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"`
	OpenAIKey       string  `yaml:"openai_key"`
	AnthropicKey    string  `yaml:"anthropic_key"`
	Temperature     float64 `yaml:"temperature"`
	ChatTemperature float64 `yaml:"chat_temperature"`
	TimeoutSecs     int     `yaml:"timeout_secs"`

	// temperatureSet marks an explicit temperature, so 0 is kept instead of defaulted.
	temperatureSet bool
}

// Key returns the credential for the selected provider.
func (c LLMConfig) Key() string {
	if c.Provider == ProviderClaude {
		return c.AnthropicKey
	}
	return c.OpenAIKey
}

// EmbedConfig selects the embedding service.
type EmbedConfig struct {
	Type      string `yaml:"type"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type RAGConfig struct {
	ChunkSize     int    `yaml:"chunk_size"`
	ChunkOverlap  int    `yaml:"chunk_overlap"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb"`
	TopK          int    `yaml:"top_k"`
	QuizContextK  int    `yaml:"quiz_context_k"`
	EncryptionKey string `yaml:"encryption_key"`

	chunkOverlapSet bool
}

// MaxFileSizeBytes is the upload limit in bytes.
func (c RAGConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

type StoreConfig struct {
	BasePath    string `yaml:"base_path"`
	Compress    bool   `yaml:"compress"`
	ChecksumKey string `yaml:"checksum_key"`
}

// DatabaseConfig configures the optional wrong-answer database. An empty driver keeps the log in memory.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type WebConfig struct {
	TimeoutSecs int `yaml:"timeout_secs"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	EmbedLLM EmbedConfig    `yaml:"embed_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Web      WebConfig      `yaml:"web"`
	Log      LogConfig      `yaml:"log"`
}

// ValidationError reports a configuration problem that must stop the process at startup.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// LoadConfig reads the YAML file at path, applies environment overrides and defaults.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if err := markExplicit(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// markExplicit records the settings whose zero value is meaningful when the file sets them.
func markExplicit(data []byte, cfg *Config) error {
	var explicit struct {
		LLM struct {
			Temperature *float64 `yaml:"temperature"`
		} `yaml:"llm"`
		RAG struct {
			ChunkOverlap *int `yaml:"chunk_overlap"`
		} `yaml:"rag"`
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return err
	}
	cfg.LLM.temperatureSet = explicit.LLM.Temperature != nil
	cfg.RAG.chunkOverlapSet = explicit.RAG.ChunkOverlap != nil
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("MODEL_TYPE"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIKey = v
		if cfg.EmbedLLM.Key == "" {
			cfg.EmbedLLM.Key = v
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicKey = v
	}
	if v := os.Getenv("STORE_BASE_PATH"); v != "" {
		cfg.Store.BasePath = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	ints := []struct {
		name string
		dst  *int
		set  *bool
	}{
		{"MAX_FILE_SIZE_MB", &cfg.RAG.MaxFileSizeMB, nil},
		{"CHUNK_SIZE", &cfg.RAG.ChunkSize, nil},
		{"CHUNK_OVERLAP", &cfg.RAG.ChunkOverlap, &cfg.RAG.chunkOverlapSet},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ValidationError{Field: e.name, Reason: fmt.Sprintf("not an integer: %q", v)}
		}
		*e.dst = n
		if e.set != nil {
			*e.set = true
		}
	}
	return nil
}

// ApplyDefaults fills every zero value with its default.
func ApplyDefaults(cfg *Config) {
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOpenAI
	}
	if cfg.LLM.Model == "" {
		if cfg.LLM.Provider == ProviderClaude {
			cfg.LLM.Model = defaultClaudeModel
		} else {
			cfg.LLM.Model = defaultOpenAIModel
		}
	}
	if cfg.LLM.Temperature == 0 && !cfg.LLM.temperatureSet {
		cfg.LLM.Temperature = defaultQuizTemp
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = defaultLLMTimeout
	}

	if cfg.EmbedLLM.Type == "" {
		cfg.EmbedLLM.Type = EmbedOpenAI
	}
	switch cfg.EmbedLLM.Type {
	case EmbedOpenAI:
		if cfg.EmbedLLM.Model == "" {
			cfg.EmbedLLM.Model = defaultEmbeddingModel
		}
		if cfg.EmbedLLM.Key == "" {
			cfg.EmbedLLM.Key = cfg.LLM.OpenAIKey
		}
	case EmbedOllama:
		if cfg.EmbedLLM.BaseURL == "" {
			cfg.EmbedLLM.BaseURL = defaultOllamaURL
		}
		if cfg.EmbedLLM.Model == "" {
			cfg.EmbedLLM.Model = defaultOllamaModel
		}
	case EmbedHash:
		if cfg.EmbedLLM.Dimension == 0 {
			cfg.EmbedLLM.Dimension = defaultHashDimension
		}
	}

	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.ChunkOverlap == 0 && !cfg.RAG.chunkOverlapSet {
		cfg.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.RAG.MaxFileSizeMB == 0 {
		cfg.RAG.MaxFileSizeMB = defaultMaxFileSizeMB
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.QuizContextK == 0 {
		cfg.RAG.QuizContextK = defaultQuizContextK
	}
	if cfg.Store.BasePath == "" {
		cfg.Store.BasePath = defaultBasePath
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.Web.TimeoutSecs == 0 {
		cfg.Web.TimeoutSecs = defaultWebTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.LLM.OpenAIKey) == "" {
			return &ValidationError{Field: "llm.openai_key", Reason: "OPENAI_API_KEY is not set"}
		}
	case ProviderClaude:
		if strings.TrimSpace(c.LLM.AnthropicKey) == "" {
			return &ValidationError{Field: "llm.anthropic_key", Reason: "ANTHROPIC_API_KEY is not set"}
		}
	default:
		return &ValidationError{Field: "llm.provider", Reason: fmt.Sprintf("unsupported provider %q (openai or claude)", c.LLM.Provider)}
	}

	switch c.EmbedLLM.Type {
	case EmbedOpenAI:
		if strings.TrimSpace(c.EmbedLLM.Key) == "" {
			return &ValidationError{Field: "embed_llm.key", Reason: "an OpenAI key is required for openai embeddings"}
		}
	case EmbedOllama, EmbedHash:
	default:
		return &ValidationError{Field: "embed_llm.type", Reason: fmt.Sprintf("unsupported embedder %q", c.EmbedLLM.Type)}
	}

	if c.RAG.ChunkSize <= 0 {
		return &ValidationError{Field: "rag.chunk_size", Reason: "must be positive"}
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return &ValidationError{Field: "rag.chunk_overlap", Reason: "must be between 0 and chunk_size"}
	}
	if c.RAG.MaxFileSizeMB <= 0 {
		return &ValidationError{Field: "rag.max_file_size_mb", Reason: "must be positive"}
	}
	if c.RAG.EncryptionKey != "" && len(c.RAG.EncryptionKey) != 32 {
		return &ValidationError{Field: "rag.encryption_key", Reason: "must be exactly 32 bytes"}
	}
	if c.Store.ChecksumKey != "" {
		if b, err := hex.DecodeString(c.Store.ChecksumKey); err != nil || len(b) != 32 {
			return &ValidationError{Field: "store.checksum_key", Reason: "must be 64 hex characters"}
		}
	}

	switch c.Database.Driver {
	case "":
	case DriverPostgres, DriverPQ, DriverSQLite:
		if c.Database.DSN == "" {
			return &ValidationError{Field: "database.dsn", Reason: "required when a database driver is set"}
		}
	default:
		return &ValidationError{Field: "database.driver", Reason: fmt.Sprintf("unsupported driver %q", c.Database.Driver)}
	}
	return nil
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"MODEL_TYPE", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "STORE_BASE_PATH",
		"DATABASE_DSN", "MAX_FILE_SIZE_MB", "CHUNK_SIZE", "CHUNK_OVERLAP"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RAG.ChunkSize != 1000 || cfg.RAG.ChunkOverlap != 200 {
		t.Fatalf("expected chunk defaults 1000/200, got %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.RAG.MaxFileSizeMB != 10 {
		t.Fatalf("expected 10MB limit, got %d", cfg.RAG.MaxFileSizeMB)
	}
	if cfg.LLM.Provider != ProviderOpenAI || cfg.LLM.Model != "gpt-4o" {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Fatalf("expected quiz temperature 0.3, got %v", cfg.LLM.Temperature)
	}
	if cfg.Store.BasePath != "./subjects" {
		t.Fatalf("unexpected base path %s", cfg.Store.BasePath)
	}
}

func TestLoadConfig_YAMLAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
llm:
  provider: claude
embed_llm:
  type: hash
rag:
  chunk_size: 500
  chunk_overlap: 50
store:
  base_path: /tmp/x
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("CHUNK_SIZE", "800")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Provider != ProviderClaude || cfg.LLM.Model != "claude-3-7-sonnet-20250219" {
		t.Fatalf("unexpected llm: %+v", cfg.LLM)
	}
	if cfg.RAG.ChunkSize != 800 {
		t.Fatalf("expected env override 800, got %d", cfg.RAG.ChunkSize)
	}
	if cfg.EmbedLLM.Dimension != 256 {
		t.Fatalf("expected hash dimension default, got %d", cfg.EmbedLLM.Dimension)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadConfig_ExplicitZeroKept(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
llm:
  temperature: 0
rag:
  chunk_overlap: 0
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Temperature != 0 || cfg.RAG.ChunkOverlap != 0 {
		t.Fatalf("expected explicit zeros kept, got temperature %v overlap %d", cfg.LLM.Temperature, cfg.RAG.ChunkOverlap)
	}

	clearEnv(t)
	t.Setenv("CHUNK_OVERLAP", "0")
	cfg, err = LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RAG.ChunkOverlap != 0 || cfg.LLM.Temperature != 0.3 {
		t.Fatalf("expected overlap 0 from env and default temperature, got %d %v", cfg.RAG.ChunkOverlap, cfg.LLM.Temperature)
	}
}

func TestLoadConfig_BadEnvInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("CHUNK_SIZE", "big")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "none.yaml"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.LLM.OpenAIKey = "sk-test"
		cfg.EmbedLLM.Key = "sk-test"
		return cfg
	}

	cases := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"ok", func(*Config) {}, ""},
		{"missing openai key", func(c *Config) { c.LLM.OpenAIKey = "" }, "llm.openai_key"},
		{"missing anthropic key", func(c *Config) { c.LLM.Provider = ProviderClaude }, "llm.anthropic_key"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "gemini" }, "llm.provider"},
		{"unknown embedder", func(c *Config) { c.EmbedLLM.Type = "bert" }, "embed_llm.type"},
		{"overlap too big", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }, "rag.chunk_overlap"},
		{"short encryption key", func(c *Config) { c.RAG.EncryptionKey = "short" }, "rag.encryption_key"},
		{"bad checksum key", func(c *Config) { c.Store.ChecksumKey = "zz" }, "store.checksum_key"},
		{"driver without dsn", func(c *Config) { c.Database.Driver = DriverSQLite }, "database.dsn"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql"; c.Database.DSN = "x" }, "database.driver"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mut(cfg)
			err := cfg.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, verr.Field)
			}
		})
	}
}

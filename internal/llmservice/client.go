package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"

	"lecture-rag/internal/config"
	"lecture-rag/internal/models"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// Completer is the opaque text-completion service.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CallError wraps a failed call to an external model service.
type CallError struct {
	Op  string
	Err error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Client calls a langchaingo model with a fixed temperature.
type Client struct {
	llm         llms.Model
	model       string
	temperature float64
	timeout     time.Duration
}

// New builds the model selected by cfg.Provider
func New(llmConfig *config.LLMConfig, temperature float64) (*Client, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Float64("temperature", temperature).Msg("Creating LLM client")

	var (
		llm llms.Model
		err error
	)
	switch llmConfig.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(llmConfig.OpenAIKey, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err = openai.New(opts...)
	case config.ProviderClaude:
		opts := []anthropic.Option{
			anthropic.WithToken(llmConfig.AnthropicKey),
			anthropic.WithModel(llmConfig.Model),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err = anthropic.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", llmConfig.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", llmConfig.Provider, err)
	}
	return NewWithModel(llm, llmConfig.Model, temperature, time.Duration(llmConfig.TimeoutSecs)*time.Second), nil
}

// NewWithModel wraps an already constructed model. A zero timeout means no deadline.
func NewWithModel(llm llms.Model, model string, temperature float64, timeout time.Duration) *Client {
	return &Client{llm: llm, model: model, temperature: temperature, timeout: timeout}
}

// Complete sends a single prompt and returns the trimmed completion text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, llms.WithTemperature(c.temperature))
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Msg("Failed to generate LLM response")
		return "", &CallError{Op: "llm", Err: err}
	}
	completion = strings.TrimSpace(thinkRe.ReplaceAllString(completion, ""))
	if completion == "" {
		return "", &CallError{Op: "llm", Err: fmt.Errorf("empty completion from %s", c.model)}
	}
	log.Debug().Str("model", c.model).Dur("took", time.Since(start)).Int("chars", len(completion)).Msg("LLM response received")
	return completion, nil
}

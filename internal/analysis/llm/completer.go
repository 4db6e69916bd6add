// Package llm provides the model-backed implementations of the analysis
// ports: a text completer over any ADK model.LLM, an Assistants file_search
// run capability, deterministic canned stand-ins, and rate-limited wrappers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"

	"ticketchain/internal/analysis/ports"
	"ticketchain/platform/ai/openai"
	"ticketchain/platform/config"
)

// ModelCompleter sends a single-turn request to an ADK model and returns its text.
type ModelCompleter struct {
	llm model.LLM
}

// NewModelCompleter wraps an existing model.
func NewModelCompleter(llm model.LLM) *ModelCompleter {
	return &ModelCompleter{llm: llm}
}

// NewCompleter builds the completer for the configured provider.
func NewCompleter(ctx context.Context, cfg config.ModelConfig) (*ModelCompleter, error) {
	switch cfg.GetAIProvider() {
	case config.ProviderGemini:
		llm, err := gemini.NewModel(ctx, cfg.GetDefaultModel(), &genai.ClientConfig{
			APIKey:  cfg.GetModelAPIKey(),
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini model: %w", err)
		}
		return NewModelCompleter(llm), nil
	case config.ProviderOpenAI, config.ProviderXAI:
		return NewModelCompleter(openai.NewChatModel(openai.ChatConfig{
			APIKey:  cfg.GetModelAPIKey(),
			BaseURL: cfg.GetModelBaseURL(),
			Model:   cfg.GetDefaultModel(),
			Timeout: cfg.GetModelTimeout(),
		})), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.GetAIProvider())
	}
}

// Name returns the underlying model name.
func (c *ModelCompleter) Name() string { return c.llm.Name() }

// Complete implements ports.TextCompleter.
func (c *ModelCompleter) Complete(ctx context.Context, prompt string, opts ports.CompletionOptions) (string, error) {
	req := &model.LLMRequest{
		Model:    opts.Model,
		Contents: []*genai.Content{userText(prompt)},
		Config:   &genai.GenerateContentConfig{},
	}
	if opts.SystemPrompt != "" {
		req.Config.SystemInstruction = userText(opts.SystemPrompt)
	}
	if opts.MaxTokens > 0 {
		req.Config.MaxOutputTokens = opts.MaxTokens
	}

	var b strings.Builder
	for resp, err := range c.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", classify(err)
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ports.Transient(errors.New("model returned no text"))
	}
	return text, nil
}

func userText(text string) *genai.Content {
	return &genai.Content{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(text)}}
}

// classify marks rate limits, server errors and timeouts as transient.
func classify(err error) error {
	if err == nil || ports.IsTransient(err) {
		return err
	}
	if openai.IsRetryable(err) {
		return ports.Transient(err)
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && retryableCode(apiErr.Code) {
		return ports.Transient(err)
	}
	msg := err.Error()
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "UNAVAILABLE") {
		return ports.Transient(err)
	}
	return err
}

func retryableCode(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

package openai

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// ChatConfig configures a chat completions model.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ChatModel adapts an OpenAI-compatible chat completions endpoint (OpenAI, xAI)
// to the ADK model.LLM interface.
type ChatModel struct {
	config ChatConfig
	client *httpClient
}

// NewChatModel creates a chat model. Model defaults to gpt-4o.
func NewChatModel(cfg ChatConfig) *ChatModel {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	return &ChatModel{
		config: cfg,
		client: newHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, nil),
	}
}

// Name returns the model identifier.
func (m *ChatModel) Name() string {
	return m.config.Model
}

// GenerateContent performs one non-streaming completion and yields it.
func (m *ChatModel) GenerateContent(ctx context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int32         `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int32 `json:"prompt_tokens"`
		CompletionTokens int32 `json:"completion_tokens"`
		TotalTokens      int32 `json:"total_tokens"`
	} `json:"usage"`
}

func (m *ChatModel) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	modelName := m.config.Model
	if req.Model != "" {
		modelName = req.Model
	}

	payload := chatRequest{Model: modelName}
	if req.Config != nil {
		if sys := contentText(req.Config.SystemInstruction); sys != "" {
			payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: sys})
		}
		if req.Config.Temperature != nil {
			t := float64(*req.Config.Temperature)
			payload.Temperature = &t
		}
		payload.MaxTokens = req.Config.MaxOutputTokens
	}
	for _, content := range req.Contents {
		if text := contentText(content); text != "" {
			payload.Messages = append(payload.Messages, chatMessage{Role: roleForContent(content.Role), Content: text})
		}
	}
	if len(payload.Messages) == 0 {
		return nil, fmt.Errorf("chat completion: no message content")
	}

	var result chatResponse
	if err := m.client.doJSON(ctx, http.MethodPost, "/chat/completions", payload, &result); err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	choice := result.Choices[0]
	return &model.LLMResponse{
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: []*genai.Part{genai.NewPartFromText(choice.Message.Content)},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     result.Usage.PromptTokens,
			CandidatesTokenCount: result.Usage.CompletionTokens,
			TotalTokenCount:      result.Usage.TotalTokens,
		},
		TurnComplete: true,
	}, nil
}

func roleForContent(role string) string {
	if role == "model" {
		return "assistant"
	}
	return "user"
}

func contentText(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range content.Parts {
		if part == nil || strings.TrimSpace(part.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

var _ model.LLM = (*ChatModel)(nil)

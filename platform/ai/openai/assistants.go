package openai

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AssistantsConfig configures the Assistants v2 client.
type AssistantsConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// AssistantsClient talks to the Assistants v2 endpoints used by file_search runs.
type AssistantsClient struct {
	client *httpClient
}

// NewAssistantsClient creates an Assistants v2 client.
func NewAssistantsClient(cfg AssistantsConfig) *AssistantsClient {
	return &AssistantsClient{
		client: newHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout, map[string]string{"OpenAI-Beta": "assistants=v2"}),
	}
}

// Assistant is the subset of the assistant object we read back.
type Assistant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model"`
}

// CreateAssistantRequest describes a file_search assistant.
type CreateAssistantRequest struct {
	Model        string
	Name         string
	Description  string
	Instructions string
}

type toolSpec struct {
	Type string `json:"type"`
}

// CreateAssistant creates an assistant with the file_search tool enabled.
func (c *AssistantsClient) CreateAssistant(ctx context.Context, req CreateAssistantRequest) (Assistant, error) {
	body := map[string]any{
		"model":        req.Model,
		"name":         req.Name,
		"description":  req.Description,
		"instructions": req.Instructions,
		"tools":        []toolSpec{{Type: "file_search"}},
	}
	var out Assistant
	err := c.client.doJSON(ctx, http.MethodPost, "/assistants", body, &out)
	return out, err
}

// File is an uploaded file.
type File struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int    `json:"bytes"`
}

// UploadFile uploads content with purpose "assistants".
func (c *AssistantsClient) UploadFile(ctx context.Context, name string, content []byte) (File, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("purpose", "assistants"); err != nil {
		return File{}, err
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return File{}, err
	}
	if _, err := part.Write(content); err != nil {
		return File{}, err
	}
	if err := w.Close(); err != nil {
		return File{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.client.baseURL+"/files", &buf)
	if err != nil {
		return File{}, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out File
	err = c.client.do(req, &out)
	return out, err
}

// DeleteFile removes an uploaded file.
func (c *AssistantsClient) DeleteFile(ctx context.Context, fileID string) error {
	return c.client.doJSON(ctx, http.MethodDelete, "/files/"+url.PathEscape(fileID), nil, nil)
}

// VectorStore is the subset of the vector store object we read back.
type VectorStore struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	FileCounts struct {
		InProgress int `json:"in_progress"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
		Total      int `json:"total"`
	} `json:"file_counts"`
}

// CreateVectorStore creates a vector store seeded with fileIDs that expires a day after last use.
func (c *AssistantsClient) CreateVectorStore(ctx context.Context, name string, fileIDs []string) (VectorStore, error) {
	body := map[string]any{
		"name":     name,
		"file_ids": fileIDs,
		"expires_after": map[string]any{
			"anchor": "last_active_at",
			"days":   1,
		},
	}
	var out VectorStore
	err := c.client.doJSON(ctx, http.MethodPost, "/vector_stores", body, &out)
	return out, err
}

// GetVectorStore fetches a vector store's ingestion status.
func (c *AssistantsClient) GetVectorStore(ctx context.Context, id string) (VectorStore, error) {
	var out VectorStore
	err := c.client.doJSON(ctx, http.MethodGet, "/vector_stores/"+url.PathEscape(id), nil, &out)
	return out, err
}

// DeleteVectorStore removes a vector store.
func (c *AssistantsClient) DeleteVectorStore(ctx context.Context, id string) error {
	return c.client.doJSON(ctx, http.MethodDelete, "/vector_stores/"+url.PathEscape(id), nil, nil)
}

// Run is the subset of the run object we read back.
type Run struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id"`
	Status    string `json:"status"`
	Model     string `json:"model"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

// CreateThreadRunRequest starts a run on a new single-message thread.
type CreateThreadRunRequest struct {
	AssistantID    string
	Model          string
	Instructions   string
	Message        string
	VectorStoreIDs []string
}

type threadMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CreateThreadAndRun creates a thread holding one user message and starts a run on it.
func (c *AssistantsClient) CreateThreadAndRun(ctx context.Context, req CreateThreadRunRequest) (Run, error) {
	thread := map[string]any{
		"messages": []threadMessage{{Role: "user", Content: req.Message}},
	}
	if len(req.VectorStoreIDs) > 0 {
		thread["tool_resources"] = map[string]any{
			"file_search": map[string]any{"vector_store_ids": req.VectorStoreIDs},
		}
	}
	body := map[string]any{
		"assistant_id": req.AssistantID,
		"thread":       thread,
	}
	if req.Model != "" {
		body["model"] = req.Model
	}
	if req.Instructions != "" {
		body["additional_instructions"] = req.Instructions
	}

	var out Run
	err := c.client.doJSON(ctx, http.MethodPost, "/threads/runs", body, &out)
	return out, err
}

// GetRun fetches a run's status.
func (c *AssistantsClient) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	var out Run
	path := fmt.Sprintf("/threads/%s/runs/%s", url.PathEscape(threadID), url.PathEscape(runID))
	err := c.client.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// CancelRun asks the API to cancel an in-flight run.
func (c *AssistantsClient) CancelRun(ctx context.Context, threadID, runID string) (Run, error) {
	var out Run
	path := fmt.Sprintf("/threads/%s/runs/%s/cancel", url.PathEscape(threadID), url.PathEscape(runID))
	err := c.client.doJSON(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

type messageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// RunOutputText returns the text the assistant produced during runID, oldest first.
func (c *AssistantsClient) RunOutputText(ctx context.Context, threadID, runID string) (string, error) {
	q := url.Values{}
	q.Set("run_id", runID)
	q.Set("order", "asc")
	path := fmt.Sprintf("/threads/%s/messages?%s", url.PathEscape(threadID), q.Encode())

	var out messageList
	if err := c.client.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, msg := range out.Data {
		if msg.Role != "assistant" {
			continue
		}
		for _, part := range msg.Content {
			if part.Type != "text" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(part.Text.Value)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("run %s produced no assistant text", runID)
	}
	return b.String(), nil
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/ports"
	"ticketchain/internal/chains/prompt"
	tickets "ticketchain/internal/tickets/domain"
	"ticketchain/platform/ai/openai"
	"ticketchain/platform/logger"
	"ticketchain/platform/validator"
)

type fakeLLM struct {
	text string
	err  error
	req  *model.LLMRequest
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) GenerateContent(_ context.Context, req *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	f.req = req
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		yield(&model.LLMResponse{Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{genai.NewPartFromText(f.text)}}}, nil)
	}
}

func TestModelCompleterPassesOptions(t *testing.T) {
	llm := &fakeLLM{text: "  Summary: fine \n"}
	c := NewModelCompleter(llm)

	got, err := c.Complete(context.Background(), "prompt body", ports.CompletionOptions{Model: "grok-4", SystemPrompt: "sys", MaxTokens: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Summary: fine" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
	if llm.req.Model != "grok-4" || llm.req.Config.MaxOutputTokens != 100 {
		t.Fatalf("expected model and token overrides, got %+v", llm.req)
	}
	if llm.req.Config.SystemInstruction == nil || llm.req.Config.SystemInstruction.Parts[0].Text != "sys" {
		t.Fatalf("expected system instruction to be set")
	}
}

func TestModelCompleterClassifiesErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited", &openai.StatusError{StatusCode: 429}, true},
		{"server error", &openai.StatusError{StatusCode: 502}, true},
		{"bad request", &openai.StatusError{StatusCode: 400}, false},
		{"gemini quota", &genai.APIError{Code: 429}, true},
		{"gemini status text", errors.New("Error 503, Message: overloaded, Status: UNAVAILABLE"), true},
		{"deadline", context.DeadlineExceeded, true},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewModelCompleter(&fakeLLM{err: tc.err})
			_, err := c.Complete(context.Background(), "p", ports.CompletionOptions{})
			if ports.IsTransient(err) != tc.transient {
				t.Fatalf("expected transient=%v, got %v", tc.transient, err)
			}
		})
	}
}

func TestEmptyModelOutputIsTransient(t *testing.T) {
	c := NewModelCompleter(&fakeLLM{text: "   "})
	_, err := c.Complete(context.Background(), "p", ports.CompletionOptions{})
	if !ports.IsTransient(err) {
		t.Fatalf("expected empty output to be retryable, got %v", err)
	}
}

func mockChain() tickets.Chain {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return tickets.Chain{
		ID:           "CH-9",
		SeedTicketID: "2000001",
		Tickets: []tickets.Ticket{
			{ID: "2000001", Category: tickets.CategoryDispatch, CreatedAt: &created},
			{ID: "2000002", Category: tickets.CategoryDispatch, CreatedAt: &created},
			{ID: "3000001", Category: tickets.CategoryTurnup, CreatedAt: &created},
			{ID: "3000002", Category: tickets.CategoryTurnup, Subject: "P1 revisit"},
			{ID: "3000003", Category: tickets.CategoryTurnup, CreatedAt: &created},
		},
	}
}

func TestCannedRunsProduceValidPayload(t *testing.T) {
	runs := NewCannedRuns()
	ctx := context.Background()
	id, err := runs.CreateRun(ctx, ports.RunRequest{Chain: mockChain()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []ports.RunStatus{ports.RunQueued, ports.RunInProgress, ports.RunCompleted}
	for i, w := range want {
		got, err := runs.GetRunStatus(ctx, id)
		if err != nil || got != w {
			t.Fatalf("poll %d: expected %s, got %s (%v)", i+1, w, got, err)
		}
	}

	raw, err := runs.GetRunOutput(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, err := domain.DecodePayload(raw)
	if err != nil {
		t.Fatalf("expected decodable payload: %v", err)
	}
	if err := validator.New().Struct(payload); err != nil {
		t.Fatalf("expected valid payload: %v", validator.Describe(err))
	}
	if got := payload.Relationships["2000001"]; len(got) != 2 || got[0] != "3000001" || got[1] != "3000003" {
		t.Fatalf("expected round-robin assignment, got %v", payload.Relationships)
	}
	if len(payload.Anomalies) != 1 || payload.Anomalies[0].TicketIDs[0] != "3000002" {
		t.Fatalf("expected one anomaly for the untimestamped turnup, got %+v", payload.Anomalies)
	}
	if len(payload.Revisits) != 1 {
		t.Fatalf("expected revisit from subject, got %+v", payload.Revisits)
	}
}

func TestCannedRunsCancelOnlyTheCancelledRun(t *testing.T) {
	runs := NewCannedRuns()
	ctx := context.Background()
	create := func() string {
		id, err := runs.CreateRun(ctx, ports.RunRequest{Chain: mockChain()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return id
	}
	final := func(id string) ports.RunStatus {
		var status ports.RunStatus
		for range runs.StepsToFinish + 1 {
			var err error
			if status, err = runs.GetRunStatus(ctx, id); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		return status
	}

	a, b := create(), create()
	if err := runs.CancelRun(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := final(a); got != ports.RunCancelled {
		t.Fatalf("expected cancelled run to report cancelled, got %s", got)
	}
	if got := final(b); got != ports.RunCompleted {
		t.Fatalf("expected untouched run to complete, got %s", got)
	}
	if got := final(create()); got != ports.RunCompleted {
		t.Fatalf("expected later run to complete, got %s", got)
	}
}

func TestCannedCompleterIsDeterministic(t *testing.T) {
	c := NewCannedCompleter()
	a, _ := c.Complete(context.Background(), "same", ports.CompletionOptions{})
	b, _ := c.Complete(context.Background(), "same", ports.CompletionOptions{})
	if a != b {
		t.Fatalf("expected identical answers")
	}
	if domain.ParseNarrative(a) == nil {
		t.Fatalf("expected canned answer to have sections")
	}
	if c.Calls() != 2 {
		t.Fatalf("expected 2 calls, got %d", c.Calls())
	}
}

func TestRateLimitedCompleterHonoursContext(t *testing.T) {
	limiter := NewLimiter(1)
	c := LimitCompleter(NewCannedCompleter(), limiter)
	if _, err := c.Complete(context.Background(), "p", ports.CompletionOptions{}); err != nil {
		t.Fatalf("expected first call to pass, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, "p", ports.CompletionOptions{}); err == nil {
		t.Fatalf("expected second call to be limited")
	}
}

func TestRateLimitedRunsForwardsRelease(t *testing.T) {
	inner := NewCannedRuns()
	runs := LimitRuns(inner, NewLimiter(0))
	id, _ := runs.CreateRun(context.Background(), ports.RunRequest{Chain: mockChain()})
	if err := runs.ReleaseRun(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := inner.GetRunStatus(context.Background(), id); err == nil {
		t.Fatalf("expected released run to be forgotten")
	}
}

type fakeAssistantsAPI struct {
	mu       sync.Mutex
	uploads  int
	deleted  []string
	runBody  map[string]any
	statuses []string
}

func (f *fakeAssistantsAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("OpenAI-Beta") != "assistants=v2" {
			t.Errorf("expected assistants beta header")
		}
		f.mu.Lock()
		f.uploads++
		n := f.uploads
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "file_" + string(rune('0'+n))})
	})
	mux.HandleFunc("POST /vector_stores", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "vs_1"})
	})
	mux.HandleFunc("POST /threads/runs", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&f.runBody)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "run_1", "thread_id": "thread_1", "status": "queued"})
	})
	mux.HandleFunc("GET /threads/thread_1/runs/run_1", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		status := f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "run_1", "thread_id": "thread_1", "status": status})
	})
	mux.HandleFunc("GET /threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("run_id") != "run_1" {
			t.Errorf("expected messages filtered by run")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{
			map[string]any{"role": "assistant", "content": []any{
				map[string]any{"type": "text", "text": map[string]any{"value": `{"timeline": []}`}},
			}},
		}})
	})
	mux.HandleFunc("DELETE /", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.deleted = append(f.deleted, r.URL.Path)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /threads/thread_1/runs/run_1/cancel", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	})
	return mux
}

func TestAssistantRunsLifecycle(t *testing.T) {
	api := &fakeAssistantsAPI{statuses: []string{"queued", "in_progress", "completed"}}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	client := openai.NewAssistantsClient(openai.AssistantsConfig{APIKey: "sk-test", BaseURL: srv.URL})
	runs := NewAssistantRuns(client, logger.Discard())
	ctx := context.Background()

	files := []prompt.File{{Name: "chain_CH-9.json", Content: []byte(`{}`)}, {Name: "Dispatch_2000001.json", Content: []byte(`{}`)}}
	id, err := runs.CreateRun(ctx, ports.RunRequest{Prompt: "extract", AssistantID: "asst_1", Chain: mockChain(), Files: files})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "thread_1:run_1" {
		t.Fatalf("expected composite run id, got %q", id)
	}
	if api.uploads != 2 || api.runBody["assistant_id"] != "asst_1" {
		t.Fatalf("expected two uploads and the assistant id, got %d %v", api.uploads, api.runBody)
	}

	for _, want := range []ports.RunStatus{ports.RunQueued, ports.RunInProgress, ports.RunCompleted} {
		got, err := runs.GetRunStatus(ctx, id)
		if err != nil || got != want {
			t.Fatalf("expected %s, got %s (%v)", want, got, err)
		}
	}
	out, err := runs.GetRunOutput(ctx, id)
	if err != nil || !strings.Contains(string(out), "timeline") {
		t.Fatalf("expected assistant output, got %q (%v)", out, err)
	}

	if err := runs.CancelRun(ctx, id); !openai.IsRetryable(err) {
		t.Fatalf("expected a retryable cancel error, got %v", err)
	}

	if err := runs.ReleaseRun(ctx, id); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	if len(api.deleted) != 3 || api.deleted[0] != "/vector_stores/vs_1" {
		t.Fatalf("expected vector store then files deleted, got %v", api.deleted)
	}
}

func TestAssistantRunsRequiresAssistant(t *testing.T) {
	runs := NewAssistantRuns(openai.NewAssistantsClient(openai.AssistantsConfig{}), logger.Discard())
	if _, err := runs.CreateRun(context.Background(), ports.RunRequest{Chain: mockChain()}); err == nil {
		t.Fatalf("expected an error without an assistant id")
	}
}

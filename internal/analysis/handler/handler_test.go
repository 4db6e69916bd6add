package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticketchain/internal/adapters/storage"
	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/service"
	"ticketchain/internal/analysis/store"
	"ticketchain/internal/analysis/transport"
	"ticketchain/platform/apperr"
	"ticketchain/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeAnalyzer struct {
	lastSeed string
	lastOpts service.AnalyzeOptions
	report   service.Report
	err      error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, seedID string, opts service.AnalyzeOptions) (service.Report, error) {
	f.lastSeed = seedID
	f.lastOpts = opts
	return f.report, f.err
}

type fakeBatches struct {
	ids []string
}

func (f *fakeBatches) RunBatch(_ context.Context, ids []string, _ service.AnalyzeOptions) service.BatchReport {
	f.ids = ids
	items := map[string]service.ItemOutcome{}
	for _, id := range ids {
		items[id] = service.ItemOutcome{TicketID: id, Status: service.ItemSucceeded}
	}
	items[ids[0]] = service.ItemOutcome{TicketID: ids[0], Status: service.ItemFailed, Error: "not found"}
	return service.BatchReport{ID: uuid.New(), Status: service.BatchStatusCompleted, TicketIDs: ids, Items: items}
}

type fakeArtifacts struct {
	folder string
}

func (f *fakeArtifacts) ListArtifacts(_ context.Context, _ string, folder string) ([]storage.Artifact, error) {
	f.folder = folder
	return []storage.Artifact{{FileKey: folder + "/chain_CH-1.json", SizeBytes: 42}}, nil
}

func (f *fakeArtifacts) GenerateDownloadURL(_ context.Context, bucket, fileKey string) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{URL: "http://minio/" + bucket + "/" + fileKey, FileKey: fileKey, ExpiresAt: time.Unix(1700000000, 0)}, nil
}

func newEngine(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	v1 := engine.Group("/api/v1")
	h.RegisterReadRoutes(v1)
	h.RegisterWriteRoutes(v1)
	return engine
}

func seededStore(t *testing.T) (*store.Memory, domain.AnalysisResult) {
	t.Helper()
	mem := store.NewMemory()
	done := time.Date(2024, 5, 2, 8, 1, 0, 0, time.UTC)
	r := domain.AnalysisResult{
		ID:          uuid.New(),
		ChainID:     "CH-1",
		Phase:       domain.PhaseExtraction,
		Status:      domain.StatusComplete,
		Payload:     &domain.Payload{Timeline: []domain.PayloadEvent{}, Relationships: map[string][]string{}},
		CreatedAt:   time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC),
		CompletedAt: &done,
	}
	if err := mem.Save(context.Background(), r); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return mem, r
}

func do(engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestListAndGet(t *testing.T) {
	mem, saved := seededStore(t)
	engine := newEngine(New(&fakeAnalyzer{}, &fakeBatches{}, mem, nil, "", validator.New()))

	rec := do(engine, http.MethodGet, "/api/v1/analyses?chainId=CH-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list transport.ListAnalysesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || list.Items[0].ID != saved.ID {
		t.Fatalf("expected the saved summary, got %+v", list)
	}

	rec = do(engine, http.MethodGet, "/api/v1/analyses/"+saved.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got domain.AnalysisResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got.ID != saved.ID || got.Payload == nil {
		t.Fatalf("expected the full record, got %+v", got)
	}
}

func TestGetErrors(t *testing.T) {
	mem, _ := seededStore(t)
	engine := newEngine(New(&fakeAnalyzer{}, &fakeBatches{}, mem, nil, "", validator.New()))

	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/analyses/not-a-uuid", http.StatusBadRequest},
		{"/api/v1/analyses/" + uuid.NewString(), http.StatusNotFound},
		{"/api/v1/analyses?limit=0", http.StatusBadRequest},
		{"/api/v1/analyses/" + uuid.NewString() + "/artifacts", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if rec := do(engine, http.MethodGet, tt.path, nil); rec.Code != tt.code {
			t.Fatalf("%s: expected %d, got %d", tt.path, tt.code, rec.Code)
		}
	}
}

func TestCreateAnalysis(t *testing.T) {
	mem, _ := seededStore(t)
	analyzer := &fakeAnalyzer{report: service.Report{ChainID: "CH-1", State: "Phase2Complete"}}
	engine := newEngine(New(analyzer, &fakeBatches{}, mem, nil, "", validator.New()))

	rec := do(engine, http.MethodPost, "/api/v1/analyses", map[string]any{"ticketId": "2000101", "focus": "timeline", "force": true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if analyzer.lastSeed != "2000101" || analyzer.lastOpts.Focus != "timeline" || !analyzer.lastOpts.Force {
		t.Fatalf("expected request forwarded, got %s %+v", analyzer.lastSeed, analyzer.lastOpts)
	}

	analyzer.report.Reused = true
	if rec := do(engine, http.MethodPost, "/api/v1/analyses", map[string]any{"ticketId": "2000101"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a reused analysis, got %d", rec.Code)
	}
}

func TestCreateAnalysisErrors(t *testing.T) {
	mem, _ := seededStore(t)
	analyzer := &fakeAnalyzer{}
	engine := newEngine(New(analyzer, &fakeBatches{}, mem, nil, "", validator.New()))

	if rec := do(engine, http.MethodPost, "/api/v1/analyses", map[string]any{"focus": "timeline"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing ticket id, got %d", rec.Code)
	}
	if rec := do(engine, http.MethodPost, "/api/v1/analyses", map[string]any{"ticketId": "1", "focus": "sideways"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown focus, got %d", rec.Code)
	}

	analyzer.err = apperr.NotFound("ticket 1 not found in any category")
	if rec := do(engine, http.MethodPost, "/api/v1/analyses", map[string]any{"ticketId": "1"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	analyzer.err = apperr.Unavailable("ticket source unreachable", errors.New("dial tcp"))
	if rec := do(engine, http.MethodPost, "/api/v1/analyses", map[string]any{"ticketId": "1"}); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCreateBatch(t *testing.T) {
	mem, _ := seededStore(t)
	batches := &fakeBatches{}
	engine := newEngine(New(&fakeAnalyzer{}, batches, mem, nil, "", validator.New()))

	rec := do(engine, http.MethodPost, "/api/v1/batches", map[string]any{"ticketIds": []string{"1", "2", "3"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.BatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if resp.Status != service.BatchStatusCompleted || resp.Succeeded != 2 || resp.Failed != 1 {
		t.Fatalf("expected completed batch with 2 succeeded and 1 failed, got %+v", resp)
	}

	if rec := do(engine, http.MethodPost, "/api/v1/batches", map[string]any{"ticketIds": []string{}}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty batch, got %d", rec.Code)
	}
}

func TestListArtifacts(t *testing.T) {
	mem, saved := seededStore(t)
	artifacts := &fakeArtifacts{}
	engine := newEngine(New(&fakeAnalyzer{}, &fakeBatches{}, mem, artifacts, "ticket-chain-files", validator.New()))

	rec := do(engine, http.MethodGet, "/api/v1/analyses/"+saved.ID.String()+"/artifacts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if artifacts.folder != storage.ArtifactFolder("CH-1", saved.ID.String()) {
		t.Fatalf("expected the analysis folder, got %s", artifacts.folder)
	}
	var out []transport.ArtifactResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode artifacts: %v", err)
	}
	if len(out) != 1 || out[0].DownloadURL == "" || out[0].ExpiresAt != 1700000000 {
		t.Fatalf("expected one linked artifact, got %+v", out)
	}
}

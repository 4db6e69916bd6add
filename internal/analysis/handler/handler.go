package handler

import (
	"context"
	"net/http"
	"strconv"

	"ticketchain/internal/adapters/storage"
	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/service"
	"ticketchain/internal/analysis/store"
	"ticketchain/internal/analysis/transport"
	"ticketchain/internal/chains/prompt"
	"ticketchain/platform/apperr"
	"ticketchain/platform/httpkit"
	"ticketchain/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid analysis id"
)

// Reader is the read side of the analysis store.
type Reader interface {
	List(ctx context.Context, f store.ListFilter) ([]domain.Summary, error)
	Get(ctx context.Context, id uuid.UUID) (domain.AnalysisResult, error)
}

// BatchRunner runs a batch of seed tickets.
type BatchRunner interface {
	RunBatch(ctx context.Context, ids []string, opts service.AnalyzeOptions) service.BatchReport
}

// ArtifactLister lists and links archived run inputs.
type ArtifactLister interface {
	ListArtifacts(ctx context.Context, bucket, folder string) ([]storage.Artifact, error)
	GenerateDownloadURL(ctx context.Context, bucket, fileKey string) (*storage.PresignedURL, error)
}

// Handler serves the analysis API.
type Handler struct {
	analyzer  service.Analyzer
	batches   BatchRunner
	reader    Reader
	artifacts ArtifactLister
	bucket    string
	val       *validator.Validator
}

// New creates a handler. artifacts may be nil when no archive is configured.
func New(analyzer service.Analyzer, batches BatchRunner, reader Reader, artifacts ArtifactLister, bucket string, val *validator.Validator) *Handler {
	return &Handler{
		analyzer:  analyzer,
		batches:   batches,
		reader:    reader,
		artifacts: artifacts,
		bucket:    bucket,
		val:       val,
	}
}

// RegisterReadRoutes mounts the read endpoints.
func (h *Handler) RegisterReadRoutes(rg *gin.RouterGroup) {
	rg.GET("/analyses", h.List)
	rg.GET("/analyses/:id", h.Get)
	rg.GET("/analyses/:id/artifacts", h.ListArtifacts)
}

// RegisterWriteRoutes mounts the endpoints that call the model.
func (h *Handler) RegisterWriteRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.Create)
	rg.POST("/batches", h.CreateBatch)
}

func (h *Handler) List(c *gin.Context) {
	filter := store.ListFilter{ChainID: c.Query("chainId")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 1000 {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "limit must be between 1 and 1000")
			return
		}
		filter.Limit = limit
	}

	items, err := h.reader.List(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}
	if items == nil {
		items = []domain.Summary{}
	}
	httpkit.OK(c, transport.ListAnalysesResponse{Items: items, Total: len(items)})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	result, err := h.reader.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) ListArtifacts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if h.artifacts == nil {
		httpkit.HandleError(c, apperr.Unavailable("artifact archive is not configured", nil))
		return
	}

	ctx := c.Request.Context()
	result, err := h.reader.Get(ctx, id)
	if httpkit.HandleError(c, err) {
		return
	}

	found, err := h.artifacts.ListArtifacts(ctx, h.bucket, storage.ArtifactFolder(result.ChainID, result.ID.String()))
	if err != nil {
		httpkit.HandleError(c, apperr.Unavailable("artifact archive unreachable", err))
		return
	}

	out := make([]transport.ArtifactResponse, 0, len(found))
	for _, a := range found {
		item := transport.ArtifactResponse{FileKey: a.FileKey, SizeBytes: a.SizeBytes, Modified: a.Modified}
		if link, err := h.artifacts.GenerateDownloadURL(ctx, h.bucket, a.FileKey); err == nil {
			item.DownloadURL = link.URL
			item.ExpiresAt = link.ExpiresAt.Unix()
		}
		out = append(out, item)
	}
	httpkit.OK(c, out)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Describe(err))
		return
	}

	report, err := h.analyzer.Analyze(c.Request.Context(), req.TicketID, service.AnalyzeOptions{
		Focus:       prompt.Focus(req.Focus),
		Force:       req.Force,
		SkipPhase2:  req.SkipPhase2,
		Model:       req.Model,
		AssistantID: req.AssistantID,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	if report.Reused {
		httpkit.OK(c, transport.AnalysisResponse{Report: report})
		return
	}
	httpkit.Created(c, transport.AnalysisResponse{Report: report})
}

func (h *Handler) CreateBatch(c *gin.Context) {
	var req transport.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Describe(err))
		return
	}

	report := h.batches.RunBatch(c.Request.Context(), req.TicketIDs, service.AnalyzeOptions{
		Focus:      prompt.Focus(req.Focus),
		Force:      req.Force,
		SkipPhase2: req.SkipPhase2,
	})
	succeeded, failed := report.Counts()
	httpkit.OK(c, transport.BatchResponse{BatchReport: report, Succeeded: succeeded, Failed: failed})
}

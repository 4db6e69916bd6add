// Package transport holds the request and response shapes of the analysis API.
package transport

import (
	"time"

	"ticketchain/internal/analysis/domain"
	"ticketchain/internal/analysis/service"
)

// CreateAnalysisRequest starts an analysis for the chain of one ticket.
type CreateAnalysisRequest struct {
	TicketID    string `json:"ticketId" validate:"required,max=64"`
	Focus       string `json:"focus" validate:"omitempty,oneof=relationship timeline"`
	Force       bool   `json:"force"`
	SkipPhase2  bool   `json:"skipPhase2"`
	Model       string `json:"model" validate:"max=100"`
	AssistantID string `json:"assistantId" validate:"max=100"`
}

// CreateBatchRequest analyzes several chains at once.
type CreateBatchRequest struct {
	TicketIDs  []string `json:"ticketIds" validate:"required,min=1,max=100,dive,required,max=64"`
	Focus      string   `json:"focus" validate:"omitempty,oneof=relationship timeline"`
	Force      bool     `json:"force"`
	SkipPhase2 bool     `json:"skipPhase2"`
}

// ListAnalysesResponse is a page of summaries, newest first.
type ListAnalysesResponse struct {
	Items []domain.Summary `json:"items"`
	Total int              `json:"total"`
}

// AnalysisResponse wraps one pipeline run.
type AnalysisResponse struct {
	service.Report
}

// BatchResponse wraps one batch run.
type BatchResponse struct {
	service.BatchReport
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// ArtifactResponse is one archived Phase 2 input with a download link.
type ArtifactResponse struct {
	FileKey     string    `json:"fileKey"`
	SizeBytes   int64     `json:"sizeBytes"`
	Modified    time.Time `json:"modified"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	ExpiresAt   int64     `json:"expiresAt,omitempty"` // Unix timestamp
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status string `json:"status"`
}

// Package domain defines analysis results, the structured extraction payload
// and the orchestrator state machine.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the analysis stage a result belongs to.
type Phase int

const (
	// PhaseNarrative is the free-form Phase 1 analysis.
	PhaseNarrative Phase = 1
	// PhaseExtraction is the structured Phase 2 extraction.
	PhaseExtraction Phase = 2
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool { return p == PhaseNarrative || p == PhaseExtraction }

func (p Phase) String() string {
	switch p {
	case PhaseNarrative:
		return "narrative"
	case PhaseExtraction:
		return "extraction"
	default:
		return "unknown"
	}
}

// Status is the lifecycle of a result record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool { return s == StatusComplete || s == StatusFailed }

// FailureReason names why a chain's analysis failed.
type FailureReason string

const (
	ReasonNone                FailureReason = ""
	ReasonPhase1Exhausted     FailureReason = "Phase1Exhausted"
	ReasonPhase1Fatal         FailureReason = "Phase1Fatal"
	ReasonPhase2Timeout       FailureReason = "Phase2Timeout"
	ReasonPhase2RunFailed     FailureReason = "Phase2RunFailed"
	ReasonPhase2SchemaInvalid FailureReason = "Phase2SchemaInvalid"
)

// AnalysisResult is one persisted phase outcome for one chain. Once its
// status is complete or failed it is never changed; a later run writes a new record.
type AnalysisResult struct {
	ID            uuid.UUID          `json:"id"`
	ChainID       string             `json:"chainId"`
	SeedTicketID  string             `json:"seedTicketId"`
	Phase         Phase              `json:"phase"`
	Status        Status             `json:"status"`
	Narrative     string             `json:"narrative,omitempty"`
	Sections      *NarrativeSections `json:"sections,omitempty"`
	Payload       *Payload           `json:"payload,omitempty"`
	FailureReason FailureReason      `json:"failureReason,omitempty"`
	FailureDetail string             `json:"failureDetail,omitempty"`
	ModelID       string             `json:"modelId,omitempty"`
	TicketCount   int                `json:"ticketCount"`
	Partial       bool               `json:"partial"`
	CreatedAt     time.Time          `json:"createdAt"`
	CompletedAt   *time.Time         `json:"completedAt,omitempty"`
}

// Summary is the listing view of a result.
type Summary struct {
	ID            uuid.UUID     `json:"id"`
	ChainID       string        `json:"chainId"`
	SeedTicketID  string        `json:"seedTicketId"`
	Phase         Phase         `json:"phase"`
	Status        Status        `json:"status"`
	FailureReason FailureReason `json:"failureReason,omitempty"`
	ModelID       string        `json:"modelId,omitempty"`
	TicketCount   int           `json:"ticketCount"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Summary returns the listing view.
func (r AnalysisResult) Summary() Summary {
	return Summary{
		ID:            r.ID,
		ChainID:       r.ChainID,
		SeedTicketID:  r.SeedTicketID,
		Phase:         r.Phase,
		Status:        r.Status,
		FailureReason: r.FailureReason,
		ModelID:       r.ModelID,
		TicketCount:   r.TicketCount,
		CreatedAt:     r.CreatedAt,
	}
}

// NormalizeTime truncates t to microseconds in UTC, the precision every store keeps.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"github.com/google/uuid"

	"ticketchain/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
)

// =============================================================================
// Chain Events
// =============================================================================

// ChainResolved is published after a seed ticket has been expanded into its chain.
type ChainResolved struct {
	BaseEvent
	SeedTicketID string   `json:"seedTicketId"`
	ChainID      string   `json:"chainId"`
	TicketCount  int      `json:"ticketCount"`
	Partial      bool     `json:"partial"`
	Unavailable  []string `json:"unavailable,omitempty"`
}

func (e ChainResolved) EventName() string { return "chains.chain.resolved" }

// =============================================================================
// Analysis Events
// =============================================================================

// AnalysisCompleted is published when a phase result is stored as complete.
type AnalysisCompleted struct {
	BaseEvent
	AnalysisID uuid.UUID `json:"analysisId"`
	ChainID    string    `json:"chainId"`
	Phase      int       `json:"phase"`
	ModelID    string    `json:"modelId"`
}

func (e AnalysisCompleted) EventName() string { return "analysis.result.completed" }

// AnalysisFailed is published when a phase result is stored as failed.
type AnalysisFailed struct {
	BaseEvent
	AnalysisID uuid.UUID `json:"analysisId"`
	ChainID    string    `json:"chainId"`
	Phase      int       `json:"phase"`
	Reason     string    `json:"reason"`
	Detail     string    `json:"detail,omitempty"`
}

func (e AnalysisFailed) EventName() string { return "analysis.result.failed" }

// AnalysisReused is published when a fresh stored result answered a request
// and no model was called.
type AnalysisReused struct {
	BaseEvent
	AnalysisID uuid.UUID `json:"analysisId"`
	ChainID    string    `json:"chainId"`
	Phase      int       `json:"phase"`
	AgeSeconds int64     `json:"ageSeconds"`
}

func (e AnalysisReused) EventName() string { return "analysis.result.reused" }

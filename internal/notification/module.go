// Package notification reacts to chain and analysis events. Every event is
// logged; when Kafka is configured the events are also forwarded to a topic
// so downstream consumers can follow analyses without polling the store.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"ticketchain/internal/events"
	"ticketchain/platform/logger"
)

// Publisher forwards a serialized event to an external sink.
type Publisher interface {
	Publish(ctx context.Context, key string, name string, body []byte) error
	Close() error
}

// Module subscribes to domain events.
type Module struct {
	log       *logger.Logger
	publisher Publisher
}

// New creates the notification module. publisher may be nil.
func New(log *logger.Logger, publisher Publisher) *Module {
	return &Module{log: log, publisher: publisher}
}

// Name returns the module name.
func (m *Module) Name() string { return "notification" }

// RegisterHandlers subscribes the module to the events it reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ChainResolved{}.EventName(), m)
	bus.Subscribe(events.AnalysisCompleted{}.EventName(), m)
	bus.Subscribe(events.AnalysisFailed{}.EventName(), m)
	bus.Subscribe(events.AnalysisReused{}.EventName(), m)
}

// Close releases the publisher.
func (m *Module) Close() error {
	if m.publisher == nil {
		return nil
	}
	return m.publisher.Close()
}

// Handle implements events.Handler.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	var key string
	switch e := event.(type) {
	case events.ChainResolved:
		key = e.ChainID
		if e.Partial {
			m.log.Warn("chain resolved partially", "chainId", e.ChainID, "seedTicketId", e.SeedTicketID, "unavailable", e.Unavailable)
		} else {
			m.log.Debug("chain resolved", "chainId", e.ChainID, "tickets", e.TicketCount)
		}
	case events.AnalysisCompleted:
		key = e.ChainID
		m.log.Info("analysis completed", "analysisId", e.AnalysisID, "chainId", e.ChainID, "phase", e.Phase, "modelId", e.ModelID)
	case events.AnalysisFailed:
		key = e.ChainID
		m.log.Warn("analysis failed", "analysisId", e.AnalysisID, "chainId", e.ChainID, "phase", e.Phase, "reason", e.Reason, "detail", e.Detail)
	case events.AnalysisReused:
		key = e.ChainID
		m.log.Info("analysis reused", "analysisId", e.AnalysisID, "chainId", e.ChainID, "phase", e.Phase, "ageSeconds", e.AgeSeconds)
	default:
		return nil
	}

	if m.publisher == nil {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event.EventName(), err)
	}
	if err := m.publisher.Publish(ctx, key, event.EventName(), body); err != nil {
		return fmt.Errorf("forward %s: %w", event.EventName(), err)
	}
	return nil
}

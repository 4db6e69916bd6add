package repository

import (
	"context"
	"fmt"
	"sync"

	"ticketchain/internal/tickets/domain"
	"ticketchain/platform/apperr"
)

// MemorySource serves tickets of one category from memory. Mock runs and
// tests use it in place of the ticketing database.
type MemorySource struct {
	category   domain.Category
	mu         sync.RWMutex
	tickets    []domain.Ticket
	fail       error
	peripheral map[string]domain.PeripheralCounts
}

// NewMemorySource creates a source holding the given tickets, which must all be of category.
func NewMemorySource(category domain.Category, tickets ...domain.Ticket) *MemorySource {
	m := &MemorySource{category: category, peripheral: map[string]domain.PeripheralCounts{}}
	m.Add(tickets...)
	return m
}

// Category returns the category served.
func (m *MemorySource) Category() domain.Category { return m.category }

// Add appends tickets. The same ticket may be added twice to mimic a duplicating join.
func (m *MemorySource) Add(tickets ...domain.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tickets {
		t.Category = m.category
		m.tickets = append(m.tickets, t)
	}
}

// SetPeripheral records excluded-ticket counts for a chain.
func (m *MemorySource) SetPeripheral(chainID string, counts domain.PeripheralCounts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peripheral[chainID] = counts
}

// FailWith makes every later call return err, simulating an unreachable store. nil restores it.
func (m *MemorySource) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// GetTicketByID returns the first ticket with id.
func (m *MemorySource) GetTicketByID(_ context.Context, id string) (domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return domain.Ticket{}, m.fail
	}
	for _, t := range m.tickets {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Ticket{}, apperr.NotFound(fmt.Sprintf("%s ticket %s not found", m.category, id))
}

// GetTicketsByChain returns tickets linked to chainID in insertion order.
func (m *MemorySource) GetTicketsByChain(_ context.Context, chainID string) ([]domain.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fail != nil {
		return nil, m.fail
	}
	var out []domain.Ticket
	for _, t := range m.tickets {
		if t.ChainID == chainID {
			out = append(out, t)
		}
	}
	return out, nil
}

// CountPeripheral returns the counts recorded with SetPeripheral.
func (m *MemorySource) CountPeripheral(_ context.Context, chainID string) (domain.PeripheralCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peripheral[chainID], nil
}

var (
	_ Source            = (*MemorySource)(nil)
	_ PeripheralCounter = (*MemorySource)(nil)
)

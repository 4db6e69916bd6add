package repository

import (
	"context"
	"errors"
	"fmt"

	"ticketchain/internal/tickets/domain"
	"ticketchain/platform/apperr"
)

// Sources fans lookups out to one Source per category.
type Sources struct {
	byCategory map[domain.Category]Source
	counter    PeripheralCounter
}

// NewSources builds a Repository from per-category sources.
// A PeripheralCounter, if any source implements it, is exposed as well.
func NewSources(sources ...Source) *Sources {
	s := &Sources{byCategory: make(map[domain.Category]Source, len(sources))}
	for _, src := range sources {
		s.byCategory[src.Category()] = src
		if pc, ok := src.(PeripheralCounter); ok && s.counter == nil {
			s.counter = pc
		}
	}
	return s
}

// GetTicketByID checks each category in priority order. When the ticket is
// found nowhere and some source failed, the failure wins over NotFound since
// the ticket may live in the unreachable source.
func (s *Sources) GetTicketByID(ctx context.Context, id string) (domain.Ticket, error) {
	var failures []error
	for _, cat := range domain.Categories {
		src, ok := s.byCategory[cat]
		if !ok {
			continue
		}
		t, err := src.GetTicketByID(ctx, id)
		if err == nil {
			return t, nil
		}
		if apperr.Is(err, apperr.KindNotFound) {
			continue
		}
		failures = append(failures, fmt.Errorf("%s source: %w", cat, err))
	}
	if len(failures) > 0 {
		return domain.Ticket{}, apperr.Unavailable("ticket source unreachable", errors.Join(failures...)).WithOp("tickets.GetTicketByID")
	}
	return domain.Ticket{}, apperr.NotFound(fmt.Sprintf("ticket %s not found", id)).WithOp("tickets.GetTicketByID")
}

// GetTicketsByChain reads one category.
func (s *Sources) GetTicketsByChain(ctx context.Context, chainID string, category domain.Category) ([]domain.Ticket, error) {
	src, ok := s.byCategory[category]
	if !ok {
		return nil, apperr.Unavailable(fmt.Sprintf("no %s source configured", category), nil)
	}
	tickets, err := src.GetTicketsByChain(ctx, chainID)
	if err != nil {
		if apperr.GetKind(err) == apperr.KindUnknown {
			return nil, apperr.Unavailable(fmt.Sprintf("%s source unreachable", category), err)
		}
		return nil, err
	}
	return tickets, nil
}

// CountPeripheral delegates to the first source able to count excluded tickets.
func (s *Sources) CountPeripheral(ctx context.Context, chainID string) (domain.PeripheralCounts, error) {
	if s.counter == nil {
		return domain.PeripheralCounts{}, nil
	}
	return s.counter.CountPeripheral(ctx, chainID)
}

var (
	_ Repository        = (*Sources)(nil)
	_ PeripheralCounter = (*Sources)(nil)
)

// Package repository provides read-only access to dispatch and turnup tickets.
package repository

import (
	"context"

	"ticketchain/internal/tickets/domain"
)

// Source reads tickets of one category.
type Source interface {
	Category() domain.Category
	// GetTicketByID returns apperr NotFound when the ticket is not in this source.
	GetTicketByID(ctx context.Context, id string) (domain.Ticket, error)
	// GetTicketsByChain returns every ticket linked to chainID, duplicates included.
	GetTicketsByChain(ctx context.Context, chainID string) ([]domain.Ticket, error)
}

// Repository reads tickets across both categories.
type Repository interface {
	// GetTicketByID looks the ticket up in every category.
	GetTicketByID(ctx context.Context, id string) (domain.Ticket, error)
	// GetTicketsByChain reads one category; other categories stay usable when it fails.
	GetTicketsByChain(ctx context.Context, chainID string, category domain.Category) ([]domain.Ticket, error)
}

// PeripheralCounter reports linked tickets that are not analyzed.
type PeripheralCounter interface {
	CountPeripheral(ctx context.Context, chainID string) (domain.PeripheralCounts, error)
}

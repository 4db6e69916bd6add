// Package resolver turns a seed ticket id into its full chain.
package resolver

import (
	"context"
	"fmt"
	"slices"

	"ticketchain/internal/tickets/domain"
	"ticketchain/internal/tickets/repository"
	"ticketchain/platform/apperr"
	"ticketchain/platform/logger"
)

// SoloChainPrefix prefixes the chain id given to a ticket with no chain link.
const SoloChainPrefix = "ticket-"

// Resolver resolves chains from a ticket repository. It never writes.
type Resolver struct {
	repo repository.Repository
	log  *logger.Logger
}

// New creates a resolver.
func New(repo repository.Repository, log *logger.Logger) *Resolver {
	return &Resolver{repo: repo, log: log}
}

// Resolve finds the seed in either category, then collects every ticket that
// shares its chain id. A category that cannot be read degrades the result to
// partial; a seed that cannot be read fails the call. Tickets returned more
// than once are kept once, first occurrence wins.
func (r *Resolver) Resolve(ctx context.Context, seedID string) (domain.Chain, error) {
	seed, err := r.repo.GetTicketByID(ctx, seedID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return domain.Chain{}, apperr.NotFound(fmt.Sprintf("ticket %s not found in any category", seedID)).WithOp("resolver.Resolve")
		}
		return domain.Chain{}, fmt.Errorf("resolve seed %s: %w", seedID, err)
	}

	chain := domain.Chain{ID: seed.ChainID, SeedTicketID: seed.ID}
	if chain.ID == "" {
		chain.ID = SoloChainPrefix + seed.ID
		chain.Tickets = []domain.Ticket{seed}
		r.log.ChainResolved(seedID, chain.ID, 1, false)
		return chain, nil
	}

	seen := map[domain.Key]struct{}{seed.Key(): {}}
	tickets := []domain.Ticket{seed}
	for _, cat := range domain.Categories {
		found, err := r.repo.GetTicketsByChain(ctx, chain.ID, cat)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Chain{}, ctx.Err()
			}
			chain.Partial = true
			chain.Unavailable = append(chain.Unavailable, cat)
			r.log.Warn("partial chain resolution", "chainId", chain.ID, "category", cat.String(), "error", err)
			continue
		}
		for _, t := range found {
			if t.ChainID != "" && t.ChainID != chain.ID {
				continue
			}
			if _, dup := seen[t.Key()]; dup {
				continue
			}
			seen[t.Key()] = struct{}{}
			tickets = append(tickets, t)
		}
	}

	domain.SortTickets(tickets)
	chain.Tickets = slices.Clip(tickets)

	if pc, ok := r.repo.(repository.PeripheralCounter); ok {
		counts, err := pc.CountPeripheral(ctx, chain.ID)
		if err != nil {
			r.log.Warn("peripheral ticket count failed", "chainId", chain.ID, "error", err)
		} else {
			chain.Peripheral = counts
		}
	}

	r.log.ChainResolved(seedID, chain.ID, len(chain.Tickets), chain.Partial)
	return chain, nil
}

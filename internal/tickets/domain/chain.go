package domain

import (
	"slices"
)

// PeripheralCounts tallies linked tickets that are not analyzed.
type PeripheralCounts struct {
	Project int `json:"project"`
	Other   int `json:"other"`
}

// Chain is every ticket sharing one chain identifier, as seen by one resolution.
type Chain struct {
	ID           string           `json:"id"`
	SeedTicketID string           `json:"seedTicketId"`
	Tickets      []Ticket         `json:"tickets"`
	Partial      bool             `json:"partial"`
	Unavailable  []Category       `json:"unavailable,omitempty"`
	Peripheral   PeripheralCounts `json:"peripheral"`
}

// ByCategory returns the tickets of one category in chain order.
func (c Chain) ByCategory(cat Category) []Ticket {
	out := make([]Ticket, 0, len(c.Tickets))
	for _, t := range c.Tickets {
		if t.Category == cat {
			out = append(out, t)
		}
	}
	return out
}

// Seed returns the seed ticket.
func (c Chain) Seed() (Ticket, bool) {
	for _, t := range c.Tickets {
		if t.ID == c.SeedTicketID {
			return t, true
		}
	}
	return Ticket{}, false
}

// Contains reports whether a ticket id is part of the chain in any category.
func (c Chain) Contains(id string) bool {
	return slices.ContainsFunc(c.Tickets, func(t Ticket) bool { return t.ID == id })
}

// SortTickets orders tickets by category priority then id.
func SortTickets(tickets []Ticket) {
	slices.SortStableFunc(tickets, func(a, b Ticket) int {
		if a.Category != b.Category {
			return a.Category.Priority() - b.Category.Priority()
		}
		return CompareIDs(a.ID, b.ID)
	})
}

// Package timeline orders the tickets of a chain into a single sequence of
// events. It performs no I/O.
package timeline

import (
	"slices"
	"time"

	"ticketchain/internal/tickets/domain"
)

// Kind is the lifecycle step an event records.
type Kind int

const (
	KindCreated Kind = iota + 1
	KindUpdated
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindUpdated:
		return "updated"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is one lifecycle step of one ticket.
type Event struct {
	Sequence  int             `json:"sequence"`
	TicketID  string          `json:"ticketId"`
	Category  domain.Category `json:"category"`
	Kind      Kind            `json:"kind"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	// Rank is the ticket's creation order within its category, starting at 1.
	Rank int `json:"rank"`
	// ApproximateOrder is set when the event had no timestamp and its position
	// was interpolated from the ticket's rank.
	ApproximateOrder bool `json:"approximateOrder"`
}

// Candidates lists every distinct event the chain's tickets carry, unordered.
// A ticket always has a created event, an updated event when its last
// activity differs from its created and closed times, and a closed event
// when it is closed, with or without a close timestamp.
func Candidates(chain domain.Chain) []Event {
	ranks := rankTickets(chain.Tickets)
	var out []Event
	for _, t := range chain.Tickets {
		rank := ranks[t.Key()]
		out = append(out, Event{TicketID: t.ID, Category: t.Category, Kind: KindCreated, Timestamp: t.CreatedAt, Rank: rank})
		if t.UpdatedAt != nil && !sameInstant(t.UpdatedAt, t.CreatedAt) && !sameInstant(t.UpdatedAt, t.ClosedAt) {
			out = append(out, Event{TicketID: t.ID, Category: t.Category, Kind: KindUpdated, Timestamp: t.UpdatedAt, Rank: rank})
		}
		if t.IsClosed() {
			out = append(out, Event{TicketID: t.ID, Category: t.Category, Kind: KindClosed, Timestamp: t.ClosedAt, Rank: rank})
		}
	}
	return out
}

// Build returns the chain's events in chronological order.
//
// Timestamped events sort by time, then Dispatch before Turnup, then ticket
// id, then kind. An event without a timestamp is anchored to the latest
// timestamped event of the same category belonging to an earlier-ranked
// ticket (or to an earlier step of the same ticket) and placed right after
// it with ApproximateOrder set. Events are never dropped, and the same chain
// always yields the same order.
func Build(chain domain.Chain) []Event {
	events := Candidates(chain)
	anchors := make([]time.Time, len(events))
	for i, e := range events {
		if e.Timestamp != nil {
			anchors[i] = e.Timestamp.UTC()
			continue
		}
		events[i].ApproximateOrder = true
		anchors[i] = anchorFor(e, events)
	}

	idx := make([]int, len(events))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		ea, eb := events[a], events[b]
		if c := anchors[a].Compare(anchors[b]); c != 0 {
			return c
		}
		if ea.ApproximateOrder != eb.ApproximateOrder {
			if ea.ApproximateOrder {
				return 1
			}
			return -1
		}
		if ea.Category != eb.Category {
			return ea.Category.Priority() - eb.Category.Priority()
		}
		if ea.Rank != eb.Rank && ea.ApproximateOrder {
			return ea.Rank - eb.Rank
		}
		if c := domain.CompareIDs(ea.TicketID, eb.TicketID); c != 0 {
			return c
		}
		return int(ea.Kind) - int(eb.Kind)
	})

	out := make([]Event, len(events))
	for pos, i := range idx {
		out[pos] = events[i]
		out[pos].Sequence = pos + 1
	}
	return out
}

// anchorFor finds the latest timestamp among same-category events that must
// precede e. The zero time places e ahead of every timestamped event.
func anchorFor(e Event, events []Event) time.Time {
	var anchor time.Time
	for _, other := range events {
		if other.Timestamp == nil || other.Category != e.Category {
			continue
		}
		earlier := other.Rank < e.Rank || (other.Rank == e.Rank && other.TicketID == e.TicketID && other.Kind < e.Kind)
		if earlier && other.Timestamp.After(anchor) {
			anchor = other.Timestamp.UTC()
		}
	}
	return anchor
}

// rankTickets numbers tickets within each category by id, which the
// ticketing system allocates in creation order.
func rankTickets(tickets []domain.Ticket) map[domain.Key]int {
	byCat := map[domain.Category][]string{}
	for _, t := range tickets {
		byCat[t.Category] = append(byCat[t.Category], t.ID)
	}
	ranks := make(map[domain.Key]int, len(tickets))
	for cat, ids := range byCat {
		slices.SortFunc(ids, domain.CompareIDs)
		ids = slices.Compact(ids)
		for i, id := range ids {
			ranks[domain.Key{Category: cat, ID: id}] = i + 1
		}
	}
	return ranks
}

func sameInstant(a, b *time.Time) bool {
	return a != nil && b != nil && a.Equal(*b)
}

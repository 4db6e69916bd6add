// Package domain defines the ticket model shared by the resolver, the
// timeline builder and the prompt composer.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category is the closed set of ticket sources a chain is built from.
type Category int

const (
	// CategoryDispatch is the originating service request.
	CategoryDispatch Category = iota + 1
	// CategoryTurnup is a field visit spawned from a dispatch.
	CategoryTurnup
)

// Categories lists every category in priority order.
var Categories = []Category{CategoryDispatch, CategoryTurnup}

func (c Category) String() string {
	switch c {
	case CategoryDispatch:
		return "Dispatch"
	case CategoryTurnup:
		return "Turnup"
	default:
		return "Unknown"
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c == CategoryDispatch || c == CategoryTurnup
}

// Priority orders categories for tie-breaks: Dispatch sorts before Turnup.
func (c Category) Priority() int {
	return int(c)
}

// MarshalText renders the category name.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses a category name.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory parses "dispatch" or "turnup" in any case.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dispatch":
		return CategoryDispatch, nil
	case "turnup", "turn-up", "turn up":
		return CategoryTurnup, nil
	default:
		return 0, fmt.Errorf("unknown ticket category %q", s)
	}
}

// Note is one post on a ticket.
type Note struct {
	Author   string     `json:"author,omitempty" yaml:"author"`
	PostedAt *time.Time `json:"postedAt,omitempty" yaml:"postedAt"`
	Body     string     `json:"body" yaml:"body"`
	Private  bool       `json:"private,omitempty" yaml:"private"`
}

// Ticket is a read-only snapshot of a dispatch or turnup ticket.
type Ticket struct {
	ID              string     `json:"id" yaml:"id"`
	Category        Category   `json:"category" yaml:"category"`
	ChainID         string     `json:"chainId,omitempty" yaml:"chainId"`
	Status          string     `json:"status,omitempty" yaml:"status"`
	Subject         string     `json:"subject,omitempty" yaml:"subject"`
	Type            string     `json:"type,omitempty" yaml:"type"`
	Department      string     `json:"department,omitempty" yaml:"department"`
	Customer        string     `json:"customer,omitempty" yaml:"customer"`
	Technician      string     `json:"technician,omitempty" yaml:"technician"`
	SiteID          string     `json:"siteId,omitempty" yaml:"siteId"`
	Description     string     `json:"description,omitempty" yaml:"description"`
	ResolutionNotes string     `json:"resolutionNotes,omitempty" yaml:"resolutionNotes"`
	CreatedAt       *time.Time `json:"createdAt,omitempty" yaml:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty" yaml:"updatedAt"`
	ClosedAt        *time.Time `json:"closedAt,omitempty" yaml:"closedAt"`
	DueAt           *time.Time `json:"dueAt,omitempty" yaml:"dueAt"`
	Notes           []Note     `json:"notes,omitempty" yaml:"notes"`
}

// Key identifies a ticket within a chain.
type Key struct {
	Category Category
	ID       string
}

// Key returns the (category, id) identity used for deduplication.
func (t Ticket) Key() Key {
	return Key{Category: t.Category, ID: t.ID}
}

// Phase derives the work phase from the subject line.
func (t Ticket) Phase() Phase {
	return DetectPhase(t.Subject)
}

// IsClosed reports whether the ticket has a close timestamp or a closing status.
func (t Ticket) IsClosed() bool {
	if t.ClosedAt != nil {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(t.Status)) {
	case "closed", "complete", "completed", "resolved", "cancelled", "canceled":
		return true
	}
	return false
}

// CompareIDs orders ticket ids numerically when both are integers and
// lexically otherwise, so "999" sorts before "1000".
func CompareIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

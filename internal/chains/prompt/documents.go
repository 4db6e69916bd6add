package prompt

import (
	"encoding/json"
	"fmt"

	"ticketchain/internal/chains/timeline"
	"ticketchain/internal/tickets/domain"
)

// File is a named JSON document handed to file search.
type File struct {
	Name    string
	Content []byte
}

type chainFile struct {
	ChainID      string                  `json:"chainId"`
	SeedTicketID string                  `json:"seedTicketId"`
	TicketCount  int                     `json:"ticketCount"`
	Partial      bool                    `json:"partial"`
	Peripheral   domain.PeripheralCounts `json:"peripheral"`
	Tickets      []chainFileTicket       `json:"tickets"`
	Timeline     []timeline.Event        `json:"timeline"`
}

type chainFileTicket struct {
	ID       string          `json:"id"`
	Category domain.Category `json:"category"`
	Phase    domain.Phase    `json:"phase"`
	Subject  string          `json:"subject,omitempty"`
}

type ticketFile struct {
	domain.Ticket
	Phase domain.Phase `json:"phase"`
}

// Files renders one metadata document for the chain plus one document per
// ticket with its full notes. Output order is stable.
func Files(chain domain.Chain, events []timeline.Event) ([]File, error) {
	meta := chainFile{
		ChainID:      chain.ID,
		SeedTicketID: chain.SeedTicketID,
		TicketCount:  len(chain.Tickets),
		Partial:      chain.Partial,
		Peripheral:   chain.Peripheral,
		Timeline:     events,
	}
	for _, t := range chain.Tickets {
		meta.Tickets = append(meta.Tickets, chainFileTicket{ID: t.ID, Category: t.Category, Phase: t.Phase(), Subject: t.Subject})
	}

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render chain file: %w", err)
	}
	files := []File{{Name: fmt.Sprintf("chain_%s.json", chain.ID), Content: raw}}

	for _, t := range chain.Tickets {
		raw, err := json.MarshalIndent(ticketFile{Ticket: t, Phase: t.Phase()}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("render ticket %s file: %w", t.ID, err)
		}
		files = append(files, File{
			Name:    fmt.Sprintf("%s_%s.json", t.Category.String(), t.ID),
			Content: raw,
		})
	}
	return files, nil
}

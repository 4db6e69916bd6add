package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	tickets "ticketchain/internal/tickets/domain"
)

// Payload is the structured Phase 2 extraction. Every top-level section must
// be present; an empty list is a valid answer, a missing key is not.
type Payload struct {
	Timeline      []PayloadEvent      `json:"timeline" validate:"required,dive"`
	Relationships map[string][]string `json:"relationships" validate:"required"`
	Shortages     []Shortage          `json:"material_shortages" validate:"required,dive"`
	Revisits      []Revisit           `json:"revisits" validate:"required,dive"`
	Billing       []BillingNote       `json:"billing_notes" validate:"required,dive"`
	Anomalies     []Anomaly           `json:"anomalies" validate:"required,dive"`
}

// PayloadEvent is one entry of the extracted timeline.
type PayloadEvent struct {
	TicketID    string `json:"ticket_id" validate:"required"`
	Event       string `json:"event" validate:"required"`
	Timestamp   string `json:"timestamp,omitempty"`
	Description string `json:"description,omitempty"`
}

// Shortage is a material shortage mentioned in the tickets.
type Shortage struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Material string `json:"material" validate:"required"`
	Impact   string `json:"impact,omitempty"`
}

// Revisit is a return visit and its cause.
type Revisit struct {
	TicketID string `json:"ticket_id" validate:"required"`
	Reason   string `json:"reason" validate:"required"`
	Billable *bool  `json:"billable,omitempty"`
}

// BillingNote is a billing milestone or remark.
type BillingNote struct {
	TicketID  string `json:"ticket_id" validate:"required"`
	Milestone string `json:"milestone" validate:"required"`
	Note      string `json:"note,omitempty"`
}

// Anomaly is an inconsistency in the chain.
type Anomaly struct {
	Description string   `json:"description" validate:"required"`
	TicketIDs   []string `json:"ticket_ids,omitempty"`
}

// ExtractJSON finds the JSON object in a model answer that may wrap it in a
// markdown fence or surrounding prose. It does not repair malformed JSON.
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if start := strings.Index(s, "```"); start >= 0 {
		rest := s[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			s = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	return []byte(s[start : end+1]), nil
}

// DecodePayload parses raw into a Payload. Unknown keys are rejected so a
// drifting schema is caught rather than silently dropped.
func DecodePayload(raw []byte) (*Payload, error) {
	body, err := ExtractJSON(string(raw))
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &p, nil
}

// CheckRelationships reports relationship entries that do not map a dispatch
// of chain to turnups of chain.
func (p *Payload) CheckRelationships(chain tickets.Chain) error {
	category := make(map[string]tickets.Category, len(chain.Tickets))
	for _, t := range chain.Tickets {
		category[t.ID] = t.Category
	}

	keys := make([]string, 0, len(p.Relationships))
	for k := range p.Relationships {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var problems []string
	for _, k := range keys {
		if cat, ok := category[k]; !ok || cat != tickets.CategoryDispatch {
			problems = append(problems, fmt.Sprintf("relationships key %s is not a dispatch ticket of the chain", k))
			continue
		}
		for _, id := range p.Relationships[k] {
			if cat, ok := category[id]; !ok || cat != tickets.CategoryTurnup {
				problems = append(problems, fmt.Sprintf("relationships[%s] entry %s is not a turnup ticket of the chain", k, id))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// Package prompt renders a chain and its timeline into bounded, deterministic
// text for the analysis model, and into per-ticket documents for file search.
package prompt

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ticketchain/internal/chains/timeline"
	"ticketchain/internal/tickets/domain"
)

// Focus selects the analysis goal written into the prompt.
type Focus string

const (
	// FocusRelationship asks for ticket relationships and an overall summary.
	FocusRelationship Focus = "relationship"
	// FocusTimeline asks for visit outcomes, revisits and shortages.
	FocusTimeline Focus = "timeline"
)

// ParseFocus validates a focus name. Empty selects FocusRelationship.
func ParseFocus(s string) (Focus, error) {
	switch Focus(strings.ToLower(strings.TrimSpace(s))) {
	case "", FocusRelationship:
		return FocusRelationship, nil
	case FocusTimeline:
		return FocusTimeline, nil
	default:
		return "", fmt.Errorf("unknown analysis focus %q (want relationship or timeline)", s)
	}
}

// Detail is how much free text a rendering keeps.
type Detail int

const (
	DetailFull Detail = iota
	DetailNoNotes
	DetailNoResolution
	DetailStructural
)

func (d Detail) String() string {
	switch d {
	case DetailFull:
		return "full"
	case DetailNoNotes:
		return "no-notes"
	case DetailNoResolution:
		return "no-resolution"
	default:
		return "structural"
	}
}

// Options bound the rendering.
type Options struct {
	// MaxChars is the hard budget for the rendered text, counted in runes.
	MaxChars int
	// NoteChars caps each free-text field before the budget is applied.
	NoteChars int
	Focus     Focus
}

// Document is a rendered prompt.
type Document struct {
	Text         string `json:"text"`
	Chars        int    `json:"chars"`
	Detail       Detail `json:"detail"`
	HintsDropped bool   `json:"hintsDropped"`
	// GuidanceDropped is set when the background and goal prose was left out.
	GuidanceDropped bool `json:"guidanceDropped"`
	FormatDropped   bool `json:"formatDropped"`
	OmittedTickets  int  `json:"omittedTickets"`
	OmittedEvents   int  `json:"omittedEvents"`
	Truncated       bool `json:"truncated"`
}

// Composer renders prompts.
type Composer struct {
	opts Options
}

// New creates a composer, filling unset options with defaults.
func New(opts Options) *Composer {
	if opts.MaxChars <= 0 {
		opts.MaxChars = 24000
	}
	if opts.NoteChars <= 0 {
		opts.NoteChars = 150
	}
	if opts.Focus == "" {
		opts.Focus = FocusRelationship
	}
	return &Composer{opts: opts}
}

// WithFocus returns a composer sharing the options but with another focus.
func (c *Composer) WithFocus(f Focus) *Composer {
	opts := c.opts
	if f != "" {
		opts.Focus = f
	}
	return &Composer{opts: opts}
}

// Options returns the effective options.
func (c *Composer) Options() Options { return c.opts }

type plan struct {
	detail         Detail
	dropHints      bool
	dropGuidance   bool
	dropFormat     bool
	omittedTickets int
	omittedEvents  int
}

// Compose renders chain and events within the budget. Free text goes first
// (notes, then resolution notes, then descriptions), then relationship hints
// and the background and goal prose, then whole ticket records from the end
// of the roster, then timeline lines from the end, then the response format.
// The seed record goes last. A record is kept whole or not at all.
func (c *Composer) Compose(chain domain.Chain, events []timeline.Event) Document {
	hints := FindHints(chain)
	roster := rosterOrder(chain)

	p := plan{}
	fits := func() (string, bool) {
		text := c.render(chain, roster, events, hints, p)
		return text, utf8.RuneCountInString(text) <= c.opts.MaxChars
	}

	for _, d := range []Detail{DetailFull, DetailNoNotes, DetailNoResolution, DetailStructural} {
		p.detail = d
		if text, ok := fits(); ok {
			return c.document(text, p, false)
		}
	}

	if len(hints) > 0 {
		p.dropHints = true
		if text, ok := fits(); ok {
			return c.document(text, p, false)
		}
	}

	p.dropGuidance = true
	if text, ok := fits(); ok {
		return c.document(text, p, false)
	}

	for p.omittedTickets < len(roster)-1 {
		p.omittedTickets++
		if text, ok := fits(); ok {
			return c.document(text, p, false)
		}
	}

	for p.omittedEvents < len(events) {
		p.omittedEvents++
		if text, ok := fits(); ok {
			return c.document(text, p, false)
		}
	}

	p.dropFormat = true
	if text, ok := fits(); ok {
		return c.document(text, p, false)
	}

	if p.omittedTickets < len(roster) {
		p.omittedTickets = len(roster)
		if text, ok := fits(); ok {
			return c.document(text, p, false)
		}
	}

	// Only header lines remain.
	text := cutToLines(c.render(chain, roster, events, hints, p), c.opts.MaxChars)
	return c.document(text, p, true)
}

func (c *Composer) document(text string, p plan, truncated bool) Document {
	return Document{
		Text:            text,
		Chars:           utf8.RuneCountInString(text),
		Detail:          p.detail,
		HintsDropped:    p.dropHints,
		GuidanceDropped: p.dropGuidance,
		FormatDropped:   p.dropFormat,
		OmittedTickets:  p.omittedTickets,
		OmittedEvents:   p.omittedEvents,
		Truncated:       truncated || p.detail != DetailFull || p.dropHints || p.dropGuidance || p.dropFormat || p.omittedTickets > 0 || p.omittedEvents > 0,
	}
}

// rosterOrder puts the seed first, then the rest in chain order, so trimming
// from the end never removes it.
func rosterOrder(chain domain.Chain) []domain.Ticket {
	out := make([]domain.Ticket, 0, len(chain.Tickets))
	if seed, ok := chain.Seed(); ok {
		out = append(out, seed)
	}
	for _, t := range chain.Tickets {
		if t.ID == chain.SeedTicketID {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (c *Composer) render(chain domain.Chain, roster []domain.Ticket, events []timeline.Event, hints []Hint, p plan) string {
	var b strings.Builder
	kept := roster[:len(roster)-p.omittedTickets]

	dispatches := len(chain.ByCategory(domain.CategoryDispatch))
	turnups := len(chain.ByCategory(domain.CategoryTurnup))

	b.WriteString("TICKET CHAIN ANALYSIS REQUEST\n")
	fmt.Fprintf(&b, "Chain: %s\n", chain.ID)
	fmt.Fprintf(&b, "Seed ticket: %s\n", chain.SeedTicketID)
	fmt.Fprintf(&b, "Tickets analyzed: %d dispatch, %d turnup\n", dispatches, turnups)
	fmt.Fprintf(&b, "Linked but excluded: %d project management, %d other\n", chain.Peripheral.Project, chain.Peripheral.Other)
	if chain.Partial {
		names := make([]string, 0, len(chain.Unavailable))
		for _, cat := range chain.Unavailable {
			names = append(names, cat.String())
		}
		fmt.Fprintf(&b, "Partial chain: %s tickets could not be read\n", strings.Join(names, ", "))
	}

	if !p.dropGuidance {
		b.WriteString("\nBACKGROUND\n")
		b.WriteString(background)
		b.WriteString("\nGOAL\n")
		b.WriteString(goals[c.opts.Focus])
	}

	for _, cat := range domain.Categories {
		var section []domain.Ticket
		for _, t := range kept {
			if t.Category == cat {
				section = append(section, t)
			}
		}
		if len(section) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n=== %s TICKETS ===\n", strings.ToUpper(cat.String()))
		for _, t := range section {
			c.writeTicket(&b, t, p.detail)
		}
	}
	if p.omittedTickets > 0 {
		fmt.Fprintf(&b, "\n[%d ticket records omitted for length]\n", p.omittedTickets)
	}

	keptEvents := events[:len(events)-p.omittedEvents]
	if len(keptEvents) > 0 || p.omittedEvents > 0 {
		b.WriteString("\n=== TIMELINE ===\n")
		for _, e := range keptEvents {
			writeEvent(&b, e)
		}
		if p.omittedEvents > 0 {
			fmt.Fprintf(&b, "[%d later timeline events omitted for length]\n", p.omittedEvents)
		}
	}

	if len(hints) > 0 && !p.dropHints {
		b.WriteString("\n=== RELATIONSHIP HINTS ===\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- %s %s mentions %s %s: %q\n", h.From.Category, h.From.ID, h.To.Category, h.To.ID, h.Phrase)
		}
	}

	if !p.dropFormat {
		b.WriteString("\n")
		b.WriteString(responseFormat)
	}
	return b.String()
}

func (c *Composer) writeTicket(b *strings.Builder, t domain.Ticket, detail Detail) {
	fmt.Fprintf(b, "\n--- %s TICKET %s ---\n", strings.ToUpper(t.Category.String()), t.ID)
	field(b, "Subject", oneLine(t.Subject))
	field(b, "Phase", string(t.Phase()))
	field(b, "Type", t.Type)
	field(b, "Status", t.Status)
	field(b, "Department", t.Department)
	field(b, "Customer", t.Customer)
	field(b, "Technician", t.Technician)
	field(b, "Site", t.SiteID)
	field(b, "Created", stamp(t.CreatedAt))
	field(b, "Last Activity", stamp(t.UpdatedAt))
	field(b, "Closed", stamp(t.ClosedAt))
	field(b, "Due", stamp(t.DueAt))
	if detail < DetailStructural {
		field(b, "Description", c.clip(t.Description))
	}
	if detail < DetailNoResolution {
		field(b, "Resolution", c.clip(t.ResolutionNotes))
	}
	if detail < DetailNoNotes && len(t.Notes) > 0 {
		b.WriteString("Notes:\n")
		for _, n := range t.Notes {
			author := n.Author
			if author == "" {
				author = "unknown"
			}
			fmt.Fprintf(b, "- %s by %s: %s\n", orNA(stamp(n.PostedAt)), author, c.clip(n.Body))
		}
	}
}

func writeEvent(b *strings.Builder, e timeline.Event) {
	when := stamp(e.Timestamp)
	if e.ApproximateOrder {
		when = "time unknown, approximate order"
	}
	fmt.Fprintf(b, "%d. [%s] %s %s %s\n", e.Sequence, when, e.Category, e.TicketID, e.Kind)
}

func (c *Composer) clip(s string) string {
	s = oneLine(s)
	if utf8.RuneCountInString(s) <= c.opts.NoteChars {
		return s
	}
	runes := []rune(s)
	keep := c.opts.NoteChars - 3
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + "..."
}

func field(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", name, value)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// cutToLines trims s to at most max runes, ending on a line boundary.
func cutToLines(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)[:max]
	cut := string(runes)
	if idx := strings.LastIndexByte(cut, '\n'); idx >= 0 {
		return cut[:idx+1]
	}
	return ""
}

const background = `Field service work is tracked in two ticket types:
1. DISPATCH tickets record a service request (departments FST Accounting, Dispatch, Pro Services).
2. TURNUP tickets are created when a technician is booked and hold the work details (department Turnups).
Dispatch and turnup tickets are usually 1:1, but multi-phase projects (P1, P2, P3, revisits) can link
several turnups to one dispatch without the link being recorded explicitly.
`

var goals = map[Focus]string{
	FocusRelationship: `Based on these tickets:
1. Identify the actual relationships between the tickets.
2. Determine the chronological order of events.
3. Explain which dispatch tickets spawned which turnup tickets.
4. Note anomalies or inconsistencies in the ticket relationships.
5. Summarize the service history of the chain.
`,
	FocusTimeline: `Based on these tickets:
1. Reconstruct the timeline of visits, their scope and completion status.
2. Identify revisits and their causes, and whether each revisit was billable to the client.
3. Identify material shortages and their impact on the schedule.
4. Track billing milestones (50% billing, completed billing).
5. Summarize the outcome of each visit.
`,
}

const responseFormat = `RESPONSE FORMAT
1. Timeline of Events: chronological list of what happened
2. Relationship Map: which dispatch tickets spawned which turnup tickets
3. Anomalies/Issues: problems or inconsistencies in the ticket relationships
4. Summary: overall description of the service history
`

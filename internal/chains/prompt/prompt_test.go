package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"ticketchain/internal/chains/timeline"
	"ticketchain/internal/tickets/domain"
)

func sampleChain() domain.Chain {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(h int) *time.Time { v := start.Add(time.Duration(h) * time.Hour); return &v }
	long := strings.Repeat("Technician reports the rack was not ready and the ONT had no power. ", 6)

	tickets := []domain.Ticket{
		{ID: "2000101", Category: domain.CategoryDispatch, ChainID: "CH-9", Subject: "P1 Install at Harbor Clinic", Status: "Open",
			Customer: "Harbor Clinic", Description: long, CreatedAt: at(0),
			Notes: []domain.Note{{Author: "Dispatcher", PostedAt: at(0), Body: long}}},
		{ID: "2000102", Category: domain.CategoryDispatch, ChainID: "CH-9", Subject: "P2 Cutover", CreatedAt: at(30), Description: long},
	}
	for i := range 6 {
		tickets = append(tickets, domain.Ticket{
			ID: fmt.Sprintf("300010%d", i), Category: domain.CategoryTurnup, ChainID: "CH-9",
			Subject:         "Turnup for Dispatch #2000101",
			Technician:      "Alice",
			Description:     long,
			ResolutionNotes: "Missing SFP modules. " + long,
			CreatedAt:       at(24 + i*6),
			Notes: []domain.Note{
				{Author: "Alice", PostedAt: at(25 + i*6), Body: long},
				{Body: "Spawned from dispatch 2000102 after the survey."},
			},
		})
	}
	return domain.Chain{ID: "CH-9", SeedTicketID: "3000103", Tickets: tickets, Peripheral: domain.PeripheralCounts{Project: 1}}
}

func compose(chain domain.Chain, maxChars int) Document {
	return New(Options{MaxChars: maxChars, NoteChars: 400}).Compose(chain, timeline.Build(chain))
}

func TestComposeFitsWithoutTruncation(t *testing.T) {
	chain := sampleChain()
	doc := compose(chain, 1_000_000)
	if doc.Truncated || doc.Detail != DetailFull {
		t.Fatalf("expected a full rendering, got %+v", doc)
	}
	for _, want := range []string{
		"Chain: CH-9", "Seed ticket: 3000103", "Tickets analyzed: 2 dispatch, 6 turnup",
		"Linked but excluded: 1 project management, 0 other", "=== DISPATCH TICKETS ===",
		"--- TURNUP TICKET 3000105 ---", "=== TIMELINE ===", "=== RELATIONSHIP HINTS ===", "RESPONSE FORMAT",
	} {
		if !strings.Contains(doc.Text, want) {
			t.Fatalf("expected %q in prompt", want)
		}
	}
	if doc.Chars != utf8.RuneCountInString(doc.Text) {
		t.Fatalf("expected Chars to count runes")
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	chain := sampleChain()
	for _, budget := range []int{1_000_000, 4000, 900} {
		if a, b := compose(chain, budget), compose(chain, budget); a != b {
			t.Fatalf("budget %d: expected identical documents", budget)
		}
	}
}

func TestComposeDropsNotesFirst(t *testing.T) {
	chain := sampleChain()
	full := compose(chain, 1_000_000)
	doc := compose(chain, full.Chars-1)
	if doc.Detail != DetailNoNotes || doc.HintsDropped || doc.OmittedTickets != 0 || !doc.Truncated {
		t.Fatalf("expected only notes removed, got %+v", doc)
	}
	if strings.Contains(doc.Text, "Notes:") || !strings.Contains(doc.Text, "Resolution: Missing SFP modules.") {
		t.Fatalf("expected notes gone and resolutions kept")
	}
}

func TestComposeNeverExceedsBudgetAndKeepsSeed(t *testing.T) {
	chain := sampleChain()
	events := timeline.Build(chain)
	full := compose(chain, 1_000_000)
	for budget := full.Chars; budget >= 50; budget -= 97 {
		doc := compose(chain, budget)
		if doc.Chars > budget || utf8.RuneCountInString(doc.Text) > budget {
			t.Fatalf("budget %d: rendered %d runes", budget, doc.Chars)
		}
		if doc.OmittedTickets == len(chain.Tickets) && (doc.OmittedEvents < len(events) || !doc.FormatDropped) {
			t.Fatalf("budget %d: omitted the seed record before the timeline and format, got %+v", budget, doc)
		}
		if doc.OmittedTickets < len(chain.Tickets) && !strings.Contains(doc.Text, "--- TURNUP TICKET 3000103 ---") {
			t.Fatalf("budget %d: expected the seed record kept, got %+v", budget, doc)
		}
		if doc.OmittedTickets > 0 && (doc.Detail != DetailStructural || !doc.HintsDropped || !doc.GuidanceDropped) {
			t.Fatalf("budget %d: records dropped before free text, hints and guidance, got %+v", budget, doc)
		}
		if doc.OmittedEvents > 0 && doc.OmittedTickets < len(chain.Tickets)-1 {
			t.Fatalf("budget %d: events dropped before records, got %+v", budget, doc)
		}
	}
}

func TestComposeSmallBudgetsKeepSeedRecordWhole(t *testing.T) {
	chain := sampleChain()
	seed, _ := chain.Seed()
	header := "--- TURNUP TICKET 3000103 ---"
	created := "Created: " + seed.CreatedAt.UTC().Format(time.RFC3339)
	for budget := 1600; budget >= 300; budget -= 10 {
		doc := compose(chain, budget)
		if doc.Chars > budget {
			t.Fatalf("budget %d: rendered %d runes", budget, doc.Chars)
		}
		if !strings.Contains(doc.Text, header) {
			if doc.OmittedTickets != len(chain.Tickets) {
				t.Fatalf("budget %d: seed record missing without being omitted, got %+v", budget, doc)
			}
			continue
		}
		record := doc.Text[strings.Index(doc.Text, header):]
		if !strings.Contains(record, created) {
			t.Fatalf("budget %d: seed record cut short:\n%s", budget, record)
		}
		if strings.Contains(doc.Text, "BACKGROUND") && doc.OmittedTickets > 0 {
			t.Fatalf("budget %d: kept background prose while omitting records", budget)
		}
	}
}

func TestComposeDropsGuidanceBeforeRecords(t *testing.T) {
	chain := sampleChain()
	full := compose(chain, 1_000_000)
	for budget := full.Chars; budget >= 300; budget -= 25 {
		doc := compose(chain, budget)
		if !doc.GuidanceDropped {
			continue
		}
		if strings.Contains(doc.Text, "BACKGROUND") || strings.Contains(doc.Text, "\nGOAL\n") {
			t.Fatalf("budget %d: expected background and goal gone", budget)
		}
		if doc.OmittedTickets != 0 || doc.FormatDropped || !strings.Contains(doc.Text, "RESPONSE FORMAT") {
			t.Fatalf("budget %d: expected only the guidance prose dropped, got %+v", budget, doc)
		}
		return
	}
	t.Fatalf("expected some budget to drop the guidance prose")
}

func TestComposeClipsFreeText(t *testing.T) {
	chain := sampleChain()
	doc := New(Options{MaxChars: 1_000_000, NoteChars: 20}).Compose(chain, nil)
	if !strings.Contains(doc.Text, "Resolution: Missing SFP modul...") {
		t.Fatalf("expected resolution clipped to 20 runes")
	}
	if strings.Contains(doc.Text, "=== TIMELINE ===") {
		t.Fatalf("expected no timeline section without events")
	}
}

func TestComposeFocus(t *testing.T) {
	chain := sampleChain()
	base := New(Options{MaxChars: 1_000_000})
	timelineDoc := base.WithFocus(FocusTimeline).Compose(chain, nil)
	if !strings.Contains(timelineDoc.Text, "Identify material shortages") {
		t.Fatalf("expected the timeline goal")
	}
	if base.Options().Focus != FocusRelationship {
		t.Fatalf("expected WithFocus to leave the original composer alone")
	}

	if f, err := ParseFocus(" Timeline "); err != nil || f != FocusTimeline {
		t.Fatalf("expected timeline focus, got %q (%v)", f, err)
	}
	if f, err := ParseFocus(""); err != nil || f != FocusRelationship {
		t.Fatalf("expected default focus, got %q (%v)", f, err)
	}
	if _, err := ParseFocus("billing"); err == nil {
		t.Fatalf("expected unknown focus to fail")
	}
}

func TestComposePartialChain(t *testing.T) {
	chain := sampleChain()
	chain.Partial = true
	chain.Unavailable = []domain.Category{domain.CategoryDispatch}
	doc := compose(chain, 1_000_000)
	if !strings.Contains(doc.Text, "Partial chain: Dispatch tickets could not be read") {
		t.Fatalf("expected the partial notice")
	}
	if !strings.Contains(Extraction(chain), "could not be loaded") {
		t.Fatalf("expected the extraction request to flag the partial chain")
	}
}

func TestFindHints(t *testing.T) {
	chain := sampleChain()
	chain.Tickets[1].Description = "See ticket #9999999 and ticket 2000102."
	hints := FindHints(chain)

	fromTurnups := 0
	for _, h := range hints {
		if h.To.ID == "9999999" {
			t.Fatalf("expected references outside the chain ignored")
		}
		if h.From == h.To {
			t.Fatalf("expected self references ignored")
		}
		if h.From.Category == domain.CategoryTurnup {
			fromTurnups++
		}
	}
	// Each turnup points at both dispatches once.
	if fromTurnups != 12 {
		t.Fatalf("expected 12 turnup hints, got %d", fromTurnups)
	}
	if hints[0].From.Category != domain.CategoryTurnup || hints[0].From.ID != "3000100" || hints[0].To.ID != "2000101" {
		t.Fatalf("expected hints sorted by source then target, got %+v", hints[0])
	}
}

func TestFiles(t *testing.T) {
	chain := sampleChain()
	files, err := Files(chain, timeline.Build(chain))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != len(chain.Tickets)+1 {
		t.Fatalf("expected one file per ticket plus the chain file, got %d", len(files))
	}
	if files[0].Name != "chain_CH-9.json" || files[1].Name != "Dispatch_2000101.json" {
		t.Fatalf("unexpected file names %s, %s", files[0].Name, files[1].Name)
	}

	var meta struct {
		ChainID  string `json:"chainId"`
		Timeline []struct {
			TicketID string `json:"ticketId"`
			Kind     string `json:"kind"`
		} `json:"timeline"`
	}
	if err := json.Unmarshal(files[0].Content, &meta); err != nil {
		t.Fatalf("chain file is not JSON: %v", err)
	}
	if meta.ChainID != "CH-9" || len(meta.Timeline) == 0 || meta.Timeline[0].Kind != "created" {
		t.Fatalf("unexpected chain file %+v", meta)
	}

	var ticket map[string]any
	if err := json.Unmarshal(files[3].Content, &ticket); err != nil {
		t.Fatalf("ticket file is not JSON: %v", err)
	}
	if ticket["category"] != "Turnup" || ticket["phase"] != string(domain.PhaseOther) {
		t.Fatalf("unexpected ticket file %v", ticket)
	}
}

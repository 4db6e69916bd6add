package prompt

import (
	"regexp"
	"slices"
	"strings"

	"ticketchain/internal/tickets/domain"
)

// Hint is an explicit reference from one chain ticket to another found in ticket text.
type Hint struct {
	From   domain.Key
	To     domain.Key
	Phrase string
}

var referencePattern = regexp.MustCompile(`(?i)\b(spawned\s+(?:by|from)|created\s+from|dispatch|turn-?up|ticket|ref(?:erence)?)\s*(?:#|no\.?|number)?\s*:?\s*#?(\d{4,})\b`)

// FindHints scans subjects, descriptions, resolution notes and notes for
// references to other tickets of the same chain. Results are sorted and unique.
func FindHints(chain domain.Chain) []Hint {
	byID := map[string]domain.Ticket{}
	for _, t := range chain.Tickets {
		if _, ok := byID[t.ID]; !ok {
			byID[t.ID] = t
		}
	}

	seen := map[[2]domain.Key]bool{}
	var hints []Hint
	for _, t := range chain.Tickets {
		texts := []string{t.Subject, t.Description, t.ResolutionNotes}
		for _, n := range t.Notes {
			texts = append(texts, n.Body)
		}
		for _, text := range texts {
			for _, m := range referencePattern.FindAllStringSubmatch(text, -1) {
				target, ok := byID[m[2]]
				if !ok || target.ID == t.ID {
					continue
				}
				pair := [2]domain.Key{t.Key(), target.Key()}
				if seen[pair] {
					continue
				}
				seen[pair] = true
				hints = append(hints, Hint{From: t.Key(), To: target.Key(), Phrase: strings.Join(strings.Fields(m[0]), " ")})
			}
		}
	}

	slices.SortFunc(hints, func(a, b Hint) int {
		if c := compareKey(a.From, b.From); c != 0 {
			return c
		}
		return compareKey(a.To, b.To)
	})
	return hints
}

func compareKey(a, b domain.Key) int {
	if a.Category != b.Category {
		return a.Category.Priority() - b.Category.Priority()
	}
	return domain.CompareIDs(a.ID, b.ID)
}
